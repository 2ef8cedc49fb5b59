// Package sqlite persists the embeddings artifact in a SQLite database file.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"cysearch/internal/domain"
	"cysearch/internal/vectorstore"
)

const schema = `
CREATE TABLE IF NOT EXISTS records (
    seq INTEGER PRIMARY KEY,
    id TEXT NOT NULL UNIQUE,
    subject TEXT,
    code TEXT,
    title TEXT,
    credits TEXT,
    semester TEXT,
    prereq TEXT,
    info TEXT,
    link TEXT,
    combined TEXT NOT NULL,
    model TEXT,
    embedding BLOB NOT NULL
);
`

// Store reads and writes the artifact in a SQLite file.
type Store struct {
	path string
	db   *sql.DB
}

// Open opens (creating if needed) the database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}
	return &Store{path: path, db: db}, nil
}

func (s *Store) Name() string { return s.path }

func (s *Store) Close() error { return s.db.Close() }

// Read returns all records in insertion order.
func (s *Store) Read(ctx context.Context) (*vectorstore.Batch, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, subject, code, title, credits, semester, prereq, info, link, combined, model, embedding
		FROM records ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("querying records: %w", err)
	}
	defer rows.Close()

	batch := &vectorstore.Batch{}
	for n := 1; rows.Next(); n++ {
		var (
			r                                               domain.Record
			subject, code, title, credits, semester, prereq sql.NullString
			info, link, model                               sql.NullString
			blob                                            []byte
		)
		if err := rows.Scan(&r.ID, &subject, &code, &title, &credits, &semester, &prereq, &info, &link, &r.CombinedText, &model, &blob); err != nil {
			return nil, &domain.LoadError{Row: n, Err: err}
		}
		r.Subject, r.Code, r.Title = subject.String, code.String, title.String
		r.Credits, r.Semester, r.Prereq = credits.String, semester.String, prereq.String
		r.Info, r.Link = info.String, link.String
		vec, err := decodeEmbedding(blob)
		if err != nil {
			return nil, &domain.LoadError{Row: n, RecordID: r.ID, Err: err}
		}
		if model.String != "" {
			if batch.Model == "" {
				batch.Model = model.String
			} else if batch.Model != model.String {
				return nil, &domain.LoadError{Row: n, RecordID: r.ID, Err: &domain.ModelMismatchError{Expected: batch.Model, Actual: model.String}}
			}
		}
		batch.Entries = append(batch.Entries, domain.Entry{Record: r, Embedding: vec})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return batch, nil
}

// Write replaces every stored record with batch in one transaction.
func (s *Store) Write(ctx context.Context, batch *vectorstore.Batch) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM records`); err != nil {
		return fmt.Errorf("clearing records: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO records (seq, id, subject, code, title, credits, semester, prereq, info, link, combined, model, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	for i, e := range batch.Entries {
		r := e.Record
		if _, err := stmt.ExecContext(ctx, i+1, r.ID, r.Subject, r.Code, r.Title, r.Credits, r.Semester,
			r.Prereq, r.Info, r.Link, r.CombinedText, batch.Model, encodeEmbedding(e.Embedding)); err != nil {
			return fmt.Errorf("inserting record %q: %w", r.ID, err)
		}
	}
	return tx.Commit()
}
