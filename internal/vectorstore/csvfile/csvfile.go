// Package csvfile reads and writes course tables as CSV, with or without an
// embedding column.
package csvfile

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"cysearch/internal/domain"
	"cysearch/internal/vectorstore"
)

const (
	colID        = "id"
	colSubject   = "subject"
	colCode      = "course_code"
	colTitle     = "course_title"
	colCredits   = "credit_number"
	colSemester  = "semester"
	colPrereq    = "prereq"
	colInfo      = "course_info"
	colLink      = "link"
	colCombined  = "combined"
	colEmbedding = "embedding"
	colModel     = "embedding_model"
)

var artifactHeader = []string{
	colID, colSubject, colCode, colTitle, colCredits, colSemester,
	colPrereq, colInfo, colLink, colCombined, colModel, colEmbedding,
}

// CombinedText builds the embedding input for a course.
func CombinedText(subject, title, info string) string {
	return subject + "; Title: " + title + "; Info: " + info
}

type row struct {
	cols   map[string]int
	fields []string
}

func (r row) get(name string) string {
	i, ok := r.cols[name]
	if !ok || i >= len(r.fields) {
		return ""
	}
	return strings.TrimSpace(r.fields[i])
}

func (r row) record() domain.Record {
	rec := domain.Record{
		ID:           r.get(colID),
		Subject:      r.get(colSubject),
		Code:         r.get(colCode),
		Title:        r.get(colTitle),
		Credits:      r.get(colCredits),
		Semester:     r.get(colSemester),
		Prereq:       r.get(colPrereq),
		Info:         r.get(colInfo),
		Link:         r.get(colLink),
		CombinedText: r.get(colCombined),
	}
	if rec.ID == "" {
		rec.ID = rec.Code
	}
	return rec
}

func readHeader(cr *csv.Reader) (map[string]int, error) {
	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("missing header row")
		}
		return nil, err
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	return cols, nil
}

// Source reads the embeddings artifact from a CSV file.
type Source struct {
	path string
}

func NewSource(path string) *Source { return &Source{path: path} }

func (s *Source) Name() string { return s.path }

func (s *Source) Read(ctx context.Context) (*vectorstore.Batch, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadArtifact(ctx, f)
}

// ReadArtifact parses an embeddings artifact. Rows are numbered from 1 after
// the header in returned errors.
func ReadArtifact(ctx context.Context, r io.Reader) (*vectorstore.Batch, error) {
	cr := csv.NewReader(r)
	cols, err := readHeader(cr)
	if err != nil {
		return nil, err
	}
	for _, required := range []string{colCombined, colEmbedding} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("missing column %q", required)
		}
	}
	if _, ok := cols[colID]; !ok {
		if _, ok := cols[colCode]; !ok {
			return nil, fmt.Errorf("missing column %q or %q", colID, colCode)
		}
	}

	batch := &vectorstore.Batch{}
	for n := 1; ; n++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		fields, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &domain.LoadError{Row: n, Err: err}
		}
		rw := row{cols: cols, fields: fields}
		rec := rw.record()
		vec, err := ParseEmbedding(rw.get(colEmbedding))
		if err != nil {
			return nil, &domain.LoadError{Row: n, RecordID: rec.ID, Err: err}
		}
		if m := rw.get(colModel); m != "" {
			if batch.Model == "" {
				batch.Model = m
			} else if m != batch.Model {
				return nil, &domain.LoadError{Row: n, RecordID: rec.ID, Err: &domain.ModelMismatchError{Expected: batch.Model, Actual: m}}
			}
		}
		batch.Entries = append(batch.Entries, domain.Entry{Record: rec, Embedding: vec})
	}
	return batch, nil
}

// ParseEmbedding decodes a JSON array of numbers.
func ParseEmbedding(cell string) (domain.Embedding, error) {
	if cell == "" {
		return nil, errors.New("empty embedding")
	}
	var raw []float64
	if err := json.Unmarshal([]byte(cell), &raw); err != nil {
		return nil, fmt.Errorf("malformed embedding: %w", err)
	}
	vec := make(domain.Embedding, len(raw))
	for i, v := range raw {
		vec[i] = float32(v)
	}
	return vec, nil
}

// FormatEmbedding encodes a vector as a JSON array.
func FormatEmbedding(vec domain.Embedding) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, v := range vec {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(strconv.FormatFloat(float64(v), 'g', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}

// Writer writes an embeddings artifact to a CSV file.
type Writer struct {
	path string
}

func NewWriter(path string) *Writer { return &Writer{path: path} }

// Write replaces the file content. Data goes to a temporary file first and is
// renamed into place, so readers never observe a partial artifact.
func (w *Writer) Write(ctx context.Context, batch *vectorstore.Batch) error {
	if err := os.MkdirAll(filepath.Dir(w.path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(w.path), filepath.Base(w.path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if err := WriteArtifact(ctx, tmp, batch); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), w.path)
}

// WriteArtifact encodes batch as CSV.
func WriteArtifact(ctx context.Context, out io.Writer, batch *vectorstore.Batch) error {
	cw := csv.NewWriter(out)
	if err := cw.Write(artifactHeader); err != nil {
		return err
	}
	for _, e := range batch.Entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		r := e.Record
		if err := cw.Write([]string{
			r.ID, r.Subject, r.Code, r.Title, r.Credits, r.Semester,
			r.Prereq, r.Info, r.Link, r.CombinedText, batch.Model, FormatEmbedding(e.Embedding),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCourses parses a raw course table without embeddings. Rows without
// course info are dropped. CombinedText is derived when the table has no
// combined column or the cell is empty.
func ReadCourses(ctx context.Context, r io.Reader) ([]domain.Record, error) {
	cr := csv.NewReader(r)
	cols, err := readHeader(cr)
	if err != nil {
		return nil, err
	}
	if _, ok := cols[colCode]; !ok {
		if _, ok := cols[colID]; !ok {
			return nil, fmt.Errorf("missing column %q or %q", colID, colCode)
		}
	}
	var out []domain.Record
	for n := 1; ; n++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		fields, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", n, err)
		}
		rec := row{cols: cols, fields: fields}.record()
		if rec.Info == "" {
			continue
		}
		if rec.CombinedText == "" {
			rec.CombinedText = CombinedText(rec.Subject, rec.Title, rec.Info)
		}
		out = append(out, rec)
	}
	return out, nil
}
