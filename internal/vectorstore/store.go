// Package vectorstore holds the immutable set of course records and their
// precomputed embeddings that queries are ranked against.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync/atomic"

	"cysearch/internal/domain"
)

// Batch is the raw content of a persisted embeddings artifact.
// Model may be empty when the artifact does not record it.
type Batch struct {
	Model   string
	Entries []domain.Entry
}

// Source reads a persisted embeddings artifact.
type Source interface {
	Name() string
	Read(ctx context.Context) (*Batch, error)
}

// Writer persists an embeddings artifact, replacing any previous content.
type Writer interface {
	Write(ctx context.Context, batch *Batch) error
}

// LoadOptions constrain what a load accepts.
type LoadOptions struct {
	// Model, when set, must match the model recorded by the source.
	Model string
}

var lastVersion atomic.Uint64

// Store is a read-only snapshot of records and embeddings.
// A Store is never modified after Load; refreshes build a new one.
type Store struct {
	entries   []domain.Entry
	index     map[string]int
	dimension int
	model     string
	version   uint64
}

// New validates entries and builds a store from them.
func New(model string, entries []domain.Entry) (*Store, error) {
	s := &Store{
		entries: make([]domain.Entry, len(entries)),
		index:   make(map[string]int, len(entries)),
		model:   model,
	}
	for i, e := range entries {
		if err := s.admit(i, e); err != nil {
			return nil, err
		}
	}
	s.version = lastVersion.Add(1)
	return s, nil
}

// Load reads a batch from src and builds a store from it. On any failure no
// store is returned and the error matches domain.ErrLoad.
func Load(ctx context.Context, src Source, opts LoadOptions) (*Store, error) {
	batch, err := src.Read(ctx)
	if err != nil {
		var le *domain.LoadError
		if errors.As(err, &le) {
			if le.Source == "" {
				le.Source = src.Name()
			}
			return nil, err
		}
		return nil, &domain.LoadError{Source: src.Name(), Err: err}
	}
	if batch == nil {
		batch = &Batch{}
	}
	if opts.Model != "" && batch.Model != "" && batch.Model != opts.Model {
		return nil, &domain.LoadError{
			Source: src.Name(),
			Err:    &domain.ModelMismatchError{Expected: opts.Model, Actual: batch.Model},
		}
	}
	model := batch.Model
	if model == "" {
		model = opts.Model
	}
	s, err := New(model, batch.Entries)
	if err != nil {
		var le *domain.LoadError
		if errors.As(err, &le) {
			le.Source = src.Name()
		}
		return nil, err
	}
	return s, nil
}

func (s *Store) admit(i int, e domain.Entry) error {
	fail := func(err error) error {
		return &domain.LoadError{Row: i + 1, RecordID: e.Record.ID, Err: err}
	}
	if strings.TrimSpace(e.Record.ID) == "" {
		return fail(errors.New("missing record id"))
	}
	if strings.TrimSpace(e.Record.CombinedText) == "" {
		return fail(errors.New("missing combined text"))
	}
	if len(e.Embedding) == 0 {
		return fail(errors.New("missing embedding"))
	}
	if _, dup := s.index[e.Record.ID]; dup {
		return fail(errors.New("duplicate record id"))
	}
	if s.dimension == 0 {
		s.dimension = len(e.Embedding)
	} else if len(e.Embedding) != s.dimension {
		return fail(&domain.DimensionMismatchError{Expected: s.dimension, Actual: len(e.Embedding)})
	}
	for j, v := range e.Embedding {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return fail(fmt.Errorf("non-finite embedding value at position %d", j))
		}
	}
	s.index[e.Record.ID] = i
	s.entries[i] = e
	return nil
}

// All returns the entries in insertion order. Callers must not modify the slice.
func (s *Store) All() []domain.Entry { return s.entries }

// Get returns the entry with the given record id.
func (s *Store) Get(id string) (domain.Entry, bool) {
	i, ok := s.index[id]
	if !ok {
		return domain.Entry{}, false
	}
	return s.entries[i], true
}

// Len returns the number of records.
func (s *Store) Len() int { return len(s.entries) }

// Dimension returns the shared embedding length, or 0 for an empty store.
func (s *Store) Dimension() int { return s.dimension }

// Model returns the embedding model the vectors came from, if known.
func (s *Store) Model() string { return s.model }

// Version identifies this snapshot. Every constructed store gets a new version.
func (s *Store) Version() uint64 { return s.version }

// Holder publishes the current store to concurrent readers.
type Holder struct {
	current atomic.Pointer[Store]
}

// NewHolder returns a holder serving s. A nil s is served as an empty store.
func NewHolder(s *Store) *Holder {
	h := &Holder{}
	h.Swap(s)
	return h
}

// Current returns the store snapshot in effect.
func (h *Holder) Current() *Store { return h.current.Load() }

// Swap replaces the store and returns the previous one.
func (h *Holder) Swap(s *Store) *Store {
	if s == nil {
		s, _ = New("", nil)
	}
	return h.current.Swap(s)
}
