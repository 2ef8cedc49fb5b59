// Package memory is an in-process artifact source used for tests and demos.
package memory

import (
	"context"
	"sync"

	"cysearch/internal/domain"
	"cysearch/internal/vectorstore"
)

// Source is an in-memory embeddings artifact.
type Source struct {
	mu        sync.RWMutex
	model     string
	dimension int
	entries   []domain.Entry
}

func NewSource(model string) *Source { return &Source{model: model} }

func (s *Source) Name() string { return "memory" }

// Upsert appends entries, replacing any with the same record id in place.
func (s *Source) Upsert(entries ...domain.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	dim, err := checkDimension(s.dimension, entries)
	if err != nil {
		return err
	}
	s.dimension = dim
	for _, e := range entries {
		replaced := false
		for i := range s.entries {
			if s.entries[i].Record.ID == e.Record.ID {
				s.entries[i] = e
				replaced = true
				break
			}
		}
		if !replaced {
			s.entries = append(s.entries, e)
		}
	}
	return nil
}

func checkDimension(dim int, entries []domain.Entry) (int, error) {
	for _, e := range entries {
		if dim == 0 {
			dim = len(e.Embedding)
		}
		if len(e.Embedding) != dim {
			return 0, &domain.DimensionMismatchError{Expected: dim, Actual: len(e.Embedding)}
		}
	}
	return dim, nil
}

// Read returns a copy of the current entries.
func (s *Source) Read(ctx context.Context) (*vectorstore.Batch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Entry, len(s.entries))
	copy(out, s.entries)
	return &vectorstore.Batch{Model: s.model, Entries: out}, nil
}

// Write replaces the contents with batch. On error the contents are unchanged.
func (s *Source) Write(ctx context.Context, batch *vectorstore.Batch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dim, err := checkDimension(0, batch.Entries)
	if err != nil {
		return err
	}
	entries := make([]domain.Entry, len(batch.Entries))
	copy(entries, batch.Entries)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.model = batch.Model
	s.dimension = dim
	s.entries = entries
	return nil
}

func (s *Source) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = nil
	s.dimension = 0
}
