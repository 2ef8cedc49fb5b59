// Package ingest builds the persisted embeddings artifact from raw course records.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"cysearch/internal/domain"
	"cysearch/internal/embedding"
	"cysearch/internal/logging"
	"cysearch/internal/vectorstore"
)

// Options tunes a Builder.
type Options struct {
	// RequestsPerSecond caps provider calls; 0 means unlimited.
	RequestsPerSecond float64
	Burst             int
	// Workers is the number of concurrent embedding calls.
	Workers int
	Logger  *slog.Logger
}

// Builder embeds records and writes them as an artifact.
type Builder struct {
	embedder embedding.Embedder
	limiter  *rate.Limiter
	workers  int
	logger   *slog.Logger
}

func NewBuilder(embedder embedding.Embedder, opts Options) *Builder {
	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = 4
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Builder{
		embedder: embedder,
		limiter:  rate.NewLimiter(limit, burst),
		workers:  workers,
		logger:   logger,
	}
}

// Embed computes an embedding for every record, keeping input order. The
// first failure cancels the remaining work.
func (b *Builder) Embed(ctx context.Context, records []domain.Record) (*vectorstore.Batch, error) {
	start := time.Now()
	entries := make([]domain.Entry, len(records))
	var done atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.workers)
	for i, rec := range records {
		g.Go(func() error {
			if err := b.limiter.Wait(gctx); err != nil {
				return err
			}
			vec, err := b.embedder.Embed(gctx, rec.CombinedText)
			if err != nil {
				return fmt.Errorf("embedding record %q: %w", rec.ID, err)
			}
			entries[i] = domain.Entry{Record: rec, Embedding: vec}
			if n := done.Add(1); n%100 == 0 {
				b.logger.InfoContext(gctx, "embedding progress", "done", n, "total", len(records))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	b.logger.InfoContext(ctx, "records embedded", "count", len(records), "model", b.embedder.Model(), "duration", time.Since(start))
	return &vectorstore.Batch{Model: b.embedder.Model(), Entries: entries}, nil
}

// Build embeds records and writes the result through w. The batch is
// validated as a store before writing so a bad artifact is never produced.
func (b *Builder) Build(ctx context.Context, records []domain.Record, w vectorstore.Writer) (*vectorstore.Store, error) {
	batch, err := b.Embed(ctx, records)
	if err != nil {
		return nil, err
	}
	store, err := vectorstore.New(batch.Model, batch.Entries)
	if err != nil {
		return nil, err
	}
	if err := w.Write(ctx, batch); err != nil {
		return nil, fmt.Errorf("writing artifact: %w", err)
	}
	return store, nil
}
