package service

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"cysearch/internal/domain"
	"cysearch/internal/embedding"
	"cysearch/internal/logging"
	"cysearch/internal/ranker"
	"cysearch/internal/vectorstore"
)

const (
	// DefaultN is the number of results when the caller does not choose.
	DefaultN         = 7
	defaultCacheSize = 256
)

// Options configures a SearchService.
type Options struct {
	// CacheSize bounds the number of cached result lists.
	CacheSize int
	Logger    *slog.Logger
}

type cacheKey struct {
	query   string
	version uint64
	n       int
}

func (k cacheKey) String() string {
	return strconv.FormatUint(k.version, 10) + "/" + strconv.Itoa(k.n) + "/" + k.query
}

// SearchService answers free-text queries against the current store snapshot.
type SearchService struct {
	embedder embedding.Embedder
	stores   *vectorstore.Holder
	cache    *lru.Cache[cacheKey, []domain.RankedResult]
	group    singleflight.Group
	logger   *slog.Logger
}

// NewSearchService serves queries from the stores held by holder.
func NewSearchService(embedder embedding.Embedder, holder *vectorstore.Holder, opts Options) (*SearchService, error) {
	if err := checkModel(embedder, holder.Current()); err != nil {
		return nil, err
	}
	size := opts.CacheSize
	if size <= 0 {
		size = defaultCacheSize
	}
	cache, err := lru.New[cacheKey, []domain.RankedResult](size)
	if err != nil {
		return nil, fmt.Errorf("creating result cache: %w", err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &SearchService{embedder: embedder, stores: holder, cache: cache, logger: logger}, nil
}

// Search returns up to n records ranked by similarity to query. No results is
// an empty slice with a nil error.
func (s *SearchService) Search(ctx context.Context, query string, n int) ([]domain.RankedResult, error) {
	start := time.Now()
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, &domain.InvalidInputError{Reason: "query is blank"}
	}
	if n < 1 {
		return nil, ranker.ErrInvalidN
	}

	store := s.stores.Current()
	key := cacheKey{query: query, version: store.Version(), n: n}
	if res, ok := s.cache.Get(key); ok {
		s.logger.DebugContext(ctx, "search served from cache", "query_len", len(query), "n", n, "results", len(res))
		return clone(res), nil
	}
	if store.Len() == 0 {
		return []domain.RankedResult{}, nil
	}

	// Waiters share one embedding call, so it must not die with the caller
	// that happened to start it. The embedder bounds it with its own timeout.
	flight := context.WithoutCancel(ctx)
	ch := s.group.DoChan(key.String(), func() (any, error) {
		if res, ok := s.cache.Get(key); ok {
			return res, nil
		}
		vec, err := s.embedder.Embed(flight, query)
		if err != nil {
			return nil, fmt.Errorf("embedding query: %w", err)
		}
		res, err := ranker.Rank(vec, store, n)
		if err != nil {
			return nil, fmt.Errorf("ranking: %w", err)
		}
		s.cache.Add(key, clone(res))
		return res, nil
	})
	var r singleflight.Result
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r = <-ch:
	}
	v, err, shared := r.Val, r.Err, r.Shared
	if err != nil {
		s.logger.ErrorContext(ctx, "search failed", "query_len", len(query), "n", n, "error", err)
		return nil, err
	}
	res := v.([]domain.RankedResult)
	s.logger.InfoContext(ctx, "search completed",
		"query_len", len(query),
		"n", n,
		"results", len(res),
		"shared", shared,
		"store_version", store.Version(),
		"duration", time.Since(start),
	)
	return clone(res), nil
}

// Refresh replaces the store served to new queries. In-flight queries finish
// against the snapshot they started with.
func (s *SearchService) Refresh(store *vectorstore.Store) error {
	if err := checkModel(s.embedder, store); err != nil {
		return err
	}
	s.stores.Swap(store)
	s.cache.Purge()
	s.logger.Info("store refreshed", "records", store.Len(), "dimension", store.Dimension(), "store_version", store.Version())
	return nil
}

// Reload builds a new store from src and serves it. On failure the current
// store stays in place.
func (s *SearchService) Reload(ctx context.Context, src vectorstore.Source, opts vectorstore.LoadOptions) error {
	store, err := vectorstore.Load(ctx, src, opts)
	if err != nil {
		s.logger.ErrorContext(ctx, "store reload failed", "source", src.Name(), "error", err)
		return err
	}
	return s.Refresh(store)
}

// Store returns the snapshot currently served.
func (s *SearchService) Store() *vectorstore.Store { return s.stores.Current() }

func checkModel(embedder embedding.Embedder, store *vectorstore.Store) error {
	if store == nil {
		return fmt.Errorf("nil store")
	}
	if store.Model() != "" && embedder.Model() != "" && store.Model() != embedder.Model() {
		return &domain.ModelMismatchError{Expected: embedder.Model(), Actual: store.Model()}
	}
	return nil
}

func clone(res []domain.RankedResult) []domain.RankedResult {
	out := make([]domain.RankedResult, len(res))
	copy(out, res)
	return out
}
