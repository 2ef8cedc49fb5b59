// Package embedding turns text into vectors through a pluggable provider.
package embedding

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"cysearch/internal/domain"
	"cysearch/internal/logging"
	"cysearch/internal/tokenizer"
)

// Provider is the remote text-to-vector capability.
type Provider interface {
	Name() string
	Embed(ctx context.Context, text, model string) ([]float32, error)
}

// Embedder converts text into an embedding of a fixed model.
type Embedder interface {
	Model() string
	Embed(ctx context.Context, text string) (domain.Embedding, error)
}

// Config tunes a Service.
type Config struct {
	Model string
	// MaxTokens is the input budget; longer inputs keep their first MaxTokens tokens.
	MaxTokens int
	// Timeout bounds a single provider attempt.
	Timeout time.Duration
	// MaxRetries is the number of retries after the first attempt for transient failures.
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Logger          *slog.Logger
}

// Service validates and truncates input, calls the provider, and retries
// transient failures with exponential backoff.
type Service struct {
	provider Provider
	cfg      Config
	logger   *slog.Logger

	mu        sync.Mutex
	dimension int
}

// NewService wraps provider. Zero config fields take defaults.
func NewService(provider Provider, cfg Config) *Service {
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = tokenizer.DefaultMaxTokens
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.InitialInterval == 0 {
		cfg.InitialInterval = 200 * time.Millisecond
	}
	if cfg.MaxInterval == 0 {
		cfg.MaxInterval = 5 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Service{provider: provider, cfg: cfg, logger: logger}
}

// Model returns the embedding model name.
func (s *Service) Model() string { return s.cfg.Model }

// Dimension returns the vector length seen so far, or 0 before the first call.
func (s *Service) Dimension() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dimension
}

// Embed returns the embedding of text. Blank text fails with
// domain.ErrInvalidInput without contacting the provider.
func (s *Service) Embed(ctx context.Context, text string) (domain.Embedding, error) {
	if strings.TrimSpace(text) == "" {
		return nil, &domain.InvalidInputError{Reason: "text is blank"}
	}
	input, cut := tokenizer.Truncate(text, s.cfg.MaxTokens)
	if cut {
		s.logger.DebugContext(ctx, "input truncated", "max_tokens", s.cfg.MaxTokens, "bytes", len(text), "kept_bytes", len(input))
	}

	var hint retryHint
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.cfg.InitialInterval
	b.MaxInterval = s.cfg.MaxInterval
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(&hintedBackOff{BackOff: backoff.WithMaxRetries(b, uint64(s.cfg.MaxRetries)), hint: &hint}, ctx)

	attempt := 0
	var vec []float32
	operation := func() error {
		attempt++
		v, err := s.attempt(ctx, input)
		if err == nil {
			vec = v
			return nil
		}
		if !domain.IsTransient(err) {
			return backoff.Permanent(err)
		}
		var pe *domain.ProviderError
		if errors.As(err, &pe) {
			hint.set(pe.RetryAfter)
		}
		s.logger.WarnContext(ctx, "transient embedding failure", "provider", s.provider.Name(), "attempt", attempt, "error", err)
		return err
	}
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, err
	}
	if attempt > 1 {
		s.logger.InfoContext(ctx, "embedding succeeded after retries", "attempts", attempt)
	}
	return s.checkDimension(vec)
}

func (s *Service) attempt(ctx context.Context, input string) ([]float32, error) {
	actx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()
	v, err := s.provider.Embed(actx, input, s.cfg.Model)
	if err == nil {
		return v, nil
	}
	var pe *domain.ProviderError
	switch {
	case ctx.Err() != nil:
		// The caller gave up; nothing to retry.
		if errors.As(err, &pe) && !pe.Transient {
			return nil, err
		}
		return nil, &domain.ProviderError{Provider: s.provider.Name(), Code: "canceled", Err: err}
	case actx.Err() != nil:
		// The attempt ran out of its own time budget.
		if errors.As(err, &pe) {
			if pe.Transient {
				return nil, err
			}
			timedOut := *pe
			timedOut.Transient = true
			return nil, &timedOut
		}
		return nil, &domain.ProviderError{Provider: s.provider.Name(), Code: "timeout", Transient: true, Err: err}
	case errors.As(err, &pe):
		return nil, err
	}
	return nil, &domain.ProviderError{Provider: s.provider.Name(), Err: err}
}

func (s *Service) checkDimension(vec []float32) (domain.Embedding, error) {
	if len(vec) == 0 {
		return nil, &domain.ProviderError{Provider: s.provider.Name(), Code: "empty_embedding", Message: "provider returned an empty vector"}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dimension == 0 {
		s.dimension = len(vec)
	} else if len(vec) != s.dimension {
		return nil, &domain.DimensionMismatchError{Expected: s.dimension, Actual: len(vec)}
	}
	return domain.Embedding(vec), nil
}

// retryHint carries a provider Retry-After value to the next backoff step.
type retryHint struct {
	d time.Duration
}

func (h *retryHint) set(d time.Duration) { h.d = d }

func (h *retryHint) take() time.Duration {
	d := h.d
	h.d = 0
	return d
}

// hintedBackOff waits at least as long as the provider asked for.
type hintedBackOff struct {
	backoff.BackOff
	hint *retryHint
}

func (b *hintedBackOff) NextBackOff() time.Duration {
	next := b.BackOff.NextBackOff()
	if next == backoff.Stop {
		return next
	}
	return max(next, b.hint.take())
}
