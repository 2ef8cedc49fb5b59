package embedding

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"cysearch/internal/domain"
	"cysearch/internal/logging"
)

// BreakerConfig configures a provider circuit breaker.
type BreakerConfig struct {
	// ConsecutiveFailures trips the breaker; 0 uses the default.
	ConsecutiveFailures uint32
	// OpenTimeout is how long the breaker stays open before probing again.
	OpenTimeout time.Duration
	Logger      *slog.Logger
}

// BreakerProvider fails fast while its provider keeps failing transiently.
// Permanent errors and caller cancellation do not count as failures.
type BreakerProvider struct {
	provider Provider
	cb       *gobreaker.CircuitBreaker
}

// NewBreakerProvider wraps provider in a circuit breaker.
func NewBreakerProvider(provider Provider, cfg BreakerConfig) *BreakerProvider {
	if cfg.ConsecutiveFailures == 0 {
		cfg.ConsecutiveFailures = 10
	}
	if cfg.OpenTimeout == 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	threshold := cfg.ConsecutiveFailures
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        provider.Name(),
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !(domain.IsTransient(err) || errors.Is(err, context.DeadlineExceeded))
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("embedding circuit breaker state changed", "provider", name, "from", from.String(), "to", to.String())
		},
	})
	return &BreakerProvider{provider: provider, cb: cb}
}

func (p *BreakerProvider) Name() string { return p.provider.Name() }

func (p *BreakerProvider) Embed(ctx context.Context, text, model string) ([]float32, error) {
	out, err := p.cb.Execute(func() (interface{}, error) {
		return p.provider.Embed(ctx, text, model)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, &domain.ProviderError{
			Provider: p.provider.Name(),
			Code:     "circuit_open",
			Message:  "provider is failing, not retrying until the breaker closes",
			Err:      err,
		}
	}
	if err != nil {
		return nil, err
	}
	return out.([]float32), nil
}
