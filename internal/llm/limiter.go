package llm

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"submind/internal/config"
	"submind/internal/types"
)

// NewLimiter returns a token bucket sized to the provider quota, or nil when
// limiting is disabled.
func NewLimiter(cfg config.RateLimitConfig) *rate.Limiter {
	if cfg.RequestsPerMinute <= 0 {
		return nil
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), burst)
}

// limitedProvider throttles both plain and JSON generation of one provider.
type limitedProvider struct {
	Provider
	limiter *rate.Limiter
}

// WithProviderLimiter throttles p. A nil limiter returns p unchanged.
func WithProviderLimiter(p Provider, limiter *rate.Limiter) Provider {
	if limiter == nil {
		return p
	}
	return &limitedProvider{Provider: p, limiter: limiter}
}

func (p *limitedProvider) Generate(ctx context.Context, prompt string) (string, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("%s: rate limiter: %w", p.Name(), err)
	}
	return p.Provider.Generate(ctx, prompt)
}

func (p *limitedProvider) GenerateJSON(ctx context.Context, prompt string, schema *types.Schema) (string, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("%s: rate limiter: %w", p.Name(), err)
	}
	return p.Provider.GenerateJSON(ctx, prompt, schema)
}
