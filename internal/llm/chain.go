package llm

import (
	"context"
	"errors"
	"fmt"

	"submind/internal/logging"
	"submind/internal/types"
)

// FallbackChain tries providers in order; the first success wins.
type FallbackChain struct {
	providers []Provider
}

var _ types.Generator = (*FallbackChain)(nil)

// NewFallbackChain builds a chain from the fast/cheap provider to the most capable.
func NewFallbackChain(providers ...Provider) *FallbackChain {
	return &FallbackChain{providers: providers}
}

// Generate returns the first provider's successful output. When every
// provider fails the error wraps types.ErrGeneration and joins each cause.
func (c *FallbackChain) Generate(ctx context.Context, prompt string) (string, error) {
	var errs []error
	for i, p := range c.providers {
		out, err := p.Generate(ctx, prompt)
		if err == nil {
			if i > 0 {
				logging.LLM("Fallback to %s succeeded after %d failure(s)", p.Name(), i)
			}
			return out, nil
		}
		errs = append(errs, err)
		if ctx.Err() != nil {
			break
		}
		if i+1 < len(c.providers) {
			logging.LLMWarn("Failed to generate with %s, falling back to %s: %v", p.Name(), c.providers[i+1].Name(), err)
		}
	}
	return "", fmt.Errorf("%w: all %d providers failed: %w", types.ErrGeneration, len(c.providers), errors.Join(errs...))
}
