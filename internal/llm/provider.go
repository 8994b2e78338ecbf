// Package llm provides text generation for submind: HTTP and SDK providers,
// an ordered fallback chain, a token-bucket rate limiter and schema-constrained
// (structured) generation.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"submind/internal/config"
	"submind/internal/logging"
	"submind/internal/types"
)

const defaultSystemPrompt = "You are a submind: a focused research and planning assistant working for a founder."

// Provider is one text generation backend.
type Provider interface {
	Name() string
	Generate(ctx context.Context, prompt string) (string, error)
	// GenerateJSON returns raw JSON conforming to schema.
	GenerateJSON(ctx context.Context, prompt string, schema *types.Schema) (string, error)
}

// NewProvider builds the provider named by cfg.
func NewProvider(ctx context.Context, cfg config.ProviderConfig, maxRetries int) (Provider, error) {
	switch cfg.Provider {
	case "anthropic":
		return NewAnthropicProvider(cfg, maxRetries), nil
	case "openai":
		return NewOpenAIProvider(cfg, maxRetries), nil
	case "gemini":
		return NewGeminiProvider(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported llm provider: %s (use anthropic, openai or gemini)", cfg.Provider)
	}
}

// Build wires the configured fallback chain and the structured generator.
// Structured generation tries the structured provider first, then the chain.
// Each provider model draws from its own token bucket, shared between the two
// uses.
func Build(ctx context.Context, cfg config.LLMConfig) (types.Generator, types.StructuredGenerator, error) {
	timer := logging.StartTimer(logging.CategoryLLM, "Build")
	defer timer.Stop()

	buckets := make(map[string]*rate.Limiter)
	limited := func(pc config.ProviderConfig, p Provider) Provider {
		key := pc.Provider + "/" + pc.Model
		lim, ok := buckets[key]
		if !ok {
			lim = NewLimiter(cfg.QuotaFor(pc))
			buckets[key] = lim
		}
		return WithProviderLimiter(p, lim)
	}

	providers := make([]Provider, 0, len(cfg.Chain))
	for _, pc := range cfg.Chain {
		if pc.APIKey == "" {
			logging.LLMWarn("Skipping %s/%s: no API key", pc.Provider, pc.Model)
			continue
		}
		p, err := NewProvider(ctx, pc, cfg.MaxRetries)
		if err != nil {
			return nil, nil, err
		}
		providers = append(providers, limited(pc, p))
	}
	if len(providers) == 0 {
		return nil, nil, errors.New("no text generation provider has an API key")
	}

	structuredProviders := providers
	if cfg.Structured.APIKey != "" {
		sp, err := NewProvider(ctx, cfg.Structured, cfg.MaxRetries)
		if err != nil {
			return nil, nil, err
		}
		structuredProviders = append([]Provider{limited(cfg.Structured, sp)}, providers...)
	}

	logging.LLM("Generation chain: %s; structured: %s", chainNames(providers), chainNames(structuredProviders))
	return NewFallbackChain(providers...), NewStructured(structuredProviders...), nil
}

func chainNames(providers []Provider) string {
	names := make([]string, len(providers))
	for i, p := range providers {
		names[i] = p.Name()
	}
	return strings.Join(names, " -> ")
}

// withDeadline applies timeout when ctx has none.
func withDeadline(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}

// retryableError marks failures worth another attempt (429, 5xx, transport).
type retryableError struct{ err error }

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

func retryable(err error) error { return &retryableError{err: err} }

// withRetry runs attempt up to maxRetries+1 times with exponential backoff,
// stopping early on non-retryable errors or context cancellation.
func withRetry(ctx context.Context, name string, maxRetries int, attempt func() (string, error)) (string, error) {
	var lastErr error
	for i := 0; i <= maxRetries; i++ {
		if i > 0 {
			backoff := time.Duration(1<<uint(i-1)) * time.Second
			select {
			case <-ctx.Done():
				return "", fmt.Errorf("%s: %w (last error: %v)", name, ctx.Err(), lastErr)
			case <-time.After(backoff):
			}
		}
		out, err := attempt()
		if err == nil {
			return out, nil
		}
		lastErr = err
		var re *retryableError
		if !errors.As(err, &re) {
			return "", fmt.Errorf("%s: %w", name, err)
		}
		logging.LLMDebug("%s: attempt %d failed: %v", name, i+1, err)
	}
	return "", fmt.Errorf("%s: max retries exceeded: %w", name, lastErr)
}

// schemaInstruction renders schema as a prompt suffix for providers without
// native schema enforcement.
func schemaInstruction(schema *types.Schema) string {
	data, err := marshalSchema(schema)
	if err != nil {
		return ""
	}
	return fmt.Sprintf("\n\nRespond with a single JSON object only, no prose, matching this JSON schema (%s):\n%s", schema.Name, data)
}
