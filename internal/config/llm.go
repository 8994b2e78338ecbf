package config

import "time"

// ProviderConfig is one entry in the text generation fallback chain.
type ProviderConfig struct {
	Provider string `yaml:"provider"` // anthropic, openai, gemini
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`
	Timeout  string `yaml:"timeout"`

	// RateLimit overrides LLMConfig.RateLimit for this provider model.
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// GetTimeout returns the per-call timeout as a duration.
func (p ProviderConfig) GetTimeout() time.Duration {
	return parseDuration(p.Timeout, 120*time.Second)
}

// RateLimitConfig is a provider quota. Zero RequestsPerMinute disables
// limiting.
type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute"`
	Burst             int `yaml:"burst"`
}

// LLMConfig configures text generation.
type LLMConfig struct {
	// Chain is tried in order for plain generation; first success wins.
	Chain []ProviderConfig `yaml:"chain"`

	// Structured handles schema-constrained generation (classification,
	// research questions, task trees).
	Structured ProviderConfig `yaml:"structured"`

	// RateLimit is the default per-provider quota.
	RateLimit RateLimitConfig `yaml:"rate_limit"`

	// MaxRetries is the per-provider retry count for transient failures.
	MaxRetries int `yaml:"max_retries"`
}

// DefaultLLMConfig returns the fast/cheap -> secondary -> high-capability chain.
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		Chain: []ProviderConfig{
			{Provider: "anthropic", Model: "claude-3-haiku-20240307", Timeout: "60s"},
			{Provider: "openai", Model: "gpt-3.5-turbo", Timeout: "60s"},
			{Provider: "openai", Model: "gpt-4-turbo", Timeout: "120s"},
		},
		Structured: ProviderConfig{Provider: "openai", Model: "gpt-4", Timeout: "120s"},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 50,
			Burst:             5,
		},
		MaxRetries: 2,
	}
}

// QuotaFor returns the quota for p: its own when set, else the default.
func (c LLMConfig) QuotaFor(p ProviderConfig) RateLimitConfig {
	if p.RateLimit.RequestsPerMinute > 0 {
		return p.RateLimit
	}
	return c.RateLimit
}
