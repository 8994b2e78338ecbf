package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all submind configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Relational store (agents, thoughts, tasks, questions, answers, research)
	Database DatabaseConfig `yaml:"database"`

	// Memory Store (founder, values, mind and report documents)
	Documents DocumentsConfig `yaml:"documents"`

	// Text generation providers and fallback chain
	LLM LLMConfig `yaml:"llm"`

	// Embedding engine for the knowledge index
	Embedding EmbeddingConfig `yaml:"embedding"`

	// Knowledge index thresholds
	Knowledge KnowledgeConfig `yaml:"knowledge"`

	// Research job service
	ResearchAPI ResearchAPIConfig `yaml:"research_api"`

	// Tier scheduling and agent locking
	Scheduler SchedulerConfig `yaml:"scheduler"`

	// Run-loop delivery contract
	RunLoop RunLoopConfig `yaml:"runloop"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// DatabaseConfig configures the relational store.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	BusyTimeout string `yaml:"busy_timeout"`
}

// DocumentsConfig configures the Memory Store.
type DocumentsConfig struct {
	Path string `yaml:"path"`
}

// RunLoopConfig configures pending-thought delivery.
type RunLoopConfig struct {
	// at_most_once removes a pending thought before dispatch.
	// at_least_once removes it after dispatch and skips thoughts already liked.
	Delivery string `yaml:"delivery"`
}

const (
	DeliveryAtMostOnce  = "at_most_once"
	DeliveryAtLeastOnce = "at_least_once"
)

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "submind",
		Version: "0.3.0",

		Database: DatabaseConfig{
			Path:        "data/submind.db",
			BusyTimeout: "5s",
		},

		Documents: DocumentsConfig{
			Path: "data/documents.db",
		},

		LLM: DefaultLLMConfig(),

		Embedding: EmbeddingConfig{
			Provider:       "genai",
			OllamaEndpoint: "http://localhost:11434",
			OllamaModel:    "embeddinggemma",
			GenAIModel:     "gemini-embedding-001",
			TaskType:       "SEMANTIC_SIMILARITY",
		},

		Knowledge: KnowledgeConfig{
			TopK:            10,
			ActionThreshold: 0.85,
			MemoryThreshold: 0.7,
		},

		ResearchAPI: ResearchAPIConfig{
			BaseURL:    "http://localhost:8000/",
			SubmitPath: "podcast/find/",
			PollPath:   "podcast/query/",
			Timeout:    "30s",
			MaxRetries: 3,
		},

		Scheduler: DefaultSchedulerConfig(),

		RunLoop: RunLoopConfig{
			Delivery: DeliveryAtMostOnce,
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load loads configuration from a YAML file.
// Defaults are returned (with env overrides) when the file does not exist.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Override with environment variables
	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if path := os.Getenv("SUBMIND_DB"); path != "" {
		c.Database.Path = path
	}
	if path := os.Getenv("SUBMIND_DOCS_DB"); path != "" {
		c.Documents.Path = path
	}

	// Provider keys fill every chain entry of that provider that has none.
	for _, env := range []struct{ name, provider string }{
		{"ANTHROPIC_API_KEY", "anthropic"},
		{"OPENAI_API_KEY", "openai"},
		{"GEMINI_API_KEY", "gemini"},
	} {
		key := os.Getenv(env.name)
		if key == "" {
			continue
		}
		for i := range c.LLM.Chain {
			if c.LLM.Chain[i].Provider == env.provider && c.LLM.Chain[i].APIKey == "" {
				c.LLM.Chain[i].APIKey = key
			}
		}
		if c.LLM.Structured.Provider == env.provider && c.LLM.Structured.APIKey == "" {
			c.LLM.Structured.APIKey = key
		}
		if env.provider == "gemini" && c.Embedding.GenAIAPIKey == "" {
			c.Embedding.GenAIAPIKey = key
		}
	}

	if url := os.Getenv("RESEARCH_API_URL"); url != "" {
		c.ResearchAPI.BaseURL = url
	}
	if key := os.Getenv("RESEARCH_API_KEY"); key != "" {
		c.ResearchAPI.APIKey = key
	}

	if level := os.Getenv("SUBMIND_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if n := os.Getenv("SUBMIND_PARALLELISM"); n != "" {
		if v, err := strconv.Atoi(n); err == nil && v > 0 {
			c.Scheduler.Parallelism = v
		}
	}
}

// GetBusyTimeout returns the sqlite busy timeout.
func (c *Config) GetBusyTimeout() time.Duration {
	return parseDuration(c.Database.BusyTimeout, 5*time.Second)
}

// GetResearchTimeout returns the research API HTTP timeout.
func (c *Config) GetResearchTimeout() time.Duration {
	return parseDuration(c.ResearchAPI.Timeout, 30*time.Second)
}

func parseDuration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// ValidProviders lists all supported LLM providers.
var ValidProviders = []string{"anthropic", "openai", "gemini"}

// ValidDeliveryModes lists the supported run-loop delivery contracts.
var ValidDeliveryModes = []string{DeliveryAtMostOnce, DeliveryAtLeastOnce}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if len(c.LLM.Chain) == 0 {
		return fmt.Errorf("llm.chain must list at least one provider")
	}
	for i, p := range c.LLM.Chain {
		if !contains(ValidProviders, p.Provider) {
			return fmt.Errorf("invalid LLM provider at llm.chain[%d]: %s (valid: %v)", i, p.Provider, ValidProviders)
		}
	}
	if !contains(ValidProviders, c.LLM.Structured.Provider) {
		return fmt.Errorf("invalid structured LLM provider: %s (valid: %v)", c.LLM.Structured.Provider, ValidProviders)
	}
	if c.LLM.RateLimit.RequestsPerMinute < 0 {
		return fmt.Errorf("llm.rate_limit.requests_per_minute must be >= 0")
	}

	if c.Knowledge.ActionThreshold < 0 || c.Knowledge.ActionThreshold > 1 {
		return fmt.Errorf("knowledge.action_threshold must be in [0,1], got %v", c.Knowledge.ActionThreshold)
	}
	if c.Knowledge.MemoryThreshold < 0 || c.Knowledge.MemoryThreshold > 1 {
		return fmt.Errorf("knowledge.memory_threshold must be in [0,1], got %v", c.Knowledge.MemoryThreshold)
	}
	if c.Knowledge.TopK <= 0 {
		return fmt.Errorf("knowledge.top_k must be positive")
	}

	if c.ResearchAPI.BaseURL == "" {
		return fmt.Errorf("research API URL not configured (set RESEARCH_API_URL)")
	}

	if !contains(ValidDeliveryModes, c.RunLoop.Delivery) {
		return fmt.Errorf("invalid runloop.delivery: %s (valid: %v)", c.RunLoop.Delivery, ValidDeliveryModes)
	}

	return c.Scheduler.validate()
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
