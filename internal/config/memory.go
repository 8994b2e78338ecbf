package config

// EmbeddingConfig configures the vector embedding engine.
// Supports Ollama (local) and GenAI (cloud) backends.
type EmbeddingConfig struct {
	// Provider: "ollama" or "genai"
	Provider string `yaml:"provider"`

	// Ollama Configuration (local embedding server)
	OllamaEndpoint string `yaml:"ollama_endpoint"` // Default: "http://localhost:11434"
	OllamaModel    string `yaml:"ollama_model"`    // Default: "embeddinggemma"

	// GenAI Configuration (Google cloud embedding)
	GenAIAPIKey string `yaml:"genai_api_key"`
	GenAIModel  string `yaml:"genai_model"` // Default: "gemini-embedding-001"

	// TaskType for GenAI embeddings:
	// SEMANTIC_SIMILARITY, CLASSIFICATION, CLUSTERING,
	// RETRIEVAL_DOCUMENT, RETRIEVAL_QUERY, QUESTION_ANSWERING
	TaskType string `yaml:"task_type"` // Default: "SEMANTIC_SIMILARITY"
}

// KnowledgeConfig configures related-thought lookups.
type KnowledgeConfig struct {
	TopK int `yaml:"top_k"`

	// ActionThreshold gates plan context and reflection; a score equal to the
	// threshold is kept.
	ActionThreshold float64 `yaml:"action_threshold"`

	// MemoryThreshold gates the agent's related-thought cache; a score must be
	// strictly above it.
	MemoryThreshold float64 `yaml:"memory_threshold"`
}

// ResearchAPIConfig configures the research job service.
type ResearchAPIConfig struct {
	BaseURL    string `yaml:"base_url"`
	APIKey     string `yaml:"api_key"`
	SubmitPath string `yaml:"submit_path"`
	PollPath   string `yaml:"poll_path"`
	Timeout    string `yaml:"timeout"`

	// MaxRetries bounds the retries of a request answered with 429 or 5xx,
	// or that failed in transport.
	MaxRetries int `yaml:"max_retries"`
}
