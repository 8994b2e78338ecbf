package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"submind/internal/config"
	"submind/internal/logging"
	"submind/internal/types"
)

// GeminiProvider generates text through the Google GenAI SDK.
type GeminiProvider struct {
	client  *genai.Client
	model   string
	timeout time.Duration
}

// NewGeminiProvider creates a Gemini provider.
func NewGeminiProvider(ctx context.Context, cfg config.ProviderConfig) (*GeminiProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key not configured")
	}
	model := cfg.Model
	if model == "" {
		model = "gemini-2.5-flash"
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &GeminiProvider{client: client, model: model, timeout: cfg.GetTimeout()}, nil
}

// Name returns provider/model.
func (p *GeminiProvider) Name() string { return "gemini/" + p.model }

// Generate runs one GenerateContent call.
func (p *GeminiProvider) Generate(ctx context.Context, prompt string) (string, error) {
	return p.generate(ctx, prompt, &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(defaultSystemPrompt, genai.RoleUser),
	})
}

// GenerateJSON requests application/json output constrained by schema.
func (p *GeminiProvider) GenerateJSON(ctx context.Context, prompt string, schema *types.Schema) (string, error) {
	out, err := p.generate(ctx, prompt, &genai.GenerateContentConfig{
		SystemInstruction:  genai.NewContentFromText(defaultSystemPrompt+" "+schema.Description, genai.RoleUser),
		ResponseMIMEType:   "application/json",
		ResponseJsonSchema: schema.Parameters,
	})
	if err != nil {
		return "", err
	}
	obj := extractJSON(out)
	if obj == "" {
		return "", fmt.Errorf("%s: no JSON object in response", p.Name())
	}
	return obj, nil
}

func (p *GeminiProvider) generate(ctx context.Context, prompt string, cfg *genai.GenerateContentConfig) (string, error) {
	ctx, cancel := withDeadline(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	resp, err := p.client.Models.GenerateContent(ctx, p.model, genai.Text(prompt), cfg)
	if err != nil {
		return "", fmt.Errorf("%s: %w", p.Name(), err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", fmt.Errorf("%s: no completion returned", p.Name())
	}
	logging.LLMDebug("[%s] completed in %v response_len=%d", p.Name(), time.Since(start), len(text))
	return text, nil
}
