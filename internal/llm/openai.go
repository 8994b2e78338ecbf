package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"submind/internal/config"
	"submind/internal/logging"
	"submind/internal/types"
)

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// OpenAIProvider calls the OpenAI chat completions API.
type OpenAIProvider struct {
	apiKey     string
	baseURL    string
	model      string
	timeout    time.Duration
	maxRetries int
	httpClient *http.Client
}

// NewOpenAIProvider creates an OpenAI provider.
func NewOpenAIProvider(cfg config.ProviderConfig, maxRetries int) *OpenAIProvider {
	base := cfg.BaseURL
	if base == "" {
		base = defaultOpenAIBaseURL
	}
	return &OpenAIProvider{
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimSuffix(base, "/"),
		model:      cfg.Model,
		timeout:    cfg.GetTimeout(),
		maxRetries: maxRetries,
		httpClient: &http.Client{},
	}
}

// Name returns provider/model.
func (p *OpenAIProvider) Name() string { return "openai/" + p.model }

// Generate sends prompt with the default system message.
func (p *OpenAIProvider) Generate(ctx context.Context, prompt string) (string, error) {
	return p.complete(ctx, OpenAIRequest{
		Model: p.model,
		Messages: []OpenAIMessage{
			{Role: "system", Content: defaultSystemPrompt},
			{Role: "user", Content: prompt},
		},
		Temperature: 0.2,
	})
}

// GenerateJSON uses response_format json_schema. Strict mode is off so
// optional fields may be omitted.
func (p *OpenAIProvider) GenerateJSON(ctx context.Context, prompt string, schema *types.Schema) (string, error) {
	out, err := p.complete(ctx, OpenAIRequest{
		Model: p.model,
		Messages: []OpenAIMessage{
			{Role: "system", Content: defaultSystemPrompt + " " + schema.Description},
			{Role: "user", Content: prompt},
		},
		ResponseFormat: &OpenAIResponseFormat{
			Type: "json_schema",
			JSONSchema: &OpenAIJSONSchema{
				Name:   schema.Name,
				Strict: false,
				Schema: schema.Parameters,
			},
		},
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

func (p *OpenAIProvider) complete(ctx context.Context, reqBody OpenAIRequest) (string, error) {
	ctx, cancel := withDeadline(ctx, p.timeout)
	defer cancel()

	if p.apiKey == "" {
		return "", fmt.Errorf("%s: API key not configured", p.Name())
	}

	start := time.Now()
	out, err := withRetry(ctx, p.Name(), p.maxRetries, func() (string, error) {
		return p.do(ctx, reqBody)
	})
	if err != nil {
		return "", err
	}
	logging.LLMDebug("[%s] completed in %v response_len=%d", p.Name(), time.Since(start), len(out))
	return out, nil
}

func (p *OpenAIProvider) do(ctx context.Context, reqBody OpenAIRequest) (string, error) {
	data, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", retryable(fmt.Errorf("request failed: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", retryable(fmt.Errorf("failed to read response: %w", err))
	}
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return "", retryable(fmt.Errorf("status %d: %s", resp.StatusCode, string(body)))
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var or OpenAIResponse
	if err := json.Unmarshal(body, &or); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if or.Error != nil {
		return "", fmt.Errorf("API error: %s", or.Error.Message)
	}
	if len(or.Choices) == 0 || strings.TrimSpace(or.Choices[0].Message.Content) == "" {
		return "", fmt.Errorf("no completion returned")
	}
	return strings.TrimSpace(or.Choices[0].Message.Content), nil
}
