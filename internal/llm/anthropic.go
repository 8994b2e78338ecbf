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

const defaultAnthropicBaseURL = "https://api.anthropic.com/v1"

// AnthropicProvider calls the Anthropic messages API.
type AnthropicProvider struct {
	apiKey     string
	baseURL    string
	model      string
	timeout    time.Duration
	maxRetries int
	httpClient *http.Client
}

// NewAnthropicProvider creates an Anthropic provider.
func NewAnthropicProvider(cfg config.ProviderConfig, maxRetries int) *AnthropicProvider {
	base := cfg.BaseURL
	if base == "" {
		base = defaultAnthropicBaseURL
	}
	return &AnthropicProvider{
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimSuffix(base, "/"),
		model:      cfg.Model,
		timeout:    cfg.GetTimeout(),
		maxRetries: maxRetries,
		httpClient: &http.Client{},
	}
}

// Name returns provider/model.
func (p *AnthropicProvider) Name() string { return "anthropic/" + p.model }

// Generate sends prompt as a single user turn.
func (p *AnthropicProvider) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := withDeadline(ctx, p.timeout)
	defer cancel()

	if p.apiKey == "" {
		return "", fmt.Errorf("%s: API key not configured", p.Name())
	}

	start := time.Now()
	reqBody := AnthropicRequest{
		Model:       p.model,
		MaxTokens:   4096,
		System:      defaultSystemPrompt,
		Messages:    []AnthropicMessage{{Role: "user", Content: prompt}},
		Temperature: 0.2,
	}
	out, err := withRetry(ctx, p.Name(), p.maxRetries, func() (string, error) {
		return p.do(ctx, reqBody)
	})
	if err != nil {
		return "", err
	}
	logging.LLMDebug("[%s] completed in %v response_len=%d", p.Name(), time.Since(start), len(out))
	return out, nil
}

// GenerateJSON asks for a JSON object matching schema and extracts it.
func (p *AnthropicProvider) GenerateJSON(ctx context.Context, prompt string, schema *types.Schema) (string, error) {
	out, err := p.Generate(ctx, prompt+schemaInstruction(schema))
	if err != nil {
		return "", err
	}
	obj := extractJSON(out)
	if obj == "" {
		return "", fmt.Errorf("%s: no JSON object in response", p.Name())
	}
	return obj, nil
}

func (p *AnthropicProvider) do(ctx context.Context, reqBody AnthropicRequest) (string, error) {
	data, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/messages", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", p.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")

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

	var ar AnthropicResponse
	if err := json.Unmarshal(body, &ar); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if ar.Error != nil {
		return "", fmt.Errorf("API error: %s", ar.Error.Message)
	}

	var sb strings.Builder
	for _, c := range ar.Content {
		if c.Type == "text" {
			sb.WriteString(c.Text)
		}
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", fmt.Errorf("no completion returned")
	}
	return text, nil
}
