// Package research is the client for the asynchronous research job service:
// a query is submitted, then polled by job id until it completes with snippets
// or an error.
package research

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

const statusCompleted = "Completed"

const maxBackoff = 30 * time.Second

// Client implements types.JobService over HTTP.
type Client struct {
	baseURL    string
	apiKey     string
	submitPath string
	pollPath   string
	maxRetries int
	backoff    time.Duration
	httpClient *http.Client
}

var _ types.JobService = (*Client)(nil)

// NewClient builds a client from config.
func NewClient(cfg config.ResearchAPIConfig, timeout time.Duration) *Client {
	base := cfg.BaseURL
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return &Client{
		baseURL:    base,
		apiKey:     cfg.APIKey,
		submitPath: strings.TrimPrefix(cfg.SubmitPath, "/"),
		pollPath:   strings.TrimPrefix(cfg.PollPath, "/"),
		maxRetries: cfg.MaxRetries,
		backoff:    time.Second,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type submitRequest struct {
	Query string `json:"query"`
}

type submitResponse struct {
	QueryID json.RawMessage `json:"query_id"`
}

type pollRequest struct {
	QueryID string `json:"query_id"`
}

type pollResponse struct {
	Status  string          `json:"status"`
	Error   json.RawMessage `json:"error"`
	Results []struct {
		Snippet string `json:"snippet"`
	} `json:"results"`
}

// Submit starts a job for query and returns its id.
func (c *Client) Submit(ctx context.Context, query string) (string, error) {
	var resp submitResponse
	if err := c.post(ctx, c.submitPath, submitRequest{Query: query}, &resp); err != nil {
		return "", err
	}
	id := rawString(resp.QueryID)
	if id == "" {
		return "", fmt.Errorf("submit: response has no query_id: %w", types.ErrJobFailed)
	}
	logging.JobsDebug("Submitted research job %s (%d chars)", id, len(query))
	return id, nil
}

// Poll reports the job state. A completed job may carry an error instead of snippets.
func (c *Client) Poll(ctx context.Context, jobID string) (*types.JobResult, error) {
	var resp pollResponse
	if err := c.post(ctx, c.pollPath, pollRequest{QueryID: jobID}, &resp); err != nil {
		return nil, err
	}
	if resp.Status != statusCompleted {
		logging.JobsDebug("Job %s still running (status=%q)", jobID, resp.Status)
		return &types.JobResult{Status: types.JobRunning}, nil
	}

	result := &types.JobResult{Status: types.JobCompleted, Error: rawString(resp.Error)}
	if result.Error != "" {
		logging.JobsWarn("Job %s completed with error: %s", jobID, result.Error)
		return result, nil
	}
	for _, r := range resp.Results {
		result.Snippets = append(result.Snippets, r.Snippet)
	}
	logging.JobsDebug("Job %s completed with %d snippets", jobID, len(result.Snippets))
	return result, nil
}

// post sends body to path and decodes the reply into out. Transport errors,
// 429 and 5xx replies are retried with a doubling delay up to maxRetries times.
func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	delay := c.backoff
	for attempt := 0; ; attempt++ {
		raw, retry, err := c.do(ctx, path, data)
		if err == nil {
			if err := json.Unmarshal(raw, out); err != nil {
				return fmt.Errorf("%s: parse response: %v: %w", path, err, types.ErrJobFailed)
			}
			return nil
		}
		if !retry || attempt >= c.maxRetries || ctx.Err() != nil {
			return err
		}

		logging.JobsDebug("%s: attempt %d failed, retrying in %v: %v", path, attempt+1, delay, err)
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s: %w (last error: %v)", path, ctx.Err(), err)
		case <-time.After(delay):
		}
		if delay < maxBackoff {
			delay *= 2
		}
	}
}

// do performs one request. retry reports whether the failure is transient.
func (c *Client) do(ctx context.Context, path string, data []byte) (raw []byte, retry bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Api-Key "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("%s: %v: %w", path, err, types.ErrJobFailed)
	}
	defer resp.Body.Close()

	raw, err = io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("%s: read response: %v: %w", path, err, types.ErrJobFailed)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		transient := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		return nil, transient, fmt.Errorf("%s: status %d: %s: %w", path, resp.StatusCode, truncate(string(raw), 200), types.ErrJobFailed)
	}
	return raw, false, nil
}

// rawString renders a JSON scalar as text. null, false and "" are empty.
func rawString(raw json.RawMessage) string {
	s := strings.TrimSpace(string(raw))
	switch s {
	case "", "null", "false", `""`:
		return ""
	}
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return str
	}
	return s
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
