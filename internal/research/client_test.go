package research

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"submind/internal/config"
	"submind/internal/types"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(config.ResearchAPIConfig{
		BaseURL:    srv.URL,
		APIKey:     "secret",
		SubmitPath: "podcast/find/",
		PollPath:   "/podcast/query/",
	}, 5*time.Second)
}

func TestSubmit(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/podcast/find/", r.URL.Path)
		assert.Equal(t, "Api-Key secret", r.Header.Get("Authorization"))
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "who builds rockets?", body["query"])
		w.Write([]byte(`{"query_id": 1234}`))
	})

	id, err := c.Submit(context.Background(), "who builds rockets?")
	require.NoError(t, err)
	assert.Equal(t, "1234", id)
}

func TestSubmit_MissingID(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	})
	_, err := c.Submit(context.Background(), "q")
	assert.True(t, errors.Is(err, types.ErrJobFailed))
}

func TestPoll(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		status   types.JobStatus
		jobErr   string
		snippets []string
	}{
		{"running", `{"status": "Running", "error": null, "results": []}`, types.JobRunning, "", nil},
		{"errored", `{"status": "Completed", "error": "x", "results": []}`, types.JobCompleted, "x", nil},
		{"completed", `{"status": "Completed", "error": false, "results": [{"snippet": "a"}, {"snippet": "b"}]}`,
			types.JobCompleted, "", []string{"a", "b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/podcast/query/", r.URL.Path)
				var body map[string]string
				require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
				assert.Equal(t, "job-1", body["query_id"])
				w.Write([]byte(tt.body))
			})

			res, err := c.Poll(context.Background(), "job-1")
			require.NoError(t, err)
			assert.Equal(t, tt.status, res.Status)
			assert.Equal(t, tt.jobErr, res.Error)
			assert.Equal(t, tt.snippets, res.Snippets)
			assert.Equal(t, tt.jobErr != "", res.Errored())
		})
	}
}

func TestPoll_HTTPError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	})
	_, err := c.Poll(context.Background(), "job-1")
	assert.True(t, errors.Is(err, types.ErrJobFailed))
	assert.Contains(t, err.Error(), "502")
}

func newRetryingClient(t *testing.T, retries int, handler http.HandlerFunc) *Client {
	t.Helper()
	c := newTestClient(t, handler)
	c.maxRetries = retries
	c.backoff = time.Millisecond
	return c
}

func TestSubmit_RetriesTransientStatus(t *testing.T) {
	var hits int32
	c := newRetryingClient(t, 3, func(w http.ResponseWriter, r *http.Request) {
		switch atomic.AddInt32(&hits, 1) {
		case 1:
			http.Error(w, "slow down", http.StatusTooManyRequests)
		case 2:
			http.Error(w, "down", http.StatusServiceUnavailable)
		default:
			w.Write([]byte(`{"query_id": "q-9"}`))
		}
	})

	id, err := c.Submit(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, "q-9", id)
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))
}

func TestSubmit_GivesUpAfterMaxRetries(t *testing.T) {
	var hits int32
	c := newRetryingClient(t, 2, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		http.Error(w, "down", http.StatusBadGateway)
	})

	_, err := c.Submit(context.Background(), "q")
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrJobFailed))
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))
}

func TestSubmit_ClientErrorNotRetried(t *testing.T) {
	var hits int32
	c := newRetryingClient(t, 3, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		http.Error(w, "bad query", http.StatusBadRequest)
	})

	_, err := c.Submit(context.Background(), "q")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}
