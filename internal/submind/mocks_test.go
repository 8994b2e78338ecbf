package submind

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"submind/internal/config"
	"submind/internal/docstore"
	"submind/internal/store"
	"submind/internal/types"
)

// --- fakeStructured ---

// fakeStructured answers by schema name. Queued responses are consumed in
// order; the last one repeats.
type fakeStructured struct {
	mu        sync.Mutex
	responses map[string][]string
	errs      map[string]error
	calls     map[string]int
}

func newFakeStructured() *fakeStructured {
	return &fakeStructured{
		responses: make(map[string][]string),
		errs:      make(map[string]error),
		calls:     make(map[string]int),
	}
}

func (f *fakeStructured) on(schema string, responses ...string) *fakeStructured {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[schema] = append(f.responses[schema], responses...)
	return f
}

func (f *fakeStructured) GenerateStructured(_ context.Context, _ string, schema *types.Schema, out interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[schema.Name]++
	if err := f.errs[schema.Name]; err != nil {
		return fmt.Errorf("%w: %s: %w", types.ErrGeneration, schema.Name, err)
	}
	queue := f.responses[schema.Name]
	if len(queue) == 0 {
		return fmt.Errorf("%w: no response scripted for %s", types.ErrGeneration, schema.Name)
	}
	raw := queue[0]
	if len(queue) > 1 {
		f.responses[schema.Name] = queue[1:]
	}
	return json.Unmarshal([]byte(raw), out)
}

// --- fakeGen ---

type fakeGen struct {
	mu      sync.Mutex
	respond func(prompt string) (string, error)
	prompts []string
}

func (f *fakeGen) Generate(_ context.Context, prompt string) (string, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	respond := f.respond
	f.mu.Unlock()
	if respond == nil {
		return "generated", nil
	}
	return respond(prompt)
}

func (f *fakeGen) promptsContaining(s string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, p := range f.prompts {
		if strings.Contains(p, s) {
			out = append(out, p)
		}
	}
	return out
}

// --- fakeJobs ---

type fakeJobs struct {
	mu        sync.Mutex
	submitted []string
	submitErr error
	results   map[string]*types.JobResult
	pollErr   error
}

func newFakeJobs() *fakeJobs {
	return &fakeJobs{results: make(map[string]*types.JobResult)}
}

func (f *fakeJobs) Submit(_ context.Context, query string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return "", f.submitErr
	}
	f.submitted = append(f.submitted, query)
	return fmt.Sprintf("job-%d", len(f.submitted)), nil
}

func (f *fakeJobs) Poll(_ context.Context, jobID string) (*types.JobResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pollErr != nil {
		return nil, f.pollErr
	}
	if r, ok := f.results[jobID]; ok {
		return r, nil
	}
	return &types.JobResult{Status: types.JobRunning}, nil
}

func (f *fakeJobs) finish(jobID string, snippets ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results[jobID] = &types.JobResult{Status: types.JobCompleted, Snippets: snippets}
}

func (f *fakeJobs) fail(jobID, msg string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results[jobID] = &types.JobResult{Status: types.JobCompleted, Error: msg}
}

// --- fakeIndex ---

type fakeIndex struct {
	mu       sync.Mutex
	matches  []types.Match
	added    []*types.Thought
	searches []string
}

func (f *fakeIndex) Search(_ context.Context, query, _ string, topK int) ([]types.Match, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searches = append(f.searches, query)
	out := append([]types.Match(nil), f.matches...)
	if len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

func (f *fakeIndex) Add(_ context.Context, t *types.Thought) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.added = append(f.added, t)
	return nil
}

// --- harness ---

type harness struct {
	engine     *Engine
	store      *store.Store
	docs       *docstore.DocStore
	structured *fakeStructured
	gen        *fakeGen
	jobs       *fakeJobs
	index      *fakeIndex
}

func newHarness(t *testing.T, mutate ...func(*config.Config)) *harness {
	t.Helper()
	s, err := store.Open(":memory:", 0)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	docs, err := docstore.Open(filepath.Join(t.TempDir(), "documents.db"))
	require.NoError(t, err)
	t.Cleanup(func() { docs.Close() })

	cfg := config.DefaultConfig()
	for _, m := range mutate {
		m(cfg)
	}

	h := &harness{
		store:      s,
		docs:       docs,
		structured: newFakeStructured(),
		gen:        &fakeGen{},
		jobs:       newFakeJobs(),
		index:      &fakeIndex{},
	}
	h.engine, err = New(Deps{
		Store:      s,
		Docs:       docs,
		Index:      h.index,
		Jobs:       h.jobs,
		Gen:        h.gen,
		Structured: h.structured,
		Config:     cfg,
	})
	require.NoError(t, err)
	return h
}

// activeAgent creates an ACTIVE agent with one pending thought.
func (h *harness) activeAgent(t *testing.T, thought string) (*types.Agent, *types.Thought) {
	t.Helper()
	ctx := context.Background()
	agent := &types.Agent{Name: "scout", Description: "market research", OwnerID: "owner-1", Status: types.StatusActive}
	require.NoError(t, h.store.CreateAgent(ctx, agent))

	th := store.NewAgentThought(agent, thought, 0)
	require.NoError(t, h.store.CreateThought(ctx, th))
	require.NoError(t, h.store.AddPendingThought(ctx, agent.ID, th.ID))
	return agent, th
}

func classifyJSON(kind ResponseKind, message string) string {
	b, _ := json.Marshal(Classification{Type: string(kind), Message: message})
	return string(b)
}
