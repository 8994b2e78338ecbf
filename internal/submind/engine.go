// Package submind runs the per-agent loop: it consumes pending thoughts,
// classifies them, and dispatches research campaigns, follow-up questions and
// action plans, while keeping the agent's memory documents current.
package submind

import (
	"context"
	"errors"
	"fmt"
	"time"

	"submind/internal/config"
	"submind/internal/docstore"
	"submind/internal/logging"
	"submind/internal/store"
	"submind/internal/types"
)

// Deps are the collaborators an Engine needs. Store, Docs, Jobs, Gen and
// Structured are required; Index may be nil, in which case related-thought
// lookups return nothing and new thoughts are not embedded.
type Deps struct {
	Store      *store.Store
	Docs       types.DocumentStore
	Index      types.KnowledgeIndex
	Jobs       types.JobService
	Gen        types.Generator
	Structured types.StructuredGenerator
	Config     *config.Config

	// Now defaults to time.Now.
	Now func() time.Time
}

// Engine executes runs for one or more agents. It holds no per-agent state,
// so the scheduler may share it across goroutines as long as no two run the
// same agent at once.
type Engine struct {
	store      *store.Store
	docs       types.DocumentStore
	index      types.KnowledgeIndex
	jobs       types.JobService
	gen        types.Generator
	structured types.StructuredGenerator

	knowledge config.KnowledgeConfig
	delivery  string
	now       func() time.Time
}

// New validates deps and returns an Engine.
func New(deps Deps) (*Engine, error) {
	switch {
	case deps.Store == nil:
		return nil, errors.New("submind: store is required")
	case deps.Docs == nil:
		return nil, errors.New("submind: document store is required")
	case deps.Jobs == nil:
		return nil, errors.New("submind: job service is required")
	case deps.Gen == nil:
		return nil, errors.New("submind: generator is required")
	case deps.Structured == nil:
		return nil, errors.New("submind: structured generator is required")
	}

	cfg := deps.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	e := &Engine{
		store:      deps.Store,
		docs:       deps.Docs,
		index:      deps.Index,
		jobs:       deps.Jobs,
		gen:        deps.Gen,
		structured: deps.Structured,
		knowledge:  cfg.Knowledge,
		delivery:   cfg.RunLoop.Delivery,
		now:        deps.Now,
	}
	if e.knowledge.TopK <= 0 {
		e.knowledge.TopK = 10
	}
	if e.delivery == "" {
		e.delivery = config.DeliveryAtMostOnce
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e, nil
}

// =============================================================================
// MEMORY
// =============================================================================

// memory is the agent's document context for one run.
type memory struct {
	Founder   string
	Values    string
	Mind      string
	Directive string
}

// ensureDocuments creates any missing memory documents and records their ids
// on the agent.
func (e *Engine) ensureDocuments(ctx context.Context, agent *types.Agent) (*memory, error) {
	slots := []struct {
		id  *string
		def string
	}{
		{&agent.FounderUUID, docstore.DefaultFounder},
		{&agent.ValuesUUID, docstore.DefaultValues},
		{&agent.MindUUID, docstore.DefaultMind},
		{&agent.DirectiveUUID, docstore.DefaultDirective},
	}

	contents := make([]string, len(slots))
	changed := false
	for i, slot := range slots {
		doc, err := e.docs.GetOrCreate(ctx, agent.OwnerID, slot.def, *slot.id)
		if err != nil {
			return nil, fmt.Errorf("load memory document: %w", err)
		}
		if *slot.id != doc.UUID {
			*slot.id = doc.UUID
			changed = true
		}
		contents[i] = doc.Content
	}
	if changed {
		if err := e.store.SetAgentDocuments(ctx, agent); err != nil {
			return nil, err
		}
	}
	return &memory{Founder: contents[0], Values: contents[1], Mind: contents[2], Directive: contents[3]}, nil
}

// =============================================================================
// THOUGHTS
// =============================================================================

// indexThoughts embeds freshly committed thoughts. Failures are logged; the
// thought stays valid without an embedding.
func (e *Engine) indexThoughts(ctx context.Context, thoughts ...*types.Thought) {
	if e.index == nil {
		return
	}
	for _, t := range thoughts {
		if err := e.index.Add(ctx, t); err != nil {
			logging.KnowledgeWarn("Failed to index thought %d: %v", t.ID, err)
		}
	}
}

// related returns up to limit indexed thoughts similar to query, keeping
// those that pass keep.
func (e *Engine) related(ctx context.Context, agent *types.Agent, query string, limit int, keep func([]types.Match) []types.Match) ([]types.Match, error) {
	if e.index == nil || query == "" {
		return nil, nil
	}
	matches, err := e.index.Search(ctx, query, agent.OwnerID, limit)
	if err != nil {
		return nil, fmt.Errorf("search related thoughts: %w", err)
	}
	matches = keep(matches)
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

func matchContents(matches []types.Match) []string {
	out := make([]string, len(matches))
	for i, m := range matches {
		out[i] = m.Content
	}
	return out
}

func thoughtContents(thoughts []*types.Thought) []string {
	out := make([]string, len(thoughts))
	for i, t := range thoughts {
		out[i] = t.Content
	}
	return out
}
