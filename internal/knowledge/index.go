// Package knowledge is the Knowledge Index: semantic search over an owner's
// prior thoughts, backed by an embedding engine and the store's vector table.
package knowledge

import (
	"context"
	"fmt"
	"strings"

	"submind/internal/embedding"
	"submind/internal/logging"
	"submind/internal/types"
)

// VectorStore persists thought embeddings and ranks them by cosine similarity.
// *store.Store satisfies it.
type VectorStore interface {
	StoreThoughtEmbedding(ctx context.Context, t *types.Thought, vec []float32, model string) error
	SearchThoughts(ctx context.Context, ownerID string, vec []float32, topK int) ([]types.Match, error)
}

// Index implements types.KnowledgeIndex.
type Index struct {
	engine embedding.EmbeddingEngine
	store  VectorStore
}

var _ types.KnowledgeIndex = (*Index)(nil)

// New builds an index over engine and store.
func New(engine embedding.EmbeddingEngine, store VectorStore) *Index {
	return &Index{engine: engine, store: store}
}

// Search embeds query and returns up to topK of the owner's thoughts, best
// first. No threshold is applied; see AtLeast and Above.
func (ix *Index) Search(ctx context.Context, query, ownerID string, topK int) ([]types.Match, error) {
	timer := logging.StartTimer(logging.CategoryKnowledge, "Search")
	defer timer.Stop()

	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	vec, err := ix.engine.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	matches, err := ix.store.SearchThoughts(ctx, ownerID, vec, topK)
	if err != nil {
		return nil, fmt.Errorf("search thoughts: %w", err)
	}
	logging.KnowledgeDebug("Search owner=%s topK=%d -> %d matches", ownerID, topK, len(matches))
	return matches, nil
}

// Add embeds and indexes a thought. Empty thoughts are skipped.
func (ix *Index) Add(ctx context.Context, t *types.Thought) error {
	if strings.TrimSpace(t.Content) == "" {
		return nil
	}
	vec, err := ix.engine.Embed(ctx, t.Content)
	if err != nil {
		return fmt.Errorf("embed thought %d: %w", t.ID, err)
	}
	if err := ix.store.StoreThoughtEmbedding(ctx, t, vec, ix.engine.Name()); err != nil {
		return err
	}
	logging.KnowledgeDebug("Indexed thought %d (%d dims)", t.ID, len(vec))
	return nil
}

// AtLeast keeps matches scoring min or higher.
func AtLeast(matches []types.Match, min float64) []types.Match {
	return filter(matches, func(s float64) bool { return s >= min })
}

// Above keeps matches scoring strictly higher than min.
func Above(matches []types.Match, min float64) []types.Match {
	return filter(matches, func(s float64) bool { return s > min })
}

func filter(matches []types.Match, keep func(float64) bool) []types.Match {
	out := make([]types.Match, 0, len(matches))
	for _, m := range matches {
		if keep(m.Score) {
			out = append(out, m)
		}
	}
	return out
}
