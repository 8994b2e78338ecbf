package store

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"submind/internal/embedding"
	"submind/internal/logging"
	"submind/internal/types"
)

// StoreThoughtEmbedding saves (or replaces) the embedding of a thought.
func (s *Store) StoreThoughtEmbedding(ctx context.Context, t *types.Thought, vec []float32, model string) error {
	_, err := s.db.ExecContext(ctx, `INSERT OR REPLACE INTO thought_vectors
		(thought_id, owner_id, content, embedding, model, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		t.ID, t.OwnerID, t.Content, encodeFloat32s(vec), model, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("store embedding for thought %d: %w", t.ID, err)
	}
	return nil
}

// HasThoughtEmbedding reports whether the thought is indexed.
func (s *Store) HasThoughtEmbedding(ctx context.Context, thoughtID int64) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM thought_vectors WHERE thought_id = ?", thoughtID).Scan(&n)
	return n > 0, err
}

// SearchThoughts returns the owner's thoughts closest to vec by cosine
// similarity, best first. sqlite-vec does the ranking when it is loaded;
// otherwise the owner's vectors are scanned in process.
func (s *Store) SearchThoughts(ctx context.Context, ownerID string, vec []float32, topK int) ([]types.Match, error) {
	timer := logging.StartTimer(logging.CategoryStore, "SearchThoughts")
	defer timer.Stop()

	if topK <= 0 {
		topK = 10
	}
	if s.vecEnabled {
		matches, err := s.searchVec(ctx, ownerID, vec, topK)
		if err == nil {
			return matches, nil
		}
		logging.StoreWarn("sqlite-vec search failed, falling back to scan: %v", err)
	}
	return s.searchScan(ctx, ownerID, vec, topK)
}

func (s *Store) searchVec(ctx context.Context, ownerID string, vec []float32, topK int) ([]types.Match, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT thought_id, content, 1 - vec_distance_cosine(embedding, ?) AS score
		FROM thought_vectors WHERE owner_id = ? ORDER BY score DESC LIMIT ?`,
		encodeFloat32s(vec), ownerID, topK)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.Match
	for rows.Next() {
		var m types.Match
		if err := rows.Scan(&m.ThoughtID, &m.Content, &m.Score); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) searchScan(ctx context.Context, ownerID string, vec []float32, topK int) ([]types.Match, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT thought_id, content, embedding FROM thought_vectors WHERE owner_id = ?", ownerID)
	if err != nil {
		return nil, fmt.Errorf("scan thought vectors: %w", err)
	}
	defer rows.Close()

	var candidates []types.Match
	var corpus [][]float32
	for rows.Next() {
		var m types.Match
		var blob []byte
		if err := rows.Scan(&m.ThoughtID, &m.Content, &blob); err != nil {
			return nil, err
		}
		candidates = append(candidates, m)
		corpus = append(corpus, decodeFloat32s(blob))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	top := embedding.FindTopK(vec, corpus, topK)
	out := make([]types.Match, 0, len(top))
	for _, r := range top {
		m := candidates[r.Index]
		m.Score = r.Similarity
		out = append(out, m)
	}
	return out, nil
}

func encodeFloat32s(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeFloat32s(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}
