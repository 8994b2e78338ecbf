package store

import (
	"context"
	"fmt"
	"time"
)

// RecordLike marks a thought as processed by the agent. Repeated calls are no-ops.
func (q *Queries) RecordLike(ctx context.Context, agentID, thoughtID int64) error {
	_, err := q.q.ExecContext(ctx, `INSERT OR IGNORE INTO likes (agent_id, thought_id, created_at)
		VALUES (?, ?, ?)`, agentID, thoughtID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("record like: %w", err)
	}
	return nil
}

// HasLike reports whether the agent has processed the thought.
func (q *Queries) HasLike(ctx context.Context, agentID, thoughtID int64) (bool, error) {
	var n int
	err := q.q.QueryRowContext(ctx, "SELECT COUNT(*) FROM likes WHERE agent_id = ? AND thought_id = ?",
		agentID, thoughtID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("query like: %w", err)
	}
	return n > 0, nil
}
