package store

import (
	"context"
	"fmt"
	"time"

	"submind/internal/logging"
	"submind/internal/types"
)

// AcquireLease takes the agent's run lease for holder. An expired lease held
// by someone else is stolen; a live one returns types.ErrAgentLocked.
func (q *Queries) AcquireLease(ctx context.Context, agentID int64, holder string, lease time.Duration) error {
	now := time.Now().UTC().UnixMilli()
	expires := now + lease.Milliseconds()

	res, err := q.q.ExecContext(ctx, `INSERT INTO agent_locks (agent_id, holder, expires_at)
		VALUES (?, ?, ?)
		ON CONFLICT(agent_id) DO UPDATE SET holder = excluded.holder, expires_at = excluded.expires_at
		WHERE agent_locks.expires_at < ? OR agent_locks.holder = excluded.holder`,
		agentID, holder, expires, now)
	if err != nil {
		return fmt.Errorf("acquire lease for agent %d: %w", agentID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("agent %d: %w", agentID, types.ErrAgentLocked)
	}
	logging.StoreDebug("Lease acquired: agent=%d holder=%s", agentID, holder)
	return nil
}

// ReleaseLease drops the lease if holder still owns it.
func (q *Queries) ReleaseLease(ctx context.Context, agentID int64, holder string) error {
	_, err := q.q.ExecContext(ctx, "DELETE FROM agent_locks WHERE agent_id = ? AND holder = ?", agentID, holder)
	if err != nil {
		return fmt.Errorf("release lease for agent %d: %w", agentID, err)
	}
	return nil
}
