package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"submind/internal/logging"
	"submind/internal/types"
)

const agentColumns = `id, name, description, owner_id, context_id, status, schedule,
	founder_uuid, values_uuid, mind_uuid, directive_uuid, last_run, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAgent(row rowScanner) (*types.Agent, error) {
	var a types.Agent
	var contextID sql.NullInt64
	var lastRun sql.NullTime
	var status, schedule string
	if err := row.Scan(&a.ID, &a.Name, &a.Description, &a.OwnerID, &contextID, &status, &schedule,
		&a.FounderUUID, &a.ValuesUUID, &a.MindUUID, &a.DirectiveUUID, &lastRun, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	a.ContextID = contextID.Int64
	a.Status = types.AgentStatus(status)
	a.Schedule = types.Schedule(schedule)
	if lastRun.Valid {
		t := lastRun.Time
		a.LastRun = &t
	}
	return &a, nil
}

// CreateAgent inserts an agent and sets its ID. Missing status defaults to READY.
func (q *Queries) CreateAgent(ctx context.Context, a *types.Agent) error {
	if a.Status == "" {
		a.Status = types.StatusReady
	}
	if a.Schedule == "" {
		a.Schedule = types.ScheduleDaily
	}
	now := time.Now().UTC()
	a.CreatedAt, a.UpdatedAt = now, now

	var lastRun interface{}
	if a.LastRun != nil {
		lastRun = a.LastRun.UTC()
	}

	res, err := q.q.ExecContext(ctx, `INSERT INTO agents
		(name, description, owner_id, context_id, status, schedule,
		 founder_uuid, values_uuid, mind_uuid, directive_uuid, last_run, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.Name, a.Description, a.OwnerID, nullID(a.ContextID), string(a.Status), string(a.Schedule),
		a.FounderUUID, a.ValuesUUID, a.MindUUID, a.DirectiveUUID, lastRun, now, now)
	if err != nil {
		return fmt.Errorf("insert agent: %w", err)
	}
	a.ID, err = res.LastInsertId()
	return err
}

// GetAgent returns the agent or types.ErrNotFound.
func (q *Queries) GetAgent(ctx context.Context, id int64) (*types.Agent, error) {
	row := q.q.QueryRowContext(ctx, "SELECT "+agentColumns+" FROM agents WHERE id = ?", id)
	a, err := scanAgent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("agent %d: %w", id, types.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get agent %d: %w", id, err)
	}
	return a, nil
}

// ListAgents returns every agent, including completed ones.
func (q *Queries) ListAgents(ctx context.Context) ([]*types.Agent, error) {
	return q.queryAgents(ctx, "SELECT "+agentColumns+" FROM agents ORDER BY id")
}

// RunnableAgents returns the non-COMPLETED agents on a schedule.
func (q *Queries) RunnableAgents(ctx context.Context, schedule types.Schedule) ([]*types.Agent, error) {
	return q.queryAgents(ctx, "SELECT "+agentColumns+` FROM agents
		WHERE schedule = ? AND status != ? ORDER BY id`,
		string(schedule), string(types.StatusCompleted))
}

func (q *Queries) queryAgents(ctx context.Context, query string, args ...interface{}) ([]*types.Agent, error) {
	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query agents: %w", err)
	}
	defer rows.Close()

	var agents []*types.Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan agent: %w", err)
		}
		agents = append(agents, a)
	}
	return agents, rows.Err()
}

// SetAgentStatus updates the lifecycle status. COMPLETED is terminal: a
// completed agent is never moved back.
func (q *Queries) SetAgentStatus(ctx context.Context, id int64, status types.AgentStatus) error {
	if !status.Valid() {
		return fmt.Errorf("invalid agent status %q", status)
	}
	res, err := q.q.ExecContext(ctx, `UPDATE agents SET status = ?, updated_at = ?
		WHERE id = ? AND status != ?`,
		string(status), time.Now().UTC(), id, string(types.StatusCompleted))
	if err != nil {
		return fmt.Errorf("update agent %d status: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		logging.StoreDebug("SetAgentStatus: agent %d missing or already completed", id)
	}
	return nil
}

// SetAgentDocuments records the Memory Store document UUIDs.
func (q *Queries) SetAgentDocuments(ctx context.Context, a *types.Agent) error {
	_, err := q.q.ExecContext(ctx, `UPDATE agents SET founder_uuid = ?, values_uuid = ?,
		mind_uuid = ?, directive_uuid = ?, updated_at = ? WHERE id = ?`,
		a.FounderUUID, a.ValuesUUID, a.MindUUID, a.DirectiveUUID, time.Now().UTC(), a.ID)
	if err != nil {
		return fmt.Errorf("update agent %d documents: %w", a.ID, err)
	}
	return nil
}

// =============================================================================
// PENDING AND RELATED THOUGHTS
// =============================================================================

// AddPendingThought puts a thought in the agent's inbox. Duplicates are ignored.
func (q *Queries) AddPendingThought(ctx context.Context, agentID, thoughtID int64) error {
	_, err := q.q.ExecContext(ctx, `INSERT OR IGNORE INTO pending_thoughts (agent_id, thought_id, added_at)
		VALUES (?, ?, ?)`, agentID, thoughtID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("add pending thought: %w", err)
	}
	return nil
}

// PendingThoughts returns the agent's inbox.
func (q *Queries) PendingThoughts(ctx context.Context, agentID int64) ([]*types.Thought, error) {
	return q.queryThoughts(ctx, "SELECT "+thoughtColumnsT+` FROM thoughts t
		JOIN pending_thoughts p ON p.thought_id = t.id
		WHERE p.agent_id = ? ORDER BY p.added_at, t.id`, agentID)
}

// RemovePendingThought deletes the inbox entry and reports whether it was there.
func (q *Queries) RemovePendingThought(ctx context.Context, agentID, thoughtID int64) (bool, error) {
	res, err := q.q.ExecContext(ctx, "DELETE FROM pending_thoughts WHERE agent_id = ? AND thought_id = ?", agentID, thoughtID)
	if err != nil {
		return false, fmt.Errorf("remove pending thought: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// AddRelatedThought adds to the relevance cache; existing entries are kept.
func (q *Queries) AddRelatedThought(ctx context.Context, agentID, thoughtID int64, score float64) (bool, error) {
	res, err := q.q.ExecContext(ctx, `INSERT OR IGNORE INTO related_thoughts (agent_id, thought_id, score, added_at)
		VALUES (?, ?, ?, ?)`, agentID, thoughtID, score, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("add related thought: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// RelatedThoughts returns the agent's relevance cache, best scores first.
func (q *Queries) RelatedThoughts(ctx context.Context, agentID int64) ([]*types.Thought, error) {
	return q.queryThoughts(ctx, "SELECT "+thoughtColumnsT+` FROM thoughts t
		JOIN related_thoughts r ON r.thought_id = t.id
		WHERE r.agent_id = ? ORDER BY r.score DESC, t.id`, agentID)
}
