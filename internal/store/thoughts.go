package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"submind/internal/types"
)

const thoughtColumns = "id, uuid, content, parent_id, owner_id, agent_id, context_id, created_at"

// thoughtColumnsT is thoughtColumns qualified for joins on alias t.
const thoughtColumnsT = "t.id, t.uuid, t.content, t.parent_id, t.owner_id, t.agent_id, t.context_id, t.created_at"

func scanThought(row rowScanner) (*types.Thought, error) {
	var t types.Thought
	var parentID, agentID, contextID sql.NullInt64
	if err := row.Scan(&t.ID, &t.UUID, &t.Content, &parentID, &t.OwnerID, &agentID, &contextID, &t.CreatedAt); err != nil {
		return nil, err
	}
	t.ParentID = parentID.Int64
	t.AgentID = agentID.Int64
	t.ContextID = contextID.Int64
	return &t, nil
}

// CreateThought inserts an immutable thought and sets its ID and UUID.
func (q *Queries) CreateThought(ctx context.Context, t *types.Thought) error {
	if t.UUID == "" {
		t.UUID = uuid.NewString()
	}
	t.CreatedAt = time.Now().UTC()

	res, err := q.q.ExecContext(ctx, `INSERT INTO thoughts
		(uuid, content, parent_id, owner_id, agent_id, context_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.UUID, t.Content, nullID(t.ParentID), t.OwnerID, nullID(t.AgentID), nullID(t.ContextID), t.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert thought: %w", err)
	}
	t.ID, err = res.LastInsertId()
	return err
}

// NewAgentThought builds a thought owned by the agent's owner, in its context.
func NewAgentThought(agent *types.Agent, content string, parentID int64) *types.Thought {
	return &types.Thought{
		Content:   content,
		ParentID:  parentID,
		OwnerID:   agent.OwnerID,
		AgentID:   agent.ID,
		ContextID: agent.ContextID,
	}
}

// GetThought returns the thought or types.ErrNotFound.
func (q *Queries) GetThought(ctx context.Context, id int64) (*types.Thought, error) {
	row := q.q.QueryRowContext(ctx, "SELECT "+thoughtColumns+" FROM thoughts WHERE id = ?", id)
	t, err := scanThought(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("thought %d: %w", id, types.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get thought %d: %w", id, err)
	}
	return t, nil
}

// ChildThoughts returns the thoughts parented to id, oldest first.
func (q *Queries) ChildThoughts(ctx context.Context, parentID int64) ([]*types.Thought, error) {
	return q.queryThoughts(ctx, "SELECT "+thoughtColumns+" FROM thoughts WHERE parent_id = ? ORDER BY id", parentID)
}

// AgentThoughts returns every thought attributed to the agent.
func (q *Queries) AgentThoughts(ctx context.Context, agentID int64) ([]*types.Thought, error) {
	return q.queryThoughts(ctx, "SELECT "+thoughtColumns+" FROM thoughts WHERE agent_id = ? ORDER BY id", agentID)
}

// CountThoughts returns the total number of thoughts.
func (q *Queries) CountThoughts(ctx context.Context) (int, error) {
	var n int
	err := q.q.QueryRowContext(ctx, "SELECT COUNT(*) FROM thoughts").Scan(&n)
	return n, err
}

func (q *Queries) queryThoughts(ctx context.Context, query string, args ...interface{}) ([]*types.Thought, error) {
	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query thoughts: %w", err)
	}
	defer rows.Close()

	var thoughts []*types.Thought
	for rows.Next() {
		t, err := scanThought(rows)
		if err != nil {
			return nil, fmt.Errorf("scan thought: %w", err)
		}
		thoughts = append(thoughts, t)
	}
	return thoughts, rows.Err()
}
