package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"submind/internal/types"
)

// CreateTask inserts a task and sets its ID and UUID. DependsOn is stored as
// the raw generated names; edges are added separately.
func (q *Queries) CreateTask(ctx context.Context, t *types.Task) error {
	if t.UUID == "" {
		t.UUID = uuid.NewString()
	}
	if t.DependsOn == nil {
		t.DependsOn = []string{}
	}
	deps, err := json.Marshal(t.DependsOn)
	if err != nil {
		return fmt.Errorf("encode depends_on: %w", err)
	}
	t.CreatedAt = time.Now().UTC()

	res, err := q.q.ExecContext(ctx, `INSERT INTO tasks
		(uuid, name, details, depends_on, thought_id, parent_task_id, agent_id, owner_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.UUID, t.Name, t.Details, string(deps), t.ThoughtID, nullID(t.ParentID), nullID(t.AgentID), t.OwnerID, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert task %q: %w", t.Name, err)
	}
	t.ID, err = res.LastInsertId()
	return err
}

// TasksByThought returns every task and subtask created from a thought.
func (q *Queries) TasksByThought(ctx context.Context, thoughtID int64) ([]*types.Task, error) {
	rows, err := q.q.QueryContext(ctx, `SELECT id, uuid, name, details, depends_on, thought_id,
		parent_task_id, agent_id, owner_id, created_at
		FROM tasks WHERE thought_id = ? ORDER BY id`, thoughtID)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*types.Task
	for rows.Next() {
		var t types.Task
		var deps string
		var parentID, agentID sql.NullInt64
		if err := rows.Scan(&t.ID, &t.UUID, &t.Name, &t.Details, &deps, &t.ThoughtID,
			&parentID, &agentID, &t.OwnerID, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		if err := json.Unmarshal([]byte(deps), &t.DependsOn); err != nil {
			return nil, fmt.Errorf("decode depends_on for task %d: %w", t.ID, err)
		}
		t.ParentID = parentID.Int64
		t.AgentID = agentID.Int64
		tasks = append(tasks, &t)
	}
	return tasks, rows.Err()
}

// AddTaskDependency records a resolved dependency edge.
func (q *Queries) AddTaskDependency(ctx context.Context, taskID, dependsOnID int64) error {
	_, err := q.q.ExecContext(ctx, `INSERT OR IGNORE INTO task_dependencies (task_id, depends_on_id)
		VALUES (?, ?)`, taskID, dependsOnID)
	if err != nil {
		return fmt.Errorf("add task dependency %d -> %d: %w", taskID, dependsOnID, err)
	}
	return nil
}

// TaskDependencies returns the resolved edges as task id -> dependency ids.
func (q *Queries) TaskDependencies(ctx context.Context, thoughtID int64) (map[int64][]int64, error) {
	rows, err := q.q.QueryContext(ctx, `SELECT d.task_id, d.depends_on_id FROM task_dependencies d
		JOIN tasks t ON t.id = d.task_id WHERE t.thought_id = ? ORDER BY d.task_id, d.depends_on_id`, thoughtID)
	if err != nil {
		return nil, fmt.Errorf("query task dependencies: %w", err)
	}
	defer rows.Close()

	edges := make(map[int64][]int64)
	for rows.Next() {
		var from, to int64
		if err := rows.Scan(&from, &to); err != nil {
			return nil, err
		}
		edges[from] = append(edges[from], to)
	}
	return edges, rows.Err()
}

// AddDependencyIssue flags a dependency that could not become an edge.
func (q *Queries) AddDependencyIssue(ctx context.Context, issue types.DependencyIssue) error {
	_, err := q.q.ExecContext(ctx, `INSERT OR IGNORE INTO task_dependency_issues
		(task_id, kind, reference, created_at) VALUES (?, ?, ?, ?)`,
		issue.TaskID, issue.Kind, issue.Reference, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("add dependency issue: %w", err)
	}
	return nil
}

// DependencyIssues returns the flagged dependencies for a thought's tasks.
func (q *Queries) DependencyIssues(ctx context.Context, thoughtID int64) ([]types.DependencyIssue, error) {
	rows, err := q.q.QueryContext(ctx, `SELECT i.task_id, t.name, i.kind, i.reference
		FROM task_dependency_issues i JOIN tasks t ON t.id = i.task_id
		WHERE t.thought_id = ? ORDER BY i.id`, thoughtID)
	if err != nil {
		return nil, fmt.Errorf("query dependency issues: %w", err)
	}
	defer rows.Close()

	var issues []types.DependencyIssue
	for rows.Next() {
		var i types.DependencyIssue
		if err := rows.Scan(&i.TaskID, &i.TaskName, &i.Kind, &i.Reference); err != nil {
			return nil, err
		}
		issues = append(issues, i)
	}
	return issues, rows.Err()
}
