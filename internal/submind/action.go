package submind

import (
	"context"
	"fmt"
	"strings"

	"submind/internal/knowledge"
	"submind/internal/logging"
	"submind/internal/store"
	"submind/internal/taskgraph"
	"submind/internal/types"
)

// ActionTerm says whether an action needs a plan.
type ActionTerm string

const (
	LongTerm  ActionTerm = "long-term"
	ShortTerm ActionTerm = "short-term"
)

// ParseActionTerm maps a generated label onto the closed set.
func ParseActionTerm(s string) (ActionTerm, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.ReplaceAll(strings.ReplaceAll(norm, "_", "-"), " ", "-")
	switch t := ActionTerm(norm); t {
	case LongTerm, ShortTerm:
		return t, nil
	}
	return "", fmt.Errorf("unknown action term %q", s)
}

// maxPlanContext caps the related thoughts fed into a plan.
const maxPlanContext = 10

// ClassifyAction decides whether action takes one step or many.
func (e *Engine) ClassifyAction(ctx context.Context, action string) (ActionTerm, error) {
	var out struct {
		Classification string `json:"classification"`
	}
	if err := e.structured.GenerateStructured(ctx, classifyActionPrompt(action), classifyActionSchema, &out); err != nil {
		return "", fmt.Errorf("classify action: %w", err)
	}
	return ParseActionTerm(out.Classification)
}

// TakeAction responds to an action suggested by thought. Short-term actions
// are recorded as a single deferred task. Long-term actions get a plan, an
// acknowledgment thought and the plan's tasks.
func (e *Engine) TakeAction(ctx context.Context, agent *types.Agent, thought *types.Thought, action string) error {
	timer := logging.StartTimer(logging.CategoryAction, "TakeAction")
	defer timer.Stop()

	term, err := e.ClassifyAction(ctx, action)
	if err != nil {
		return err
	}
	logging.ActionDebug("Action for thought %d is %s: %s", thought.ID, term, action)

	switch term {
	case ShortTerm:
		return e.deferAction(ctx, agent, thought, action)
	case LongTerm:
		plan, err := e.CreatePlan(ctx, agent, thought, action)
		if err != nil {
			return err
		}
		tasks, err := e.GenerateTasksFromPlan(ctx, plan)
		if err != nil {
			return err
		}
		_, err = e.persistPlan(ctx, agent, thought, plan, tasks)
		return err
	}
	return fmt.Errorf("unhandled action term %q", term)
}

func (e *Engine) deferAction(ctx context.Context, agent *types.Agent, thought *types.Thought, action string) error {
	note := store.NewAgentThought(agent, deferralText(action), thought.ID)
	err := e.store.WithTx(ctx, func(q *store.Queries) error {
		if err := q.CreateThought(ctx, note); err != nil {
			return err
		}
		return q.CreateTask(ctx, &types.Task{
			Name:      action,
			ThoughtID: note.ID,
			AgentID:   agent.ID,
			OwnerID:   agent.OwnerID,
		})
	})
	if err != nil {
		return fmt.Errorf("persist deferred action: %w", err)
	}
	e.indexThoughts(ctx, note)
	return nil
}

// CreatePlan writes a markdown plan for action, using up to ten related
// thoughts that score at or above the action threshold.
func (e *Engine) CreatePlan(ctx context.Context, agent *types.Agent, thought *types.Thought, action string) (string, error) {
	limit := e.knowledge.TopK
	if limit > maxPlanContext {
		limit = maxPlanContext
	}
	matches, err := e.related(ctx, agent, thought.Content+" "+action, limit, func(m []types.Match) []types.Match {
		return knowledge.AtLeast(m, e.knowledge.ActionThreshold)
	})
	if err != nil {
		return "", err
	}

	plan, err := e.gen.Generate(ctx, planPrompt(thought.Content, action, matchContents(matches)))
	if err != nil {
		return "", fmt.Errorf("create plan: %w", err)
	}
	return strings.TrimSpace(plan), nil
}

// GenerateTasksFromPlan breaks plan into tasks. Tasks without a name are dropped.
func (e *Engine) GenerateTasksFromPlan(ctx context.Context, plan string) ([]types.PlannedTask, error) {
	var out struct {
		Tasks []types.PlannedTask `json:"tasks"`
	}
	if err := e.structured.GenerateStructured(ctx, tasksPrompt(plan), tasksSchema, &out); err != nil {
		return nil, fmt.Errorf("generate tasks: %w", err)
	}

	tasks := make([]types.PlannedTask, 0, len(out.Tasks))
	for _, t := range out.Tasks {
		t.Name = strings.TrimSpace(t.Name)
		if t.Name == "" {
			continue
		}
		subtasks := t.Subtasks[:0]
		for _, st := range t.Subtasks {
			if st.Name = strings.TrimSpace(st.Name); st.Name != "" {
				subtasks = append(subtasks, st)
			}
		}
		t.Subtasks = subtasks
		tasks = append(tasks, t)
	}
	return tasks, nil
}

// persistPlan stores the acknowledgment thought and every task and subtask
// with its raw dependency names, then resolves those names into edges within
// the batch. Unresolved names and cycles are recorded as issues.
func (e *Engine) persistPlan(ctx context.Context, agent *types.Agent, thought *types.Thought, plan string, planned []types.PlannedTask) (*taskgraph.Resolution, error) {
	ack := store.NewAgentThought(agent, planAckText(plan), thought.ID)
	var res *taskgraph.Resolution

	err := e.store.WithTx(ctx, func(q *store.Queries) error {
		if err := q.CreateThought(ctx, ack); err != nil {
			return err
		}

		var nodes []taskgraph.Node
		add := func(name, details string, deps []string, parentID int64) (int64, error) {
			t := &types.Task{
				Name:      name,
				Details:   details,
				DependsOn: deps,
				ThoughtID: ack.ID,
				ParentID:  parentID,
				AgentID:   agent.ID,
				OwnerID:   agent.OwnerID,
			}
			if err := q.CreateTask(ctx, t); err != nil {
				return 0, err
			}
			nodes = append(nodes, taskgraph.Node{ID: t.ID, Name: name, DependsOn: deps})
			return t.ID, nil
		}

		for _, pt := range planned {
			id, err := add(pt.Name, pt.Details, pt.DependsOn, 0)
			if err != nil {
				return err
			}
			for _, st := range pt.Subtasks {
				if _, err := add(st.Name, st.Details, st.DependsOn, id); err != nil {
					return err
				}
			}
		}

		var err error
		if res, err = taskgraph.Resolve(nodes); err != nil {
			return err
		}
		for _, edge := range res.Edges {
			if err := q.AddTaskDependency(ctx, edge.From, edge.To); err != nil {
				return err
			}
		}
		for _, issue := range res.Issues {
			if err := q.AddDependencyIssue(ctx, issue); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("persist plan: %w", err)
	}

	e.indexThoughts(ctx, ack)
	audit := logging.AuditForAgent(agent.ID)
	for _, issue := range res.Issues {
		event := logging.AuditTaskUnresolved
		if issue.Kind == types.IssueCyclic {
			event = logging.AuditTaskCyclic
		}
		logging.ActionWarn("Task %q has %s dependency %q", issue.TaskName, issue.Kind, issue.Reference)
		audit.TaskIssue(event, issue.TaskName, issue.Reference)
	}
	logging.Action("Plan for thought %d stored: %d edges, %d issues", thought.ID, len(res.Edges), len(res.Issues))
	return res, nil
}
