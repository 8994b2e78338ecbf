package submind

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"submind/internal/knowledge"
	"submind/internal/logging"
	"submind/internal/store"
	"submind/internal/types"
)

// directive is the decoded initial-run output.
type directive struct {
	Goal           string   `json:"goal"`
	ResearchTopics []string `json:"research_topics"`
	Output         string   `json:"output"`
	Challenges     []string `json:"challenges"`
}

func (d *directive) mind(plan string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Goal: %s\n\n", d.Goal)
	fmt.Fprintf(&b, "Research topics:\n%s\n\n", bullets(d.ResearchTopics))
	fmt.Fprintf(&b, "Expected output: %s\n\n", d.Output)
	fmt.Fprintf(&b, "Challenges:\n%s\n\n", bullets(d.Challenges))
	fmt.Fprintf(&b, "Plan:\n%s", plan)
	return b.String()
}

// =============================================================================
// INITIAL AND FINAL RUNS
// =============================================================================

// InitialRun turns a READY agent ACTIVE. It derives a goal and research topics
// from the directive document, writes a plan into the mind document, posts
// the plan as a thought and queues each research topic as a pending thought.
// Agents that are not READY are left alone.
func (e *Engine) InitialRun(ctx context.Context, agent *types.Agent) error {
	if agent.Status != types.StatusReady {
		return nil
	}
	timer := logging.StartTimer(logging.CategoryAgent, "InitialRun")
	defer timer.Stop()

	mem, err := e.ensureDocuments(ctx, agent)
	if err != nil {
		return err
	}

	var d directive
	if err := e.structured.GenerateStructured(ctx, initialPrompt(agent, mem.Directive), initialSchema, &d); err != nil {
		return fmt.Errorf("derive directive: %w", err)
	}
	plan, err := e.gen.Generate(ctx, planningPrompt(d.Goal, mem.Directive, d.ResearchTopics))
	if err != nil {
		return fmt.Errorf("plan directive: %w", err)
	}
	plan = strings.TrimSpace(plan)

	if err := e.docs.Update(ctx, agent.MindUUID, d.mind(plan)); err != nil {
		return fmt.Errorf("store initial mind: %w", err)
	}

	planThought := store.NewAgentThought(agent, plan, 0)
	created := []*types.Thought{planThought}
	err = e.store.WithTx(ctx, func(q *store.Queries) error {
		if err := q.CreateThought(ctx, planThought); err != nil {
			return err
		}
		for _, topic := range d.ResearchTopics {
			if topic = strings.TrimSpace(topic); topic == "" {
				continue
			}
			t := store.NewAgentThought(agent, topic, planThought.ID)
			if err := q.CreateThought(ctx, t); err != nil {
				return err
			}
			if err := q.AddPendingThought(ctx, agent.ID, t.ID); err != nil {
				return err
			}
			created = append(created, t)
		}
		return q.SetAgentStatus(ctx, agent.ID, types.StatusActive)
	})
	if err != nil {
		return fmt.Errorf("persist initial run: %w", err)
	}

	agent.Status = types.StatusActive
	e.indexThoughts(ctx, created...)
	logging.AuditForAgent(agent.ID).AgentTransition(logging.AuditAgentActivated, d.Goal)
	logging.Agent("Agent %d activated with %d research topics", agent.ID, len(created)-1)
	return nil
}

// FinalRun writes the agent's final report into the Memory Store, posts it as
// a thought and marks the agent COMPLETED.
func (e *Engine) FinalRun(ctx context.Context, agent *types.Agent) error {
	timer := logging.StartTimer(logging.CategoryAgent, "FinalRun")
	defer timer.Stop()

	mem, err := e.ensureDocuments(ctx, agent)
	if err != nil {
		return err
	}
	related, err := e.store.RelatedThoughts(ctx, agent.ID)
	if err != nil {
		return err
	}

	report, err := e.gen.Generate(ctx, finalPrompt(agent, mem, thoughtContents(related)))
	if err != nil {
		return fmt.Errorf("compile final report: %w", err)
	}
	report = strings.TrimSpace(report)

	doc, err := e.docs.CreateReport(ctx, agent.OwnerID, report)
	if err != nil {
		return fmt.Errorf("store final report: %w", err)
	}

	t := store.NewAgentThought(agent, report, 0)
	err = e.store.WithTx(ctx, func(q *store.Queries) error {
		if err := q.CreateThought(ctx, t); err != nil {
			return err
		}
		return q.SetAgentStatus(ctx, agent.ID, types.StatusCompleted)
	})
	if err != nil {
		return fmt.Errorf("persist final run: %w", err)
	}

	agent.Status = types.StatusCompleted
	e.indexThoughts(ctx, t)
	logging.AuditForAgent(agent.ID).AgentTransition(logging.AuditAgentCompleted, doc.UUID)
	logging.Agent("Agent %d completed, report %s", agent.ID, doc.UUID)
	return nil
}

// =============================================================================
// MEMORY
// =============================================================================

// updateMemory folds newly compiled answers into the mind document.
func (e *Engine) updateMemory(ctx context.Context, agent *types.Agent, mem *memory, answers []string) error {
	mind, err := e.gen.Generate(ctx, memoryUpdatePrompt(mem, answers))
	if err != nil {
		return fmt.Errorf("update mind: %w", err)
	}
	mind = strings.TrimSpace(mind)
	if mind == "" || mind == mem.Mind {
		return nil
	}
	if err := e.docs.Update(ctx, agent.MindUUID, mind); err != nil {
		return fmt.Errorf("store mind: %w", err)
	}
	mem.Mind = mind
	logging.AgentDebug("Agent %d mind updated from %d answers", agent.ID, len(answers))
	return nil
}

// RefreshRelatedThoughts adds indexed thoughts similar to each pending thought
// to the agent's related set. The set only grows.
func (e *Engine) RefreshRelatedThoughts(ctx context.Context, agent *types.Agent) error {
	pending, err := e.store.PendingThoughts(ctx, agent.ID)
	if err != nil {
		return err
	}

	added := 0
	var errs []error
	for _, t := range pending {
		matches, err := e.related(ctx, agent, t.Content, e.knowledge.TopK, func(m []types.Match) []types.Match {
			return knowledge.Above(m, e.knowledge.MemoryThreshold)
		})
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for _, m := range matches {
			if m.ThoughtID == t.ID {
				continue
			}
			ok, err := e.store.AddRelatedThought(ctx, agent.ID, m.ThoughtID, m.Score)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			if ok {
				added++
			}
		}
	}
	if added > 0 {
		logging.KnowledgeDebug("Agent %d: %d related thoughts added", agent.ID, added)
	}
	return errors.Join(errs...)
}

// =============================================================================
// REFLECTION AND HUMAN QUESTIONS
// =============================================================================

// Reflect answers thought from what the agent already knows and posts the
// reply as a child thought.
func (e *Engine) Reflect(ctx context.Context, agent *types.Agent, thought *types.Thought, reasoning string) (*types.Thought, error) {
	mem, err := e.ensureDocuments(ctx, agent)
	if err != nil {
		return nil, err
	}
	matches, err := e.related(ctx, agent, thought.Content, e.knowledge.TopK, func(m []types.Match) []types.Match {
		return knowledge.AtLeast(m, e.knowledge.ActionThreshold)
	})
	if err != nil {
		return nil, err
	}

	out, err := e.gen.Generate(ctx, reflectPrompt(mem, matchContents(matches), thought.Content, reasoning))
	if err != nil {
		return nil, fmt.Errorf("reflect: %w", err)
	}
	reply := store.NewAgentThought(agent, strings.TrimSpace(out), thought.ID)
	if err := e.store.CreateThought(ctx, reply); err != nil {
		return nil, err
	}
	e.indexThoughts(ctx, reply)
	return reply, nil
}

// AskFounder records a question only the founder can answer.
func (e *Engine) AskFounder(ctx context.Context, agent *types.Agent, content string) (*types.Question, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, errors.New("question is empty")
	}
	qu := &types.Question{
		Content:   content,
		ForHuman:  true,
		AgentID:   agent.ID,
		OwnerID:   agent.OwnerID,
		ContextID: agent.ContextID,
	}
	if err := e.store.CreateQuestion(ctx, qu); err != nil {
		return nil, err
	}
	return qu, nil
}

// AnswerQuestion records the founder's answer to an open question.
func (e *Engine) AnswerQuestion(ctx context.Context, questionID int64, content string) (*types.Answer, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, errors.New("answer is empty")
	}
	qu, err := e.store.GetQuestion(ctx, questionID)
	if err != nil {
		return nil, err
	}
	if !qu.ForHuman {
		return nil, fmt.Errorf("question %d is not addressed to the founder", questionID)
	}

	answer := &types.Answer{QuestionID: qu.ID, Content: content, Source: types.SourceUser, AgentID: qu.AgentID}
	err = e.store.WithTx(ctx, func(q *store.Queries) error {
		existing, err := q.AnswersForQuestion(ctx, qu.ID)
		if err != nil {
			return err
		}
		for i := range existing {
			if existing[i].Filled() {
				return fmt.Errorf("question %d is already answered", questionID)
			}
		}
		return q.CreateAnswer(ctx, answer)
	})
	if err != nil {
		return nil, err
	}
	return answer, nil
}
