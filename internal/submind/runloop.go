package submind

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"submind/internal/config"
	"submind/internal/logging"
	"submind/internal/store"
	"submind/internal/types"
)

// ResponseKind is how the submind answers a pending thought.
type ResponseKind string

const (
	ResponseResearch ResponseKind = "research"
	ResponseQuestion ResponseKind = "question"
	ResponseAction   ResponseKind = "action"
)

// ParseResponseKind maps a generated label onto the closed set.
func ParseResponseKind(s string) (ResponseKind, error) {
	switch k := ResponseKind(strings.ToLower(strings.TrimSpace(s))); k {
	case ResponseResearch, ResponseQuestion, ResponseAction:
		return k, nil
	}
	return "", fmt.Errorf("unknown response kind %q", s)
}

// Classification is the decoded classify output.
type Classification struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// RunReport summarizes one agent run. Per-item failures are collected in
// Errors; the run itself keeps going.
type RunReport struct {
	AgentID     int64
	Skipped     bool
	Initialized bool
	Finalized   bool
	NewAnswers  int
	Processed   int
	Failed      int
	Errors      []error
}

// Err joins every collected failure, or returns nil.
func (r *RunReport) Err() error {
	return errors.Join(r.Errors...)
}

func (r *RunReport) fail(err error) {
	r.Errors = append(r.Errors, err)
}

// RunAgent performs one invocation for agent: finalize past the deadline,
// initialize a READY agent, refresh related thoughts, compile answers,
// consume pending thoughts, then fold new answers into the mind document.
// The returned error is non-nil only when the run could not proceed at all.
func (e *Engine) RunAgent(ctx context.Context, agent *types.Agent) (*RunReport, error) {
	timer := logging.StartTimer(logging.CategoryAgent, "RunAgent")
	defer timer.Stop()

	report := &RunReport{AgentID: agent.ID}
	audit := logging.AuditForAgent(agent.ID)

	if agent.Status == types.StatusCompleted {
		report.Skipped = true
		audit.AgentTransition(logging.AuditAgentSkipped, "agent already completed")
		return report, nil
	}

	if agent.DeadlinePassed(e.now()) {
		if err := e.FinalRun(ctx, agent); err != nil {
			return report, fmt.Errorf("final run for agent %d: %w", agent.ID, err)
		}
		report.Finalized = true
		return report, nil
	}

	if agent.Status == types.StatusReady {
		if err := e.InitialRun(ctx, agent); err != nil {
			return report, fmt.Errorf("initial run for agent %d: %w", agent.ID, err)
		}
		report.Initialized = true
	}

	mem, err := e.ensureDocuments(ctx, agent)
	if err != nil {
		return report, err
	}

	if err := e.RefreshRelatedThoughts(ctx, agent); err != nil {
		report.fail(err)
	}

	answers, err := e.PullNewAnswers(ctx, agent)
	if err != nil {
		report.fail(err)
	}
	report.NewAnswers = len(answers)

	e.consumePending(ctx, agent, mem, report)

	if len(answers) > 0 {
		if err := e.updateMemory(ctx, agent, mem, answers); err != nil {
			report.fail(err)
		}
	}

	logging.Agent("Agent %d run done: %d processed, %d failed, %d new answers",
		agent.ID, report.Processed, report.Failed, report.NewAnswers)
	return report, nil
}

// consumePending processes every pending thought of agent. A failing thought
// never stops the others.
func (e *Engine) consumePending(ctx context.Context, agent *types.Agent, mem *memory, report *RunReport) {
	pending, err := e.store.PendingThoughts(ctx, agent.ID)
	if err != nil {
		report.fail(fmt.Errorf("list pending thoughts: %w", err))
		return
	}
	for _, thought := range pending {
		if ctx.Err() != nil {
			report.fail(ctx.Err())
			return
		}
		if err := e.processThought(ctx, agent, mem, thought); err != nil {
			logging.AgentError("Thought %d failed: %v", thought.ID, err)
			report.Failed++
			report.fail(fmt.Errorf("thought %d: %w", thought.ID, err))
			continue
		}
		report.Processed++
	}
}

// processThought applies the configured delivery contract around dispatch.
func (e *Engine) processThought(ctx context.Context, agent *types.Agent, mem *memory, thought *types.Thought) error {
	if e.delivery == config.DeliveryAtLeastOnce {
		liked, err := e.store.HasLike(ctx, agent.ID, thought.ID)
		if err != nil {
			return err
		}
		if !liked {
			if err := e.dispatch(ctx, agent, mem, thought); err != nil {
				return err
			}
			if err := e.store.RecordLike(ctx, agent.ID, thought.ID); err != nil {
				return err
			}
		} else {
			logging.AgentDebug("Thought %d already dispatched, dropping from pending", thought.ID)
		}
		_, err = e.store.RemovePendingThought(ctx, agent.ID, thought.ID)
		return err
	}

	removed, err := e.store.RemovePendingThought(ctx, agent.ID, thought.ID)
	if err != nil {
		return err
	}
	if !removed {
		logging.AgentDebug("Thought %d no longer pending, skipping", thought.ID)
		return nil
	}
	if err := e.dispatch(ctx, agent, mem, thought); err != nil {
		return err
	}
	return e.store.RecordLike(ctx, agent.ID, thought.ID)
}

// dispatch classifies thought and routes it.
func (e *Engine) dispatch(ctx context.Context, agent *types.Agent, mem *memory, thought *types.Thought) (err error) {
	start := time.Now()
	kind := ResponseKind("unclassified")
	defer func() {
		logging.AuditForAgent(agent.ID).ThoughtDispatched(thought.ID, string(kind), time.Since(start).Milliseconds(), err)
	}()

	var c Classification
	if err = e.structured.GenerateStructured(ctx, classifyPrompt(mem, thought.Content), classifySchema, &c); err != nil {
		return fmt.Errorf("classify: %w", err)
	}
	if kind, err = ParseResponseKind(c.Type); err != nil {
		return err
	}
	message := strings.TrimSpace(c.Message)
	if message == "" {
		return fmt.Errorf("classify: empty %s message", kind)
	}
	logging.AgentDebug("Thought %d classified as %s", thought.ID, kind)

	switch kind {
	case ResponseResearch:
		_, err = e.startResearch(ctx, agent, mem, thought, message)
	case ResponseQuestion:
		err = e.askQuestion(ctx, agent, thought, message)
	case ResponseAction:
		err = e.TakeAction(ctx, agent, thought, message)
	}
	return err
}

// askQuestion records the question as a child thought. The question is
// picked up by a later run like any other thought.
func (e *Engine) askQuestion(ctx context.Context, agent *types.Agent, parent *types.Thought, question string) error {
	t := store.NewAgentThought(agent, question, parent.ID)
	if err := e.store.CreateThought(ctx, t); err != nil {
		return err
	}
	e.indexThoughts(ctx, t)
	return nil
}
