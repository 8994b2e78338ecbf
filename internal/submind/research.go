package submind

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"submind/internal/logging"
	"submind/internal/store"
	"submind/internal/types"
)

// researchPlan is the decoded research output.
type researchPlan struct {
	Research struct {
		Questions []string `json:"research_questions"`
		Summary   string   `json:"summary"`
	} `json:"research"`
}

// StartResearch opens a campaign on topic in response to thought and submits
// one research job per generated question.
func (e *Engine) StartResearch(ctx context.Context, agent *types.Agent, thought *types.Thought, topic string) (*types.Research, error) {
	mem, err := e.ensureDocuments(ctx, agent)
	if err != nil {
		return nil, err
	}
	return e.startResearch(ctx, agent, mem, thought, topic)
}

func (e *Engine) startResearch(ctx context.Context, agent *types.Agent, mem *memory, thought *types.Thought, topic string) (*types.Research, error) {
	timer := logging.StartTimer(logging.CategoryResearch, "StartResearch")
	defer timer.Stop()

	var plan researchPlan
	if err := e.structured.GenerateStructured(ctx, researchPrompt(mem, thought.Content, topic), researchSchema, &plan); err != nil {
		return nil, fmt.Errorf("generate research questions: %w", err)
	}
	var questions []string
	for _, q := range plan.Research.Questions {
		if q = strings.TrimSpace(q); q != "" {
			questions = append(questions, q)
		}
	}

	summary := store.NewAgentThought(agent, plan.Research.Summary, thought.ID)
	research := &types.Research{AgentID: agent.ID, Name: thought.Content, Description: plan.Research.Summary}
	rows := make([]*types.Question, 0, len(questions))

	err := e.store.WithTx(ctx, func(q *store.Queries) error {
		if err := q.CreateThought(ctx, summary); err != nil {
			return err
		}
		research.RespondToID = summary.ID
		if err := q.CreateResearch(ctx, research); err != nil {
			return err
		}
		for _, content := range questions {
			qu := &types.Question{
				Content:     content,
				ForInternet: true,
				ResearchID:  research.ID,
				AgentID:     agent.ID,
				OwnerID:     agent.OwnerID,
				ContextID:   agent.ContextID,
			}
			if err := q.CreateQuestion(ctx, qu); err != nil {
				return err
			}
			rows = append(rows, qu)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("persist research: %w", err)
	}
	e.indexThoughts(ctx, summary)
	logging.AuditForAgent(agent.ID).ResearchStarted(research.ID, len(rows))
	logging.Research("Research %d started with %d questions: %s", research.ID, len(rows), topic)

	var errs []error
	for _, qu := range rows {
		if err := e.submitQuestion(ctx, agent, qu); err != nil {
			errs = append(errs, err)
		}
	}
	return research, errors.Join(errs...)
}

// submitQuestion records a pending answer for qu and starts its job. When
// the job service cannot take the question now, the answer stays pending
// without a job id and is submitted again on a later run.
func (e *Engine) submitQuestion(ctx context.Context, agent *types.Agent, qu *types.Question) error {
	answer := &types.Answer{QuestionID: qu.ID, Source: types.SourceInternet, AgentID: agent.ID}

	jobID, submitErr := e.jobs.Submit(ctx, qu.Content)
	if submitErr == nil {
		answer.RequestID = jobID
	}
	if err := e.store.CreateAnswer(ctx, answer); err != nil {
		return errors.Join(submitErr, err)
	}
	if submitErr != nil {
		logging.ResearchWarn("Submit failed for question %d, will retry next run: %v", qu.ID, submitErr)
		return fmt.Errorf("submit question %d: %w", qu.ID, submitErr)
	}
	return nil
}

// researchReady reports whether every question has at least one answer and
// no answer is still empty. A campaign without questions is ready.
func researchReady(qa []types.QA) bool {
	for _, item := range qa {
		if len(item.Answers) == 0 {
			return false
		}
		for i := range item.Answers {
			if !item.Answers[i].Filled() {
				return false
			}
		}
	}
	return true
}

// UpdateResearch completes every open campaign whose answers are all in. It
// returns how many campaigns it completed and is safe to call repeatedly.
func (e *Engine) UpdateResearch(ctx context.Context) (int, error) {
	timer := logging.StartTimer(logging.CategoryResearch, "UpdateResearch")
	defer timer.Stop()

	open, err := e.store.OpenResearch(ctx)
	if err != nil {
		return 0, err
	}

	completed := 0
	var errs []error
	for _, r := range open {
		qa, err := e.store.ResearchQA(ctx, r.ID)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !researchReady(qa) {
			continue
		}
		done, err := e.completeResearch(ctx, r, qa)
		if err != nil {
			logging.ResearchError("Research %d completion failed: %v", r.ID, err)
			errs = append(errs, fmt.Errorf("research %d: %w", r.ID, err))
			continue
		}
		if done {
			completed++
		}
	}
	return completed, errors.Join(errs...)
}

// CompleteResearch compiles the campaign's answers into a report, marks it
// completed and posts the report as a reply to the campaign's summary thought.
// A campaign that is already completed is left unchanged.
func (e *Engine) CompleteResearch(ctx context.Context, research *types.Research) error {
	qa, err := e.store.ResearchQA(ctx, research.ID)
	if err != nil {
		return err
	}
	_, err = e.completeResearch(ctx, research, qa)
	return err
}

func formatQA(qa []types.QA) []string {
	out := make([]string, 0, len(qa))
	for _, item := range qa {
		answers := make([]string, len(item.Answers))
		for i, a := range item.Answers {
			answers[i] = a.Content
		}
		out = append(out, item.Question.Content+":\n"+strings.Join(answers, "\n"))
	}
	return out
}

func (e *Engine) completeResearch(ctx context.Context, research *types.Research, qa []types.QA) (bool, error) {
	if research.Completed {
		return false, nil
	}
	agent, err := e.store.GetAgent(ctx, research.AgentID)
	if err != nil {
		return false, err
	}
	mem, err := e.ensureDocuments(ctx, agent)
	if err != nil {
		return false, err
	}

	report, err := e.gen.Generate(ctx, completeResearchPrompt(mem, research.Name, formatQA(qa)))
	if err != nil {
		return false, fmt.Errorf("compile research report: %w", err)
	}
	report = strings.TrimSpace(report)

	reply := store.NewAgentThought(agent, report, research.RespondToID)
	done := false
	err = e.store.WithTx(ctx, func(q *store.Queries) error {
		ok, err := q.MarkResearchCompleted(ctx, research.ID, report)
		if err != nil || !ok {
			return err
		}
		done = true
		return q.CreateThought(ctx, reply)
	})
	if err != nil {
		return false, err
	}
	if !done {
		logging.ResearchDebug("Research %d was already completed", research.ID)
		return false, nil
	}

	research.Completed = true
	research.Response = report
	e.indexThoughts(ctx, reply)
	logging.AuditForAgent(agent.ID).ResearchCompleted(research.ID)
	logging.Research("Research %d completed", research.ID)
	return true, nil
}
