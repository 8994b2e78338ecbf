package submind

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"submind/internal/logging"
	"submind/internal/types"
)

var timestampRe = regexp.MustCompile(`\[\d{2}:\d{2}:\d{2}\.\d{3} --> \d{2}:\d{2}:\d{2}\.\d{3}\]`)

// noResults fills an answer whose job completed without usable snippets.
const noResults = "No relevant information was found for this question."

// stripTimestamps removes transcript cue ranges from a snippet.
func stripTimestamps(s string) string {
	return strings.TrimSpace(timestampRe.ReplaceAllString(s, ""))
}

// PullNewAnswers polls the research job behind every empty answer of agent.
// Finished jobs are compiled and written; jobs that report an error are
// marked with the error sentinel. Answers whose submission failed earlier are
// submitted again and polled on a later run. It returns "question\nanswer" for each
// answer compiled in this call.
func (e *Engine) PullNewAnswers(ctx context.Context, agent *types.Agent) ([]string, error) {
	timer := logging.StartTimer(logging.CategoryAnswers, "PullNewAnswers")
	defer timer.Stop()

	pending, err := e.store.PendingAnswers(ctx, agent.ID)
	if err != nil {
		return nil, err
	}
	audit := logging.AuditForAgent(agent.ID)

	var compiled []string
	var errs []error
	for _, p := range pending {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		if p.RequestID == "" {
			if err := e.resubmit(ctx, p); err != nil {
				errs = append(errs, err)
			}
			continue
		}

		res, err := e.jobs.Poll(ctx, p.RequestID)
		if err != nil {
			logging.AnswersWarn("Poll %s failed: %v", p.RequestID, err)
			errs = append(errs, fmt.Errorf("answer %d: %w", p.ID, err))
			continue
		}
		if res.Status != types.JobCompleted {
			logging.AnswersDebug("Job %s still running", p.RequestID)
			continue
		}

		if res.Errored() {
			logging.AnswersWarn("Job %s failed: %s", p.RequestID, res.Error)
			if _, err := e.store.MarkAnswerErrored(ctx, p.ID, p.QuestionID); err != nil {
				errs = append(errs, err)
				continue
			}
			audit.AnswerCompiled(p.ID, true)
			continue
		}

		answer, err := e.compileAnswer(ctx, p.Question, res.Snippets)
		if err != nil {
			errs = append(errs, fmt.Errorf("answer %d: %w", p.ID, err))
			continue
		}
		filled, err := e.store.FillAnswer(ctx, p.ID, answer)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if filled {
			audit.AnswerCompiled(p.ID, false)
			compiled = append(compiled, p.Question+"\n"+answer)
		}
	}

	if len(compiled) > 0 {
		logging.Answers("Compiled %d answers for agent %d", len(compiled), agent.ID)
	}
	return compiled, errors.Join(errs...)
}

// resubmit starts the job for an answer that has none yet.
func (e *Engine) resubmit(ctx context.Context, p types.PendingAnswer) error {
	if p.Source != types.SourceInternet {
		return nil
	}
	jobID, err := e.jobs.Submit(ctx, p.Question)
	if err != nil {
		logging.AnswersWarn("Resubmit for answer %d failed, will retry next run: %v", p.ID, err)
		return fmt.Errorf("answer %d: resubmit: %w", p.ID, err)
	}
	if _, err := e.store.SetAnswerRequest(ctx, p.ID, jobID); err != nil {
		return err
	}
	logging.AnswersDebug("Answer %d resubmitted as job %s", p.ID, jobID)
	return nil
}

// compileAnswer folds snippets into an answer one at a time. A snippet whose
// fold fails is skipped; if every fold fails the answer stays pending.
func (e *Engine) compileAnswer(ctx context.Context, question string, snippets []string) (string, error) {
	answer := ""
	attempted, failed := 0, 0
	var lastErr error
	for i, raw := range snippets {
		snippet := stripTimestamps(raw)
		if snippet == "" {
			continue
		}
		attempted++
		out, err := e.gen.Generate(ctx, foldPrompt(question, answer, snippet))
		if err != nil {
			failed++
			lastErr = err
			logging.AnswersError("Snippet %d fold abandoned: %v", i, err)
			continue
		}
		if out = strings.TrimSpace(out); out != "" {
			answer = out
		}
	}

	switch {
	case attempted > 0 && failed == attempted:
		return "", fmt.Errorf("all %d snippet folds failed: %w", attempted, lastErr)
	case answer == "":
		return noResults, nil
	}
	return answer, nil
}
