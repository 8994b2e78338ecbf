package submind

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"submind/internal/types"
)

const twoQuestions = `{"research":{"research_questions":["Who competes?","What do they charge?","  "],"summary":"Competitive landscape"}}`

func researchResponder(prompt string) (string, error) {
	switch {
	case strings.Contains(prompt, "recursive answer compiler"):
		return "Acme leads and Beta follows", nil
	case strings.Contains(prompt, "NEW ANSWERS"):
		return "updated mind", nil
	case strings.Contains(prompt, "QUESTIONS AND ANSWERS"):
		return "final research report", nil
	}
	return "generated", nil
}

func TestResearchReady(t *testing.T) {
	filled := types.Answer{Content: "yes"}
	empty := types.Answer{}
	sentinel := types.Answer{Content: types.ErrorSentinel}

	tests := []struct {
		name string
		qa   []types.QA
		want bool
	}{
		{"no questions", nil, true},
		{"question without answers", []types.QA{{}}, false},
		{"pending answer", []types.QA{{Answers: []types.Answer{filled}}, {Answers: []types.Answer{empty}}}, false},
		{"all filled", []types.QA{{Answers: []types.Answer{filled, filled}}}, true},
		{"sentinel counts as filled", []types.QA{{Answers: []types.Answer{filled}}, {Answers: []types.Answer{sentinel}}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, researchReady(tt.qa))
		})
	}
}

func TestStripTimestamps(t *testing.T) {
	in := "[00:00:01.000 --> 00:00:02.500] Acme leads [01:02:03.004 --> 01:02:04.000]the market"
	assert.Equal(t, "Acme leads the market", stripTimestamps(in))
	assert.Equal(t, "", stripTimestamps("[00:00:01.000 --> 00:00:02.500]"))
}

func TestResearch_FullLifecycle(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.gen.respond = researchResponder
	h.structured.on("classify_thought", classifyJSON(ResponseResearch, "competitor pricing"))
	h.structured.on("research_questions", twoQuestions)
	agent, trigger := h.activeAgent(t, "How do competitors price?")

	// Run 1: campaign opened, jobs submitted.
	report, err := h.engine.RunAgent(ctx, agent)
	require.NoError(t, err)
	require.NoError(t, report.Err())
	assert.Equal(t, []string{"Who competes?", "What do they charge?"}, h.jobs.submitted)

	open, err := h.store.IncompleteResearch(ctx, agent.ID)
	require.NoError(t, err)
	require.Len(t, open, 1)
	campaign := open[0]
	assert.Equal(t, trigger.Content, campaign.Name)
	assert.Equal(t, "Competitive landscape", campaign.Description)

	summary, err := h.store.GetThought(ctx, campaign.RespondToID)
	require.NoError(t, err)
	assert.Equal(t, trigger.ID, summary.ParentID)
	assert.Equal(t, "Competitive landscape", summary.Content)

	pending, err := h.store.PendingAnswers(ctx, agent.ID)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "job-1", pending[0].RequestID)
	assert.Equal(t, types.SourceInternet, pending[0].Source)

	n, err := h.engine.UpdateResearch(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "no answers yet")

	// Run 2: one job done, one running.
	h.jobs.finish("job-1", "[00:00:01.000 --> 00:00:02.000] Acme leads", "Beta follows")
	report, err = h.engine.RunAgent(ctx, agent)
	require.NoError(t, err)
	require.NoError(t, report.Err())
	assert.Equal(t, 1, report.NewAnswers)

	folds := h.gen.promptsContaining("recursive answer compiler")
	require.Len(t, folds, 2)
	for _, p := range folds {
		assert.NotContains(t, p, "-->")
	}
	assert.Contains(t, folds[1], "Acme leads and Beta follows", "second fold sees the first result")

	mind, err := h.docs.Get(ctx, agent.MindUUID, agent.OwnerID)
	require.NoError(t, err)
	assert.Equal(t, "updated mind", mind.Content)

	n, err = h.engine.UpdateResearch(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "one answer still pending")

	// Run 3: the second job errors.
	h.jobs.fail("job-2", "x")
	_, err = h.engine.RunAgent(ctx, agent)
	require.NoError(t, err)

	qa, err := h.store.ResearchQA(ctx, campaign.ID)
	require.NoError(t, err)
	require.Len(t, qa, 2)
	assert.Equal(t, "Acme leads and Beta follows", qa[0].Answers[0].Content)
	assert.Equal(t, types.ErrorSentinel, qa[1].Answers[0].Content)
	assert.Equal(t, types.ErrorSentinel, qa[1].Question.Error)

	n, err = h.engine.UpdateResearch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	done, err := h.store.GetResearch(ctx, campaign.ID)
	require.NoError(t, err)
	assert.True(t, done.Completed)
	assert.Equal(t, "final research report", done.Response)

	replies, err := h.store.ChildThoughts(ctx, summary.ID)
	require.NoError(t, err)
	require.Len(t, replies, 1)
	assert.Equal(t, "final research report", replies[0].Content)

	// Idempotent.
	n, err = h.engine.UpdateResearch(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	require.NoError(t, h.engine.CompleteResearch(ctx, done))
	replies, err = h.store.ChildThoughts(ctx, summary.ID)
	require.NoError(t, err)
	assert.Len(t, replies, 1)
	assert.Len(t, h.gen.promptsContaining("QUESTIONS AND ANSWERS"), 1)
}

func TestCompleteResearch_StaleCopyDoesNotCompleteTwice(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.gen.respond = researchResponder
	h.structured.on("research_questions", `{"research":{"research_questions":[],"summary":"nothing to ask"}}`)
	agent, trigger := h.activeAgent(t, "Quick check")

	campaign, err := h.engine.StartResearch(ctx, agent, trigger, "quick")
	require.NoError(t, err)

	stale := *campaign
	require.NoError(t, h.engine.CompleteResearch(ctx, campaign))
	require.NoError(t, h.engine.CompleteResearch(ctx, &stale))

	replies, err := h.store.ChildThoughts(ctx, campaign.RespondToID)
	require.NoError(t, err)
	assert.Len(t, replies, 1)
}

func TestStartResearch_SubmitFailureIsRetriedNextRun(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.gen.respond = researchResponder
	h.structured.on("research_questions", `{"research":{"research_questions":["Who competes?"],"summary":"s"}}`)
	h.jobs.submitErr = errors.New("503 service unavailable")
	agent, trigger := h.activeAgent(t, "Competitors")

	campaign, err := h.engine.StartResearch(ctx, agent, trigger, "competitors")
	require.Error(t, err)
	require.NotNil(t, campaign)

	qa, err := h.store.ResearchQA(ctx, campaign.ID)
	require.NoError(t, err)
	require.Len(t, qa, 1)
	require.Len(t, qa[0].Answers, 1)
	assert.Empty(t, qa[0].Answers[0].Content, "a transient fault must not write the sentinel")
	assert.Empty(t, qa[0].Answers[0].RequestID)
	assert.Empty(t, qa[0].Question.Error)

	n, err := h.engine.UpdateResearch(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	// Still down: the answer stays pending.
	_, err = h.engine.PullNewAnswers(ctx, agent)
	require.Error(t, err)
	pending, err := h.store.PendingAnswers(ctx, agent.ID)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Empty(t, pending[0].RequestID)

	// Service back: resubmitted, then compiled once the job finishes.
	h.jobs.submitErr = nil
	compiled, err := h.engine.PullNewAnswers(ctx, agent)
	require.NoError(t, err)
	assert.Empty(t, compiled)
	assert.Equal(t, []string{"Who competes?"}, h.jobs.submitted)

	h.jobs.finish("job-1", "Acme sells the same thing.")
	compiled, err = h.engine.PullNewAnswers(ctx, agent)
	require.NoError(t, err)
	require.Len(t, compiled, 1)

	n, err = h.engine.UpdateResearch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestPullNewAnswers_FailedFoldsLeaveAnswerPending(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.structured.on("research_questions", `{"research":{"research_questions":["Who competes?"],"summary":"s"}}`)
	agent, trigger := h.activeAgent(t, "Competitors")
	_, err := h.engine.StartResearch(ctx, agent, trigger, "competitors")
	require.NoError(t, err)

	h.jobs.finish("job-1", "Acme", "Beta")
	h.gen.respond = func(string) (string, error) { return "", types.ErrGeneration }
	compiled, err := h.engine.PullNewAnswers(ctx, agent)
	require.Error(t, err)
	assert.Empty(t, compiled)

	pending, err := h.store.PendingAnswers(ctx, agent.ID)
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	h.gen.respond = researchResponder
	compiled, err = h.engine.PullNewAnswers(ctx, agent)
	require.NoError(t, err)
	assert.Equal(t, []string{"Who competes?\nAcme leads and Beta follows"}, compiled)
}

func TestPullNewAnswers_PartialFoldFailureKeepsGoing(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.structured.on("research_questions", `{"research":{"research_questions":["Who competes?"],"summary":"s"}}`)
	agent, trigger := h.activeAgent(t, "Competitors")
	_, err := h.engine.StartResearch(ctx, agent, trigger, "competitors")
	require.NoError(t, err)

	h.jobs.finish("job-1", "bad snippet", "good snippet")
	h.gen.respond = func(p string) (string, error) {
		if strings.Contains(p, "bad snippet") {
			return "", types.ErrGeneration
		}
		return "from the good snippet", nil
	}
	compiled, err := h.engine.PullNewAnswers(ctx, agent)
	require.NoError(t, err)
	assert.Equal(t, []string{"Who competes?\nfrom the good snippet"}, compiled)
}

func TestPullNewAnswers_NoSnippets(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.structured.on("research_questions", `{"research":{"research_questions":["Who competes?"],"summary":"s"}}`)
	agent, trigger := h.activeAgent(t, "Competitors")
	_, err := h.engine.StartResearch(ctx, agent, trigger, "competitors")
	require.NoError(t, err)

	h.jobs.finish("job-1")
	compiled, err := h.engine.PullNewAnswers(ctx, agent)
	require.NoError(t, err)
	assert.Equal(t, []string{"Who competes?\n" + noResults}, compiled)
}

func TestPullNewAnswers_PollErrorRetriesLater(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.structured.on("research_questions", `{"research":{"research_questions":["Who competes?"],"summary":"s"}}`)
	agent, trigger := h.activeAgent(t, "Competitors")
	_, err := h.engine.StartResearch(ctx, agent, trigger, "competitors")
	require.NoError(t, err)

	h.jobs.pollErr = types.ErrJobFailed
	_, err = h.engine.PullNewAnswers(ctx, agent)
	assert.True(t, errors.Is(err, types.ErrJobFailed))

	pending, err := h.store.PendingAnswers(ctx, agent.ID)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}
