package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"submind/internal/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:", 0)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestAgent(t *testing.T, s *Store, schedule types.Schedule) *types.Agent {
	t.Helper()
	a := &types.Agent{Name: "scout", Description: "market research", OwnerID: "owner-1", Schedule: schedule}
	require.NoError(t, s.CreateAgent(context.Background(), a))
	return a
}

func TestOpen_CreatesSchemaAndVersion(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "submind.db")

	s, err := Open(path, time.Second)
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, GetSchemaVersion(s.DB()))
	require.NoError(t, s.Close())

	// Reopening is a no-op migration.
	s, err = Open(path, time.Second)
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, CurrentSchemaVersion, GetSchemaVersion(s.DB()))

	stats, err := s.Stats(context.Background())
	require.NoError(t, err)
	assert.Contains(t, stats, "agents")
}

func TestRunnableAgents_ExcludesCompleted(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	ready := newTestAgent(t, s, types.ScheduleDaily)
	done := newTestAgent(t, s, types.ScheduleDaily)
	other := newTestAgent(t, s, types.ScheduleInstant)
	require.NoError(t, s.SetAgentStatus(ctx, done.ID, types.StatusCompleted))

	agents, err := s.RunnableAgents(ctx, types.ScheduleDaily)
	require.NoError(t, err)
	require.Len(t, agents, 1)
	assert.Equal(t, ready.ID, agents[0].ID)

	agents, err = s.RunnableAgents(ctx, types.ScheduleInstant)
	require.NoError(t, err)
	require.Len(t, agents, 1)
	assert.Equal(t, other.ID, agents[0].ID)
}

func TestSetAgentStatus_CompletedIsTerminal(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	a := newTestAgent(t, s, types.ScheduleDaily)

	require.NoError(t, s.SetAgentStatus(ctx, a.ID, types.StatusCompleted))
	require.NoError(t, s.SetAgentStatus(ctx, a.ID, types.StatusReady))

	got, err := s.GetAgent(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, got.Status)

	assert.Error(t, s.SetAgentStatus(ctx, a.ID, "PAUSED"))
}

func TestGetAgent_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetAgent(context.Background(), 42)
	assert.True(t, errors.Is(err, types.ErrNotFound))
}

func TestAgent_LastRunRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	deadline := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	a := &types.Agent{Name: "a", OwnerID: "o", LastRun: &deadline}
	require.NoError(t, s.CreateAgent(ctx, a))

	got, err := s.GetAgent(ctx, a.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastRun)
	assert.True(t, got.LastRun.Equal(deadline))
	assert.True(t, got.DeadlinePassed(deadline.Add(time.Second)))
}

func TestPendingThoughts(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	a := newTestAgent(t, s, types.ScheduleDaily)

	th := NewAgentThought(a, "look into pricing", 0)
	require.NoError(t, s.CreateThought(ctx, th))
	assert.NotEmpty(t, th.UUID)

	require.NoError(t, s.AddPendingThought(ctx, a.ID, th.ID))
	require.NoError(t, s.AddPendingThought(ctx, a.ID, th.ID))

	pending, err := s.PendingThoughts(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "look into pricing", pending[0].Content)

	removed, err := s.RemovePendingThought(ctx, a.ID, th.ID)
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = s.RemovePendingThought(ctx, a.ID, th.ID)
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestRelatedThoughts_GrowOnly(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	a := newTestAgent(t, s, types.ScheduleDaily)

	low := NewAgentThought(a, "low", 0)
	high := NewAgentThought(a, "high", 0)
	require.NoError(t, s.CreateThought(ctx, low))
	require.NoError(t, s.CreateThought(ctx, high))

	added, err := s.AddRelatedThought(ctx, a.ID, low.ID, 0.71)
	require.NoError(t, err)
	assert.True(t, added)
	_, err = s.AddRelatedThought(ctx, a.ID, high.ID, 0.93)
	require.NoError(t, err)

	added, err = s.AddRelatedThought(ctx, a.ID, low.ID, 0.99)
	require.NoError(t, err)
	assert.False(t, added)

	related, err := s.RelatedThoughts(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, related, 2)
	assert.Equal(t, "high", related[0].Content)
}

func TestChildThoughts(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	a := newTestAgent(t, s, types.ScheduleDaily)

	root := NewAgentThought(a, "root", 0)
	require.NoError(t, s.CreateThought(ctx, root))
	for _, c := range []string{"one", "two"} {
		require.NoError(t, s.CreateThought(ctx, NewAgentThought(a, c, root.ID)))
	}

	children, err := s.ChildThoughts(ctx, root.ID)
	require.NoError(t, err)
	require.Len(t, children, 2)
	assert.Equal(t, root.ID, children[0].ParentID)
	assert.Equal(t, "one", children[0].Content)
}

func TestTasks_DependenciesAndIssues(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	a := newTestAgent(t, s, types.ScheduleDaily)
	th := NewAgentThought(a, "plan", 0)
	require.NoError(t, s.CreateThought(ctx, th))

	first := &types.Task{Name: "Hire", ThoughtID: th.ID, AgentID: a.ID, OwnerID: a.OwnerID}
	second := &types.Task{Name: "Onboard", DependsOn: []string{"Hire", "Budget"}, ThoughtID: th.ID, AgentID: a.ID, OwnerID: a.OwnerID}
	require.NoError(t, s.CreateTask(ctx, first))
	require.NoError(t, s.CreateTask(ctx, second))
	sub := &types.Task{Name: "Laptop", ParentID: second.ID, ThoughtID: th.ID, OwnerID: a.OwnerID}
	require.NoError(t, s.CreateTask(ctx, sub))

	require.NoError(t, s.AddTaskDependency(ctx, second.ID, first.ID))
	require.NoError(t, s.AddDependencyIssue(ctx, types.DependencyIssue{TaskID: second.ID, Kind: types.IssueUnresolved, Reference: "Budget"}))
	require.NoError(t, s.AddDependencyIssue(ctx, types.DependencyIssue{TaskID: second.ID, Kind: types.IssueUnresolved, Reference: "Budget"}))

	tasks, err := s.TasksByThought(ctx, th.ID)
	require.NoError(t, err)
	require.Len(t, tasks, 3)
	assert.Equal(t, []string{}, tasks[0].DependsOn)
	assert.Equal(t, []string{"Hire", "Budget"}, tasks[1].DependsOn)
	assert.Equal(t, second.ID, tasks[2].ParentID)

	edges, err := s.TaskDependencies(ctx, th.ID)
	require.NoError(t, err)
	assert.Equal(t, map[int64][]int64{second.ID: {first.ID}}, edges)

	issues, err := s.DependencyIssues(ctx, th.ID)
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Equal(t, "Onboard", issues[0].TaskName)
}

func TestResearch_CompletesOnce(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	a := newTestAgent(t, s, types.ScheduleDaily)

	r := &types.Research{AgentID: a.ID, Name: "pricing"}
	require.NoError(t, s.CreateResearch(ctx, r))

	open, err := s.IncompleteResearch(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, open, 1)

	ok, err := s.MarkResearchCompleted(ctx, r.ID, "report")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.MarkResearchCompleted(ctx, r.ID, "again")
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := s.GetResearch(ctx, r.ID)
	require.NoError(t, err)
	assert.True(t, got.Completed)
	assert.Equal(t, "report", got.Response)

	open, err = s.IncompleteResearch(ctx, a.ID)
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestAnswers_FillOnceAndSentinel(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	a := newTestAgent(t, s, types.ScheduleDaily)
	r := &types.Research{AgentID: a.ID, Name: "r"}
	require.NoError(t, s.CreateResearch(ctx, r))

	q1 := &types.Question{Content: "who?", ForInternet: true, ResearchID: r.ID, AgentID: a.ID, OwnerID: a.OwnerID}
	q2 := &types.Question{Content: "why?", ForInternet: true, ResearchID: r.ID, AgentID: a.ID, OwnerID: a.OwnerID}
	require.NoError(t, s.CreateQuestion(ctx, q1))
	require.NoError(t, s.CreateQuestion(ctx, q2))

	a1 := &types.Answer{QuestionID: q1.ID, RequestID: "job-1", Source: types.SourceInternet, AgentID: a.ID}
	a2 := &types.Answer{QuestionID: q2.ID, RequestID: "job-2", Source: types.SourceInternet, AgentID: a.ID}
	require.NoError(t, s.CreateAnswer(ctx, a1))
	require.NoError(t, s.CreateAnswer(ctx, a2))

	pending, err := s.PendingAnswers(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "who?", pending[0].Question)

	filled, err := s.FillAnswer(ctx, a1.ID, "somebody")
	require.NoError(t, err)
	assert.True(t, filled)
	filled, err = s.FillAnswer(ctx, a1.ID, "somebody else")
	require.NoError(t, err)
	assert.False(t, filled)

	filled, err = s.MarkAnswerErrored(ctx, a2.ID, q2.ID)
	require.NoError(t, err)
	assert.True(t, filled)

	pending, err = s.PendingAnswers(ctx, a.ID)
	require.NoError(t, err)
	assert.Empty(t, pending)

	qa, err := s.ResearchQA(ctx, r.ID)
	require.NoError(t, err)
	require.Len(t, qa, 2)
	assert.Equal(t, "somebody", qa[0].Answers[0].Content)
	assert.Equal(t, types.ErrorSentinel, qa[1].Answers[0].Content)
	assert.Equal(t, types.ErrorSentinel, qa[1].Question.Error)
}

func TestOpenHumanQuestions(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	a := newTestAgent(t, s, types.ScheduleDaily)

	q := &types.Question{Content: "what is your budget?", ForHuman: true, AgentID: a.ID, OwnerID: a.OwnerID}
	require.NoError(t, s.CreateQuestion(ctx, q))

	open, err := s.OpenHumanQuestions(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, open, 1)

	require.NoError(t, s.CreateAnswer(ctx, &types.Answer{QuestionID: q.ID, Content: "10k", Source: types.SourceUser, AgentID: a.ID}))
	open, err = s.OpenHumanQuestions(ctx, a.ID)
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestLikes(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	a := newTestAgent(t, s, types.ScheduleDaily)
	th := NewAgentThought(a, "x", 0)
	require.NoError(t, s.CreateThought(ctx, th))

	liked, err := s.HasLike(ctx, a.ID, th.ID)
	require.NoError(t, err)
	assert.False(t, liked)

	require.NoError(t, s.RecordLike(ctx, a.ID, th.ID))
	require.NoError(t, s.RecordLike(ctx, a.ID, th.ID))
	liked, err = s.HasLike(ctx, a.ID, th.ID)
	require.NoError(t, err)
	assert.True(t, liked)
}

func TestLeases(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.AcquireLease(ctx, 7, "worker-a", time.Minute))
	require.NoError(t, s.AcquireLease(ctx, 7, "worker-a", time.Minute), "holder may renew")

	err := s.AcquireLease(ctx, 7, "worker-b", time.Minute)
	assert.True(t, errors.Is(err, types.ErrAgentLocked))

	require.NoError(t, s.ReleaseLease(ctx, 7, "worker-a"))
	require.NoError(t, s.AcquireLease(ctx, 7, "worker-b", -time.Second))

	// An expired lease can be stolen.
	require.NoError(t, s.AcquireLease(ctx, 7, "worker-c", time.Minute))
}

func TestWithTx_RollsBack(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	a := newTestAgent(t, s, types.ScheduleDaily)

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(q *Queries) error {
		if err := q.CreateThought(ctx, NewAgentThought(a, "rolled back", 0)); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	n, err := s.CountThoughts(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSearchThoughts_Scan(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	a := newTestAgent(t, s, types.ScheduleDaily)

	vecs := map[string][]float32{
		"same":       {1, 0, 0},
		"orthogonal": {0, 1, 0},
		"close":      {0.9, 0.1, 0},
	}
	for content, v := range vecs {
		th := NewAgentThought(a, content, 0)
		require.NoError(t, s.CreateThought(ctx, th))
		require.NoError(t, s.StoreThoughtEmbedding(ctx, th, v, "test"))
	}
	other := &types.Thought{Content: "other owner", OwnerID: "owner-2"}
	require.NoError(t, s.CreateThought(ctx, other))
	require.NoError(t, s.StoreThoughtEmbedding(ctx, other, []float32{1, 0, 0}, "test"))

	matches, err := s.SearchThoughts(ctx, a.OwnerID, []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "same", matches[0].Content)
	assert.InDelta(t, 1.0, matches[0].Score, 1e-6)
	assert.Equal(t, "close", matches[1].Content)
}

func TestFloat32Encoding(t *testing.T) {
	in := []float32{0, 1.5, -2.25, 3.4e38}
	assert.Equal(t, in, decodeFloat32s(encodeFloat32s(in)))
}

func TestCreateBackupCopiesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "submind.db")
	require.NoError(t, os.WriteFile(path, []byte("sqlite bytes"), 0o644))

	backup, err := CreateBackup(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(backup, path+".backup_"))

	data, err := os.ReadFile(backup)
	require.NoError(t, err)
	assert.Equal(t, "sqlite bytes", string(data))
}

func TestSetAnswerRequest_OnlyForUnsubmittedAnswers(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	a := newTestAgent(t, s, types.ScheduleDaily)
	r := &types.Research{AgentID: a.ID, Name: "r"}
	require.NoError(t, s.CreateResearch(ctx, r))
	q := &types.Question{Content: "who?", ForInternet: true, ResearchID: r.ID, AgentID: a.ID, OwnerID: a.OwnerID}
	require.NoError(t, s.CreateQuestion(ctx, q))

	unsubmitted := &types.Answer{QuestionID: q.ID, Source: types.SourceInternet, AgentID: a.ID}
	require.NoError(t, s.CreateAnswer(ctx, unsubmitted))

	ok, err := s.SetAnswerRequest(ctx, unsubmitted.ID, "job-7")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.SetAnswerRequest(ctx, unsubmitted.ID, "job-8")
	require.NoError(t, err)
	assert.False(t, ok)

	pending, err := s.PendingAnswers(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "job-7", pending[0].RequestID)

	_, err = s.SetAnswerRequest(ctx, unsubmitted.ID, "")
	assert.Error(t, err)
}
