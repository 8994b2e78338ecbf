package scheduler

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"submind/internal/config"
	"submind/internal/submind"
	"submind/internal/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeStore struct {
	mu      sync.Mutex
	agents  []*types.Agent
	leases  map[int64]string
	foreign map[int64]bool
}

func newFakeStore(agents ...*types.Agent) *fakeStore {
	return &fakeStore{agents: agents, leases: make(map[int64]string), foreign: make(map[int64]bool)}
}

func (f *fakeStore) RunnableAgents(_ context.Context, schedule types.Schedule) ([]*types.Agent, error) {
	var out []*types.Agent
	for _, a := range f.agents {
		if a.Schedule == schedule && a.Status != types.StatusCompleted {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeStore) GetAgent(_ context.Context, id int64) (*types.Agent, error) {
	for _, a := range f.agents {
		if a.ID == id {
			return a, nil
		}
	}
	return nil, types.ErrNotFound
}

func (f *fakeStore) AcquireLease(_ context.Context, agentID int64, holder string, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.foreign[agentID] {
		return types.ErrAgentLocked
	}
	f.leases[agentID] = holder
	return nil
}

func (f *fakeStore) ReleaseLease(_ context.Context, agentID int64, holder string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.leases[agentID] == holder {
		delete(f.leases, agentID)
	}
	return nil
}

type fakeRunner struct {
	mu        sync.Mutex
	runs      []int64
	updates   int
	active    int32
	peak      int32
	hold      chan struct{}
	started   chan int64
	researchN int
}

func (f *fakeRunner) RunAgent(_ context.Context, agent *types.Agent) (*submind.RunReport, error) {
	n := atomic.AddInt32(&f.active, 1)
	defer atomic.AddInt32(&f.active, -1)
	for {
		p := atomic.LoadInt32(&f.peak)
		if n <= p || atomic.CompareAndSwapInt32(&f.peak, p, n) {
			break
		}
	}
	if f.started != nil {
		f.started <- agent.ID
	}
	if f.hold != nil {
		<-f.hold
	}
	f.mu.Lock()
	f.runs = append(f.runs, agent.ID)
	f.mu.Unlock()
	return &submind.RunReport{AgentID: agent.ID, Processed: 1}, nil
}

func (f *fakeRunner) UpdateResearch(context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates++
	return f.researchN, nil
}

func agentsOn(schedule types.Schedule, ids ...int64) []*types.Agent {
	out := make([]*types.Agent, len(ids))
	for i, id := range ids {
		out[i] = &types.Agent{ID: id, Status: types.StatusActive, Schedule: schedule}
	}
	return out
}

func TestRunTier_RunsEveryAgentThenUpdatesResearchOnce(t *testing.T) {
	agents := append(agentsOn(types.ScheduleDaily, 1, 2, 3), agentsOn(types.ScheduleInstant, 4)...)
	agents[2].Status = types.StatusCompleted
	store := newFakeStore(agents...)
	runner := &fakeRunner{researchN: 2}

	s := New(store, runner, config.DefaultSchedulerConfig())
	report, err := s.RunTier(context.Background(), types.ScheduleDaily)
	require.NoError(t, err)
	require.NoError(t, report.Err())

	assert.ElementsMatch(t, []int64{1, 2}, runner.runs)
	assert.Equal(t, 1, runner.updates)
	assert.Equal(t, 2, report.ResearchCompleted)
	assert.Empty(t, store.leases, "leases released")
}

func TestRunTier_BoundsParallelism(t *testing.T) {
	store := newFakeStore(agentsOn(types.ScheduleDaily, 1, 2, 3, 4, 5, 6)...)
	runner := &fakeRunner{hold: make(chan struct{}), started: make(chan int64, 6)}
	cfg := config.DefaultSchedulerConfig()
	cfg.Parallelism = 2

	s := New(store, runner, cfg)
	done := make(chan *TierReport)
	go func() {
		report, _ := s.RunTier(context.Background(), types.ScheduleDaily)
		done <- report
	}()

	<-runner.started
	<-runner.started
	select {
	case id := <-runner.started:
		t.Fatalf("agent %d started beyond the limit", id)
	case <-time.After(50 * time.Millisecond):
	}
	close(runner.hold)

	report := <-done
	assert.Len(t, report.Runs, 6)
	assert.LessOrEqual(t, atomic.LoadInt32(&runner.peak), int32(2))
}

func TestRunAgent_SameAgentNeverOverlaps(t *testing.T) {
	store := newFakeStore(agentsOn(types.ScheduleDaily, 7)...)
	runner := &fakeRunner{hold: make(chan struct{}), started: make(chan int64, 1)}
	s := New(store, runner, config.DefaultSchedulerConfig())

	done := make(chan error)
	go func() {
		_, err := s.RunAgent(context.Background(), 7)
		done <- err
	}()
	<-runner.started

	_, err := s.RunAgent(context.Background(), 7)
	assert.ErrorIs(t, err, types.ErrAgentLocked)

	close(runner.hold)
	require.NoError(t, <-done)
	assert.Equal(t, []int64{7}, runner.runs)
}

func TestRunTier_ForeignLeaseSkipsAgent(t *testing.T) {
	store := newFakeStore(agentsOn(types.ScheduleDaily, 1, 2)...)
	store.foreign[2] = true
	runner := &fakeRunner{}

	s := New(store, runner, config.DefaultSchedulerConfig())
	report, err := s.RunTier(context.Background(), types.ScheduleDaily)
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, report.Locked)
	assert.Equal(t, []int64{1}, runner.runs)
	assert.NoError(t, report.Err())
}

func TestRunAgent_NotFound(t *testing.T) {
	s := New(newFakeStore(), &fakeRunner{}, config.DefaultSchedulerConfig())
	_, err := s.RunAgent(context.Background(), 99)
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestKeyedMutex(t *testing.T) {
	k := newKeyedMutex()
	assert.True(t, k.TryLock(1))
	assert.False(t, k.TryLock(1))
	assert.True(t, k.TryLock(2))
	k.Unlock(1)
	assert.True(t, k.TryLock(1))
}

func TestRun_TicksUntilCancelled(t *testing.T) {
	store := newFakeStore(agentsOn(types.ScheduleInstant, 1)...)
	runner := &fakeRunner{started: make(chan int64, 16)}
	cfg := config.DefaultSchedulerConfig()
	cfg.Tiers = map[string]string{config.TierInstant: "10ms"}

	s := New(store, runner, cfg)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- s.Run(ctx) }()

	<-runner.started
	<-runner.started
	cancel()
	require.NoError(t, <-done)
}

func TestWatcher_DebouncesBurst(t *testing.T) {
	dir := t.TempDir()
	w, err := newWatcher(dir, 30*time.Millisecond)
	require.NoError(t, err)

	var fired int32
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- w.run(ctx, func() { atomic.AddInt32(&fired, 1) }) }()

	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "inbox.txt"), []byte{byte(i)}, 0644))
	}
	assert.Eventually(t, func() bool { return atomic.LoadInt32(&fired) == 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&fired))

	cancel()
	require.NoError(t, <-done)
}
