// Package scheduler invokes agent runs per schedule tier. Distinct agents may
// run in parallel; one agent never runs twice at once, within a process or
// across processes sharing the database.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"submind/internal/config"
	"submind/internal/logging"
	"submind/internal/submind"
	"submind/internal/types"
)

// AgentStore is the part of the relational store the scheduler needs.
type AgentStore interface {
	RunnableAgents(ctx context.Context, schedule types.Schedule) ([]*types.Agent, error)
	GetAgent(ctx context.Context, id int64) (*types.Agent, error)
	AcquireLease(ctx context.Context, agentID int64, holder string, lease time.Duration) error
	ReleaseLease(ctx context.Context, agentID int64, holder string) error
}

// Runner executes agent runs. *submind.Engine implements it.
type Runner interface {
	RunAgent(ctx context.Context, agent *types.Agent) (*submind.RunReport, error)
	UpdateResearch(ctx context.Context) (int, error)
}

// TierReport summarizes one tier invocation.
type TierReport struct {
	Schedule          types.Schedule
	Runs              []*submind.RunReport
	Locked            []int64
	ResearchCompleted int
	Errors            []error
}

// Err joins every failure of the invocation.
func (r *TierReport) Err() error {
	errs := append([]error(nil), r.Errors...)
	for _, run := range r.Runs {
		if err := run.Err(); err != nil {
			errs = append(errs, fmt.Errorf("agent %d: %w", run.AgentID, err))
		}
	}
	return errors.Join(errs...)
}

// Scheduler runs tiers against a Runner.
type Scheduler struct {
	store  AgentStore
	runner Runner
	cfg    config.SchedulerConfig
	holder string
	locks  *keyedMutex
}

// New returns a Scheduler. The lease holder id is unique per process.
func New(store AgentStore, runner Runner, cfg config.SchedulerConfig) *Scheduler {
	host, _ := os.Hostname()
	if cfg.Parallelism < 1 {
		cfg.Parallelism = 1
	}
	return &Scheduler{
		store:  store,
		runner: runner,
		cfg:    cfg,
		holder: fmt.Sprintf("%s-%d-%s", host, os.Getpid(), uuid.NewString()[:8]),
		locks:  newKeyedMutex(),
	}
}

// RunTier runs every runnable agent on schedule, then completes any research
// campaign whose answers are all in.
func (s *Scheduler) RunTier(ctx context.Context, schedule types.Schedule) (*TierReport, error) {
	timer := logging.StartTimer(logging.CategoryScheduler, "RunTier:"+string(schedule))
	defer timer.StopWithInfo()

	agents, err := s.store.RunnableAgents(ctx, schedule)
	if err != nil {
		return nil, err
	}
	logging.Scheduler("Tier %s: %d runnable agents", schedule, len(agents))

	report := &TierReport{Schedule: schedule}
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(s.cfg.Parallelism)
	for _, agent := range agents {
		g.Go(func() error {
			run, err := s.runLocked(ctx, agent)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case errors.Is(err, types.ErrAgentLocked):
				report.Locked = append(report.Locked, agent.ID)
			case err != nil:
				report.Errors = append(report.Errors, fmt.Errorf("agent %d: %w", agent.ID, err))
			}
			if run != nil {
				report.Runs = append(report.Runs, run)
			}
			return nil
		})
	}
	_ = g.Wait()

	s.updateResearch(ctx, report)
	return report, nil
}

// RunAgent runs a single agent regardless of its schedule, then completes
// ready research campaigns.
func (s *Scheduler) RunAgent(ctx context.Context, agentID int64) (*TierReport, error) {
	agent, err := s.store.GetAgent(ctx, agentID)
	if err != nil {
		return nil, err
	}
	report := &TierReport{Schedule: agent.Schedule}
	run, err := s.runLocked(ctx, agent)
	if run != nil {
		report.Runs = append(report.Runs, run)
	}
	if err != nil {
		if errors.Is(err, types.ErrAgentLocked) {
			return report, err
		}
		report.Errors = append(report.Errors, err)
	}
	s.updateResearch(ctx, report)
	return report, nil
}

func (s *Scheduler) updateResearch(ctx context.Context, report *TierReport) {
	n, err := s.runner.UpdateResearch(ctx)
	report.ResearchCompleted = n
	if err != nil {
		report.Errors = append(report.Errors, fmt.Errorf("update research: %w", err))
	}
}

// runLocked holds both the in-process lock and the database lease for the
// duration of the run. The agent is re-read once the lease is held.
func (s *Scheduler) runLocked(ctx context.Context, agent *types.Agent) (*submind.RunReport, error) {
	if !s.locks.TryLock(agent.ID) {
		logging.SchedulerDebug("Agent %d already running in this process", agent.ID)
		return nil, types.ErrAgentLocked
	}
	defer s.locks.Unlock(agent.ID)

	if err := s.store.AcquireLease(ctx, agent.ID, s.holder, s.cfg.GetLockLease()); err != nil {
		if errors.Is(err, types.ErrAgentLocked) {
			logging.SchedulerWarn("Agent %d is leased by another process", agent.ID)
		}
		return nil, err
	}
	defer func() {
		if err := s.store.ReleaseLease(context.WithoutCancel(ctx), agent.ID, s.holder); err != nil {
			logging.SchedulerError("Release lease for agent %d: %v", agent.ID, err)
		}
	}()

	// The listed copy may predate a run another holder just finished.
	fresh, err := s.store.GetAgent(ctx, agent.ID)
	if err != nil {
		return nil, err
	}
	if fresh.Status == types.StatusCompleted {
		logging.SchedulerDebug("Agent %d completed before the lease was taken, skipping", agent.ID)
		return &submind.RunReport{AgentID: agent.ID, Skipped: true}, nil
	}
	return s.runner.RunAgent(ctx, fresh)
}

// =============================================================================
// DAEMON
// =============================================================================

// Run ticks every configured tier until ctx is done. When a watch path is set,
// changes under it also trigger the INSTANT tier.
func (s *Scheduler) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	for tier := range s.cfg.Tiers {
		interval := s.cfg.TierInterval(tier)
		if interval <= 0 {
			continue
		}
		schedule := types.Schedule(tier)
		g.Go(func() error {
			s.tick(gctx, schedule, interval)
			return nil
		})
	}

	if s.cfg.WatchPath != "" {
		w, err := newWatcher(s.cfg.WatchPath, s.cfg.GetDebounce())
		if err != nil {
			return fmt.Errorf("watch %s: %w", s.cfg.WatchPath, err)
		}
		g.Go(func() error {
			return w.run(gctx, func() { s.invoke(gctx, types.ScheduleInstant) })
		})
	}

	logging.Scheduler("Daemon started (holder %s, parallelism %d)", s.holder, s.cfg.Parallelism)
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (s *Scheduler) tick(ctx context.Context, schedule types.Schedule, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.invoke(ctx, schedule)
		}
	}
}

func (s *Scheduler) invoke(ctx context.Context, schedule types.Schedule) {
	report, err := s.RunTier(ctx, schedule)
	if err != nil {
		logging.SchedulerError("Tier %s failed: %v", schedule, err)
		return
	}
	if err := report.Err(); err != nil {
		logging.SchedulerWarn("Tier %s finished with errors: %v", schedule, err)
	}
}
