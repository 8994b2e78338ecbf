package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"submind/internal/types"
)

var (
	runTier    string
	runAgentID int64
)

// runCmd performs one scheduled invocation
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run every agent of a tier once",
	Long: `Runs each runnable agent on the tier, then completes research campaigns
whose answers are all in. With --agent, runs only that agent.

Examples:
  submind run --tier instant
  submind run --agent 3`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext()
		defer cancel()

		a, err := openEngine(ctx)
		if err != nil {
			return err
		}
		defer a.Close()
		s := newScheduler(a)

		if runAgentID > 0 {
			report, err := s.RunAgent(ctx, runAgentID)
			if err != nil {
				return err
			}
			return reportTier(cmd, report)
		}

		schedule, err := types.ParseSchedule(runTier)
		if err != nil {
			return err
		}
		report, err := s.RunTier(ctx, schedule)
		if err != nil {
			return err
		}
		return reportTier(cmd, report)
	},
}

// daemonCmd keeps every tier ticking
var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run tiers on their intervals until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		timeout = 0
		ctx, cancel := commandContext()
		defer cancel()

		a, err := openEngine(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		logger.Info("Daemon starting", zap.Any("tiers", cfg.Scheduler.Tiers), zap.String("watch", cfg.Scheduler.WatchPath))
		return newScheduler(a).Run(ctx)
	},
}

// statusCmd shows row counts
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show store statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext()
		defer cancel()

		a, err := openStores()
		if err != nil {
			return err
		}
		defer a.Close()

		stats, err := a.store.Stats(ctx)
		if err != nil {
			return err
		}
		names := make([]string, 0, len(stats))
		for name := range stats {
			names = append(names, name)
		}
		sort.Strings(names)

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s (vector search: %v)\n", a.store.Path(), a.store.VecEnabled())
		for _, name := range names {
			fmt.Fprintf(out, "  %-24s %d\n", name, stats[name])
		}
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&runTier, "tier", "daily", "Tier to run: instant, four_hour, eight_hour, daily")
	runCmd.Flags().Int64Var(&runAgentID, "agent", 0, "Run a single agent by id")
}
