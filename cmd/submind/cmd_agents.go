package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"submind/internal/store"
	"submind/internal/types"
)

var (
	agentName        string
	agentDescription string
	agentOwner       string
	agentSchedule    string
	agentDirective   string
	agentDeadline    time.Duration
)

// agentsCmd groups agent management
var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "Manage submind agents",
}

var agentsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List agents",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext()
		defer cancel()

		a, err := openStores()
		if err != nil {
			return err
		}
		defer a.Close()

		agents, err := a.store.ListAgents(ctx)
		if err != nil {
			return err
		}
		if len(agents) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), mutedStyle.Render("no agents"))
			return nil
		}
		fmt.Fprint(cmd.OutOrStdout(), renderTable(
			[]string{"ID", "NAME", "OWNER", "STATUS", "SCHEDULE", "DEADLINE"},
			agentRows(agents)))
		return nil
	},
}

var agentsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an agent",
	Long: `Creates a READY agent. Its first run derives a goal and research topics
from the directive.

Example:
  submind agents create --name scout --owner founder-1 \
    --directive "Find our first paying market" --schedule four_hour --deadline 168h`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext()
		defer cancel()

		schedule, err := types.ParseSchedule(agentSchedule)
		if err != nil {
			return err
		}

		a, err := openStores()
		if err != nil {
			return err
		}
		defer a.Close()

		agent := &types.Agent{
			Name:        agentName,
			Description: agentDescription,
			OwnerID:     agentOwner,
			Status:      types.StatusReady,
			Schedule:    schedule,
		}
		if agentDeadline > 0 {
			deadline := time.Now().Add(agentDeadline)
			agent.LastRun = &deadline
		}
		if strings.TrimSpace(agentDirective) != "" {
			doc, err := a.docs.GetOrCreate(ctx, agentOwner, agentDirective, "")
			if err != nil {
				return err
			}
			agent.DirectiveUUID = doc.UUID
		}

		if err := a.store.CreateAgent(ctx, agent); err != nil {
			return err
		}
		logger.Info("Agent created", zap.Int64("id", agent.ID), zap.String("schedule", string(schedule)))
		fmt.Fprintf(cmd.OutOrStdout(), "created agent %d (%s)\n", agent.ID, agent.Name)
		return nil
	},
}

// thoughtCmd groups thought input
var thoughtCmd = &cobra.Command{
	Use:   "thought",
	Short: "Feed thoughts to an agent",
}

var thoughtAgentID int64

var thoughtAddCmd = &cobra.Command{
	Use:   "add [text]",
	Short: "Add a pending thought for an agent",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext()
		defer cancel()

		a, err := openStores()
		if err != nil {
			return err
		}
		defer a.Close()

		agent, err := a.store.GetAgent(ctx, thoughtAgentID)
		if err != nil {
			return err
		}
		t := store.NewAgentThought(agent, strings.Join(args, " "), 0)
		err = a.store.WithTx(ctx, func(q *store.Queries) error {
			if err := q.CreateThought(ctx, t); err != nil {
				return err
			}
			return q.AddPendingThought(ctx, agent.ID, t.ID)
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "thought %d queued for agent %d\n", t.ID, agent.ID)
		return nil
	},
}

func parseID(s, what string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s id %q", what, s)
	}
	return id, nil
}

func init() {
	agentsCreateCmd.Flags().StringVar(&agentName, "name", "", "Agent name (required)")
	agentsCreateCmd.Flags().StringVar(&agentDescription, "description", "", "What the agent is for")
	agentsCreateCmd.Flags().StringVar(&agentOwner, "owner", "", "Owner (founder) id (required)")
	agentsCreateCmd.Flags().StringVar(&agentSchedule, "schedule", "daily", "Tier: instant, four_hour, eight_hour, daily")
	agentsCreateCmd.Flags().StringVar(&agentDirective, "directive", "", "Directive document text")
	agentsCreateCmd.Flags().DurationVar(&agentDeadline, "deadline", 0, "Finish after this long (0 = never)")
	agentsCreateCmd.MarkFlagRequired("name")
	agentsCreateCmd.MarkFlagRequired("owner")
	agentsCmd.AddCommand(agentsListCmd, agentsCreateCmd)

	thoughtAddCmd.Flags().Int64Var(&thoughtAgentID, "agent", 0, "Agent id (required)")
	thoughtAddCmd.MarkFlagRequired("agent")
	thoughtCmd.AddCommand(thoughtAddCmd)
}
