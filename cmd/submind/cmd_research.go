package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"submind/internal/types"
)

// researchCmd groups research campaign commands
var researchCmd = &cobra.Command{
	Use:   "research",
	Short: "Inspect and complete research campaigns",
}

var researchUpdateCmd = &cobra.Command{
	Use:   "update",
	Short: "Complete every campaign whose answers are all in",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext()
		defer cancel()

		a, err := openEngine(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		n, err := a.engine.UpdateResearch(ctx)
		fmt.Fprintf(cmd.OutOrStdout(), "%d research campaigns completed\n", n)
		return err
	},
}

var researchShowCmd = &cobra.Command{
	Use:   "show [research-id]",
	Short: "Show a campaign with its questions and answers",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0], "research")
		if err != nil {
			return err
		}
		ctx, cancel := commandContext()
		defer cancel()

		a, err := openStores()
		if err != nil {
			return err
		}
		defer a.Close()

		r, err := a.store.GetResearch(ctx, id)
		if err != nil {
			return err
		}
		qa, err := a.store.ResearchQA(ctx, id)
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), renderMarkdown(researchMarkdown(r, qa)))
		return nil
	},
}

// askCmd records a question for the founder
var askCmd = &cobra.Command{
	Use:   "ask [agent-id] [question]",
	Short: "Record a question only the founder can answer",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		agentID, err := parseID(args[0], "agent")
		if err != nil {
			return err
		}
		ctx, cancel := commandContext()
		defer cancel()

		a, err := openEngine(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		agent, err := a.store.GetAgent(ctx, agentID)
		if err != nil {
			return err
		}
		qu, err := a.engine.AskFounder(ctx, agent, strings.Join(args[1:], " "))
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "question %d recorded\n", qu.ID)
		return nil
	},
}

// answerCmd records the founder's answer
var answerCmd = &cobra.Command{
	Use:   "answer [question-id] [text]",
	Short: "Answer a question addressed to the founder",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		questionID, err := parseID(args[0], "question")
		if err != nil {
			return err
		}
		ctx, cancel := commandContext()
		defer cancel()

		a, err := openEngine(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		answer, err := a.engine.AnswerQuestion(ctx, questionID, strings.Join(args[1:], " "))
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "answer %d recorded\n", answer.ID)
		return nil
	},
}

// reflectCmd asks an agent to reflect on a thought
var reflectCmd = &cobra.Command{
	Use:   "reflect [agent-id] [thought-id] [reasoning]",
	Short: "Have an agent reflect on one of its thoughts",
	Args:  cobra.MinimumNArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		agentID, err := parseID(args[0], "agent")
		if err != nil {
			return err
		}
		thoughtID, err := parseID(args[1], "thought")
		if err != nil {
			return err
		}
		ctx, cancel := commandContext()
		defer cancel()

		a, err := openEngine(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		agent, err := a.store.GetAgent(ctx, agentID)
		if err != nil {
			return err
		}
		if agent.Status == types.StatusCompleted {
			return fmt.Errorf("agent %d is completed", agentID)
		}
		thought, err := a.store.GetThought(ctx, thoughtID)
		if err != nil {
			return err
		}
		reply, err := a.engine.Reflect(ctx, agent, thought, strings.Join(args[2:], " "))
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), renderMarkdown(reply.Content))
		return nil
	},
}

func init() {
	researchCmd.AddCommand(researchUpdateCmd, researchShowCmd)
}
