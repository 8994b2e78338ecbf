package submind

import (
	"fmt"
	"strings"

	"submind/internal/types"
)

// =============================================================================
// STRUCTURED OUTPUT SCHEMAS
// =============================================================================

var classifySchema = &types.Schema{
	Name:        "classify_thought",
	Description: "Decide how the submind responds to a thought.",
	Parameters: map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"type": map[string]interface{}{
				"type": "string",
				"enum": []string{string(ResponseResearch), string(ResponseQuestion), string(ResponseAction)},
			},
			"message": map[string]interface{}{
				"type":        "string",
				"description": "Research topic, question text or action, depending on type.",
			},
		},
		"required": []string{"type", "message"},
	},
}

var researchSchema = &types.Schema{
	Name:        "research_questions",
	Description: "Questions to research a topic, plus a summary of the research.",
	Parameters: map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"research": map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"research_questions": map[string]interface{}{
						"type":  "array",
						"items": map[string]interface{}{"type": "string"},
					},
					"summary": map[string]interface{}{"type": "string"},
				},
				"required": []string{"research_questions", "summary"},
			},
		},
		"required": []string{"research"},
	},
}

var classifyActionSchema = &types.Schema{
	Name:        "classify_action",
	Description: "Whether an action takes one step or many.",
	Parameters: map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"classification": map[string]interface{}{
				"type": "string",
				"enum": []string{string(LongTerm), string(ShortTerm)},
			},
		},
		"required": []string{"classification"},
	},
}

var subtaskSchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"name":      map[string]interface{}{"type": "string"},
		"details":   map[string]interface{}{"type": "string"},
		"dependsOn": map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
	},
	"required": []string{"name", "details"},
}

var tasksSchema = &types.Schema{
	Name:        "plan_tasks",
	Description: "Tasks and subtasks that carry out a plan.",
	Parameters: map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"tasks": map[string]interface{}{
				"type": "array",
				"items": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"name":      map[string]interface{}{"type": "string"},
						"details":   map[string]interface{}{"type": "string"},
						"dependsOn": map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
						"subtasks":  map[string]interface{}{"type": "array", "items": subtaskSchema},
					},
					"required": []string{"name", "details"},
				},
			},
		},
		"required": []string{"tasks"},
	},
}

var initialSchema = &types.Schema{
	Name:        "initial_directive",
	Description: "Goal, research topics, expected output and challenges for a new submind.",
	Parameters: map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"goal":            map[string]interface{}{"type": "string"},
			"research_topics": map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
			"output":          map[string]interface{}{"type": "string"},
			"challenges":      map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
		},
		"required": []string{"goal", "research_topics", "output", "challenges"},
	},
}

// =============================================================================
// PROMPTS
// =============================================================================

func memoryPreamble(m *memory) string {
	var b strings.Builder
	b.WriteString("You are a submind: a background thinker working for a founder.\n\n")
	fmt.Fprintf(&b, "ABOUT THE FOUNDER:\n%s\n\n", m.Founder)
	fmt.Fprintf(&b, "THE FOUNDER'S VALUES:\n%s\n\n", m.Values)
	fmt.Fprintf(&b, "YOUR CURRENT UNDERSTANDING:\n%s\n\n", m.Mind)
	return b.String()
}

func bullets(items []string) string {
	if len(items) == 0 {
		return "(none)"
	}
	var b strings.Builder
	for _, it := range items {
		fmt.Fprintf(&b, "- %s\n", it)
	}
	return strings.TrimRight(b.String(), "\n")
}

func classifyPrompt(m *memory, thought string) string {
	return memoryPreamble(m) + fmt.Sprintf(`A new thought arrived:
%s

Choose exactly one response:
- research: the thought needs outside information. Message is the research topic.
- question: you need to think further or ask something. Message is the question.
- action: something should be done. Message is the action to take.

Respond as JSON with "type" and "message".`, thought)
}

func researchPrompt(m *memory, thought, topic string) string {
	return memoryPreamble(m) + fmt.Sprintf(`THOUGHT:
%s

RESEARCH TOPIC:
%s

List the questions you would search the internet for to research this topic.
Skip questions only the founder could answer. Also write a short summary of
what this research is meant to find out.`, thought, topic)
}

func completeResearchPrompt(m *memory, name string, qa []string) string {
	return memoryPreamble(m) + fmt.Sprintf(`RESEARCH:
%s

QUESTIONS AND ANSWERS:
%s

Summarize these findings into a report the founder can use. Call out what is
still unknown.`, name, strings.Join(qa, "\n\n"))
}

func classifyActionPrompt(action string) string {
	return fmt.Sprintf(`ACTION:
%s

Classify the action. long-term actions take several steps to complete.
short-term actions are done in a single step.`, action)
}

func planPrompt(thought, action string, related []string) string {
	return fmt.Sprintf(`THOUGHT:
%s

ACTION:
%s

RELATED THOUGHTS:
%s

Write a markdown action plan that carries out the action. Break it into
concrete steps and list the metrics to track progress.`, thought, action, bullets(related))
}

func tasksPrompt(plan string) string {
	return fmt.Sprintf(`PLAN:
%s

Turn the plan into tasks. Give each task a short unique name and details.
Use dependsOn to list the names of tasks that must finish first. Large tasks
may carry subtasks.`, plan)
}

func initialPrompt(agent *types.Agent, directive string) string {
	return fmt.Sprintf(`You are starting a new submind.

NAME: %s
DESCRIPTION: %s

DIRECTIVE:
%s

State the goal, the topics to research, the output the founder expects, and
the challenges you foresee.`, agent.Name, agent.Description, directive)
}

func planningPrompt(goal, directive string, topics []string) string {
	return fmt.Sprintf(`GOAL:
%s

DOCUMENT:
%s

INITIAL THOUGHTS:
%s

Write a plan for reaching the goal. Say what to learn first and how the
research topics build on each other.`, goal, directive, bullets(topics))
}

func finalPrompt(agent *types.Agent, m *memory, related []string) string {
	return fmt.Sprintf(`You are finishing the submind %q.

DESCRIPTION: %s

DIRECTIVE:
%s

WHAT YOU KNOW:
%s

RELATED THOUGHTS:
%s

Write the final report of your findings for the founder.`,
		agent.Name, agent.Description, m.Directive, m.Mind, bullets(related))
}

func memoryUpdatePrompt(m *memory, answers []string) string {
	return fmt.Sprintf(`YOUR CURRENT UNDERSTANDING:
%s

NEW ANSWERS:
%s

Rewrite your understanding so it includes what the new answers tell you.
Keep what is still true. Return only the rewritten text.`, m.Mind, strings.Join(answers, "\n\n"))
}

func reflectPrompt(m *memory, related []string, thought, reasoning string) string {
	return memoryPreamble(m) + fmt.Sprintf(`RELATED THOUGHTS:
%s

THOUGHT:
%s

REASONING:
%s

Respond with what you know about this thought. If you do not know, say so.`,
		bullets(related), thought, reasoning)
}

const foldSystem = `You are a recursive answer compiler. You receive a question, the answer
compiled so far, and the next snippet of source material. Return the improved
answer, using the snippet only where it is relevant to the question.`

func foldPrompt(question, soFar, snippet string) string {
	return fmt.Sprintf(`%s

QUESTION:
%s

ANSWER SO FAR:
%s

NEXT SNIPPET:
%s`, foldSystem, question, soFar, snippet)
}

// Fixed thought texts.

func deferralText(action string) string {
	return fmt.Sprintf("Looks like I should take this action: %s. I can't carry out actions yet, so I've noted it and will return to it once I can.", action)
}

func planAckText(plan string) string {
	return "Here is the plan of action I put together for you:\n\n" + plan
}
