package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"submind/internal/types"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	cellStyle   = lipgloss.NewStyle().PaddingRight(2)
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))

	statusStyles = map[types.AgentStatus]lipgloss.Style{
		types.StatusReady:     lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		types.StatusActive:    lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		types.StatusCompleted: mutedStyle,
	}
)

// renderTable lays rows out in padded columns under a styled header.
func renderTable(header []string, rows [][]string) string {
	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if w := lipgloss.Width(cell); w > widths[i] {
				widths[i] = w
			}
		}
	}

	line := func(cells []string, style func(int, string) string) string {
		parts := make([]string, len(cells))
		for i, c := range cells {
			parts[i] = cellStyle.Width(widths[i] + 2).Render(style(i, c))
		}
		return strings.TrimRight(lipgloss.JoinHorizontal(lipgloss.Top, parts...), " ")
	}

	var b strings.Builder
	b.WriteString(line(header, func(_ int, s string) string { return headerStyle.Render(s) }))
	b.WriteString("\n")
	for _, row := range rows {
		b.WriteString(line(row, func(_ int, s string) string { return s }))
		b.WriteString("\n")
	}
	return b.String()
}

func agentRows(agents []*types.Agent) [][]string {
	rows := make([][]string, 0, len(agents))
	for _, a := range agents {
		deadline := "-"
		if a.LastRun != nil {
			deadline = a.LastRun.Local().Format("2006-01-02 15:04")
		}
		style, ok := statusStyles[a.Status]
		if !ok {
			style = mutedStyle
		}
		rows = append(rows, []string{
			fmt.Sprint(a.ID),
			a.Name,
			a.OwnerID,
			style.Render(string(a.Status)),
			string(a.Schedule),
			deadline,
		})
	}
	return rows
}

// researchMarkdown formats a campaign with its questions and answers.
func researchMarkdown(r *types.Research, qa []types.QA) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", r.Name)
	if r.Description != "" {
		fmt.Fprintf(&b, "_%s_\n\n", r.Description)
	}
	status := "open"
	if r.Completed {
		status = "completed"
	}
	fmt.Fprintf(&b, "**Status:** %s\n\n", status)

	for _, item := range qa {
		fmt.Fprintf(&b, "## %s\n\n", item.Question.Content)
		if len(item.Answers) == 0 {
			b.WriteString("_no answers yet_\n\n")
			continue
		}
		for _, a := range item.Answers {
			if !a.Filled() {
				fmt.Fprintf(&b, "- _pending (%s)_\n", a.RequestID)
				continue
			}
			fmt.Fprintf(&b, "- %s\n", strings.ReplaceAll(a.Content, "\n", "\n  "))
		}
		b.WriteString("\n")
	}

	if r.Completed {
		fmt.Fprintf(&b, "## Report\n\n%s\n", r.Response)
	}
	return b.String()
}

// renderMarkdown renders md for the terminal, falling back to the raw text.
func renderMarkdown(md string) string {
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return md
	}
	out, err := renderer.Render(md)
	if err != nil {
		return md
	}
	return out
}
