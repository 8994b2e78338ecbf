// Package types provides the entities and collaborator contracts shared by the
// store, the knowledge index, the research client and the submind engine.
// Types in this package should be foundational data structures with no complex
// dependencies.
package types

import (
	"fmt"
	"strings"
	"time"
)

// =============================================================================
// AGENT
// =============================================================================

// AgentStatus is the lifecycle state of an agent.
type AgentStatus string

const (
	StatusReady     AgentStatus = "READY"
	StatusActive    AgentStatus = "ACTIVE"
	StatusCompleted AgentStatus = "COMPLETED"
)

// Valid reports whether s is a known status.
func (s AgentStatus) Valid() bool {
	switch s {
	case StatusReady, StatusActive, StatusCompleted:
		return true
	}
	return false
}

// Schedule is the tier an agent is invoked on.
type Schedule string

const (
	ScheduleInstant   Schedule = "INSTANT"
	ScheduleFourHour  Schedule = "FOUR_HOUR"
	ScheduleEightHour Schedule = "EIGHT_HOUR"
	ScheduleDaily     Schedule = "DAILY"
)

// ParseSchedule accepts both the column form (FOUR_HOUR) and the CLI form
// (four_hour, four-hour).
func ParseSchedule(s string) (Schedule, error) {
	norm := Schedule(strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), "-", "_")))
	switch norm {
	case ScheduleInstant, ScheduleFourHour, ScheduleEightHour, ScheduleDaily:
		return norm, nil
	}
	return "", fmt.Errorf("unknown schedule %q", s)
}

// Agent is a submind: a per-user background process with persistent memory.
// Pending and related thoughts live in their own tables.
type Agent struct {
	ID          int64
	Name        string
	Description string
	OwnerID     string
	ContextID   int64 // 0 when unset
	Status      AgentStatus
	Schedule    Schedule

	// Memory Store document UUIDs.
	FounderUUID   string
	ValuesUUID    string
	MindUUID      string
	DirectiveUUID string

	// LastRun is the deadline after which the agent finalizes. Nil = no deadline.
	LastRun *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// DeadlinePassed reports whether the agent's deadline is set and before now.
func (a *Agent) DeadlinePassed(now time.Time) bool {
	return a.LastRun != nil && a.LastRun.Before(now)
}

// =============================================================================
// THOUGHTS, TASKS, QUESTIONS
// =============================================================================

// Thought is an immutable node in a reasoning tree. Zero ids mean "none".
type Thought struct {
	ID        int64
	UUID      string
	Content   string
	ParentID  int64
	OwnerID   string
	AgentID   int64
	ContextID int64
	CreatedAt time.Time
}

// Task is an action record. DependsOn holds raw task names as generated;
// resolved edges live in task_dependencies.
type Task struct {
	ID        int64
	UUID      string
	Name      string
	Details   string
	DependsOn []string
	ThoughtID int64
	ParentID  int64 // parent task for subtasks
	AgentID   int64
	OwnerID   string
	CreatedAt time.Time
}

// Question is a request for information. It is open while no answer has content.
type Question struct {
	ID          int64
	Content     string
	ForHuman    bool
	ForInternet bool
	ResearchID  int64
	AgentID     int64
	OwnerID     string
	ContextID   int64
	Error       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Answer sources.
const (
	SourceInternet = "internet"
	SourceUser     = "user"
)

// ErrorSentinel is written to an answer and its question when the research job
// reports an error. It counts as filled content.
const ErrorSentinel = "Error getting answer from API"

// Answer is either pending (empty content, RequestID set) or filled once.
type Answer struct {
	ID         int64
	QuestionID int64
	Content    string
	RequestID  string
	Source     string
	AgentID    int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Filled reports whether the answer has content.
func (a *Answer) Filled() bool {
	return a.Content != ""
}

// PendingAnswer is an unfilled answer joined with its question text.
type PendingAnswer struct {
	Answer
	Question string
}

// Research is a campaign grouping questions under one topic.
type Research struct {
	ID          int64
	AgentID     int64
	Name        string
	Description string
	Completed   bool
	Response    string
	RespondToID int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// QA is a question with all of its answers, used to compile a research report.
type QA struct {
	Question Question
	Answers  []Answer
}

// Like is the processed-receipt linking an agent to a thought.
type Like struct {
	AgentID   int64
	ThoughtID int64
	CreatedAt time.Time
}

// =============================================================================
// ACTION PLANNING
// =============================================================================

// PlannedSubtask is a subtask produced from a plan.
type PlannedSubtask struct {
	Name      string   `json:"name"`
	Details   string   `json:"details"`
	DependsOn []string `json:"dependsOn"`
}

// PlannedTask is a top-level task produced from a plan.
type PlannedTask struct {
	Name      string           `json:"name"`
	Details   string           `json:"details"`
	DependsOn []string         `json:"dependsOn"`
	Subtasks  []PlannedSubtask `json:"subtasks"`
}

// DependencyIssue kinds.
const (
	IssueUnresolved = "unresolved"
	IssueCyclic     = "cyclic"
)

// DependencyIssue flags a task dependency that could not be turned into an edge.
type DependencyIssue struct {
	TaskID    int64
	TaskName  string
	Kind      string
	Reference string
}

// =============================================================================
// MEMORY STORE AND KNOWLEDGE INDEX
// =============================================================================

// Document is a versioned free-text memory blob.
type Document struct {
	UUID      string
	OwnerID   string
	Content   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DocumentVersion is an archived prior content of a document.
type DocumentVersion struct {
	UUID       string
	Content    string
	ArchivedAt time.Time
}

// Match is a knowledge index hit. Score is cosine similarity in [0,1].
type Match struct {
	ThoughtID int64
	Content   string
	Score     float64
}

// =============================================================================
// RESEARCH JOBS
// =============================================================================

// JobStatus is the state reported by the research job service.
type JobStatus string

const (
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
)

// JobResult is one poll of a research job.
type JobResult struct {
	Status   JobStatus
	Error    string
	Snippets []string
}

// Errored reports whether a completed job carries an error.
func (r *JobResult) Errored() bool {
	return r.Status == JobCompleted && r.Error != ""
}
