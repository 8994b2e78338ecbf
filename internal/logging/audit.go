package logging

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// =============================================================================
// AUDIT EVENT TYPES - Maps to Mangle predicates
// =============================================================================

// AuditEventType defines the type of audit event (maps to Mangle predicate)
type AuditEventType string

const (
	// Agent lifecycle -> agent_event/4
	AuditAgentActivated AuditEventType = "agent_activated"
	AuditAgentCompleted AuditEventType = "agent_completed"
	AuditAgentSkipped   AuditEventType = "agent_skipped"

	// Thought dispatch -> dispatch_event/5
	AuditThoughtDispatched AuditEventType = "thought_dispatched"
	AuditThoughtFailed     AuditEventType = "thought_failed"

	// Research campaigns -> research_event/4
	AuditResearchStarted   AuditEventType = "research_started"
	AuditResearchCompleted AuditEventType = "research_completed"

	// Answers -> answer_event/4
	AuditAnswerCompiled AuditEventType = "answer_compiled"
	AuditAnswerErrored  AuditEventType = "answer_errored"

	// Task graph -> task_issue/4
	AuditTaskUnresolved AuditEventType = "task_unresolved"
	AuditTaskCyclic     AuditEventType = "task_cyclic"
)

// AuditEvent is one structured audit record.
type AuditEvent struct {
	Timestamp  int64
	EventType  AuditEventType
	AgentID    int64
	Target     string // thought id, research id, answer id, task name
	Action     string // dispatch kind, error text
	Success    bool
	DurationMs int64
	Message    string
}

// AuditLogger writes audit events to the "audit" zap logger.
type AuditLogger struct {
	agentID int64
}

// AuditForAgent returns an audit logger bound to an agent.
func AuditForAgent(agentID int64) *AuditLogger {
	return &AuditLogger{agentID: agentID}
}

// Log records an event. The Mangle fact is attached as a field so audit output
// can be loaded back into a fact store for querying.
func (a *AuditLogger) Log(event AuditEvent) {
	if event.Timestamp == 0 {
		event.Timestamp = time.Now().UnixMilli()
	}
	if event.AgentID == 0 {
		event.AgentID = a.agentID
	}
	Base().Named("audit").Info(string(event.EventType),
		zap.Int64("ts", event.Timestamp),
		zap.Int64("agent", event.AgentID),
		zap.String("target", event.Target),
		zap.String("action", event.Action),
		zap.Bool("success", event.Success),
		zap.Int64("dur_ms", event.DurationMs),
		zap.String("msg", event.Message),
		zap.String("mangle", MangleFact(event)),
	)
}

// MangleFact renders an event as a Mangle fact.
func MangleFact(e AuditEvent) string {
	switch e.EventType {
	case AuditAgentActivated, AuditAgentCompleted, AuditAgentSkipped:
		return fmt.Sprintf("agent_event(%d, /%s, %d, \"%s\").",
			e.Timestamp, e.EventType, e.AgentID, escapeString(e.Message))

	case AuditThoughtDispatched, AuditThoughtFailed:
		return fmt.Sprintf("dispatch_event(%d, /%s, %d, \"%s\", \"%s\").",
			e.Timestamp, e.EventType, e.AgentID, e.Target, e.Action)

	case AuditResearchStarted, AuditResearchCompleted:
		return fmt.Sprintf("research_event(%d, /%s, %d, \"%s\").",
			e.Timestamp, e.EventType, e.AgentID, e.Target)

	case AuditAnswerCompiled, AuditAnswerErrored:
		return fmt.Sprintf("answer_event(%d, /%s, \"%s\", %v).",
			e.Timestamp, e.EventType, e.Target, e.Success)

	case AuditTaskUnresolved, AuditTaskCyclic:
		return fmt.Sprintf("task_issue(%d, /%s, \"%s\", \"%s\").",
			e.Timestamp, e.EventType, escapeString(e.Target), escapeString(e.Action))

	default:
		return fmt.Sprintf("audit_event(%d, /%s, \"%s\", %v).",
			e.Timestamp, e.EventType, escapeString(e.Message), e.Success)
	}
}

func escapeString(s string) string {
	var b strings.Builder
	b.Grow(len(s) + len(s)/10)

	for _, c := range s {
		switch c {
		case '"':
			b.WriteString("\\\"")
		case '\\':
			b.WriteString("\\\\")
		case '\n':
			b.WriteString("\\n")
		case '\r':
			b.WriteString("\\r")
		case '\t':
			b.WriteString("\\t")
		default:
			b.WriteRune(c)
		}
	}
	return b.String()
}

// =============================================================================
// CONVENIENCE METHODS FOR COMMON EVENTS
// =============================================================================

// ThoughtDispatched records the outcome of one pending-thought dispatch.
func (a *AuditLogger) ThoughtDispatched(thoughtID int64, kind string, durationMs int64, err error) {
	e := AuditEvent{
		EventType:  AuditThoughtDispatched,
		Target:     fmt.Sprintf("%d", thoughtID),
		Action:     kind,
		Success:    err == nil,
		DurationMs: durationMs,
	}
	if err != nil {
		e.EventType = AuditThoughtFailed
		e.Message = err.Error()
	}
	a.Log(e)
}

// ResearchStarted records a new campaign.
func (a *AuditLogger) ResearchStarted(researchID int64, questions int) {
	a.Log(AuditEvent{
		EventType: AuditResearchStarted,
		Target:    fmt.Sprintf("%d", researchID),
		Success:   true,
		Message:   fmt.Sprintf("%d questions submitted", questions),
	})
}

// ResearchCompleted records a campaign closing.
func (a *AuditLogger) ResearchCompleted(researchID int64) {
	a.Log(AuditEvent{
		EventType: AuditResearchCompleted,
		Target:    fmt.Sprintf("%d", researchID),
		Success:   true,
	})
}

// AnswerCompiled records an answer written from snippets, or an errored job.
func (a *AuditLogger) AnswerCompiled(answerID int64, errored bool) {
	e := AuditEvent{
		EventType: AuditAnswerCompiled,
		Target:    fmt.Sprintf("%d", answerID),
		Success:   !errored,
	}
	if errored {
		e.EventType = AuditAnswerErrored
	}
	a.Log(e)
}

// AgentTransition records READY->ACTIVE or ->COMPLETED.
func (a *AuditLogger) AgentTransition(eventType AuditEventType, message string) {
	a.Log(AuditEvent{
		EventType: eventType,
		Success:   true,
		Message:   message,
	})
}

// TaskIssue records an unresolved or cyclic dependency.
func (a *AuditLogger) TaskIssue(eventType AuditEventType, task, detail string) {
	a.Log(AuditEvent{
		EventType: eventType,
		Target:    task,
		Action:    detail,
	})
}
