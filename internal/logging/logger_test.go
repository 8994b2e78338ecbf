package logging

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func observe(t *testing.T, cats map[string]bool) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	SetLogger(zap.New(core), cats)
	t.Cleanup(func() { SetLogger(nil, nil) })
	return logs
}

func TestCategoryToggles(t *testing.T) {
	logs := observe(t, map[string]bool{"llm": false})

	Agent("agent %d ran", 7)
	LLM("prompt sent")
	Scheduler("tick")

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "agent", entries[0].LoggerName)
	assert.Equal(t, "agent 7 ran", entries[0].Message)
	assert.Equal(t, "scheduler", entries[1].LoggerName)
	assert.False(t, IsCategoryEnabled(CategoryLLM))
	assert.True(t, IsCategoryEnabled(CategoryStore))
}

func TestInitializeRejectsBadLevel(t *testing.T) {
	t.Cleanup(func() { SetLogger(nil, nil) })
	err := Initialize(Options{Level: "loud"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loud")
}

func TestTimerThreshold(t *testing.T) {
	logs := observe(t, nil)

	StartTimer(CategoryLLM, "fast").StopWithThreshold(time.Hour)
	StartTimer(CategoryLLM, "slow").StopWithThreshold(0)

	require.Equal(t, 2, logs.Len())
	assert.Equal(t, zapcore.DebugLevel, logs.All()[0].Level)
	assert.Equal(t, zapcore.WarnLevel, logs.All()[1].Level)
}

func TestAuditCarriesMangleFact(t *testing.T) {
	logs := observe(t, nil)

	AuditForAgent(3).ThoughtDispatched(11, "research", 40, nil)
	AuditForAgent(3).ThoughtDispatched(12, "action", 5, errors.New("boom"))

	entries := logs.FilterLoggerName("audit").All()
	require.Len(t, entries, 2)

	ok := entries[0].ContextMap()
	assert.Equal(t, string(AuditThoughtDispatched), entries[0].Message)
	assert.Equal(t, int64(3), ok["agent"])
	assert.Equal(t, true, ok["success"])
	assert.Contains(t, ok["mangle"], `dispatch_event(`)
	assert.Contains(t, ok["mangle"], `, 3, "11", "research").`)

	failed := entries[1].ContextMap()
	assert.Equal(t, string(AuditThoughtFailed), entries[1].Message)
	assert.Equal(t, "boom", failed["msg"])
}

func TestMangleFactEscapes(t *testing.T) {
	fact := MangleFact(AuditEvent{
		Timestamp: 1,
		EventType: AuditTaskUnresolved,
		Target:    `say "hi"`,
		Action:    "line\nbreak",
	})
	assert.Equal(t, `task_issue(1, /task_unresolved, "say \"hi\"", "line\nbreak").`, fact)
}
