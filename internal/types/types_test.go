package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSchedule(t *testing.T) {
	tests := []struct {
		in   string
		want Schedule
	}{
		{"INSTANT", ScheduleInstant},
		{"four_hour", ScheduleFourHour},
		{"eight-hour", ScheduleEightHour},
		{" daily ", ScheduleDaily},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseSchedule(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseSchedule("hourly")
	assert.Error(t, err)
}

func TestAgentDeadlinePassed(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	assert.False(t, (&Agent{}).DeadlinePassed(now))
	assert.True(t, (&Agent{LastRun: &past}).DeadlinePassed(now))
	assert.False(t, (&Agent{LastRun: &future}).DeadlinePassed(now))
}

func TestJobResultErrored(t *testing.T) {
	assert.True(t, (&JobResult{Status: JobCompleted, Error: "x"}).Errored())
	assert.False(t, (&JobResult{Status: JobCompleted}).Errored())
	assert.False(t, (&JobResult{Status: JobRunning, Error: "x"}).Errored())
}

func TestAnswerFilled(t *testing.T) {
	assert.False(t, (&Answer{}).Filled())
	assert.True(t, (&Answer{Content: ErrorSentinel}).Filled())
}

func TestAgentStatusValid(t *testing.T) {
	assert.True(t, StatusReady.Valid())
	assert.True(t, StatusCompleted.Valid())
	assert.False(t, AgentStatus("PAUSED").Valid())
}
