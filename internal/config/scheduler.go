package config

import (
	"fmt"
	"time"
)

// Scheduling tiers. Values match the agent schedule column.
const (
	TierInstant   = "INSTANT"
	TierFourHour  = "FOUR_HOUR"
	TierEightHour = "EIGHT_HOUR"
	TierDaily     = "DAILY"
)

// SchedulerConfig configures tier invocation and per-agent locking.
type SchedulerConfig struct {
	// Tiers maps a schedule to its daemon interval.
	Tiers map[string]string `yaml:"tiers"`

	// Parallelism bounds how many distinct agents run at once. 1 is sequential.
	Parallelism int `yaml:"parallelism"`

	// LockLease is how long an agent lease row is honored before another
	// process may take it over.
	LockLease string `yaml:"lock_lease"`

	// WatchPath, when set, triggers the INSTANT tier on file changes.
	WatchPath string `yaml:"watch_path"`

	// Debounce coalesces bursts of watch events.
	Debounce string `yaml:"debounce"`
}

// DefaultSchedulerConfig returns sequential scheduling with the standard tiers.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Tiers: map[string]string{
			TierInstant:   "1m",
			TierFourHour:  "4h",
			TierEightHour: "8h",
			TierDaily:     "24h",
		},
		Parallelism: 1,
		LockLease:   "15m",
		Debounce:    "2s",
	}
}

// TierInterval returns the interval for a tier, or 0 when unknown.
func (s SchedulerConfig) TierInterval(tier string) time.Duration {
	v, ok := s.Tiers[tier]
	if !ok {
		return 0
	}
	return parseDuration(v, 0)
}

// GetLockLease returns the agent lease duration.
func (s SchedulerConfig) GetLockLease() time.Duration {
	return parseDuration(s.LockLease, 15*time.Minute)
}

// GetDebounce returns the watcher debounce window.
func (s SchedulerConfig) GetDebounce() time.Duration {
	return parseDuration(s.Debounce, 2*time.Second)
}

// IsValidTier reports whether tier is one of the known schedules.
func IsValidTier(tier string) bool {
	switch tier {
	case TierInstant, TierFourHour, TierEightHour, TierDaily:
		return true
	}
	return false
}

func (s SchedulerConfig) validate() error {
	if s.Parallelism < 1 {
		return fmt.Errorf("scheduler.parallelism must be >= 1, got %d", s.Parallelism)
	}
	for tier, interval := range s.Tiers {
		if !IsValidTier(tier) {
			return fmt.Errorf("unknown scheduler tier: %s", tier)
		}
		if d, err := time.ParseDuration(interval); err != nil || d <= 0 {
			return fmt.Errorf("invalid interval for tier %s: %q", tier, interval)
		}
	}
	return nil
}
