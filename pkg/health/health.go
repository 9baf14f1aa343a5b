package health

import (
	"time"

	"github.com/cuemby/dbaasd/pkg/types"
)

// Config contains the tunables for a Status's hysteresis.
type Config struct {
	// Interval is the time between probes.
	Interval time.Duration

	// Retries is the number of consecutive same-direction samples
	// required before a healthy<->unhealthy transition is considered
	// stable enough to act on.
	Retries int

	// StartPeriod is the grace period before probing begins, for
	// slow-starting engines.
	StartPeriod time.Duration
}

// Status tracks one instance's probe trend across samples, providing
// hysteresis: a transition is only emitted after Retries consecutive
// samples confirm it, preventing flapping from a single transient
// probe.
type Status struct {
	ConsecutiveFailures  int
	ConsecutiveSuccesses int
	LastStatus           types.HealthStatus
	LastCheckedAt        time.Time

	// Stable is the last healthy/unhealthy value that crossed the
	// Retries threshold and was emitted as a transition.
	Stable types.HealthStatus

	StartedAt time.Time
}

// NewStatus creates a new Status, assuming healthy until a sample says
// otherwise.
func NewStatus() *Status {
	return &Status{Stable: types.HealthStatusHealthy, StartedAt: time.Now()}
}

// Update folds in a newly classified sample, returning true if this
// sample crossed config.Retries consecutive occurrences and flipped
// Stable to a new value worth emitting as a status-change event.
// Degraded and unknown samples break both streaks without themselves
// becoming a Stable value: they are neither a confirmed failure nor a
// confirmed recovery.
func (s *Status) Update(status types.HealthStatus, checkedAt time.Time, config Config) bool {
	s.LastStatus = status
	s.LastCheckedAt = checkedAt

	switch status {
	case types.HealthStatusHealthy:
		s.ConsecutiveSuccesses++
		s.ConsecutiveFailures = 0
	case types.HealthStatusUnhealthy:
		s.ConsecutiveFailures++
		s.ConsecutiveSuccesses = 0
	default:
		s.ConsecutiveSuccesses = 0
		s.ConsecutiveFailures = 0
	}

	retries := config.Retries
	if retries <= 0 {
		retries = 3
	}

	switch {
	case status == types.HealthStatusHealthy && s.ConsecutiveSuccesses >= retries && s.Stable != types.HealthStatusHealthy:
		s.Stable = types.HealthStatusHealthy
		return true
	case status == types.HealthStatusUnhealthy && s.ConsecutiveFailures >= retries && s.Stable != types.HealthStatusUnhealthy:
		s.Stable = types.HealthStatusUnhealthy
		return true
	default:
		return false
	}
}

// InStartPeriod returns true if we're still within the startup grace
// period, during which probes should be skipped entirely.
func (s *Status) InStartPeriod(config Config) bool {
	if config.StartPeriod == 0 {
		return false
	}
	return time.Since(s.StartedAt) < config.StartPeriod
}
