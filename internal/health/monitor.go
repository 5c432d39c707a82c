// Package health tracks per-key failure state so the scheduler can skip
// credentials that are cooling down.
package health

import (
	"sync"
	"time"

	"github.com/modelrelay/modelrelay/internal/settings"
)

// keyState is the breaker state for one provider key.
type keyState struct {
	consecutiveFailures int
	openUntil           time.Time
	lastFailureAt       time.Time
}

// Monitor is a per-key circuit breaker. A key that fails too many times in a
// row is held out of scheduling for the configured cooldown; one success
// closes the breaker again.
type Monitor struct {
	mu       sync.Mutex
	states   map[uint64]*keyState
	settings func() settings.Snapshot
	nowFn    func() time.Time
}

// NewMonitor creates a health monitor. settingsFn must not be nil.
func NewMonitor(settingsFn func() settings.Snapshot) *Monitor {
	return &Monitor{
		states:   make(map[uint64]*keyState),
		settings: settingsFn,
		nowFn:    time.Now,
	}
}

// SetNowFunc overrides the clock, used by tests.
func (m *Monitor) SetNowFunc(now func() time.Time) {
	if now != nil {
		m.nowFn = now
	}
}

// ReportFailure records one upstream failure for the key. Crossing the
// failure threshold opens the breaker for the cooldown window.
func (m *Monitor) ReportFailure(keyID uint64) {
	snap := m.settings()
	now := m.nowFn()

	m.mu.Lock()
	defer m.mu.Unlock()
	state := m.states[keyID]
	if state == nil {
		state = &keyState{}
		m.states[keyID] = state
	}
	state.consecutiveFailures++
	state.lastFailureAt = now
	if state.consecutiveFailures >= snap.FailureThreshold {
		state.openUntil = now.Add(snap.Cooldown())
	}
}

// ReportSuccess closes the breaker for the key.
func (m *Monitor) ReportSuccess(keyID uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if state := m.states[keyID]; state != nil {
		state.consecutiveFailures = 0
		state.openUntil = time.Time{}
	}
}

// IsHealthy reports whether the key may be scheduled right now.
func (m *Monitor) IsHealthy(keyID uint64) bool {
	return m.CooldownRemaining(keyID) <= 0
}

// CooldownRemaining returns how long until the key's breaker closes.
// Zero or negative means the key is schedulable.
func (m *Monitor) CooldownRemaining(keyID uint64) time.Duration {
	now := m.nowFn()

	m.mu.Lock()
	defer m.mu.Unlock()
	state := m.states[keyID]
	if state == nil || state.openUntil.IsZero() {
		return 0
	}
	return state.openUntil.Sub(now)
}

// KeyStatus is an externally visible view of one key's breaker.
type KeyStatus struct {
	KeyID               uint64        `json:"key_id"`
	ConsecutiveFailures int           `json:"consecutive_failures"`
	CoolingDown         bool          `json:"cooling_down"`
	CooldownRemaining   time.Duration `json:"cooldown_remaining"`
}

// Statuses returns breaker state for every tracked key, for diagnostics.
func (m *Monitor) Statuses() []KeyStatus {
	now := m.nowFn()

	m.mu.Lock()
	defer m.mu.Unlock()
	statuses := make([]KeyStatus, 0, len(m.states))
	for keyID, state := range m.states {
		remaining := time.Duration(0)
		if !state.openUntil.IsZero() {
			remaining = state.openUntil.Sub(now)
		}
		if remaining < 0 {
			remaining = 0
		}
		statuses = append(statuses, KeyStatus{
			KeyID:               keyID,
			ConsecutiveFailures: state.consecutiveFailures,
			CoolingDown:         remaining > 0,
			CooldownRemaining:   remaining,
		})
	}
	return statuses
}
