// Package reservation sizes the slice of each key's concurrency budget held
// back for cache-affine traffic.
package reservation

import (
	"math"
	"sync"
	"time"

	"github.com/modelrelay/modelrelay/internal/settings"
)

const (
	// RatioFloor is the smallest reservation ever applied.
	RatioFloor = 0.10
	// RatioCeiling is the largest reservation ever applied.
	RatioCeiling = 0.35

	// ewmaAlpha weights new ratio observations in the running average.
	ewmaAlpha = 0.1
	// cooldownPenaltyWindow is how long a breaker trip keeps confidence low.
	cooldownPenaltyWindow = 5 * time.Minute
	// cooldownPenalty scales confidence while the penalty window is active.
	cooldownPenalty = 0.5
)

// Phase labels where a key is in its reservation lifecycle.
type Phase string

const (
	// PhaseProbe applies before enough traffic has been observed.
	PhaseProbe Phase = "probe"
	// PhaseStable applies once the affinity rate is trustworthy.
	PhaseStable Phase = "stable"
)

// keyState accumulates per-key observations.
type keyState struct {
	samples        int
	affineHits     int
	ewmaRatio      float64
	ewmaInit       bool
	lastCooldownAt time.Time
}

// Calculator derives the reservation ratio for each key. New keys start in a
// probe phase with a small fixed ratio; once enough requests have been seen
// the ratio tracks how much of the key's traffic actually benefits from
// affinity, scaled by current load. The result always stays inside
// [RatioFloor, RatioCeiling].
type Calculator struct {
	mu       sync.Mutex
	states   map[uint64]*keyState
	settings func() settings.Snapshot
	nowFn    func() time.Time
}

// NewCalculator creates a reservation calculator. settingsFn must not be nil.
func NewCalculator(settingsFn func() settings.Snapshot) *Calculator {
	return &Calculator{
		states:   make(map[uint64]*keyState),
		settings: settingsFn,
		nowFn:    time.Now,
	}
}

// SetNowFunc overrides the clock, used by tests.
func (c *Calculator) SetNowFunc(now func() time.Time) {
	if now != nil {
		c.nowFn = now
	}
}

// Result describes one reservation decision.
type Result struct {
	Ratio      float64 `json:"ratio"`
	Phase      Phase   `json:"phase"`
	Confidence float64 `json:"confidence"`
	LoadFactor float64 `json:"load_factor"`
}

// Calculate returns the reservation decision for the key given its
// concurrency limit and current in-flight count. Deterministic for fixed
// inputs and state.
func (c *Calculator) Calculate(keyID uint64, limit, inFlight int) Result {
	snap := c.settings()
	now := c.nowFn()

	c.mu.Lock()
	defer c.mu.Unlock()
	state := c.states[keyID]
	if state == nil {
		state = &keyState{}
		c.states[keyID] = state
	}

	result := c.rawResult(state, snap, now, limit, inFlight)
	result.Ratio = clamp(result.Ratio, RatioFloor, RatioCeiling)

	if !state.ewmaInit {
		state.ewmaRatio = result.Ratio
		state.ewmaInit = true
	} else {
		state.ewmaRatio = ewmaAlpha*result.Ratio + (1-ewmaAlpha)*state.ewmaRatio
	}
	return result
}

// Ratio is a shorthand for Calculate when only the ratio matters.
func (c *Calculator) Ratio(keyID uint64, limit, inFlight int) float64 {
	return c.Calculate(keyID, limit, inFlight).Ratio
}

// rawResult computes the unclamped decision for the current phase.
func (c *Calculator) rawResult(state *keyState, snap settings.Snapshot, now time.Time, limit, inFlight int) Result {
	if state.samples < snap.ReservationMinSamples {
		probe := snap.ReservationProbeRatio
		if probe <= 0 {
			probe = RatioFloor
		}
		return Result{Ratio: probe, Phase: PhaseProbe}
	}

	confidence := float64(state.affineHits) / float64(state.samples)
	if !state.lastCooldownAt.IsZero() && now.Sub(state.lastCooldownAt) < cooldownPenaltyWindow {
		confidence *= cooldownPenalty
	}

	load := 1.0
	if limit > 0 {
		load = clamp(float64(inFlight)/float64(limit), 0, 1)
	}

	return Result{
		Ratio:      RatioFloor + (RatioCeiling-RatioFloor)*confidence*load,
		Phase:      PhaseStable,
		Confidence: confidence,
		LoadFactor: load,
	}
}

// RecordSample feeds one completed selection into the key's history.
func (c *Calculator) RecordSample(keyID uint64, affineHit bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	state := c.states[keyID]
	if state == nil {
		state = &keyState{}
		c.states[keyID] = state
	}
	state.samples++
	if affineHit {
		state.affineHits++
	}
}

// RecordCooldown notes that the key entered a cooldown, which temporarily
// suppresses confidence in its affinity rate.
func (c *Calculator) RecordCooldown(keyID uint64) {
	now := c.nowFn()

	c.mu.Lock()
	defer c.mu.Unlock()
	state := c.states[keyID]
	if state == nil {
		state = &keyState{}
		c.states[keyID] = state
	}
	state.lastCooldownAt = now
}

// KeyMetrics is an externally visible view of one key's reservation state.
type KeyMetrics struct {
	KeyID        uint64  `json:"key_id"`
	Phase        Phase   `json:"phase"`
	Samples      int     `json:"samples"`
	AffineHits   int     `json:"affine_hits"`
	AvgRatio     float64 `json:"avg_ratio"`
	CoolingDown  bool    `json:"cooling_down"`
}

// Metrics returns reservation state for every tracked key.
func (c *Calculator) Metrics() []KeyMetrics {
	snap := c.settings()
	now := c.nowFn()

	c.mu.Lock()
	defer c.mu.Unlock()
	result := make([]KeyMetrics, 0, len(c.states))
	for keyID, state := range c.states {
		phase := PhaseStable
		if state.samples < snap.ReservationMinSamples {
			phase = PhaseProbe
		}
		result = append(result, KeyMetrics{
			KeyID:       keyID,
			Phase:       phase,
			Samples:     state.samples,
			AffineHits:  state.affineHits,
			AvgRatio:    state.ewmaRatio,
			CoolingDown: !state.lastCooldownAt.IsZero() && now.Sub(state.lastCooldownAt) < cooldownPenaltyWindow,
		})
	}
	return result
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, v))
}
