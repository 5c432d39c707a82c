package scheduler

import (
	"context"
	"fmt"
	"math"

	"github.com/modelrelay/modelrelay/internal/concurrency"
	"github.com/modelrelay/modelrelay/internal/reservation"
)

// ConcurrencySnapshot captures the counters involved in one admission check,
// for logs and rejection reasons.
type ConcurrencySnapshot struct {
	EndpointCurrent int
	EndpointLimit   *int
	KeyCurrent      int
	KeyLimit        *int
	Affine          bool
	Reservation     reservation.Result
}

// Describe renders the snapshot for log lines.
func (s ConcurrencySnapshot) Describe() string {
	endpointLimit := "inf"
	if s.EndpointLimit != nil {
		endpointLimit = fmt.Sprintf("%d", *s.EndpointLimit)
	}
	keyLimit := "inf"
	if s.KeyLimit != nil {
		keyLimit = fmt.Sprintf("%d", *s.KeyLimit)
	}
	return fmt.Sprintf(
		"endpoint=%d/%s, key=%d/%s, affine=%v, reserve=%.0f%%(%s)",
		s.EndpointCurrent, endpointLimit,
		s.KeyCurrent, keyLimit,
		s.Affine,
		s.Reservation.Ratio*100, s.Reservation.Phase,
	)
}

// Admission enforces concurrency caps with a dynamic reservation for
// cache-affine traffic. Affine callers may use a key's full budget; everyone
// else is capped at the non-reserved share, but never below one slot.
type Admission struct {
	concurrency *concurrency.Manager
	reservation *reservation.Calculator
}

// NewAdmission creates an admission controller.
func NewAdmission(conc *concurrency.Manager, calc *reservation.Calculator) *Admission {
	return &Admission{concurrency: conc, reservation: calc}
}

// nonAffineCap is the slot budget for callers without affinity.
func nonAffineCap(limit int, ratio float64) int {
	budget := int(math.Ceil(float64(limit) * (1 - ratio)))
	if budget < 1 {
		budget = 1
	}
	return budget
}

// TryAdmit attempts to take an in-flight slot on the candidate's key and
// endpoint. On success both counters are incremented and the caller must
// release them when the request finishes.
func (a *Admission) TryAdmit(ctx context.Context, candidate *Candidate) (bool, ConcurrencySnapshot) {
	effectiveLimit := candidate.Key.EffectiveMaxConcurrent()
	keyInFlight := a.concurrency.KeyInFlight(ctx, candidate.Key.ID)

	limitForRatio := 0
	if effectiveLimit != nil {
		limitForRatio = *effectiveLimit
	}
	result := a.reservation.Calculate(candidate.Key.ID, limitForRatio, keyInFlight)

	snapshot := ConcurrencySnapshot{
		EndpointCurrent: a.concurrency.EndpointInFlight(ctx, candidate.Endpoint.ID),
		EndpointLimit:   candidate.Endpoint.MaxConcurrent,
		KeyCurrent:      keyInFlight,
		KeyLimit:        effectiveLimit,
		Affine:          candidate.Affine,
		Reservation:     result,
	}

	// Affine traffic gets the full budget; new traffic only the share left
	// after the reservation.
	keyCap := effectiveLimit
	if effectiveLimit != nil && !candidate.Affine {
		capped := nonAffineCap(*effectiveLimit, result.Ratio)
		keyCap = &capped
		snapshot.KeyLimit = &capped
	}

	granted, current := a.concurrency.AcquireKey(ctx, candidate.Key.ID, keyCap)
	snapshot.KeyCurrent = current
	if !granted {
		return false, snapshot
	}

	endpointGranted, endpointCurrent := a.concurrency.AcquireEndpoint(ctx, candidate.Endpoint.ID, candidate.Endpoint.MaxConcurrent)
	snapshot.EndpointCurrent = endpointCurrent
	if !endpointGranted {
		a.concurrency.ReleaseKey(ctx, candidate.Key.ID)
		return false, snapshot
	}
	return true, snapshot
}

// Release returns the slots taken by TryAdmit.
func (a *Admission) Release(ctx context.Context, endpointID, keyID uint64) {
	a.concurrency.ReleaseEndpoint(ctx, endpointID)
	a.concurrency.ReleaseKey(ctx, keyID)
}

// InFlight reports the live in-flight count for each key.
func (a *Admission) InFlight(ctx context.Context, keyIDs []uint64) map[uint64]int {
	return a.concurrency.DescribeKeys(ctx, keyIDs)
}
