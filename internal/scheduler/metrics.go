package scheduler

import (
	"sync"
	"time"
)

// Metrics accumulates scheduler counters for the stats endpoint.
type Metrics struct {
	mu sync.Mutex

	totalBatches       int64
	lastBatchSize      int
	totalCandidates    int64
	lastCandidateCount int
	affineHits         int64
	affineMisses       int64
	concurrencyDenied  int64
	lastModel          string
	lastFormat         string
	lastUpdatedAt      time.Time
}

func newMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) recordRequest(model, format string, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastModel = model
	m.lastFormat = format
	m.lastUpdatedAt = now
}

func (m *Metrics) recordBatch(candidateCount int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.totalBatches++
	m.lastBatchSize = candidateCount
	m.totalCandidates += int64(candidateCount)
	m.lastCandidateCount = candidateCount
}

func (m *Metrics) recordSelection(affine bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if affine {
		m.affineHits++
	} else {
		m.affineMisses++
	}
}

func (m *Metrics) recordConcurrencyDenied() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.concurrencyDenied++
}

// Stats is a point-in-time view of the scheduler counters.
type Stats struct {
	TotalBatches       int64     `json:"total_batches"`
	LastBatchSize      int       `json:"last_batch_size"`
	TotalCandidates    int64     `json:"total_candidates"`
	LastCandidateCount int       `json:"last_candidate_count"`
	AffineHits         int64     `json:"affine_hits"`
	AffineMisses       int64     `json:"affine_misses"`
	AffineHitRate      float64   `json:"affine_hit_rate"`
	ConcurrencyDenied  int64     `json:"concurrency_denied"`
	AvgCandidatesBatch float64   `json:"avg_candidates_per_batch"`
	LastModel          string    `json:"last_model,omitempty"`
	LastFormat         string    `json:"last_format,omitempty"`
	LastUpdatedAt      time.Time `json:"last_updated_at,omitzero"`
}

// Snapshot returns the current counters.
func (m *Metrics) Snapshot() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := Stats{
		TotalBatches:       m.totalBatches,
		LastBatchSize:      m.lastBatchSize,
		TotalCandidates:    m.totalCandidates,
		LastCandidateCount: m.lastCandidateCount,
		AffineHits:         m.affineHits,
		AffineMisses:       m.affineMisses,
		ConcurrencyDenied:  m.concurrencyDenied,
		LastModel:          m.lastModel,
		LastFormat:         m.lastFormat,
		LastUpdatedAt:      m.lastUpdatedAt,
	}
	if total := m.affineHits + m.affineMisses; total > 0 {
		stats.AffineHitRate = float64(m.affineHits) / float64(total)
	}
	if m.totalBatches > 0 {
		stats.AvgCandidatesBatch = float64(m.totalCandidates) / float64(m.totalBatches)
	}
	return stats
}
