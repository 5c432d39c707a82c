package scheduler

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/modelrelay/modelrelay/internal/affinity"
	"github.com/modelrelay/modelrelay/internal/capability"
	"github.com/modelrelay/modelrelay/internal/catalog"
	"github.com/modelrelay/modelrelay/internal/health"
	"github.com/modelrelay/modelrelay/internal/models"
	"github.com/modelrelay/modelrelay/internal/reservation"
	"github.com/modelrelay/modelrelay/internal/restriction"
	"github.com/modelrelay/modelrelay/internal/settings"
)

// retryAfterHint is the Retry-After sent when every candidate is saturated.
const retryAfterHint = 5 * time.Second

// maxSkipReport bounds the rejection detail carried by exhaustion errors.
const maxSkipReport = 20

// Request describes one selection request.
type Request struct {
	// AffinityKey identifies the caller for cache affinity and hash
	// spreading, usually the caller's API key ID.
	AffinityKey string

	// Format restricts endpoints to one wire format. Failover therefore
	// never crosses formats. Empty means any format.
	Format string

	Model        string
	Stream       bool
	Capabilities []string

	// Exclusions let a failover retry step past combinations that already
	// failed for this request.
	ExcludedEndpoints []uint64
	ExcludedKeys      []uint64

	// APIKey carries the caller's restriction lists. Nil means an internal
	// caller with no restrictions.
	APIKey *models.APIKey
}

// Selection is the chosen combination plus the admission snapshot.
type Selection struct {
	Provider *models.Provider
	Endpoint *models.Endpoint
	Key      *models.ProviderKey
	Impl     *models.ModelImplementation
	Affine   bool
	Snapshot ConcurrencySnapshot
}

// Scheduler picks the provider, endpoint and key for each request.
type Scheduler struct {
	catalog     *catalog.Store
	builder     *Builder
	admission   *Admission
	affinity    *affinity.Manager
	health      *health.Monitor
	reservation *reservation.Calculator
	settings    func() settings.Snapshot
	metrics     *Metrics
	nowFn       func() time.Time
}

// New creates a scheduler from its collaborators. All arguments are required.
func New(
	store *catalog.Store,
	monitor *health.Monitor,
	admission *Admission,
	affinityManager *affinity.Manager,
	calc *reservation.Calculator,
	settingsFn func() settings.Snapshot,
) *Scheduler {
	return &Scheduler{
		catalog:     store,
		builder:     NewBuilder(monitor),
		admission:   admission,
		affinity:    affinityManager,
		health:      monitor,
		reservation: calc,
		settings:    settingsFn,
		metrics:     newMetrics(),
		nowFn:       time.Now,
	}
}

// SetNowFunc overrides the clock, used by tests.
func (s *Scheduler) SetNowFunc(now func() time.Time) {
	if now != nil {
		s.nowFn = now
	}
}

// Select picks a combination for the request, takes its concurrency slots
// and records affinity for the next request. The caller must call Release
// when the request finishes.
//
// Providers are consumed in priority pages; within a page the candidate
// order follows the active priority mode, with the caller's remembered
// triple promoted to the front.
func (s *Scheduler) Select(ctx context.Context, req Request) (*Selection, error) {
	snap := s.settings()
	s.metrics.recordRequest(req.Model, req.Format, s.nowFn().UTC())

	model, errModel := s.catalog.FindModelByName(ctx, req.Model)
	if errModel != nil {
		if errors.Is(errModel, catalog.ErrNotFound) {
			return nil, &ModelNotSupportedError{Model: req.Model}
		}
		return nil, errModel
	}
	if missing := capability.MissingForModel(model, req.Capabilities); len(missing) > 0 {
		return nil, &ModelNotSupportedError{Model: req.Model, MissingCapabilities: missing}
	}

	restrictions := restriction.Resolve(req.APIKey)
	// Model and format restrictions, and any empty allow list, can be
	// decided here without paging through providers.
	if restrictions.Empty() ||
		!restrictions.AllowsModel(model.Name) ||
		(req.Format != "" && !restrictions.AllowsFormat(req.Format)) {
		return nil, &ProviderNotAvailableError{Model: req.Model, RetryAfter: retryAfterHint}
	}

	excludedEndpoints := toSet(req.ExcludedEndpoints)
	excludedKeys := toSet(req.ExcludedKeys)

	var skipped []SkippedCandidate
	sawCandidates := false
	offset := 0
	for {
		page, errPage := s.catalog.ListActiveProviders(ctx, offset, snap.ProviderBatchSize, restrictions.ProviderIDs)
		if errPage != nil {
			return nil, errPage
		}
		if len(page.Providers) == 0 {
			break
		}

		providerIDs := make([]uint64, 0, len(page.Providers))
		for _, provider := range page.Providers {
			providerIDs = append(providerIDs, provider.ID)
		}
		impls, errImpls := s.catalog.ImplementationsForProviders(ctx, model.ID, providerIDs)
		if errImpls != nil {
			return nil, errImpls
		}

		build := s.builder.Build(BuildInput{
			Model:           model,
			Providers:       page.Providers,
			Implementations: impls,
			Format:          req.Format,
			Stream:          req.Stream,
			Capabilities:    req.Capabilities,
			AffinityKey:     req.AffinityKey,
			Restrictions:    restrictions,
		})
		skipped = append(skipped, build.ProviderSkips...)

		candidates := applyPriorityMode(build.Candidates, snap.PriorityMode, req.AffinityKey)
		candidates = s.integrateAffinity(ctx, candidates, req.AffinityKey, req.Format, model.Name)
		s.metrics.recordBatch(len(candidates))
		if len(candidates) > 0 {
			sawCandidates = true
		}

		selection, batchSkips := s.tryCandidates(ctx, candidates, excludedEndpoints, excludedKeys)
		skipped = append(skipped, batchSkips...)
		if selection != nil {
			s.finishSelection(ctx, req, model, selection)
			return selection, nil
		}

		if !page.HasMore {
			break
		}
		offset += snap.ProviderBatchSize
	}

	if !sawCandidates && offset == 0 && len(skipped) == 0 {
		return nil, &ProviderNotAvailableError{Model: req.Model, RetryAfter: retryAfterHint}
	}
	if len(skipped) > maxSkipReport {
		skipped = skipped[:maxSkipReport]
	}
	return nil, &ProviderNotAvailableError{
		Model:      req.Model,
		RetryAfter: retryAfterHint,
		Skipped:    skipped,
	}
}

// integrateAffinity promotes the caller's remembered triple, when present
// and usable, to the front of the candidate list.
func (s *Scheduler) integrateAffinity(ctx context.Context, candidates []*Candidate, affinityKey, format, modelName string) []*Candidate {
	if affinityKey == "" || len(candidates) == 0 {
		return candidates
	}
	entry, found := s.affinity.Lookup(ctx, affinityKey, format, modelName, 0)
	if !found {
		return candidates
	}
	return promoteAffine(candidates, entry.ProviderID, entry.EndpointID, entry.KeyID)
}

// tryCandidates walks the ordered list and admits the first usable one.
func (s *Scheduler) tryCandidates(
	ctx context.Context,
	candidates []*Candidate,
	excludedEndpoints, excludedKeys map[uint64]struct{},
) (*Selection, []SkippedCandidate) {
	var skipped []SkippedCandidate
	for _, candidate := range candidates {
		if !candidate.Usable() {
			skipped = append(skipped, SkippedCandidate{
				ProviderName: candidate.Provider.Name,
				EndpointID:   candidate.Endpoint.ID,
				KeyID:        candidate.Key.ID,
				Reason:       candidate.SkipReason,
			})
			continue
		}
		if _, excluded := excludedEndpoints[candidate.Endpoint.ID]; excluded {
			continue
		}
		if _, excluded := excludedKeys[candidate.Key.ID]; excluded {
			continue
		}

		admitted, snapshot := s.admission.TryAdmit(ctx, candidate)
		if !admitted {
			s.metrics.recordConcurrencyDenied()
			skipped = append(skipped, SkippedCandidate{
				ProviderName: candidate.Provider.Name,
				EndpointID:   candidate.Endpoint.ID,
				KeyID:        candidate.Key.ID,
				Reason:       "concurrency full (" + snapshot.Describe() + ")",
			})
			continue
		}

		return &Selection{
			Provider: candidate.Provider,
			Endpoint: candidate.Endpoint,
			Key:      candidate.Key,
			Impl:     candidate.Impl,
			Affine:   candidate.Affine,
			Snapshot: snapshot,
		}, skipped
	}
	return nil, skipped
}

// finishSelection records affinity and metrics after a successful admit.
func (s *Scheduler) finishSelection(ctx context.Context, req Request, model *models.GlobalModel, selection *Selection) {
	s.metrics.recordSelection(selection.Affine)
	s.reservation.RecordSample(selection.Key.ID, selection.Affine)

	if req.AffinityKey != "" && selection.Key.CacheTTLMinutes > 0 {
		ttl := time.Duration(selection.Key.CacheTTLMinutes) * time.Minute
		s.affinity.Remember(ctx, req.AffinityKey, req.Format, model.Name, affinity.Entry{
			ProviderID: selection.Provider.ID,
			EndpointID: selection.Endpoint.ID,
			KeyID:      selection.Key.ID,
		}, ttl)
	}

	log.WithFields(log.Fields{
		"provider": selection.Provider.Name,
		"endpoint": selection.Endpoint.ID,
		"key":      selection.Key.ID,
		"affine":   selection.Affine,
		"state":    selection.Snapshot.Describe(),
	}).Debug("selected upstream combination")
}

// ReleaseInput describes a finished request.
type ReleaseInput struct {
	EndpointID uint64
	KeyID      uint64
	// AffinityKey, Format and Model identify the affinity entry to drop on
	// failure. Format must match the value used at selection time.
	AffinityKey string
	Format      string
	Model       string
	Success     bool
}

// Release returns the slots taken by Select and feeds the outcome into
// health and reservation state. Failed requests drop the caller's affinity
// so the next attempt does not land on the same broken combination.
func (s *Scheduler) Release(ctx context.Context, input ReleaseInput) {
	s.admission.Release(ctx, input.EndpointID, input.KeyID)

	if input.Success {
		s.health.ReportSuccess(input.KeyID)
		return
	}
	s.health.ReportFailure(input.KeyID)
	if !s.health.IsHealthy(input.KeyID) {
		s.reservation.RecordCooldown(input.KeyID)
	}
	if input.AffinityKey != "" && input.Model != "" {
		s.affinity.Forget(ctx, input.AffinityKey, input.Format, input.Model)
	}
}

// Stats aggregates scheduler, reservation, concurrency and health state for
// diagnostics.
func (s *Scheduler) Stats(ctx context.Context) map[string]any {
	reservationMetrics := s.reservation.Metrics()
	keyIDs := make([]uint64, 0, len(reservationMetrics))
	for _, metric := range reservationMetrics {
		keyIDs = append(keyIDs, metric.KeyID)
	}

	return map[string]any{
		"scheduler":     s.metrics.Snapshot(),
		"reservation":   reservationMetrics,
		"key_in_flight": s.admission.InFlight(ctx, keyIDs),
		"health":        s.health.Statuses(),
		"settings": map[string]any{
			"priority_mode":       s.settings().PriorityMode,
			"provider_batch_size": s.settings().ProviderBatchSize,
		},
	}
}

func toSet(ids []uint64) map[uint64]struct{} {
	if len(ids) == 0 {
		return nil
	}
	set := make(map[uint64]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
