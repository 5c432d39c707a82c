package scheduler

import (
	"fmt"
	"strings"
	"time"

	"github.com/modelrelay/modelrelay/internal/capability"
	"github.com/modelrelay/modelrelay/internal/health"
	"github.com/modelrelay/modelrelay/internal/models"
	"github.com/modelrelay/modelrelay/internal/restriction"
)

// BuildInput carries everything the builder needs for one provider page.
type BuildInput struct {
	Model           *models.GlobalModel
	Providers       []models.Provider
	Implementations map[uint64]models.ModelImplementation

	Format       string
	Stream       bool
	Capabilities []string
	AffinityKey  string
	Restrictions restriction.Restrictions
}

// BuildResult is the candidate list for one provider page plus the
// provider-level rejections that produced no candidates.
type BuildResult struct {
	Candidates    []*Candidate
	ProviderSkips []SkippedCandidate
}

// Builder turns provider pages into ordered candidate lists.
type Builder struct {
	health *health.Monitor
}

// NewBuilder creates a candidate builder.
func NewBuilder(monitor *health.Monitor) *Builder {
	return &Builder{health: monitor}
}

// Build walks the page in priority order and emits one candidate per key.
// Keys that cannot serve the request are kept with a skip reason so the
// caller can explain an exhausted page. Provider-level checks run once per
// provider; a provider that fails them contributes no candidates at all.
func (b *Builder) Build(input BuildInput) BuildResult {
	var result BuildResult

	for providerIndex := range input.Providers {
		provider := &input.Providers[providerIndex]

		impl, implemented := input.Implementations[provider.ID]
		if !implemented {
			result.ProviderSkips = append(result.ProviderSkips, SkippedCandidate{
				ProviderName: provider.Name,
				Reason:       "provider does not implement the model",
			})
			continue
		}
		if input.Stream && !capability.SupportsStreaming(&impl, input.Model) {
			result.ProviderSkips = append(result.ProviderSkips, SkippedCandidate{
				ProviderName: provider.Name,
				Reason:       "streaming not supported for this model",
			})
			continue
		}

		for endpointIndex := range provider.Endpoints {
			endpoint := &provider.Endpoints[endpointIndex]
			if input.Format != "" && endpoint.Format != input.Format {
				continue
			}
			if !input.Restrictions.AllowsEndpoint(endpoint.ID) ||
				!input.Restrictions.AllowsFormat(endpoint.Format) {
				continue
			}

			keys := orderKeysByInternalPriority(endpoint.Keys, input.AffinityKey)
			for keyIndex := range keys {
				key := &keys[keyIndex]
				candidate := &Candidate{
					Provider: provider,
					Endpoint: endpoint,
					Key:      key,
					Impl:     &impl,
				}
				candidate.SkipReason = b.keySkipReason(key, input)
				result.Candidates = append(result.Candidates, candidate)
			}
		}
	}
	return result
}

// keySkipReason returns why the key cannot serve the request, or "".
func (b *Builder) keySkipReason(key *models.ProviderKey, input BuildInput) string {
	if b.health != nil && !b.health.IsHealthy(key.ID) {
		remaining := b.health.CooldownRemaining(key.ID)
		return fmt.Sprintf("cooling down for %s", remaining.Round(time.Second))
	}
	if !key.SupportsModel(input.Model.Name) {
		return "model not in key allow list"
	}
	if missing := capability.MissingForKey(key, input.Capabilities); len(missing) > 0 {
		return "missing capabilities: " + strings.Join(missing, ", ")
	}
	if wasted := capability.WastedForKey(key, input.Capabilities); len(wasted) > 0 {
		return "reserved for capabilities: " + strings.Join(wasted, ", ")
	}
	return ""
}
