package scheduler

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/modelrelay/modelrelay/internal/models"
	"github.com/modelrelay/modelrelay/internal/settings"
)

// candidateHash spreads same-priority keys across callers deterministically.
// The same caller always lands on the same key, which keeps upstream prompt
// caches warm; different callers spread over the group.
func candidateHash(affinityKey string, keyID uint64) uint64 {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%d", affinityKey, keyID)))
	return binary.BigEndian.Uint64(sum[:8])
}

// orderKeysByInternalPriority orders sibling keys for one endpoint. Keys are
// grouped by internal priority; inside a group the caller hash decides the
// order so load spreads without breaking per-caller stability.
func orderKeysByInternalPriority(keys []models.ProviderKey, affinityKey string) []models.ProviderKey {
	if len(keys) == 0 {
		return nil
	}

	groups := make(map[int][]models.ProviderKey)
	priorities := make([]int, 0)
	for _, key := range keys {
		if _, seen := groups[key.InternalPriority]; !seen {
			priorities = append(priorities, key.InternalPriority)
		}
		groups[key.InternalPriority] = append(groups[key.InternalPriority], key)
	}
	sort.Ints(priorities)

	result := make([]models.ProviderKey, 0, len(keys))
	for _, priority := range priorities {
		group := groups[priority]
		if len(group) > 1 && affinityKey != "" {
			sort.SliceStable(group, func(i, j int) bool {
				return candidateHash(affinityKey, group[i].ID) < candidateHash(affinityKey, group[j].ID)
			})
		} else {
			sort.SliceStable(group, func(i, j int) bool {
				return group[i].ID < group[j].ID
			})
		}
		result = append(result, group...)
	}
	return result
}

// applyPriorityMode orders the candidate list for the active priority mode.
// Provider mode keeps the build order, which already follows provider
// priority and per-endpoint key order. Global key mode reorders the whole
// list by each key's global priority.
func applyPriorityMode(candidates []*Candidate, mode, affinityKey string) []*Candidate {
	if len(candidates) == 0 || mode != settings.PriorityModeGlobalKey {
		return candidates
	}
	return sortByGlobalPriority(candidates, affinityKey)
}

// sortByGlobalPriority groups candidates by the key's global priority and
// spreads inside each group by caller hash. Keys without a global priority
// form their own trailing group so any numeric priority, however large,
// still ranks ahead of the unranked keys.
func sortByGlobalPriority(candidates []*Candidate, affinityKey string) []*Candidate {
	groups := make(map[int][]*Candidate)
	priorities := make([]int, 0)
	var unranked []*Candidate
	for _, candidate := range candidates {
		if candidate.Key.GlobalPriority == nil {
			unranked = append(unranked, candidate)
			continue
		}
		priority := *candidate.Key.GlobalPriority
		if _, seen := groups[priority]; !seen {
			priorities = append(priorities, priority)
		}
		groups[priority] = append(groups[priority], candidate)
	}
	sort.Ints(priorities)

	result := make([]*Candidate, 0, len(candidates))
	for _, priority := range priorities {
		result = append(result, orderPriorityGroup(groups[priority], affinityKey)...)
	}
	return append(result, orderPriorityGroup(unranked, affinityKey)...)
}

// orderPriorityGroup orders one same-priority group, by caller hash when the
// group can be spread and by structural order otherwise.
func orderPriorityGroup(group []*Candidate, affinityKey string) []*Candidate {
	if len(group) > 1 && affinityKey != "" {
		sort.SliceStable(group, func(i, j int) bool {
			return candidateHash(affinityKey, group[i].Key.ID) < candidateHash(affinityKey, group[j].Key.ID)
		})
	} else {
		sort.SliceStable(group, func(i, j int) bool {
			left, right := group[i], group[j]
			if left.Provider.Priority != right.Provider.Priority {
				return left.Provider.Priority < right.Provider.Priority
			}
			if left.Key.InternalPriority != right.Key.InternalPriority {
				return left.Key.InternalPriority < right.Key.InternalPriority
			}
			return left.Key.ID < right.Key.ID
		})
	}
	return group
}

// promoteAffine moves candidates matching the remembered triple to the front
// while preserving the relative order of everything else.
func promoteAffine(candidates []*Candidate, providerID, endpointID, keyID uint64) []*Candidate {
	var affine, rest []*Candidate
	for _, candidate := range candidates {
		if candidate.Matches(providerID, endpointID, keyID) {
			candidate.Affine = true
			affine = append(affine, candidate)
		} else {
			rest = append(rest, candidate)
		}
	}
	if len(affine) == 0 {
		return candidates
	}
	return append(affine, rest...)
}
