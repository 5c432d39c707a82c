package scheduler

import (
	"fmt"
	"testing"

	"github.com/modelrelay/modelrelay/internal/models"
	"github.com/modelrelay/modelrelay/internal/settings"
)

func testCandidate(providerID, endpointID, keyID uint64, providerPriority, internalPriority int, globalPriority *int) *Candidate {
	return &Candidate{
		Provider: &models.Provider{ID: providerID, Priority: providerPriority},
		Endpoint: &models.Endpoint{ID: endpointID, ProviderID: providerID},
		Key: &models.ProviderKey{
			ID:               keyID,
			EndpointID:       endpointID,
			InternalPriority: internalPriority,
			GlobalPriority:   globalPriority,
		},
	}
}

func keyIDs(candidates []*Candidate) []uint64 {
	ids := make([]uint64, 0, len(candidates))
	for _, candidate := range candidates {
		ids = append(ids, candidate.Key.ID)
	}
	return ids
}

func TestCandidateHashDeterministic(t *testing.T) {
	first := candidateHash("caller-1", 42)
	second := candidateHash("caller-1", 42)
	if first != second {
		t.Fatalf("hash not stable: %d != %d", first, second)
	}
	if candidateHash("caller-2", 42) == first {
		t.Fatalf("different callers should usually hash differently")
	}
	if candidateHash("caller-1", 43) == first {
		t.Fatalf("different keys should usually hash differently")
	}
}

func TestCandidateHashSpreadsCallers(t *testing.T) {
	// With enough callers over two keys, both keys must win for someone.
	winners := make(map[uint64]int)
	for i := 0; i < 64; i++ {
		caller := fmt.Sprintf("caller-%d", i)
		if candidateHash(caller, 1) < candidateHash(caller, 2) {
			winners[1]++
		} else {
			winners[2]++
		}
	}
	if winners[1] == 0 || winners[2] == 0 {
		t.Fatalf("hash did not spread callers: %v", winners)
	}
}

func TestOrderKeysByInternalPriority(t *testing.T) {
	keys := []models.ProviderKey{
		{ID: 3, InternalPriority: 2},
		{ID: 1, InternalPriority: 1},
		{ID: 2, InternalPriority: 1},
	}

	ordered := orderKeysByInternalPriority(keys, "")
	if ordered[0].ID != 1 || ordered[1].ID != 2 || ordered[2].ID != 3 {
		t.Fatalf("unexpected order without caller: %v", []uint64{ordered[0].ID, ordered[1].ID, ordered[2].ID})
	}

	// Priority groups never interleave regardless of the caller hash.
	hashed := orderKeysByInternalPriority(keys, "caller-1")
	if hashed[2].ID != 3 {
		t.Fatalf("lower priority key must stay last, got %d", hashed[2].ID)
	}

	// The same caller sees the same order on every call.
	again := orderKeysByInternalPriority(keys, "caller-1")
	for i := range hashed {
		if hashed[i].ID != again[i].ID {
			t.Fatalf("order not stable for one caller: %v vs %v", hashed[i].ID, again[i].ID)
		}
	}
}

func TestApplyPriorityModeProviderKeepsOrder(t *testing.T) {
	ten := 10
	candidates := []*Candidate{
		testCandidate(1, 1, 1, 1, 1, &ten),
		testCandidate(2, 2, 2, 2, 1, nil),
	}
	ordered := applyPriorityMode(candidates, settings.PriorityModeProvider, "caller-1")
	if ordered[0].Key.ID != 1 || ordered[1].Key.ID != 2 {
		t.Fatalf("provider mode must keep build order, got %v", keyIDs(ordered))
	}
}

func TestSortByGlobalPriorityNilLast(t *testing.T) {
	ten, twenty := 10, 20
	candidates := []*Candidate{
		testCandidate(1, 1, 1, 1, 1, nil),
		testCandidate(2, 2, 2, 2, 1, &twenty),
		testCandidate(3, 3, 3, 3, 1, &ten),
	}
	ordered := applyPriorityMode(candidates, settings.PriorityModeGlobalKey, "")
	got := keyIDs(ordered)
	want := []uint64{3, 2, 1}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}

func TestSortByGlobalPriorityHugeRankBeatsNil(t *testing.T) {
	huge := 999999
	// Any numeric priority outranks a key with none, no matter how large.
	candidates := []*Candidate{
		testCandidate(1, 1, 1, 1, 1, nil),
		testCandidate(2, 2, 2, 2, 1, &huge),
	}
	ordered := applyPriorityMode(candidates, settings.PriorityModeGlobalKey, "")
	if ordered[0].Key.ID != 2 || ordered[1].Key.ID != 1 {
		t.Fatalf("unranked key must sort last, got %v", keyIDs(ordered))
	}
}

func TestSortByGlobalPrioritySecondaryOrder(t *testing.T) {
	ten := 10
	// Same global priority, no caller: provider priority breaks the tie.
	candidates := []*Candidate{
		testCandidate(1, 1, 1, 5, 1, &ten),
		testCandidate(2, 2, 2, 1, 1, &ten),
	}
	ordered := applyPriorityMode(candidates, settings.PriorityModeGlobalKey, "")
	if ordered[0].Key.ID != 2 {
		t.Fatalf("provider priority should break ties, got %v", keyIDs(ordered))
	}
}

func TestPromoteAffine(t *testing.T) {
	candidates := []*Candidate{
		testCandidate(1, 1, 1, 1, 1, nil),
		testCandidate(2, 2, 2, 2, 1, nil),
		testCandidate(3, 3, 3, 3, 1, nil),
	}

	promoted := promoteAffine(candidates, 2, 2, 2)
	if promoted[0].Key.ID != 2 || !promoted[0].Affine {
		t.Fatalf("remembered candidate not promoted: %v", keyIDs(promoted))
	}
	if promoted[1].Key.ID != 1 || promoted[2].Key.ID != 3 {
		t.Fatalf("remainder order changed: %v", keyIDs(promoted))
	}

	// No match leaves the list untouched.
	same := promoteAffine(candidates, 9, 9, 9)
	if same[0].Key.ID != 1 || same[1].Key.ID != 2 || same[2].Key.ID != 3 {
		t.Fatalf("promoteAffine without a match must keep order, got %v", keyIDs(same))
	}
}
