package capability

import (
	"testing"

	"github.com/modelrelay/modelrelay/internal/models"
)

func TestMissingForModel(t *testing.T) {
	model := &models.GlobalModel{
		SupportedCapabilities: models.StringList{Tools, Vision},
	}
	missing := MissingForModel(model, []string{Tools, Thinking})
	if len(missing) != 1 || missing[0] != Thinking {
		t.Fatalf("expected [thinking], got %v", missing)
	}
}

func TestMissingForModelNilListAdmitsAll(t *testing.T) {
	model := &models.GlobalModel{}
	if missing := MissingForModel(model, []string{Tools, WebSearch}); len(missing) != 0 {
		t.Fatalf("nil capability list must admit everything, got %v", missing)
	}
}

func TestMissingForKey(t *testing.T) {
	key := &models.ProviderKey{
		Capabilities: models.CapabilityMap{Tools: true, Vision: false},
	}
	missing := MissingForKey(key, []string{Tools, Vision, JSONMode})
	if len(missing) != 2 {
		t.Fatalf("expected 2 missing, got %v", missing)
	}
}

func TestMissingForKeyNoCapabilitiesMap(t *testing.T) {
	key := &models.ProviderKey{}
	if missing := MissingForKey(key, []string{Tools}); len(missing) != 1 {
		t.Fatalf("key without capability map supports nothing, got %v", missing)
	}
	if missing := MissingForKey(key, nil); missing != nil {
		t.Fatalf("no requirements means nothing missing, got %v", missing)
	}
}

func TestWastedForKey(t *testing.T) {
	key := &models.ProviderKey{
		Capabilities:          models.CapabilityMap{Vision: true},
		ExclusiveCapabilities: models.StringList{Vision},
	}
	if wasted := WastedForKey(key, nil); len(wasted) != 1 || wasted[0] != Vision {
		t.Fatalf("plain request must waste the exclusive key, got %v", wasted)
	}
	if wasted := WastedForKey(key, []string{Tools}); len(wasted) != 1 {
		t.Fatalf("unrelated capability must still waste the key, got %v", wasted)
	}
	if wasted := WastedForKey(key, []string{Vision, Tools}); wasted != nil {
		t.Fatalf("request needing the capability may use the key, got %v", wasted)
	}
}

func TestWastedForKeyNoExclusivity(t *testing.T) {
	key := &models.ProviderKey{Capabilities: models.CapabilityMap{Vision: true}}
	if wasted := WastedForKey(key, nil); wasted != nil {
		t.Fatalf("key without exclusive list serves anyone, got %v", wasted)
	}
}

func TestSupportsStreaming(t *testing.T) {
	model := &models.GlobalModel{SupportsStreaming: true}
	if !SupportsStreaming(nil, model) {
		t.Fatal("nil implementation inherits the model default")
	}

	off := false
	impl := &models.ModelImplementation{SupportsStreaming: &off}
	if SupportsStreaming(impl, model) {
		t.Fatal("implementation override must win")
	}

	inherit := &models.ModelImplementation{}
	if !SupportsStreaming(inherit, model) {
		t.Fatal("implementation without override inherits the model default")
	}
}
