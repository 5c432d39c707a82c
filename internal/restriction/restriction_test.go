package restriction

import (
	"testing"

	"github.com/modelrelay/modelrelay/internal/models"
)

func TestResolveUnrestricted(t *testing.T) {
	key := &models.APIKey{User: &models.User{}}
	resolved := Resolve(key)
	if !resolved.Unrestricted() {
		t.Fatalf("expected unrestricted, got %+v", resolved)
	}
	if !resolved.AllowsProvider(42) || !resolved.AllowsEndpoint(42) ||
		!resolved.AllowsModel("gpt-x") || !resolved.AllowsFormat("openai") {
		t.Fatal("unrestricted caller must allow everything")
	}
}

func TestResolveSingleLevel(t *testing.T) {
	key := &models.APIKey{
		AllowedProviderIDs: models.Uint64List{1, 2},
		AllowedFormats:     models.StringList{"openai"},
		User:               &models.User{},
	}
	resolved := Resolve(key)
	if !resolved.AllowsProvider(1) || resolved.AllowsProvider(3) {
		t.Fatalf("expected providers {1,2}, got %+v", resolved.ProviderIDs)
	}
	if !resolved.AllowsFormat("openai") || resolved.AllowsFormat("claude") {
		t.Fatalf("expected formats {openai}, got %+v", resolved.Formats)
	}
	if !resolved.AllowsEndpoint(99) || !resolved.AllowsModel("anything") {
		t.Fatal("untouched dimensions should remain unrestricted")
	}
}

func TestResolveIntersection(t *testing.T) {
	key := &models.APIKey{
		AllowedProviderIDs: models.Uint64List{1, 2, 3},
		AllowedModels:      models.StringList{"gpt-a", "gpt-b"},
		User: &models.User{
			AllowedProviderIDs: models.Uint64List{2, 3, 4},
			AllowedModels:      models.StringList{"gpt-b", "gpt-c"},
		},
	}
	resolved := Resolve(key)
	if resolved.AllowsProvider(1) || resolved.AllowsProvider(4) {
		t.Fatalf("expected intersection {2,3}, got %+v", resolved.ProviderIDs)
	}
	if !resolved.AllowsProvider(2) || !resolved.AllowsProvider(3) {
		t.Fatalf("expected intersection {2,3}, got %+v", resolved.ProviderIDs)
	}
	if !resolved.AllowsModel("gpt-b") || resolved.AllowsModel("gpt-a") || resolved.AllowsModel("gpt-c") {
		t.Fatalf("expected model intersection {gpt-b}, got %+v", resolved.Models)
	}
}

func TestResolveEmptyIntersection(t *testing.T) {
	key := &models.APIKey{
		AllowedEndpointIDs: models.Uint64List{1},
		User: &models.User{
			AllowedEndpointIDs: models.Uint64List{2},
		},
	}
	resolved := Resolve(key)
	if resolved.EndpointIDs == nil {
		t.Fatal("empty intersection must stay non-nil")
	}
	if !resolved.Empty() {
		t.Fatal("empty intersection makes the set empty")
	}
	if resolved.AllowsEndpoint(1) || resolved.AllowsEndpoint(2) {
		t.Fatal("empty intersection allows no endpoint")
	}
}

func TestResolveNilCaller(t *testing.T) {
	if !Resolve(nil).Unrestricted() {
		t.Fatal("nil caller is unrestricted")
	}
}
