package affinity

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/modelrelay/modelrelay/internal/settings"
)

func memorySettings() settings.Snapshot {
	return settings.Snapshot{RedisPrefix: "test"}
}

func TestEntryKey(t *testing.T) {
	if got := entryKey("mrelay", "user:7", "openai", "relay-large"); got != "mrelay:aff:user:7:openai:relay-large" {
		t.Fatalf("unexpected key %q", got)
	}
	if got := entryKey("", "u", "f", "m"); got != "mrelay:aff:u:f:m" {
		t.Fatalf("empty prefix not defaulted: %q", got)
	}
}

func TestRememberAndLookup(t *testing.T) {
	manager := NewManager(memorySettings)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	manager.SetNowFunc(func() time.Time { return now })
	ctx := context.Background()

	manager.Remember(ctx, "user:1", "openai", "relay-large", Entry{ProviderID: 1, EndpointID: 2, KeyID: 3}, 5*time.Minute)

	entry, found := manager.Lookup(ctx, "user:1", "openai", "relay-large", 5*time.Minute)
	if !found {
		t.Fatal("expected affinity hit")
	}
	if entry.ProviderID != 1 || entry.EndpointID != 2 || entry.KeyID != 3 {
		t.Fatalf("unexpected entry %+v", entry)
	}
	if entry.StoredAt != now {
		t.Fatalf("expected StoredAt set, got %v", entry.StoredAt)
	}

	if _, found := manager.Lookup(ctx, "user:1", "openai", "other-model", 5*time.Minute); found {
		t.Fatal("different model must miss")
	}
	if _, found := manager.Lookup(ctx, "user:1", "claude", "relay-large", 5*time.Minute); found {
		t.Fatal("different format must miss")
	}
}

func TestEntryExpires(t *testing.T) {
	manager := NewManager(memorySettings)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	manager.SetNowFunc(func() time.Time { return now })
	ctx := context.Background()

	manager.Remember(ctx, "user:1", "openai", "relay-large", Entry{KeyID: 3}, time.Minute)

	now = now.Add(2 * time.Minute)
	if _, found := manager.Lookup(ctx, "user:1", "openai", "relay-large", time.Minute); found {
		t.Fatal("expired entry must miss")
	}
}

func TestSlidingTTL(t *testing.T) {
	manager := NewManager(memorySettings)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	manager.SetNowFunc(func() time.Time { return now })
	ctx := context.Background()

	manager.Remember(ctx, "user:1", "openai", "relay-large", Entry{KeyID: 3}, 10*time.Minute)

	// A lookup at t+8m refreshes the clock; the entry survives past t+10m.
	now = now.Add(8 * time.Minute)
	if _, found := manager.Lookup(ctx, "user:1", "openai", "relay-large", 10*time.Minute); !found {
		t.Fatal("entry should still be live at t+8m")
	}
	now = now.Add(9 * time.Minute)
	if _, found := manager.Lookup(ctx, "user:1", "openai", "relay-large", 10*time.Minute); !found {
		t.Fatal("sliding TTL must keep an active entry alive")
	}
	now = now.Add(11 * time.Minute)
	if _, found := manager.Lookup(ctx, "user:1", "openai", "relay-large", 10*time.Minute); found {
		t.Fatal("idle entry must expire")
	}
}

func TestZeroTTLClearsEntry(t *testing.T) {
	manager := NewManager(memorySettings)
	ctx := context.Background()

	manager.Remember(ctx, "user:1", "openai", "relay-large", Entry{KeyID: 3}, 10*time.Minute)
	manager.Remember(ctx, "user:1", "openai", "relay-large", Entry{KeyID: 4}, 0)

	if _, found := manager.Lookup(ctx, "user:1", "openai", "relay-large", 10*time.Minute); found {
		t.Fatal("zero ttl must clear the entry")
	}
}

func TestForget(t *testing.T) {
	manager := NewManager(memorySettings)
	ctx := context.Background()

	manager.Remember(ctx, "user:1", "openai", "relay-large", Entry{KeyID: 3}, 10*time.Minute)
	manager.Forget(ctx, "user:1", "openai", "relay-large")

	if _, found := manager.Lookup(ctx, "user:1", "openai", "relay-large", 10*time.Minute); found {
		t.Fatal("forgotten entry must miss")
	}
}

func TestMemoryLRUEviction(t *testing.T) {
	store := newMemoryStore()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	store.nowFn = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < memoryLimit+1; i++ {
		key := fmt.Sprintf("k%d", i)
		if errSet := store.Set(ctx, key, Entry{KeyID: uint64(i)}, time.Hour); errSet != nil {
			t.Fatalf("set %s: %v", key, errSet)
		}
	}

	if _, found, _ := store.Get(ctx, "k0", time.Hour); found {
		t.Fatal("oldest entry must be evicted at capacity")
	}
	if _, found, _ := store.Get(ctx, fmt.Sprintf("k%d", memoryLimit), time.Hour); !found {
		t.Fatal("newest entry must survive")
	}
}
