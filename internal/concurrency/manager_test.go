package concurrency

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/modelrelay/modelrelay/internal/settings"
)

func memorySettings() settings.Snapshot {
	return settings.Snapshot{RedisPrefix: "test"}
}

func TestCounterKey(t *testing.T) {
	if got := counterKey("mrelay", scopeKey, 7); got != "mrelay:conc:key:7" {
		t.Fatalf("unexpected key %q", got)
	}
	if got := counterKey("mrelay:", scopeEndpoint, 7); got != "mrelay:conc:ep:7" {
		t.Fatalf("trailing colon not trimmed: %q", got)
	}
	if got := counterKey("  ", scopeKey, 7); got != "mrelay:conc:key:7" {
		t.Fatalf("empty prefix not defaulted: %q", got)
	}
}

func TestAcquireKeyRespectsLimit(t *testing.T) {
	manager := NewManager(memorySettings)
	ctx := context.Background()
	limit := 2

	for i := 1; i <= 2; i++ {
		granted, current := manager.AcquireKey(ctx, 1, &limit)
		if !granted || current != i {
			t.Fatalf("acquire %d: granted=%v current=%d", i, granted, current)
		}
	}

	granted, current := manager.AcquireKey(ctx, 1, &limit)
	if granted {
		t.Fatal("third acquire must be denied at limit 2")
	}
	if current != 2 {
		t.Fatalf("denied acquire must report current=2, got %d", current)
	}

	manager.ReleaseKey(ctx, 1)
	if granted, _ := manager.AcquireKey(ctx, 1, &limit); !granted {
		t.Fatal("acquire after release must succeed")
	}
}

func TestAcquireUnlimited(t *testing.T) {
	manager := NewManager(memorySettings)
	ctx := context.Background()

	for i := 1; i <= 50; i++ {
		if granted, _ := manager.AcquireKey(ctx, 2, nil); !granted {
			t.Fatalf("unlimited acquire %d denied", i)
		}
	}
	if manager.KeyInFlight(ctx, 2) != 50 {
		t.Fatalf("expected 50 in flight, got %d", manager.KeyInFlight(ctx, 2))
	}
}

func TestKeyAndEndpointCountersIndependent(t *testing.T) {
	manager := NewManager(memorySettings)
	ctx := context.Background()

	manager.AcquireKey(ctx, 1, nil)
	manager.AcquireEndpoint(ctx, 1, nil)
	manager.AcquireEndpoint(ctx, 1, nil)

	if manager.KeyInFlight(ctx, 1) != 1 {
		t.Fatalf("key counter polluted: %d", manager.KeyInFlight(ctx, 1))
	}
	if manager.EndpointInFlight(ctx, 1) != 2 {
		t.Fatalf("endpoint counter polluted: %d", manager.EndpointInFlight(ctx, 1))
	}
}

func TestReleaseNeverGoesNegative(t *testing.T) {
	manager := NewManager(memorySettings)
	ctx := context.Background()

	manager.ReleaseKey(ctx, 3)
	if current := manager.KeyInFlight(ctx, 3); current != 0 {
		t.Fatalf("expected 0 after release on empty counter, got %d", current)
	}
}

func TestDescribeKeys(t *testing.T) {
	manager := NewManager(memorySettings)
	ctx := context.Background()

	manager.AcquireKey(ctx, 1, nil)
	manager.AcquireKey(ctx, 1, nil)
	manager.AcquireKey(ctx, 2, nil)

	snapshot := manager.DescribeKeys(ctx, []uint64{1, 2, 3})
	if snapshot[1] != 2 || snapshot[2] != 1 || snapshot[3] != 0 {
		t.Fatalf("unexpected snapshot %+v", snapshot)
	}
}

func TestConcurrentAcquire(t *testing.T) {
	manager := NewManager(memorySettings)
	ctx := context.Background()
	limit := 10

	var wg sync.WaitGroup
	granted := make(chan struct{}, 100)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := manager.AcquireKey(ctx, 4, &limit); ok {
				granted <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(granted)

	count := 0
	for range granted {
		count++
	}
	if count != 10 {
		t.Fatalf("expected exactly 10 grants, got %d", count)
	}
}

func TestBreakerFallsBackToMemory(t *testing.T) {
	// Redis enabled but pointing nowhere: the first call errors, trips the
	// breaker, and memory serves the rest.
	snap := settings.Snapshot{
		RedisEnabled: true,
		RedisAddr:    "127.0.0.1:1",
		RedisPrefix:  "test",
	}
	manager := NewManager(func() settings.Snapshot { return snap })
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	manager.SetNowFunc(func() time.Time { return now })

	ctx := context.Background()
	if granted, _ := manager.AcquireKey(ctx, 5, nil); !granted {
		t.Fatal("fallback acquire must succeed")
	}
	if !manager.isBreakerActive() {
		t.Fatal("redis error must trip the breaker")
	}

	// With the breaker open, calls go straight to memory.
	if current := manager.KeyInFlight(ctx, 5); current != 1 {
		t.Fatalf("expected memory counter 1, got %d", current)
	}

	now = now.Add(redisBreakerWindow + time.Second)
	if manager.isBreakerActive() {
		t.Fatal("breaker must close after its window")
	}
}
