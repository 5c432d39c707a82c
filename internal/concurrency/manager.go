package concurrency

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/modelrelay/modelrelay/internal/settings"
)

// redisBreakerWindow is how long Redis stays benched after an error.
const redisBreakerWindow = 30 * time.Second

// Manager routes counter operations to the configured backend. Redis errors
// trip a short breaker and the manager falls back to process memory so
// scheduling keeps working during Redis outages.
type Manager struct {
	settings func() settings.Snapshot
	memory   *memoryBackend
	nowFn    func() time.Time

	mu          sync.Mutex
	redis       *redisBackend
	redisClient *redis.Client
	redisAddr   string
	redisDB     int

	breakerUntil atomic.Int64 // unix nano, 0 when closed
}

// NewManager creates a concurrency manager. settingsFn must not be nil.
func NewManager(settingsFn func() settings.Snapshot) *Manager {
	return &Manager{
		settings: settingsFn,
		memory:   newMemoryBackend(),
		nowFn:    time.Now,
	}
}

// SetNowFunc overrides the clock, used by tests.
func (m *Manager) SetNowFunc(now func() time.Time) {
	if now != nil {
		m.nowFn = now
	}
}

// AcquireKey takes one in-flight slot for the provider key. A nil limit
// means unlimited. Returns whether the slot was granted and the counter
// after the call.
func (m *Manager) AcquireKey(ctx context.Context, providerKeyID uint64, limit *int) (bool, int) {
	return m.acquire(ctx, scopeKey, providerKeyID, limit)
}

// ReleaseKey returns one in-flight slot for the provider key.
func (m *Manager) ReleaseKey(ctx context.Context, providerKeyID uint64) {
	m.release(ctx, scopeKey, providerKeyID)
}

// KeyInFlight returns the current counter for the provider key.
func (m *Manager) KeyInFlight(ctx context.Context, providerKeyID uint64) int {
	return m.current(ctx, scopeKey, providerKeyID)
}

// AcquireEndpoint takes one in-flight slot for the endpoint.
func (m *Manager) AcquireEndpoint(ctx context.Context, endpointID uint64, limit *int) (bool, int) {
	return m.acquire(ctx, scopeEndpoint, endpointID, limit)
}

// ReleaseEndpoint returns one in-flight slot for the endpoint.
func (m *Manager) ReleaseEndpoint(ctx context.Context, endpointID uint64) {
	m.release(ctx, scopeEndpoint, endpointID)
}

// EndpointInFlight returns the current counter for the endpoint.
func (m *Manager) EndpointInFlight(ctx context.Context, endpointID uint64) int {
	return m.current(ctx, scopeEndpoint, endpointID)
}

// DescribeKeys returns the current counters for a set of provider keys.
func (m *Manager) DescribeKeys(ctx context.Context, providerKeyIDs []uint64) map[uint64]int {
	result := make(map[uint64]int, len(providerKeyIDs))
	for _, id := range providerKeyIDs {
		result[id] = m.KeyInFlight(ctx, id)
	}
	return result
}

func (m *Manager) acquire(ctx context.Context, scope string, id uint64, limit *int) (bool, int) {
	snap := m.settings()
	key := counterKey(snap.RedisPrefix, scope, id)
	effectiveLimit := 0
	if limit != nil {
		effectiveLimit = *limit
	}

	backend := m.backend(snap)
	granted, current, errAcquire := backend.Acquire(ctx, key, effectiveLimit)
	if errAcquire != nil {
		m.tripBreaker()
		log.WithError(errAcquire).Warn("concurrency backend failed, falling back to memory")
		granted, current, _ = m.memory.Acquire(ctx, key, effectiveLimit)
	}
	return granted, current
}

func (m *Manager) release(ctx context.Context, scope string, id uint64) {
	snap := m.settings()
	key := counterKey(snap.RedisPrefix, scope, id)

	backend := m.backend(snap)
	if _, errRelease := backend.Release(ctx, key); errRelease != nil {
		m.tripBreaker()
		log.WithError(errRelease).Warn("concurrency backend failed, falling back to memory")
		_, _ = m.memory.Release(ctx, key)
	}
}

func (m *Manager) current(ctx context.Context, scope string, id uint64) int {
	snap := m.settings()
	key := counterKey(snap.RedisPrefix, scope, id)

	backend := m.backend(snap)
	current, errCurrent := backend.Current(ctx, key)
	if errCurrent != nil {
		m.tripBreaker()
		log.WithError(errCurrent).Warn("concurrency backend failed, falling back to memory")
		current, _ = m.memory.Current(ctx, key)
	}
	return current
}

// backend picks the live backend for this call.
func (m *Manager) backend(snap settings.Snapshot) Backend {
	if !snap.RedisEnabled || snap.RedisAddr == "" || m.isBreakerActive() {
		return m.memory
	}
	return m.redisBackend(snap)
}

// redisBackend returns the cached Redis backend, rebuilding the client when
// the address or DB changed.
func (m *Manager) redisBackend(snap settings.Snapshot) Backend {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.redis != nil && m.redisAddr == snap.RedisAddr && m.redisDB == snap.RedisDB {
		return m.redis
	}
	if m.redisClient != nil {
		_ = m.redisClient.Close()
	}
	m.redisClient = redis.NewClient(&redis.Options{
		Addr:     snap.RedisAddr,
		Password: snap.RedisPassword,
		DB:       snap.RedisDB,
	})
	m.redis = newRedisBackend(m.redisClient)
	m.redisAddr = snap.RedisAddr
	m.redisDB = snap.RedisDB
	return m.redis
}

func (m *Manager) tripBreaker() {
	m.breakerUntil.Store(m.nowFn().Add(redisBreakerWindow).UnixNano())
}

func (m *Manager) isBreakerActive() bool {
	until := m.breakerUntil.Load()
	if until == 0 {
		return false
	}
	if m.nowFn().UnixNano() >= until {
		m.breakerUntil.Store(0)
		return false
	}
	return true
}
