package affinity

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

// Manager routes affinity reads and writes to the configured store, falling
// back to process memory when Redis misbehaves. Affinity is an optimization,
// so backend errors degrade silently to "no cached triple".
type Manager struct {
	settings func() settings.Snapshot
	memory   *memoryStore
	nowFn    func() time.Time

	mu          sync.Mutex
	redis       *redisStore
	redisClient *redis.Client
	redisAddr   string
	redisDB     int

	breakerUntil atomic.Int64 // unix nano, 0 when closed
}

// NewManager creates an affinity manager. settingsFn must not be nil.
func NewManager(settingsFn func() settings.Snapshot) *Manager {
	return &Manager{
		settings: settingsFn,
		memory:   newMemoryStore(),
		nowFn:    time.Now,
	}
}

// SetNowFunc overrides the clock for the manager and its memory store,
// used by tests.
func (m *Manager) SetNowFunc(now func() time.Time) {
	if now != nil {
		m.nowFn = now
		m.memory.nowFn = now
	}
}

// Lookup returns the remembered triple for the caller/format/model tuple,
// refreshing the sliding TTL on hit.
func (m *Manager) Lookup(ctx context.Context, callerID, format, model string, ttl time.Duration) (Entry, bool) {
	snap := m.settings()
	key := entryKey(snap.RedisPrefix, callerID, format, model)

	store := m.store(snap)
	entry, found, errGet := store.Get(ctx, key, ttl)
	if errGet != nil {
		m.tripBreaker()
		log.WithError(errGet).Warn("affinity backend failed, falling back to memory")
		entry, found, _ = m.memory.Get(ctx, key, ttl)
	}
	return entry, found
}

// Remember stores the triple that served the caller/format/model tuple. A
// zero ttl disables affinity for this selection, and clears any stale entry.
func (m *Manager) Remember(ctx context.Context, callerID, format, model string, entry Entry, ttl time.Duration) {
	snap := m.settings()
	key := entryKey(snap.RedisPrefix, callerID, format, model)

	if ttl <= 0 {
		m.Forget(ctx, callerID, format, model)
		return
	}
	entry.StoredAt = m.nowFn().UTC()

	store := m.store(snap)
	if errSet := store.Set(ctx, key, entry, ttl); errSet != nil {
		m.tripBreaker()
		log.WithError(errSet).Warn("affinity backend failed, falling back to memory")
		_ = m.memory.Set(ctx, key, entry, ttl)
	}
}

// Forget removes the remembered triple, used when the cached key turned out
// to be unusable.
func (m *Manager) Forget(ctx context.Context, callerID, format, model string) {
	snap := m.settings()
	key := entryKey(snap.RedisPrefix, callerID, format, model)

	store := m.store(snap)
	if errDel := store.Delete(ctx, key); errDel != nil {
		m.tripBreaker()
		log.WithError(errDel).Warn("affinity backend failed, falling back to memory")
		_ = m.memory.Delete(ctx, key)
	}
}

// store picks the live store for this call.
func (m *Manager) store(snap settings.Snapshot) Store {
	if !snap.RedisEnabled || snap.RedisAddr == "" || m.isBreakerActive() {
		return m.memory
	}
	return m.redisStore(snap)
}

// redisStore returns the cached Redis store, rebuilding the client when the
// address or DB changed.
func (m *Manager) redisStore(snap settings.Snapshot) Store {
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
	m.redis = newRedisStore(m.redisClient)
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
