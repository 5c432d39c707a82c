// Package affinity remembers the last triple that served each
// caller/format/model tuple so follow-up requests can land on a warm
// upstream prompt cache. Entries are scoped per wire format because a
// caller talking two formats holds two independent upstream caches.
package affinity

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Entry is the remembered selection for one caller/format/model tuple.
type Entry struct {
	ProviderID uint64    `json:"provider_id"`
	EndpointID uint64    `json:"endpoint_id"`
	KeyID      uint64    `json:"key_id"`
	StoredAt   time.Time `json:"stored_at"`
}

// Store persists affinity entries with a sliding TTL: reads refresh the
// remaining lifetime so an active conversation never expires mid-flight.
type Store interface {
	Get(ctx context.Context, key string, ttl time.Duration) (Entry, bool, error)
	Set(ctx context.Context, key string, entry Entry, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// entryKey builds the backend key for one caller/format/model tuple. An
// empty format is its own scope so format-less selections never collide
// with format-bound ones.
func entryKey(prefix, callerID, format, model string) string {
	cleaned := strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if cleaned == "" {
		cleaned = "mrelay"
	}
	return fmt.Sprintf("%s:aff:%s:%s:%s", cleaned, callerID, format, model)
}
