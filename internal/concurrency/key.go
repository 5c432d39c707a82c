package concurrency

import (
	"fmt"
	"strings"
)

// Counter scopes. Keys and endpoints are counted independently because they
// carry independent caps.
const (
	scopeKey      = "key"
	scopeEndpoint = "ep"
)

// counterKey builds the backend key for one counter.
func counterKey(prefix, scope string, id uint64) string {
	cleaned := strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if cleaned == "" {
		cleaned = "mrelay"
	}
	return fmt.Sprintf("%s:conc:%s:%d", cleaned, scope, id)
}
