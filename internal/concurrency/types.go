// Package concurrency tracks in-flight requests per provider key across one
// process or, with Redis, a whole fleet.
package concurrency

import "context"

// Backend stores in-flight counters. Implementations must be safe for
// concurrent use.
type Backend interface {
	// Acquire increments the counter unless it already reached limit.
	// A non-positive limit means unlimited. Returns whether the slot was
	// granted and the counter value after the call.
	Acquire(ctx context.Context, key string, limit int) (bool, int, error)
	// Release decrements the counter, never below zero, and returns the
	// new value.
	Release(ctx context.Context, key string) (int, error)
	// Current returns the counter value without modifying it.
	Current(ctx context.Context, key string) (int, error)
}
