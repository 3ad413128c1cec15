// Package ratelimit provides fixed-window attempt counters used to slow down
// credential and code guessing.
//
// Counters live behind a Store so a single process can use the in-memory
// implementation while multi-replica deployments share state through Redis.
package ratelimit

import (
	"context"
	"strings"
	"time"
)

// Store persists window counters. Incr must be atomic under concurrent
// callers: two simultaneous hits on the same key count as two.
type Store interface {
	// Incr adds one attempt for key, opening a new window of the given length
	// when none is active, and returns the count within the current window.
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
	// Count returns the current window count without mutating state. An
	// elapsed or absent window reads as zero.
	Count(ctx context.Context, key string) (int64, error)
	// TTL returns the remaining time of the active window, zero when none.
	TTL(ctx context.Context, key string) (time.Duration, error)
	// Reset removes the counter for key.
	Reset(ctx context.Context, key string) error
}

// Limiter is the rate-limit contract consumed by usecases.
type Limiter interface {
	Hit(ctx context.Context, key string, window time.Duration) error
	TooManyAttempts(ctx context.Context, key string, maxAttempts int64) (bool, error)
	AvailableIn(ctx context.Context, key string) (int64, error)
	Clear(ctx context.Context, key string) error
}

// FixedWindow implements Limiter over a Store.
type FixedWindow struct {
	store Store
}

// NewFixedWindow builds a Limiter backed by the given Store.
func NewFixedWindow(store Store) *FixedWindow {
	return &FixedWindow{store: store}
}

// Hit records one attempt for key within the window.
func (l *FixedWindow) Hit(ctx context.Context, key string, window time.Duration) error {
	_, err := l.store.Incr(ctx, key, window)
	return err
}

// TooManyAttempts reports whether key has reached maxAttempts in the current
// window. It never mutates the counter, so checking is free.
func (l *FixedWindow) TooManyAttempts(ctx context.Context, key string, maxAttempts int64) (bool, error) {
	count, err := l.store.Count(ctx, key)
	if err != nil {
		return false, err
	}

	return count >= maxAttempts, nil
}

// AvailableIn returns the whole seconds until the current window resets,
// rounded up so callers never retry early.
func (l *FixedWindow) AvailableIn(ctx context.Context, key string) (int64, error) {
	ttl, err := l.store.TTL(ctx, key)
	if err != nil {
		return 0, err
	}
	if ttl <= 0 {
		return 0, nil
	}

	secs := int64(ttl / time.Second)
	if ttl%time.Second != 0 {
		secs++
	}

	return secs, nil
}

// Clear forgets the counter, typically after a successful verification.
func (l *FixedWindow) Clear(ctx context.Context, key string) error {
	return l.store.Reset(ctx, key)
}

// Key composes a counter key from an action name and its scoping parts.
func Key(action string, parts ...string) string {
	if len(parts) == 0 {
		return action
	}

	return action + ":" + strings.Join(parts, ":")
}
