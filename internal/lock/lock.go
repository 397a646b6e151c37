// Package lock provides named, cross-process mutual exclusion.
//
// Lock state always lives outside process memory so that independent worker
// instances serialize against each other. Acquisition polls until it succeeds;
// only context cancellation or a backend failure ends it early.
package lock

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync"
	"time"
)

// DefaultPollInterval is the delay between acquisition attempts.
const DefaultPollInterval = 3 * time.Second

// Release gives the lock back. Calls after the first are no-ops.
type Release func()

// Locker acquires named locks.
type Locker interface {
	Acquire(ctx context.Context, name string) (Release, error)
}

// attemptFunc tries to take the lock once. acquired=false with a nil error
// means the lock is held elsewhere.
type attemptFunc func(ctx context.Context) (release func() error, acquired bool, err error)

// poll runs attempt immediately and then every interval until it succeeds.
func poll(ctx context.Context, name string, interval time.Duration, attempt attemptFunc) (Release, error) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	start := time.Now()
	attempts := 0
	for {
		attempts++
		release, acquired, err := attempt(ctx)
		if err != nil {
			return nil, err
		}
		if acquired {
			if attempts > 1 {
				slog.Info("Lock acquired after waiting.", "lock", name, "attempts", attempts, "waited", time.Since(start).String())
			}
			return once(name, release), nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func once(name string, release func() error) Release {
	var o sync.Once
	return func() {
		o.Do(func() {
			if err := release(); err != nil {
				slog.Warn("Failed to release lock", "lock", name, "error", err)
			}
		})
	}
}

// SafeName maps an arbitrary lock name onto a short token usable as a file or
// object name.
func SafeName(name string) string {
	sum := sha256.Sum256([]byte(name))
	return hex.EncodeToString(sum[:12])
}
