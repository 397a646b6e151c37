package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Lllllllleong/candidatequiz/internal/store"
)

// Sweeper removes pending groups left behind by workers that died mid-generation.
type Sweeper struct {
	store      store.GroupStore
	staleAfter time.Duration
	now        func() time.Time
}

// NewSweeper returns a sweeper that treats pending groups older than
// staleAfter as abandoned.
func NewSweeper(st store.GroupStore, staleAfter time.Duration) *Sweeper {
	return &Sweeper{store: st, staleAfter: staleAfter, now: time.Now}
}

// SweepAll deletes every pending group. It is meant for process start, when
// no generation of this deployment can be in flight.
func (s *Sweeper) SweepAll(ctx context.Context) (int, error) {
	return s.sweep(ctx, s.now())
}

// SweepStale deletes pending groups older than the stale threshold and is
// safe to run while other workers generate.
func (s *Sweeper) SweepStale(ctx context.Context) (int, error) {
	return s.sweep(ctx, s.now().Add(-s.staleAfter))
}

func (s *Sweeper) sweep(ctx context.Context, cutoff time.Time) (int, error) {
	n, err := s.store.SweepPending(ctx, cutoff)
	if err != nil {
		return n, fmt.Errorf("failed to sweep pending groups: %w", err)
	}
	slog.Info("Pending groups swept.", "deleted", n, "cutoff", cutoff.Format(time.RFC3339))
	return n, nil
}
