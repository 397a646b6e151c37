package services

import (
	"context"
	"testing"
	"time"

	"github.com/Lllllllleong/candidatequiz/internal/models"
	"github.com/Lllllllleong/candidatequiz/internal/store"
)

func TestSweeper(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	st := store.NewMemoryStore()

	old, _ := st.CreateIfAbsent(ctx, president2024, now.Add(-time.Hour))
	recent, _ := st.CreateIfAbsent(ctx, models.Fingerprint{Year: 2020, Type: models.President}, now.Add(-time.Minute))
	done, _ := st.CreateIfAbsent(ctx, models.Fingerprint{Year: 2016, Type: models.President}, now.Add(-2*time.Hour))
	if err := st.MarkValid(ctx, done.ID, now.Add(time.Hour)); err != nil {
		t.Fatal(err)
	}

	sw := NewSweeper(st, 15*time.Minute)
	sw.now = func() time.Time { return now }

	n, err := sw.SweepStale(ctx)
	if err != nil || n != 1 {
		t.Fatalf("SweepStale() = %d, %v; want 1, nil", n, err)
	}
	if _, err := st.GetGroup(ctx, old.ID); err != store.ErrNotFound {
		t.Errorf("stale pending group survived")
	}
	if _, err := st.GetGroup(ctx, recent.ID); err != nil {
		t.Errorf("recent pending group swept: %v", err)
	}

	n, err = sw.SweepAll(ctx)
	if err != nil || n != 1 {
		t.Fatalf("SweepAll() = %d, %v; want 1, nil", n, err)
	}
	if _, err := st.GetGroup(ctx, done.ID); err != nil {
		t.Errorf("completed group swept: %v", err)
	}
}
