package store

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/Lllllllleong/candidatequiz/internal/models"
)

var (
	presidential = models.Fingerprint{Year: 2024, Type: models.President}
	taipeiMayor  = models.Fingerprint{Year: 2022, Type: models.MunicipalMayor, City: "臺北市"}
)

func backends(t *testing.T) map[string]func(t *testing.T) Store {
	return map[string]func(t *testing.T) Store{
		"memory": func(t *testing.T) Store { return NewMemoryStore() },
		"sqlite": func(t *testing.T) Store {
			s, err := OpenSQLite(filepath.Join(t.TempDir(), "quiz.db"))
			if err != nil {
				t.Fatalf("OpenSQLite() error = %v", err)
			}
			t.Cleanup(func() { s.Close() })
			return s
		},
	}
}

func forEachBackend(t *testing.T, fn func(t *testing.T, s Store)) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			fn(t, open(t))
		})
	}
}

func sampleRecord(name string, questions ...string) models.CandidateRecord {
	rec := models.CandidateRecord{Name: name, Party: "無黨籍"}
	for _, q := range questions {
		rec.Deeds = append(rec.Deeds, models.DeedRecord{Description: "d-" + q, Keyword: "k-" + q, Question: q})
	}
	return rec
}

func TestCreateIfAbsentLifecycle(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		now := time.Now()

		g, err := s.CreateIfAbsent(ctx, presidential, now)
		if err != nil || g == nil {
			t.Fatalf("CreateIfAbsent() = %v, %v; want new group", g, err)
		}
		if g.State(now) != models.GroupPending {
			t.Errorf("new group state = %s, want pending", g.State(now))
		}

		again, err := s.CreateIfAbsent(ctx, presidential, now)
		if err != nil {
			t.Fatalf("second CreateIfAbsent() error = %v", err)
		}
		if again != nil {
			t.Fatalf("expected nil while a pending group exists, got %+v", again)
		}

		found, err := s.FindValidOrExpired(ctx, presidential)
		if err != nil {
			t.Fatalf("FindValidOrExpired() error = %v", err)
		}
		if found != nil {
			t.Errorf("pending groups must not be returned, got %+v", found)
		}

		if err := s.MarkValid(ctx, g.ID, now.Add(models.DefaultGroupTTL)); err != nil {
			t.Fatalf("MarkValid() error = %v", err)
		}
		found, err = s.FindValidOrExpired(ctx, presidential)
		if err != nil || found == nil {
			t.Fatalf("FindValidOrExpired() = %v, %v; want valid group", found, err)
		}
		if found.ID != g.ID || found.State(now) != models.GroupValid {
			t.Errorf("found %+v, want valid group %s", found, g.ID)
		}

		if again, _ := s.CreateIfAbsent(ctx, presidential, now); again != nil {
			t.Errorf("expected nil while a valid group exists, got %+v", again)
		}
		later := now.Add(models.DefaultGroupTTL + time.Hour)
		refresh, err := s.CreateIfAbsent(ctx, presidential, later)
		if err != nil || refresh == nil {
			t.Fatalf("CreateIfAbsent() after expiry = %v, %v; want new group", refresh, err)
		}

		// The expired group stays the latest completed one while the refresh is pending.
		found, _ = s.FindValidOrExpired(ctx, presidential)
		if found == nil || found.ID != g.ID || found.State(later) != models.GroupExpired {
			t.Errorf("expected expired group %s as fallback, got %+v", g.ID, found)
		}
	})
}

func TestFindValidOrExpiredPicksLatestExpiry(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		base := time.Now().Add(-48 * time.Hour)

		first, _ := s.CreateIfAbsent(ctx, presidential, base)
		_ = s.MarkValid(ctx, first.ID, base.Add(time.Hour))
		second, _ := s.CreateIfAbsent(ctx, presidential, base.Add(2*time.Hour))
		if second == nil {
			t.Fatal("expected a second group after the first expired")
		}
		_ = s.MarkValid(ctx, second.ID, base.Add(3*time.Hour))

		found, err := s.FindValidOrExpired(ctx, presidential)
		if err != nil || found == nil {
			t.Fatalf("FindValidOrExpired() = %v, %v", found, err)
		}
		if found.ID != second.ID {
			t.Errorf("found %s, want latest group %s", found.ID, second.ID)
		}
	})
}

func TestFingerprintFieldsAreDistinct(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		now := time.Now()

		a, _ := s.CreateIfAbsent(ctx, taipeiMayor, now)
		withDistrict := taipeiMayor
		withDistrict.District = "大安區"
		b, _ := s.CreateIfAbsent(ctx, withDistrict, now)
		if a == nil || b == nil {
			t.Fatalf("absent and present district must be different fingerprints: %v, %v", a, b)
		}
		if again, _ := s.CreateIfAbsent(ctx, models.Fingerprint{Year: 2022, Type: models.MunicipalMayor, City: "臺北市", District: ""}, now); again != nil {
			t.Error("empty district must equal absent district")
		}
	})
}

func TestCreateIfAbsentConcurrent(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		now := time.Now()

		// The generation lock serializes callers in production; emulate it here.
		var mu sync.Mutex
		var wg sync.WaitGroup
		results := make(chan *models.Group, 10)
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				mu.Lock()
				defer mu.Unlock()
				g, err := s.CreateIfAbsent(ctx, presidential, now)
				if err != nil {
					t.Errorf("CreateIfAbsent() error = %v", err)
				}
				results <- g
			}()
		}
		wg.Wait()
		close(results)

		created := 0
		for g := range results {
			if g != nil {
				created++
			}
		}
		if created != 1 {
			t.Errorf("expected exactly one creation, got %d", created)
		}
	})
}

func TestCandidatesDeedsAndPictures(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		g, _ := s.CreateIfAbsent(ctx, presidential, time.Now())

		alice, err := s.InsertCandidateWithDeeds(ctx, g.ID, sampleRecord("Alice", "q1", "q2"))
		if err != nil {
			t.Fatalf("InsertCandidateWithDeeds() error = %v", err)
		}
		bob, err := s.InsertCandidateWithDeeds(ctx, g.ID, sampleRecord("Bob", "q3"))
		if err != nil {
			t.Fatalf("InsertCandidateWithDeeds() error = %v", err)
		}

		questions, err := s.QuestionsOf(ctx, g.ID)
		if err != nil {
			t.Fatalf("QuestionsOf() error = %v", err)
		}
		if len(questions) != 3 {
			t.Fatalf("expected 3 questions, got %d", len(questions))
		}

		candidates, deeds, err := s.CandidatesAndDeedsOf(ctx, g.ID)
		if err != nil {
			t.Fatalf("CandidatesAndDeedsOf() error = %v", err)
		}
		if len(candidates) != 2 || candidates[0].ID != alice.ID || candidates[1].ID != bob.ID {
			t.Errorf("candidates not returned in insertion order: %+v", candidates)
		}
		if len(deeds) != 3 {
			t.Errorf("expected 3 deeds, got %d", len(deeds))
		}

		deed, err := s.GetDeed(ctx, questions[0].ID)
		if err != nil {
			t.Fatalf("GetDeed() error = %v", err)
		}
		if deed.GroupID != g.ID {
			t.Errorf("deed group = %s, want %s", deed.GroupID, g.ID)
		}
		if _, err := s.GetDeed(ctx, "missing"); !errors.Is(err, ErrNotFound) {
			t.Errorf("GetDeed(missing) error = %v, want ErrNotFound", err)
		}

		url := "https://commons.wikimedia.org/alice.jpg"
		if err := s.SetPicture(ctx, alice.ID, &url); err != nil {
			t.Fatalf("SetPicture() error = %v", err)
		}
		if err := s.SetPicture(ctx, bob.ID, nil); err != nil {
			t.Fatalf("SetPicture(nil) error = %v", err)
		}
		pictures, err := s.PicturesOf(ctx, []string{alice.ID, bob.ID, "nobody"})
		if err != nil {
			t.Fatalf("PicturesOf() error = %v", err)
		}
		if got := pictures[alice.ID]; got == nil || *got != url {
			t.Errorf("alice picture = %v, want %s", got, url)
		}
		if got, ok := pictures[bob.ID]; !ok || got != nil {
			t.Errorf("bob picture = %v (present %v), want explicit nil", got, ok)
		}

		if err := s.DeleteChildren(ctx, g.ID); err != nil {
			t.Fatalf("DeleteChildren() error = %v", err)
		}
		questions, _ = s.QuestionsOf(ctx, g.ID)
		candidates, _, _ = s.CandidatesAndDeedsOf(ctx, g.ID)
		if len(questions) != 0 || len(candidates) != 0 {
			t.Errorf("children left after DeleteChildren: %d questions, %d candidates", len(questions), len(candidates))
		}
		pictures, _ = s.PicturesOf(ctx, []string{alice.ID})
		if len(pictures) != 0 {
			t.Errorf("pictures left after DeleteChildren: %v", pictures)
		}
	})
}

func TestSweepPending(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		now := time.Now()

		old, _ := s.CreateIfAbsent(ctx, presidential, now.Add(-time.Hour))
		_, _ = s.InsertCandidateWithDeeds(ctx, old.ID, sampleRecord("Orphan", "q"))
		fresh, _ := s.CreateIfAbsent(ctx, taipeiMayor, now)
		done, _ := s.CreateIfAbsent(ctx, models.Fingerprint{Year: 2024, Type: models.Legislator, City: "臺南市", District: "第一選區"}, now.Add(-time.Hour))
		_ = s.MarkValid(ctx, done.ID, now.Add(time.Hour))

		swept, err := s.SweepPending(ctx, now.Add(-time.Minute))
		if err != nil {
			t.Fatalf("SweepPending() error = %v", err)
		}
		if swept != 1 {
			t.Errorf("swept %d groups, want 1", swept)
		}
		if _, err := s.GetGroup(ctx, old.ID); !errors.Is(err, ErrNotFound) {
			t.Errorf("old pending group still present: %v", err)
		}
		if q, _ := s.QuestionsOf(ctx, old.ID); len(q) != 0 {
			t.Errorf("orphaned deeds left behind: %d", len(q))
		}
		if _, err := s.GetGroup(ctx, fresh.ID); err != nil {
			t.Errorf("pending group newer than cutoff should survive: %v", err)
		}
		if _, err := s.GetGroup(ctx, done.ID); err != nil {
			t.Errorf("valid group should survive: %v", err)
		}

		swept, _ = s.SweepPending(ctx, now.Add(time.Minute))
		if swept != 1 {
			t.Errorf("sweep with cutoff after now swept %d, want 1", swept)
		}
	})
}

func TestTouchKeepsPendingGroupFromSweep(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		now := time.Now()

		g, err := s.CreateIfAbsent(ctx, presidential, now.Add(-time.Hour))
		if err != nil {
			t.Fatal(err)
		}
		if err := s.Touch(ctx, g.ID, now); err != nil {
			t.Fatalf("Touch() error = %v", err)
		}
		if swept, _ := s.SweepPending(ctx, now.Add(-time.Minute)); swept != 0 {
			t.Errorf("swept %d groups, a recently touched group must survive", swept)
		}
		got, err := s.GetGroup(ctx, g.ID)
		if err != nil {
			t.Fatal(err)
		}
		if !got.CreatedAt.Before(got.UpdatedAt) {
			t.Errorf("createdAt %v should stay before updatedAt %v", got.CreatedAt, got.UpdatedAt)
		}

		if err := s.Touch(ctx, "missing", now); !errors.Is(err, ErrNotFound) {
			t.Errorf("Touch(missing) error = %v, want ErrNotFound", err)
		}
	})
}

func TestMarkValidMissingGroup(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		err := s.MarkValid(context.Background(), "missing", time.Now())
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("MarkValid(missing) error = %v, want ErrNotFound", err)
		}
	})
}
