package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/Lllllllleong/candidatequiz/internal/config"
	"github.com/Lllllllleong/candidatequiz/internal/generator"
	"github.com/Lllllllleong/candidatequiz/internal/lock"
	"github.com/Lllllllleong/candidatequiz/internal/models"
	"github.com/Lllllllleong/candidatequiz/internal/picture"
	"github.com/Lllllllleong/candidatequiz/internal/store"
)

var (
	// ErrGenerationExhausted is returned when every generation attempt failed.
	// The pending group has been deleted by the time it is returned.
	ErrGenerationExhausted = errors.New("generation retries exhausted")
	// ErrRaceRestartsExhausted is returned when the pending slot kept being
	// claimed by other workers without a usable group ever appearing.
	ErrRaceRestartsExhausted = errors.New("too many restarts after losing the generation race")

	// errRaceLost means another worker already holds the pending group.
	errRaceLost = errors.New("pending group already exists")
)

const (
	DefaultRetries         = 3
	DefaultRaceBackoff     = time.Second
	DefaultMaxRaceRestarts = 20
	pictureConcurrency     = 4
)

// Options tunes a QuestionnaireService. Zero values take the defaults.
type Options struct {
	TTL             time.Duration
	Retries         int
	LockScope       string
	RaceBackoff     time.Duration
	MaxRaceRestarts int
	// Refresher schedules the regeneration of expired groups. When nil the
	// service regenerates in a background goroutine of this process.
	Refresher Refresher
	Now       func() time.Time
}

func (o Options) withDefaults() Options {
	if o.TTL <= 0 {
		o.TTL = models.DefaultGroupTTL
	}
	if o.Retries <= 0 {
		o.Retries = DefaultRetries
	}
	if o.LockScope == "" {
		o.LockScope = config.LockScopeFingerprint
	}
	if o.RaceBackoff <= 0 {
		o.RaceBackoff = DefaultRaceBackoff
	}
	if o.MaxRaceRestarts <= 0 {
		o.MaxRaceRestarts = DefaultMaxRaceRestarts
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// QuestionnaireService serves the question set of a fingerprint, generating
// it when the cache has none and refreshing it when it has expired.
type QuestionnaireService struct {
	store     store.Store
	locker    lock.Locker
	generator generator.Generator
	pictures  picture.Finder
	refresher Refresher
	opts      Options

	flight     singleflight.Group
	background sync.WaitGroup
}

// NewQuestionnaireService wires the service. pictures may be nil, in which
// case candidates are stored without portraits.
func NewQuestionnaireService(st store.Store, locker lock.Locker, gen generator.Generator, pictures picture.Finder, opts Options) *QuestionnaireService {
	opts = opts.withDefaults()
	s := &QuestionnaireService{
		store:     st,
		locker:    locker,
		generator: gen,
		pictures:  pictures,
		refresher: opts.Refresher,
		opts:      opts,
	}
	if s.refresher == nil {
		s.refresher = &backgroundRefresher{svc: s}
	}
	return s
}

// EnsureQuestions returns the questions of fp in random order.
func (s *QuestionnaireService) EnsureQuestions(ctx context.Context, fp models.Fingerprint) ([]models.Question, error) {
	fp = fp.Normalize()
	if err := fp.Validate(); err != nil {
		return nil, err
	}
	questions, err := s.ensure(ctx, fp)
	if err != nil {
		return nil, err
	}
	return Shuffle(questions), nil
}

func (s *QuestionnaireService) ensure(ctx context.Context, fp models.Fingerprint) ([]models.Question, error) {
	logCtx := slog.With("fingerprint", fp.Key())

	for restarts := 0; ; restarts++ {
		group, err := s.store.FindValidOrExpired(ctx, fp)
		if err != nil {
			return nil, fmt.Errorf("failed to look up group: %w", err)
		}
		if group != nil {
			switch group.State(s.opts.Now()) {
			case models.GroupValid:
				return s.questionsOf(ctx, group.ID)
			case models.GroupExpired:
				questions, err := s.questionsOf(ctx, group.ID)
				if err != nil {
					return nil, err
				}
				logCtx.Info("Serving expired group while it is refreshed.", "groupId", group.ID)
				s.triggerRefresh(ctx, fp)
				return questions, nil
			}
		}

		if restarts >= s.opts.MaxRaceRestarts {
			return nil, fmt.Errorf("%w: %d restarts", ErrRaceRestartsExhausted, restarts)
		}
		questions, err := s.generateShared(ctx, fp)
		if !errors.Is(err, errRaceLost) {
			return questions, err
		}
		logCtx.Info("Another worker holds the pending group, restarting lookup.", "restart", restarts+1)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.opts.RaceBackoff):
		}
	}
}

// Refresh regenerates the questions of fp unless another worker is already
// generating them or a valid group exists.
func (s *QuestionnaireService) Refresh(ctx context.Context, fp models.Fingerprint) (int, error) {
	fp = fp.Normalize()
	if err := fp.Validate(); err != nil {
		return 0, err
	}
	questions, err := s.generateShared(ctx, fp)
	if errors.Is(err, errRaceLost) {
		slog.Info("Refresh skipped, group is already pending or valid.", "fingerprint", fp.Key())
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return len(questions), nil
}

// Wait blocks until background refreshes started by this service finish.
func (s *QuestionnaireService) Wait() {
	s.background.Wait()
}

func (s *QuestionnaireService) triggerRefresh(ctx context.Context, fp models.Fingerprint) {
	if err := s.refresher.Trigger(ctx, fp); err != nil {
		slog.Error("Failed to trigger refresh.", "fingerprint", fp.Key(), "error", err)
	}
}

// generateShared collapses concurrent generations of one fingerprint inside
// this process. Once started, a generation runs to completion even if the
// caller goes away.
func (s *QuestionnaireService) generateShared(ctx context.Context, fp models.Fingerprint) ([]models.Question, error) {
	v, err, shared := s.flight.Do(fp.Key(), func() (any, error) {
		return s.generate(context.WithoutCancel(ctx), fp)
	})
	if shared {
		slog.Debug("Joined in-flight generation.", "fingerprint", fp.Key())
	}
	if err != nil {
		return nil, err
	}
	return v.([]models.Question), nil
}

// generate runs the locked generation protocol. A pending group created by the
// first attempt is reused by every retry and deleted when all retries fail.
func (s *QuestionnaireService) generate(ctx context.Context, fp models.Fingerprint) ([]models.Question, error) {
	logCtx := slog.With("fingerprint", fp.Key())
	lockName := s.lockName(fp)

	var group *models.Group
	var lastErr error
	for attempt := 1; attempt <= s.opts.Retries; attempt++ {
		release, err := s.locker.Acquire(ctx, lockName)
		if err != nil {
			if group == nil {
				return nil, fmt.Errorf("failed to acquire generation lock: %w", err)
			}
			lastErr = fmt.Errorf("failed to acquire generation lock: %w", err)
			logCtx.Warn("Generation attempt failed.", "attempt", attempt, "error", lastErr)
			continue
		}

		if group != nil {
			err := s.store.Touch(ctx, group.ID, s.opts.Now())
			if errors.Is(err, store.ErrNotFound) {
				logCtx.Warn("Pending group was swept between attempts, creating a new one.")
				group = nil
				logCtx = slog.With("fingerprint", fp.Key())
			} else if err != nil {
				release()
				lastErr = fmt.Errorf("failed to touch pending group: %w", err)
				logCtx.Warn("Generation attempt failed.", "attempt", attempt, "error", lastErr)
				continue
			}
		}

		if group == nil {
			group, err = s.store.CreateIfAbsent(ctx, fp, s.opts.Now())
			if err != nil {
				release()
				return nil, fmt.Errorf("failed to create pending group: %w", err)
			}
			if group == nil {
				release()
				return nil, errRaceLost
			}
			logCtx = logCtx.With("groupId", group.ID)
			logCtx.Info("Pending group created, starting generation.")
		}

		questions, err := s.attempt(ctx, logCtx, group)
		release()
		if err == nil {
			return questions, nil
		}
		lastErr = err
		logCtx.Warn("Generation attempt failed.", "attempt", attempt, "remaining", s.opts.Retries-attempt, "error", err)
	}

	logCtx.Error("Generation retries exhausted, deleting pending group.", "error", lastErr)
	if err := s.store.DeleteChildren(ctx, group.ID); err != nil {
		logCtx.Error("Failed to delete children of abandoned group.", "error", err)
	}
	if err := s.store.DeleteGroup(ctx, group.ID); err != nil {
		logCtx.Error("Failed to delete abandoned pending group.", "error", err)
	}
	return nil, fmt.Errorf("%w after %d attempts: %w", ErrGenerationExhausted, s.opts.Retries, lastErr)
}

// attempt performs one generation for a pending group the caller holds the
// lock for. Children are only written after the generator has succeeded.
func (s *QuestionnaireService) attempt(ctx context.Context, logCtx *slog.Logger, group *models.Group) ([]models.Question, error) {
	records, err := s.generator.Generate(ctx, group.Fingerprint)
	if err != nil {
		return nil, fmt.Errorf("generator failed: %w", err)
	}
	if err := generator.ValidateRecords(records); err != nil {
		return nil, err
	}

	if err := s.store.DeleteChildren(ctx, group.ID); err != nil {
		return nil, fmt.Errorf("failed to clear previous attempt: %w", err)
	}
	candidates := make([]models.Candidate, 0, len(records))
	for _, rec := range records {
		c, err := s.store.InsertCandidateWithDeeds(ctx, group.ID, rec)
		if err != nil {
			return nil, fmt.Errorf("failed to insert candidate %q: %w", rec.Name, err)
		}
		candidates = append(candidates, *c)
	}
	s.attachPictures(ctx, logCtx, candidates)

	expiredAt := s.opts.Now().Add(s.opts.TTL)
	if err := s.store.MarkValid(ctx, group.ID, expiredAt); err != nil {
		return nil, fmt.Errorf("failed to mark group valid: %w", err)
	}
	questions, err := s.questionsOf(ctx, group.ID)
	if err != nil {
		return nil, err
	}
	logCtx.Info("Group generated.", "candidates", len(candidates), "questions", len(questions), "expiredAt", expiredAt)
	return questions, nil
}

// attachPictures looks portraits up in parallel. Failures leave the candidate
// without a picture.
func (s *QuestionnaireService) attachPictures(ctx context.Context, logCtx *slog.Logger, candidates []models.Candidate) {
	if s.pictures == nil {
		return
	}
	var g errgroup.Group
	g.SetLimit(pictureConcurrency)
	for _, c := range candidates {
		g.Go(func() error {
			url := s.pictures.Find(ctx, c.Party, c.Name)
			if err := s.store.SetPicture(ctx, c.ID, url); err != nil {
				logCtx.Warn("Failed to store picture.", "candidateId", c.ID, "error", err)
			}
			return nil
		})
	}
	g.Wait()
}

func (s *QuestionnaireService) questionsOf(ctx context.Context, groupID string) ([]models.Question, error) {
	questions, err := s.store.QuestionsOf(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to read questions of group %s: %w", groupID, err)
	}
	return questions, nil
}

func (s *QuestionnaireService) lockName(fp models.Fingerprint) string {
	if s.opts.LockScope == config.LockScopeGlobal {
		return "generation"
	}
	return "generation-" + fp.Key()
}
