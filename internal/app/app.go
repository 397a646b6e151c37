// Package app builds the questionnaire services from configuration. Every
// entry point shares it so the HTTP functions, the sweeper and the CLI run
// against identically wired backends.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Lllllllleong/candidatequiz/internal/config"
	"github.com/Lllllllleong/candidatequiz/internal/gcp"
	"github.com/Lllllllleong/candidatequiz/internal/generator"
	"github.com/Lllllllleong/candidatequiz/internal/lock"
	"github.com/Lllllllleong/candidatequiz/internal/picture"
	"github.com/Lllllllleong/candidatequiz/internal/services"
	"github.com/Lllllllleong/candidatequiz/internal/store"
)

// ErrGenerationUnavailable is returned when questions must be generated but no
// Vertex AI project is configured.
var ErrGenerationUnavailable = errors.New("question generation requires PROJECT_ID")

type App struct {
	Config *config.Config
	Store  store.Store
	Locker lock.Locker

	Questionnaire *services.QuestionnaireService
	Scoring       *services.ScoringService
	Sweeper       *services.Sweeper

	closers []func() error
}

// New opens the configured backends. The returned App must be closed.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg}
	if err := a.init(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	cfg := a.Config

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	a.Store = st
	a.closers = append(a.closers, st.Close)

	switch cfg.LockBackend {
	case config.LockGCS:
		client, bucket, err := gcp.NewBucket(ctx, cfg.LockBucket)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, client.Close)
		a.Locker = lock.NewGCSLocker(bucket, cfg.LockPollInterval, cfg.LockStaleAfter)
	default:
		a.Locker = lock.NewFileLocker(cfg.LockDir, cfg.LockPollInterval, cfg.LockStaleAfter)
	}

	a.Scoring = services.NewScoringService(a.Store)
	a.Sweeper = services.NewSweeper(a.Store, cfg.LockStaleAfter)

	if !cfg.NeedsVertex() {
		slog.Warn("PROJECT_ID not set, question generation is disabled.")
		return nil
	}

	vertexClient, err := gcp.NewVertexClient(ctx, cfg.ProjectID, cfg.VertexAIRegion, cfg.GenerationModel, cfg.ExtractionModel)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, vertexClient.Close)

	opts := services.Options{
		TTL:       cfg.GroupTTL,
		Retries:   cfg.GenerationRetries,
		LockScope: cfg.LockScope,
	}
	if cfg.RefreshMode == config.RefreshWorkflow {
		execClient, err := gcp.NewExecutionsClient(ctx)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, execClient.Close)
		opts.Refresher = services.NewWorkflowRefresher(execClient, gcp.WorkflowParent(cfg.ProjectID, cfg.WorkflowLocation, cfg.WorkflowID))
	}

	a.Questionnaire = services.NewQuestionnaireService(
		a.Store,
		a.Locker,
		generator.NewVertexGenerator(vertexClient),
		picture.NewWikidataFinder(cfg.WikidataEndpoint),
		opts,
	)
	return nil
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.StoreBackend {
	case config.BackendFirestore:
		client, err := gcp.NewFirestoreClient(ctx, cfg.ProjectID, cfg.FirestoreDatabase)
		if err != nil {
			return nil, err
		}
		return store.NewFirestoreStore(client), nil
	case config.BackendSQLite:
		return store.OpenSQLite(cfg.SQLitePath)
	case config.BackendMemory:
		return store.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

// RequireQuestionnaire returns the questionnaire service or
// ErrGenerationUnavailable when generation is not configured.
func (a *App) RequireQuestionnaire() (*services.QuestionnaireService, error) {
	if a.Questionnaire == nil {
		return nil, ErrGenerationUnavailable
	}
	return a.Questionnaire, nil
}

// Close waits for background refreshes and releases every client, newest first.
func (a *App) Close() error {
	if a.Questionnaire != nil {
		a.Questionnaire.Wait()
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
