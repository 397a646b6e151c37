package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/funcframework"
	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	cloudevents "github.com/cloudevents/sdk-go/v2"

	"github.com/Lllllllleong/candidatequiz/internal/app"
	"github.com/Lllllllleong/candidatequiz/internal/config"
)

// SweepRequest is the optional payload of the triggering event. All is set by
// the deploy hook, when no generation of the previous revision can still run.
type SweepRequest struct {
	All bool `json:"all"`
}

var (
	instance *app.App
	once     sync.Once
	initErr  error
)

func init() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	functions.CloudEvent("SweepPending", SweepPending)
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	if err := funcframework.Start(port); err != nil {
		slog.Error("Functions framework stopped.", "error", err)
		os.Exit(1)
	}
}

func loadApp() (*app.App, error) {
	once.Do(func() {
		cfg, err := config.Load()
		if err != nil {
			initErr = err
			return
		}
		instance, initErr = app.New(context.Background(), cfg)
	})
	return instance, initErr
}

// SweepPending deletes pending groups abandoned by crashed workers.
func SweepPending(ctx context.Context, e cloudevents.Event) error {
	a, err := loadApp()
	if err != nil {
		slog.Error("Critical error during function initialization", "error", err)
		return err
	}
	return sweep(ctx, a, e)
}

func sweep(ctx context.Context, a *app.App, e cloudevents.Event) error {
	var req SweepRequest
	if data := e.Data(); len(data) > 0 {
		if err := json.Unmarshal(data, &req); err != nil {
			// Scheduler payloads are not always JSON; treat them as a routine sweep.
			slog.Warn("Ignoring unparsable event data", "error", err, "data", string(data))
		}
	}
	logCtx := slog.With("eventId", e.ID(), "eventType", e.Type(), "all", req.All)

	var n int
	var err error
	if req.All {
		n, err = a.Sweeper.SweepAll(ctx)
	} else {
		n, err = a.Sweeper.SweepStale(ctx)
	}
	if err != nil {
		logCtx.Error("Sweep failed", "error", err)
		return fmt.Errorf("sweep: %w", err)
	}
	logCtx.Info("Sweep finished.", "deleted", n)
	return nil
}
