package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/funcframework"
	"github.com/GoogleCloudPlatform/functions-framework-go/functions"

	"github.com/Lllllllleong/candidatequiz/internal/app"
	"github.com/Lllllllleong/candidatequiz/internal/config"
)

var (
	instance *app.App
	once     sync.Once
	initErr  error
)

func init() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	functions.HTTP("HandleStart", withApp(handleStart))
	functions.HTTP("HandleSubmit", withApp(handleSubmit))
	functions.HTTP("HandleRefresh", withApp(handleRefresh))
}

// main serves the functions locally; Cloud Functions only uses the
// registrations made in init.
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

// withApp initializes the shared clients on first use.
func withApp(h func(a *app.App, w http.ResponseWriter, r *http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, err := loadApp()
		if err != nil {
			slog.Error("CRITICAL: Service initialization failed", "error", err)
			http.Error(w, "Internal Server Error: failed to initialize service", http.StatusInternalServerError)
			return
		}
		if r.Method != http.MethodPost {
			http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
			return
		}
		h(a, w, r)
	}
}
