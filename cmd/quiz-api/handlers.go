package main

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/Lllllllleong/candidatequiz/internal/app"
	"github.com/Lllllllleong/candidatequiz/internal/models"
)

func handleStart(a *app.App, w http.ResponseWriter, r *http.Request) {
	var req models.StartRequest
	if !decode(w, r, &req) {
		return
	}
	req = req.Normalize()
	logCtx := slog.With("fingerprint", req.Key())
	if err := req.Validate(); err != nil {
		fail(w, logCtx, "invalid start request", err)
		return
	}

	svc, err := a.RequireQuestionnaire()
	if err != nil {
		fail(w, logCtx, "start request cannot be served", err)
		return
	}
	questions, err := svc.EnsureQuestions(r.Context(), req)
	if err != nil {
		fail(w, logCtx, "failed to prepare questions", err)
		return
	}
	logCtx.Info("Questions served.", "count", len(questions))
	writeJSON(w, http.StatusOK, models.StartResponse{Questions: questions})
}

func handleSubmit(a *app.App, w http.ResponseWriter, r *http.Request) {
	var req models.SubmitRequest
	if !decode(w, r, &req) {
		return
	}
	logCtx := slog.With("answers", len(req.Answers))
	if err := req.Validate(); err != nil {
		fail(w, logCtx, "invalid submit request", err)
		return
	}

	candidates, err := a.Scoring.Submit(r.Context(), req.Answers)
	if err != nil {
		fail(w, logCtx, "failed to score answers", err)
		return
	}
	writeJSON(w, http.StatusOK, models.SubmitResponse{Candidates: candidates})
}

// handleRefresh regenerates an expired fingerprint. It is the target of the
// refresh workflow and answers once the regeneration has finished.
func handleRefresh(a *app.App, w http.ResponseWriter, r *http.Request) {
	var req models.StartRequest
	if !decode(w, r, &req) {
		return
	}
	req = req.Normalize()
	logCtx := slog.With("fingerprint", req.Key())
	if err := req.Validate(); err != nil {
		fail(w, logCtx, "invalid refresh request", err)
		return
	}

	svc, err := a.RequireQuestionnaire()
	if err != nil {
		fail(w, logCtx, "refresh request cannot be served", err)
		return
	}
	n, err := svc.Refresh(r.Context(), req)
	if err != nil {
		fail(w, logCtx, "refresh failed", err)
		return
	}
	status := "refreshed"
	if n == 0 {
		status = "skipped"
	}
	writeJSON(w, http.StatusAccepted, models.RefreshResponse{Status: status, QuestionCount: n})
}

// statusOf maps an error to the HTTP status reported to the caller.
func statusOf(err error) int {
	switch {
	case errors.Is(err, models.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, app.ErrGenerationUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func fail(w http.ResponseWriter, logCtx *slog.Logger, msg string, err error) {
	status := statusOf(err)
	if status == http.StatusBadRequest {
		logCtx.Warn(msg, "error", err)
		http.Error(w, "Bad Request: "+err.Error(), status)
		return
	}
	logCtx.Error(msg, "error", err)
	http.Error(w, http.StatusText(status)+": "+msg, status)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		slog.Warn("Could not decode request body", "error", err)
		http.Error(w, "Bad Request: could not parse JSON", http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to write response", "error", err)
	}
}
