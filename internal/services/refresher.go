package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	executions "cloud.google.com/go/workflows/executions/apiv1"
	"cloud.google.com/go/workflows/executions/apiv1/executionspb"
	"github.com/googleapis/gax-go/v2"

	"github.com/Lllllllleong/candidatequiz/internal/models"
)

// Refresher schedules the regeneration of an expired fingerprint. Trigger
// returns once the work is scheduled and never waits for it to finish.
type Refresher interface {
	Trigger(ctx context.Context, fp models.Fingerprint) error
}

// backgroundRefresher regenerates in a detached goroutine of this process.
type backgroundRefresher struct {
	svc *QuestionnaireService
}

func (r *backgroundRefresher) Trigger(ctx context.Context, fp models.Fingerprint) error {
	ctx = context.WithoutCancel(ctx)
	r.svc.background.Add(1)
	go func() {
		defer r.svc.background.Done()
		if _, err := r.svc.Refresh(ctx, fp); err != nil {
			slog.Error("Background refresh failed.", "fingerprint", fp.Key(), "error", err)
		}
	}()
	return nil
}

// executionCreator is the part of the Workflows executions client used here.
type executionCreator interface {
	CreateExecution(ctx context.Context, req *executionspb.CreateExecutionRequest, opts ...gax.CallOption) (*executionspb.Execution, error)
}

// WorkflowRefresher starts a Cloud Workflows execution that calls the refresh
// function for the fingerprint. It suits deployments where the instance may be
// throttled as soon as the response is written.
type WorkflowRefresher struct {
	client executionCreator
	parent string
}

func NewWorkflowRefresher(client *executions.Client, parent string) *WorkflowRefresher {
	return &WorkflowRefresher{client: client, parent: parent}
}

func (r *WorkflowRefresher) Trigger(ctx context.Context, fp models.Fingerprint) error {
	payload, err := json.Marshal(fp)
	if err != nil {
		return fmt.Errorf("failed to marshal workflow payload: %w", err)
	}
	req := &executionspb.CreateExecutionRequest{
		Parent: r.parent,
		Execution: &executionspb.Execution{
			Argument: string(payload),
		},
	}
	exec, err := r.client.CreateExecution(ctx, req)
	if err != nil {
		return fmt.Errorf("failed to trigger workflow execution: %w", err)
	}
	slog.Info("Refresh workflow started.", "fingerprint", fp.Key(), "execution", exec.GetName())
	return nil
}
