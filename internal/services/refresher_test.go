package services

import (
	"context"
	"encoding/json"
	"testing"

	"cloud.google.com/go/workflows/executions/apiv1/executionspb"
	"github.com/googleapis/gax-go/v2"

	"github.com/Lllllllleong/candidatequiz/internal/models"
)

type fakeExecutions struct {
	req *executionspb.CreateExecutionRequest
}

func (f *fakeExecutions) CreateExecution(_ context.Context, req *executionspb.CreateExecutionRequest, _ ...gax.CallOption) (*executionspb.Execution, error) {
	f.req = req
	return &executionspb.Execution{Name: req.Parent + "/executions/1"}, nil
}

func TestWorkflowRefresherTrigger(t *testing.T) {
	fake := &fakeExecutions{}
	r := &WorkflowRefresher{client: fake, parent: "projects/p/locations/l/workflows/w"}
	fp := models.Fingerprint{Year: 2022, Type: models.MunicipalMayor, City: "臺北市"}

	if err := r.Trigger(context.Background(), fp); err != nil {
		t.Fatalf("Trigger() error = %v", err)
	}
	if fake.req.Parent != "projects/p/locations/l/workflows/w" {
		t.Errorf("parent = %q", fake.req.Parent)
	}
	var got models.Fingerprint
	if err := json.Unmarshal([]byte(fake.req.Execution.Argument), &got); err != nil {
		t.Fatalf("argument is not a fingerprint: %v", err)
	}
	if got != fp {
		t.Errorf("argument = %+v, want %+v", got, fp)
	}
}
