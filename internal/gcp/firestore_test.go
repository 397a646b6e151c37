package gcp

import (
	"context"
	"strings"
	"testing"
)

func TestNewFirestoreClientRequiresProject(t *testing.T) {
	_, err := NewFirestoreClient(context.Background(), "", "quiz")
	if err == nil || !strings.Contains(err.Error(), "projectID") {
		t.Errorf("NewFirestoreClient() error = %v, want a projectID error", err)
	}
}
