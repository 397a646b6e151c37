package main

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Lllllllleong/candidatequiz/internal/models"
)

func TestParseAnswers(t *testing.T) {
	got, err := parseAnswers([]string{"d1=2", "d2=-1"})
	if err != nil {
		t.Fatalf("parseAnswers() error = %v", err)
	}
	want := []models.Answer{{ID: "d1", Value: 2}, {ID: "d2", Value: -1}}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("parseAnswers() = %v, want %v", got, want)
	}

	for _, bad := range []string{"d1", "d1=x"} {
		if _, err := parseAnswers([]string{bad}); !errors.Is(err, models.ErrInvalidRequest) {
			t.Errorf("parseAnswers(%q) error = %v, want ErrInvalidRequest", bad, err)
		}
	}
}

func TestPrintQuestionsShowsExpiry(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	future := now.Add(models.DefaultGroupTTL)
	past := now.Add(-3 * 24 * time.Hour)
	tests := []struct {
		name  string
		group *models.Group
		want  []string
	}{
		{
			name:  "valid",
			group: &models.Group{ID: "g1", ExpiredAt: &future},
			want:  []string{"q1", "支持嗎？", "g1", "expires 2 weeks from now"},
		},
		{
			name:  "expired keeps id case",
			group: &models.Group{ID: "3f2b9c1e-aa10-4d7e-9b51-0c6d5e4f7a21", ExpiredAt: &past},
			want:  []string{"3f2b9c1e-aa10-4d7e-9b51-0c6d5e4f7a21", "expired, refreshing 3 days ago"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			printQuestions(&buf, []models.Question{{ID: "q1", Question: "支持嗎？"}}, tt.group, now)
			out := buf.String()
			for _, want := range tt.want {
				if !strings.Contains(out, want) {
					t.Errorf("output missing %q:\n%s", want, out)
				}
			}
		})
	}
}

func TestPrintScores(t *testing.T) {
	url := "https://example.org/a.jpg"
	var buf bytes.Buffer
	printScores(&buf, []models.ScoredCandidate{
		{Name: "甲", Party: "A", Score: 62.5, PictureURL: &url},
		{Name: "乙", Party: "B", Score: 50},
	})
	out := buf.String()
	for _, want := range []string{"甲", "62.5", url, "乙", "50"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestSweepCommandOnLocalStore(t *testing.T) {
	v.Set("SQLITE_PATH", t.TempDir()+"/quiz.db")
	v.Set("LOCK_DIR", t.TempDir())
	v.Set("PROJECT_ID", "")
	defer func() {
		v = newViper()
	}()

	cmd := sweepCmd()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetArgs([]string{"--all"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("sweep error = %v", err)
	}
	if got := strings.TrimSpace(buf.String()); got != "deleted 0 pending groups" {
		t.Errorf("output = %q", got)
	}
}
