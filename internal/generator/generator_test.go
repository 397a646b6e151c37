package generator

import (
	"context"
	"errors"
	"testing"

	"cloud.google.com/go/vertexai/genai"

	"github.com/Lllllllleong/candidatequiz/internal/gcp"
	"github.com/Lllllllleong/candidatequiz/internal/models"
)

func validArgs() map[string]any {
	return map[string]any{
		"name":   "王小明",
		"party":  "無黨籍",
		"status": "參選中",
		"deeds": []any{
			map[string]any{"description": "提出長照政策", "keyword": "長照", "question": "我支持擴大長照預算"},
			map[string]any{"description": "反對核四重啟", "keyword": "核四", "question": "我反對核四重啟"},
		},
	}
}

func TestDecodeCandidate(t *testing.T) {
	rec, err := DecodeCandidate(validArgs())
	if err != nil {
		t.Fatalf("DecodeCandidate() error = %v", err)
	}
	if rec.Name != "王小明" || rec.Party != "無黨籍" || rec.Status != "參選中" {
		t.Errorf("unexpected record header: %+v", rec)
	}
	if len(rec.Deeds) != 2 || rec.Deeds[1].Question != "我反對核四重啟" {
		t.Errorf("unexpected deeds: %+v", rec.Deeds)
	}
}

func TestDecodeCandidateRejectsSchemaMismatch(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(m map[string]any)
	}{
		{"missing name", func(m map[string]any) { delete(m, "name") }},
		{"blank party", func(m map[string]any) { m["party"] = "  " }},
		{"numeric name", func(m map[string]any) { m["name"] = 42.0 }},
		{"missing deeds", func(m map[string]any) { delete(m, "deeds") }},
		{"deeds not array", func(m map[string]any) { m["deeds"] = "none" }},
		{"deed not object", func(m map[string]any) { m["deeds"] = []any{"x"} }},
		{"deed missing question", func(m map[string]any) {
			m["deeds"] = []any{map[string]any{"description": "d", "keyword": "k"}}
		}},
		{"status not string", func(m map[string]any) { m["status"] = true }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := validArgs()
			tt.mutate(args)
			if _, err := DecodeCandidate(args); !errors.Is(err, ErrInvalidOutput) {
				t.Errorf("expected ErrInvalidOutput, got %v", err)
			}
		})
	}
	if _, err := DecodeCandidate(nil); !errors.Is(err, ErrInvalidOutput) {
		t.Errorf("nil args: expected ErrInvalidOutput, got %v", err)
	}
}

func TestValidateRecords(t *testing.T) {
	if err := ValidateRecords(nil); !errors.Is(err, ErrEmptyResponse) {
		t.Errorf("no records: expected ErrEmptyResponse, got %v", err)
	}
	if err := ValidateRecords([]models.CandidateRecord{{Name: "a", Party: "b"}}); !errors.Is(err, ErrEmptyResponse) {
		t.Errorf("no deeds: expected ErrEmptyResponse, got %v", err)
	}
	rec, _ := DecodeCandidate(validArgs())
	if err := ValidateRecords([]models.CandidateRecord{rec}); err != nil {
		t.Errorf("valid records rejected: %v", err)
	}
}

type fakeModel struct {
	resp   *genai.GenerateContentResponse
	err    error
	prompt string
}

func (m *fakeModel) GenerateContent(_ context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error) {
	for _, p := range parts {
		if txt, ok := p.(genai.Text); ok {
			m.prompt = string(txt)
		}
	}
	return m.resp, m.err
}

func response(parts ...genai.Part) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: &genai.Content{Parts: parts}}},
	}
}

func TestVertexGeneratorTwoStages(t *testing.T) {
	research := &fakeModel{resp: response(genai.Text("  王小明，無黨籍 ... "))}
	extraction := &fakeModel{resp: response(
		genai.FunctionCall{Name: gcp.InsertCandidateDataFunction, Args: validArgs()},
		genai.FunctionCall{Name: "somethingElse", Args: map[string]any{}},
	)}
	g := &VertexGenerator{research: research, extraction: extraction}

	fp := models.Fingerprint{Year: 2024, Type: models.President}
	records, err := g.Generate(context.Background(), fp)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if len(records) != 1 || records[0].Name != "王小明" {
		t.Errorf("unexpected records: %+v", records)
	}
	if research.prompt != fp.Topic() {
		t.Errorf("research prompt = %q, want %q", research.prompt, fp.Topic())
	}
	if extraction.prompt != "王小明，無黨籍 ..." {
		t.Errorf("extraction prompt = %q, want trimmed research notes", extraction.prompt)
	}
}

func TestVertexGeneratorFailures(t *testing.T) {
	fp := models.Fingerprint{Year: 2024, Type: models.President}
	okResearch := func() *fakeModel { return &fakeModel{resp: response(genai.Text("notes"))} }

	tests := []struct {
		name       string
		research   *fakeModel
		extraction *fakeModel
		wantErr    error
	}{
		{
			name:       "research transport error",
			research:   &fakeModel{err: errors.New("quota exceeded")},
			extraction: &fakeModel{},
		},
		{
			name:       "research empty text",
			research:   &fakeModel{resp: response()},
			extraction: &fakeModel{},
			wantErr:    ErrEmptyResponse,
		},
		{
			name:       "no function calls",
			research:   okResearch(),
			extraction: &fakeModel{resp: response(genai.Text("I cannot help"))},
			wantErr:    ErrEmptyResponse,
		},
		{
			name:     "schema mismatch",
			research: okResearch(),
			extraction: &fakeModel{resp: response(
				genai.FunctionCall{Name: gcp.InsertCandidateDataFunction, Args: map[string]any{"name": "x"}},
			)},
			wantErr: ErrInvalidOutput,
		},
		{
			name:     "only foreign calls",
			research: okResearch(),
			extraction: &fakeModel{resp: response(
				genai.FunctionCall{Name: "other", Args: validArgs()},
			)},
			wantErr: ErrEmptyResponse,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := &VertexGenerator{research: tt.research, extraction: tt.extraction}
			_, err := g.Generate(context.Background(), fp)
			if err == nil {
				t.Fatal("expected an error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestExtractTextNilSafe(t *testing.T) {
	if got := extractText(nil); got != "" {
		t.Errorf("extractText(nil) = %q", got)
	}
	if got := extractFunctionCalls(&genai.GenerateContentResponse{}); got != nil {
		t.Errorf("extractFunctionCalls(empty) = %v", got)
	}
}
