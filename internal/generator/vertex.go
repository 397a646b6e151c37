package generator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"cloud.google.com/go/vertexai/genai"

	"github.com/Lllllllleong/candidatequiz/internal/gcp"
	"github.com/Lllllllleong/candidatequiz/internal/models"
)

// contentModel is the subset of *genai.GenerativeModel the generator uses.
type contentModel interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

// VertexGenerator runs the two Gemini stages: a search-grounded research call
// that returns free text, then an extraction call that must answer with
// insertCandidateData function calls.
type VertexGenerator struct {
	research   contentModel
	extraction contentModel
}

// NewVertexGenerator wires the generator to the models of a VertexClient.
func NewVertexGenerator(client *gcp.VertexClient) *VertexGenerator {
	return &VertexGenerator{research: client.ResearchModel, extraction: client.ExtractionModel}
}

func (g *VertexGenerator) Generate(ctx context.Context, fp models.Fingerprint) ([]models.CandidateRecord, error) {
	logCtx := slog.With("fingerprint", fp.Key())

	notes, err := g.researchNotes(ctx, fp.Topic())
	if err != nil {
		logCtx.Warn("Research stage failed", "error", err)
		return nil, err
	}
	logCtx.Info("Research stage complete.", "noteLength", len(notes))

	records, err := g.extractCandidates(ctx, notes)
	if err != nil {
		logCtx.Warn("Extraction stage failed", "error", err)
		return nil, err
	}
	logCtx.Info("Extraction stage complete.", "candidateCount", len(records))
	return records, nil
}

func (g *VertexGenerator) researchNotes(ctx context.Context, topic string) (string, error) {
	resp, err := g.research.GenerateContent(ctx, genai.Text(topic))
	if err != nil {
		return "", fmt.Errorf("failed to generate research notes from gemini: %w", err)
	}
	notes := extractText(resp)
	if notes == "" {
		return "", fmt.Errorf("%w: research stage", ErrEmptyResponse)
	}
	return notes, nil
}

func (g *VertexGenerator) extractCandidates(ctx context.Context, notes string) ([]models.CandidateRecord, error) {
	resp, err := g.extraction.GenerateContent(ctx, genai.Text(notes))
	if err != nil {
		return nil, fmt.Errorf("failed to extract candidates with gemini: %w", err)
	}
	calls := extractFunctionCalls(resp)
	if len(calls) == 0 {
		return nil, fmt.Errorf("%w: extraction stage made no function calls", ErrEmptyResponse)
	}

	var records []models.CandidateRecord
	for _, call := range calls {
		if call.Name != gcp.InsertCandidateDataFunction {
			continue
		}
		rec, err := DecodeCandidate(call.Args)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := ValidateRecords(records); err != nil {
		return nil, err
	}
	return records, nil
}

// extractText concatenates the text parts of the first response candidate.
func extractText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
		}
	}
	return strings.TrimSpace(b.String())
}

// extractFunctionCalls returns the function-call parts of the first response candidate.
func extractFunctionCalls(resp *genai.GenerateContentResponse) []genai.FunctionCall {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil
	}
	var calls []genai.FunctionCall
	for _, part := range resp.Candidates[0].Content.Parts {
		switch call := part.(type) {
		case genai.FunctionCall:
			calls = append(calls, call)
		case *genai.FunctionCall:
			if call != nil {
				calls = append(calls, *call)
			}
		}
	}
	return calls
}
