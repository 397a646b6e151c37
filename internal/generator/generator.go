// Package generator produces candidate and deed records for an election by
// calling an external generative model.
package generator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Lllllllleong/candidatequiz/internal/models"
)

var (
	// ErrEmptyResponse is returned when a stage produced nothing usable.
	ErrEmptyResponse = errors.New("generator returned an empty response")
	// ErrInvalidOutput is returned when structured output does not match the candidate schema.
	ErrInvalidOutput = errors.New("generator output does not match the candidate schema")
)

// Generator turns a fingerprint into candidate records. Every failure, whether
// transport, quota, empty output or schema mismatch, is returned as an error.
type Generator interface {
	Generate(ctx context.Context, fp models.Fingerprint) ([]models.CandidateRecord, error)
}

// DecodeCandidate validates function-call arguments against the candidate
// schema: name, party and deeds are required, and every deed requires a
// description, keyword and question. status is optional.
func DecodeCandidate(args map[string]any) (models.CandidateRecord, error) {
	var rec models.CandidateRecord
	if args == nil {
		return rec, fmt.Errorf("%w: missing arguments", ErrInvalidOutput)
	}

	var err error
	if rec.Name, err = requiredString(args, "name"); err != nil {
		return rec, err
	}
	if rec.Party, err = requiredString(args, "party"); err != nil {
		return rec, err
	}
	if raw, ok := args["status"]; ok && raw != nil {
		status, ok := raw.(string)
		if !ok {
			return rec, fmt.Errorf("%w: status must be a string", ErrInvalidOutput)
		}
		rec.Status = strings.TrimSpace(status)
	}

	rawDeeds, ok := args["deeds"]
	if !ok {
		return rec, fmt.Errorf("%w: deeds is required", ErrInvalidOutput)
	}
	deeds, ok := rawDeeds.([]any)
	if !ok {
		return rec, fmt.Errorf("%w: deeds must be an array", ErrInvalidOutput)
	}
	rec.Deeds = make([]models.DeedRecord, 0, len(deeds))
	for i, raw := range deeds {
		item, ok := raw.(map[string]any)
		if !ok {
			return rec, fmt.Errorf("%w: deeds[%d] must be an object", ErrInvalidOutput, i)
		}
		var d models.DeedRecord
		if d.Description, err = requiredString(item, "description"); err != nil {
			return rec, fmt.Errorf("deeds[%d]: %w", i, err)
		}
		if d.Keyword, err = requiredString(item, "keyword"); err != nil {
			return rec, fmt.Errorf("deeds[%d]: %w", i, err)
		}
		if d.Question, err = requiredString(item, "question"); err != nil {
			return rec, fmt.Errorf("deeds[%d]: %w", i, err)
		}
		rec.Deeds = append(rec.Deeds, d)
	}
	return rec, nil
}

// ValidateRecords rejects results that would produce an empty questionnaire.
func ValidateRecords(records []models.CandidateRecord) error {
	if len(records) == 0 {
		return fmt.Errorf("%w: no candidates", ErrEmptyResponse)
	}
	questions := 0
	for _, r := range records {
		questions += len(r.Deeds)
	}
	if questions == 0 {
		return fmt.Errorf("%w: no deeds for any candidate", ErrEmptyResponse)
	}
	return nil
}

func requiredString(m map[string]any, key string) (string, error) {
	raw, ok := m[key]
	if !ok || raw == nil {
		return "", fmt.Errorf("%w: %s is required", ErrInvalidOutput, key)
	}
	s, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("%w: %s must be a string", ErrInvalidOutput, key)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("%w: %s is empty", ErrInvalidOutput, key)
	}
	return s, nil
}
