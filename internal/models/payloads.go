package models

import "fmt"

// These structs define the JSON payloads of the HTTP functions.

// Question is one deed rendered for the end user.
type Question struct {
	ID       string `json:"id"`
	Question string `json:"question"`
}

// StartRequest is the input of the start function.
type StartRequest = Fingerprint

// StartResponse is the output of the start function.
type StartResponse struct {
	Questions []Question `json:"questions"`
}

// Answer is a caller's response to one question, on a -2..2 scale.
type Answer struct {
	ID    string `json:"id"`
	Value int    `json:"value"`
}

const (
	MinAnswerValue = -2
	MaxAnswerValue = 2
)

// SubmitRequest is the input of the submit function.
type SubmitRequest struct {
	Answers []Answer `json:"answers"`
}

// Validate rejects empty ids and out-of-range values.
func (r *SubmitRequest) Validate() error {
	if r.Answers == nil {
		return fmt.Errorf("%w: answers is required", ErrInvalidRequest)
	}
	for i, a := range r.Answers {
		if a.ID == "" {
			return fmt.Errorf("%w: answers[%d].id is empty", ErrInvalidRequest, i)
		}
		if a.Value < MinAnswerValue || a.Value > MaxAnswerValue {
			return fmt.Errorf("%w: answers[%d].value %d out of range", ErrInvalidRequest, i, a.Value)
		}
	}
	return nil
}

// ScoredDeed is a deed annotated with the caller's answer.
type ScoredDeed struct {
	Description string `json:"description"`
	Keyword     string `json:"keyword"`
	Question    string `json:"question"`
	Value       int    `json:"value"`
}

// ScoredCandidate is a candidate annotated with its match score.
type ScoredCandidate struct {
	Name       string       `json:"name"`
	Party      string       `json:"party"`
	Status     string       `json:"status,omitempty"`
	Score      float64      `json:"score"`
	PictureURL *string      `json:"picURL"`
	Deeds      []ScoredDeed `json:"deeds"`
}

// SubmitResponse is the output of the submit function.
type SubmitResponse struct {
	Candidates []ScoredCandidate `json:"candidates"`
}

// RefreshResponse is the output of the refresh function.
type RefreshResponse struct {
	Status        string `json:"status"`
	QuestionCount int    `json:"questionCount"`
}
