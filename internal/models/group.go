package models

import "time"

// DefaultGroupTTL is how long a generated questionnaire stays valid.
const DefaultGroupTTL = 15 * 24 * time.Hour

// GroupState is derived from a group's expiry.
type GroupState string

const (
	GroupPending GroupState = "pending"
	GroupValid   GroupState = "valid"
	GroupExpired GroupState = "expired"
)

// Group represents one generation cycle for a fingerprint in Firestore.
// A nil ExpiredAt marks a group whose generation has not completed.
// UpdatedAt is bumped by every generation attempt; sweeps age pending groups by it.
type Group struct {
	ID string `firestore:"-"`
	Fingerprint
	ExpiredAt *time.Time `firestore:"expiredAt"`
	CreatedAt time.Time  `firestore:"createdAt"`
	UpdatedAt time.Time  `firestore:"updatedAt"`
}

// State classifies the group relative to now.
func (g *Group) State(now time.Time) GroupState {
	switch {
	case g.ExpiredAt == nil:
		return GroupPending
	case g.ExpiredAt.After(now):
		return GroupValid
	default:
		return GroupExpired
	}
}

// Candidate is one person running in the group's election.
type Candidate struct {
	ID      string `firestore:"-"`
	GroupID string `firestore:"groupId"`
	Name    string `firestore:"name"`
	Party   string `firestore:"party"`
	Status  string `firestore:"status,omitempty"`
}

// Deed is a documented stance or action of a candidate, phrased as a question.
type Deed struct {
	ID          string `firestore:"-"`
	GroupID     string `firestore:"groupId"`
	CandidateID string `firestore:"candidateId"`
	Description string `firestore:"description"`
	Keyword     string `firestore:"keyword"`
	Question    string `firestore:"question"`
}

// Picture holds a candidate portrait URL. A nil URL means none was found.
type Picture struct {
	URL *string `firestore:"url"`
}

// CandidateRecord is a candidate with its deeds as produced by the generator,
// before any ids are assigned.
type CandidateRecord struct {
	Name   string       `json:"name"`
	Party  string       `json:"party"`
	Status string       `json:"status,omitempty"`
	Deeds  []DeedRecord `json:"deeds"`
}

// DeedRecord is the generator's rendering of a deed.
type DeedRecord struct {
	Description string `json:"description"`
	Keyword     string `json:"keyword"`
	Question    string `json:"question"`
}
