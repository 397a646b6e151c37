// Package store persists questionnaire groups and their candidates, deeds and
// pictures.
//
// Writes made during generation are only safe while the caller holds the
// generation lock for the fingerprint; the stores themselves do not serialize
// check-then-insert sequences across processes.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/Lllllllleong/candidatequiz/internal/models"
)

var ErrNotFound = errors.New("not found")

// GroupStore manages group records and their cache state.
type GroupStore interface {
	// FindValidOrExpired returns the completed group for fp with the latest
	// expiry, or nil when there is none. Pending groups are never returned.
	FindValidOrExpired(ctx context.Context, fp models.Fingerprint) (*models.Group, error)
	// CreateIfAbsent inserts a pending group for fp unless a pending group or
	// a group that is still valid at now already exists, in which case it
	// returns nil.
	CreateIfAbsent(ctx context.Context, fp models.Fingerprint, now time.Time) (*models.Group, error)
	// Touch records that a generation attempt for the group is starting.
	// It returns ErrNotFound when the group has been swept meanwhile.
	Touch(ctx context.Context, groupID string, now time.Time) error
	MarkValid(ctx context.Context, groupID string, expiredAt time.Time) error
	DeleteGroup(ctx context.Context, groupID string) error
	GetGroup(ctx context.Context, groupID string) (*models.Group, error)
	// SweepPending deletes every pending group last touched before cutoff,
	// together with any children written for it.
	SweepPending(ctx context.Context, cutoff time.Time) (int, error)
}

// CandidateStore manages the children of a group.
type CandidateStore interface {
	InsertCandidateWithDeeds(ctx context.Context, groupID string, rec models.CandidateRecord) (*models.Candidate, error)
	QuestionsOf(ctx context.Context, groupID string) ([]models.Question, error)
	CandidatesAndDeedsOf(ctx context.Context, groupID string) ([]models.Candidate, []models.Deed, error)
	DeleteChildren(ctx context.Context, groupID string) error
	GetDeed(ctx context.Context, deedID string) (*models.Deed, error)
	SetPicture(ctx context.Context, candidateID string, url *string) error
	PicturesOf(ctx context.Context, candidateIDs []string) (map[string]*string, error)
}

// Store is the full persistence surface used by the services.
type Store interface {
	GroupStore
	CandidateStore
	Close() error
}
