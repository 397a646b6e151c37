package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Lllllllleong/candidatequiz/internal/models"
)

// MemoryStore is an in-process Store. It backs tests and single-instance local runs.
type MemoryStore struct {
	mu         sync.Mutex
	groups     map[string]models.Group
	candidates []models.Candidate
	deeds      []models.Deed
	pictures   map[string]*string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		groups:   make(map[string]models.Group),
		pictures: make(map[string]*string),
	}
}

func (s *MemoryStore) FindValidOrExpired(_ context.Context, fp models.Fingerprint) (*models.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var latest *models.Group
	for _, g := range s.groups {
		if g.Fingerprint != fp || g.ExpiredAt == nil {
			continue
		}
		if latest == nil || g.ExpiredAt.After(*latest.ExpiredAt) {
			g := g
			latest = &g
		}
	}
	return latest, nil
}

func (s *MemoryStore) CreateIfAbsent(_ context.Context, fp models.Fingerprint, now time.Time) (*models.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, g := range s.groups {
		if g.Fingerprint != fp {
			continue
		}
		if state := g.State(now); state == models.GroupPending || state == models.GroupValid {
			return nil, nil
		}
	}
	g := models.Group{ID: uuid.NewString(), Fingerprint: fp, CreatedAt: now, UpdatedAt: now}
	s.groups[g.ID] = g
	return &g, nil
}

func (s *MemoryStore) Touch(_ context.Context, groupID string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.groups[groupID]
	if !ok {
		return ErrNotFound
	}
	g.UpdatedAt = now
	s.groups[groupID] = g
	return nil
}

func (s *MemoryStore) MarkValid(_ context.Context, groupID string, expiredAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.groups[groupID]
	if !ok {
		return ErrNotFound
	}
	g.ExpiredAt = &expiredAt
	s.groups[groupID] = g
	return nil
}

func (s *MemoryStore) DeleteGroup(_ context.Context, groupID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.groups, groupID)
	return nil
}

func (s *MemoryStore) GetGroup(_ context.Context, groupID string) (*models.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.groups[groupID]
	if !ok {
		return nil, ErrNotFound
	}
	return &g, nil
}

func (s *MemoryStore) SweepPending(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	swept := 0
	for id, g := range s.groups {
		if g.ExpiredAt != nil || !g.UpdatedAt.Before(cutoff) {
			continue
		}
		delete(s.groups, id)
		s.deleteChildrenLocked(id)
		swept++
	}
	return swept, nil
}

func (s *MemoryStore) InsertCandidateWithDeeds(_ context.Context, groupID string, rec models.CandidateRecord) (*models.Candidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := models.Candidate{
		ID:      uuid.NewString(),
		GroupID: groupID,
		Name:    rec.Name,
		Party:   rec.Party,
		Status:  rec.Status,
	}
	s.candidates = append(s.candidates, c)
	for _, d := range rec.Deeds {
		s.deeds = append(s.deeds, models.Deed{
			ID:          uuid.NewString(),
			GroupID:     groupID,
			CandidateID: c.ID,
			Description: d.Description,
			Keyword:     d.Keyword,
			Question:    d.Question,
		})
	}
	return &c, nil
}

func (s *MemoryStore) QuestionsOf(_ context.Context, groupID string) ([]models.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var questions []models.Question
	for _, d := range s.deeds {
		if d.GroupID == groupID {
			questions = append(questions, models.Question{ID: d.ID, Question: d.Question})
		}
	}
	return questions, nil
}

func (s *MemoryStore) CandidatesAndDeedsOf(_ context.Context, groupID string) ([]models.Candidate, []models.Deed, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var candidates []models.Candidate
	for _, c := range s.candidates {
		if c.GroupID == groupID {
			candidates = append(candidates, c)
		}
	}
	var deeds []models.Deed
	for _, d := range s.deeds {
		if d.GroupID == groupID {
			deeds = append(deeds, d)
		}
	}
	return candidates, deeds, nil
}

func (s *MemoryStore) DeleteChildren(_ context.Context, groupID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteChildrenLocked(groupID)
	return nil
}

func (s *MemoryStore) deleteChildrenLocked(groupID string) {
	candidates := s.candidates[:0]
	for _, c := range s.candidates {
		if c.GroupID == groupID {
			delete(s.pictures, c.ID)
			continue
		}
		candidates = append(candidates, c)
	}
	s.candidates = candidates

	deeds := s.deeds[:0]
	for _, d := range s.deeds {
		if d.GroupID != groupID {
			deeds = append(deeds, d)
		}
	}
	s.deeds = deeds
}

func (s *MemoryStore) GetDeed(_ context.Context, deedID string) (*models.Deed, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, d := range s.deeds {
		if d.ID == deedID {
			d := d
			return &d, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) SetPicture(_ context.Context, candidateID string, url *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pictures[candidateID] = url
	return nil
}

func (s *MemoryStore) PicturesOf(_ context.Context, candidateIDs []string) (map[string]*string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]*string, len(candidateIDs))
	for _, id := range candidateIDs {
		if url, ok := s.pictures[id]; ok {
			out[id] = url
		}
	}
	return out, nil
}

// Groups returns a snapshot of every group, ordered by creation time.
func (s *MemoryStore) Groups() []models.Group {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.Group, 0, len(s.groups))
	for _, g := range s.groups {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (s *MemoryStore) Close() error { return nil }
