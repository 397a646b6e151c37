package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/Lllllllleong/candidatequiz/internal/models"
	"github.com/Lllllllleong/candidatequiz/internal/store"
)

// NeutralScore is the score of a candidate with no answered deeds.
const NeutralScore = 50.0

// ScoreCandidates maps each candidate's deeds onto the caller's answers and
// returns the candidates in the given order. Deeds the caller did not answer
// count as 0. A candidate without deeds scores NeutralScore.
func ScoreCandidates(candidates []models.Candidate, deeds []models.Deed, pictures map[string]*string, answers []models.Answer) []models.ScoredCandidate {
	values := make(map[string]int, len(answers))
	for _, a := range answers {
		values[a.ID] = a.Value
	}
	byCandidate := make(map[string][]models.Deed, len(candidates))
	for _, d := range deeds {
		byCandidate[d.CandidateID] = append(byCandidate[d.CandidateID], d)
	}

	scored := make([]models.ScoredCandidate, 0, len(candidates))
	for _, c := range candidates {
		own := byCandidate[c.ID]
		sc := models.ScoredCandidate{
			Name:       c.Name,
			Party:      c.Party,
			Status:     c.Status,
			Score:      NeutralScore,
			PictureURL: pictures[c.ID],
			Deeds:      make([]models.ScoredDeed, 0, len(own)),
		}
		sum := 0
		for _, d := range own {
			v := values[d.ID]
			sum += v
			sc.Deeds = append(sc.Deeds, models.ScoredDeed{
				Description: d.Description,
				Keyword:     d.Keyword,
				Question:    d.Question,
				Value:       v,
			})
		}
		if len(own) > 0 {
			sc.Score = float64(sum)/float64(len(own))*25 + NeutralScore
		}
		scored = append(scored, sc)
	}
	return scored
}

// ScoringService resolves submitted answers to their group and scores it.
type ScoringService struct {
	store store.Store
}

func NewScoringService(st store.Store) *ScoringService {
	return &ScoringService{store: st}
}

// Submit scores every candidate of the group the answers belong to, highest
// score first. Answers that cannot be resolved to a group yield an empty
// result rather than an error.
func (s *ScoringService) Submit(ctx context.Context, answers []models.Answer) ([]models.ScoredCandidate, error) {
	if len(answers) == 0 {
		return []models.ScoredCandidate{}, nil
	}
	logCtx := slog.With("deedId", answers[0].ID)

	deed, err := s.store.GetDeed(ctx, answers[0].ID)
	if errors.Is(err, store.ErrNotFound) {
		logCtx.Info("Submitted answers reference an unknown deed.")
		return []models.ScoredCandidate{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve deed: %w", err)
	}
	logCtx = logCtx.With("groupId", deed.GroupID)

	if _, err := s.store.GetGroup(ctx, deed.GroupID); errors.Is(err, store.ErrNotFound) {
		logCtx.Info("Submitted answers reference a deleted group.")
		return []models.ScoredCandidate{}, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to resolve group: %w", err)
	}

	candidates, deeds, err := s.store.CandidatesAndDeedsOf(ctx, deed.GroupID)
	if err != nil {
		return nil, fmt.Errorf("failed to load candidates: %w", err)
	}
	ids := make([]string, len(candidates))
	for i, c := range candidates {
		ids[i] = c.ID
	}
	pictures, err := s.store.PicturesOf(ctx, ids)
	if err != nil {
		// Pictures are decoration; score without them.
		logCtx.Warn("Failed to load pictures.", "error", err)
		pictures = nil
	}

	scored := ScoreCandidates(candidates, deeds, pictures, answers)
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	logCtx.Info("Answers scored.", "answers", len(answers), "candidates", len(scored))
	return scored, nil
}
