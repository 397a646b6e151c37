package store

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/Lllllllleong/candidatequiz/internal/models"
)

// Collection names in Firestore.
const (
	GroupCollection     = "group"
	CandidateCollection = "candidate"
	DeedCollection      = "deed"
	PictureCollection   = "picture"
)

// FirestoreStore implements Store on Cloud Firestore.
//
// FindValidOrExpired needs a composite index on
// (year, type, city, district, expiredAt desc).
type FirestoreStore struct {
	client *firestore.Client
}

func NewFirestoreStore(client *firestore.Client) *FirestoreStore {
	return &FirestoreStore{client: client}
}

func (s *FirestoreStore) groups() *firestore.CollectionRef {
	return s.client.Collection(GroupCollection)
}
func (s *FirestoreStore) candidates() *firestore.CollectionRef {
	return s.client.Collection(CandidateCollection)
}
func (s *FirestoreStore) deeds() *firestore.CollectionRef { return s.client.Collection(DeedCollection) }
func (s *FirestoreStore) pictures() *firestore.CollectionRef {
	return s.client.Collection(PictureCollection)
}

func (s *FirestoreStore) fingerprintQuery(fp models.Fingerprint) firestore.Query {
	return s.groups().
		Where("year", "==", fp.Year).
		Where("type", "==", string(fp.Type)).
		Where("city", "==", fp.City).
		Where("district", "==", fp.District)
}

func (s *FirestoreStore) FindValidOrExpired(ctx context.Context, fp models.Fingerprint) (*models.Group, error) {
	docs, err := s.fingerprintQuery(fp).
		Where("expiredAt", "!=", nil).
		OrderBy("expiredAt", firestore.Desc).
		Limit(1).
		Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to query latest group: %w", err)
	}
	if len(docs) == 0 {
		return nil, nil
	}
	return groupFromSnapshot(docs[0])
}

// CreateIfAbsent runs the existence checks and the insert in one transaction.
// The caller still holds the generation lock, so the transaction only guards
// against writers that bypass it.
func (s *FirestoreStore) CreateIfAbsent(ctx context.Context, fp models.Fingerprint, now time.Time) (*models.Group, error) {
	var created *models.Group
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		created = nil

		pending, err := tx.Documents(s.fingerprintQuery(fp).Where("expiredAt", "==", nil).Limit(1)).GetAll()
		if err != nil {
			return fmt.Errorf("failed to query pending group: %w", err)
		}
		if len(pending) > 0 {
			return nil
		}
		live, err := tx.Documents(s.fingerprintQuery(fp).Where("expiredAt", ">", now).Limit(1)).GetAll()
		if err != nil {
			return fmt.Errorf("failed to query valid group: %w", err)
		}
		if len(live) > 0 {
			return nil
		}

		ref := s.groups().NewDoc()
		g := &models.Group{ID: ref.ID, Fingerprint: fp, CreatedAt: now, UpdatedAt: now}
		if err := tx.Create(ref, g); err != nil {
			return fmt.Errorf("failed to create group: %w", err)
		}
		created = g
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (s *FirestoreStore) Touch(ctx context.Context, groupID string, now time.Time) error {
	ref, ok := docRef(s.groups(), groupID)
	if !ok {
		return ErrNotFound
	}
	_, err := ref.Update(ctx, []firestore.Update{
		{Path: "updatedAt", Value: now},
	})
	if status.Code(err) == codes.NotFound {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to touch group: %w", err)
	}
	return nil
}

func (s *FirestoreStore) MarkValid(ctx context.Context, groupID string, expiredAt time.Time) error {
	_, err := s.groups().Doc(groupID).Update(ctx, []firestore.Update{
		{Path: "expiredAt", Value: expiredAt},
	})
	if status.Code(err) == codes.NotFound {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to update group expiry: %w", err)
	}
	return nil
}

func (s *FirestoreStore) DeleteGroup(ctx context.Context, groupID string) error {
	if _, err := s.groups().Doc(groupID).Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete group %s: %w", groupID, err)
	}
	return nil
}

func (s *FirestoreStore) GetGroup(ctx context.Context, groupID string) (*models.Group, error) {
	ref, ok := docRef(s.groups(), groupID)
	if !ok {
		return nil, ErrNotFound
	}
	snap, err := ref.Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read group %s: %w", groupID, err)
	}
	return groupFromSnapshot(snap)
}

func (s *FirestoreStore) SweepPending(ctx context.Context, cutoff time.Time) (int, error) {
	docs, err := s.groups().
		Where("expiredAt", "==", nil).
		Where("updatedAt", "<", cutoff).
		Documents(ctx).GetAll()
	if err != nil {
		return 0, fmt.Errorf("failed to query pending groups: %w", err)
	}
	for _, doc := range docs {
		if err := s.DeleteChildren(ctx, doc.Ref.ID); err != nil {
			return 0, err
		}
	}
	if err := s.deleteRefs(ctx, refsOf(docs)); err != nil {
		return 0, fmt.Errorf("failed to delete pending groups: %w", err)
	}
	return len(docs), nil
}

// InsertCandidateWithDeeds writes the candidate and its deeds through one
// BulkWriter. The writes are not atomic; a failed call may leave some of them behind.
func (s *FirestoreStore) InsertCandidateWithDeeds(ctx context.Context, groupID string, rec models.CandidateRecord) (*models.Candidate, error) {
	candidateRef := s.candidates().NewDoc()
	candidate := models.Candidate{
		ID:      candidateRef.ID,
		GroupID: groupID,
		Name:    rec.Name,
		Party:   rec.Party,
		Status:  rec.Status,
	}

	bw := s.client.BulkWriter(ctx)
	jobs := make([]*firestore.BulkWriterJob, 0, len(rec.Deeds)+1)
	job, err := bw.Create(candidateRef, candidate)
	if err != nil {
		bw.End()
		return nil, fmt.Errorf("failed to queue candidate write: %w", err)
	}
	jobs = append(jobs, job)

	for _, d := range rec.Deeds {
		job, err := bw.Create(s.deeds().NewDoc(), models.Deed{
			GroupID:     groupID,
			CandidateID: candidateRef.ID,
			Description: d.Description,
			Keyword:     d.Keyword,
			Question:    d.Question,
		})
		if err != nil {
			bw.End()
			return nil, fmt.Errorf("failed to queue deed write: %w", err)
		}
		jobs = append(jobs, job)
	}
	bw.End()

	for _, job := range jobs {
		if _, err := job.Results(); err != nil {
			return nil, fmt.Errorf("failed to write candidate %s: %w", rec.Name, err)
		}
	}
	return &candidate, nil
}

func (s *FirestoreStore) QuestionsOf(ctx context.Context, groupID string) ([]models.Question, error) {
	docs, err := s.deeds().Where("groupId", "==", groupID).Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to query deeds of group %s: %w", groupID, err)
	}
	questions := make([]models.Question, 0, len(docs))
	for _, doc := range docs {
		question, err := doc.DataAt("question")
		if err != nil {
			return nil, fmt.Errorf("deed %s has no question: %w", doc.Ref.ID, err)
		}
		text, ok := question.(string)
		if !ok {
			return nil, fmt.Errorf("deed %s has a non-string question", doc.Ref.ID)
		}
		questions = append(questions, models.Question{ID: doc.Ref.ID, Question: text})
	}
	return questions, nil
}

func (s *FirestoreStore) CandidatesAndDeedsOf(ctx context.Context, groupID string) ([]models.Candidate, []models.Deed, error) {
	candidateDocs, err := s.candidates().Where("groupId", "==", groupID).Documents(ctx).GetAll()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query candidates of group %s: %w", groupID, err)
	}
	deedDocs, err := s.deeds().Where("groupId", "==", groupID).Documents(ctx).GetAll()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query deeds of group %s: %w", groupID, err)
	}

	candidates := make([]models.Candidate, 0, len(candidateDocs))
	for _, doc := range candidateDocs {
		var c models.Candidate
		if err := doc.DataTo(&c); err != nil {
			return nil, nil, fmt.Errorf("failed to decode candidate %s: %w", doc.Ref.ID, err)
		}
		c.ID = doc.Ref.ID
		candidates = append(candidates, c)
	}
	deeds := make([]models.Deed, 0, len(deedDocs))
	for _, doc := range deedDocs {
		var d models.Deed
		if err := doc.DataTo(&d); err != nil {
			return nil, nil, fmt.Errorf("failed to decode deed %s: %w", doc.Ref.ID, err)
		}
		d.ID = doc.Ref.ID
		deeds = append(deeds, d)
	}
	return candidates, deeds, nil
}

func (s *FirestoreStore) DeleteChildren(ctx context.Context, groupID string) error {
	candidateDocs, err := s.candidates().Where("groupId", "==", groupID).Documents(ctx).GetAll()
	if err != nil {
		return fmt.Errorf("failed to query candidates of group %s: %w", groupID, err)
	}
	deedDocs, err := s.deeds().Where("groupId", "==", groupID).Documents(ctx).GetAll()
	if err != nil {
		return fmt.Errorf("failed to query deeds of group %s: %w", groupID, err)
	}

	refs := append(refsOf(candidateDocs), refsOf(deedDocs)...)
	for _, doc := range candidateDocs {
		refs = append(refs, s.pictures().Doc(doc.Ref.ID))
	}
	if len(refs) == 0 {
		return nil
	}
	if err := s.deleteRefs(ctx, refs); err != nil {
		return fmt.Errorf("failed to delete children of group %s: %w", groupID, err)
	}
	slog.Info("Deleted group children.", "groupId", groupID, "documents", len(refs))
	return nil
}

func (s *FirestoreStore) GetDeed(ctx context.Context, deedID string) (*models.Deed, error) {
	ref, ok := docRef(s.deeds(), deedID)
	if !ok {
		return nil, ErrNotFound
	}
	snap, err := ref.Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read deed %s: %w", deedID, err)
	}
	var d models.Deed
	if err := snap.DataTo(&d); err != nil {
		return nil, fmt.Errorf("failed to decode deed %s: %w", deedID, err)
	}
	d.ID = snap.Ref.ID
	return &d, nil
}

func (s *FirestoreStore) SetPicture(ctx context.Context, candidateID string, url *string) error {
	if _, err := s.pictures().Doc(candidateID).Set(ctx, models.Picture{URL: url}); err != nil {
		return fmt.Errorf("failed to save picture of candidate %s: %w", candidateID, err)
	}
	return nil
}

func (s *FirestoreStore) PicturesOf(ctx context.Context, candidateIDs []string) (map[string]*string, error) {
	out := make(map[string]*string, len(candidateIDs))
	if len(candidateIDs) == 0 {
		return out, nil
	}
	refs := make([]*firestore.DocumentRef, 0, len(candidateIDs))
	for _, id := range candidateIDs {
		refs = append(refs, s.pictures().Doc(id))
	}
	snaps, err := s.client.GetAll(ctx, refs)
	if err != nil {
		return nil, fmt.Errorf("failed to read pictures: %w", err)
	}
	for _, snap := range snaps {
		if !snap.Exists() {
			continue
		}
		var p models.Picture
		if err := snap.DataTo(&p); err != nil {
			return nil, fmt.Errorf("failed to decode picture %s: %w", snap.Ref.ID, err)
		}
		out[snap.Ref.ID] = p.URL
	}
	return out, nil
}

func (s *FirestoreStore) Close() error {
	return s.client.Close()
}

func (s *FirestoreStore) deleteRefs(ctx context.Context, refs []*firestore.DocumentRef) error {
	if len(refs) == 0 {
		return nil
	}
	bw := s.client.BulkWriter(ctx)
	jobs := make([]*firestore.BulkWriterJob, 0, len(refs))
	for _, ref := range refs {
		job, err := bw.Delete(ref)
		if err != nil {
			bw.End()
			return err
		}
		jobs = append(jobs, job)
	}
	bw.End()
	for _, job := range jobs {
		if _, err := job.Results(); err != nil {
			return err
		}
	}
	return nil
}

func groupFromSnapshot(snap *firestore.DocumentSnapshot) (*models.Group, error) {
	var g models.Group
	if err := snap.DataTo(&g); err != nil {
		return nil, fmt.Errorf("failed to decode group %s: %w", snap.Ref.ID, err)
	}
	g.ID = snap.Ref.ID
	return &g, nil
}

func refsOf(docs []*firestore.DocumentSnapshot) []*firestore.DocumentRef {
	refs := make([]*firestore.DocumentRef, 0, len(docs))
	for _, doc := range docs {
		refs = append(refs, doc.Ref)
	}
	return refs
}

// docRef guards against ids that Firestore would reject as paths.
func docRef(coll *firestore.CollectionRef, id string) (*firestore.DocumentRef, bool) {
	if id == "" || strings.Contains(id, "/") {
		return nil, false
	}
	ref := coll.Doc(id)
	return ref, ref != nil
}
