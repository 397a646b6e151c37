package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/Lllllllleong/candidatequiz/internal/models"
)

//go:embed sql/schema.sql
var schemaSQL string

// SQLiteStore implements Store on a local SQLite database. Timestamps are
// stored as unix milliseconds.
type SQLiteStore struct {
	DB *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path and applies the schema.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database dir: %w", err)
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &SQLiteStore{DB: conn}, nil
}

const groupColumns = `id, year, type, city, district, expired_at, created_at, updated_at`

func scanGroup(row interface{ Scan(...any) error }) (*models.Group, error) {
	var g models.Group
	var typ string
	var expiredAt sql.NullInt64
	var createdAt, updatedAt int64
	if err := row.Scan(&g.ID, &g.Year, &typ, &g.City, &g.District, &expiredAt, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	g.Type = models.ElectionType(typ)
	g.CreatedAt = time.UnixMilli(createdAt)
	g.UpdatedAt = time.UnixMilli(updatedAt)
	if expiredAt.Valid {
		t := time.UnixMilli(expiredAt.Int64)
		g.ExpiredAt = &t
	}
	return &g, nil
}

func (s *SQLiteStore) FindValidOrExpired(ctx context.Context, fp models.Fingerprint) (*models.Group, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+groupColumns+` FROM groups
		WHERE year=? AND type=? AND city=? AND district=? AND expired_at IS NOT NULL
		ORDER BY expired_at DESC LIMIT 1`,
		fp.Year, string(fp.Type), fp.City, fp.District)
	g, err := scanGroup(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest group: %w", err)
	}
	return g, nil
}

func (s *SQLiteStore) CreateIfAbsent(ctx context.Context, fp models.Fingerprint, now time.Time) (*models.Group, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM groups
		WHERE year=? AND type=? AND city=? AND district=? AND (expired_at IS NULL OR expired_at > ?)`,
		fp.Year, string(fp.Type), fp.City, fp.District, now.UnixMilli()).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("failed to check for existing group: %w", err)
	}
	if exists > 0 {
		return nil, nil
	}

	created := time.UnixMilli(now.UnixMilli())
	g := &models.Group{ID: uuid.NewString(), Fingerprint: fp, CreatedAt: created, UpdatedAt: created}
	_, err = tx.ExecContext(ctx, `INSERT INTO groups(`+groupColumns+`) VALUES (?,?,?,?,?,NULL,?,?)`,
		g.ID, fp.Year, string(fp.Type), fp.City, fp.District, created.UnixMilli(), created.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("failed to create group: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return g, nil
}

func (s *SQLiteStore) Touch(ctx context.Context, groupID string, now time.Time) error {
	res, err := s.DB.ExecContext(ctx, `UPDATE groups SET updated_at=? WHERE id=?`, now.UnixMilli(), groupID)
	if err != nil {
		return fmt.Errorf("failed to touch group: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) MarkValid(ctx context.Context, groupID string, expiredAt time.Time) error {
	res, err := s.DB.ExecContext(ctx, `UPDATE groups SET expired_at=? WHERE id=?`, expiredAt.UnixMilli(), groupID)
	if err != nil {
		return fmt.Errorf("failed to update group expiry: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) DeleteGroup(ctx context.Context, groupID string) error {
	if _, err := s.DB.ExecContext(ctx, `DELETE FROM groups WHERE id=?`, groupID); err != nil {
		return fmt.Errorf("failed to delete group %s: %w", groupID, err)
	}
	return nil
}

func (s *SQLiteStore) GetGroup(ctx context.Context, groupID string) (*models.Group, error) {
	g, err := scanGroup(s.DB.QueryRowContext(ctx, `SELECT `+groupColumns+` FROM groups WHERE id=?`, groupID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read group %s: %w", groupID, err)
	}
	return g, nil
}

func (s *SQLiteStore) SweepPending(ctx context.Context, cutoff time.Time) (int, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT id FROM groups WHERE expired_at IS NULL AND updated_at < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to query pending groups: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	for _, id := range ids {
		if err := s.DeleteChildren(ctx, id); err != nil {
			return 0, err
		}
		if err := s.DeleteGroup(ctx, id); err != nil {
			return 0, err
		}
	}
	return len(ids), nil
}

func (s *SQLiteStore) InsertCandidateWithDeeds(ctx context.Context, groupID string, rec models.CandidateRecord) (*models.Candidate, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	c := models.Candidate{ID: uuid.NewString(), GroupID: groupID, Name: rec.Name, Party: rec.Party, Status: rec.Status}
	if _, err := tx.ExecContext(ctx, `INSERT INTO candidates(id,group_id,name,party,status) VALUES (?,?,?,?,?)`,
		c.ID, c.GroupID, c.Name, c.Party, c.Status); err != nil {
		return nil, fmt.Errorf("failed to insert candidate %s: %w", rec.Name, err)
	}
	for _, d := range rec.Deeds {
		if _, err := tx.ExecContext(ctx, `INSERT INTO deeds(id,group_id,candidate_id,description,keyword,question) VALUES (?,?,?,?,?,?)`,
			uuid.NewString(), groupID, c.ID, d.Description, d.Keyword, d.Question); err != nil {
			return nil, fmt.Errorf("failed to insert deed of %s: %w", rec.Name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *SQLiteStore) QuestionsOf(ctx context.Context, groupID string) ([]models.Question, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT id, question FROM deeds WHERE group_id=? ORDER BY seq`, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to query deeds of group %s: %w", groupID, err)
	}
	defer rows.Close()
	var questions []models.Question
	for rows.Next() {
		var q models.Question
		if err := rows.Scan(&q.ID, &q.Question); err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

func (s *SQLiteStore) CandidatesAndDeedsOf(ctx context.Context, groupID string) ([]models.Candidate, []models.Deed, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT id, group_id, name, party, status FROM candidates WHERE group_id=? ORDER BY seq`, groupID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query candidates of group %s: %w", groupID, err)
	}
	var candidates []models.Candidate
	for rows.Next() {
		var c models.Candidate
		if err := rows.Scan(&c.ID, &c.GroupID, &c.Name, &c.Party, &c.Status); err != nil {
			rows.Close()
			return nil, nil, err
		}
		candidates = append(candidates, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	rows, err = s.DB.QueryContext(ctx, `SELECT id, group_id, candidate_id, description, keyword, question FROM deeds WHERE group_id=? ORDER BY seq`, groupID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query deeds of group %s: %w", groupID, err)
	}
	defer rows.Close()
	var deeds []models.Deed
	for rows.Next() {
		var d models.Deed
		if err := rows.Scan(&d.ID, &d.GroupID, &d.CandidateID, &d.Description, &d.Keyword, &d.Question); err != nil {
			return nil, nil, err
		}
		deeds = append(deeds, d)
	}
	return candidates, deeds, rows.Err()
}

func (s *SQLiteStore) DeleteChildren(ctx context.Context, groupID string) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmts := []string{
		`DELETE FROM pictures WHERE candidate_id IN (SELECT id FROM candidates WHERE group_id=?)`,
		`DELETE FROM deeds WHERE group_id=?`,
		`DELETE FROM candidates WHERE group_id=?`,
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt, groupID); err != nil {
			return fmt.Errorf("failed to delete children of group %s: %w", groupID, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) GetDeed(ctx context.Context, deedID string) (*models.Deed, error) {
	var d models.Deed
	err := s.DB.QueryRowContext(ctx, `SELECT id, group_id, candidate_id, description, keyword, question FROM deeds WHERE id=?`, deedID).
		Scan(&d.ID, &d.GroupID, &d.CandidateID, &d.Description, &d.Keyword, &d.Question)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read deed %s: %w", deedID, err)
	}
	return &d, nil
}

func (s *SQLiteStore) SetPicture(ctx context.Context, candidateID string, url *string) error {
	var value sql.NullString
	if url != nil {
		value = sql.NullString{String: *url, Valid: true}
	}
	_, err := s.DB.ExecContext(ctx, `INSERT INTO pictures(candidate_id, url) VALUES (?, ?)
		ON CONFLICT(candidate_id) DO UPDATE SET url=excluded.url`, candidateID, value)
	if err != nil {
		return fmt.Errorf("failed to save picture of candidate %s: %w", candidateID, err)
	}
	return nil
}

func (s *SQLiteStore) PicturesOf(ctx context.Context, candidateIDs []string) (map[string]*string, error) {
	out := make(map[string]*string, len(candidateIDs))
	if len(candidateIDs) == 0 {
		return out, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(candidateIDs)), ",")
	args := make([]any, 0, len(candidateIDs))
	for _, id := range candidateIDs {
		args = append(args, id)
	}
	rows, err := s.DB.QueryContext(ctx, `SELECT candidate_id, url FROM pictures WHERE candidate_id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to read pictures: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		var url sql.NullString
		if err := rows.Scan(&id, &url); err != nil {
			return nil, err
		}
		if url.Valid {
			u := url.String
			out[id] = &u
		} else {
			out[id] = nil
		}
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.DB.Close()
}
