package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/voxprep/voxprep/internal/interview"
)

// ErrSessionNotFound is returned by Get for an unknown session ID.
var ErrSessionNotFound = errors.New("postgres: session not found")

// SessionRecord is the stored header of a finished interview session.
type SessionRecord struct {
	ID          string
	CandidateID string
	Role        string
	Status      interview.Status
	ATSScore    int
	StartedAt   time.Time
	Elapsed     time.Duration
}

// StoredAnswer is one persisted answer row, joined with the question it
// answered so transcripts stay readable after the generated set is gone.
type StoredAnswer struct {
	QuestionIndex int
	QuestionText  string
	Category      interview.Category
	Transcript    string
	TimedOut      bool
	Skipped       bool
	TimeSpent     time.Duration
}

// SessionStore persists session headers and answer rows.
type SessionStore struct {
	pool *pgxpool.Pool
}

// SaveResult writes the session header and all answer rows in one
// transaction. A blank rec.ID gets a fresh UUID; the stored ID is returned.
// rec.Status and rec.Elapsed are taken from res, not from rec.
func (s *SessionStore) SaveResult(ctx context.Context, rec SessionRecord, res interview.Result) (string, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.StartedAt.IsZero() {
		rec.StartedAt = time.Now().Add(-res.Elapsed)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("postgres: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO sessions (id, candidate_id, role, status, ats_score, started_at, elapsed_ns)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.ID, rec.CandidateID, rec.Role, string(res.Status), rec.ATSScore,
		rec.StartedAt, res.Elapsed.Nanoseconds(),
	)
	if err != nil {
		return "", fmt.Errorf("postgres: insert session %s: %w", rec.ID, err)
	}

	for _, a := range res.Answers {
		q := res.Questions.At(a.QuestionIndex)
		_, err = tx.Exec(ctx, `
			INSERT INTO answers (session_id, question_index, question_text, category, transcript, timed_out, skipped, time_spent_ns)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			rec.ID, a.QuestionIndex, q.Text, string(q.Category),
			a.Transcript, a.TimedOut, a.Skipped, a.TimeSpent.Nanoseconds(),
		)
		if err != nil {
			return "", fmt.Errorf("postgres: insert answer %d of session %s: %w", a.QuestionIndex, rec.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("postgres: commit session %s: %w", rec.ID, err)
	}
	return rec.ID, nil
}

// Get loads a session header with its answers in question order.
func (s *SessionStore) Get(ctx context.Context, id string) (SessionRecord, []StoredAnswer, error) {
	var (
		rec       SessionRecord
		status    string
		elapsedNS int64
	)
	err := s.pool.QueryRow(ctx, `
		SELECT id, candidate_id, role, status, ats_score, started_at, elapsed_ns
		FROM sessions WHERE id = $1`, id,
	).Scan(&rec.ID, &rec.CandidateID, &rec.Role, &status, &rec.ATSScore, &rec.StartedAt, &elapsedNS)
	if errors.Is(err, pgx.ErrNoRows) {
		return SessionRecord{}, nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if err != nil {
		return SessionRecord{}, nil, fmt.Errorf("postgres: get session %s: %w", id, err)
	}
	rec.Status = interview.Status(status)
	rec.Elapsed = time.Duration(elapsedNS)

	rows, err := s.pool.Query(ctx, `
		SELECT question_index, question_text, category, transcript, timed_out, skipped, time_spent_ns
		FROM answers WHERE session_id = $1
		ORDER BY question_index`, id)
	if err != nil {
		return SessionRecord{}, nil, fmt.Errorf("postgres: get answers of %s: %w", id, err)
	}

	answers, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (StoredAnswer, error) {
		var (
			a        StoredAnswer
			category string
			spentNS  int64
		)
		err := row.Scan(&a.QuestionIndex, &a.QuestionText, &category, &a.Transcript, &a.TimedOut, &a.Skipped, &spentNS)
		a.Category = interview.Category(category)
		a.TimeSpent = time.Duration(spentNS)
		return a, err
	})
	if err != nil {
		return SessionRecord{}, nil, fmt.Errorf("postgres: scan answers of %s: %w", id, err)
	}
	return rec, answers, nil
}

// List returns session headers newest-first, optionally scoped to one
// candidate. limit <= 0 means no limit.
func (s *SessionStore) List(ctx context.Context, candidateID string, limit int) ([]SessionRecord, error) {
	query := `
		SELECT id, candidate_id, role, status, ats_score, started_at, elapsed_ns
		FROM sessions`
	args := []any{}
	if candidateID != "" {
		query += ` WHERE candidate_id = $1`
		args = append(args, candidateID)
	}
	query += ` ORDER BY started_at DESC`
	if limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d`, len(args)+1)
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list sessions: %w", err)
	}

	recs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (SessionRecord, error) {
		var (
			rec       SessionRecord
			status    string
			elapsedNS int64
		)
		err := row.Scan(&rec.ID, &rec.CandidateID, &rec.Role, &status, &rec.ATSScore, &rec.StartedAt, &elapsedNS)
		rec.Status = interview.Status(status)
		rec.Elapsed = time.Duration(elapsedNS)
		return rec, err
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: scan sessions: %w", err)
	}
	return recs, nil
}
