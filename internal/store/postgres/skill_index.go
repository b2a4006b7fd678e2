package postgres

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// SkillChunk is one embedded slice of a candidate answer, tagged with the
// skill it demonstrates. Chunks feed the cross-session gap analysis: "show me
// how this candidate has talked about Kubernetes before".
type SkillChunk struct {
	ID            string
	SessionID     string
	QuestionIndex int
	Skill         string
	Content       string
	Embedding     []float32
	CreatedAt     time.Time
}

// SkillMatch is a search hit with its cosine distance (lower is closer).
type SkillMatch struct {
	Chunk    SkillChunk
	Distance float64
}

// SkillFilter narrows a Search. Zero fields are ignored.
type SkillFilter struct {
	SessionID string
	Skill     string
}

// SkillIndex stores and searches skill chunks by embedding similarity.
type SkillIndex struct {
	pool *pgxpool.Pool
}

// Index upserts a chunk. A blank ID gets a fresh UUID, a zero CreatedAt gets
// the current time. Re-indexing an existing ID replaces its content and
// embedding.
func (x *SkillIndex) Index(ctx context.Context, chunk SkillChunk) error {
	if chunk.ID == "" {
		chunk.ID = uuid.NewString()
	}
	if chunk.CreatedAt.IsZero() {
		chunk.CreatedAt = time.Now()
	}

	_, err := x.pool.Exec(ctx, `
		INSERT INTO skill_chunks (id, session_id, question_index, skill, content, embedding, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			session_id = EXCLUDED.session_id,
			question_index = EXCLUDED.question_index,
			skill = EXCLUDED.skill,
			content = EXCLUDED.content,
			embedding = EXCLUDED.embedding,
			created_at = EXCLUDED.created_at`,
		chunk.ID, chunk.SessionID, chunk.QuestionIndex, chunk.Skill,
		chunk.Content, pgvector.NewVector(chunk.Embedding), chunk.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: index skill chunk %s: %w", chunk.ID, err)
	}
	return nil
}

// Search returns the topK chunks nearest to embedding by cosine distance,
// optionally filtered.
func (x *SkillIndex) Search(ctx context.Context, embedding []float32, topK int, filter SkillFilter) ([]SkillMatch, error) {
	if topK <= 0 {
		topK = 10
	}

	args := []any{pgvector.NewVector(embedding)}
	next := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	query := `
		SELECT id, session_id, question_index, skill, content, embedding, created_at,
			embedding <=> $1 AS distance
		FROM skill_chunks`
	where := ""
	if filter.SessionID != "" {
		where = " WHERE session_id = " + next(filter.SessionID)
	}
	if filter.Skill != "" {
		if where == "" {
			where = " WHERE"
		} else {
			where += " AND"
		}
		where += " skill = " + next(filter.Skill)
	}
	query += where + " ORDER BY distance LIMIT " + next(topK)

	rows, err := x.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: search skill chunks: %w", err)
	}

	matches, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (SkillMatch, error) {
		var (
			m   SkillMatch
			vec pgvector.Vector
		)
		err := row.Scan(&m.Chunk.ID, &m.Chunk.SessionID, &m.Chunk.QuestionIndex,
			&m.Chunk.Skill, &m.Chunk.Content, &vec, &m.Chunk.CreatedAt, &m.Distance)
		m.Chunk.Embedding = vec.Slice()
		return m, err
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: scan skill chunks: %w", err)
	}
	return matches, nil
}
