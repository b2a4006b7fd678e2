package postgres

import (
	"context"
	"fmt"
)

const ddlSessions = `
CREATE TABLE IF NOT EXISTS sessions (
	id            TEXT PRIMARY KEY,
	candidate_id  TEXT NOT NULL DEFAULT '',
	role          TEXT NOT NULL DEFAULT '',
	status        TEXT NOT NULL,
	ats_score     INT NOT NULL DEFAULT 0,
	started_at    TIMESTAMPTZ NOT NULL,
	elapsed_ns    BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sessions_candidate
	ON sessions (candidate_id, started_at DESC);
`

const ddlAnswers = `
CREATE TABLE IF NOT EXISTS answers (
	session_id     TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	question_index INT NOT NULL,
	question_text  TEXT NOT NULL,
	category       TEXT NOT NULL,
	transcript     TEXT NOT NULL DEFAULT '',
	timed_out      BOOLEAN NOT NULL DEFAULT FALSE,
	skipped        BOOLEAN NOT NULL DEFAULT FALSE,
	time_spent_ns  BIGINT NOT NULL,
	PRIMARY KEY (session_id, question_index)
);
`

// ddlSkillChunks bakes the embedding width into the column type; pgvector
// columns cannot be resized after creation.
func ddlSkillChunks(dims int) string {
	return fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;
CREATE TABLE IF NOT EXISTS skill_chunks (
	id             TEXT PRIMARY KEY,
	session_id     TEXT NOT NULL,
	question_index INT NOT NULL,
	skill          TEXT NOT NULL,
	content        TEXT NOT NULL,
	embedding      vector(%d),
	created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_skill_chunks_embedding
	ON skill_chunks USING hnsw (embedding vector_cosine_ops);
CREATE INDEX IF NOT EXISTS idx_skill_chunks_session
	ON skill_chunks (session_id);
`, dims)
}

// migrate applies the schema. Every statement is idempotent, so it is safe
// to run on every startup.
func (s *Store) migrate(ctx context.Context, dims int) error {
	for _, ddl := range []string{
		ddlSessions,
		ddlAnswers,
		ddlSkillChunks(dims),
	} {
		if _, err := s.pool.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("postgres: migrate: %w", err)
		}
	}
	return nil
}
