// Package postgres persists finished interview sessions and their
// per-answer skill embeddings in PostgreSQL. Session rows and answer rows
// live in plain relational tables; skill chunks carry pgvector embeddings
// so past answers can be searched by semantic similarity during gap
// analysis.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"
)

// Store owns the connection pool and hands out the two typed accessors.
type Store struct {
	pool     *pgxpool.Pool
	sessions *SessionStore
	skills   *SkillIndex
}

// NewStore connects to the database at dsn, registers the pgvector types on
// every connection, verifies connectivity and runs the idempotent schema
// migration. embeddingDimensions fixes the width of the skill-chunk vector
// column and must match the embedding provider in use.
func NewStore(ctx context.Context, dsn string, embeddingDimensions int) (*Store, error) {
	if embeddingDimensions <= 0 {
		return nil, fmt.Errorf("postgres: embedding dimensions must be positive, got %d", embeddingDimensions)
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse dsn: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		// Best-effort: the vector extension may not exist until Migrate ran.
		_ = pgxvec.RegisterTypes(ctx, conn)
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	s := &Store{pool: pool}
	if err := s.migrate(ctx, embeddingDimensions); err != nil {
		pool.Close()
		return nil, err
	}
	s.sessions = &SessionStore{pool: pool}
	s.skills = &SkillIndex{pool: pool}
	return s, nil
}

// Sessions returns the relational session/answer accessor.
func (s *Store) Sessions() *SessionStore { return s.sessions }

// Skills returns the vector skill-chunk accessor.
func (s *Store) Skills() *SkillIndex { return s.skills }

// Ping verifies database connectivity. Health checks call this.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres: ping: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}
