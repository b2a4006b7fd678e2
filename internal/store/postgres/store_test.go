package postgres_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/voxprep/voxprep/internal/interview"
	"github.com/voxprep/voxprep/internal/store/postgres"
)

const testEmbeddingDim = 4

// testDSN returns the test database DSN from the environment, or skips the
// test if VOXPREP_TEST_POSTGRES_DSN is not set.
func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("VOXPREP_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("VOXPREP_TEST_POSTGRES_DSN not set — skipping PostgreSQL integration tests")
	}
	return dsn
}

// newTestStore creates a fresh [postgres.Store] with a clean schema.
func newTestStore(t *testing.T) *postgres.Store {
	t.Helper()
	dsn := testDSN(t)
	ctx := context.Background()

	cleanPool := mustPool(t, ctx, dsn)
	t.Cleanup(cleanPool.Close)
	dropSchema(t, ctx, cleanPool)

	store, err := postgres.NewStore(ctx, dsn, testEmbeddingDim)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(store.Close)
	return store
}

func mustPool(t *testing.T, ctx context.Context, dsn string) *pgxpool.Pool {
	t.Helper()
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		// best-effort: pgvector may not be installed yet on a fresh DB
		_ = pgxvec.RegisterTypes(ctx, conn)
		return nil
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	return pool
}

func dropSchema(t *testing.T, ctx context.Context, pool *pgxpool.Pool) {
	t.Helper()
	for _, stmt := range []string{
		"DROP TABLE IF EXISTS skill_chunks CASCADE",
		"DROP TABLE IF EXISTS answers CASCADE",
		"DROP TABLE IF EXISTS sessions CASCADE",
	} {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			t.Fatalf("dropSchema %q: %v", stmt, err)
		}
	}
}

func testResult(t *testing.T) interview.Result {
	t.Helper()
	set, err := interview.NewQuestionSet([]interview.Question{
		{Text: "Tell me about yourself.", Category: interview.CategoryBehavioral},
		{Text: "Design a URL shortener.", Category: interview.CategoryScenario, TimeLimit: 4 * time.Minute},
		{Text: "Explain goroutine scheduling.", Category: interview.CategoryTechnical, TimeLimit: 3 * time.Minute},
	})
	if err != nil {
		t.Fatalf("NewQuestionSet: %v", err)
	}
	return interview.Result{
		Status:    interview.StatusCompleted,
		Questions: set,
		Answers: []interview.AnswerRecord{
			{QuestionIndex: 0, Transcript: "I build backend services in Go.", TimeSpent: 45 * time.Second},
			{QuestionIndex: 1, Transcript: "I would shard by hash prefix.", TimedOut: true, TimeSpent: 4 * time.Minute},
			{QuestionIndex: 2, Skipped: true},
		},
		Elapsed: 6 * time.Minute,
	}
}

func TestSessionStore_SaveAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	res := testResult(t)
	id, err := store.Sessions().SaveResult(ctx, postgres.SessionRecord{
		CandidateID: "cand-1",
		Role:        "Backend Engineer",
		ATSScore:    72,
	}, res)
	if err != nil {
		t.Fatalf("SaveResult: %v", err)
	}
	if id == "" {
		t.Fatal("SaveResult: empty id")
	}

	rec, answers, err := store.Sessions().Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.Status != interview.StatusCompleted {
		t.Errorf("Status = %q", rec.Status)
	}
	if rec.Role != "Backend Engineer" || rec.CandidateID != "cand-1" || rec.ATSScore != 72 {
		t.Errorf("header = %+v", rec)
	}
	if rec.Elapsed != res.Elapsed {
		t.Errorf("Elapsed = %v, want %v", rec.Elapsed, res.Elapsed)
	}
	if len(answers) != 3 {
		t.Fatalf("got %d answers", len(answers))
	}
	if answers[0].QuestionText != "Tell me about yourself." || answers[0].Transcript != "I build backend services in Go." {
		t.Errorf("answers[0] = %+v", answers[0])
	}
	if answers[0].TimeSpent != 45*time.Second {
		t.Errorf("TimeSpent = %v", answers[0].TimeSpent)
	}
	if !answers[1].TimedOut || answers[1].Category != interview.CategoryScenario {
		t.Errorf("answers[1] = %+v", answers[1])
	}
	if !answers[2].Skipped || answers[2].Transcript != "" {
		t.Errorf("answers[2] = %+v", answers[2])
	}
}

func TestSessionStore_GetMissing(t *testing.T) {
	store := newTestStore(t)

	_, _, err := store.Sessions().Get(context.Background(), "no-such-session")
	if !errors.Is(err, postgres.ErrSessionNotFound) {
		t.Errorf("err = %v, want ErrSessionNotFound", err)
	}
}

func TestSessionStore_List(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	res := testResult(t)
	for i, rec := range []postgres.SessionRecord{
		{ID: "s-old", CandidateID: "cand-1", StartedAt: time.Now().Add(-2 * time.Hour)},
		{ID: "s-new", CandidateID: "cand-1", StartedAt: time.Now().Add(-1 * time.Hour)},
		{ID: "s-other", CandidateID: "cand-2", StartedAt: time.Now()},
	} {
		if _, err := store.Sessions().SaveResult(ctx, rec, res); err != nil {
			t.Fatalf("SaveResult[%d]: %v", i, err)
		}
	}

	all, err := store.Sessions().List(ctx, "", 0)
	if err != nil {
		t.Fatalf("List all: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("List all: want 3, got %d", len(all))
	}

	scoped, err := store.Sessions().List(ctx, "cand-1", 0)
	if err != nil {
		t.Fatalf("List cand-1: %v", err)
	}
	if len(scoped) != 2 {
		t.Fatalf("List cand-1: want 2, got %d", len(scoped))
	}
	// Newest first.
	if scoped[0].ID != "s-new" || scoped[1].ID != "s-old" {
		t.Errorf("order = [%s %s]", scoped[0].ID, scoped[1].ID)
	}

	limited, err := store.Sessions().List(ctx, "cand-1", 1)
	if err != nil {
		t.Fatalf("List limit: %v", err)
	}
	if len(limited) != 1 || limited[0].ID != "s-new" {
		t.Errorf("List limit: got %+v", limited)
	}
}

func TestSkillIndex_IndexAndSearch(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	skills := store.Skills()

	chunks := []postgres.SkillChunk{
		{ID: "c-1", SessionID: "s1", QuestionIndex: 0, Skill: "go",
			Content: "Goroutines are cheap enough to spawn per request.", Embedding: []float32{1, 0, 0, 0}},
		{ID: "c-2", SessionID: "s1", QuestionIndex: 1, Skill: "kubernetes",
			Content: "We ran canary rollouts with two deployments.", Embedding: []float32{0, 1, 0, 0}},
		{ID: "c-3", SessionID: "s2", QuestionIndex: 0, Skill: "go",
			Content: "Channels model the pipeline stages directly.", Embedding: []float32{0, 0, 1, 0}},
	}
	for _, c := range chunks {
		if err := skills.Index(ctx, c); err != nil {
			t.Fatalf("Index %s: %v", c.ID, err)
		}
	}

	matches, err := skills.Search(ctx, []float32{1, 0, 0, 0}, 3, postgres.SkillFilter{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(matches) != 3 {
		t.Fatalf("want 3 matches, got %d", len(matches))
	}
	if matches[0].Chunk.ID != "c-1" {
		t.Errorf("closest = %s (distance %.4f), want c-1", matches[0].Chunk.ID, matches[0].Distance)
	}

	scoped, err := skills.Search(ctx, []float32{1, 0, 0, 0}, 10, postgres.SkillFilter{SessionID: "s2"})
	if err != nil {
		t.Fatalf("Search session filter: %v", err)
	}
	if len(scoped) != 1 || scoped[0].Chunk.ID != "c-3" {
		t.Errorf("session filter: got %+v", scoped)
	}

	bySkill, err := skills.Search(ctx, []float32{1, 0, 0, 0}, 10, postgres.SkillFilter{Skill: "go"})
	if err != nil {
		t.Fatalf("Search skill filter: %v", err)
	}
	if len(bySkill) != 2 {
		t.Errorf("skill filter: want 2, got %d", len(bySkill))
	}

	// Upsert replaces content and embedding.
	updated := chunks[0]
	updated.Content = "Rewritten answer."
	updated.Embedding = []float32{0, 0, 0, 1}
	if err := skills.Index(ctx, updated); err != nil {
		t.Fatalf("Index upsert: %v", err)
	}
	after, err := skills.Search(ctx, []float32{0, 0, 0, 1}, 1, postgres.SkillFilter{})
	if err != nil {
		t.Fatalf("Search after upsert: %v", err)
	}
	if len(after) != 1 || after[0].Chunk.Content != "Rewritten answer." {
		t.Errorf("upsert: got %+v", after)
	}
}

func TestSkillIndex_GeneratedIDAndTimestamp(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	err := store.Skills().Index(ctx, postgres.SkillChunk{
		SessionID: "s1", Skill: "go", Content: "x", Embedding: []float32{1, 0, 0, 0},
	})
	if err != nil {
		t.Fatalf("Index: %v", err)
	}
	matches, err := store.Skills().Search(ctx, []float32{1, 0, 0, 0}, 1, postgres.SkillFilter{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("want 1 match, got %d", len(matches))
	}
	if matches[0].Chunk.ID == "" {
		t.Error("expected generated ID")
	}
	if matches[0].Chunk.CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be set")
	}
}
