package feedback

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/voxprep/voxprep/internal/interview"
	"github.com/voxprep/voxprep/internal/resume"
	"github.com/voxprep/voxprep/internal/store/postgres"
	"github.com/voxprep/voxprep/pkg/provider/embeddings"
)

// ResultSaver persists a finished session. *postgres.SessionStore satisfies
// it.
type ResultSaver interface {
	SaveResult(ctx context.Context, rec postgres.SessionRecord, res interview.Result) (string, error)
}

// SkillIndexer stores embedded answer fragments. *postgres.SkillIndex
// satisfies it.
type SkillIndexer interface {
	Index(ctx context.Context, chunk postgres.SkillChunk) error
}

// JobPublisher emits async feedback jobs. *Publisher satisfies it.
type JobPublisher interface {
	PublishJob(job Job) error
}

// ReportGenerator produces an inline report. *Generator satisfies it.
type ReportGenerator interface {
	Generate(ctx context.Context, role string, res interview.Result) (*Report, error)
}

// SessionInfo carries the session metadata the handoff payload does not:
// who interviewed, for what role, and how the resume scored.
type SessionInfo struct {
	CandidateID string
	Role        string
	ATSScore    int
	StartedAt   time.Time
	// Skills is the vocabulary used to tag indexed answer fragments. Empty
	// falls back to the default skill vocabulary.
	Skills []string
}

// Sink consumes session results. Each target runs independently: a failed
// database write does not stop the job publish, and vice versa. Errors are
// logged and swallowed; nothing crosses back over the handoff boundary.
type Sink struct {
	saver     ResultSaver
	indexer   SkillIndexer
	embedder  embeddings.Provider
	publisher JobPublisher
	generator ReportGenerator
	reportFn  func(sessionID string, report *Report)
	timeout   time.Duration
	log       *slog.Logger
}

// SinkOption customizes a Sink.
type SinkOption func(*Sink)

// WithSkillIndexing enables per-answer skill embedding. Both the indexer and
// the embedder must be non-nil for indexing to run.
func WithSkillIndexing(indexer SkillIndexer, embedder embeddings.Provider) SinkOption {
	return func(s *Sink) {
		s.indexer = indexer
		s.embedder = embedder
	}
}

// WithPublisher enables async job publishing.
func WithPublisher(p JobPublisher) SinkOption {
	return func(s *Sink) { s.publisher = p }
}

// WithGenerator enables inline report generation. The report is attached to
// the published job and delivered to the report callback, if any.
func WithGenerator(g ReportGenerator) SinkOption {
	return func(s *Sink) { s.generator = g }
}

// WithReportFunc registers a callback for inline reports, e.g. to push the
// report down the gateway socket.
func WithReportFunc(fn func(sessionID string, report *Report)) SinkOption {
	return func(s *Sink) { s.reportFn = fn }
}

// WithTimeout bounds the total time one handoff may spend across all
// targets. Default is 2 minutes.
func WithTimeout(d time.Duration) SinkOption {
	return func(s *Sink) { s.timeout = d }
}

// WithLogger sets the sink logger.
func WithLogger(log *slog.Logger) SinkOption {
	return func(s *Sink) { s.log = log }
}

// NewSink creates a Sink. Only the saver is mandatory; every other target is
// optional.
func NewSink(saver ResultSaver, opts ...SinkOption) (*Sink, error) {
	if saver == nil {
		return nil, fmt.Errorf("feedback: result saver must not be nil")
	}
	s := &Sink{
		saver:   saver,
		timeout: 2 * time.Minute,
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// HandoffFor returns the handoff callback for one session. The machine
// invokes it exactly once at the terminal transition; Consume then runs
// synchronously in the machine's handoff goroutine.
func (s *Sink) HandoffFor(info SessionInfo) interview.HandoffFunc {
	return func(res interview.Result) {
		s.Consume(info, res)
	}
}

// Consume runs the fan-out for one result.
func (s *Sink) Consume(info SessionInfo, res interview.Result) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	// All targets share one session ID, even when the database write fails.
	sessionID := uuid.NewString()
	log := s.log.With("session_id", sessionID, "status", string(res.Status))

	if _, err := s.saver.SaveResult(ctx, postgres.SessionRecord{
		ID:          sessionID,
		CandidateID: info.CandidateID,
		Role:        info.Role,
		ATSScore:    info.ATSScore,
		StartedAt:   info.StartedAt,
	}, res); err != nil {
		log.Error("persist session result", "error", err)
	}

	if s.indexer != nil && s.embedder != nil {
		s.indexSkills(ctx, log, sessionID, info.Skills, res)
	}

	var report *Report
	if s.generator != nil {
		var err error
		report, err = s.generator.Generate(ctx, info.Role, res)
		if err != nil {
			log.Error("generate feedback report", "error", err)
		} else {
			log.Info("feedback report generated", "overall_score", report.OverallScore)
			if s.reportFn != nil {
				s.reportFn(sessionID, report)
			}
		}
	}

	if s.publisher != nil {
		job := Job{
			SessionID:   sessionID,
			CandidateID: info.CandidateID,
			Role:        info.Role,
			Status:      string(res.Status),
			Answers:     len(res.Answers),
			CompletedAt: time.Now().UTC(),
			Report:      report,
		}
		if err := s.publisher.PublishJob(job); err != nil {
			log.Error("publish feedback job", "error", err)
		}
	}
}

// indexSkills embeds each answered transcript once and stores one chunk per
// skill it mentions. Chunk IDs are deterministic so re-running a handoff
// upserts instead of duplicating.
func (s *Sink) indexSkills(ctx context.Context, log *slog.Logger, sessionID string, skills []string, res interview.Result) {
	for _, a := range res.Answers {
		if a.Transcript == "" {
			continue
		}
		mentioned := resume.ExtractSkills(a.Transcript, skills)
		if len(mentioned) == 0 {
			continue
		}
		vec, err := s.embedder.Embed(ctx, a.Transcript)
		if err != nil {
			log.Error("embed answer", "question_index", a.QuestionIndex, "error", err)
			continue
		}
		for _, skill := range mentioned {
			chunk := postgres.SkillChunk{
				ID:            fmt.Sprintf("%s-%d-%s", sessionID, a.QuestionIndex, skill),
				SessionID:     sessionID,
				QuestionIndex: a.QuestionIndex,
				Skill:         skill,
				Content:       a.Transcript,
				Embedding:     vec,
			}
			if err := s.indexer.Index(ctx, chunk); err != nil {
				log.Error("index skill chunk", "skill", skill, "error", err)
			}
		}
	}
}
