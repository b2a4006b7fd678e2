package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/voxprep/voxprep/internal/feedback"
	"github.com/voxprep/voxprep/internal/gateway"
	"github.com/voxprep/voxprep/internal/interview"
	"github.com/voxprep/voxprep/internal/observe"
	"github.com/voxprep/voxprep/internal/questiongen"
	"github.com/voxprep/voxprep/internal/resume"
	"github.com/voxprep/voxprep/internal/speech"
	"github.com/voxprep/voxprep/internal/transcript"
	"github.com/voxprep/voxprep/pkg/audio"
	"github.com/voxprep/voxprep/pkg/provider/embeddings"
	"github.com/voxprep/voxprep/pkg/provider/stt"
	"github.com/voxprep/voxprep/pkg/provider/tts"
)

// ResumeFetcher downloads resume documents. *resume.Fetcher satisfies it.
type ResumeFetcher interface {
	Fetch(ctx context.Context, key string) ([]byte, string, error)
}

// SessionManagerConfig holds all dependencies for a [SessionManager]. TTS,
// STT, Questions and Saver are mandatory; everything else degrades
// gracefully when absent.
type SessionManagerConfig struct {
	TTS       tts.Provider
	STT       stt.Provider
	Questions questiongen.Source
	Saver     feedback.ResultSaver

	// Voice is the coach voice used for every session.
	Voice tts.VoiceProfile

	// Resumes downloads the candidate's resume. Nil disables resume-driven
	// question generation and ATS scoring.
	Resumes ResumeFetcher

	// Indexer and Embedder enable per-answer skill indexing. Both must be
	// set for indexing to run.
	Indexer  feedback.SkillIndexer
	Embedder embeddings.Provider

	// Publisher emits async feedback jobs after each session.
	Publisher feedback.JobPublisher

	// Reporter generates the inline feedback report pushed to the client.
	Reporter feedback.ReportGenerator

	// Language is the recognition language. Empty means provider default.
	Language string

	// SkillVocabulary is the term list used for skill extraction and
	// transcript correction. Empty falls back to
	// [resume.DefaultSkillVocabulary].
	SkillVocabulary []string

	// MaxSessions caps concurrent interviews. Zero means unlimited.
	MaxSessions int

	Metrics *observe.Metrics
	Logger  *slog.Logger
}

// SessionManager builds one interview session per gateway connection. It
// implements [gateway.Factory]. All exported methods are safe for concurrent
// use.
type SessionManager struct {
	cfg        SessionManagerConfig
	vocabulary []string
	corrector  *transcript.Corrector
	metrics    *observe.Metrics
	log        *slog.Logger

	mu     sync.Mutex
	active int

	// handoffs tracks in-flight result fan-outs so Drain can wait for
	// persistence to finish during shutdown.
	handoffs sync.WaitGroup
}

// NewSessionManager creates a SessionManager with the given dependencies.
func NewSessionManager(cfg SessionManagerConfig) (*SessionManager, error) {
	if cfg.TTS == nil {
		return nil, fmt.Errorf("app: tts provider must not be nil")
	}
	if cfg.STT == nil {
		return nil, fmt.Errorf("app: stt provider must not be nil")
	}
	if cfg.Questions == nil {
		return nil, fmt.Errorf("app: question source must not be nil")
	}
	if cfg.Saver == nil {
		return nil, fmt.Errorf("app: result saver must not be nil")
	}

	vocabulary := cfg.SkillVocabulary
	if len(vocabulary) == 0 {
		vocabulary = resume.DefaultSkillVocabulary
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}

	return &SessionManager{
		cfg:        cfg,
		vocabulary: vocabulary,
		corrector:  transcript.NewCorrector(vocabulary),
		metrics:    metrics,
		log:        log,
	}, nil
}

// NewSession implements [gateway.Factory]. It profiles the candidate's
// resume, generates the question set, and assembles the voice pipeline for
// one interview.
func (sm *SessionManager) NewSession(ctx context.Context, req gateway.StartRequest, audioSink func(pcm []byte)) (gateway.Session, error) {
	if err := sm.acquire(ctx); err != nil {
		return nil, err
	}

	session, err := sm.buildSession(ctx, req, audioSink)
	if err != nil {
		sm.release(ctx)
		return nil, err
	}
	return session, nil
}

// Active reports how many interviews are currently running.
func (sm *SessionManager) Active() int {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.active
}

// Drain blocks until every in-flight result handoff has finished or ctx
// expires. Call during shutdown after the gateway stopped accepting
// connections.
func (sm *SessionManager) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		sm.handoffs.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("app: drain: %w", ctx.Err())
	}
}

func (sm *SessionManager) buildSession(ctx context.Context, req gateway.StartRequest, audioSink func(pcm []byte)) (*managedSession, error) {
	log := sm.log.With("candidate_id", req.CandidateID, "role", req.Role)

	profile := sm.profileCandidate(ctx, log, req)

	set, err := sm.cfg.Questions.Questions(ctx, questiongen.Params{
		ResumeText: profile.resumeText,
		Role:       req.Role,
		Count:      req.QuestionCount,
		Skills:     profile.skills,
	})
	if err != nil {
		return nil, fmt.Errorf("app: generate questions: %w", err)
	}

	channel, err := speech.NewChannel(sm.cfg.TTS, sm.cfg.STT, sm.cfg.Voice,
		speech.WithAudioSink(audioSink),
		speech.WithKeywords(resume.KeywordBoosts(profile.resumeText, profile.skills)),
		speech.WithLanguage(sm.cfg.Language),
		speech.WithLogger(log),
	)
	if err != nil {
		return nil, err
	}

	session := &managedSession{
		channel: channel,
		manager: sm,
		set:     set,
		log:     log,
		report:  make(chan *feedback.Report, 1),
		events:  make(chan interview.Event, 16),
	}

	sink, err := sm.newSink(log, session)
	if err != nil {
		return nil, err
	}
	handoff := sink.HandoffFor(feedback.SessionInfo{
		CandidateID: req.CandidateID,
		Role:        req.Role,
		ATSScore:    profile.atsScore,
		StartedAt:   time.Now().UTC(),
		Skills:      profile.skills,
	})

	session.machine = interview.NewMachine(
		transcript.WrapChannel(channel, sm.corrector, log),
		set,
		session.backgroundHandoff(handoff),
		interview.WithLogger(log),
	)
	go session.tapEvents()

	log.Info("interview session assembled",
		"questions", set.Len(),
		"skills", len(profile.skills),
		"ats_score", profile.atsScore,
	)
	return session, nil
}

// newSink wires the per-session feedback fan-out. Each session gets its own
// sink so the inline report lands on that session's report channel.
func (sm *SessionManager) newSink(log *slog.Logger, session *managedSession) (*feedback.Sink, error) {
	opts := []feedback.SinkOption{
		feedback.WithLogger(log),
		feedback.WithReportFunc(func(_ string, report *feedback.Report) {
			session.deliverReport(report)
		}),
	}
	if sm.cfg.Indexer != nil && sm.cfg.Embedder != nil {
		opts = append(opts, feedback.WithSkillIndexing(sm.cfg.Indexer, sm.cfg.Embedder))
	}
	if sm.cfg.Publisher != nil {
		opts = append(opts, feedback.WithPublisher(sm.cfg.Publisher))
	}
	if sm.cfg.Reporter != nil {
		opts = append(opts, feedback.WithGenerator(sm.cfg.Reporter))
	}
	return feedback.NewSink(sm.cfg.Saver, opts...)
}

// candidateProfile is what the resume pipeline extracted for one candidate.
type candidateProfile struct {
	resumeText string
	skills     []string
	atsScore   int
}

// profileCandidate fetches and scores the resume. Failures degrade to an
// interview without resume context rather than blocking the session.
func (sm *SessionManager) profileCandidate(ctx context.Context, log *slog.Logger, req gateway.StartRequest) candidateProfile {
	var p candidateProfile
	if sm.cfg.Resumes == nil || req.ResumeKey == "" {
		return p
	}

	data, mime, err := sm.cfg.Resumes.Fetch(ctx, req.ResumeKey)
	if err != nil {
		log.Warn("resume fetch failed, continuing without resume", "key", req.ResumeKey, "error", err)
		return p
	}
	text, err := resume.ExtractText(mime, data)
	if err != nil {
		log.Warn("resume text extraction failed, continuing without resume", "key", req.ResumeKey, "error", err)
		return p
	}

	p.resumeText = text
	p.skills = resume.ExtractSkills(text, sm.vocabulary)
	if req.JobDescription != "" {
		p.atsScore = resume.KeywordScore(text, req.JobDescription)
	}
	return p
}

func (sm *SessionManager) acquire(ctx context.Context) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if sm.cfg.MaxSessions > 0 && sm.active >= sm.cfg.MaxSessions {
		return fmt.Errorf("app: session capacity reached (%d active)", sm.active)
	}
	sm.active++
	sm.metrics.ActiveSessions.Add(ctx, 1)
	return nil
}

func (sm *SessionManager) release(ctx context.Context) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.active--
	sm.metrics.ActiveSessions.Add(context.WithoutCancel(ctx), -1)
}

// managedSession adapts one interview machine and its speech channel to the
// [gateway.Session] interface.
type managedSession struct {
	machine *interview.Machine
	channel *speech.Channel
	manager *SessionManager
	set     interview.QuestionSet
	log     *slog.Logger

	report chan *feedback.Report
	events chan interview.Event

	reportOnce sync.Once
	closeOnce  sync.Once
}

func (s *managedSession) Start(ctx context.Context) error { return s.machine.Start(ctx) }
func (s *managedSession) Pause() error                    { return s.machine.Pause() }
func (s *managedSession) Resume() error                   { return s.machine.Resume() }
func (s *managedSession) Skip() error                     { return s.machine.Skip() }
func (s *managedSession) Abort() error                    { return s.machine.Abort() }

func (s *managedSession) PushAudio(frame audio.Frame) error {
	return s.channel.PushFrame(frame)
}

func (s *managedSession) Events() <-chan interview.Event { return s.events }

func (s *managedSession) Report() <-chan *feedback.Report { return s.report }

// Close aborts a still-running interview and releases the session slot. The
// abort pushes the result through the normal handoff path, so a dropped
// connection still persists whatever the candidate answered.
func (s *managedSession) Close() {
	s.closeOnce.Do(func() {
		if !s.machine.Status().Terminal() {
			if err := s.machine.Abort(); err != nil {
				s.log.Debug("abort on close", "error", err)
			}
		}
		s.channel.Cancel()
		s.manager.release(context.Background())
	})
}

// backgroundHandoff moves the result fan-out off the machine's calling
// goroutine: an abort from the gateway must not wait behind the database
// write and the report LLM call.
func (s *managedSession) backgroundHandoff(handoff interview.HandoffFunc) interview.HandoffFunc {
	return func(res interview.Result) {
		s.manager.handoffs.Add(1)
		go func() {
			defer s.manager.handoffs.Done()
			handoff(res)
			s.reportOnce.Do(func() { close(s.report) })
		}()
	}
}

func (s *managedSession) deliverReport(report *feedback.Report) {
	select {
	case s.report <- report:
	default:
	}
}

// tapEvents forwards machine events to the gateway while recording question
// and answer metrics. Like the machine's own emitter it never blocks; a slow
// consumer loses events.
func (s *managedSession) tapEvents() {
	defer close(s.events)
	metrics := s.manager.metrics
	for ev := range s.machine.Events() {
		switch ev.Type {
		case interview.EventQuestionAsked:
			if ev.QuestionIndex < s.set.Len() {
				metrics.RecordQuestionAsked(context.Background(), string(s.set.At(ev.QuestionIndex).Category))
			}
		case interview.EventAnswerRecorded:
			metrics.RecordAnswer(context.Background(), answerOutcome(s.machine.Answers()))
		}
		select {
		case s.events <- ev:
		default:
			s.log.Debug("dropping session event", "type", ev.Type)
		}
	}
}

// answerOutcome classifies the most recent answer record.
func answerOutcome(answers []interview.AnswerRecord) string {
	if len(answers) == 0 {
		return observe.OutcomeAnswered
	}
	last := answers[len(answers)-1]
	switch {
	case last.Skipped:
		return observe.OutcomeSkipped
	case last.TimedOut:
		return observe.OutcomeTimedOut
	default:
		return observe.OutcomeAnswered
	}
}

// Ensure the factory contract holds at compile time.
var (
	_ gateway.Factory = (*SessionManager)(nil)
	_ gateway.Session = (*managedSession)(nil)
)
