// Package app wires all voxprep subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves HTTP until the context ends, and Shutdown tears
// everything down in order.
//
// For testing, inject mock implementations via functional options
// (WithSessionSaver, WithQuestionSource, etc.). When an option is not
// provided, New creates real implementations from the config.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/streadway/amqp"
	"golang.org/x/sync/errgroup"

	"github.com/voxprep/voxprep/internal/config"
	"github.com/voxprep/voxprep/internal/feedback"
	"github.com/voxprep/voxprep/internal/gateway"
	"github.com/voxprep/voxprep/internal/health"
	"github.com/voxprep/voxprep/internal/observe"
	"github.com/voxprep/voxprep/internal/questiongen"
	"github.com/voxprep/voxprep/internal/resume"
	"github.com/voxprep/voxprep/internal/speech"
	"github.com/voxprep/voxprep/internal/store/postgres"
	"github.com/voxprep/voxprep/pkg/provider/embeddings"
	"github.com/voxprep/voxprep/pkg/provider/llm"
	"github.com/voxprep/voxprep/pkg/provider/stt"
	"github.com/voxprep/voxprep/pkg/provider/tts"
)

// shutdownTimeout bounds the drain of in-flight result handoffs.
const shutdownTimeout = 30 * time.Second

// Providers holds one interface value per provider slot. Nil means the
// provider is not configured. Populated by main.go via the config registry.
type Providers struct {
	LLM        llm.Provider
	STT        stt.Provider
	TTS        tts.Provider
	Embeddings embeddings.Provider
}

// App owns all subsystem lifetimes and serves the interview gateway.
type App struct {
	cfg       *config.Config
	providers *Providers

	// Subsystems — initialised in New, torn down in Shutdown.
	store     *postgres.Store
	saver     feedback.ResultSaver
	indexer   feedback.SkillIndexer
	publisher feedback.JobPublisher
	reporter  feedback.ReportGenerator
	fetcher   ResumeFetcher
	questions questiongen.Source
	manager   *SessionManager
	server    *http.Server

	// checkers feed the /readyz endpoint.
	checkers []health.Checker

	// closers are called in reverse order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithSessionSaver injects a result saver instead of connecting to Postgres.
func WithSessionSaver(s feedback.ResultSaver) Option {
	return func(a *App) { a.saver = s }
}

// WithSkillIndexer injects a skill indexer instead of the Postgres one.
func WithSkillIndexer(i feedback.SkillIndexer) Option {
	return func(a *App) { a.indexer = i }
}

// WithPublisher injects a job publisher instead of dialing AMQP.
func WithPublisher(p feedback.JobPublisher) Option {
	return func(a *App) { a.publisher = p }
}

// WithReporter injects a report generator instead of building one from the
// LLM provider.
func WithReporter(r feedback.ReportGenerator) Option {
	return func(a *App) { a.reporter = r }
}

// WithResumeFetcher injects a resume fetcher instead of creating an S3 client.
func WithResumeFetcher(f ResumeFetcher) Option {
	return func(a *App) { a.fetcher = f }
}

// WithQuestionSource injects a question source instead of creating one from
// config.
func WithQuestionSource(s questiongen.Source) Option {
	return func(a *App) { a.questions = s }
}

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry). Use Option
// functions to inject test doubles for any subsystem.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}

	if err := a.initStorage(ctx); err != nil {
		return nil, fmt.Errorf("app: init storage: %w", err)
	}
	if err := a.initFeedback(); err != nil {
		return nil, fmt.Errorf("app: init feedback: %w", err)
	}
	if err := a.initResumes(ctx); err != nil {
		return nil, fmt.Errorf("app: init resumes: %w", err)
	}
	if err := a.initQuestions(ctx); err != nil {
		return nil, fmt.Errorf("app: init questions: %w", err)
	}
	if err := a.initSessions(ctx); err != nil {
		return nil, fmt.Errorf("app: init sessions: %w", err)
	}
	if err := a.initServer(); err != nil {
		return nil, fmt.Errorf("app: init server: %w", err)
	}

	return a, nil
}

// initStorage connects the PostgreSQL store or uses injected doubles.
func (a *App) initStorage(ctx context.Context) error {
	if a.saver != nil {
		return nil
	}

	dsn := a.cfg.Storage.PostgresDSN
	if dsn == "" {
		return fmt.Errorf("storage.postgres_dsn is required when no result saver is injected")
	}
	dims := a.cfg.Storage.EmbeddingDimensions
	if dims == 0 {
		dims = 1536 // sensible default for OpenAI text-embedding-3-small
	}

	store, err := postgres.NewStore(ctx, dsn, dims)
	if err != nil {
		return err
	}
	a.store = store
	a.saver = store.Sessions()
	if a.indexer == nil {
		a.indexer = store.Skills()
	}
	a.checkers = append(a.checkers, health.PingChecker("postgres", store))
	a.closers = append(a.closers, func() error {
		store.Close()
		return nil
	})
	return nil
}

// initFeedback sets up the AMQP publisher and the inline report generator.
// Both are optional: no broker means no async jobs, no LLM means no report.
func (a *App) initFeedback() error {
	if a.publisher == nil && a.cfg.Feedback.AMQPURL != "" {
		conn, err := amqp.Dial(a.cfg.Feedback.AMQPURL)
		if err != nil {
			return fmt.Errorf("dial amqp: %w", err)
		}
		exchange := a.cfg.Feedback.Exchange
		if exchange == "" {
			exchange = feedback.DefaultExchange
		}
		pub, err := feedback.NewPublisher(conn, exchange)
		if err != nil {
			_ = conn.Close()
			return err
		}
		a.publisher = pub
		a.closers = append(a.closers, conn.Close)
	}

	if a.reporter == nil && a.providers.LLM != nil {
		gen, err := feedback.NewGenerator(a.providers.LLM)
		if err != nil {
			return err
		}
		a.reporter = gen
	}
	return nil
}

// initResumes creates the S3 resume fetcher when a bucket is configured.
func (a *App) initResumes(ctx context.Context) error {
	if a.fetcher != nil || a.cfg.Resumes.Bucket == "" {
		return nil
	}

	var loadOpts []func(*awsconfig.LoadOptions) error
	if a.cfg.Resumes.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(a.cfg.Resumes.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if a.cfg.Resumes.Endpoint != "" {
			o.BaseEndpoint = aws.String(a.cfg.Resumes.Endpoint)
			o.UsePathStyle = true
		}
	})
	fetcher, err := resume.NewFetcher(client, a.cfg.Resumes.Bucket)
	if err != nil {
		return err
	}
	a.fetcher = fetcher
	return nil
}

// initQuestions builds the question source: Gemini generation with a static
// fallback, or the static set alone when no API key is configured.
func (a *App) initQuestions(ctx context.Context) error {
	if a.questions != nil {
		return nil
	}

	static := questiongen.NewStatic(questiongen.DefaultFallbackSet())
	if a.cfg.Questions.GeminiAPIKey == "" {
		a.questions = static
		return nil
	}

	gen, err := questiongen.NewGenerator(ctx, a.cfg.Questions.GeminiAPIKey,
		questiongen.WithModel(a.cfg.Questions.Model),
		questiongen.WithTemperature(a.cfg.Questions.Temperature),
	)
	if err != nil {
		return err
	}
	a.questions = questiongen.WithFallback(gen, static, slog.Default())
	return nil
}

// initSessions resolves the coach voice and builds the session manager.
func (a *App) initSessions(ctx context.Context) error {
	if a.providers.TTS == nil {
		return fmt.Errorf("a tts provider is required")
	}
	if a.providers.STT == nil {
		return fmt.Errorf("an stt provider is required")
	}

	voice := tts.VoiceProfile{ID: a.cfg.Interview.Voice}
	if a.cfg.Interview.Voice != "" {
		resolved, err := speech.ResolveVoice(ctx, a.providers.TTS, a.cfg.Interview.Voice)
		if err != nil {
			slog.Warn("coach voice not found in provider catalogue, using raw ID",
				"voice", a.cfg.Interview.Voice, "err", err)
		} else {
			voice = resolved
		}
	}

	manager, err := NewSessionManager(SessionManagerConfig{
		TTS:             a.providers.TTS,
		STT:             a.providers.STT,
		Questions:       a.questions,
		Saver:           a.saver,
		Voice:           voice,
		Resumes:         a.fetcher,
		Indexer:         a.indexer,
		Embedder:        a.providers.Embeddings,
		Publisher:       a.publisher,
		Reporter:        a.reporter,
		Language:        a.cfg.Interview.Language,
		SkillVocabulary: a.cfg.Interview.SkillVocabulary,
		MaxSessions:     a.cfg.Interview.MaxSessions,
	})
	if err != nil {
		return err
	}
	a.manager = manager
	return nil
}

// initServer assembles the HTTP mux: the interview WebSocket, health probes,
// and Prometheus metrics.
func (a *App) initServer() error {
	handler, err := gateway.NewHandler(a.manager)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/ws", handler)
	mux.Handle("/metrics", promhttp.Handler())
	health.New(a.checkers...).Register(mux)

	addr := a.cfg.Server.ListenAddr
	if addr == "" {
		addr = ":8080"
	}
	a.server = &http.Server{
		Addr:              addr,
		Handler:           observe.Middleware(observe.DefaultMetrics())(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return nil
}

// Sessions returns the session manager, mainly for tests and diagnostics.
func (a *App) Sessions() *SessionManager { return a.manager }

// Run serves HTTP until ctx is cancelled, then shuts down gracefully. It
// returns the first serve error, or nil after a clean shutdown.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("server listening", "addr", a.server.Addr, "tls", a.cfg.Server.TLS != nil)
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = a.server.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			err = a.server.ListenAndServe()
		}
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return a.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// Shutdown stops the HTTP server, waits for in-flight result handoffs, and
// tears down all subsystems in reverse-init order. It respects the context
// deadline: if ctx expires, remaining closers are skipped and the context
// error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		if a.server != nil {
			if err := a.server.Shutdown(ctx); err != nil {
				slog.Warn("http shutdown error", "err", err)
			}
		}

		// Sessions abort when their connections close; wait for the
		// resulting persistence fan-outs before closing the stores.
		if a.manager != nil {
			if err := a.manager.Drain(ctx); err != nil {
				slog.Warn("session drain error", "err", err)
			}
		}

		for i := len(a.closers) - 1; i >= 0; i-- {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := a.closers[i](); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
