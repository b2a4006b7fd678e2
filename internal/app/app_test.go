package app_test

import (
	"context"
	"testing"
	"time"

	"github.com/voxprep/voxprep/internal/app"
	"github.com/voxprep/voxprep/internal/config"
	"github.com/voxprep/voxprep/internal/questiongen"
	sttmock "github.com/voxprep/voxprep/pkg/provider/stt/mock"
	ttsmock "github.com/voxprep/voxprep/pkg/provider/tts/mock"
)

func testAppConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{ListenAddr: "127.0.0.1:0"},
		Providers: config.ProvidersConfig{
			STT: config.ProviderEntry{Name: "deepgram"},
			TTS: config.ProviderEntry{Name: "elevenlabs"},
		},
	}
}

func testProviders() *app.Providers {
	return &app.Providers{
		STT: &sttmock.Provider{},
		TTS: &ttsmock.Provider{},
	}
}

func newTestApp(t *testing.T) *app.App {
	t.Helper()
	a, err := app.New(context.Background(), testAppConfig(), testProviders(),
		app.WithSessionSaver(&fakeSaver{}),
		app.WithQuestionSource(questiongen.NewStatic(questiongen.DefaultFallbackSet())),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a
}

func TestNew_WiresSubsystems(t *testing.T) {
	a := newTestApp(t)
	if a.Sessions() == nil {
		t.Fatal("session manager not created")
	}
}

func TestNew_RequiresStorage(t *testing.T) {
	// No injected saver and no DSN: storage init must fail.
	_, err := app.New(context.Background(), testAppConfig(), testProviders(),
		app.WithQuestionSource(questiongen.NewStatic(questiongen.DefaultFallbackSet())),
	)
	if err == nil {
		t.Fatal("expected error without saver or postgres dsn")
	}
}

func TestNew_RequiresVoiceProviders(t *testing.T) {
	providers := testProviders()
	providers.TTS = nil
	_, err := app.New(context.Background(), testAppConfig(), providers,
		app.WithSessionSaver(&fakeSaver{}),
		app.WithQuestionSource(questiongen.NewStatic(questiongen.DefaultFallbackSet())),
	)
	if err == nil {
		t.Fatal("expected error without a tts provider")
	}
}

func TestNew_StaticQuestionsWithoutAPIKey(t *testing.T) {
	// No Gemini key and no injected source: New must still succeed on the
	// static fallback set.
	a, err := app.New(context.Background(), testAppConfig(), testProviders(),
		app.WithSessionSaver(&fakeSaver{}),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if a.Sessions() == nil {
		t.Fatal("session manager not created")
	}
}

func TestApp_RunStopsOnContextCancel(t *testing.T) {
	a := newTestApp(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	// Give the listener a moment to come up, then stop.
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestApp_ShutdownIsIdempotent(t *testing.T) {
	a := newTestApp(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := a.Shutdown(ctx); err != nil {
		t.Fatalf("first Shutdown: %v", err)
	}
	if err := a.Shutdown(ctx); err != nil {
		t.Fatalf("second Shutdown: %v", err)
	}
}
