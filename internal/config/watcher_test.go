package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/voxprep/voxprep/pkg/provider/stt"
	sttmock "github.com/voxprep/voxprep/pkg/provider/stt/mock"
)

// testConfigYAML parameterizes the fields the watcher tests care about.
type testConfigYAML struct {
	listenAddr  string
	voice       string
	maxSessions int
	vocabulary  []string
}

func writeConfig(t *testing.T, path string, c testConfigYAML) {
	t.Helper()
	if c.listenAddr == "" {
		c.listenAddr = ":8080"
	}
	yaml := fmt.Sprintf(`
server:
  listen_addr: %q
providers:
  stt:
    name: deepgram
  tts:
    name: elevenlabs
interview:
  voice: %s
`, c.listenAddr, c.voice)
	if c.maxSessions > 0 {
		yaml += fmt.Sprintf("  max_sessions: %d\n", c.maxSessions)
	}
	for i, term := range c.vocabulary {
		if i == 0 {
			yaml += "  skill_vocabulary:\n"
		}
		yaml += "    - " + term + "\n"
	}
	yaml += "storage:\n  postgres_dsn: postgres://localhost:5432/voxprep\n"
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

// bumpMtime pushes the file's mtime forward so the poller's cheap probe
// notices the rewrite even on coarse filesystem clocks.
func bumpMtime(t *testing.T, path string) {
	t.Helper()
	now := time.Now().Add(time.Second)
	if err := os.Chtimes(path, now, now); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
}

func TestWatcher_InitialLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "voxprep.yaml")
	writeConfig(t, path, testConfigYAML{voice: "Rachel"})

	w, err := NewWatcher(path, nil, WithInterval(10*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	if got := w.Current().Interview.Voice; got != "Rachel" {
		t.Errorf("voice = %q, want Rachel", got)
	}
}

func TestWatcher_DeliversVoiceChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "voxprep.yaml")
	writeConfig(t, path, testConfigYAML{voice: "Rachel"})

	var mu sync.Mutex
	var gotDiff ConfigDiff
	changed := make(chan struct{}, 1)

	w, err := NewWatcher(path, func(cfg *Config, diff ConfigDiff) {
		mu.Lock()
		gotDiff = diff
		mu.Unlock()
		select {
		case changed <- struct{}{}:
		default:
		}
	}, WithInterval(10*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	writeConfig(t, path, testConfigYAML{voice: "Adam"})
	bumpMtime(t, path)

	select {
	case <-changed:
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not report the change")
	}

	mu.Lock()
	defer mu.Unlock()
	if !gotDiff.VoiceChanged || gotDiff.NewVoice != "Adam" {
		t.Errorf("diff = %+v", gotDiff)
	}
	if gotDiff.MaxSessionsChanged || gotDiff.VocabularyChanged || gotDiff.LogLevelChanged {
		t.Errorf("unrelated fields flagged: %+v", gotDiff)
	}
	if got := w.Current().Interview.Voice; got != "Adam" {
		t.Errorf("current voice = %q, want Adam", got)
	}
}

func TestWatcher_DeliversSessionAndVocabularyChanges(t *testing.T) {
	path := filepath.Join(t.TempDir(), "voxprep.yaml")
	writeConfig(t, path, testConfigYAML{voice: "Rachel", maxSessions: 10})

	var mu sync.Mutex
	var gotDiff ConfigDiff
	changed := make(chan struct{}, 1)

	w, err := NewWatcher(path, func(cfg *Config, diff ConfigDiff) {
		mu.Lock()
		gotDiff = diff
		mu.Unlock()
		select {
		case changed <- struct{}{}:
		default:
		}
	}, WithInterval(10*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	writeConfig(t, path, testConfigYAML{
		voice:       "Rachel",
		maxSessions: 25,
		vocabulary:  []string{"go", "kubernetes"},
	})
	bumpMtime(t, path)

	select {
	case <-changed:
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not report the change")
	}

	mu.Lock()
	defer mu.Unlock()
	if !gotDiff.MaxSessionsChanged || gotDiff.NewMaxSessions != 25 {
		t.Errorf("diff = %+v, want max_sessions change to 25", gotDiff)
	}
	if !gotDiff.VocabularyChanged {
		t.Errorf("diff = %+v, want vocabulary change", gotDiff)
	}
	if gotDiff.VoiceChanged {
		t.Errorf("voice flagged although unchanged: %+v", gotDiff)
	}
}

func TestWatcher_RestartOnlyChangeIsSilent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "voxprep.yaml")
	writeConfig(t, path, testConfigYAML{voice: "Rachel"})

	w, err := NewWatcher(path, func(cfg *Config, diff ConfigDiff) {
		t.Error("onChange must not fire when no hot-reloadable field changed")
	}, WithInterval(10*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	// Only the listen address changes; that needs a restart to apply.
	writeConfig(t, path, testConfigYAML{listenAddr: ":9090", voice: "Rachel"})
	bumpMtime(t, path)

	time.Sleep(100 * time.Millisecond)

	// Current() still tracks the file even without a callback.
	if got := w.Current().Server.ListenAddr; got != ":9090" {
		t.Errorf("current listen_addr = %q, want :9090", got)
	}
}

func TestWatcher_KeepsOldConfigOnInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "voxprep.yaml")
	writeConfig(t, path, testConfigYAML{voice: "Rachel"})

	w, err := NewWatcher(path, func(cfg *Config, diff ConfigDiff) {
		t.Error("onChange must not fire for an invalid config")
	}, WithInterval(10*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	if err := os.WriteFile(path, []byte("server: [not a mapping"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	bumpMtime(t, path)

	// Give the poller a few cycles to (not) pick it up.
	time.Sleep(100 * time.Millisecond)

	if got := w.Current().Interview.Voice; got != "Rachel" {
		t.Errorf("current voice = %q, want Rachel (old config retained)", got)
	}
}

func TestWatcher_MissingFile(t *testing.T) {
	if _, err := NewWatcher(filepath.Join(t.TempDir(), "absent.yaml"), nil); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()

	if _, err := r.CreateSTT(ProviderEntry{Name: "deepgram"}); err == nil {
		t.Fatal("expected ErrProviderNotRegistered before registration")
	}

	r.RegisterSTT("deepgram", func(e ProviderEntry) (stt.Provider, error) {
		return &sttmock.Provider{}, nil
	})
	p, err := r.CreateSTT(ProviderEntry{Name: "deepgram"})
	if err != nil {
		t.Fatalf("CreateSTT after registration: %v", err)
	}
	if p == nil {
		t.Fatal("CreateSTT returned nil provider")
	}
}
