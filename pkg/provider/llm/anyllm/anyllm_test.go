package anyllm

import (
	"strings"
	"testing"

	"github.com/voxprep/voxprep/pkg/provider/llm"
)

func TestNew_Validation(t *testing.T) {
	if _, err := New("", "gpt-4o-mini"); err == nil {
		t.Error("expected error for empty provider name")
	}
	if _, err := New("openai", ""); err == nil {
		t.Error("expected error for empty model")
	}
	if _, err := New("not-a-provider", "some-model"); err == nil {
		t.Error("expected error for unsupported provider")
	}
}

func TestCountTokens(t *testing.T) {
	p := &Provider{model: "gpt-4o-mini"}

	n, err := p.CountTokens([]llm.Message{
		{Role: "user", Content: strings.Repeat("a", 40)},
	})
	if err != nil {
		t.Fatalf("CountTokens: %v", err)
	}
	// 40 chars => 10 tokens, plus 4 overhead.
	if n != 14 {
		t.Errorf("CountTokens = %d, want 14", n)
	}

	n, err = p.CountTokens(nil)
	if err != nil || n != 0 {
		t.Errorf("CountTokens(nil) = %d, %v; want 0, nil", n, err)
	}
}

func TestBuildParams(t *testing.T) {
	p := &Provider{model: "gpt-4o-mini"}

	req := llm.CompletionRequest{
		SystemPrompt: "You are an interview coach.",
		Messages: []llm.Message{
			{Role: "user", Content: "Evaluate this answer."},
		},
		Temperature: 0.3,
		MaxTokens:   512,
	}

	params := p.buildParams(req)
	if params.Model != "gpt-4o-mini" {
		t.Errorf("model = %q", params.Model)
	}
	if len(params.Messages) != 2 {
		t.Fatalf("got %d messages, want 2 (system + user)", len(params.Messages))
	}
	if params.Messages[0].Content != "You are an interview coach." {
		t.Errorf("system message = %q", params.Messages[0].Content)
	}
	if params.Temperature == nil || *params.Temperature != 0.3 {
		t.Errorf("temperature = %v", params.Temperature)
	}
	if params.MaxTokens == nil || *params.MaxTokens != 512 {
		t.Errorf("maxTokens = %v", params.MaxTokens)
	}
}

func TestBuildParams_JSONOnly(t *testing.T) {
	p := &Provider{model: "gpt-4o-mini"}

	params := p.buildParams(llm.CompletionRequest{
		SystemPrompt: "Score the answers.",
		Messages:     []llm.Message{{Role: "user", Content: "go"}},
		JSONOnly:     true,
	})
	if len(params.Messages) != 2 {
		t.Fatalf("got %d messages", len(params.Messages))
	}
	sys, ok := params.Messages[0].Content.(string)
	if !ok {
		t.Fatalf("system prompt content has type %T, want string", params.Messages[0].Content)
	}
	if !strings.Contains(sys, "Score the answers.") || !strings.Contains(sys, jsonOnlyInstruction) {
		t.Errorf("system prompt = %q, want original text plus JSON instruction", sys)
	}
}

func TestBuildParams_JSONOnlyWithoutSystemPrompt(t *testing.T) {
	p := &Provider{model: "gpt-4o-mini"}

	params := p.buildParams(llm.CompletionRequest{
		Messages: []llm.Message{{Role: "user", Content: "go"}},
		JSONOnly: true,
	})
	if params.Messages[0].Content != jsonOnlyInstruction {
		t.Errorf("system prompt = %q", params.Messages[0].Content)
	}
}

func TestModelCapabilities(t *testing.T) {
	tests := []struct {
		model         string
		wantWindow    int
		wantJSONMode  bool
		wantStreaming bool
	}{
		{model: "gpt-4o-mini", wantWindow: 128_000, wantJSONMode: true, wantStreaming: true},
		{model: "claude-3-5-sonnet-latest", wantWindow: 200_000, wantJSONMode: false, wantStreaming: true},
		{model: "gemini-1.5-pro", wantWindow: 2_097_152, wantJSONMode: true, wantStreaming: true},
		{model: "totally-unknown", wantWindow: 128_000, wantJSONMode: false, wantStreaming: true},
	}
	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			caps := modelCapabilities(tt.model)
			if caps.ContextWindow != tt.wantWindow {
				t.Errorf("context window = %d, want %d", caps.ContextWindow, tt.wantWindow)
			}
			if caps.SupportsJSONMode != tt.wantJSONMode {
				t.Errorf("json mode = %v, want %v", caps.SupportsJSONMode, tt.wantJSONMode)
			}
			if caps.SupportsStreaming != tt.wantStreaming {
				t.Errorf("streaming = %v", caps.SupportsStreaming)
			}
		})
	}
}
