package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNew_Validation(t *testing.T) {
	if _, err := New("http://localhost:11434", ""); err == nil {
		t.Error("expected error for empty model")
	}
}

func TestNew_Defaults(t *testing.T) {
	p, err := New("", "nomic-embed-text")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.baseURL != DefaultBaseURL {
		t.Errorf("baseURL = %q, want %q", p.baseURL, DefaultBaseURL)
	}
	if p.ModelID() != "nomic-embed-text" {
		t.Errorf("ModelID = %q", p.ModelID())
	}
}

func TestNew_TrailingSlashStripped(t *testing.T) {
	p, err := New("http://embed.local:11434/", "all-minilm")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.baseURL != "http://embed.local:11434" {
		t.Errorf("baseURL = %q", p.baseURL)
	}
}

func TestKnownDimensions(t *testing.T) {
	tests := []struct {
		model string
		want  int
	}{
		{model: "nomic-embed-text", want: 768},
		{model: "nomic-embed-text:latest", want: 768},
		{model: "mxbai-embed-large", want: 1024},
		{model: "all-minilm", want: 384},
		{model: "mystery-model", want: 0},
	}
	for _, tt := range tests {
		if got := knownDimensions(tt.model); got != tt.want {
			t.Errorf("knownDimensions(%q) = %d, want %d", tt.model, got, tt.want)
		}
	}
}

func TestDimensions_ExplicitOverride(t *testing.T) {
	p, err := New("", "mystery-model", WithDimensions(512))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := p.Dimensions(); got != 512 {
		t.Errorf("Dimensions = %d, want 512", got)
	}
}

func TestEmbed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		var req embedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Model != "all-minilm" {
			t.Errorf("model = %q", req.Model)
		}
		if len(req.Input) != 1 || req.Input[0] != "Kubernetes" {
			t.Errorf("input = %v", req.Input)
		}
		json.NewEncoder(w).Encode(embedResponse{
			Model:      req.Model,
			Embeddings: [][]float32{{0.1, 0.2, 0.3}},
		})
	}))
	defer srv.Close()

	p, err := New(srv.URL, "all-minilm", WithTimeout(2*time.Second))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	vec, err := p.Embed(context.Background(), "Kubernetes")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vec) != 3 || vec[0] != 0.1 {
		t.Errorf("vec = %v", vec)
	}
}

func TestEmbedBatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req embedRequest
		json.NewDecoder(r.Body).Decode(&req)
		vecs := make([][]float32, len(req.Input))
		for i := range vecs {
			vecs[i] = []float32{float32(i)}
		}
		json.NewEncoder(w).Encode(embedResponse{Model: req.Model, Embeddings: vecs})
	}))
	defer srv.Close()

	p, err := New(srv.URL, "all-minilm")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	vecs, err := p.EmbedBatch(context.Background(), []string{"Go", "PostgreSQL", "gRPC"})
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if len(vecs) != 3 {
		t.Fatalf("got %d vectors", len(vecs))
	}
	if vecs[2][0] != 2 {
		t.Errorf("vecs[2] = %v", vecs[2])
	}
}

func TestEmbedBatch_Empty(t *testing.T) {
	p, err := New("", "all-minilm")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	vecs, err := p.EmbedBatch(context.Background(), nil)
	if err != nil || vecs != nil {
		t.Errorf("EmbedBatch(nil) = %v, %v; want nil, nil", vecs, err)
	}
}

func TestEmbed_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	p, err := New(srv.URL, "missing-model")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := p.Embed(context.Background(), "anything"); err == nil {
		t.Error("expected error for non-200 status")
	}
}
