// Package mock provides a test double for the llm.Provider interface.
//
// Script the response via Response / Chunks; every call is recorded so tests
// can assert on the prompts the code under test produced.
package mock

import (
	"context"
	"sync"

	"github.com/voxprep/voxprep/pkg/provider/llm"
)

// Provider is a mock implementation of llm.Provider.
type Provider struct {
	mu sync.Mutex

	// Response is returned by Complete when CompleteErr is nil.
	Response *llm.CompletionResponse

	// CompleteErr, if non-nil, is returned by Complete.
	CompleteErr error

	// Chunks are emitted in order on the channel returned by StreamCompletion.
	Chunks []llm.Chunk

	// StreamErr, if non-nil, is returned by StreamCompletion instead of a
	// channel.
	StreamErr error

	// TokensPerMessage is the count CountTokens reports per message.
	// Zero means 8.
	TokensPerMessage int

	// Caps is returned by Capabilities.
	Caps llm.ModelCapabilities

	// CompleteCalls records every request passed to Complete.
	CompleteCalls []llm.CompletionRequest

	// StreamCalls records every request passed to StreamCompletion.
	StreamCalls []llm.CompletionRequest
}

// Complete records the request and returns the scripted response.
func (p *Provider) Complete(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CompleteCalls = append(p.CompleteCalls, req)
	if p.CompleteErr != nil {
		return nil, p.CompleteErr
	}
	if p.Response != nil {
		return p.Response, nil
	}
	return &llm.CompletionResponse{}, nil
}

// StreamCompletion records the request and streams the scripted chunks.
func (p *Provider) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	p.mu.Lock()
	p.StreamCalls = append(p.StreamCalls, req)
	if p.StreamErr != nil {
		err := p.StreamErr
		p.mu.Unlock()
		return nil, err
	}
	chunks := p.Chunks
	p.mu.Unlock()

	ch := make(chan llm.Chunk, len(chunks)+1)
	go func() {
		defer close(ch)
		for _, c := range chunks {
			select {
			case ch <- c:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

// CountTokens returns TokensPerMessage (default 8) per message.
func (p *Provider) CountTokens(messages []llm.Message) (int, error) {
	p.mu.Lock()
	per := p.TokensPerMessage
	p.mu.Unlock()
	if per == 0 {
		per = 8
	}
	return per * len(messages), nil
}

// Capabilities returns Caps.
func (p *Provider) Capabilities() llm.ModelCapabilities {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Caps
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CompleteCalls = nil
	p.StreamCalls = nil
}

// Ensure Provider implements llm.Provider at compile time.
var _ llm.Provider = (*Provider)(nil)
