// Package mock provides a test double for the tts.Provider interface.
//
// Pre-populate AudioChunks with the PCM byte slices the consumer should
// receive; SynthesizeStream drains the text channel and emits them in order.
package mock

import (
	"context"
	"sync"

	"github.com/voxprep/voxprep/pkg/provider/tts"
)

// SynthesizeStreamCall records a single invocation of SynthesizeStream.
type SynthesizeStreamCall struct {
	// Ctx is the context passed to SynthesizeStream.
	Ctx context.Context
	// Voice is the VoiceProfile passed to SynthesizeStream.
	Voice tts.VoiceProfile
	// Text collects every fragment received from the text channel.
	Text []string
}

// Provider is a mock implementation of tts.Provider.
type Provider struct {
	mu sync.Mutex

	// AudioChunks are the PCM chunks emitted on the audio channel for every
	// SynthesizeStream call, after the text channel is drained.
	AudioChunks [][]byte

	// SynthesizeErr, if non-nil, is returned as the error from
	// SynthesizeStream.
	SynthesizeErr error

	// Voices is returned by ListVoices.
	Voices []tts.VoiceProfile

	// ListVoicesErr, if non-nil, is returned by ListVoices.
	ListVoicesErr error

	// SynthesizeCalls records every SynthesizeStream call. Text fragments
	// are appended as the mock consumes them, so inspect calls only after
	// the audio channel has closed.
	SynthesizeCalls []*SynthesizeStreamCall
}

// SynthesizeStream records the call, drains text, and emits AudioChunks.
func (p *Provider) SynthesizeStream(ctx context.Context, text <-chan string, voice tts.VoiceProfile) (<-chan []byte, error) {
	p.mu.Lock()
	if p.SynthesizeErr != nil {
		err := p.SynthesizeErr
		p.mu.Unlock()
		return nil, err
	}
	call := &SynthesizeStreamCall{Ctx: ctx, Voice: voice}
	p.SynthesizeCalls = append(p.SynthesizeCalls, call)
	chunks := p.AudioChunks
	p.mu.Unlock()

	audioCh := make(chan []byte, len(chunks)+1)
	go func() {
		defer close(audioCh)
		for {
			select {
			case fragment, ok := <-text:
				if !ok {
					for _, chunk := range chunks {
						select {
						case audioCh <- chunk:
						case <-ctx.Done():
							return
						}
					}
					return
				}
				p.mu.Lock()
				call.Text = append(call.Text, fragment)
				p.mu.Unlock()
			case <-ctx.Done():
				return
			}
		}
	}()
	return audioCh, nil
}

// ListVoices returns Voices, ListVoicesErr.
func (p *Provider) ListVoices(_ context.Context) ([]tts.VoiceProfile, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ListVoicesErr != nil {
		return nil, p.ListVoicesErr
	}
	return p.Voices, nil
}

// CallCount returns the number of SynthesizeStream calls. Thread-safe.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.SynthesizeCalls)
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SynthesizeCalls = nil
}

// Ensure Provider implements tts.Provider at compile time.
var _ tts.Provider = (*Provider)(nil)
