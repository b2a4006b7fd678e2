// Package speech adapts the raw TTS and STT providers into the single voice
// boundary the interview machine talks to.
//
// The machine must never observe a provider failure: a speak that cannot
// start or dies mid-stream completes its done channel as if the coach
// finished, and a listen that cannot start closes its utterance stream so the
// question timer ends the answer. All failures are logged here.
package speech

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/voxprep/voxprep/internal/interview"
	"github.com/voxprep/voxprep/pkg/audio"
	"github.com/voxprep/voxprep/pkg/provider/stt"
	"github.com/voxprep/voxprep/pkg/provider/tts"
)

// ErrVoiceUnavailable is returned by ResolveVoice when the requested coach
// voice is not in the provider's catalogue.
var ErrVoiceUnavailable = errors.New("speech: coach voice unavailable")

// sttSampleRate is the PCM format pushed into transcription sessions.
// Candidate audio arriving in other formats is converted on the way in.
const (
	sttSampleRate = 16000
	sttChannels   = 1
)

// Channel implements interview.SpeechChannel over a TTS and an STT provider.
//
// One Channel serves one interview session. The gateway feeds candidate audio
// through PushFrame; coach PCM flows out through the configured sink.
type Channel struct {
	tts   tts.Provider
	stt   stt.Provider
	voice tts.VoiceProfile
	log   *slog.Logger

	// sink receives coach PCM chunks as they are synthesised. Nil means the
	// audio is drained and discarded (useful in tests).
	sink func([]byte)

	mu       sync.Mutex
	keywords []stt.KeywordBoost
	language string
	handle   stt.SessionHandle
	cancels  map[uint64]context.CancelFunc
	nextID   uint64
	conv     *audio.FormatConverter
}

// Option configures a Channel.
type Option func(*Channel)

// WithAudioSink directs synthesised coach audio to fn. fn is called from the
// synthesis goroutine and must not block for long.
func WithAudioSink(fn func([]byte)) Option {
	return func(c *Channel) {
		c.sink = fn
	}
}

// WithKeywords seeds recognition boosting with the candidate's skill
// vocabulary. The list applies to every listen window the channel opens.
func WithKeywords(keywords []stt.KeywordBoost) Option {
	return func(c *Channel) {
		c.keywords = keywords
	}
}

// WithLanguage sets the recognition language. Empty means provider default.
func WithLanguage(lang string) Option {
	return func(c *Channel) {
		c.language = lang
	}
}

// WithLogger sets the logger. Defaults to slog.Default.
func WithLogger(log *slog.Logger) Option {
	return func(c *Channel) {
		c.log = log
	}
}

// NewChannel creates a Channel speaking with the given voice.
func NewChannel(ttsProvider tts.Provider, sttProvider stt.Provider, voice tts.VoiceProfile, opts ...Option) (*Channel, error) {
	if ttsProvider == nil {
		return nil, fmt.Errorf("speech: tts provider must not be nil")
	}
	if sttProvider == nil {
		return nil, fmt.Errorf("speech: stt provider must not be nil")
	}

	c := &Channel{
		tts:     ttsProvider,
		stt:     sttProvider,
		voice:   voice,
		log:     slog.Default(),
		cancels: make(map[uint64]context.CancelFunc),
		conv: &audio.FormatConverter{
			Target: audio.Format{SampleRate: sttSampleRate, Channels: sttChannels},
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// ResolveVoice looks up a voice by name (or ID) in the provider's catalogue.
// Returns ErrVoiceUnavailable if no voice matches.
func ResolveVoice(ctx context.Context, p tts.Provider, nameOrID string) (tts.VoiceProfile, error) {
	voices, err := p.ListVoices(ctx)
	if err != nil {
		return tts.VoiceProfile{}, fmt.Errorf("speech: list voices: %w", err)
	}
	for _, v := range voices {
		if v.ID == nameOrID || v.Name == nameOrID {
			return v, nil
		}
	}
	return tts.VoiceProfile{}, fmt.Errorf("%w: %q", ErrVoiceUnavailable, nameOrID)
}

// Speak implements interview.SpeechChannel. It returns immediately; the done
// channel closes when synthesis ends for any reason.
func (c *Channel) Speak(ctx context.Context, text string) <-chan struct{} {
	done := make(chan struct{})
	opCtx, id := c.registerOp(ctx)

	go func() {
		defer close(done)
		defer c.unregisterOp(id)

		textCh := make(chan string, 1)
		textCh <- text
		close(textCh)

		audioCh, err := c.tts.SynthesizeStream(opCtx, textCh, c.voice)
		if err != nil {
			c.log.Error("coach speak failed to start", "error", err)
			return
		}
		for chunk := range audioCh {
			if c.sink != nil {
				c.sink(chunk)
			}
		}
	}()

	return done
}

// Listen implements interview.SpeechChannel. It returns immediately; the
// utterance channel closes when the recognition window ends.
func (c *Channel) Listen(ctx context.Context) <-chan interview.Utterance {
	out := make(chan interview.Utterance, 16)
	opCtx, id := c.registerOp(ctx)

	c.mu.Lock()
	cfg := stt.StreamConfig{
		SampleRate: sttSampleRate,
		Channels:   sttChannels,
		Language:   c.language,
		Keywords:   c.keywords,
	}
	c.mu.Unlock()

	handle, err := c.stt.StartStream(opCtx, cfg)
	if err != nil {
		c.log.Error("listen failed to start", "error", err)
		c.unregisterOp(id)
		close(out)
		return out
	}

	c.mu.Lock()
	c.handle = handle
	c.mu.Unlock()

	go func() {
		defer close(out)
		defer c.unregisterOp(id)
		defer func() {
			c.mu.Lock()
			if c.handle == handle {
				c.handle = nil
			}
			c.mu.Unlock()
			handle.Close()
		}()

		partials := handle.Partials()
		finals := handle.Finals()
		for partials != nil || finals != nil {
			select {
			case t, ok := <-partials:
				if !ok {
					partials = nil
					continue
				}
				c.deliver(out, opCtx, interview.Utterance{Text: t.Text})
			case t, ok := <-finals:
				if !ok {
					finals = nil
					continue
				}
				c.deliver(out, opCtx, interview.Utterance{Text: t.Text, Final: true})
			case <-opCtx.Done():
				return
			}
		}
	}()

	return out
}

// Cancel implements interview.SpeechChannel. It aborts every in-flight speak
// and listen without blocking.
func (c *Channel) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, cancel := range c.cancels {
		cancel()
		delete(c.cancels, id)
	}
}

// PushFrame feeds one frame of candidate audio into the active recognition
// window. Frames arriving while no listen is open (e.g. while the coach is
// speaking) are dropped.
func (c *Channel) PushFrame(frame audio.Frame) error {
	c.mu.Lock()
	handle := c.handle
	converted := c.conv.Convert(frame)
	c.mu.Unlock()

	if handle == nil || len(converted.Data) == 0 {
		return nil
	}
	if err := handle.SendAudio(converted.Data); err != nil {
		return fmt.Errorf("speech: push audio: %w", err)
	}
	return nil
}

// UpdateKeywords replaces the skill boost list. The active recognition
// window is updated in place when the provider supports it; either way the
// new list applies to every later window.
func (c *Channel) UpdateKeywords(keywords []stt.KeywordBoost) {
	c.mu.Lock()
	c.keywords = keywords
	handle := c.handle
	c.mu.Unlock()

	if handle == nil {
		return
	}
	if err := handle.SetKeywords(keywords); err != nil {
		c.log.Debug("mid-session keyword update not applied", "error", err)
	}
}

func (c *Channel) deliver(out chan<- interview.Utterance, ctx context.Context, u interview.Utterance) {
	select {
	case out <- u:
	case <-ctx.Done():
	}
}

func (c *Channel) registerOp(ctx context.Context) (context.Context, uint64) {
	opCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	id := c.nextID
	c.cancels[id] = cancel
	return opCtx, id
}

func (c *Channel) unregisterOp(id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cancel, ok := c.cancels[id]; ok {
		cancel()
		delete(c.cancels, id)
	}
}

// Ensure Channel implements interview.SpeechChannel at compile time.
var _ interview.SpeechChannel = (*Channel)(nil)
