// Package stt defines the Provider interface for streaming Speech-to-Text
// backends.
//
// An STT provider wraps a transcription service (e.g., Deepgram live, or a
// local whisper.cpp build) and presents a uniform streaming interface: the
// caller opens a session, pushes raw PCM audio, and receives partial and
// final transcripts on channels. The interview speech layer consumes these
// channels to decide when the candidate finished an answer.
//
// Implementations must be safe for concurrent use.
package stt

import "context"

// StreamConfig carries per-session parameters for a transcription stream.
type StreamConfig struct {
	// SampleRate of the PCM audio in Hz. Zero means the provider default
	// (typically 16000).
	SampleRate int

	// Channels is the channel count of the PCM audio. Zero means mono.
	Channels int

	// Language is the BCP-47 language code ("en", "de"). Empty means the
	// provider default.
	Language string

	// Keywords seeds recognition boosting at session start, typically with
	// the candidate's skill vocabulary extracted from the resume. Providers
	// without keyword support ignore it.
	Keywords []KeywordBoost
}

// Provider is the abstraction over any streaming STT backend.
//
// Implementations must be safe for concurrent use; multiple sessions may run
// in parallel.
type Provider interface {
	// StartStream opens a new transcription session. The returned handle is
	// ready to accept audio immediately. The session ends when the handle is
	// closed or ctx is cancelled.
	StartStream(ctx context.Context, cfg StreamConfig) (SessionHandle, error)
}

// SessionHandle is a live transcription session.
//
// The Partials and Finals channels are closed by the implementation when the
// session ends. Callers must drain both to avoid blocking provider
// goroutines.
type SessionHandle interface {
	// SendAudio queues a chunk of raw 16-bit little-endian signed PCM audio.
	// Returns an error if the session is closed.
	SendAudio(chunk []byte) error

	// Partials returns a read-only channel of interim transcripts. Interim
	// results may be revised by later partials or the eventual final.
	Partials() <-chan Transcript

	// Finals returns a read-only channel of authoritative transcripts.
	Finals() <-chan Transcript

	// SetKeywords replaces the recognition boost list mid-session, e.g.
	// after the interview moves to a different skill area. Providers without
	// keyword support return an error wrapping their not-supported sentinel.
	SetKeywords(keywords []KeywordBoost) error

	// Close terminates the session and releases its resources. Safe to call
	// more than once.
	Close() error
}
