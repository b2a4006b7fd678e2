package interview

import (
	"context"
	"time"
)

// Status is the lifecycle state of an interview session.
type Status string

const (
	// StatusIdle is the state before Start. No voice operations are running.
	StatusIdle Status = "idle"
	// StatusSpeaking means the coach is voicing the current question.
	StatusSpeaking Status = "speaking"
	// StatusListening means the candidate holds the floor and the
	// per-question timer is running.
	StatusListening Status = "listening"
	// StatusPaused means the session is frozen mid-question. Timer and voice
	// operations are stopped; progress is preserved.
	StatusPaused Status = "paused"
	// StatusCompleted means every question was answered or skipped.
	StatusCompleted Status = "completed"
	// StatusAborted means the session was terminated early.
	StatusAborted Status = "aborted"
)

// Terminal reports whether s is an end state. Terminal sessions accept no
// further operations.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusAborted
}

// Utterance is a fragment of recognized candidate speech delivered by a
// [SpeechChannel] listen operation. Non-final utterances may be revised;
// a final utterance ends the candidate's answer.
type Utterance struct {
	Text  string
	Final bool
}

// SpeechChannel is the machine's voice boundary. Implementations normalize
// provider failures so the machine never sees them: a failed or unavailable
// speak completes its done channel as if the coach finished normally, and a
// failed listen closes the utterance stream without a final utterance (the
// timer then ends the question).
//
// All three methods must return without blocking; the machine calls them
// while holding its internal lock.
type SpeechChannel interface {
	// Speak voices text through the coach persona. The returned channel is
	// closed when playback finishes, fails, or ctx is cancelled.
	Speak(ctx context.Context, text string) <-chan struct{}

	// Listen opens a recognition window for the candidate. The returned
	// channel carries partial and final utterances and is closed when the
	// window ends or ctx is cancelled.
	Listen(ctx context.Context) <-chan Utterance

	// Cancel aborts any in-flight speak or listen.
	Cancel()
}

// EventType labels a session Event.
type EventType string

const (
	// EventQuestionAsked fires when the coach begins voicing a question.
	EventQuestionAsked EventType = "question_asked"
	// EventListening fires when the candidate's answer window opens.
	EventListening EventType = "listening"
	// EventPartialTranscript fires for each interim recognition result.
	EventPartialTranscript EventType = "partial_transcript"
	// EventAnswerRecorded fires when an answer (including timeouts and
	// skips) is appended to the ledger.
	EventAnswerRecorded EventType = "answer_recorded"
	// EventStateChanged fires for pause, resume and terminal transitions.
	EventStateChanged EventType = "state_changed"
)

// Event is a notification emitted by the machine for observers such as the
// voice gateway. Events are delivered best-effort on a buffered channel; a
// slow consumer loses events rather than stalling the session.
type Event struct {
	Type          EventType
	Status        Status
	QuestionIndex int
	Text          string
}

// Result is the one-shot payload delivered to the handoff callback at the
// first terminal transition.
type Result struct {
	// Status is either StatusCompleted or StatusAborted.
	Status Status
	// Questions is the set the session ran against.
	Questions QuestionSet
	// Answers is a snapshot of the ledger. Its length equals the number of
	// questions that finished (all of them on completion, the current index
	// on abort).
	Answers []AnswerRecord
	// Elapsed is the wall time from Start to the terminal transition.
	Elapsed time.Duration
}

// HandoffFunc receives the session result. It is invoked exactly once per
// session, outside the machine's lock, at the first terminal transition.
// Implementations own their error handling; nothing propagates back.
type HandoffFunc func(Result)
