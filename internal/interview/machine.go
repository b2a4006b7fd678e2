// Package interview implements the voice-driven mock interview session: an
// immutable question set, a gapless answer ledger, a per-question timer, and
// the state machine that sequences coach speech and candidate listening
// windows between them.
//
// The machine serializes every transition under one mutex. Callers arrive
// from WebSocket reader goroutines, timer callbacks and speech stream
// goroutines; each speak or listen operation carries a generation number so
// that late callbacks from a cancelled operation are discarded instead of
// acting on the wrong question.
package interview

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Machine runs one interview session over a [SpeechChannel]. Create it with
// [NewMachine], drive it with Start, Pause, Resume, Skip and Abort, and feed
// it recognition results via OnFinalTranscript (the channel's own listen
// stream feeds it too). All methods are safe for concurrent use.
type Machine struct {
	speech   SpeechChannel
	handoff  HandoffFunc
	clock    func() time.Time
	log      *slog.Logger
	events   chan Event

	mu        sync.Mutex
	status    Status
	questions QuestionSet
	ledger    AnswerLedger

	ctx       context.Context
	startedAt time.Time

	// Per-question state, valid between beginSpeaking and the answer record.
	current        int
	gen            uint64
	cancelOp       context.CancelFunc
	timer          *SessionTimer
	budget         time.Duration
	remaining      time.Duration
	listenStart    time.Time
	spent          time.Duration
	lastPartial    string
	pausedMidSpeak bool

	eventsClosed bool
	handoffFired bool
}

// Option configures a Machine.
type Option func(*Machine)

// WithClock overrides the time source used for elapsed-time accounting.
// Timer scheduling still uses the real clock; tests combine this with
// explicit OnTimerExpired calls.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) { m.clock = now }
}

// WithLogger sets the structured logger. Defaults to slog.Default.
func WithLogger(log *slog.Logger) Option {
	return func(m *Machine) { m.log = log }
}

// WithEventBuffer sets the capacity of the Events channel. Defaults to 64.
func WithEventBuffer(n int) Option {
	return func(m *Machine) { m.events = make(chan Event, n) }
}

// NewMachine creates an idle session over the given question set. handoff may
// be nil when no consumer wants the result. The set may be empty here; Start
// rejects it.
func NewMachine(speech SpeechChannel, questions QuestionSet, handoff HandoffFunc, opts ...Option) *Machine {
	m := &Machine{
		speech:    speech,
		handoff:   handoff,
		questions: questions,
		status:    StatusIdle,
		clock:     time.Now,
		log:       slog.Default(),
		events:    make(chan Event, 64),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Events returns the session's notification stream. The channel is closed at
// the terminal transition.
func (m *Machine) Events() <-chan Event { return m.events }

// Status returns the current lifecycle state.
func (m *Machine) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// CurrentQuestion returns the index of the question in flight. After
// completion it equals the question count.
func (m *Machine) CurrentQuestion() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Answers returns a snapshot of the ledger so far.
func (m *Machine) Answers() []AnswerRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ledger.Snapshot()
}

// Start begins the session: the coach speaks question zero. It returns
// [ErrEmptyQuestionSet] for an empty set and [InvalidTransitionError] if the
// session already started; in both cases the machine stays exactly as it was.
func (m *Machine) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status != StatusIdle {
		return &InvalidTransitionError{Op: "start", From: m.status}
	}
	if m.questions.Len() == 0 {
		return ErrEmptyQuestionSet
	}
	m.ctx = ctx
	m.startedAt = m.clock()
	m.current = 0
	m.log.Info("interview session starting", "questions", m.questions.Len())
	m.beginSpeakingLocked()
	return nil
}

// OnFinalTranscript records text as the answer to the current question and
// advances the session. Outside the listening window it returns
// [InvalidTransitionError] and changes nothing, so a stale recognition result
// that lost the race against the timer or a skip is a harmless no-op for the
// session's data.
func (m *Machine) OnFinalTranscript(text string) error {
	m.mu.Lock()
	if m.status != StatusListening {
		st := m.status
		m.mu.Unlock()
		return &InvalidTransitionError{Op: "record transcript", From: st}
	}
	fire, err := m.recordAndAdvanceLocked(text, false, false)
	m.mu.Unlock()
	if fire != nil {
		fire()
	}
	return err
}

// OnTimerExpired ends the current listening window as a timeout: the last
// partial transcript (possibly empty) is recorded with TimedOut set and the
// session auto-advances. The internal timer calls this path itself; the
// method exists so tests and external schedulers can drive expiry
// deterministically. Outside the listening window it returns
// [InvalidTransitionError] and changes nothing.
func (m *Machine) OnTimerExpired() error {
	m.mu.Lock()
	if m.status != StatusListening {
		st := m.status
		m.mu.Unlock()
		return &InvalidTransitionError{Op: "expire timer", From: st}
	}
	fire, err := m.recordAndAdvanceLocked(m.lastPartial, true, false)
	m.mu.Unlock()
	if fire != nil {
		fire()
	}
	return err
}

// Skip abandons the current question: any partial transcript is discarded, a
// skipped record is appended, and the session advances. Valid while listening
// or paused; skipping from pause lands directly in the next question's
// speaking state.
func (m *Machine) Skip() error {
	m.mu.Lock()
	switch m.status {
	case StatusListening, StatusPaused:
	default:
		st := m.status
		m.mu.Unlock()
		return &InvalidTransitionError{Op: "skip", From: st}
	}
	fire, err := m.recordAndAdvanceLocked("", false, true)
	m.mu.Unlock()
	if fire != nil {
		fire()
	}
	return err
}

// Pause freezes the session mid-question. Speech operations and the timer
// are cancelled; the unelapsed answer budget and any partial transcript are
// preserved for Resume. Valid only while speaking or listening.
func (m *Machine) Pause() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch m.status {
	case StatusSpeaking:
		m.pausedMidSpeak = true
		m.remaining = 0
	case StatusListening:
		m.pausedMidSpeak = false
		elapsed := m.clock().Sub(m.listenStart)
		m.spent += elapsed
		m.remaining = 0
		if m.budget > 0 {
			if rem := m.budget - elapsed; rem > 0 {
				m.remaining = rem
			} else {
				// The window had fully elapsed when the pause won the race
				// against the timer; resume must still expire, not go untimed.
				m.remaining = time.Millisecond
			}
		}
	default:
		return &InvalidTransitionError{Op: "pause", From: m.status}
	}
	m.stopOpLocked()
	m.status = StatusPaused
	m.log.Debug("interview session paused", "question", m.current, "remaining", m.remaining)
	m.emitLocked(Event{Type: EventStateChanged, Status: StatusPaused, QuestionIndex: m.current})
	return nil
}

// Resume continues a paused session. If pause interrupted the coach
// mid-utterance the question is spoken again from the top; otherwise the
// listening window reopens with the preserved remaining budget and partial
// transcript. Valid only while paused.
func (m *Machine) Resume() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status != StatusPaused {
		return &InvalidTransitionError{Op: "resume", From: m.status}
	}
	m.log.Debug("interview session resuming", "question", m.current, "midSpeak", m.pausedMidSpeak)
	if m.pausedMidSpeak {
		m.beginSpeakingLocked()
	} else {
		m.beginListeningLocked(m.remaining)
	}
	return nil
}

// Abort terminates the session early from any non-terminal state, Idle
// included. In-flight voice work is cancelled, no record is appended for the
// current question, and the handoff fires with the ledger as it stands.
func (m *Machine) Abort() error {
	m.mu.Lock()
	if m.status.Terminal() {
		st := m.status
		m.mu.Unlock()
		return &InvalidTransitionError{Op: "abort", From: st}
	}
	m.stopOpLocked()
	fire := m.terminalLocked(StatusAborted)
	m.mu.Unlock()
	if fire != nil {
		fire()
	}
	return nil
}

// ─── Internal transitions (all require m.mu held) ───────────────────────────

// beginSpeakingLocked enters the speaking state for m.current and launches
// the speak operation.
func (m *Machine) beginSpeakingLocked() {
	m.gen++
	gen := m.gen
	m.status = StatusSpeaking
	m.spent = 0
	m.lastPartial = ""
	m.pausedMidSpeak = false

	q := m.questions.At(m.current)
	opCtx, cancel := context.WithCancel(m.ctx)
	m.cancelOp = cancel
	m.emitLocked(Event{Type: EventQuestionAsked, Status: StatusSpeaking, QuestionIndex: m.current, Text: q.Text})

	go func() {
		done := m.speech.Speak(opCtx, q.Text)
		select {
		case <-done:
			m.speakFinished(gen)
		case <-opCtx.Done():
		}
	}()
}

// speakFinished transitions to listening once the coach stops talking. Stale
// completions from a cancelled speak are dropped.
func (m *Machine) speakFinished(gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.gen || m.status != StatusSpeaking {
		return
	}
	m.beginListeningLocked(m.questions.At(m.current).TimeLimit)
}

// beginListeningLocked opens the candidate's answer window with the given
// budget and launches the listen operation. A positive budget arms the timer;
// a zero budget is an untimed window that stays open until a final transcript,
// skip, or abort. The preserved partial transcript from a pause survives;
// beginSpeakingLocked is the only place it resets.
func (m *Machine) beginListeningLocked(budget time.Duration) {
	m.gen++
	gen := m.gen
	m.status = StatusListening
	m.budget = budget
	m.listenStart = m.clock()
	m.timer = nil
	if budget > 0 {
		m.timer = NewSessionTimer(budget, func() { m.timerFired(gen) })
	}

	opCtx, cancel := context.WithCancel(m.ctx)
	m.cancelOp = cancel
	m.emitLocked(Event{Type: EventListening, Status: StatusListening, QuestionIndex: m.current})

	go func() {
		for u := range m.speech.Listen(opCtx) {
			if u.Final {
				m.finalFromListener(gen, u.Text)
			} else {
				m.partialFromListener(gen, u.Text)
			}
		}
	}()
}

func (m *Machine) partialFromListener(gen uint64, text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.gen || m.status != StatusListening {
		return
	}
	m.lastPartial = text
	m.emitLocked(Event{Type: EventPartialTranscript, Status: StatusListening, QuestionIndex: m.current, Text: text})
}

func (m *Machine) finalFromListener(gen uint64, text string) {
	m.mu.Lock()
	if gen != m.gen || m.status != StatusListening {
		m.mu.Unlock()
		return
	}
	fire, err := m.recordAndAdvanceLocked(text, false, false)
	m.mu.Unlock()
	if err != nil {
		m.log.Error("recording answer failed", "error", err)
	}
	if fire != nil {
		fire()
	}
}

// timerFired is the internal expiry path. The generation check makes a timer
// that lost the race against cancellation a no-op even if its callback was
// already in flight.
func (m *Machine) timerFired(gen uint64) {
	m.mu.Lock()
	if gen != m.gen || m.status != StatusListening {
		m.mu.Unlock()
		return
	}
	fire, err := m.recordAndAdvanceLocked(m.lastPartial, true, false)
	m.mu.Unlock()
	if err != nil {
		m.log.Error("recording timeout failed", "error", err)
	}
	if fire != nil {
		fire()
	}
}

// recordAndAdvanceLocked appends the answer for the current question, tears
// down the question's operations, and either speaks the next question or
// completes the session. The returned func, when non-nil, is the handoff
// invocation and must run after the lock is released.
func (m *Machine) recordAndAdvanceLocked(transcript string, timedOut, skipped bool) (func(), error) {
	spent := m.spent
	if m.status == StatusListening {
		spent += m.clock().Sub(m.listenStart)
	}
	rec := AnswerRecord{
		QuestionIndex: m.current,
		QuestionText:  m.questions.At(m.current).Text,
		Transcript:    transcript,
		TimedOut:      timedOut,
		Skipped:       skipped,
		TimeSpent:     spent,
		Timestamp:     m.clock(),
	}
	if err := m.ledger.Append(rec); err != nil {
		return nil, err
	}
	m.stopOpLocked()
	m.log.Debug("answer recorded",
		"question", m.current,
		"timedOut", timedOut,
		"skipped", skipped,
		"timeSpent", spent,
	)
	m.emitLocked(Event{Type: EventAnswerRecorded, Status: m.status, QuestionIndex: m.current, Text: transcript})

	m.current++
	if m.current == m.questions.Len() {
		return m.terminalLocked(StatusCompleted), nil
	}
	m.beginSpeakingLocked()
	return nil, nil
}

// stopOpLocked invalidates the current generation and cancels the in-flight
// speak or listen operation and timer, if any.
func (m *Machine) stopOpLocked() {
	m.gen++
	if m.cancelOp != nil {
		m.cancelOp()
		m.cancelOp = nil
	}
	if m.timer != nil {
		m.timer.Cancel()
		m.timer = nil
	}
	if m.speech != nil {
		m.speech.Cancel()
	}
}

// terminalLocked moves to a terminal status, closes the event stream, and
// returns the one-shot handoff invocation (nil if none is due).
func (m *Machine) terminalLocked(status Status) func() {
	m.status = status
	var elapsed time.Duration
	if !m.startedAt.IsZero() {
		elapsed = m.clock().Sub(m.startedAt)
	}
	m.log.Info("interview session finished",
		"status", status,
		"answers", m.ledger.Len(),
		"elapsed", elapsed,
	)
	m.emitLocked(Event{Type: EventStateChanged, Status: status, QuestionIndex: m.current})
	if !m.eventsClosed {
		close(m.events)
		m.eventsClosed = true
	}
	if m.handoffFired || m.handoff == nil {
		return nil
	}
	m.handoffFired = true
	res := Result{
		Status:    status,
		Questions: m.questions,
		Answers:   m.ledger.Snapshot(),
		Elapsed:   elapsed,
	}
	h := m.handoff
	return func() { h(res) }
}

// emitLocked delivers an event without blocking. Slow consumers lose events.
func (m *Machine) emitLocked(ev Event) {
	if m.eventsClosed {
		return
	}
	select {
	case m.events <- ev:
	default:
		m.log.Debug("dropping session event", "type", ev.Type)
	}
}
