package interview

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeSpeech is a scripted SpeechChannel. By default the coach "finishes"
// speaking instantly; tests that need to observe the speaking state set
// holdSpeak and release it explicitly. Listen streams are owned by the test
// via sendUtterance and are closed when the operation context is cancelled.
type fakeSpeech struct {
	mu          sync.Mutex
	spoken      []string
	holdSpeak   bool
	gates       []chan struct{}
	listenCh    chan Utterance
	listenCount int
	cancelCount int
}

func newFakeSpeech() *fakeSpeech {
	return &fakeSpeech{}
}

func (f *fakeSpeech) Speak(ctx context.Context, text string) <-chan struct{} {
	f.mu.Lock()
	f.spoken = append(f.spoken, text)
	hold := f.holdSpeak
	done := make(chan struct{})
	if !hold {
		close(done)
		f.mu.Unlock()
		return done
	}
	gate := make(chan struct{})
	f.gates = append(f.gates, gate)
	f.mu.Unlock()

	go func() {
		select {
		case <-gate:
			close(done)
		case <-ctx.Done():
		}
	}()
	return done
}

func (f *fakeSpeech) Listen(ctx context.Context) <-chan Utterance {
	ch := make(chan Utterance, 8)
	f.mu.Lock()
	f.listenCh = ch
	f.listenCount++
	f.mu.Unlock()
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch
}

func (f *fakeSpeech) Cancel() {
	f.mu.Lock()
	f.cancelCount++
	f.mu.Unlock()
}

func (f *fakeSpeech) sendUtterance(u Utterance) {
	f.mu.Lock()
	ch := f.listenCh
	f.mu.Unlock()
	ch <- u
}

// releaseSpeak lets the most recent held speak finish.
func (f *fakeSpeech) releaseSpeak() {
	f.mu.Lock()
	gate := f.gates[len(f.gates)-1]
	f.gates = f.gates[:len(f.gates)-1]
	f.mu.Unlock()
	close(gate)
}

func (f *fakeSpeech) spokenCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.spoken)
}

// fakeClock is a manually advanced time source for elapsed-time accounting.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// handoffRecorder counts handoff invocations and captures the last result.
type handoffRecorder struct {
	count  atomic.Int32
	mu     sync.Mutex
	result Result
}

func (h *handoffRecorder) fn(res Result) {
	h.count.Add(1)
	h.mu.Lock()
	h.result = res
	h.mu.Unlock()
}

func (h *handoffRecorder) last() Result {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.result
}

func waitStatus(t *testing.T, m *Machine, want Status) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if m.Status() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for status %q, machine is %q", want, m.Status())
}

func waitEvent(t *testing.T, events <-chan Event, typ EventType) Event {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				t.Fatalf("event stream closed while waiting for %q", typ)
			}
			if ev.Type == typ {
				return ev
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %q event", typ)
		}
	}
}

func mustQuestionSet(t *testing.T, questions ...Question) QuestionSet {
	t.Helper()
	set, err := NewQuestionSet(questions)
	if err != nil {
		t.Fatalf("NewQuestionSet: %v", err)
	}
	return set
}

func TestFullRunRecordsEveryAnswerInOrder(t *testing.T) {
	t.Parallel()

	set := mustQuestionSet(t,
		Question{Text: "Tell me about yourself.", Category: CategoryBehavioral, TimeLimit: time.Minute},
		Question{Text: "How does a hash map work?", Category: CategoryTechnical, TimeLimit: time.Minute},
		Question{Text: "Design a URL shortener.", Category: CategoryScenario, TimeLimit: time.Minute},
	)
	speech := newFakeSpeech()
	clock := newFakeClock()
	var handoff handoffRecorder
	m := NewMachine(speech, set, handoff.fn, WithClock(clock.Now))

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	answers := []string{"I am a backend engineer.", "Buckets and a hash function.", "Start with a key-value store."}
	for _, a := range answers {
		waitStatus(t, m, StatusListening)
		clock.Advance(5 * time.Second)
		if err := m.OnFinalTranscript(a); err != nil {
			t.Fatalf("OnFinalTranscript(%q): %v", a, err)
		}
	}
	waitStatus(t, m, StatusCompleted)

	got := m.Answers()
	if len(got) != set.Len() {
		t.Fatalf("ledger has %d records, want %d", len(got), set.Len())
	}
	for i, rec := range got {
		if rec.QuestionIndex != i {
			t.Errorf("record %d has question index %d", i, rec.QuestionIndex)
		}
		if rec.Transcript != answers[i] {
			t.Errorf("record %d transcript = %q, want %q", i, rec.Transcript, answers[i])
		}
		if rec.TimedOut || rec.Skipped {
			t.Errorf("record %d unexpectedly flagged: timedOut=%v skipped=%v", i, rec.TimedOut, rec.Skipped)
		}
		if rec.QuestionText != set.At(i).Text {
			t.Errorf("record %d question text = %q, want %q", i, rec.QuestionText, set.At(i).Text)
		}
		if rec.Timestamp.IsZero() {
			t.Errorf("record %d has no timestamp", i)
		}
		if i > 0 && rec.Timestamp.Before(got[i-1].Timestamp) {
			t.Errorf("record %d timestamp %v precedes record %d", i, rec.Timestamp, i-1)
		}
	}
	if n := handoff.count.Load(); n != 1 {
		t.Fatalf("handoff fired %d times, want 1", n)
	}
	if res := handoff.last(); res.Status != StatusCompleted || len(res.Answers) != 3 {
		t.Fatalf("handoff result = %+v", res)
	}
}

func TestStartWithEmptySetLeavesIdle(t *testing.T) {
	t.Parallel()

	speech := newFakeSpeech()
	var handoff handoffRecorder
	m := NewMachine(speech, QuestionSet{}, handoff.fn)

	if err := m.Start(context.Background()); !errors.Is(err, ErrEmptyQuestionSet) {
		t.Fatalf("Start on empty set = %v, want ErrEmptyQuestionSet", err)
	}
	if st := m.Status(); st != StatusIdle {
		t.Fatalf("status after failed start = %q, want idle", st)
	}
	if n := speech.spokenCount(); n != 0 {
		t.Fatalf("coach spoke %d times after failed start", n)
	}
	if n := handoff.count.Load(); n != 0 {
		t.Fatalf("handoff fired %d times after failed start", n)
	}
}

func TestStartTwiceIsInvalid(t *testing.T) {
	t.Parallel()

	set := mustQuestionSet(t, Question{Text: "Why this role?"})
	m := NewMachine(newFakeSpeech(), set, nil)
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	err := m.Start(context.Background())
	var ite *InvalidTransitionError
	if !errors.As(err, &ite) {
		t.Fatalf("second Start = %v, want InvalidTransitionError", err)
	}
}

func TestTimeoutRecordsPartialAndAdvances(t *testing.T) {
	t.Parallel()

	set := mustQuestionSet(t,
		Question{Text: "Walk me through your last incident.", TimeLimit: 30 * time.Second},
		Question{Text: "What would you do differently?", TimeLimit: 30 * time.Second},
	)
	speech := newFakeSpeech()
	clock := newFakeClock()
	m := NewMachine(speech, set, nil, WithClock(clock.Now))
	events := m.Events()

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitStatus(t, m, StatusListening)

	speech.sendUtterance(Utterance{Text: "We had a cascading"})
	waitEvent(t, events, EventPartialTranscript)

	clock.Advance(30 * time.Second)
	if err := m.OnTimerExpired(); err != nil {
		t.Fatalf("OnTimerExpired: %v", err)
	}

	waitStatus(t, m, StatusListening) // question 1 is live again
	got := m.Answers()
	if len(got) != 1 {
		t.Fatalf("ledger has %d records, want 1", len(got))
	}
	rec := got[0]
	if !rec.TimedOut {
		t.Error("record not flagged as timed out")
	}
	if rec.Transcript != "We had a cascading" {
		t.Errorf("timeout discarded the partial transcript, got %q", rec.Transcript)
	}
	if rec.TimeSpent != 30*time.Second {
		t.Errorf("timeSpent = %v, want 30s", rec.TimeSpent)
	}
	if idx := m.CurrentQuestion(); idx != 1 {
		t.Errorf("current question = %d, want 1", idx)
	}
}

func TestPauseResumeWhileListening(t *testing.T) {
	t.Parallel()

	set := mustQuestionSet(t, Question{Text: "Describe a conflict you resolved.", TimeLimit: time.Minute})
	speech := newFakeSpeech()
	clock := newFakeClock()
	m := NewMachine(speech, set, nil, WithClock(clock.Now))
	events := m.Events()

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitStatus(t, m, StatusListening)

	speech.sendUtterance(Utterance{Text: "My teammate and I"})
	waitEvent(t, events, EventPartialTranscript)

	clock.Advance(20 * time.Second)
	if err := m.Pause(); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if st := m.Status(); st != StatusPaused {
		t.Fatalf("status after pause = %q", st)
	}
	if spoken := speech.spokenCount(); spoken != 1 {
		t.Fatalf("coach spoke %d times, want 1", spoken)
	}

	clock.Advance(5 * time.Minute) // paused time must not count
	if err := m.Resume(); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	waitStatus(t, m, StatusListening)
	if spoken := speech.spokenCount(); spoken != 1 {
		t.Fatalf("resume from listening re-spoke the question (%d speaks)", spoken)
	}

	// The reopened window carries exactly the unelapsed remainder.
	m.mu.Lock()
	budget := m.budget
	m.mu.Unlock()
	if budget != 40*time.Second {
		t.Fatalf("resumed budget = %v, want the 40s remainder of the minute", budget)
	}

	clock.Advance(10 * time.Second)
	if err := m.OnFinalTranscript("My teammate and I disagreed about rollout order."); err != nil {
		t.Fatalf("OnFinalTranscript: %v", err)
	}
	waitStatus(t, m, StatusCompleted)

	got := m.Answers()
	if len(got) != 1 {
		t.Fatalf("ledger has %d records, want 1", len(got))
	}
	if got[0].TimeSpent != 30*time.Second {
		t.Errorf("timeSpent = %v, want 30s (20s before pause + 10s after)", got[0].TimeSpent)
	}
}

func TestPauseResumeMidSpeakReasksQuestion(t *testing.T) {
	t.Parallel()

	set := mustQuestionSet(t, Question{Text: "What is your proudest project?"})
	speech := newFakeSpeech()
	speech.holdSpeak = true
	m := NewMachine(speech, set, nil)

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitStatus(t, m, StatusSpeaking)

	if err := m.Pause(); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if err := m.Resume(); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	waitStatus(t, m, StatusSpeaking)
	if spoken := speech.spokenCount(); spoken != 2 {
		t.Fatalf("coach spoke %d times, want 2 (question re-asked)", spoken)
	}

	speech.releaseSpeak()
	waitStatus(t, m, StatusListening)
}

func TestPauseOutsideActiveIsInvalid(t *testing.T) {
	t.Parallel()

	set := mustQuestionSet(t, Question{Text: "Any questions for me?"})
	m := NewMachine(newFakeSpeech(), set, nil)

	var ite *InvalidTransitionError
	if err := m.Pause(); !errors.As(err, &ite) {
		t.Fatalf("Pause while idle = %v, want InvalidTransitionError", err)
	}
	if err := m.Resume(); !errors.As(err, &ite) {
		t.Fatalf("Resume while idle = %v, want InvalidTransitionError", err)
	}
}

func TestAbortFiresHandoffOnceWithPartialLedger(t *testing.T) {
	t.Parallel()

	set := mustQuestionSet(t,
		Question{Text: "First question."},
		Question{Text: "Second question."},
		Question{Text: "Third question."},
	)
	speech := newFakeSpeech()
	clock := newFakeClock()
	var handoff handoffRecorder
	m := NewMachine(speech, set, handoff.fn, WithClock(clock.Now))

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitStatus(t, m, StatusListening)
	if err := m.OnFinalTranscript("An answer."); err != nil {
		t.Fatalf("OnFinalTranscript: %v", err)
	}
	waitStatus(t, m, StatusListening)

	if err := m.Abort(); err != nil {
		t.Fatalf("Abort: %v", err)
	}
	if st := m.Status(); st != StatusAborted {
		t.Fatalf("status after abort = %q", st)
	}
	if n := handoff.count.Load(); n != 1 {
		t.Fatalf("handoff fired %d times, want 1", n)
	}
	res := handoff.last()
	if res.Status != StatusAborted {
		t.Errorf("handoff status = %q", res.Status)
	}
	if len(res.Answers) != m.CurrentQuestion() {
		t.Errorf("handoff carries %d answers, current question is %d", len(res.Answers), m.CurrentQuestion())
	}

	var ite *InvalidTransitionError
	if err := m.Abort(); !errors.As(err, &ite) {
		t.Fatalf("second Abort = %v, want InvalidTransitionError", err)
	}
	if n := handoff.count.Load(); n != 1 {
		t.Fatalf("handoff fired %d times after double abort, want 1", n)
	}
}

func TestAbortFromIdle(t *testing.T) {
	t.Parallel()

	set := mustQuestionSet(t, Question{Text: "Unasked."})
	var handoff handoffRecorder
	m := NewMachine(newFakeSpeech(), set, handoff.fn)

	if err := m.Abort(); err != nil {
		t.Fatalf("Abort from idle: %v", err)
	}
	res := handoff.last()
	if len(res.Answers) != 0 || res.Elapsed != 0 {
		t.Fatalf("idle abort result = %+v, want empty ledger and zero elapsed", res)
	}
}

func TestStaleFinalTranscriptIsNoOp(t *testing.T) {
	t.Parallel()

	set := mustQuestionSet(t,
		Question{Text: "First question.", TimeLimit: 30 * time.Second},
		Question{Text: "Second question.", TimeLimit: 30 * time.Second},
	)
	speech := newFakeSpeech()
	speech.holdSpeak = true
	clock := newFakeClock()
	m := NewMachine(speech, set, nil, WithClock(clock.Now))

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitStatus(t, m, StatusSpeaking)
	speech.releaseSpeak()
	waitStatus(t, m, StatusListening)

	clock.Advance(30 * time.Second)
	if err := m.OnTimerExpired(); err != nil {
		t.Fatalf("OnTimerExpired: %v", err)
	}
	waitStatus(t, m, StatusSpeaking) // question 1, coach still held by its gate

	before := m.Answers()
	err := m.OnFinalTranscript("Late recognition result for question zero.")
	var ite *InvalidTransitionError
	if !errors.As(err, &ite) {
		t.Fatalf("stale OnFinalTranscript = %v, want InvalidTransitionError", err)
	}
	after := m.Answers()
	if len(after) != len(before) {
		t.Fatalf("stale transcript mutated the ledger: %d -> %d records", len(before), len(after))
	}
	if after[0].Transcript != before[0].Transcript {
		t.Fatalf("stale transcript rewrote record 0: %q", after[0].Transcript)
	}
}

func TestSkipDiscardsPartialTranscript(t *testing.T) {
	t.Parallel()

	set := mustQuestionSet(t,
		Question{Text: "First question."},
		Question{Text: "Second question."},
	)
	speech := newFakeSpeech()
	m := NewMachine(speech, set, nil)
	events := m.Events()

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitStatus(t, m, StatusListening)
	speech.sendUtterance(Utterance{Text: "Half an answ"})
	waitEvent(t, events, EventPartialTranscript)

	if err := m.Skip(); err != nil {
		t.Fatalf("Skip: %v", err)
	}
	got := m.Answers()
	if len(got) != 1 {
		t.Fatalf("ledger has %d records, want 1", len(got))
	}
	if !got[0].Skipped || got[0].Transcript != "" {
		t.Fatalf("skip record = %+v, want skipped with empty transcript", got[0])
	}
	waitStatus(t, m, StatusListening)
	if idx := m.CurrentQuestion(); idx != 1 {
		t.Fatalf("current question = %d, want 1", idx)
	}
}

func TestUntimedQuestionKeepsWindowOpen(t *testing.T) {
	t.Parallel()

	set := mustQuestionSet(t, Question{Text: "Anything else you would like to add?"})
	if got := set.At(0).TimeLimit; got != 0 {
		t.Fatalf("zero TimeLimit rewritten to %v, want 0 (untimed)", got)
	}

	speech := newFakeSpeech()
	m := NewMachine(speech, set, nil)

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitStatus(t, m, StatusListening)

	m.mu.Lock()
	timer := m.timer
	m.mu.Unlock()
	if timer != nil {
		t.Fatal("untimed question armed a session timer")
	}

	// The window must stay open on its own; only a final, skip or abort ends it.
	time.Sleep(50 * time.Millisecond)
	if st := m.Status(); st != StatusListening {
		t.Fatalf("untimed window ended by itself, status %q", st)
	}

	// Pause and resume keep the question untimed.
	if err := m.Pause(); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if err := m.Resume(); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	waitStatus(t, m, StatusListening)
	m.mu.Lock()
	timer = m.timer
	m.mu.Unlock()
	if timer != nil {
		t.Fatal("resume armed a timer for an untimed question")
	}

	if err := m.OnFinalTranscript("That is everything."); err != nil {
		t.Fatalf("OnFinalTranscript: %v", err)
	}
	waitStatus(t, m, StatusCompleted)
}

func TestSkipWhileSpeakingIsInvalid(t *testing.T) {
	t.Parallel()

	set := mustQuestionSet(t,
		Question{Text: "First question."},
		Question{Text: "Second question."},
	)
	speech := newFakeSpeech()
	speech.holdSpeak = true
	m := NewMachine(speech, set, nil)

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitStatus(t, m, StatusSpeaking)

	var ite *InvalidTransitionError
	if err := m.Skip(); !errors.As(err, &ite) {
		t.Fatalf("Skip while speaking = %v, want InvalidTransitionError", err)
	}
	if n := len(m.Answers()); n != 0 {
		t.Fatalf("rejected skip appended %d records", n)
	}
	if st := m.Status(); st != StatusSpeaking {
		t.Fatalf("rejected skip moved the machine to %q", st)
	}
}

func TestSkipFromPausedResumesIntoNextQuestion(t *testing.T) {
	t.Parallel()

	set := mustQuestionSet(t,
		Question{Text: "First question."},
		Question{Text: "Second question."},
	)
	speech := newFakeSpeech()
	m := NewMachine(speech, set, nil)

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitStatus(t, m, StatusListening)
	if err := m.Pause(); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if err := m.Skip(); err != nil {
		t.Fatalf("Skip from paused: %v", err)
	}
	waitStatus(t, m, StatusListening)
	if idx := m.CurrentQuestion(); idx != 1 {
		t.Fatalf("current question = %d, want 1", idx)
	}
}

// TestTwoQuestionSession walks the full concrete scenario: a behavioral
// question answered in two seconds, then a technical question that times out
// at its ten second limit with a partial answer on the floor.
func TestTwoQuestionSession(t *testing.T) {
	t.Parallel()

	set := mustQuestionSet(t,
		Question{Text: "Tell me about a project you are proud of.", Category: CategoryBehavioral, TimeLimit: 30 * time.Second},
		Question{Text: "Explain how TLS certificates are validated.", Category: CategoryTechnical, TimeLimit: 10 * time.Second},
	)
	speech := newFakeSpeech()
	clock := newFakeClock()
	var handoff handoffRecorder
	m := NewMachine(speech, set, handoff.fn, WithClock(clock.Now))
	events := m.Events()

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	waitStatus(t, m, StatusListening)
	clock.Advance(2 * time.Second)
	if err := m.OnFinalTranscript("I rebuilt our ingestion pipeline."); err != nil {
		t.Fatalf("OnFinalTranscript: %v", err)
	}

	waitStatus(t, m, StatusListening)
	speech.sendUtterance(Utterance{Text: "The client checks the chain"})
	waitEvent(t, events, EventPartialTranscript)
	clock.Advance(10 * time.Second)
	if err := m.OnTimerExpired(); err != nil {
		t.Fatalf("OnTimerExpired: %v", err)
	}
	waitStatus(t, m, StatusCompleted)

	if n := handoff.count.Load(); n != 1 {
		t.Fatalf("handoff fired %d times, want 1", n)
	}
	res := handoff.last()
	if res.Status != StatusCompleted {
		t.Fatalf("result status = %q", res.Status)
	}
	if len(res.Answers) != 2 {
		t.Fatalf("result has %d answers, want 2", len(res.Answers))
	}
	first, second := res.Answers[0], res.Answers[1]
	if first.TimeSpent != 2*time.Second || first.TimedOut {
		t.Errorf("first answer = %+v, want 2s and not timed out", first)
	}
	if second.TimeSpent != 10*time.Second || !second.TimedOut {
		t.Errorf("second answer = %+v, want 10s and timed out", second)
	}
	if second.Transcript != "The client checks the chain" {
		t.Errorf("second transcript = %q", second.Transcript)
	}
	if res.Elapsed != 12*time.Second {
		t.Errorf("elapsed = %v, want 12s", res.Elapsed)
	}
}

func TestFinalUtteranceFromListenerRecordsAnswer(t *testing.T) {
	t.Parallel()

	set := mustQuestionSet(t, Question{Text: "Only question."})
	speech := newFakeSpeech()
	var handoff handoffRecorder
	m := NewMachine(speech, set, handoff.fn)

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitStatus(t, m, StatusListening)
	speech.sendUtterance(Utterance{Text: "A complete answer.", Final: true})
	waitStatus(t, m, StatusCompleted)

	got := m.Answers()
	if len(got) != 1 || got[0].Transcript != "A complete answer." {
		t.Fatalf("ledger = %+v", got)
	}
}
