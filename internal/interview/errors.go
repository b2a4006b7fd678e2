package interview

import (
	"errors"
	"fmt"
)

// ErrEmptyQuestionSet is returned when a session is started (or a QuestionSet
// constructed) with zero questions. It signals a caller bug, not a runtime
// condition: the machine never fabricates questions.
var ErrEmptyQuestionSet = errors.New("interview: question set is empty")

// InvalidTransitionError reports an operation invoked in a state that does not
// permit it, e.g. Pause on an Idle session or a final transcript arriving
// after the question already advanced. The machine's state is unchanged when
// this error is returned.
type InvalidTransitionError struct {
	// Op is the operation that was attempted ("start", "pause", ...).
	Op string
	// From is the status the machine was in when the operation arrived.
	From Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("interview: cannot %s in state %s", e.Op, e.From)
}

// LedgerSequenceError reports an append whose question index does not continue
// the ledger's gapless sequence. Like InvalidTransitionError it indicates a
// programming error; the ledger is unchanged.
type LedgerSequenceError struct {
	// Next is the only index the ledger would have accepted.
	Next int
	// Got is the index that was offered.
	Got int
}

func (e *LedgerSequenceError) Error() string {
	return fmt.Sprintf("interview: ledger expects answer for question %d, got %d", e.Next, e.Got)
}
