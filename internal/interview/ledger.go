package interview

import "time"

// AnswerRecord is one entry in the answer ledger: what the candidate said (or
// failed to say) for a single question, and how the listening window ended.
type AnswerRecord struct {
	// QuestionIndex is the zero-based position of the question this record
	// answers. Records are appended strictly in index order.
	QuestionIndex int

	// QuestionText is a denormalized copy of the question's text, so a
	// persisted record stays auditable on its own.
	QuestionText string

	// Transcript is the recorded answer text. Empty when the candidate said
	// nothing before the timer expired or when the question was skipped.
	Transcript string

	// TimedOut is true when the per-question timer ended the listening window.
	TimedOut bool

	// Skipped is true when the candidate (or operator) skipped the question.
	// Skipped records never carry a transcript.
	Skipped bool

	// TimeSpent is how long the candidate held the floor for this question,
	// summed across pause boundaries.
	TimeSpent time.Duration

	// Timestamp is when the record was created, i.e. the moment the answer
	// window ended.
	Timestamp time.Time
}

// AnswerLedger is an append-only, gapless record of answers. Each append must
// carry the next question index; anything else is rejected with
// [LedgerSequenceError] and leaves the ledger untouched.
//
// The ledger is not safe for concurrent use. [Machine] serializes all access
// under its own lock.
type AnswerLedger struct {
	records []AnswerRecord
}

// Append adds a record to the ledger. The record's QuestionIndex must equal
// [AnswerLedger.Len].
func (l *AnswerLedger) Append(rec AnswerRecord) error {
	if rec.QuestionIndex != len(l.records) {
		return &LedgerSequenceError{Next: len(l.records), Got: rec.QuestionIndex}
	}
	l.records = append(l.records, rec)
	return nil
}

// Len returns the number of recorded answers.
func (l *AnswerLedger) Len() int { return len(l.records) }

// Snapshot returns a copy of all records in append order.
func (l *AnswerLedger) Snapshot() []AnswerRecord {
	out := make([]AnswerRecord, len(l.records))
	copy(out, l.records)
	return out
}
