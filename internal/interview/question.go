package interview

import (
	"fmt"
	"time"
)

// Category classifies an interview question. The coach uses it to vary prompt
// framing and the feedback stage groups verdicts by it.
type Category string

const (
	CategoryTechnical  Category = "technical"
	CategoryBehavioral Category = "behavioral"
	CategoryScenario   Category = "scenario"
	CategoryOther      Category = "other"
)

// DefaultTimeLimit is the answer budget question sources assign when a
// question should be timed but has no specific limit of its own. The machine
// itself never applies it: a zero TimeLimit stays zero and means untimed.
const DefaultTimeLimit = 2 * time.Minute

// Question is a single interview question. Text is what the coach speaks;
// TimeLimit bounds how long the candidate may answer before the session
// auto-advances. A zero TimeLimit means the question is untimed: the
// listening window stays open until a final transcript, skip, or abort.
type Question struct {
	// ID is an optional stable identifier assigned by the question source.
	ID        string
	Text      string
	Category  Category
	TimeLimit time.Duration
}

// QuestionSet is an immutable, ordered collection of questions. Construct it
// with [NewQuestionSet]; the zero value is empty and rejected by
// [Machine.Start].
type QuestionSet struct {
	questions []Question
}

// NewQuestionSet validates and copies the given questions. It returns
// [ErrEmptyQuestionSet] if the slice is empty and an error naming the first
// offending index if any question has empty text. A negative TimeLimit is
// normalized to zero (untimed); the set never invents an answer budget.
func NewQuestionSet(questions []Question) (QuestionSet, error) {
	if len(questions) == 0 {
		return QuestionSet{}, ErrEmptyQuestionSet
	}
	qs := make([]Question, len(questions))
	copy(qs, questions)
	for i := range qs {
		if qs[i].Text == "" {
			return QuestionSet{}, fmt.Errorf("interview: question %d has empty text", i)
		}
		if qs[i].TimeLimit < 0 {
			qs[i].TimeLimit = 0
		}
	}
	return QuestionSet{questions: qs}, nil
}

// Len returns the number of questions in the set.
func (s QuestionSet) Len() int { return len(s.questions) }

// At returns the question at index i. It panics if i is out of range, matching
// slice semantics.
func (s QuestionSet) At(i int) Question { return s.questions[i] }

// All returns a copy of the questions in order.
func (s QuestionSet) All() []Question {
	out := make([]Question, len(s.questions))
	copy(out, s.questions)
	return out
}
