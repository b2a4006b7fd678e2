package questiongen

import (
	"context"
	"log/slog"

	"github.com/voxprep/voxprep/internal/interview"
)

// Static is a Source that always returns a fixed question set, used as the
// fallback when generation is unavailable.
type Static struct {
	set interview.QuestionSet
}

// NewStatic wraps a pre-built question set.
func NewStatic(set interview.QuestionSet) *Static {
	return &Static{set: set}
}

// Questions implements Source.
func (s *Static) Questions(_ context.Context, _ Params) (interview.QuestionSet, error) {
	return s.set, nil
}

// DefaultFallbackSet returns a generic question set usable for any role when
// no resume-specific set can be generated.
func DefaultFallbackSet() interview.QuestionSet {
	questions := []interview.Question{
		{ID: "fallback-intro", Text: "Tell me about yourself and what drew you to this role.", Category: interview.CategoryBehavioral},
		{ID: "fallback-project", Text: "Walk me through a project you are proud of. What was your contribution?", Category: interview.CategoryOther},
		{ID: "fallback-conflict", Text: "Describe a time you disagreed with a teammate. How did you resolve it?", Category: interview.CategoryBehavioral},
		{ID: "fallback-problem", Text: "Explain a technically hard problem you solved recently and how you approached it.", Category: interview.CategoryTechnical},
		{ID: "fallback-design", Text: "How would you design a service that must stay available while a downstream dependency is failing?", Category: interview.CategoryScenario},
	}
	for i := range questions {
		questions[i].TimeLimit = categoryTimeLimit(questions[i].Category)
	}
	set, err := interview.NewQuestionSet(questions)
	if err != nil {
		// The set above is a package constant in all but syntax; it cannot
		// fail validation.
		panic(err)
	}
	return set
}

// fallbackSource tries the primary and falls back on any error.
type fallbackSource struct {
	primary  Source
	fallback Source
	log      *slog.Logger
}

// WithFallback composes two sources: fallback is consulted only when
// primary fails, so a session can always start.
func WithFallback(primary, fallback Source, log *slog.Logger) Source {
	if log == nil {
		log = slog.Default()
	}
	return &fallbackSource{primary: primary, fallback: fallback, log: log}
}

// Questions implements Source.
func (f *fallbackSource) Questions(ctx context.Context, p Params) (interview.QuestionSet, error) {
	set, err := f.primary.Questions(ctx, p)
	if err == nil {
		return set, nil
	}
	f.log.Warn("question generation failed, using fallback set", "error", err)
	return f.fallback.Questions(ctx, p)
}
