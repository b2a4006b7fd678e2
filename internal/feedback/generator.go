// Package feedback turns a finished interview session into actionable
// feedback: it persists the result, publishes a generation job for async
// workers, and can produce an inline report through an LLM provider.
package feedback

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/voxprep/voxprep/internal/interview"
	"github.com/voxprep/voxprep/pkg/provider/llm"
)

// Verdict is the model's assessment of one answer.
type Verdict struct {
	QuestionIndex int    `json:"question_index"`
	Score         int    `json:"score"` // 1 (poor) to 5 (excellent)
	Strengths     string `json:"strengths"`
	Improvements  string `json:"improvements"`
}

// Report is the full feedback payload for one session.
type Report struct {
	Summary      string    `json:"summary"`
	OverallScore int       `json:"overall_score"`
	SkillGaps    []string  `json:"skill_gaps"`
	Verdicts     []Verdict `json:"verdicts"`
}

const generatorSystemPrompt = `You are an experienced technical interviewer reviewing a mock interview transcript. ` +
	`Assess each answer on substance, structure and specificity. Be direct and concrete; ` +
	`vague praise helps nobody. Skipped and timed-out questions score 1.

Respond with a single JSON object of the form:
{
  "summary": "two or three sentences on overall performance",
  "overall_score": 1-5,
  "skill_gaps": ["topics the candidate should study"],
  "verdicts": [
    {"question_index": 0, "score": 1-5, "strengths": "...", "improvements": "..."}
  ]
}`

// Generator produces feedback reports from interview results.
type Generator struct {
	provider    llm.Provider
	temperature float64
	maxTokens   int
}

// GeneratorOption customizes a Generator.
type GeneratorOption func(*Generator)

// WithTemperature overrides the default sampling temperature of 0.3.
func WithTemperature(temp float64) GeneratorOption {
	return func(g *Generator) { g.temperature = temp }
}

// WithMaxTokens caps the report length in completion tokens.
func WithMaxTokens(n int) GeneratorOption {
	return func(g *Generator) { g.maxTokens = n }
}

// NewGenerator creates a Generator backed by the given LLM provider.
func NewGenerator(provider llm.Provider, opts ...GeneratorOption) (*Generator, error) {
	if provider == nil {
		return nil, fmt.Errorf("feedback: llm provider must not be nil")
	}
	g := &Generator{provider: provider, temperature: 0.3}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Generate asks the model for a report on the given result. role names the
// position interviewed for and may be empty.
func (g *Generator) Generate(ctx context.Context, role string, res interview.Result) (*Report, error) {
	if len(res.Answers) == 0 {
		return nil, fmt.Errorf("feedback: result has no answers")
	}

	resp, err := g.provider.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: generatorSystemPrompt,
		Messages: []llm.Message{
			{Role: "user", Content: buildTranscriptPrompt(role, res)},
		},
		Temperature: g.temperature,
		MaxTokens:   g.maxTokens,
		JSONOnly:    true,
	})
	if err != nil {
		return nil, fmt.Errorf("feedback: generate report: %w", err)
	}

	var report Report
	if err := json.Unmarshal([]byte(stripFences(resp.Content)), &report); err != nil {
		return nil, fmt.Errorf("feedback: parse report: %w", err)
	}
	report.OverallScore = clampScore(report.OverallScore)
	for i := range report.Verdicts {
		report.Verdicts[i].Score = clampScore(report.Verdicts[i].Score)
	}
	return &report, nil
}

// buildTranscriptPrompt renders the ledger as a readable transcript. Answers
// the candidate never gave are marked so the model does not invent content
// for them.
func buildTranscriptPrompt(role string, res interview.Result) string {
	var b strings.Builder
	if role != "" {
		fmt.Fprintf(&b, "Role: %s\n", role)
	}
	fmt.Fprintf(&b, "Session outcome: %s\n\n", res.Status)

	for _, a := range res.Answers {
		q := res.Questions.At(a.QuestionIndex)
		fmt.Fprintf(&b, "Question %d (%s): %s\n", a.QuestionIndex, q.Category, q.Text)
		switch {
		case a.Skipped:
			b.WriteString("Answer: [question skipped]\n")
		case a.Transcript == "" && a.TimedOut:
			b.WriteString("Answer: [no answer before time ran out]\n")
		case a.TimedOut:
			fmt.Fprintf(&b, "Answer (cut off at the time limit): %s\n", a.Transcript)
		default:
			fmt.Fprintf(&b, "Answer: %s\n", a.Transcript)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// stripFences removes markdown code fences that some models wrap around JSON
// output even in JSON mode.
func stripFences(s string) string {
	clean := strings.TrimSpace(s)
	if strings.HasPrefix(clean, "```json") {
		clean = strings.TrimPrefix(clean, "```json")
	} else if strings.HasPrefix(clean, "```") {
		clean = strings.TrimPrefix(clean, "```")
	}
	clean = strings.TrimLeft(clean, "\r\n")
	clean = strings.TrimSuffix(clean, "```")
	return strings.TrimSpace(clean)
}

func clampScore(n int) int {
	if n < 1 {
		return 1
	}
	if n > 5 {
		return 5
	}
	return n
}
