// Package questiongen builds interview question sets from a candidate's
// resume and target role.
//
// The primary implementation calls Google Gemini with a structured JSON
// response schema, protected by a circuit breaker. It never fabricates
// questions on failure; compose it with a [Static] source via [WithFallback]
// so a session can always start.
package questiongen

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"google.golang.org/genai"

	"github.com/voxprep/voxprep/internal/interview"
)

// DefaultModel is the Gemini model used when none is configured.
const DefaultModel = "gemini-2.0-flash"

// DefaultCount is the number of questions generated when Params.Count is
// zero.
const DefaultCount = 5

// Params describes the interview to generate questions for.
type Params struct {
	// ResumeText is the extracted plain text of the candidate's resume.
	ResumeText string

	// Role is the target position, e.g. "Senior Backend Engineer".
	Role string

	// Count is the number of questions to generate. Zero means DefaultCount.
	Count int

	// Skills optionally steers generation toward specific resume skills.
	Skills []string
}

// Source produces a question set for an interview. Implementations must be
// safe for concurrent use.
type Source interface {
	Questions(ctx context.Context, p Params) (interview.QuestionSet, error)
}

// Generator implements Source using Gemini structured output.
type Generator struct {
	client      *genai.Client
	model       string
	temperature float32
	breaker     *gobreaker.CircuitBreaker[*genai.GenerateContentResponse]
	log         *slog.Logger
}

// Option configures a Generator.
type Option func(*Generator)

// WithModel overrides DefaultModel.
func WithModel(model string) Option {
	return func(g *Generator) {
		if model != "" {
			g.model = model
		}
	}
}

// WithTemperature sets the sampling temperature. Default 0.7: question
// variety matters more here than verdict consistency.
func WithTemperature(t float32) Option {
	return func(g *Generator) {
		g.temperature = t
	}
}

// WithLogger sets the logger. Defaults to slog.Default.
func WithLogger(log *slog.Logger) Option {
	return func(g *Generator) {
		g.log = log
	}
}

// NewGenerator creates a Gemini-backed Generator.
func NewGenerator(ctx context.Context, apiKey string, opts ...Option) (*Generator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("questiongen: apiKey must not be empty")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("questiongen: create gemini client: %w", err)
	}

	g := &Generator{
		client:      client,
		model:       DefaultModel,
		temperature: 0.7,
		log:         slog.Default(),
	}
	for _, o := range opts {
		o(g)
	}

	g.breaker = gobreaker.NewCircuitBreaker[*genai.GenerateContentResponse](gobreaker.Settings{
		Name:    "questiongen-" + g.model,
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			g.log.Info("question generator breaker state changed",
				"name", name, "from", from.String(), "to", to.String())
		},
	})

	return g, nil
}

// generatedQuestion is the JSON shape the model is constrained to.
type generatedQuestion struct {
	Text     string `json:"text"`
	Category string `json:"category"`
}

type generatedSet struct {
	Questions []generatedQuestion `json:"questions"`
}

// Questions implements Source.
func (g *Generator) Questions(ctx context.Context, p Params) (interview.QuestionSet, error) {
	count := p.Count
	if count <= 0 {
		count = DefaultCount
	}

	tracer := otel.Tracer("voxprep.questiongen")
	ctx, span := tracer.Start(ctx, "questiongen.generate")
	defer span.End()
	span.SetAttributes(
		attribute.String("ai.model", g.model),
		attribute.String("interview.role", p.Role),
		attribute.Int("interview.question_count", count),
	)

	userPrompt := buildUserPrompt(p, count)
	cfg := g.buildSchema()
	cfg.SystemInstruction = genai.NewContentFromText(systemPrompt, genai.RoleUser)

	result, err := g.breaker.Execute(func() (*genai.GenerateContentResponse, error) {
		return g.client.Models.GenerateContent(ctx, g.model, genai.Text(userPrompt), cfg)
	})
	if err != nil {
		span.RecordError(err)
		return interview.QuestionSet{}, fmt.Errorf("questiongen: generate: %w", err)
	}

	var out generatedSet
	if err := json.Unmarshal([]byte(result.Text()), &out); err != nil {
		span.RecordError(err)
		return interview.QuestionSet{}, fmt.Errorf("questiongen: parse response: %w", err)
	}

	questions, err := toQuestions(out.Questions)
	if err != nil {
		span.RecordError(err)
		return interview.QuestionSet{}, err
	}

	set, err := interview.NewQuestionSet(questions)
	if err != nil {
		span.RecordError(err)
		return interview.QuestionSet{}, fmt.Errorf("questiongen: %w", err)
	}

	span.SetAttributes(attribute.Int("interview.questions_generated", set.Len()))
	return set, nil
}

// buildSchema constrains the model to a JSON object holding the question
// list, with category restricted to the known values.
func (g *Generator) buildSchema() *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"questions": {
					Type: genai.TypeArray,
					Items: &genai.Schema{
						Type: genai.TypeObject,
						Properties: map[string]*genai.Schema{
							"text": {Type: genai.TypeString},
							"category": {
								Type: genai.TypeString,
								Enum: []string{
									string(interview.CategoryTechnical),
									string(interview.CategoryBehavioral),
									string(interview.CategoryScenario),
									string(interview.CategoryOther),
								},
							},
						},
						Required: []string{"text", "category"},
					},
				},
			},
			Required: []string{"questions"},
		},
	}
	if g.temperature > 0 {
		t := g.temperature
		cfg.Temperature = &t
	}
	return cfg
}

// toQuestions converts model output, dropping blank questions and mapping
// unknown categories to other.
func toQuestions(generated []generatedQuestion) ([]interview.Question, error) {
	if len(generated) == 0 {
		return nil, fmt.Errorf("questiongen: model returned no questions")
	}
	questions := make([]interview.Question, 0, len(generated))
	for _, q := range generated {
		text := strings.TrimSpace(q.Text)
		if text == "" {
			continue
		}
		cat := interview.Category(q.Category)
		switch cat {
		case interview.CategoryTechnical, interview.CategoryBehavioral,
			interview.CategoryScenario, interview.CategoryOther:
		default:
			cat = interview.CategoryOther
		}
		questions = append(questions, interview.Question{
			ID:        fmt.Sprintf("gen-%d", len(questions)+1),
			Text:      text,
			Category:  cat,
			TimeLimit: categoryTimeLimit(cat),
		})
	}
	if len(questions) == 0 {
		return nil, fmt.Errorf("questiongen: model returned only blank questions")
	}
	return questions, nil
}

// categoryTimeLimit gives deeper question types more answer time.
func categoryTimeLimit(cat interview.Category) time.Duration {
	switch cat {
	case interview.CategoryTechnical:
		return 3 * time.Minute
	case interview.CategoryScenario:
		return 4 * time.Minute
	default:
		return interview.DefaultTimeLimit
	}
}

// Ensure Generator implements Source at compile time.
var _ Source = (*Generator)(nil)
