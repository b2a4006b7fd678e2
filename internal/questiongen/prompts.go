package questiongen

import (
	"fmt"
	"strings"
)

// systemPrompt frames the model as an interviewer. Kept deliberately short;
// the response schema carries the structural constraints.
const systemPrompt = `You are an experienced technical interviewer preparing a mock interview.
Write questions a strong interviewer would actually ask: specific to the
candidate's background, open-ended, and answerable out loud in a few minutes.
Never ask yes/no questions and never ask two things in one question.`

const userPromptTemplate = `Prepare %d interview questions for a candidate applying for the role of %s.

Candidate resume:
---
%s
---
%s
Mix categories: at least one behavioral and one technical question. Ground
technical and scenario questions in projects and technologies that appear
in the resume.`

// buildUserPrompt fills the template with the interview parameters.
func buildUserPrompt(p Params, count int) string {
	role := p.Role
	if role == "" {
		role = "Software Engineer"
	}

	var skillsLine string
	if len(p.Skills) > 0 {
		skillsLine = fmt.Sprintf("Focus especially on these skills: %s.\n", strings.Join(p.Skills, ", "))
	}

	return fmt.Sprintf(userPromptTemplate, count, role, p.ResumeText, skillsLine)
}
