package resume

import (
	"regexp"
	"sort"
	"strings"

	"github.com/voxprep/voxprep/pkg/provider/stt"
)

// DefaultSkillVocabulary is the canonical skill list matched against resume
// text when the caller has no role-specific vocabulary. Multi-word entries
// are matched as phrases, single words as whole tokens.
var DefaultSkillVocabulary = []string{
	"go", "golang", "python", "java", "typescript", "javascript", "rust",
	"c++", "kubernetes", "docker", "terraform", "aws", "gcp", "azure",
	"postgresql", "mysql", "mongodb", "redis", "kafka", "rabbitmq", "grpc",
	"graphql", "react", "linux", "git", "ci/cd", "prometheus", "grafana",
	"elasticsearch", "machine learning", "system design", "microservices",
}

// tokenPattern keeps letters, digits and the symbols that appear in skill
// names (c++, ci/cd, .net).
var tokenPattern = regexp.MustCompile(`[a-z0-9][a-z0-9+#./-]*`)

// stopwords excluded from keyword scoring.
var stopwords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "with": {}, "from": {}, "that": {},
	"this": {}, "are": {}, "was": {}, "were": {}, "have": {}, "has": {},
	"will": {}, "you": {}, "your": {}, "our": {}, "their": {}, "about": {},
	"into": {}, "over": {}, "who": {}, "what": {}, "when": {}, "where": {},
	"not": {}, "all": {}, "any": {}, "can": {}, "may": {}, "must": {},
	"should": {}, "would": {}, "been": {}, "being": {}, "also": {},
	"such": {}, "than": {}, "then": {}, "them": {}, "they": {}, "its": {},
	"per": {}, "via": {}, "using": {}, "used": {}, "use": {},
}

func tokenize(text string) []string {
	return tokenPattern.FindAllString(strings.ToLower(text), -1)
}

// ExtractSkills returns the vocabulary entries present in text, in
// vocabulary order. Single-word skills match whole tokens only, so "go"
// does not fire on "categories".
func ExtractSkills(text string, vocabulary []string) []string {
	if len(vocabulary) == 0 {
		vocabulary = DefaultSkillVocabulary
	}

	tokens := make(map[string]struct{})
	for _, t := range tokenize(text) {
		tokens[t] = struct{}{}
	}
	lowerText := strings.ToLower(text)

	var skills []string
	for _, skill := range vocabulary {
		lower := strings.ToLower(skill)
		if strings.ContainsAny(lower, " ") {
			if strings.Contains(lowerText, lower) {
				skills = append(skills, skill)
			}
			continue
		}
		if _, ok := tokens[lower]; ok {
			skills = append(skills, skill)
		}
	}
	return skills
}

// KeywordScore computes a deterministic ATS-style score in [0, 100]: the
// percentage of significant job-description keywords that also appear in the
// resume. It is intentionally dumb; it exists to give candidates the same
// first-pass filter real applicant tracking systems apply.
func KeywordScore(resumeText, jobText string) int {
	jobTokens := significantTokens(jobText)
	if len(jobTokens) == 0 {
		return 0
	}

	resumeSet := make(map[string]struct{})
	for _, t := range tokenize(resumeText) {
		resumeSet[t] = struct{}{}
	}

	matched := 0
	for t := range jobTokens {
		if _, ok := resumeSet[t]; ok {
			matched++
		}
	}
	return matched * 100 / len(jobTokens)
}

// significantTokens returns the deduplicated scoring tokens of text:
// lowercased, stopwords removed, short tokens dropped.
func significantTokens(text string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, t := range tokenize(text) {
		if len(t) < 3 {
			continue
		}
		if _, stop := stopwords[t]; stop {
			continue
		}
		out[t] = struct{}{}
	}
	return out
}

// KeywordBoosts converts a skill list into STT recognition boosts. Skills
// mentioned more often in the resume get a stronger boost, clamped to the
// range recognisers accept.
func KeywordBoosts(resumeText string, skills []string) []stt.KeywordBoost {
	lowerText := strings.ToLower(resumeText)

	boosts := make([]stt.KeywordBoost, 0, len(skills))
	for _, skill := range skills {
		count := strings.Count(lowerText, strings.ToLower(skill))
		boost := 3.0 + float64(count)
		if boost > 8 {
			boost = 8
		}
		boosts = append(boosts, stt.KeywordBoost{Keyword: skill, Boost: boost})
	}

	sort.SliceStable(boosts, func(i, j int) bool {
		return boosts[i].Boost > boosts[j].Boost
	})
	return boosts
}
