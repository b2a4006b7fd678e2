package resume

import (
	"testing"
)

const sampleResume = `Senior Backend Engineer.
Built payment processing services in Go with PostgreSQL and Redis.
Deployed on Kubernetes with Terraform; instrumented with Prometheus.
Go, Go, Go — it comes up a lot.`

func TestExtractSkills(t *testing.T) {
	skills := ExtractSkills(sampleResume, nil)

	want := map[string]bool{"go": true, "postgresql": true, "redis": true, "kubernetes": true, "terraform": true, "prometheus": true}
	got := make(map[string]bool, len(skills))
	for _, s := range skills {
		got[s] = true
	}
	for s := range want {
		if !got[s] {
			t.Errorf("skill %q not extracted", s)
		}
	}
	if got["java"] || got["python"] {
		t.Errorf("extracted skills not in resume: %v", skills)
	}
}

func TestExtractSkills_WholeTokenMatch(t *testing.T) {
	skills := ExtractSkills("Organized categories of cargo logistics.", []string{"go"})
	if len(skills) != 0 {
		t.Errorf("'go' matched inside other words: %v", skills)
	}
}

func TestExtractSkills_PhraseMatch(t *testing.T) {
	skills := ExtractSkills("Led machine learning platform work.", []string{"machine learning", "system design"})
	if len(skills) != 1 || skills[0] != "machine learning" {
		t.Errorf("skills = %v", skills)
	}
}

func TestKeywordScore(t *testing.T) {
	tests := []struct {
		name   string
		resume string
		job    string
		want   int
	}{
		{
			name:   "full overlap",
			resume: "golang kubernetes postgresql",
			job:    "golang kubernetes postgresql",
			want:   100,
		},
		{
			name:   "half overlap",
			resume: "golang kubernetes",
			job:    "golang kubernetes python django",
			want:   50,
		},
		{
			name:   "no overlap",
			resume: "painting sculpture",
			job:    "golang kubernetes",
			want:   0,
		},
		{
			name:   "empty job",
			resume: "golang",
			job:    "",
			want:   0,
		},
		{
			name:   "stopwords ignored",
			resume: "golang",
			job:    "the and for with golang",
			want:   100,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KeywordScore(tt.resume, tt.job); got != tt.want {
				t.Errorf("KeywordScore = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestKeywordBoosts(t *testing.T) {
	boosts := KeywordBoosts(sampleResume, []string{"postgresql", "go"})
	if len(boosts) != 2 {
		t.Fatalf("got %d boosts", len(boosts))
	}
	// "go" appears more often, so it sorts first with a stronger boost.
	if boosts[0].Keyword != "go" {
		t.Errorf("first boost = %q, want go", boosts[0].Keyword)
	}
	if boosts[0].Boost <= boosts[1].Boost {
		t.Errorf("boosts not ordered: %v", boosts)
	}
	for _, b := range boosts {
		if b.Boost < 3 || b.Boost > 8 {
			t.Errorf("boost %v outside [3, 8]", b)
		}
	}
}
