// Package transcript repairs recognition errors on technical vocabulary in
// final transcripts. Speech recognizers reliably mangle skill names ("cube
// ernetes", "post gress"); the corrector realigns such spans with the
// candidate's skill vocabulary before the answer is recorded.
//
// Matching runs in two stages per token window:
//
//  1. Double Metaphone codes of the window and each vocabulary entry are
//     compared. A shared code makes the entry a phonetic candidate.
//  2. Candidates are ranked by Jaro-Winkler similarity on the raw strings.
//     The best candidate wins if it clears the phonetic threshold. Without
//     any phonetic candidate, a stricter pure-similarity threshold applies.
//
// Multi-word entries ("machine learning") are matched against n-gram windows
// of the input, shortest window first, so a clean single-token match is never
// widened into its neighbours. A length-ratio guard keeps short tokens from
// collapsing into much longer vocabulary entries ("post" stays "post";
// "post gress" becomes "postgresql").
package transcript

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85
	defaultMinTokenLength    = 3
)

// Correction records one replaced span.
type Correction struct {
	Original   string
	Corrected  string
	Confidence float64
}

// Option configures a Corrector.
type Option func(*Corrector)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score for a
// phonetically-matched entry to be accepted. Default: 0.70.
func WithPhoneticThreshold(threshold float64) Option {
	return func(c *Corrector) { c.phoneticThreshold = threshold }
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score when no phonetic
// candidate exists. Default: 0.85.
func WithFuzzyThreshold(threshold float64) Option {
	return func(c *Corrector) { c.fuzzyThreshold = threshold }
}

// WithMinTokenLength sets the minimum rune length for a single-token window
// to be tested at all. Short words ("go", "it") are left alone unless they
// already match an entry exactly. Default: 3.
func WithMinTokenLength(n int) Option {
	return func(c *Corrector) { c.minTokenLength = n }
}

// entry is a vocabulary item with its phonetic codes precomputed.
type entry struct {
	original string
	lower    string
	tokens   []string
	codes    map[string]struct{}
}

// Corrector aligns transcript spans with a fixed vocabulary. It is read-only
// after construction and safe for concurrent use.
type Corrector struct {
	entries           []entry
	maxEntryWords     int
	phoneticThreshold float64
	fuzzyThreshold    float64
	minTokenLength    int
}

// NewCorrector builds a Corrector over the given vocabulary. Blank entries
// are dropped; phonetic codes are computed once here.
func NewCorrector(vocabulary []string, opts ...Option) *Corrector {
	c := &Corrector{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
		minTokenLength:    defaultMinTokenLength,
	}
	for _, opt := range opts {
		opt(c)
	}

	for _, v := range vocabulary {
		lower := strings.ToLower(strings.TrimSpace(v))
		if lower == "" {
			continue
		}
		tokens := strings.Fields(lower)
		e := entry{original: strings.TrimSpace(v), lower: lower, tokens: tokens, codes: codesForTokens(tokens)}
		c.entries = append(c.entries, e)
		if len(tokens) > c.maxEntryWords {
			c.maxEntryWords = len(tokens)
		}
	}
	return c
}

// Correct rewrites text, replacing spans that phonetically match a
// vocabulary entry. It returns the corrected text and the applied
// corrections; text comes back unchanged when nothing matched.
func (c *Corrector) Correct(text string) (string, []Correction) {
	tokens := strings.Fields(text)
	if len(tokens) == 0 || len(c.entries) == 0 {
		return text, nil
	}

	var output []string
	var corrections []Correction

	i := 0
	for i < len(tokens) {
		maxN := c.maxEntryWords
		if i+maxN > len(tokens) {
			maxN = len(tokens) - i
		}

		matched := false
		// Shortest window first: a token that matches on its own must not
		// swallow the word after it.
		for n := 1; n <= maxN; n++ {
			window := strings.Join(tokens[i:i+n], " ")
			corrected, conf, ok := c.match(window)
			if !ok {
				continue
			}
			output = append(output, strings.Fields(corrected)...)
			if !strings.EqualFold(window, corrected) {
				corrections = append(corrections, Correction{
					Original:   window,
					Corrected:  corrected,
					Confidence: conf,
				})
			}
			i += n
			matched = true
			break
		}
		if !matched {
			output = append(output, tokens[i])
			i++
		}
	}

	if len(corrections) == 0 {
		return text, nil
	}
	return strings.Join(output, " "), corrections
}

// match tests a single window against the vocabulary.
func (c *Corrector) match(window string) (string, float64, bool) {
	lower := strings.ToLower(window)
	tokens := strings.Fields(lower)
	if len(tokens) == 1 && len([]rune(tokens[0])) < c.minTokenLength {
		// Too short to fuzz, but an exact hit still counts so that exact
		// skill mentions are preserved verbatim.
		for _, e := range c.entries {
			if e.lower == lower {
				return e.original, 1, true
			}
		}
		return window, 0, false
	}

	inputCodes := codesForTokens(tokens)

	var (
		best         entry
		bestScore    float64
		bestPhonetic bool
		found        bool
	)
	for _, e := range c.entries {
		phonetic := codesOverlap(inputCodes, e.codes)
		score := similarity(tokens, e.tokens, lower, e.lower)

		switch {
		case phonetic && score >= c.phoneticThreshold:
			if !bestPhonetic || score > bestScore {
				best, bestScore, bestPhonetic, found = e, score, true, true
			}
		case !bestPhonetic && score >= c.fuzzyThreshold && score > bestScore:
			best, bestScore, found = e, score, true
		}
	}
	if !found {
		return window, 0, false
	}
	return best.original, bestScore, true
}

// codesForTokens unions the Double Metaphone codes of all tokens.
func codesForTokens(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}

// lengthRatioFloor rejects comparisons where one side is much shorter than
// the other. Without it every token sharing a prefix with a long entry
// ("post" vs "postgresql") scores deceptively high.
const lengthRatioFloor = 0.7

// similarity scores an input window against a vocabulary entry.
//
// Equal token counts compare position by position and keep the weakest pair,
// so "machine foo" cannot ride the strength of its first word into "machine
// learning". Unequal counts are the split/merge cases ("cube ernetes" vs
// "kubernetes") and compare the space-stripped strings.
func similarity(inputTokens, entryTokens []string, inputFull, entryFull string) float64 {
	inputJoined := strings.ReplaceAll(inputFull, " ", "")
	entryJoined := strings.ReplaceAll(entryFull, " ", "")

	shorter, longer := len([]rune(inputJoined)), len([]rune(entryJoined))
	if shorter > longer {
		shorter, longer = longer, shorter
	}
	if longer == 0 || float64(shorter)/float64(longer) < lengthRatioFloor {
		return 0
	}

	if len(inputTokens) != len(entryTokens) {
		return matchr.JaroWinkler(inputJoined, entryJoined, false)
	}
	score := 1.0
	for i := range inputTokens {
		if s := matchr.JaroWinkler(inputTokens[i], entryTokens[i], false); s < score {
			score = s
		}
	}
	return score
}
