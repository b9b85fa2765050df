// Package similarity scores word overlap between issues to flag likely duplicates.
package similarity

import (
	"sort"
	"strings"

	"github.com/joescharf/issueboard/internal/models"
)

const (
	// DefaultThreshold is the minimum overall score for an issue to count as similar.
	DefaultThreshold = 0.5

	// Title carries more signal than the free-text description.
	TitleWeight       = 0.7
	DescriptionWeight = 0.3
)

// Match is an existing issue annotated with its overall similarity score.
type Match struct {
	Issue *models.Issue `json:"issue"`
	Score float64       `json:"score"`
}

// Normalize lower-cases text, strips everything except ASCII word characters
// and whitespace, and returns the distinct tokens in first-seen order.
// Whitespace is the set matched by \s in ECMAScript regular expressions, so
// U+FEFF separates tokens while U+0085 is stripped like any other symbol.
func Normalize(text string) []string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range strings.ToLower(text) {
		if isWordRune(r) || isSpace(r) {
			b.WriteRune(r)
		}
	}

	fields := strings.FieldsFunc(b.String(), isSpace)
	seen := make(map[string]struct{}, len(fields))
	tokens := fields[:0]
	for _, f := range fields {
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		tokens = append(tokens, f)
	}
	return tokens
}

func isSpace(r rune) bool {
	switch r {
	case '\t', '\n', '\v', '\f', '\r', ' ',
		'\u00a0', '\u1680', '\u2028', '\u2029', '\u202f', '\u205f', '\u3000', '\ufeff':
		return true
	}
	return r >= '\u2000' && r <= '\u200a'
}

func isWordRune(r rune) bool {
	return r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}

// Similarity returns the Jaccard index of the token sets of a and b.
// Two texts with no tokens at all score 0.
func Similarity(a, b string) float64 {
	setA := tokenSet(a)
	setB := tokenSet(b)

	intersection := 0
	for tok := range setA {
		if _, ok := setB[tok]; ok {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func tokenSet(text string) map[string]struct{} {
	tokens := Normalize(text)
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return set
}

// Score combines title and description similarity into one weighted value.
func Score(candidate models.Candidate, existing *models.Issue) float64 {
	title := Similarity(candidate.Title, existing.Title)
	desc := Similarity(candidate.Description, existing.Description)
	return TitleWeight*title + DescriptionWeight*desc
}

// Rank scores candidate against every existing issue and returns those at or
// above threshold, highest score first.
func Rank(candidate models.Candidate, existing []*models.Issue, threshold float64) []Match {
	var matches []Match
	for _, issue := range existing {
		if issue == nil {
			continue
		}
		overall := Score(candidate, issue)
		if overall >= threshold {
			matches = append(matches, Match{Issue: issue, Score: overall})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	return matches
}

// Top returns at most n leading matches. n <= 0 returns all of them.
func Top(matches []Match, n int) []Match {
	if n <= 0 || len(matches) <= n {
		return matches
	}
	return matches[:n]
}

// Percent renders a score the way the duplicate warning shows it.
func Percent(score float64) int {
	return int(score*100 + 0.5)
}
