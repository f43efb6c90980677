// Package quality scores chapter content on structural heuristics. Results
// are advisory: a failing score is recorded with the persisted content for
// human review and never blocks ingestion.
package quality

import (
	"regexp"
	"strings"
)

// Input is one chapter to check.
type Input struct {
	Content      string
	ChapterTitle string
	DocumentID   string
}

// Result is the diagnostic outcome. Passed is true iff Score >= 60.
type Result struct {
	Passed      bool     `json:"passed"`
	Score       int      `json:"score"`
	Issues      []string `json:"issues"`
	Suggestions []string `json:"suggestions"`
}

const passThreshold = 60

var wordTokenRe = regexp.MustCompile(`\b[a-zA-Z]+\b`)

// Check is deterministic: identical input always yields the identical score
// and issue list. It never panics outward; an internal panic becomes a
// failed result with score 0.
func Check(in Input) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			result = Result{
				Passed:      false,
				Score:       0,
				Issues:      []string{"quality check error"},
				Suggestions: []string{"review the chapter content format"},
			}
		}
	}()

	issues := []string{}
	suggestions := []string{}
	score := 100

	if strings.TrimSpace(in.Content) == "" {
		issues = append(issues, "content is empty")
		score -= 50
	}
	if len(in.Content) < 100 {
		issues = append(issues, "content is too short")
		suggestions = append(suggestions, "consider adding more content")
		score -= 20
	}
	if strings.TrimSpace(in.ChapterTitle) == "" {
		issues = append(issues, "chapter title is empty")
		score -= 10
	}
	if len(wordTokenRe.FindAllString(in.Content, 11)) < 10 {
		issues = append(issues, "not enough recognizable words")
		suggestions = append(suggestions, "consider adding more English text")
		score -= 30
	}
	if strings.Contains(in.Content, "  ") {
		issues = append(issues, "contains repeated whitespace")
		score -= 5
	}
	if strings.Contains(in.Content, "\n\n\n") {
		issues = append(issues, "contains runs of blank lines")
		score -= 5
	}

	if score < 0 {
		score = 0
	}

	return Result{
		Passed:      score >= passThreshold,
		Score:       score,
		Issues:      issues,
		Suggestions: suggestions,
	}
}
