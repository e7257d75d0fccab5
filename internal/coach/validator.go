package coach

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/kidvoice-labs/safegate/internal/models"
)

// maxWords is the hard word budget for any generated coach line.
const maxWords = 30

// Names of the individual validator checks, reported in FailedChecks.
const (
	checkWordCount          = "word_count"
	checkForbiddenWord      = "forbidden_word"
	checkJudgmentalPattern  = "judgmental_pattern"
	checkSentenceCount      = "sentence_count"
	checkChoicePresentation = "choice_presentation"
)

// judgmentalPatterns reject phrasings that put the failure on the child.
var judgmentalPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\byou should\b`),
	regexp.MustCompile(`(?i)\bthat'?s wrong\b`),
	regexp.MustCompile(`(?i)\btry harder\b`),
	regexp.MustCompile(`(?i)\bwhy didn'?t you\b`),
}

var sentenceSplit = regexp.MustCompile(`[.!?]+`)

// Validate deterministically checks a generated candidate against the
// constraint record. All checks must pass; any failure triggers fallback.
func Validate(candidate models.Candidate, constraints models.Constraints) models.ValidationResult {
	var failed []string
	var reasons []string

	line := candidate.CoachLine

	if n := len(strings.Fields(line)); n > maxWords {
		failed = append(failed, checkWordCount)
		reasons = append(reasons, fmt.Sprintf("%d words exceeds the %d word budget", n, maxWords))
	}

	lower := strings.ToLower(line)
	for _, word := range constraints.ForbiddenWords {
		if strings.Contains(lower, word) {
			failed = append(failed, checkForbiddenWord)
			reasons = append(reasons, fmt.Sprintf("contains forbidden word %q", word))
			break
		}
	}

	for _, pattern := range judgmentalPatterns {
		if pattern.MatchString(line) {
			failed = append(failed, checkJudgmentalPattern)
			reasons = append(reasons, fmt.Sprintf("matches judgmental pattern %q", pattern.String()))
			break
		}
	}

	if n := countSentences(line); constraints.MaxSentences > 0 && n > constraints.MaxSentences {
		failed = append(failed, checkSentenceCount)
		reasons = append(reasons, fmt.Sprintf("%d sentences exceeds limit of %d", n, constraints.MaxSentences))
	}

	if constraints.MustOfferChoices && strings.TrimSpace(candidate.ChoicePresentation) == "" {
		failed = append(failed, checkChoicePresentation)
		reasons = append(reasons, "choices are required but choice_presentation is empty")
	}

	if len(failed) > 0 {
		return models.ValidationResult{
			Valid:        false,
			FailedChecks: failed,
			Reason:       strings.Join(reasons, "; "),
		}
	}
	return models.ValidationResult{Valid: true}
}

// countSentences splits on '.', '!' and '?' and counts non-empty fragments.
func countSentences(text string) int {
	count := 0
	for _, part := range sentenceSplit.Split(text, -1) {
		if strings.TrimSpace(part) != "" {
			count++
		}
	}
	return count
}
