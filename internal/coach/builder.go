// Package coach assembles the generation request and machine-checkable
// constraint record for one event, validates generated candidates against
// that record, and provides the deterministic fallback lines used whenever
// generation is skipped, fails, or is rejected. All functions are pure.
package coach

import (
	"fmt"
	"strings"

	"github.com/kidvoice-labs/safegate/internal/models"
)

// ForbiddenWords is the fixed list checked case-insensitively as substrings
// of the generated coach line.
var ForbiddenWords = []string{"wrong", "incorrect", "bad", "no", "try harder", "focus"}

// approachByLevel are the required approach tags for incorrect responses.
var approachByLevel = map[models.Level]string{
	models.LevelGreen:  "playful_encouragement",
	models.LevelYellow: "gentle_redirect",
	models.LevelOrange: "co_regulation",
	models.LevelRed:    "safety_first",
}

// toneInstructions are the level-specific style directives embedded in the
// system prompt.
var toneInstructions = map[models.Level]string{
	models.LevelGreen:  "Be upbeat and playful. Celebrate effort with energy.",
	models.LevelYellow: "Be calm and gentle. Keep the energy low and steady.",
	models.LevelOrange: "Be calm and soothing. Name the feeling you hear before anything else.",
	models.LevelRed:    "Be minimal and soothing. Safety and comfort come before the game.",
}

// BuildConstraints derives the constraint record for one event at the given
// level. The record is what the validator enforces; the prompt merely asks
// for the same thing in natural language.
func BuildConstraints(event models.Event, level models.Level) models.Constraints {
	incorrect := event.Type == models.EventResponseReceived && !event.Correct

	maxSentences := 2
	if incorrect && level >= models.LevelYellow {
		maxSentences = 3
	}

	approach := "celebrate"
	if incorrect {
		approach = approachByLevel[level]
	}

	return models.Constraints{
		MustBeBrief:          true,
		MustNotJudge:         true,
		MustOfferChoices:     incorrect && level >= models.LevelYellow,
		MustValidateFeelings: incorrect && level >= models.LevelOrange,
		MaxSentences:         maxSentences,
		ForbiddenWords:       ForbiddenWords,
		Approach:             approach,
	}
}

// BuildSystemPrompt assembles the natural-language generation request for one
// response event: the child's utterance, the expected target, correctness,
// attempt number, and the level-specific tone and length instructions.
func BuildSystemPrompt(event models.Event, task models.TaskContext, level models.Level, constraints models.Constraints, attempt int) string {
	var sb strings.Builder

	sb.WriteString("You are a warm speech-therapy coach for a young child playing a picture card game.\n\n")

	sb.WriteString("[Card]\n")
	sb.WriteString(fmt.Sprintf("Category: %s\n", task.Category))
	sb.WriteString(fmt.Sprintf("Question: %s\n", task.Question))
	sb.WriteString(fmt.Sprintf("Expected answers: %s\n", strings.Join(task.TargetAnswers, ", ")))
	if len(task.ImageLabels) > 0 {
		sb.WriteString(fmt.Sprintf("Picture shows: %s\n", strings.Join(task.ImageLabels, ", ")))
	}
	sb.WriteString("\n")

	sb.WriteString("[Child]\n")
	sb.WriteString(fmt.Sprintf("The child said: %q\n", event.Response))
	if event.Correct {
		sb.WriteString("The answer was correct.\n")
	} else {
		sb.WriteString(fmt.Sprintf("The answer did not match. This is attempt %d on this card.\n", attempt))
	}
	sb.WriteString("\n")

	sb.WriteString("[Style]\n")
	sb.WriteString(toneInstructions[level])
	sb.WriteString("\n\n")

	sb.WriteString("[Rules]\n")
	sb.WriteString(fmt.Sprintf("- Reply with at most %d short sentences and at most 30 words.\n", constraints.MaxSentences))
	sb.WriteString("- Never judge or scold the child.\n")
	sb.WriteString(fmt.Sprintf("- Never use any of these words: %s.\n", strings.Join(constraints.ForbiddenWords, ", ")))
	if constraints.MustValidateFeelings {
		sb.WriteString("- Acknowledge how the child is feeling before anything else.\n")
	}
	if constraints.MustOfferChoices {
		sb.WriteString("- End by offering the child a choice of what to do next.\n")
	}
	sb.WriteString(fmt.Sprintf("- Approach: %s.\n", constraints.Approach))
	sb.WriteString("\n")

	sb.WriteString(`Respond with JSON: {"coach_line": "...", "choice_presentation": "..."}.`)
	sb.WriteString(" Leave choice_presentation empty unless a choice is required.\n")

	return sb.String()
}
