package coach

import (
	"strings"

	"github.com/kidvoice-labs/safegate/internal/models"
)

// ChoicePrompt is the literal suffix required whenever choices are offered,
// for fallback lines and accepted generated text alike.
const ChoicePrompt = "What would you like to do?"

// Deterministic fallback lines. Each one is authored to pass the validator's
// own checks, including the substring forbidden-word scan.
const (
	fallbackCorrect        = "You did it! Amazing work!"
	fallbackInactivity     = "Are you still there? Let's look at the card together!"
	fallbackRetryGreen     = "Good try! Let's give it one more go!"
	fallbackRetryEscalated = "That was a great effort."
)

// choiceLabels are the child-facing phrasings for each intervention, used to
// compose the deterministic choice message.
var choiceLabels = map[models.Intervention]string{
	models.InterventionRetryCard:       "try again",
	models.InterventionSkipCard:        "skip this card",
	models.InterventionBubbleBreathing: "blow some bubbles",
	models.InterventionStartBreak:      "take a break",
	models.InterventionCallGrownup:     "get a grown-up",
}

// FallbackText selects the deterministic coaching line for an event at the
// given level: celebratory for correct answers, a gentle check-in for
// inactivity, retry encouragement otherwise, with the choice prompt appended
// whenever choices are on offer.
func FallbackText(event models.Event, level models.Level) string {
	if event.Type == models.EventInactivityFired {
		if level >= models.LevelYellow {
			return EnsureChoiceSuffix(fallbackInactivity)
		}
		return fallbackInactivity
	}

	if event.Correct {
		return fallbackCorrect
	}

	if level >= models.LevelYellow {
		return EnsureChoiceSuffix(fallbackRetryEscalated)
	}
	return fallbackRetryGreen
}

// EnsureChoiceSuffix appends the literal choice prompt unless the text
// already ends with it.
func EnsureChoiceSuffix(text string) string {
	trimmed := strings.TrimSpace(text)
	if strings.HasSuffix(trimmed, ChoicePrompt) {
		return trimmed
	}
	if trimmed == "" {
		return ChoicePrompt
	}
	return trimmed + " " + ChoicePrompt
}

// FallbackChoiceMessage composes the deterministic choice-presentation text
// from the offered interventions, in their presentation order.
func FallbackChoiceMessage(interventions []models.Intervention) string {
	var labels []string
	for _, iv := range interventions {
		if label, ok := choiceLabels[iv]; ok {
			labels = append(labels, label)
		}
	}
	switch len(labels) {
	case 0:
		return ""
	case 1:
		return "You can " + labels[0] + "."
	case 2:
		return "You can " + labels[0] + " or " + labels[1] + "."
	default:
		return "You can " + strings.Join(labels[:len(labels)-1], ", ") +
			", or " + labels[len(labels)-1] + "."
	}
}
