package coach

import (
	"strings"
	"testing"

	"github.com/kidvoice-labs/safegate/internal/models"
)

func incorrectEvent() models.Event {
	return models.Event{Type: models.EventResponseReceived, Response: "hot"}
}

func correctEvent() models.Event {
	return models.Event{Type: models.EventResponseReceived, Response: "cold", Correct: true}
}

func TestBuildConstraints(t *testing.T) {
	cases := []struct {
		name         string
		event        models.Event
		level        models.Level
		offerChoices bool
		validateFeel bool
		maxSentences int
	}{
		{"correct green", correctEvent(), models.LevelGreen, false, false, 2},
		{"correct red", correctEvent(), models.LevelRed, false, false, 2},
		{"incorrect green", incorrectEvent(), models.LevelGreen, false, false, 2},
		{"incorrect yellow", incorrectEvent(), models.LevelYellow, true, false, 3},
		{"incorrect orange", incorrectEvent(), models.LevelOrange, true, true, 3},
		{"incorrect red", incorrectEvent(), models.LevelRed, true, true, 3},
	}
	for _, c := range cases {
		cs := BuildConstraints(c.event, c.level)
		if cs.MustOfferChoices != c.offerChoices {
			t.Errorf("%s: MustOfferChoices=%v, want %v", c.name, cs.MustOfferChoices, c.offerChoices)
		}
		if cs.MustValidateFeelings != c.validateFeel {
			t.Errorf("%s: MustValidateFeelings=%v, want %v", c.name, cs.MustValidateFeelings, c.validateFeel)
		}
		if cs.MaxSentences != c.maxSentences {
			t.Errorf("%s: MaxSentences=%d, want %d", c.name, cs.MaxSentences, c.maxSentences)
		}
		if !cs.MustBeBrief || !cs.MustNotJudge {
			t.Errorf("%s: brevity and non-judgment are always required", c.name)
		}
		if cs.Approach == "" {
			t.Errorf("%s: approach tag is required", c.name)
		}
	}
}

func TestBuildSystemPromptEmbedsContext(t *testing.T) {
	task := models.TaskContext{
		Category:      "temperature",
		Question:      "What is the opposite of hot?",
		TargetAnswers: []string{"cold"},
		ImageLabels:   []string{"ice cube"},
	}
	event := incorrectEvent()
	cs := BuildConstraints(event, models.LevelYellow)

	prompt := BuildSystemPrompt(event, task, models.LevelYellow, cs, 2)
	for _, want := range []string{`"hot"`, "cold", "attempt 2", "opposite of hot", "ice cube", "3 short sentences"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestValidateForbiddenWords(t *testing.T) {
	cs := BuildConstraints(incorrectEvent(), models.LevelGreen)

	res := Validate(models.Candidate{CoachLine: "That was WRONG, sweetie."}, cs)
	if res.Valid {
		t.Fatal("expected forbidden word to fail validation case-insensitively")
	}
	if !hasCheck(res.FailedChecks, checkForbiddenWord) {
		t.Errorf("expected %s in failed checks, got %v", checkForbiddenWord, res.FailedChecks)
	}

	// Substring semantics: "know" contains "no".
	res = Validate(models.Candidate{CoachLine: "I know you can do it!"}, cs)
	if res.Valid {
		t.Error("substring match on forbidden words must reject 'know'")
	}
}

func TestValidateSentenceAndWordBudget(t *testing.T) {
	cs := BuildConstraints(incorrectEvent(), models.LevelGreen) // max 2 sentences

	res := Validate(models.Candidate{CoachLine: "One. Two. Three."}, cs)
	if res.Valid || !hasCheck(res.FailedChecks, checkSentenceCount) {
		t.Errorf("expected sentence count failure, got %+v", res)
	}

	long := strings.Repeat("very ", 31) + "nice"
	res = Validate(models.Candidate{CoachLine: long}, cs)
	if res.Valid || !hasCheck(res.FailedChecks, checkWordCount) {
		t.Errorf("expected word count failure, got %+v", res)
	}
}

func TestValidateJudgmentalPatterns(t *testing.T) {
	cs := BuildConstraints(incorrectEvent(), models.LevelGreen)
	for _, line := range []string{
		"You should listen more carefully.",
		"Why didn't you pick the ice cube?",
	} {
		res := Validate(models.Candidate{CoachLine: line}, cs)
		if res.Valid || !hasCheck(res.FailedChecks, checkJudgmentalPattern) {
			t.Errorf("%q: expected judgmental pattern failure, got %+v", line, res)
		}
	}
}

func TestValidateChoicePresentationRequired(t *testing.T) {
	cs := BuildConstraints(incorrectEvent(), models.LevelYellow)

	res := Validate(models.Candidate{CoachLine: "Great effort! Let's keep playing."}, cs)
	if res.Valid || !hasCheck(res.FailedChecks, checkChoicePresentation) {
		t.Errorf("expected missing choice presentation to fail, got %+v", res)
	}

	res = Validate(models.Candidate{
		CoachLine:          "Great effort! Let's keep playing.",
		ChoicePresentation: "You can try again or skip this card.",
	}, cs)
	if !res.Valid {
		t.Errorf("expected valid candidate, got %+v", res)
	}
}

func TestFallbackTextSelection(t *testing.T) {
	correct := FallbackText(correctEvent(), models.LevelGreen)
	if correct != fallbackCorrect {
		t.Errorf("correct fallback: got %q", correct)
	}

	inactiveGreen := FallbackText(models.Event{Type: models.EventInactivityFired}, models.LevelGreen)
	if strings.HasSuffix(inactiveGreen, ChoicePrompt) {
		t.Error("GREEN inactivity fallback must not offer choices")
	}
	inactiveYellow := FallbackText(models.Event{Type: models.EventInactivityFired}, models.LevelYellow)
	if !strings.HasSuffix(inactiveYellow, ChoicePrompt) {
		t.Error("YELLOW inactivity fallback must end with the choice prompt")
	}

	retryYellow := FallbackText(incorrectEvent(), models.LevelYellow)
	if !strings.HasSuffix(retryYellow, ChoicePrompt) {
		t.Error("escalated incorrect fallback must end with the choice prompt")
	}
}

func TestFallbacksPassTheirOwnValidator(t *testing.T) {
	cases := []struct {
		event models.Event
		level models.Level
	}{
		{correctEvent(), models.LevelGreen},
		{incorrectEvent(), models.LevelGreen},
		{incorrectEvent(), models.LevelYellow},
		{incorrectEvent(), models.LevelOrange},
		{incorrectEvent(), models.LevelRed},
		{models.Event{Type: models.EventInactivityFired}, models.LevelGreen},
		{models.Event{Type: models.EventInactivityFired}, models.LevelOrange},
	}
	for _, c := range cases {
		text := FallbackText(c.event, c.level)
		cs := BuildConstraints(c.event, c.level)
		// Inactivity lines include a question; give them the escalated budget.
		if c.event.Type == models.EventInactivityFired {
			cs.MaxSentences = 3
		}
		candidate := models.Candidate{CoachLine: text, ChoicePresentation: "placeholder"}
		if res := Validate(candidate, cs); !res.Valid {
			t.Errorf("fallback %q at %s fails validation: %s", text, c.level, res.Reason)
		}
	}
}

func TestEnsureChoiceSuffix(t *testing.T) {
	withSuffix := EnsureChoiceSuffix("Nice work today.")
	if !strings.HasSuffix(withSuffix, ChoicePrompt) {
		t.Errorf("suffix not appended: %q", withSuffix)
	}
	if doubled := EnsureChoiceSuffix(withSuffix); strings.Count(doubled, ChoicePrompt) != 1 {
		t.Errorf("suffix must not be duplicated: %q", doubled)
	}
}

func TestFallbackChoiceMessage(t *testing.T) {
	msg := FallbackChoiceMessage([]models.Intervention{
		models.InterventionBubbleBreathing,
		models.InterventionRetryCard,
		models.InterventionStartBreak,
	})
	want := "You can blow some bubbles, try again, or take a break."
	if msg != want {
		t.Errorf("expected %q, got %q", want, msg)
	}

	if msg := FallbackChoiceMessage(nil); msg != "" {
		t.Errorf("expected empty message for no interventions, got %q", msg)
	}
}

func hasCheck(checks []string, name string) bool {
	for _, c := range checks {
		if c == name {
			return true
		}
	}
	return false
}
