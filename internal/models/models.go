// Package models defines the core data structures shared across the
// safety-gate pipeline: events, behavioral signals, safety levels,
// interventions, session configuration, and the per-event output package.
package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// EventType defines the kind of interaction unit entering the pipeline.
type EventType string

const (
	// EventResponseReceived carries one transcribed child utterance.
	EventResponseReceived EventType = "response_received"
	// EventInactivityFired is synthesized by the orchestrator's inactivity timer.
	EventInactivityFired EventType = "inactivity_fired"
)

// IsValidEventType checks if the given event type is supported.
func IsValidEventType(et EventType) bool {
	switch et {
	case EventResponseReceived, EventInactivityFired:
		return true
	default:
		return false
	}
}

// Error variables for better error handling and testability
var (
	ErrInvalidEventType    = errors.New("invalid event type")
	ErrEmptyResponse       = errors.New("response text is required for response events")
	ErrUnknownSession      = errors.New("unknown session")
	ErrSessionClosed       = errors.New("session is closed")
	ErrNoActiveCard        = errors.New("no card is currently active")
	ErrUnknownIntervention = errors.New("unknown intervention")
	ErrStateOutOfRange     = errors.New("state field out of range")
)

// AudioCues holds the externally detected amplitude-analysis flags attached
// to an event by the audio pipeline before it reaches the detector.
type AudioCues struct {
	Screaming        bool `json:"screaming,omitempty"`
	Crying           bool `json:"crying,omitempty"`
	ProlongedSilence bool `json:"prolonged_silence,omitempty"`
}

// Event is one immutable interaction unit. Response events carry the
// transcript, the upstream correctness judgment, and up to two previous
// responses for repetition detection.
type Event struct {
	Type                   EventType `json:"type"`
	Response               string    `json:"response,omitempty"`
	Correct                bool      `json:"correct,omitempty"`
	PreviousResponse       string    `json:"previous_response,omitempty"`
	SecondPreviousResponse string    `json:"second_previous_response,omitempty"`
	Audio                  AudioCues `json:"audio,omitempty"`
	ReceivedAt             time.Time `json:"received_at,omitempty"`
}

// Validate rejects malformed events before they enter the pipeline.
func (e Event) Validate() error {
	if !IsValidEventType(e.Type) {
		return fmt.Errorf("%w: %q", ErrInvalidEventType, e.Type)
	}
	if e.Type == EventResponseReceived && e.Response == "" {
		return ErrEmptyResponse
	}
	return nil
}

// Signal is a discrete behavioral indicator derived fresh for every event.
// Signals are never stored across events; only their effects on State persist.
type Signal string

const (
	SignalScreaming          Signal = "SCREAMING"
	SignalCrying             Signal = "CRYING"
	SignalProlongedSilence   Signal = "PROLONGED_SILENCE"
	SignalWantsBreak         Signal = "WANTS_BREAK"
	SignalWantsQuit          Signal = "WANTS_QUIT"
	SignalFrustration        Signal = "FRUSTRATION"
	SignalDistress           Signal = "DISTRESS"
	SignalRepetitiveResponse Signal = "REPETITIVE_RESPONSE"
	SignalConsecutiveErrors  Signal = "CONSECUTIVE_ERRORS"
)

// HasSignal reports whether s is present in the signal set.
func HasSignal(signals []Signal, s Signal) bool {
	for _, sig := range signals {
		if sig == s {
			return true
		}
	}
	return false
}

// Level is the four-step ordered safety classification. It is always derived
// from (State, Signals), never stored.
type Level int

const (
	LevelGreen Level = iota
	LevelYellow
	LevelOrange
	LevelRed
)

// String returns the color name used in logs and on the wire.
func (l Level) String() string {
	switch l {
	case LevelGreen:
		return "GREEN"
	case LevelYellow:
		return "YELLOW"
	case LevelOrange:
		return "ORANGE"
	case LevelRed:
		return "RED"
	default:
		return fmt.Sprintf("LEVEL(%d)", int(l))
	}
}

// MarshalJSON encodes the level as its color name.
func (l Level) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.String())
}

// UnmarshalJSON decodes a level from its color name.
func (l *Level) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	parsed, err := ParseLevel(name)
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// ParseLevel maps a color name back to its level.
func ParseLevel(name string) (Level, error) {
	switch name {
	case "GREEN":
		return LevelGreen, nil
	case "YELLOW":
		return LevelYellow, nil
	case "ORANGE":
		return LevelOrange, nil
	case "RED":
		return LevelRed, nil
	default:
		return LevelGreen, fmt.Errorf("unknown safety level %q", name)
	}
}

// Intervention is one corrective action offered to the child.
type Intervention string

const (
	InterventionRetryCard       Intervention = "RETRY_CARD"
	InterventionSkipCard        Intervention = "SKIP_CARD"
	InterventionBubbleBreathing Intervention = "BUBBLE_BREATHING"
	InterventionStartBreak      Intervention = "START_BREAK"
	InterventionCallGrownup     Intervention = "CALL_GROWNUP"
)

// IsValidIntervention checks if the given intervention is part of the closed set.
func IsValidIntervention(iv Intervention) bool {
	switch iv {
	case InterventionRetryCard, InterventionSkipCard, InterventionBubbleBreathing,
		InterventionStartBreak, InterventionCallGrownup:
		return true
	default:
		return false
	}
}

// HasIntervention reports whether iv is present in the intervention set.
func HasIntervention(interventions []Intervention, iv Intervention) bool {
	for _, i := range interventions {
		if i == iv {
			return true
		}
	}
	return false
}

// SessionConfig holds the presentation and timing parameters derived from the
// current safety level.
type SessionConfig struct {
	PromptIntensity   int           `json:"prompt_intensity"`   // 0 (minimal) .. 3 (high energy)
	AvatarTone        string        `json:"avatar_tone"`        // "warm" or "calm"
	MaxTaskTime       time.Duration `json:"max_task_time"`      // time allowed on one card
	InactivityTimeout time.Duration `json:"inactivity_timeout"` // silence before the timer fires
}

// TaskContext describes the currently displayed card; supplied by the game
// before each response is expected.
type TaskContext struct {
	Category      string   `json:"category"`
	Question      string   `json:"question"`
	TargetAnswers []string `json:"target_answers"`
	ImageLabels   []string `json:"image_labels,omitempty"`
}

// Candidate is the raw output of one Response Generator call.
type Candidate struct {
	CoachLine          string `json:"coach_line"`
	ChoicePresentation string `json:"choice_presentation,omitempty"`
}

// Constraints is the machine-checkable record the validator enforces against
// a generated candidate.
type Constraints struct {
	MustBeBrief          bool     `json:"must_be_brief"`
	MustNotJudge         bool     `json:"must_not_judge"`
	MustOfferChoices     bool     `json:"must_offer_choices"`
	MustValidateFeelings bool     `json:"must_validate_feelings"`
	MaxSentences         int      `json:"max_sentences"`
	ForbiddenWords       []string `json:"forbidden_words"`
	Approach             string   `json:"approach"`
}

// ValidationResult reports whether a candidate passed every constraint check.
type ValidationResult struct {
	Valid        bool     `json:"valid"`
	FailedChecks []string `json:"failed_checks,omitempty"`
	Reason       string   `json:"reason,omitempty"`
}

// Overlay is the observable snapshot shown to the therapist-facing UI.
type Overlay struct {
	Signals     []Signal `json:"signals"`
	State       State    `json:"state"`
	SafetyLevel Level    `json:"safety_level"`
}

// Speech carries the coaching line spoken by the avatar.
type Speech struct {
	Text string `json:"text"`
}

// UIPackage is the final output of one event's processing, handed to the
// transport layer and discarded by the core once delivered.
type UIPackage struct {
	Overlay        Overlay        `json:"overlay"`
	Interventions  []Intervention `json:"interventions"`
	SessionConfig  SessionConfig  `json:"session_config"`
	Speech         Speech         `json:"speech"`
	ChoiceMessage  string         `json:"choice_message,omitempty"`
	BreakSuggested bool           `json:"break_suggested,omitempty"`
}
