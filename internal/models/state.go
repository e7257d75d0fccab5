// Package models defines state types for the safety-gate pipeline.
package models

import "fmt"

// Bounds for the continuous behavioral estimate fields.
const (
	StateFieldMin = 0.0
	StateFieldMax = 10.0
)

// State is the continuous per-session behavioral estimate. It is owned
// exclusively by the state engine and mutated only through its update
// function; everyone else sees copies.
type State struct {
	Engagement        float64 `json:"engagement_level"`    // 0..10, starts optimistic
	Dysregulation     float64 `json:"dysregulation_level"` // 0..10, starts calm
	Fatigue           float64 `json:"fatigue_level"`       // 0..10, starts fresh
	ConsecutiveErrors int     `json:"consecutive_errors"`  // reset to 0 on a correct response
	ErrorFrequency    float64 `json:"error_frequency"`     // errors per minute, 60s trailing window
	TimeInSession     float64 `json:"time_in_session"`     // elapsed seconds
	TimeSinceBreak    float64 `json:"time_since_break"`    // elapsed seconds since last break
}

// NewState returns the initial estimate for a fresh session:
// start optimistic, start calm, start fresh.
func NewState() State {
	return State{
		Engagement:    8,
		Dysregulation: 1,
		Fatigue:       1,
	}
}

// CheckBounds verifies the bounded-field invariant. A violation is a
// programmer error in the update rules, not a runtime condition to clamp
// away, so callers in tests should fail loudly on a non-nil return.
func (s State) CheckBounds() error {
	for _, f := range []struct {
		name  string
		value float64
	}{
		{"engagement_level", s.Engagement},
		{"dysregulation_level", s.Dysregulation},
		{"fatigue_level", s.Fatigue},
	} {
		if f.value < StateFieldMin || f.value > StateFieldMax {
			return fmt.Errorf("%w: %s=%v", ErrStateOutOfRange, f.name, f.value)
		}
	}
	if s.ConsecutiveErrors < 0 {
		return fmt.Errorf("%w: consecutive_errors=%d", ErrStateOutOfRange, s.ConsecutiveErrors)
	}
	if s.ErrorFrequency < 0 || s.TimeInSession < 0 || s.TimeSinceBreak < 0 {
		return fmt.Errorf("%w: negative counter", ErrStateOutOfRange)
	}
	return nil
}
