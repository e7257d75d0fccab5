// Package engine owns the continuous per-session behavioral state and applies
// the deterministic update rules driven by events and signals. The engine is
// pure computation: no I/O, no logging; observability lives in the
// orchestrator that calls it.
package engine

import (
	"strings"
	"time"

	"github.com/kidvoice-labs/safegate/internal/models"
)

// errorFrequencyWindow is the trailing window for the errors-per-minute rate.
const errorFrequencyWindow = 60 * time.Second

// Per-event deltas for the behavioral estimate fields.
const (
	correctEngagementGain      = 1.0
	correctDysregulationRelief = 0.5
	incorrectEngagementDrop    = 0.5
	tripleRepeatDysregulation  = 2.0
	inactivityEngagementDrop   = 2.0
)

// signalDysregulation maps signals to their additive dysregulation delta.
var signalDysregulation = map[models.Signal]float64{
	models.SignalScreaming:   4,
	models.SignalCrying:      3,
	models.SignalDistress:    2,
	models.SignalFrustration: 1,
}

// Engine applies the state transition function for one session. It is not
// safe for concurrent use; the orchestrator serializes access per session.
type Engine struct {
	state       models.State
	errorTimes  []time.Time
	lastEventAt time.Time
	now         func() time.Time
}

// New creates an engine with a fresh initial state. The clock is injectable
// for tests; nil means time.Now.
func New(now func() time.Time) *Engine {
	if now == nil {
		now = time.Now
	}
	return &Engine{
		state:       models.NewState(),
		lastEventAt: now(),
		now:         now,
	}
}

// State returns a copy of the current estimate.
func (e *Engine) State() models.State {
	return e.state
}

// ProcessEvent applies one event and its derived signals to the state, in
// fixed order: event delta, signal deltas, clamp, then timer advancement and
// error-frequency recomputation. Returns the updated state copy.
func (e *Engine) ProcessEvent(event models.Event, signals []models.Signal) models.State {
	now := e.now()

	switch event.Type {
	case models.EventResponseReceived:
		if event.Correct {
			e.state.ConsecutiveErrors = 0
			e.state.Engagement += correctEngagementGain
			e.state.Dysregulation -= correctDysregulationRelief
		} else {
			e.state.ConsecutiveErrors++
			e.state.Engagement -= incorrectEngagementDrop
			if tripleRepeat(event) {
				e.state.Dysregulation += tripleRepeatDysregulation
			}
			e.errorTimes = append(e.errorTimes, now)
		}
	case models.EventInactivityFired:
		e.state.Engagement -= inactivityEngagementDrop
	}

	for _, sig := range signals {
		if delta, ok := signalDysregulation[sig]; ok {
			e.state.Dysregulation += delta
			continue
		}
		switch sig {
		case models.SignalWantsQuit:
			e.state.Engagement -= 2
		case models.SignalWantsBreak:
			e.state.Fatigue += 1
		}
	}

	e.clamp()
	e.advanceClocks(now)

	return e.state
}

// ApplyBreak applies the break-taken transition. It is invoked by the
// orchestrator when a START_BREAK or BUBBLE_BREATHING intervention resolves,
// not by a normal event.
func (e *Engine) ApplyBreak() models.State {
	e.state.Dysregulation -= 2
	e.state.Fatigue -= 2
	e.state.TimeSinceBreak = 0
	e.clamp()
	return e.state
}

// clamp bounds the three estimate fields to [0,10].
func (e *Engine) clamp() {
	e.state.Engagement = clampField(e.state.Engagement)
	e.state.Dysregulation = clampField(e.state.Dysregulation)
	e.state.Fatigue = clampField(e.state.Fatigue)
}

func clampField(v float64) float64 {
	if v < models.StateFieldMin {
		return models.StateFieldMin
	}
	if v > models.StateFieldMax {
		return models.StateFieldMax
	}
	return v
}

// advanceClocks moves the session timers by the wall-clock delta since the
// previous event and recomputes the trailing error frequency.
func (e *Engine) advanceClocks(now time.Time) {
	delta := now.Sub(e.lastEventAt).Seconds()
	if delta > 0 {
		e.state.TimeInSession += delta
		e.state.TimeSinceBreak += delta
	}
	e.lastEventAt = now

	cutoff := now.Add(-errorFrequencyWindow)
	kept := e.errorTimes[:0]
	for _, ts := range e.errorTimes {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	e.errorTimes = kept
	// With a 60s window the in-window count is already errors per minute.
	e.state.ErrorFrequency = float64(len(e.errorTimes))
}

// tripleRepeat reports whether the same answer has been given for the third
// consecutive time. Only strictly consecutive repeats count.
func tripleRepeat(event models.Event) bool {
	r := normalize(event.Response)
	return r != "" &&
		r == normalize(event.PreviousResponse) &&
		r == normalize(event.SecondPreviousResponse)
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
