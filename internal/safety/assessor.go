// Package safety classifies the session's safety level from the behavioral
// state and per-event signals, selects the corrective interventions allowed
// at that level, and derives the session configuration. Everything here is
// pure: same inputs, same outputs, no I/O.
package safety

import "github.com/kidvoice-labs/safegate/internal/models"

// Classification thresholds. Rules are evaluated most-severe-first and the
// first match wins.
const (
	redDysregulation        = 9.0
	redAcuteDysregulation   = 7.0
	orangeDysregulation     = 7.0
	orangeConsecutiveErrors = 5
	orangeFatigue           = 8.0
	yellowEngagementFloor   = 3.0
	yellowDysregulation     = 5.0
	yellowConsecutiveErrors = 3
	yellowFatigue           = 6.0
)

// acuteSignals are the signals that, combined with elevated dysregulation,
// escalate straight to RED.
var acuteSignals = []models.Signal{
	models.SignalDistress,
	models.SignalScreaming,
	models.SignalCrying,
}

// yellowSignals force at least YELLOW on their own.
var yellowSignals = []models.Signal{
	models.SignalWantsBreak,
	models.SignalWantsQuit,
	models.SignalFrustration,
	models.SignalProlongedSilence,
}

// Assess maps (state, signals) to a safety level. It is a pure function with
// no hidden memory: the level is recomputed from scratch on every event.
func Assess(state models.State, signals []models.Signal) models.Level {
	acute := anySignal(signals, acuteSignals)

	if state.Dysregulation >= redDysregulation ||
		(acute && state.Dysregulation >= redAcuteDysregulation) {
		return models.LevelRed
	}

	if acute ||
		models.HasSignal(signals, models.SignalRepetitiveResponse) ||
		state.Dysregulation >= orangeDysregulation ||
		state.ConsecutiveErrors >= orangeConsecutiveErrors ||
		state.Fatigue >= orangeFatigue {
		return models.LevelOrange
	}

	if anySignal(signals, yellowSignals) ||
		state.Engagement <= yellowEngagementFloor ||
		state.Dysregulation >= yellowDysregulation ||
		state.ConsecutiveErrors >= yellowConsecutiveErrors ||
		state.Fatigue >= yellowFatigue {
		return models.LevelYellow
	}

	return models.LevelGreen
}

func anySignal(signals []models.Signal, candidates []models.Signal) bool {
	for _, c := range candidates {
		if models.HasSignal(signals, c) {
			return true
		}
	}
	return false
}
