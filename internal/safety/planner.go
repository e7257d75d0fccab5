package safety

import (
	"time"

	"github.com/kidvoice-labs/safegate/internal/models"
)

// sessionConfigs is the total lookup table from level to presentation and
// timing parameters. Escalation lowers prompt intensity and shortens the
// inactivity timeout so struggling children are checked on sooner.
var sessionConfigs = map[models.Level]models.SessionConfig{
	models.LevelGreen: {
		PromptIntensity:   2,
		AvatarTone:        "warm",
		MaxTaskTime:       60 * time.Second,
		InactivityTimeout: 30 * time.Second,
	},
	models.LevelYellow: {
		PromptIntensity:   1,
		AvatarTone:        "calm",
		MaxTaskTime:       45 * time.Second,
		InactivityTimeout: 25 * time.Second,
	},
	models.LevelOrange: {
		PromptIntensity:   0,
		AvatarTone:        "calm",
		MaxTaskTime:       30 * time.Second,
		InactivityTimeout: 20 * time.Second,
	},
	models.LevelRed: {
		PromptIntensity:   0,
		AvatarTone:        "calm",
		MaxTaskTime:       60 * time.Second,
		InactivityTimeout: 15 * time.Second,
	},
}

// PlanSession returns the session configuration for a level.
func PlanSession(level models.Level) models.SessionConfig {
	if cfg, ok := sessionConfigs[level]; ok {
		return cfg
	}
	return sessionConfigs[models.LevelGreen]
}

// ShouldTriggerScheduledBreak reports whether a periodic break is due: every
// third of the total planned session length since the last break.
func ShouldTriggerScheduledBreak(state models.State, sessionDuration time.Duration) bool {
	if sessionDuration <= 0 {
		return false
	}
	return state.TimeSinceBreak >= sessionDuration.Seconds()/3
}
