package safety

import "github.com/kidvoice-labs/safegate/internal/models"

// Thresholds for the conditional ORANGE additions.
const (
	breathingDysregulation = 4.0
	skipConsecutiveErrors  = 3
)

// SelectInterventions maps (level, state, signals) to the set of corrective
// actions offered to the child. The set is fixed per level with conditional
// additions at ORANGE; BUBBLE_BREATHING is ordered first when present because
// it takes presentation priority.
func SelectInterventions(level models.Level, state models.State, signals []models.Signal) []models.Intervention {
	switch level {
	case models.LevelGreen:
		return []models.Intervention{models.InterventionRetryCard}

	case models.LevelYellow:
		return []models.Intervention{
			models.InterventionSkipCard,
			models.InterventionRetryCard,
		}

	case models.LevelOrange:
		var set []models.Intervention
		if state.Dysregulation >= breathingDysregulation {
			set = append(set, models.InterventionBubbleBreathing)
		}
		set = append(set, models.InterventionRetryCard, models.InterventionStartBreak)
		if state.ConsecutiveErrors >= skipConsecutiveErrors {
			set = append(set, models.InterventionSkipCard)
		}
		return set

	case models.LevelRed:
		return []models.Intervention{
			models.InterventionBubbleBreathing,
			models.InterventionSkipCard,
			models.InterventionRetryCard,
			models.InterventionStartBreak,
			models.InterventionCallGrownup,
		}

	default:
		// Unreachable for the closed level set; fall back to the safest offer.
		return []models.Intervention{models.InterventionRetryCard}
	}
}
