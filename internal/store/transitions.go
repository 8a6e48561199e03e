package store

import "opd/opd-service/internal/models"

const (
	ActionClaim    = "claim"
	ActionComplete = "complete"
	ActionCancel   = "cancel"
)

var transitionMap = map[string][]models.TokenStatus{
	ActionClaim:    {models.StatusCheckedIn},
	ActionComplete: {models.StatusInConsultation},
	ActionCancel:   {models.StatusCheckedIn},
}

func ValidTransition(action string, from models.TokenStatus) bool {
	allowed, ok := transitionMap[action]
	if !ok {
		return false
	}
	for _, status := range allowed {
		if status == from {
			return true
		}
	}
	return false
}
