package store

import "github.com/KamogeloT/MediFlow/internal/models"

// Transition describes the side effects of a valid status change. The
// machine itself is stateless; current status lives on the persisted entry.
type Transition struct {
	SetCheckedIn bool
	SetCompleted bool
}

var transitionMap = map[string]map[string]Transition{
	models.StatusWaiting: {
		models.StatusInConsultation: {SetCheckedIn: true},
	},
	models.StatusInConsultation: {
		models.StatusCompleted: {SetCompleted: true},
	},
}

// NextTransition reports whether fromStatus -> toStatus is allowed and which
// timestamps the change must set. Same-state repeats, skip-ahead moves, and
// any move out of completed are rejected.
func NextTransition(fromStatus, toStatus string) (Transition, bool) {
	targets, ok := transitionMap[fromStatus]
	if !ok {
		return Transition{}, false
	}
	t, ok := targets[toStatus]
	return t, ok
}

// TransitionSource returns the only status a valid transition into toStatus
// may start from. Used for compare-and-set updates keyed on expected status.
func TransitionSource(toStatus string) (string, bool) {
	for from, targets := range transitionMap {
		if _, ok := targets[toStatus]; ok {
			return from, true
		}
	}
	return "", false
}
