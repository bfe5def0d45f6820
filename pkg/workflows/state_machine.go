package workflows

import "slices"

// Signer slot statuses.
const (
	StatusPending   = "PENDING"
	StatusSigned    = "SIGNED"
	StatusRejected  = "REJECTED"
	StatusExpired   = "EXPIRED"
	StatusCancelled = "CANCELLED"
)

// StateMachine enforces signer slot status transitions. A slot leaves
// PENDING at most once; every other status is terminal.
type StateMachine struct {
	allowedTransitions map[string][]string
}

// NewStateMachine creates the signer slot state machine.
func NewStateMachine() *StateMachine {
	return &StateMachine{
		allowedTransitions: map[string][]string{
			StatusPending:   {StatusSigned, StatusRejected, StatusExpired, StatusCancelled},
			StatusSigned:    {},
			StatusRejected:  {},
			StatusExpired:   {},
			StatusCancelled: {},
		},
	}
}

// CanTransition reports whether a slot may move from one status to another.
func (sm *StateMachine) CanTransition(from, to string) bool {
	return slices.Contains(sm.allowedTransitions[from], to)
}

// GetAllowedTransitions returns the statuses reachable from a status.
// Unknown statuses have none.
func (sm *StateMachine) GetAllowedTransitions(from string) []string {
	if allowed, ok := sm.allowedTransitions[from]; ok {
		return allowed
	}
	return []string{}
}

// IsTerminal reports whether no transition leaves status.
func (sm *StateMachine) IsTerminal(status string) bool {
	return len(sm.GetAllowedTransitions(status)) == 0
}
