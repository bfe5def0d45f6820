package workflows

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStateMachine(t *testing.T) {
	sm := NewStateMachine()

	tests := []struct {
		from, to string
		allowed  bool
	}{
		{StatusPending, StatusSigned, true},
		{StatusPending, StatusRejected, true},
		{StatusPending, StatusExpired, true},
		{StatusSigned, StatusRejected, false},
		{StatusRejected, StatusSigned, false},
		{StatusExpired, StatusPending, false},
		{StatusCancelled, StatusSigned, false},
		{"UNKNOWN", StatusSigned, false},
	}
	for _, tt := range tests {
		t.Run(tt.from+"->"+tt.to, func(t *testing.T) {
			assert.Equal(t, tt.allowed, sm.CanTransition(tt.from, tt.to))
		})
	}

	assert.False(t, sm.IsTerminal(StatusPending))
	for _, s := range []string{StatusSigned, StatusRejected, StatusExpired, StatusCancelled, "UNKNOWN"} {
		assert.True(t, sm.IsTerminal(s), s)
	}
	assert.Empty(t, sm.GetAllowedTransitions("UNKNOWN"))
}
