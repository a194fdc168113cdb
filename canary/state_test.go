package canary

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStateTransitions(t *testing.T) {
	cases := []struct {
		from    State
		to      State
		allowed bool
	}{
		{StatePlanning, StateDeploying, true},
		{StatePlanning, StateMonitoring, false},
		{StatePlanning, StateRollingBack, false},
		{StateDeploying, StateMonitoring, true},
		{StateDeploying, StateRollingBack, true},
		{StateDeploying, StateCompleted, false},
		{StateMonitoring, StateCompleted, true},
		{StateMonitoring, StateRollingBack, true},
		{StateMonitoring, StateDeploying, false},
		{StateRollingBack, StateFailed, true},
		{StateRollingBack, StateCompleted, false},
		{StateRollingBack, StateMonitoring, false},
		{StateCompleted, StateRollingBack, false},
		{StateFailed, StateDeploying, false},
		{StateFailed, StateFailed, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.allowed, tc.from.CanTransition(tc.to),
			"%s -> %s", tc.from, tc.to)
	}
}

func TestStateTerminal(t *testing.T) {
	assert.True(t, StateCompleted.IsTerminal())
	assert.True(t, StateFailed.IsTerminal())
	assert.False(t, StatePlanning.IsTerminal())
	assert.False(t, StateDeploying.IsTerminal())
	assert.False(t, StateMonitoring.IsTerminal())
	assert.False(t, StateRollingBack.IsTerminal())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "Monitoring", StateMonitoring.String())
	assert.Equal(t, "Unknown", State(99).String())
}
