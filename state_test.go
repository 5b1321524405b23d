package copyscheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAtomicLifecycle_MonotoneTransitions(t *testing.T) {
	a := newAtomicLifecycle()
	assert.Equal(t, stateNotStarted, a.load())

	assert.True(t, a.tryTransition(stateNotStarted, stateRunning))
	assert.Equal(t, stateRunning, a.load())

	assert.False(t, a.tryTransition(stateNotStarted, stateRunning), "cannot re-enter from a stale from-state")

	assert.True(t, a.tryTransition(stateRunning, stateShuttingDown))
	assert.True(t, a.tryTransition(stateShuttingDown, stateStopped))
	assert.Equal(t, stateStopped, a.load())
}

func TestAtomicLifecycle_ConcurrentTransitionRaceHasExactlyOneWinner(t *testing.T) {
	a := newAtomicLifecycle()
	a.store(stateRunning)

	results := make(chan bool, 8)
	for i := 0; i < 8; i++ {
		go func() {
			results <- a.tryTransition(stateRunning, stateShuttingDown)
		}()
	}

	wins := 0
	for i := 0; i < 8; i++ {
		if <-results {
			wins++
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, stateShuttingDown, a.load())
}

func TestLifecycleState_String(t *testing.T) {
	assert.Equal(t, "NotStarted", stateNotStarted.String())
	assert.Equal(t, "Running", stateRunning.String())
	assert.Equal(t, "ShuttingDown", stateShuttingDown.String())
	assert.Equal(t, "Stopped", stateStopped.String())
}
