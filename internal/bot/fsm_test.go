package bot

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFSMDefaultsToIdle(t *testing.T) {
	fsm := NewFSM()
	assert.Equal(t, StateIdle, fsm.State(1))
}

func TestFSMAllowedTransitions(t *testing.T) {
	fsm := NewFSM()

	assert.True(t, fsm.Transition(1, StateAwaitingBroadcastContent))
	assert.Equal(t, StateAwaitingBroadcastContent, fsm.State(1))

	assert.True(t, fsm.Transition(1, StateIdle))
	assert.Equal(t, StateIdle, fsm.State(1))

	assert.True(t, fsm.Transition(1, StateAwaitingAPIKey))
	assert.Equal(t, StateAwaitingAPIKey, fsm.State(1))
	assert.True(t, fsm.Transition(1, StateIdle))

	assert.True(t, fsm.Transition(1, StateAwaitingAnswer))
	assert.Equal(t, StateAwaitingAnswer, fsm.State(1))
	assert.True(t, fsm.Transition(1, StateIdle))
}

func TestFSMRejectsInvalidTransitions(t *testing.T) {
	fsm := NewFSM()

	// Idle to Idle is not in the table.
	assert.False(t, fsm.Transition(1, StateIdle))

	assert.True(t, fsm.Transition(1, StateAwaitingBroadcastContent))
	// Awaiting states cannot hop directly between each other.
	assert.False(t, fsm.Transition(1, StateAwaitingAPIKey))
	assert.Equal(t, StateAwaitingBroadcastContent, fsm.State(1), "rejected transition must not mutate state")
}

func TestFSMStatesAreIndependentPerChat(t *testing.T) {
	fsm := NewFSM()

	assert.True(t, fsm.Transition(1, StateAwaitingBroadcastContent))
	assert.True(t, fsm.Transition(2, StateAwaitingAPIKey))

	assert.Equal(t, StateAwaitingBroadcastContent, fsm.State(1))
	assert.Equal(t, StateAwaitingAPIKey, fsm.State(2))
	assert.Equal(t, StateIdle, fsm.State(3))
}

func TestFSMReset(t *testing.T) {
	fsm := NewFSM()

	assert.True(t, fsm.Transition(1, StateAwaitingAPIKey))
	fsm.Reset(1)
	assert.Equal(t, StateIdle, fsm.State(1))

	// Reset on an Idle chat is a no-op.
	fsm.Reset(2)
	assert.Equal(t, StateIdle, fsm.State(2))
}

func TestFSMConcurrentAccess(t *testing.T) {
	fsm := NewFSM()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(chatID int64) {
			defer wg.Done()
			fsm.Transition(chatID, StateAwaitingBroadcastContent)
			fsm.State(chatID)
			fsm.Reset(chatID)
		}(int64(i))
	}
	wg.Wait()
}
