package bot

import "sync"

// State is a per-chat conversation state. The admin panel drives the
// broadcast and API key states; AwaitingAnswer marks a chat with a
// completion in flight.
type State int

const (
	StateIdle State = iota
	StateAwaitingBroadcastContent
	StateAwaitingAPIKey
	StateAwaitingAnswer
)

// transitions is the explicit transition table. Anything not listed here is
// rejected.
var transitions = map[State][]State{
	StateIdle:                     {StateAwaitingBroadcastContent, StateAwaitingAPIKey, StateAwaitingAnswer},
	StateAwaitingBroadcastContent: {StateIdle},
	StateAwaitingAPIKey:           {StateIdle},
	StateAwaitingAnswer:           {StateIdle},
}

// FSM tracks conversation state keyed by chat identity. Chats without an
// entry are Idle.
type FSM struct {
	mu     sync.Mutex
	states map[int64]State
}

// NewFSM creates an empty state machine.
func NewFSM() *FSM {
	return &FSM{states: make(map[int64]State)}
}

// State returns the current state for a chat.
func (f *FSM) State(chatID int64) State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.states[chatID]
}

// Transition moves a chat from its current state to the target state.
// Returns false without mutating anything when the transition is not in the
// table.
func (f *FSM) Transition(chatID int64, to State) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	from := f.states[chatID]
	for _, allowed := range transitions[from] {
		if allowed == to {
			if to == StateIdle {
				delete(f.states, chatID)
			} else {
				f.states[chatID] = to
			}
			return true
		}
	}
	return false
}

// Reset forces a chat back to Idle regardless of its current state.
func (f *FSM) Reset(chatID int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.states, chatID)
}
