package cursor

import (
	"errors"
	"slices"
	"time"
)

// State is a lifecycle phase or cursor mode of a Manager.
type State string

const (
	StateNotStarted   State = "not_started"
	StateStreaming    State = "streaming"
	StatePerPartition State = "per_partition"
	StateGlobal       State = "global"
	StateFinalized    State = "finalized"
)

// ErrInvalidTransition is returned when an invalid state transition is attempted.
var ErrInvalidTransition = errors.New("invalid state transition")

// ValidTransitions defines allowed state transitions.
// Key is the current state, value is the list of valid next states.
// Lifecycle phases and cursor modes are tracked separately, so the table
// covers both machines.
var ValidTransitions = map[State][]State{
	StateNotStarted:   {StateStreaming, StateFinalized},
	StateStreaming:    {StateFinalized},
	StatePerPartition: {StateGlobal},
	StateGlobal:       {},
	StateFinalized:    {},
}

// CanTransition checks if a transition from one state to another is valid.
func CanTransition(from, to State) bool {
	validTargets, ok := ValidTransitions[from]
	if !ok {
		return false
	}
	return slices.Contains(validTargets, to)
}

// Transition represents a state change with metadata.
type Transition struct {
	From      State
	To        State
	Reason    string
	Timestamp time.Time
}

// NewTransition creates a new transition record.
func NewTransition(from, to State, reason string) Transition {
	return Transition{
		From:      from,
		To:        to,
		Reason:    reason,
		Timestamp: time.Now(),
	}
}

// IsValid returns true if this transition is allowed by the state machine.
func (t Transition) IsValid() bool {
	return CanTransition(t.From, t.To)
}

// StateDescription returns a human-readable description of a state.
func StateDescription(s State) string {
	switch s {
	case StateNotStarted:
		return "Not started - slices not yet requested"
	case StateStreaming:
		return "Streaming - partitions are being sliced and read"
	case StatePerPartition:
		return "Per partition - one cursor per partition"
	case StateGlobal:
		return "Global - single cursor for all partitions"
	case StateFinalized:
		return "Finalized - terminal state emitted"
	default:
		return "Unknown state"
	}
}
