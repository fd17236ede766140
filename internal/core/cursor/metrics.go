package cursor

import (
	"time"
)

// Stats holds manager bookkeeping counters.
type Stats struct {
	Phase               State
	Mode                State
	PartitionsCreated   int
	PartitionsRetained  int
	PartitionsOpen      int
	EvictedFinished     int
	EvictedUnfinished   int
	DuplicatePartitions int
	StatesEmitted       int
	LastEmissionAt      *time.Time
	LastGlobalSwitchAt  *time.Time
	TransitionHistory   []Transition
	SyncedSomeData      bool
	ParentStateAdvanced int
	PendingParentStates int
	LookbackWindow      int64 // seconds
}

// statsCollector keeps counters that are not derivable from live bookkeeping.
type statsCollector struct {
	evictedFinished     int
	evictedUnfinished   int
	duplicates          int
	statesEmitted       int
	parentAdvances      int
	lastEmissionAt      *time.Time
	lastGlobalSwitchAt  *time.Time
	transitions         []Transition // recent state changes
	maxTransitionRecord int
}

func newStatsCollector() *statsCollector {
	return &statsCollector{
		transitions:         make([]Transition, 0, 10),
		maxTransitionRecord: 10,
	}
}

// RecordTransition records a state transition.
func (sc *statsCollector) RecordTransition(t Transition) {
	// Keep only last N transitions
	if len(sc.transitions) >= sc.maxTransitionRecord {
		copy(sc.transitions, sc.transitions[1:])
		sc.transitions[len(sc.transitions)-1] = t
	} else {
		sc.transitions = append(sc.transitions, t)
	}

	if t.To == StateGlobal {
		ts := t.Timestamp
		sc.lastGlobalSwitchAt = &ts
	}
}

// RecordEmission records a published state snapshot.
func (sc *statsCollector) RecordEmission(at time.Time) {
	sc.statesEmitted++
	sc.lastEmissionAt = &at
}

func (sc *statsCollector) fill(s *Stats) {
	s.EvictedFinished = sc.evictedFinished
	s.EvictedUnfinished = sc.evictedUnfinished
	s.DuplicatePartitions = sc.duplicates
	s.StatesEmitted = sc.statesEmitted
	s.ParentStateAdvanced = sc.parentAdvances
	s.LastEmissionAt = sc.lastEmissionAt
	s.LastGlobalSwitchAt = sc.lastGlobalSwitchAt
	s.TransitionHistory = make([]Transition, len(sc.transitions))
	copy(s.TransitionHistory, sc.transitions)
}
