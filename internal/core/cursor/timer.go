package cursor

import (
	"errors"
	"math"
	"time"
)

var (
	// ErrTimerRunning is returned when Start is called on a running timer.
	ErrTimerRunning = errors.New("timer already running")

	// ErrTimerNotStarted is returned when Finish is called before Start.
	ErrTimerNotStarted = errors.New("timer not started")
)

// Timer measures the duration of a sync, used as the lookback window of the
// next one.
type Timer struct {
	now   func() time.Time
	start time.Time
	on    bool
}

// NewTimer creates a stopped timer.
func NewTimer() *Timer {
	return &Timer{now: time.Now}
}

// Start records the start instant.
func (t *Timer) Start() error {
	if t.on {
		return ErrTimerRunning
	}
	t.start = t.now()
	t.on = true
	return nil
}

// Finish stops the timer and returns the elapsed whole seconds, rounded up.
func (t *Timer) Finish() (int64, error) {
	if !t.on {
		return 0, ErrTimerNotStarted
	}
	t.on = false
	// time.Time from time.Now carries a monotonic reading, Sub uses it
	elapsed := t.now().Sub(t.start)
	return int64(math.Ceil(elapsed.Seconds())), nil
}

// IsRunning reports whether Start was called without a matching Finish.
func (t *Timer) IsRunning() bool {
	return t.on
}
