package cursor

import (
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"sync"
	"time"

	"github.com/vietddude/partsync/internal/core/domain"
)

// Slice boundary keys of a DatetimeCursor slice.
const (
	SliceStartKey = "start_time"
	SliceEndKey   = "end_time"
)

// ErrUnknownSlice is returned when closing a slice the cursor never produced.
var ErrUnknownSlice = errors.New("unknown cursor slice")

// DatetimeCursorConfig configures DatetimeCursor instances.
type DatetimeCursorConfig struct {
	Field       CursorField
	Converter   TimeConverter
	Start       time.Time        // lower bound when there is no state
	End         func() time.Time // upper bound provider, defaults to time.Now
	Step        time.Duration    // slice width, 0 = single slice
	Granularity time.Duration    // smallest cursor increment, defaults to 1s
	Lookback    time.Duration    // configured lookback
	Logger      *slog.Logger
}

// DatetimeCursor is a PartitionCursor over a datetime cursor field. It splits
// [lower, upper] into slices and advances its state only over the contiguous
// prefix of closed slices.
type DatetimeCursor struct {
	cfg        DatetimeCursorConfig
	lookback   time.Duration
	initial    time.Time
	hasInitial bool
	log        *slog.Logger

	mu            sync.Mutex
	lower         time.Time
	upper         time.Time
	bounded       bool
	order         []string // slice keys in generation order
	known         map[string]bool
	closed        map[string]bool
	mostRecent    map[string]time.Time
	loggedMissing bool
}

// NewDatetimeCursor creates a cursor seeded with state. The effective
// lookback is the larger of the configured and runtime lookback.
func NewDatetimeCursor(
	cfg DatetimeCursorConfig,
	state domain.CursorState,
	runtimeLookback time.Duration,
) (*DatetimeCursor, error) {
	if cfg.Converter == nil {
		return nil, errors.New("datetime cursor requires a converter")
	}
	if cfg.End == nil {
		cfg.End = time.Now
	}
	if cfg.Granularity <= 0 {
		cfg.Granularity = time.Second
	}
	if cfg.Step > 0 && cfg.Step < cfg.Granularity {
		return nil, fmt.Errorf("step %s is smaller than granularity %s", cfg.Step, cfg.Granularity)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	c := &DatetimeCursor{
		cfg:        cfg,
		lookback:   max(cfg.Lookback, runtimeLookback),
		log:        logger,
		known:      make(map[string]bool),
		closed:     make(map[string]bool),
		mostRecent: make(map[string]time.Time),
	}

	if raw, ok := state[cfg.Field.Key]; ok && raw != nil {
		t, err := cfg.Converter.ParseTime(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid cursor state: %w", err)
		}
		c.initial = t
		c.hasInitial = true
	}

	return c, nil
}

// bounds computes the slicing range once. Caller holds c.mu.
func (c *DatetimeCursor) bounds() (time.Time, time.Time) {
	if c.bounded {
		return c.lower, c.upper
	}
	lower := c.cfg.Start
	if c.hasInitial {
		candidate := c.initial.Add(-c.lookback)
		if lower.IsZero() || candidate.After(lower) {
			lower = candidate
		}
	}
	c.lower = lower
	c.upper = c.cfg.End().UTC()
	c.bounded = true
	return c.lower, c.upper
}

// StreamSlices yields the slices between the lower and upper bound.
func (c *DatetimeCursor) StreamSlices() iter.Seq[domain.CursorSlice] {
	return func(yield func(domain.CursorSlice) bool) {
		c.mu.Lock()
		lower, upper := c.bounds()
		c.mu.Unlock()

		if lower.After(upper) {
			return
		}

		start := lower
		for {
			end := upper
			if c.cfg.Step > 0 {
				if candidate := start.Add(c.cfg.Step - c.cfg.Granularity); candidate.Before(upper) {
					end = candidate
				}
			}

			slice := domain.CursorSlice{
				SliceStartKey: c.cfg.Converter.FormatTime(start),
				SliceEndKey:   c.cfg.Converter.FormatTime(end),
			}
			key := sliceKey(slice)
			c.mu.Lock()
			c.order = append(c.order, key)
			c.known[key] = true
			c.mu.Unlock()

			if !yield(slice) {
				return
			}
			if !end.Before(upper) {
				return
			}
			start = end.Add(c.cfg.Granularity)
			if start.After(upper) {
				return
			}
		}
	}
}

// Observe tracks the most recent cursor value of the record's slice.
func (c *DatetimeCursor) Observe(record domain.Record) {
	if record.Slice == nil {
		return
	}
	raw, ok := c.cfg.Field.Extract(record)
	if !ok {
		return
	}
	t, err := c.cfg.Converter.ParseTime(raw)
	if err != nil {
		return
	}

	key := sliceKey(record.Slice.CursorSlice)
	c.mu.Lock()
	defer c.mu.Unlock()
	if current, ok := c.mostRecent[key]; !ok || t.After(current) {
		c.mostRecent[key] = t
	}
}

// ClosePartition marks a slice as fully read.
func (c *DatetimeCursor) ClosePartition(slice domain.StreamSlice) error {
	key := sliceKey(slice.CursorSlice)

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.known[key] {
		return fmt.Errorf("%w: %s", ErrUnknownSlice, key)
	}
	c.closed[key] = true
	return nil
}

// State returns the most recent record value over the contiguous prefix of
// closed slices, never going below the initial state.
func (c *DatetimeCursor) State() domain.CursorState {
	c.mu.Lock()
	defer c.mu.Unlock()

	best, hasBest := c.initial, c.hasInitial
	for _, key := range c.order {
		if !c.closed[key] {
			break
		}
		if t, ok := c.mostRecent[key]; ok && (!hasBest || t.After(best)) {
			best, hasBest = t, true
		}
	}

	if !hasBest {
		return domain.CursorState{}
	}
	return domain.CursorState{c.cfg.Field.Key: c.cfg.Converter.FormatTime(best)}
}

// ShouldBeSynced reports whether the record's cursor value lies within the
// cursor's range. Records without a usable cursor value always pass.
func (c *DatetimeCursor) ShouldBeSynced(record domain.Record) bool {
	raw, ok := c.cfg.Field.Extract(record)
	if !ok {
		c.mu.Lock()
		if !c.loggedMissing {
			c.loggedMissing = true
			c.log.Warn("Record has no cursor value, syncing it anyway", "cursor_field", c.cfg.Field.Key)
		}
		c.mu.Unlock()
		return true
	}
	t, err := c.cfg.Converter.ParseTime(raw)
	if err != nil {
		return true
	}

	c.mu.Lock()
	lower, upper := c.bounds()
	c.mu.Unlock()
	return !t.Before(lower) && !t.After(upper)
}

func sliceKey(s domain.CursorSlice) string {
	return fmt.Sprintf("%v|%v", s[SliceStartKey], s[SliceEndKey])
}

// DatetimeCursorFactory creates DatetimeCursor instances sharing one config.
type DatetimeCursorFactory struct {
	Config DatetimeCursorConfig
}

// NewDatetimeCursorFactory creates a factory for the given config.
func NewDatetimeCursorFactory(cfg DatetimeCursorConfig) *DatetimeCursorFactory {
	return &DatetimeCursorFactory{Config: cfg}
}

// Create builds a cursor from state and a runtime lookback.
func (f *DatetimeCursorFactory) Create(
	state domain.CursorState,
	lookback time.Duration,
) (PartitionCursor, error) {
	return NewDatetimeCursor(f.Config, state, lookback)
}
