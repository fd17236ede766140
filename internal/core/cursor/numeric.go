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

// SliceStartValueKey is the lower bound of a NumericCursor slice. It is
// absent when the partition has no state yet.
const SliceStartValueKey = "start_value"

// NumericCursorConfig configures NumericCursor instances.
type NumericCursorConfig struct {
	Field     CursorField
	Converter StateConverter // defaults to NumericConverter
	Logger    *slog.Logger
}

// NumericCursor is a PartitionCursor over an increasing numeric field such as
// a sequence id. A partition is read as one slice starting at the stored
// value, and the state moves to the highest value once that slice closes.
type NumericCursor struct {
	cfg        NumericCursorConfig
	initial    any
	hasInitial bool
	log        *slog.Logger

	mu            sync.Mutex
	generated     bool
	closed        bool
	mostRecent    any
	loggedMissing bool
}

// NewNumericCursor creates a cursor seeded with state.
func NewNumericCursor(cfg NumericCursorConfig, state domain.CursorState) (*NumericCursor, error) {
	if cfg.Field.Key == "" {
		return nil, errors.New("numeric cursor requires a cursor field")
	}
	if cfg.Converter == nil {
		cfg.Converter = NumericConverter{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	c := &NumericCursor{cfg: cfg, log: logger}
	if raw, ok := state[cfg.Field.Key]; ok && raw != nil {
		v, err := cfg.Converter.ParseValue(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid cursor state: %w", err)
		}
		c.initial, c.hasInitial = v, true
	}
	return c, nil
}

// StreamSlices yields the single slice of the partition.
func (c *NumericCursor) StreamSlices() iter.Seq[domain.CursorSlice] {
	return func(yield func(domain.CursorSlice) bool) {
		slice := domain.CursorSlice{}
		if c.hasInitial {
			slice[SliceStartValueKey] = c.cfg.Converter.OutputFormat(c.initial)
		}
		c.mu.Lock()
		c.generated = true
		c.mu.Unlock()
		yield(slice)
	}
}

func (c *NumericCursor) Observe(record domain.Record) {
	raw, ok := c.cfg.Field.Extract(record)
	if !ok {
		return
	}
	v, err := c.cfg.Converter.ParseValue(raw)
	if err != nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mostRecent == nil || c.cfg.Converter.Compare(v, c.mostRecent) > 0 {
		c.mostRecent = v
	}
}

func (c *NumericCursor) ClosePartition(slice domain.StreamSlice) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.generated {
		return fmt.Errorf("%w: %v", ErrUnknownSlice, slice.CursorSlice)
	}
	c.closed = true
	return nil
}

// State returns the highest observed value once the slice closed, never
// going below the initial state.
func (c *NumericCursor) State() domain.CursorState {
	c.mu.Lock()
	defer c.mu.Unlock()

	best, hasBest := c.initial, c.hasInitial
	if c.closed && c.mostRecent != nil && (!hasBest || c.cfg.Converter.Compare(c.mostRecent, best) > 0) {
		best, hasBest = c.mostRecent, true
	}
	if !hasBest {
		return domain.CursorState{}
	}
	return domain.CursorState{c.cfg.Field.Key: c.cfg.Converter.OutputFormat(best)}
}

// ShouldBeSynced passes records at or above the initial state. Records
// without a usable value always pass.
func (c *NumericCursor) ShouldBeSynced(record domain.Record) bool {
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
	v, err := c.cfg.Converter.ParseValue(raw)
	if err != nil || !c.hasInitial {
		return true
	}
	return c.cfg.Converter.Compare(v, c.initial) >= 0
}

// NumericCursorFactory creates NumericCursor instances sharing one config.
// Numeric cursors have no time axis, so the runtime lookback is ignored.
type NumericCursorFactory struct {
	Config NumericCursorConfig
}

// NewNumericCursorFactory creates a factory for the given config.
func NewNumericCursorFactory(cfg NumericCursorConfig) *NumericCursorFactory {
	return &NumericCursorFactory{Config: cfg}
}

func (f *NumericCursorFactory) Create(state domain.CursorState, _ time.Duration) (PartitionCursor, error) {
	return NewNumericCursor(f.Config, state)
}
