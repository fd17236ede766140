// Package cursor tracks incremental read progress across many concurrently
// read partitions of a stream.
//
// # Purpose
//
// A partitioned stream (one partition per parent entity, for example) is read
// by a worker pool. Each partition keeps its own cursor so a resumed sync only
// re-reads what changed, while a single global cursor is maintained alongside
// as a fallback:
//   - Per-partition cursors: fine grained progress, one per partition key
//   - Global cursor: max cursor value seen across all partitions
//   - Parent state: progress of the partition source itself, only advanced
//     once every partition created before it has closed
//
// # Key Features
//
// Bounded memory - at most DefaultMaxPartitionsNumber partition cursors are
// retained. Finished partitions are evicted first, then the oldest one.
//
// Global fallback - once more than SwitchToGlobalLimit distinct partitions
// were created the manager switches to global cursor mode for the rest of the
// sync. It never switches back:
//
//	PER_PARTITION → GLOBAL (valid)
//	GLOBAL → PER_PARTITION (invalid)
//
// Safe parent state - parent state advances as a watermark ordered by
// partition creation, not by completion.
//
// # Quick Start
//
//	manager, _ := cursor.NewManager(cursor.Options{
//	    StreamName:  "comments",
//	    CursorField: cursor.NewCursorField("updated_at"),
//	    Converter:   cursor.NewDatetimeConverter(time.RFC3339),
//	    Factory:     factory,
//	    Source:      source,
//	    Emitter:     emitter,
//	}, initialState)
//
//	slices, _ := manager.StreamSlices(ctx)
//	for slice, err := range slices {
//	    // hand slice to a worker; the worker calls
//	    // manager.Observe(record) per record and
//	    // manager.ClosePartition(ctx, slice) when done
//	}
//	manager.EnsureAtLeastOneStateEmitted(ctx)
//
// # Package Structure
//
//   - manager.go    - Manager: partition bookkeeping, global cursor, parent state
//   - state.go      - Lifecycle phases, cursor modes and valid transitions
//   - datetime.go   - DatetimeCursor, the sliced per-partition cursor over time values
//   - numeric.go    - NumericCursor, a single slice per-partition cursor over sequence values
//   - converter.go  - State converters (datetime, epoch, numeric)
//   - serializer.go - Partition key serialization
//   - timer.go      - Elapsed time used as lookback window
//   - metrics.go    - In-memory stats for health reporting
package cursor

import (
	"context"
	"errors"
	"iter"
	"time"

	"github.com/vietddude/partsync/internal/core/domain"
)

var (
	// ErrSlicesAlreadyStreamed is returned when StreamSlices is called twice.
	ErrSlicesAlreadyStreamed = errors.New("stream slices already generated")

	// ErrUnknownPartition is returned for a partition that was never registered.
	ErrUnknownPartition = errors.New("unknown partition")

	// ErrPartitionOverClosed is returned when a partition is closed more times than it had slices.
	ErrPartitionOverClosed = errors.New("partition closed more times than slices were emitted")

	// ErrNoAssociatedSlice is returned for a record that does not refer to a slice.
	ErrNoAssociatedSlice = errors.New("record has no associated slice")

	// ErrInvalidPartition is returned for a partition holding a string that
	// is not valid UTF-8.
	ErrInvalidPartition = errors.New("partition is not valid UTF-8")
)

// PartitionSource enumerates partitions and reports its own resumable state.
type PartitionSource interface {
	// StreamPartitions lazily yields partitions. Single pass.
	StreamPartitions(ctx context.Context) iter.Seq2[domain.StreamSlice, error]

	// CurrentParentState returns the source state reflecting progress so far.
	CurrentParentState() map[string]any
}

// ParentStateSetter is implemented by sources that can resume from a parent state.
type ParentStateSetter interface {
	SetInitialParentState(state map[string]any)
}

// PartitionCursor tracks progress for exactly one partition.
type PartitionCursor interface {
	// StreamSlices lazily yields the cursor slices of the partition. Single pass.
	StreamSlices() iter.Seq[domain.CursorSlice]

	// Observe records the cursor value of a record read from this partition.
	Observe(record domain.Record)

	// ClosePartition marks one slice of the partition as fully read.
	ClosePartition(slice domain.StreamSlice) error

	// State returns the resumable state of the partition.
	State() domain.CursorState

	// ShouldBeSynced reports whether a record passes the cursor's filter.
	ShouldBeSynced(record domain.Record) bool
}

// CursorFactory builds partition cursors.
type CursorFactory interface {
	Create(state domain.CursorState, lookback time.Duration) (PartitionCursor, error)
}

// Emitter receives finalized state snapshots.
type Emitter interface {
	Publish(ctx context.Context, streamName, namespace string, state domain.ManagerState) error
}
