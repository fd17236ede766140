package domain

// Partition identifies one independently paginated subdivision of a stream,
// e.g. {"parent_id": "123"}. Attribute order carries no meaning.
type Partition map[string]any

// CursorSlice is the opaque slice token produced by a per-partition cursor,
// e.g. {"start_time": "...", "end_time": "..."}.
type CursorSlice map[string]any

// StreamSlice is one unit of read work handed to the worker pool.
type StreamSlice struct {
	Partition   Partition
	CursorSlice CursorSlice
	ExtraFields map[string]any
}

// Record is a single extracted record together with the slice it was read from.
type Record struct {
	Stream string
	Data   map[string]any
	Slice  *StreamSlice
}
