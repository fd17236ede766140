package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Field names of the persisted state layout.
const (
	KeyUseGlobalCursor = "use_global_cursor"
	KeyStates          = "states"
	KeyState           = "state"
	KeyLookbackWindow  = "lookback_window"
	KeyParentState     = "parent_state"
)

// CursorState maps a single cursor field name to its value, meaning
// "everything up to and including this value has been read".
type CursorState map[string]any

// PartitionState is the persisted cursor of one partition.
type PartitionState struct {
	Partition Partition   `json:"partition"`
	Cursor    CursorState `json:"cursor"`
}

// ManagerState is the externally visible snapshot of a partitioned cursor.
type ManagerState struct {
	UseGlobalCursor bool             `json:"use_global_cursor"`
	States          []PartitionState `json:"states,omitempty"`
	State           CursorState      `json:"state,omitempty"`
	LookbackWindow  int64            `json:"lookback_window"`
	ParentState     map[string]any   `json:"parent_state,omitempty"`
}

// ToMap converts the snapshot into the nested mapping used on the wire.
func (s ManagerState) ToMap() (map[string]any, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal state: %w", err)
	}
	return DecodeMap(data)
}

// DecodeMap parses a JSON object keeping integers exact. Integral numbers
// decode as int64, other numbers as float64.
func DecodeMap(data []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var out map[string]any
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal state: %w", err)
	}
	for k, v := range out {
		out[k] = NormalizeNumbers(v)
	}
	return out, nil
}

// NormalizeNumbers replaces json.Number values, also inside nested maps and
// slices, with int64 when integral and float64 otherwise.
func NormalizeNumbers(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case map[string]any:
		for k, inner := range t {
			t[k] = NormalizeNumbers(inner)
		}
		return t
	case []any:
		for i := range t {
			t[i] = NormalizeNumbers(t[i])
		}
		return t
	default:
		return v
	}
}

// IsEmpty reports whether the cursor state carries no value.
func (c CursorState) IsEmpty() bool {
	return len(c) == 0
}

// CloneMap deep-copies nested maps and slices so snapshots never alias
// live bookkeeping.
func CloneMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return CloneMap(t)
	case CursorState:
		return CursorState(CloneMap(t))
	case Partition:
		return Partition(CloneMap(t))
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = cloneValue(t[i])
		}
		return out
	default:
		return v
	}
}
