package cursor

import (
	"errors"
	"testing"

	"github.com/vietddude/partsync/internal/core/domain"
)

func seqRecord(slice domain.StreamSlice, seq any) domain.Record {
	data := map[string]any{"body": "hello"}
	if seq != nil {
		data["seq"] = seq
	}
	return domain.Record{Stream: "events", Data: data, Slice: &slice}
}

func TestNumericCursor_StateAdvancesOnClose(t *testing.T) {
	c, err := NewNumericCursor(NumericCursorConfig{Field: NewCursorField("seq")}, nil)
	if err != nil {
		t.Fatalf("NewNumericCursor failed: %v", err)
	}
	slices := collectCursorSlices(c)
	if len(slices) != 1 || len(slices[0]) != 0 {
		t.Fatalf("expected one open slice, got %v", slices)
	}
	slice := domain.StreamSlice{CursorSlice: slices[0]}

	c.Observe(seqRecord(slice, 7))
	c.Observe(seqRecord(slice, int64(1234567890123456789)))
	c.Observe(seqRecord(slice, "oops"))
	if s := c.State(); !s.IsEmpty() {
		t.Errorf("expected no state before close, got %v", s)
	}

	if err := c.ClosePartition(slice); err != nil {
		t.Fatalf("ClosePartition failed: %v", err)
	}
	if got := c.State()["seq"]; got != int64(1234567890123456789) {
		t.Errorf("expected highest seq, got %#v", got)
	}
}

func TestNumericCursor_ResumesFromState(t *testing.T) {
	c, err := NewNumericCursor(NumericCursorConfig{Field: NewCursorField("seq")}, domain.CursorState{"seq": int64(100)})
	if err != nil {
		t.Fatalf("NewNumericCursor failed: %v", err)
	}
	slices := collectCursorSlices(c)
	if got := slices[0][SliceStartValueKey]; got != int64(100) {
		t.Errorf("expected slice to start at 100, got %#v", got)
	}
	slice := domain.StreamSlice{CursorSlice: slices[0]}

	tests := []struct {
		name string
		seq  any
		want bool
	}{
		{"below state", 99, false},
		{"at state", 100, true},
		{"above state", "101", true},
		{"missing", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.ShouldBeSynced(seqRecord(slice, tt.seq)); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}

	// a lower value never moves the state back
	c.Observe(seqRecord(slice, 50))
	if err := c.ClosePartition(slice); err != nil {
		t.Fatalf("ClosePartition failed: %v", err)
	}
	if got := c.State()["seq"]; got != int64(100) {
		t.Errorf("expected state to stay at 100, got %#v", got)
	}
}

func TestNumericCursor_Errors(t *testing.T) {
	if _, err := NewNumericCursor(NumericCursorConfig{}, nil); err == nil {
		t.Error("expected error without cursor field")
	}
	if _, err := NewNumericCursor(NumericCursorConfig{Field: NewCursorField("seq")}, domain.CursorState{"seq": "x"}); err == nil {
		t.Error("expected error for unparsable state")
	}

	c, _ := NewNumericCursor(NumericCursorConfig{Field: NewCursorField("seq")}, nil)
	if err := c.ClosePartition(domain.StreamSlice{}); !errors.Is(err, ErrUnknownSlice) {
		t.Errorf("expected ErrUnknownSlice before slices were generated, got %v", err)
	}
}
