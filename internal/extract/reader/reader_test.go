package reader

import (
	"context"
	"errors"
	"iter"
	"sync"
	"testing"
	"time"

	"github.com/vietddude/partsync/internal/core/cursor"
	"github.com/vietddude/partsync/internal/core/domain"
	"github.com/vietddude/partsync/internal/extract/emitter"
)

type staticSource struct {
	partitions []domain.Partition
}

func (s *staticSource) StreamPartitions(ctx context.Context) iter.Seq2[domain.StreamSlice, error] {
	return func(yield func(domain.StreamSlice, error) bool) {
		for _, p := range s.partitions {
			if !yield(domain.StreamSlice{Partition: p}, nil) {
				return
			}
		}
	}
}

func (s *staticSource) CurrentParentState() map[string]any { return nil }

// mapReader serves records keyed by partition id
type mapReader struct {
	records map[int][]map[string]any
	failOn  int
}

func (r *mapReader) ReadRecords(ctx context.Context, slice domain.StreamSlice) iter.Seq2[map[string]any, error] {
	return func(yield func(map[string]any, error) bool) {
		id := slice.Partition["id"].(int)
		if id == r.failOn {
			yield(nil, errors.New("page fetch failed"))
			return
		}
		for _, rec := range r.records[id] {
			if !yield(rec, nil) {
				return
			}
		}
	}
}

func newManager(t *testing.T, ids []int, sink *emitter.Memory) *cursor.Manager {
	t.Helper()
	parts := make([]domain.Partition, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, domain.Partition{"id": id})
	}
	conv := cursor.NewDatetimeConverter(time.RFC3339)
	field := cursor.NewCursorField("updated_at")
	m, err := cursor.NewManager(cursor.Options{
		StreamName:  "comments",
		CursorField: field,
		Converter:   conv,
		Factory: cursor.NewDatetimeCursorFactory(cursor.DatetimeCursorConfig{
			Field:     field,
			Converter: conv,
			Start:     time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			End:       func() time.Time { return time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC) },
		}),
		Source:  &staticSource{partitions: parts},
		Emitter: sink,
	}, nil)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	return m
}

func TestReader_Run(t *testing.T) {
	sink := &emitter.Memory{}
	m := newManager(t, []int{1, 2, 3}, sink)
	records := &mapReader{records: map[int][]map[string]any{
		1: {{"updated_at": "2024-01-05T00:00:00Z"}, {"updated_at": "2023-06-01T00:00:00Z"}},
		2: {{"updated_at": "2024-01-07T00:00:00Z"}},
		3: {},
	}}

	var mu sync.Mutex
	var handled []domain.Record
	handler := func(ctx context.Context, rec domain.Record) error {
		mu.Lock()
		defer mu.Unlock()
		handled = append(handled, rec)
		return nil
	}

	r := New(Config{Stream: "comments", Workers: 2}, m, records, handler)
	result, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if result.Slices != 3 || result.Records != 2 || result.Skipped != 1 {
		t.Errorf("unexpected result %+v", result)
	}
	if len(handled) != 2 {
		t.Errorf("expected 2 handled records, got %d", len(handled))
	}

	final, ok := sink.Last()
	if !ok {
		t.Fatal("expected a final state")
	}
	if got := final.State["updated_at"]; got != "2024-01-07T00:00:00Z" {
		t.Errorf("expected global cursor 2024-01-07T00:00:00Z, got %v", got)
	}
}

func TestReader_ReadErrorStillEmitsState(t *testing.T) {
	sink := &emitter.Memory{}
	m := newManager(t, []int{1, 2}, sink)
	records := &mapReader{failOn: 2, records: map[int][]map[string]any{
		1: {{"updated_at": "2024-01-05T00:00:00Z"}},
	}}

	r := New(Config{Stream: "comments", Workers: 1}, m, records, nil)
	_, err := r.Run(context.Background())
	if err == nil {
		t.Fatal("expected read error")
	}

	if _, ok := sink.Last(); !ok {
		t.Error("expected final state emitted after failure")
	}
	// partition 2 never closed, so the global cursor is not committed
	if final, _ := sink.Last(); final.State != nil {
		t.Errorf("expected no committed global cursor, got %v", final.State)
	}
}

func TestReader_HandlerError(t *testing.T) {
	sink := &emitter.Memory{}
	m := newManager(t, []int{1}, sink)
	records := &mapReader{records: map[int][]map[string]any{
		1: {{"updated_at": "2024-01-05T00:00:00Z"}},
	}}
	boom := errors.New("sink full")

	r := New(Config{Stream: "comments"}, m, records, func(context.Context, domain.Record) error {
		return boom
	})
	if _, err := r.Run(context.Background()); !errors.Is(err, boom) {
		t.Errorf("expected handler error, got %v", err)
	}
}

// failingSource yields its partitions, waits for release, then fails.
type failingSource struct {
	staticSource
	release <-chan struct{}
	err     error
}

func (s *failingSource) StreamPartitions(ctx context.Context) iter.Seq2[domain.StreamSlice, error] {
	return func(yield func(domain.StreamSlice, error) bool) {
		for slice, err := range s.staticSource.StreamPartitions(ctx) {
			if !yield(slice, err) {
				return
			}
		}
		select {
		case <-s.release:
		case <-time.After(5 * time.Second):
		}
		yield(domain.StreamSlice{}, s.err)
	}
}

func TestReader_SourceAndWorkerErrorsAreJoined(t *testing.T) {
	sink := &emitter.Memory{}
	failed := make(chan struct{})
	sourceErr := errors.New("parent stream failed")
	workerErr := errors.New("sink full")

	conv := cursor.NewDatetimeConverter(time.RFC3339)
	field := cursor.NewCursorField("updated_at")
	m, err := cursor.NewManager(cursor.Options{
		StreamName:  "comments",
		CursorField: field,
		Converter:   conv,
		Factory: cursor.NewDatetimeCursorFactory(cursor.DatetimeCursorConfig{
			Field:     field,
			Converter: conv,
			Start:     time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			End:       func() time.Time { return time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC) },
		}),
		Source: &failingSource{
			staticSource: staticSource{partitions: []domain.Partition{{"id": 1}}},
			release:      failed,
			err:          sourceErr,
		},
		Emitter: sink,
	}, nil)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	records := &mapReader{records: map[int][]map[string]any{
		1: {{"updated_at": "2024-01-05T00:00:00Z"}},
	}}

	var once sync.Once
	r := New(Config{Stream: "comments", Workers: 2}, m, records, func(context.Context, domain.Record) error {
		once.Do(func() { close(failed) })
		return workerErr
	})

	_, err = r.Run(context.Background())
	if !errors.Is(err, sourceErr) {
		t.Errorf("expected source error, got %v", err)
	}
	if !errors.Is(err, workerErr) {
		t.Errorf("expected worker error, got %v", err)
	}
}
