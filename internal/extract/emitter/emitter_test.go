package emitter

import (
	"context"
	"errors"
	"testing"

	"github.com/vietddude/partsync/internal/core/domain"
	"github.com/vietddude/partsync/internal/infra/storage/memory"
)

// MockEmitter for testing
type MockEmitter struct {
	Published []domain.ManagerState
	Err       error
	Closed    bool
}

func (m *MockEmitter) Publish(ctx context.Context, streamName, namespace string, state domain.ManagerState) error {
	if m.Err != nil {
		return m.Err
	}
	m.Published = append(m.Published, state)
	return nil
}

func (m *MockEmitter) Close() error {
	m.Closed = true
	return nil
}

func TestRepositoryEmitter_PersistsLatestState(t *testing.T) {
	repo := memory.NewStateRepo()
	e := NewRepositoryEmitter(repo)
	ctx := context.Background()

	for _, lookback := range []int64{1, 2} {
		if err := e.Publish(ctx, "comments", "", domain.ManagerState{LookbackWindow: lookback}); err != nil {
			t.Fatalf("Publish failed: %v", err)
		}
	}

	got, err := repo.Get(ctx, "comments", "")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got["lookback_window"] != int64(2) {
		t.Errorf("expected latest snapshot, got %v", got)
	}
}

func TestFanout_PublishesToAll(t *testing.T) {
	failing := &MockEmitter{Err: errors.New("broker down")}
	ok := &MockEmitter{}
	fanout := NewFanout(failing, ok)

	err := fanout.Publish(context.Background(), "comments", "", domain.ManagerState{})
	if err == nil {
		t.Fatal("expected joined error")
	}
	if !errors.Is(err, failing.Err) {
		t.Errorf("expected broker error in %v", err)
	}
	// a failing emitter does not stop the others
	if len(ok.Published) != 1 {
		t.Errorf("expected 1 published snapshot, got %d", len(ok.Published))
	}

	if err := fanout.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if !failing.Closed || !ok.Closed {
		t.Error("expected all emitters closed")
	}
}

func TestMemory(t *testing.T) {
	m := &Memory{}
	if _, ok := m.Last(); ok {
		t.Error("expected no snapshot")
	}
	_ = m.Publish(context.Background(), "s", "", domain.ManagerState{LookbackWindow: 1})
	_ = m.Publish(context.Background(), "s", "", domain.ManagerState{LookbackWindow: 2})

	last, ok := m.Last()
	if !ok || last.LookbackWindow != 2 {
		t.Errorf("unexpected last snapshot %+v", last)
	}
	if len(m.States()) != 2 {
		t.Errorf("expected 2 snapshots, got %d", len(m.States()))
	}
}

func TestLogEmitter(t *testing.T) {
	e := NewLogEmitter(nil)
	if err := e.Publish(context.Background(), "s", "", domain.ManagerState{}); err != nil {
		t.Errorf("Publish failed: %v", err)
	}
}
