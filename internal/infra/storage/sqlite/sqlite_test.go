package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/vietddude/partsync/internal/core/domain"
	"github.com/vietddude/partsync/internal/infra/storage"
)

func TestStateRepo(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.db")

	repo, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	if got, err := repo.Get(ctx, "comments", "ns"); err != nil || got != nil {
		t.Fatalf("expected no state, got %v, %v", got, err)
	}

	state := domain.ManagerState{
		States: []domain.PartitionState{{
			Partition: domain.Partition{"id": 7},
			Cursor:    domain.CursorState{"updated_at": "2024-01-10T00:00:00Z"},
		}},
		State:          domain.CursorState{"updated_at": "2024-01-10T00:00:00Z"},
		LookbackWindow: 42,
		ParentState:    map[string]any{"updated_at": "2024-01-09T00:00:00Z"},
	}
	if err := repo.Save(ctx, "comments", "ns", state); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	state.LookbackWindow = 43
	if err := repo.Save(ctx, "comments", "ns", state); err != nil {
		t.Fatalf("second Save failed: %v", err)
	}
	if err := repo.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// state survives reopening
	repo, err = Open(ctx, path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer repo.Close()

	got, err := repo.Get(ctx, "comments", "ns")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got["lookback_window"] != int64(43) {
		t.Errorf("expected lookback_window 43, got %v", got["lookback_window"])
	}
	states, _ := got["states"].([]any)
	if len(states) != 1 {
		t.Fatalf("expected 1 partition state, got %v", got["states"])
	}
	parent, _ := got["parent_state"].(map[string]any)
	if parent["updated_at"] != "2024-01-09T00:00:00Z" {
		t.Errorf("unexpected parent state %v", got["parent_state"])
	}

	if err := repo.Delete(ctx, "comments", "ns"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := repo.Delete(ctx, "comments", "ns"); !errors.Is(err, storage.ErrStateNotFound) {
		t.Errorf("expected ErrStateNotFound, got %v", err)
	}
}
