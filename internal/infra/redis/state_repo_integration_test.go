//go:build integration

package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/vietddude/partsync/internal/core/domain"
	"github.com/vietddude/partsync/internal/infra/storage"
)

// setupRedis starts a Redis container and returns a client
func setupRedis(t *testing.T) (*Client, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	endpoint, err := redisContainer.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("Failed to get Redis endpoint: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: endpoint})
	if err := rdb.Ping(ctx).Err(); err != nil {
		t.Fatalf("Failed to connect to Redis: %v", err)
	}

	cleanup := func() {
		rdb.Close()
		redisContainer.Terminate(ctx)
	}
	return NewClientFromRedis(rdb), cleanup
}

func TestStateRepo_Integration(t *testing.T) {
	client, cleanup := setupRedis(t)
	defer cleanup()

	repo := NewStateRepo(client, "partsync:changes")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	changes, err := repo.Subscribe(ctx)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	if got, err := repo.Get(ctx, "comments", "team"); err != nil || got != nil {
		t.Fatalf("expected no state, got %v, %v", got, err)
	}

	state := domain.ManagerState{
		UseGlobalCursor: true,
		State:           domain.CursorState{"updated_at": "2024-01-10T00:00:00Z"},
		LookbackWindow:  5,
	}
	if err := repo.Save(ctx, "comments", "team", state); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	select {
	case change := <-changes:
		if change.Stream != "comments" || change.Namespace != "team" || !change.UseGlobalCursor {
			t.Errorf("unexpected change %+v", change)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for state change")
	}

	got, err := repo.Get(ctx, "comments", "team")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got["use_global_cursor"] != true || got["lookback_window"] != int64(5) {
		t.Errorf("unexpected state %v", got)
	}

	if err := repo.Delete(ctx, "comments", "team"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := repo.Delete(ctx, "comments", "team"); !errors.Is(err, storage.ErrStateNotFound) {
		t.Errorf("expected ErrStateNotFound, got %v", err)
	}
}
