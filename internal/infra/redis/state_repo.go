package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vietddude/partsync/internal/core/domain"
	"github.com/vietddude/partsync/internal/extract/metrics"
	"github.com/vietddude/partsync/internal/infra/storage"
)

// StateChange is published on the change feed after every save.
type StateChange struct {
	Stream          string `json:"stream"`
	Namespace       string `json:"namespace"`
	UseGlobalCursor bool   `json:"use_global_cursor"`
	SavedAt         int64  `json:"saved_at"`
}

// StateRepo implements storage.StateRepository using Redis. Saves also
// announce the change on a pub/sub channel so consumers can follow progress.
type StateRepo struct {
	rdb     *redis.Client
	channel string
}

// NewStateRepo creates a new Redis-backed state repository.
func NewStateRepo(client *Client, channel string) *StateRepo {
	return &StateRepo{
		rdb:     client.rdb,
		channel: channel,
	}
}

// Save stores the snapshot and publishes the change in one transaction.
func (r *StateRepo) Save(
	ctx context.Context,
	stream, namespace string,
	state domain.ManagerState,
) error {
	defer observe("save", time.Now())

	data, err := storage.EncodeState(state)
	if err != nil {
		return err
	}

	pipe := r.rdb.TxPipeline()
	pipe.Set(ctx, stateKey(stream, namespace), data, 0)
	if r.channel != "" {
		change, err := json.Marshal(StateChange{
			Stream:          stream,
			Namespace:       namespace,
			UseGlobalCursor: state.UseGlobalCursor,
			SavedAt:         time.Now().Unix(),
		})
		if err != nil {
			return fmt.Errorf("failed to marshal state change: %w", err)
		}
		pipe.Publish(ctx, r.channel, change)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save state: %w", err)
	}
	return nil
}

// Get retrieves the stored snapshot.
func (r *StateRepo) Get(ctx context.Context, stream, namespace string) (map[string]any, error) {
	defer observe("get", time.Now())

	data, err := r.rdb.Get(ctx, stateKey(stream, namespace)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get state: %w", err)
	}
	return storage.DecodeState(data)
}

// Delete removes the stored snapshot.
func (r *StateRepo) Delete(ctx context.Context, stream, namespace string) error {
	defer observe("delete", time.Now())

	n, err := r.rdb.Del(ctx, stateKey(stream, namespace)).Result()
	if err != nil {
		return fmt.Errorf("failed to delete state: %w", err)
	}
	if n == 0 {
		return storage.ErrStateNotFound
	}
	return nil
}

// Subscribe follows the change feed until ctx is done.
func (r *StateRepo) Subscribe(ctx context.Context) (<-chan StateChange, error) {
	if r.channel == "" {
		return nil, errors.New("no change channel configured")
	}
	sub := r.rdb.Subscribe(ctx, r.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	out := make(chan StateChange)
	go func() {
		defer close(out)
		defer sub.Close()
		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var change StateChange
				if err := json.Unmarshal([]byte(msg.Payload), &change); err != nil {
					continue
				}
				select {
				case out <- change:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Close closes the underlying connection.
func (r *StateRepo) Close() error {
	return r.rdb.Close()
}

func observe(operation string, start time.Time) {
	metrics.StateRepoLatency.WithLabelValues("redis", operation).Observe(time.Since(start).Seconds())
}
