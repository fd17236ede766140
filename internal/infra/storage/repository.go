package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vietddude/partsync/internal/core/domain"
)

var (
	// ErrStateNotFound is returned by Delete when no state is stored.
	ErrStateNotFound = errors.New("state not found")
)

// StateRepository persists the state snapshot of a stream.
type StateRepository interface {
	// Get returns the stored state as a generic mapping, nil when absent.
	Get(ctx context.Context, stream, namespace string) (map[string]any, error)

	// Save replaces the stored state
	Save(ctx context.Context, stream, namespace string, state domain.ManagerState) error

	// Delete removes the stored state
	Delete(ctx context.Context, stream, namespace string) error

	// Close releases the underlying connection
	Close() error
}

// EncodeState serializes a state snapshot for storage.
func EncodeState(state domain.ManagerState) ([]byte, error) {
	data, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal state: %w", err)
	}
	return data, nil
}

// DecodeState parses a stored state snapshot into a generic mapping.
// Partition ids survive the round trip exactly.
func DecodeState(data []byte) (map[string]any, error) {
	return domain.DecodeMap(data)
}
