package memory

import (
	"context"
	"sync"

	"github.com/vietddude/partsync/internal/core/domain"
	"github.com/vietddude/partsync/internal/infra/storage"
)

// StateRepo keeps encoded state snapshots in memory. Snapshots go through
// the same encoding as the durable stores, so a restore sees what a real
// backend would return.
type StateRepo struct {
	states map[string][]byte
	mu     sync.RWMutex
}

func NewStateRepo() *StateRepo {
	return &StateRepo{states: make(map[string][]byte)}
}

func key(stream, namespace string) string {
	return namespace + "/" + stream
}

func (r *StateRepo) Get(ctx context.Context, stream, namespace string) (map[string]any, error) {
	r.mu.RLock()
	data, ok := r.states[key(stream, namespace)]
	r.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return storage.DecodeState(data)
}

func (r *StateRepo) Save(ctx context.Context, stream, namespace string, state domain.ManagerState) error {
	data, err := storage.EncodeState(state)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states[key(stream, namespace)] = data
	return nil
}

func (r *StateRepo) Delete(ctx context.Context, stream, namespace string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := key(stream, namespace)
	if _, ok := r.states[k]; !ok {
		return storage.ErrStateNotFound
	}
	delete(r.states, k)
	return nil
}

func (r *StateRepo) Close() error {
	return nil
}

// Count returns the number of stored snapshots.
func (r *StateRepo) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.states)
}
