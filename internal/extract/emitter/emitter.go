package emitter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/vietddude/partsync/internal/core/domain"
	"github.com/vietddude/partsync/internal/infra/storage"
)

// Emitter defines the interface for publishing stream state snapshots
type Emitter interface {
	// Publish sends one state snapshot
	Publish(ctx context.Context, streamName, namespace string, state domain.ManagerState) error

	// Close closes the emitter connection
	Close() error
}

// RepositoryEmitter persists every snapshot to a state repository, so the
// latest one becomes the initial state of the next sync.
type RepositoryEmitter struct {
	repo storage.StateRepository
}

// NewRepositoryEmitter creates an emitter backed by repo.
func NewRepositoryEmitter(repo storage.StateRepository) *RepositoryEmitter {
	return &RepositoryEmitter{repo: repo}
}

func (e *RepositoryEmitter) Publish(
	ctx context.Context,
	streamName, namespace string,
	state domain.ManagerState,
) error {
	if err := e.repo.Save(ctx, streamName, namespace, state); err != nil {
		return fmt.Errorf("failed to persist state: %w", err)
	}
	return nil
}

// Close is a no-op, the repository is owned by the caller.
func (e *RepositoryEmitter) Close() error {
	return nil
}

// Fanout publishes each snapshot to every emitter in order. All emitters are
// attempted, errors are joined.
type Fanout struct {
	emitters []Emitter
}

// NewFanout creates a fan-out over emitters.
func NewFanout(emitters ...Emitter) *Fanout {
	return &Fanout{emitters: emitters}
}

func (f *Fanout) Publish(
	ctx context.Context,
	streamName, namespace string,
	state domain.ManagerState,
) error {
	var errs []error
	for _, e := range f.emitters {
		if err := e.Publish(ctx, streamName, namespace, state); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f *Fanout) Close() error {
	var errs []error
	for _, e := range f.emitters {
		errs = append(errs, e.Close())
	}
	return errors.Join(errs...)
}

// LogEmitter writes a summary of each snapshot to the log.
type LogEmitter struct {
	log *slog.Logger
}

// NewLogEmitter creates a log emitter, nil uses the default logger.
func NewLogEmitter(logger *slog.Logger) *LogEmitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogEmitter{log: logger.With("component", "emitter")}
}

func (e *LogEmitter) Publish(
	ctx context.Context,
	streamName, namespace string,
	state domain.ManagerState,
) error {
	e.log.Debug("State emitted",
		"stream", streamName,
		"namespace", namespace,
		"use_global_cursor", state.UseGlobalCursor,
		"partitions", len(state.States),
		"global_cursor", state.State,
		"lookback_window", state.LookbackWindow,
	)
	return nil
}

func (e *LogEmitter) Close() error {
	return nil
}

// Memory records snapshots, for tests and dry runs.
type Memory struct {
	mu     sync.Mutex
	states []domain.ManagerState
}

func (m *Memory) Publish(
	ctx context.Context,
	streamName, namespace string,
	state domain.ManagerState,
) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states = append(m.states, state)
	return nil
}

func (m *Memory) Close() error {
	return nil
}

// States returns a copy of the recorded snapshots.
func (m *Memory) States() []domain.ManagerState {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.ManagerState, len(m.states))
	copy(out, m.states)
	return out
}

// Last returns the latest snapshot, false when none was recorded.
func (m *Memory) Last() (domain.ManagerState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.states) == 0 {
		return domain.ManagerState{}, false
	}
	return m.states[len(m.states)-1], true
}
