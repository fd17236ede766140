package cursor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"reflect"
	"slices"
	"sync"
	"time"

	"github.com/vietddude/partsync/internal/core/domain"
	"github.com/vietddude/partsync/internal/extract/metrics"
)

const (
	// DefaultMaxPartitionsNumber bounds the partition cursors kept in memory.
	DefaultMaxPartitionsNumber = 25_000

	// SwitchToGlobalLimit is the number of distinct partitions after which
	// the manager falls back to a single global cursor.
	SwitchToGlobalLimit = 10_000

	// DefaultStateEmitInterval is the minimum time between throttled emissions.
	DefaultStateEmitInterval = 600 * time.Second
)

// Options configures a Manager.
type Options struct {
	StreamName string
	Namespace  string

	CursorField CursorField
	Converter   StateConverter
	Factory     CursorFactory
	Source      PartitionSource
	Emitter     Emitter

	MaxPartitions       int           // default DefaultMaxPartitionsNumber
	SwitchToGlobalLimit int           // default SwitchToGlobalLimit
	StateEmitInterval   time.Duration // default DefaultStateEmitInterval

	// UseGlobalCursor starts the sync in global cursor mode.
	UseGlobalCursor bool

	// AttemptToCreateCursorIfNotProvided relaxes ShouldBeSynced for records of
	// unregistered partitions. When false an ErrUnknownPartition is returned.
	AttemptToCreateCursorIfNotProvided bool

	Logger *slog.Logger
	Clock  func() time.Time
}

type pendingEmission struct {
	seq   uint64
	state domain.ManagerState
}

type parentSnapshot struct {
	key      string
	state    map[string]any
	sequence uint64
}

// Manager coordinates one PartitionCursor per partition for a single sync.
// All bookkeeping is guarded by one mutex; it is safe for concurrent use by
// worker goroutines. State snapshots are published after that mutex is
// released, so a slow Emitter never blocks Observe or slice generation.
//
// A consumer that stops pulling from StreamSlices leaves already opened
// partitions registered. The manager stays inspectable through State and
// Stats, and EnsureAtLeastOneStateEmitted will not commit the global cursor
// while any of those partitions has unclosed slices.
type Manager struct {
	opts     Options
	log      *slog.Logger
	now      func() time.Time
	timer    *Timer
	stats    *statsCollector
	callback func(stream string, t Transition)

	mu                sync.Mutex
	phase             State
	useGlobalCursor   bool
	globalCursor      domain.CursorState // durable
	newGlobalCursor   domain.CursorState // candidate
	newGlobalValue    any                // parsed candidate
	lookbackWindow    int64              // seconds
	cursors           *orderedMap[string, PartitionCursor]
	semaphores        map[string]int // outstanding slices per partition
	doneGenerating    map[string]struct{}
	openSequences     []uint64 // ascending
	keyToSequence     map[string]uint64
	parentStates      []parentSnapshot
	nextSequence      uint64
	partitionsCreated int
	parentState       map[string]any
	syncedSomeData    bool
	loggedDuplicate   bool
	loggedParseError  bool
	lastEmission      time.Time
	globalFilter      PartitionCursor
	snapshotSeq       uint64

	publishMu    sync.Mutex
	publishedSeq uint64
}

// NewManager creates a manager and restores initial state. The state is the
// persisted mapping of a previous sync, or a legacy {cursor_field: value}
// mapping, or empty.
func NewManager(opts Options, initial map[string]any) (*Manager, error) {
	switch {
	case opts.Factory == nil:
		return nil, errors.New("cursor factory is required")
	case opts.Source == nil:
		return nil, errors.New("partition source is required")
	case opts.Emitter == nil:
		return nil, errors.New("emitter is required")
	case opts.Converter == nil:
		return nil, errors.New("state converter is required")
	case opts.CursorField.Key == "":
		return nil, errors.New("cursor field is required")
	}
	if opts.MaxPartitions <= 0 {
		opts.MaxPartitions = DefaultMaxPartitionsNumber
	}
	if opts.SwitchToGlobalLimit <= 0 {
		opts.SwitchToGlobalLimit = SwitchToGlobalLimit
	}
	if opts.StateEmitInterval <= 0 {
		opts.StateEmitInterval = DefaultStateEmitInterval
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	m := &Manager{
		opts:            opts,
		log:             logger.With("component", "cursor", "stream", opts.StreamName),
		now:             opts.Clock,
		timer:           &Timer{now: opts.Clock},
		stats:           newStatsCollector(),
		phase:           StateNotStarted,
		useGlobalCursor: opts.UseGlobalCursor,
		cursors:         newOrderedMap[string, PartitionCursor](),
		semaphores:      make(map[string]int),
		doneGenerating:  make(map[string]struct{}),
		keyToSequence:   make(map[string]uint64),
	}

	if err := m.setInitialState(initial); err != nil {
		return nil, err
	}
	return m, nil
}

// SetStateChangeCallback registers a callback for phase and mode changes.
// The callback runs with the manager lock held and must not call back into
// the manager.
func (m *Manager) SetStateChangeCallback(fn func(stream string, t Transition)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callback = fn
}

// =============================================================================
// Initial state
// =============================================================================

func (m *Manager) setInitialState(state map[string]any) error {
	if len(state) == 0 {
		return nil
	}

	_, hasStates := state[domain.KeyStates]
	_, hasGlobal := state[domain.KeyState]
	if !hasStates && !hasGlobal {
		// legacy global format applied to every partition
		return m.setGlobalState(state)
	}

	if v, ok := state[domain.KeyUseGlobalCursor].(bool); ok {
		m.useGlobalCursor = v
	}
	m.lookbackWindow = toInt64(state[domain.KeyLookbackWindow])

	for _, entry := range partitionStates(state[domain.KeyStates]) {
		key, err := ToKey(entry.Partition)
		if err != nil {
			return err
		}
		c, err := m.opts.Factory.Create(entry.Cursor, 0)
		if err != nil {
			return fmt.Errorf("failed to restore cursor for partition %s: %w", key, err)
		}
		m.partitionsCreated++
		m.cursors.Set(key, c)
	}

	if global, ok := asMap(state[domain.KeyState]); ok {
		if err := m.setGlobalState(global); err != nil {
			return err
		}
	}

	if parent, ok := asMap(state[domain.KeyParentState]); ok && len(parent) > 0 {
		m.parentState = domain.CloneMap(parent)
		if setter, ok := m.opts.Source.(ParentStateSetter); ok {
			setter.SetInitialParentState(domain.CloneMap(parent))
		}
	}
	return nil
}

func (m *Manager) setGlobalState(state map[string]any) error {
	raw, ok := state[m.opts.CursorField.Key]
	if !ok {
		m.globalCursor = domain.CursorState(domain.CloneMap(state))
		m.newGlobalCursor = domain.CursorState(domain.CloneMap(state))
		return nil
	}

	value, err := m.opts.Converter.ParseValue(raw)
	if err != nil {
		return fmt.Errorf("invalid global cursor state: %w", err)
	}
	m.globalCursor = domain.CursorState{m.opts.CursorField.Key: raw}
	m.newGlobalCursor = domain.CursorState{m.opts.CursorField.Key: raw}
	m.newGlobalValue = value
	return nil
}

// =============================================================================
// Slicing
// =============================================================================

// StreamSlices returns the lazy sequence of slices of every partition. It may
// be called once per manager.
func (m *Manager) StreamSlices(ctx context.Context) (iter.Seq2[domain.StreamSlice, error], error) {
	m.mu.Lock()
	if m.phase != StateNotStarted {
		m.mu.Unlock()
		return nil, ErrSlicesAlreadyStreamed
	}
	if err := m.timer.Start(); err != nil {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %v", ErrSlicesAlreadyStreamed, err)
	}
	m.transitionLocked(StateStreaming, "stream slices requested")
	m.mu.Unlock()

	return func(yield func(domain.StreamSlice, error) bool) {
		for partition, err := range m.opts.Source.StreamPartitions(ctx) {
			if err != nil {
				yield(domain.StreamSlice{}, fmt.Errorf("failed to stream partitions: %w", err))
				return
			}
			// parent state in effect when this partition was yielded
			parentState := domain.CloneMap(m.opts.Source.CurrentParentState())
			if !m.generateSlicesFromPartition(partition, parentState, yield) {
				return
			}
		}
	}, nil
}

func (m *Manager) generateSlicesFromPartition(
	partition domain.StreamSlice,
	parentState map[string]any,
	yield func(domain.StreamSlice, error) bool,
) bool {
	key, err := ToKey(partition.Partition)
	if err != nil {
		yield(domain.StreamSlice{}, err)
		return false
	}

	m.mu.Lock()
	m.ensurePartitionLimitLocked()

	c, ok := m.cursors.Get(key)
	if !ok {
		c, err = m.createCursorLocked(m.globalCursor)
		if err != nil {
			m.mu.Unlock()
			yield(domain.StreamSlice{}, fmt.Errorf("failed to create cursor for partition %s: %w", key, err))
			return false
		}
		m.partitionsCreated++
		m.cursors.Set(key, c)
		metrics.PartitionsCreated.WithLabelValues(m.opts.StreamName).Inc()
		m.checkGlobalLimitLocked()
	}

	if _, dup := m.semaphores[key]; dup {
		m.stats.duplicates++
		if !m.loggedDuplicate {
			m.loggedDuplicate = true
			m.log.Warn("Partition duplication detected, skipping", "partition", key)
		}
		m.mu.Unlock()
		return true
	}

	m.semaphores[key] = 0
	seq := m.nextSequence
	m.nextSequence++
	m.openSequences = append(m.openSequences, seq)
	m.keyToSequence[key] = seq
	if n := len(m.parentStates); n == 0 || !reflect.DeepEqual(m.parentStates[n-1].state, parentState) {
		m.parentStates = append(m.parentStates, parentSnapshot{key: key, state: parentState, sequence: seq})
	}
	m.updateGaugesLocked()
	m.mu.Unlock()

	// hold one slice back so the last one can be flagged
	var pending domain.CursorSlice
	hasPending := false
	for cs := range c.StreamSlices() {
		if hasPending && !m.emitSlice(key, partition, pending, false, yield) {
			return false
		}
		pending, hasPending = cs, true
	}

	if !hasPending {
		m.mu.Lock()
		m.doneGenerating[key] = struct{}{}
		m.cleanupIfDoneLocked(key)
		m.checkAndUpdateParentStateLocked()
		m.mu.Unlock()
		return true
	}
	return m.emitSlice(key, partition, pending, true, yield)
}

func (m *Manager) emitSlice(
	key string,
	partition domain.StreamSlice,
	cs domain.CursorSlice,
	last bool,
	yield func(domain.StreamSlice, error) bool,
) bool {
	m.mu.Lock()
	m.semaphores[key]++
	if last {
		m.doneGenerating[key] = struct{}{}
	}
	m.mu.Unlock()

	return yield(domain.StreamSlice{
		Partition:   partition.Partition,
		CursorSlice: cs,
		ExtraFields: partition.ExtraFields,
	}, nil)
}

// ensurePartitionLimitLocked switches to global mode when needed and evicts
// partition cursors until a new one fits. Finished partitions go first.
func (m *Manager) ensurePartitionLimitLocked() {
	m.checkGlobalLimitLocked()

	for m.cursors.Len() > m.opts.MaxPartitions-1 {
		finished := ""
		found := false
		for key := range m.cursors.All() {
			if _, open := m.keyToSequence[key]; !open {
				finished, found = key, true
				break
			}
		}

		if found {
			m.cursors.Delete(finished)
			m.stats.evictedFinished++
			metrics.PartitionsEvicted.WithLabelValues(m.opts.StreamName, "finished").Inc()
			m.log.Debug("Evicted finished partition cursor", "partition", finished)
			continue
		}

		oldest, _, _ := m.cursors.PopOldest()
		m.stats.evictedUnfinished++
		metrics.PartitionsEvicted.WithLabelValues(m.opts.StreamName, "unfinished").Inc()
		m.log.Warn(
			"Evicted unfinished partition cursor, records may be re-delivered on resume",
			"partition", oldest,
			"max_partitions", m.opts.MaxPartitions,
		)
	}
}

func (m *Manager) checkGlobalLimitLocked() {
	if m.useGlobalCursor || m.partitionsCreated <= m.opts.SwitchToGlobalLimit {
		return
	}
	m.log.Info(
		"Exceeded partition limit, switching to global cursor",
		"limit", m.opts.SwitchToGlobalLimit,
		"partitions", m.partitionsCreated,
	)
	m.useGlobalCursor = true
	metrics.GlobalCursorSwitches.WithLabelValues(m.opts.StreamName).Inc()
	m.recordTransitionLocked(NewTransition(
		StatePerPartition,
		StateGlobal,
		fmt.Sprintf("more than %d distinct partitions", m.opts.SwitchToGlobalLimit),
	))
}

func (m *Manager) createCursorLocked(state domain.CursorState) (PartitionCursor, error) {
	var lookback time.Duration
	if !state.IsEmpty() {
		lookback = time.Duration(m.lookbackWindow) * time.Second
	}
	return m.opts.Factory.Create(domain.CursorState(domain.CloneMap(state)), lookback)
}

// =============================================================================
// Worker callbacks
// =============================================================================

// Observe advances the candidate global cursor with the record's cursor value
// and, in per-partition mode, forwards the record to its partition cursor.
// Records without a usable cursor value are ignored.
func (m *Manager) Observe(record domain.Record) error {
	if record.Slice == nil {
		return ErrNoAssociatedSlice
	}
	raw, ok := m.opts.CursorField.Extract(record)
	if !ok {
		return nil
	}
	value, parseErr := m.opts.Converter.ParseValue(raw)

	m.mu.Lock()
	defer m.mu.Unlock()

	if parseErr != nil {
		if !m.loggedParseError {
			m.loggedParseError = true
			m.log.Warn(
				"Could not parse cursor value, record will not advance the cursor",
				"cursor_field", m.opts.CursorField.Key,
				"error", parseErr,
			)
		}
		return nil
	}

	m.syncedSomeData = true
	m.updateGlobalCursorLocked(value)

	if m.useGlobalCursor {
		return nil
	}
	key, err := ToKey(record.Slice.Partition)
	if err != nil {
		return err
	}
	if c, ok := m.cursors.Get(key); ok {
		c.Observe(record)
	}
	return nil
}

// ClosePartition acknowledges one slice of a partition. Once every slice of a
// partition is acknowledged its bookkeeping is released and parent state may
// advance.
func (m *Manager) ClosePartition(ctx context.Context, slice domain.StreamSlice) error {
	key, err := ToKey(slice.Partition)
	if err != nil {
		return err
	}

	m.mu.Lock()
	pending, err := m.closePartitionLocked(key, slice)
	m.mu.Unlock()
	if err != nil || pending == nil {
		return err
	}

	if err := m.publish(ctx, pending); err != nil {
		m.log.Warn("Failed to emit state", "error", err)
	}
	return nil
}

func (m *Manager) closePartitionLocked(key string, slice domain.StreamSlice) (*pendingEmission, error) {
	count, ok := m.semaphores[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPartition, key)
	}
	if count == 0 {
		return nil, fmt.Errorf("%w: %s", ErrPartitionOverClosed, key)
	}
	count--
	m.semaphores[key] = count

	if !m.useGlobalCursor {
		if c, ok := m.cursors.Get(key); ok {
			if err := c.ClosePartition(slice); err != nil {
				return nil, fmt.Errorf("failed to close partition %s: %w", key, err)
			}
			if _, done := m.doneGenerating[key]; done && count == 0 {
				m.promoteLocked(c.State())
			}
		}
	}

	m.cleanupIfDoneLocked(key)
	m.checkAndUpdateParentStateLocked()
	m.updateGaugesLocked()

	return m.snapshotLocked(true), nil
}

// ShouldBeSynced reports whether a record passes the cursor filter of its
// partition, or of the global cursor in global mode.
func (m *Manager) ShouldBeSynced(record domain.Record) (bool, error) {
	if record.Slice == nil {
		return false, ErrNoAssociatedSlice
	}
	c, err := m.cursorFor(record)
	if err != nil {
		return false, err
	}
	return c.ShouldBeSynced(record), nil
}

func (m *Manager) cursorFor(record domain.Record) (PartitionCursor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.useGlobalCursor {
		if m.globalFilter == nil {
			c, err := m.createCursorLocked(m.globalCursor)
			if err != nil {
				return nil, err
			}
			m.globalFilter = c
		}
		return m.globalFilter, nil
	}

	key, err := ToKey(record.Slice.Partition)
	if err != nil {
		return nil, err
	}
	if c, ok := m.cursors.Get(key); ok {
		return c, nil
	}
	if !m.opts.AttemptToCreateCursorIfNotProvided {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPartition, key)
	}
	return m.createCursorLocked(m.globalCursor)
}

// EnsureAtLeastOneStateEmitted finalizes the sync. When no partition has
// unacknowledged slices the candidate global cursor becomes durable (if any
// record was observed) and parent state takes the source's final value. A
// state snapshot is always published.
func (m *Manager) EnsureAtLeastOneStateEmitted(ctx context.Context) error {
	m.mu.Lock()
	pending := m.finalizeLocked()
	m.mu.Unlock()

	return m.publish(ctx, pending)
}

func (m *Manager) finalizeLocked() *pendingEmission {
	if m.allSlicesClosedLocked() {
		if m.syncedSomeData {
			m.globalCursor = domain.CursorState(domain.CloneMap(m.newGlobalCursor))
			if lookback, err := m.timer.Finish(); err == nil {
				m.lookbackWindow = lookback
			}
			m.globalFilter = nil
		}
		if final := m.opts.Source.CurrentParentState(); final != nil {
			m.parentState = domain.CloneMap(final)
		}
	} else {
		m.log.Warn("Partitions still open at end of sync, global cursor not committed",
			"open_partitions", len(m.openSequences))
	}

	if CanTransition(m.phase, StateFinalized) {
		m.transitionLocked(StateFinalized, "sync finished")
	}
	return m.snapshotLocked(false)
}

// =============================================================================
// Internals
// =============================================================================

func (m *Manager) updateGlobalCursorLocked(value any) {
	if m.newGlobalValue != nil && m.opts.Converter.Compare(m.newGlobalValue, value) >= 0 {
		return
	}
	m.newGlobalValue = value
	m.newGlobalCursor = domain.CursorState{
		m.opts.CursorField.Key: m.opts.Converter.OutputFormat(value),
	}
}

func (m *Manager) promoteLocked(state domain.CursorState) {
	raw, ok := state[m.opts.CursorField.Key]
	if !ok {
		return
	}
	value, err := m.opts.Converter.ParseValue(raw)
	if err != nil {
		m.log.Debug("Ignoring unparsable partition state", "error", err)
		return
	}
	m.updateGlobalCursorLocked(value)
}

func (m *Manager) cleanupIfDoneLocked(key string) {
	if _, done := m.doneGenerating[key]; !done || m.semaphores[key] != 0 {
		return
	}
	delete(m.semaphores, key)
	delete(m.doneGenerating, key)

	seq, ok := m.keyToSequence[key]
	if !ok {
		return
	}
	delete(m.keyToSequence, key)
	if i := slices.Index(m.openSequences, seq); i >= 0 {
		m.openSequences = slices.Delete(m.openSequences, i, i+1)
	}
}

// checkAndUpdateParentStateLocked pops parent state snapshots taken before
// the oldest still-open partition was created. The last popped snapshot is
// the new parent state.
func (m *Manager) checkAndUpdateParentStateLocked() {
	var last map[string]any
	advanced := false

	for len(m.parentStates) > 0 {
		head := m.parentStates[0]
		if len(m.openSequences) > 0 && m.openSequences[0] <= head.sequence {
			break
		}
		m.parentStates = m.parentStates[1:]
		last, advanced = head.state, true
	}

	if advanced && last != nil {
		m.parentState = last
		m.stats.parentAdvances++
	}
}

func (m *Manager) allSlicesClosedLocked() bool {
	for _, count := range m.semaphores {
		if count != 0 {
			return false
		}
	}
	return true
}

// snapshotLocked takes the state to publish, nil when a throttled emission
// is not due.
func (m *Manager) snapshotLocked(throttle bool) *pendingEmission {
	if throttle {
		now := m.now()
		if !m.lastEmission.IsZero() && now.Sub(m.lastEmission) <= m.opts.StateEmitInterval {
			return nil
		}
		m.lastEmission = now
		if m.useGlobalCursor && len(m.parentState) == 0 {
			return nil
		}
	}

	m.snapshotSeq++
	return &pendingEmission{seq: m.snapshotSeq, state: m.stateLocked()}
}

// publish sends a snapshot without holding the manager lock. Publishes are
// serialized, and a snapshot older than one already published is dropped.
func (m *Manager) publish(ctx context.Context, p *pendingEmission) error {
	if p == nil {
		return nil
	}
	m.publishMu.Lock()
	defer m.publishMu.Unlock()

	if p.seq <= m.publishedSeq {
		return nil
	}
	if err := m.opts.Emitter.Publish(ctx, m.opts.StreamName, m.opts.Namespace, p.state); err != nil {
		metrics.StatesEmitted.WithLabelValues(m.opts.StreamName, "error").Inc()
		return fmt.Errorf("failed to publish state: %w", err)
	}
	m.publishedSeq = p.seq
	metrics.StatesEmitted.WithLabelValues(m.opts.StreamName, "ok").Inc()

	m.mu.Lock()
	m.stats.RecordEmission(m.now())
	m.mu.Unlock()
	return nil
}

func (m *Manager) stateLocked() domain.ManagerState {
	s := domain.ManagerState{
		UseGlobalCursor: m.useGlobalCursor,
		LookbackWindow:  m.lookbackWindow,
	}

	if !m.useGlobalCursor {
		s.States = make([]domain.PartitionState, 0, m.cursors.Len())
		for key, c := range m.cursors.All() {
			cs := c.State()
			if cs.IsEmpty() {
				continue
			}
			p, err := ToPartition(key)
			if err != nil {
				m.log.Error("Corrupted partition key", "partition", key, "error", err)
				continue
			}
			s.States = append(s.States, domain.PartitionState{
				Partition: p,
				Cursor:    domain.CursorState(domain.CloneMap(cs)),
			})
		}
	}
	if !m.globalCursor.IsEmpty() {
		s.State = domain.CursorState(domain.CloneMap(m.globalCursor))
	}
	if m.parentState != nil {
		s.ParentState = domain.CloneMap(m.parentState)
	}
	return s
}

func (m *Manager) transitionLocked(to State, reason string) {
	if !CanTransition(m.phase, to) {
		m.log.Error("Invalid lifecycle transition", "from", m.phase, "to", to, "error", ErrInvalidTransition)
		return
	}
	t := NewTransition(m.phase, to, reason)
	m.phase = to
	m.recordTransitionLocked(t)
}

func (m *Manager) recordTransitionLocked(t Transition) {
	m.stats.RecordTransition(t)
	if m.callback != nil {
		m.callback(m.opts.StreamName, t)
	}
}

func (m *Manager) updateGaugesLocked() {
	metrics.PartitionsOpen.WithLabelValues(m.opts.StreamName).Set(float64(len(m.openSequences)))
	metrics.PartitionsRetained.WithLabelValues(m.opts.StreamName).Set(float64(m.cursors.Len()))
}

// =============================================================================
// Accessors
// =============================================================================

// State returns the current state snapshot.
func (m *Manager) State() domain.ManagerState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stateLocked()
}

// UseGlobalCursor reports whether the manager is in global cursor mode.
func (m *Manager) UseGlobalCursor() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.useGlobalCursor
}

// CandidateGlobalCursor returns the not yet durable global cursor.
func (m *Manager) CandidateGlobalCursor() domain.CursorState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return domain.CursorState(domain.CloneMap(m.newGlobalCursor))
}

// Stats returns bookkeeping counters.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	mode := StatePerPartition
	if m.useGlobalCursor {
		mode = StateGlobal
	}
	s := Stats{
		Phase:               m.phase,
		Mode:                mode,
		PartitionsCreated:   m.partitionsCreated,
		PartitionsRetained:  m.cursors.Len(),
		PartitionsOpen:      len(m.openSequences),
		SyncedSomeData:      m.syncedSomeData,
		PendingParentStates: len(m.parentStates),
		LookbackWindow:      m.lookbackWindow,
	}
	m.stats.fill(&s)
	return s
}

// =============================================================================
// Helpers
// =============================================================================

func asMap(v any) (map[string]any, bool) {
	switch t := v.(type) {
	case map[string]any:
		return t, true
	case domain.CursorState:
		return t, true
	default:
		return nil, false
	}
}

func partitionStates(v any) []domain.PartitionState {
	switch t := v.(type) {
	case []domain.PartitionState:
		return t
	case []any:
		out := make([]domain.PartitionState, 0, len(t))
		for _, item := range t {
			entry, ok := asMap(item)
			if !ok {
				continue
			}
			partition, _ := asMap(entry["partition"])
			cursor, _ := asMap(entry["cursor"])
			out = append(out, domain.PartitionState{
				Partition: domain.Partition(partition),
				Cursor:    domain.CursorState(cursor),
			})
		}
		return out
	default:
		return nil
	}
}

func toInt64(v any) int64 {
	switch t := v.(type) {
	case int:
		return int64(t)
	case int64:
		return t
	case float64:
		return int64(t)
	case json.Number:
		n, _ := t.Int64()
		return n
	default:
		return 0
	}
}
