package health

import (
	"context"
	"sync"
	"time"

	"github.com/vietddude/partsync/internal/core/cursor"
)

// StatsProvider exposes the bookkeeping of a running cursor manager.
type StatsProvider interface {
	Stats() cursor.Stats
}

type runReport struct {
	records  int64
	duration time.Duration
	err      error
	done     bool
}

// Monitor aggregates health status of the stream syncs.
type Monitor struct {
	mu        sync.RWMutex
	order     []string
	providers map[string]StatsProvider
	runs      map[string]runReport
}

// NewMonitor creates a new health monitor.
func NewMonitor() *Monitor {
	return &Monitor{
		providers: make(map[string]StatsProvider),
		runs:      make(map[string]runReport),
	}
}

// Track starts reporting the manager of a stream. A later call for the same
// stream replaces the provider.
func (m *Monitor) Track(stream string, provider StatsProvider) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.providers[stream]; !ok {
		m.order = append(m.order, stream)
	}
	m.providers[stream] = provider
	m.runs[stream] = runReport{}
}

// ReportRun records the outcome of a stream sync.
func (m *Monitor) ReportRun(stream string, records int64, duration time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.providers[stream]; !ok {
		m.order = append(m.order, stream)
		m.providers[stream] = nil
	}
	m.runs[stream] = runReport{records: records, duration: duration, err: err, done: true}
}

// CheckHealth builds the health of every tracked stream.
func (m *Monitor) CheckHealth(ctx context.Context) map[string]StreamHealth {
	m.mu.RLock()
	defer m.mu.RUnlock()

	report := make(map[string]StreamHealth, len(m.order))
	for _, stream := range m.order {
		health := StreamHealth{
			Stream: stream,
			Status: StatusHealthy,
		}

		if provider := m.providers[stream]; provider != nil {
			stats := provider.Stats()
			health.Phase = string(stats.Phase)
			health.Mode = string(stats.Mode)
			health.PartitionsCreated = stats.PartitionsCreated
			health.PartitionsOpen = stats.PartitionsOpen
			health.EvictedUnfinished = stats.EvictedUnfinished
			health.StatesEmitted = stats.StatesEmitted
			health.LastEmissionAt = stats.LastEmissionAt
		}

		run := m.runs[stream]
		if run.done {
			health.RecordsRead = run.records
			health.LastRunDuration = run.duration.String()
		}

		// Evaluate Status
		if run.err != nil {
			health.Status = StatusCritical
			health.LastError = run.err.Error()
		} else if health.Mode == string(cursor.StateGlobal) || health.EvictedUnfinished > 0 {
			health.Status = StatusDegraded
		}

		report[stream] = health
	}
	return report
}

// Report returns the aggregated report. The worst stream status wins.
func (m *Monitor) Report(ctx context.Context) HealthReport {
	streams := m.CheckHealth(ctx)
	status := StatusHealthy
	for _, s := range streams {
		if s.Status == StatusCritical {
			status = StatusCritical
			break
		}
		if s.Status == StatusDegraded {
			status = StatusDegraded
		}
	}
	return HealthReport{SystemStatus: status, Streams: streams}
}
