// Package health provides sync health monitoring and status reporting.
package health

import (
	"time"
)

// SystemStatus represents the overall health state of the system or a stream.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// StreamHealth contains health data for one stream sync.
type StreamHealth struct {
	Stream            string       `json:"stream"`
	Status            SystemStatus `json:"status"`
	Phase             string       `json:"phase"`
	Mode              string       `json:"mode"`
	PartitionsCreated int          `json:"partitions_created"`
	PartitionsOpen    int          `json:"partitions_open"`
	EvictedUnfinished int          `json:"evicted_unfinished"`
	StatesEmitted     int          `json:"states_emitted"`
	LastEmissionAt    *time.Time   `json:"last_emission_at,omitempty"`
	RecordsRead       int64        `json:"records_read"`
	LastRunDuration   string       `json:"last_run_duration,omitempty"`
	LastError         string       `json:"last_error,omitempty"`
}

// HealthReport contains the full system health report.
type HealthReport struct {
	SystemStatus SystemStatus            `json:"system_status"`
	Streams      map[string]StreamHealth `json:"streams"`
}
