package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/vietddude/partsync/internal/core/cursor"
)

// =============================================================================
// Mocks
// =============================================================================

type stubStats struct {
	stats cursor.Stats
}

func (s *stubStats) Stats() cursor.Stats { return s.stats }

// =============================================================================
// Tests
// =============================================================================

func TestMonitor_CheckHealth(t *testing.T) {
	tests := []struct {
		name   string
		stats  cursor.Stats
		runErr error
		want   SystemStatus
	}{
		{
			name:  "healthy per partition",
			stats: cursor.Stats{Phase: cursor.StateFinalized, Mode: cursor.StatePerPartition},
			want:  StatusHealthy,
		},
		{
			name:  "degraded in global mode",
			stats: cursor.Stats{Mode: cursor.StateGlobal},
			want:  StatusDegraded,
		},
		{
			name:  "degraded after unfinished eviction",
			stats: cursor.Stats{Mode: cursor.StatePerPartition, EvictedUnfinished: 1},
			want:  StatusDegraded,
		},
		{
			name:   "critical on failure",
			stats:  cursor.Stats{Mode: cursor.StatePerPartition},
			runErr: errors.New("boom"),
			want:   StatusCritical,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMonitor()
			m.Track("comments", &stubStats{stats: tt.stats})
			m.ReportRun("comments", 10, time.Second, tt.runErr)

			report := m.CheckHealth(context.Background())
			got := report["comments"]
			if got.Status != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got.Status)
			}
			if got.RecordsRead != 10 {
				t.Errorf("expected 10 records, got %d", got.RecordsRead)
			}
		})
	}
}

func TestServer_Health(t *testing.T) {
	m := NewMonitor()
	m.Track("comments", &stubStats{stats: cursor.Stats{Mode: cursor.StatePerPartition}})
	m.Track("posts", &stubStats{stats: cursor.Stats{Mode: cursor.StatePerPartition}})
	srv := NewServer(m, 0)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}

	m.ReportRun("posts", 0, time.Second, errors.New("source unavailable"))
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/detailed", nil))
	var report HealthReport
	if err := json.NewDecoder(rec.Body).Decode(&report); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if report.SystemStatus != StatusCritical || len(report.Streams) != 2 {
		t.Errorf("unexpected report %+v", report)
	}
	if report.Streams["posts"].LastError != "source unavailable" {
		t.Errorf("expected last error, got %q", report.Streams["posts"].LastError)
	}
}

func TestServer_StreamHealth(t *testing.T) {
	m := NewMonitor()
	m.Track("comments", &stubStats{stats: cursor.Stats{Mode: cursor.StateGlobal, PartitionsCreated: 10_001}})
	srv := NewServer(m, 0)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/streams/comments", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var got StreamHealth
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if got.Status != StatusDegraded || got.PartitionsCreated != 10_001 {
		t.Errorf("unexpected stream health %+v", got)
	}

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/streams/posts", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}
