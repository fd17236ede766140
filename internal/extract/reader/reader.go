// Package reader drives a sync: it pulls slices from the cursor manager and
// reads them on a bounded worker pool.
package reader

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vietddude/partsync/internal/core/domain"
	"github.com/vietddude/partsync/internal/extract/metrics"
)

// DefaultWorkers is the slice read concurrency when none is configured.
const DefaultWorkers = 4

// SliceManager is the part of the cursor manager the reader drives.
type SliceManager interface {
	StreamSlices(ctx context.Context) (iter.Seq2[domain.StreamSlice, error], error)
	ShouldBeSynced(record domain.Record) (bool, error)
	Observe(record domain.Record) error
	ClosePartition(ctx context.Context, slice domain.StreamSlice) error
	EnsureAtLeastOneStateEmitted(ctx context.Context) error
}

// RecordReader reads the records of one slice.
type RecordReader interface {
	ReadRecords(ctx context.Context, slice domain.StreamSlice) iter.Seq2[map[string]any, error]
}

// RecordHandler receives every record that passed the cursor filter.
// It may be called concurrently.
type RecordHandler func(ctx context.Context, record domain.Record) error

// Config configures a Reader.
type Config struct {
	Stream  string
	Workers int
	Logger  *slog.Logger
}

// Result summarizes a run.
type Result struct {
	Slices   int64
	Records  int64
	Skipped  int64
	Duration time.Duration
}

// Reader reads all slices of one stream.
type Reader struct {
	cfg     Config
	manager SliceManager
	records RecordReader
	handler RecordHandler
	log     *slog.Logger
}

// New creates a reader. A nil handler discards records.
func New(cfg Config, manager SliceManager, records RecordReader, handler RecordHandler) *Reader {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if handler == nil {
		handler = func(context.Context, domain.Record) error { return nil }
	}
	return &Reader{
		cfg:     cfg,
		manager: manager,
		records: records,
		handler: handler,
		log:     logger.With("component", "reader", "stream", cfg.Stream),
	}
}

// Run reads every slice. Slices are pulled only when a worker is free. The
// first error cancels the remaining work. A final state is emitted in every
// case, with a context that is not cancelled by the failure.
func (r *Reader) Run(ctx context.Context) (Result, error) {
	start := time.Now()
	var slicesRead, records, skipped atomic.Int64

	runErr := func() error {
		seq, err := r.manager.StreamSlices(ctx)
		if err != nil {
			return err
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(r.cfg.Workers)

		for slice, err := range seq {
			if err != nil {
				// drain in-flight slices before reporting
				return errors.Join(err, g.Wait())
			}
			if gctx.Err() != nil {
				break
			}

			g.Go(func() error {
				n, s, err := r.readSlice(gctx, slice)
				records.Add(n)
				skipped.Add(s)
				if err != nil {
					return err
				}
				slicesRead.Add(1)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
		return ctx.Err()
	}()

	emitCtx := context.WithoutCancel(ctx)
	if err := r.manager.EnsureAtLeastOneStateEmitted(emitCtx); err != nil {
		runErr = errors.Join(runErr, fmt.Errorf("failed to emit final state: %w", err))
	}

	result := Result{
		Slices:   slicesRead.Load(),
		Records:  records.Load(),
		Skipped:  skipped.Load(),
		Duration: time.Since(start),
	}
	if runErr != nil {
		r.log.Error("Sync failed", "error", runErr, "slices", result.Slices, "records", result.Records)
		return result, runErr
	}
	r.log.Info("Sync finished",
		"slices", result.Slices,
		"records", result.Records,
		"skipped", result.Skipped,
		"duration", result.Duration,
	)
	return result, nil
}

func (r *Reader) readSlice(ctx context.Context, slice domain.StreamSlice) (records, skipped int64, err error) {
	start := time.Now()
	defer func() {
		metrics.SliceDuration.WithLabelValues(r.cfg.Stream).Observe(time.Since(start).Seconds())
	}()

	for data, err := range r.records.ReadRecords(ctx, slice) {
		if err != nil {
			return records, skipped, fmt.Errorf("failed to read slice %v: %w", slice.Partition, err)
		}

		record := domain.Record{Stream: r.cfg.Stream, Data: data, Slice: &slice}
		ok, err := r.manager.ShouldBeSynced(record)
		if err != nil {
			return records, skipped, err
		}
		if !ok {
			skipped++
			metrics.RecordsSkipped.WithLabelValues(r.cfg.Stream).Inc()
			continue
		}

		if err := r.manager.Observe(record); err != nil {
			return records, skipped, err
		}
		if err := r.handler(ctx, record); err != nil {
			return records, skipped, fmt.Errorf("record handler failed: %w", err)
		}
		records++
		metrics.RecordsRead.WithLabelValues(r.cfg.Stream).Inc()
	}

	if err := r.manager.ClosePartition(ctx, slice); err != nil {
		return records, skipped, err
	}
	return records, skipped, nil
}
