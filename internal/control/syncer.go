package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/partsync/internal/core/config"
	"github.com/vietddude/partsync/internal/core/cursor"
	"github.com/vietddude/partsync/internal/core/domain"
	"github.com/vietddude/partsync/internal/extract/emitter"
	"github.com/vietddude/partsync/internal/extract/health"
	"github.com/vietddude/partsync/internal/extract/reader"
	"github.com/vietddude/partsync/internal/infra/amqp"
	redisclient "github.com/vietddude/partsync/internal/infra/redis"
	"github.com/vietddude/partsync/internal/infra/source/fixture"
	"github.com/vietddude/partsync/internal/infra/storage"
	"github.com/vietddude/partsync/internal/infra/storage/memory"
	"github.com/vietddude/partsync/internal/infra/storage/postgres"
	"github.com/vietddude/partsync/internal/infra/storage/sqlite"
)

// ErrUnknownStream is returned when a stream is not configured.
var ErrUnknownStream = errors.New("unknown stream")

// Options holds runtime settings that do not come from the config file.
type Options struct {
	Namespace string    // used by streams without a namespace
	Output    io.Writer // JSONL record sink, nil discards records
	Logger    *slog.Logger
}

// Syncer runs the configured streams and owns their shared infrastructure.
type Syncer struct {
	cfg          *config.AppConfig
	opts         Options
	runID        string
	repo         storage.StateRepository
	db           *postgres.DB
	publisher    *amqp.Publisher
	emitter      emitter.Emitter
	healthMon    *health.Monitor
	healthServer *health.Server
	log          *slog.Logger

	outMu sync.Mutex
	out   *json.Encoder
}

// OpenRepository opens the state repository selected by cfg.Storage. The
// returned DB is non-nil for postgres only.
func OpenRepository(ctx context.Context, cfg *config.AppConfig) (storage.StateRepository, *postgres.DB, error) {
	switch cfg.Storage {
	case config.StoragePostgres:
		db, err := postgres.NewDB(ctx, cfg.Database)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to init db: %w", err)
		}
		if err := db.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("failed to migrate db: %w", err)
		}
		slog.Info("Using PostgreSQL storage", "driver", cfg.Database.Driver)
		return postgres.NewStateRepo(db), db, nil

	case config.StorageSQLite:
		repo, err := sqlite.Open(ctx, cfg.SQLite.Path)
		if err != nil {
			return nil, nil, err
		}
		slog.Info("Using SQLite storage", "path", cfg.SQLite.Path)
		return repo, nil, nil

	case config.StorageRedis:
		client, err := redisclient.NewClient(cfg.Redis)
		if err != nil {
			return nil, nil, err
		}
		slog.Info("Using Redis storage", "channel", cfg.Redis.Channel)
		return redisclient.NewStateRepo(client, cfg.Redis.Channel), nil, nil

	default:
		slog.Info("Using Memory storage")
		return memory.NewStateRepo(), nil, nil
	}
}

// NewSyncer creates a Syncer with all dependencies initialized.
func NewSyncer(ctx context.Context, cfg *config.AppConfig, opts Options) (*Syncer, error) {
	repo, db, err := OpenRepository(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return newSyncer(cfg, opts, repo, db)
}

func newSyncer(cfg *config.AppConfig, opts Options, repo storage.StateRepository, db *postgres.DB) (*Syncer, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	runID := uuid.NewString()

	s := &Syncer{
		cfg:       cfg,
		opts:      opts,
		runID:     runID,
		repo:      repo,
		db:        db,
		healthMon: health.NewMonitor(),
		log:       logger.With("component", "syncer", "run_id", runID),
	}
	if opts.Output != nil {
		s.out = json.NewEncoder(opts.Output)
	}

	emitters := []emitter.Emitter{emitter.NewRetrying(emitter.NewRepositoryEmitter(repo), nil, s.log)}
	if cfg.AMQP.URL != "" {
		publisher, err := amqp.NewPublisher(cfg.AMQP, runID)
		if err != nil {
			_ = repo.Close()
			return nil, fmt.Errorf("failed to init amqp publisher: %w", err)
		}
		s.publisher = publisher
		emitters = append(emitters, emitter.NewRetrying(publisher, nil, s.log))
	}
	emitters = append(emitters, emitter.NewLogEmitter(s.log))
	s.emitter = emitter.NewFanout(emitters...)

	if cfg.Server.Port > 0 {
		s.healthServer = health.NewServer(s.healthMon, cfg.Server.Port)
	}
	return s, nil
}

// RunID identifies this process in logs and published messages.
func (s *Syncer) RunID() string {
	return s.runID
}

// Monitor returns the health monitor of the syncer.
func (s *Syncer) Monitor() *health.Monitor {
	return s.healthMon
}

// Run syncs every configured stream once, in order. The first failing
// stream aborts the run.
func (s *Syncer) Run(ctx context.Context) error {
	if s.healthServer != nil {
		go func() {
			if err := s.healthServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.log.Error("Health server failed", "error", err)
			}
		}()
	}
	if s.db != nil {
		s.db.StartMetricsCollector(ctx)
	}

	for _, stream := range s.cfg.Streams {
		if err := s.RunStream(ctx, stream); err != nil {
			return fmt.Errorf("stream %s: %w", stream.Name, err)
		}
	}
	return nil
}

// RunStream syncs one stream from its persisted state.
func (s *Syncer) RunStream(ctx context.Context, stream config.StreamConfig) error {
	namespace := s.namespace(stream)
	log := s.log.With("stream", stream.Name)

	initial, err := s.repo.Get(ctx, stream.Name, namespace)
	if err != nil {
		return fmt.Errorf("failed to load state: %w", err)
	}
	if initial == nil {
		log.Info("No previous state, starting full sync")
	}

	fx, err := fixture.Load(stream.Fixture)
	if err != nil {
		return err
	}
	manager, records, err := s.buildManager(stream, namespace, fx, initial)
	if err != nil {
		return err
	}
	s.healthMon.Track(stream.Name, manager)

	r := reader.New(reader.Config{
		Stream:  stream.Name,
		Workers: stream.Workers,
		Logger:  s.log,
	}, manager, records, s.writeRecord)

	result, err := r.Run(ctx)
	s.healthMon.ReportRun(stream.Name, result.Records, result.Duration, err)
	if err != nil {
		return err
	}

	log.Info("Stream synced",
		"slices", result.Slices,
		"records", result.Records,
		"skipped", result.Skipped,
		"duration", result.Duration,
		"global_cursor", manager.UseGlobalCursor(),
	)
	return nil
}

func (s *Syncer) buildManager(
	stream config.StreamConfig,
	namespace string,
	fx *fixture.Fixture,
	initial map[string]any,
) (*cursor.Manager, *fixture.Reader, error) {
	converter := stream.Converter()
	field := cursor.NewCursorField(stream.CursorField)
	logger := s.log.With("stream", stream.Name)

	var factory cursor.CursorFactory
	if tc, ok := stream.TimeConverter(); ok {
		start, err := stream.StartTime()
		if err != nil {
			return nil, nil, err
		}
		factory = cursor.NewDatetimeCursorFactory(cursor.DatetimeCursorConfig{
			Field:       field,
			Converter:   tc,
			Start:       start,
			Step:        stream.Step,
			Granularity: stream.Granularity,
			Lookback:    stream.LookbackWindow,
			Logger:      logger,
		})
	} else {
		factory = cursor.NewNumericCursorFactory(cursor.NumericCursorConfig{
			Field:     field,
			Converter: converter,
			Logger:    logger,
		})
	}

	manager, err := cursor.NewManager(cursor.Options{
		StreamName:                         stream.Name,
		Namespace:                          namespace,
		CursorField:                        field,
		Converter:                          converter,
		Factory:                            factory,
		Source:                             fixture.NewSource(fx, converter),
		Emitter:                            s.emitter,
		MaxPartitions:                      stream.MaxPartitions,
		SwitchToGlobalLimit:                stream.SwitchToGlobal,
		StateEmitInterval:                  stream.StateEmitInterval,
		AttemptToCreateCursorIfNotProvided: !stream.Strict(),
		Logger:                             logger,
	}, initial)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create cursor manager: %w", err)
	}
	return manager, fixture.NewReader(fx, field, converter), nil
}

func (s *Syncer) writeRecord(_ context.Context, record domain.Record) error {
	if s.out == nil {
		return nil
	}
	s.outMu.Lock()
	defer s.outMu.Unlock()
	return s.out.Encode(record.Data)
}

func (s *Syncer) namespace(stream config.StreamConfig) string {
	if stream.Namespace != "" {
		return stream.Namespace
	}
	return s.opts.Namespace
}

// State returns the persisted state of a configured stream, nil when the
// stream never synced.
func (s *Syncer) State(ctx context.Context, name string) (map[string]any, error) {
	stream, ok := s.cfg.Stream(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStream, name)
	}
	return s.repo.Get(ctx, stream.Name, s.namespace(stream))
}

// ResetState deletes the persisted state of a configured stream so the next
// run starts from scratch.
func (s *Syncer) ResetState(ctx context.Context, name string) error {
	stream, ok := s.cfg.Stream(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownStream, name)
	}
	return s.repo.Delete(ctx, stream.Name, s.namespace(stream))
}

// Stop releases the syncer resources.
func (s *Syncer) Stop(ctx context.Context) error {
	s.log.Info("Stopping Syncer...")

	var errs []error
	if s.healthServer != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		errs = append(errs, s.healthServer.Stop(shutdownCtx))
	}
	if s.emitter != nil {
		errs = append(errs, s.emitter.Close())
	}
	errs = append(errs, s.repo.Close())
	return errors.Join(errs...)
}
