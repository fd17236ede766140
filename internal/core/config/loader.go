package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/vietddude/partsync/internal/core/cursor"
	"github.com/vietddude/partsync/internal/extract/reader"
)

// ErrInvalidConfig is returned when a loaded configuration fails validation.
var ErrInvalidConfig = errors.New("invalid config")

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Storage == "" {
		cfg.Storage = StorageMemory
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.SQLite.Path == "" {
		cfg.SQLite.Path = "partsync.db"
	}
	if cfg.AMQP.URL != "" && cfg.AMQP.Exchange == "" {
		cfg.AMQP.Exchange = "partsync.state"
	}

	for i := range cfg.Streams {
		s := &cfg.Streams[i]
		if s.CursorFormat == "" {
			s.CursorFormat = CursorFormatDatetime
		}
		if s.DatetimeLayout == "" {
			s.DatetimeLayout = time.RFC3339
		}
		if s.Granularity == 0 {
			s.Granularity = time.Second
		}
		if s.Workers == 0 {
			s.Workers = reader.DefaultWorkers
		}
		if s.MaxPartitions == 0 {
			s.MaxPartitions = cursor.DefaultMaxPartitionsNumber
		}
		if s.SwitchToGlobal == 0 {
			s.SwitchToGlobal = cursor.SwitchToGlobalLimit
		}
		if s.StateEmitInterval == 0 {
			s.StateEmitInterval = cursor.DefaultStateEmitInterval
		}
	}
}

// Validate checks the configuration for unusable values.
func (c *AppConfig) Validate() error {
	switch c.Storage {
	case StorageMemory, StoragePostgres, StorageSQLite, StorageRedis:
	default:
		return fmt.Errorf("%w: unknown storage %q", ErrInvalidConfig, c.Storage)
	}
	if c.Storage == StoragePostgres && c.Database.URL == "" {
		return fmt.Errorf("%w: database.url is required for postgres storage", ErrInvalidConfig)
	}
	if c.Storage == StorageRedis && c.Redis.URL == "" {
		return fmt.Errorf("%w: redis.url is required for redis storage", ErrInvalidConfig)
	}

	seen := make(map[string]bool)
	for i, s := range c.Streams {
		if s.Name == "" {
			return fmt.Errorf("%w: streams[%d].name is required", ErrInvalidConfig, i)
		}
		key := s.Namespace + "/" + s.Name
		if seen[key] {
			return fmt.Errorf("%w: duplicate stream %q", ErrInvalidConfig, s.Name)
		}
		seen[key] = true

		if s.CursorField == "" {
			return fmt.Errorf("%w: stream %s: cursor_field is required", ErrInvalidConfig, s.Name)
		}
		switch s.CursorFormat {
		case CursorFormatDatetime, CursorFormatEpoch:
		case CursorFormatNumeric:
			if s.StartDatetime != "" || s.Step > 0 || s.LookbackWindow > 0 {
				return fmt.Errorf("%w: stream %s: start_datetime, step and lookback_window need a time cursor",
					ErrInvalidConfig, s.Name)
			}
		default:
			return fmt.Errorf("%w: stream %s: unknown cursor_format %q", ErrInvalidConfig, s.Name, s.CursorFormat)
		}
		if s.Fixture == "" {
			return fmt.Errorf("%w: stream %s: fixture is required", ErrInvalidConfig, s.Name)
		}
		if s.Step > 0 && s.Step < s.Granularity {
			return fmt.Errorf("%w: stream %s: step is smaller than granularity", ErrInvalidConfig, s.Name)
		}
		if _, err := s.StartTime(); err != nil {
			return fmt.Errorf("%w: stream %s: %v", ErrInvalidConfig, s.Name, err)
		}
	}
	return nil
}

// Converter returns the state converter for the stream's cursor format.
func (s StreamConfig) Converter() cursor.StateConverter {
	if s.CursorFormat == CursorFormatNumeric {
		return cursor.NumericConverter{}
	}
	tc, _ := s.TimeConverter()
	return tc
}

// TimeConverter returns the converter of a time based cursor format. It
// reports false for numeric cursors.
func (s StreamConfig) TimeConverter() (cursor.TimeConverter, bool) {
	switch s.CursorFormat {
	case CursorFormatNumeric:
		return nil, false
	case CursorFormatEpoch:
		return cursor.EpochConverter{}, true
	default:
		return cursor.NewDatetimeConverter(s.DatetimeLayout), true
	}
}

// StartTime parses start_datetime, zero when unset.
func (s StreamConfig) StartTime() (time.Time, error) {
	tc, ok := s.TimeConverter()
	if s.StartDatetime == "" || !ok {
		return time.Time{}, nil
	}
	t, err := tc.ParseTime(s.StartDatetime)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid start_datetime: %w", err)
	}
	return t, nil
}

// Stream returns the stream with the given name.
func (c *AppConfig) Stream(name string) (StreamConfig, bool) {
	for _, s := range c.Streams {
		if s.Name == name {
			return s, true
		}
	}
	return StreamConfig{}, false
}
