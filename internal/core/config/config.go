package config

import (
	"time"

	"github.com/vietddude/partsync/internal/infra/amqp"
	redisclient "github.com/vietddude/partsync/internal/infra/redis"
	"github.com/vietddude/partsync/internal/infra/storage/postgres"
)

// Storage backends
const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
	StorageSQLite   = "sqlite"
	StorageRedis    = "redis"
)

// Cursor formats
const (
	CursorFormatDatetime = "datetime"
	CursorFormatEpoch    = "epoch"
	CursorFormatNumeric  = "numeric"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server   ServerConfig       `yaml:"server"`
	Logging  LoggingConfig      `yaml:"logging"`
	Storage  string             `yaml:"storage"` // memory, postgres, sqlite, redis
	Database postgres.Config    `yaml:"database"`
	SQLite   SQLiteConfig       `yaml:"sqlite"`
	Redis    redisclient.Config `yaml:"redis"`
	AMQP     amqp.Config        `yaml:"amqp"`
	Streams  []StreamConfig     `yaml:"streams"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"` // 0 disables the health server
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// SQLiteConfig holds the local state database location.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// StreamConfig holds settings for one incremental partitioned stream.
type StreamConfig struct {
	Name              string        `yaml:"name"`
	Namespace         string        `yaml:"namespace"`
	CursorField       string        `yaml:"cursor_field"`
	CursorFormat      string        `yaml:"cursor_format"`   // datetime, epoch, numeric
	DatetimeLayout    string        `yaml:"datetime_layout"` // Go layout, RFC3339 by default
	StartDatetime     string        `yaml:"start_datetime"`
	Step              time.Duration `yaml:"step"` // 0 = one slice per partition
	Granularity       time.Duration `yaml:"granularity"`
	LookbackWindow    time.Duration `yaml:"lookback_window"`
	Workers           int           `yaml:"workers"`
	MaxPartitions     int           `yaml:"max_partitions"`
	SwitchToGlobal    int           `yaml:"switch_to_global_limit"`
	StateEmitInterval time.Duration `yaml:"state_emit_interval"`
	StrictPartitions  *bool         `yaml:"strict_partitions"` // default true
	Fixture           string        `yaml:"fixture"`
}

// Strict reports whether records of unknown partitions are rejected.
func (s StreamConfig) Strict() bool {
	return s.StrictPartitions == nil || *s.StrictPartitions
}
