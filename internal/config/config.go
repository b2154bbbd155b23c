// Package config defines process configuration and how it is loaded.
//
// Values are layered: built-in defaults, then an optional YAML file named by
// AUTODIST_CONFIG, then AUTODIST_ environment variables. Nested keys use a
// double underscore in env names, e.g. AUTODIST_DB__DSN sets db.dsn.
package config

import (
	"runtime"
	"time"

	"github.com/okian/autodist/internal/domain/model"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level" validate:"oneof=debug info warn warning error"`

	// LogFormat selects text or json output.
	LogFormat string `koanf:"log_format" validate:"oneof=text json"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr" validate:"required"`

	// ShutdownTimeout bounds graceful shutdown of the server and the bus.
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`

	DB  DBConfig  `koanf:"db"`
	Bus BusConfig `koanf:"bus"`

	// DedupeSize bounds the event id window used by POST /events.
	DedupeSize int `koanf:"dedupe_size" validate:"gte=0"`

	// WorkdayMinutes is each worker's daily capacity.
	WorkdayMinutes int `koanf:"workday_minutes" validate:"gt=0"`

	// ExcludeAbsent drops workers absent today from candidate lists.
	ExcludeAbsent bool `koanf:"exclude_absent"`

	// ManagerRoles are the roles whose first active holder gets approval
	// requests.
	ManagerRoles []string `koanf:"manager_roles" validate:"min=1,dive,required"`

	// MaxRetries bounds how many further candidates are tried after a failed
	// eligibility re-check.
	MaxRetries int `koanf:"max_retries" validate:"gte=0,lte=10"`

	// Distribution is the scoring configuration. It is hot-reloaded from the
	// config file.
	Distribution model.DistributionConfig `koanf:"distribution"`
}

// DBConfig selects the SQL store.
type DBConfig struct {
	Driver string `koanf:"driver" validate:"oneof=sqlite sqlite3 postgres postgresql pgx"`
	DSN    string `koanf:"dsn" validate:"required"`
}

// BusConfig sizes the in-process event bus.
type BusConfig struct {
	QueueSize     int `koanf:"queue_size" validate:"gt=0"`
	WorkerCount   int `koanf:"worker_count" validate:"gt=0"`
	OutcomeBuffer int `koanf:"outcome_buffer" validate:"gte=0"`
}

// DefaultManagerRoles are used when no manager_roles are configured.
var DefaultManagerRoles = []string{"admin", "owner"}

// New returns a Config holding the defaults.
func New() *Config {
	return &Config{
		LogLevel:        "info",
		LogFormat:       "text",
		Addr:            ":9080",
		ShutdownTimeout: 10 * time.Second,
		DB: DBConfig{
			Driver: "sqlite",
			DSN:    "file:autodist.db?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)",
		},
		Bus: BusConfig{
			QueueSize:     4096,
			WorkerCount:   runtime.NumCPU() * 2,
			OutcomeBuffer: 256,
		},
		DedupeSize:     10_000,
		WorkdayMinutes: 480,
		MaxRetries:     3,
		Distribution:   model.DefaultDistributionConfig(),
	}
}
