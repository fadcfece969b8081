// Package config defines service configuration and its loading.
package config

import (
	"fmt"
	"runtime"
	"time"

	"github.com/go-playground/validator/v10"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level" validate:"oneof=debug info warn warning error"`
	// LogFormat is text or json.
	LogFormat string `koanf:"log_format" validate:"oneof=text json"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr" validate:"required"`

	// StoreDriver selects the award store: memory, sqlite or postgres.
	StoreDriver string `koanf:"store_driver" validate:"oneof=memory sqlite postgres"`
	// StoreDSN is the data source of the sql drivers.
	StoreDSN string `koanf:"store_dsn" validate:"required_unless=StoreDriver memory"`

	// QueueSize bounds the evaluations waiting for a worker.
	QueueSize int `koanf:"queue_size" validate:"gt=0"`
	// WorkerCount sets the number of evaluation workers.
	WorkerCount int `koanf:"worker_count" validate:"gt=0"`
	// DedupeSize bounds evaluations in flight; 0 is unbounded.
	DedupeSize int `koanf:"dedupe_size" validate:"gte=0"`

	// SubmitRate is the accepted evaluations per second; 0 disables the limit.
	SubmitRate  float64 `koanf:"submit_rate" validate:"gte=0"`
	SubmitBurst int     `koanf:"submit_burst" validate:"gt=0"`

	// ProblemsDir holds one directory with a problem.toml per problem.
	ProblemsDir string `koanf:"problems_dir" validate:"required"`

	// GraderCommand is run once per evaluation as
	// <command> <args...> <problem dir> <submission dir>.
	GraderCommand string        `koanf:"grader_command"`
	GraderArgs    []string      `koanf:"grader_args"`
	GraderTimeout time.Duration `koanf:"grader_timeout" validate:"gte=0"`

	// Feedback material defaults, overridable per subtask.
	ScorePrecision int     `koanf:"score_precision" validate:"gte=0"`
	AllowPartial   bool    `koanf:"allow_partial"`
	UsageMargin    float64 `koanf:"usage_margin" validate:"gt=0"`
}

var validate = validator.New()

// New returns a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:       "info",
		LogFormat:      "text",
		Addr:           ":9080",
		StoreDriver:    DriverMemory,
		QueueSize:      1024,
		WorkerCount:    runtime.NumCPU(),
		DedupeSize:     0,
		SubmitRate:     0,
		SubmitBurst:    16,
		ProblemsDir:    "problems",
		GraderTimeout:  5 * time.Minute,
		ScorePrecision: 0,
		AllowPartial:   true,
		UsageMargin:    2,
	}
}

// Validate checks every field against its constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}
