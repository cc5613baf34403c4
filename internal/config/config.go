package config

import (
	"errors"
	"time"
)

// Config is the top-level configuration struct for forestcheck.
// Field tags use mapstructure for viper unmarshalling. Zero values mean
// "use the built-in default".
type Config struct {
	Verify        VerifyConfig        `mapstructure:"verify"`
	Pool          PoolConfig          `mapstructure:"pool"`
	Report        ReportConfig        `mapstructure:"report"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

// VerifyConfig holds the orchestrator knobs.
type VerifyConfig struct {
	CheckPaths        bool          `mapstructure:"check_paths"`
	SaturateFromStart bool          `mapstructure:"saturate_from_start"`
	SaturateFactor    float64       `mapstructure:"saturate_factor"`
	StopWhenSat       bool          `mapstructure:"stop_when_sat"`
	TimeoutStart      time.Duration `mapstructure:"timeout_start"`
	TimeoutMax        time.Duration `mapstructure:"timeout_max"`
	TimeoutRate       float64       `mapstructure:"timeout_rate"`
	PrecheckLimit     int           `mapstructure:"precheck_limit"`
}

// PoolConfig sizes the worker pool. Zero workers means one per CPU.
type PoolConfig struct {
	Workers int `mapstructure:"workers"`
}

// ReportConfig selects how results are written.
type ReportConfig struct {
	Format      string `mapstructure:"format"`
	Output      string `mapstructure:"output"`
	SnapshotDir string `mapstructure:"snapshot_dir"`
}

// ObservabilityConfig holds logging, tracing and metrics settings.
type ObservabilityConfig struct {
	LogLevel     string  `mapstructure:"log_level"`
	LogJSON      bool    `mapstructure:"log_json"`
	Environment  string  `mapstructure:"environment"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	OTLPHeaders  string  `mapstructure:"otlp_headers"`
	OTLPInsecure bool    `mapstructure:"otlp_insecure"`
	SampleRatio  float64 `mapstructure:"sample_ratio"`
	DebugTrace   bool    `mapstructure:"debug_trace"`
	TraceVerbose bool    `mapstructure:"trace_verbose"`
	MetricsAddr  string  `mapstructure:"metrics_addr"`
}

// Report formats.
const (
	FormatTable = "table"
	FormatJSON  = "json"
	FormatYAML  = "yaml"
)

// Sentinel errors for configuration validation.
var (
	// ErrInvalidWorkers indicates a negative worker count.
	ErrInvalidWorkers = errors.New("pool.workers must be non-negative")
	// ErrInvalidSaturateFactor indicates a negative saturation factor.
	ErrInvalidSaturateFactor = errors.New("verify.saturate_factor must be non-negative")
	// ErrInvalidTimeout indicates a negative timeout or a maximum below the start.
	ErrInvalidTimeout = errors.New("verify.timeout_start and verify.timeout_max must be positive with max >= start")
	// ErrInvalidTimeoutRate indicates a growth rate below 1.
	ErrInvalidTimeoutRate = errors.New("verify.timeout_rate must be at least 1")
	// ErrInvalidPrecheckLimit indicates a negative precheck limit.
	ErrInvalidPrecheckLimit = errors.New("verify.precheck_limit must be non-negative")
	// ErrInvalidFormat indicates an unknown report format.
	ErrInvalidFormat = errors.New("report.format must be table, json or yaml")
	// ErrInvalidLogLevel indicates an unknown log level.
	ErrInvalidLogLevel = errors.New("observability.log_level must be debug, info, warn or error")
	// ErrInvalidSampleRatio indicates a ratio outside [0, 1].
	ErrInvalidSampleRatio = errors.New("observability.sample_ratio must be between 0 and 1")
)

// Validate checks Config invariants and returns the first error found.
func (c *Config) Validate() error {
	if c.Pool.Workers < 0 {
		return ErrInvalidWorkers
	}

	if err := c.validateVerify(); err != nil {
		return err
	}

	switch c.Report.Format {
	case "", FormatTable, FormatJSON, FormatYAML:
	default:
		return ErrInvalidFormat
	}

	return c.validateObservability()
}

func (c *Config) validateVerify() error {
	v := c.Verify

	if v.SaturateFactor < 0 {
		return ErrInvalidSaturateFactor
	}

	if v.TimeoutStart < 0 || v.TimeoutMax < 0 {
		return ErrInvalidTimeout
	}

	if v.TimeoutStart > 0 && v.TimeoutMax > 0 && v.TimeoutMax < v.TimeoutStart {
		return ErrInvalidTimeout
	}

	if v.TimeoutRate != 0 && v.TimeoutRate < 1 {
		return ErrInvalidTimeoutRate
	}

	if v.PrecheckLimit < 0 {
		return ErrInvalidPrecheckLimit
	}

	return nil
}

func (c *Config) validateObservability() error {
	if _, err := parseLevel(c.Observability.LogLevel); err != nil {
		return err
	}

	if r := c.Observability.SampleRatio; r < 0 || r > 1 {
		return ErrInvalidSampleRatio
	}

	return nil
}
