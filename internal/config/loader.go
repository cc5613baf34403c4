package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/Sumatoshi-tech/forestcheck/pkg/distributed"
	"github.com/Sumatoshi-tech/forestcheck/pkg/verifier"
)

// configName is the config file name without extension.
const configName = ".forestcheck"

// configType is the config file format.
const configType = "yaml"

// envPrefix is the environment variable prefix for forestcheck settings.
const envPrefix = "FORESTCHECK"

// envKeySeparator is the nested key separator in environment variable names.
const envKeySeparator = "_"

// Defaults applied before the config file and environment are read.
const (
	DefaultCheckPaths     = true
	DefaultStopWhenSat    = false
	DefaultSaturateStart  = true
	DefaultSaturateFactor = distributed.DefaultSaturateFactor
	DefaultTimeoutStart   = distributed.DefaultTimeoutStart
	DefaultTimeoutMax     = distributed.DefaultTimeoutMax
	DefaultTimeoutRate    = distributed.DefaultTimeoutRate
	DefaultPrecheckLimit  = verifier.DefaultPrecheckLimit
	DefaultWorkers        = 0
	DefaultFormat         = FormatTable
	DefaultLogLevel       = "info"
	DefaultSampleRatio    = 1.0
)

// LoadConfig loads configuration from file, env vars, and defaults.
// If configPath is non-empty, it is used as the explicit config file path.
// Otherwise, the config file is searched in CWD and $HOME.
// Missing config file is not an error; defaults are used.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	applyDefaults(v)

	v.SetConfigType(configType)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", envKeySeparator))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName(configName)
		v.AddConfigPath(".")

		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

func applyDefaults(v *viper.Viper) {
	v.SetDefault("verify.check_paths", DefaultCheckPaths)
	v.SetDefault("verify.stop_when_sat", DefaultStopWhenSat)
	v.SetDefault("verify.saturate_from_start", DefaultSaturateStart)
	v.SetDefault("verify.saturate_factor", DefaultSaturateFactor)
	v.SetDefault("verify.timeout_start", DefaultTimeoutStart)
	v.SetDefault("verify.timeout_max", DefaultTimeoutMax)
	v.SetDefault("verify.timeout_rate", DefaultTimeoutRate)
	v.SetDefault("verify.precheck_limit", DefaultPrecheckLimit)

	v.SetDefault("pool.workers", DefaultWorkers)

	v.SetDefault("report.format", DefaultFormat)
	v.SetDefault("report.output", "")
	v.SetDefault("report.snapshot_dir", "")

	v.SetDefault("observability.log_level", DefaultLogLevel)
	v.SetDefault("observability.log_json", false)
	v.SetDefault("observability.environment", "")
	v.SetDefault("observability.otlp_endpoint", "")
	v.SetDefault("observability.otlp_headers", "")
	v.SetDefault("observability.otlp_insecure", false)
	v.SetDefault("observability.sample_ratio", DefaultSampleRatio)
	v.SetDefault("observability.debug_trace", false)
	v.SetDefault("observability.trace_verbose", false)
	v.SetDefault("observability.metrics_addr", "")
}
