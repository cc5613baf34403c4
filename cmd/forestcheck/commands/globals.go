// Package commands implements CLI command handlers for forestcheck.
package commands

import (
	"fmt"
	"log/slog"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/forestcheck/internal/config"
	"github.com/Sumatoshi-tech/forestcheck/internal/observability"
	"github.com/Sumatoshi-tech/forestcheck/pkg/version"
)

// Globals holds the persistent root flags shared by every command.
type Globals struct {
	ConfigPath string
	Verbose    bool
	Quiet      bool
	NoColor    bool
}

// Register binds the persistent flags on root.
func (g *Globals) Register(root *cobra.Command) {
	root.PersistentFlags().StringVar(&g.ConfigPath, "config", "", "config file (default: .forestcheck.yaml in CWD or $HOME)")
	root.PersistentFlags().BoolVarP(&g.Verbose, "verbose", "v", false, "verbose output")
	root.PersistentFlags().BoolVarP(&g.Quiet, "quiet", "q", false, "suppress output")
	root.PersistentFlags().BoolVar(&g.NoColor, "no-color", false, "disable colored output")
}

// session is the per-invocation config and telemetry.
type session struct {
	cfg       *config.Config
	providers observability.Providers
	logger    *slog.Logger
}

// open loads the config and starts telemetry for mode. The caller must call
// close.
func (g *Globals) open(cmd *cobra.Command, mode observability.AppMode, override func(*config.Config)) (*session, error) {
	if g.NoColor {
		color.NoColor = true //nolint:reassign // user asked for plain output
	}

	cfg, err := config.LoadConfig(g.ConfigPath)
	if err != nil {
		return nil, err
	}

	if override != nil {
		override(cfg)

		if err = cfg.Validate(); err != nil {
			return nil, fmt.Errorf("validate flags: %w", err)
		}
	}

	obsCfg := cfg.ObservabilityConfig(mode, version.Version)
	obsCfg.LogOutput = cmd.ErrOrStderr()

	switch {
	case g.Quiet:
		obsCfg.LogLevel = slog.LevelError
	case g.Verbose:
		obsCfg.LogLevel = slog.LevelDebug
	}

	providers, err := observability.Init(obsCfg)
	if err != nil {
		return nil, fmt.Errorf("init observability: %w", err)
	}

	return &session{cfg: cfg, providers: providers, logger: providers.Logger}, nil
}

func (s *session) close(cmd *cobra.Command) {
	if err := s.providers.Shutdown(cmd.Context()); err != nil {
		s.logger.Warn("telemetry shutdown", "error", err)
	}
}
