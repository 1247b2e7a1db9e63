// Package app builds every chanreset component from configuration and runs
// them under a single lifecycle.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/flemzord/chanreset/internal/config"
	"github.com/flemzord/chanreset/internal/security"
)

// RunParams configures the main application loop.
type RunParams struct {
	// ConfigPath is an explicit path to the YAML configuration file.
	// If empty, config.ResolvePath searches the standard locations.
	ConfigPath string

	// Version, Commit, and Date are injected at build time via ldflags.
	Version string
	Commit  string
	Date    string

	// LogLevel overrides log.level from the configuration when set.
	LogLevel string
}

// Run loads configuration, starts all components, and blocks until ctx is
// cancelled or a shutdown signal is received.
func Run(ctx context.Context, params RunParams) error {
	cfg, path, err := LoadConfig(params.ConfigPath)
	if err != nil {
		return err
	}
	if params.LogLevel != "" {
		cfg.Log.Level = params.LogLevel
	}

	logger := NewLogger(os.Stderr, cfg)
	logger.Info("chanreset starting",
		"version", params.Version,
		"commit", params.Commit,
		"config", path,
	)

	shutdownTracing, err := InitTracer(ctx, cfg.Tracing, params.Version, logger)
	if err != nil {
		return err
	}

	c, err := Build(ctx, cfg, logger)
	if err != nil {
		_ = shutdownTracing(context.Background())
		return err
	}
	c.App.Add("tracing", stopFunc(shutdownTracing))
	return c.App.Run(ctx)
}

// LoadConfig resolves, loads and validates the configuration file.
func LoadConfig(explicit string) (*config.Config, string, error) {
	path, err := config.ResolvePath(explicit)
	if err != nil {
		return nil, "", err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, path, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, path, err
	}
	return cfg, path, nil
}

// NewLogger builds the root logger described by cfg.Log. Every record goes
// through a RedactingHandler that knows the configured secrets.
func NewLogger(w io.Writer, cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Log.Level)}

	var inner slog.Handler
	if cfg.Log.Format == "json" {
		inner = slog.NewJSONHandler(w, opts)
	} else {
		inner = slog.NewTextHandler(w, opts)
	}

	redactor := security.NewRedactor()
	redactor.AddLiteral(cfg.Discord.Token)
	redactor.AddLiteral(cfg.Gateway.BearerToken)
	redactor.AddLiteral(cfg.Store.DSN)

	return slog.New(security.NewRedactingHandler(inner, redactor))
}

func parseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return slog.LevelInfo
	}
	return level
}

// stopFunc adapts a shutdown function to core.Stopper.
type stopFunc func(ctx context.Context) error

func (f stopFunc) Stop(ctx context.Context) error {
	if err := f(ctx); err != nil {
		return fmt.Errorf("app: %w", err)
	}
	return nil
}
