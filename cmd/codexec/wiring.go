package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Salako07/WKL/internal/app/coordinator"
	"github.com/Salako07/WKL/internal/config"
	"github.com/Salako07/WKL/internal/domain/execution"
	"github.com/Salako07/WKL/internal/infra/store/postgres"
	"github.com/Salako07/WKL/internal/infra/store/sqlite"
	"github.com/Salako07/WKL/internal/ports"
	"github.com/Salako07/WKL/internal/runtime"
	"github.com/Salako07/WKL/internal/runtime/docker"
)

// flagKeys maps command line flags onto config keys.
var flagKeys = map[string]string{
	"addr":      "server.addr",
	"workers":   "pool.workers",
	"catalog":   "catalog.path",
	"log-level": "log.level",
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	v := config.New()
	for name, key := range flagKeys {
		flag := cmd.Flags().Lookup(name)
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return nil, fmt.Errorf("binding --%s: %w", name, err)
		}
	}
	return config.Load(v, configPath)
}

func newLogger(cfg config.LogConfig, out io.Writer) (*zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		return nil, fmt.Errorf("parsing log level: %w", err)
	}
	if level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	if cfg.Format != "json" {
		out = zerolog.ConsoleWriter{Out: out}
	}
	logger := zerolog.New(out).Level(level).With().Timestamp().Logger()
	return &logger, nil
}

func loadRegistry(path string) (*runtime.Registry, error) {
	envs, err := runtime.LoadCatalog(path)
	if err != nil {
		return nil, err
	}
	return runtime.NewRegistry(envs...)
}

func newEngine(cfg *config.Config, log *zerolog.Logger) (*docker.Engine, error) {
	return docker.New(docker.Config{
		DefaultLimits: cfg.Limits.Default.RunLimits(),
		BuildLimits:   cfg.Limits.Build.RunLimits(),
		StatsInterval: cfg.Sandbox.StatsInterval,
		KillGrace:     cfg.Sandbox.KillGrace,
		TeardownGrace: cfg.Sandbox.TeardownGrace,
		Logger:        log,
	})
}

func coordinatorConfig(cfg *config.Config) coordinator.Config {
	return coordinator.Config{
		QueueCapacity: cfg.Pool.QueueCapacity,
		Retention:     cfg.Pool.ResultRetention,
		DefaultLimits: cfg.Limits.Default.RunLimits(),
		MaxLimits:     cfg.Limits.Max.RunLimits(),
	}
}

// runStore is a durable run store that also answers history queries.
type runStore interface {
	ports.RunStore
	ListRunsByOwner(ctx context.Context, owner string, limit int) ([]execution.Run, error)
}

// openStore opens the configured store. The "none" driver yields nil.
func openStore(ctx context.Context, cfg config.StoreConfig, log *zerolog.Logger) (runStore, error) {
	switch cfg.Driver {
	case "sqlite":
		store, err := sqlite.Open(cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("opening sqlite store: %w", err)
		}
		return store, nil
	case "postgres":
		store, err := postgres.Open(ctx, cfg.DSN, log)
		if err != nil {
			return nil, fmt.Errorf("opening postgres store: %w", err)
		}
		return store, nil
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
