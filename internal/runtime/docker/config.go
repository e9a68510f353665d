package docker

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/Salako07/WKL/internal/domain/execution"
)

const (
	defaultOutputLimit   = 64 << 10
	defaultStatsInterval = 100 * time.Millisecond
	defaultKillGrace     = 5 * time.Second
	defaultTeardownGrace = 10 * time.Second
)

// Config describes how to create a Docker-backed sandbox engine.
type Config struct {
	// DefaultLimits fill fields left at zero by the caller.
	DefaultLimits execution.RunLimits
	// BuildLimits bound the compile sandbox of compiled environments.
	BuildLimits execution.RunLimits
	// StatsInterval is the resource watchdog polling period.
	StatsInterval time.Duration
	// KillGrace bounds the wait for a killed container to stop.
	KillGrace time.Duration
	// TeardownGrace bounds container removal.
	TeardownGrace time.Duration
	Logger        *zerolog.Logger
}

func (c Config) withDefaults() Config {
	if c.DefaultLimits.OutputLimitBytes <= 0 {
		c.DefaultLimits.OutputLimitBytes = defaultOutputLimit
	}
	if c.BuildLimits == (execution.RunLimits{}) {
		c.BuildLimits = execution.RunLimits{
			TimeLimit:        30 * time.Second,
			MemoryLimitBytes: 512 << 20,
			OutputLimitBytes: defaultOutputLimit,
			ProcessLimit:     256,
		}
	}
	if c.StatsInterval <= 0 {
		c.StatsInterval = defaultStatsInterval
	}
	if c.KillGrace <= 0 {
		c.KillGrace = defaultKillGrace
	}
	if c.TeardownGrace <= 0 {
		c.TeardownGrace = defaultTeardownGrace
	}
	if c.Logger == nil {
		nop := zerolog.Nop()
		c.Logger = &nop
	}
	return c
}
