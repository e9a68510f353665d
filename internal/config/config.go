// Package config loads codexec settings from an optional YAML file,
// CODEXEC_* environment variables and command line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Salako07/WKL/internal/domain/execution"
)

const envPrefix = "CODEXEC"

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

type PoolConfig struct {
	Workers         int           `mapstructure:"workers"`
	QueueCapacity   int           `mapstructure:"queue_capacity"`
	ResultRetention time.Duration `mapstructure:"result_retention"`
}

// LimitsConfig is the human-facing form of execution.RunLimits.
type LimitsConfig struct {
	Time      time.Duration `mapstructure:"time"`
	CPUTime   time.Duration `mapstructure:"cpu_time"`
	MemoryMB  int64         `mapstructure:"memory_mb"`
	OutputKB  int64         `mapstructure:"output_kb"`
	Processes int64         `mapstructure:"processes"`
}

// RunLimits converts the configured values.
func (l LimitsConfig) RunLimits() execution.RunLimits {
	return execution.RunLimits{
		TimeLimit:        l.Time,
		CPUTimeLimit:     l.CPUTime,
		MemoryLimitBytes: l.MemoryMB << 20,
		OutputLimitBytes: l.OutputKB << 10,
		ProcessLimit:     l.Processes,
	}
}

type LimitsSet struct {
	Default LimitsConfig `mapstructure:"default"`
	Max     LimitsConfig `mapstructure:"max"`
	Build   LimitsConfig `mapstructure:"build"`
}

type SandboxConfig struct {
	StatsInterval time.Duration `mapstructure:"stats_interval"`
	KillGrace     time.Duration `mapstructure:"kill_grace"`
	TeardownGrace time.Duration `mapstructure:"teardown_grace"`
}

type CatalogConfig struct {
	Path string `mapstructure:"path"`
}

type StoreConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

type KafkaConfig struct {
	Brokers          string        `mapstructure:"brokers"`
	SubmissionsTopic string        `mapstructure:"submissions_topic"`
	ResultsTopic     string        `mapstructure:"results_topic"`
	GroupID          string        `mapstructure:"group_id"`
	CommitInterval   time.Duration `mapstructure:"commit_interval"`
}

// BrokerList splits the comma separated broker setting.
func (k KafkaConfig) BrokerList() []string {
	return parseBrokerList(k.Brokers)
}

// Enabled reports whether a broker is configured.
func (k KafkaConfig) Enabled() bool {
	return len(k.BrokerList()) > 0
}

type RateLimitConfig struct {
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Pool      PoolConfig      `mapstructure:"pool"`
	Limits    LimitsSet       `mapstructure:"limits"`
	Sandbox   SandboxConfig   `mapstructure:"sandbox"`
	Catalog   CatalogConfig   `mapstructure:"catalog"`
	Store     StoreConfig     `mapstructure:"store"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Log       LogConfig       `mapstructure:"log"`
}

// New returns a viper instance with every default registered, so each key
// can be overridden from the environment.
func New() *viper.Viper {
	v := viper.New()
	v.SetConfigName("codexec")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/codexec")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("pool.workers", 4)
	v.SetDefault("pool.queue_capacity", 256)
	v.SetDefault("pool.result_retention", 10*time.Minute)

	v.SetDefault("limits.default.time", 5*time.Second)
	v.SetDefault("limits.default.cpu_time", 5*time.Second)
	v.SetDefault("limits.default.memory_mb", 128)
	v.SetDefault("limits.default.output_kb", 64)
	v.SetDefault("limits.default.processes", 64)
	v.SetDefault("limits.max.time", 30*time.Second)
	v.SetDefault("limits.max.cpu_time", 30*time.Second)
	v.SetDefault("limits.max.memory_mb", 1024)
	v.SetDefault("limits.max.output_kb", 1024)
	v.SetDefault("limits.max.processes", 256)
	v.SetDefault("limits.build.time", 30*time.Second)
	v.SetDefault("limits.build.cpu_time", 0)
	v.SetDefault("limits.build.memory_mb", 512)
	v.SetDefault("limits.build.output_kb", 64)
	v.SetDefault("limits.build.processes", 256)

	v.SetDefault("sandbox.stats_interval", 100*time.Millisecond)
	v.SetDefault("sandbox.kill_grace", 5*time.Second)
	v.SetDefault("sandbox.teardown_grace", 10*time.Second)

	v.SetDefault("catalog.path", "configs/environments.yaml")
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.dsn", "codexec.db")

	v.SetDefault("kafka.brokers", envOrDefault("KAFKA_BROKERS", ""))
	v.SetDefault("kafka.submissions_topic", "submissions")
	v.SetDefault("kafka.results_topic", "run-events")
	v.SetDefault("kafka.group_id", "codexec")
	v.SetDefault("kafka.commit_interval", time.Duration(0))

	v.SetDefault("ratelimit.rps", 5.0)
	v.SetDefault("ratelimit.burst", 10)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	return v
}

// Load reads the configuration. An explicit path must exist; otherwise a
// codexec.yaml in the search path is optional.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Pool.Workers <= 0 {
		errs = append(errs, fmt.Errorf("pool.workers must be positive, got %d", c.Pool.Workers))
	}
	if c.Pool.QueueCapacity <= 0 {
		errs = append(errs, fmt.Errorf("pool.queue_capacity must be positive, got %d", c.Pool.QueueCapacity))
	}
	if field := c.Limits.Default.RunLimits().Exceeds(c.Limits.Max.RunLimits()); field != "" {
		errs = append(errs, fmt.Errorf("limits.default %s exceeds limits.max", field))
	}
	switch c.Store.Driver {
	case "sqlite", "postgres", "none":
	default:
		errs = append(errs, fmt.Errorf("store.driver %q is not one of sqlite, postgres, none", c.Store.Driver))
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format %q is not one of console, json", c.Log.Format))
	}
	return errors.Join(errs...)
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func parseBrokerList(raw string) []string {
	fields := strings.Split(raw, ",")
	brokers := make([]string, 0, len(fields))
	for _, field := range fields {
		if trimmed := strings.TrimSpace(field); trimmed != "" {
			brokers = append(brokers, trimmed)
		}
	}
	return brokers
}
