package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Salako07/WKL/internal/app/coordinator"
	"github.com/Salako07/WKL/internal/app/executor"
	"github.com/Salako07/WKL/internal/app/intake"
	"github.com/Salako07/WKL/internal/infra/httpapi"
	"github.com/Salako07/WKL/internal/infra/kafka"
	"github.com/Salako07/WKL/internal/ports"
	"github.com/Salako07/WKL/internal/runtime"
)

const (
	drainTimeout         = 30 * time.Second
	limiterSweepInterval = time.Minute
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the execution engine and its HTTP API",
	Long: `Start the execution engine with its HTTP API. When kafka.brokers is set,
submissions are also consumed from Kafka and run events are published back.

Send SIGHUP to reload the environment catalogue.

Examples:
  codexec serve
  codexec serve --addr :9090 --workers 8`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("addr", "", "HTTP listen address (overrides config)")
	serveCmd.Flags().Int("workers", 0, "Number of worker slots (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log, err := newLogger(cfg.Log, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry, err := loadRegistry(cfg.Catalog.Path)
	if err != nil {
		return fmt.Errorf("loading catalogue: %w", err)
	}
	go watchReload(ctx, registry, cfg.Catalog.Path, log)

	engine, err := newEngine(cfg, log)
	if err != nil {
		return err
	}
	defer closeLogged(log, "sandbox engine", engine.Close)

	store, err := openStore(ctx, cfg.Store, log)
	if err != nil {
		return err
	}
	if store != nil {
		defer closeLogged(log, "run store", store.Close)
	}

	var publisher ports.RunEventPublisher
	if cfg.Kafka.Enabled() {
		pub, err := kafka.NewPublisher(kafka.PublisherConfig{
			Brokers: cfg.Kafka.BrokerList(),
			Topic:   cfg.Kafka.ResultsTopic,
		})
		if err != nil {
			return fmt.Errorf("creating kafka publisher: %w", err)
		}
		defer closeLogged(log, "kafka publisher", pub.Close)
		publisher = pub
	}

	pool := executor.NewPool(engine, cfg.Pool.Workers, log)
	opts := []coordinator.Option{coordinator.WithLogger(log)}
	var apiOpts []httpapi.Option
	if store != nil {
		opts = append(opts, coordinator.WithStore(store))
		apiOpts = append(apiOpts, httpapi.WithRunLister(store))
	}
	if publisher != nil {
		opts = append(opts, coordinator.WithPublisher(publisher))
	}
	coord := coordinator.New(coordinatorConfig(cfg), registry, pool, opts...)

	// The coordinator outlives the signal so Shutdown can drain the queue.
	coordCtx, cancelCoord := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelCoord()
	coordDone := make(chan error, 1)
	go func() { coordDone <- coord.Run(coordCtx) }()

	intakeDone := make(chan error, 1)
	if cfg.Kafka.Enabled() {
		consumer, err := kafka.NewConsumer(kafka.Config{
			Brokers:        cfg.Kafka.BrokerList(),
			Topic:          cfg.Kafka.SubmissionsTopic,
			GroupID:        cfg.Kafka.GroupID,
			CommitInterval: cfg.Kafka.CommitInterval,
		})
		if err != nil {
			return fmt.Errorf("creating kafka consumer: %w", err)
		}
		defer closeLogged(log, "kafka consumer", consumer.Close)

		svc := intake.NewService(coord, publisher, log)
		go func() { intakeDone <- svc.Consume(ctx, consumer) }()
		log.Info().Strs("brokers", cfg.Kafka.BrokerList()).Str("topic", cfg.Kafka.SubmissionsTopic).Msg("consuming submissions from kafka")
	}

	if cfg.RateLimit.RPS > 0 {
		limiter := httpapi.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
		limiter.StartCleanup(ctx, limiterSweepInterval)
		apiOpts = append(apiOpts, httpapi.WithRateLimiter(limiter))
	}
	srv := httpapi.New(coord, registry, log, apiOpts...)

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Start(cfg.Server.Addr) }()

	log.Info().
		Int("workers", pool.Slots()).
		Int("queue_capacity", cfg.Pool.QueueCapacity).
		Str("store", cfg.Store.Driver).
		Msg("codexec started")

	var runErr error
wait:
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("shutting down")
			break wait
		case err := <-serveErr:
			runErr = err
			break wait
		case err := <-intakeDone:
			if err != nil {
				runErr = fmt.Errorf("kafka intake: %w", err)
				break wait
			}
			log.Info().Msg("kafka intake finished")
			intakeDone = nil
		case err := <-coordDone:
			return err
		}
	}
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	if err := coord.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("drain deadline passed, remaining runs cancelled")
	}
	if err := <-coordDone; err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("coordinator stopped")
	}
	return runErr
}

// watchReload swaps the catalogue on SIGHUP. An invalid catalogue leaves
// the current one in place.
func watchReload(ctx context.Context, registry *runtime.Registry, path string, log *zerolog.Logger) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if err := reloadCatalog(registry, path); err != nil {
				log.Error().Err(err).Str("path", path).Msg("catalogue reload failed")
				continue
			}
			log.Info().Int("environments", len(registry.List())).Msg("catalogue reloaded")
		}
	}
}

func reloadCatalog(registry *runtime.Registry, path string) error {
	envs, err := runtime.LoadCatalog(path)
	if err != nil {
		return err
	}
	return registry.Replace(envs)
}

func closeLogged(log *zerolog.Logger, name string, closeFn func() error) {
	if err := closeFn(); err != nil {
		log.Warn().Err(err).Msgf("failed to close %s", name)
	}
}
