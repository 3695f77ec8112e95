// Package servecmder provides the serve command, which runs the faultline
// ingestion API.
package servecmder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/papercomputeco/faultline/api"
	"github.com/papercomputeco/faultline/cmd/faultline/backend"
	"github.com/papercomputeco/faultline/pkg/config"
	"github.com/papercomputeco/faultline/pkg/dotdir"
	"github.com/papercomputeco/faultline/pkg/ingest"
	"github.com/papercomputeco/faultline/pkg/logger"
	"github.com/papercomputeco/faultline/pkg/metrics"
	"github.com/papercomputeco/faultline/pkg/ratelimit"
)

type ServeCommander struct {
	listen         string
	storageDriver  string
	sqlitePath     string
	postgresDSN    string
	algorithm      string
	eventStream    string
	kafkaBrokers   string
	kafkaTopic     string
	workers        uint
	metrics        bool
	rateLimit      bool
	captureLogs    bool
	includeModules bool
	logFile        string

	debug     bool
	configDir string
	logger    *slog.Logger
}

// serveFlags are the registry keys bound to viper by serve.
var serveFlags = []string{
	config.FlagListen,
	config.FlagStorageDriver,
	config.FlagSQLite,
	config.FlagPostgresDSN,
	config.FlagAlgorithm,
	config.FlagEventStream,
	config.FlagKafkaBrokers,
	config.FlagKafkaTopic,
	config.FlagWorkers,
	config.FlagMetrics,
	config.FlagRateLimit,
	config.FlagCaptureLogs,
	config.FlagModules,
}

const serveLongDesc string = `Run the faultline ingestion API.

Faults are submitted as structured JSON (POST /faults) or as printed stack
traces (POST /faults/trace). Every submission is deduplicated into a fault
and its fault strand and recorded as a new entry of the occurrence feed.

Settings come from, in order of precedence: flags, FAULTLINE_* environment
variables, config.toml in the .faultline/ directory, and defaults. Rate
limit settings are reloaded when config.toml changes.

Examples:
  faultline serve
  faultline serve --storage-driver postgres --postgres-dsn postgres://localhost/faultline
  faultline serve --eventstream kafka --kafka-brokers localhost:9092
  faultline serve --log-file /var/log/faultline.json`

const serveShortDesc string = "Run the faultline API server"

func NewServeCmd() *cobra.Command {
	cmder := &ServeCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")

			cfg, err := cmder.loadConfig(cmd)
			if err != nil {
				return err
			}

			return cmder.run(cmd, cfg)
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagListen, &cmder.listen)
	config.AddStringFlag(cmd, config.Flags, config.FlagStorageDriver, &cmder.storageDriver)
	config.AddStringFlag(cmd, config.Flags, config.FlagSQLite, &cmder.sqlitePath)
	config.AddStringFlag(cmd, config.Flags, config.FlagPostgresDSN, &cmder.postgresDSN)
	config.AddStringFlag(cmd, config.Flags, config.FlagAlgorithm, &cmder.algorithm)
	config.AddStringFlag(cmd, config.Flags, config.FlagEventStream, &cmder.eventStream)
	config.AddStringFlag(cmd, config.Flags, config.FlagKafkaBrokers, &cmder.kafkaBrokers)
	config.AddStringFlag(cmd, config.Flags, config.FlagKafkaTopic, &cmder.kafkaTopic)
	config.AddUintFlag(cmd, config.Flags, config.FlagWorkers, &cmder.workers)
	config.AddBoolFlag(cmd, config.Flags, config.FlagMetrics, &cmder.metrics)
	config.AddBoolFlag(cmd, config.Flags, config.FlagRateLimit, &cmder.rateLimit)
	config.AddBoolFlag(cmd, config.Flags, config.FlagCaptureLogs, &cmder.captureLogs)
	config.AddBoolFlag(cmd, config.Flags, config.FlagModules, &cmder.includeModules)

	cmd.Flags().StringVar(&cmder.logFile, "log-file", "", "Also write JSON logs to this file")

	return cmd
}

// loadConfig resolves the configuration through the full precedence chain.
func (c *ServeCommander) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	v, err := config.InitViper(c.configDir)
	if err != nil {
		return nil, err
	}

	config.BindRegisteredFlags(v, cmd, config.Flags, serveFlags)

	cfg, err := config.FromViper(v)
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *ServeCommander) run(cmd *cobra.Command, cfg *config.Config) error {
	base, closeLog, err := c.newLogger()
	if err != nil {
		return err
	}
	defer closeLog()
	c.logger = base

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	builder, err := backend.NewBuilder(cfg)
	if err != nil {
		return fmt.Errorf("creating fault builder: %w", err)
	}

	driver, err := backend.OpenDriver(ctx, cfg, c.configDir, builder, base)
	if err != nil {
		return err
	}
	defer driver.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	publisher, err := backend.NewPublisher(cfg, m, base)
	if err != nil {
		return err
	}
	defer publisher.Close()

	host, _ := os.Hostname()
	store, err := ingest.NewStore(ingest.Config{
		Driver:    driver,
		Builder:   builder,
		Publisher: publisher,
		Metrics:   m,
		Logger:    base,
		Host:      host,
	})
	if err != nil {
		return fmt.Errorf("creating ingest store: %w", err)
	}

	if cfg.Ingest.CaptureLogs {
		pool, err := ingest.NewPool(&ingest.PoolConfig{
			Store:      store,
			NumWorkers: cfg.Ingest.Workers,
			QueueSize:  cfg.Ingest.QueueSize,
			Metrics:    m,
			Logger:     base,
		})
		if err != nil {
			return fmt.Errorf("creating ingest pool: %w", err)
		}
		defer pool.Close()

		c.logger = slog.New(ingest.NewHandler(base.Handler(), pool, ingest.WithLoggerName("faultline")))
		c.logger.Info("capturing error logs as faults", "workers", cfg.Ingest.Workers)
	}

	var limiter *ratelimit.Limiter
	if cfg.RateLimit.Enabled {
		limiter, err = ratelimit.New(backend.RateLimit(cfg.RateLimit))
		if err != nil {
			return fmt.Errorf("creating rate limiter: %w", err)
		}
		c.watchRateLimit(ctx, cmd, limiter)
	}

	server, err := api.NewServer(api.Config{
		ListenAddr:    cfg.API.Listen,
		EnableMetrics: cfg.API.EnableMetrics,
		Registry:      registry,
		Metrics:       m,
		Limiter:       limiter,
	}, store, c.logger)
	if err != nil {
		return err
	}

	errChan := make(chan error, 1)
	go func() {
		if err := server.Run(); err != nil {
			errChan <- fmt.Errorf("API server error: %w", err)
		}
	}()

	// Wait for interrupt signal or error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		c.logger.Info("received signal, shutting down", "signal", sig.String())
		return server.Shutdown()
	}
}

// newLogger builds the console logger, fanned out to a JSON log file when
// --log-file is set.
func (c *ServeCommander) newLogger() (*slog.Logger, func() error, error) {
	pretty := term.IsTerminal(int(os.Stdout.Fd()))
	console := logger.New(
		logger.WithDebug(c.debug),
		logger.WithPretty(pretty),
		logger.WithJSON(!pretty),
	)
	if c.logFile == "" {
		return console, func() error { return nil }, nil
	}

	f, err := os.OpenFile(c.logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}

	file := logger.New(
		logger.WithDebug(c.debug),
		logger.WithSource(c.debug),
		logger.WithJSON(true),
		logger.WithWriter(f),
	)
	return logger.Multi(console, file), f.Close, nil
}

// watchRateLimit reconfigures limiter whenever config.toml changes. A
// change that fails validation keeps the previous settings.
func (c *ServeCommander) watchRateLimit(ctx context.Context, cmd *cobra.Command, limiter *ratelimit.Limiter) {
	dir, err := dotdir.NewManager().Target(c.configDir)
	if err != nil {
		c.logger.Warn("config reload disabled", "error", err)
		return
	}
	path := filepath.Join(dir, "config.toml")

	go func() {
		err := config.Watch(ctx, path, c.logger, func() {
			cfg, err := c.loadConfig(cmd)
			if err != nil {
				c.logger.Warn("ignoring config change", "error", err)
				return
			}

			if err := limiter.Reconfigure(backend.RateLimit(cfg.RateLimit)); err != nil {
				c.logger.Warn("ignoring rate limit change", "error", err)
				return
			}

			c.logger.Info("rate limit reconfigured",
				"start_tokens", cfg.RateLimit.StartTokens,
				"max_tokens", cfg.RateLimit.MaxTokens,
				"refill_period", cfg.RateLimit.Period().String(),
				"refills_per_period", cfg.RateLimit.RefillsPerPeriod,
			)
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			c.logger.Warn("config watcher stopped", "error", err)
		}
	}()
}
