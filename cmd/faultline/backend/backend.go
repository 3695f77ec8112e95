// Package backend builds the configured identity, storage, event stream and
// rate limit components shared by faultline commands.
package backend

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/papercomputeco/faultline/pkg/config"
	"github.com/papercomputeco/faultline/pkg/dotdir"
	"github.com/papercomputeco/faultline/pkg/eventstream"
	"github.com/papercomputeco/faultline/pkg/eventstream/kafka"
	"github.com/papercomputeco/faultline/pkg/eventstream/nop"
	"github.com/papercomputeco/faultline/pkg/fault"
	"github.com/papercomputeco/faultline/pkg/identity"
	"github.com/papercomputeco/faultline/pkg/metrics"
	"github.com/papercomputeco/faultline/pkg/ratelimit"
	"github.com/papercomputeco/faultline/pkg/storage"
	"github.com/papercomputeco/faultline/pkg/storage/inmemory"
	"github.com/papercomputeco/faultline/pkg/storage/postgres"
	"github.com/papercomputeco/faultline/pkg/storage/sqlite"
)

// NewBuilder returns a fault.Builder for the configured algorithm and
// strand policy. Unknown or unavailable algorithms wrap
// identity.ErrAlgorithmUnavailable.
func NewBuilder(cfg *config.Config) (*fault.Builder, error) {
	alg, err := identity.ParseAlgorithm(cfg.Identity.Algorithm)
	if err != nil {
		return nil, err
	}

	hasher, err := fault.NewHasher(alg)
	if err != nil {
		return nil, err
	}

	return fault.NewBuilder(hasher, fault.WithStrandPolicy(fault.StrandPolicy{
		IncludeModules: cfg.Strand.IncludeModules,
	})), nil
}

// SQLitePath returns the configured database path, defaulting to
// faultline.db inside the resolved .faultline/ directory.
func SQLitePath(cfg *config.Config, configDir string) (string, error) {
	if cfg.Storage.SQLitePath != "" {
		return cfg.Storage.SQLitePath, nil
	}

	return dotdir.NewManager().File(configDir, dotdir.DatabaseFile)
}

// OpenDriver opens the configured storage driver.
func OpenDriver(ctx context.Context, cfg *config.Config, configDir string, b *fault.Builder, logger *slog.Logger) (storage.Driver, error) {
	switch cfg.Storage.Driver {
	case config.DriverInMemory:
		logger.Info("using in-memory storage")
		return inmemory.NewDriver(), nil

	case config.DriverPostgres:
		if cfg.Storage.PostgresDSN == "" {
			return nil, fmt.Errorf("storage driver %q requires storage.postgres_dsn", config.DriverPostgres)
		}

		driver, err := postgres.NewDriver(ctx, cfg.Storage.PostgresDSN, b)
		if err != nil {
			return nil, fmt.Errorf("failed to create PostgreSQL driver: %w", err)
		}
		logger.Info("using PostgreSQL storage")
		return driver, nil

	default:
		path, err := SQLitePath(cfg, configDir)
		if err != nil {
			return nil, err
		}

		driver, err := sqlite.NewSQLiteDriver(ctx, path, b)
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite driver: %w", err)
		}
		logger.Info("using SQLite storage", "path", path)
		return driver, nil
	}
}

// NewPublisher returns the configured feed event publisher. Kafka delivery
// failures are counted on m and logged.
func NewPublisher(cfg *config.Config, m *metrics.Ingest, logger *slog.Logger) (eventstream.Publisher, error) {
	if cfg.EventStream.Provider != config.EventStreamKafka {
		return nop.NewPublisher(), nil
	}

	p, err := kafka.NewPublisher(kafka.Config{
		Brokers: cfg.EventStream.BrokerList(),
		Topic:   cfg.EventStream.Topic,
		OnDeliveryFailure: func(messages int, err error) {
			for range messages {
				m.RecordPublishFailure()
			}
			logger.Warn("failed to deliver feed events",
				"topic", cfg.EventStream.Topic,
				"messages", messages,
				"error", err,
			)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka publisher: %w", err)
	}

	return p, nil
}

// RateLimit converts the ratelimit section to a limiter configuration.
func RateLimit(cfg config.RateLimitConfig) ratelimit.Config {
	return ratelimit.Config{
		StartTokens:      cfg.StartTokens,
		MaxTokens:        cfg.MaxTokens,
		RefillPeriod:     cfg.Period(),
		RefillsPerPeriod: cfg.RefillsPerPeriod,
	}
}
