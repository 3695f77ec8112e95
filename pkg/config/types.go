package config

import (
	"fmt"
	"strconv"
	"time"
)

// Config represents the persistent faultline configuration stored as
// config.toml in the .faultline/ directory. The TOML layout uses sections for
// logical grouping.
type Config struct {
	Version     int               `toml:"version"`
	Storage     StorageConfig     `toml:"storage"`
	API         APIConfig         `toml:"api"`
	RateLimit   RateLimitConfig   `toml:"ratelimit"`
	EventStream EventStreamConfig `toml:"eventstream"`
	Identity    IdentityConfig    `toml:"identity"`
	Strand      StrandConfig      `toml:"strand"`
	Ingest      IngestConfig      `toml:"ingest"`
}

// StorageConfig selects and configures the storage driver.
type StorageConfig struct {
	// Driver is "inmemory", "sqlite" or "postgres".
	Driver      string `toml:"driver,omitempty"`
	SQLitePath  string `toml:"sqlite_path,omitempty"`
	PostgresDSN string `toml:"postgres_dsn,omitempty"`
}

// APIConfig holds API server settings.
type APIConfig struct {
	Listen        string `toml:"listen,omitempty"`
	EnableMetrics bool   `toml:"enable_metrics"`
}

// RateLimitConfig holds the submission token bucket settings.
type RateLimitConfig struct {
	Enabled          bool   `toml:"enabled"`
	StartTokens      int64  `toml:"start_tokens"`
	MaxTokens        int64  `toml:"max_tokens"`
	RefillPeriod     string `toml:"refill_period,omitempty"`
	RefillsPerPeriod int64  `toml:"refills_per_period"`
}

// EventStreamConfig holds feed event publishing settings.
type EventStreamConfig struct {
	// Provider is "nop" or "kafka".
	Provider string `toml:"provider,omitempty"`

	// Brokers is a comma-separated list of Kafka bootstrap addresses.
	Brokers string `toml:"brokers,omitempty"`
	Topic   string `toml:"topic,omitempty"`
}

// IdentityConfig holds hashing settings.
type IdentityConfig struct {
	Algorithm string `toml:"algorithm,omitempty"`
}

// StrandConfig holds the structural scope of fault strands.
type StrandConfig struct {
	IncludeModules bool `toml:"include_modules"`
}

// IngestConfig holds the asynchronous ingest pool settings.
type IngestConfig struct {
	Workers   uint `toml:"workers,omitempty"`
	QueueSize uint `toml:"queue_size,omitempty"`

	// CaptureLogs records the server's own error logs as faults.
	CaptureLogs bool `toml:"capture_logs"`
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

func stringKey(field func(c *Config) *string) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return *field(c) },
		set: func(c *Config, v string) error { *field(c) = v; return nil },
	}
}

func boolKey(name string, field func(c *Config) *bool) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return strconv.FormatBool(*field(c)) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			*field(c) = b
			return nil
		},
	}
}

func intKey(name string, field func(c *Config) *int64) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return strconv.FormatInt(*field(c), 10) },
		set: func(c *Config, v string) error {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			if n < 0 {
				return fmt.Errorf("invalid value for %s: must not be negative", name)
			}
			*field(c) = n
			return nil
		},
	}
}

func uintKey(name string, field func(c *Config) *uint) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string {
			if *field(c) == 0 {
				return ""
			}
			return strconv.FormatUint(uint64(*field(c)), 10)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			*field(c) = uint(n)
			return nil
		},
	}
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"storage.driver": {
		get: func(c *Config) string { return c.Storage.Driver },
		set: func(c *Config, v string) error {
			switch v {
			case DriverInMemory, DriverSQLite, DriverPostgres:
				c.Storage.Driver = v
				return nil
			default:
				return fmt.Errorf("invalid value for storage.driver: %q (available: %s, %s, %s)",
					v, DriverInMemory, DriverSQLite, DriverPostgres)
			}
		},
	},
	"storage.sqlite_path":  stringKey(func(c *Config) *string { return &c.Storage.SQLitePath }),
	"storage.postgres_dsn": stringKey(func(c *Config) *string { return &c.Storage.PostgresDSN }),

	"api.listen":         stringKey(func(c *Config) *string { return &c.API.Listen }),
	"api.enable_metrics": boolKey("api.enable_metrics", func(c *Config) *bool { return &c.API.EnableMetrics }),

	"ratelimit.enabled":      boolKey("ratelimit.enabled", func(c *Config) *bool { return &c.RateLimit.Enabled }),
	"ratelimit.start_tokens": intKey("ratelimit.start_tokens", func(c *Config) *int64 { return &c.RateLimit.StartTokens }),
	"ratelimit.max_tokens":   intKey("ratelimit.max_tokens", func(c *Config) *int64 { return &c.RateLimit.MaxTokens }),
	"ratelimit.refill_period": {
		get: func(c *Config) string { return c.RateLimit.RefillPeriod },
		set: func(c *Config, v string) error {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("invalid value for ratelimit.refill_period: %w", err)
			}
			if d <= 0 {
				return fmt.Errorf("invalid value for ratelimit.refill_period: must be positive")
			}
			c.RateLimit.RefillPeriod = v
			return nil
		},
	},
	"ratelimit.refills_per_period": intKey("ratelimit.refills_per_period", func(c *Config) *int64 { return &c.RateLimit.RefillsPerPeriod }),

	"eventstream.provider": {
		get: func(c *Config) string { return c.EventStream.Provider },
		set: func(c *Config, v string) error {
			switch v {
			case EventStreamNop, EventStreamKafka:
				c.EventStream.Provider = v
				return nil
			default:
				return fmt.Errorf("invalid value for eventstream.provider: %q (available: %s, %s)",
					v, EventStreamNop, EventStreamKafka)
			}
		},
	},
	"eventstream.brokers": stringKey(func(c *Config) *string { return &c.EventStream.Brokers }),
	"eventstream.topic":   stringKey(func(c *Config) *string { return &c.EventStream.Topic }),

	"identity.algorithm": stringKey(func(c *Config) *string { return &c.Identity.Algorithm }),

	"strand.include_modules": boolKey("strand.include_modules", func(c *Config) *bool { return &c.Strand.IncludeModules }),

	"ingest.workers":      uintKey("ingest.workers", func(c *Config) *uint { return &c.Ingest.Workers }),
	"ingest.queue_size":   uintKey("ingest.queue_size", func(c *Config) *uint { return &c.Ingest.QueueSize }),
	"ingest.capture_logs": boolKey("ingest.capture_logs", func(c *Config) *bool { return &c.Ingest.CaptureLogs }),
}
