package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/papercomputeco/faultline/pkg/dotdir"
)

// EnvPrefix prefixes every environment override, e.g. FAULTLINE_API_LISTEN.
const EnvPrefix = "FAULTLINE"

// InitViper creates and returns a configured *viper.Viper.
// It sets defaults from NewDefaultConfig(), reads the config.toml file
// (if found via dotdir resolution), and binds environment variables
// with the FAULTLINE_ prefix.
//
// Config precedence (highest to lowest):
//  1. CLI flags (once bound via BindRegisteredFlags)
//  2. Environment variables (FAULTLINE_API_LISTEN, FAULTLINE_STORAGE_DRIVER, etc.)
//  3. config.toml file values
//  4. Defaults from NewDefaultConfig()
func InitViper(configDir string) (*viper.Viper, error) {
	v := viper.New()

	// 1. Register all defaults from NewDefaultConfig().
	setViperDefaults(v)

	// 2. Config file discovery via dotdir resolution.
	v.SetConfigName("config")
	v.SetConfigType("toml")

	ddm := dotdir.NewManager()
	target, err := ddm.Target(configDir)
	if err != nil {
		return nil, fmt.Errorf("resolving config dir: %w", err)
	}

	if target != "" {
		v.AddConfigPath(target)
	}

	if err := v.ReadInConfig(); err != nil {
		// Config file not found errors are fine, defaults will apply.
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	// 3. Environment variables: FAULTLINE_API_LISTEN, FAULTLINE_STORAGE_SQLITE_PATH, etc.
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v, nil
}

// setViperDefaults registers defaults from NewDefaultConfig() into viper
// using dotted-key notation. This keeps defaults.go as the single source of truth.
func setViperDefaults(v *viper.Viper) {
	d := NewDefaultConfig()

	v.SetDefault("version", d.Version)

	// Storage
	v.SetDefault("storage.driver", d.Storage.Driver)
	v.SetDefault("storage.sqlite_path", d.Storage.SQLitePath)
	v.SetDefault("storage.postgres_dsn", d.Storage.PostgresDSN)

	// API
	v.SetDefault("api.listen", d.API.Listen)
	v.SetDefault("api.enable_metrics", d.API.EnableMetrics)

	// Rate limit
	v.SetDefault("ratelimit.enabled", d.RateLimit.Enabled)
	v.SetDefault("ratelimit.start_tokens", d.RateLimit.StartTokens)
	v.SetDefault("ratelimit.max_tokens", d.RateLimit.MaxTokens)
	v.SetDefault("ratelimit.refill_period", d.RateLimit.RefillPeriod)
	v.SetDefault("ratelimit.refills_per_period", d.RateLimit.RefillsPerPeriod)

	// Event stream
	v.SetDefault("eventstream.provider", d.EventStream.Provider)
	v.SetDefault("eventstream.brokers", d.EventStream.Brokers)
	v.SetDefault("eventstream.topic", d.EventStream.Topic)

	// Identity
	v.SetDefault("identity.algorithm", d.Identity.Algorithm)
	v.SetDefault("strand.include_modules", d.Strand.IncludeModules)

	// Ingest
	v.SetDefault("ingest.workers", d.Ingest.Workers)
	v.SetDefault("ingest.queue_size", d.Ingest.QueueSize)
	v.SetDefault("ingest.capture_logs", d.Ingest.CaptureLogs)
}

// FromViper resolves a Config from v, honoring the full precedence chain.
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Version: v.GetInt("version"),
		Storage: StorageConfig{
			Driver:      v.GetString("storage.driver"),
			SQLitePath:  v.GetString("storage.sqlite_path"),
			PostgresDSN: v.GetString("storage.postgres_dsn"),
		},
		API: APIConfig{
			Listen:        v.GetString("api.listen"),
			EnableMetrics: v.GetBool("api.enable_metrics"),
		},
		RateLimit: RateLimitConfig{
			Enabled:          v.GetBool("ratelimit.enabled"),
			StartTokens:      v.GetInt64("ratelimit.start_tokens"),
			MaxTokens:        v.GetInt64("ratelimit.max_tokens"),
			RefillPeriod:     v.GetString("ratelimit.refill_period"),
			RefillsPerPeriod: v.GetInt64("ratelimit.refills_per_period"),
		},
		EventStream: EventStreamConfig{
			Provider: v.GetString("eventstream.provider"),
			Brokers:  v.GetString("eventstream.brokers"),
			Topic:    v.GetString("eventstream.topic"),
		},
		Identity: IdentityConfig{
			Algorithm: v.GetString("identity.algorithm"),
		},
		Strand: StrandConfig{
			IncludeModules: v.GetBool("strand.include_modules"),
		},
		Ingest: IngestConfig{
			Workers:     v.GetUint("ingest.workers"),
			QueueSize:   v.GetUint("ingest.queue_size"),
			CaptureLogs: v.GetBool("ingest.capture_logs"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}
