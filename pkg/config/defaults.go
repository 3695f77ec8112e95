package config

// Storage drivers.
const (
	DriverInMemory = "inmemory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Event stream providers.
const (
	EventStreamNop   = "nop"
	EventStreamKafka = "kafka"
)

const (
	defaultDriver    = DriverSQLite
	defaultAPIListen = ":8090"

	defaultStartTokens      = 10
	defaultRefillPeriod     = "1s"
	defaultRefillsPerPeriod = 1

	defaultEventStreamProvider = EventStreamNop
	defaultEventStreamTopic    = "faultline.feed"

	defaultAlgorithm = "md5"

	defaultIngestWorkers   = 2
	defaultIngestQueueSize = 256
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Storage: StorageConfig{
			Driver: defaultDriver,
		},
		API: APIConfig{
			Listen:        defaultAPIListen,
			EnableMetrics: true,
		},
		RateLimit: RateLimitConfig{
			Enabled:          true,
			StartTokens:      defaultStartTokens,
			RefillPeriod:     defaultRefillPeriod,
			RefillsPerPeriod: defaultRefillsPerPeriod,
		},
		EventStream: EventStreamConfig{
			Provider: defaultEventStreamProvider,
			Topic:    defaultEventStreamTopic,
		},
		Identity: IdentityConfig{
			Algorithm: defaultAlgorithm,
		},
		Ingest: IngestConfig{
			Workers:   defaultIngestWorkers,
			QueueSize: defaultIngestQueueSize,
		},
	}
}
