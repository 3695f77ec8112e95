package backend_test

import (
	"context"
	"crypto"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/faultline/cmd/faultline/backend"
	"github.com/papercomputeco/faultline/pkg/config"
	"github.com/papercomputeco/faultline/pkg/eventstream/kafka"
	"github.com/papercomputeco/faultline/pkg/eventstream/nop"
	"github.com/papercomputeco/faultline/pkg/fault"
	"github.com/papercomputeco/faultline/pkg/identity"
	"github.com/papercomputeco/faultline/pkg/logger"
	"github.com/papercomputeco/faultline/pkg/ratelimit"
	"github.com/papercomputeco/faultline/pkg/storage/inmemory"
)

var _ = Describe("NewBuilder", func() {
	It("uses the configured algorithm", func() {
		cfg := config.NewDefaultConfig()
		cfg.Identity.Algorithm = "sha256"

		b, err := backend.NewBuilder(cfg)
		Expect(err).NotTo(HaveOccurred())
		Expect(b.Hasher().Algorithm()).To(Equal(crypto.SHA256))
	})

	It("carries the strand policy", func() {
		cfg := config.NewDefaultConfig()
		cfg.Strand.IncludeModules = true

		b, err := backend.NewBuilder(cfg)
		Expect(err).NotTo(HaveOccurred())
		Expect(b.Policy()).To(Equal(fault.StrandPolicy{IncludeModules: true}))
	})

	It("rejects an unknown algorithm", func() {
		cfg := config.NewDefaultConfig()
		cfg.Identity.Algorithm = "crc32"

		_, err := backend.NewBuilder(cfg)
		Expect(err).To(MatchError(identity.ErrAlgorithmUnavailable))
	})
})

var _ = Describe("OpenDriver", func() {
	var (
		ctx context.Context
		b   *fault.Builder
		cfg *config.Config
	)

	BeforeEach(func() {
		ctx = context.Background()
		cfg = config.NewDefaultConfig()

		var err error
		b, err = backend.NewBuilder(cfg)
		Expect(err).NotTo(HaveOccurred())
	})

	It("opens the in-memory driver", func() {
		cfg.Storage.Driver = config.DriverInMemory

		driver, err := backend.OpenDriver(ctx, cfg, "", b, logger.Nop())
		Expect(err).NotTo(HaveOccurred())
		defer driver.Close()
		Expect(driver).To(BeAssignableToTypeOf(&inmemory.Driver{}))
	})

	It("opens SQLite in the config dir by default", func() {
		dir := GinkgoT().TempDir()

		path, err := backend.SQLitePath(cfg, dir)
		Expect(err).NotTo(HaveOccurred())
		Expect(path).To(Equal(filepath.Join(dir, "faultline.db")))

		driver, err := backend.OpenDriver(ctx, cfg, dir, b, logger.Nop())
		Expect(err).NotTo(HaveOccurred())
		defer driver.Close()
		Expect(path).To(BeAnExistingFile())
	})

	It("prefers the configured SQLite path", func() {
		cfg.Storage.SQLitePath = "/tmp/elsewhere.db"

		path, err := backend.SQLitePath(cfg, GinkgoT().TempDir())
		Expect(err).NotTo(HaveOccurred())
		Expect(path).To(Equal("/tmp/elsewhere.db"))
	})

	It("requires a DSN for PostgreSQL", func() {
		cfg.Storage.Driver = config.DriverPostgres

		_, err := backend.OpenDriver(ctx, cfg, "", b, logger.Nop())
		Expect(err).To(MatchError(ContainSubstring("postgres_dsn")))
	})
})

var _ = Describe("NewPublisher", func() {
	It("defaults to the nop publisher", func() {
		p, err := backend.NewPublisher(config.NewDefaultConfig(), nil, logger.Nop())
		Expect(err).NotTo(HaveOccurred())
		Expect(p).To(BeAssignableToTypeOf(&nop.Publisher{}))
	})

	It("requires brokers for Kafka", func() {
		cfg := config.NewDefaultConfig()
		cfg.EventStream.Provider = config.EventStreamKafka

		_, err := backend.NewPublisher(cfg, nil, logger.Nop())
		Expect(err).To(MatchError(ContainSubstring("broker")))
	})

	It("builds a Kafka publisher without contacting the brokers", func() {
		cfg := config.NewDefaultConfig()
		cfg.EventStream.Provider = config.EventStreamKafka
		cfg.EventStream.Brokers = "localhost:9092"
		cfg.EventStream.Topic = "faults"

		p, err := backend.NewPublisher(cfg, nil, logger.Nop())
		Expect(err).NotTo(HaveOccurred())
		Expect(p).To(BeAssignableToTypeOf(&kafka.Publisher{}))
		Expect(p.Close()).To(Succeed())
	})
})

var _ = Describe("RateLimit", func() {
	It("converts the configured section", func() {
		got := backend.RateLimit(config.RateLimitConfig{
			StartTokens:      5,
			MaxTokens:        20,
			RefillPeriod:     "500ms",
			RefillsPerPeriod: 2,
		})

		Expect(got).To(Equal(ratelimit.Config{
			StartTokens:      5,
			MaxTokens:        20,
			RefillPeriod:     500 * time.Millisecond,
			RefillsPerPeriod: 2,
		}))
		Expect(got.Validate()).To(Succeed())
	})
})
