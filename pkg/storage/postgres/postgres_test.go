package postgres_test

import (
	"context"
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/faultline/pkg/fault"
	"github.com/papercomputeco/faultline/pkg/storage"
	"github.com/papercomputeco/faultline/pkg/storage/postgres"
	"github.com/papercomputeco/faultline/pkg/storage/storagetest"
)

// connStr returns the PostgreSQL connection string from environment or skips the test.
func connStr() string {
	dsn := os.Getenv("FAULTLINE_TEST_POSTGRES_DSN")
	if dsn == "" {
		Skip("FAULTLINE_TEST_POSTGRES_DSN not set, skipping PostgreSQL tests")
	}
	return dsn
}

var _ = storagetest.DescribeDriver("postgres", func(b *fault.Builder) storage.Driver {
	ctx := context.Background()

	d, err := postgres.NewDriver(ctx, connStr(), b)
	Expect(err).NotTo(HaveOccurred())

	// Clean all tables before each test for isolation.
	_, err = d.DB().ExecContext(ctx, "TRUNCATE feed_entries, faults, fault_strands, sequences")
	Expect(err).NotTo(HaveOccurred())

	return d
})

var _ = Describe("Driver", func() {
	It("fails fast on an unreachable server", func() {
		connStr()

		b, err := fault.NewDefaultBuilder()
		Expect(err).NotTo(HaveOccurred())

		_, err = postgres.NewDriver(context.Background(), "postgres://nobody@127.0.0.1:1/none?sslmode=disable&connect_timeout=1", b)
		Expect(err).To(HaveOccurred())
	})
})
