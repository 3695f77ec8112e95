package sqlite_test

import (
	"context"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/faultline/pkg/fault"
	"github.com/papercomputeco/faultline/pkg/storage"
	"github.com/papercomputeco/faultline/pkg/storage/sqlite"
	"github.com/papercomputeco/faultline/pkg/storage/storagetest"
)

var _ = storagetest.DescribeDriver("sqlite", func(b *fault.Builder) storage.Driver {
	d, err := sqlite.NewSQLiteDriver(context.Background(), filepath.Join(GinkgoT().TempDir(), "faultline.db"), b)
	Expect(err).NotTo(HaveOccurred())
	return d
})

var _ = Describe("SQLiteDriver", func() {
	var (
		ctx context.Context
		b   *fault.Builder
	)

	BeforeEach(func() {
		ctx = context.Background()

		var err error
		b, err = fault.NewDefaultBuilder()
		Expect(err).NotTo(HaveOccurred())
	})

	It("creates a driver with file database", func() {
		dbPath := filepath.Join(GinkgoT().TempDir(), "test.db")

		d, err := sqlite.NewSQLiteDriver(ctx, dbPath, b)
		Expect(err).NotTo(HaveOccurred())
		defer d.Close()

		_, err = os.Stat(dbPath)
		Expect(err).NotTo(HaveOccurred())
	})

	It("works with an in-memory database", func() {
		d, err := sqlite.NewSQLiteDriver(ctx, ":memory:", b)
		Expect(err).NotTo(HaveOccurred())
		defer d.Close()

		f := storagetest.NewFault(b, "a", "x")
		storagetest.Put(ctx, d, f)
		Expect(storagetest.Occur(ctx, d, f).GlobalSequenceNo).To(BeZero())
	})

	It("keeps data and counters across reopen", func() {
		dbPath := filepath.Join(GinkgoT().TempDir(), "reopen.db")
		f := storagetest.NewFault(b, "a", "x")

		d, err := sqlite.NewSQLiteDriver(ctx, dbPath, b)
		Expect(err).NotTo(HaveOccurred())
		storagetest.Put(ctx, d, f)
		storagetest.Occur(ctx, d, f)
		Expect(d.Close()).To(Succeed())

		d, err = sqlite.NewSQLiteDriver(ctx, dbPath, b)
		Expect(err).NotTo(HaveOccurred())
		defer d.Close()

		_, inserted, err := d.PutFault(ctx, f)
		Expect(err).NotTo(HaveOccurred())
		Expect(inserted).To(BeFalse())

		e := storagetest.Occur(ctx, d, f)
		Expect(e.GlobalSequenceNo).To(Equal(int64(1)))
		Expect(e.FaultSequenceNo).To(Equal(int64(1)))
	})

	It("reports a record whose content no longer matches its identity", func() {
		d, err := sqlite.NewSQLiteDriver(ctx, ":memory:", b)
		Expect(err).NotTo(HaveOccurred())
		defer d.Close()

		f := storagetest.NewFault(b, "a", "x")
		storagetest.Put(ctx, d, f)

		_, err = d.DB().ExecContext(ctx, `UPDATE faults SET causes = '[{"class_name":"x.Tampered"}]'`)
		Expect(err).NotTo(HaveOccurred())

		_, err = d.GetFault(ctx, f.Identity())
		var corrupt storage.CorruptRecordError
		Expect(err).To(BeAssignableToTypeOf(corrupt))
	})
})
