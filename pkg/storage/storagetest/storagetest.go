// Package storagetest holds the behavioral specs every storage.Driver must
// pass. Driver packages call DescribeDriver from their ginkgo suites.
package storagetest

import (
	"context"
	"sort"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/google/uuid"

	"github.com/papercomputeco/faultline/pkg/fault"
	"github.com/papercomputeco/faultline/pkg/identity"
	"github.com/papercomputeco/faultline/pkg/storage"
)

// Factory opens an empty driver bound to b.
type Factory func(b *fault.Builder) storage.Driver

// NewFault builds a two-cause fault. Faults built with the same shape share
// a strand regardless of msg.
func NewFault(b *fault.Builder, shape, msg string) *fault.Fault {
	root := b.Cause("java.io.IOException", "read failed "+msg, []fault.StackFrame{
		{ClassName: "com.example." + shape + ".Disk", Method: "read", File: "Disk.java", Line: 12},
	}, nil)
	head := b.Cause("java.lang.IllegalStateException", msg, []fault.StackFrame{
		{ClassName: "com.example." + shape + ".Service", Method: "load", File: "Service.java", Line: 40},
		{ClassName: "com.example.Main", Method: "main", File: "Main.java", Line: 7},
	}, root)

	f, err := b.Fault(head)
	Expect(err).NotTo(HaveOccurred())
	return f
}

// Put stores f and its strand.
func Put(ctx context.Context, d storage.Driver, f *fault.Fault) {
	_, _, err := d.PutFaultStrand(ctx, f.Strand())
	Expect(err).NotTo(HaveOccurred())
	_, _, err = d.PutFault(ctx, f)
	Expect(err).NotTo(HaveOccurred())
}

// Occur appends one occurrence of f.
func Occur(ctx context.Context, d storage.Driver, f *fault.Fault) *storage.FeedEntry {
	e, err := d.Append(ctx, &storage.FeedEntry{
		FaultID:       f.Identity(),
		FaultStrandID: f.Strand().Identity(),
		Timestamp:     time.Now(),
	})
	Expect(err).NotTo(HaveOccurred())
	return e
}

// DescribeDriver registers the driver specs under name.
func DescribeDriver(name string, open Factory) bool {
	return Describe(name+" driver", func() {
		var (
			ctx context.Context
			b   *fault.Builder
			d   storage.Driver
		)

		BeforeEach(func() {
			ctx = context.Background()

			var err error
			b, err = fault.NewDefaultBuilder()
			Expect(err).NotTo(HaveOccurred())

			d = open(b)
			DeferCleanup(func() {
				Expect(d.Close()).To(Succeed())
			})
		})

		Describe("PutFaultStrand", func() {
			It("inserts once and returns the stored strand afterwards", func() {
				f := NewFault(b, "a", "x")

				s, inserted, err := d.PutFaultStrand(ctx, f.Strand())
				Expect(err).NotTo(HaveOccurred())
				Expect(inserted).To(BeTrue())
				Expect(s.Identity()).To(Equal(f.Strand().Identity()))

				other := NewFault(b, "a", "y")
				s, inserted, err = d.PutFaultStrand(ctx, other.Strand())
				Expect(err).NotTo(HaveOccurred())
				Expect(inserted).To(BeFalse())
				Expect(s.Identity()).To(Equal(f.Strand().Identity()))
			})

			It("rejects nil", func() {
				_, _, err := d.PutFaultStrand(ctx, nil)
				Expect(err).To(MatchError(storage.ErrNilRecord))
			})
		})

		Describe("PutFault", func() {
			It("inserts once and round-trips content", func() {
				f := NewFault(b, "a", "x")
				_, _, err := d.PutFaultStrand(ctx, f.Strand())
				Expect(err).NotTo(HaveOccurred())

				got, inserted, err := d.PutFault(ctx, f)
				Expect(err).NotTo(HaveOccurred())
				Expect(inserted).To(BeTrue())
				Expect(got.Identity()).To(Equal(f.Identity()))

				again, inserted, err := d.PutFault(ctx, NewFault(b, "a", "x"))
				Expect(err).NotTo(HaveOccurred())
				Expect(inserted).To(BeFalse())
				Expect(again.Identity()).To(Equal(f.Identity()))

				loaded, err := d.GetFault(ctx, f.Identity())
				Expect(err).NotTo(HaveOccurred())
				Expect(loaded.Identity()).To(Equal(f.Identity()))
				Expect(loaded.Strand().Identity()).To(Equal(f.Strand().Identity()))
				Expect(fault.FormatFault(loaded)).To(Equal(fault.FormatFault(f)))
			})

			It("requires the strand to be stored first", func() {
				_, _, err := d.PutFault(ctx, NewFault(b, "a", "x"))
				Expect(storage.IsNotFound(err)).To(BeTrue())
			})

			It("allows exactly one winner among concurrent first inserts", func() {
				f := NewFault(b, "race", "x")
				_, _, err := d.PutFaultStrand(ctx, f.Strand())
				Expect(err).NotTo(HaveOccurred())

				const n = 8
				var (
					wg      sync.WaitGroup
					mu      sync.Mutex
					winners int
				)
				for range n {
					wg.Add(1)
					go func() {
						defer GinkgoRecover()
						defer wg.Done()

						got, inserted, err := d.PutFault(ctx, NewFault(b, "race", "x"))
						Expect(err).NotTo(HaveOccurred())
						Expect(got.Identity()).To(Equal(f.Identity()))

						if inserted {
							mu.Lock()
							winners++
							mu.Unlock()
						}
					}()
				}
				wg.Wait()

				Expect(winners).To(Equal(1))
			})
		})

		Describe("lookups", func() {
			It("reports missing records as not found", func() {
				_, err := d.GetFault(ctx, identity.Hash{1})
				Expect(storage.IsNotFound(err)).To(BeTrue())

				_, err = d.GetFaultStrand(ctx, identity.Hash{1})
				Expect(storage.IsNotFound(err)).To(BeTrue())

				_, err = d.GetFeedEntry(ctx, uuid.New())
				Expect(storage.IsNotFound(err)).To(BeTrue())
			})

			It("round-trips a feed entry with its log entry", func() {
				f := NewFault(b, "a", "x")
				Put(ctx, d, f)

				ts := time.Date(2026, 3, 14, 15, 9, 26, 535000000, time.UTC)
				stored, err := d.Append(ctx, &storage.FeedEntry{
					FaultID:       f.Identity(),
					FaultStrandID: f.Strand().Identity(),
					Timestamp:     ts,
					LogEntry: &storage.LogEntry{
						Logger:  "billing",
						Level:   "ERROR",
						Message: "charge failed",
						Thread:  "worker-3",
					},
				})
				Expect(err).NotTo(HaveOccurred())
				Expect(stored.ID).NotTo(Equal(uuid.Nil))

				got, err := d.GetFeedEntry(ctx, stored.ID)
				Expect(err).NotTo(HaveOccurred())
				Expect(got.FaultID).To(Equal(f.Identity()))
				Expect(got.FaultStrandID).To(Equal(f.Strand().Identity()))
				Expect(got.Timestamp).To(BeTemporally("==", ts))
				Expect(got.LogEntry).To(Equal(stored.LogEntry))
				Expect(got.GlobalSequenceNo).To(Equal(stored.GlobalSequenceNo))
			})
		})

		Describe("Append", func() {
			It("numbers each scope independently from zero", func() {
				a := NewFault(b, "a", "x")
				a2 := NewFault(b, "a", "y")
				c := NewFault(b, "c", "x")
				Put(ctx, d, a)
				Put(ctx, d, a2)
				Put(ctx, d, c)

				e0 := Occur(ctx, d, a)
				e1 := Occur(ctx, d, a2)
				e2 := Occur(ctx, d, c)
				e3 := Occur(ctx, d, a)

				Expect([]int64{e0.GlobalSequenceNo, e1.GlobalSequenceNo, e2.GlobalSequenceNo, e3.GlobalSequenceNo}).
					To(Equal([]int64{0, 1, 2, 3}))
				Expect([]int64{e0.FaultSequenceNo, e1.FaultSequenceNo, e2.FaultSequenceNo, e3.FaultSequenceNo}).
					To(Equal([]int64{0, 0, 0, 1}))
				Expect([]int64{e0.FaultStrandSequenceNo, e1.FaultStrandSequenceNo, e2.FaultStrandSequenceNo, e3.FaultStrandSequenceNo}).
					To(Equal([]int64{0, 1, 0, 2}))
			})

			It("stores two entries but one row for a repeated occurrence", func() {
				f := NewFault(b, "a", "x")
				Put(ctx, d, f)
				Put(ctx, d, NewFault(b, "a", "x"))

				e0 := Occur(ctx, d, f)
				e1 := Occur(ctx, d, f)
				Expect(e0.GlobalSequenceNo).NotTo(Equal(e1.GlobalSequenceNo))
				Expect(e0.FaultID).To(Equal(e1.FaultID))

				stats, err := d.Stats(ctx)
				Expect(err).NotTo(HaveOccurred())
				Expect(stats).To(Equal(storage.Stats{Faults: 1, FaultStrands: 1, FeedEntries: 2}))
			})

			It("rejects entries for unknown faults", func() {
				_, err := d.Append(ctx, &storage.FeedEntry{FaultID: identity.Hash{9}, Timestamp: time.Now()})
				Expect(storage.IsNotFound(err)).To(BeTrue())
			})

			It("assigns gap-free fault sequence numbers under concurrency", func() {
				f := NewFault(b, "a", "x")
				Put(ctx, d, f)

				const n = 24
				seqs := make([]int64, n)
				var wg sync.WaitGroup
				for i := range n {
					wg.Add(1)
					go func() {
						defer GinkgoRecover()
						defer wg.Done()
						seqs[i] = Occur(ctx, d, f).FaultSequenceNo
					}()
				}
				wg.Wait()

				sort.Slice(seqs, func(i, j int) bool { return seqs[i] < seqs[j] })
				for i, s := range seqs {
					Expect(s).To(Equal(int64(i)))
				}
			})
		})

		Describe("ListFeed", func() {
			var a, c *fault.Fault

			BeforeEach(func() {
				a = NewFault(b, "a", "x")
				c = NewFault(b, "c", "x")
				Put(ctx, d, a)
				Put(ctx, d, c)

				for range 3 {
					Occur(ctx, d, a)
					Occur(ctx, d, c)
				}
			})

			It("pages the global feed in order", func() {
				page, err := d.ListFeed(ctx, storage.ScopeGlobal, identity.Hash{}, 2, 3)
				Expect(err).NotTo(HaveOccurred())
				Expect(page).To(HaveLen(3))
				for i, e := range page {
					Expect(e.GlobalSequenceNo).To(Equal(int64(2 + i)))
				}
			})

			It("filters by fault and strand", func() {
				page, err := d.ListFeed(ctx, storage.ScopeFault, a.Identity(), 0, 10)
				Expect(err).NotTo(HaveOccurred())
				Expect(page).To(HaveLen(3))
				for i, e := range page {
					Expect(e.FaultID).To(Equal(a.Identity()))
					Expect(e.FaultSequenceNo).To(Equal(int64(i)))
				}

				page, err = d.ListFeed(ctx, storage.ScopeFaultStrand, c.Strand().Identity(), 1, 10)
				Expect(err).NotTo(HaveOccurred())
				Expect(page).To(HaveLen(2))
				Expect(page[0].FaultStrandSequenceNo).To(Equal(int64(1)))
			})

			It("returns an empty page past the end", func() {
				page, err := d.ListFeed(ctx, storage.ScopeGlobal, identity.Hash{}, 100, 10)
				Expect(err).NotTo(HaveOccurred())
				Expect(page).To(BeEmpty())
			})

			It("rejects unknown scopes", func() {
				_, err := d.ListFeed(ctx, storage.Scope("nope"), identity.Hash{}, 0, 10)
				Expect(err).To(HaveOccurred())
			})
		})
	})
}
