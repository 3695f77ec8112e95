package ingest_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/papercomputeco/faultline/pkg/eventstream"
	"github.com/papercomputeco/faultline/pkg/fault"
	"github.com/papercomputeco/faultline/pkg/identity"
	"github.com/papercomputeco/faultline/pkg/ingest"
	"github.com/papercomputeco/faultline/pkg/metrics"
	"github.com/papercomputeco/faultline/pkg/storage"
	"github.com/papercomputeco/faultline/pkg/storage/inmemory"
	"github.com/papercomputeco/faultline/pkg/trace"
)

const sampleTrace = `java.lang.IllegalStateException: cache miss for user 42
	at com.example.cache.Loader.load(Loader.java:88)
	at com.example.api.Handler.serve(Handler.java:21)
Caused by: java.io.IOException: connection reset
	at com.example.net.Socket.read(Socket.java:301)
	... 2 more
`

type recordingPublisher struct {
	mu     sync.Mutex
	events []*eventstream.FeedEntryEvent
	err    error
}

func (p *recordingPublisher) PublishFeedEntry(_ context.Context, ev *eventstream.FeedEntryEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) Events() []*eventstream.FeedEntryEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*eventstream.FeedEntryEvent(nil), p.events...)
}

// failingDriver fails appends after storing records normally.
type failingDriver struct {
	*inmemory.Driver
}

func (failingDriver) Append(context.Context, *storage.FeedEntry) (*storage.FeedEntry, error) {
	return nil, errors.New("disk full")
}

func traceWithMessage(msg string) string {
	return fmt.Sprintf(`java.lang.IllegalStateException: %s
	at com.example.cache.Loader.load(Loader.java:88)
`, msg)
}

var _ = Describe("Store", func() {
	var (
		ctx       context.Context
		builder   *fault.Builder
		driver    *inmemory.Driver
		publisher *recordingPublisher
		m         *metrics.Ingest
		store     *ingest.Store
		now       time.Time
	)

	BeforeEach(func() {
		var err error
		ctx = context.Background()
		builder, err = fault.NewDefaultBuilder()
		Expect(err).NotTo(HaveOccurred())

		driver = inmemory.NewDriver()
		publisher = &recordingPublisher{}
		m = metrics.New(prometheus.NewRegistry())
		now = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

		store, err = ingest.NewStore(ingest.Config{
			Driver:    driver,
			Builder:   builder,
			Publisher: publisher,
			Metrics:   m,
			Host:      "test-host",
			Now:       func() time.Time { return now },
		})
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("NewStore", func() {
		It("requires a driver and a builder", func() {
			_, err := ingest.NewStore(ingest.Config{Builder: builder})
			Expect(err).To(HaveOccurred())

			_, err = ingest.NewStore(ingest.Config{Driver: driver})
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Store", func() {
		It("stores one fault row and two feed entries for the same fault", func() {
			f, err := trace.ParseFault(builder, sampleTrace)
			Expect(err).NotTo(HaveOccurred())

			first, err := store.Store(ctx, ingest.Occurrence{Fault: f})
			Expect(err).NotTo(HaveOccurred())
			second, err := store.Store(ctx, ingest.Occurrence{Fault: f})
			Expect(err).NotTo(HaveOccurred())

			Expect(first.ID).NotTo(Equal(second.ID))
			Expect(first.FaultID).To(Equal(second.FaultID))
			Expect(first.FaultSequenceNo).To(Equal(int64(0)))
			Expect(second.FaultSequenceNo).To(Equal(int64(1)))

			stats, err := store.Stats(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(stats).To(Equal(storage.Stats{Faults: 1, FaultStrands: 1, FeedEntries: 2}))
		})

		It("groups faults that differ only in message under one strand", func() {
			a, err := trace.ParseFault(builder, traceWithMessage("user 1"))
			Expect(err).NotTo(HaveOccurred())
			b, err := trace.ParseFault(builder, traceWithMessage("user 2"))
			Expect(err).NotTo(HaveOccurred())

			ea, err := store.Store(ctx, ingest.Occurrence{Fault: a})
			Expect(err).NotTo(HaveOccurred())
			eb, err := store.Store(ctx, ingest.Occurrence{Fault: b})
			Expect(err).NotTo(HaveOccurred())

			Expect(ea.FaultID).NotTo(Equal(eb.FaultID))
			Expect(ea.FaultStrandID).To(Equal(eb.FaultStrandID))
			Expect(ea.FaultSequenceNo).To(Equal(int64(0)))
			Expect(eb.FaultSequenceNo).To(Equal(int64(0)))
			Expect(eb.FaultStrandSequenceNo).To(Equal(int64(1)))
			Expect(eb.GlobalSequenceNo).To(Equal(int64(1)))
		})

		It("defaults the timestamp to the clock", func() {
			f, err := trace.ParseFault(builder, sampleTrace)
			Expect(err).NotTo(HaveOccurred())

			e, err := store.Store(ctx, ingest.Occurrence{Fault: f})
			Expect(err).NotTo(HaveOccurred())
			Expect(e.Timestamp).To(BeTemporally("==", now))
		})

		It("publishes an event marking first sightings", func() {
			f, err := trace.ParseFault(builder, sampleTrace)
			Expect(err).NotTo(HaveOccurred())

			_, err = store.Store(ctx, ingest.Occurrence{Fault: f, Submitter: metrics.SubmitterTrace})
			Expect(err).NotTo(HaveOccurred())
			_, err = store.Store(ctx, ingest.Occurrence{Fault: f, Submitter: metrics.SubmitterTrace})
			Expect(err).NotTo(HaveOccurred())

			events := publisher.Events()
			Expect(events).To(HaveLen(2))
			Expect(events[0].NewFault).To(BeTrue())
			Expect(events[0].NewFaultStrand).To(BeTrue())
			Expect(events[0].Source).To(Equal(eventstream.EventSource{Submitter: "trace", Host: "test-host"}))
			Expect(events[0].Causes).To(HaveLen(2))
			Expect(events[1].NewFault).To(BeFalse())
			Expect(events[1].Entry.FaultSequenceNo).To(Equal(int64(1)))

			Expect(testutil.ToFloat64(m.NewFaultsTotal)).To(Equal(1.0))
			Expect(testutil.ToFloat64(m.NewFaultStrandsTotal)).To(Equal(1.0))
		})

		It("does not fail when publishing fails", func() {
			publisher.err = errors.New("broker unavailable")
			f, err := trace.ParseFault(builder, sampleTrace)
			Expect(err).NotTo(HaveOccurred())

			_, err = store.Store(ctx, ingest.Occurrence{Fault: f})
			Expect(err).NotTo(HaveOccurred())
			Expect(testutil.ToFloat64(m.PublishFailuresTotal)).To(Equal(1.0))
		})

		It("rejects an occurrence without a fault", func() {
			_, err := store.Store(ctx, ingest.Occurrence{})
			Expect(err).To(MatchError(ingest.ErrInvalidSubmission))
		})

		It("propagates persistence failures without publishing", func() {
			failing, err := ingest.NewStore(ingest.Config{
				Driver:    failingDriver{inmemory.NewDriver()},
				Builder:   builder,
				Publisher: publisher,
			})
			Expect(err).NotTo(HaveOccurred())

			f, err := trace.ParseFault(builder, sampleTrace)
			Expect(err).NotTo(HaveOccurred())

			_, err = failing.Store(ctx, ingest.Occurrence{Fault: f})
			Expect(err).To(MatchError(ContainSubstring("disk full")))
			Expect(publisher.Events()).To(BeEmpty())
		})

		It("assigns exactly 0..N-1 to concurrent occurrences of one fault", func() {
			f, err := trace.ParseFault(builder, sampleTrace)
			Expect(err).NotTo(HaveOccurred())

			const n = 32
			seqs := make([]int64, n)
			var wg sync.WaitGroup
			for i := range n {
				wg.Add(1)
				go func() {
					defer GinkgoRecover()
					defer wg.Done()
					e, err := store.Store(ctx, ingest.Occurrence{Fault: f})
					Expect(err).NotTo(HaveOccurred())
					seqs[i] = e.FaultSequenceNo
				}()
			}
			wg.Wait()

			expected := make([]int64, n)
			for i := range expected {
				expected[i] = int64(i)
			}
			Expect(seqs).To(ConsistOf(expected))
		})
	})

	Describe("SubmitFault", func() {
		It("records a structured chain and returns a receipt", func() {
			ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
			receipt, err := store.SubmitFault(ctx, ingest.Submission{
				Causes: []fault.CauseDTO{
					{
						ClassName: "java.lang.RuntimeException",
						Message:   "wrapped",
						Frames: []fault.StackFrame{
							{ClassName: "com.example.App", Method: "run", File: "App.java", Line: 10},
						},
					},
					{ClassName: "java.io.IOException", Message: "closed"},
				},
				Timestamp: &ts,
				LogEntry:  &storage.LogEntry{Logger: "app", Level: "ERROR", Message: "request failed"},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(receipt.GlobalSequenceNo).To(Equal(int64(0)))

			entry, err := store.GetFeedEntry(ctx, receipt.FeedEntryID)
			Expect(err).NotTo(HaveOccurred())
			Expect(entry.Timestamp).To(BeTemporally("==", ts))
			Expect(entry.LogEntry.Message).To(Equal("request failed"))

			f, err := store.GetFault(ctx, receipt.FaultID)
			Expect(err).NotTo(HaveOccurred())
			Expect(f.Causes()).To(HaveLen(2))
			Expect(f.Root().ClassName()).To(Equal("java.io.IOException"))

			strand, err := store.GetFaultStrand(ctx, receipt.FaultStrandID)
			Expect(err).NotTo(HaveOccurred())
			Expect(strand.Identity()).To(Equal(f.Strand().Identity()))

			Expect(testutil.ToFloat64(m.SubmissionsTotal.WithLabelValues("json", "stored"))).To(Equal(1.0))
		})

		It("rejects an empty chain as invalid", func() {
			_, err := store.SubmitFault(ctx, ingest.Submission{})
			Expect(err).To(MatchError(ingest.ErrInvalidSubmission))
			Expect(testutil.ToFloat64(m.SubmissionsTotal.WithLabelValues("json", "invalid"))).To(Equal(1.0))
		})

		It("rejects a cause without a class name", func() {
			_, err := store.SubmitFault(ctx, ingest.Submission{
				Causes: []fault.CauseDTO{{Message: "anonymous"}},
			})
			Expect(err).To(MatchError(ingest.ErrInvalidSubmission))
		})

		It("resolves to the same fault as the printed trace when lines are omitted", func() {
			body := `{"causes":[{"class_name":"java.lang.IllegalStateException","message":"no line",
				"frames":[{"class_name":"com.example.App","method":"run","file":"App.java"}]}]}`

			var sub ingest.Submission
			Expect(json.Unmarshal([]byte(body), &sub)).To(Succeed())
			Expect(sub.Causes[0].Frames[0].Line).To(Equal(fault.LineUnknown))

			fromJSON, err := store.SubmitFault(ctx, sub)
			Expect(err).NotTo(HaveOccurred())

			fromTrace, err := store.SubmitTrace(ctx, "java.lang.IllegalStateException: no line\n\tat com.example.App.run(App.java)\n", nil)
			Expect(err).NotTo(HaveOccurred())

			Expect(fromTrace.FaultID).To(Equal(fromJSON.FaultID))
			Expect(fromTrace.FaultSequenceNo).To(Equal(int64(1)))
		})
	})

	Describe("SubmitTrace", func() {
		It("parses and records a printed trace", func() {
			receipt, err := store.SubmitTrace(ctx, sampleTrace, nil)
			Expect(err).NotTo(HaveOccurred())

			f, err := store.GetFault(ctx, receipt.FaultID)
			Expect(err).NotTo(HaveOccurred())
			Expect(f.Head().ClassName()).To(Equal("java.lang.IllegalStateException"))
			Expect(f.Root().Frames()).To(HaveLen(1))
		})

		It("returns the parse error and stores nothing", func() {
			_, err := store.SubmitTrace(ctx, "java.lang.Error: x\n\tnot a frame\n", nil)

			var perr *trace.ParseError
			Expect(errors.As(err, &perr)).To(BeTrue())
			Expect(perr.Line).To(Equal(2))

			stats, err := store.Stats(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(stats.FeedEntries).To(BeZero())
			Expect(testutil.ToFloat64(m.SubmissionsTotal.WithLabelValues("trace", "parse_error"))).To(Equal(1.0))
		})
	})

	Describe("SubmitError", func() {
		It("records the unwrap chain with the caller's stack", func() {
			base := errors.New("connection refused")
			err := fmt.Errorf("loading profile: %w", base)

			receipt, serr := store.SubmitError(ctx, err, nil, nil)
			Expect(serr).NotTo(HaveOccurred())

			f, gerr := store.GetFault(ctx, receipt.FaultID)
			Expect(gerr).NotTo(HaveOccurred())
			Expect(f.Causes()).To(HaveLen(2))
			Expect(f.Head().ClassName()).To(Equal("*fmt.wrapError"))
			Expect(f.Head().Message()).To(Equal("loading profile"))
			Expect(f.Root().Message()).To(Equal("connection refused"))
			Expect(f.Head().Frames()).NotTo(BeEmpty())
			Expect(f.Head().Frames()[0].ClassName).To(HavePrefix("github.com/papercomputeco/faultline/pkg/ingest_test"))
		})

		It("rejects a nil error", func() {
			_, err := store.SubmitError(ctx, nil, nil, nil)
			Expect(err).To(MatchError(ingest.ErrInvalidSubmission))
		})
	})

	Describe("ListFeed", func() {
		It("pages the global feed in order", func() {
			for i := range 3 {
				_, err := store.SubmitTrace(ctx, traceWithMessage(fmt.Sprint(i)), nil)
				Expect(err).NotTo(HaveOccurred())
			}

			entries, err := store.ListFeed(ctx, storage.ScopeGlobal, identity.Hash{}, 1, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(entries).To(HaveLen(2))
			Expect(entries[0].GlobalSequenceNo).To(Equal(int64(1)))
			Expect(entries[1].GlobalSequenceNo).To(Equal(int64(2)))
		})
	})
})
