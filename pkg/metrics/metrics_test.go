package metrics_test

import (
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/papercomputeco/faultline/pkg/metrics"
)

var _ = Describe("Ingest", func() {
	var (
		reg *prometheus.Registry
		m   *metrics.Ingest
	)

	BeforeEach(func() {
		reg = prometheus.NewRegistry()
		m = metrics.New(reg)
	})

	It("counts submissions by submitter and outcome", func() {
		m.RecordSubmission(metrics.SubmitterTrace, metrics.OutcomeStored)
		m.RecordSubmission(metrics.SubmitterTrace, metrics.OutcomeStored)
		m.RecordSubmission(metrics.SubmitterJSON, metrics.OutcomeParseError)

		Expect(testutil.ToFloat64(m.SubmissionsTotal.WithLabelValues("trace", "stored"))).To(Equal(2.0))
		Expect(testutil.ToFloat64(m.SubmissionsTotal.WithLabelValues("json", "parse_error"))).To(Equal(1.0))
	})

	It("counts first sightings only", func() {
		m.RecordStore(time.Millisecond, true, true, nil)
		m.RecordStore(time.Millisecond, true, false, nil)
		m.RecordStore(time.Millisecond, false, false, nil)

		Expect(testutil.ToFloat64(m.NewFaultsTotal)).To(Equal(2.0))
		Expect(testutil.ToFloat64(m.NewFaultStrandsTotal)).To(Equal(1.0))
	})

	It("observes store latency by outcome", func() {
		m.RecordStore(time.Millisecond, false, false, nil)
		m.RecordStore(time.Millisecond, false, false, errors.New("db down"))

		Expect(testutil.CollectAndCount(m.StoreDurationSeconds)).To(Equal(2))
	})

	It("tracks publish failures and queue depth", func() {
		m.RecordPublishFailure()
		m.SetQueueDepth(4)

		Expect(testutil.ToFloat64(m.PublishFailuresTotal)).To(Equal(1.0))
		Expect(testutil.ToFloat64(m.QueueDepth)).To(Equal(4.0))
	})

	It("registers every collector", func() {
		m.RecordSubmission(metrics.SubmitterLog, metrics.OutcomeDropped)
		m.RecordStore(time.Millisecond, false, false, nil)

		families, err := reg.Gather()
		Expect(err).NotTo(HaveOccurred())
		Expect(families).To(HaveLen(6))
	})

	It("is a no-op when nil", func() {
		var nilMetrics *metrics.Ingest
		Expect(func() {
			nilMetrics.RecordSubmission("json", "stored")
			nilMetrics.RecordStore(time.Second, true, true, nil)
			nilMetrics.RecordPublishFailure()
			nilMetrics.SetQueueDepth(1)
		}).NotTo(Panic())
	})
})
