package kafka

import (
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	kafkago "github.com/segmentio/kafka-go"
)

var _ = Describe("newWriter", func() {
	It("writes asynchronously so publishing never waits for a batch", func() {
		w := newWriter(Config{Brokers: []string{"localhost:9092"}, Topic: "faults"})
		Expect(w.Async).To(BeTrue())
		Expect(w.BatchTimeout).To(Equal(100 * time.Millisecond))
		Expect(w.Completion).To(BeNil())
	})

	It("reports failed batches only", func() {
		var failed []int
		w := newWriter(Config{
			Brokers: []string{"localhost:9092"},
			Topic:   "faults",
			OnDeliveryFailure: func(messages int, err error) {
				Expect(err).To(MatchError("leader not available"))
				failed = append(failed, messages)
			},
		})
		Expect(w.Completion).NotTo(BeNil())

		w.Completion(make([]kafkago.Message, 2), nil)
		w.Completion(make([]kafkago.Message, 3), errors.New("leader not available"))
		Expect(failed).To(Equal([]int{3}))
	})
})
