package ratelimit_test

import (
	"math"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/fiber/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/faultline/pkg/ratelimit"
)

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var _ = Describe("Limiter", func() {
	var (
		clock *fakeClock
		cfg   ratelimit.Config
	)

	newLimiter := func() *ratelimit.Limiter {
		l, err := ratelimit.New(cfg, ratelimit.WithClock(clock.Now))
		Expect(err).NotTo(HaveOccurred())
		return l
	}

	BeforeEach(func() {
		clock = &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
		cfg = ratelimit.Config{StartTokens: 10, RefillPeriod: time.Second, RefillsPerPeriod: 1}
	})

	It("admits the start balance within one period and then rejects", func() {
		l := newLimiter()

		for i := range 10 {
			Expect(l.Allow("k")).To(BeTrue(), "call %d", i)
			clock.Advance(10 * time.Millisecond)
		}
		Expect(l.Allow("k")).To(BeFalse())
		Expect(l.Tokens("k")).To(BeZero())
	})

	It("refills after a whole period", func() {
		l := newLimiter()
		for range 10 {
			l.Allow("k")
		}
		Expect(l.Allow("k")).To(BeFalse())

		clock.Advance(time.Second)
		Expect(l.Allow("k")).To(BeTrue())
	})

	DescribeTable("keeps refilling a client that retries faster than the period",
		func(refills int64, want int) {
			cfg.RefillsPerPeriod = refills
			l := newLimiter()
			for range 10 {
				Expect(l.Allow("k")).To(BeTrue())
			}

			allowed := 0
			for range 10 {
				clock.Advance(500 * time.Millisecond)
				if l.Allow("k") {
					allowed++
				}
			}
			Expect(allowed).To(Equal(want))
		},
		Entry("one token per period", int64(0), 5),
		Entry("two tokens per period", int64(1), 9),
	)

	It("carries the partial period over to the next check", func() {
		cfg.StartTokens = 0
		cfg.RefillsPerPeriod = 0
		l := newLimiter()

		clock.Advance(1500 * time.Millisecond)
		Expect(l.Allow("k")).To(BeTrue())

		clock.Advance(500 * time.Millisecond)
		Expect(l.Allow("k")).To(BeTrue())
	})

	It("adds one plus refills per period for each elapsed period", func() {
		cfg.StartTokens = 0
		cfg.RefillsPerPeriod = 2
		l := newLimiter()
		Expect(l.Allow("k")).To(BeFalse())

		clock.Advance(3*time.Second + 500*time.Millisecond)
		Expect(l.Allow("k")).To(BeTrue())
		Expect(l.Tokens("k")).To(Equal(int64(1 + 2*3 - 1)))
	})

	It("does not refill within a period", func() {
		cfg.StartTokens = 1
		l := newLimiter()
		Expect(l.Allow("k")).To(BeTrue())

		clock.Advance(999 * time.Millisecond)
		Expect(l.Allow("k")).To(BeFalse())
	})

	It("caps refills at MaxTokens", func() {
		cfg.MaxTokens = 12
		l := newLimiter()

		clock.Advance(time.Hour)
		Expect(l.Allow("k")).To(BeTrue())
		Expect(l.Tokens("k")).To(Equal(int64(11)))
	})

	It("saturates instead of overflowing", func() {
		cfg.RefillsPerPeriod = math.MaxInt64 / 2
		l := newLimiter()

		clock.Advance(1000 * time.Hour)
		Expect(l.Allow("k")).To(BeTrue())
		Expect(l.Tokens("k")).To(Equal(int64(math.MaxInt64 - 1)))
	})

	It("keeps keys independent", func() {
		cfg.StartTokens = 1
		l := newLimiter()

		Expect(l.Allow("a")).To(BeTrue())
		Expect(l.Allow("a")).To(BeFalse())
		Expect(l.Allow("b")).To(BeTrue())
		Expect(l.Keys()).To(Equal(2))
	})

	It("never admits more than the balance under concurrency", func() {
		cfg.StartTokens = 50
		l := newLimiter()

		var admitted atomic.Int64
		var wg sync.WaitGroup
		for range 200 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if l.Allow("shared") {
					admitted.Add(1)
				}
			}()
		}
		wg.Wait()

		Expect(admitted.Load()).To(Equal(int64(50)))
		Expect(l.Tokens("shared")).To(BeZero())
	})

	It("applies a new configuration to new buckets", func() {
		l := newLimiter()
		Expect(l.Reconfigure(ratelimit.Config{StartTokens: 1, RefillPeriod: time.Minute})).To(Succeed())

		Expect(l.Allow("fresh")).To(BeTrue())
		Expect(l.Allow("fresh")).To(BeFalse())
		Expect(l.Config().RefillPeriod).To(Equal(time.Minute))
	})

	DescribeTable("rejects invalid configurations",
		func(c ratelimit.Config) {
			_, err := ratelimit.New(c)
			Expect(err).To(HaveOccurred())
		},
		Entry("zero period", ratelimit.Config{StartTokens: 1}),
		Entry("negative start", ratelimit.Config{StartTokens: -1, RefillPeriod: time.Second}),
		Entry("negative cap", ratelimit.Config{MaxTokens: -1, RefillPeriod: time.Second}),
		Entry("negative refills", ratelimit.Config{RefillsPerPeriod: -1, RefillPeriod: time.Second}),
	)
})

var _ = Describe("Middleware", func() {
	It("returns 429 once a key is exhausted", func() {
		l, err := ratelimit.New(ratelimit.Config{StartTokens: 2, RefillPeriod: time.Hour})
		Expect(err).NotTo(HaveOccurred())

		var rejected []string
		app := fiber.New()
		app.Use(ratelimit.Middleware(l, ratelimit.MiddlewareConfig{
			OnReject: func(_ *fiber.Ctx, key string) { rejected = append(rejected, key) },
		}))
		app.Get("/", func(c *fiber.Ctx) error { return c.SendString("ok") })

		do := func(key string) int {
			req := httptest.NewRequest("GET", "/", nil)
			req.Header.Set(ratelimit.KeyHeader, key)
			resp, err := app.Test(req)
			Expect(err).NotTo(HaveOccurred())
			return resp.StatusCode
		}

		Expect(do("client-a")).To(Equal(fiber.StatusOK))
		Expect(do("client-a")).To(Equal(fiber.StatusOK))
		Expect(do("client-a")).To(Equal(fiber.StatusTooManyRequests))
		Expect(do("client-b")).To(Equal(fiber.StatusOK))
		Expect(rejected).To(Equal([]string{"client-a"}))
	})
})
