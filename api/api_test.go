package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/papercomputeco/faultline/pkg/fault"
	"github.com/papercomputeco/faultline/pkg/ingest"
	"github.com/papercomputeco/faultline/pkg/logger"
	"github.com/papercomputeco/faultline/pkg/metrics"
	"github.com/papercomputeco/faultline/pkg/ratelimit"
	"github.com/papercomputeco/faultline/pkg/storage"
	"github.com/papercomputeco/faultline/pkg/storage/inmemory"
)

const sampleTrace = `java.lang.IllegalStateException: cache miss for user 42
	at org.framework.Dispatcher.dispatch(Dispatcher.java:10)
	at org.framework.Filter.doFilter(Filter.java:20)
	at com.example.api.Handler.serve(Handler.java:21)
Caused by: java.io.IOException: connection reset
	at com.example.net.Socket.read(Socket.java:301)
`

const sampleJSON = `{
	"causes": [
		{"class_name": "com.example.AppException", "message": "request failed",
		 "frames": [{"class_name": "com.example.Handler", "method": "handle", "file": "Handler.java", "line": 3}]},
		{"class_name": "java.io.IOException", "message": "closed",
		 "frames": [{"class_name": "java.net.Socket", "method": "read", "file": "Socket.java", "line": 10}]}
	],
	"log_entry": {"logger": "com.example.Handler", "level": "ERROR", "message": "request failed"}
}`

func do(s *Server, req *http.Request) (*http.Response, []byte) {
	resp, err := s.app.Test(req, -1)
	Expect(err).NotTo(HaveOccurred())
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	Expect(err).NotTo(HaveOccurred())
	return resp, body
}

func get(s *Server, target string) (*http.Response, []byte) {
	return do(s, httptest.NewRequest(http.MethodGet, target, nil))
}

func postJSON(s *Server, body string) (*http.Response, []byte) {
	req := httptest.NewRequest(http.MethodPost, "/faults", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return do(s, req)
}

func postTrace(s *Server, text string, headers map[string]string) (*http.Response, []byte) {
	req := httptest.NewRequest(http.MethodPost, "/faults/trace", strings.NewReader(text))
	req.Header.Set("Content-Type", "text/plain")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return do(s, req)
}

func receiptOf(body []byte) ingest.Receipt {
	var r ingest.Receipt
	Expect(json.Unmarshal(body, &r)).To(Succeed())
	return r
}

var _ = Describe("Server", func() {
	var (
		server *Server
		reg    *prometheus.Registry
		m      *metrics.Ingest
		cfg    Config
	)

	build := func() {
		b, err := fault.NewDefaultBuilder()
		Expect(err).NotTo(HaveOccurred())

		store, err := ingest.NewStore(ingest.Config{
			Driver:  inmemory.NewDriver(),
			Builder: b,
			Metrics: m,
		})
		Expect(err).NotTo(HaveOccurred())

		server, err = NewServer(cfg, store, logger.Nop())
		Expect(err).NotTo(HaveOccurred())
	}

	BeforeEach(func() {
		reg = prometheus.NewRegistry()
		m = metrics.New(reg)
		cfg = Config{ListenAddr: ":0", Registry: reg, Metrics: m}
		build()
	})

	It("requires a store", func() {
		_, err := NewServer(Config{}, nil, logger.Nop())
		Expect(err).To(HaveOccurred())
	})

	It("answers ping", func() {
		resp, body := get(server, "/ping")
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		Expect(string(body)).To(Equal(`"pong"`))
	})

	Describe("POST /faults", func() {
		It("records a structured chain and returns the receipt", func() {
			resp, body := postJSON(server, sampleJSON)
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))

			first := receiptOf(body)
			Expect(first.FaultSequenceNo).To(BeZero())

			_, body = postJSON(server, sampleJSON)
			second := receiptOf(body)
			Expect(second.FaultID).To(Equal(first.FaultID))
			Expect(second.FaultStrandID).To(Equal(first.FaultStrandID))
			Expect(second.FaultSequenceNo).To(Equal(int64(1)))
			Expect(second.GlobalSequenceNo).To(Equal(int64(1)))
		})

		It("rejects an empty chain", func() {
			resp, body := postJSON(server, `{"causes": []}`)
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			Expect(string(body)).To(ContainSubstring("invalid submission"))
		})

		It("rejects a body that is not JSON", func() {
			resp, _ := postJSON(server, `{`)
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			Expect(testutil.ToFloat64(m.SubmissionsTotal.WithLabelValues("json", "invalid"))).To(Equal(1.0))
		})
	})

	Describe("POST /faults/trace", func() {
		It("parses the trace and keeps the log line from the headers", func() {
			resp, body := postTrace(server, sampleTrace, map[string]string{
				HeaderLogger: "com.example.api.Handler",
				HeaderLevel:  "ERROR",
			})
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))

			receipt := receiptOf(body)
			resp, body = get(server, "/feed/entries/"+receipt.FeedEntryID.String())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var entry storage.FeedEntry
			Expect(json.Unmarshal(body, &entry)).To(Succeed())
			Expect(entry.LogEntry).To(Equal(&storage.LogEntry{Logger: "com.example.api.Handler", Level: "ERROR"}))
		})

		It("returns 400 with the offending line for a malformed trace", func() {
			resp, body := postTrace(server, "java.lang.Error: x\n\tnot a frame\n", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))

			var e ErrorResponse
			Expect(json.Unmarshal(body, &e)).To(Succeed())
			Expect(e.Line).To(Equal(2))
			Expect(e.Excerpt).To(ContainSubstring("not a frame"))
		})
	})

	Describe("GET /faults/:id", func() {
		var receipt ingest.Receipt

		BeforeEach(func() {
			_, body := postTrace(server, sampleTrace, nil)
			receipt = receiptOf(body)
		})

		It("returns the fault as JSON", func() {
			resp, body := get(server, "/faults/"+receipt.FaultID.String())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var out struct {
				ID            string           `json:"id"`
				FaultStrandID string           `json:"fault_strand_id"`
				Causes        []fault.CauseDTO `json:"causes"`
			}
			Expect(json.Unmarshal(body, &out)).To(Succeed())
			Expect(out.ID).To(Equal(receipt.FaultID.String()))
			Expect(out.FaultStrandID).To(Equal(receipt.FaultStrandID.String()))
			Expect(out.Causes).To(HaveLen(2))
		})

		It("prints a reduced trace", func() {
			resp, body := get(server, "/faults/"+receipt.FaultID.String()+"?format=text&aggregate=org.framework.")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(HavePrefix("text/plain"))
			Expect(string(body)).To(HavePrefix("java.lang.IllegalStateException: cache miss for user 42\n"))
			Expect(string(body)).To(ContainSubstring("\t... org.framework..* [2 calls]\n"))
			Expect(string(body)).To(ContainSubstring("Caused by: java.io.IOException: connection reset\n"))
		})

		It("rejects an unknown shorten mode", func() {
			resp, _ := get(server, "/faults/"+receipt.FaultID.String()+"?display=com.&shorten=tiny")
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("returns 400 for a malformed id and 404 for an unknown one", func() {
			resp, _ := get(server, "/faults/xyz")
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))

			resp, _ = get(server, "/faults/"+strings.Repeat("0", 32))
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})

		It("returns the fault strand", func() {
			resp, body := get(server, "/strands/"+receipt.FaultStrandID.String())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(string(body)).To(ContainSubstring(`"cause_strands"`))
			Expect(string(body)).To(ContainSubstring("com.example.api.Handler.serve"))
		})
	})

	Describe("feeds", func() {
		var receipts []ingest.Receipt

		BeforeEach(func() {
			receipts = nil
			for range 3 {
				_, body := postTrace(server, sampleTrace, nil)
				receipts = append(receipts, receiptOf(body))
			}
			_, body := postJSON(server, sampleJSON)
			receipts = append(receipts, receiptOf(body))
		})

		It("pages the global feed", func() {
			resp, body := get(server, "/feed?offset=1&count=2")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var feed FeedResponse
			Expect(json.Unmarshal(body, &feed)).To(Succeed())
			Expect(feed.Scope).To(Equal(storage.ScopeGlobal))
			Expect(feed.Count).To(Equal(2))
			Expect(feed.Entries[0].GlobalSequenceNo).To(Equal(int64(1)))
			Expect(feed.Entries[1].GlobalSequenceNo).To(Equal(int64(2)))
			Expect(feed.Entries[0].Trace).To(BeEmpty())
		})

		It("lists a fault's occurrences with reduced traces", func() {
			resp, body := get(server, "/feed/faults/"+receipts[0].FaultID.String()+"?remove=org.framework.")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var feed FeedResponse
			Expect(json.Unmarshal(body, &feed)).To(Succeed())
			Expect(feed.ID).To(Equal(receipts[0].FaultID.String()))
			Expect(feed.Entries).To(HaveLen(3))
			for i, e := range feed.Entries {
				Expect(e.FaultSequenceNo).To(Equal(int64(i)))
				Expect(e.Trace).NotTo(ContainSubstring("org.framework"))
				Expect(e.Trace).To(ContainSubstring("com.example.api.Handler.serve"))
			}
		})

		It("lists a fault strand's occurrences", func() {
			resp, body := get(server, "/feed/strands/"+receipts[3].FaultStrandID.String())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var feed FeedResponse
			Expect(json.Unmarshal(body, &feed)).To(Succeed())
			Expect(feed.Entries).To(HaveLen(1))
			Expect(feed.Entries[0].LogEntry.Message).To(Equal("request failed"))
		})

		It("returns 404 for an unknown strand", func() {
			resp, _ := get(server, "/feed/strands/"+strings.Repeat("f", 32))
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})

		It("rejects a negative count", func() {
			resp, _ := get(server, "/feed?count=-1")
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("reports stats", func() {
			_, body := get(server, "/stats")

			var stats storage.Stats
			Expect(json.Unmarshal(body, &stats)).To(Succeed())
			Expect(stats).To(Equal(storage.Stats{Faults: 2, FaultStrands: 2, FeedEntries: 4}))
		})
	})

	Describe("GET /feed/entries/:id", func() {
		It("returns 400 for a malformed id and 404 for an unknown one", func() {
			resp, _ := get(server, "/feed/entries/nope")
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))

			resp, _ = get(server, "/feed/entries/00000000-0000-0000-0000-000000000000")
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})
	})

	Context("with a rate limiter", func() {
		BeforeEach(func() {
			limiter, err := ratelimit.New(ratelimit.Config{
				StartTokens:  1,
				MaxTokens:    1,
				RefillPeriod: time.Hour,
			})
			Expect(err).NotTo(HaveOccurred())
			cfg.Limiter = limiter
			build()
		})

		It("rejects submissions once the bucket is empty", func() {
			resp, _ := postTrace(server, sampleTrace, nil)
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))

			resp, _ = postTrace(server, sampleTrace, nil)
			Expect(resp.StatusCode).To(Equal(http.StatusTooManyRequests))
			Expect(testutil.ToFloat64(m.SubmissionsTotal.WithLabelValues("trace", "rate_limited"))).To(Equal(1.0))
		})

		It("keeps separate buckets per key", func() {
			req := httptest.NewRequest(http.MethodPost, "/faults/trace", strings.NewReader(sampleTrace))
			req.Header.Set(ratelimit.KeyHeader, "a")
			resp, _ := do(server, req)
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))

			req = httptest.NewRequest(http.MethodPost, "/faults/trace", strings.NewReader(sampleTrace))
			req.Header.Set(ratelimit.KeyHeader, "b")
			resp, _ = do(server, req)
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))
		})

		It("does not limit reads", func() {
			for range 3 {
				resp, _ := get(server, "/stats")
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
			}
		})
	})

	Context("with metrics enabled", func() {
		BeforeEach(func() {
			cfg.EnableMetrics = true
			build()
		})

		It("serves the registry", func() {
			postTrace(server, sampleTrace, nil)

			resp, body := get(server, "/metrics")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(string(body)).To(ContainSubstring(`faultline_ingest_submissions_total{outcome="stored",submitter="trace"} 1`))
			Expect(string(body)).To(ContainSubstring("faultline_http_requests_total"))
		})
	})

	It("does not serve metrics when disabled", func() {
		resp, _ := get(server, "/metrics")
		Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
	})
})
