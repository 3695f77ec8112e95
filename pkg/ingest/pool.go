package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/papercomputeco/faultline/pkg/logger"
	"github.com/papercomputeco/faultline/pkg/metrics"
)

var (
	defaultNumWorkers   uint = 2
	defaultJobQueueSize uint = 256
)

// Job is a unit of work for the pool: one occurrence to store.
type Job struct {
	Occurrence Occurrence
}

// PoolConfig is the configuration for the asynchronous ingest pool.
type PoolConfig struct {
	// Store records the queued occurrences. Required.
	Store *Store

	// NumWorkers is the number of background workers in the pool.
	NumWorkers uint

	// QueueSize is the capacity of the buffered job channel (defaults to 256).
	QueueSize uint

	// Metrics receives the queue depth and dropped submissions.
	Metrics *metrics.Ingest

	Logger *slog.Logger
}

// Pool stores occurrences asynchronously so callers such as log handlers
// never block on persistence.
type Pool struct {
	store   *Store
	queue   chan Job
	wg      sync.WaitGroup
	metrics *metrics.Ingest
	logger  *slog.Logger

	mu     sync.RWMutex
	closed bool
}

// NewPool creates a Pool and starts its worker goroutines.
func NewPool(c *PoolConfig) (*Pool, error) {
	if c.Store == nil {
		return nil, errors.New("ingest pool requires a store")
	}

	if c.NumWorkers == 0 {
		c.NumWorkers = defaultNumWorkers
	}

	if c.QueueSize == 0 {
		c.QueueSize = defaultJobQueueSize
	}

	if c.NumWorkers > uint(math.MaxInt) {
		return nil, fmt.Errorf("NumWorkers %d exceeds max int", c.NumWorkers)
	}

	wp := &Pool{
		store:   c.Store,
		queue:   make(chan Job, c.QueueSize),
		metrics: c.Metrics,
		logger:  c.Logger,
	}
	if wp.logger == nil {
		wp.logger = logger.Nop()
	}

	wp.wg.Add(int(c.NumWorkers))
	for i := range c.NumWorkers {
		go wp.worker(i)
	}

	return wp, nil
}

// Enqueue submits a job for processing by the worker pool.
// Returns true if enqueued, false if the queue is full or the pool is
// closed, resulting in the job being dropped.
func (p *Pool) Enqueue(job Job) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	ctx := WithoutCapture(context.Background())

	if p.closed {
		p.metrics.RecordSubmission(job.Occurrence.Submitter, metrics.OutcomeDropped)
		return false
	}

	select {
	case p.queue <- job:
		p.metrics.SetQueueDepth(len(p.queue))
		return true
	default:
		p.metrics.RecordSubmission(job.Occurrence.Submitter, metrics.OutcomeDropped)
		p.logger.WarnContext(ctx, "occurrence not queued, queue full, dropped",
			"submitter", job.Occurrence.Submitter,
		)
		return false
	}
}

// Close stops accepting jobs and waits for queued jobs to drain.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	p.wg.Wait()
}

// worker is the inner worker thread that continuously pulls jobs off the jobs queue
func (p *Pool) worker(id uint) {
	defer p.wg.Done()

	ctx := WithoutCapture(context.Background())
	p.logger.DebugContext(ctx, "ingest worker started", "worker_id", id)

	for job := range p.queue {
		p.metrics.SetQueueDepth(len(p.queue))
		p.processJob(ctx, job)
	}

	p.logger.DebugContext(ctx, "ingest worker stopped", "worker_id", id)
}

// processJob stores one occurrence. Failures are logged, never captured
// again, as the context is marked.
func (p *Pool) processJob(ctx context.Context, job Job) {
	if _, err := p.store.submit(ctx, job.Occurrence); err != nil {
		p.logger.ErrorContext(ctx, "async fault storage failed",
			"submitter", job.Occurrence.Submitter,
			"error", err,
		)
	}
}
