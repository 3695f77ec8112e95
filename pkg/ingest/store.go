// Package ingest resolves submitted faults to their canonical records and
// appends an occurrence to the feed.
//
// Every submission path (structured JSON, printed trace, Go error, log
// record) ends in Store.Store, which performs the insert-if-absent of the
// fault strand and the fault and then appends a sequenced feed entry.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/papercomputeco/faultline/pkg/eventstream"
	"github.com/papercomputeco/faultline/pkg/eventstream/nop"
	"github.com/papercomputeco/faultline/pkg/fault"
	"github.com/papercomputeco/faultline/pkg/identity"
	"github.com/papercomputeco/faultline/pkg/logger"
	"github.com/papercomputeco/faultline/pkg/metrics"
	"github.com/papercomputeco/faultline/pkg/storage"
)

// ErrInvalidSubmission is wrapped by errors for submissions that carry no
// usable fault.
var ErrInvalidSubmission = errors.New("invalid submission")

// Config is the configuration for a Store.
type Config struct {
	// Driver persists faults, strands and the feed. Required.
	Driver storage.Driver

	// Builder binds submitted causes to the process hasher. Required.
	Builder *fault.Builder

	// Publisher receives an event for every stored occurrence.
	// Defaults to a no-op publisher.
	Publisher eventstream.Publisher

	// Metrics records ingestion counters. Nil disables metrics.
	Metrics *metrics.Ingest

	// Logger defaults to a discarding logger.
	Logger *slog.Logger

	// Host is reported as the event source host.
	Host string

	// Now is the clock used for missing timestamps. Defaults to time.Now.
	Now func() time.Time
}

// Occurrence is one sighting of a fault.
type Occurrence struct {
	Fault *fault.Fault

	// Timestamp defaults to the store's clock when zero.
	Timestamp time.Time

	LogEntry *storage.LogEntry

	// Submitter labels metrics and events; see the metrics.Submitter* values.
	Submitter string
}

// Store is the dedup and sequencing service in front of a storage.Driver.
type Store struct {
	driver    storage.Driver
	builder   *fault.Builder
	publisher eventstream.Publisher
	metrics   *metrics.Ingest
	logger    *slog.Logger
	host      string
	now       func() time.Time
}

// NewStore creates a Store.
func NewStore(c Config) (*Store, error) {
	if c.Driver == nil {
		return nil, errors.New("ingest store requires a storage driver")
	}
	if c.Builder == nil {
		return nil, errors.New("ingest store requires a fault builder")
	}

	s := &Store{
		driver:    c.Driver,
		builder:   c.Builder,
		publisher: c.Publisher,
		metrics:   c.Metrics,
		logger:    c.Logger,
		host:      c.Host,
		now:       c.Now,
	}
	if s.publisher == nil {
		s.publisher = nop.NewPublisher()
	}
	if s.logger == nil {
		s.logger = logger.Nop()
	}
	if s.now == nil {
		s.now = time.Now
	}

	return s, nil
}

// Builder returns the builder submissions are bound to.
func (s *Store) Builder() *fault.Builder {
	return s.builder
}

// Store records one occurrence: the fault strand and the fault are inserted
// unless already present, then a feed entry referencing the canonical
// records is appended. The returned entry is the driver's, carrying the
// assigned sequence numbers. Publishing and metrics never fail the call.
func (s *Store) Store(ctx context.Context, occ Occurrence) (*storage.FeedEntry, error) {
	if occ.Fault == nil {
		return nil, fmt.Errorf("%w: no fault", ErrInvalidSubmission)
	}

	start := s.now()
	entry, f, newFault, newStrand, err := s.store(ctx, occ)
	s.metrics.RecordStore(s.now().Sub(start), newFault, newStrand, err)
	if err != nil {
		return nil, err
	}

	s.logger.DebugContext(ctx, "occurrence stored",
		"fault_id", entry.FaultID.String(),
		"fault_strand_id", entry.FaultStrandID.String(),
		"global_sequence_no", entry.GlobalSequenceNo,
		"new_fault", newFault,
		"new_fault_strand", newStrand,
	)

	s.publish(ctx, entry, f, newFault, newStrand, occ.Submitter)
	return entry, nil
}

func (s *Store) store(ctx context.Context, occ Occurrence) (*storage.FeedEntry, *fault.Fault, bool, bool, error) {
	strand, newStrand, err := s.driver.PutFaultStrand(ctx, occ.Fault.Strand())
	if err != nil {
		return nil, nil, false, false, fmt.Errorf("storing fault strand: %w", err)
	}

	f, newFault, err := s.driver.PutFault(ctx, occ.Fault)
	if err != nil {
		return nil, nil, false, newStrand, fmt.Errorf("storing fault: %w", err)
	}

	ts := occ.Timestamp
	if ts.IsZero() {
		ts = s.now()
	}

	entry, err := s.driver.Append(ctx, &storage.FeedEntry{
		ID:            uuid.New(),
		FaultID:       f.Identity(),
		FaultStrandID: strand.Identity(),
		Timestamp:     ts.UTC(),
		LogEntry:      occ.LogEntry,
	})
	if err != nil {
		return nil, nil, newFault, newStrand, fmt.Errorf("appending feed entry: %w", err)
	}

	return entry, f, newFault, newStrand, nil
}

func (s *Store) publish(ctx context.Context, entry *storage.FeedEntry, f *fault.Fault, newFault, newStrand bool, submitter string) {
	event := eventstream.NewFeedEntryEvent(entry, f, newFault, newStrand, eventstream.EventSource{
		Submitter: submitter,
		Host:      s.host,
	})

	if err := s.publisher.PublishFeedEntry(ctx, event); err != nil {
		s.metrics.RecordPublishFailure()
		s.logger.WarnContext(ctx, "failed to publish feed event",
			"feed_entry_id", entry.ID.String(),
			"error", err,
		)
	}
}

// GetFault returns the canonical fault with id.
func (s *Store) GetFault(ctx context.Context, id identity.Hash) (*fault.Fault, error) {
	return s.driver.GetFault(ctx, id)
}

// GetFaultStrand returns the canonical fault strand with id.
func (s *Store) GetFaultStrand(ctx context.Context, id identity.Hash) (*fault.FaultStrand, error) {
	return s.driver.GetFaultStrand(ctx, id)
}

// GetFeedEntry returns a single feed entry.
func (s *Store) GetFeedEntry(ctx context.Context, id uuid.UUID) (*storage.FeedEntry, error) {
	return s.driver.GetFeedEntry(ctx, id)
}

// ListFeed pages through a feed in sequence order.
func (s *Store) ListFeed(ctx context.Context, scope storage.Scope, id identity.Hash, offset, count int) ([]*storage.FeedEntry, error) {
	return s.driver.ListFeed(ctx, scope, id, offset, count)
}

// Stats returns the driver's row counts.
func (s *Store) Stats(ctx context.Context) (storage.Stats, error) {
	return s.driver.Stats(ctx)
}
