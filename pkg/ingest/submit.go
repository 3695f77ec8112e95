package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/papercomputeco/faultline/pkg/fault"
	"github.com/papercomputeco/faultline/pkg/identity"
	"github.com/papercomputeco/faultline/pkg/metrics"
	"github.com/papercomputeco/faultline/pkg/storage"
	"github.com/papercomputeco/faultline/pkg/trace"
)

// Receipt identifies a recorded occurrence and the records it resolved to.
type Receipt struct {
	FaultStrandID         identity.Hash `json:"fault_strand_id"`
	FaultID               identity.Hash `json:"fault_id"`
	FeedEntryID           uuid.UUID     `json:"feed_entry_id"`
	GlobalSequenceNo      int64         `json:"global_sequence_no"`
	FaultSequenceNo       int64         `json:"fault_sequence_no"`
	FaultStrandSequenceNo int64         `json:"fault_strand_sequence_no"`
}

// ReceiptOf builds the receipt for a stored entry.
func ReceiptOf(e *storage.FeedEntry) Receipt {
	return Receipt{
		FaultStrandID:         e.FaultStrandID,
		FaultID:               e.FaultID,
		FeedEntryID:           e.ID,
		GlobalSequenceNo:      e.GlobalSequenceNo,
		FaultSequenceNo:       e.FaultSequenceNo,
		FaultStrandSequenceNo: e.FaultStrandSequenceNo,
	}
}

// Submission is the structured submission body.
type Submission struct {
	// Causes is the chain, outermost first.
	Causes    []fault.CauseDTO  `json:"causes"`
	Timestamp *time.Time        `json:"timestamp,omitempty"`
	LogEntry  *storage.LogEntry `json:"log_entry,omitempty"`
}

// SubmitFault records a structured cause chain.
func (s *Store) SubmitFault(ctx context.Context, sub Submission) (Receipt, error) {
	f, err := s.builder.FaultFromDTO(sub.Causes)
	if err != nil {
		s.metrics.RecordSubmission(metrics.SubmitterJSON, metrics.OutcomeInvalid)
		return Receipt{}, fmt.Errorf("%w: %w", ErrInvalidSubmission, err)
	}

	occ := Occurrence{
		Fault:     f,
		LogEntry:  sub.LogEntry,
		Submitter: metrics.SubmitterJSON,
	}
	if sub.Timestamp != nil {
		occ.Timestamp = *sub.Timestamp
	}

	return s.submit(ctx, occ)
}

// SubmitTrace parses a printed stack trace and records it. Parse failures
// are returned as *trace.ParseError.
func (s *Store) SubmitTrace(ctx context.Context, text string, logEntry *storage.LogEntry) (Receipt, error) {
	f, err := trace.ParseFault(s.builder, text)
	if err != nil {
		s.metrics.RecordSubmission(metrics.SubmitterTrace, metrics.OutcomeParseError)
		return Receipt{}, err
	}

	return s.submit(ctx, Occurrence{
		Fault:     f,
		LogEntry:  logEntry,
		Submitter: metrics.SubmitterTrace,
	})
}

// SubmitError records a Go error chain. frames is the stack attached to the
// outermost error; nil captures the caller's stack.
func (s *Store) SubmitError(ctx context.Context, err error, frames []fault.StackFrame, logEntry *storage.LogEntry) (Receipt, error) {
	if frames == nil {
		frames = fault.Callers(1)
	}

	f, ferr := s.builder.FromError(err, frames)
	if ferr != nil {
		s.metrics.RecordSubmission(metrics.SubmitterError, metrics.OutcomeInvalid)
		return Receipt{}, fmt.Errorf("%w: %w", ErrInvalidSubmission, ferr)
	}

	return s.submit(ctx, Occurrence{
		Fault:     f,
		LogEntry:  logEntry,
		Submitter: metrics.SubmitterError,
	})
}

func (s *Store) submit(ctx context.Context, occ Occurrence) (Receipt, error) {
	entry, err := s.Store(ctx, occ)
	if err != nil {
		outcome := metrics.OutcomeStoreError
		if errors.Is(err, ErrInvalidSubmission) {
			outcome = metrics.OutcomeInvalid
		}
		s.metrics.RecordSubmission(occ.Submitter, outcome)
		return Receipt{}, err
	}

	s.metrics.RecordSubmission(occ.Submitter, metrics.OutcomeStored)
	return ReceiptOf(entry), nil
}
