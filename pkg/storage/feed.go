package storage

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/papercomputeco/faultline/pkg/identity"
)

// Scope selects a feed and its sequence counter.
type Scope string

const (
	ScopeGlobal      Scope = "global"
	ScopeFault       Scope = "fault"
	ScopeFaultStrand Scope = "fault-strand"
)

// ParseScope validates a scope name.
func ParseScope(s string) (Scope, error) {
	switch Scope(s) {
	case ScopeGlobal, ScopeFault, ScopeFaultStrand:
		return Scope(s), nil
	default:
		return "", fmt.Errorf("unknown feed scope %q", s)
	}
}

// FeedEntry is one recorded occurrence of a fault.
type FeedEntry struct {
	ID                    uuid.UUID     `json:"id"`
	FaultID               identity.Hash `json:"fault_id"`
	FaultStrandID         identity.Hash `json:"fault_strand_id"`
	Timestamp             time.Time     `json:"timestamp"`
	GlobalSequenceNo      int64         `json:"global_sequence_no"`
	FaultSequenceNo       int64         `json:"fault_sequence_no"`
	FaultStrandSequenceNo int64         `json:"fault_strand_sequence_no"`
	LogEntry              *LogEntry     `json:"log_entry,omitempty"`
}

// SequenceNo returns the entry's number within scope.
func (e *FeedEntry) SequenceNo(scope Scope) int64 {
	switch scope {
	case ScopeFault:
		return e.FaultSequenceNo
	case ScopeFaultStrand:
		return e.FaultStrandSequenceNo
	default:
		return e.GlobalSequenceNo
	}
}

// LogEntry is the log line that accompanied an occurrence.
type LogEntry struct {
	Logger  string `json:"logger,omitempty"`
	Level   string `json:"level,omitempty"`
	Message string `json:"message,omitempty"`
	Thread  string `json:"thread,omitempty"`
}
