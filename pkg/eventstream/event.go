// Package eventstream publishes recorded fault occurrences to downstream
// consumers such as alerting.
package eventstream

import (
	"time"

	"github.com/google/uuid"

	"github.com/papercomputeco/faultline/pkg/fault"
	"github.com/papercomputeco/faultline/pkg/storage"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeFeedAppended is emitted after a feed entry is stored.
	EventTypeFeedAppended = "faultline.feed.appended"
)

// FeedEntryEvent is a transport-neutral event payload for a stored
// occurrence.
type FeedEntryEvent struct {
	SchemaVersion int                `json:"schema_version"`
	EventType     string             `json:"event_type"`
	EventID       string             `json:"event_id"`
	EmittedAt     time.Time          `json:"emitted_at"`
	Source        EventSource        `json:"source"`
	Entry         *storage.FeedEntry `json:"entry"`

	// NewFault and NewFaultStrand report whether this occurrence created the
	// rows, i.e. the first sighting of an exact fault or of a whole class.
	NewFault       bool `json:"new_fault"`
	NewFaultStrand bool `json:"new_fault_strand"`

	// Causes is the occurrence's chain, outermost first.
	Causes []fault.CauseDTO `json:"causes,omitempty"`
}

// EventSource identifies how the occurrence was submitted.
type EventSource struct {
	// Submitter is "json", "trace", "error" or "log".
	Submitter string `json:"submitter"`
	Host      string `json:"host,omitempty"`
}

// NewFeedEntryEvent builds a V1 event for entry.
func NewFeedEntryEvent(entry *storage.FeedEntry, f *fault.Fault, newFault, newStrand bool, source EventSource) *FeedEntryEvent {
	ev := &FeedEntryEvent{
		SchemaVersion:  SchemaVersionV1,
		EventType:      EventTypeFeedAppended,
		EventID:        uuid.NewString(),
		EmittedAt:      time.Now().UTC(),
		Source:         source,
		Entry:          entry,
		NewFault:       newFault,
		NewFaultStrand: newStrand,
	}
	if f != nil {
		ev.Causes = f.DTO()
	}

	return ev
}
