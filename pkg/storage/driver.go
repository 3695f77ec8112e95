// Package storage defines the persistence contract for faults, fault strands
// and the occurrence feed.
package storage

import (
	"context"

	"github.com/google/uuid"

	"github.com/papercomputeco/faultline/pkg/fault"
	"github.com/papercomputeco/faultline/pkg/identity"
)

// Driver defines the interface for persisting and retrieving faults in a
// storage backend. Faults and fault strands are insert-once and keyed by
// their identity; feed entries are append-only. No update or delete is
// exposed.
type Driver interface {
	// PutFaultStrand stores s if no strand with the same identity exists.
	// The stored strand is returned either way and is canonical; inserted
	// reports whether this call created it.
	PutFaultStrand(ctx context.Context, s *fault.FaultStrand) (canonical *fault.FaultStrand, inserted bool, err error)

	// PutFault stores f if no fault with the same identity exists. The
	// fault's strand must already be stored.
	PutFault(ctx context.Context, f *fault.Fault) (canonical *fault.Fault, inserted bool, err error)

	// Append records a feed entry for an already stored fault. The driver
	// assigns the three sequence numbers atomically with the insert, and an
	// ID when the entry has none. The stored entry is returned.
	Append(ctx context.Context, e *FeedEntry) (*FeedEntry, error)

	// GetFault retrieves a fault by identity.
	GetFault(ctx context.Context, id identity.Hash) (*fault.Fault, error)

	// GetFaultStrand retrieves a fault strand by identity.
	GetFaultStrand(ctx context.Context, id identity.Hash) (*fault.FaultStrand, error)

	// GetFeedEntry retrieves a single feed entry.
	GetFeedEntry(ctx context.Context, id uuid.UUID) (*FeedEntry, error)

	// ListFeed returns up to count entries of the scope, skipping offset,
	// ordered by the scope's sequence number ascending. id is ignored for
	// ScopeGlobal.
	ListFeed(ctx context.Context, scope Scope, id identity.Hash, offset, count int) ([]*FeedEntry, error)

	// Stats returns row counts.
	Stats(ctx context.Context) (Stats, error)

	// Close closes the store and releases any resources.
	Close() error
}

// Stats holds row counts of a store.
type Stats struct {
	Faults       int64 `json:"faults"`
	FaultStrands int64 `json:"fault_strands"`
	FeedEntries  int64 `json:"feed_entries"`
}
