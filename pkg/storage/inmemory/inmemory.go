// Package inmemory provides an in-process storage driver.
package inmemory

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/papercomputeco/faultline/pkg/fault"
	"github.com/papercomputeco/faultline/pkg/identity"
	"github.com/papercomputeco/faultline/pkg/storage"
)

// Driver implements storage.Driver using in-memory maps.
type Driver struct {
	// mu guards every map and counter; insert-if-absent and sequence
	// assignment happen under the write lock.
	mu sync.RWMutex

	faults  map[identity.Hash]*fault.Fault
	strands map[identity.Hash]*fault.FaultStrand

	// entries is the global feed in sequence order; the per-fault and
	// per-strand feeds index into it.
	entries       []*storage.FeedEntry
	byID          map[uuid.UUID]*storage.FeedEntry
	byFault       map[identity.Hash][]*storage.FeedEntry
	byFaultStrand map[identity.Hash][]*storage.FeedEntry
}

// NewDriver creates a new in-memory driver.
func NewDriver() *Driver {
	return &Driver{
		faults:        make(map[identity.Hash]*fault.Fault),
		strands:       make(map[identity.Hash]*fault.FaultStrand),
		byID:          make(map[uuid.UUID]*storage.FeedEntry),
		byFault:       make(map[identity.Hash][]*storage.FeedEntry),
		byFaultStrand: make(map[identity.Hash][]*storage.FeedEntry),
	}
}

// PutFaultStrand stores s unless a strand with its identity exists.
func (d *Driver) PutFaultStrand(_ context.Context, s *fault.FaultStrand) (*fault.FaultStrand, bool, error) {
	if s == nil {
		return nil, false, storage.ErrNilRecord
	}

	id := s.Identity()

	d.mu.Lock()
	defer d.mu.Unlock()

	if existing, ok := d.strands[id]; ok {
		return existing, false, nil
	}

	d.strands[id] = s
	return s, true, nil
}

// PutFault stores f unless a fault with its identity exists.
func (d *Driver) PutFault(_ context.Context, f *fault.Fault) (*fault.Fault, bool, error) {
	if f == nil {
		return nil, false, storage.ErrNilRecord
	}

	id := f.Identity()
	strandID := f.Strand().Identity()

	d.mu.Lock()
	defer d.mu.Unlock()

	if existing, ok := d.faults[id]; ok {
		return existing, false, nil
	}

	if _, ok := d.strands[strandID]; !ok {
		return nil, false, fmt.Errorf("storing fault %s: %w", id,
			storage.NotFoundError{Kind: "fault strand", ID: strandID.String()})
	}

	d.faults[id] = f
	return f, true, nil
}

// Append numbers and stores a copy of e.
func (d *Driver) Append(_ context.Context, e *storage.FeedEntry) (*storage.FeedEntry, error) {
	if e == nil {
		return nil, storage.ErrNilRecord
	}

	entry := *e
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.LogEntry != nil {
		le := *entry.LogEntry
		entry.LogEntry = &le
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.faults[entry.FaultID]; !ok {
		return nil, fmt.Errorf("appending feed entry: %w",
			storage.NotFoundError{Kind: "fault", ID: entry.FaultID.String()})
	}
	if _, ok := d.byID[entry.ID]; ok {
		return nil, fmt.Errorf("appending feed entry: duplicate id %s", entry.ID)
	}

	entry.GlobalSequenceNo = int64(len(d.entries))
	entry.FaultSequenceNo = int64(len(d.byFault[entry.FaultID]))
	entry.FaultStrandSequenceNo = int64(len(d.byFaultStrand[entry.FaultStrandID]))

	stored := &entry
	d.entries = append(d.entries, stored)
	d.byID[entry.ID] = stored
	d.byFault[entry.FaultID] = append(d.byFault[entry.FaultID], stored)
	d.byFaultStrand[entry.FaultStrandID] = append(d.byFaultStrand[entry.FaultStrandID], stored)

	out := *stored
	return &out, nil
}

// GetFault retrieves a fault by identity.
func (d *Driver) GetFault(_ context.Context, id identity.Hash) (*fault.Fault, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	f, ok := d.faults[id]
	if !ok {
		return nil, storage.NotFoundError{Kind: "fault", ID: id.String()}
	}

	return f, nil
}

// GetFaultStrand retrieves a fault strand by identity.
func (d *Driver) GetFaultStrand(_ context.Context, id identity.Hash) (*fault.FaultStrand, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	s, ok := d.strands[id]
	if !ok {
		return nil, storage.NotFoundError{Kind: "fault strand", ID: id.String()}
	}

	return s, nil
}

// GetFeedEntry retrieves a feed entry by id.
func (d *Driver) GetFeedEntry(_ context.Context, id uuid.UUID) (*storage.FeedEntry, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	e, ok := d.byID[id]
	if !ok {
		return nil, storage.NotFoundError{Kind: "feed entry", ID: id.String()}
	}

	out := *e
	return &out, nil
}

// ListFeed pages through one feed. Each feed slice is already in sequence
// order.
func (d *Driver) ListFeed(_ context.Context, scope storage.Scope, id identity.Hash, offset, count int) ([]*storage.FeedEntry, error) {
	if offset < 0 || count < 0 {
		return nil, fmt.Errorf("invalid page offset=%d count=%d", offset, count)
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	var feed []*storage.FeedEntry
	switch scope {
	case storage.ScopeGlobal:
		feed = d.entries
	case storage.ScopeFault:
		feed = d.byFault[id]
	case storage.ScopeFaultStrand:
		feed = d.byFaultStrand[id]
	default:
		return nil, fmt.Errorf("unknown feed scope %q", scope)
	}

	if offset >= len(feed) {
		return []*storage.FeedEntry{}, nil
	}
	end := min(offset+count, len(feed))

	out := make([]*storage.FeedEntry, 0, end-offset)
	for _, e := range feed[offset:end] {
		cp := *e
		out = append(out, &cp)
	}

	return out, nil
}

// Stats returns row counts.
func (d *Driver) Stats(_ context.Context) (storage.Stats, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return storage.Stats{
		Faults:       int64(len(d.faults)),
		FaultStrands: int64(len(d.strands)),
		FeedEntries:  int64(len(d.entries)),
	}, nil
}

// Close is a no-op for the in-memory driver.
func (d *Driver) Close() error {
	return nil
}
