package identity

import (
	"errors"
	"fmt"
)

// Kind names a hashable entity type.
type Kind string

// Registry maps entity kinds to the numeric tags written at the start of
// their canonical bytes. It is built once at startup from a static table and
// is read-only afterwards.
type Registry struct {
	tags map[Kind]uint16
}

// NewRegistry builds a Registry from table. Empty kinds and tags shared by
// two kinds are rejected.
func NewRegistry(table map[Kind]uint16) (*Registry, error) {
	if len(table) == 0 {
		return nil, errors.New("empty kind table")
	}

	tags := make(map[Kind]uint16, len(table))
	owners := make(map[uint16]Kind, len(table))
	for kind, tag := range table {
		if kind == "" {
			return nil, errors.New("empty kind in table")
		}

		if other, ok := owners[tag]; ok {
			return nil, fmt.Errorf("tag %d shared by kinds %q and %q", tag, other, kind)
		}

		owners[tag] = kind
		tags[kind] = tag
	}

	return &Registry{tags: tags}, nil
}

// Tag returns the tag registered for k.
func (r *Registry) Tag(k Kind) (uint16, bool) {
	tag, ok := r.tags[k]
	return tag, ok
}

// Len returns the number of registered kinds.
func (r *Registry) Len() int {
	return len(r.tags)
}
