// Package identity provides 128-bit content-addressed identities.
//
// An entity participates by implementing Hashable: it names its Kind and
// writes its fields, in a fixed order, to an Encoder. A Hasher turns that
// canonical byte stream into a Hash. Entities that nest other entities write
// the nested entity's Hash rather than its full content, so hashing a chain
// is linear in its length.
package identity

import (
	"encoding/hex"
	"fmt"
)

// Size is the length of a Hash in bytes.
const Size = 16

// Hash is a 128-bit content-addressed identity.
type Hash [Size]byte

// String returns the lowercase hex encoding of the hash.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// IsZero reports whether h is the zero hash.
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// MarshalText implements encoding.TextMarshaler.
func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (h *Hash) UnmarshalText(text []byte) error {
	parsed, err := ParseHash(string(text))
	if err != nil {
		return err
	}

	*h = parsed
	return nil
}

// ParseHash parses the hex form produced by Hash.String.
func ParseHash(s string) (Hash, error) {
	var h Hash
	if len(s) != hex.EncodedLen(Size) {
		return h, fmt.Errorf("invalid hash %q: want %d hex characters", s, hex.EncodedLen(Size))
	}

	if _, err := hex.Decode(h[:], []byte(s)); err != nil {
		return h, fmt.Errorf("invalid hash %q: %w", s, err)
	}

	return h, nil
}

// Hashable is the content-addressed identity capability.
type Hashable interface {
	// Kind names the entity type. The Hasher's Registry maps it to a tag
	// that prefixes the canonical bytes.
	Kind() Kind

	// WriteCanonical writes the entity's identity-bearing fields to e in a
	// fixed order.
	WriteCanonical(e *Encoder)
}

// Identified is implemented by entities that carry a memoized Hash.
type Identified interface {
	Identity() Hash
}
