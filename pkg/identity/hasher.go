package identity

import (
	"crypto"
	_ "crypto/md5"    // register MD5 with crypto.Hash
	_ "crypto/sha1"   // register SHA-1 with crypto.Hash
	_ "crypto/sha256" // register SHA-256 with crypto.Hash
	_ "crypto/sha512" // register SHA-512 with crypto.Hash
	"errors"
	"fmt"
	"strings"
	"sync"
)

// ErrAlgorithmUnavailable is returned by NewHasher when the digest algorithm
// is not linked into the binary. It is a startup precondition, not a per-call
// failure.
var ErrAlgorithmUnavailable = errors.New("digest algorithm unavailable")

// DefaultAlgorithm is the digest used when none is configured. Its output is
// exactly Size bytes.
const DefaultAlgorithm = crypto.MD5

var algorithms = map[string]crypto.Hash{
	"md5":    crypto.MD5,
	"sha1":   crypto.SHA1,
	"sha256": crypto.SHA256,
	"sha512": crypto.SHA512,
}

// ParseAlgorithm maps a configured algorithm name to its crypto.Hash.
// An empty name selects DefaultAlgorithm.
func ParseAlgorithm(name string) (crypto.Hash, error) {
	if name == "" {
		return DefaultAlgorithm, nil
	}

	alg, ok := algorithms[strings.ToLower(name)]
	if !ok {
		return 0, fmt.Errorf("%w: unknown algorithm %q", ErrAlgorithmUnavailable, name)
	}

	return alg, nil
}

// Hasher computes identities for Hashable entities. It is immutable and safe
// for concurrent use.
type Hasher struct {
	alg      crypto.Hash
	registry *Registry
}

// NewHasher checks that alg is usable and returns a Hasher bound to the
// given kind registry. Digests longer than Size bytes are truncated.
func NewHasher(alg crypto.Hash, registry *Registry) (*Hasher, error) {
	if !alg.Available() {
		return nil, fmt.Errorf("%w: crypto.Hash(%d)", ErrAlgorithmUnavailable, uint(alg))
	}

	if alg.Size() < Size {
		return nil, fmt.Errorf("%w: %s produces %d bytes, need %d", ErrAlgorithmUnavailable, alg, alg.Size(), Size)
	}

	if registry == nil {
		return nil, errors.New("nil kind registry")
	}

	return &Hasher{
		alg:      alg,
		registry: registry,
	}, nil
}

// Algorithm returns the digest algorithm in use.
func (h *Hasher) Algorithm() crypto.Hash {
	return h.alg
}

// Canonical returns the canonical bytes for v, kind tag included.
func (h *Hasher) Canonical(v Hashable) []byte {
	tag, ok := h.registry.Tag(v.Kind())
	if !ok {
		// Kinds come from the static table the registry was built from, so
		// an unknown kind is a programmer error.
		panic("identity: kind not registered: " + string(v.Kind()))
	}

	var e Encoder
	e.kind(tag)
	v.WriteCanonical(&e)
	return e.Bytes()
}

// Sum computes the identity of v.
func (h *Hasher) Sum(v Hashable) Hash {
	d := h.alg.New()
	d.Write(h.Canonical(v))

	var out Hash
	copy(out[:], d.Sum(nil))
	return out
}

// Memo is a single-assignment cell holding a lazily computed Hash. The zero
// value is ready to use. Concurrent first callers all observe the same value.
type Memo struct {
	once sync.Once
	hash Hash
}

// Get returns the memoized hash, computing it on first use.
func (m *Memo) Get(compute func() Hash) Hash {
	m.once.Do(func() {
		m.hash = compute()
	})

	return m.hash
}
