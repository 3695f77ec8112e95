// Package fault models exception chains and derives their identities.
//
// A Fault is the exact occurrence: every message and line number counts. Its
// FaultStrand keeps only class names and method signatures, so recurring bugs
// group together across message and line drift. All values are immutable and
// built through a Builder, which carries the identity.Hasher.
package fault

import (
	"crypto"
	"errors"
	"fmt"
	"slices"

	"github.com/papercomputeco/faultline/pkg/identity"
)

// Entity kinds.
const (
	KindCause       identity.Kind = "cause"
	KindCauseStrand identity.Kind = "cause-strand"
	KindFault       identity.Kind = "fault"
	KindFaultStrand identity.Kind = "fault-strand"
)

// kindTable is the static table the per-process registry is built from.
// Tags are persisted implicitly through identities and must never change.
var kindTable = map[identity.Kind]uint16{
	KindCause:       1,
	KindCauseStrand: 2,
	KindFault:       3,
	KindFaultStrand: 4,
}

// maxChainDepth bounds cause chains so a cyclic chain cannot loop forever.
const maxChainDepth = 1024

// ErrEmptyChain is returned when a fault would have no causes.
var ErrEmptyChain = errors.New("empty cause chain")

// NewRegistry builds the kind registry for fault entities.
func NewRegistry() (*identity.Registry, error) {
	return identity.NewRegistry(kindTable)
}

// NewHasher returns a Hasher for fault entities using alg.
func NewHasher(alg crypto.Hash) (*identity.Hasher, error) {
	registry, err := NewRegistry()
	if err != nil {
		return nil, fmt.Errorf("building kind registry: %w", err)
	}

	return identity.NewHasher(alg, registry)
}

// Option configures a Builder.
type Option func(*Builder)

// WithStrandPolicy sets the policy used to derive strands.
func WithStrandPolicy(p StrandPolicy) Option {
	return func(b *Builder) {
		b.policy = p
	}
}

// Builder constructs fault values bound to one Hasher and StrandPolicy.
// It is safe for concurrent use.
type Builder struct {
	hasher *identity.Hasher
	policy StrandPolicy
}

// NewBuilder returns a Builder using hasher.
func NewBuilder(hasher *identity.Hasher, opts ...Option) *Builder {
	b := &Builder{hasher: hasher}
	for _, opt := range opts {
		opt(b)
	}

	return b
}

// NewDefaultBuilder returns a Builder using identity.DefaultAlgorithm.
func NewDefaultBuilder(opts ...Option) (*Builder, error) {
	hasher, err := NewHasher(identity.DefaultAlgorithm)
	if err != nil {
		return nil, err
	}

	return NewBuilder(hasher, opts...), nil
}

// Hasher returns the builder's hasher.
func (b *Builder) Hasher() *identity.Hasher {
	return b.hasher
}

// Policy returns the builder's strand policy.
func (b *Builder) Policy() StrandPolicy {
	return b.policy
}

// Cause builds one chain node. The frames are copied.
func (b *Builder) Cause(className, message string, frames []StackFrame, parent *Cause) *Cause {
	return &Cause{
		className: className,
		message:   message,
		frames:    slices.Clone(frames),
		parent:    parent,
		hasher:    b.hasher,
	}
}

// Fault builds the fault whose outermost cause is head.
func (b *Builder) Fault(head *Cause) (*Fault, error) {
	if head == nil {
		return nil, ErrEmptyChain
	}

	causes := head.Chain()
	if len(causes) == maxChainDepth && causes[len(causes)-1].parent != nil {
		return nil, fmt.Errorf("cause chain exceeds %d levels", maxChainDepth)
	}

	return &Fault{
		causes:  causes,
		builder: b,
	}, nil
}

// CauseStrand builds a strand node from its parts.
func (b *Builder) CauseStrand(className string, signatures []string) *CauseStrand {
	return &CauseStrand{
		className:  className,
		signatures: slices.Clone(signatures),
		hasher:     b.hasher,
	}
}

// FaultStrand builds a fault strand from cause strands, outermost first.
func (b *Builder) FaultStrand(causeStrands []*CauseStrand) *FaultStrand {
	return &FaultStrand{
		causeStrands: slices.Clone(causeStrands),
		hasher:       b.hasher,
	}
}

func (b *Builder) causeStrandOf(c *Cause) *CauseStrand {
	signatures := make([]string, len(c.frames))
	for i, f := range c.frames {
		sig := f.Signature()
		if b.policy.IncludeModules && f.Module != "" {
			mod := f.Module
			if f.ModuleVersion != "" {
				mod += "@" + f.ModuleVersion
			}
			sig = mod + "/" + sig
		}
		signatures[i] = sig
	}

	return &CauseStrand{
		className:  c.className,
		signatures: signatures,
		hasher:     b.hasher,
	}
}
