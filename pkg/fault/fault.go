package fault

import (
	"encoding/json"
	"slices"
	"sync"

	"github.com/papercomputeco/faultline/pkg/identity"
)

// Fault is the full exception chain of one exact occurrence, outermost cause
// first. Its identity is a hash over the ordered identities of its causes.
type Fault struct {
	causes []*Cause

	builder *Builder
	memo    identity.Memo

	strandOnce sync.Once
	strand     *FaultStrand
}

// Causes returns the chain, outermost first.
func (f *Fault) Causes() []*Cause {
	return slices.Clone(f.causes)
}

// Head returns the outermost cause, the exception that was thrown.
func (f *Fault) Head() *Cause {
	return f.causes[0]
}

// Root returns the innermost cause.
func (f *Fault) Root() *Cause {
	return f.causes[len(f.causes)-1]
}

// Kind implements identity.Hashable.
func (f *Fault) Kind() identity.Kind {
	return KindFault
}

// WriteCanonical implements identity.Hashable.
func (f *Fault) WriteCanonical(e *identity.Encoder) {
	e.List(len(f.causes))
	for _, c := range f.causes {
		e.Nested(c)
	}
}

// Identity returns the memoized content hash.
func (f *Fault) Identity() identity.Hash {
	return f.memo.Get(func() identity.Hash {
		return f.builder.hasher.Sum(f)
	})
}

// Strand returns the structural counterpart of the fault, derived once with
// the builder's StrandPolicy.
func (f *Fault) Strand() *FaultStrand {
	f.strandOnce.Do(func() {
		strands := make([]*CauseStrand, len(f.causes))
		for i, c := range f.causes {
			strands[i] = f.builder.causeStrandOf(c)
		}
		f.strand = f.builder.FaultStrand(strands)
	})

	return f.strand
}

// DTO returns the serializable form of the chain, outermost first.
func (f *Fault) DTO() []CauseDTO {
	dtos := make([]CauseDTO, len(f.causes))
	for i, c := range f.causes {
		dtos[i] = CauseDTO{
			ClassName: c.className,
			Message:   c.message,
			Frames:    slices.Clone(c.frames),
		}
	}

	return dtos
}

// MarshalJSON renders the fault with its identities.
func (f *Fault) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ID            identity.Hash `json:"id"`
		FaultStrandID identity.Hash `json:"fault_strand_id"`
		Causes        []CauseDTO    `json:"causes"`
	}{
		ID:            f.Identity(),
		FaultStrandID: f.Strand().Identity(),
		Causes:        f.DTO(),
	})
}
