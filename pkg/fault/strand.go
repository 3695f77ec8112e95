package fault

import (
	"encoding/json"
	"slices"

	"github.com/papercomputeco/faultline/pkg/identity"
)

// StrandPolicy controls which structural data a CauseStrand keeps.
type StrandPolicy struct {
	// IncludeModules prefixes each method signature with the frame's module
	// (and version), so the same code path in two module versions yields two
	// strands.
	IncludeModules bool
}

// CauseStrand is the structural identity of a Cause: its class name and the
// ordered method signatures of its frames. Messages, files and line numbers
// are not part of it.
type CauseStrand struct {
	className  string
	signatures []string

	hasher *identity.Hasher
	memo   identity.Memo
}

// ClassName returns the exception class name.
func (s *CauseStrand) ClassName() string {
	return s.className
}

// MethodSignatures returns a copy of the ordered method signatures.
func (s *CauseStrand) MethodSignatures() []string {
	return slices.Clone(s.signatures)
}

// Kind implements identity.Hashable.
func (s *CauseStrand) Kind() identity.Kind {
	return KindCauseStrand
}

// WriteCanonical implements identity.Hashable.
func (s *CauseStrand) WriteCanonical(e *identity.Encoder) {
	e.String(s.className)
	e.List(len(s.signatures))
	for _, sig := range s.signatures {
		e.String(sig)
	}
}

// Identity returns the memoized content hash.
func (s *CauseStrand) Identity() identity.Hash {
	return s.memo.Get(func() identity.Hash {
		return s.hasher.Sum(s)
	})
}

// FaultStrand is the structural counterpart of a Fault. Occurrences whose
// messages or line numbers drift between deploys share a FaultStrand.
type FaultStrand struct {
	causeStrands []*CauseStrand

	hasher *identity.Hasher
	memo   identity.Memo
}

// CauseStrands returns the cause strands, outermost first.
func (s *FaultStrand) CauseStrands() []*CauseStrand {
	return slices.Clone(s.causeStrands)
}

// Kind implements identity.Hashable.
func (s *FaultStrand) Kind() identity.Kind {
	return KindFaultStrand
}

// WriteCanonical implements identity.Hashable.
func (s *FaultStrand) WriteCanonical(e *identity.Encoder) {
	e.List(len(s.causeStrands))
	for _, cs := range s.causeStrands {
		e.Nested(cs)
	}
}

// Identity returns the memoized content hash.
func (s *FaultStrand) Identity() identity.Hash {
	return s.memo.Get(func() identity.Hash {
		return s.hasher.Sum(s)
	})
}

// DTO returns the serializable form of the strand.
func (s *FaultStrand) DTO() []CauseStrandDTO {
	dtos := make([]CauseStrandDTO, len(s.causeStrands))
	for i, cs := range s.causeStrands {
		dtos[i] = CauseStrandDTO{
			ClassName:        cs.className,
			MethodSignatures: slices.Clone(cs.signatures),
		}
	}

	return dtos
}

// MarshalJSON renders the strand with its identity.
func (s *FaultStrand) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ID           identity.Hash    `json:"id"`
		CauseStrands []CauseStrandDTO `json:"cause_strands"`
	}{
		ID:           s.Identity(),
		CauseStrands: s.DTO(),
	})
}
