package fault

import (
	"errors"
	"fmt"
)

// CauseDTO is the wire and storage form of one Cause.
type CauseDTO struct {
	ClassName string       `json:"class_name"`
	Message   string       `json:"message,omitempty"`
	Frames    []StackFrame `json:"frames,omitempty"`
}

// CauseStrandDTO is the wire and storage form of one CauseStrand.
type CauseStrandDTO struct {
	ClassName        string   `json:"class_name"`
	MethodSignatures []string `json:"method_signatures,omitempty"`
}

// FaultFromDTO rebuilds a Fault from its causes, outermost first.
func (b *Builder) FaultFromDTO(dtos []CauseDTO) (*Fault, error) {
	if len(dtos) == 0 {
		return nil, ErrEmptyChain
	}

	var parent *Cause
	for i := len(dtos) - 1; i >= 0; i-- {
		d := dtos[i]
		if d.ClassName == "" {
			return nil, fmt.Errorf("cause %d: empty class name", i)
		}
		parent = b.Cause(d.ClassName, d.Message, d.Frames, parent)
	}

	return b.Fault(parent)
}

// FaultStrandFromDTO rebuilds a FaultStrand from its cause strands.
func (b *Builder) FaultStrandFromDTO(dtos []CauseStrandDTO) (*FaultStrand, error) {
	if len(dtos) == 0 {
		return nil, errors.New("empty cause strand list")
	}

	strands := make([]*CauseStrand, len(dtos))
	for i, d := range dtos {
		if d.ClassName == "" {
			return nil, fmt.Errorf("cause strand %d: empty class name", i)
		}
		strands[i] = b.CauseStrand(d.ClassName, d.MethodSignatures)
	}

	return b.FaultStrand(strands), nil
}
