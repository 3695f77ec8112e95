package fault

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/papercomputeco/faultline/pkg/identity"
)

const (
	// LineUnknown marks a frame whose line number is not known.
	LineUnknown = -1

	// LineNative marks a frame executing native code.
	LineNative = -2
)

// StackFrame is one call-stack frame. It is a comparable value.
type StackFrame struct {
	ClassName     string `json:"class_name"`
	Method        string `json:"method"`
	File          string `json:"file,omitempty"`
	Line          int    `json:"line"`
	Module        string `json:"module,omitempty"`
	ModuleVersion string `json:"module_version,omitempty"`
	ClassLoader   string `json:"class_loader,omitempty"`
}

// UnmarshalJSON decodes a frame, treating a missing or null line as
// LineUnknown.
func (f *StackFrame) UnmarshalJSON(data []byte) error {
	type plain StackFrame
	var raw struct {
		plain
		Line *int `json:"line"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*f = StackFrame(raw.plain)
	f.Line = LineUnknown
	if raw.Line != nil {
		f.Line = *raw.Line
	}
	return nil
}

// Signature is the structural part of the frame: ClassName.Method.
func (f StackFrame) Signature() string {
	return f.ClassName + "." + f.Method
}

// IsNative reports whether the frame runs native code.
func (f StackFrame) IsNative() bool {
	return f.Line == LineNative
}

// String renders the frame as it appears after "at " in a printed trace.
func (f StackFrame) String() string {
	var sb strings.Builder

	switch {
	case f.ClassLoader != "":
		sb.WriteString(f.ClassLoader)
		sb.WriteByte('/')
		f.writeModule(&sb)
		sb.WriteByte('/')
	case f.Module != "":
		f.writeModule(&sb)
		sb.WriteByte('/')
	}

	sb.WriteString(f.ClassName)
	sb.WriteByte('.')
	sb.WriteString(f.Method)
	sb.WriteByte('(')

	switch {
	case f.Line == LineNative:
		sb.WriteString("Native Method")
	case f.File == "":
		sb.WriteString("Unknown Source")
	case f.Line < 0:
		sb.WriteString(f.File)
	default:
		sb.WriteString(f.File)
		sb.WriteByte(':')
		sb.WriteString(strconv.Itoa(f.Line))
	}

	sb.WriteByte(')')
	return sb.String()
}

func (f StackFrame) writeModule(sb *strings.Builder) {
	sb.WriteString(f.Module)
	if f.ModuleVersion != "" {
		sb.WriteByte('@')
		sb.WriteString(f.ModuleVersion)
	}
}

// writeCanonical writes the frame's fields in fixed order. Frames are leaves
// and are written inline by their Cause.
func (f StackFrame) writeCanonical(e *identity.Encoder) {
	e.String(f.ClassName)
	e.String(f.Method)
	e.OptionalString(f.File)
	e.Int(int64(f.Line))
	e.OptionalString(f.Module)
	e.OptionalString(f.ModuleVersion)
	e.OptionalString(f.ClassLoader)
}
