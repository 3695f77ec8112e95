package fault

import (
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
)

// maxCallers bounds the number of frames captured by Callers.
const maxCallers = 64

// Callers captures the calling goroutine's stack as frames, skipping skip
// frames above the caller of Callers.
func Callers(skip int) []StackFrame {
	pcs := make([]uintptr, maxCallers)
	n := runtime.Callers(skip+2, pcs)
	if n == 0 {
		return nil
	}

	frames := runtime.CallersFrames(pcs[:n])
	var out []StackFrame
	for {
		rf, more := frames.Next()
		if rf.Function != "" {
			out = append(out, frameOf(rf))
		}
		if !more {
			break
		}
	}

	return out
}

// frameOf maps a Go frame onto the class/method model. The "class" is the
// function's package path plus receiver, the "method" its final name:
// "example.com/pkg.(*T).Run" becomes ("example.com/pkg.(*T)", "Run").
func frameOf(rf runtime.Frame) StackFrame {
	class, method := splitFunction(rf.Function)

	line := rf.Line
	if line <= 0 {
		line = LineUnknown
	}

	return StackFrame{
		ClassName: class,
		Method:    method,
		File:      filepath.Base(rf.File),
		Line:      line,
	}
}

func splitFunction(fn string) (string, string) {
	slash := strings.LastIndexByte(fn, '/')
	dot := strings.LastIndexByte(fn, '.')
	if dot <= slash {
		return fn, ""
	}

	return fn[:dot], fn[dot+1:]
}

// FromError builds a Fault from a Go error chain. Each error reached through
// Unwrap becomes one Cause, named after its dynamic type. Only the outermost
// cause carries frames, as Go errors do not record their own stacks.
func (b *Builder) FromError(err error, frames []StackFrame) (*Fault, error) {
	if err == nil {
		return nil, ErrEmptyChain
	}

	var chain []error
	for cur := err; cur != nil && len(chain) < maxChainDepth; cur = unwrapOne(cur) {
		chain = append(chain, cur)
	}

	var parent *Cause
	for i := len(chain) - 1; i >= 0; i-- {
		msg := chain[i].Error()
		if i+1 < len(chain) {
			msg = strings.TrimSuffix(msg, ": "+chain[i+1].Error())
		}

		var causeFrames []StackFrame
		if i == 0 {
			causeFrames = frames
		}

		parent = b.Cause(fmt.Sprintf("%T", chain[i]), msg, causeFrames, parent)
	}

	return b.Fault(parent)
}

// unwrapOne follows single-error wrapping, and the first branch of joined
// errors.
func unwrapOne(err error) error {
	if next := errors.Unwrap(err); next != nil {
		return next
	}

	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range joined.Unwrap() {
			if e != nil {
				return e
			}
		}
	}

	return nil
}
