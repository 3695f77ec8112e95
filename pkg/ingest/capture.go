package ingest

import (
	"context"
	"runtime"
	"strings"

	"github.com/papercomputeco/faultline/pkg/fault"
)

type noCaptureKey struct{}

// WithoutCapture marks ctx so that log records emitted with it are passed
// through without being recorded as faults. The pool's own logging uses it
// so a failing store cannot feed itself.
func WithoutCapture(ctx context.Context) context.Context {
	return context.WithValue(ctx, noCaptureKey{}, true)
}

func captureDisabled(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	v, _ := ctx.Value(noCaptureKey{}).(bool)
	return v
}

// loggingPrefixes are the packages between user code and a capturing
// handler.
var loggingPrefixes = []string{
	"log/slog",
	"github.com/papercomputeco/faultline/pkg/ingest",
	"github.com/papercomputeco/faultline/pkg/logger",
}

// callerFrames captures the current stack starting at the function that
// contains pc. Without a usable pc, leading logging frames are dropped.
func callerFrames(pc uintptr) []fault.StackFrame {
	frames := fault.Callers(1)

	if pc != 0 {
		if fn := runtime.FuncForPC(pc); fn != nil {
			name := fn.Name()
			for i, f := range frames {
				if f.Signature() == name {
					return frames[i:]
				}
			}
		}
	}

	return trimLogging(frames)
}

func trimLogging(frames []fault.StackFrame) []fault.StackFrame {
	for i, f := range frames {
		if !isLoggingFrame(f) {
			return frames[i:]
		}
	}
	return frames
}

func isLoggingFrame(f fault.StackFrame) bool {
	for _, p := range loggingPrefixes {
		if f.ClassName == p || strings.HasPrefix(f.ClassName, p+".") {
			return true
		}
	}
	return false
}
