package reduce

import (
	"strings"

	"github.com/papercomputeco/faultline/pkg/fault"
)

// Render prints reduced frames one per line. Summary frames print as
// "\t... org.example.* [3 calls]", all others as "\tat <frame>".
func Render(frames []fault.StackFrame) string {
	var sb strings.Builder
	writeFrames(&sb, frames)
	return sb.String()
}

func writeFrames(sb *strings.Builder, frames []fault.StackFrame) {
	for _, f := range frames {
		if IsSummary(f) {
			sb.WriteString("\t... ")
			sb.WriteString(f.ClassName)
			sb.WriteByte(' ')
			sb.WriteString(f.Method)
			sb.WriteByte('\n')
			continue
		}

		sb.WriteString("\tat ")
		sb.WriteString(f.String())
		sb.WriteByte('\n')
	}
}

// FormatFault prints f like fault.FormatFault with each cause's frames
// reduced.
func (r *Reducer) FormatFault(f *fault.Fault) string {
	var sb strings.Builder

	for i, c := range f.Causes() {
		if i > 0 {
			sb.WriteString(fault.CausedByPrefix)
		}
		sb.WriteString(fault.Header(c))
		sb.WriteByte('\n')
		writeFrames(&sb, r.Reduce(c.Frames()))
	}

	return sb.String()
}
