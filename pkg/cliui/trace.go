package cliui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/papercomputeco/faultline/pkg/fault"
	"github.com/papercomputeco/faultline/pkg/reduce"
)

var (
	ClassStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)
	MessageStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	CausedByStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	FrameStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	SummaryStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("109")).Italic(true)
)

// RenderTrace prints the chain of f with styled headers and frames. A nil
// reducer prints every frame.
func RenderTrace(f *fault.Fault, r *reduce.Reducer) string {
	if r == nil {
		r = &reduce.Reducer{}
	}

	var sb strings.Builder
	for i, c := range f.Causes() {
		if i > 0 {
			sb.WriteString(CausedByStyle.Render(strings.TrimSpace(fault.CausedByPrefix)))
			sb.WriteByte(' ')
		}

		sb.WriteString(ClassStyle.Render(c.ClassName()))
		if c.Message() != "" {
			sb.WriteString(": ")
			sb.WriteString(MessageStyle.Render(c.Message()))
		}
		sb.WriteByte('\n')

		for _, frame := range r.Reduce(c.Frames()) {
			if reduce.IsSummary(frame) {
				sb.WriteString("    ")
				sb.WriteString(SummaryStyle.Render("... " + frame.ClassName + " " + frame.Method))
			} else {
				sb.WriteString("    ")
				sb.WriteString(FrameStyle.Render("at " + frame.String()))
			}
			sb.WriteByte('\n')
		}
	}

	return sb.String()
}

// RenderIdentities prints the fault and strand identities as key/value
// lines.
func RenderIdentities(f *fault.Fault) string {
	return fmt.Sprintf("  %s %s\n  %s %s\n",
		KeyStyle.Render("fault:       "), ValueStyle.Render(f.Identity().String()),
		KeyStyle.Render("fault strand:"), ValueStyle.Render(f.Strand().Identity().String()),
	)
}

// TraceMarkdown builds a markdown report for f, suitable for RenderMarkdown.
func TraceMarkdown(f *fault.Fault, r *reduce.Reducer) string {
	if r == nil {
		r = &reduce.Reducer{}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\n", f.Head().ClassName())
	if msg := f.Head().Message(); msg != "" {
		fmt.Fprintf(&sb, "%s\n\n", msg)
	}

	sb.WriteString("| | |\n|---|---|\n")
	fmt.Fprintf(&sb, "| fault | `%s` |\n", f.Identity())
	fmt.Fprintf(&sb, "| fault strand | `%s` |\n", f.Strand().Identity())
	fmt.Fprintf(&sb, "| causes | %d |\n\n", len(f.Causes()))

	sb.WriteString("```\n")
	sb.WriteString(r.FormatFault(f))
	sb.WriteString("```\n")

	return sb.String()
}
