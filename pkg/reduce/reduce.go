// Package reduce compacts stack frames for display. Frames are classified by
// class-name prefix into display, aggregate, and remove groups; runs of
// aggregated frames collapse into a single summary frame.
package reduce

import (
	"strconv"
	"strings"

	"github.com/papercomputeco/faultline/pkg/fault"
)

// SummarySuffix terminates the class name of a summary frame.
const SummarySuffix = ".*"

// Reducer holds the three prefix sets. The zero value passes frames through
// unchanged.
type Reducer struct {
	Display   []Group
	Aggregate []Group
	Remove    []Group
}

type action int

const (
	actionNone action = iota
	actionDisplay
	actionAggregate
	actionRemove
)

// classify finds the longest prefix matching className across all sets. On
// equal lengths the earlier set wins: display, then aggregate, then remove.
func (r *Reducer) classify(className string) (action, *Group) {
	best := actionNone
	var match *Group
	bestLen := -1

	sets := []struct {
		act    action
		groups []Group
	}{
		{actionDisplay, r.Display},
		{actionAggregate, r.Aggregate},
		{actionRemove, r.Remove},
	}

	for _, set := range sets {
		for i := range set.groups {
			g := &set.groups[i]
			if !strings.HasPrefix(className, g.Prefix) || len(g.Prefix) <= bestLen {
				continue
			}
			best, match, bestLen = set.act, g, len(g.Prefix)
		}
	}

	return best, match
}

// Reduce runs one left-to-right pass over frames. Displayed frames are
// shortened per their group, removed frames are dropped, consecutive
// aggregated frames become one summary frame, and unmatched frames are
// emitted unchanged. The input is not modified.
func (r *Reducer) Reduce(frames []fault.StackFrame) []fault.StackFrame {
	out := make([]fault.StackFrame, 0, len(frames))
	var pending []string

	flush := func() {
		if len(pending) == 0 {
			return
		}
		out = append(out, Summary(pending))
		pending = pending[:0]
	}

	for _, f := range frames {
		act, g := r.classify(f.ClassName)
		switch act {
		case actionAggregate:
			pending = append(pending, f.ClassName)
		case actionRemove:
			flush()
		case actionDisplay:
			flush()
			f.ClassName = g.shorten(f.ClassName)
			out = append(out, f)
		default:
			flush()
			out = append(out, f)
		}
	}
	flush()

	return out
}

// Summary builds the frame standing in for aggregated frames with the given
// class names.
func Summary(classNames []string) fault.StackFrame {
	return fault.StackFrame{
		ClassName: LongestCommonPrefix(classNames) + SummarySuffix,
		Method:    "[" + strconv.Itoa(len(classNames)) + " calls]",
		Line:      fault.LineUnknown,
	}
}

// IsSummary reports whether f was produced by Summary.
func IsSummary(f fault.StackFrame) bool {
	return strings.HasSuffix(f.ClassName, SummarySuffix) &&
		strings.HasPrefix(f.Method, "[") &&
		strings.HasSuffix(f.Method, " calls]")
}

// LongestCommonPrefix compares byte by byte, so the result may end mid
// segment. It returns "" for no input.
func LongestCommonPrefix(ss []string) string {
	if len(ss) == 0 {
		return ""
	}

	prefix := ss[0]
	for _, s := range ss[1:] {
		n := min(len(prefix), len(s))
		i := 0
		for i < n && prefix[i] == s[i] {
			i++
		}
		prefix = prefix[:i]
		if prefix == "" {
			break
		}
	}

	return prefix
}
