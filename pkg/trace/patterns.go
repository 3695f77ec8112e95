package trace

import (
	"errors"
	"regexp"
	"strconv"
	"strings"

	"github.com/papercomputeco/faultline/pkg/fault"
)

// framePattern is one entry of the frame table. build turns the regexp
// submatches into a frame; a nil build means the line is recognized but
// carries no frame.
type framePattern struct {
	name  string
	re    *regexp.Regexp
	build func(m []string) (fault.StackFrame, error)
}

// framePatterns is tried in order; the first match wins. The qualified name
// group may carry "loader/module@version/" prefixes, resolved by
// parseQualified.
var framePatterns = []framePattern{
	{
		name: "elided",
		re:   regexp.MustCompile(`^\.\.\. \d+ more$`),
	},
	{
		name: "native",
		re:   regexp.MustCompile(`^at (\S+)\(Native Method\)$`),
		build: func(m []string) (fault.StackFrame, error) {
			return parseQualified(m[1], "", fault.LineNative)
		},
	},
	{
		name: "unknown-source",
		re:   regexp.MustCompile(`^at (\S+)\(Unknown Source\)$`),
		build: func(m []string) (fault.StackFrame, error) {
			return parseQualified(m[1], "", fault.LineUnknown)
		},
	},
	{
		name: "file-line",
		re:   regexp.MustCompile(`^at (\S+)\(([^():]+):(\d+)\)$`),
		build: func(m []string) (fault.StackFrame, error) {
			line, err := strconv.Atoi(m[3])
			if err != nil {
				return fault.StackFrame{}, err
			}
			return parseQualified(m[1], m[2], line)
		},
	},
	{
		name: "file-only",
		re:   regexp.MustCompile(`^at (\S+)\(([^():]+)\)$`),
		build: func(m []string) (fault.StackFrame, error) {
			return parseQualified(m[1], m[2], fault.LineUnknown)
		},
	},
}

var errNoPattern = errors.New("no frame pattern matches")

// matchFrame runs the frame table against a trimmed line. ok is false for
// recognized lines that yield no frame.
func matchFrame(line string) (fault.StackFrame, bool, error) {
	for _, p := range framePatterns {
		m := p.re.FindStringSubmatch(line)
		if m == nil {
			continue
		}

		if p.build == nil {
			return fault.StackFrame{}, false, nil
		}

		frame, err := p.build(m)
		if err != nil {
			return fault.StackFrame{}, false, err
		}
		return frame, true, nil
	}

	return fault.StackFrame{}, false, errNoPattern
}

// parseQualified splits "[loader/][module[@version]/]pkg.Class.method".
// One slash means a module prefix; two mean class loader and module, where
// an empty module ("app//...") is the unnamed module.
func parseQualified(qualified, file string, line int) (fault.StackFrame, error) {
	frame := fault.StackFrame{File: file, Line: line}

	parts := strings.Split(qualified, "/")
	switch len(parts) {
	case 1:
	case 2:
		frame.Module, frame.ModuleVersion = splitModule(parts[0])
	case 3:
		frame.ClassLoader = parts[0]
		frame.Module, frame.ModuleVersion = splitModule(parts[1])
	default:
		return frame, errors.New("too many qualifiers in frame")
	}

	name := parts[len(parts)-1]
	dot := strings.LastIndexByte(name, '.')
	if dot <= 0 || dot == len(name)-1 {
		return frame, errors.New("frame has no class.method")
	}

	frame.ClassName = name[:dot]
	frame.Method = name[dot+1:]
	return frame, nil
}

func splitModule(s string) (string, string) {
	module, version, _ := strings.Cut(s, "@")
	return module, version
}
