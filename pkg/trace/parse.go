// Package trace reconstructs exception chains from printed stack traces.
package trace

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/papercomputeco/faultline/pkg/fault"
	"github.com/papercomputeco/faultline/pkg/utils"
)

// ErrMalformedTrace is wrapped by every ParseError.
var ErrMalformedTrace = errors.New("malformed stack trace")

// maxExcerpt bounds the input excerpt carried by a ParseError.
const maxExcerpt = 200

// ParseError reports trace text that could not be attributed to a header or
// a frame pattern.
type ParseError struct {
	// Line is the 1-based line number within the non-blank lines of the input,
	// or 0 when the input as a whole is unusable.
	Line int

	// Excerpt is the offending input, truncated.
	Excerpt string

	// Reason describes what was expected.
	Reason string
}

func (e *ParseError) Error() string {
	if e.Line == 0 {
		return fmt.Sprintf("%s: %s", ErrMalformedTrace, e.Reason)
	}

	return fmt.Sprintf("%s: line %d: %s: %q", ErrMalformedTrace, e.Line, e.Reason, e.Excerpt)
}

func (e *ParseError) Unwrap() error {
	return ErrMalformedTrace
}

func newParseError(line int, text, reason string) *ParseError {
	return &ParseError{Line: line, Excerpt: utils.Truncate(text, maxExcerpt), Reason: reason}
}

// SuppressedPrefix starts a suppressed exception block. Suppressed blocks are
// indented under the frames of the exception that suppressed them and are
// not part of the cause chain.
const SuppressedPrefix = "Suppressed: "

// threadPrefix matches the header the default uncaught exception handler
// prints, e.g. `Exception in thread "main" java.lang.Error: boom`.
var threadPrefix = regexp.MustCompile(`^Exception in thread ".*?" `)

// block is one header and its frames.
type block struct {
	className string
	message   string
	frames    []fault.StackFrame
	sawFrame  bool
}

// Parse reconstructs the cause chain printed in text. The first header is the
// returned head; every "Caused by:" header becomes the Parent of the block
// before it. Elided "... N more" frames and suppressed blocks are dropped, as
// is the "Exception in thread" prefix of a header. Parse is deterministic,
// performs no I/O, and either returns the whole chain or a *ParseError.
func Parse(b *fault.Builder, text string) (*fault.Cause, error) {
	lines := nonBlankLines(text)
	if len(lines) == 0 {
		return nil, newParseError(0, text, "empty input")
	}

	var blocks []*block
	suppressedDepth := -1
	for i, line := range lines {
		lineNo := i + 1

		// A suppressed block spans its deeper lines and the causes printed
		// at its own depth.
		if suppressedDepth >= 0 {
			depth := indentOf(line)
			if depth > suppressedDepth || (depth == suppressedDepth && strings.HasPrefix(strings.TrimSpace(line), fault.CausedByPrefix)) {
				continue
			}
			suppressedDepth = -1
		}

		if isIndented(line) {
			if len(blocks) == 0 {
				return nil, newParseError(lineNo, line, "frame before any exception header")
			}

			current := blocks[len(blocks)-1]
			current.sawFrame = true

			trimmed := strings.TrimSpace(line)
			if strings.HasPrefix(trimmed, SuppressedPrefix) {
				suppressedDepth = indentOf(line)
				continue
			}

			frame, ok, err := matchFrame(trimmed)
			if err != nil {
				return nil, newParseError(lineNo, line, err.Error())
			}

			if ok {
				current.frames = append(current.frames, frame)
			}
			continue
		}

		if rest, ok := strings.CutPrefix(line, fault.CausedByPrefix); ok {
			if len(blocks) == 0 {
				return nil, newParseError(lineNo, line, "cause before any exception header")
			}

			blocks = append(blocks, newBlock(rest))
			continue
		}

		if len(blocks) == 0 {
			blocks = append(blocks, newBlock(line))
			continue
		}

		// A flush-left line directly under a header continues a multi-line
		// message. Once frames have started it cannot be attributed.
		current := blocks[len(blocks)-1]
		if current.sawFrame {
			return nil, newParseError(lineNo, line, "unexpected text after frames")
		}
		current.message += "\n" + line
	}

	var parent *fault.Cause
	for i := len(blocks) - 1; i >= 0; i-- {
		blk := blocks[i]
		if blk.className == "" {
			return nil, newParseError(0, text, fmt.Sprintf("exception %d has no class name", i+1))
		}
		parent = b.Cause(blk.className, blk.message, blk.frames, parent)
	}

	return parent, nil
}

// ParseFault parses text into a Fault.
func ParseFault(b *fault.Builder, text string) (*fault.Fault, error) {
	head, err := Parse(b, text)
	if err != nil {
		return nil, err
	}

	return b.Fault(head)
}

// newBlock splits a header on the first ": " into class name and message.
func newBlock(header string) *block {
	header = threadPrefix.ReplaceAllLiteralString(header, "")
	className, message, _ := strings.Cut(header, ": ")

	return &block{
		className: strings.TrimSpace(className),
		message:   message,
	}
}

func nonBlankLines(text string) []string {
	raw := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")

	lines := make([]string, 0, len(raw))
	for _, line := range raw {
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
	}

	return lines
}

func isIndented(line string) bool {
	return line[0] == ' ' || line[0] == '\t'
}

// indentOf counts the leading spaces and tabs of line.
func indentOf(line string) int {
	return len(line) - len(strings.TrimLeft(line, " \t"))
}
