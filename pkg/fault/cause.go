package fault

import (
	"slices"

	"github.com/papercomputeco/faultline/pkg/identity"
)

// Cause is one node of an exception chain: the exception's class name, its
// message and its frames. Parent is the underlying cause, i.e. the next
// "Caused by" level, or nil for the root cause.
//
// A Cause is immutable once built. Its identity covers its own class name,
// message and frames; the chain order is captured by the enclosing Fault.
type Cause struct {
	className string
	message   string
	frames    []StackFrame
	parent    *Cause

	hasher *identity.Hasher
	memo   identity.Memo
}

// ClassName returns the exception class name.
func (c *Cause) ClassName() string {
	return c.className
}

// Message returns the exception message, possibly empty.
func (c *Cause) Message() string {
	return c.message
}

// Frames returns a copy of the cause's frames, innermost call first.
func (c *Cause) Frames() []StackFrame {
	return slices.Clone(c.frames)
}

// FrameCount returns the number of frames without copying them.
func (c *Cause) FrameCount() int {
	return len(c.frames)
}

// Parent returns the underlying cause, or nil.
func (c *Cause) Parent() *Cause {
	return c.parent
}

// Chain returns c followed by its parents, outermost first.
func (c *Cause) Chain() []*Cause {
	var chain []*Cause
	for cur := c; cur != nil && len(chain) < maxChainDepth; cur = cur.parent {
		chain = append(chain, cur)
	}

	return chain
}

// Kind implements identity.Hashable.
func (c *Cause) Kind() identity.Kind {
	return KindCause
}

// WriteCanonical implements identity.Hashable.
func (c *Cause) WriteCanonical(e *identity.Encoder) {
	e.String(c.className)
	e.String(c.message)
	e.List(len(c.frames))
	for _, f := range c.frames {
		f.writeCanonical(e)
	}
}

// Identity returns the memoized content hash.
func (c *Cause) Identity() identity.Hash {
	return c.memo.Get(func() identity.Hash {
		return c.hasher.Sum(c)
	})
}

// Equal reports whether both causes have the same identity.
func (c *Cause) Equal(o *Cause) bool {
	if c == nil || o == nil {
		return c == o
	}

	return c.Identity() == o.Identity()
}
