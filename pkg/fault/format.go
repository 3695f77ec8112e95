package fault

import "strings"

// CausedByPrefix introduces each nested cause in a printed trace.
const CausedByPrefix = "Caused by: "

// Header renders the exception line of a cause: "ClassName: message", or
// just the class name when the message is empty.
func Header(c *Cause) string {
	if c.message == "" {
		return c.className
	}

	return c.className + ": " + c.message
}

// Format prints the chain starting at c in the JVM trace dialect:
//
//	pkg.Outer: message
//		at pkg.Class.method(File.java:12)
//	Caused by: pkg.Inner: other message
//		at pkg.Other.call(Other.java:3)
func Format(c *Cause) string {
	var sb strings.Builder

	for i, cur := range c.Chain() {
		if i > 0 {
			sb.WriteString(CausedByPrefix)
		}
		sb.WriteString(Header(cur))
		sb.WriteByte('\n')

		for _, f := range cur.frames {
			sb.WriteString("\tat ")
			sb.WriteString(f.String())
			sb.WriteByte('\n')
		}
	}

	return sb.String()
}

// FormatFault prints the whole chain of f.
func FormatFault(f *Fault) string {
	return Format(f.Head())
}
