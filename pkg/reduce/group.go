package reduce

import (
	"fmt"
	"strings"
)

// ShortenMode selects how package segments of displayed class names are
// abbreviated.
type ShortenMode int

const (
	// ShortenNone leaves class names as they are.
	ShortenNone ShortenMode = iota

	// ShortenShort keeps the first character of each package segment.
	ShortenShort

	// ShortenModerate keeps the first Width characters of each package segment.
	ShortenModerate
)

// DefaultModerateWidth is used when a moderate Group has no Width.
const DefaultModerateWidth = 3

// ParseShortenMode maps "none", "short" and "moderate" to a mode. The empty
// string is ShortenNone.
func ParseShortenMode(s string) (ShortenMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return ShortenNone, nil
	case "short":
		return ShortenShort, nil
	case "moderate":
		return ShortenModerate, nil
	default:
		return ShortenNone, fmt.Errorf("unknown shorten mode %q", s)
	}
}

func (m ShortenMode) String() string {
	switch m {
	case ShortenShort:
		return "short"
	case ShortenModerate:
		return "moderate"
	default:
		return "none"
	}
}

// Group is one configured class-name prefix.
type Group struct {
	Prefix  string
	Shorten ShortenMode
	Width   int
}

// shorten abbreviates every dotted segment but the last, which is the simple
// class name.
func (g *Group) shorten(className string) string {
	width := 0
	switch g.Shorten {
	case ShortenShort:
		width = 1
	case ShortenModerate:
		width = g.Width
		if width <= 0 {
			width = DefaultModerateWidth
		}
	default:
		return className
	}

	segments := strings.Split(className, ".")
	for i := 0; i < len(segments)-1; i++ {
		if len(segments[i]) > width {
			segments[i] = segments[i][:width]
		}
	}

	return strings.Join(segments, ".")
}

// ParsePrefixes reads a comma-separated prefix list into groups sharing one
// shorten mode. Blank entries are skipped.
func ParsePrefixes(csv string, mode ShortenMode) []Group {
	var groups []Group
	for _, p := range strings.Split(csv, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		groups = append(groups, Group{Prefix: p, Shorten: mode})
	}

	return groups
}
