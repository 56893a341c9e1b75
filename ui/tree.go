// Package ui holds terminal rendering helpers shared by the text outputs.
package ui

import "strings"

const (
	Branch     = "├── "
	LastBranch = "└── "
	Continue   = "│   "
	Indent     = "    "
)

// Prefix builds the connector for a node nested under len(ancestorsLast)
// levels. ancestorsLast[i] reports whether the ancestor at depth i+1 was the
// last of its siblings, outermost first.
func Prefix(isLast bool, ancestorsLast ...bool) string {
	var b strings.Builder
	for _, last := range ancestorsLast {
		if last {
			b.WriteString(Indent)
		} else {
			b.WriteString(Continue)
		}
	}
	if isLast {
		b.WriteString(LastBranch)
	} else {
		b.WriteString(Branch)
	}
	return b.String()
}

// StatusMark returns a single glyph for a status word.
func StatusMark(status string) string {
	switch status {
	case "passed":
		return "✓"
	case "failed":
		return "✗"
	case "skipped":
		return "⊝"
	default:
		return "?"
	}
}
