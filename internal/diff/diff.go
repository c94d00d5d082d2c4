// Package diff compares two texts line by line for display.
//
// The comparison is positional: line i of the old text is only ever matched
// against line i of the new text. It is not a minimal edit script, so a single
// inserted line makes every following line show up as a remove/add pair.
// Change counts shown to users depend on this, so switching to an LCS diff
// changes what they see.
package diff

import (
	"fmt"
	"strings"
)

// Op tags a line of diff output.
type Op int

const (
	Same Op = iota
	Add
	Remove
)

var opNames = [...]string{Same: "same", Add: "add", Remove: "remove"}

func (o Op) String() string {
	if o >= Same && o <= Remove {
		return opNames[o]
	}
	return fmt.Sprintf("Op(%d)", int(o))
}

// MarshalText implements encoding.TextMarshaler.
func (o Op) MarshalText() ([]byte, error) {
	if o < Same || o > Remove {
		return nil, fmt.Errorf("diff: invalid op: %d", int(o))
	}
	return []byte(opNames[o]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (o *Op) UnmarshalText(text []byte) error {
	for i, name := range opNames {
		if name == string(text) {
			*o = Op(i)
			return nil
		}
	}
	return fmt.Errorf("diff: invalid op: %q", text)
}

// Line is one line of diff output.
type Line struct {
	Op   Op     `json:"op"`
	Text string `json:"text"`
}

// Compute returns the positional line diff from a to b.
//
// Both texts are split on "\n" and empty lines are kept, so Compute("", "")
// yields a single Same line with empty text. Carriage returns are not
// stripped.
func Compute(a, b string) []Line {
	left := strings.Split(a, "\n")
	right := strings.Split(b, "\n")

	n := max(len(left), len(right))
	lines := make([]Line, 0, n)
	for i := 0; i < n; i++ {
		hasLeft, hasRight := i < len(left), i < len(right)
		if hasLeft && hasRight && left[i] == right[i] {
			lines = append(lines, Line{Op: Same, Text: left[i]})
			continue
		}
		if hasLeft {
			lines = append(lines, Line{Op: Remove, Text: left[i]})
		}
		if hasRight {
			lines = append(lines, Line{Op: Add, Text: right[i]})
		}
	}
	return lines
}

// Counts tallies diff output by op.
type Counts struct {
	Same    int `json:"same"`
	Added   int `json:"added"`
	Removed int `json:"removed"`
}

// Changed reports whether any line was added or removed.
func (c Counts) Changed() bool {
	return c.Added > 0 || c.Removed > 0
}

// CountChanges tallies lines by op.
func CountChanges(lines []Line) Counts {
	var c Counts
	for _, l := range lines {
		switch l.Op {
		case Same:
			c.Same++
		case Add:
			c.Added++
		case Remove:
			c.Removed++
		}
	}
	return c
}
