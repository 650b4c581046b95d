package voice

import "strings"

// Accumulator collects the finalized segments of one user turn plus the
// newest interim fragment.
type Accumulator struct {
	segments []string
	interim  string
}

// Append adds a finalized segment and drops the pending interim text. It
// reports false when the segment was blank and nothing was added.
func (a *Accumulator) Append(segment string) bool {
	a.interim = ""
	segment = strings.TrimSpace(segment)
	if segment == "" {
		return false
	}
	a.segments = append(a.segments, segment)
	return true
}

// SetInterim replaces the pending interim fragment.
func (a *Accumulator) SetInterim(fragment string) {
	a.interim = strings.TrimSpace(fragment)
}

// Text returns the finalized segments joined by single spaces.
func (a *Accumulator) Text() string {
	return strings.Join(a.segments, " ")
}

// Preview is the live transcript shown while the user speaks.
func (a *Accumulator) Preview() string {
	text := a.Text()
	switch {
	case a.interim == "":
		return text
	case text == "":
		return a.interim
	default:
		return text + " " + a.interim
	}
}

// Empty reports whether no segment has been finalized.
func (a *Accumulator) Empty() bool {
	return len(a.segments) == 0
}

func (a *Accumulator) Reset() {
	a.segments = a.segments[:0]
	a.interim = ""
}
