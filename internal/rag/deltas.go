package rag

import "strings"

// deltaNormalizer converts a provider fragment stream into pure deltas.
// Providers disagree on streaming semantics: some emit incremental deltas,
// others emit the cumulative text so far, and some occasionally re-send a
// stale shorter fragment. A single rule handles all three: the delta is the
// part of the fragment beyond its longest common prefix with the accumulated
// text. A cumulative fragment yields its new suffix, a pure delta yields
// itself, and a stale fragment yields nothing.
type deltaNormalizer struct {
	acc strings.Builder
}

// feed ingests one provider fragment and returns the normalized delta, which
// may be empty.
func (d *deltaNormalizer) feed(fragment string) string {
	n := commonPrefixLen(d.acc.String(), fragment)
	delta := fragment[n:]
	if delta != "" {
		d.acc.WriteString(delta)
	}
	return delta
}

// text returns the full accumulated answer so far.
func (d *deltaNormalizer) text() string {
	return d.acc.String()
}

// commonPrefixLen returns the length in bytes of the longest common prefix of
// a and b.
func commonPrefixLen(a, b string) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return i
}
