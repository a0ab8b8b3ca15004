package completion

import "unicode/utf8"

// Differ turns a sequence of cumulative strings into deltas. Each delta is
// the suffix of the new string after its longest common prefix with the
// previous one, so a shrinking or rewritten string never loses characters.
type Differ struct {
	sent string
}

// Next records full as sent and returns the part the client has not seen.
func (d *Differ) Next(full string) string {
	n := commonPrefix(d.sent, full)
	d.sent = full
	return full[n:]
}

// Sent returns the last cumulative string.
func (d *Differ) Sent() string {
	return d.sent
}

// commonPrefix returns the byte length of the longest common prefix of a
// and b, aligned to a rune boundary of b.
func commonPrefix(a, b string) int {
	n := min(len(a), len(b))
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	for i > 0 && i < len(b) && !utf8.RuneStart(b[i]) {
		i--
	}
	return i
}
