// Package supervisor owns the lifecycle of one agent runtime subprocess per
// active session. It spawns the process, splits its stdout into
// newline-delimited protocol messages, writes correlated responses to its
// stdin, and detects exit. A malformed line is logged and dropped; the
// stream continues.
package supervisor

import "bytes"

// LineBuffer splits a byte stream into newline-delimited lines. A partial
// trailing line is buffered until the next chunk arrives and is never
// returned from Feed; Rest exposes it after the stream ends.
type LineBuffer struct {
	rest []byte
}

// Feed appends a chunk and returns every complete line it closes, without
// the trailing newline. A chunk that ends mid-line leaves the remainder
// buffered.
func (b *LineBuffer) Feed(p []byte) [][]byte {
	b.rest = append(b.rest, p...)

	var lines [][]byte
	for {
		i := bytes.IndexByte(b.rest, '\n')
		if i < 0 {
			return lines
		}
		line := make([]byte, i)
		copy(line, b.rest[:i])
		b.rest = b.rest[i+1:]
		lines = append(lines, line)
	}
}

// Rest returns the buffered partial line, if any. Meaningful only once the
// stream has ended; mid-stream it is whatever fragment arrived last.
func (b *LineBuffer) Rest() []byte {
	if len(b.rest) == 0 {
		return nil
	}
	return b.rest
}
