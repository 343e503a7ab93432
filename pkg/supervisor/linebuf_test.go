package supervisor //nolint:testpackage // internal white-box tests need access to unexported fields

import (
	"bytes"
	"testing"
)

func TestLineBufferSplitsCompleteLines(t *testing.T) {
	t.Parallel()

	var lb LineBuffer
	lines := lb.Feed([]byte("one\ntwo\nthree\n"))
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3", len(lines))
	}
	for i, want := range []string{"one", "two", "three"} {
		if string(lines[i]) != want {
			t.Errorf("line[%d] = %q, want %q", i, lines[i], want)
		}
	}
	if lb.Rest() != nil {
		t.Errorf("Rest = %q, want nil", lb.Rest())
	}
}

func TestLineBufferHoldsPartialTrailingLine(t *testing.T) {
	t.Parallel()

	var lb LineBuffer
	lines := lb.Feed([]byte(`{"type":"message"}` + "\n" + `{"type":"comp`))
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1 (partial line must not be returned)", len(lines))
	}

	// The partial line completes on the next chunk.
	lines = lb.Feed([]byte("lete\"}\n"))
	if len(lines) != 1 {
		t.Fatalf("got %d lines after second chunk, want 1", len(lines))
	}
	if string(lines[0]) != `{"type":"complete"}` {
		t.Errorf("reassembled line = %q", lines[0])
	}
}

func TestLineBufferRestAfterStreamEnd(t *testing.T) {
	t.Parallel()

	var lb LineBuffer
	lb.Feed([]byte("done\nleftover-without-newline"))
	if !bytes.Equal(lb.Rest(), []byte("leftover-without-newline")) {
		t.Errorf("Rest = %q", lb.Rest())
	}
}

func TestLineBufferByteAtATime(t *testing.T) {
	t.Parallel()

	var lb LineBuffer
	input := "ab\ncd\n"
	var got []string
	for i := 0; i < len(input); i++ {
		for _, line := range lb.Feed([]byte{input[i]}) {
			got = append(got, string(line))
		}
	}
	if len(got) != 2 || got[0] != "ab" || got[1] != "cd" {
		t.Errorf("byte-at-a-time lines = %v", got)
	}
}
