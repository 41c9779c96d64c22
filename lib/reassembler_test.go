package lib

import (
	"bytes"
	"testing"
)

func TestReassemblerInOrder(t *testing.T) {
	r := NewStreamReassembler(8)

	r.PushSubstring([]byte("abc"), 0, false)
	if got := r.Output().Read(10); !bytes.Equal(got, []byte("abc")) {
		t.Fatalf("output = %q, expected %q", got, "abc")
	}

	r.PushSubstring([]byte("def"), 3, false)
	if got := r.Output().Read(10); !bytes.Equal(got, []byte("def")) {
		t.Fatalf("output = %q, expected %q", got, "def")
	}
	if r.UnassembledBytes() != 0 {
		t.Errorf("UnassembledBytes = %d, expected 0", r.UnassembledBytes())
	}
}

func TestReassemblerOutOfOrder(t *testing.T) {
	r := NewStreamReassembler(9)

	r.PushSubstring([]byte("ghi"), 6, false)
	if r.Output().BufferSize() != 0 {
		t.Fatal("nothing should assemble before the gap is filled")
	}
	if r.UnassembledBytes() != 3 {
		t.Fatalf("UnassembledBytes = %d, expected 3", r.UnassembledBytes())
	}

	r.PushSubstring([]byte("abc"), 0, false)
	r.PushSubstring([]byte("def"), 3, true)

	if got := r.Output().Read(20); !bytes.Equal(got, []byte("abcdefghi")) {
		t.Fatalf("output = %q, expected %q", got, "abcdefghi")
	}
	if !r.Output().EOF() {
		t.Error("stream should report EOF once everything is assembled")
	}
	if r.UnassembledBytes() != 0 {
		t.Errorf("UnassembledBytes = %d, expected 0", r.UnassembledBytes())
	}
}

func TestReassemblerOverlaps(t *testing.T) {
	r := NewStreamReassembler(16)

	r.PushSubstring([]byte("cde"), 2, false)
	r.PushSubstring([]byte("abcd"), 0, false) // overlaps the stored chunk on the left

	if got := r.Output().Read(20); !bytes.Equal(got, []byte("abcde")) {
		t.Fatalf("output = %q, expected %q", got, "abcde")
	}

	// a substring fully covered by assembled output is a no-op
	r.PushSubstring([]byte("bcd"), 1, false)
	if r.Output().BufferSize() != 0 || r.UnassembledBytes() != 0 {
		t.Error("already-assembled substring should be ignored")
	}
}

func TestReassemblerSubsetAndSuperset(t *testing.T) {
	r := NewStreamReassembler(32)

	r.PushSubstring([]byte("fgh"), 5, false)
	// subset of the stored chunk, must not change anything
	r.PushSubstring([]byte("g"), 6, false)
	if r.UnassembledBytes() != 3 {
		t.Fatalf("UnassembledBytes = %d, expected 3", r.UnassembledBytes())
	}

	// superset swallows the stored chunk
	r.PushSubstring([]byte("efghi"), 4, false)
	if r.UnassembledBytes() != 5 {
		t.Fatalf("UnassembledBytes = %d, expected 5", r.UnassembledBytes())
	}

	r.PushSubstring([]byte("abcd"), 0, false)
	if got := r.Output().Read(20); !bytes.Equal(got, []byte("abcdefghi")) {
		t.Fatalf("output = %q, expected %q", got, "abcdefghi")
	}
}

func TestReassemblerCapacityWindow(t *testing.T) {
	r := NewStreamReassembler(4)

	// starts beyond nextIndex + remaining capacity, dropped entirely
	r.PushSubstring([]byte("zz"), 10, false)
	if r.UnassembledBytes() != 0 {
		t.Fatalf("out-of-window bytes were stored")
	}

	// partially past the window, the tail is trimmed off
	r.PushSubstring([]byte("abcdef"), 0, false)
	if r.Output().BufferSize() != 4 {
		t.Fatalf("output holds %d bytes, expected the capacity 4", r.Output().BufferSize())
	}
	if got := r.Output().Read(10); !bytes.Equal(got, []byte("abcd")) {
		t.Fatalf("output = %q, expected %q", got, "abcd")
	}
}

func TestReassemblerEOFOnEmptyPush(t *testing.T) {
	r := NewStreamReassembler(8)

	r.PushSubstring([]byte("ab"), 0, false)
	// empty substring flagged EOF still closes the stream
	r.PushSubstring(nil, 2, true)

	if !r.Output().InputEnded() {
		t.Error("EOF on an empty push should end the output stream")
	}
}

func TestReassemblerEOFWaitsForGaps(t *testing.T) {
	r := NewStreamReassembler(8)

	r.PushSubstring([]byte("cd"), 2, true)
	if r.Output().InputEnded() {
		t.Fatal("stream ended while a gap remains")
	}

	r.PushSubstring([]byte("ab"), 0, false)
	if !r.Output().InputEnded() {
		t.Error("stream should end once the EOF-flagged bytes assemble")
	}
	if got := r.Output().Read(10); !bytes.Equal(got, []byte("abcd")) {
		t.Fatalf("output = %q, expected %q", got, "abcd")
	}
}
