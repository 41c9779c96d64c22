package lib

import "github.com/google/btree"

// pendingChunk is one stored out-of-order substring, keyed by its absolute
// stream index.
type pendingChunk struct {
	index uint64
	data  []byte
}

func chunkLess(a, b pendingChunk) bool {
	return a.index < b.index
}

// StreamReassembler accepts substrings of the logical byte stream, possibly
// out of order and overlapping, and writes them into its output ByteStream
// in order. Stored substrings are kept pairwise disjoint, and everything
// held (assembled plus unassembled) fits within the output's capacity.
type StreamReassembler struct {
	output           *ByteStream
	capacity         int
	pending          *btree.BTreeG[pendingChunk]
	unassembledBytes uint64
	nextIndex        uint64
	hasEOF           bool
}

func NewStreamReassembler(capacity int) *StreamReassembler {
	return &StreamReassembler{
		output:   NewByteStream(capacity),
		capacity: capacity,
		pending:  btree.NewG(2, chunkLess),
	}
}

// PushSubstring merges data, located at the given absolute stream index,
// into the stream. eof marks data's last byte as the end of the stream.
func (r *StreamReassembler) PushSubstring(data []byte, index uint64, eof bool) {
	r.hasEOF = r.hasEOF || eof

	unacceptableIndex := r.nextIndex + uint64(r.capacity-r.output.BufferSize())

	// ignore empty, already-assembled or out-of-window substrings
	if len(data) == 0 || index+uint64(len(data)) <= r.nextIndex || index >= unacceptableIndex {
		r.closeIfDone()
		return
	}

	// trim to [nextIndex, unacceptableIndex)
	trimmedIndex := max(index, r.nextIndex)
	trimmedEnd := min(index+uint64(len(data)), unacceptableIndex)

	// shrink against stored chunks so they stay disjoint; snapshot first
	// because the tree must not change under Ascend
	stored := make([]pendingChunk, 0, r.pending.Len())
	r.pending.Ascend(func(chunk pendingChunk) bool {
		stored = append(stored, chunk)
		return true
	})

	covered := false
	for _, chunk := range stored {
		chunkEnd := chunk.index + uint64(len(chunk.data))

		switch {
		case trimmedIndex >= chunk.index && trimmedEnd <= chunkEnd:
			// fully contained in a stored chunk, nothing new
			covered = true
		case trimmedIndex <= chunk.index && trimmedEnd >= chunkEnd:
			// stored chunk fully contained in the new data, drop it
			r.unassembledBytes -= uint64(len(chunk.data))
			r.pending.Delete(chunk)
		case trimmedIndex < chunk.index && trimmedEnd > chunk.index:
			// overlap on the right, keep only the part before the chunk
			trimmedEnd = chunk.index
		case trimmedIndex < chunkEnd && trimmedEnd > chunkEnd:
			// overlap on the left, keep only the part after the chunk
			trimmedIndex = chunkEnd
		}
		if covered {
			break
		}
	}

	if !covered && trimmedEnd > trimmedIndex {
		piece := pendingChunk{
			index: trimmedIndex,
			data:  append([]byte(nil), data[trimmedIndex-index:trimmedEnd-index]...),
		}
		r.unassembledBytes += uint64(len(piece.data))
		r.pending.ReplaceOrInsert(piece)
	}

	// assemble everything now contiguous with the output
	for r.pending.Len() > 0 {
		head, _ := r.pending.Min()
		if head.index != r.nextIndex {
			break
		}
		bytesWritten := r.output.Write(head.data)
		r.unassembledBytes -= uint64(bytesWritten)
		r.nextIndex += uint64(bytesWritten)
		r.pending.DeleteMin()
	}

	r.closeIfDone()
}

func (r *StreamReassembler) closeIfDone() {
	if r.hasEOF && r.pending.Len() == 0 {
		r.output.EndInput()
	}
}

// FirstUnassembled returns the index of the first byte not yet written to
// the output stream.
func (r *StreamReassembler) FirstUnassembled() uint64 {
	return r.nextIndex
}

func (r *StreamReassembler) UnassembledBytes() uint64 {
	return r.unassembledBytes
}

func (r *StreamReassembler) Empty() bool {
	return r.pending.Len() == 0
}

func (r *StreamReassembler) Output() *ByteStream {
	return r.output
}
