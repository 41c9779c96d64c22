package lib

import "math"

// Sequence numbers travel on the wire as 32-bit values that wrap around,
// while both endpoints reason about them as absolute 64-bit stream offsets.
// WrapSeq and UnwrapSeq convert between the two representations.

// WrapSeq transforms an absolute 64-bit sequence number into its 32-bit
// on-wire form relative to the initial sequence number.
func WrapSeq(n uint64, isn uint32) uint32 {
	return isn + uint32(n)
}

// UnwrapSeq transforms a 32-bit on-wire sequence number into the absolute
// 64-bit sequence number that wraps to it and lies closest to checkpoint.
// Ties break toward the larger value.
func UnwrapSeq(n uint32, isn uint32, checkpoint uint64) uint64 {
	offset := n - isn
	absSeq := (checkpoint &^ 0xffffffff) | uint64(offset)

	// keep absSeq >= checkpoint so the distance compare below cannot underflow
	if absSeq < checkpoint {
		absSeq += 1 << 32
	}

	if absSeq >= 1<<32 {
		if absSeq-checkpoint > checkpoint-(absSeq-1<<32) {
			absSeq -= 1 << 32
		}
	}

	return absSeq
}

func SeqIncrementBy(seq, inc uint32) uint32 {
	return uint32(uint64(seq) + uint64(inc)) // implicit modulo operation included
}

// SEQ compare function with SEQ wraparound in mind
func isGreater(seq1, seq2 uint32) bool {
	if seq1 == seq2 {
		return false
	}
	// Calculate direct difference
	var diff, wrapdiff, distance int64
	diff = int64(seq1) - int64(seq2)
	if diff < 0 {
		diff = -diff
	}
	wrapdiff = int64(math.MaxUint32 + 1 - diff)

	// Choose the shorter distance
	if diff < wrapdiff {
		distance = diff
	} else {
		distance = wrapdiff
	}

	// Check if the first sequence number is "greater"
	return (distance+int64(seq2))%(math.MaxUint32+1) == int64(seq1)
}

func isGreaterOrEqual(seq1, seq2 uint32) bool {
	return isGreater(seq1, seq2) || (seq1 == seq2)
}

func isLess(seq1, seq2 uint32) bool {
	return !isGreaterOrEqual(seq1, seq2)
}

func isLessOrEqual(seq1, seq2 uint32) bool {
	return !isGreater(seq1, seq2)
}
