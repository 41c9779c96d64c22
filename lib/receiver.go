package lib

import "math"

// Receiver is the inbound half of a connection. It feeds payloads into a
// StreamReassembler and derives the ackno and advertised window from it.
type Receiver struct {
	reassembler *StreamReassembler
	isn         uint32 // peer's initial sequence number, valid once synReceived
	synReceived bool
	finReceived bool
}

func NewReceiver(capacity int) *Receiver {
	return &Receiver{
		reassembler: NewStreamReassembler(capacity),
	}
}

// SegmentReceived accepts an inbound segment and reports whether it was
// acceptable. Unacceptable segments still deserve an ACK from the caller so
// the peer can resynchronize.
func (r *Receiver) SegmentReceived(seg *Segment) bool {
	// ignore duplicate SYN or FIN
	if (r.synReceived && seg.IsSYN()) || (r.finReceived && seg.IsFIN()) {
		return false
	}

	if !r.synReceived {
		if !seg.IsSYN() { // nothing to do with segments before the SYN
			return false
		}
		r.synReceived = true
		r.isn = seg.SequenceNumber
	}

	if seg.IsFIN() {
		r.finReceived = true
	}

	nextIndex := r.reassembler.FirstUnassembled()
	segSeqno := UnwrapSeq(seg.SequenceNumber, r.isn, nextIndex)

	// the SYN occupies a sequence number but no stream index, so the first
	// payload byte of a SYN-bearing segment lands at streamIndex 0
	var streamIndex uint64
	if seg.IsSYN() {
		streamIndex = segSeqno
	} else {
		streamIndex = segSeqno - 1
	}

	segLength := seg.LengthInSequenceSpace()
	if segLength == 0 {
		segLength = 1 // a bare ACK still occupies one slot for the window check
	}

	windowStart := r.absAckno()
	windowSize := uint64(r.WindowSize())
	if windowSize == 0 {
		windowSize = 1
	}

	if !seg.IsSYN() && !seg.IsFIN() {
		if segSeqno+segLength <= windowStart || segSeqno >= windowStart+windowSize {
			return false
		}
	}

	r.reassembler.PushSubstring(seg.Payload, streamIndex, seg.IsFIN())

	return true
}

// absAckno returns the next expected absolute sequence number: one for the
// SYN, the assembled byte count, and one more once the FIN has been fully
// assembled.
func (r *Receiver) absAckno() uint64 {
	ackno := 1 + r.reassembler.FirstUnassembled()
	if r.finReceived && r.reassembler.Empty() && r.reassembler.Output().InputEnded() {
		ackno++
	}
	return ackno
}

// Ackno returns the on-wire acknowledgment number. It is meaningful only
// after the peer's SYN arrived, indicated by the second return value.
func (r *Receiver) Ackno() (uint32, bool) {
	if !r.synReceived {
		return 0, false
	}
	return WrapSeq(r.absAckno(), r.isn), true
}

// WindowSize advertises how many more bytes the output stream can absorb,
// capped at what the 16-bit header field can carry.
func (r *Receiver) WindowSize() uint16 {
	remaining := r.reassembler.Output().RemainingCapacity()
	if remaining > math.MaxUint16 {
		return math.MaxUint16
	}
	return uint16(remaining)
}

func (r *Receiver) UnassembledBytes() uint64 {
	return r.reassembler.UnassembledBytes()
}

func (r *Receiver) StreamOut() *ByteStream {
	return r.reassembler.Output()
}
