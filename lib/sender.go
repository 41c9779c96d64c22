package lib

import "math/rand"

// Sender is the outbound half of a connection: it slices the application's
// byte stream into segments that fit the peer's advertised window, tracks
// which segments are still unacknowledged, and retransmits the oldest one
// when the retransmission timer fires.
type Sender struct {
	isn        uint32
	stream     *ByteStream // application bytes waiting to be segmentized
	initialRTO uint64      // ms
	rto        uint64      // current timeout, doubles on backoff

	nextSeqno        uint64 // absolute seqno of the next byte to send
	lastAckno        uint64 // highest absolute ackno received
	windowSize       uint16 // last advertised window, starts at 1
	outstandingBytes uint64

	outstanding []*Segment // sent but unacknowledged, in send order
	segmentsOut []*Segment // produced segments awaiting the owner

	timer           uint64
	timerRunning    bool
	consecutiveRetx uint
	finSent         bool
}

// NewSender creates a sender. fixedISN pins the initial sequence number for
// tests; pass nil to draw a random one.
func NewSender(capacity int, retxTimeout uint64, fixedISN *uint32) *Sender {
	isn := rand.Uint32()
	if fixedISN != nil {
		isn = *fixedISN
	}
	return &Sender{
		isn:        isn,
		stream:     NewByteStream(capacity),
		initialRTO: retxTimeout,
		rto:        retxTimeout,
		windowSize: 1,
	}
}

func (s *Sender) ISN() uint32 {
	return s.isn
}

func (s *Sender) StreamIn() *ByteStream {
	return s.stream
}

func (s *Sender) NextSeqno() uint64 {
	return s.nextSeqno
}

func (s *Sender) BytesInFlight() uint64 {
	return s.outstandingBytes
}

func (s *Sender) ConsecutiveRetransmissions() uint {
	return s.consecutiveRetx
}

// FillWindow emits as many segments as the peer's window allows: the SYN
// first, then payload segments, then the FIN once the stream is drained.
// A zero advertised window is treated as one byte so the peer gets probed.
func (s *Sender) FillWindow() {
	effectiveWindow := uint64(s.windowSize)
	if effectiveWindow == 0 {
		effectiveWindow = 1
	}
	if effectiveWindow <= s.outstandingBytes {
		return
	}
	windowCapacity := effectiveWindow - s.outstandingBytes

	for !s.finSent && windowCapacity > 0 {
		seg := &Segment{}

		if s.nextSeqno == 0 { // initial SYN
			seg.Flags = SYNFlag
		} else if s.stream.EOF() { // no more bytes coming, close with FIN
			seg.Flags = FINFlag
			s.finSent = true
		} else if !s.stream.BufferEmpty() {
			chunk := s.stream.Read(int(min(windowCapacity, MaxPayloadSize)))
			seg.NewChunk()
			if err := seg.CopyToPayload(chunk); err != nil {
				seg.ReturnChunk()
				seg.Payload = chunk
			}

			// piggyback the FIN if the window still has a slot for it
			if s.stream.EOF() && windowCapacity-seg.LengthInSequenceSpace() > 0 {
				seg.Flags |= FINFlag
				s.finSent = true
			}
		} else {
			return
		}

		seg.SequenceNumber = WrapSeq(s.nextSeqno, s.isn)

		segLength := seg.LengthInSequenceSpace()
		s.nextSeqno += segLength
		s.outstandingBytes += segLength
		windowCapacity -= segLength

		s.outstanding = append(s.outstanding, seg)
		s.segmentsOut = append(s.segmentsOut, seg)

		if !s.timerRunning {
			s.timerRunning = true
			s.timer = 0
		}
	}
}

// AckReceived digests an ackno and window advertisement from the peer. It
// returns false when the ackno acknowledges bytes that were never sent.
func (s *Sender) AckReceived(ackno uint32, windowSize uint16) bool {
	absAckno := UnwrapSeq(ackno, s.isn, s.lastAckno)
	if absAckno > s.nextSeqno {
		return false
	}

	s.windowSize = windowSize

	// an ack of already-acknowledged data carries nothing new
	if isLessOrEqual(ackno, WrapSeq(s.lastAckno, s.isn)) {
		return true
	}
	s.lastAckno = absAckno

	for len(s.outstanding) > 0 {
		seg := s.outstanding[0]
		segEnd := SeqIncrementBy(seg.SequenceNumber, uint32(seg.LengthInSequenceSpace()))
		if isLess(ackno, segEnd) {
			break
		}
		s.outstandingBytes -= seg.LengthInSequenceSpace()
		seg.ReturnChunk()
		s.outstanding = s.outstanding[1:]
	}

	s.rto = s.initialRTO
	s.consecutiveRetx = 0

	if len(s.outstanding) > 0 {
		s.timer = 0
	} else {
		s.timerRunning = false
	}

	return true
}

// Tick advances the retransmission timer. When it expires the earliest
// outstanding segment is resent. The timeout doubles only when the peer's
// window is open; with a zero window the base timeout keeps probing without
// counting as backoff.
func (s *Sender) Tick(ms uint64) {
	if !s.timerRunning {
		return
	}
	s.timer += ms
	if s.timer < s.rto {
		return
	}

	if len(s.outstanding) > 0 {
		s.segmentsOut = append(s.segmentsOut, s.outstanding[0])

		if s.windowSize != 0 {
			s.consecutiveRetx++
			s.rto *= 2
		}
	}

	s.timer = 0
}

// SendEmptySegment queues a flagless, payloadless segment carrying the
// current seqno. It is never tracked for retransmission, so the owner can
// use it for pure ACKs and challenge ACKs.
func (s *Sender) SendEmptySegment() {
	s.segmentsOut = append(s.segmentsOut, &Segment{
		SequenceNumber: WrapSeq(s.nextSeqno, s.isn),
	})
}
