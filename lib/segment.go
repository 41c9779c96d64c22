package lib

import (
	"encoding/binary"
	"fmt"
	"net/netip"

	rp "github.com/Clouded-Sabre/ringpool/lib"
	"github.com/google/netstack/tcpip/header"
)

// Segment represents one TCP segment: the logical header fields the state
// machines care about plus the payload. Ports and the urgent pointer ride
// along for the wire codec but the connection logic never reads them.
type Segment struct {
	SourcePort        uint16      // SourcePort represents the source port
	DestinationPort   uint16      // DestinationPort represents the destination port
	SequenceNumber    uint32      // SequenceNumber represents the sequence number
	AcknowledgmentNum uint32      // AcknowledgmentNum represents the acknowledgment number
	WindowSize        uint16      // WindowSize specifies the number of bytes the receiver is willing to receive
	Flags             uint8       // Flags represent various control flags
	UrgentPointer     uint16      // UrgentPointer indicates the end of the urgent data (empty for now)
	Payload           []byte      // Payload represents the payload data
	chunk             *rp.Element // memory chunk backing Payload, nil when unpooled
}

func (s *Segment) IsSYN() bool { return s.Flags&SYNFlag != 0 }
func (s *Segment) IsACK() bool { return s.Flags&ACKFlag != 0 }
func (s *Segment) IsFIN() bool { return s.Flags&FINFlag != 0 }
func (s *Segment) IsRST() bool { return s.Flags&RSTFlag != 0 }

// LengthInSequenceSpace returns how many sequence numbers the segment
// occupies. SYN and FIN each take one in addition to the payload bytes.
func (s *Segment) LengthInSequenceSpace() uint64 {
	length := uint64(len(s.Payload))
	if s.IsSYN() {
		length++
	}
	if s.IsFIN() {
		length++
	}
	return length
}

// NewChunk attaches a pool chunk to the segment. No-op when pooling is off.
func (s *Segment) NewChunk() {
	if Pool == nil {
		return
	}
	s.chunk = Pool.GetElement()
}

// CopyToPayload copies src into the segment's chunk and points Payload at it.
// Without a chunk the bytes are copied into a fresh slice instead.
func (s *Segment) CopyToPayload(src []byte) error {
	if s.chunk == nil {
		s.Payload = append([]byte(nil), src...)
		return nil
	}
	err := s.chunk.Data.(*Payload).Copy(src)
	if err != nil {
		return err
	}
	s.Payload = s.chunk.Data.(*Payload).GetSlice()
	return nil
}

// ReturnChunk gives the payload chunk back to the pool once the segment is
// fully acknowledged and will never be retransmitted.
func (s *Segment) ReturnChunk() {
	if s.chunk != nil {
		Pool.ReturnElement(s.chunk)
		s.chunk = nil
		s.Payload = nil
	}
}

func (s *Segment) GetChunkReference() *rp.Element {
	return s.chunk
}

// Marshal serializes the segment into buffer as an RFC 793 header plus
// payload and returns the number of bytes written. The checksum covers the
// usual IPv4 pseudo header built from src and dst.
func (s *Segment) Marshal(src, dst netip.Addr, buffer []byte) (int, error) {
	frameLength := TcpHeaderLength + len(s.Payload)
	if frameLength > len(buffer) {
		return 0, fmt.Errorf("buffer size (%d) is too small to hold the segment (%d)", len(buffer), frameLength)
	}

	frame := buffer[:frameLength]

	// Write header fields
	binary.BigEndian.PutUint16(frame[0:2], s.SourcePort)
	binary.BigEndian.PutUint16(frame[2:4], s.DestinationPort)
	binary.BigEndian.PutUint32(frame[4:8], s.SequenceNumber)
	binary.BigEndian.PutUint32(frame[8:12], s.AcknowledgmentNum)

	// Data Offset and Reserved field (DO and RSV); no options, so the
	// header is always five 32-bit words
	frame[12] = uint8(TcpHeaderLength/4) << 4
	frame[13] = s.Flags
	binary.BigEndian.PutUint16(frame[14:16], s.WindowSize)
	binary.BigEndian.PutUint16(frame[16:18], 0) // checksum filled in below
	binary.BigEndian.PutUint16(frame[18:20], s.UrgentPointer)

	copy(frame[TcpHeaderLength:], s.Payload)

	sum := header.Checksum(frame, pseudoHeaderChecksum(src, dst, frameLength))
	binary.BigEndian.PutUint16(frame[16:18], ^sum)

	return frameLength, nil
}

// Unmarshal parses an RFC 793 header plus payload, verifying the checksum
// against the pseudo header built from src and dst.
func (s *Segment) Unmarshal(src, dst netip.Addr, data []byte) error {
	if len(data) < TcpHeaderLength {
		return fmt.Errorf("segment too short: %d bytes", len(data))
	}

	if header.Checksum(data, pseudoHeaderChecksum(src, dst, len(data))) != 0xffff {
		return fmt.Errorf("segment checksum mismatch")
	}

	s.SourcePort = binary.BigEndian.Uint16(data[0:2])
	s.DestinationPort = binary.BigEndian.Uint16(data[2:4])
	s.SequenceNumber = binary.BigEndian.Uint32(data[4:8])
	s.AcknowledgmentNum = binary.BigEndian.Uint32(data[8:12])
	dataOffset := int(data[12]>>4) * 4
	if dataOffset < TcpHeaderLength || dataOffset > len(data) {
		return fmt.Errorf("bad data offset %d", dataOffset)
	}
	s.Flags = data[13]
	s.WindowSize = binary.BigEndian.Uint16(data[14:16])
	s.UrgentPointer = binary.BigEndian.Uint16(data[18:20])
	s.Payload = append([]byte(nil), data[dataOffset:]...)

	return nil
}

// pseudoHeaderChecksum sums the 12-byte IPv4 pseudo header: src, dst, a zero
// byte, the protocol number and the TCP length.
func pseudoHeaderChecksum(src, dst netip.Addr, tcpLength int) uint16 {
	var pseudo [TcpPseudoHeaderLength]byte
	srcBytes := src.As4()
	dstBytes := dst.As4()
	copy(pseudo[0:4], srcBytes[:])
	copy(pseudo[4:8], dstBytes[:])
	pseudo[9] = 6 // TCP protocol number
	binary.BigEndian.PutUint16(pseudo[10:12], uint16(tcpLength))
	return header.Checksum(pseudo[:], 0)
}

