package lib

import (
	"bytes"
	"net/netip"
	"testing"
)

func TestSegmentMarshalUnmarshal(t *testing.T) {
	src := netip.MustParseAddr("10.0.0.1")
	dst := netip.MustParseAddr("10.0.0.2")

	seg := &Segment{
		SourcePort:        4000,
		DestinationPort:   80,
		SequenceNumber:    0xdeadbeef,
		AcknowledgmentNum: 0x01020304,
		WindowSize:        512,
		Flags:             SYNFlag | ACKFlag,
		Payload:           []byte("payload bytes"),
	}

	buf := make([]byte, 2048)
	n, err := seg.Marshal(src, dst, buf)
	if err != nil {
		t.Fatal(err)
	}
	if n != TcpHeaderLength+len(seg.Payload) {
		t.Fatalf("marshaled %d bytes, expected %d", n, TcpHeaderLength+len(seg.Payload))
	}

	var parsed Segment
	if err := parsed.Unmarshal(src, dst, buf[:n]); err != nil {
		t.Fatal(err)
	}
	if parsed.SequenceNumber != seg.SequenceNumber || parsed.AcknowledgmentNum != seg.AcknowledgmentNum {
		t.Error("sequence fields did not survive the round trip")
	}
	if parsed.Flags != seg.Flags || parsed.WindowSize != seg.WindowSize {
		t.Error("flags or window did not survive the round trip")
	}
	if !bytes.Equal(parsed.Payload, seg.Payload) {
		t.Errorf("payload = %q", parsed.Payload)
	}
}

func TestSegmentChecksumRejectsCorruption(t *testing.T) {
	src := netip.MustParseAddr("192.168.1.1")
	dst := netip.MustParseAddr("192.168.1.2")

	seg := &Segment{SequenceNumber: 7, Flags: ACKFlag, Payload: []byte("abc")}
	buf := make([]byte, 256)
	n, err := seg.Marshal(src, dst, buf)
	if err != nil {
		t.Fatal(err)
	}

	buf[n-1] ^= 0xff // flip payload bits

	var parsed Segment
	if err := parsed.Unmarshal(src, dst, buf[:n]); err == nil {
		t.Error("corrupted segment should fail the checksum")
	}

	// the checksum binds the addresses too
	var parsed2 Segment
	other := netip.MustParseAddr("192.168.1.3")
	buf[n-1] ^= 0xff
	if err := parsed2.Unmarshal(src, other, buf[:n]); err == nil {
		t.Error("segment verified against the wrong pseudo header")
	}
}

func TestSegmentMarshalBufferTooSmall(t *testing.T) {
	seg := &Segment{Payload: make([]byte, 100)}
	buf := make([]byte, 50)
	if _, err := seg.Marshal(netip.MustParseAddr("1.2.3.4"), netip.MustParseAddr("5.6.7.8"), buf); err == nil {
		t.Error("expected an error for an undersized buffer")
	}
}
