package network

import (
	"net/netip"

	ipv4header "github.com/brown-csci1680/iptcp-headers"
	"github.com/google/netstack/tcpip/header"
	"github.com/pkg/errors"
)

const (
	// TCPProtocolNum is the IPv4 protocol number carried by segments.
	TCPProtocolNum = 6

	// DefaultTTL is the initial hop count of locally originated datagrams.
	DefaultTTL = 64
)

// Datagram is an IPv4 datagram: header plus payload.
type Datagram struct {
	Header  ipv4header.IPv4Header
	Payload []byte
}

// NewDatagram builds a datagram with the usual header defaults.
func NewDatagram(src, dst netip.Addr, protocol int, payload []byte) *Datagram {
	return &Datagram{
		Header: ipv4header.IPv4Header{
			Version:  4,
			Len:      ipv4header.HeaderLen, // no IP options
			TOS:      0,
			TotalLen: ipv4header.HeaderLen + len(payload),
			ID:       0,
			Flags:    0,
			FragOff:  0,
			TTL:      DefaultTTL,
			Protocol: protocol,
			Checksum: 0,
			Src:      src,
			Dst:      dst,
			Options:  []byte{},
		},
		Payload: payload,
	}
}

// Marshal serializes the datagram, computing the header checksum.
func (d *Datagram) Marshal() ([]byte, error) {
	d.Header.Checksum = 0
	headerBytes, err := d.Header.Marshal()
	if err != nil {
		return nil, errors.Wrap(err, "marshaling IPv4 header")
	}

	d.Header.Checksum = int(^header.Checksum(headerBytes, 0))
	headerBytes, err = d.Header.Marshal()
	if err != nil {
		return nil, errors.Wrap(err, "marshaling IPv4 header")
	}

	out := make([]byte, 0, len(headerBytes)+len(d.Payload))
	out = append(out, headerBytes...)
	out = append(out, d.Payload...)
	return out, nil
}

// ParseDatagram parses raw bytes into a datagram, verifying the header
// checksum.
func ParseDatagram(data []byte) (*Datagram, error) {
	hdr, err := ipv4header.ParseHeader(data)
	if err != nil {
		return nil, errors.Wrap(err, "parsing IPv4 header")
	}

	if hdr.Len > len(data) || hdr.TotalLen > len(data) || hdr.TotalLen < hdr.Len {
		return nil, errors.Errorf("IPv4 lengths out of range: header %d, total %d, have %d", hdr.Len, hdr.TotalLen, len(data))
	}

	// a valid header sums to all ones, checksum field included
	if header.Checksum(data[:hdr.Len], 0) != 0xffff {
		return nil, errors.New("IPv4 header checksum mismatch")
	}

	return &Datagram{
		Header:  *hdr,
		Payload: append([]byte(nil), data[hdr.Len:hdr.TotalLen]...),
	}, nil
}
