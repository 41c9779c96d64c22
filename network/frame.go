package network

import (
	"encoding/binary"
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/pkg/errors"
)

const (
	TypeIPv4 uint16 = 0x0800
	TypeARP  uint16 = 0x0806
)

var (
	// EthernetBroadcast is the all-ones destination every station accepts.
	EthernetBroadcast = net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

	// EthernetZero fills the target hardware field of ARP requests.
	EthernetZero = net.HardwareAddr{0x00, 0x00, 0x00, 0x00, 0x00, 0x00}
)

// Frame is one Ethernet frame.
type Frame struct {
	Dst     net.HardwareAddr
	Src     net.HardwareAddr
	Type    uint16 // TypeIPv4 or TypeARP
	Payload []byte
}

// Marshal serializes the frame including its payload.
func (f *Frame) Marshal() ([]byte, error) {
	eth := layers.Ethernet{
		SrcMAC:       f.Src,
		DstMAC:       f.Dst,
		EthernetType: layers.EthernetType(f.Type),
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true}
	if err := gopacket.SerializeLayers(buf, opts, &eth, gopacket.Payload(f.Payload)); err != nil {
		return nil, errors.Wrap(err, "serializing Ethernet frame")
	}
	return buf.Bytes(), nil
}

// ParseFrame decodes raw bytes into a Frame.
func ParseFrame(data []byte) (*Frame, error) {
	packet := gopacket.NewPacket(data, layers.LayerTypeEthernet, gopacket.Default)
	ethLayer := packet.Layer(layers.LayerTypeEthernet)
	if ethLayer == nil {
		return nil, errors.New("not an Ethernet frame")
	}
	eth := ethLayer.(*layers.Ethernet)

	return &Frame{
		Dst:     eth.DstMAC,
		Src:     eth.SrcMAC,
		Type:    uint16(eth.EthernetType),
		Payload: append([]byte(nil), eth.Payload...),
	}, nil
}

// ARP opcodes
const (
	ARPOpRequest uint16 = 1
	ARPOpReply   uint16 = 2
)

// ARPMessage is the Ethernet/IPv4 flavor of an ARP packet.
type ARPMessage struct {
	Opcode         uint16
	SenderEthernet net.HardwareAddr
	SenderIP       uint32
	TargetEthernet net.HardwareAddr
	TargetIP       uint32
}

// Marshal serializes the ARP message.
func (m *ARPMessage) Marshal() ([]byte, error) {
	senderIP := Uint32ToAddr(m.SenderIP).As4()
	targetIP := Uint32ToAddr(m.TargetIP).As4()

	arp := layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         m.Opcode,
		SourceHwAddress:   m.SenderEthernet,
		SourceProtAddress: senderIP[:],
		DstHwAddress:      m.TargetEthernet,
		DstProtAddress:    targetIP[:],
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true}
	if err := gopacket.SerializeLayers(buf, opts, &arp); err != nil {
		return nil, errors.Wrap(err, "serializing ARP message")
	}
	return buf.Bytes(), nil
}

// ParseARP decodes raw bytes into an ARPMessage.
func ParseARP(data []byte) (*ARPMessage, error) {
	packet := gopacket.NewPacket(data, layers.LayerTypeARP, gopacket.Default)
	arpLayer := packet.Layer(layers.LayerTypeARP)
	if arpLayer == nil {
		return nil, errors.New("not an ARP packet")
	}
	arp := arpLayer.(*layers.ARP)

	if arp.AddrType != layers.LinkTypeEthernet || arp.Protocol != layers.EthernetTypeIPv4 {
		return nil, errors.Errorf("unsupported ARP hardware/protocol pair %d/%d", arp.AddrType, arp.Protocol)
	}

	var senderIP, targetIP [4]byte
	copy(senderIP[:], arp.SourceProtAddress)
	copy(targetIP[:], arp.DstProtAddress)

	return &ARPMessage{
		Opcode:         arp.Operation,
		SenderEthernet: net.HardwareAddr(arp.SourceHwAddress),
		SenderIP:       binary.BigEndian.Uint32(senderIP[:]),
		TargetEthernet: net.HardwareAddr(arp.DstHwAddress),
		TargetIP:       binary.BigEndian.Uint32(targetIP[:]),
	}, nil
}
