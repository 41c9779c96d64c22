package network

import (
	"bytes"
	"net"
	"net/netip"

	"github.com/Clouded-Sabre/Userland-TCP/config"
)

const (
	ArpWaitTime  uint64 = 5000  // ms between ARP requests for one next hop
	ArpStaleTime uint64 = 30000 // ms a learned mapping stays usable
)

// arpEntry is one row of the ARP table. A row with reachable=false is a
// placeholder for an outstanding request; its expire time rate-limits
// re-requests. A reachable row expires when the mapping goes stale.
type arpEntry struct {
	ethernetAddr net.HardwareAddr
	reachable    bool
	expireTime   uint64
}

// Interface connects the internet layer with the link layer: it resolves
// next-hop IP addresses to Ethernet addresses over ARP, queues datagrams
// that are waiting on a resolution, and encapsulates/decapsulates frames.
type Interface struct {
	ethernetAddr net.HardwareAddr
	ipAddr       netip.Addr

	currentTime uint64 // ms since construction, advanced by Tick

	framesOut []*Frame               // outbound frames in send order
	pending   map[uint32][]*Datagram // per-next-hop datagrams awaiting ARP
	arpTable  map[uint32]*arpEntry
	inbound   []*Datagram // received datagrams a Router will drain

	arpWait  uint64
	arpStale uint64
}

func NewInterface(ethernetAddr net.HardwareAddr, ipAddr netip.Addr) *Interface {
	return &Interface{
		ethernetAddr: ethernetAddr,
		ipAddr:       ipAddr,
		pending:      make(map[uint32][]*Datagram),
		arpTable:     make(map[uint32]*arpEntry),
		arpWait:      ArpWaitTime,
		arpStale:     ArpStaleTime,
	}
}

// NewInterfaceWithConfig overrides the ARP timings from the configuration.
func NewInterfaceWithConfig(ethernetAddr net.HardwareAddr, ipAddr netip.Addr, conf *config.Config) *Interface {
	iface := NewInterface(ethernetAddr, ipAddr)
	if conf.ArpWaitTime > 0 {
		iface.arpWait = uint64(conf.ArpWaitTime)
	}
	if conf.ArpStaleTime > 0 {
		iface.arpStale = uint64(conf.ArpStaleTime)
	}
	return iface
}

func (i *Interface) EthernetAddress() net.HardwareAddr {
	return i.ethernetAddr
}

func (i *Interface) IPAddress() netip.Addr {
	return i.ipAddr
}

// SendDatagram emits dgram toward nextHop. With a resolved ARP mapping the
// datagram goes straight out as an IPv4 frame; otherwise it queues behind
// an ARP request.
func (i *Interface) SendDatagram(dgram *Datagram, nextHop netip.Addr) {
	nextHopIP := AddrToUint32(nextHop)

	entry, known := i.arpTable[nextHopIP]
	if !known {
		i.pending[nextHopIP] = append(i.pending[nextHopIP], dgram)
		i.sendARPMessage(ARPOpRequest, nextHopIP, EthernetZero)
		i.arpTable[nextHopIP] = &arpEntry{
			ethernetAddr: EthernetZero,
			reachable:    false,
			expireTime:   i.currentTime + i.arpWait,
		}
		return
	}

	if !entry.reachable {
		i.pending[nextHopIP] = append(i.pending[nextHopIP], dgram)

		// re-request only once the previous request has gone unanswered
		// for the full wait period
		if i.currentTime < entry.expireTime {
			return
		}
		i.sendARPMessage(ARPOpRequest, nextHopIP, EthernetZero)
		entry.expireTime = i.currentTime + i.arpWait
		return
	}

	i.sendIPv4Datagram(dgram, nextHopIP)
}

// RecvFrame processes one inbound frame. IPv4 payloads are returned to the
// caller; ARP payloads update the table and may trigger a reply. Frames for
// other stations and unparseable payloads are dropped silently.
func (i *Interface) RecvFrame(frame *Frame) *Datagram {
	if !bytes.Equal(frame.Dst, i.ethernetAddr) && !bytes.Equal(frame.Dst, EthernetBroadcast) {
		return nil
	}

	switch frame.Type {
	case TypeIPv4:
		dgram, err := ParseDatagram(frame.Payload)
		if err != nil {
			return nil
		}
		return dgram

	case TypeARP:
		arpmsg, err := ParseARP(frame.Payload)
		if err != nil {
			return nil
		}

		// learn only when we are the target or the sender is already known
		if arpmsg.TargetIP != AddrToUint32(i.ipAddr) {
			if _, known := i.arpTable[arpmsg.SenderIP]; !known {
				return nil
			}
		}

		i.arpTable[arpmsg.SenderIP] = &arpEntry{
			ethernetAddr: arpmsg.SenderEthernet,
			reachable:    true,
			expireTime:   i.currentTime + i.arpStale,
		}

		if arpmsg.Opcode == ARPOpRequest {
			i.sendARPMessage(ARPOpReply, arpmsg.SenderIP, arpmsg.SenderEthernet)
		}

		// release datagrams that were waiting on this resolution
		for _, dgram := range i.pending[arpmsg.SenderIP] {
			i.sendIPv4Datagram(dgram, arpmsg.SenderIP)
		}
		delete(i.pending, arpmsg.SenderIP)
	}

	return nil
}

// Tick advances the interface clock and drops expired ARP rows, both stale
// mappings and requests that never got an answer.
func (i *Interface) Tick(ms uint64) {
	i.currentTime += ms

	for ip, entry := range i.arpTable {
		if i.currentTime >= entry.expireTime {
			delete(i.arpTable, ip)
		}
	}
}

// FramesOut drains the outbound frame queue in send order.
func (i *Interface) FramesOut() []*Frame {
	out := i.framesOut
	i.framesOut = nil
	return out
}

// PushInboundDatagram queues a received datagram for a Router to pick up.
func (i *Interface) PushInboundDatagram(dgram *Datagram) {
	i.inbound = append(i.inbound, dgram)
}

// InboundDatagrams drains the received-datagram queue in arrival order.
func (i *Interface) InboundDatagrams() []*Datagram {
	out := i.inbound
	i.inbound = nil
	return out
}

func (i *Interface) sendIPv4Datagram(dgram *Datagram, nextHopIP uint32) {
	payload, err := dgram.Marshal()
	if err != nil {
		return
	}
	i.framesOut = append(i.framesOut, &Frame{
		Dst:     i.arpTable[nextHopIP].ethernetAddr,
		Src:     i.ethernetAddr,
		Type:    TypeIPv4,
		Payload: payload,
	})
}

func (i *Interface) sendARPMessage(opcode uint16, targetIP uint32, targetEthernet net.HardwareAddr) {
	arpmsg := &ARPMessage{
		Opcode:         opcode,
		SenderEthernet: i.ethernetAddr,
		SenderIP:       AddrToUint32(i.ipAddr),
		TargetEthernet: targetEthernet,
		TargetIP:       targetIP,
	}
	if opcode == ARPOpRequest {
		arpmsg.TargetEthernet = EthernetZero
	}

	payload, err := arpmsg.Marshal()
	if err != nil {
		return
	}

	dst := targetEthernet
	if opcode == ARPOpRequest {
		dst = EthernetBroadcast
	}

	i.framesOut = append(i.framesOut, &Frame{
		Dst:     dst,
		Src:     i.ethernetAddr,
		Type:    TypeARP,
		Payload: payload,
	})
}
