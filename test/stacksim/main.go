package main

/*
stacksim runs a complete TCP conversation through the whole stack without
touching a real network: two hosts on different subnets, joined by a
router, with every segment travelling as a checksummed IPv4 datagram inside
an Ethernet frame and every next hop resolved over ARP.

  - TCP behaviour (handshake, windows, retransmission) via lib
  - IP forwarding with longest-prefix-match via network.Router
  - ARP resolution and frame encap/decap via network.Interface
  - settings via config.yaml when present, defaults otherwise
*/

import (
	"log"
	"net"
	"net/netip"

	"github.com/Clouded-Sabre/Userland-TCP/config"
	"github.com/Clouded-Sabre/Userland-TCP/lib"
	"github.com/Clouded-Sabre/Userland-TCP/network"
)

type host struct {
	name    string
	conn    *lib.Connection
	iface   *network.Interface
	ip      netip.Addr
	peerIP  netip.Addr
	gateway netip.Addr
	debug   bool
}

// deliverToHost hands an inbound datagram up the host's stack.
func (h *host) deliverToHost(dgram *network.Datagram) {
	seg := &lib.Segment{}
	if err := seg.Unmarshal(dgram.Header.Src, dgram.Header.Dst, dgram.Payload); err != nil {
		log.Println(h.name, "dropping malformed segment:", err)
		return
	}
	h.conn.SegmentReceived(seg)
}

// flushConnection wraps the connection's pending segments into datagrams
// and pushes them toward the gateway.
func (h *host) flushConnection() {
	for _, seg := range h.conn.SegmentsOut() {
		if h.debug && seg.GetChunkReference() != nil {
			log.Println(h.name, "sending pooled payload:")
			seg.GetChunkReference().Data.(*lib.Payload).PrintContent()
		}
		buf := make([]byte, lib.TcpHeaderLength+len(seg.Payload))
		n, err := seg.Marshal(h.ip, h.peerIP, buf)
		if err != nil {
			log.Println(h.name, "marshal:", err)
			continue
		}
		dgram := network.NewDatagram(h.ip, h.peerIP, network.TCPProtocolNum, buf[:n])
		h.iface.SendDatagram(dgram, h.gateway)
	}
}

// exchangeFrames moves frames across one cable: host on one end, a router
// interface on the other. Datagrams arriving at the router side join its
// inbound queue for forwarding.
func exchangeFrames(h *host, routerSide *network.Interface) bool {
	moved := false
	for _, frame := range h.iface.FramesOut() {
		moved = true
		if dgram := routerSide.RecvFrame(frame); dgram != nil {
			routerSide.PushInboundDatagram(dgram)
		}
	}
	for _, frame := range routerSide.FramesOut() {
		moved = true
		if dgram := h.iface.RecvFrame(frame); dgram != nil {
			h.deliverToHost(dgram)
		}
	}
	return moved
}

func main() {
	conf, err := config.LoadConfig("config.yaml")
	if err != nil {
		log.Println("config.yaml not usable, falling back to defaults:", err)
		conf = config.DefaultConfig()
	}

	lib.InitPool(conf.PayloadPoolSize, conf.Debug)

	connConf := lib.NewConnectionConfig(conf)

	alice := &host{
		name:    "alice",
		conn:    lib.NewConnection(connConf),
		iface:   network.NewInterfaceWithConfig(mac(0x0a), netip.MustParseAddr("10.0.0.2"), conf),
		ip:      netip.MustParseAddr("10.0.0.2"),
		peerIP:  netip.MustParseAddr("10.1.0.2"),
		gateway: netip.MustParseAddr("10.0.0.1"),
		debug:   conf.Debug,
	}
	bob := &host{
		name:    "bob",
		conn:    lib.NewConnection(connConf),
		iface:   network.NewInterfaceWithConfig(mac(0x0b), netip.MustParseAddr("10.1.0.2"), conf),
		ip:      netip.MustParseAddr("10.1.0.2"),
		peerIP:  netip.MustParseAddr("10.0.0.2"),
		gateway: netip.MustParseAddr("10.1.0.1"),
		debug:   conf.Debug,
	}

	router := network.NewRouter()
	aliceSide := network.NewInterfaceWithConfig(mac(0xa1), netip.MustParseAddr("10.0.0.1"), conf)
	bobSide := network.NewInterfaceWithConfig(mac(0xb1), netip.MustParseAddr("10.1.0.1"), conf)
	aliceIdx := router.AddInterface(aliceSide)
	bobIdx := router.AddInterface(bobSide)
	router.AddRoute(network.AddrToUint32(netip.MustParseAddr("10.0.0.0")), 16, nil, aliceIdx)
	router.AddRoute(network.AddrToUint32(netip.MustParseAddr("10.1.0.0")), 16, nil, bobIdx)

	log.Println("stacksim: two hosts, one router, no kernel")

	alice.conn.Connect()
	settle(alice, bob, router, aliceSide, bobSide)
	log.Println("handshake complete")

	alice.conn.Write([]byte("hello from alice across the router"))
	settle(alice, bob, router, aliceSide, bobSide)
	received := bob.conn.Inbound().Read(conf.StreamCapacity)
	log.Printf("bob received %q", received)

	bob.conn.Write([]byte("hello back from bob"))
	settle(alice, bob, router, aliceSide, bobSide)
	log.Printf("alice received %q", alice.conn.Inbound().Read(conf.StreamCapacity))

	alice.conn.EndInputStream()
	settle(alice, bob, router, aliceSide, bobSide)
	bob.conn.EndInputStream()
	settle(alice, bob, router, aliceSide, bobSide)

	// let the lingering side time out
	alice.conn.Tick(uint64(10 * conf.InitialRTO))

	log.Printf("alice active=%t, bob active=%t", alice.conn.Active(), bob.conn.Active())

	alice.conn.Close()
	bob.conn.Close()
}

// settle keeps pumping segments, frames and the router until the network
// goes quiet.
func settle(a, b *host, router *network.Router, aSide, bSide *network.Interface) {
	for round := 0; round < 64; round++ {
		a.flushConnection()
		b.flushConnection()

		moved := exchangeFrames(a, aSide)
		moved = exchangeFrames(b, bSide) || moved

		router.Route()

		moved = exchangeFrames(a, aSide) || moved
		moved = exchangeFrames(b, bSide) || moved

		if !moved {
			return
		}
	}
}

func mac(last byte) net.HardwareAddr {
	return net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, last}
}
