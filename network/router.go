package network

import "net/netip"

// route is one routing table entry. A nil nextHop means the destination
// network is directly attached and the datagram's own destination address
// is the next hop.
type route struct {
	nextHop  *netip.Addr
	ifaceIdx int
}

// Router forwards datagrams between its interfaces using longest-prefix
// match over prefix lengths 0 through 32.
type Router struct {
	interfaces []*Interface
	table      [33]map[uint32]route
}

func NewRouter() *Router {
	r := &Router{}
	for i := range r.table {
		r.table[i] = make(map[uint32]route)
	}
	return r
}

// AddInterface appends an interface and returns its index for AddRoute.
func (r *Router) AddInterface(iface *Interface) int {
	r.interfaces = append(r.interfaces, iface)
	return len(r.interfaces) - 1
}

func (r *Router) Interface(idx int) *Interface {
	return r.interfaces[idx]
}

// AddRoute installs a route: destinations matching the top prefixLength
// bits of prefix leave through interface ifaceIdx toward nextHop.
func (r *Router) AddRoute(prefix uint32, prefixLength uint8, nextHop *netip.Addr, ifaceIdx int) {
	r.table[prefixLength][prefix] = route{
		nextHop:  nextHop,
		ifaceIdx: ifaceIdx,
	}
}

// RouteOneDatagram forwards a single datagram along its best route, if any.
// Datagrams with no matching route or an expiring TTL are dropped silently.
func (r *Router) RouteOneDatagram(dgram *Datagram) {
	dst := AddrToUint32(dgram.Header.Dst)

	for i := 32; i >= 0; i-- {
		var mask uint32
		if i > 0 {
			mask = 0xffffffff << (32 - i)
		}

		entry, found := r.table[i][dst&mask]
		if !found {
			continue
		}

		// only a datagram actually being forwarded spends a hop
		if dgram.Header.TTL <= 1 {
			return
		}
		dgram.Header.TTL--

		nextHop := dgram.Header.Dst
		if entry.nextHop != nil {
			nextHop = *entry.nextHop
		}

		r.interfaces[entry.ifaceIdx].SendDatagram(dgram, nextHop)
		return
	}
}

// Route drains every interface's inbound queue and forwards each datagram.
func (r *Router) Route() {
	for _, iface := range r.interfaces {
		for _, dgram := range iface.InboundDatagrams() {
			r.RouteOneDatagram(dgram)
		}
	}
}
