package network

import (
	"encoding/binary"
	"net/netip"
)

func AddrToUint32(input netip.Addr) uint32 {
	bytes := input.As4()
	return binary.BigEndian.Uint32(bytes[:])
}

func Uint32ToAddr(input uint32) netip.Addr {
	var bytes [4]byte
	binary.BigEndian.PutUint32(bytes[:], input)
	return netip.AddrFrom4(bytes)
}
