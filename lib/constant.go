package lib

// Flag constants
const (
	URGFlag uint8 = 1 << 5
	ACKFlag uint8 = 1 << 4
	PSHFlag uint8 = 1 << 3
	RSTFlag uint8 = 1 << 2
	SYNFlag uint8 = 1 << 1
	FINFlag uint8 = 1 << 0
)

const (
	TcpHeaderLength       = 20 // options not included
	TcpPseudoHeaderLength = 12

	// MaxPayloadSize is the largest payload a single segment may carry:
	// 1500 (Ethernet MTU) - 20 (IPv4 header) - 20 (TCP header) - 8 bytes
	// reserved for encapsulation framing.
	MaxPayloadSize = 1452

	// MaxRetxAttempts is how many consecutive retransmissions the
	// connection tolerates before aborting with a RST.
	MaxRetxAttempts = 8

	DefaultInitialRTO uint64 = 1000 // ms
)
