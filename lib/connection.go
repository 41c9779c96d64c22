package lib

import (
	"github.com/Clouded-Sabre/Userland-TCP/config"
)

// ConnectionConfig carries the per-connection knobs derived from the global
// configuration.
type ConnectionConfig struct {
	StreamCapacity  int
	InitialRTO      uint64 // ms
	MaxRetxAttempts uint
	FixedISN        *uint32 // pinned ISN for tests, nil for random
}

func NewConnectionConfig(conf *config.Config) *ConnectionConfig {
	return &ConnectionConfig{
		StreamCapacity:  conf.StreamCapacity,
		InitialRTO:      uint64(conf.InitialRTO),
		MaxRetxAttempts: uint(conf.MaxRetxAttempts),
	}
}

func DefaultConnectionConfig() *ConnectionConfig {
	return &ConnectionConfig{
		StreamCapacity:  64 * 1024,
		InitialRTO:      DefaultInitialRTO,
		MaxRetxAttempts: MaxRetxAttempts,
	}
}

// Connection binds one Sender and one Receiver into the full TCP state
// machine: handshake, data transfer, retransmission aborts, RST handling
// and the lingering close.
type Connection struct {
	config   *ConnectionConfig
	sender   *Sender
	receiver *Receiver

	segmentsOut []*Segment // fully decorated segments awaiting the owner

	timeSinceLastReceived    uint64
	lingerAfterStreamsFinish bool

	synSent     bool
	synReceived bool
	rstSent     bool
	rstReceived bool
}

func NewConnection(conf *ConnectionConfig) *Connection {
	return &Connection{
		config:                   conf,
		sender:                   NewSender(conf.StreamCapacity, conf.InitialRTO, conf.FixedISN),
		receiver:                 NewReceiver(conf.StreamCapacity),
		lingerAfterStreamsFinish: true,
	}
}

// Connect initiates the handshake by letting the sender emit its SYN.
func (c *Connection) Connect() {
	c.sender.FillWindow()
	c.sendSegments()
	c.synSent = true
}

// SegmentReceived digests one inbound segment and queues whatever replies
// the state machine calls for.
func (c *Connection) SegmentReceived(seg *Segment) {
	c.timeSinceLastReceived = 0

	// a RST kills the connection on the spot
	if seg.IsRST() {
		c.receiver.StreamOut().SetError()
		c.sender.StreamIn().SetError()
		c.rstReceived = true
		return
	}

	// nothing to do until the peer's SYN shows up
	c.synReceived = c.synReceived || seg.IsSYN()
	if !c.synReceived {
		return
	}

	if seg.IsACK() {
		acknoValid := c.sender.AckReceived(seg.AcknowledgmentNum, seg.WindowSize)
		if !acknoValid {
			// the peer acked something never sent, answer with our state
			c.sender.SendEmptySegment()
		} else {
			c.sender.FillWindow()
		}
	}

	segmentAcceptable := c.receiver.SegmentReceived(seg)

	// passive open: reply with our own SYN
	if !c.synSent {
		c.Connect()
		return
	}

	// ack anything that occupied sequence space
	if segmentAcceptable && seg.LengthInSequenceSpace() > 0 {
		c.sender.SendEmptySegment()
	}

	// challenge ack for unacceptable segments
	if !segmentAcceptable {
		c.sender.SendEmptySegment()
	}

	c.sendSegments()
}

// Write buffers data for sending and returns how many bytes were accepted.
func (c *Connection) Write(data []byte) int {
	bytesWritten := c.sender.StreamIn().Write(data)
	c.sender.FillWindow()
	c.sendSegments()
	return bytesWritten
}

// EndInputStream closes the outbound stream; the FIN follows once the
// buffered bytes have gone out.
func (c *Connection) EndInputStream() {
	c.sender.StreamIn().EndInput()
	c.sender.FillWindow()
	c.sendSegments()
}

// Tick advances time by ms milliseconds.
func (c *Connection) Tick(ms uint64) {
	c.timeSinceLastReceived += ms
	c.sender.Tick(ms)
	c.sendSegments()
}

// Active reports whether the connection is still alive. It flips to false
// exactly once: on RST in either direction, or when both streams have
// finished cleanly and any lingering period has elapsed.
func (c *Connection) Active() bool {
	uncleanShutdown := c.rstReceived || c.rstSent
	cleanShutdown := c.receiver.UnassembledBytes() == 0 &&
		c.receiver.StreamOut().EOF() &&
		c.sender.StreamIn().EOF() &&
		c.sender.BytesInFlight() == 0 &&
		(!c.lingerAfterStreamsFinish || c.timeSinceLastReceived >= 10*c.config.InitialRTO)

	return !(uncleanShutdown || cleanShutdown)
}

// Close tears the connection down. If it is still active the peer gets a
// RST, mirroring what an abandoned connection must do.
func (c *Connection) Close() {
	if c.Active() {
		c.sendRST()
	}
}

// SegmentsOut drains the queue of outbound segments in send order.
func (c *Connection) SegmentsOut() []*Segment {
	out := c.segmentsOut
	c.segmentsOut = nil
	return out
}

func (c *Connection) Inbound() *ByteStream {
	return c.receiver.StreamOut()
}

func (c *Connection) Outbound() *ByteStream {
	return c.sender.StreamIn()
}

func (c *Connection) RemainingOutboundCapacity() int {
	return c.sender.StreamIn().RemainingCapacity()
}

func (c *Connection) BytesInFlight() uint64 {
	return c.sender.BytesInFlight()
}

func (c *Connection) UnassembledBytes() uint64 {
	return c.receiver.UnassembledBytes()
}

func (c *Connection) TimeSinceLastSegmentReceived() uint64 {
	return c.timeSinceLastReceived
}

// sendSegments moves the sender's pending segments to the outbound queue,
// stamping each with the receiver's ackno and window on the way through.
func (c *Connection) sendSegments() {
	// too many failed retransmissions, give up on the peer
	if c.sender.ConsecutiveRetransmissions() > c.config.MaxRetxAttempts {
		c.sendRST()
		return
	}

	for _, seg := range c.sender.segmentsOut {
		if ackno, ok := c.receiver.Ackno(); ok {
			seg.Flags |= ACKFlag
			seg.AcknowledgmentNum = ackno
		}
		seg.WindowSize = c.receiver.WindowSize()
		c.segmentsOut = append(c.segmentsOut, seg)
	}
	c.sender.segmentsOut = nil

	// passive close: the peer's stream ended before ours, no need to linger
	if c.receiver.StreamOut().InputEnded() && !c.sender.StreamIn().EOF() {
		c.lingerAfterStreamsFinish = false
	}
}

// sendRST aborts the connection: both streams error out and a RST segment
// goes to the peer.
func (c *Connection) sendRST() {
	if c.rstSent {
		return
	}

	c.receiver.StreamOut().SetError()
	c.sender.StreamIn().SetError()

	c.sender.SendEmptySegment()
	seg := c.sender.segmentsOut[len(c.sender.segmentsOut)-1]
	c.sender.segmentsOut = c.sender.segmentsOut[:len(c.sender.segmentsOut)-1]

	seg.Flags |= RSTFlag
	if ackno, ok := c.receiver.Ackno(); ok {
		seg.Flags |= ACKFlag
		seg.AcknowledgmentNum = ackno
	}
	seg.WindowSize = c.receiver.WindowSize()

	c.segmentsOut = append(c.segmentsOut, seg)
	c.rstSent = true
}
