package lib

import (
	"bytes"
	"testing"
)

func newTestConnection(isn uint32) *Connection {
	conf := DefaultConnectionConfig()
	conf.StreamCapacity = 64
	conf.InitialRTO = 1000
	conf.FixedISN = fixedISN(isn)
	return NewConnection(conf)
}

// pump shuttles queued segments between two connections until both go quiet.
func pump(a, b *Connection) {
	for {
		moved := false
		for _, seg := range a.SegmentsOut() {
			moved = true
			b.SegmentReceived(seg)
		}
		for _, seg := range b.SegmentsOut() {
			moved = true
			a.SegmentReceived(seg)
		}
		if !moved {
			return
		}
	}
}

func TestConnectionHandshake(t *testing.T) {
	client := newTestConnection(100)
	server := newTestConnection(5000)

	client.Connect()

	segs := client.SegmentsOut()
	if len(segs) != 1 || !segs[0].IsSYN() || segs[0].IsACK() {
		t.Fatalf("expected a bare SYN, got %+v", segs)
	}

	server.SegmentReceived(segs[0])
	segs = server.SegmentsOut()
	if len(segs) != 1 || !segs[0].IsSYN() || !segs[0].IsACK() {
		t.Fatalf("expected a SYN-ACK, got %+v", segs)
	}
	if segs[0].AcknowledgmentNum != 101 {
		t.Errorf("SYN-ACK ackno = %d, expected 101", segs[0].AcknowledgmentNum)
	}

	client.SegmentReceived(segs[0])
	segs = client.SegmentsOut()
	if len(segs) != 1 || segs[0].LengthInSequenceSpace() != 0 || !segs[0].IsACK() {
		t.Fatalf("expected a pure ACK to finish the handshake, got %+v", segs)
	}
	server.SegmentReceived(segs[0])

	if !client.Active() || !server.Active() {
		t.Error("both sides should be active after the handshake")
	}
}

func TestConnectionDataTransfer(t *testing.T) {
	client := newTestConnection(0)
	server := newTestConnection(0)

	client.Connect()
	pump(client, server)

	if n := client.Write([]byte("hello, world")); n != 12 {
		t.Fatalf("Write accepted %d bytes", n)
	}
	pump(client, server)

	if got := server.Inbound().Read(64); !bytes.Equal(got, []byte("hello, world")) {
		t.Fatalf("server read %q", got)
	}

	server.Write([]byte("pong"))
	pump(client, server)
	if got := client.Inbound().Read(64); !bytes.Equal(got, []byte("pong")) {
		t.Fatalf("client read %q", got)
	}

	if client.BytesInFlight() != 0 || server.BytesInFlight() != 0 {
		t.Error("everything should be acked after pumping")
	}
}

func TestConnectionCleanShutdown(t *testing.T) {
	client := newTestConnection(0)
	server := newTestConnection(0)

	client.Connect()
	pump(client, server)

	client.Write([]byte("bye"))
	client.EndInputStream()
	pump(client, server)

	if !server.Inbound().InputEnded() {
		t.Fatal("server should see the client's FIN")
	}
	server.Inbound().Read(64)

	// server finishes its side; it closed second, so it need not linger
	server.EndInputStream()
	pump(client, server)

	if server.Active() {
		t.Error("passive closer should be done without lingering")
	}

	// the active closer lingers for 10 RTOs after the last segment
	if !client.Active() {
		t.Fatal("active closer should linger")
	}
	client.Tick(10 * 1000)
	if client.Active() {
		t.Error("active closer should retire after the linger period")
	}
}

func TestConnectionChallengeACK(t *testing.T) {
	client := newTestConnection(0)
	server := newTestConnection(0)

	client.Connect()
	pump(client, server)

	// a segment far outside the server's window draws a challenge ack
	server.SegmentReceived(&Segment{
		Flags:             ACKFlag,
		SequenceNumber:    90000,
		AcknowledgmentNum: 1,
		Payload:           []byte("stray"),
	})
	segs := server.SegmentsOut()
	if len(segs) != 1 || segs[0].LengthInSequenceSpace() != 0 {
		t.Fatalf("expected one empty challenge segment, got %+v", segs)
	}
	if !segs[0].IsACK() {
		t.Error("challenge segment should carry the current ackno")
	}
}

func TestConnectionInvalidAckDrawsEmptySegment(t *testing.T) {
	client := newTestConnection(0)
	server := newTestConnection(0)

	client.Connect()
	pump(client, server)

	// ack something the server never sent
	server.SegmentReceived(&Segment{
		Flags:             ACKFlag,
		SequenceNumber:    1,
		AcknowledgmentNum: 70000,
	})
	segs := server.SegmentsOut()
	if len(segs) == 0 {
		t.Fatal("invalid ack should draw a corrective empty segment")
	}
	for _, seg := range segs {
		if seg.LengthInSequenceSpace() != 0 {
			t.Errorf("corrective segment occupies sequence space: %+v", seg)
		}
	}
}

func TestConnectionRSTReceived(t *testing.T) {
	client := newTestConnection(0)
	server := newTestConnection(0)

	client.Connect()
	pump(client, server)

	server.SegmentReceived(&Segment{Flags: RSTFlag, SequenceNumber: 1})

	if server.Active() {
		t.Error("connection should deactivate on RST")
	}
	if !server.Inbound().HasError() || !server.Outbound().HasError() {
		t.Error("both streams should carry the error flag after RST")
	}
	if len(server.SegmentsOut()) != 0 {
		t.Error("no reply should follow an inbound RST")
	}
}

func TestConnectionAbortsAfterMaxRetransmissions(t *testing.T) {
	client := newTestConnection(0)
	server := newTestConnection(0)

	client.Connect()
	pump(client, server)

	client.Write([]byte("doomed"))
	client.SegmentsOut() // discard so the peer never acks

	// walk through every backoff period: 8 retransmissions, then the abort
	rto := uint64(1000)
	for i := 0; i <= MaxRetxAttempts; i++ {
		client.Tick(rto)
		rto *= 2
	}

	segs := client.SegmentsOut()
	var sawRST bool
	for _, seg := range segs {
		if seg.IsRST() {
			sawRST = true
		}
	}
	if !sawRST {
		t.Fatal("expected a RST after exhausting retransmissions")
	}
	if client.Active() {
		t.Error("connection should deactivate after aborting")
	}
	if !client.Outbound().HasError() {
		t.Error("outbound stream should be errored after aborting")
	}
}

func TestConnectionCloseSendsRST(t *testing.T) {
	client := newTestConnection(0)
	server := newTestConnection(0)

	client.Connect()
	pump(client, server)

	client.Write([]byte("unfinished"))
	client.SegmentsOut()

	client.Close()
	segs := client.SegmentsOut()
	if len(segs) != 1 || !segs[0].IsRST() {
		t.Fatalf("Close on an active connection should emit a RST, got %+v", segs)
	}
	if client.Active() {
		t.Error("connection should deactivate after Close")
	}

	// closing again is a no-op
	client.Close()
	if len(client.SegmentsOut()) != 0 {
		t.Error("second Close should send nothing")
	}
}

func TestConnectionActiveNeverRecovers(t *testing.T) {
	client := newTestConnection(0)
	server := newTestConnection(0)

	client.Connect()
	pump(client, server)

	server.SegmentReceived(&Segment{Flags: RSTFlag, SequenceNumber: 1})
	if server.Active() {
		t.Fatal("should be inactive after RST")
	}

	// further traffic must not resurrect the connection
	server.SegmentReceived(&Segment{Flags: ACKFlag, SequenceNumber: 1, AcknowledgmentNum: 1})
	server.Tick(1)
	if server.Active() {
		t.Error("Active must not flip back to true")
	}
}

func TestConnectionTimeSinceLastSegment(t *testing.T) {
	client := newTestConnection(0)
	server := newTestConnection(0)

	client.Connect()
	pump(client, server)

	client.Tick(250)
	if client.TimeSinceLastSegmentReceived() != 250 {
		t.Fatalf("time since last segment = %d", client.TimeSinceLastSegmentReceived())
	}

	server.Write([]byte("hi"))
	pump(client, server)
	if client.TimeSinceLastSegmentReceived() != 0 {
		t.Error("receiving a segment should reset the idle clock")
	}
}
