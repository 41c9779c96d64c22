package lib

import (
	"fmt"
	"log"

	rp "github.com/Clouded-Sabre/ringpool/lib"
)

var (
	emptySlice   []byte
	bufferLength = MaxPayloadSize

	// Pool backs segment payloads with reusable chunks. When it is nil the
	// sender falls back to plain allocations, which is what the tests use.
	Pool *rp.RingPool
)

// InitPool creates the shared payload pool. Call once before building
// connections when pooling is wanted; poolSize <= 0 leaves pooling off.
func InitPool(poolSize int, debug bool) {
	if poolSize <= 0 {
		return
	}
	rp.Debug = debug
	Pool = rp.NewRingPool("TCP: ", poolSize, NewPayload, bufferLength)
	Pool.Debug = debug
}

func SetEmptySlice(length int) {
	emptySlice = make([]byte, length)
}

// Payload represents a packet payload byte slice
type Payload struct {
	payloadBytes []byte
	length       int
}

// NewPayload creates a pool chunk holding one payload buffer.
func NewPayload(params ...interface{}) rp.DataInterface {
	if len(params) != 1 {
		log.Println("NewPayload: Invalid number of calling parameters. Should be only one: bufferlength")
		return nil
	}

	pBufferLength := bufferLength

	if len(emptySlice) == 0 { // initialize it
		SetEmptySlice(pBufferLength)
	}

	return &Payload{
		payloadBytes: make([]byte, pBufferLength),
	}
}

// Reset resets the content of the payload
func (p *Payload) Reset() {
	copy(p.payloadBytes, emptySlice)
	p.length = 0
}

// PrintContent prints the content of the payload
func (p *Payload) PrintContent() {
	fmt.Println("Content:", string(p.payloadBytes[:p.length]))
}

func (p *Payload) Copy(src []byte) error {
	if len(src) > len(p.payloadBytes) {
		err := fmt.Errorf("Payload Copy: Source byte slice(%d) is longer than bufferLength(%d)", len(src), len(p.payloadBytes))
		return err
	}
	if len(src) == 0 {
		err := fmt.Errorf("Payload Copy: Source byte slice is empty")
		return err
	}
	copy(p.payloadBytes, src)
	p.length = len(src)
	return nil
}

func (p *Payload) GetSlice() []byte {
	return p.payloadBytes[:p.length]
}
