package lib

// ByteStream is a flow-controlled in-memory byte queue. The writer appends
// bytes up to the capacity and eventually ends the input; the reader drains
// bytes from the front. Both sides belong to a single owner, so there is no
// locking here.
type ByteStream struct {
	capacity     int
	buffer       []byte
	bytesWritten uint64
	bytesRead    uint64
	inputEnded   bool
	hasError     bool // sticky
}

func NewByteStream(capacity int) *ByteStream {
	return &ByteStream{
		capacity: capacity,
		buffer:   make([]byte, 0, capacity),
	}
}

// Write appends as much of data as fits and returns the number of bytes
// accepted. Writes after EndInput are rejected.
func (b *ByteStream) Write(data []byte) int {
	if b.inputEnded || b.hasError {
		return 0
	}
	bytesToWrite := min(len(data), b.RemainingCapacity())
	b.buffer = append(b.buffer, data[:bytesToWrite]...)
	b.bytesWritten += uint64(bytesToWrite)
	return bytesToWrite
}

// Peek returns a copy of up to n bytes from the front without consuming them.
func (b *ByteStream) Peek(n int) []byte {
	bytesToPeek := min(n, len(b.buffer))
	out := make([]byte, bytesToPeek)
	copy(out, b.buffer[:bytesToPeek])
	return out
}

// Pop discards up to n bytes from the front and returns how many were removed.
func (b *ByteStream) Pop(n int) int {
	bytesToPop := min(n, len(b.buffer))
	b.buffer = b.buffer[:copy(b.buffer, b.buffer[bytesToPop:])]
	b.bytesRead += uint64(bytesToPop)
	return bytesToPop
}

// Read consumes and returns up to n bytes from the front.
func (b *ByteStream) Read(n int) []byte {
	out := b.Peek(n)
	b.Pop(len(out))
	return out
}

func (b *ByteStream) EndInput() {
	b.inputEnded = true
}

func (b *ByteStream) SetError() {
	b.hasError = true
}

func (b *ByteStream) InputEnded() bool {
	return b.inputEnded
}

func (b *ByteStream) HasError() bool {
	return b.hasError
}

func (b *ByteStream) BufferSize() int {
	return len(b.buffer)
}

func (b *ByteStream) BufferEmpty() bool {
	return len(b.buffer) == 0
}

// EOF reports whether the input has ended and every byte has been read.
func (b *ByteStream) EOF() bool {
	return b.inputEnded && len(b.buffer) == 0
}

func (b *ByteStream) BytesWritten() uint64 {
	return b.bytesWritten
}

func (b *ByteStream) BytesRead() uint64 {
	return b.bytesRead
}

func (b *ByteStream) RemainingCapacity() int {
	return b.capacity - len(b.buffer)
}
