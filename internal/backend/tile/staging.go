package tile

import "fmt"

const (
	// BufferNum is the number of staging slots each lane cycles through.
	BufferNum = 2
	// stagingAlign is the transfer granularity of the staging memory.
	stagingAlign = 32
)

func alignUp(n int) int {
	return (n + stagingAlign - 1) &^ (stagingAlign - 1)
}

// BufferState tracks one staging buffer through a transfer.
type BufferState int

const (
	BufferFree BufferState = iota
	BufferFilled
	BufferConsumed
	BufferDrained
)

var bufferStateNames = [...]string{"free", "filled", "consumed", "drained"}

func (s BufferState) String() string {
	if int(s) < len(bufferStateNames) {
		return bufferStateNames[s]
	}
	return fmt.Sprintf("BufferState(%d)", int(s))
}

// Buffer is a fixed slice of on-chip memory. Its length is always a
// multiple of 32 bytes; n is the payload written by the last fill.
type Buffer struct {
	data  []byte
	n     int
	state BufferState
}

// State reports where the buffer is in its cycle.
func (b *Buffer) State() BufferState {
	return b.state
}

func (b *Buffer) move(from, to BufferState) error {
	if b.state != from {
		return fmt.Errorf("%w: buffer %s -> %s", ErrBadTransition, b.state, to)
	}
	b.state = to
	return nil
}

// reserve sizes the buffer for n payload bytes. The backing memory is
// reused across instances and only grows.
func (b *Buffer) reserve(n int) error {
	if b.state != BufferFree {
		return fmt.Errorf("%w: reserve of %s buffer", ErrBadTransition, b.state)
	}
	size := alignUp(n)
	if cap(b.data) < size {
		b.data = make([]byte, size)
	}
	b.data = b.data[:size]
	b.n = n
	return nil
}

// fill copies src into the buffer and zeroes the alignment tail.
func (b *Buffer) fill(src []byte) error {
	if err := b.move(BufferFree, BufferFilled); err != nil {
		return err
	}
	copy(b.data, src[:b.n])
	clear(b.data[b.n:])
	return nil
}

func (b *Buffer) payload() []byte {
	return b.data[:b.n]
}

// lane is one execution unit: a double-buffered pair of input and output
// staging slots. Only the instance currently holding the lane touches it.
type lane struct {
	id   int
	in   [BufferNum]Buffer
	out  [BufferNum]Buffer
	next int
}

// slot hands out the next input/output pair, alternating between the
// BufferNum slots.
func (l *lane) slot() (in, out *Buffer, idx int) {
	idx = l.next
	l.next = (l.next + 1) % BufferNum
	return &l.in[idx], &l.out[idx], idx
}
