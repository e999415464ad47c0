// Package ring provides the fixed-capacity windows that feed the live display.
package ring

// Buffer is a fixed-capacity FIFO of float64 values.
// It starts zero-filled, so its length equals its capacity from the beginning;
// Push evicts the oldest value. Buffer is not safe for concurrent use.
type Buffer struct {
	data []float64
	head int // index of the oldest value
}

// New creates a zero-filled buffer of the given capacity (at least 1).
func New(capacity int) *Buffer {
	if capacity < 1 {
		capacity = 1
	}
	return &Buffer{data: make([]float64, capacity)}
}

// Cap returns the buffer capacity.
func (b *Buffer) Cap() int {
	return len(b.data)
}

// Push appends v, evicting the oldest value.
func (b *Buffer) Push(v float64) {
	b.data[b.head] = v
	b.head++
	if b.head == len(b.data) {
		b.head = 0
	}
}

// Last returns the most recently pushed value.
func (b *Buffer) Last() float64 {
	i := b.head - 1
	if i < 0 {
		i = len(b.data) - 1
	}
	return b.data[i]
}

// Snapshot copies the contents, oldest first, into dst and returns it.
// dst is reused if it has enough capacity. The result always has Cap() elements.
func (b *Buffer) Snapshot(dst []float64) []float64 {
	if cap(dst) >= len(b.data) {
		dst = dst[:len(b.data)]
	} else {
		dst = make([]float64, len(b.data))
	}
	n := copy(dst, b.data[b.head:])
	copy(dst[n:], b.data[:b.head])
	return dst
}
