package audioio

import "sync"

// RingBuffer is a fixed-size byte ring. Writes never block: when the ring
// is full the oldest bytes are overwritten and counted as overrun.
type RingBuffer struct {
	mu      sync.Mutex
	buf     []byte
	start   int
	size    int
	overrun int64
}

// NewRingBuffer allocates a ring of capacity bytes.
func NewRingBuffer(capacity int) *RingBuffer {
	if capacity <= 0 {
		capacity = 1
	}
	return &RingBuffer{buf: make([]byte, capacity)}
}

// Write appends p, overwriting the oldest data on overflow. It returns the
// number of bytes that were lost.
func (r *RingBuffer) Write(p []byte) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	capacity := len(r.buf)
	lost := 0
	if len(p) > capacity {
		lost += len(p) - capacity
		p = p[len(p)-capacity:]
	}
	if over := r.size + len(p) - capacity; over > 0 {
		r.start = (r.start + over) % capacity
		r.size -= over
		lost += over
	}

	end := (r.start + r.size) % capacity
	n := copy(r.buf[end:], p)
	copy(r.buf, p[n:])
	r.size += len(p)

	r.overrun += int64(lost)
	return lost
}

// Read moves up to len(p) of the oldest bytes into p and returns the count.
func (r *RingBuffer) Read(p []byte) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := min(len(p), r.size)
	first := copy(p[:n], r.buf[r.start:min(r.start+n, len(r.buf))])
	copy(p[first:n], r.buf)

	r.start = (r.start + n) % len(r.buf)
	r.size -= n
	if r.size == 0 {
		r.start = 0
	}
	return n
}

// Len returns the number of buffered bytes.
func (r *RingBuffer) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size
}

// Cap returns the ring capacity in bytes.
func (r *RingBuffer) Cap() int {
	return len(r.buf)
}

// Overrun returns the total number of bytes lost to overflow.
func (r *RingBuffer) Overrun() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.overrun
}

// Reset drops buffered data.
func (r *RingBuffer) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.start = 0
	r.size = 0
}
