package log

import (
	"fmt"
	"io"
	"sync"
)

// CircularBuffer is an [io.Writer] that keeps the most recent writes.
// Each call to Write is stored as one entry; once the buffer holds capacity
// entries, the oldest entry is overwritten. It is safe for concurrent use.
//
// It holds log records while the terminal is used for other output.
type CircularBuffer struct {
	entries  [][]byte
	capacity int
	head     int
	size     int
	mu       sync.RWMutex
}

// NewCircularBuffer creates a new [CircularBuffer]. A capacity below 1
// defaults to 100.
func NewCircularBuffer(capacity int) *CircularBuffer {
	if capacity <= 0 {
		capacity = 100
	}

	return &CircularBuffer{
		entries:  make([][]byte, capacity),
		capacity: capacity,
	}
}

// Write stores a copy of p as a new entry.
func (cb *CircularBuffer) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.entries[cb.head] = append([]byte(nil), p...)
	cb.head = (cb.head + 1) % cb.capacity

	if cb.size < cb.capacity {
		cb.size++
	}

	return len(p), nil
}

// Entries returns a copy of the entries, oldest first.
func (cb *CircularBuffer) Entries() [][]byte {
	cb.mu.RLock()
	defer cb.mu.RUnlock()

	if cb.size == 0 {
		return nil
	}

	start := 0
	if cb.size == cb.capacity {
		start = cb.head
	}

	result := make([][]byte, 0, cb.size)
	for i := range cb.size {
		entry := cb.entries[(start+i)%cb.capacity]
		result = append(result, append([]byte(nil), entry...))
	}

	return result
}

// Size returns the current number of entries.
func (cb *CircularBuffer) Size() int {
	cb.mu.RLock()
	defer cb.mu.RUnlock()

	return cb.size
}

// Capacity returns the maximum number of entries.
func (cb *CircularBuffer) Capacity() int {
	return cb.capacity
}

// IsFull reports whether older entries have started to be overwritten.
func (cb *CircularBuffer) IsFull() bool {
	return cb.Size() == cb.capacity
}

// WriteTo writes the entries to w, oldest first.
func (cb *CircularBuffer) WriteTo(w io.Writer) (int64, error) {
	var total int64

	for _, entry := range cb.Entries() {
		n, err := w.Write(entry)
		total += int64(n)

		if err != nil {
			return total, fmt.Errorf("write entry: %w", err)
		}
	}

	return total, nil
}
