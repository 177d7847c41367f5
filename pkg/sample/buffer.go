// Package sample holds the raw power meter readings collected during one
// measurement round and reduces them to a single calibration measurement.
package sample

import "sync"

// Buffer is an ordered, concurrency-safe buffer of raw instrument replies. Arrival
// order is the only timestamp a reading carries.
type Buffer struct {
	mu      sync.Mutex
	samples []string
}

// NewBuffer returns an empty buffer.
func NewBuffer() *Buffer {
	return &Buffer{samples: make([]string, 0, 64)}
}

// Push appends one reading.
func (b *Buffer) Push(raw string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.samples = append(b.samples, raw)
}

// Drain returns every reading in arrival order and empties the buffer.
func (b *Buffer) Drain() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := b.samples
	b.samples = make([]string, 0, cap(out))
	return out
}

// Reset discards every reading.
func (b *Buffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.samples = b.samples[:0]
}

// Len returns the number of readings currently held.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.samples)
}
