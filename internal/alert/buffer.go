package alert

import "sync"

// DefaultCapacity is the number of notifications kept when none is given.
const DefaultCapacity = 5

// Buffer is a bounded FIFO of notifications. When full, appending evicts
// the oldest entry first.
type Buffer struct {
	mu      sync.Mutex
	cap     int
	entries []Notification
}

// NewBuffer returns an empty buffer; capacity <= 0 means DefaultCapacity.
func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{cap: capacity, entries: make([]Notification, 0, capacity)}
}

// Append adds ns in order.
func (b *Buffer) Append(ns ...Notification) {
	if len(ns) == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, n := range ns {
		if len(b.entries) == b.cap {
			copy(b.entries, b.entries[1:])
			b.entries = b.entries[:b.cap-1]
		}
		b.entries = append(b.entries, n)
	}
}

// Entries returns a copy in insertion order, oldest first.
func (b *Buffer) Entries() []Notification {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Notification, len(b.entries))
	copy(out, b.entries)
	return out
}

// Newest returns a copy ordered newest first, for display.
func (b *Buffer) Newest() []Notification {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Notification, len(b.entries))
	for i, n := range b.entries {
		out[len(b.entries)-1-i] = n
	}
	return out
}

// Len returns the number of buffered notifications.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

// Capacity returns the maximum number of notifications kept.
func (b *Buffer) Capacity() int { return b.cap }
