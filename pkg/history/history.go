// Package history keeps a bounded, chronologically ordered record of
// conversation turns that is sent along with every chat request.
package history

import "sync"

// DefaultCapacity is the number of entries kept when none is configured.
// Both user and assistant entries count, so 6 remembers three exchanges.
const DefaultCapacity = 6

// Role identifies who produced an entry.
type Role string

// Roles understood by the chat backends.
const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Entry is one message of the conversation.
type Entry struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// User returns a user entry.
func User(content string) Entry { return Entry{Role: RoleUser, Content: content} }

// Assistant returns an assistant entry.
func Assistant(content string) Entry { return Entry{Role: RoleAssistant, Content: content} }

// System returns a system entry.
func System(content string) Entry { return Entry{Role: RoleSystem, Content: content} }

// Buffer is a fixed-capacity FIFO of entries. Appending past capacity
// evicts the oldest entries.
//
// A Buffer is meant to have a single writer (the turn in flight). Snapshot
// may be called from other goroutines.
type Buffer struct {
	mu      sync.RWMutex
	entries []Entry // ring storage, len == capacity
	head    int     // index of the oldest entry
	size    int
}

// New returns an empty buffer. capacity <= 0 selects DefaultCapacity.
func New(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{entries: make([]Entry, capacity)}
}

// Append adds entries to the back in order, evicting from the front while
// the buffer is over capacity.
func (b *Buffer) Append(entries ...Entry) {
	b.mu.Lock()
	defer b.mu.Unlock()

	capacity := len(b.entries)
	for _, e := range entries {
		tail := (b.head + b.size) % capacity
		b.entries[tail] = e
		if b.size < capacity {
			b.size++
			continue
		}
		b.head = (b.head + 1) % capacity
	}
}

// Snapshot returns a copy of the entries, oldest first. Later appends do
// not affect the returned slice.
func (b *Buffer) Snapshot() []Entry {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]Entry, b.size)
	for i := 0; i < b.size; i++ {
		out[i] = b.entries[(b.head+i)%len(b.entries)]
	}
	return out
}

// Len returns the number of stored entries.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}

// Cap returns the capacity.
func (b *Buffer) Cap() int {
	return len(b.entries)
}

// Clear drops every entry.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()

	clear(b.entries)
	b.head = 0
	b.size = 0
}
