// Package history keeps recent room messages for the reference server.
package history

import (
	"context"
	"sync"

	"github.com/vovakirdan/roomchat/internal/core"
)

// Memory is a bounded in-process ring of the latest messages.
type Memory struct {
	mu       sync.Mutex
	buf      []core.Message
	next     int
	full     bool
	capacity int
}

// NewMemory keeps at most capacity messages. A capacity below 1 keeps none.
func NewMemory(capacity int) *Memory {
	if capacity < 0 {
		capacity = 0
	}
	return &Memory{buf: make([]core.Message, capacity), capacity: capacity}
}

// Append stores msg, evicting the oldest one when full.
func (m *Memory) Append(_ context.Context, msg core.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.capacity == 0 {
		return nil
	}
	m.buf[m.next] = msg
	m.next = (m.next + 1) % m.capacity
	if m.next == 0 {
		m.full = true
	}
	return nil
}

// Recent returns up to limit messages, oldest first.
func (m *Memory) Recent(_ context.Context, limit int) ([]core.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	size := m.next
	if m.full {
		size = m.capacity
	}
	if limit <= 0 || limit > size {
		limit = size
	}

	out := make([]core.Message, 0, limit)
	start := m.next - limit
	for i := 0; i < limit; i++ {
		idx := (start + i + m.capacity) % m.capacity
		out = append(out, m.buf[idx])
	}
	return out, nil
}

// Close is a no-op.
func (m *Memory) Close() error {
	return nil
}
