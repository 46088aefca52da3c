package journal

import (
	"context"
	"sync"
	"time"

	"bond/intent"
)

type Kind string

const (
	KindDismissed Kind = "dismissed"
	KindExecuted  Kind = "executed"
	KindFailed    Kind = "failed"
)

// Entry records what happened to one confirmation request. Sentences
// are not stored.
type Entry struct {
	ID        int64          `json:"id"`
	At        time.Time      `json:"at"`
	Kind      Kind           `json:"kind"`
	RequestID string         `json:"requestId"`
	Label     string         `json:"label"`
	Command   intent.Command `json:"cmd"`
	Success   bool           `json:"success"`
	Message   string         `json:"message,omitempty"`
	IssueKey  string         `json:"issueKey,omitempty"`
}

type Journal interface {
	Record(ctx context.Context, e Entry) error
	// Recent returns up to limit entries, newest first.
	Recent(ctx context.Context, limit int) ([]Entry, error)
}

// Memory keeps the most recent entries in a ring.
type Memory struct {
	mu      sync.Mutex
	entries []Entry
	next    int64
	size    int
}

func NewMemory(size int) *Memory {
	if size <= 0 {
		size = 200
	}
	return &Memory{size: size}
}

func (m *Memory) Record(ctx context.Context, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.next++
	e.ID = m.next
	if e.At.IsZero() {
		e.At = time.Now()
	}
	m.entries = append(m.entries, e)
	if len(m.entries) > m.size {
		m.entries = m.entries[len(m.entries)-m.size:]
	}
	return nil
}

func (m *Memory) Recent(ctx context.Context, limit int) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Entry, 0, limit)
	for i := len(m.entries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.entries[i])
	}
	return out, nil
}
