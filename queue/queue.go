package queue

import (
	"context"
	"sync"
)

// Queue holds finalized sentences until a consumer drains them.
// Identical texts collapse into one pending entry.
type Queue struct {
	mu      sync.Mutex
	pending []string
	index   map[string]struct{}
}

func New() *Queue {
	return &Queue{index: make(map[string]struct{})}
}

// Enqueue adds text unless an identical entry is still pending.
// It reports whether the text was added.
func (q *Queue) Enqueue(text string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.index[text]; ok {
		return false
	}
	q.index[text] = struct{}{}
	q.pending = append(q.pending, text)
	return true
}

// DrainAll returns every pending entry in insertion order and empties
// the queue in the same critical section.
func (q *Queue) DrainAll() []string {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := q.pending
	if out == nil {
		out = []string{}
	}
	q.pending = nil
	q.index = make(map[string]struct{})
	return out
}

// Drain lets a local queue stand in wherever a remote one is consumed.
func (q *Queue) Drain(ctx context.Context) ([]string, error) {
	return q.DrainAll(), nil
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}
