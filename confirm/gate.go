package confirm

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"bond/intent"
)

var (
	ErrNotFound         = errors.New("confirmation request not found")
	ErrAlreadyDecided   = errors.New("confirmation request already decided")
	ErrNothingToConfirm = errors.New("nothing to confirm")
)

type Status string

const (
	Pending   Status = "pending"
	Approved  Status = "approved"
	Dismissed Status = "dismissed"
)

const keepDecided = 100

type Request struct {
	ID        string         `json:"id"`
	Command   intent.Command `json:"cmd"`
	Label     string         `json:"label"`
	Sentence  string         `json:"sentence"`
	Status    Status         `json:"status"`
	CreatedAt time.Time      `json:"createdAt"`
	DecidedAt *time.Time     `json:"decidedAt,omitempty"`
}

type entry struct {
	req     Request
	decided chan struct{}
}

// Gate holds interpreted commands until a person approves or dismisses
// them. Requests never expire.
type Gate struct {
	mu      sync.Mutex
	entries map[string]*entry
	pending []string
	decided []string
	now     func() time.Time
}

func NewGate() *Gate {
	return &Gate{
		entries: make(map[string]*entry),
		now:     time.Now,
	}
}

func (g *Gate) Submit(cmd intent.Command, sentence string) (Request, error) {
	if cmd.IsNone() {
		return Request{}, ErrNothingToConfirm
	}

	req := Request{
		ID:        uuid.NewString(),
		Command:   cmd,
		Label:     cmd.Label(),
		Sentence:  sentence,
		Status:    Pending,
		CreatedAt: g.now(),
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.entries[req.ID] = &entry{req: req, decided: make(chan struct{})}
	g.pending = append(g.pending, req.ID)
	return req, nil
}

// Pending lists undecided requests in submission order.
func (g *Gate) Pending() []Request {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]Request, 0, len(g.pending))
	for _, id := range g.pending {
		out = append(out, g.entries[id].req)
	}
	return out
}

func (g *Gate) Get(id string) (Request, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	e, ok := g.entries[id]
	if !ok {
		return Request{}, ErrNotFound
	}
	return e.req, nil
}

func (g *Gate) Approve(id string) (Request, error) {
	return g.decide(id, Approved)
}

func (g *Gate) Dismiss(id string) (Request, error) {
	return g.decide(id, Dismissed)
}

func (g *Gate) decide(id string, status Status) (Request, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	e, ok := g.entries[id]
	if !ok {
		return Request{}, ErrNotFound
	}
	if e.req.Status != Pending {
		return e.req, ErrAlreadyDecided
	}

	now := g.now()
	e.req.Status = status
	e.req.DecidedAt = &now
	close(e.decided)

	for i, pid := range g.pending {
		if pid == id {
			g.pending = append(g.pending[:i], g.pending[i+1:]...)
			break
		}
	}
	g.decided = append(g.decided, id)
	if len(g.decided) > keepDecided {
		delete(g.entries, g.decided[0])
		g.decided = g.decided[1:]
	}
	return e.req, nil
}

// Wait blocks until the request is decided or ctx is done. The decided
// request is returned even if it has since been pruned from history.
func (g *Gate) Wait(ctx context.Context, id string) (Request, error) {
	g.mu.Lock()
	e, ok := g.entries[id]
	g.mu.Unlock()
	if !ok {
		return Request{}, ErrNotFound
	}

	select {
	case <-e.decided:
		g.mu.Lock()
		defer g.mu.Unlock()
		return e.req, nil
	case <-ctx.Done():
		return Request{}, ctx.Err()
	}
}
