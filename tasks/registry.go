// Package tasks correlates work published to an external worker pool with the results that
// come back asynchronously.
package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"
)

var (
	ErrRegistryFull  = errors.New("too many pending tasks")
	ErrDuplicateTask = errors.New("task id already pending")
	ErrTaskTimeout   = errors.New("timed out waiting for task result")
	ErrTaskFailed    = errors.New("task failed")
)

type Task struct {
	ID      string          `json:"id"`
	Kind    string          `json:"kind"`
	UserID  int64           `json:"userId"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type Result struct {
	ID      string          `json:"id"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Registry holds one Future per in-flight task. It is bounded and every entry is removed when
// its waiter returns, so results that never arrive cannot accumulate.
type Registry struct {
	mu         sync.Mutex
	pending    map[string]*Future
	maxPending int
	timeout    time.Duration
}

func NewRegistry(maxPending int, timeout time.Duration) *Registry {
	return &Registry{
		pending:    make(map[string]*Future),
		maxPending: maxPending,
		timeout:    timeout,
	}
}

// Register reserves a slot for id.
func (r *Registry) Register(id string) (*Future, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.pending[id]; ok {
		return nil, ErrDuplicateTask
	}
	if len(r.pending) >= r.maxPending {
		return nil, ErrRegistryFull
	}
	f := &Future{id: id, done: make(chan Result, 1), registry: r}
	r.pending[id] = f
	return f, nil
}

// Resolve hands res to its waiter. It returns false when nobody is waiting for res.ID,
// e.g. the waiter already timed out.
func (r *Registry) Resolve(res Result) bool {
	r.mu.Lock()
	f, ok := r.pending[res.ID]
	delete(r.pending, res.ID)
	r.mu.Unlock()

	if !ok {
		return false
	}
	f.done <- res
	return true
}

func (r *Registry) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

func (r *Registry) remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pending, id)
}

type Future struct {
	id       string
	done     chan Result // buffered, written at most once
	registry *Registry
}

func (f *Future) ID() string {
	return f.id
}

// Wait blocks until the result arrives, the registry timeout passes, or ctx ends.
func (f *Future) Wait(ctx context.Context) (*Result, error) {
	defer f.Cancel()

	ctx, cancel := context.WithTimeout(ctx, f.registry.timeout)
	defer cancel()

	select {
	case res := <-f.done:
		return &res, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ErrTaskTimeout
		}
		return nil, ctx.Err()
	}
}

// Cancel releases the slot without waiting.
func (f *Future) Cancel() {
	f.registry.remove(f.id)
}
