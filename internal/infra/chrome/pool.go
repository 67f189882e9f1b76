package chrome

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// ErrPoolClosed is returned by Acquire once the pool has been closed.
var ErrPoolClosed = errors.New("chrome pool is closed")

// Slot is the right to run one browser session. It must be handed back with Release.
type Slot struct {
	ID       int
	Acquired time.Time
}

// Pool caps how many browser instances run at once. Every render launches its
// own browser; the pool only hands out admission tokens.
type Pool struct {
	sem    chan struct{}
	done   chan struct{}
	mu     sync.Mutex
	closed bool
	next   int

	served atomic.Int64
	failed atomic.Int64
}

// Stats summarizes pool usage for /ops/stats.
type Stats struct {
	Enabled  bool  `json:"enabled"`
	Capacity int   `json:"capacity"`
	Idle     int   `json:"idle"`
	InUse    int   `json:"in_use"`
	Served   int64 `json:"served"`
	Failed   int64 `json:"failed"`
}

// NewPool creates a pool with size concurrent slots.
func NewPool(size int) (*Pool, error) {
	if size <= 0 {
		return nil, errors.New("chrome pool size must be positive")
	}
	p := &Pool{
		sem:  make(chan struct{}, size),
		done: make(chan struct{}),
	}
	for i := 0; i < size; i++ {
		p.sem <- struct{}{}
	}
	return p, nil
}

// Acquire blocks until a slot is free, ctx is done or the pool is closed.
func (p *Pool) Acquire(ctx context.Context) (*Slot, error) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return nil, ErrPoolClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	select {
	case <-p.sem:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.done:
		return nil, ErrPoolClosed
	}

	p.mu.Lock()
	p.next++
	id := p.next
	p.mu.Unlock()
	return &Slot{ID: id, Acquired: time.Now()}, nil
}

// Release returns slot to the pool and records the outcome of its session.
func (p *Pool) Release(slot *Slot, err error) {
	if slot == nil {
		return
	}
	if err != nil {
		p.failed.Add(1)
	} else {
		p.served.Add(1)
	}
	select {
	case p.sem <- struct{}{}:
	default:
	}
}

// Stats reports capacity and current usage.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()

	capacity := cap(p.sem)
	idle := len(p.sem)
	return Stats{
		Enabled:  !closed,
		Capacity: capacity,
		Idle:     idle,
		InUse:    capacity - idle,
		Served:   p.served.Load(),
		Failed:   p.failed.Load(),
	}
}

// Close wakes every waiting Acquire. It is safe to call more than once.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	close(p.done)
}
