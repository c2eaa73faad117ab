// Package contextpool implements a bounded pool of reusable inference
// contexts (chat or embedding) with a floor and ceiling on live instances,
// FIFO-fair acquisition, and health-checked release.
package contextpool

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"
)

// ErrPoolShutdown is returned by Acquire once the pool has been shut down.
var ErrPoolShutdown = errors.New("contextpool: pool is shut down")

// Context is anything the pool can hand out: an inference session bound to
// a model. Healthy is consulted on release to decide whether the instance
// goes back into the idle set or is disposed.
type Context interface {
	Healthy() bool
	Close() error
}

// Creator constructs a new Context, e.g. opening a connection to an
// inference backend for a specific model.
type Creator func(ctx context.Context) (Context, error)

// Config controls pool sizing.
type Config struct {
	MinSize int // Contexts created eagerly at New; failure here is fatal.
	MaxSize int // Ceiling on concurrently live contexts.
}

// Pool is a bounded, FIFO-fair pool of Contexts for one model.
//
// Acquire blocks until a context is available or the ceiling has room to
// create one; semaphore.Weighted guarantees FIFO ordering among blocked
// acquirers, so no caller starves behind a stream of later arrivals.
type Pool struct {
	sem     *semaphore.Weighted
	creator Creator
	minSize int
	maxSize int

	mu     sync.Mutex
	idle   []Context
	live   int
	closed bool
}

// New creates a pool and eagerly creates MinSize contexts. A failure to
// reach MinSize is fatal: the caller should treat it as a startup error,
// not something to retry.
func New(ctx context.Context, cfg Config, creator Creator) (*Pool, error) {
	if cfg.MaxSize < cfg.MinSize {
		return nil, fmt.Errorf("contextpool: invalid config: MaxSize (%d) below MinSize (%d)", cfg.MaxSize, cfg.MinSize)
	}

	p := &Pool{
		sem:     semaphore.NewWeighted(int64(cfg.MaxSize)),
		creator: creator,
		minSize: cfg.MinSize,
		maxSize: cfg.MaxSize,
	}

	for i := 0; i < cfg.MinSize; i++ {
		c, err := creator(ctx)
		if err != nil {
			for _, existing := range p.idle {
				existing.Close()
			}
			return nil, fmt.Errorf("contextpool: fatal: creating context %d/%d: %w", i+1, cfg.MinSize, err)
		}
		p.idle = append(p.idle, c)
		p.live++
	}

	return p, nil
}

// Acquire returns an idle context or, if the pool is below MaxSize,
// creates a new one. It blocks FIFO-fairly if the pool is already at
// MaxSize and none are idle. Creation failures here are runtime errors:
// callers may retry.
func (p *Pool) Acquire(ctx context.Context) (Context, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("contextpool: acquire: %w", err)
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.sem.Release(1)
		return nil, ErrPoolShutdown
	}
	if n := len(p.idle); n > 0 {
		c := p.idle[0]
		p.idle = p.idle[1:]
		p.mu.Unlock()
		return c, nil
	}
	p.live++
	p.mu.Unlock()

	c, err := p.creator(ctx)
	if err != nil {
		p.mu.Lock()
		p.live--
		p.mu.Unlock()
		p.sem.Release(1)
		return nil, fmt.Errorf("contextpool: creating context: %w", err)
	}
	return c, nil
}

// Release returns a context to the idle set, or disposes of it if it
// failed its health probe or the pool has since been shut down.
func (p *Pool) Release(c Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	defer p.sem.Release(1)

	if p.closed {
		c.Close()
		p.live--
		return
	}
	if !c.Healthy() {
		c.Close()
		p.live--
		return
	}
	p.idle = append(p.idle, c)
}

// Shutdown closes every idle context and marks the pool closed. Contexts
// currently acquired are closed as they're returned via Release rather
// than forcibly, since the pool has no way to interrupt work in flight.
// Acquire returns ErrPoolShutdown for any caller that arrives after this.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true
	for _, c := range p.idle {
		c.Close()
		p.live--
	}
	p.idle = nil
}

// Live reports the current number of live (idle + acquired) contexts.
func (p *Pool) Live() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.live
}
