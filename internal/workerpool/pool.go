// Package workerpool is the bounded pool blocking work runs on. The
// async side of the process (HTTP handlers, the inbox loop) never does
// CPU-bound or filesystem-heavy work inline; it hands the closure to a
// pool slot and waits.
package workerpool

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Pool bounds the number of concurrently running closures.
type Pool struct {
	slots int
	sem   *semaphore.Weighted
}

// New creates a pool with n slots; n <= 0 means one slot per CPU.
func New(n int) *Pool {
	if n <= 0 {
		n = runtime.NumCPU()
	}
	return &Pool{slots: n, sem: semaphore.NewWeighted(int64(n))}
}

// Run executes fn on a pool slot and blocks until it returns,
// waiting first if all slots are busy.
func (p *Pool) Run(fn func()) {
	// Acquire with a background context cannot fail.
	_ = p.sem.Acquire(context.Background(), 1)
	defer p.sem.Release(1)
	fn()
}

// Group is a fan-out helper bounded by the pool's slot count: each Go
// schedules one task, Wait joins all of them.
type Group struct {
	eg *errgroup.Group
}

func (p *Pool) Group() *Group {
	eg := &errgroup.Group{}
	eg.SetLimit(p.slots)
	return &Group{eg: eg}
}

func (g *Group) Go(fn func()) {
	g.eg.Go(func() error {
		fn()
		return nil
	})
}

func (g *Group) Wait() { _ = g.eg.Wait() }
