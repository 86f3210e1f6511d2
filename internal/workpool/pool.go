// Package workpool provides the optional worker pool that cook and
// package operations dispatch per-object work to. The pool is
// fire-and-join: callers submit tasks and then wait for everything
// submitted so far to drain before returning, so operations stay
// synchronous at their boundary even when the work inside fans out.
package workpool

import (
	"sync"
)

// Pool runs submitted tasks on a fixed set of worker goroutines.
type Pool struct {
	tasks   chan func()
	pending sync.WaitGroup
	workers sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// New starts a pool with the given number of workers. Sizes below one
// are raised to one.
func New(workers int) *Pool {
	if workers < 1 {
		workers = 1
	}
	p := &Pool{tasks: make(chan func(), workers*2)}
	p.workers.Add(workers)
	for i := 0; i < workers; i++ {
		go p.run()
	}
	return p
}

func (p *Pool) run() {
	defer p.workers.Done()
	for task := range p.tasks {
		task()
		p.pending.Done()
	}
}

// Submit queues a task. Submitting to a closed pool runs the task
// inline so callers never lose work during shutdown races.
func (p *Pool) Submit(task func()) {
	if task == nil {
		return
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		task()
		return
	}
	p.pending.Add(1)
	p.mu.Unlock()
	p.tasks <- task
}

// Wait blocks until every task submitted so far has finished. The pool
// stays usable afterwards; operations call Wait once per batch.
func (p *Pool) Wait() {
	p.pending.Wait()
}

// Close drains outstanding tasks and stops the workers.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	p.pending.Wait()
	close(p.tasks)
	p.workers.Wait()
}
