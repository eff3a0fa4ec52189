package simd

import (
	"runtime"
	"sync"
)

type poolTask struct {
	fn     func(lo, hi int)
	lo, hi int
	done   chan struct{}
}

// Pool is a fixed set of goroutines that split index ranges between them.
// Ranges handed to one Run never overlap, so callers writing disjoint
// output slices need no locking.
type Pool struct {
	size      int
	tasks     chan poolTask
	doneSlots chan chan struct{}
	closeOnce sync.Once
}

var (
	defaultPool     *Pool
	defaultPoolOnce sync.Once
)

// DefaultPool returns the process-wide pool sized to GOMAXPROCS.
func DefaultPool() *Pool {
	defaultPoolOnce.Do(func() {
		defaultPool = NewPool(runtime.GOMAXPROCS(0))
	})
	return defaultPool
}

// NewPool starts size workers. A size below one is treated as one.
func NewPool(size int) *Pool {
	if size < 1 {
		size = 1
	}
	p := &Pool{
		size:      size,
		tasks:     make(chan poolTask, size*2),
		doneSlots: make(chan chan struct{}, size),
	}
	for i := 0; i < size; i++ {
		p.doneSlots <- make(chan struct{}, size)
		go func() {
			for task := range p.tasks {
				task.fn(task.lo, task.hi)
				task.done <- struct{}{}
			}
		}()
	}
	return p
}

// Size is the number of workers.
func (p *Pool) Size() int {
	return p.size
}

// Run calls fn over contiguous chunks of [0, n) and waits for all of them.
// Small ranges run on the calling goroutine.
func (p *Pool) Run(n int, fn func(lo, hi int)) {
	if n <= 0 {
		return
	}
	workers := min(p.size, n)
	if workers <= 1 {
		fn(0, n)
		return
	}

	chunk := (n + workers - 1) / workers
	done := <-p.doneSlots

	active := 0
	for lo := 0; lo < n; lo += chunk {
		active++
		p.tasks <- poolTask{fn: fn, lo: lo, hi: min(lo+chunk, n), done: done}
	}
	for i := 0; i < active; i++ {
		<-done
	}
	p.doneSlots <- done
}

// Close stops the workers. The default pool is never closed.
func (p *Pool) Close() {
	if p == defaultPool {
		return
	}
	p.closeOnce.Do(func() { close(p.tasks) })
}
