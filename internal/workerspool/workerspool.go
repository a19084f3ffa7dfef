// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package workerspool runs tasks on a bounded number of goroutines.
package workerspool

import (
	"runtime"
	"sync"
)

// Pool limits the number of tasks running in parallel.
type Pool struct {
	// maxParallelism is the limit of tasks running at the same time:
	// 0 disables parallelism (tasks run inline), negative values mean unlimited.
	maxParallelism int

	mu         sync.Mutex
	cond       sync.Cond // Signaled whenever numRunning is decreased.
	numRunning int
}

// New returns a new Pool with the default parallelism (runtime.NumCPU()).
func New() *Pool {
	return NewWithParallelism(runtime.NumCPU())
}

// NewWithParallelism returns a new Pool running at most maxParallelism tasks at once.
// If maxParallelism is 0 tasks are run inline, if it is negative parallelism is unlimited.
func NewWithParallelism(maxParallelism int) *Pool {
	w := &Pool{maxParallelism: maxParallelism}
	w.cond = sync.Cond{L: &w.mu}
	return w
}

// MaxParallelism returns the configured limit, see NewWithParallelism.
func (w *Pool) MaxParallelism() int {
	return w.maxParallelism
}

// lockedIsFull returns whether all available workers are in use.
// It must be called with w.mu acquired.
func (w *Pool) lockedIsFull() bool {
	if w.maxParallelism < 0 {
		return false
	}
	return w.numRunning >= w.maxParallelism
}

// WaitToStart waits until there is a worker available and starts task on it.
//
// If parallelism is disabled, it runs the task inline and returns when it is finished.
func (w *Pool) WaitToStart(task func()) {
	if w.maxParallelism == 0 {
		task()
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	for w.lockedIsFull() {
		w.cond.Wait()
	}
	w.numRunning++
	go func() {
		defer func() {
			w.mu.Lock()
			w.numRunning--
			w.cond.Signal()
			w.mu.Unlock()
		}()
		task()
	}()
}

// ForChunks splits the range [0, n) into chunks of at least minChunk elements, runs fn on each
// chunk using the pool, and waits for all of them to finish.
//
// A panic in fn is re-raised in the caller's goroutine after all chunks finished.
func (w *Pool) ForChunks(n, minChunk int, fn func(start, end int)) {
	if n <= 0 {
		return
	}
	minChunk = max(minChunk, 1)
	numChunks := 1
	if w.maxParallelism != 0 {
		numChunks = (n + minChunk - 1) / minChunk
		if w.maxParallelism > 0 {
			numChunks = min(numChunks, w.maxParallelism)
		} else {
			numChunks = min(numChunks, runtime.NumCPU())
		}
	}
	if numChunks <= 1 {
		fn(0, n)
		return
	}

	chunkSize := (n + numChunks - 1) / numChunks
	var (
		wg        sync.WaitGroup
		muPanic   sync.Mutex
		exception any
	)
	for start := 0; start < n; start += chunkSize {
		end := min(start+chunkSize, n)
		wg.Add(1)
		w.WaitToStart(func() {
			defer wg.Done()
			defer func() {
				if e := recover(); e != nil {
					muPanic.Lock()
					exception = e
					muPanic.Unlock()
				}
			}()
			fn(start, end)
		})
	}
	wg.Wait()
	if exception != nil {
		panic(exception)
	}
}
