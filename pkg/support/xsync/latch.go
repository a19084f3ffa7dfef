// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package xsync implements some extra synchronization tools.
package xsync

import "sync"

// Latch is a signal that can be waited for until it is triggered, carrying a value of type T
// set at trigger time. Once triggered it never changes state or value.
type Latch[T any] struct {
	mu    sync.Mutex
	value T
	wait  chan struct{}
}

// NewLatch returns an un-triggered latch.
func NewLatch[T any]() *Latch[T] {
	return &Latch[T]{wait: make(chan struct{})}
}

// Trigger the latch with the given value. It returns false if the latch had already been
// triggered, in which case the value is discarded.
func (l *Latch[T]) Trigger(value T) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.Test() {
		return false
	}
	l.value = value
	close(l.wait)
	return true
}

// Wait for the latch to be triggered and return its value.
func (l *Latch[T]) Wait() T {
	<-l.wait
	return l.value
}

// Test checks whether the latch has been triggered.
func (l *Latch[T]) Test() bool {
	select {
	case <-l.wait:
		return true
	default:
		return false
	}
}

// Value returns the triggered value and true, or the zero value and false if not triggered yet.
func (l *Latch[T]) Value() (T, bool) {
	if !l.Test() {
		var zero T
		return zero, false
	}
	return l.value, true
}

// WaitChan returns a channel closed when the latch triggers, to be used in a `select`.
func (l *Latch[T]) WaitChan() <-chan struct{} {
	return l.wait
}
