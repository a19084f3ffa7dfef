// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package xsync

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLatch(t *testing.T) {
	l := NewLatch[int32]()
	_, ok := l.Value()
	require.False(t, ok)
	require.False(t, l.Test())

	got := make(chan int32)
	go func() { got <- l.Wait() }()
	require.True(t, l.Trigger(7))
	require.False(t, l.Trigger(11), "second trigger must be discarded")
	select {
	case v := <-got:
		assert.Equal(t, int32(7), v)
	case <-time.After(time.Second):
		t.Fatal("Wait() did not return after Trigger()")
	}
	v, ok := l.Value()
	require.True(t, ok)
	assert.Equal(t, int32(7), v)
	<-l.WaitChan()
}

func TestDynamicWaitGroup(t *testing.T) {
	wg := NewDynamicWaitGroup()
	wg.Wait() // Zero count, returns immediately.

	var done atomic.Int32
	wg.Add(3)
	require.Equal(t, 3, wg.Count())
	for range 3 {
		go func() {
			time.Sleep(time.Millisecond)
			done.Add(1)
			wg.Done()
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(3), done.Load())
	assert.Panics(t, func() { wg.Done() })
}
