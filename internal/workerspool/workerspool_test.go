// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package workerspool

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/gomlx/clrt/pkg/support/xsync"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_WaitToStart(t *testing.T) {
	pool := NewWithParallelism(2)
	var running, maxRunning atomic.Int32
	done := xsync.NewDynamicWaitGroup()
	for range 10 {
		done.Add(1)
		pool.WaitToStart(func() {
			defer done.Done()
			n := running.Add(1)
			for {
				m := maxRunning.Load()
				if n <= m || maxRunning.CompareAndSwap(m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			running.Add(-1)
		})
	}
	done.Wait()
	assert.LessOrEqual(t, maxRunning.Load(), int32(2))
}

func TestPool_ForChunks(t *testing.T) {
	for _, parallelism := range []int{0, 1, 3, -1} {
		pool := NewWithParallelism(parallelism)
		const n = 1000
		var visits [n]atomic.Int32
		pool.ForChunks(n, 7, func(start, end int) {
			for i := start; i < end; i++ {
				visits[i].Add(1)
			}
		})
		for i := range visits {
			require.Equalf(t, int32(1), visits[i].Load(), "parallelism=%d: element %d", parallelism, i)
		}
	}
}

func TestPool_ForChunksPanic(t *testing.T) {
	pool := NewWithParallelism(4)
	require.Panics(t, func() {
		pool.ForChunks(100, 1, func(start, end int) {
			if start == 0 {
				panic("boom")
			}
		})
	})
}
