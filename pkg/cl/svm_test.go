// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package cl_test

import (
	"bytes"
	"fmt"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/gomlx/clrt/pkg/cl"
	"github.com/gomlx/clrt/pkg/cl/cltest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSvmRoundTrip(t *testing.T) {
	cltest.ForEachSvmDevice(t, func(t *testing.T, device *cl.Device) {
		ctx := device.Context()
		defer ctx.Release()
		q := ctx.Queue()
		defer q.Release()
		for _, n := range []int{0, 1, 7, 1024} {
			t.Run(fmt.Sprintf("N=%d", n), func(t *testing.T) {
				values := make([]float32, n)
				for i := range values {
					values[i] = float32(i)
				}
				blob := cl.Allocate[float32](ctx, n)
				assert.Equal(t, 4*n, blob.Len())
				assert.Equal(t, q.FineGrainSvm(), blob.IsFineGrained())
				cl.MemcpyFromHost(q, blob, values, nil)

				m := q.MapReadWrite(blob, nil)
				mapped := cl.MapSlice[float32](m)
				require.Len(t, mapped, n)
				for i := range mapped {
					mapped[i] *= 2
				}
				q.Unmap(m, nil)
				assert.False(t, m.IsMapped())

				got := make([]float32, n)
				cl.MemcpyToHost(q, got, blob, nil)
				q.Finish()
				for i := range got {
					require.Equal(t, 2*values[i], got[i])
				}
				q.Free(blob, nil)
				q.Finish()
				assert.True(t, blob.IsNil())
			})
		}
	})
}

func TestEmptyBlob(t *testing.T) {
	driver, ctx, q := simQueue(t, "platforms=1,devices=1")
	blob := cl.Allocate[float64](ctx, 0)
	assert.NotNil(t, blob.UnsafePointer())
	assert.Zero(t, driver.LiveObjects()["svm"])

	// Zero-length operations issue no transfer, but they honour the node.
	userEvent := ctx.NewUserEvent()
	node := cl.Record(userEvent.Clone())
	q.Memcpy(blob, blob.Slice(0, 0), node)
	event := node.Take()
	require.NotNil(t, event)
	assert.False(t, event.IsComplete())
	userEvent.Complete()
	event.Wait()
	event.Release()
	userEvent.Release()

	cl.MemcpyToHost(q, []float64{}, blob, nil)
	node = cl.Record()
	q.Free(blob, node)
	event = node.Take()
	event.Wait()
	event.Release()
}

func TestAllocateErrors(t *testing.T) {
	_, ctx, _ := simQueue(t, "platforms=1,devices=1")
	require.Panics(t, func() { cl.Allocate[float64](ctx, -1) })
	require.Panics(t, func() { cl.Allocate[float64](ctx, math.MaxInt/4) })
	require.Panics(t, func() { ctx.AllocateBytes(-1) })

	_, device := simDevice(t, "platforms=1,devices=1,svm=none", 0)
	noSvm := device.Context()
	defer noSvm.Release()
	require.Panics(t, func() { noSvm.AllocateBytes(16) })
}

func TestMemcpyLengthMismatch(t *testing.T) {
	_, ctx, q := simQueue(t, "platforms=1,devices=1")
	blob := ctx.AllocateBytes(128)
	defer blob.Release()
	rng := rand.New(rand.NewPCG(42, 0))
	for range 100 {
		dstLen, srcLen := rng.IntN(64), rng.IntN(64)
		if dstLen == srcLen {
			srcLen++
		}
		require.Panics(t, func() { q.Memcpy(blob.Slice(0, dstLen), blob.Slice(64, 64+srcLen), nil) })
		require.Panics(t, func() { cl.MemcpyFromHost(q, blob.Slice(0, dstLen), make([]byte, srcLen), nil) })
		require.Panics(t, func() { cl.MemcpyToHost(q, make([]byte, dstLen), blob.Slice(64, 64+srcLen), nil) })
	}
	q.Finish()
	assert.Zero(t, cl.NumPendingPinnedCopies())
}

func TestMemcpy(t *testing.T) {
	_, ctx, q := simQueue(t, "platforms=1,devices=1,svm=coarse")
	src := cl.Allocate[int32](ctx, 8)
	dst := cl.Allocate[int32](ctx, 8)
	cl.MemcpyFromHost(q, src, []int32{1, 2, 3, 4, 5, 6, 7, 8}, nil)
	q.Memcpy(dst.Slice(0, 16), src.Slice(16, 32), nil)
	q.Memcpy(dst.Slice(16, 32), src.Slice(0, 16), nil)
	got := make([]int32, 8)
	cl.MemcpyToHost(q, got, dst, nil)
	q.Finish()
	assert.Equal(t, []int32{5, 6, 7, 8, 1, 2, 3, 4}, got)

	// Overlapping copies within a blob fail in the driver.
	require.Panics(t, func() { q.Memcpy(src.Slice(0, 16), src.Slice(8, 24), nil) })

	// Blobs of other contexts.
	device := ctx.Device()
	defer device.Release()
	otherCtx := device.Context()
	other := otherCtx.AllocateBytes(32)
	require.Panics(t, func() { q.Memcpy(dst, other, nil) })
	other.Release()
	otherCtx.Release()

	q.Free(src, nil)
	q.Free(dst, nil)
	require.Panics(t, func() { q.Free(dst, nil) })
	require.Panics(t, func() { cl.MemcpyToHost(q, got, dst, nil) })
}

func TestMaps(t *testing.T) {
	_, ctx, q := simQueue(t, "platforms=1,devices=1,svm=coarse")
	blob := ctx.AllocateBytes(64)
	cl.MemcpyFromHost(q, blob, bytes.Repeat([]byte{1}, 64), nil)

	m1 := q.Map(blob.Slice(0, 32), nil)
	buf := make([]byte, 40)
	n, err := m1.ReadAt(buf, 0)
	assert.Equal(t, 32, n)
	assert.Error(t, err)
	assert.Equal(t, bytes.Repeat([]byte{1}, 32), buf[:32])

	// Overlapping maps, and copies or frees of mapped ranges are not allowed.
	require.Panics(t, func() { q.MapReadWrite(blob.Slice(16, 48), nil) })
	require.Panics(t, func() { q.Free(blob, nil) })
	require.Panics(t, func() { cl.MemcpyFromHost(q, blob.Slice(8, 16), make([]byte, 8), nil) })
	m2 := q.MapReadWrite(blob.Slice(32, 64), nil)
	cl.CopyToMap(m2, bytes.Repeat([]byte{2}, 32))

	// Maps must be unmapped on their queue.
	q2 := ctx.Queue()
	require.Panics(t, func() { q2.Unmap(m2, nil) })
	q2.Release()

	q.Unmap(m1, nil)
	q.Unmap(m2, nil)
	require.Panics(t, func() { q.Unmap(m1, nil) })
	require.Panics(t, func() { _, _ = m1.ReadAt(buf, 0) })
	require.Panics(t, func() { m2.Bytes() })

	got := make([]byte, 64)
	cl.MemcpyToHost(q, got, blob, nil)
	q.Finish()
	assert.Equal(t, append(bytes.Repeat([]byte{1}, 32), bytes.Repeat([]byte{2}, 32)...), got)
	q.Free(blob, nil)
}

func TestMapWriteInvalidate(t *testing.T) {
	for _, svm := range []string{"coarse", "fine"} {
		t.Run(svm, func(t *testing.T) {
			_, ctx, q := simQueue(t, "platforms=1,devices=1,svm="+svm)
			blob := ctx.AllocateBytes(64)
			cl.MemcpyFromHost(q, blob, bytes.Repeat([]byte{1}, 64), nil)

			m := q.MapWriteInvalidate(blob, nil)
			if !q.FineGrainSvm() {
				// The device contents are not transferred to the host.
				assert.NotEqual(t, bytes.Repeat([]byte{1}, 64), m.UnsafeBytes())
			}
			cl.CopyToMap(m, bytes.Repeat([]byte{7}, 64))
			q.Unmap(m, nil)

			got := make([]byte, 64)
			cl.MemcpyToHost(q, got, blob, nil)
			q.Finish()
			assert.Equal(t, bytes.Repeat([]byte{7}, 64), got)

			m2 := q.Map(blob, nil)
			cl.CopyFromMap(got, m2)
			assert.Equal(t, bytes.Repeat([]byte{7}, 64), got)
			require.Panics(t, func() { cl.CopyFromMap(make([]byte, 8), m2) })
			q.Unmap(m2, nil)
			q.Free(blob, nil)
		})
	}
}

func TestBlobString(t *testing.T) {
	_, ctx, q := simQueue(t, "platforms=1,devices=1,svm=fine")
	blob := cl.Allocate[float32](ctx, 1000)
	assert.Contains(t, blob.String(), "4.0 kB")
	assert.Contains(t, blob.String(), "fine-grained")
	blobCtx := blob.Context()
	assert.Equal(t, ctx.UnsafeRaw(), blobCtx.UnsafeRaw())
	blobCtx.Release()
	q.Free(blob, nil)
	assert.Contains(t, blob.String(), "freed")
}
