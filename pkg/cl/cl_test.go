// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package cl_test

import (
	"testing"

	"github.com/gomlx/clrt/pkg/cl"
	"github.com/gomlx/clrt/pkg/cl/cltest"
	"github.com/gomlx/clrt/pkg/cl/native"
	"github.com/gomlx/clrt/pkg/cl/native/simcl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/klog/v2"
)

func init() {
	klog.InitFlags(nil)
}

// simDevice returns the device #idx of the first platform of a new simulated driver, whose objects are
// checked for leaks at the end of the test.
func simDevice(t *testing.T, config string, idx int) (*simcl.Driver, *cl.Device) {
	driver := cltest.SimDriver(t, config)
	platforms := cl.PlatformsOf(driver)
	require.NotEmpty(t, platforms)
	devices := platforms[0].Devices()
	require.Greater(t, len(devices), idx)
	for i, device := range devices {
		if i != idx {
			device.Release()
		}
	}
	t.Cleanup(devices[idx].Release)
	return driver, devices[idx]
}

// simQueue returns a context and a queue on a simulated device.
func simQueue(t *testing.T, config string) (*simcl.Driver, *cl.Context, *cl.CommandQueue) {
	driver, device := simDevice(t, config, 0)
	ctx := device.Context()
	q := ctx.Queue()
	t.Cleanup(func() {
		q.Finish()
		q.Release()
		ctx.Release()
	})
	return driver, ctx, q
}

func TestPlatforms(t *testing.T) {
	cltest.Driver(t)
	platforms := cl.Platforms()
	require.NotEmpty(t, platforms)
	for _, platform := range platforms {
		assert.NotEmpty(t, platform.Name())
		assert.NotEmpty(t, platform.Version())
		devices := platform.Devices()
		require.NotEmpty(t, devices)
		for _, device := range devices {
			assert.Equal(t, platform.UnsafeRaw(), device.Platform().UnsafeRaw())
			assert.NotEmpty(t, device.Name())
			assert.Equal(t, 3, device.MaxWorkItemDimensions())
			id, ok := device.UUID()
			assert.True(t, ok)
			assert.NotEqual(t, [16]byte{}, [16]byte(id))
			device.Release()
		}
	}
}

func TestQueueContext(t *testing.T) {
	cltest.ForEachDevice(t, func(t *testing.T, device *cl.Device) {
		ctx := device.Context()
		defer ctx.Release()
		q := ctx.Queue()
		defer q.Release()

		qCtx := q.Context()
		defer qCtx.Release()
		assert.Equal(t, ctx.UnsafeRaw(), qCtx.UnsafeRaw())

		qDevice := q.Device()
		defer qDevice.Release()
		assert.Equal(t, device.UnsafeRaw(), qDevice.UnsafeRaw())
		assert.Equal(t, device.SvmCapabilities().FineGrained(), q.FineGrainSvm())
	})
}

func TestContextDevices(t *testing.T) {
	driver := cltest.SimDriver(t, "platforms=2,devices=2")
	platforms := cl.PlatformsOf(driver)
	require.Len(t, platforms, 2)
	devices0, devices1 := platforms[0].Devices(), platforms[1].Devices()
	defer func() {
		for _, device := range append(devices0, devices1...) {
			device.Release()
		}
	}()

	// Devices of different platforms can't share a context.
	_, code := driver.CreateContext([]native.Device{devices0[0].UnsafeRaw(), devices1[0].UnsafeRaw()})
	assert.NotEqual(t, native.Success, code)

	raw, code := driver.CreateContext([]native.Device{devices0[0].UnsafeRaw()})
	require.Equal(t, native.Success, code)
	ctx := cl.ContextFromRaw(driver, raw)
	ctxDevice := ctx.Device()
	assert.Equal(t, devices0[0].UnsafeRaw(), ctxDevice.UnsafeRaw())
	ctxDevice.Release()
	ctx.Release()

	// Several devices of one platform can, but they are not supported by the wrappers.
	raw, code = driver.CreateContext([]native.Device{devices0[0].UnsafeRaw(), devices0[1].UnsafeRaw()})
	require.Equal(t, native.Success, code)
	require.Panics(t, func() { cl.ContextFromRaw(driver, raw) })
}

func TestReleaseAndClone(t *testing.T) {
	driver, device := simDevice(t, "platforms=1,devices=1", 0)
	ctx := device.Context()
	numHandles := cl.NumLiveHandles()
	clone := ctx.Clone()
	assert.Equal(t, numHandles+2, cl.NumLiveHandles(), "context and device handles")
	ctx.Release()
	assert.Equal(t, numHandles, cl.NumLiveHandles())
	ctx.Release() // No-op.
	assert.Equal(t, numHandles, cl.NumLiveHandles())
	assert.True(t, ctx.IsNil())
	require.Panics(t, func() { ctx.Queue() })

	// The queue holds its own reference to the context.
	q := clone.Queue()
	clone.Release()
	assert.Equal(t, 1, driver.LiveObjects()["context"])
	q.Finish()
	q2 := q.Clone()
	q.Release()
	require.Panics(t, func() { q.Finish() })
	q2.Finish()
	q2.Release()
	assert.Empty(t, driver.LiveObjects())
}

func TestEventNode(t *testing.T) {
	assert.Nil(t, cl.NewEventNode(nil, true).Take())
	assert.Nil(t, cl.NewEventNode(nil, false).Take())
	var node *cl.EventNode
	assert.Nil(t, node.Take())
	node.Release()

	_, ctx, q := simQueue(t, "platforms=1,devices=1")

	// Wait events are moved into the node.
	userEvent := ctx.NewUserEvent()
	wait := userEvent.Clone()
	node = cl.NewEventNode([]*cl.Event{wait}, true)
	assert.True(t, wait.IsNil())
	node.Release()
	userEvent.Release()

	// Double submission.
	blob := cl.Allocate[uint32](ctx, 4)
	node = cl.Record()
	cl.MemcpyFromHost(q, blob, []uint32{1, 2, 3, 4}, node)
	require.Panics(t, func() { cl.MemcpyFromHost(q, blob, []uint32{1, 2, 3, 4}, node) })
	event := node.Take()
	require.NotNil(t, event)
	event.Wait()
	assert.True(t, event.IsComplete())
	event.Release()
	assert.Nil(t, node.Take())

	// Taken or released nodes can't be submitted: their wait lists are gone.
	gate := ctx.NewUserEvent()
	node = cl.Record(gate.Clone())
	assert.Nil(t, node.Take())
	require.Panics(t, func() { cl.MemcpyFromHost(q, blob, []uint32{5, 6, 7, 8}, node) })
	node = cl.WaitOn(gate.Clone())
	node.Release()
	require.Panics(t, func() { cl.MemcpyFromHost(q, blob, []uint32{5, 6, 7, 8}, node) })
	require.Panics(t, func() { cl.MemcpyFromHost(q, blob.Slice(0, 0), []uint32{}, node) })
	assert.False(t, gate.IsComplete())
	gate.Complete()
	gate.Release()

	got := make([]uint32, 4)
	cl.MemcpyToHost(q, got, blob, nil)
	q.Finish()
	assert.Equal(t, []uint32{1, 2, 3, 4}, got)
	q.Free(blob, nil)
	q.Finish()
	assert.Zero(t, cl.NumPendingPinnedCopies())
}

func TestUserEvent(t *testing.T) {
	_, ctx, q := simQueue(t, "platforms=1,devices=1,svm=coarse")
	blob := cl.Allocate[uint32](ctx, 4)
	defer q.Free(blob, nil)

	// The copy to the device is gated by the user event.
	userEvent := ctx.NewUserEvent()
	defer userEvent.Release()
	cl.MemcpyFromHost(q, blob, []uint32{1, 2, 3, 4}, cl.WaitOn(userEvent.Clone()))
	node := cl.Record()
	got := make([]uint32, 4)
	cl.MemcpyToHost(q, got, blob, node)
	event := node.Take()
	defer event.Release()
	assert.False(t, event.IsComplete())
	assert.Equal(t, native.Submitted, userEvent.Status())

	userEvent.Complete()
	event.Wait()
	assert.Equal(t, []uint32{1, 2, 3, 4}, got)
	require.Panics(t, func() { userEvent.Complete() }, "completing a user event twice")

	// An aborted user event makes the dependent operations fail.
	aborted := ctx.NewUserEvent()
	defer aborted.Release()
	node = cl.Record(aborted.Clone())
	cl.MemcpyToHost(q, got, blob, node)
	failed := node.Take()
	defer failed.Release()
	aborted.Abort(native.OutOfResources)
	require.Panics(t, func() { failed.Wait() })
	require.Panics(t, func() { cl.WaitForEvents(event, failed) })
	assert.Less(t, failed.Status(), native.Complete)
	require.Panics(t, func() { aborted.Abort(native.ErrorCode(1)) })
	q.Finish()
}

func TestQueueWait(t *testing.T) {
	_, ctx, q := simQueue(t, "platforms=1,devices=1")
	q2 := ctx.Queue()
	defer q2.Release()

	userEvent := ctx.NewUserEvent()
	defer userEvent.Release()
	q2.Wait(&userEvent.Event)
	blob := cl.Allocate[byte](ctx, 3)
	node := cl.Record()
	cl.MemcpyFromHost(q2, blob, []byte{1, 2, 3}, node)
	event := node.Take()
	defer event.Release()
	assert.False(t, event.IsComplete())
	userEvent.Complete()
	cl.WaitForEvents(event)
	q2.Finish()
	q.Free(blob, nil)
}
