// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package simcl

import (
	"encoding/binary"
	"testing"
	"unsafe"

	"github.com/gomlx/clrt/pkg/cl/native"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/klog/v2"
)

func init() {
	klog.InitFlags(nil)
}

func newTestDriver(t *testing.T, config string) *Driver {
	d, err := New(config)
	require.NoError(t, err)
	return d
}

// firstDevice returns the device #devIdx of platform #0.
func firstDevice(t *testing.T, d *Driver, devIdx int) native.Device {
	platforms := make([]native.Platform, 1)
	_, code := d.GetPlatformIDs(platforms)
	require.Equal(t, native.Success, code)
	n, code := d.GetDeviceIDs(platforms[0], native.DeviceTypeAll, nil)
	require.Equal(t, native.Success, code)
	devices := make([]native.Device, n)
	_, code = d.GetDeviceIDs(platforms[0], native.DeviceTypeAll, devices)
	require.Equal(t, native.Success, code)
	return devices[devIdx]
}

func infoString(t *testing.T, query func([]byte) (int, native.ErrorCode)) string {
	size, code := query(nil)
	require.Equal(t, native.Success, code)
	buf := make([]byte, size)
	size2, code := query(buf)
	require.Equal(t, native.Success, code)
	require.Equal(t, size, size2)
	return string(buf[:size-1])
}

func TestNew(t *testing.T) {
	d := newTestDriver(t, "platforms=3,devices=1,svm=fine+atomics,name=test")
	n, code := d.GetPlatformIDs(nil)
	require.Equal(t, native.Success, code)
	assert.Equal(t, 3, n)

	dev := firstDevice(t, d, 0)
	name := infoString(t, func(buf []byte) (int, native.ErrorCode) { return d.GetDeviceInfo(dev, native.DeviceName, buf) })
	assert.Equal(t, "test device #0.0", name)
	buf := make([]byte, 8)
	_, code = d.GetDeviceInfo(dev, native.DeviceSvmCapabilities, buf)
	require.Equal(t, native.Success, code)
	caps := native.SvmCapabilities(binary.NativeEndian.Uint64(buf))
	assert.Equal(t, native.SvmCoarseGrainBuffer|native.SvmFineGrainBuffer|native.SvmAtomics, caps)

	for _, config := range []string{"foo=bar", "platforms=x", "devices=-1", "svm=coarse+atomics", "svm=gold", "compiler=maybe", "name="} {
		_, err := New(config)
		assert.Errorf(t, err, "config %q should fail", config)
	}

	d = newTestDriver(t, "platforms=0")
	_, code = d.GetPlatformIDs(nil)
	assert.Equal(t, native.PlatformNotFoundKHR, code)
}

func TestRegistry(t *testing.T) {
	api, err := native.NewWithConfig("sim:platforms=1")
	require.NoError(t, err)
	assert.Equal(t, DriverName, api.Name())
	n, code := api.GetPlatformIDs(nil)
	require.Equal(t, native.Success, code)
	assert.Equal(t, 1, n)
}

func TestCreateContext(t *testing.T) {
	d := newTestDriver(t, "")
	platforms := make([]native.Platform, 2)
	_, code := d.GetPlatformIDs(platforms)
	require.Equal(t, native.Success, code)
	var all []native.Device
	for _, p := range platforms {
		devices := make([]native.Device, 2)
		_, code = d.GetDeviceIDs(p, native.DeviceTypeAll, devices)
		require.Equal(t, native.Success, code)

		ctx, code := d.CreateContext(devices)
		require.Equal(t, native.Success, code)
		require.Equal(t, native.Success, d.ReleaseContext(ctx))
		all = append(all, devices...)
	}
	_, code = d.CreateContext(all)
	assert.Equal(t, native.InvalidDevice, code)
	_, code = d.CreateContext([]native.Device{all[0], all[0]})
	assert.Equal(t, native.InvalidDevice, code)
	assert.Empty(t, d.LiveObjects())
}

func TestRefCounting(t *testing.T) {
	d := newTestDriver(t, "")
	ctx, code := d.CreateContext([]native.Device{firstDevice(t, d, 0)})
	require.Equal(t, native.Success, code)
	q, code := d.CreateCommandQueue(ctx, firstDevice(t, d, 0))
	require.Equal(t, native.Success, code)

	// The queue keeps the context alive.
	require.Equal(t, native.Success, d.ReleaseContext(ctx))
	assert.Equal(t, map[string]int{"context": 1, "queue": 1}, d.LiveObjects())
	assert.Equal(t, "context=1, queue=1", d.DescribeLiveObjects())

	buf := make([]byte, unsafe.Sizeof(uintptr(0)))
	_, code = d.GetCommandQueueInfo(q, native.QueueContext, buf)
	require.Equal(t, native.Success, code)
	require.Equal(t, ctx, native.Context(binary.NativeEndian.Uint64(buf)))

	require.Equal(t, native.Success, d.ReleaseCommandQueue(q))
	assert.Empty(t, d.LiveObjects())
	assert.Equal(t, native.InvalidCommandQueue, d.ReleaseCommandQueue(q))
	assert.Equal(t, native.InvalidContext, d.RetainContext(ctx))
}

type testQueue struct {
	d   *Driver
	ctx native.Context
	q   native.Queue
}

func newTestQueue(t *testing.T, d *Driver, devIdx int) *testQueue {
	dev := firstDevice(t, d, devIdx)
	ctx, code := d.CreateContext([]native.Device{dev})
	require.Equal(t, native.Success, code)
	q, code := d.CreateCommandQueue(ctx, dev)
	require.Equal(t, native.Success, code)
	return &testQueue{d: d, ctx: ctx, q: q}
}

func (tq *testQueue) release(t *testing.T) {
	require.Equal(t, native.Success, tq.d.Finish(tq.q))
	require.Equal(t, native.Success, tq.d.ReleaseCommandQueue(tq.q))
	require.Equal(t, native.Success, tq.d.ReleaseContext(tq.ctx))
}

func TestUserEventGatesQueue(t *testing.T) {
	d := newTestDriver(t, "")
	tq := newTestQueue(t, d, 0)
	src := d.SVMAlloc(tq.ctx, native.MemReadWrite, 4, 0)
	dst := d.SVMAlloc(tq.ctx, native.MemReadWrite, 4, 0)
	require.NotNil(t, src)
	require.NotNil(t, dst)

	host := []byte{1, 2, 3, 4}
	require.Equal(t, native.Success, d.EnqueueSVMMemcpy(tq.q, true, src, unsafe.Pointer(&host[0]), 4, nil, nil))

	user, code := d.CreateUserEvent(tq.ctx)
	require.Equal(t, native.Success, code)
	var copied native.Event
	require.Equal(t, native.Success, d.EnqueueSVMMemcpy(tq.q, false, dst, src, 4, []native.Event{user}, &copied))
	status := make([]byte, 4)
	_, code = d.GetEventInfo(copied, native.EventCommandExecutionStatus, status)
	require.Equal(t, native.Success, code)
	assert.Equal(t, native.Submitted, native.ExecutionStatus(binary.NativeEndian.Uint32(status)))

	require.Equal(t, native.Success, d.SetUserEventStatus(user, native.Complete))
	assert.Equal(t, native.InvalidOperation, d.SetUserEventStatus(user, native.Complete))
	require.Equal(t, native.Success, d.WaitForEvents([]native.Event{copied}))
	_, code = d.GetEventInfo(copied, native.EventCommandExecutionStatus, status)
	require.Equal(t, native.Success, code)
	assert.Equal(t, native.Complete, native.ExecutionStatus(binary.NativeEndian.Uint32(status)))

	result := make([]byte, 4)
	require.Equal(t, native.Success, d.EnqueueSVMMemcpy(tq.q, true, unsafe.Pointer(&result[0]), dst, 4, nil, nil))
	assert.Equal(t, host, result)

	require.Equal(t, native.Success, d.ReleaseEvent(user))
	require.Equal(t, native.Success, d.ReleaseEvent(copied))
	require.Equal(t, native.Success, d.EnqueueSVMFree(tq.q, []unsafe.Pointer{src, dst}, nil, nil))
	tq.release(t)
	assert.Empty(t, d.LiveObjects())
	assert.Equal(t, 2, d.Stats().Frees)
}

func TestFailedUserEvent(t *testing.T) {
	d := newTestDriver(t, "")
	tq := newTestQueue(t, d, 0)
	user, code := d.CreateUserEvent(tq.ctx)
	require.Equal(t, native.Success, code)
	var marker native.Event
	require.Equal(t, native.Success, d.EnqueueMarkerWithWaitList(tq.q, []native.Event{user}, &marker))
	require.Equal(t, native.Success, d.SetUserEventStatus(user, native.ExecutionStatus(native.InvalidValue)))
	assert.Equal(t, native.ExecStatusErrorForEventsInWaitList, d.WaitForEvents([]native.Event{marker}))
	require.Equal(t, native.Success, d.ReleaseEvent(user))
	require.Equal(t, native.Success, d.ReleaseEvent(marker))
	tq.release(t)
	assert.Empty(t, d.LiveObjects())
}

func TestCoarseGrainedMaps(t *testing.T) {
	d := newTestDriver(t, "svm=coarse")
	tq := newTestQueue(t, d, 0)
	const size = 16
	ptr := d.SVMAlloc(tq.ctx, native.MemReadWrite, size, 0)
	require.NotNil(t, ptr)
	assert.Nil(t, d.SVMAlloc(tq.ctx, native.MemReadWrite|native.MemSvmFineGrainBuffer, size, 0))
	host := unsafe.Slice((*byte)(ptr), size)

	// Writes while mapped reach the device only on unmap.
	require.Equal(t, native.Success, d.EnqueueSVMMap(tq.q, true, native.MapWrite|native.MapRead, ptr, size, nil, nil))
	for i := range host {
		host[i] = byte(i)
	}
	require.Equal(t, native.Success, d.EnqueueSVMUnmap(tq.q, ptr, nil, nil))
	require.Equal(t, native.Success, d.Finish(tq.q))
	for i := range host {
		host[i] = 0
	}
	require.Equal(t, native.Success, d.EnqueueSVMMap(tq.q, true, native.MapRead, ptr, size, nil, nil))
	assert.Equal(t, byte(7), host[7])
	require.Equal(t, native.Success, d.EnqueueSVMUnmap(tq.q, ptr, nil, nil))

	// Write-invalidate doesn't read the device contents.
	require.Equal(t, native.Success, d.EnqueueSVMMap(tq.q, true, native.MapWriteInvalidateRegion, ptr, size, nil, nil))
	assert.Equal(t, byte(invalidatedByte), host[7])
	require.Equal(t, native.Success, d.EnqueueSVMUnmap(tq.q, ptr, nil, nil))
	assert.Equal(t, native.InvalidValue, d.EnqueueSVMUnmap(tq.q, ptr, nil, nil))
	assert.Equal(t, native.InvalidValue, d.EnqueueSVMMap(tq.q, true, native.MapWriteInvalidateRegion|native.MapRead, ptr, size, nil, nil))
	assert.Equal(t, native.InvalidValue, d.EnqueueSVMMap(tq.q, true, native.MapRead, ptr, size+1, nil, nil))

	d.SVMFree(tq.ctx, ptr)
	tq.release(t)
	assert.Empty(t, d.LiveObjects())
}

func TestMemcpyErrors(t *testing.T) {
	d := newTestDriver(t, "")
	tq := newTestQueue(t, d, 1)
	ptr := d.SVMAlloc(tq.ctx, native.MemReadWrite|native.MemSvmFineGrainBuffer, 64, 0)
	require.NotNil(t, ptr)
	assert.Equal(t, native.MemCopyOverlap, d.EnqueueSVMMemcpy(tq.q, true, ptr, unsafe.Add(ptr, 8), 16, nil, nil))
	assert.Equal(t, native.InvalidValue, d.EnqueueSVMMemcpy(tq.q, true, ptr, unsafe.Add(ptr, 32), 48, nil, nil))
	assert.Equal(t, native.InvalidValue, d.EnqueueSVMMemcpy(tq.q, true, nil, ptr, 4, nil, nil))
	assert.Equal(t, native.InvalidEventWaitList, d.EnqueueSVMMemcpy(tq.q, true, ptr, unsafe.Add(ptr, 32), 16, []native.Event{0xdead}, nil))
	d.SVMFree(tq.ctx, ptr)
	tq.release(t)
	assert.Empty(t, d.LiveObjects())
}

const saxpySource = `
// z = a*x + y
kernel void saxpy_float (global float* z,
    global float const* x,
    global float const* y,
    float a)
{
    const size_t i = get_global_id(0);
    z[i] = a*x[i] + y[i];
}`

func buildProgram(t *testing.T, d *Driver, ctx native.Context, source, options string) (native.Program, native.ErrorCode, string) {
	p, code := d.CreateProgramWithSource(ctx, source)
	require.Equal(t, native.Success, code)
	code = d.BuildProgram(p, nil, options)
	devices := make([]native.Device, 1)
	_, infoCode := d.GetContextInfo(ctx, native.ContextDevices, handleBytes(devices))
	require.Equal(t, native.Success, infoCode)
	log := infoString(t, func(buf []byte) (int, native.ErrorCode) {
		return d.GetProgramBuildInfo(p, devices[0], native.ProgramBuildLog, buf)
	})
	return p, code, log
}

func handleBytes(devices []native.Device) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(&devices[0])), len(devices)*int(unsafe.Sizeof(devices[0])))
}

func TestBuild(t *testing.T) {
	d := newTestDriver(t, "")
	tq := newTestQueue(t, d, 0)

	p, code, log := buildProgram(t, d, tq.ctx, saxpySource, "-cl-std=CL2.0 -D N=3")
	require.Equal(t, native.Success, code)
	assert.Empty(t, log)
	names := infoString(t, func(buf []byte) (int, native.ErrorCode) { return d.GetProgramInfo(p, native.ProgramKernelNames, buf) })
	assert.Equal(t, "saxpy_float", names)
	_, code = d.CreateKernel(p, "saxpy_double")
	assert.Equal(t, native.InvalidKernelName, code)
	require.Equal(t, native.Success, d.ReleaseProgram(p))

	testCases := []struct {
		source, options string
		code            native.ErrorCode
		log             string
	}{
		{"#error Error in source code", "", native.BuildProgramFailure, "<source>:1:2: error: Error in source code\n1 error generated.\n"},
		{"kernel void f(global int* x) {", "", native.BuildProgramFailure, "error: expected '}'"},
		{"kernel void f(global int* x) { x[0] = 1; )", "", native.BuildProgramFailure, "<source>:1:42: error: expected '}'"},
		{"kernel void unknown_kernel(global int* x) {}", "", native.BuildProgramFailure, "no implementation registered for kernel 'unknown_kernel'"},
		{"kernel void fill_uint(global uint* v) {}", "", native.BuildProgramFailure, "declared with 1 parameters, its implementation takes 2"},
		{"kernel void fill_uint(global uint* v, mytype x) {}", "", native.BuildProgramFailure, "unknown type name 'mytype'"},
		{"kernel int fill_uint(global uint* v, uint x) {}", "", native.BuildProgramFailure, "must have void return type"},
		{"/* unterminated", "", native.BuildProgramFailure, "unterminated /* comment"},
		{"#warning careful\nkernel void fill_uint(global uint* v, uint x) {}", "-Werror", native.BuildProgramFailure, "<source>:1:2: error: careful"},
		{"#warning careful\nkernel void fill_uint(global uint* v, uint x) {}", "", native.Success, "<source>:1:2: warning: careful\n1 warning generated.\n"},
		{saxpySource, "-O9000", native.InvalidBuildOptions, "invalid build options"},
		{saxpySource, "-cl-std=CL9.9", native.InvalidBuildOptions, "invalid build options"},
		{"", "", native.Success, ""},
	}
	for _, tc := range testCases {
		p, code, log := buildProgram(t, d, tq.ctx, tc.source, tc.options)
		assert.Equalf(t, tc.code, code, "source %q, options %q", tc.source, tc.options)
		assert.Containsf(t, log, tc.log, "source %q, options %q", tc.source, tc.options)
		require.Equal(t, native.Success, d.ReleaseProgram(p))
	}
	tq.release(t)
	assert.Empty(t, d.LiveObjects())
	assert.Equal(t, len(testCases)+1, d.Stats().Builds)

	d = newTestDriver(t, "compiler=false")
	tq = newTestQueue(t, d, 0)
	p, code, _ = buildProgram(t, d, tq.ctx, saxpySource, "")
	assert.Equal(t, native.CompilerNotAvailable, code)
	require.Equal(t, native.Success, d.ReleaseProgram(p))
	tq.release(t)
}

func TestNDRange(t *testing.T) {
	for _, config := range []string{"parallelism=0", "parallelism=4"} {
		d := newTestDriver(t, config)
		tq := newTestQueue(t, d, 1)
		p, code, _ := buildProgram(t, d, tq.ctx, saxpySource, "")
		require.Equal(t, native.Success, code)
		k, code := d.CreateKernel(p, "saxpy_float")
		require.Equal(t, native.Success, code)
		require.Equal(t, native.Success, d.ReleaseProgram(p)) // The kernel keeps the program alive.

		const n = 1000
		flags := native.MemReadWrite | native.MemSvmFineGrainBuffer
		z, x, y := d.SVMAlloc(tq.ctx, flags, 4*n, 4), d.SVMAlloc(tq.ctx, flags, 4*n, 4), d.SVMAlloc(tq.ctx, flags, 4*n, 4)
		xs, ys, zs := unsafe.Slice((*float32)(x), n), unsafe.Slice((*float32)(y), n), unsafe.Slice((*float32)(z), n)
		for i := range n {
			xs[i], ys[i] = float32(i), 1
		}
		assert.Equal(t, native.InvalidKernelArgs, d.EnqueueNDRangeKernel(tq.q, k, nil, []int{n}, nil, nil, nil))
		require.Equal(t, native.Success, d.SetKernelArgSVMPointer(k, 0, z))
		require.Equal(t, native.Success, d.SetKernelArgSVMPointer(k, 1, x))
		require.Equal(t, native.Success, d.SetKernelArgSVMPointer(k, 2, y))
		assert.Equal(t, native.InvalidArgSize, d.SetKernelArg(k, 3, []byte{0, 0}))
		assert.Equal(t, native.InvalidArgValue, d.SetKernelArg(k, 0, []byte{0, 0, 0, 0}))
		assert.Equal(t, native.InvalidArgIndex, d.SetKernelArg(k, 4, []byte{0, 0, 0, 0}))
		a := float32(2)
		require.Equal(t, native.Success, d.SetKernelArg(k, 3, unsafe.Slice((*byte)(unsafe.Pointer(&a)), 4)))

		assert.Equal(t, native.InvalidWorkDimension, d.EnqueueNDRangeKernel(tq.q, k, nil, []int{1, 1, 1, 1}, nil, nil, nil))
		assert.Equal(t, native.InvalidWorkGroupSize, d.EnqueueNDRangeKernel(tq.q, k, nil, []int{n}, []int{7}, nil, nil))
		var done native.Event
		require.Equal(t, native.Success, d.EnqueueNDRangeKernel(tq.q, k, nil, []int{n}, []int{8}, nil, &done))
		require.Equal(t, native.Success, d.WaitForEvents([]native.Event{done}))
		for i := range n {
			require.Equal(t, 2*float32(i)+1, zs[i])
		}

		require.Equal(t, native.Success, d.ReleaseEvent(done))
		require.Equal(t, native.Success, d.ReleaseKernel(k))
		require.Equal(t, native.Success, d.EnqueueSVMFree(tq.q, []unsafe.Pointer{x, y, z}, nil, nil))
		tq.release(t)
		assert.Empty(t, d.LiveObjects())
		stats := d.Stats()
		assert.Equal(t, 1, stats.KernelLaunches)
		assert.Equal(t, int64(n), stats.WorkItems)
		assert.Contains(t, stats.String(), "1 kernel launches (1,000 work-items)")
	}
}

func TestWorkItem(t *testing.T) {
	item := WorkItem{dims: 2, globalOffset: [3]int{10, 0, 0}, globalSize: [3]int{8, 4, 1}, localSize: [3]int{4, 2, 1}}
	item.globalID = [3]int{15, 3, 0}
	assert.Equal(t, 2, item.WorkDim())
	assert.Equal(t, 1, item.LocalID(0))
	assert.Equal(t, 1, item.GroupID(0))
	assert.Equal(t, 1, item.LocalID(1))
	assert.Equal(t, 1, item.GroupID(1))
	assert.Equal(t, 8, item.GlobalSize(0))
	assert.Equal(t, 10, item.GlobalOffset(0))
}
