// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package cl_test

import (
	"testing"

	"github.com/gomlx/clrt/pkg/cl"
	"github.com/gomlx/clrt/pkg/cl/cltest"
	"github.com/gomlx/clrt/pkg/cl/native"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/gopjrt/dtypes/bfloat16"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/x448/float16"
)

const saxpySource = `
kernel void saxpy_float(global float* z, global const float* x, global const float* y, float a) {
    const size_t i = get_global_id(0);
    z[i] = a*x[i] + y[i];
}

kernel void saxpy_half(global half* z, global const half* x, global const half* y, half a) {
    const size_t i = get_global_id(0);
    z[i] = a*x[i] + y[i];
}
`

func TestBuildFromSource(t *testing.T) {
	cltest.ForEachDevice(t, func(t *testing.T, device *cl.Device) {
		ctx := device.Context()
		defer ctx.Release()

		program, err := ctx.BuildFromSource(saxpySource, "-cl-std=CL2.0")
		require.NoError(t, err)
		defer program.Release()
		assert.Equal(t, []string{"saxpy_float", "saxpy_half"}, program.KernelNames())
		assert.Equal(t, 2, program.NumKernels())

		kernel, found := program.GetKernel("saxpy_float")
		require.True(t, found)
		assert.Equal(t, "saxpy_float", kernel.Name())
		assert.Equal(t, 4, kernel.NumArgs())
		kernel.Release()

		kernel, found = program.GetKernel("saxpy_double")
		assert.False(t, found)
		assert.Nil(t, kernel)

		kernels := program.Kernels()
		require.Len(t, kernels, 2)
		for _, k := range kernels {
			k.Release()
		}

		_, err = ctx.BuildFromSource("#error Error in source code\n"+saxpySource, "")
		require.Error(t, err)
		var buildErr *cl.BuildError
		require.True(t, errors.As(err, &buildErr))
		assert.Equal(t, native.BuildProgramFailure, buildErr.Code)
		assert.NotEmpty(t, buildErr.Log)
		assert.Contains(t, err.Error(), "Error in source code")

		empty, err := ctx.BuildFromSource("", "")
		require.NoError(t, err)
		assert.Empty(t, empty.KernelNames())
		assert.Zero(t, empty.NumKernels())
		assert.Empty(t, empty.Kernels())
		empty.Release()
	})
}

func TestBuildErrors(t *testing.T) {
	driver, device := simDevice(t, "platforms=1,devices=1", 0)
	ctx := device.Context()
	defer ctx.Release()

	_, err := ctx.BuildFromSource(saxpySource, "-cl-std=CL9.9")
	var buildErr *cl.BuildError
	require.True(t, errors.As(err, &buildErr))
	assert.Equal(t, native.InvalidBuildOptions, buildErr.Code)

	_, err = ctx.BuildFromSource("kernel void saxpy_float(global float* z) {", "")
	require.True(t, errors.As(err, &buildErr))
	assert.Equal(t, native.BuildProgramFailure, buildErr.Code)
	assert.Contains(t, buildErr.Log, "error: expected '}'")
	assert.Empty(t, driver.LiveObjects()["program"])

	_, device = simDevice(t, "platforms=1,devices=1,compiler=false", 0)
	noCompiler := device.Context()
	defer noCompiler.Release()
	_, err = noCompiler.BuildFromSource(saxpySource, "")
	require.True(t, errors.As(err, &buildErr))
	assert.Equal(t, native.CompilerNotAvailable, buildErr.Code)
}

func TestKernelArgs(t *testing.T) {
	_, ctx, q := simQueue(t, "platforms=1,devices=1")
	program, err := ctx.BuildFromSource(saxpySource, "")
	require.NoError(t, err)
	defer program.Release()
	kernel, _ := program.GetKernel("saxpy_float")
	defer kernel.Release()

	blob := cl.Allocate[float32](ctx, 4)
	defer q.Free(blob, nil)
	require.Panics(t, func() { kernel.SetArg(4, cl.Value(float32(1))) })
	require.Panics(t, func() { kernel.SetArgs(blob, blob) })
	require.Panics(t, func() { kernel.SetArg(3, cl.Value(float64(1))) }, "argument of the wrong size")

	// Arguments must be set before launching.
	require.Panics(t, func() { kernel.Launch(nil, []int{4}, nil, q, nil) })

	kernel.SetArgs(blob, blob.Slice(0, 16), blob, cl.Value(float32(1)))
	require.Panics(t, func() { kernel.Launch(nil, []int{}, nil, q, nil) })
	require.Panics(t, func() { kernel.Launch(nil, []int{1, 1, 1, 1}, nil, q, nil) })
	require.Panics(t, func() { kernel.Launch([]int{0, 0}, []int{4}, nil, q, nil) })
	require.Panics(t, func() { kernel.Launch(nil, []int{4}, []int{2, 2}, q, nil) })
	kernel.Launch([]int{0}, []int{4}, []int{2}, q, nil)
	q.Finish()

	// Empty regions bind a NULL pointer.
	empty := cl.Allocate[float32](ctx, 0)
	kernel.SetArg(2, empty)
	kernel.SetArg(1, blob.Slice(8, 8))
	kernel.SetArgs(blob, blob, blob, cl.Value(float32(1)))
	empty.Release()

	kernel.Release()
	require.Panics(t, func() { kernel.SetArg(0, blob) })

	assert.Equal(t, dtypes.Float32.String()+"(2.5)", cl.Value(float32(2.5)).String())
	assert.Contains(t, cl.Value(float16.Fromfloat32(1)).String(), dtypes.Float16.String())
	assert.Contains(t, cl.Value(bfloat16.FromFloat32(1)).String(), dtypes.BFloat16.String())
}

func TestPipeline(t *testing.T) {
	_, ctx, q1 := simQueue(t, "platforms=1,devices=1,svm=coarse,parallelism=4")
	q2 := ctx.Queue()
	defer func() {
		q2.Finish()
		q2.Release()
	}()

	const n = 1000
	x, y := make([]float32, n), make([]float32, n)
	for i := range x {
		x[i], y[i] = float32(i), float32(n-i)
	}
	bx, by, bz := cl.Allocate[float32](ctx, n), cl.Allocate[float32](ctx, n), cl.Allocate[float32](ctx, n)

	// Host to device copies on q1, gated by a user event.
	start := ctx.NewUserEvent()
	defer start.Release()
	node := cl.Record(start.Clone())
	cl.MemcpyFromHost(q1, bx, x, node)
	copyX := node.Take()
	node = cl.Record()
	cl.MemcpyFromHost(q1, by, y, node)
	copyY := node.Take()

	// Kernel on q2, waiting for both copies.
	program, err := ctx.BuildFromSource(saxpySource, "")
	require.NoError(t, err)
	defer program.Release()
	kernel, found := program.GetKernel("saxpy_float")
	require.True(t, found)
	defer kernel.Release()
	kernel.SetArgs(bz, bx, by, cl.Value(float32(2)))
	node = cl.NewEventNode([]*cl.Event{copyX, copyY}, true)
	kernel.Launch(nil, []int{n}, nil, q2, node)
	launch := node.Take()

	// Device to host copy on q1, waiting for the kernel.
	z := make([]float32, n)
	node = cl.Record(launch.Clone())
	cl.MemcpyToHost(q1, z, bz, node)
	result := node.Take()
	defer result.Release()
	assert.False(t, launch.IsComplete())
	launch.Release()

	start.Complete()
	result.Wait()
	for i := range z {
		require.Equal(t, 2*x[i]+y[i], z[i], "z[%d]", i)
	}
	for _, blob := range []*cl.SvmBlob{bx, by, bz} {
		q1.Free(blob, nil)
	}
}

func TestHalfKernel(t *testing.T) {
	_, ctx, q := simQueue(t, "platforms=1,devices=1,svm=fine")
	program, err := ctx.BuildFromSource(saxpySource, "")
	require.NoError(t, err)
	defer program.Release()
	kernel, _ := program.GetKernel("saxpy_half")
	defer kernel.Release()

	const n = 16
	x := make([]float16.Float16, n)
	for i := range x {
		x[i] = float16.Fromfloat32(float32(i))
	}
	bx, bz := cl.Allocate[float16.Float16](ctx, n), cl.Allocate[float16.Float16](ctx, n)
	cl.MemcpyFromHost(q, bx, x, nil)
	kernel.SetArgs(bz, bx, bx, cl.Value(float16.Fromfloat32(3)))
	kernel.Launch(nil, []int{n}, nil, q, nil)
	m := q.Map(bz, nil)
	z := make([]float16.Float16, n)
	cl.CopyFromMap(z, m)
	q.Unmap(m, nil)
	for i := range z {
		assert.Equal(t, float32(4*i), z[i].Float32())
	}
	q.Free(bx, nil)
	q.Free(bz, nil)
}
