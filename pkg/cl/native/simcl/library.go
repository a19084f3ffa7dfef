// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package simcl

import (
	"sync"
	"unsafe"

	"github.com/gomlx/exceptions"
	"github.com/x448/float16"
)

// KernelFunc is the Go implementation of an OpenCL C kernel. It is called once per work-item,
// possibly concurrently for different work-items.
type KernelFunc func(item *WorkItem, args Args)

type kernelImpl struct {
	numArgs int
	fn      KernelFunc
}

var (
	muLibrary sync.RWMutex
	library   = make(map[string]*kernelImpl)
)

// RegisterKernel registers the Go implementation of the kernel with the given name, taking numArgs arguments.
//
// Programs can only be built if all their kernels have a registered implementation, with the same
// number of parameters. Registering a name again replaces the previous implementation, for programs
// built afterward.
func RegisterKernel(name string, numArgs int, fn KernelFunc) {
	muLibrary.Lock()
	defer muLibrary.Unlock()
	library[name] = &kernelImpl{numArgs: numArgs, fn: fn}
}

func lookupKernelImpl(name string) *kernelImpl {
	muLibrary.RLock()
	defer muLibrary.RUnlock()
	return library[name]
}

// WorkItem identifies the current work-item of an NDRange execution, like the OpenCL C
// work-item functions (get_global_id, get_local_size, ...).
type WorkItem struct {
	dims                   int
	globalID, globalOffset [3]int
	globalSize, localSize  [3]int
}

// WorkDim returns the number of dimensions in use.
func (item *WorkItem) WorkDim() int { return item.dims }

// GlobalID returns the global work-item ID for dimension dim, including the global offset.
func (item *WorkItem) GlobalID(dim int) int { return item.globalID[dim] }

// GlobalSize returns the number of global work-items for dimension dim.
func (item *WorkItem) GlobalSize(dim int) int { return item.globalSize[dim] }

// GlobalOffset returns the global offset for dimension dim.
func (item *WorkItem) GlobalOffset(dim int) int { return item.globalOffset[dim] }

// LocalSize returns the work-group size for dimension dim.
func (item *WorkItem) LocalSize(dim int) int { return item.localSize[dim] }

// LocalID returns the work-item ID within its work-group for dimension dim.
func (item *WorkItem) LocalID(dim int) int {
	return (item.globalID[dim] - item.globalOffset[dim]) % item.localSize[dim]
}

// GroupID returns the work-group ID for dimension dim.
func (item *WorkItem) GroupID(dim int) int {
	return (item.globalID[dim] - item.globalOffset[dim]) / item.localSize[dim]
}

// Arg is the value of one kernel argument, as seen by the kernel implementation.
type Arg struct {
	// value of by-value arguments.
	value []byte

	// mem is the device view of pointer arguments, from the pointer to the end of its allocation.
	mem []byte
}

// Args are the arguments of a kernel, captured when it was enqueued.
type Args []Arg

// Scalar returns the by-value argument i as a T.
func Scalar[T any](args Args, i int) T {
	var value T
	size := int(unsafe.Sizeof(value))
	if len(args[i].value) != size {
		exceptions.Panicf("simcl: kernel argument #%d has %d bytes, can't read it as a %T", i, len(args[i].value), value)
	}
	copy(unsafe.Slice((*byte)(unsafe.Pointer(&value)), size), args[i].value)
	return value
}

// Global returns the pointer argument i as a slice of T, from the pointer to the end of its allocation.
func Global[T any](args Args, i int) []T {
	mem := args[i].mem
	var zero T
	size := int(unsafe.Sizeof(zero))
	if len(mem) < size {
		return nil
	}
	return unsafe.Slice((*T)(unsafe.Pointer(&mem[0])), len(mem)/size)
}

// Kernels implemented by default.
func init() {
	RegisterKernel("saxpy_float", 4, func(item *WorkItem, args Args) {
		z, x, y, a := Global[float32](args, 0), Global[float32](args, 1), Global[float32](args, 2), Scalar[float32](args, 3)
		i := item.GlobalID(0)
		z[i] = a*x[i] + y[i]
	})
	RegisterKernel("saxpy_half", 4, func(item *WorkItem, args Args) {
		z, x, y := Global[float16.Float16](args, 0), Global[float16.Float16](args, 1), Global[float16.Float16](args, 2)
		a := Scalar[float16.Float16](args, 3).Float32()
		i := item.GlobalID(0)
		z[i] = float16.Fromfloat32(a*x[i].Float32() + y[i].Float32())
	})
	RegisterKernel("scale_uint", 2, func(item *WorkItem, args Args) {
		v, k := Global[uint32](args, 0), Scalar[uint32](args, 1)
		v[item.GlobalID(0)] *= k
	})
	RegisterKernel("fill_uint", 2, func(item *WorkItem, args Args) {
		v, value := Global[uint32](args, 0), Scalar[uint32](args, 1)
		v[item.GlobalID(0)] = value
	})
	RegisterKernel("copy_bytes", 2, func(item *WorkItem, args Args) {
		dst, src := Global[byte](args, 0), Global[byte](args, 1)
		dst[item.GlobalID(0)] = src[item.GlobalID(0)]
	})
	RegisterKernel("add_2d_float", 4, func(item *WorkItem, args Args) {
		c, a, b, width := Global[float32](args, 0), Global[float32](args, 1), Global[float32](args, 2), Scalar[uint32](args, 3)
		i := item.GlobalID(1)*int(width) + item.GlobalID(0)
		c[i] = a[i] + b[i]
	})
}
