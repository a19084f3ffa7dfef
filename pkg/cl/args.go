// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package cl

import (
	"fmt"
	"unsafe"

	"github.com/gomlx/clrt/pkg/cl/native"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/gopjrt/dtypes/bfloat16"
	"github.com/x448/float16"
)

// Argument is a value that can be bound to a kernel parameter, see Kernel.SetArg.
//
// It is implemented by Value (scalars passed by value), *SvmBlob and SvmSlice (SVM pointers).
type Argument interface {
	fmt.Stringer

	// setArg binds the argument to the kernel parameter index.
	setArg(api native.API, kernel native.Kernel, index int) native.ErrorCode
}

// Scalar lists the Go types that can be passed by value to kernels, with the corresponding OpenCL C types:
// char/uchar, short/ushort, int/uint, long/ulong, half, bfloat16 (as ushort), float and double.
type Scalar interface {
	int8 | int16 | int32 | int64 | uint8 | uint16 | uint32 | uint64 |
		float16.Float16 | bfloat16.BFloat16 | float32 | float64
}

type valueArg[T Scalar] struct {
	value T
}

// Value returns a kernel argument passed by value.
func Value[T Scalar](value T) Argument {
	return valueArg[T]{value: value}
}

func (v valueArg[T]) setArg(api native.API, kernel native.Kernel, index int) native.ErrorCode {
	bytes := unsafe.Slice((*byte)(unsafe.Pointer(&v.value)), unsafe.Sizeof(v.value))
	return api.SetKernelArg(kernel, index, bytes)
}

// String implements fmt.Stringer, e.g.: "Float32(2.5)".
func (v valueArg[T]) String() string {
	return fmt.Sprintf("%s(%v)", dtypes.FromGenericsType[T](), v.value)
}

func (b *SvmBlob) setArg(api native.API, kernel native.Kernel, index int) native.ErrorCode {
	return setSvmArg(api, kernel, index, b)
}

func (s SvmSlice) setArg(api native.API, kernel native.Kernel, index int) native.ErrorCode {
	return setSvmArg(api, kernel, index, s)
}

// setSvmArg binds the start of the region, or NULL if the region is empty.
func setSvmArg(api native.API, kernel native.Kernel, index int, region SvmRegion) native.ErrorCode {
	blob, sp := region.svmSpan()
	ptr := blob.UnsafePointer()
	if sp.end == sp.start {
		ptr = nil
	} else {
		ptr = unsafe.Add(ptr, sp.start)
	}
	return api.SetKernelArgSVMPointer(kernel, index, ptr)
}
