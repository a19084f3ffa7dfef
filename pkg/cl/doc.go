// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package cl is a safety layer over the OpenCL C API (see package native for the raw entry points).
//
// It exposes platforms, devices, contexts, command queues, events, programs, kernels and shared
// virtual memory (SVM), enforcing the API reference counting and asynchronous completion rules:
//
//   - Reference counted handles (Device, Context, CommandQueue, Event, Program, Kernel) are wrapped in
//     Go objects: Clone retains the handle and returns a new wrapper, Release releases it exactly once
//     (calling it again is a no-op). Wrappers garbage collected without Release are released by a finalizer,
//     with a warning. Using a released wrapper panics.
//   - Every asynchronous operation (kernel launch, SVM copy, map, unmap and free) takes an optional *EventNode,
//     listing the events it must wait for, and optionally recording a new completion Event.
//   - SVM host mappings are typed by capability: SvmReadMap, SvmReadWriteMap and SvmWriteMap.
//
// Errors from the native API that should never happen (invalid handles, allocation failures, size
// mismatches, ...) are treated as programming or environment errors and panic with a stack trace
// (see github.com/gomlx/exceptions). The only recoverable errors are build failures (*BuildError)
// and kernels not found by name.
//
// Example:
//
//	for _, platform := range cl.Platforms() {
//		for _, device := range platform.Devices() {
//			ctx := device.Context()
//			queue := ctx.Queue()
//			blob := cl.Allocate[float32](ctx, 1024)
//			...
//			queue.Free(blob, nil)
//			queue.Finish()
//			queue.Release()
//			ctx.Release()
//			device.Release()
//		}
//	}
//
// The native driver is selected with $CLRT_DRIVER (see package native), and drivers must be registered
// by importing them, typically with:
//
//	import _ "github.com/gomlx/clrt/pkg/cl/native/default"
package cl
