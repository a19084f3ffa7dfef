// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package cl

import (
	"runtime"
	"sync/atomic"

	"github.com/gomlx/clrt/pkg/cl/native"
	"github.com/gomlx/exceptions"
	"k8s.io/klog/v2"
)

// Number of handle wrappers created and released: used for debugging and leak tests.
var (
	handlesCreated  atomic.Int64
	handlesReleased atomic.Int64
)

// NumLiveHandles returns the number of handle wrappers (devices, contexts, queues, events, programs
// and kernels) created and not yet released.
func NumLiveHandles() int64 {
	return handlesCreated.Load() - handlesReleased.Load()
}

// handle owns one reference of a native handle of type H.
//
// It is embedded (as a pointer) in the public wrappers. The finalizer is set on the handle itself,
// so it runs once the wrapper holding it is no longer reachable.
type handle[H ~uintptr] struct {
	kind      string
	api       native.API
	raw       atomic.Uintptr
	releaseFn func(api native.API, raw H) native.ErrorCode
}

// newHandle takes ownership of one reference of raw.
func newHandle[H ~uintptr](kind string, api native.API, raw H, releaseFn func(native.API, H) native.ErrorCode) *handle[H] {
	if raw == 0 {
		exceptions.Panicf("cl: can't create %s from a NULL handle", kind)
	}
	h := &handle[H]{kind: kind, api: api, releaseFn: releaseFn}
	h.raw.Store(uintptr(raw))
	handlesCreated.Add(1)
	runtime.SetFinalizer(h, (*handle[H]).finalize)
	return h
}

// finalize is called by the garbage collector if the handle was not released.
func (h *handle[H]) finalize() {
	raw := h.raw.Swap(0)
	if raw == 0 {
		return
	}
	handlesReleased.Add(1)
	klog.Warningf("cl: %s 0x%x garbage collected without being released", h.kind, raw)
	if code := h.releaseFn(h.api, H(raw)); code != native.Success {
		klog.Errorf("cl: releasing %s 0x%x from the finalizer failed with %s", h.kind, raw, code)
	}
}

// Release the native handle. It is a no-op if it was already released.
func (h *handle[H]) Release() {
	raw := h.raw.Swap(0)
	if raw == 0 {
		return
	}
	runtime.SetFinalizer(h, nil)
	handlesReleased.Add(1)
	check("release "+h.kind, h.releaseFn(h.api, H(raw)))
}

// take moves the ownership of the native handle out of the wrapper, which becomes released.
func (h *handle[H]) take() H {
	raw := h.raw.Swap(0)
	if raw == 0 {
		exceptions.Panicf("cl: %s used after Release()", h.kind)
	}
	runtime.SetFinalizer(h, nil)
	handlesReleased.Add(1)
	return H(raw)
}

// IsNil returns whether the wrapper is nil or was released.
func (h *handle[H]) IsNil() bool {
	return h == nil || h.raw.Load() == 0
}

// UnsafeRaw returns the native handle, without retaining it.
//
// It is unsafe because the caller must make sure the wrapper is not released (or garbage collected)
// while the raw handle is in use.
func (h *handle[H]) UnsafeRaw() H {
	if h == nil {
		exceptions.Panicf("cl: using a nil handle")
	}
	raw := h.raw.Load()
	if raw == 0 {
		exceptions.Panicf("cl: %s used after Release()", h.kind)
	}
	return H(raw)
}

// Driver returns the native driver of the handle.
func (h *handle[H]) Driver() native.API {
	return h.api
}

// retained returns the native handle with a new reference, for a Clone.
func (h *handle[H]) retained(retainFn func(native.API, H) native.ErrorCode) H {
	raw := h.UnsafeRaw()
	check("retain "+h.kind, retainFn(h.api, raw))
	return raw
}

// Release functions of each handle type, for newHandle.

func releaseDevice(api native.API, raw native.Device) native.ErrorCode { return api.ReleaseDevice(raw) }
func releaseContext(api native.API, raw native.Context) native.ErrorCode { return api.ReleaseContext(raw) }
func releaseQueue(api native.API, raw native.Queue) native.ErrorCode { return api.ReleaseCommandQueue(raw) }
func releaseEvent(api native.API, raw native.Event) native.ErrorCode { return api.ReleaseEvent(raw) }
func releaseProgram(api native.API, raw native.Program) native.ErrorCode { return api.ReleaseProgram(raw) }
func releaseKernel(api native.API, raw native.Kernel) native.ErrorCode { return api.ReleaseKernel(raw) }

func retainDevice(api native.API, raw native.Device) native.ErrorCode { return api.RetainDevice(raw) }
func retainContext(api native.API, raw native.Context) native.ErrorCode { return api.RetainContext(raw) }
func retainQueue(api native.API, raw native.Queue) native.ErrorCode { return api.RetainCommandQueue(raw) }
func retainEvent(api native.API, raw native.Event) native.ErrorCode { return api.RetainEvent(raw) }
func retainProgram(api native.API, raw native.Program) native.ErrorCode { return api.RetainProgram(raw) }
func retainKernel(api native.API, raw native.Kernel) native.ErrorCode { return api.RetainKernel(raw) }
