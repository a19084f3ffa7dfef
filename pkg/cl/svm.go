// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package cl

import (
	"fmt"
	"math"
	"runtime"
	"sync"
	"unsafe"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/clrt/pkg/cl/native"
	"github.com/gomlx/exceptions"
	"k8s.io/klog/v2"
)

// zeroSized provides the address used by empty blobs: it is not nil, but it can't be dereferenced.
var zeroSized [0]byte

// SvmBlob is an owned shared virtual memory allocation.
//
// Empty blobs never call the native allocator: they point to a non-nil sentinel address.
//
// The host can only access the contents through maps (see CommandQueue.Map and friends), and while
// any range is mapped the blob can't be freed, nor that range used in copies.
type SvmBlob struct {
	ctx  *Context
	size int
	fine bool

	mu     sync.Mutex
	ptr    unsafe.Pointer
	mapped []span
}

// span is a range [start, end) of bytes.
type span struct{ start, end int }

func (s span) overlaps(other span) bool {
	return s.start < other.end && other.start < s.end
}

// SvmRegion is a range of bytes of an SvmBlob: it is implemented by *SvmBlob and SvmSlice.
type SvmRegion interface {
	// Len returns the size of the region in bytes.
	Len() int

	// svmSpan returns the blob and the range of bytes of the region.
	svmSpan() (*SvmBlob, span)
}

var (
	_ SvmRegion = (*SvmBlob)(nil)
	_ SvmRegion = SvmSlice{}
)

// Allocate allocates a blob for count elements of type T, aligned to T.
//
// It panics if the allocation fails.
func Allocate[T any](ctx *Context, count int) *SvmBlob {
	var zero T
	elemSize := int(unsafe.Sizeof(zero))
	if count < 0 || (elemSize > 0 && count > math.MaxInt/elemSize) {
		exceptions.Panicf("cl.Allocate[%T](%d): invalid number of elements (overflow)", zero, count)
	}
	return ctx.allocate(elemSize*count, int(unsafe.Alignof(zero)))
}

// AllocateBytes allocates a blob of size bytes, with the driver default alignment.
//
// It panics if the allocation fails.
func (c *Context) AllocateBytes(size int) *SvmBlob {
	if size < 0 {
		exceptions.Panicf("cl.AllocateBytes(%d): negative size", size)
	}
	return c.allocate(size, 0)
}

func (c *Context) allocate(size, alignment int) *SvmBlob {
	raw := c.UnsafeRaw()
	fine := c.SvmCapabilities().FineGrained()
	b := &SvmBlob{ctx: c.Clone(), size: size, fine: fine}
	if size == 0 {
		b.ptr = unsafe.Pointer(&zeroSized)
	} else {
		flags := native.MemReadWrite
		if fine {
			flags |= native.MemSvmFineGrainBuffer
		}
		b.ptr = c.api.SVMAlloc(raw, flags, size, alignment)
		if b.ptr == nil {
			b.ctx.Release()
			exceptions.Panicf("cl: SVMAlloc of %s (alignment %d, flags 0x%x) failed", humanize.Bytes(uint64(size)), alignment, flags)
		}
	}
	runtime.SetFinalizer(b, (*SvmBlob).finalize)
	klog.V(1).Infof("cl: allocated %s", b)
	return b
}

// Len returns the size of the blob in bytes.
func (b *SvmBlob) Len() int {
	return b.size
}

func (b *SvmBlob) svmSpan() (*SvmBlob, span) {
	return b, span{0, b.size}
}

// IsFineGrained returns whether the blob was allocated as a fine-grained buffer.
func (b *SvmBlob) IsFineGrained() bool {
	return b.fine
}

// Slice returns the sub-range [start, end) of the blob. It panics if the range is out of bounds.
func (b *SvmBlob) Slice(start, end int) SvmSlice {
	return newSvmSlice(b, span{0, b.size}, start, end)
}

// Context returns the context of the blob. The caller owns the returned context.
func (b *SvmBlob) Context() *Context {
	b.UnsafePointer()
	return b.ctx.Clone()
}

// UnsafePointer returns the SVM pointer of the blob. Empty blobs return a non-nil sentinel that must
// not be dereferenced.
//
// It panics if the blob was released.
func (b *SvmBlob) UnsafePointer() unsafe.Pointer {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pointerLocked()
}

func (b *SvmBlob) pointerLocked() unsafe.Pointer {
	if b.ptr == nil {
		exceptions.Panicf("cl: SVM blob used after being freed")
	}
	return b.ptr
}

// IsNil returns whether the blob is nil or was freed.
func (b *SvmBlob) IsNil() bool {
	if b == nil {
		return true
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ptr == nil
}

// take moves the pointer out of the blob, to be freed. It panics if any range is still mapped.
func (b *SvmBlob) take(call string) unsafe.Pointer {
	b.mu.Lock()
	defer b.mu.Unlock()
	ptr := b.pointerLocked()
	if len(b.mapped) > 0 {
		exceptions.Panicf("cl: %s: SVM blob of %s still has %d active maps", call, humanize.Bytes(uint64(b.size)), len(b.mapped))
	}
	b.ptr = nil
	runtime.SetFinalizer(b, nil)
	return ptr
}

// Release frees the blob synchronously (native SVMFree). It is a no-op if it was already freed.
//
// Any operation still using the blob must be complete: see CommandQueue.Free for the asynchronous version.
// It panics if the blob is still mapped.
func (b *SvmBlob) Release() {
	if b.IsNil() {
		return
	}
	ptr := b.take("SvmBlob.Release")
	if b.size > 0 {
		b.ctx.api.SVMFree(b.ctx.UnsafeRaw(), ptr)
	}
	b.ctx.Release()
}

func (b *SvmBlob) finalize() {
	if b.ptr == nil {
		return
	}
	klog.Warningf("cl: SVM blob of %s garbage collected without being freed", humanize.Bytes(uint64(b.size)))
	if b.size > 0 && !b.ctx.IsNil() {
		b.ctx.api.SVMFree(b.ctx.UnsafeRaw(), b.ptr)
	}
	b.ptr = nil
	b.ctx.Release()
}

// String implements fmt.Stringer.
func (b *SvmBlob) String() string {
	grain := "coarse"
	if b.fine {
		grain = "fine"
	}
	if b.IsNil() {
		return fmt.Sprintf("<freed SVM blob of %s>", humanize.Bytes(uint64(b.size)))
	}
	return fmt.Sprintf("SVM blob of %s (%s-grained) at %p", humanize.Bytes(uint64(b.size)), grain, b.UnsafePointer())
}

// checkContext panics if the blob doesn't belong to the queue context.
func (b *SvmBlob) checkContext(call string, q *CommandQueue) {
	if b.ctx.api != q.api || b.ctx.UnsafeRaw() != q.ctx.UnsafeRaw() {
		exceptions.Panicf("cl: %s: SVM blob belongs to %s, the queue to %s", call, b.ctx, q.ctx)
	}
}

// addMap registers an active host map of s. It panics if it overlaps another active map.
func (b *SvmBlob) addMap(call string, s span) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pointerLocked()
	for _, other := range b.mapped {
		if s.overlaps(other) || (s == other) {
			exceptions.Panicf("cl: %s: range [%d, %d) overlaps active map [%d, %d)", call, s.start, s.end, other.start, other.end)
		}
	}
	b.mapped = append(b.mapped, s)
}

func (b *SvmBlob) removeMap(s span) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, other := range b.mapped {
		if other == s {
			b.mapped = append(b.mapped[:i], b.mapped[i+1:]...)
			return
		}
	}
}

// pointerAt returns the pointer to the start of s, checking that it doesn't overlap any active map.
func (b *SvmBlob) pointerAt(call string, s span) unsafe.Pointer {
	b.mu.Lock()
	defer b.mu.Unlock()
	ptr := b.pointerLocked()
	for _, other := range b.mapped {
		if s.overlaps(other) {
			exceptions.Panicf("cl: %s: range [%d, %d) is mapped to the host as [%d, %d)", call, s.start, s.end, other.start, other.end)
		}
	}
	if s.start == s.end {
		return ptr
	}
	return unsafe.Add(ptr, s.start)
}

// SvmSlice is a view of the range [start, end) of an SvmBlob. It doesn't own the blob.
type SvmSlice struct {
	blob *SvmBlob
	span span
}

func newSvmSlice(blob *SvmBlob, parent span, start, end int) SvmSlice {
	if start < 0 || end < start || end > parent.end-parent.start {
		exceptions.Panicf("cl: invalid SVM slice [%d, %d) of a region of %d bytes", start, end, parent.end-parent.start)
	}
	return SvmSlice{blob: blob, span: span{parent.start + start, parent.start + end}}
}

// Len returns the size of the slice in bytes.
func (s SvmSlice) Len() int {
	return s.span.end - s.span.start
}

func (s SvmSlice) svmSpan() (*SvmBlob, span) {
	if s.blob == nil {
		exceptions.Panicf("cl: using an empty SvmSlice")
	}
	return s.blob, s.span
}

// Blob returns the blob of the slice.
func (s SvmSlice) Blob() *SvmBlob {
	return s.blob
}

// Start returns the offset of the slice in its blob.
func (s SvmSlice) Start() int {
	return s.span.start
}

// Slice returns the sub-range [start, end) of the slice.
func (s SvmSlice) Slice(start, end int) SvmSlice {
	return newSvmSlice(s.blob, s.span, start, end)
}

// String implements fmt.Stringer.
func (s SvmSlice) String() string {
	return fmt.Sprintf("[%d:%d] of %s", s.span.start, s.span.end, s.blob)
}

// Free frees the blob asynchronously, after the node wait list, and consumes it: the blob is no longer
// usable once Free returns.
//
// It panics if the blob is still mapped or belongs to another context.
func (q *CommandQueue) Free(blob *SvmBlob, node *EventNode) {
	blob.checkContext("Free", q)
	ptr := blob.take("Free")
	defer blob.ctx.Release()
	if blob.size == 0 {
		q.marker("Free", node)
		return
	}
	q.submit("EnqueueSVMFree", node, func(raw native.Queue, wait []native.Event, record *native.Event) native.ErrorCode {
		return q.api.EnqueueSVMFree(raw, []unsafe.Pointer{ptr}, wait, record)
	})
}

// Memcpy copies src to dst asynchronously. Both regions must have exactly the same length, belong to the
// queue context and not be mapped.
func (q *CommandQueue) Memcpy(dst, src SvmRegion, node *EventNode) {
	if dst.Len() != src.Len() {
		exceptions.Panicf("cl.Memcpy: destination has %d bytes, source has %d bytes", dst.Len(), src.Len())
	}
	dstBlob, dstSpan := dst.svmSpan()
	srcBlob, srcSpan := src.svmSpan()
	dstBlob.checkContext("Memcpy", q)
	srcBlob.checkContext("Memcpy", q)
	dstPtr := dstBlob.pointerAt("Memcpy", dstSpan)
	srcPtr := srcBlob.pointerAt("Memcpy", srcSpan)
	if dst.Len() == 0 {
		q.marker("Memcpy", node)
		return
	}
	q.submit("EnqueueSVMMemcpy", node, func(raw native.Queue, wait []native.Event, record *native.Event) native.ErrorCode {
		return q.api.EnqueueSVMMemcpy(raw, false, dstPtr, srcPtr, dst.Len(), wait, record)
	})
	runtime.KeepAlive(dstBlob)
	runtime.KeepAlive(srcBlob)
}

// hostBytes returns the pointer and size in bytes of a host slice.
func hostBytes[T any](values []T) (unsafe.Pointer, int) {
	if len(values) == 0 {
		return nil, 0
	}
	var zero T
	return unsafe.Pointer(&values[0]), len(values) * int(unsafe.Sizeof(zero))
}

// MemcpyFromHost copies the host slice src to dst asynchronously. The size in bytes of src must be exactly
// dst.Len().
//
// src is pinned, and must not be modified until the copy completes.
func MemcpyFromHost[T any](q *CommandQueue, dst SvmRegion, src []T, node *EventNode) {
	srcPtr, size := hostBytes(src)
	if size != dst.Len() {
		exceptions.Panicf("cl.MemcpyFromHost: destination has %d bytes, source has %d bytes", dst.Len(), size)
	}
	dstBlob, dstSpan := dst.svmSpan()
	dstBlob.checkContext("MemcpyFromHost", q)
	dstPtr := dstBlob.pointerAt("MemcpyFromHost", dstSpan)
	if size == 0 {
		q.marker("MemcpyFromHost", node)
		return
	}
	pinner := &runtime.Pinner{}
	pinner.Pin(srcPtr)
	q.submitPinned("EnqueueSVMMemcpy(from host)", node, pinner, func(raw native.Queue, wait []native.Event, record *native.Event) native.ErrorCode {
		return q.api.EnqueueSVMMemcpy(raw, false, dstPtr, srcPtr, size, wait, record)
	})
	runtime.KeepAlive(dstBlob)
}

// MemcpyToHost copies src to the host slice dst asynchronously. The size in bytes of dst must be exactly
// src.Len().
//
// dst is pinned, and its contents are only valid after the copy completes.
func MemcpyToHost[T any](q *CommandQueue, dst []T, src SvmRegion, node *EventNode) {
	dstPtr, size := hostBytes(dst)
	if size != src.Len() {
		exceptions.Panicf("cl.MemcpyToHost: destination has %d bytes, source has %d bytes", size, src.Len())
	}
	srcBlob, srcSpan := src.svmSpan()
	srcBlob.checkContext("MemcpyToHost", q)
	srcPtr := srcBlob.pointerAt("MemcpyToHost", srcSpan)
	if size == 0 {
		q.marker("MemcpyToHost", node)
		return
	}
	pinner := &runtime.Pinner{}
	pinner.Pin(dstPtr)
	q.submitPinned("EnqueueSVMMemcpy(to host)", node, pinner, func(raw native.Queue, wait []native.Event, record *native.Event) native.ErrorCode {
		return q.api.EnqueueSVMMemcpy(raw, false, dstPtr, srcPtr, size, wait, record)
	})
	runtime.KeepAlive(srcBlob)
}
