// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package simcl

import (
	"slices"
	"unsafe"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/clrt/pkg/cl/native"
	"golang.org/x/exp/constraints"
	"k8s.io/klog/v2"
)

const (
	kindSvm = "svm"

	// defaultSvmAlignment is used when SVMAlloc is called with alignment 0: the size of the largest
	// OpenCL C built-in type (long16).
	defaultSvmAlignment = 128

	// invalidatedByte fills host memory mapped with MapWriteInvalidateRegion on coarse-grained
	// allocations, so reading it shows garbage instead of the device contents.
	invalidatedByte = 0xCD
)

// allocation is an SVM allocation.
//
// Fine-grained allocations are plain shared memory. Coarse-grained allocations have a separate
// device view: the host view is only synchronized with it by map (device to host) and unmap
// (host to device, if mapped for writing). Kernels and copies always use the device view.
type allocation struct {
	ctx     *context
	base    uintptr
	size    int
	fine    bool
	storage []byte // Owns the host memory, including the alignment padding.
	host    []byte
	device  []byte // nil for fine-grained allocations.
	maps    []*mapping
}

// mapping is an active host mapping of a range of an allocation.
type mapping struct {
	offset, size int
	flags        native.MapFlags
}

func alignUp[T constraints.Integer](value, alignment T) T {
	return (value + alignment - 1) / alignment * alignment
}

func isPowerOf2[T constraints.Integer](value T) bool {
	return value > 0 && value&(value-1) == 0
}

// view returns the range of the allocation used by the device.
func (a *allocation) view(offset, size int) []byte {
	if a.fine {
		return a.host[offset : offset+size : offset+size]
	}
	return a.device[offset : offset+size : offset+size]
}

// findAllocationLocked returns the allocation containing address, and the offset within it.
// It must be called with d.mu locked.
func (d *Driver) findAllocationLocked(address uintptr) (*allocation, int) {
	idx, found := slices.BinarySearchFunc(d.allocations, address, func(a *allocation, address uintptr) int {
		switch {
		case a.base+uintptr(a.size) <= address:
			return -1
		case a.base > address:
			return 1
		}
		return 0
	})
	if !found {
		return nil, 0
	}
	a := d.allocations[idx]
	return a, int(address - a.base)
}

// resolveLocked returns the device view of size bytes starting at ptr: either a range of an
// SVM allocation of ctx, or plain host memory.
func (d *Driver) resolveLocked(ptr unsafe.Pointer, size int, ctx *context) ([]byte, native.ErrorCode) {
	if ptr == nil || size < 0 {
		return nil, native.InvalidValue
	}
	a, offset := d.findAllocationLocked(uintptr(ptr))
	if a == nil {
		return unsafe.Slice((*byte)(ptr), size), native.Success
	}
	if a.ctx != ctx || offset+size > a.size {
		return nil, native.InvalidValue
	}
	return a.view(offset, size), native.Success
}

// SVMAlloc implements native.API.
func (d *Driver) SVMAlloc(ctxHandle native.Context, flags native.MemFlags, size, alignment int) unsafe.Pointer {
	d.mu.Lock()
	defer d.mu.Unlock()
	ctx, ok := lookupLocked[*context](d, uintptr(ctxHandle))
	if !ok {
		return nil
	}
	caps := ctx.svmCapabilities()
	fine := flags&native.MemSvmFineGrainBuffer != 0
	access := flags & (native.MemReadWrite | native.MemWriteOnly | native.MemReadOnly)
	switch {
	case size <= 0:
		return nil
	case caps&native.SvmCoarseGrainBuffer == 0:
		return nil
	case fine && caps&native.SvmFineGrainBuffer == 0:
		return nil
	case flags&native.MemSvmAtomics != 0 && (!fine || caps&native.SvmAtomics == 0):
		return nil
	case access != 0 && !isPowerOf2(access):
		return nil
	}
	if alignment == 0 {
		alignment = defaultSvmAlignment
	}
	if !isPowerOf2(alignment) {
		return nil
	}

	a := &allocation{ctx: ctx, size: size, fine: fine}
	a.storage = make([]byte, size+alignment)
	start := uintptr(unsafe.Pointer(&a.storage[0]))
	a.base = alignUp(start, uintptr(alignment))
	offset := int(a.base - start)
	a.host = a.storage[offset : offset+size : offset+size]
	if !fine {
		a.device = make([]byte, size)
	}
	idx, _ := slices.BinarySearchFunc(d.allocations, a.base, func(a *allocation, address uintptr) int {
		if a.base < address {
			return -1
		} else if a.base > address {
			return 1
		}
		return 0
	})
	d.allocations = slices.Insert(d.allocations, idx, a)
	retainLocked(ctx)

	d.stats.Allocations++
	d.stats.BytesAllocated += int64(size)
	d.stats.BytesLive += int64(size)
	d.stats.PeakLive = max(d.stats.PeakLive, d.stats.BytesLive)
	klog.V(2).Infof("simcl: SVMAlloc(%s, fine=%v) -> 0x%x", humanize.Bytes(uint64(size)), fine, a.base)
	return unsafe.Pointer(&a.host[0])
}

// freeLocked removes the allocation starting at ptr. It must be called with d.mu locked.
func (d *Driver) freeLocked(ptr unsafe.Pointer) bool {
	a, offset := d.findAllocationLocked(uintptr(ptr))
	if a == nil || offset != 0 {
		return false
	}
	if len(a.maps) > 0 {
		klog.Warningf("simcl: SVM allocation 0x%x freed while still mapped (%d active maps)", a.base, len(a.maps))
	}
	d.allocations = slices.DeleteFunc(d.allocations, func(other *allocation) bool { return other == a })
	d.releaseLocked(a.ctx)
	d.stats.Frees++
	d.stats.BytesLive -= int64(a.size)
	klog.V(2).Infof("simcl: freed SVM allocation 0x%x (%s)", a.base, humanize.Bytes(uint64(a.size)))
	return true
}

// SVMFree implements native.API.
func (d *Driver) SVMFree(ctxHandle native.Context, ptr unsafe.Pointer) {
	if ptr == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := lookupLocked[*context](d, uintptr(ctxHandle)); !ok {
		klog.Errorf("simcl: SVMFree(0x%x) with invalid context 0x%x", uintptr(ptr), uintptr(ctxHandle))
		return
	}
	if !d.freeLocked(ptr) {
		klog.Errorf("simcl: SVMFree(0x%x): not an SVM allocation", uintptr(ptr))
	}
}

// lockQueue locks d.mu and returns the queue. If the queue is invalid, d.mu is unlocked.
func (d *Driver) lockQueue(handle native.Queue) (*queue, native.ErrorCode) {
	d.mu.Lock()
	q, ok := lookupLocked[*queue](d, uintptr(handle))
	if !ok {
		d.mu.Unlock()
		return nil, native.InvalidCommandQueue
	}
	return q, native.Success
}

// EnqueueSVMFree implements native.API.
func (d *Driver) EnqueueSVMFree(handle native.Queue, ptrs []unsafe.Pointer, wait []native.Event, record *native.Event) native.ErrorCode {
	if len(ptrs) == 0 {
		return native.InvalidValue
	}
	q, code := d.lockQueue(handle)
	if code != native.Success {
		return code
	}
	for _, ptr := range ptrs {
		if ptr == nil {
			continue
		}
		if a, offset := d.findAllocationLocked(uintptr(ptr)); a == nil || offset != 0 || a.ctx != q.ctx {
			d.mu.Unlock()
			return native.InvalidValue
		}
	}
	ptrs = slices.Clone(ptrs)
	_, code = d.enqueueLocked(q, "svm-free", wait, record, func() native.ExecutionStatus {
		d.mu.Lock()
		defer d.mu.Unlock()
		for _, ptr := range ptrs {
			if ptr != nil && !d.freeLocked(ptr) {
				klog.Errorf("simcl: EnqueueSVMFree(0x%x): allocation was already freed", uintptr(ptr))
			}
		}
		return native.Complete
	})
	return code
}

// EnqueueSVMMemcpy implements native.API.
func (d *Driver) EnqueueSVMMemcpy(handle native.Queue, blocking bool, dst, src unsafe.Pointer, size int,
	wait []native.Event, record *native.Event) native.ErrorCode {
	q, code := d.lockQueue(handle)
	if code != native.Success {
		return code
	}
	dstView, code := d.resolveLocked(dst, size, q.ctx)
	var srcView []byte
	if code == native.Success {
		srcView, code = d.resolveLocked(src, size, q.ctx)
	}
	if code == native.Success && overlaps(dstView, srcView) {
		code = native.MemCopyOverlap
	}
	if code != native.Success {
		d.mu.Unlock()
		return code
	}
	done, code := d.enqueueLocked(q, "svm-memcpy", wait, record, func() native.ExecutionStatus {
		copy(dstView, srcView)
		d.updateStats(func(s *Stats) { s.BytesCopied += int64(size) })
		return native.Complete
	})
	if code != native.Success {
		return code
	}
	return finishBlocking(done, blocking)
}

func overlaps(a, b []byte) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	aStart, bStart := uintptr(unsafe.Pointer(&a[0])), uintptr(unsafe.Pointer(&b[0]))
	return aStart < bStart+uintptr(len(b)) && bStart < aStart+uintptr(len(a))
}

// EnqueueSVMMap implements native.API.
func (d *Driver) EnqueueSVMMap(handle native.Queue, blocking bool, flags native.MapFlags, ptr unsafe.Pointer, size int,
	wait []native.Event, record *native.Event) native.ErrorCode {
	if flags == 0 || size <= 0 ||
		(flags&native.MapWriteInvalidateRegion != 0 && flags&(native.MapRead|native.MapWrite) != 0) {
		return native.InvalidValue
	}
	q, code := d.lockQueue(handle)
	if code != native.Success {
		return code
	}
	a, offset := d.findAllocationLocked(uintptr(ptr))
	if a == nil || a.ctx != q.ctx || offset+size > a.size {
		d.mu.Unlock()
		return native.InvalidValue
	}
	m := &mapping{offset: offset, size: size, flags: flags}
	a.maps = append(a.maps, m)
	done, code := d.enqueueLocked(q, "svm-map", wait, record, func() native.ExecutionStatus {
		if a.fine {
			return native.Complete
		}
		host := a.host[offset : offset+size]
		if flags&native.MapWriteInvalidateRegion != 0 {
			for i := range host {
				host[i] = invalidatedByte
			}
		} else {
			copy(host, a.device[offset:offset+size])
		}
		return native.Complete
	})
	if code != native.Success {
		d.mu.Lock()
		a.maps = slices.DeleteFunc(a.maps, func(other *mapping) bool { return other == m })
		d.mu.Unlock()
		return code
	}
	return finishBlocking(done, blocking)
}

// EnqueueSVMUnmap implements native.API.
func (d *Driver) EnqueueSVMUnmap(handle native.Queue, ptr unsafe.Pointer, wait []native.Event, record *native.Event) native.ErrorCode {
	q, code := d.lockQueue(handle)
	if code != native.Success {
		return code
	}
	a, offset := d.findAllocationLocked(uintptr(ptr))
	if a == nil || a.ctx != q.ctx {
		d.mu.Unlock()
		return native.InvalidValue
	}
	idx := slices.IndexFunc(a.maps, func(m *mapping) bool { return m.offset == offset })
	if idx == -1 {
		d.mu.Unlock()
		return native.InvalidValue
	}
	m := a.maps[idx]
	a.maps = slices.Delete(a.maps, idx, idx+1)
	_, code = d.enqueueLocked(q, "svm-unmap", wait, record, func() native.ExecutionStatus {
		if !a.fine && m.flags&(native.MapWrite|native.MapWriteInvalidateRegion) != 0 {
			copy(a.device[m.offset:m.offset+m.size], a.host[m.offset:m.offset+m.size])
		}
		return native.Complete
	})
	return code
}
