// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package simcl

import (
	"slices"
	"unsafe"

	"github.com/gomlx/clrt/pkg/cl/native"
	"k8s.io/klog/v2"
)

// minWorkItemsPerTask is the minimum number of work-items executed by each parallel task.
const minWorkItemsPerTask = 256

type kernel struct {
	refCount
	program *program
	decl    *kernelDecl
	args    []argSlot
}

// argSlot holds the value bound to a kernel parameter.
type argSlot struct {
	set   bool
	value []byte
	ptr   unsafe.Pointer
}

func (k *kernel) kind() string { return "kernel" }

func (k *kernel) destroyLocked(d *Driver) {
	k.program.numKernels--
	d.releaseLocked(k.program)
}

// newKernelLocked creates a kernel object for decl. It must be called with d.mu locked.
func (d *Driver) newKernelLocked(p *program, decl *kernelDecl) *kernel {
	k := &kernel{program: p, decl: decl, args: make([]argSlot, len(decl.params))}
	retainLocked(p)
	p.numKernels++
	d.registerLocked(k)
	return k
}

// CreateKernel implements native.API.
func (d *Driver) CreateKernel(handle native.Program, name string) (native.Kernel, native.ErrorCode) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := lookupLocked[*program](d, uintptr(handle))
	if !ok {
		return 0, native.InvalidProgram
	}
	if p.buildStatus != buildSuccess {
		return 0, native.InvalidProgramExecutable
	}
	idx := slices.IndexFunc(p.kernels, func(decl *kernelDecl) bool { return decl.name == name })
	if idx == -1 {
		return 0, native.InvalidKernelName
	}
	k := d.newKernelLocked(p, p.kernels[idx])
	return native.Kernel(k.handle), native.Success
}

// CreateKernelsInProgram implements native.API.
func (d *Driver) CreateKernelsInProgram(handle native.Program, kernels []native.Kernel) (int, native.ErrorCode) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := lookupLocked[*program](d, uintptr(handle))
	if !ok {
		return 0, native.InvalidProgram
	}
	if p.buildStatus != buildSuccess {
		return 0, native.InvalidProgramExecutable
	}
	if kernels == nil {
		return len(p.kernels), native.Success
	}
	if len(kernels) < len(p.kernels) {
		return 0, native.InvalidValue
	}
	for i, decl := range p.kernels {
		kernels[i] = native.Kernel(d.newKernelLocked(p, decl).handle)
	}
	return len(p.kernels), native.Success
}

// GetKernelInfo implements native.API.
func (d *Driver) GetKernelInfo(handle native.Kernel, param native.KernelInfo, value []byte) (int, native.ErrorCode) {
	k, ok := lookup[*kernel](d, uintptr(handle))
	if !ok {
		return 0, native.InvalidKernel
	}
	switch param {
	case native.KernelFunctionName:
		return writeInfo(value, stringInfo(k.decl.name))
	case native.KernelNumArgs:
		return writeInfo(value, uint32Info(uint32(len(k.decl.params))))
	case native.KernelReferenceCount:
		return refCountInfo(d, k, value)
	case native.KernelContext:
		return writeInfo(value, handleInfo(k.program.ctx.handle))
	case native.KernelProgram:
		return writeInfo(value, handleInfo(k.program.handle))
	}
	return 0, native.InvalidValue
}

// RetainKernel implements native.API.
func (d *Driver) RetainKernel(handle native.Kernel) native.ErrorCode {
	return retain[*kernel](d, uintptr(handle), native.InvalidKernel)
}

// ReleaseKernel implements native.API.
func (d *Driver) ReleaseKernel(handle native.Kernel) native.ErrorCode {
	return release[*kernel](d, uintptr(handle), native.InvalidKernel)
}

// SetKernelArg implements native.API for by-value parameters.
// Pointer parameters only accept a nil value, which binds a NULL pointer.
func (d *Driver) SetKernelArg(handle native.Kernel, index int, value []byte) native.ErrorCode {
	d.mu.Lock()
	defer d.mu.Unlock()
	k, ok := lookupLocked[*kernel](d, uintptr(handle))
	if !ok {
		return native.InvalidKernel
	}
	if index < 0 || index >= len(k.args) {
		return native.InvalidArgIndex
	}
	p := k.decl.params[index]
	if p.pointer {
		if value != nil {
			return native.InvalidArgValue
		}
		k.args[index] = argSlot{set: true}
		return native.Success
	}
	if len(value) != p.size {
		return native.InvalidArgSize
	}
	k.args[index] = argSlot{set: true, value: slices.Clone(value)}
	return native.Success
}

// SetKernelArgSVMPointer implements native.API. The pointer must be inside an SVM allocation of the kernel context.
func (d *Driver) SetKernelArgSVMPointer(handle native.Kernel, index int, ptr unsafe.Pointer) native.ErrorCode {
	d.mu.Lock()
	defer d.mu.Unlock()
	k, ok := lookupLocked[*kernel](d, uintptr(handle))
	if !ok {
		return native.InvalidKernel
	}
	if index < 0 || index >= len(k.args) {
		return native.InvalidArgIndex
	}
	if !k.decl.params[index].pointer {
		return native.InvalidArgValue
	}
	if ptr != nil {
		if a, _ := d.findAllocationLocked(uintptr(ptr)); a == nil || a.ctx != k.program.ctx {
			return native.InvalidArgValue
		}
	}
	k.args[index] = argSlot{set: true, ptr: ptr}
	return native.Success
}

// captureArgsLocked returns the current kernel arguments, as seen by the kernel implementation.
func (d *Driver) captureArgsLocked(k *kernel) (Args, native.ErrorCode) {
	args := make(Args, len(k.args))
	for i, slot := range k.args {
		switch {
		case !slot.set:
			return nil, native.InvalidKernelArgs
		case slot.ptr != nil:
			a, offset := d.findAllocationLocked(uintptr(slot.ptr))
			if a == nil {
				// The allocation was freed after it was bound.
				return nil, native.InvalidKernelArgs
			}
			args[i].mem = a.view(offset, a.size-offset)
		default:
			args[i].value = slot.value
		}
	}
	return args, native.Success
}

// EnqueueNDRangeKernel implements native.API.
//
// Offset and local are optional (nil). If local is nil, each dimension is one work-group.
func (d *Driver) EnqueueNDRangeKernel(qHandle native.Queue, kHandle native.Kernel, offset, global, local []int,
	wait []native.Event, record *native.Event) native.ErrorCode {
	dims := len(global)
	if dims < 1 || dims > maxWorkItemDims {
		return native.InvalidWorkDimension
	}
	if (offset != nil && len(offset) != dims) || (local != nil && len(local) != dims) {
		return native.InvalidValue
	}
	var item WorkItem
	item.dims = dims
	total := 1
	for dim := range maxWorkItemDims {
		item.globalSize[dim], item.localSize[dim] = 1, 1
		if dim >= dims {
			continue
		}
		if global[dim] <= 0 {
			return native.InvalidGlobalWorkSize
		}
		item.globalSize[dim] = global[dim]
		item.localSize[dim] = global[dim]
		if local != nil {
			if local[dim] <= 0 || global[dim]%local[dim] != 0 {
				return native.InvalidWorkGroupSize
			}
			item.localSize[dim] = local[dim]
		}
		if offset != nil {
			if offset[dim] < 0 {
				return native.InvalidGlobalOffset
			}
			item.globalOffset[dim] = offset[dim]
		}
		total *= global[dim]
	}

	q, code := d.lockQueue(qHandle)
	if code != native.Success {
		return code
	}
	k, ok := lookupLocked[*kernel](d, uintptr(kHandle))
	if !ok {
		d.mu.Unlock()
		return native.InvalidKernel
	}
	if k.program.ctx != q.ctx {
		d.mu.Unlock()
		return native.InvalidContext
	}
	args, code := d.captureArgsLocked(k)
	if code != native.Success {
		d.mu.Unlock()
		return code
	}
	fn, name := k.decl.impl.fn, k.decl.name
	_, code = d.enqueueLocked(q, "ndrange("+name+")", wait, record, func() native.ExecutionStatus {
		d.runNDRange(fn, args, item, total)
		d.updateStats(func(s *Stats) {
			s.KernelLaunches++
			s.WorkItems += int64(total)
		})
		return native.Complete
	})
	if code == native.Success {
		klog.V(2).Infof("simcl: kernel %q enqueued with global=%v local=%v offset=%v", name, global, local, offset)
	}
	return code
}

// runNDRange executes fn for all work-items, in parallel using the driver pool.
func (d *Driver) runNDRange(fn KernelFunc, args Args, template WorkItem, total int) {
	d.pool.ForChunks(total, minWorkItemsPerTask, func(start, end int) {
		item := template
		for linear := start; linear < end; linear++ {
			rest := linear
			for dim := range maxWorkItemDims {
				item.globalID[dim] = template.globalOffset[dim] + rest%template.globalSize[dim]
				rest /= template.globalSize[dim]
			}
			fn(&item, args)
		}
	})
}
