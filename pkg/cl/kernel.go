// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package cl

import (
	"fmt"
	"runtime"

	"github.com/gomlx/clrt/pkg/cl/native"
	"github.com/gomlx/exceptions"
	"k8s.io/klog/v2"
)

// Kernel is a kernel function of a built Program, with its bound arguments.
//
// Binding arguments is not safe for concurrent use: use a Kernel per goroutine (see Program.GetKernel),
// or synchronize externally.
type Kernel struct {
	*handle[native.Kernel]
	name    string
	numArgs int
}

// KernelFromRaw wraps a raw kernel handle, taking ownership of one reference: the caller must have retained it.
func KernelFromRaw(api native.API, raw native.Kernel) *Kernel {
	k := &Kernel{handle: newHandle("kernel", api, raw, releaseKernel)}
	k.name = queryString("GetKernelInfo(FunctionName)", func(value []byte) (int, native.ErrorCode) {
		return api.GetKernelInfo(raw, native.KernelFunctionName, value)
	})
	k.numArgs = int(queryUint32("GetKernelInfo(NumArgs)", func(value []byte) (int, native.ErrorCode) {
		return api.GetKernelInfo(raw, native.KernelNumArgs, value)
	}))
	return k
}

// Clone returns a new wrapper of the same kernel, with its own reference.
//
// Notice the arguments are bound to the native kernel, so they are shared with the clone.
func (k *Kernel) Clone() *Kernel {
	return &Kernel{
		handle:  newHandle("kernel", k.api, k.retained(retainKernel), releaseKernel),
		name:    k.name,
		numArgs: k.numArgs,
	}
}

// Name of the kernel function.
func (k *Kernel) Name() string { return k.name }

// NumArgs returns the number of parameters of the kernel function.
func (k *Kernel) NumArgs() int { return k.numArgs }

// SetArg binds arg to the parameter index. It returns the kernel itself, so calls can be chained.
//
// The binding is immediate: blobs bound to the kernel must stay alive until the launches using them complete.
func (k *Kernel) SetArg(index int, arg Argument) *Kernel {
	if index < 0 || index >= k.numArgs {
		exceptions.Panicf("cl: kernel %q has %d parameters, can't set argument #%d", k.name, k.numArgs, index)
	}
	if arg == nil {
		exceptions.Panicf("cl: kernel %q argument #%d is nil", k.name, index)
	}
	check(fmt.Sprintf("SetKernelArg(%s, #%d)", k.name, index), arg.setArg(k.api, k.UnsafeRaw(), index))
	klog.V(2).Infof("cl: kernel %q argument #%d = %s", k.name, index, arg)
	return k
}

// SetArgs binds all the kernel parameters, in order. It returns the kernel itself.
func (k *Kernel) SetArgs(args ...Argument) *Kernel {
	if len(args) != k.numArgs {
		exceptions.Panicf("cl: kernel %q has %d parameters, %d arguments given", k.name, k.numArgs, len(args))
	}
	for i, arg := range args {
		k.SetArg(i, arg)
	}
	return k
}

// Launch enqueues the kernel on q over the global NDRange, after the node wait list.
//
// global has 1 to 3 dimensions. offset and local are optional (nil): if given, they must have the same
// number of dimensions as global. All arguments must have been bound.
func (k *Kernel) Launch(offset, global, local []int, q *CommandQueue, node *EventNode) {
	dims := len(global)
	if dims < 1 || dims > 3 {
		exceptions.Panicf("cl: kernel %q launched with %d dimensions, only 1 to 3 are supported", k.name, dims)
	}
	if offset != nil && len(offset) != dims {
		exceptions.Panicf("cl: kernel %q launched with %d global dimensions but %d offset dimensions", k.name, dims, len(offset))
	}
	if local != nil && len(local) != dims {
		exceptions.Panicf("cl: kernel %q launched with %d global dimensions but %d local dimensions", k.name, dims, len(local))
	}
	if k.api != q.api {
		exceptions.Panicf("cl: kernel %q launched on a queue of another driver", k.name)
	}
	raw := k.UnsafeRaw()
	q.submit("EnqueueNDRangeKernel("+k.name+")", node, func(queue native.Queue, wait []native.Event, record *native.Event) native.ErrorCode {
		return k.api.EnqueueNDRangeKernel(queue, raw, offset, global, local, wait, record)
	})
	runtime.KeepAlive(k)
}

// String implements fmt.Stringer.
func (k *Kernel) String() string {
	if k.IsNil() {
		return fmt.Sprintf("<released kernel %q>", k.name)
	}
	return fmt.Sprintf("kernel %q (%d parameters)", k.name, k.numArgs)
}
