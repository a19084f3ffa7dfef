// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package cl

import (
	"encoding/binary"
	"fmt"
	"runtime"
	"sync"

	"github.com/gomlx/clrt/pkg/cl/native"
	"github.com/gomlx/exceptions"
	"k8s.io/klog/v2"
)

// CommandQueue is an in-order command queue of a context device.
//
// All asynchronous operations (kernel launches, SVM copies, maps, unmaps and frees) are submitted
// to a queue. It holds a reference to its context.
type CommandQueue struct {
	*handle[native.Queue]
	ctx       *Context
	fineGrain bool
}

func newCommandQueue(api native.API, raw native.Queue, ctx *Context) *CommandQueue {
	q := &CommandQueue{
		handle:    newHandle("command queue", api, raw, releaseQueue),
		ctx:       ctx,
		fineGrain: ctx.SvmCapabilities().FineGrained(),
	}
	klog.V(1).Infof("cl: created command queue 0x%x (fine-grained SVM: %v)", raw, q.fineGrain)
	return q
}

// Context returns the context of the queue, queried from the native queue. The caller owns the
// returned context.
func (q *CommandQueue) Context() *Context {
	raw := q.UnsafeRaw()
	ctxRaw := native.Context(queryHandle("GetCommandQueueInfo(Context)", func(value []byte) (int, native.ErrorCode) {
		return q.api.GetCommandQueueInfo(raw, native.QueueContext, value)
	}))
	check("RetainContext", q.api.RetainContext(ctxRaw))
	return ContextFromRaw(q.api, ctxRaw)
}

// Device returns the device of the queue. The caller owns the returned device.
func (q *CommandQueue) Device() *Device {
	q.UnsafeRaw()
	return q.ctx.Device()
}

// FineGrainSvm returns whether the queue device supports fine-grained SVM, in which case maps and
// unmaps are not issued to the device.
func (q *CommandQueue) FineGrainSvm() bool {
	return q.fineGrain
}

// Flush submits all queued commands to the device, without waiting for them.
func (q *CommandQueue) Flush() {
	check("Flush", q.api.Flush(q.UnsafeRaw()))
}

// Finish blocks until all commands submitted to the queue are completed.
func (q *CommandQueue) Finish() {
	check("Finish", q.api.Finish(q.UnsafeRaw()))
	hostPins.sweep()
}

// Wait makes all commands submitted to the queue after this call wait for the given events, without
// blocking the host. The events are not consumed: the caller still owns them.
func (q *CommandQueue) Wait(events ...*Event) {
	if len(events) == 0 {
		return
	}
	raws := make([]native.Event, len(events))
	for i, e := range events {
		raws[i] = e.UnsafeRaw()
	}
	check("EnqueueWaitForEvents", q.api.EnqueueWaitForEvents(q.UnsafeRaw(), raws))
	runtime.KeepAlive(events)
}

// Clone returns a new wrapper of the same queue, with its own reference.
func (q *CommandQueue) Clone() *CommandQueue {
	raw := q.retained(retainQueue)
	return &CommandQueue{
		handle:    newHandle("command queue", q.api, raw, releaseQueue),
		ctx:       q.ctx.Clone(),
		fineGrain: q.fineGrain,
	}
}

// Release the queue (and its reference to the context). Commands already submitted are still executed.
// It is a no-op if it was already released.
func (q *CommandQueue) Release() {
	q.handle.Release()
	if q.ctx != nil {
		q.ctx.Release()
	}
}

// String implements fmt.Stringer.
func (q *CommandQueue) String() string {
	if q.IsNil() {
		return "<released command queue>"
	}
	return fmt.Sprintf("command queue 0x%x on %s", q.UnsafeRaw(), q.ctx.device.Name())
}

// submit enqueues an operation with the node wait list and record slot.
func (q *CommandQueue) submit(call string, node *EventNode, enqueue func(raw native.Queue, wait []native.Event, record *native.Event) native.ErrorCode) {
	raw := q.UnsafeRaw()
	hostPins.sweep()
	node.submit(call, q.api, func(wait []native.Event, record *native.Event) native.ErrorCode {
		return enqueue(raw, wait, record)
	})
	runtime.KeepAlive(q)
}

// submitPinned is like submit, but it keeps pinner pinned until the operation completes.
// An event is always recorded for that, even if the node doesn't ask for one.
func (q *CommandQueue) submitPinned(call string, node *EventNode, pinner *runtime.Pinner,
	enqueue func(raw native.Queue, wait []native.Event, record *native.Event) native.ErrorCode) {
	var tracked native.Event
	defer func() {
		if tracked == 0 {
			// Submission failed.
			pinner.Unpin()
		}
	}()
	q.submit(call, node, func(raw native.Queue, wait []native.Event, record *native.Event) native.ErrorCode {
		if record == nil {
			code := enqueue(raw, wait, &tracked)
			if code != native.Success {
				tracked = 0
			}
			return code
		}
		code := enqueue(raw, wait, record)
		if code != native.Success {
			return code
		}
		if code = q.api.RetainEvent(*record); code == native.Success {
			tracked = *record
		}
		return code
	})
	hostPins.add(q.api, tracked, pinner)
}

// marker is used by zero-length operations: nothing is transferred, but the node wait list is honoured
// and its record slot filled, with a marker.
func (q *CommandQueue) marker(call string, node *EventNode) {
	if node == nil {
		q.UnsafeRaw()
		return
	}
	q.submit(call, node, func(raw native.Queue, wait []native.Event, record *native.Event) native.ErrorCode {
		if len(wait) == 0 && record == nil {
			return native.Success
		}
		return q.api.EnqueueMarkerWithWaitList(raw, wait, record)
	})
}

// pinTracker keeps host memory used by asynchronous copies pinned until the copies complete.
//
// Pins are kept in a package level tracker, so that they outlive the queue that submitted them.
type pinTracker struct {
	mu   sync.Mutex
	pins []pinnedCopy
}

type pinnedCopy struct {
	api    native.API
	event  native.Event
	pinner *runtime.Pinner
}

var hostPins = &pinTracker{}

func (t *pinTracker) add(api native.API, event native.Event, pinner *runtime.Pinner) {
	if event == 0 {
		exceptions.Panicf("cl: pinning host memory without a completion event")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pins = append(t.pins, pinnedCopy{api: api, event: event, pinner: pinner})
}

// sweep unpins the host memory of completed copies.
func (t *pinTracker) sweep() {
	t.mu.Lock()
	defer t.mu.Unlock()
	kept := t.pins[:0]
	for _, pin := range t.pins {
		if !eventFinished(pin.api, pin.event) {
			kept = append(kept, pin)
			continue
		}
		pin.pinner.Unpin()
		if code := pin.api.ReleaseEvent(pin.event); code != native.Success {
			klog.Errorf("cl: releasing copy event 0x%x failed with %s", pin.event, code)
		}
	}
	clear(t.pins[len(kept):])
	t.pins = kept
}

// numPending returns the number of copies whose host memory is still pinned.
func (t *pinTracker) numPending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pins)
}

// eventFinished returns whether the event completed, successfully or not.
func eventFinished(api native.API, event native.Event) bool {
	var value [4]byte
	if _, code := api.GetEventInfo(event, native.EventCommandExecutionStatus, value[:]); code != native.Success {
		return true
	}
	status := native.ExecutionStatus(int32(binary.NativeEndian.Uint32(value[:])))
	return status <= native.Complete
}
