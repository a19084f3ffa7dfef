// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package simcl

import (
	"sync/atomic"

	"github.com/gomlx/clrt/pkg/cl/native"
	"github.com/gomlx/clrt/pkg/support/xsync"
)

// event tracks the execution status of a command, or of a user event.
//
// The event holds a reference to its context. Commands hold Go pointers to the events
// they wait on or signal, so releasing an event never affects the execution.
type event struct {
	refCount
	ctx   *context
	queue *queue // nil for user events.

	status atomic.Int32
	done   *xsync.Latch[native.ExecutionStatus]
}

func (e *event) kind() string { return "event" }

func (e *event) destroyLocked(d *Driver) {
	d.releaseLocked(e.ctx)
}

func (e *event) isUser() bool { return e.queue == nil }

// newEventLocked creates an event retaining ctx. It must be called with d.mu locked.
func (d *Driver) newEventLocked(ctx *context, q *queue, status native.ExecutionStatus) *event {
	e := &event{ctx: ctx, queue: q, done: xsync.NewLatch[native.ExecutionStatus]()}
	e.status.Store(int32(status))
	retainLocked(ctx)
	d.registerLocked(e)
	return e
}

// currentStatus returns the execution status of the event.
func (e *event) currentStatus() native.ExecutionStatus {
	if status, ok := e.done.Value(); ok {
		return status
	}
	return native.ExecutionStatus(e.status.Load())
}

// complete sets the final status of the event. It returns false if the event was already completed.
func (e *event) complete(status native.ExecutionStatus) bool {
	if !e.done.Trigger(status) {
		return false
	}
	e.status.Store(int32(status))
	return true
}

// CreateUserEvent implements native.API.
func (d *Driver) CreateUserEvent(handle native.Context) (native.Event, native.ErrorCode) {
	d.mu.Lock()
	defer d.mu.Unlock()
	ctx, ok := lookupLocked[*context](d, uintptr(handle))
	if !ok {
		return 0, native.InvalidContext
	}
	e := d.newEventLocked(ctx, nil, native.Submitted)
	return native.Event(e.handle), native.Success
}

// SetUserEventStatus implements native.API.
//
// Status must be Complete or negative (an error), and it can only be set once.
func (d *Driver) SetUserEventStatus(handle native.Event, status native.ExecutionStatus) native.ErrorCode {
	e, ok := lookup[*event](d, uintptr(handle))
	if !ok || !e.isUser() {
		return native.InvalidEvent
	}
	if status > native.Complete {
		return native.InvalidValue
	}
	if !e.complete(status) {
		return native.InvalidOperation
	}
	return native.Success
}

// lookupEventsLocked resolves a list of events that must all belong to ctx (if not nil).
// It must be called with d.mu locked.
func (d *Driver) lookupEventsLocked(handles []native.Event, ctx *context, invalidCode native.ErrorCode) ([]*event, native.ErrorCode) {
	if len(handles) == 0 {
		return nil, native.Success
	}
	events := make([]*event, len(handles))
	for i, h := range handles {
		e, ok := lookupLocked[*event](d, uintptr(h))
		if !ok {
			return nil, invalidCode
		}
		if ctx == nil {
			ctx = e.ctx
		} else if e.ctx != ctx {
			return nil, native.InvalidContext
		}
		events[i] = e
	}
	return events, native.Success
}

// waitAll blocks until all events completed, and returns the first error status found, or Complete.
func waitAll(events []*event) native.ExecutionStatus {
	result := native.Complete
	for _, e := range events {
		if status := e.done.Wait(); status < 0 && result == native.Complete {
			result = status
		}
	}
	return result
}

// WaitForEvents implements native.API.
func (d *Driver) WaitForEvents(handles []native.Event) native.ErrorCode {
	if len(handles) == 0 {
		return native.InvalidValue
	}
	d.mu.Lock()
	events, code := d.lookupEventsLocked(handles, nil, native.InvalidEvent)
	d.mu.Unlock()
	if code != native.Success {
		return code
	}
	if waitAll(events) != native.Complete {
		return native.ExecStatusErrorForEventsInWaitList
	}
	return native.Success
}

// GetEventInfo implements native.API.
func (d *Driver) GetEventInfo(handle native.Event, param native.EventInfo, value []byte) (int, native.ErrorCode) {
	e, ok := lookup[*event](d, uintptr(handle))
	if !ok {
		return 0, native.InvalidEvent
	}
	switch param {
	case native.EventReferenceCount:
		return refCountInfo(d, e, value)
	case native.EventCommandExecutionStatus:
		return writeInfo(value, uint32Info(uint32(e.currentStatus())))
	case native.EventContext:
		return writeInfo(value, handleInfo(e.ctx.handle))
	case native.EventCommandQueue:
		var q uintptr
		if e.queue != nil {
			q = e.queue.handle
		}
		return writeInfo(value, handleInfo(q))
	}
	return 0, native.InvalidValue
}

// RetainEvent implements native.API.
func (d *Driver) RetainEvent(handle native.Event) native.ErrorCode {
	return retain[*event](d, uintptr(handle), native.InvalidEvent)
}

// ReleaseEvent implements native.API.
func (d *Driver) ReleaseEvent(handle native.Event) native.ErrorCode {
	return release[*event](d, uintptr(handle), native.InvalidEvent)
}
