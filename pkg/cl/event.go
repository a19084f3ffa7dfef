// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package cl

import (
	"fmt"

	"github.com/gomlx/clrt/pkg/cl/native"
	"github.com/gomlx/exceptions"
	"k8s.io/klog/v2"
)

// Event tracks the completion of one asynchronous operation.
//
// Events are created by operations submitted with an EventNode that records one (see EventNode.Take),
// or as a UserEvent.
type Event struct {
	*handle[native.Event]
}

// EventFromRaw wraps a raw event handle, taking ownership of one reference: the caller must have retained it.
func EventFromRaw(api native.API, raw native.Event) *Event {
	return &Event{newHandle("event", api, raw, releaseEvent)}
}

// Clone returns a new wrapper of the same event, with its own reference.
func (e *Event) Clone() *Event {
	return EventFromRaw(e.api, e.retained(retainEvent))
}

// Wait blocks until the event is complete.
//
// It panics if the operation terminated abnormally.
func (e *Event) Wait() {
	check("WaitForEvents", e.api.WaitForEvents([]native.Event{e.UnsafeRaw()}))
}

// Status returns the execution status of the operation: native.Queued, native.Submitted, native.Running,
// native.Complete, or a negative value (an error code) if it terminated abnormally.
func (e *Event) Status() native.ExecutionStatus {
	raw := e.UnsafeRaw()
	return native.ExecutionStatus(int32(queryUint32("GetEventInfo(Status)", func(value []byte) (int, native.ErrorCode) {
		return e.api.GetEventInfo(raw, native.EventCommandExecutionStatus, value)
	})))
}

// IsComplete returns whether the operation completed successfully.
func (e *Event) IsComplete() bool {
	return e.Status() == native.Complete
}

// String implements fmt.Stringer.
func (e *Event) String() string {
	if e.IsNil() {
		return "<released event>"
	}
	return fmt.Sprintf("event 0x%x (%s)", e.UnsafeRaw(), e.Status())
}

// WaitForEvents blocks until all events are complete. Events must belong to the same context.
//
// It panics if any of the operations terminated abnormally.
func WaitForEvents(events ...*Event) {
	if len(events) == 0 {
		return
	}
	api := events[0].api
	raws := make([]native.Event, len(events))
	for i, e := range events {
		if e.api != api {
			exceptions.Panicf("cl.WaitForEvents: events from different drivers")
		}
		raws[i] = e.UnsafeRaw()
	}
	check("WaitForEvents", api.WaitForEvents(raws))
}

// UserEvent is an event completed by the host.
//
// It embeds an Event, so it can be used anywhere an *Event is needed with &userEvent.Event
// (or a userEvent.Clone()).
type UserEvent struct {
	Event
}

// Complete marks the user event as completed, unblocking the operations waiting for it.
// It panics if it was already completed.
func (e *UserEvent) Complete() {
	check("SetUserEventStatus", e.api.SetUserEventStatus(e.UnsafeRaw(), native.Complete))
	klog.V(2).Infof("cl: user event 0x%x completed", e.UnsafeRaw())
}

// Abort terminates the user event with an error code (which must be negative): operations
// waiting for it fail.
func (e *UserEvent) Abort(code native.ErrorCode) {
	if code >= 0 {
		exceptions.Panicf("cl: UserEvent.Abort requires a negative error code, got %d", code)
	}
	check("SetUserEventStatus", e.api.SetUserEventStatus(e.UnsafeRaw(), native.ExecutionStatus(code)))
}
