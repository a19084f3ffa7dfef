// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package cl

import (
	"runtime"
	"sync"

	"github.com/gomlx/clrt/pkg/cl/native"
	"github.com/gomlx/exceptions"
	"k8s.io/klog/v2"
)

// EventNode describes how one asynchronous operation fits in the execution graph: the events it
// must wait for, and whether it records a new event signalling its own completion.
//
// A node is used by exactly one operation: submitting it a second time, or after Take or Release,
// panics. After the submission, the recorded event (if any) is retrieved with Take.
//
// A nil *EventNode is valid everywhere a node is accepted, and means "no dependencies, no event".
type EventNode struct {
	mu        sync.Mutex
	api       native.API
	wait      []native.Event
	record    bool
	submitted bool
	consumed  bool // Set by Take and Release.
	recorded  native.Event
}

// NewEventNode creates a node that waits on the given events, and records a new event if record is true.
//
// The node takes ownership of the wait events: the given wrappers are released (their raw handles moved
// into the node), so pass a Clone of any event still needed.
func NewEventNode(wait []*Event, record bool) *EventNode {
	n := &EventNode{record: record}
	for _, e := range wait {
		if e == nil {
			exceptions.Panicf("cl.NewEventNode: nil event in the wait list")
		}
		if n.api == nil {
			n.api = e.api
		} else if n.api != e.api {
			exceptions.Panicf("cl.NewEventNode: events from different drivers")
		}
	}
	n.wait = make([]native.Event, 0, len(wait))
	for _, e := range wait {
		n.wait = append(n.wait, e.take())
	}
	runtime.SetFinalizer(n, (*EventNode).finalize)
	return n
}

// WaitOn is a shortcut to NewEventNode(events, false).
func WaitOn(events ...*Event) *EventNode {
	return NewEventNode(events, false)
}

// Record is a shortcut to NewEventNode(events, true).
func Record(events ...*Event) *EventNode {
	return NewEventNode(events, true)
}

// submit calls enqueue with the node wait list and record slot, and marks the node as submitted.
//
// The wait events are released after a successful submission: the native driver retains what it needs.
// If enqueue fails it panics, and the node still holds its events.
func (n *EventNode) submit(call string, api native.API, enqueue func(wait []native.Event, record *native.Event) native.ErrorCode) {
	if n == nil {
		check(call, enqueue(nil, nil))
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.submitted {
		exceptions.Panicf("cl: %s: EventNode submitted twice", call)
	}
	if n.consumed {
		exceptions.Panicf("cl: %s: EventNode used after Take/Release", call)
	}
	if n.api != nil && n.api != api {
		exceptions.Panicf("cl: %s: EventNode events belong to a different driver", call)
	}
	n.api = api
	var record *native.Event
	if n.record {
		record = &n.recorded
	}
	code := enqueue(n.wait, record)
	if code != native.Success {
		n.recorded = 0
		check(call, code)
	}
	n.submitted = true
	n.releaseWaitLocked()
	klog.V(2).Infof("cl: %s submitted (recording event: %v)", call, n.recorded != 0)
}

// Take returns the event recorded by the submitted operation, or nil if the node doesn't record
// events or was never submitted. Everything else held by the node is released, and the node
// can no longer be submitted.
//
// The caller owns the returned event.
func (n *EventNode) Take() *Event {
	if n == nil {
		return nil
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.consumed = true
	n.releaseWaitLocked()
	if n.recorded == 0 {
		return nil
	}
	e := EventFromRaw(n.api, n.recorded)
	n.recorded = 0
	return e
}

// Release all events still held by the node, after which it can no longer be submitted.
// It is a no-op on a nil node.
func (n *EventNode) Release() {
	if n == nil {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.consumed = true
	n.releaseWaitLocked()
	if n.recorded != 0 {
		check("ReleaseEvent", n.api.ReleaseEvent(n.recorded))
		n.recorded = 0
	}
}

func (n *EventNode) releaseWaitLocked() {
	for _, raw := range n.wait {
		check("ReleaseEvent", n.api.ReleaseEvent(raw))
	}
	n.wait = nil
}

func (n *EventNode) finalize() {
	held := n.wait
	if n.recorded != 0 {
		held = append(held, n.recorded)
	}
	if len(held) == 0 {
		return
	}
	klog.Warningf("cl: EventNode garbage collected holding %d events", len(held))
	for _, raw := range held {
		if code := n.api.ReleaseEvent(raw); code != native.Success {
			klog.Errorf("cl: releasing event 0x%x from the finalizer failed with %s", raw, code)
		}
	}
}
