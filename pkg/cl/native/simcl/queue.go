// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package simcl

import (
	"fmt"
	"sync"

	"github.com/gomlx/clrt/pkg/cl/native"
	"github.com/gomlx/clrt/pkg/support/xsync"
	"github.com/gomlx/exceptions"
	"k8s.io/klog/v2"
)

// queue is an in-order command queue: commands are executed one at a time, in submission
// order, by a goroutine owned by the queue.
type queue struct {
	refCount
	ctx    *context
	device *device

	mu       sync.Mutex
	cond     sync.Cond
	pending  []*command
	closed   bool
	inFlight *xsync.DynamicWaitGroup
}

func (q *queue) kind() string { return "queue" }

// destroyLocked releases the context, and lets the goroutine exit once the pending commands are executed.
func (q *queue) destroyLocked(d *Driver) {
	d.releaseLocked(q.ctx)
	q.mu.Lock()
	q.closed = true
	q.cond.Broadcast()
	q.mu.Unlock()
}

// command is a unit of work of a queue.
type command struct {
	name string
	wait []*event

	// done is triggered with the final status of the command.
	done *xsync.Latch[native.ExecutionStatus]

	// record is the event returned to the user, if one was requested. It shares the done latch.
	record *event

	// run executes the command and returns its final status.
	run func() native.ExecutionStatus
}

// CreateCommandQueue implements native.API.
func (d *Driver) CreateCommandQueue(ctxHandle native.Context, devHandle native.Device) (native.Queue, native.ErrorCode) {
	d.mu.Lock()
	defer d.mu.Unlock()
	ctx, ok := lookupLocked[*context](d, uintptr(ctxHandle))
	if !ok {
		return 0, native.InvalidContext
	}
	dev, ok := lookupLocked[*device](d, uintptr(devHandle))
	if !ok || !ctx.hasDevice(dev) {
		return 0, native.InvalidDevice
	}
	q := &queue{ctx: ctx, device: dev, inFlight: xsync.NewDynamicWaitGroup()}
	q.cond = sync.Cond{L: &q.mu}
	retainLocked(ctx)
	d.registerLocked(q)
	go q.loop(d)
	return native.Queue(q.handle), native.Success
}

// loop executes the queue commands until the queue is destroyed and there are no more pending commands.
func (q *queue) loop(d *Driver) {
	for {
		q.mu.Lock()
		for len(q.pending) == 0 && !q.closed {
			q.cond.Wait()
		}
		if len(q.pending) == 0 {
			q.mu.Unlock()
			return
		}
		cmd := q.pending[0]
		q.pending[0] = nil
		q.pending = q.pending[1:]
		q.mu.Unlock()

		q.execute(d, cmd)
		d.mu.Lock()
		for _, e := range cmd.wait {
			d.releaseLocked(e)
		}
		d.mu.Unlock()
		q.inFlight.Done()
	}
}

func (q *queue) execute(d *Driver, cmd *command) {
	status := waitAll(cmd.wait)
	if status != native.Complete {
		klog.V(2).Infof("simcl: queue 0x%x: %s not executed, a wait-list event failed with %s", q.handle, cmd.name, status)
		status = native.ExecutionStatus(native.ExecStatusErrorForEventsInWaitList)
	} else {
		if cmd.record != nil {
			cmd.record.status.Store(int32(native.Running))
		}
		if exception := exceptions.Try(func() { status = cmd.run() }); exception != nil {
			klog.Errorf("simcl: queue 0x%x: %s failed: %+v", q.handle, cmd.name, exception)
			status = native.ExecutionStatus(native.OutOfResources)
		}
	}
	if cmd.record != nil {
		cmd.record.complete(status)
	} else {
		cmd.done.Trigger(status)
	}
	d.updateStats(func(s *Stats) { s.CommandsExecuted++ })
}

// enqueue validates the wait list, creates the record event if requested, and submits run to the queue.
// It returns the latch triggered when the command finishes.
//
// The run function is executed in the queue goroutine, and it must not lock d.mu for long.
func (d *Driver) enqueue(qHandle native.Queue, name string, wait []native.Event, record *native.Event,
	run func() native.ExecutionStatus) (*xsync.Latch[native.ExecutionStatus], native.ErrorCode) {
	d.mu.Lock()
	q, ok := lookupLocked[*queue](d, uintptr(qHandle))
	if !ok {
		d.mu.Unlock()
		return nil, native.InvalidCommandQueue
	}
	return d.enqueueLocked(q, name, wait, record, run)
}

// enqueueLocked is like enqueue, but it is called with d.mu locked, which it unlocks.
func (d *Driver) enqueueLocked(q *queue, name string, wait []native.Event, record *native.Event,
	run func() native.ExecutionStatus) (*xsync.Latch[native.ExecutionStatus], native.ErrorCode) {
	events, code := d.lookupEventsLocked(wait, q.ctx, native.InvalidEventWaitList)
	if code != native.Success {
		d.mu.Unlock()
		return nil, code
	}
	// The wait list is retained until the command is executed, so the caller can release its events.
	for _, e := range events {
		retainLocked(e)
	}
	cmd := &command{name: name, wait: events, run: run}
	if record != nil {
		cmd.record = d.newEventLocked(q.ctx, q, native.Submitted)
		cmd.done = cmd.record.done
		*record = native.Event(cmd.record.handle)
	} else {
		cmd.done = xsync.NewLatch[native.ExecutionStatus]()
	}
	// Submitted while d.mu is locked, so the queue can't be closed concurrently.
	q.mu.Lock()
	q.inFlight.Add(1)
	q.pending = append(q.pending, cmd)
	q.cond.Signal()
	q.mu.Unlock()
	d.mu.Unlock()

	klog.V(2).Infof("simcl: queue 0x%x: enqueued %s (wait=%d, record=%v)", q.handle, name, len(events), record != nil)
	return cmd.done, native.Success
}

// finishBlocking waits for done if blocking is set, and converts the status to an error code.
func finishBlocking(done *xsync.Latch[native.ExecutionStatus], blocking bool) native.ErrorCode {
	if !blocking {
		return native.Success
	}
	if status := done.Wait(); status < 0 {
		return native.ExecStatusErrorForEventsInWaitList
	}
	return native.Success
}

// GetCommandQueueInfo implements native.API.
func (d *Driver) GetCommandQueueInfo(handle native.Queue, param native.QueueInfo, value []byte) (int, native.ErrorCode) {
	q, ok := lookup[*queue](d, uintptr(handle))
	if !ok {
		return 0, native.InvalidCommandQueue
	}
	switch param {
	case native.QueueContext:
		return writeInfo(value, handleInfo(q.ctx.handle))
	case native.QueueDevice:
		return writeInfo(value, handleInfo(q.device.handle))
	case native.QueueReferenceCount:
		return refCountInfo(d, q, value)
	}
	return 0, native.InvalidValue
}

// RetainCommandQueue implements native.API.
func (d *Driver) RetainCommandQueue(handle native.Queue) native.ErrorCode {
	return retain[*queue](d, uintptr(handle), native.InvalidCommandQueue)
}

// ReleaseCommandQueue implements native.API.
func (d *Driver) ReleaseCommandQueue(handle native.Queue) native.ErrorCode {
	return release[*queue](d, uintptr(handle), native.InvalidCommandQueue)
}

// Flush implements native.API: commands are always submitted immediately.
func (d *Driver) Flush(handle native.Queue) native.ErrorCode {
	if _, ok := lookup[*queue](d, uintptr(handle)); !ok {
		return native.InvalidCommandQueue
	}
	return native.Success
}

// Finish implements native.API.
func (d *Driver) Finish(handle native.Queue) native.ErrorCode {
	q, ok := lookup[*queue](d, uintptr(handle))
	if !ok {
		return native.InvalidCommandQueue
	}
	q.inFlight.Wait()
	return native.Success
}

// EnqueueWaitForEvents implements native.API.
func (d *Driver) EnqueueWaitForEvents(handle native.Queue, events []native.Event) native.ErrorCode {
	if len(events) == 0 {
		return native.InvalidValue
	}
	_, code := d.enqueue(handle, "wait-for-events", events, nil, func() native.ExecutionStatus { return native.Complete })
	if code == native.InvalidEventWaitList {
		code = native.InvalidEvent
	}
	return code
}

// EnqueueMarkerWithWaitList implements native.API.
//
// Since queues are in-order, a marker with an empty wait list completes after all previous commands.
func (d *Driver) EnqueueMarkerWithWaitList(handle native.Queue, wait []native.Event, record *native.Event) native.ErrorCode {
	_, code := d.enqueue(handle, "marker", wait, record, func() native.ExecutionStatus { return native.Complete })
	return code
}

// String implements fmt.Stringer.
func (q *queue) String() string {
	return fmt.Sprintf("queue 0x%x on %s", q.handle, q.device.name)
}
