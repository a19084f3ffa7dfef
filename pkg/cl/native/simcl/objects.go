// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package simcl

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/clrt/pkg/cl/native"
	"k8s.io/klog/v2"
)

// object is anything addressable by a handle.
type object interface {
	// kind is the name of the object type, used by LiveObjects.
	kind() string
}

// refCounted objects are destroyed when their reference count reaches 0.
type refCounted interface {
	object
	counter() *refCount

	// destroyLocked is called with Driver.mu locked once the reference count reaches 0,
	// after the object has been removed from the table. It releases its parents.
	destroyLocked(d *Driver)
}

type refCount struct {
	handle uintptr
	refs   int
}

func (r *refCount) counter() *refCount { return r }

// register a new refCounted object with reference count 1. It must be called with d.mu locked.
func (d *Driver) registerLocked(obj refCounted) uintptr {
	c := obj.counter()
	c.handle = d.newHandle()
	c.refs = 1
	d.objects[c.handle] = obj
	klog.V(2).Infof("simcl: created %s 0x%x", obj.kind(), c.handle)
	return c.handle
}

// lookupLocked returns the object of type T with the given handle. It must be called with d.mu locked.
func lookupLocked[T object](d *Driver, handle uintptr) (T, bool) {
	obj, found := d.objects[handle]
	if !found {
		var zero T
		return zero, false
	}
	typed, ok := obj.(T)
	return typed, ok
}

// lookup is like lookupLocked, but it locks d.mu.
func lookup[T object](d *Driver, handle uintptr) (T, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return lookupLocked[T](d, handle)
}

// retain increments the reference count of the object of type T, or returns invalidCode.
func retain[T refCounted](d *Driver, handle uintptr, invalidCode native.ErrorCode) native.ErrorCode {
	d.mu.Lock()
	defer d.mu.Unlock()
	obj, ok := lookupLocked[T](d, handle)
	if !ok {
		return invalidCode
	}
	obj.counter().refs++
	return native.Success
}

// release decrements the reference count of the object of type T, or returns invalidCode.
func release[T refCounted](d *Driver, handle uintptr, invalidCode native.ErrorCode) native.ErrorCode {
	d.mu.Lock()
	defer d.mu.Unlock()
	obj, ok := lookupLocked[T](d, handle)
	if !ok {
		return invalidCode
	}
	d.releaseLocked(obj)
	return native.Success
}

// retainLocked increments the reference count of a known live object.
func retainLocked(obj refCounted) {
	obj.counter().refs++
}

func (d *Driver) releaseLocked(obj refCounted) {
	c := obj.counter()
	c.refs--
	if c.refs > 0 {
		return
	}
	if c.refs < 0 {
		klog.Errorf("simcl: %s 0x%x released more times than retained", obj.kind(), c.handle)
		return
	}
	delete(d.objects, c.handle)
	klog.V(2).Infof("simcl: destroyed %s 0x%x", obj.kind(), c.handle)
	obj.destroyLocked(d)
}

// refCountInfo returns the reference count of obj as a cl_uint info value.
func refCountInfo(d *Driver, obj refCounted, value []byte) (int, native.ErrorCode) {
	d.mu.Lock()
	refs := obj.counter().refs
	d.mu.Unlock()
	return writeInfo(value, uint32Info(uint32(refs)))
}

// LiveObjects returns the number of live objects per kind ("context", "queue", "event", "program",
// "kernel" and "svm"). Platforms and devices are not included. Kinds with no live objects are omitted,
// so after everything has been released it returns an empty map.
func (d *Driver) LiveObjects() map[string]int {
	d.mu.Lock()
	defer d.mu.Unlock()
	counts := make(map[string]int)
	for _, obj := range d.objects {
		if _, ok := obj.(refCounted); ok {
			counts[obj.kind()]++
		}
	}
	if len(d.allocations) > 0 {
		counts[kindSvm] = len(d.allocations)
	}
	return counts
}

// NumLiveObjects returns the total number of live objects, see LiveObjects.
func (d *Driver) NumLiveObjects() int {
	var total int
	for _, count := range d.LiveObjects() {
		total += count
	}
	return total
}

// DescribeLiveObjects returns a one-line description of the live objects, e.g. "context=1, svm=2".
func (d *Driver) DescribeLiveObjects() string {
	counts := d.LiveObjects()
	if len(counts) == 0 {
		return "none"
	}
	parts := make([]string, 0, len(counts))
	for _, kind := range slices.Sorted(maps.Keys(counts)) {
		parts = append(parts, fmt.Sprintf("%s=%d", kind, counts[kind]))
	}
	return strings.Join(parts, ", ")
}

// Stats are cumulative counters of the driver activity.
type Stats struct {
	Allocations, Frees   int
	BytesAllocated       int64
	BytesLive, PeakLive  int64
	BytesCopied          int64
	KernelLaunches       int
	WorkItems            int64
	Builds, FailedBuilds int
	CommandsExecuted     int64
}

// String implements fmt.Stringer.
func (s Stats) String() string {
	return fmt.Sprintf("svm: %d allocations (%s), %d frees, %s live (peak %s); copied %s; "+
		"%d kernel launches (%s work-items); %d builds (%d failed); %s commands",
		s.Allocations, humanize.Bytes(uint64(s.BytesAllocated)), s.Frees,
		humanize.Bytes(uint64(s.BytesLive)), humanize.Bytes(uint64(s.PeakLive)),
		humanize.Bytes(uint64(s.BytesCopied)),
		s.KernelLaunches, humanize.Comma(s.WorkItems), s.Builds, s.FailedBuilds,
		humanize.Comma(s.CommandsExecuted))
}

// Stats returns a snapshot of the driver counters.
func (d *Driver) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

func (d *Driver) updateStats(fn func(s *Stats)) {
	d.mu.Lock()
	fn(&d.stats)
	d.mu.Unlock()
}
