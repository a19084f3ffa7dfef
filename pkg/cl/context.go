// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package cl

import (
	"fmt"

	"github.com/gomlx/clrt/pkg/cl/native"
	"github.com/gomlx/exceptions"
)

// Context is an OpenCL context with exactly one device.
//
// Queues, programs and SVM allocations created from a context hold their own reference to it,
// so it can be released before them.
type Context struct {
	*handle[native.Context]
	device *Device
}

// ContextFromRaw wraps a raw context handle, taking ownership of one reference: the caller must
// have retained it.
//
// It panics if the context doesn't have exactly one device.
func ContextFromRaw(api native.API, raw native.Context) *Context {
	ctx := &Context{handle: newHandle("context", api, raw, releaseContext)}
	devices := queryHandles[native.Device]("GetContextInfo(Devices)", func(value []byte) (int, native.ErrorCode) {
		return api.GetContextInfo(raw, native.ContextDevices, value)
	})
	if len(devices) != 1 {
		ctx.Release()
		exceptions.Panicf("cl: multi-device contexts are not supported, context 0x%x has %d devices", raw, len(devices))
	}
	check("RetainDevice", api.RetainDevice(devices[0]))
	ctx.device = DeviceFromRaw(api, devices[0])
	return ctx
}

// Clone returns a new wrapper of the same context, with its own reference.
func (c *Context) Clone() *Context {
	raw := c.retained(retainContext)
	return &Context{
		handle: newHandle("context", c.api, raw, releaseContext),
		device: c.device.Clone(),
	}
}

// Release the context (and its reference to the device). It is a no-op if it was already released.
func (c *Context) Release() {
	c.handle.Release()
	if c.device != nil {
		c.device.Release()
	}
}

// Device returns the device of the context. The caller owns the returned device.
func (c *Context) Device() *Device {
	c.UnsafeRaw() // Assert the context is valid.
	return c.device.Clone()
}

// SvmCapabilities returns the SVM capabilities of the context device.
func (c *Context) SvmCapabilities() SvmCapabilities {
	c.UnsafeRaw()
	return c.device.SvmCapabilities()
}

// Queue creates a new in-order command queue for the context device.
func (c *Context) Queue() *CommandQueue {
	raw, code := c.api.CreateCommandQueue(c.UnsafeRaw(), c.device.UnsafeRaw())
	check("CreateCommandQueue", code)
	return newCommandQueue(c.api, raw, c.Clone())
}

// NewUserEvent creates a user event, whose completion is controlled by the host.
func (c *Context) NewUserEvent() *UserEvent {
	raw, code := c.api.CreateUserEvent(c.UnsafeRaw())
	check("CreateUserEvent", code)
	return &UserEvent{Event: Event{newHandle("user event", c.api, raw, releaseEvent)}}
}

// String implements fmt.Stringer.
func (c *Context) String() string {
	if c.IsNil() {
		return "<released context>"
	}
	return fmt.Sprintf("context 0x%x on %s", c.UnsafeRaw(), c.device.Name())
}
