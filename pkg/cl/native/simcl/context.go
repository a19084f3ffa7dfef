// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package simcl

import (
	"slices"

	"github.com/gomlx/clrt/pkg/cl/native"
	"k8s.io/klog/v2"
)

type context struct {
	refCount
	devices []*device
}

func (c *context) kind() string { return "context" }

func (c *context) destroyLocked(*Driver) {}

// hasDevice returns whether dev is one of the context devices.
func (c *context) hasDevice(dev *device) bool {
	return slices.Contains(c.devices, dev)
}

// svmCapabilities returns the capabilities supported by all devices of the context.
func (c *context) svmCapabilities() native.SvmCapabilities {
	caps := ^native.SvmCapabilities(0)
	for _, dev := range c.devices {
		caps &= dev.svm
	}
	return caps
}

// CreateContext implements native.API.
//
// All devices must belong to the same platform, and they must not be repeated.
func (d *Driver) CreateContext(handles []native.Device) (native.Context, native.ErrorCode) {
	if len(handles) == 0 {
		return 0, native.InvalidValue
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	devices := make([]*device, 0, len(handles))
	for _, h := range handles {
		dev, ok := lookupLocked[*device](d, uintptr(h))
		if !ok || slices.Contains(devices, dev) {
			return 0, native.InvalidDevice
		}
		if len(devices) > 0 && devices[0].platform != dev.platform {
			klog.V(1).Infof("simcl: CreateContext with devices from different platforms (%q and %q)",
				devices[0].platform.name, dev.platform.name)
			return 0, native.InvalidDevice
		}
		devices = append(devices, dev)
	}
	c := &context{devices: devices}
	return native.Context(d.registerLocked(c)), native.Success
}

// GetContextInfo implements native.API.
func (d *Driver) GetContextInfo(handle native.Context, param native.ContextInfo, value []byte) (int, native.ErrorCode) {
	c, ok := lookup[*context](d, uintptr(handle))
	if !ok {
		return 0, native.InvalidContext
	}
	switch param {
	case native.ContextReferenceCount:
		return refCountInfo(d, c, value)
	case native.ContextNumDevices:
		return writeInfo(value, uint32Info(uint32(len(c.devices))))
	case native.ContextDevices:
		handles := make([]uintptr, len(c.devices))
		for i, dev := range c.devices {
			handles[i] = dev.handle
		}
		return writeInfo(value, handleInfo(handles...))
	}
	return 0, native.InvalidValue
}

// RetainContext implements native.API.
func (d *Driver) RetainContext(handle native.Context) native.ErrorCode {
	return retain[*context](d, uintptr(handle), native.InvalidContext)
}

// ReleaseContext implements native.API.
func (d *Driver) ReleaseContext(handle native.Context) native.ErrorCode {
	return release[*context](d, uintptr(handle), native.InvalidContext)
}
