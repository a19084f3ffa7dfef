// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package cl

import (
	"fmt"

	"github.com/gomlx/clrt/pkg/cl/native"
	"github.com/google/uuid"
)

// Device is an OpenCL device.
type Device struct {
	*handle[native.Device]
}

// DeviceFromRaw wraps a raw device handle, taking ownership of one reference: the caller must have
// retained it (or obtained it from an enumeration).
func DeviceFromRaw(api native.API, raw native.Device) *Device {
	return &Device{newHandle("device", api, raw, releaseDevice)}
}

// Clone returns a new wrapper of the same device, with its own reference.
func (d *Device) Clone() *Device {
	return DeviceFromRaw(d.api, d.retained(retainDevice))
}

func (d *Device) infoQuery(param native.DeviceInfo) infoQuery {
	raw := d.UnsafeRaw()
	return func(value []byte) (int, native.ErrorCode) {
		return d.api.GetDeviceInfo(raw, param, value)
	}
}

// Name of the device.
func (d *Device) Name() string {
	return queryString("GetDeviceInfo(Name)", d.infoQuery(native.DeviceName))
}

// Vendor of the device.
func (d *Device) Vendor() string {
	return queryString("GetDeviceInfo(Vendor)", d.infoQuery(native.DeviceVendor))
}

// Version returns the OpenCL version supported by the device.
func (d *Device) Version() string {
	return queryString("GetDeviceInfo(Version)", d.infoQuery(native.DeviceVersion))
}

// DriverVersion returns the version of the driver of the device.
func (d *Device) DriverVersion() string {
	return queryString("GetDeviceInfo(DriverVersion)", d.infoQuery(native.DeviceDriverVersion))
}

// Type returns the device type bitfield.
func (d *Device) Type() native.DeviceType {
	return native.DeviceType(queryUint64("GetDeviceInfo(Type)", d.infoQuery(native.DeviceTypeInfo)))
}

// SvmCapabilities returns the shared virtual memory capabilities of the device.
func (d *Device) SvmCapabilities() SvmCapabilities {
	return SvmCapabilities(queryUint64("GetDeviceInfo(SvmCapabilities)", d.infoQuery(native.DeviceSvmCapabilities)))
}

// MaxWorkItemDimensions returns the maximum number of dimensions of a kernel launch.
func (d *Device) MaxWorkItemDimensions() int {
	return int(queryUint32("GetDeviceInfo(MaxWorkItemDimensions)", d.infoQuery(native.DeviceMaxWorkItemDimension)))
}

// Platform returns the platform of the device.
func (d *Device) Platform() Platform {
	raw := queryHandle("GetDeviceInfo(Platform)", d.infoQuery(native.DevicePlatform))
	return Platform{api: d.api, raw: native.Platform(raw)}
}

// UUID returns the device UUID, if the driver supports the cl_khr_device_uuid extension.
func (d *Device) UUID() (uuid.UUID, bool) {
	var id uuid.UUID
	size, code := d.infoQuery(native.DeviceUUIDKHR)(id[:])
	if code != native.Success || size != len(id) {
		return uuid.Nil, false
	}
	return id, true
}

// Context creates a new context with this device.
func (d *Device) Context() *Context {
	raw, code := d.api.CreateContext([]native.Device{d.UnsafeRaw()})
	check("CreateContext", code)
	return &Context{
		handle: newHandle("context", d.api, raw, releaseContext),
		device: d.Clone(),
	}
}

// String implements fmt.Stringer.
func (d *Device) String() string {
	if d.IsNil() {
		return "<released device>"
	}
	return fmt.Sprintf("%s (%s, SVM: %s)", d.Name(), d.Version(), d.SvmCapabilities())
}
