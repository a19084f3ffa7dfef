// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package simcl

import (
	"fmt"

	"github.com/gomlx/clrt/pkg/cl/native"
	"github.com/google/uuid"
)

const (
	platformVersion   = "OpenCL 3.0 simcl"
	platformProfile   = "FULL_PROFILE"
	platformVendor    = "GoMLX"
	platformExtension = "cl_khr_icd cl_khr_device_uuid"
	deviceVersion     = "OpenCL 3.0 simcl"
	driverVersion     = "1.0"
	maxWorkItemDims   = 3
)

type platform struct {
	handle  uintptr
	index   int
	name    string
	devices []*device
}

func (p *platform) kind() string { return "platform" }

// device is a root device: it is never destroyed and retain/release are no-ops.
type device struct {
	handle   uintptr
	platform *platform
	index    int
	name     string
	svm      native.SvmCapabilities
	uuid     uuid.UUID
}

func (dev *device) kind() string { return "device" }

// GetPlatformIDs implements native.API.
func (d *Driver) GetPlatformIDs(platforms []native.Platform) (int, native.ErrorCode) {
	if len(d.platforms) == 0 {
		return 0, native.PlatformNotFoundKHR
	}
	if platforms != nil && len(platforms) == 0 {
		return 0, native.InvalidValue
	}
	for i := 0; i < len(platforms) && i < len(d.platforms); i++ {
		platforms[i] = native.Platform(d.platforms[i].handle)
	}
	return len(d.platforms), native.Success
}

// GetPlatformInfo implements native.API.
func (d *Driver) GetPlatformInfo(handle native.Platform, param native.PlatformInfo, value []byte) (int, native.ErrorCode) {
	p, ok := lookup[*platform](d, uintptr(handle))
	if !ok {
		return 0, native.InvalidPlatform
	}
	switch param {
	case native.PlatformProfile:
		return writeInfo(value, stringInfo(platformProfile))
	case native.PlatformVersion:
		return writeInfo(value, stringInfo(platformVersion))
	case native.PlatformName:
		return writeInfo(value, stringInfo(p.name))
	case native.PlatformVendor:
		return writeInfo(value, stringInfo(platformVendor))
	case native.PlatformExtensions:
		return writeInfo(value, stringInfo(platformExtension))
	}
	return 0, native.InvalidValue
}

// GetDeviceIDs implements native.API.
func (d *Driver) GetDeviceIDs(handle native.Platform, deviceType native.DeviceType, devices []native.Device) (int, native.ErrorCode) {
	p, ok := lookup[*platform](d, uintptr(handle))
	if !ok {
		return 0, native.InvalidPlatform
	}
	if deviceType == 0 {
		return 0, native.InvalidDeviceType
	}
	if devices != nil && len(devices) == 0 {
		return 0, native.InvalidValue
	}
	var matches []*device
	for _, dev := range p.devices {
		if deviceType == native.DeviceTypeAll || deviceType&dev.deviceType() != 0 {
			matches = append(matches, dev)
		}
	}
	if len(matches) == 0 {
		return 0, native.DeviceNotFound
	}
	for i := 0; i < len(devices) && i < len(matches); i++ {
		devices[i] = native.Device(matches[i].handle)
	}
	return len(matches), native.Success
}

// deviceType returns the type of the device: the first device of a platform is its default device.
func (dev *device) deviceType() native.DeviceType {
	if dev.index == 0 {
		return native.DeviceTypeGPU | native.DeviceTypeDefault
	}
	return native.DeviceTypeGPU
}

// GetDeviceInfo implements native.API.
func (d *Driver) GetDeviceInfo(handle native.Device, param native.DeviceInfo, value []byte) (int, native.ErrorCode) {
	dev, ok := lookup[*device](d, uintptr(handle))
	if !ok {
		return 0, native.InvalidDevice
	}
	switch param {
	case native.DeviceTypeInfo:
		return writeInfo(value, uint64Info(uint64(dev.deviceType())))
	case native.DeviceMaxWorkItemDimension:
		return writeInfo(value, uint32Info(maxWorkItemDims))
	case native.DeviceName:
		return writeInfo(value, stringInfo(dev.name))
	case native.DeviceVendor:
		return writeInfo(value, stringInfo(platformVendor))
	case native.DeviceDriverVersion:
		return writeInfo(value, stringInfo(driverVersion))
	case native.DeviceVersion:
		return writeInfo(value, stringInfo(deviceVersion))
	case native.DevicePlatform:
		return writeInfo(value, handleInfo(dev.platform.handle))
	case native.DeviceSvmCapabilities:
		return writeInfo(value, uint64Info(uint64(dev.svm)))
	case native.DeviceUUIDKHR:
		return writeInfo(value, dev.uuid[:])
	}
	return 0, native.InvalidValue
}

// RetainDevice implements native.API. Root devices are not reference counted.
func (d *Driver) RetainDevice(handle native.Device) native.ErrorCode {
	if _, ok := lookup[*device](d, uintptr(handle)); !ok {
		return native.InvalidDevice
	}
	return native.Success
}

// ReleaseDevice implements native.API. Root devices are not reference counted.
func (d *Driver) ReleaseDevice(handle native.Device) native.ErrorCode {
	return d.RetainDevice(handle)
}

// String implements fmt.Stringer.
func (dev *device) String() string {
	return fmt.Sprintf("%s (svm=0x%x)", dev.name, uint64(dev.svm))
}
