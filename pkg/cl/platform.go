// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package cl

import (
	"fmt"

	"github.com/gomlx/clrt/pkg/cl/native"
)

// Platform is an OpenCL platform. Platforms are not reference counted, so it is a plain value.
type Platform struct {
	api native.API
	raw native.Platform
}

// Platforms returns all platforms of the default driver (see Driver). It returns an empty list if there are none.
func Platforms() []Platform {
	return PlatformsOf(Driver())
}

// PlatformsOf returns all platforms of the given driver.
func PlatformsOf(api native.API) []Platform {
	raws := enumerate("GetPlatformIDs", api.GetPlatformIDs, native.PlatformNotFoundKHR)
	platforms := make([]Platform, len(raws))
	for i, raw := range raws {
		platforms[i] = Platform{api: api, raw: raw}
	}
	return platforms
}

// PlatformFromRaw wraps a raw platform handle of the given driver.
func PlatformFromRaw(api native.API, raw native.Platform) Platform {
	return Platform{api: api, raw: raw}
}

// UnsafeRaw returns the native platform handle.
func (p Platform) UnsafeRaw() native.Platform { return p.raw }

// Driver returns the native driver of the platform.
func (p Platform) Driver() native.API { return p.api }

func (p Platform) info(param native.PlatformInfo) string {
	return queryString("GetPlatformInfo", func(value []byte) (int, native.ErrorCode) {
		return p.api.GetPlatformInfo(p.raw, param, value)
	})
}

// Name of the platform.
func (p Platform) Name() string { return p.info(native.PlatformName) }

// Vendor of the platform.
func (p Platform) Vendor() string { return p.info(native.PlatformVendor) }

// Version returns the OpenCL version string of the platform, e.g. "OpenCL 3.0 ...".
func (p Platform) Version() string { return p.info(native.PlatformVersion) }

// Profile returns "FULL_PROFILE" or "EMBEDDED_PROFILE".
func (p Platform) Profile() string { return p.info(native.PlatformProfile) }

// Extensions returns the space-separated list of extensions supported by the platform.
func (p Platform) Extensions() string { return p.info(native.PlatformExtensions) }

// Devices returns all devices of the platform, or an empty list if there are none.
// The caller owns the returned devices and should release them.
func (p Platform) Devices() []*Device {
	return p.DevicesOfType(native.DeviceTypeAll)
}

// DevicesOfType returns the devices of the platform matching the deviceType bitfield.
func (p Platform) DevicesOfType(deviceType native.DeviceType) []*Device {
	raws := enumerate("GetDeviceIDs", func(devices []native.Device) (int, native.ErrorCode) {
		return p.api.GetDeviceIDs(p.raw, deviceType, devices)
	}, native.DeviceNotFound)
	devices := make([]*Device, len(raws))
	for i, raw := range raws {
		devices[i] = DeviceFromRaw(p.api, raw)
	}
	return devices
}

// String implements fmt.Stringer.
func (p Platform) String() string {
	return fmt.Sprintf("%s (%s)", p.Name(), p.Version())
}
