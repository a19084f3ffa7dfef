// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package cltest provides test fixtures for code using package cl.
//
// By default tests run on the in-process simulated driver ("sim", see package simcl). Set $CLRT_DRIVER
// (e.g. CLRT_DRIVER=opencl, with the `opencl` build tag) to run them on real devices.
package cltest

import (
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/gomlx/clrt/pkg/cl"
	"github.com/gomlx/clrt/pkg/cl/native"
	_ "github.com/gomlx/clrt/pkg/cl/native/default"
	"github.com/gomlx/clrt/pkg/cl/native/simcl"
	"github.com/janpfeifer/must"
)

// DefaultDriverConfig is used for $CLRT_DRIVER if it is not set when the fixtures are first used.
var DefaultDriverConfig = simcl.DriverName

// Driver returns the default driver used by the fixtures.
func Driver(tb testing.TB) native.API {
	tb.Helper()
	if _, found := os.LookupEnv(native.ConfigEnvVar); !found {
		must.M(os.Setenv(native.ConfigEnvVar, DefaultDriverConfig))
	}
	return cl.Driver()
}

// ForEachDevice runs fn as a sub-test for every device of every platform of the default driver.
// The device is released after fn returns.
//
// The test is skipped if there are no devices.
func ForEachDevice(t *testing.T, fn func(t *testing.T, device *cl.Device)) {
	forEachDevice(t, Driver(t), func(*cl.Device) bool { return true }, fn)
}

// ForEachSvmDevice is like ForEachDevice, but only for devices supporting shared virtual memory.
func ForEachSvmDevice(t *testing.T, fn func(t *testing.T, device *cl.Device)) {
	forEachDevice(t, Driver(t), func(d *cl.Device) bool { return d.SvmCapabilities().Supported() }, fn)
}

// ForEachDeviceOf is like ForEachDevice, but for the devices of the given driver.
func ForEachDeviceOf(t *testing.T, api native.API, fn func(t *testing.T, device *cl.Device)) {
	forEachDevice(t, api, func(*cl.Device) bool { return true }, fn)
}

func forEachDevice(t *testing.T, api native.API, filter func(*cl.Device) bool, fn func(t *testing.T, device *cl.Device)) {
	t.Helper()
	count := 0
	for pIdx, platform := range cl.PlatformsOf(api) {
		for dIdx, device := range platform.Devices() {
			if !filter(device) {
				device.Release()
				continue
			}
			count++
			name := fmt.Sprintf("%d.%d-%s", pIdx, dIdx, strings.ReplaceAll(device.Name(), " ", "_"))
			t.Run(name, func(t *testing.T) {
				defer device.Release()
				fn(t, device)
			})
		}
	}
	if count == 0 {
		t.Skipf("no matching OpenCL devices found for driver %q", api.Name())
	}
}

// SimDriver creates a new simulated driver with the given configuration (see package simcl), and checks at the
// end of the test that all its objects were released.
//
// Queues must be finished before the test ends, so that pending commands release their events.
func SimDriver(tb testing.TB, config string) *simcl.Driver {
	tb.Helper()
	driver := must.M1(simcl.New(config))
	tb.Cleanup(func() {
		if n := driver.NumLiveObjects(); n > 0 {
			tb.Errorf("simcl driver leaked %d objects: %s", n, driver.DescribeLiveObjects())
		}
	})
	return driver
}
