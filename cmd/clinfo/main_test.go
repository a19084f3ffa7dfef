// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"testing"

	"github.com/gomlx/clrt/pkg/cl"
	"github.com/gomlx/clrt/pkg/cl/cltest"
	"github.com/gomlx/clrt/pkg/cl/native"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeviceTypeName(t *testing.T) {
	assert.Equal(t, "Default, GPU", deviceTypeName(native.DeviceTypeDefault|native.DeviceTypeGPU))
	assert.Equal(t, "CPU", deviceTypeName(native.DeviceTypeCPU))
	assert.Equal(t, "0x0", deviceTypeName(0))
}

func TestBench(t *testing.T) {
	driver := cltest.SimDriver(t, "platforms=1,devices=2,svm=coarse|fine,parallelism=2")
	report(driver)
	cltest.ForEachDeviceOf(t, driver, func(t *testing.T, device *cl.Device) {
		require.NoError(t, bench(device, 3, 1000))
	})
	assert.Equal(t, 6, driver.Stats().KernelLaunches)
}
