// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// clinfo lists the OpenCL platforms and devices visible through clrt, and optionally runs a small
// saxpy benchmark on the devices supporting shared virtual memory.
//
// Usage:
//
//	clinfo [-driver=<driver>:<config>] [-drivers] [-bench=N] [-size=N]
//
// The driver defaults to $CLRT_DRIVER, see package native.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/gomlx/clrt/pkg/cl"
	"github.com/gomlx/clrt/pkg/cl/native"
	_ "github.com/gomlx/clrt/pkg/cl/native/default"
	"github.com/gomlx/clrt/pkg/cl/native/simcl"
	"github.com/janpfeifer/must"
	"k8s.io/klog/v2"
)

var (
	flagDriver = flag.String("driver", "",
		`Driver configuration formatted as "<driver>:<config>", e.g. "sim:platforms=1,svm=fine". `+
			"If empty, $"+native.ConfigEnvVar+" or the first registered driver is used.")
	flagDrivers = flag.Bool("drivers", false, "List the registered drivers.")
	flagBench   = flag.Int("bench", 0, "If > 0, launch the saxpy kernel this number of times on every SVM device.")
	flagSize    = flag.Int("size", 1<<20, "Number of elements of the vectors used by -bench.")
)

var titleStyle = lipgloss.NewStyle().Bold(true).Padding(1, 4, 1, 4)

func main() {
	klog.InitFlags(nil)
	flag.Parse()
	if len(flag.Args()) > 0 {
		klog.Errorf("Unexpected arguments %q. See 'clinfo -help'.", flag.Args())
		os.Exit(1)
	}

	if *flagDrivers {
		fmt.Println(titleStyle.Render("Drivers"))
		table := newPlainTable("#", "Name")
		for i, name := range native.List() {
			table.Row(fmt.Sprintf("%d", i), name)
		}
		fmt.Println(table.Render())
	}

	var api native.API
	if *flagDriver != "" {
		api = must.M1(native.NewWithConfig(*flagDriver))
	} else {
		api = must.M1(native.New())
	}
	report(api)

	if *flagBench > 0 {
		for _, platform := range cl.PlatformsOf(api) {
			for _, device := range platform.Devices() {
				if device.SvmCapabilities().Supported() {
					must.M(bench(device, *flagBench, *flagSize))
				}
				device.Release()
			}
		}
		if sim, ok := api.(*simcl.Driver); ok {
			fmt.Println(titleStyle.Render("Simulator statistics"))
			fmt.Println(sim.Stats())
		}
	}
}

// report prints the platforms and devices of the driver.
func report(api native.API) {
	platforms := cl.PlatformsOf(api)
	fmt.Println(titleStyle.Render(fmt.Sprintf("Platforms (driver %q)", api.Name())))
	if len(platforms) == 0 {
		fmt.Println("No platforms found.")
		return
	}
	table := newPlainTable("#", "Name", "Vendor", "Version", "Profile")
	for i, platform := range platforms {
		table.Row(fmt.Sprintf("%d", i), platform.Name(), platform.Vendor(), platform.Version(), platform.Profile())
	}
	fmt.Println(table.Render())

	fmt.Println(titleStyle.Render("Devices"))
	table = newPlainTable("#", "Name", "Type", "Version", "Driver", "SVM", "UUID")
	for pIdx, platform := range platforms {
		for dIdx, device := range platform.Devices() {
			id := "-"
			if uuid, ok := device.UUID(); ok {
				id = uuid.String()
			}
			table.Row(fmt.Sprintf("%d.%d", pIdx, dIdx), device.Name(), deviceTypeName(device.Type()),
				device.Version(), device.DriverVersion(), device.SvmCapabilities().String(), id)
			device.Release()
		}
	}
	fmt.Println(table.Render())
}

var deviceTypeNames = []struct {
	deviceType native.DeviceType
	name       string
}{
	{native.DeviceTypeDefault, "Default"},
	{native.DeviceTypeCPU, "CPU"},
	{native.DeviceTypeGPU, "GPU"},
	{native.DeviceTypeAccelerator, "Accelerator"},
	{native.DeviceTypeCustom, "Custom"},
}

func deviceTypeName(t native.DeviceType) string {
	var parts []string
	for _, entry := range deviceTypeNames {
		if t&entry.deviceType != 0 {
			parts = append(parts, entry.name)
		}
	}
	if len(parts) == 0 {
		return fmt.Sprintf("0x%x", uint64(t))
	}
	return strings.Join(parts, ", ")
}
