// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package simcl implements native.API with an in-process, pure Go OpenCL engine.
//
// It is not an emulator of any real device: it is a reference implementation of the
// API contract, used to test the safe layer (package cl) on machines without OpenCL.
// It models:
//
//   - A configurable set of platforms and devices with different SVM capabilities.
//   - Reference counted objects, with parents retained by their children, and LiveObjects
//     to check for leaks.
//   - In-order command queues, each executing asynchronously on its own goroutine, with events,
//     user events, markers and wait lists.
//   - Coarse-grained SVM with a separate device view: the host only sees the device contents
//     between map and unmap. Fine-grained SVM is shared memory.
//   - A small OpenCL C front end (kernel declarations, #error, bracket balance, build options),
//     with kernels implemented in Go and registered with RegisterKernel.
//
// It registers itself as the driver "sim", configured with a comma-separated list of options:
//
//   - "platforms=N": number of platforms, default 2.
//   - "devices=N": number of devices per platform, default 2.
//   - "svm=<profile>|<profile>...": SVM capabilities of the devices, cycled over the devices of
//     each platform. Profiles are "none", "coarse", "fine" (fine-grained buffer) and "system"
//     (fine-grained system), optionally suffixed with "+atomics". Default is "coarse|fine".
//   - "parallelism=N": maximum number of goroutines running work-items. Default is runtime.NumCPU(),
//     0 runs work-items inline.
//   - "compiler=false": the devices have no compiler, builds fail with CompilerNotAvailable.
//   - "name=<prefix>": prefix used in platform and device names.
//
// Example: CLRT_DRIVER="sim:platforms=1,devices=3,svm=coarse|fine+atomics|system"
package simcl

import (
	"fmt"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"github.com/gomlx/clrt/internal/workerspool"
	"github.com/gomlx/clrt/pkg/cl/native"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// DriverName to be used in CLRT_DRIVER to select this driver.
const DriverName = "sim"

func init() {
	native.Register(DriverName, func(config string) (native.API, error) {
		return New(config)
	})
}

// Driver implements native.API in pure Go.
//
// It is safe for concurrent use.
type Driver struct {
	name              string
	compilerAvailable bool
	pool              *workerspool.Pool

	platforms []*platform

	mu          sync.Mutex
	objects     map[uintptr]object
	nextHandle  uintptr
	allocations []*allocation // Sorted by address.
	stats       Stats
}

// Compile-time check that Driver implements native.API.
var _ native.API = &Driver{}

// deviceNamespace is used to derive stable device UUIDs from their names.
var deviceNamespace = uuid.MustParse("6c2f1d8e-4b1a-5f0e-9a57-0c1d2e3f4a5b")

// New constructs a new simulated driver, see package documentation for the config options.
func New(config string) (*Driver, error) {
	numPlatforms, numDevices := 2, 2
	profiles := []native.SvmCapabilities{native.SvmCoarseGrainBuffer, native.SvmCoarseGrainBuffer | native.SvmFineGrainBuffer}
	d := &Driver{
		name:              "clrt simulator",
		compilerAvailable: true,
		objects:           make(map[uintptr]object),
		nextHandle:        0x1000,
	}
	parallelism := runtime.NumCPU()

	if config != "" {
		for _, part := range strings.Split(config, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			key, value, _ := strings.Cut(part, "=")
			var err error
			switch key {
			case "platforms":
				numPlatforms, err = parseCount(key, value)
			case "devices":
				numDevices, err = parseCount(key, value)
			case "parallelism":
				parallelism, err = strconv.Atoi(value)
				if err != nil {
					err = errors.Wrapf(err, "invalid value for simcl option %q", part)
				}
			case "svm":
				profiles, err = parseSvmProfiles(value)
			case "compiler":
				d.compilerAvailable, err = strconv.ParseBool(value)
				if err != nil {
					err = errors.Wrapf(err, "invalid value for simcl option %q", part)
				}
			case "name":
				if value == "" {
					err = errors.Errorf("simcl option %q requires a non-empty name", part)
				}
				d.name = value
			default:
				err = errors.Errorf("unknown configuration option %q for %q driver", part, DriverName)
			}
			if err != nil {
				return nil, err
			}
		}
	}
	d.pool = workerspool.NewWithParallelism(parallelism)

	for pIdx := range numPlatforms {
		p := &platform{
			handle: d.newHandle(),
			index:  pIdx,
			name:   fmt.Sprintf("%s platform #%d", d.name, pIdx),
		}
		d.objects[p.handle] = p
		for dIdx := range numDevices {
			dev := &device{
				handle:   d.newHandle(),
				platform: p,
				index:    dIdx,
				name:     fmt.Sprintf("%s device #%d.%d", d.name, pIdx, dIdx),
				svm:      profiles[dIdx%len(profiles)],
			}
			dev.uuid = uuid.NewSHA1(deviceNamespace, []byte(dev.name))
			d.objects[dev.handle] = dev
			p.devices = append(p.devices, dev)
		}
		d.platforms = append(d.platforms, p)
	}
	klog.V(1).Infof("simcl: created %d platform(s) with %d device(s) each, parallelism=%d", numPlatforms, numDevices, parallelism)
	return d, nil
}

func parseCount(key, value string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid value for simcl option %q", key)
	}
	if n < 0 {
		return 0, errors.Errorf("simcl option %q must be >= 0, got %d", key, n)
	}
	return n, nil
}

func parseSvmProfiles(value string) ([]native.SvmCapabilities, error) {
	var profiles []native.SvmCapabilities
	for _, profile := range strings.Split(value, "|") {
		base, atomics := strings.CutSuffix(strings.TrimSpace(profile), "+atomics")
		var caps native.SvmCapabilities
		switch base {
		case "none":
		case "coarse":
			caps = native.SvmCoarseGrainBuffer
		case "fine":
			caps = native.SvmCoarseGrainBuffer | native.SvmFineGrainBuffer
		case "system":
			caps = native.SvmCoarseGrainBuffer | native.SvmFineGrainBuffer | native.SvmFineGrainSystem
		default:
			return nil, errors.Errorf("unknown simcl SVM profile %q in %q, valid profiles are none, coarse, fine and system", base, value)
		}
		if atomics {
			if caps&native.SvmFineGrainBuffer == 0 {
				return nil, errors.Errorf("simcl SVM profile %q: atomics require fine-grained SVM", profile)
			}
			caps |= native.SvmAtomics
		}
		profiles = append(profiles, caps)
	}
	return profiles, nil
}

// Name implements native.API.
func (d *Driver) Name() string { return DriverName }

// String returns a description of the driver configuration.
func (d *Driver) String() string {
	return fmt.Sprintf("simcl(%q, %d platform(s))", d.name, len(d.platforms))
}

// newHandle returns a new unique handle. It must be called with d.mu locked, or during construction.
func (d *Driver) newHandle() uintptr {
	d.nextHandle += 0x10
	return d.nextHandle
}
