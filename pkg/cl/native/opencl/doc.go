// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package opencl implements native.API with cgo, linking to the system libOpenCL (usually an ICD loader).
//
// It is only built with the `opencl` build tag (and cgo enabled), since it requires the OpenCL headers
// (CL/cl.h, version 2.0 or newer) and library to be installed:
//
//	go test -tags opencl ./...
//
// If the headers or library are installed in a non-standard location, set CGO_CFLAGS and CGO_LDFLAGS
// accordingly (e.g. CGO_CFLAGS="-I$CUDA_PATH/include").
//
// It registers itself as the driver "opencl". There are no configuration options.
package opencl

// DriverName to be used in CLRT_DRIVER to select this driver.
const DriverName = "opencl"
