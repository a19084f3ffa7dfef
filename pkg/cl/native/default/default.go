// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package _default registers the default OpenCL drivers: "opencl" if built with the `opencl` build tag,
// and then the pure Go "sim" driver.
//
// Just import it with:
//
//	import _ "github.com/gomlx/clrt/pkg/cl/native/default"
//
// The first registered driver is used if $CLRT_DRIVER is not set, see native.New.
package _default

import (
	_ "github.com/gomlx/clrt/pkg/cl/native/simcl"
)
