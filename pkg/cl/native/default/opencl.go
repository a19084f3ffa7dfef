// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

//go:build opencl && cgo && !darwin

package _default

import (
	_ "github.com/gomlx/clrt/pkg/cl/native/opencl"
)
