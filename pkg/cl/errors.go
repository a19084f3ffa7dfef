// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package cl

import (
	"fmt"

	"github.com/gomlx/clrt/pkg/cl/native"
	"github.com/gomlx/exceptions"
)

// check panics if code is not native.Success: unexpected native errors are not recoverable.
func check(call string, code native.ErrorCode) {
	if code != native.Success {
		exceptions.Panicf("cl: %s failed with %s (%d)", call, code, int32(code))
	}
}

// BuildError is returned by Context.BuildFromSource when the program can't be built.
type BuildError struct {
	// Code returned by the native build: native.BuildProgramFailure, native.InvalidBuildOptions or
	// native.CompilerNotAvailable.
	Code native.ErrorCode

	// Log is the build log of the device, possibly empty.
	Log string
}

// Error implements error.
func (e *BuildError) Error() string {
	if e.Log == "" {
		return fmt.Sprintf("cl: program build failed with %s", e.Code)
	}
	return fmt.Sprintf("cl: program build failed with %s:\n%s", e.Code, e.Log)
}
