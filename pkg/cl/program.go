// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package cl

import (
	"fmt"
	"strings"
	"time"

	"github.com/gomlx/clrt/pkg/cl/native"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Program is an OpenCL C program built for the context device.
type Program struct {
	*handle[native.Program]
	ctx *Context
}

// BuildFromSource compiles the OpenCL C source with the given build options (e.g. "-cl-std=CL2.0 -DN=4")
// for the context device.
//
// If the program can't be built, it returns an error wrapping a *BuildError (use errors.As), with the
// device build log. Other native failures panic.
func (c *Context) BuildFromSource(source, options string) (*Program, error) {
	raw, code := c.api.CreateProgramWithSource(c.UnsafeRaw(), source)
	check("CreateProgramWithSource", code)
	p := &Program{handle: newHandle("program", c.api, raw, releaseProgram), ctx: c.Clone()}
	start := time.Now()
	code = c.api.BuildProgram(raw, []native.Device{c.device.UnsafeRaw()}, options)
	switch code {
	case native.Success:
	case native.BuildProgramFailure, native.InvalidBuildOptions, native.CompilerNotAvailable:
		buildErr := &BuildError{Code: code, Log: p.BuildLog()}
		p.Release()
		klog.V(1).Infof("cl: build failed with %s after %s", code, time.Since(start))
		return nil, errors.WithStack(buildErr)
	default:
		p.Release()
		check("BuildProgram", code)
	}
	klog.V(1).Infof("cl: built program with kernels %q in %s", p.KernelNames(), time.Since(start))
	return p, nil
}

// BuildLog returns the build log of the program for the context device. It may be empty.
func (p *Program) BuildLog() string {
	raw, device := p.UnsafeRaw(), p.ctx.device.UnsafeRaw()
	log := queryString("GetProgramBuildInfo(Log)", func(value []byte) (int, native.ErrorCode) {
		return p.api.GetProgramBuildInfo(raw, device, native.ProgramBuildLog, value)
	})
	return strings.TrimSpace(log)
}

// Context returns the context of the program. The caller owns the returned context.
func (p *Program) Context() *Context {
	p.UnsafeRaw()
	return p.ctx.Clone()
}

// NumKernels returns the number of kernel functions in the program.
func (p *Program) NumKernels() int {
	raw := p.UnsafeRaw()
	return int(queryHandle("GetProgramInfo(NumKernels)", func(value []byte) (int, native.ErrorCode) {
		return p.api.GetProgramInfo(raw, native.ProgramNumKernels, value)
	}))
}

// KernelNames returns the names of the kernel functions in the program.
func (p *Program) KernelNames() []string {
	raw := p.UnsafeRaw()
	names := queryString("GetProgramInfo(KernelNames)", func(value []byte) (int, native.ErrorCode) {
		return p.api.GetProgramInfo(raw, native.ProgramKernelNames, value)
	})
	if names == "" {
		return nil
	}
	return strings.Split(names, ";")
}

// GetKernel creates a kernel for the function name. It returns (nil, false) if the program has no such kernel.
func (p *Program) GetKernel(name string) (*Kernel, bool) {
	raw, code := p.api.CreateKernel(p.UnsafeRaw(), name)
	if code == native.InvalidKernelName {
		return nil, false
	}
	check(fmt.Sprintf("CreateKernel(%q)", name), code)
	return KernelFromRaw(p.api, raw), true
}

// Kernels creates a kernel for every function in the program. The caller owns the returned kernels.
func (p *Program) Kernels() []*Kernel {
	raw := p.UnsafeRaw()
	raws := enumerate("CreateKernelsInProgram", func(kernels []native.Kernel) (int, native.ErrorCode) {
		return p.api.CreateKernelsInProgram(raw, kernels)
	})
	kernels := make([]*Kernel, len(raws))
	for i, kRaw := range raws {
		kernels[i] = KernelFromRaw(p.api, kRaw)
	}
	return kernels
}

// Clone returns a new wrapper of the same program, with its own reference.
func (p *Program) Clone() *Program {
	return &Program{
		handle: newHandle("program", p.api, p.retained(retainProgram), releaseProgram),
		ctx:    p.ctx.Clone(),
	}
}

// Release the program (and its reference to the context). Kernels created from it remain valid.
// It is a no-op if it was already released.
func (p *Program) Release() {
	p.handle.Release()
	if p.ctx != nil {
		p.ctx.Release()
	}
}

// String implements fmt.Stringer.
func (p *Program) String() string {
	if p.IsNil() {
		return "<released program>"
	}
	return fmt.Sprintf("program 0x%x with kernels %q", p.UnsafeRaw(), p.KernelNames())
}
