// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package simcl

import (
	"strings"
	"time"

	"github.com/gomlx/clrt/pkg/cl/native"
	"k8s.io/klog/v2"
)

// Values of cl_build_status.
const (
	buildSuccess    int32 = 0
	buildNone       int32 = -1
	buildError      int32 = -2
	buildInProgress int32 = -3
)

type program struct {
	refCount
	ctx    *context
	source string

	buildStatus int32
	options     string
	log         string
	kernels     []*kernelDecl
	numKernels  int // Number of live kernel objects created from the program.
}

func (p *program) kind() string { return "program" }

func (p *program) destroyLocked(d *Driver) {
	d.releaseLocked(p.ctx)
}

// CreateProgramWithSource implements native.API.
func (d *Driver) CreateProgramWithSource(ctxHandle native.Context, source string) (native.Program, native.ErrorCode) {
	d.mu.Lock()
	defer d.mu.Unlock()
	ctx, ok := lookupLocked[*context](d, uintptr(ctxHandle))
	if !ok {
		return 0, native.InvalidContext
	}
	p := &program{ctx: ctx, source: source, buildStatus: buildNone}
	retainLocked(ctx)
	return native.Program(d.registerLocked(p)), native.Success
}

// BuildProgram implements native.API.
func (d *Driver) BuildProgram(handle native.Program, devices []native.Device, options string) native.ErrorCode {
	d.mu.Lock()
	p, ok := lookupLocked[*program](d, uintptr(handle))
	if !ok {
		d.mu.Unlock()
		return native.InvalidProgram
	}
	for _, devHandle := range devices {
		dev, ok := lookupLocked[*device](d, uintptr(devHandle))
		if !ok || !p.ctx.hasDevice(dev) {
			d.mu.Unlock()
			return native.InvalidDevice
		}
	}
	if p.numKernels > 0 || p.buildStatus == buildInProgress {
		d.mu.Unlock()
		return native.InvalidOperation
	}
	p.buildStatus = buildInProgress
	d.mu.Unlock()

	start := time.Now()
	var (
		kernels []*kernelDecl
		log     string
		code    = native.CompilerNotAvailable
	)
	if d.compilerAvailable {
		var diags *diagnostics
		kernels, diags, code = compile(p.source, options)
		log = diags.log()
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	p.options, p.log, p.kernels = options, log, kernels
	d.stats.Builds++
	if code != native.Success {
		p.buildStatus = buildError
		d.stats.FailedBuilds++
		klog.V(1).Infof("simcl: program 0x%x build failed with %s", p.handle, code)
		return code
	}
	p.buildStatus = buildSuccess
	klog.V(1).Infof("simcl: program 0x%x built in %s: %d kernel(s)", p.handle, time.Since(start), len(kernels))
	return native.Success
}

func (p *program) kernelNames() string {
	names := make([]string, len(p.kernels))
	for i, k := range p.kernels {
		names[i] = k.name
	}
	return strings.Join(names, ";")
}

// GetProgramInfo implements native.API.
func (d *Driver) GetProgramInfo(handle native.Program, param native.ProgramInfo, value []byte) (int, native.ErrorCode) {
	p, ok := lookup[*program](d, uintptr(handle))
	if !ok {
		return 0, native.InvalidProgram
	}
	switch param {
	case native.ProgramReferenceCount:
		return refCountInfo(d, p, value)
	case native.ProgramContext:
		return writeInfo(value, handleInfo(p.ctx.handle))
	}
	d.mu.Lock()
	built := p.buildStatus == buildSuccess
	d.mu.Unlock()
	if !built {
		return 0, native.InvalidProgramExecutable
	}
	switch param {
	case native.ProgramNumKernels:
		return writeInfo(value, handleInfo(uintptr(len(p.kernels))))
	case native.ProgramKernelNames:
		return writeInfo(value, stringInfo(p.kernelNames()))
	}
	return 0, native.InvalidValue
}

// GetProgramBuildInfo implements native.API.
func (d *Driver) GetProgramBuildInfo(handle native.Program, devHandle native.Device, param native.ProgramBuildInfo,
	value []byte) (int, native.ErrorCode) {
	d.mu.Lock()
	p, ok := lookupLocked[*program](d, uintptr(handle))
	if !ok {
		d.mu.Unlock()
		return 0, native.InvalidProgram
	}
	dev, ok := lookupLocked[*device](d, uintptr(devHandle))
	if !ok || !p.ctx.hasDevice(dev) {
		d.mu.Unlock()
		return 0, native.InvalidDevice
	}
	status, options, log := p.buildStatus, p.options, p.log
	d.mu.Unlock()
	switch param {
	case native.ProgramBuildStatus:
		return writeInfo(value, uint32Info(uint32(status)))
	case native.ProgramBuildOptions:
		return writeInfo(value, stringInfo(options))
	case native.ProgramBuildLog:
		return writeInfo(value, stringInfo(log))
	}
	return 0, native.InvalidValue
}

// RetainProgram implements native.API.
func (d *Driver) RetainProgram(handle native.Program) native.ErrorCode {
	return retain[*program](d, uintptr(handle), native.InvalidProgram)
}

// ReleaseProgram implements native.API.
func (d *Driver) ReleaseProgram(handle native.Program) native.ErrorCode {
	return release[*program](d, uintptr(handle), native.InvalidProgram)
}
