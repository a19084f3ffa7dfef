// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package native defines the fixed set of OpenCL entry points consumed by package cl.
//
// It is the collaborator surface between the safe layer (package cl) and a concrete
// compute engine: the cgo binding to libOpenCL (package opencl, built with the `opencl` tag)
// or the in-process reference engine (package simcl).
//
// The API mirrors the C API closely: handles are opaque, every call returns an ErrorCode
// (Success being the "no error" sentinel), and variable-sized queries follow the C two-call
// pattern -- call once with a nil destination to get the size, call again to fill it.
//
// Implementations are selected with the registry in this package, see New.
package native

import "unsafe"

// Platform is an opaque cl_platform_id. Platforms are not reference counted.
type Platform uintptr

// Device is an opaque cl_device_id.
type Device uintptr

// Context is an opaque cl_context.
type Context uintptr

// Queue is an opaque cl_command_queue.
type Queue uintptr

// Program is an opaque cl_program.
type Program uintptr

// Kernel is an opaque cl_kernel.
type Kernel uintptr

// Event is an opaque cl_event.
type Event uintptr

// API is the set of native entry points a driver must provide.
//
// Handles returned by Create* calls are owned by the caller (reference count 1).
// Handles returned by queries (GetContextInfo(ContextDevices), GetCommandQueueInfo(QueueContext), ...)
// are borrowed: the caller must Retain them before keeping them around.
//
// The `wait` and `record` parameters of Enqueue* calls map to the C
// `num_events_in_wait_list/event_wait_list/event` triple: if record is not nil, the driver
// stores a new event (owned by the caller) in it.
type API interface {
	// Name of the driver, as registered.
	Name() string

	GetPlatformIDs(platforms []Platform) (num int, err ErrorCode)
	GetPlatformInfo(platform Platform, param PlatformInfo, value []byte) (size int, err ErrorCode)

	GetDeviceIDs(platform Platform, deviceType DeviceType, devices []Device) (num int, err ErrorCode)
	GetDeviceInfo(device Device, param DeviceInfo, value []byte) (size int, err ErrorCode)
	RetainDevice(device Device) ErrorCode
	ReleaseDevice(device Device) ErrorCode

	CreateContext(devices []Device) (Context, ErrorCode)
	GetContextInfo(context Context, param ContextInfo, value []byte) (size int, err ErrorCode)
	RetainContext(context Context) ErrorCode
	ReleaseContext(context Context) ErrorCode

	CreateCommandQueue(context Context, device Device) (Queue, ErrorCode)
	GetCommandQueueInfo(queue Queue, param QueueInfo, value []byte) (size int, err ErrorCode)
	RetainCommandQueue(queue Queue) ErrorCode
	ReleaseCommandQueue(queue Queue) ErrorCode
	Flush(queue Queue) ErrorCode
	Finish(queue Queue) ErrorCode
	EnqueueWaitForEvents(queue Queue, events []Event) ErrorCode
	EnqueueMarkerWithWaitList(queue Queue, wait []Event, record *Event) ErrorCode

	CreateUserEvent(context Context) (Event, ErrorCode)
	SetUserEventStatus(event Event, status ExecutionStatus) ErrorCode
	WaitForEvents(events []Event) ErrorCode
	GetEventInfo(event Event, param EventInfo, value []byte) (size int, err ErrorCode)
	RetainEvent(event Event) ErrorCode
	ReleaseEvent(event Event) ErrorCode

	CreateProgramWithSource(context Context, source string) (Program, ErrorCode)
	BuildProgram(program Program, devices []Device, options string) ErrorCode
	GetProgramInfo(program Program, param ProgramInfo, value []byte) (size int, err ErrorCode)
	GetProgramBuildInfo(program Program, device Device, param ProgramBuildInfo, value []byte) (size int, err ErrorCode)
	RetainProgram(program Program) ErrorCode
	ReleaseProgram(program Program) ErrorCode

	CreateKernel(program Program, name string) (Kernel, ErrorCode)
	CreateKernelsInProgram(program Program, kernels []Kernel) (num int, err ErrorCode)
	GetKernelInfo(kernel Kernel, param KernelInfo, value []byte) (size int, err ErrorCode)
	RetainKernel(kernel Kernel) ErrorCode
	ReleaseKernel(kernel Kernel) ErrorCode
	SetKernelArg(kernel Kernel, index int, value []byte) ErrorCode
	SetKernelArgSVMPointer(kernel Kernel, index int, ptr unsafe.Pointer) ErrorCode
	EnqueueNDRangeKernel(queue Queue, kernel Kernel, offset, global, local []int, wait []Event, record *Event) ErrorCode

	// SVMAlloc returns nil on failure, like clSVMAlloc.
	SVMAlloc(context Context, flags MemFlags, size, alignment int) unsafe.Pointer
	SVMFree(context Context, ptr unsafe.Pointer)
	EnqueueSVMFree(queue Queue, ptrs []unsafe.Pointer, wait []Event, record *Event) ErrorCode
	EnqueueSVMMemcpy(queue Queue, blocking bool, dst, src unsafe.Pointer, size int, wait []Event, record *Event) ErrorCode
	EnqueueSVMMap(queue Queue, blocking bool, flags MapFlags, ptr unsafe.Pointer, size int, wait []Event, record *Event) ErrorCode
	EnqueueSVMUnmap(queue Queue, ptr unsafe.Pointer, wait []Event, record *Event) ErrorCode
}
