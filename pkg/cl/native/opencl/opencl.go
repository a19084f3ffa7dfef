// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

//go:build opencl && cgo && !darwin

package opencl

/*
#cgo LDFLAGS: -lOpenCL
#define CL_TARGET_OPENCL_VERSION 200
#define CL_USE_DEPRECATED_OPENCL_1_1_APIS
#include <stdlib.h>
#include <CL/cl.h>
*/
import "C"
import (
	"strings"
	"unsafe"

	"github.com/gomlx/clrt/pkg/cl/native"
	"github.com/pkg/errors"
)

func init() {
	native.Register(DriverName, func(config string) (native.API, error) {
		return New(config)
	})
}

// Driver implements native.API by calling the OpenCL C API.
type Driver struct{}

// Compile-time check that Driver implements native.API.
var _ native.API = &Driver{}

// New returns the OpenCL driver. There are no configuration options, config must be empty.
func New(config string) (*Driver, error) {
	if config = strings.TrimSpace(config); config != "" {
		return nil, errors.Errorf("unknown configuration option %q for %q driver", config, DriverName)
	}
	return &Driver{}, nil
}

// Name implements native.API.
func (d *Driver) Name() string { return DriverName }

// Handles are C pointers, stored as uintptr in native: they are not Go pointers, so the conversions
// below are safe.

func cPlatform(h native.Platform) C.cl_platform_id { return C.cl_platform_id(unsafe.Pointer(uintptr(h))) }
func cDevice(h native.Device) C.cl_device_id { return C.cl_device_id(unsafe.Pointer(uintptr(h))) }
func cContext(h native.Context) C.cl_context { return C.cl_context(unsafe.Pointer(uintptr(h))) }
func cQueue(h native.Queue) C.cl_command_queue { return C.cl_command_queue(unsafe.Pointer(uintptr(h))) }
func cProgram(h native.Program) C.cl_program { return C.cl_program(unsafe.Pointer(uintptr(h))) }
func cKernel(h native.Kernel) C.cl_kernel { return C.cl_kernel(unsafe.Pointer(uintptr(h))) }
func cEvent(h native.Event) C.cl_event { return C.cl_event(unsafe.Pointer(uintptr(h))) }

// handleArray returns a pointer to the first element of a slice of handles, reinterpreted as a C array of T
// (handles and C pointers have the same size). It returns nil for empty slices.
func handleArray[T any, H ~uintptr](handles []H) *T {
	if len(handles) == 0 {
		return nil
	}
	return (*T)(unsafe.Pointer(&handles[0]))
}

func bytesPtr(value []byte) unsafe.Pointer {
	if len(value) == 0 {
		return nil
	}
	return unsafe.Pointer(&value[0])
}

func code(err C.cl_int) native.ErrorCode { return native.ErrorCode(err) }

// waitList returns the C event wait list arguments.
func waitList(wait []native.Event) (C.cl_uint, *C.cl_event) {
	return C.cl_uint(len(wait)), handleArray[C.cl_event](wait)
}

// recordPtr returns the C pointer where a new event is stored, or nil.
func recordPtr(record *native.Event) *C.cl_event {
	return (*C.cl_event)(unsafe.Pointer(record))
}

func cBool(b bool) C.cl_bool {
	if b {
		return C.CL_TRUE
	}
	return C.CL_FALSE
}

func sizes(values []int) []C.size_t {
	if len(values) == 0 {
		return nil
	}
	result := make([]C.size_t, len(values))
	for i, v := range values {
		result[i] = C.size_t(v)
	}
	return result
}

func sizesPtr(values []C.size_t) *C.size_t {
	if len(values) == 0 {
		return nil
	}
	return &values[0]
}

// GetPlatformIDs implements native.API.
func (d *Driver) GetPlatformIDs(platforms []native.Platform) (int, native.ErrorCode) {
	var num C.cl_uint
	err := C.clGetPlatformIDs(C.cl_uint(len(platforms)), handleArray[C.cl_platform_id](platforms), &num)
	return int(num), code(err)
}

// GetPlatformInfo implements native.API.
func (d *Driver) GetPlatformInfo(platform native.Platform, param native.PlatformInfo, value []byte) (int, native.ErrorCode) {
	var size C.size_t
	err := C.clGetPlatformInfo(cPlatform(platform), C.cl_platform_info(param), C.size_t(len(value)), bytesPtr(value), &size)
	return int(size), code(err)
}

// GetDeviceIDs implements native.API.
func (d *Driver) GetDeviceIDs(platform native.Platform, deviceType native.DeviceType, devices []native.Device) (int, native.ErrorCode) {
	var num C.cl_uint
	err := C.clGetDeviceIDs(cPlatform(platform), C.cl_device_type(deviceType), C.cl_uint(len(devices)),
		handleArray[C.cl_device_id](devices), &num)
	return int(num), code(err)
}

// GetDeviceInfo implements native.API.
func (d *Driver) GetDeviceInfo(device native.Device, param native.DeviceInfo, value []byte) (int, native.ErrorCode) {
	var size C.size_t
	err := C.clGetDeviceInfo(cDevice(device), C.cl_device_info(param), C.size_t(len(value)), bytesPtr(value), &size)
	return int(size), code(err)
}

// RetainDevice implements native.API.
func (d *Driver) RetainDevice(device native.Device) native.ErrorCode {
	return code(C.clRetainDevice(cDevice(device)))
}

// ReleaseDevice implements native.API.
func (d *Driver) ReleaseDevice(device native.Device) native.ErrorCode {
	return code(C.clReleaseDevice(cDevice(device)))
}

// CreateContext implements native.API.
func (d *Driver) CreateContext(devices []native.Device) (native.Context, native.ErrorCode) {
	var err C.cl_int
	ctx := C.clCreateContext(nil, C.cl_uint(len(devices)), handleArray[C.cl_device_id](devices), nil, nil, &err)
	return native.Context(uintptr(unsafe.Pointer(ctx))), code(err)
}

// GetContextInfo implements native.API.
func (d *Driver) GetContextInfo(context native.Context, param native.ContextInfo, value []byte) (int, native.ErrorCode) {
	var size C.size_t
	err := C.clGetContextInfo(cContext(context), C.cl_context_info(param), C.size_t(len(value)), bytesPtr(value), &size)
	return int(size), code(err)
}

// RetainContext implements native.API.
func (d *Driver) RetainContext(context native.Context) native.ErrorCode {
	return code(C.clRetainContext(cContext(context)))
}

// ReleaseContext implements native.API.
func (d *Driver) ReleaseContext(context native.Context) native.ErrorCode {
	return code(C.clReleaseContext(cContext(context)))
}

// CreateCommandQueue implements native.API.
func (d *Driver) CreateCommandQueue(context native.Context, device native.Device) (native.Queue, native.ErrorCode) {
	var err C.cl_int
	q := C.clCreateCommandQueueWithProperties(cContext(context), cDevice(device), nil, &err)
	return native.Queue(uintptr(unsafe.Pointer(q))), code(err)
}

// GetCommandQueueInfo implements native.API.
func (d *Driver) GetCommandQueueInfo(queue native.Queue, param native.QueueInfo, value []byte) (int, native.ErrorCode) {
	var size C.size_t
	err := C.clGetCommandQueueInfo(cQueue(queue), C.cl_command_queue_info(param), C.size_t(len(value)), bytesPtr(value), &size)
	return int(size), code(err)
}

// RetainCommandQueue implements native.API.
func (d *Driver) RetainCommandQueue(queue native.Queue) native.ErrorCode {
	return code(C.clRetainCommandQueue(cQueue(queue)))
}

// ReleaseCommandQueue implements native.API.
func (d *Driver) ReleaseCommandQueue(queue native.Queue) native.ErrorCode {
	return code(C.clReleaseCommandQueue(cQueue(queue)))
}

// Flush implements native.API.
func (d *Driver) Flush(queue native.Queue) native.ErrorCode {
	return code(C.clFlush(cQueue(queue)))
}

// Finish implements native.API.
func (d *Driver) Finish(queue native.Queue) native.ErrorCode {
	return code(C.clFinish(cQueue(queue)))
}

// EnqueueWaitForEvents implements native.API.
func (d *Driver) EnqueueWaitForEvents(queue native.Queue, events []native.Event) native.ErrorCode {
	n, list := waitList(events)
	return code(C.clEnqueueWaitForEvents(cQueue(queue), n, list))
}

// EnqueueMarkerWithWaitList implements native.API.
func (d *Driver) EnqueueMarkerWithWaitList(queue native.Queue, wait []native.Event, record *native.Event) native.ErrorCode {
	n, list := waitList(wait)
	return code(C.clEnqueueMarkerWithWaitList(cQueue(queue), n, list, recordPtr(record)))
}

// CreateUserEvent implements native.API.
func (d *Driver) CreateUserEvent(context native.Context) (native.Event, native.ErrorCode) {
	var err C.cl_int
	e := C.clCreateUserEvent(cContext(context), &err)
	return native.Event(uintptr(unsafe.Pointer(e))), code(err)
}

// SetUserEventStatus implements native.API.
func (d *Driver) SetUserEventStatus(event native.Event, status native.ExecutionStatus) native.ErrorCode {
	return code(C.clSetUserEventStatus(cEvent(event), C.cl_int(status)))
}

// WaitForEvents implements native.API.
func (d *Driver) WaitForEvents(events []native.Event) native.ErrorCode {
	n, list := waitList(events)
	return code(C.clWaitForEvents(n, list))
}

// GetEventInfo implements native.API.
func (d *Driver) GetEventInfo(event native.Event, param native.EventInfo, value []byte) (int, native.ErrorCode) {
	var size C.size_t
	err := C.clGetEventInfo(cEvent(event), C.cl_event_info(param), C.size_t(len(value)), bytesPtr(value), &size)
	return int(size), code(err)
}

// RetainEvent implements native.API.
func (d *Driver) RetainEvent(event native.Event) native.ErrorCode {
	return code(C.clRetainEvent(cEvent(event)))
}

// ReleaseEvent implements native.API.
func (d *Driver) ReleaseEvent(event native.Event) native.ErrorCode {
	return code(C.clReleaseEvent(cEvent(event)))
}

// CreateProgramWithSource implements native.API.
func (d *Driver) CreateProgramWithSource(context native.Context, source string) (native.Program, native.ErrorCode) {
	cSource := C.CString(source)
	defer C.free(unsafe.Pointer(cSource))
	length := C.size_t(len(source))
	var err C.cl_int
	p := C.clCreateProgramWithSource(cContext(context), 1, &cSource, &length, &err)
	return native.Program(uintptr(unsafe.Pointer(p))), code(err)
}

// BuildProgram implements native.API.
func (d *Driver) BuildProgram(program native.Program, devices []native.Device, options string) native.ErrorCode {
	cOptions := C.CString(options)
	defer C.free(unsafe.Pointer(cOptions))
	return code(C.clBuildProgram(cProgram(program), C.cl_uint(len(devices)), handleArray[C.cl_device_id](devices),
		cOptions, nil, nil))
}

// GetProgramInfo implements native.API.
func (d *Driver) GetProgramInfo(program native.Program, param native.ProgramInfo, value []byte) (int, native.ErrorCode) {
	var size C.size_t
	err := C.clGetProgramInfo(cProgram(program), C.cl_program_info(param), C.size_t(len(value)), bytesPtr(value), &size)
	return int(size), code(err)
}

// GetProgramBuildInfo implements native.API.
func (d *Driver) GetProgramBuildInfo(program native.Program, device native.Device, param native.ProgramBuildInfo,
	value []byte) (int, native.ErrorCode) {
	var size C.size_t
	err := C.clGetProgramBuildInfo(cProgram(program), cDevice(device), C.cl_program_build_info(param),
		C.size_t(len(value)), bytesPtr(value), &size)
	return int(size), code(err)
}

// RetainProgram implements native.API.
func (d *Driver) RetainProgram(program native.Program) native.ErrorCode {
	return code(C.clRetainProgram(cProgram(program)))
}

// ReleaseProgram implements native.API.
func (d *Driver) ReleaseProgram(program native.Program) native.ErrorCode {
	return code(C.clReleaseProgram(cProgram(program)))
}

// CreateKernel implements native.API.
func (d *Driver) CreateKernel(program native.Program, name string) (native.Kernel, native.ErrorCode) {
	cName := C.CString(name)
	defer C.free(unsafe.Pointer(cName))
	var err C.cl_int
	k := C.clCreateKernel(cProgram(program), cName, &err)
	return native.Kernel(uintptr(unsafe.Pointer(k))), code(err)
}

// CreateKernelsInProgram implements native.API.
func (d *Driver) CreateKernelsInProgram(program native.Program, kernels []native.Kernel) (int, native.ErrorCode) {
	var num C.cl_uint
	err := C.clCreateKernelsInProgram(cProgram(program), C.cl_uint(len(kernels)), handleArray[C.cl_kernel](kernels), &num)
	return int(num), code(err)
}

// GetKernelInfo implements native.API.
func (d *Driver) GetKernelInfo(kernel native.Kernel, param native.KernelInfo, value []byte) (int, native.ErrorCode) {
	var size C.size_t
	err := C.clGetKernelInfo(cKernel(kernel), C.cl_kernel_info(param), C.size_t(len(value)), bytesPtr(value), &size)
	return int(size), code(err)
}

// RetainKernel implements native.API.
func (d *Driver) RetainKernel(kernel native.Kernel) native.ErrorCode {
	return code(C.clRetainKernel(cKernel(kernel)))
}

// ReleaseKernel implements native.API.
func (d *Driver) ReleaseKernel(kernel native.Kernel) native.ErrorCode {
	return code(C.clReleaseKernel(cKernel(kernel)))
}

// SetKernelArg implements native.API.
func (d *Driver) SetKernelArg(kernel native.Kernel, index int, value []byte) native.ErrorCode {
	return code(C.clSetKernelArg(cKernel(kernel), C.cl_uint(index), C.size_t(len(value)), bytesPtr(value)))
}

// SetKernelArgSVMPointer implements native.API.
func (d *Driver) SetKernelArgSVMPointer(kernel native.Kernel, index int, ptr unsafe.Pointer) native.ErrorCode {
	return code(C.clSetKernelArgSVMPointer(cKernel(kernel), C.cl_uint(index), ptr))
}

// EnqueueNDRangeKernel implements native.API.
func (d *Driver) EnqueueNDRangeKernel(queue native.Queue, kernel native.Kernel, offset, global, local []int,
	wait []native.Event, record *native.Event) native.ErrorCode {
	cOffset, cGlobal, cLocal := sizes(offset), sizes(global), sizes(local)
	n, list := waitList(wait)
	return code(C.clEnqueueNDRangeKernel(cQueue(queue), cKernel(kernel), C.cl_uint(len(global)),
		sizesPtr(cOffset), sizesPtr(cGlobal), sizesPtr(cLocal), n, list, recordPtr(record)))
}

// SVMAlloc implements native.API.
func (d *Driver) SVMAlloc(context native.Context, flags native.MemFlags, size, alignment int) unsafe.Pointer {
	return C.clSVMAlloc(cContext(context), C.cl_svm_mem_flags(flags), C.size_t(size), C.cl_uint(alignment))
}

// SVMFree implements native.API.
func (d *Driver) SVMFree(context native.Context, ptr unsafe.Pointer) {
	C.clSVMFree(cContext(context), ptr)
}

// EnqueueSVMFree implements native.API.
func (d *Driver) EnqueueSVMFree(queue native.Queue, ptrs []unsafe.Pointer, wait []native.Event, record *native.Event) native.ErrorCode {
	var list *unsafe.Pointer
	if len(ptrs) > 0 {
		list = &ptrs[0]
	}
	n, waitPtr := waitList(wait)
	return code(C.clEnqueueSVMFree(cQueue(queue), C.cl_uint(len(ptrs)), list, nil, nil, n, waitPtr, recordPtr(record)))
}

// EnqueueSVMMemcpy implements native.API.
func (d *Driver) EnqueueSVMMemcpy(queue native.Queue, blocking bool, dst, src unsafe.Pointer, size int,
	wait []native.Event, record *native.Event) native.ErrorCode {
	n, list := waitList(wait)
	return code(C.clEnqueueSVMMemcpy(cQueue(queue), cBool(blocking), dst, src, C.size_t(size), n, list, recordPtr(record)))
}

// EnqueueSVMMap implements native.API.
func (d *Driver) EnqueueSVMMap(queue native.Queue, blocking bool, flags native.MapFlags, ptr unsafe.Pointer, size int,
	wait []native.Event, record *native.Event) native.ErrorCode {
	n, list := waitList(wait)
	return code(C.clEnqueueSVMMap(cQueue(queue), cBool(blocking), C.cl_map_flags(flags), ptr, C.size_t(size),
		n, list, recordPtr(record)))
}

// EnqueueSVMUnmap implements native.API.
func (d *Driver) EnqueueSVMUnmap(queue native.Queue, ptr unsafe.Pointer, wait []native.Event, record *native.Event) native.ErrorCode {
	n, list := waitList(wait)
	return code(C.clEnqueueSVMUnmap(cQueue(queue), ptr, n, list, recordPtr(record)))
}
