// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package native

import "fmt"

// ErrorCode is a cl_int status returned by every native call.
type ErrorCode int32

// Values from CL/cl.h (and cl_ext.h for PlatformNotFoundKHR).
const (
	Success                            ErrorCode = 0
	DeviceNotFound                     ErrorCode = -1
	DeviceNotAvailable                 ErrorCode = -2
	CompilerNotAvailable               ErrorCode = -3
	MemObjectAllocationFailure         ErrorCode = -4
	OutOfResources                     ErrorCode = -5
	OutOfHostMemory                    ErrorCode = -6
	ProfilingInfoNotAvailable          ErrorCode = -7
	MemCopyOverlap                     ErrorCode = -8
	BuildProgramFailure                ErrorCode = -11
	MapFailure                         ErrorCode = -12
	ExecStatusErrorForEventsInWaitList ErrorCode = -14
	CompileProgramFailure              ErrorCode = -15
	InvalidValue                       ErrorCode = -30
	InvalidDeviceType                  ErrorCode = -31
	InvalidPlatform                    ErrorCode = -32
	InvalidDevice                      ErrorCode = -33
	InvalidContext                     ErrorCode = -34
	InvalidQueueProperties             ErrorCode = -35
	InvalidCommandQueue                ErrorCode = -36
	InvalidHostPtr                     ErrorCode = -37
	InvalidMemObject                   ErrorCode = -38
	InvalidBinary                      ErrorCode = -42
	InvalidBuildOptions                ErrorCode = -43
	InvalidProgram                     ErrorCode = -44
	InvalidProgramExecutable           ErrorCode = -45
	InvalidKernelName                  ErrorCode = -46
	InvalidKernelDefinition            ErrorCode = -47
	InvalidKernel                      ErrorCode = -48
	InvalidArgIndex                    ErrorCode = -49
	InvalidArgValue                    ErrorCode = -50
	InvalidArgSize                     ErrorCode = -51
	InvalidKernelArgs                  ErrorCode = -52
	InvalidWorkDimension               ErrorCode = -53
	InvalidWorkGroupSize               ErrorCode = -54
	InvalidWorkItemSize                ErrorCode = -55
	InvalidGlobalOffset                ErrorCode = -56
	InvalidEventWaitList               ErrorCode = -57
	InvalidEvent                       ErrorCode = -58
	InvalidOperation                   ErrorCode = -59
	InvalidBufferSize                  ErrorCode = -61
	InvalidGlobalWorkSize              ErrorCode = -63
	InvalidProperty                    ErrorCode = -64
	InvalidCompilerOptions             ErrorCode = -66
	PlatformNotFoundKHR                ErrorCode = -1001
)

var errorCodeNames = map[ErrorCode]string{
	Success:                            "CL_SUCCESS",
	DeviceNotFound:                     "CL_DEVICE_NOT_FOUND",
	DeviceNotAvailable:                 "CL_DEVICE_NOT_AVAILABLE",
	CompilerNotAvailable:               "CL_COMPILER_NOT_AVAILABLE",
	MemObjectAllocationFailure:         "CL_MEM_OBJECT_ALLOCATION_FAILURE",
	OutOfResources:                     "CL_OUT_OF_RESOURCES",
	OutOfHostMemory:                    "CL_OUT_OF_HOST_MEMORY",
	ProfilingInfoNotAvailable:          "CL_PROFILING_INFO_NOT_AVAILABLE",
	MemCopyOverlap:                     "CL_MEM_COPY_OVERLAP",
	BuildProgramFailure:                "CL_BUILD_PROGRAM_FAILURE",
	MapFailure:                         "CL_MAP_FAILURE",
	ExecStatusErrorForEventsInWaitList: "CL_EXEC_STATUS_ERROR_FOR_EVENTS_IN_WAIT_LIST",
	CompileProgramFailure:              "CL_COMPILE_PROGRAM_FAILURE",
	InvalidValue:                       "CL_INVALID_VALUE",
	InvalidDeviceType:                  "CL_INVALID_DEVICE_TYPE",
	InvalidPlatform:                    "CL_INVALID_PLATFORM",
	InvalidDevice:                      "CL_INVALID_DEVICE",
	InvalidContext:                     "CL_INVALID_CONTEXT",
	InvalidQueueProperties:             "CL_INVALID_QUEUE_PROPERTIES",
	InvalidCommandQueue:                "CL_INVALID_COMMAND_QUEUE",
	InvalidHostPtr:                     "CL_INVALID_HOST_PTR",
	InvalidMemObject:                   "CL_INVALID_MEM_OBJECT",
	InvalidBinary:                      "CL_INVALID_BINARY",
	InvalidBuildOptions:                "CL_INVALID_BUILD_OPTIONS",
	InvalidProgram:                     "CL_INVALID_PROGRAM",
	InvalidProgramExecutable:           "CL_INVALID_PROGRAM_EXECUTABLE",
	InvalidKernelName:                  "CL_INVALID_KERNEL_NAME",
	InvalidKernelDefinition:            "CL_INVALID_KERNEL_DEFINITION",
	InvalidKernel:                      "CL_INVALID_KERNEL",
	InvalidArgIndex:                    "CL_INVALID_ARG_INDEX",
	InvalidArgValue:                    "CL_INVALID_ARG_VALUE",
	InvalidArgSize:                     "CL_INVALID_ARG_SIZE",
	InvalidKernelArgs:                  "CL_INVALID_KERNEL_ARGS",
	InvalidWorkDimension:               "CL_INVALID_WORK_DIMENSION",
	InvalidWorkGroupSize:               "CL_INVALID_WORK_GROUP_SIZE",
	InvalidWorkItemSize:                "CL_INVALID_WORK_ITEM_SIZE",
	InvalidGlobalOffset:                "CL_INVALID_GLOBAL_OFFSET",
	InvalidEventWaitList:               "CL_INVALID_EVENT_WAIT_LIST",
	InvalidEvent:                       "CL_INVALID_EVENT",
	InvalidOperation:                   "CL_INVALID_OPERATION",
	InvalidBufferSize:                  "CL_INVALID_BUFFER_SIZE",
	InvalidGlobalWorkSize:              "CL_INVALID_GLOBAL_WORK_SIZE",
	InvalidProperty:                    "CL_INVALID_PROPERTY",
	InvalidCompilerOptions:             "CL_INVALID_COMPILER_OPTIONS",
	PlatformNotFoundKHR:                "CL_PLATFORM_NOT_FOUND_KHR",
}

// String returns the C name of the error code, e.g. "CL_INVALID_VALUE".
func (e ErrorCode) String() string {
	if name, found := errorCodeNames[e]; found {
		return name
	}
	return fmt.Sprintf("CL_UNKNOWN_ERROR(%d)", int32(e))
}

// Ok returns whether the code is Success.
func (e ErrorCode) Ok() bool { return e == Success }
