// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package native

// Query parameter names and bitfields, with the values used by CL/cl.h.
//
// Info values are returned as raw bytes, laid out exactly as the C API does: strings are
// NUL-terminated (the size includes the terminator), handles are pointer-sized, cl_uint is
// 4 bytes and cl_bitfield (DeviceType, SvmCapabilities) is 8 bytes.

// PlatformInfo is a cl_platform_info.
type PlatformInfo uint32

const (
	PlatformProfile    PlatformInfo = 0x0900
	PlatformVersion    PlatformInfo = 0x0901
	PlatformName       PlatformInfo = 0x0902
	PlatformVendor     PlatformInfo = 0x0903
	PlatformExtensions PlatformInfo = 0x0904
)

// DeviceInfo is a cl_device_info.
type DeviceInfo uint32

const (
	DeviceTypeInfo             DeviceInfo = 0x1000
	DeviceMaxWorkItemDimension DeviceInfo = 0x1003
	DeviceName                 DeviceInfo = 0x102B
	DeviceVendor               DeviceInfo = 0x102C
	DeviceDriverVersion        DeviceInfo = 0x102D
	DeviceVersion              DeviceInfo = 0x102F
	DevicePlatform             DeviceInfo = 0x1031
	DeviceSvmCapabilities      DeviceInfo = 0x1053
	// DeviceUUIDKHR is only answered by drivers with cl_khr_device_uuid, others return InvalidValue.
	DeviceUUIDKHR DeviceInfo = 0x106A
)

// DeviceType is a cl_device_type bitfield.
type DeviceType uint64

const (
	DeviceTypeDefault     DeviceType = 1 << 0
	DeviceTypeCPU         DeviceType = 1 << 1
	DeviceTypeGPU         DeviceType = 1 << 2
	DeviceTypeAccelerator DeviceType = 1 << 3
	DeviceTypeCustom      DeviceType = 1 << 4
	DeviceTypeAll         DeviceType = 0xFFFFFFFF
)

// SvmCapabilities is a cl_device_svm_capabilities bitfield.
type SvmCapabilities uint64

const (
	SvmCoarseGrainBuffer SvmCapabilities = 1 << 0
	SvmFineGrainBuffer   SvmCapabilities = 1 << 1
	SvmFineGrainSystem   SvmCapabilities = 1 << 2
	SvmAtomics           SvmCapabilities = 1 << 3
)

// ContextInfo is a cl_context_info.
type ContextInfo uint32

const (
	ContextReferenceCount ContextInfo = 0x1080
	ContextDevices        ContextInfo = 0x1081
	ContextNumDevices     ContextInfo = 0x1083
)

// QueueInfo is a cl_command_queue_info.
type QueueInfo uint32

const (
	QueueContext        QueueInfo = 0x1090
	QueueDevice         QueueInfo = 0x1091
	QueueReferenceCount QueueInfo = 0x1092
)

// ProgramInfo is a cl_program_info.
type ProgramInfo uint32

const (
	ProgramReferenceCount ProgramInfo = 0x1160
	ProgramContext        ProgramInfo = 0x1161
	ProgramNumKernels     ProgramInfo = 0x1167
	ProgramKernelNames    ProgramInfo = 0x1168
)

// ProgramBuildInfo is a cl_program_build_info.
type ProgramBuildInfo uint32

const (
	ProgramBuildStatus  ProgramBuildInfo = 0x1181
	ProgramBuildOptions ProgramBuildInfo = 0x1182
	ProgramBuildLog     ProgramBuildInfo = 0x1183
)

// KernelInfo is a cl_kernel_info.
type KernelInfo uint32

const (
	KernelFunctionName   KernelInfo = 0x1190
	KernelNumArgs        KernelInfo = 0x1191
	KernelReferenceCount KernelInfo = 0x1192
	KernelContext        KernelInfo = 0x1193
	KernelProgram        KernelInfo = 0x1194
)

// EventInfo is a cl_event_info.
type EventInfo uint32

const (
	EventCommandQueue           EventInfo = 0x11D0
	EventReferenceCount         EventInfo = 0x11D2
	EventCommandExecutionStatus EventInfo = 0x11D3
	EventContext                EventInfo = 0x11D4
)

// ExecutionStatus is the cl_int execution status of an event.
// Negative values are error codes: the command terminated abnormally.
type ExecutionStatus int32

const (
	Complete  ExecutionStatus = 0
	Running   ExecutionStatus = 1
	Submitted ExecutionStatus = 2
	Queued    ExecutionStatus = 3
)

// String implements fmt.Stringer.
func (s ExecutionStatus) String() string {
	switch s {
	case Complete:
		return "Complete"
	case Running:
		return "Running"
	case Submitted:
		return "Submitted"
	case Queued:
		return "Queued"
	}
	return "Error(" + ErrorCode(s).String() + ")"
}

// MemFlags is a cl_svm_mem_flags bitfield.
type MemFlags uint64

const (
	MemReadWrite          MemFlags = 1 << 0
	MemWriteOnly          MemFlags = 1 << 1
	MemReadOnly           MemFlags = 1 << 2
	MemSvmFineGrainBuffer MemFlags = 1 << 10
	MemSvmAtomics         MemFlags = 1 << 11
)

// MapFlags is a cl_map_flags bitfield.
type MapFlags uint64

const (
	MapRead                  MapFlags = 1 << 0
	MapWrite                 MapFlags = 1 << 1
	MapWriteInvalidateRegion MapFlags = 1 << 2
)
