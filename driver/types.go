// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package driver

import (
	"fmt"
	"strings"
)

// Kind of opaque object handled by the runtime.
type Kind int

const (
	KindInvalid Kind = iota
	KindPlatform
	KindDevice
	KindContext
	KindCommandQueue
	KindProgram
	KindKernel
	KindMemory
	KindEvent
	KindSampler
)

var kindNames = [...]string{
	KindInvalid:      "Invalid",
	KindPlatform:     "Platform",
	KindDevice:       "Device",
	KindContext:      "Context",
	KindCommandQueue: "CommandQueue",
	KindProgram:      "Program",
	KindKernel:       "Kernel",
	KindMemory:       "Memory",
	KindEvent:        "Event",
	KindSampler:      "Sampler",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

// Object is the constraint satisfied by every raw opaque identifier.
//
// The Retain and Release methods are the reference counting capability of each kind: they
// dispatch to the corresponding Driver entry point. Platforms are not reference counted, and
// their methods are no-ops.
type Object interface {
	~uintptr
	Kind() Kind
	Retain(drv Driver) Status
	Release(drv Driver) Status
}

// Raw opaque identifiers, one type per kind. The zero value is the null identifier.
type (
	PlatformID     uintptr
	DeviceID       uintptr
	ContextID      uintptr
	CommandQueueID uintptr
	ProgramID      uintptr
	KernelID       uintptr
	MemID          uintptr
	EventID        uintptr
	SamplerID      uintptr
)

// UnusableDeviceID is the sentinel some runtimes report in place of inactive devices.
const UnusableDeviceID DeviceID = 0xFFFF_FFFF

func (PlatformID) Kind() Kind { return KindPlatform }
func (DeviceID) Kind() Kind { return KindDevice }
func (ContextID) Kind() Kind { return KindContext }
func (CommandQueueID) Kind() Kind { return KindCommandQueue }
func (ProgramID) Kind() Kind { return KindProgram }
func (KernelID) Kind() Kind { return KindKernel }
func (MemID) Kind() Kind { return KindMemory }
func (EventID) Kind() Kind { return KindEvent }
func (SamplerID) Kind() Kind { return KindSampler }

func (PlatformID) Retain(Driver) Status { return Success }
func (PlatformID) Release(Driver) Status { return Success }
func (id DeviceID) Retain(d Driver) Status { return d.RetainDevice(id) }
func (id DeviceID) Release(d Driver) Status { return d.ReleaseDevice(id) }
func (id ContextID) Retain(d Driver) Status { return d.RetainContext(id) }
func (id ContextID) Release(d Driver) Status { return d.ReleaseContext(id) }
func (id CommandQueueID) Retain(d Driver) Status {
	return d.RetainCommandQueue(id)
}
func (id CommandQueueID) Release(d Driver) Status {
	return d.ReleaseCommandQueue(id)
}
func (id ProgramID) Retain(d Driver) Status { return d.RetainProgram(id) }
func (id ProgramID) Release(d Driver) Status { return d.ReleaseProgram(id) }
func (id KernelID) Retain(d Driver) Status { return d.RetainKernel(id) }
func (id KernelID) Release(d Driver) Status { return d.ReleaseKernel(id) }
func (id MemID) Retain(d Driver) Status { return d.RetainMemObject(id) }
func (id MemID) Release(d Driver) Status { return d.ReleaseMemObject(id) }
func (id EventID) Retain(d Driver) Status { return d.RetainEvent(id) }
func (id EventID) Release(d Driver) Status { return d.ReleaseEvent(id) }
func (id SamplerID) Retain(d Driver) Status { return d.RetainSampler(id) }
func (id SamplerID) Release(d Driver) Status { return d.ReleaseSampler(id) }

// DeviceType is a bitmask of device types.
type DeviceType uint64

const (
	DeviceTypeDefault     DeviceType = 1 << 0
	DeviceTypeCPU         DeviceType = 1 << 1
	DeviceTypeGPU         DeviceType = 1 << 2
	DeviceTypeAccelerator DeviceType = 1 << 3
	DeviceTypeCustom      DeviceType = 1 << 4
	DeviceTypeAll         DeviceType = 0xFFFF_FFFF
)

func (dt DeviceType) String() string {
	if dt == DeviceTypeAll {
		return "All"
	}
	var parts []string
	if dt&DeviceTypeCPU != 0 {
		parts = append(parts, "CPU")
	}
	if dt&DeviceTypeGPU != 0 {
		parts = append(parts, "GPU")
	}
	if dt&DeviceTypeAccelerator != 0 {
		parts = append(parts, "Accelerator")
	}
	if dt&DeviceTypeCustom != 0 {
		parts = append(parts, "Custom")
	}
	if dt&DeviceTypeDefault != 0 {
		parts = append(parts, "Default")
	}
	if parts == nil {
		parts = append(parts, "None")
	}
	return strings.Join(parts, "|")
}

// CommandQueueProperties is a bitmask of command queue properties.
type CommandQueueProperties uint64

const (
	QueueOutOfOrderExecModeEnable CommandQueueProperties = 1 << 0
	QueueProfilingEnable          CommandQueueProperties = 1 << 1
)

// MemFlags is the bitfield describing how a memory object is allocated and used.
type MemFlags uint64

const (
	MemReadWrite     MemFlags = 1 << 0
	MemWriteOnly     MemFlags = 1 << 1
	MemReadOnly      MemFlags = 1 << 2
	MemUseHostPtr    MemFlags = 1 << 3
	MemAllocHostPtr  MemFlags = 1 << 4
	MemCopyHostPtr   MemFlags = 1 << 5
	MemHostWriteOnly MemFlags = 1 << 7
	MemHostReadOnly  MemFlags = 1 << 8
	MemHostNoAccess  MemFlags = 1 << 9
)

var memFlagNames = []struct {
	flag MemFlags
	name string
}{
	{MemReadWrite, "ReadWrite"},
	{MemWriteOnly, "WriteOnly"},
	{MemReadOnly, "ReadOnly"},
	{MemUseHostPtr, "UseHostPtr"},
	{MemAllocHostPtr, "AllocHostPtr"},
	{MemCopyHostPtr, "CopyHostPtr"},
	{MemHostWriteOnly, "HostWriteOnly"},
	{MemHostReadOnly, "HostReadOnly"},
	{MemHostNoAccess, "HostNoAccess"},
}

func (f MemFlags) String() string {
	var parts []string
	for _, entry := range memFlagNames {
		if f&entry.flag != 0 {
			parts = append(parts, entry.name)
		}
	}
	if parts == nil {
		return "None"
	}
	return strings.Join(parts, "|")
}

// ContextProperty is an element of the zero-terminated (key, value) property list of a context.
type ContextProperty uintptr

// ContextPlatform is the property key selecting the platform of a context.
const ContextPlatform ContextProperty = 0x1084

// AddressingMode of a sampler.
type AddressingMode uint32

const (
	AddressNone           AddressingMode = 0x1130
	AddressClampToEdge    AddressingMode = 0x1131
	AddressClamp          AddressingMode = 0x1132
	AddressRepeat         AddressingMode = 0x1133
	AddressMirroredRepeat AddressingMode = 0x1134
)

// FilterMode of a sampler.
type FilterMode uint32

const (
	FilterNearest FilterMode = 0x1140
	FilterLinear  FilterMode = 0x1141
)

// BuildStatus of a program for one device.
type BuildStatus int32

const (
	BuildSuccess    BuildStatus = 0
	BuildNone       BuildStatus = -1
	BuildError      BuildStatus = -2
	BuildInProgress BuildStatus = -3
)

// ExecutionStatus of an event. Negative values are error statuses.
type ExecutionStatus int32

const (
	Complete  ExecutionStatus = 0
	Running   ExecutionStatus = 1
	Submitted ExecutionStatus = 2
	Queued    ExecutionStatus = 3
)

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
	return fmt.Sprintf("Error(%s)", Status(s))
}

// CommandType of the command associated with an event.
type CommandType uint32

const (
	CommandNDRangeKernel CommandType = 0x11F0
	CommandReadBuffer    CommandType = 0x11F3
	CommandWriteBuffer   CommandType = 0x11F4
	CommandCopyBuffer    CommandType = 0x11F5
	CommandMarker        CommandType = 0x11FE
	CommandFillBuffer    CommandType = 0x1207
)

// Info parameter types, one per object kind. Values match the runtime's C constants.
type (
	PlatformInfo        uint32
	DeviceInfo          uint32
	ContextInfo         uint32
	CommandQueueInfo    uint32
	MemInfo             uint32
	ProgramInfo         uint32
	ProgramBuildInfo    uint32
	KernelInfo          uint32
	KernelWorkGroupInfo uint32
	EventInfo           uint32
	ProfilingInfo       uint32
	SamplerInfo         uint32
)

const (
	PlatformProfile    PlatformInfo = 0x0900
	PlatformVersion    PlatformInfo = 0x0901
	PlatformName       PlatformInfo = 0x0902
	PlatformVendor     PlatformInfo = 0x0903
	PlatformExtensions PlatformInfo = 0x0904
)

const (
	DeviceTypeInfo              DeviceInfo = 0x1000
	DeviceVendorID              DeviceInfo = 0x1001
	DeviceMaxComputeUnits       DeviceInfo = 0x1002
	DeviceMaxWorkItemDimensions DeviceInfo = 0x1003
	DeviceMaxWorkGroupSize      DeviceInfo = 0x1004
	DeviceMaxWorkItemSizes      DeviceInfo = 0x1005
	DeviceAddressBits           DeviceInfo = 0x100D
	DeviceMaxMemAllocSize       DeviceInfo = 0x1010
	DeviceGlobalMemSize         DeviceInfo = 0x101F
	DeviceLocalMemSize          DeviceInfo = 0x1023
	DeviceAvailable             DeviceInfo = 0x1027
	DeviceCompilerAvailable     DeviceInfo = 0x1028
	DeviceName                  DeviceInfo = 0x102B
	DeviceVendor                DeviceInfo = 0x102C
	DeviceDriverVersion         DeviceInfo = 0x102D
	DeviceProfile               DeviceInfo = 0x102E
	DeviceVersion               DeviceInfo = 0x102F
	DeviceExtensions            DeviceInfo = 0x1030
	DevicePlatform              DeviceInfo = 0x1031
	DeviceReferenceCount        DeviceInfo = 0x1047
	DeviceUUID                  DeviceInfo = 0x106A // cl_khr_device_uuid
)

const (
	ContextReferenceCount ContextInfo = 0x1080
	ContextDevices        ContextInfo = 0x1081
	ContextProperties     ContextInfo = 0x1082
	ContextNumDevices     ContextInfo = 0x1083
)

const (
	QueueContext        CommandQueueInfo = 0x1090
	QueueDevice         CommandQueueInfo = 0x1091
	QueueReferenceCount CommandQueueInfo = 0x1092
	QueueProperties     CommandQueueInfo = 0x1093
)

const (
	MemType           MemInfo = 0x1100
	MemFlagsInfo      MemInfo = 0x1101
	MemSize           MemInfo = 0x1102
	MemHostPtr        MemInfo = 0x1103
	MemMapCount       MemInfo = 0x1104
	MemReferenceCount MemInfo = 0x1105
	MemContext        MemInfo = 0x1106
)

const (
	ProgramReferenceCount ProgramInfo = 0x1160
	ProgramContext        ProgramInfo = 0x1161
	ProgramNumDevices     ProgramInfo = 0x1162
	ProgramDevices        ProgramInfo = 0x1163
	ProgramSource         ProgramInfo = 0x1164
	ProgramBinarySizes    ProgramInfo = 0x1165
	ProgramNumKernels     ProgramInfo = 0x1167
	ProgramKernelNames    ProgramInfo = 0x1168
)

const (
	ProgramBuildStatus  ProgramBuildInfo = 0x1181
	ProgramBuildOptions ProgramBuildInfo = 0x1182
	ProgramBuildLog     ProgramBuildInfo = 0x1183
)

const (
	KernelFunctionName   KernelInfo = 0x1190
	KernelNumArgs        KernelInfo = 0x1191
	KernelReferenceCount KernelInfo = 0x1192
	KernelContext        KernelInfo = 0x1193
	KernelProgram        KernelInfo = 0x1194
)

const (
	KernelWorkGroupSize                  KernelWorkGroupInfo = 0x11B0
	KernelCompileWorkGroupSize           KernelWorkGroupInfo = 0x11B1
	KernelLocalMemSize                   KernelWorkGroupInfo = 0x11B2
	KernelPreferredWorkGroupSizeMultiple KernelWorkGroupInfo = 0x11B3
)

const (
	EventCommandQueue           EventInfo = 0x11D0
	EventCommandType            EventInfo = 0x11D1
	EventReferenceCount         EventInfo = 0x11D2
	EventCommandExecutionStatus EventInfo = 0x11D3
	EventContext                EventInfo = 0x11D4
)

const (
	ProfilingCommandQueued ProfilingInfo = 0x1280
	ProfilingCommandSubmit ProfilingInfo = 0x1281
	ProfilingCommandStart  ProfilingInfo = 0x1282
	ProfilingCommandEnd    ProfilingInfo = 0x1283
)

const (
	SamplerReferenceCount   SamplerInfo = 0x1150
	SamplerContext          SamplerInfo = 0x1151
	SamplerNormalizedCoords SamplerInfo = 0x1152
	SamplerAddressingMode   SamplerInfo = 0x1153
	SamplerFilterMode       SamplerInfo = 0x1154
)
