// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package driver

import "fmt"

// Status is the integer result code returned by every runtime entry point.
// Success is 0, errors are negative.
type Status int32

const (
	Success                            Status = 0
	DeviceNotFound                     Status = -1
	DeviceNotAvailable                 Status = -2
	CompilerNotAvailable               Status = -3
	MemObjectAllocationFailure         Status = -4
	OutOfResources                     Status = -5
	OutOfHostMemory                    Status = -6
	ProfilingInfoNotAvailable          Status = -7
	MemCopyOverlap                     Status = -8
	ImageFormatMismatch                Status = -9
	ImageFormatNotSupported            Status = -10
	BuildProgramFailure                Status = -11
	MapFailure                         Status = -12
	MisalignedSubBufferOffset          Status = -13
	ExecStatusErrorForEventsInWaitList Status = -14
	CompileProgramFailure              Status = -15
	LinkerNotAvailable                 Status = -16
	LinkProgramFailure                 Status = -17
	DevicePartitionFailed              Status = -18
	KernelArgInfoNotAvailable          Status = -19
	InvalidValue                       Status = -30
	InvalidDeviceType                  Status = -31
	InvalidPlatform                    Status = -32
	InvalidDevice                      Status = -33
	InvalidContext                     Status = -34
	InvalidQueueProperties             Status = -35
	InvalidCommandQueue                Status = -36
	InvalidHostPtr                     Status = -37
	InvalidMemObject                   Status = -38
	InvalidImageFormatDescriptor       Status = -39
	InvalidImageSize                   Status = -40
	InvalidSampler                     Status = -41
	InvalidBinary                      Status = -42
	InvalidBuildOptions                Status = -43
	InvalidProgram                     Status = -44
	InvalidProgramExecutable           Status = -45
	InvalidKernelName                  Status = -46
	InvalidKernelDefinition            Status = -47
	InvalidKernel                      Status = -48
	InvalidArgIndex                    Status = -49
	InvalidArgValue                    Status = -50
	InvalidArgSize                     Status = -51
	InvalidKernelArgs                  Status = -52
	InvalidWorkDimension               Status = -53
	InvalidWorkGroupSize               Status = -54
	InvalidWorkItemSize                Status = -55
	InvalidGlobalOffset                Status = -56
	InvalidEventWaitList               Status = -57
	InvalidEvent                       Status = -58
	InvalidOperation                   Status = -59
	InvalidGLObject                    Status = -60
	InvalidBufferSize                  Status = -61
	InvalidMipLevel                    Status = -62
	InvalidGlobalWorkSize              Status = -63
	InvalidProperty                    Status = -64
)

var statusNames = map[Status]string{
	Success:                            "Success",
	DeviceNotFound:                     "DeviceNotFound",
	DeviceNotAvailable:                 "DeviceNotAvailable",
	CompilerNotAvailable:               "CompilerNotAvailable",
	MemObjectAllocationFailure:         "MemObjectAllocationFailure",
	OutOfResources:                     "OutOfResources",
	OutOfHostMemory:                    "OutOfHostMemory",
	ProfilingInfoNotAvailable:          "ProfilingInfoNotAvailable",
	MemCopyOverlap:                     "MemCopyOverlap",
	ImageFormatMismatch:                "ImageFormatMismatch",
	ImageFormatNotSupported:            "ImageFormatNotSupported",
	BuildProgramFailure:                "BuildProgramFailure",
	MapFailure:                         "MapFailure",
	MisalignedSubBufferOffset:          "MisalignedSubBufferOffset",
	ExecStatusErrorForEventsInWaitList: "ExecStatusErrorForEventsInWaitList",
	CompileProgramFailure:              "CompileProgramFailure",
	LinkerNotAvailable:                 "LinkerNotAvailable",
	LinkProgramFailure:                 "LinkProgramFailure",
	DevicePartitionFailed:              "DevicePartitionFailed",
	KernelArgInfoNotAvailable:          "KernelArgInfoNotAvailable",
	InvalidValue:                       "InvalidValue",
	InvalidDeviceType:                  "InvalidDeviceType",
	InvalidPlatform:                    "InvalidPlatform",
	InvalidDevice:                      "InvalidDevice",
	InvalidContext:                     "InvalidContext",
	InvalidQueueProperties:             "InvalidQueueProperties",
	InvalidCommandQueue:                "InvalidCommandQueue",
	InvalidHostPtr:                     "InvalidHostPtr",
	InvalidMemObject:                   "InvalidMemObject",
	InvalidImageFormatDescriptor:       "InvalidImageFormatDescriptor",
	InvalidImageSize:                   "InvalidImageSize",
	InvalidSampler:                     "InvalidSampler",
	InvalidBinary:                      "InvalidBinary",
	InvalidBuildOptions:                "InvalidBuildOptions",
	InvalidProgram:                     "InvalidProgram",
	InvalidProgramExecutable:           "InvalidProgramExecutable",
	InvalidKernelName:                  "InvalidKernelName",
	InvalidKernelDefinition:            "InvalidKernelDefinition",
	InvalidKernel:                      "InvalidKernel",
	InvalidArgIndex:                    "InvalidArgIndex",
	InvalidArgValue:                    "InvalidArgValue",
	InvalidArgSize:                     "InvalidArgSize",
	InvalidKernelArgs:                  "InvalidKernelArgs",
	InvalidWorkDimension:               "InvalidWorkDimension",
	InvalidWorkGroupSize:               "InvalidWorkGroupSize",
	InvalidWorkItemSize:                "InvalidWorkItemSize",
	InvalidGlobalOffset:                "InvalidGlobalOffset",
	InvalidEventWaitList:               "InvalidEventWaitList",
	InvalidEvent:                       "InvalidEvent",
	InvalidOperation:                   "InvalidOperation",
	InvalidGLObject:                    "InvalidGLObject",
	InvalidBufferSize:                  "InvalidBufferSize",
	InvalidMipLevel:                    "InvalidMipLevel",
	InvalidGlobalWorkSize:              "InvalidGlobalWorkSize",
	InvalidProperty:                    "InvalidProperty",
}

var statusDescriptions = map[Status]string{
	DeviceNotFound:                     "no device matching the requested type was found",
	DeviceNotAvailable:                 "device is currently not available",
	CompilerNotAvailable:               "no compiler is available for the device",
	MemObjectAllocationFailure:         "failed to allocate memory for the memory object",
	OutOfResources:                     "failed to allocate resources on the device",
	OutOfHostMemory:                    "failed to allocate resources on the host",
	ProfilingInfoNotAvailable:          "profiling information is not available for the event",
	BuildProgramFailure:                "failed to build the program executable",
	ExecStatusErrorForEventsInWaitList: "an event in the wait list terminated abnormally",
	InvalidValue:                       "invalid value passed to the runtime",
	InvalidDeviceType:                  "invalid device type",
	InvalidPlatform:                    "invalid platform",
	InvalidDevice:                      "invalid device",
	InvalidContext:                     "invalid context",
	InvalidCommandQueue:                "invalid command queue",
	InvalidHostPtr:                     "invalid host pointer",
	InvalidMemObject:                   "invalid memory object",
	InvalidBinary:                      "invalid program binary",
	InvalidBuildOptions:                "invalid build options",
	InvalidProgram:                     "invalid program",
	InvalidProgramExecutable:           "no successfully built executable for the program",
	InvalidKernelName:                  "kernel name not found in program",
	InvalidKernel:                      "invalid kernel",
	InvalidArgIndex:                    "invalid kernel argument index",
	InvalidArgValue:                    "invalid kernel argument value",
	InvalidArgSize:                     "invalid kernel argument size",
	InvalidKernelArgs:                  "kernel arguments have not been set",
	InvalidWorkDimension:               "work dimension must be 1, 2 or 3",
	InvalidWorkGroupSize:               "invalid work-group size",
	InvalidGlobalOffset:                "invalid global offset",
	InvalidEventWaitList:               "invalid event wait list",
	InvalidEvent:                       "invalid event",
	InvalidOperation:                   "operation not allowed on this object",
	InvalidBufferSize:                  "invalid buffer size",
	InvalidGlobalWorkSize:              "invalid global work size",
	InvalidProperty:                    "invalid property",
}

// String returns the status name, e.g. "InvalidValue".
func (s Status) String() string {
	if name, found := statusNames[s]; found {
		return name
	}
	return fmt.Sprintf("Status(%d)", int32(s))
}

// Description returns a human-readable description of the status.
func (s Status) Description() string {
	if s == Success {
		return "success"
	}
	if desc, found := statusDescriptions[s]; found {
		return desc
	}
	return fmt.Sprintf("runtime error %s (%d)", s, int32(s))
}

// Ok returns whether the status is Success.
func (s Status) Ok() bool {
	return s == Success
}
