// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package driver defines the interface to the compute runtime a gocl program drives.
//
// A Driver is the Go rendition of the runtime's C ABI: every method maps to one runtime
// entry point, takes raw opaque identifiers (PlatformID, DeviceID, ...) and returns a
// Status, where Success (0) means the call succeeded. Nothing in this package owns or
// reference-counts objects: that is the job of the handle layer in pkg/core/cl.
//
// Two implementations are provided:
//
//   - "simgo" (package driver/simgo): a pure Go in-process runtime, always available.
//   - "opencl" (package driver/opencl): a cgo binding to the system OpenCL ICD loader,
//     only compiled with the `opencl` build tag.
//
// Drivers register themselves during initialization, see Register. To include the
// default ones, use:
//
//	import _ "github.com/gomlx/gocl/driver/default"
package driver

import (
	"os"
	"strings"
	"unsafe"

	"github.com/gomlx/exceptions"
	"k8s.io/klog/v2"
)

// Driver is the API a compute runtime needs to implement to be used by gocl.
//
// Methods that query information follow the runtime's two-call protocol: called with a nil
// value they return the number of bytes required; called with a large enough value they fill
// it and return the number of bytes written.
//
// Unless otherwise noted, methods are safe for concurrent use on different objects. Calls
// mutating one queue, program, kernel or buffer must be serialized by the caller.
type Driver interface {
	// Name returns the short name of the driver. E.g.: "simgo".
	Name() string

	// Description is a longer description of the Driver that can be used to pretty-print.
	Description() string

	// GetPlatformIDs fills ids with the available platforms and returns how many are available.
	// If ids is nil, it only returns the count.
	GetPlatformIDs(ids []PlatformID) (numPlatforms int, status Status)

	// GetDeviceIDs fills ids with the devices of the platform matching deviceType and returns how
	// many are available. If ids is nil, it only returns the count.
	GetDeviceIDs(platform PlatformID, deviceType DeviceType, ids []DeviceID) (numDevices int, status Status)

	RetainDevice(id DeviceID) Status
	ReleaseDevice(id DeviceID) Status
	RetainContext(id ContextID) Status
	ReleaseContext(id ContextID) Status
	RetainCommandQueue(id CommandQueueID) Status
	ReleaseCommandQueue(id CommandQueueID) Status
	RetainProgram(id ProgramID) Status
	ReleaseProgram(id ProgramID) Status
	RetainKernel(id KernelID) Status
	ReleaseKernel(id KernelID) Status
	RetainMemObject(id MemID) Status
	ReleaseMemObject(id MemID) Status
	RetainEvent(id EventID) Status
	ReleaseEvent(id EventID) Status
	RetainSampler(id SamplerID) Status
	ReleaseSampler(id SamplerID) Status

	GetPlatformInfo(id PlatformID, param PlatformInfo, value []byte) (int, Status)
	GetDeviceInfo(id DeviceID, param DeviceInfo, value []byte) (int, Status)
	GetContextInfo(id ContextID, param ContextInfo, value []byte) (int, Status)
	GetCommandQueueInfo(id CommandQueueID, param CommandQueueInfo, value []byte) (int, Status)
	GetMemObjectInfo(id MemID, param MemInfo, value []byte) (int, Status)
	GetProgramInfo(id ProgramID, param ProgramInfo, value []byte) (int, Status)
	GetProgramBuildInfo(id ProgramID, device DeviceID, param ProgramBuildInfo, value []byte) (int, Status)
	GetKernelInfo(id KernelID, param KernelInfo, value []byte) (int, Status)
	GetKernelWorkGroupInfo(id KernelID, device DeviceID, param KernelWorkGroupInfo, value []byte) (int, Status)
	GetEventInfo(id EventID, param EventInfo, value []byte) (int, Status)
	GetEventProfilingInfo(id EventID, param ProfilingInfo, value []byte) (int, Status)
	GetSamplerInfo(id SamplerID, param SamplerInfo, value []byte) (int, Status)

	// GetProgramBinaries fills binaries[i] with the compiled binary of the i-th program device.
	// Each binaries[i] must be pre-sized with the values of ProgramBinarySizes.
	GetProgramBinaries(id ProgramID, binaries [][]byte) Status

	// CreateContext over an explicit set of devices. properties is a zero-terminated list of
	// (key, value) pairs, it may be nil.
	CreateContext(properties []ContextProperty, devices []DeviceID) (ContextID, Status)

	// CreateContextFromType creates a context with all the devices of the given type of the
	// platform selected in properties.
	CreateContextFromType(properties []ContextProperty, deviceType DeviceType) (ContextID, Status)

	CreateCommandQueue(ctx ContextID, device DeviceID, properties CommandQueueProperties) (CommandQueueID, Status)

	// CreateBuffer allocates a buffer of size bytes. hostPtr must be non-nil if flags include
	// MemUseHostPtr or MemCopyHostPtr, and nil otherwise.
	CreateBuffer(ctx ContextID, flags MemFlags, size uintptr, hostPtr unsafe.Pointer) (MemID, Status)

	CreateSampler(ctx ContextID, normalizedCoords bool, addressing AddressingMode, filter FilterMode) (SamplerID, Status)

	CreateProgramWithSource(ctx ContextID, sources []string) (ProgramID, Status)

	// CreateProgramWithBinary loads pre-compiled binaries, one per device. It returns the per-binary
	// statuses along with the overall status.
	CreateProgramWithBinary(ctx ContextID, devices []DeviceID, binaries [][]byte) (ProgramID, []Status, Status)

	// BuildProgram compiles/links the program for the given devices (all program devices if empty).
	// It blocks until the build finishes.
	BuildProgram(id ProgramID, devices []DeviceID, options string) Status

	CreateKernel(program ProgramID, name string) (KernelID, Status)

	// SetKernelArg copies size bytes from value into the argument slot index of the kernel.
	// A nil value with a non-zero size declares a __local argument of that many bytes.
	SetKernelArg(kernel KernelID, index uint32, size uintptr, value unsafe.Pointer) Status

	EnqueueReadBuffer(queue CommandQueueID, mem MemID, blocking bool, offset, size uintptr, ptr unsafe.Pointer,
		waitList []EventID) (EventID, Status)
	EnqueueWriteBuffer(queue CommandQueueID, mem MemID, blocking bool, offset, size uintptr, ptr unsafe.Pointer,
		waitList []EventID) (EventID, Status)
	EnqueueCopyBuffer(queue CommandQueueID, src, dst MemID, srcOffset, dstOffset, size uintptr,
		waitList []EventID) (EventID, Status)
	EnqueueFillBuffer(queue CommandQueueID, mem MemID, pattern []byte, offset, size uintptr,
		waitList []EventID) (EventID, Status)

	// EnqueueNDRangeKernel launches kernel over len(globalSize) dimensions. globalOffset and
	// localSize may be nil.
	EnqueueNDRangeKernel(queue CommandQueueID, kernel KernelID, globalOffset, globalSize, localSize []uintptr,
		waitList []EventID) (EventID, Status)

	// EnqueueMarkerWithWaitList returns an event that completes when all events in waitList
	// complete, or, if waitList is empty, when all previously enqueued commands complete.
	EnqueueMarkerWithWaitList(queue CommandQueueID, waitList []EventID) (EventID, Status)

	// WaitForEvents blocks until all events complete.
	WaitForEvents(events []EventID) Status

	Flush(queue CommandQueueID) Status
	Finish(queue CommandQueueID) Status

	// Finalize releases all resources associated with the driver. The driver cannot be used afterward.
	Finalize()
}

// Constructor takes a config string (optionally empty) and returns a Driver.
type Constructor func(config string) Driver

var (
	registeredConstructors = make(map[string]Constructor)
	firstRegistered        string
)

// Register driver with the given name, and a default constructor that takes as input a configuration string that is
// passed along to the driver constructor.
//
// To be safe, call Register during initialization of a package.
func Register(name string, constructor Constructor) {
	if len(registeredConstructors) == 0 {
		firstRegistered = name
	}
	registeredConstructors[name] = constructor
	klog.V(2).Infof("gocl driver %q registered", name)
}

// Registered returns the names of the registered drivers.
func Registered() []string {
	names := make([]string, 0, len(registeredConstructors))
	for name := range registeredConstructors {
		names = append(names, name)
	}
	return names
}

// DefaultConfig is the name of the default driver configuration to use if specified.
//
// See NewWithConfig for the format of the configuration string.
var DefaultConfig string

// GOCL_DRIVER is the environment variable with the default driver configuration to use.
//
// The format of config is "<driver_name>:<driver_configuration>".
// The "<driver_name>" is the name of a registered driver (e.g.: "opencl") and
// "<driver_configuration>" is driver specific (e.g.: for simgo, "devices=2,gpus=1").
const GOCL_DRIVER = "GOCL_DRIVER"

// New returns a new default Driver.
//
// The default is:
//
// 1. The environment GOCL_DRIVER is used as a configuration if defined.
// 2. Next the variable DefaultConfig is used as a configuration if defined.
// 3. The first registered driver is used with an empty configuration.
//
// It panics if no driver was registered.
func New() Driver {
	config, found := os.LookupEnv(GOCL_DRIVER)
	if found {
		return NewWithConfig(config)
	}
	if DefaultConfig != "" {
		return NewWithConfig(DefaultConfig)
	}
	return NewWithConfig("")
}

// NewWithConfig takes a configurations string formated as
//
// The format of config is "<driver_name>:<driver_configuration>".
// The "<driver_name>" is the name of a registered driver (e.g.: "opencl") and
// "<driver_configuration>" is driver specific.
func NewWithConfig(config string) Driver {
	if len(registeredConstructors) == 0 {
		exceptions.Panicf(`no registered drivers for gocl -- maybe import the default ones with import _ "github.com/gomlx/gocl/driver/default"?`)
	}
	driverName := firstRegistered
	driverConfig := config
	if idx := strings.Index(config, ":"); idx != -1 {
		driverName = config[:idx]
		driverConfig = config[idx+1:]
	} else if _, found := registeredConstructors[config]; found {
		driverName = config
		driverConfig = ""
	}
	constructor, found := registeredConstructors[driverName]
	if !found {
		exceptions.Panicf("can't find driver %q for configuration %q given", driverName, config)
	}
	klog.V(1).Infof("gocl: creating driver %q with config %q", driverName, driverConfig)
	return constructor(driverConfig)
}
