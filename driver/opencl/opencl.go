//go:build opencl

// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package opencl implements a gocl driver over the system OpenCL ICD loader.
//
// It requires the OpenCL headers and libOpenCL (or the OpenCL framework on macOS), and is only
// compiled with the `opencl` build tag:
//
//	go build -tags opencl ./...
//
// The driver is a thin pass-through: the enumerations and info parameters of package driver
// have the same values as the OpenCL ones, and info values are returned in the host layout.
package opencl

/*
#cgo linux LDFLAGS: -lOpenCL
#cgo windows LDFLAGS: -lOpenCL
#cgo darwin LDFLAGS: -framework OpenCL

#define CL_TARGET_OPENCL_VERSION 300
#ifdef __APPLE__
#include <OpenCL/opencl.h>
#else
#include <CL/cl.h>
#endif
#include <stdlib.h>
#include <string.h>
*/
import "C"

import (
	"fmt"
	"unsafe"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gocl/driver"
	"k8s.io/klog/v2"
)

// DriverName to be used in GOCL_DRIVER to select this driver.
const DriverName = "opencl"

func init() {
	driver.Register(DriverName, func(config string) driver.Driver { return New(config) })
}

// platformNotFoundKHR is returned by the ICD loader when no OpenCL implementation is installed.
const platformNotFoundKHR driver.Status = -1001

// Driver implements driver.Driver over the OpenCL C API.
type Driver struct{}

// Compile-time check that opencl.Driver implements driver.Driver.
var _ driver.Driver = &Driver{}

// New returns the OpenCL driver. It takes no configuration, and panics if config is not empty.
func New(config string) *Driver {
	if config != "" {
		exceptions.Panicf("opencl: driver takes no configuration, got %q", config)
	}
	return &Driver{}
}

// Name implements driver.Driver.
func (d *Driver) Name() string { return DriverName }

// Description implements driver.Driver.
func (d *Driver) Description() string {
	n, _ := d.GetPlatformIDs(nil)
	return fmt.Sprintf("OpenCL ICD loader (%d platform(s))", n)
}

// Finalize implements driver.Driver. The ICD loader has no global state to release.
func (d *Driver) Finalize() {
	klog.V(1).Infof("opencl: driver finalized")
}

// sizeOf returns the size of T in bytes, as a C.size_t.
func sizeOf[T any]() C.size_t {
	var zero T
	return C.size_t(unsafe.Sizeof(zero))
}

// mallocArray allocates n zeroed copies of T in the C heap. It must be freed with C.free.
func mallocArray[T any](n int) *T {
	if n == 0 {
		n = 1
	}
	size := sizeOf[T]() * C.size_t(n)
	ptr := C.malloc(size)
	C.memset(ptr, 0, size)
	return (*T)(ptr)
}

// firstOrNil returns a pointer to the first element of values, or nil if it is empty.
func firstOrNil[T any](values []T) unsafe.Pointer {
	if len(values) == 0 {
		return nil
	}
	return unsafe.Pointer(&values[0])
}

// status converts a cl_int error code.
func status(code C.cl_int) driver.Status {
	return driver.Status(code)
}

// Conversions between the raw identifiers and the C opaque pointers.
func cPlatform(id driver.PlatformID) C.cl_platform_id { return C.cl_platform_id(unsafe.Pointer(id)) }
func cDevice(id driver.DeviceID) C.cl_device_id       { return C.cl_device_id(unsafe.Pointer(id)) }
func cContext(id driver.ContextID) C.cl_context       { return C.cl_context(unsafe.Pointer(id)) }
func cQueue(id driver.CommandQueueID) C.cl_command_queue {
	return C.cl_command_queue(unsafe.Pointer(id))
}
func cProgram(id driver.ProgramID) C.cl_program { return C.cl_program(unsafe.Pointer(id)) }
func cKernel(id driver.KernelID) C.cl_kernel    { return C.cl_kernel(unsafe.Pointer(id)) }
func cMem(id driver.MemID) C.cl_mem             { return C.cl_mem(unsafe.Pointer(id)) }
func cEvent(id driver.EventID) C.cl_event       { return C.cl_event(unsafe.Pointer(id)) }
func cSampler(id driver.SamplerID) C.cl_sampler { return C.cl_sampler(unsafe.Pointer(id)) }

// eventList returns the length and the pointer to pass a wait-list.
func eventList(waitList []driver.EventID) (C.cl_uint, *C.cl_event) {
	return C.cl_uint(len(waitList)), (*C.cl_event)(firstOrNil(waitList))
}

// deviceList returns the length and the pointer to pass a list of devices.
func deviceList(devices []driver.DeviceID) (C.cl_uint, *C.cl_device_id) {
	return C.cl_uint(len(devices)), (*C.cl_device_id)(firstOrNil(devices))
}
