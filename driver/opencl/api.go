//go:build opencl

// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package opencl

// #define CL_TARGET_OPENCL_VERSION 300
// #ifdef __APPLE__
// #include <OpenCL/opencl.h>
// #else
// #include <CL/cl.h>
// #endif
// #include <stdlib.h>
import "C"

import (
	"unsafe"

	"github.com/gomlx/gocl/driver"
	"k8s.io/klog/v2"
)

// GetPlatformIDs implements driver.Driver. A loader without any installed implementation
// reports zero platforms.
func (d *Driver) GetPlatformIDs(ids []driver.PlatformID) (int, driver.Status) {
	var n C.cl_uint
	code := C.clGetPlatformIDs(C.cl_uint(len(ids)), (*C.cl_platform_id)(firstOrNil(ids)), &n)
	if status(code) == platformNotFoundKHR {
		klog.V(1).Infof("opencl: no OpenCL implementation installed")
		return 0, driver.Success
	}
	return int(n), status(code)
}

// GetDeviceIDs implements driver.Driver.
func (d *Driver) GetDeviceIDs(platform driver.PlatformID, deviceType driver.DeviceType, ids []driver.DeviceID) (int, driver.Status) {
	var n C.cl_uint
	code := C.clGetDeviceIDs(cPlatform(platform), C.cl_device_type(deviceType), C.cl_uint(len(ids)),
		(*C.cl_device_id)(firstOrNil(ids)), &n)
	return int(n), status(code)
}

func (d *Driver) RetainDevice(id driver.DeviceID) driver.Status {
	return status(C.clRetainDevice(cDevice(id)))
}

func (d *Driver) ReleaseDevice(id driver.DeviceID) driver.Status {
	return status(C.clReleaseDevice(cDevice(id)))
}

func (d *Driver) RetainContext(id driver.ContextID) driver.Status {
	return status(C.clRetainContext(cContext(id)))
}

func (d *Driver) ReleaseContext(id driver.ContextID) driver.Status {
	return status(C.clReleaseContext(cContext(id)))
}

func (d *Driver) RetainCommandQueue(id driver.CommandQueueID) driver.Status {
	return status(C.clRetainCommandQueue(cQueue(id)))
}

func (d *Driver) ReleaseCommandQueue(id driver.CommandQueueID) driver.Status {
	return status(C.clReleaseCommandQueue(cQueue(id)))
}

func (d *Driver) RetainProgram(id driver.ProgramID) driver.Status {
	return status(C.clRetainProgram(cProgram(id)))
}

func (d *Driver) ReleaseProgram(id driver.ProgramID) driver.Status {
	return status(C.clReleaseProgram(cProgram(id)))
}

func (d *Driver) RetainKernel(id driver.KernelID) driver.Status {
	return status(C.clRetainKernel(cKernel(id)))
}

func (d *Driver) ReleaseKernel(id driver.KernelID) driver.Status {
	return status(C.clReleaseKernel(cKernel(id)))
}

func (d *Driver) RetainMemObject(id driver.MemID) driver.Status {
	return status(C.clRetainMemObject(cMem(id)))
}

func (d *Driver) ReleaseMemObject(id driver.MemID) driver.Status {
	return status(C.clReleaseMemObject(cMem(id)))
}

func (d *Driver) RetainEvent(id driver.EventID) driver.Status {
	return status(C.clRetainEvent(cEvent(id)))
}

func (d *Driver) ReleaseEvent(id driver.EventID) driver.Status {
	return status(C.clReleaseEvent(cEvent(id)))
}

func (d *Driver) RetainSampler(id driver.SamplerID) driver.Status {
	return status(C.clRetainSampler(cSampler(id)))
}

func (d *Driver) ReleaseSampler(id driver.SamplerID) driver.Status {
	return status(C.clReleaseSampler(cSampler(id)))
}

// CreateContext implements driver.Driver.
func (d *Driver) CreateContext(properties []driver.ContextProperty, devices []driver.DeviceID) (driver.ContextID, driver.Status) {
	var code C.cl_int
	numDevices, deviceIDs := deviceList(devices)
	ctx := C.clCreateContext((*C.cl_context_properties)(firstOrNil(properties)), numDevices, deviceIDs, nil, nil, &code)
	return driver.ContextID(unsafe.Pointer(ctx)), status(code)
}

// CreateContextFromType implements driver.Driver.
func (d *Driver) CreateContextFromType(properties []driver.ContextProperty, deviceType driver.DeviceType) (driver.ContextID, driver.Status) {
	var code C.cl_int
	ctx := C.clCreateContextFromType((*C.cl_context_properties)(firstOrNil(properties)), C.cl_device_type(deviceType),
		nil, nil, &code)
	return driver.ContextID(unsafe.Pointer(ctx)), status(code)
}

// CreateCommandQueue implements driver.Driver.
func (d *Driver) CreateCommandQueue(ctx driver.ContextID, device driver.DeviceID, properties driver.CommandQueueProperties) (
	driver.CommandQueueID, driver.Status) {
	var code C.cl_int
	props := [3]C.cl_queue_properties{C.CL_QUEUE_PROPERTIES, C.cl_queue_properties(properties), 0}
	q := C.clCreateCommandQueueWithProperties(cContext(ctx), cDevice(device), &props[0], &code)
	return driver.CommandQueueID(unsafe.Pointer(q)), status(code)
}

// CreateBuffer implements driver.Driver. With MemUseHostPtr the runtime keeps using hostPtr after
// the call returns: the caller must keep it pinned.
func (d *Driver) CreateBuffer(ctx driver.ContextID, flags driver.MemFlags, size uintptr, hostPtr unsafe.Pointer) (driver.MemID, driver.Status) {
	var code C.cl_int
	mem := C.clCreateBuffer(cContext(ctx), C.cl_mem_flags(flags), C.size_t(size), hostPtr, &code)
	return driver.MemID(unsafe.Pointer(mem)), status(code)
}

// CreateSampler implements driver.Driver.
func (d *Driver) CreateSampler(ctx driver.ContextID, normalizedCoords bool, addressing driver.AddressingMode,
	filter driver.FilterMode) (driver.SamplerID, driver.Status) {
	var code C.cl_int
	normalized := C.cl_sampler_properties(C.CL_FALSE)
	if normalizedCoords {
		normalized = C.CL_TRUE
	}
	props := [7]C.cl_sampler_properties{
		C.CL_SAMPLER_NORMALIZED_COORDS, normalized,
		C.CL_SAMPLER_ADDRESSING_MODE, C.cl_sampler_properties(addressing),
		C.CL_SAMPLER_FILTER_MODE, C.cl_sampler_properties(filter),
		0,
	}
	s := C.clCreateSamplerWithProperties(cContext(ctx), &props[0], &code)
	return driver.SamplerID(unsafe.Pointer(s)), status(code)
}

// CreateProgramWithSource implements driver.Driver.
func (d *Driver) CreateProgramWithSource(ctx driver.ContextID, sources []string) (driver.ProgramID, driver.Status) {
	n := len(sources)
	cSources := mallocArray[*C.char](n)
	defer C.free(unsafe.Pointer(cSources))
	strs := unsafe.Slice(cSources, n)
	for i, source := range sources {
		strs[i] = C.CString(source)
	}
	defer func() {
		for _, str := range strs {
			C.free(unsafe.Pointer(str))
		}
	}()
	var code C.cl_int
	p := C.clCreateProgramWithSource(cContext(ctx), C.cl_uint(n), cSources, nil, &code)
	return driver.ProgramID(unsafe.Pointer(p)), status(code)
}

// CreateProgramWithBinary implements driver.Driver. The binaries are copied to C memory for the call.
func (d *Driver) CreateProgramWithBinary(ctx driver.ContextID, devices []driver.DeviceID, binaries [][]byte) (
	driver.ProgramID, []driver.Status, driver.Status) {
	n := len(binaries)
	lengths := make([]C.size_t, n)
	cBinaries := mallocArray[*C.uchar](n)
	defer C.free(unsafe.Pointer(cBinaries))
	ptrs := unsafe.Slice(cBinaries, n)
	for i, binary := range binaries {
		lengths[i] = C.size_t(len(binary))
		ptrs[i] = (*C.uchar)(C.CBytes(binary))
	}
	defer func() {
		for _, ptr := range ptrs {
			C.free(unsafe.Pointer(ptr))
		}
	}()
	binaryStatus := make([]C.cl_int, n)
	var code C.cl_int
	numDevices, deviceIDs := deviceList(devices)
	p := C.clCreateProgramWithBinary(cContext(ctx), numDevices, deviceIDs, (*C.size_t)(firstOrNil(lengths)), cBinaries,
		(*C.cl_int)(firstOrNil(binaryStatus)), &code)
	statuses := make([]driver.Status, n)
	for i, s := range binaryStatus {
		statuses[i] = status(s)
	}
	return driver.ProgramID(unsafe.Pointer(p)), statuses, status(code)
}

// BuildProgram implements driver.Driver. No callback is given, so it blocks until the build finishes.
func (d *Driver) BuildProgram(id driver.ProgramID, devices []driver.DeviceID, options string) driver.Status {
	cOptions := C.CString(options)
	defer C.free(unsafe.Pointer(cOptions))
	numDevices, deviceIDs := deviceList(devices)
	return status(C.clBuildProgram(cProgram(id), numDevices, deviceIDs, cOptions, nil, nil))
}

// CreateKernel implements driver.Driver.
func (d *Driver) CreateKernel(program driver.ProgramID, name string) (driver.KernelID, driver.Status) {
	cName := C.CString(name)
	defer C.free(unsafe.Pointer(cName))
	var code C.cl_int
	k := C.clCreateKernel(cProgram(program), cName, &code)
	return driver.KernelID(unsafe.Pointer(k)), status(code)
}

// SetKernelArg implements driver.Driver.
func (d *Driver) SetKernelArg(kernel driver.KernelID, index uint32, size uintptr, value unsafe.Pointer) driver.Status {
	return status(C.clSetKernelArg(cKernel(kernel), C.cl_uint(index), C.size_t(size), value))
}

func clBool(b bool) C.cl_bool {
	if b {
		return C.CL_TRUE
	}
	return C.CL_FALSE
}

// EnqueueReadBuffer implements driver.Driver. For non-blocking reads ptr must stay pinned until
// the returned event completes.
func (d *Driver) EnqueueReadBuffer(queue driver.CommandQueueID, mem driver.MemID, blocking bool, offset, size uintptr,
	ptr unsafe.Pointer, waitList []driver.EventID) (driver.EventID, driver.Status) {
	var event C.cl_event
	numEvents, events := eventList(waitList)
	code := C.clEnqueueReadBuffer(cQueue(queue), cMem(mem), clBool(blocking), C.size_t(offset), C.size_t(size), ptr,
		numEvents, events, &event)
	return driver.EventID(unsafe.Pointer(event)), status(code)
}

// EnqueueWriteBuffer implements driver.Driver. For non-blocking writes ptr must stay pinned until
// the returned event completes.
func (d *Driver) EnqueueWriteBuffer(queue driver.CommandQueueID, mem driver.MemID, blocking bool, offset, size uintptr,
	ptr unsafe.Pointer, waitList []driver.EventID) (driver.EventID, driver.Status) {
	var event C.cl_event
	numEvents, events := eventList(waitList)
	code := C.clEnqueueWriteBuffer(cQueue(queue), cMem(mem), clBool(blocking), C.size_t(offset), C.size_t(size), ptr,
		numEvents, events, &event)
	return driver.EventID(unsafe.Pointer(event)), status(code)
}

// EnqueueCopyBuffer implements driver.Driver.
func (d *Driver) EnqueueCopyBuffer(queue driver.CommandQueueID, src, dst driver.MemID, srcOffset, dstOffset, size uintptr,
	waitList []driver.EventID) (driver.EventID, driver.Status) {
	var event C.cl_event
	numEvents, events := eventList(waitList)
	code := C.clEnqueueCopyBuffer(cQueue(queue), cMem(src), cMem(dst), C.size_t(srcOffset), C.size_t(dstOffset),
		C.size_t(size), numEvents, events, &event)
	return driver.EventID(unsafe.Pointer(event)), status(code)
}

// EnqueueFillBuffer implements driver.Driver. The pattern is copied by the runtime.
func (d *Driver) EnqueueFillBuffer(queue driver.CommandQueueID, mem driver.MemID, pattern []byte, offset, size uintptr,
	waitList []driver.EventID) (driver.EventID, driver.Status) {
	var event C.cl_event
	numEvents, events := eventList(waitList)
	code := C.clEnqueueFillBuffer(cQueue(queue), cMem(mem), firstOrNil(pattern), C.size_t(len(pattern)),
		C.size_t(offset), C.size_t(size), numEvents, events, &event)
	return driver.EventID(unsafe.Pointer(event)), status(code)
}

// EnqueueNDRangeKernel implements driver.Driver.
func (d *Driver) EnqueueNDRangeKernel(queue driver.CommandQueueID, kernel driver.KernelID, globalOffset, globalSize,
	localSize []uintptr, waitList []driver.EventID) (driver.EventID, driver.Status) {
	var event C.cl_event
	numEvents, events := eventList(waitList)
	code := C.clEnqueueNDRangeKernel(cQueue(queue), cKernel(kernel), C.cl_uint(len(globalSize)),
		(*C.size_t)(firstOrNil(globalOffset)), (*C.size_t)(firstOrNil(globalSize)), (*C.size_t)(firstOrNil(localSize)),
		numEvents, events, &event)
	return driver.EventID(unsafe.Pointer(event)), status(code)
}

// EnqueueMarkerWithWaitList implements driver.Driver.
func (d *Driver) EnqueueMarkerWithWaitList(queue driver.CommandQueueID, waitList []driver.EventID) (driver.EventID, driver.Status) {
	var event C.cl_event
	numEvents, events := eventList(waitList)
	code := C.clEnqueueMarkerWithWaitList(cQueue(queue), numEvents, events, &event)
	return driver.EventID(unsafe.Pointer(event)), status(code)
}

// WaitForEvents implements driver.Driver.
func (d *Driver) WaitForEvents(events []driver.EventID) driver.Status {
	numEvents, ids := eventList(events)
	return status(C.clWaitForEvents(numEvents, ids))
}

// Flush implements driver.Driver.
func (d *Driver) Flush(queue driver.CommandQueueID) driver.Status {
	return status(C.clFlush(cQueue(queue)))
}

// Finish implements driver.Driver.
func (d *Driver) Finish(queue driver.CommandQueueID) driver.Status {
	return status(C.clFinish(cQueue(queue)))
}
