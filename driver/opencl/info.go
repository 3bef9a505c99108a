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
)

// infoCall runs one of the clGet*Info functions: with an empty value it only queries the
// size of the value.
func infoCall(value []byte, call func(size C.size_t, ptr unsafe.Pointer, sizeRet *C.size_t) C.cl_int) (int, driver.Status) {
	var sizeRet C.size_t
	code := call(C.size_t(len(value)), firstOrNil(value), &sizeRet)
	return int(sizeRet), status(code)
}

// GetPlatformInfo implements driver.Driver.
func (d *Driver) GetPlatformInfo(id driver.PlatformID, param driver.PlatformInfo, value []byte) (int, driver.Status) {
	return infoCall(value, func(size C.size_t, ptr unsafe.Pointer, sizeRet *C.size_t) C.cl_int {
		return C.clGetPlatformInfo(cPlatform(id), C.cl_platform_info(param), size, ptr, sizeRet)
	})
}

// GetDeviceInfo implements driver.Driver.
func (d *Driver) GetDeviceInfo(id driver.DeviceID, param driver.DeviceInfo, value []byte) (int, driver.Status) {
	return infoCall(value, func(size C.size_t, ptr unsafe.Pointer, sizeRet *C.size_t) C.cl_int {
		return C.clGetDeviceInfo(cDevice(id), C.cl_device_info(param), size, ptr, sizeRet)
	})
}

// GetContextInfo implements driver.Driver.
func (d *Driver) GetContextInfo(id driver.ContextID, param driver.ContextInfo, value []byte) (int, driver.Status) {
	return infoCall(value, func(size C.size_t, ptr unsafe.Pointer, sizeRet *C.size_t) C.cl_int {
		return C.clGetContextInfo(cContext(id), C.cl_context_info(param), size, ptr, sizeRet)
	})
}

// GetCommandQueueInfo implements driver.Driver.
func (d *Driver) GetCommandQueueInfo(id driver.CommandQueueID, param driver.CommandQueueInfo, value []byte) (int, driver.Status) {
	return infoCall(value, func(size C.size_t, ptr unsafe.Pointer, sizeRet *C.size_t) C.cl_int {
		return C.clGetCommandQueueInfo(cQueue(id), C.cl_command_queue_info(param), size, ptr, sizeRet)
	})
}

// GetMemObjectInfo implements driver.Driver.
func (d *Driver) GetMemObjectInfo(id driver.MemID, param driver.MemInfo, value []byte) (int, driver.Status) {
	return infoCall(value, func(size C.size_t, ptr unsafe.Pointer, sizeRet *C.size_t) C.cl_int {
		return C.clGetMemObjectInfo(cMem(id), C.cl_mem_info(param), size, ptr, sizeRet)
	})
}

// GetProgramInfo implements driver.Driver.
func (d *Driver) GetProgramInfo(id driver.ProgramID, param driver.ProgramInfo, value []byte) (int, driver.Status) {
	return infoCall(value, func(size C.size_t, ptr unsafe.Pointer, sizeRet *C.size_t) C.cl_int {
		return C.clGetProgramInfo(cProgram(id), C.cl_program_info(param), size, ptr, sizeRet)
	})
}

// GetProgramBuildInfo implements driver.Driver.
func (d *Driver) GetProgramBuildInfo(id driver.ProgramID, device driver.DeviceID, param driver.ProgramBuildInfo,
	value []byte) (int, driver.Status) {
	return infoCall(value, func(size C.size_t, ptr unsafe.Pointer, sizeRet *C.size_t) C.cl_int {
		return C.clGetProgramBuildInfo(cProgram(id), cDevice(device), C.cl_program_build_info(param), size, ptr, sizeRet)
	})
}

// GetKernelInfo implements driver.Driver.
func (d *Driver) GetKernelInfo(id driver.KernelID, param driver.KernelInfo, value []byte) (int, driver.Status) {
	return infoCall(value, func(size C.size_t, ptr unsafe.Pointer, sizeRet *C.size_t) C.cl_int {
		return C.clGetKernelInfo(cKernel(id), C.cl_kernel_info(param), size, ptr, sizeRet)
	})
}

// GetKernelWorkGroupInfo implements driver.Driver.
func (d *Driver) GetKernelWorkGroupInfo(id driver.KernelID, device driver.DeviceID, param driver.KernelWorkGroupInfo,
	value []byte) (int, driver.Status) {
	return infoCall(value, func(size C.size_t, ptr unsafe.Pointer, sizeRet *C.size_t) C.cl_int {
		return C.clGetKernelWorkGroupInfo(cKernel(id), cDevice(device), C.cl_kernel_work_group_info(param), size, ptr, sizeRet)
	})
}

// GetEventInfo implements driver.Driver.
func (d *Driver) GetEventInfo(id driver.EventID, param driver.EventInfo, value []byte) (int, driver.Status) {
	return infoCall(value, func(size C.size_t, ptr unsafe.Pointer, sizeRet *C.size_t) C.cl_int {
		return C.clGetEventInfo(cEvent(id), C.cl_event_info(param), size, ptr, sizeRet)
	})
}

// GetEventProfilingInfo implements driver.Driver.
func (d *Driver) GetEventProfilingInfo(id driver.EventID, param driver.ProfilingInfo, value []byte) (int, driver.Status) {
	return infoCall(value, func(size C.size_t, ptr unsafe.Pointer, sizeRet *C.size_t) C.cl_int {
		return C.clGetEventProfilingInfo(cEvent(id), C.cl_profiling_info(param), size, ptr, sizeRet)
	})
}

// GetSamplerInfo implements driver.Driver.
func (d *Driver) GetSamplerInfo(id driver.SamplerID, param driver.SamplerInfo, value []byte) (int, driver.Status) {
	return infoCall(value, func(size C.size_t, ptr unsafe.Pointer, sizeRet *C.size_t) C.cl_int {
		return C.clGetSamplerInfo(cSampler(id), C.cl_sampler_info(param), size, ptr, sizeRet)
	})
}

// GetProgramBinaries implements driver.Driver. The binaries are fetched into C memory, since the
// runtime writes through an array of pointers.
func (d *Driver) GetProgramBinaries(id driver.ProgramID, binaries [][]byte) driver.Status {
	n := len(binaries)
	ptrs := mallocArray[*C.uchar](n)
	defer C.free(unsafe.Pointer(ptrs))
	cPtrs := unsafe.Slice(ptrs, n)
	for i, binary := range binaries {
		if len(binary) > 0 {
			cPtrs[i] = (*C.uchar)(C.malloc(C.size_t(len(binary))))
		}
	}
	defer func() {
		for _, ptr := range cPtrs {
			if ptr != nil {
				C.free(unsafe.Pointer(ptr))
			}
		}
	}()
	code := C.clGetProgramInfo(cProgram(id), C.CL_PROGRAM_BINARIES, sizeOf[*C.uchar]()*C.size_t(n),
		unsafe.Pointer(ptrs), nil)
	if code != C.CL_SUCCESS {
		return status(code)
	}
	for i, binary := range binaries {
		if cPtrs[i] != nil {
			copy(binary, unsafe.Slice((*byte)(unsafe.Pointer(cPtrs[i])), len(binary)))
		}
	}
	return driver.Success
}
