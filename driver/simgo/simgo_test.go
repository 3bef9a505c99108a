// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package simgo

import (
	"sync/atomic"
	"testing"
	"time"
	"unsafe"

	"github.com/gomlx/gocl/driver"
	"github.com/gomlx/gocl/internal/info"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testEnv holds a context with one queue over the first device of the first platform.
type testEnv struct {
	d      *Driver
	device driver.DeviceID
	ctx    driver.ContextID
	queue  driver.CommandQueueID
}

func newTestEnv(t *testing.T, config string) *testEnv {
	d := New(config)
	platforms := make([]driver.PlatformID, 1)
	n, status := d.GetPlatformIDs(platforms)
	require.Equal(t, driver.Success, status)
	require.GreaterOrEqual(t, n, 1)
	devices := make([]driver.DeviceID, 1)
	_, status = d.GetDeviceIDs(platforms[0], driver.DeviceTypeAll, devices)
	require.Equal(t, driver.Success, status)
	ctx, status := d.CreateContext(nil, devices)
	require.Equal(t, driver.Success, status)
	queue, status := d.CreateCommandQueue(ctx, devices[0], driver.QueueProfilingEnable)
	require.Equal(t, driver.Success, status)
	return &testEnv{d: d, device: devices[0], ctx: ctx, queue: queue}
}

func (env *testEnv) close(t *testing.T) {
	require.Equal(t, driver.Success, env.d.Finish(env.queue))
	require.Equal(t, driver.Success, env.d.ReleaseCommandQueue(env.queue))
	require.Equal(t, driver.Success, env.d.ReleaseContext(env.ctx))
	assert.Equal(t, 0, env.d.LiveObjects())
	env.d.Finalize()
}

func (env *testEnv) build(t *testing.T, source string) driver.ProgramID {
	program, status := env.d.CreateProgramWithSource(env.ctx, []string{source})
	require.Equal(t, driver.Success, status)
	require.Equal(t, driver.Success, env.d.BuildProgram(program, nil, ""))
	return program
}

func (env *testEnv) setMem(t *testing.T, kernel driver.KernelID, index uint32, mem driver.MemID) {
	require.Equal(t, driver.Success, env.d.SetKernelArg(kernel, index, unsafe.Sizeof(mem), unsafe.Pointer(&mem)))
}

func TestParseConfig(t *testing.T) {
	c, err := ParseConfig("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), c)

	c, err = ParseConfig("platforms=2, devices=3,gpus=1,unusable=1,parallelism=0")
	require.NoError(t, err)
	assert.Equal(t, Config{Platforms: 2, Devices: 3, GPUs: 1, Unusable: 1, Parallelism: 0}, c)

	_, err = ParseConfig("devices")
	require.Error(t, err)
	_, err = ParseConfig("devices=-1")
	require.Error(t, err)
	_, err = ParseConfig("colors=3")
	require.Error(t, err)
	require.Panics(t, func() { New("devices=x") })
}

func TestPlatformsAndDevices(t *testing.T) {
	d := New("platforms=2,devices=1,gpus=2,unusable=1")
	n, status := d.GetPlatformIDs(nil)
	require.Equal(t, driver.Success, status)
	require.Equal(t, 2, n)
	platforms := make([]driver.PlatformID, n)
	_, status = d.GetPlatformIDs(platforms)
	require.Equal(t, driver.Success, status)

	n, status = d.GetDeviceIDs(platforms[0], driver.DeviceTypeAll, nil)
	require.Equal(t, driver.Success, status)
	require.Equal(t, 4, n)
	devices := make([]driver.DeviceID, n)
	_, status = d.GetDeviceIDs(platforms[0], driver.DeviceTypeAll, devices)
	require.Equal(t, driver.Success, status)
	assert.Equal(t, driver.UnusableDeviceID, devices[3])

	n, status = d.GetDeviceIDs(platforms[1], driver.DeviceTypeGPU, nil)
	require.Equal(t, driver.Success, status)
	assert.Equal(t, 2, n)
	cpus := make([]driver.DeviceID, 4)
	n, status = d.GetDeviceIDs(platforms[1], driver.DeviceTypeCPU, cpus)
	require.Equal(t, driver.Success, status)
	require.Equal(t, 2, n)
	assert.Equal(t, driver.UnusableDeviceID, cpus[1])
	gpus := make([]driver.DeviceID, 4)
	n, status = d.GetDeviceIDs(platforms[1], driver.DeviceTypeGPU, gpus)
	require.Equal(t, driver.Success, status)
	assert.NotContains(t, gpus[:n], driver.UnusableDeviceID)
	_, status = d.GetDeviceIDs(platforms[0], driver.DeviceTypeAccelerator, nil)
	assert.Equal(t, driver.DeviceNotFound, status)
	_, status = d.GetDeviceIDs(driver.PlatformID(devices[0]), driver.DeviceTypeAll, nil)
	assert.Equal(t, driver.InvalidPlatform, status)

	name, err := info.String("clGetDeviceInfo", "DeviceName", func(value []byte) (int, driver.Status) {
		return d.GetDeviceInfo(devices[1], driver.DeviceName, value)
	})
	require.NoError(t, err)
	assert.Equal(t, "simgo-gpu-0.0", name)
	deviceType, err := info.One[driver.DeviceType]("clGetDeviceInfo", "DeviceTypeInfo", func(value []byte) (int, driver.Status) {
		return d.GetDeviceInfo(devices[1], driver.DeviceTypeInfo, value)
	})
	require.NoError(t, err)
	assert.Equal(t, driver.DeviceTypeGPU, deviceType)
	platformName, err := info.String("clGetPlatformInfo", "PlatformName", func(value []byte) (int, driver.Status) {
		return d.GetPlatformInfo(platforms[1], driver.PlatformName, value)
	})
	require.NoError(t, err)
	assert.Equal(t, "SimGo Platform #1", platformName)

	// Devices of a platform can't be released below the platform's reference.
	assert.Equal(t, driver.InvalidDevice, d.ReleaseDevice(devices[0]))
	assert.Equal(t, driver.Success, d.RetainDevice(devices[0]))
	assert.Equal(t, driver.Success, d.ReleaseDevice(devices[0]))
	assert.Equal(t, driver.InvalidDevice, d.RetainDevice(driver.UnusableDeviceID))
}

func TestContexts(t *testing.T) {
	d := New("platforms=2,devices=2")
	platforms := make([]driver.PlatformID, 2)
	_, _ = d.GetPlatformIDs(platforms)
	devs0 := make([]driver.DeviceID, 2)
	devs1 := make([]driver.DeviceID, 2)
	_, _ = d.GetDeviceIDs(platforms[0], driver.DeviceTypeAll, devs0)
	_, _ = d.GetDeviceIDs(platforms[1], driver.DeviceTypeAll, devs1)

	_, status := d.CreateContext(nil, nil)
	assert.Equal(t, driver.InvalidValue, status)
	_, status = d.CreateContext(nil, []driver.DeviceID{devs0[0], devs1[0]})
	assert.Equal(t, driver.InvalidDevice, status)
	_, status = d.CreateContext([]driver.ContextProperty{0x1234, 1, 0}, devs0)
	assert.Equal(t, driver.InvalidProperty, status)

	ctx, status := d.CreateContext([]driver.ContextProperty{driver.ContextPlatform, driver.ContextProperty(platforms[0]), 0}, devs0)
	require.Equal(t, driver.Success, status)
	assert.Equal(t, 2, d.ReferenceCount(uintptr(devs0[0])))
	numDevices, err := info.One[uint32]("clGetContextInfo", "ContextNumDevices", func(value []byte) (int, driver.Status) {
		return d.GetContextInfo(ctx, driver.ContextNumDevices, value)
	})
	require.NoError(t, err)
	assert.Equal(t, uint32(2), numDevices)
	require.Equal(t, driver.Success, d.ReleaseContext(ctx))
	assert.Equal(t, 1, d.ReferenceCount(uintptr(devs0[0])))
	assert.Equal(t, driver.InvalidContext, d.ReleaseContext(ctx))

	ctx, status = d.CreateContextFromType([]driver.ContextProperty{driver.ContextPlatform, driver.ContextProperty(platforms[1]), 0},
		driver.DeviceTypeCPU)
	require.Equal(t, driver.Success, status)
	devices, err := info.Slice[driver.DeviceID]("clGetContextInfo", "ContextDevices", func(value []byte) (int, driver.Status) {
		return d.GetContextInfo(ctx, driver.ContextDevices, value)
	})
	require.NoError(t, err)
	assert.Equal(t, devs1, devices)
	_, status = d.CreateContextFromType(nil, driver.DeviceTypeGPU)
	assert.Equal(t, driver.DeviceNotFound, status)
	require.Equal(t, driver.Success, d.ReleaseContext(ctx))
	assert.Equal(t, 0, d.LiveObjects())
}

func TestBuffers(t *testing.T) {
	env := newTestEnv(t, "")
	d := env.d
	defer env.close(t)

	_, status := d.CreateBuffer(env.ctx, driver.MemReadWrite, 0, nil)
	assert.Equal(t, driver.InvalidBufferSize, status)
	_, status = d.CreateBuffer(env.ctx, driver.MemReadWrite|driver.MemReadOnly, 16, nil)
	assert.Equal(t, driver.InvalidValue, status)
	_, status = d.CreateBuffer(env.ctx, driver.MemCopyHostPtr, 16, nil)
	assert.Equal(t, driver.InvalidHostPtr, status)

	host := []int32{1, 2, 3, 4}
	mem, status := d.CreateBuffer(env.ctx, driver.MemCopyHostPtr, 16, unsafe.Pointer(&host[0]))
	require.Equal(t, driver.Success, status)
	host[0] = 100 // The buffer has its own copy.

	got := make([]int32, 4)
	event, status := d.EnqueueReadBuffer(env.queue, mem, true, 0, 16, unsafe.Pointer(&got[0]), nil)
	require.Equal(t, driver.Success, status)
	assert.Equal(t, []int32{1, 2, 3, 4}, got)
	require.Equal(t, driver.Success, d.ReleaseEvent(event))

	// Out of bounds.
	_, status = d.EnqueueReadBuffer(env.queue, mem, true, 8, 16, unsafe.Pointer(&got[0]), nil)
	assert.Equal(t, driver.InvalidValue, status)

	// Fill, then copy within the buffer.
	pattern := []byte{7, 0, 0, 0}
	event, status = d.EnqueueFillBuffer(env.queue, mem, pattern, 0, 8, nil)
	require.Equal(t, driver.Success, status)
	require.Equal(t, driver.Success, d.ReleaseEvent(event))
	_, status = d.EnqueueCopyBuffer(env.queue, mem, mem, 0, 4, 8, nil)
	assert.Equal(t, driver.MemCopyOverlap, status)
	event, status = d.EnqueueCopyBuffer(env.queue, mem, mem, 0, 8, 8, nil)
	require.Equal(t, driver.Success, status)
	require.Equal(t, driver.Success, d.WaitForEvents([]driver.EventID{event}))
	require.Equal(t, driver.Success, d.ReleaseEvent(event))
	event, status = d.EnqueueReadBuffer(env.queue, mem, true, 0, 16, unsafe.Pointer(&got[0]), nil)
	require.Equal(t, driver.Success, status)
	assert.Equal(t, []int32{7, 7, 7, 7}, got)
	require.Equal(t, driver.Success, d.ReleaseEvent(event))

	// Host access flags.
	readOnly, status := d.CreateBuffer(env.ctx, driver.MemHostReadOnly, 16, nil)
	require.Equal(t, driver.Success, status)
	_, status = d.EnqueueWriteBuffer(env.queue, readOnly, true, 0, 16, unsafe.Pointer(&host[0]), nil)
	assert.Equal(t, driver.InvalidOperation, status)

	// Buffers aliasing host memory.
	aliased, status := d.CreateBuffer(env.ctx, driver.MemUseHostPtr, 16, unsafe.Pointer(&host[0]))
	require.Equal(t, driver.Success, status)
	event, status = d.EnqueueFillBuffer(env.queue, aliased, []byte{1, 0, 0, 0}, 0, 16, nil)
	require.Equal(t, driver.Success, status)
	require.Equal(t, driver.Success, d.WaitForEvents([]driver.EventID{event}))
	assert.Equal(t, []int32{1, 1, 1, 1}, host)
	require.Equal(t, driver.Success, d.ReleaseEvent(event))

	for _, m := range []driver.MemID{mem, readOnly, aliased} {
		require.Equal(t, driver.Success, d.ReleaseMemObject(m))
	}
}

const testSource = `
// Simple kernels.
__kernel void add(__global const float* a, __global const float* b, __global float* c) {
	int i = get_global_id(0);
	c[i] = a[i] + b[i];
}

__kernel void increment(__global int* x) { x[get_global_id(0)]++; }

/* Reduction over a work-group. */
kernel void group_sum(__global const float* in, __global float* out, __local float* scratch) {
}
kernel void sleep(unsigned int ms) {}
kernel void abort() {}
`

func TestProgramBuild(t *testing.T) {
	env := newTestEnv(t, "")
	d := env.d
	defer env.close(t)

	program := env.build(t, testSource)
	names, err := info.Strings("clGetProgramInfo", "ProgramKernelNames", ";", func(value []byte) (int, driver.Status) {
		return d.GetProgramInfo(program, driver.ProgramKernelNames, value)
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"add", "increment", "group_sum", "sleep", "abort"}, names)

	// Binaries round trip.
	sizes, err := info.Slice[uintptr]("clGetProgramInfo", "ProgramBinarySizes", func(value []byte) (int, driver.Status) {
		return d.GetProgramInfo(program, driver.ProgramBinarySizes, value)
	})
	require.NoError(t, err)
	require.Len(t, sizes, 1)
	binaries := [][]byte{make([]byte, sizes[0])}
	require.Equal(t, driver.Success, d.GetProgramBinaries(program, binaries))
	fromBinary, statuses, status := d.CreateProgramWithBinary(env.ctx, []driver.DeviceID{env.device}, binaries)
	require.Equal(t, driver.Success, status)
	assert.Equal(t, []driver.Status{driver.Success}, statuses)
	require.Equal(t, driver.Success, d.BuildProgram(fromBinary, nil, "-cl-fast-relaxed-math"))
	require.Equal(t, driver.Success, d.ReleaseProgram(fromBinary))
	_, statuses, status = d.CreateProgramWithBinary(env.ctx, []driver.DeviceID{env.device}, [][]byte{[]byte("garbage")})
	assert.Equal(t, driver.InvalidBinary, status)
	assert.Equal(t, []driver.Status{driver.InvalidBinary}, statuses)

	// A program can't be rebuilt while kernels are attached.
	kernel, status := d.CreateKernel(program, "add")
	require.Equal(t, driver.Success, status)
	assert.Equal(t, driver.InvalidOperation, d.BuildProgram(program, nil, ""))
	_, status = d.CreateKernel(program, "mul")
	assert.Equal(t, driver.InvalidKernelName, status)
	require.Equal(t, driver.Success, d.ReleaseKernel(kernel))
	assert.Equal(t, driver.Success, d.BuildProgram(program, nil, ""))
	assert.Equal(t, driver.InvalidBuildOptions, d.BuildProgram(program, nil, "fast"))
	require.Equal(t, driver.Success, d.ReleaseProgram(program))
}

func TestBuildFailure(t *testing.T) {
	env := newTestEnv(t, "")
	d := env.d
	defer env.close(t)

	program, status := d.CreateProgramWithSource(env.ctx, []string{"__kernel void k("})
	require.Equal(t, driver.Success, status)
	_, status = d.CreateKernel(program, "k")
	assert.Equal(t, driver.InvalidProgramExecutable, status)
	require.Equal(t, driver.BuildProgramFailure, d.BuildProgram(program, nil, ""))
	log, err := info.String("clGetProgramBuildInfo", "ProgramBuildLog", func(value []byte) (int, driver.Status) {
		return d.GetProgramBuildInfo(program, env.device, driver.ProgramBuildLog, value)
	})
	require.NoError(t, err)
	assert.Contains(t, log, "<source>:1:17: error: expected ')'")
	assert.Contains(t, log, "note: to match this '('")
	buildStatus, err := info.One[driver.BuildStatus]("clGetProgramBuildInfo", "ProgramBuildStatus", func(value []byte) (int, driver.Status) {
		return d.GetProgramBuildInfo(program, env.device, driver.ProgramBuildStatus, value)
	})
	require.NoError(t, err)
	assert.Equal(t, driver.BuildError, buildStatus)
	_, status = d.GetProgramInfo(program, driver.ProgramNumKernels, nil)
	assert.Equal(t, driver.InvalidProgramExecutable, status)
	require.Equal(t, driver.Success, d.ReleaseProgram(program))

	for source, want := range map[string]string{
		"__kernel void k(__global foo* x) {}":   "unknown type name 'foo'",
		"__kernel void k(float* x) {}":          "must reside in '__global', '__constant', or '__local' address space",
		"__kernel void unknown_kernel() {}":     "no Go implementation registered for kernel 'unknown_kernel'",
		"__kernel void add(__global int* a) {}}": "extraneous closing brace",
	} {
		program, status := d.CreateProgramWithSource(env.ctx, []string{source})
		require.Equal(t, driver.Success, status)
		require.Equal(t, driver.BuildProgramFailure, d.BuildProgram(program, nil, ""), source)
		log, err := info.String("clGetProgramBuildInfo", "ProgramBuildLog", func(value []byte) (int, driver.Status) {
			return d.GetProgramBuildInfo(program, env.device, driver.ProgramBuildLog, value)
		})
		require.NoError(t, err)
		assert.Contains(t, log, want, source)
		require.Equal(t, driver.Success, d.ReleaseProgram(program))
	}
}

func TestNDRange(t *testing.T) {
	env := newTestEnv(t, "parallelism=4")
	d := env.d
	defer env.close(t)

	program := env.build(t, testSource)
	kernel, status := d.CreateKernel(program, "add")
	require.Equal(t, driver.Success, status)

	const n = 1000
	a, b := make([]float32, n), make([]float32, n)
	for i := range a {
		a[i], b[i] = float32(i), float32(2*i)
	}
	const size = n * 4
	memA, _ := d.CreateBuffer(env.ctx, driver.MemReadOnly|driver.MemCopyHostPtr, size, unsafe.Pointer(&a[0]))
	memB, _ := d.CreateBuffer(env.ctx, driver.MemReadOnly|driver.MemCopyHostPtr, size, unsafe.Pointer(&b[0]))
	memC, status := d.CreateBuffer(env.ctx, driver.MemWriteOnly, size, nil)
	require.Equal(t, driver.Success, status)

	// Missing arguments.
	_, status = d.EnqueueNDRangeKernel(env.queue, kernel, nil, []uintptr{n}, nil, nil)
	assert.Equal(t, driver.InvalidKernelArgs, status)

	assert.Equal(t, driver.InvalidArgIndex, d.SetKernelArg(kernel, 3, 8, unsafe.Pointer(&memA)))
	assert.Equal(t, driver.InvalidArgSize, d.SetKernelArg(kernel, 0, 4, unsafe.Pointer(&memA)))
	bogus := driver.MemID(12345)
	assert.Equal(t, driver.InvalidMemObject, d.SetKernelArg(kernel, 0, unsafe.Sizeof(bogus), unsafe.Pointer(&bogus)))
	env.setMem(t, kernel, 0, memA)
	env.setMem(t, kernel, 1, memB)
	env.setMem(t, kernel, 2, memC)

	// Invalid work dimensions.
	for _, tc := range []struct {
		global, local []uintptr
		want          driver.Status
	}{
		{nil, nil, driver.InvalidWorkDimension},
		{[]uintptr{1, 1, 1, 1}, nil, driver.InvalidWorkDimension},
		{[]uintptr{0}, nil, driver.InvalidGlobalWorkSize},
		{[]uintptr{n}, []uintptr{3}, driver.InvalidWorkGroupSize},
		{[]uintptr{n, 1, 100}, []uintptr{1, 1, 100}, driver.InvalidWorkItemSize},
		{[]uintptr{n * 2, 1000}, []uintptr{1000, 2}, driver.InvalidWorkGroupSize},
	} {
		_, status = d.EnqueueNDRangeKernel(env.queue, kernel, nil, tc.global, tc.local, nil)
		assert.Equal(t, tc.want, status, "global=%v local=%v", tc.global, tc.local)
	}
	_, status = d.EnqueueNDRangeKernel(env.queue, kernel, []uintptr{0, 0}, []uintptr{n}, nil, nil)
	assert.Equal(t, driver.InvalidGlobalOffset, status)

	event, status := d.EnqueueNDRangeKernel(env.queue, kernel, nil, []uintptr{n}, []uintptr{10}, nil)
	require.Equal(t, driver.Success, status)
	got := make([]float32, n)
	readEvent, status := d.EnqueueReadBuffer(env.queue, memC, true, 0, size, unsafe.Pointer(&got[0]), []driver.EventID{event})
	require.Equal(t, driver.Success, status)
	for i := range got {
		require.Equal(t, float32(3*i), got[i], "c[%d]", i)
	}
	execStatus, err := info.One[driver.ExecutionStatus]("clGetEventInfo", "EventCommandExecutionStatus", func(value []byte) (int, driver.Status) {
		return d.GetEventInfo(event, driver.EventCommandExecutionStatus, value)
	})
	require.NoError(t, err)
	assert.Equal(t, driver.Complete, execStatus)
	start, err := info.One[uint64]("clGetEventProfilingInfo", "ProfilingCommandStart", func(value []byte) (int, driver.Status) {
		return d.GetEventProfilingInfo(event, driver.ProfilingCommandStart, value)
	})
	require.NoError(t, err)
	end, err := info.One[uint64]("clGetEventProfilingInfo", "ProfilingCommandEnd", func(value []byte) (int, driver.Status) {
		return d.GetEventProfilingInfo(event, driver.ProfilingCommandEnd, value)
	})
	require.NoError(t, err)
	assert.LessOrEqual(t, start, end)

	for _, id := range []driver.EventID{event, readEvent} {
		require.Equal(t, driver.Success, d.ReleaseEvent(id))
	}
	for _, m := range []driver.MemID{memA, memB, memC} {
		require.Equal(t, driver.Success, d.ReleaseMemObject(m))
	}
	require.Equal(t, driver.Success, d.ReleaseKernel(kernel))
	require.Equal(t, driver.Success, d.ReleaseProgram(program))
	assert.Equal(t, int64(1), d.CallCount("CreateKernel"))
}

func TestLocalMemory(t *testing.T) {
	env := newTestEnv(t, "")
	d := env.d
	defer env.close(t)

	program := env.build(t, testSource)
	kernel, _ := d.CreateKernel(program, "group_sum")
	in := make([]float32, 64)
	for i := range in {
		in[i] = 1
	}
	memIn, _ := d.CreateBuffer(env.ctx, driver.MemCopyHostPtr, 64*4, unsafe.Pointer(&in[0]))
	memOut, _ := d.CreateBuffer(env.ctx, driver.MemReadWrite, 4*4, nil)
	env.setMem(t, kernel, 0, memIn)
	env.setMem(t, kernel, 1, memOut)
	assert.Equal(t, driver.InvalidArgValue, d.SetKernelArg(kernel, 2, 16*4, unsafe.Pointer(&in[0])))
	assert.Equal(t, driver.InvalidArgSize, d.SetKernelArg(kernel, 2, 0, nil))
	require.Equal(t, driver.Success, d.SetKernelArg(kernel, 2, 16*4, nil))

	event, status := d.EnqueueNDRangeKernel(env.queue, kernel, nil, []uintptr{64}, []uintptr{16}, nil)
	require.Equal(t, driver.Success, status)
	require.Equal(t, driver.Success, d.ReleaseEvent(event))
	out := make([]float32, 4)
	event, status = d.EnqueueReadBuffer(env.queue, memOut, true, 0, 16, unsafe.Pointer(&out[0]), nil)
	require.Equal(t, driver.Success, status)
	assert.Equal(t, []float32{16, 16, 16, 16}, out)
	require.Equal(t, driver.Success, d.ReleaseEvent(event))

	localSize, err := info.One[uint64]("clGetKernelWorkGroupInfo", "KernelLocalMemSize", func(value []byte) (int, driver.Status) {
		return d.GetKernelWorkGroupInfo(kernel, env.device, driver.KernelLocalMemSize, value)
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(64), localSize)

	for _, m := range []driver.MemID{memIn, memOut} {
		require.Equal(t, driver.Success, d.ReleaseMemObject(m))
	}
	require.Equal(t, driver.Success, d.ReleaseKernel(kernel))
	require.Equal(t, driver.Success, d.ReleaseProgram(program))
}

// TestCrossQueueOrdering checks that a command waiting on an event of another queue only
// runs after that event completes.
func TestCrossQueueOrdering(t *testing.T) {
	env := newTestEnv(t, "")
	d := env.d
	defer env.close(t)

	other, status := d.CreateCommandQueue(env.ctx, env.device, 0)
	require.Equal(t, driver.Success, status)
	program := env.build(t, testSource)
	sleep, _ := d.CreateKernel(program, "sleep")
	increment, _ := d.CreateKernel(program, "increment")
	ms := uint32(50)
	require.Equal(t, driver.Success, d.SetKernelArg(sleep, 0, 4, unsafe.Pointer(&ms)))
	var zero int32
	mem, _ := d.CreateBuffer(env.ctx, driver.MemCopyHostPtr, 4, unsafe.Pointer(&zero))
	env.setMem(t, increment, 0, mem)

	sleepEvent, status := d.EnqueueNDRangeKernel(env.queue, sleep, nil, []uintptr{1}, nil, nil)
	require.Equal(t, driver.Success, status)
	incEvent, status := d.EnqueueNDRangeKernel(env.queue, increment, nil, []uintptr{1}, nil, nil)
	require.Equal(t, driver.Success, status)

	// The read in the other queue must see the increment.
	var got int32
	readEvent, status := d.EnqueueReadBuffer(other, mem, false, 0, 4, unsafe.Pointer(&got), []driver.EventID{incEvent})
	require.Equal(t, driver.Success, status)
	require.Equal(t, driver.Success, d.WaitForEvents([]driver.EventID{readEvent}))
	assert.Equal(t, int32(1), got)

	// Marker with an empty wait-list waits for all previous commands.
	marker, status := d.EnqueueMarkerWithWaitList(env.queue, nil)
	require.Equal(t, driver.Success, status)
	require.Equal(t, driver.Success, d.WaitForEvents([]driver.EventID{marker}))

	for _, e := range []driver.EventID{sleepEvent, incEvent, readEvent, marker} {
		require.Equal(t, driver.Success, d.ReleaseEvent(e))
	}
	assert.Equal(t, driver.InvalidValue, d.WaitForEvents(nil))
	assert.Equal(t, driver.InvalidEvent, d.WaitForEvents([]driver.EventID{marker}))
	require.Equal(t, driver.Success, d.ReleaseMemObject(mem))
	require.Equal(t, driver.Success, d.ReleaseKernel(sleep))
	require.Equal(t, driver.Success, d.ReleaseKernel(increment))
	require.Equal(t, driver.Success, d.ReleaseProgram(program))
	require.Equal(t, driver.Success, d.Finish(other))
	require.Equal(t, driver.Success, d.ReleaseCommandQueue(other))
}

func TestFailedCommands(t *testing.T) {
	env := newTestEnv(t, "")
	d := env.d
	defer env.close(t)

	program := env.build(t, testSource)
	abort, _ := d.CreateKernel(program, "abort")
	event, status := d.EnqueueNDRangeKernel(env.queue, abort, nil, []uintptr{4}, nil, nil)
	require.Equal(t, driver.Success, status)
	assert.Equal(t, driver.ExecStatusErrorForEventsInWaitList, d.WaitForEvents([]driver.EventID{event}))

	// Commands depending on a failed event fail too, without running.
	var got int32
	mem, _ := d.CreateBuffer(env.ctx, driver.MemReadWrite, 4, nil)
	_, status = d.EnqueueReadBuffer(env.queue, mem, true, 0, 4, unsafe.Pointer(&got), []driver.EventID{event})
	assert.Equal(t, driver.ExecStatusErrorForEventsInWaitList, status)

	_, status = d.GetEventProfilingInfo(event, driver.ProfilingCommandEnd, nil)
	assert.Equal(t, driver.ProfilingInfoNotAvailable, status)
	require.Equal(t, driver.Success, d.ReleaseEvent(event))
	require.Equal(t, driver.Success, d.ReleaseMemObject(mem))
	require.Equal(t, driver.Success, d.ReleaseKernel(abort))
	require.Equal(t, driver.Success, d.ReleaseProgram(program))
}

func TestEventsOutliveRelease(t *testing.T) {
	env := newTestEnv(t, "")
	d := env.d
	defer env.close(t)

	program := env.build(t, testSource)
	sleep, _ := d.CreateKernel(program, "sleep")
	ms := uint32(20)
	require.Equal(t, driver.Success, d.SetKernelArg(sleep, 0, 4, unsafe.Pointer(&ms)))
	event, status := d.EnqueueNDRangeKernel(env.queue, sleep, nil, []uintptr{1}, nil, nil)
	require.Equal(t, driver.Success, status)

	// Releasing the user reference doesn't cancel the command, and the kernel stays alive until it runs.
	require.Equal(t, driver.Success, d.ReleaseEvent(event))
	require.Equal(t, driver.Success, d.ReleaseKernel(sleep))
	require.Equal(t, driver.Success, d.ReleaseProgram(program))
	var done atomic.Bool
	go func() {
		_ = d.Finish(env.queue)
		done.Store(true)
	}()
	require.Eventually(t, done.Load, time.Second, time.Millisecond)
	assert.Equal(t, 0, d.LiveObjectsOfKind(driver.KindKernel))
	assert.Equal(t, 0, d.LiveObjectsOfKind(driver.KindEvent))
}

// TestSingleWorkerCrossQueueWait chains markers across three queues with a single pool worker:
// a command blocked on another queue's event must not keep that queue from running.
func TestSingleWorkerCrossQueueWait(t *testing.T) {
	env := newTestEnv(t, "parallelism=1")
	d := env.d
	defer env.close(t)

	queues := []driver.CommandQueueID{env.queue}
	for range 2 {
		q, status := d.CreateCommandQueue(env.ctx, env.device, 0)
		require.Equal(t, driver.Success, status)
		queues = append(queues, q)
	}
	program := env.build(t, testSource)
	sleep, _ := d.CreateKernel(program, "sleep")
	ms := uint32(50)
	require.Equal(t, driver.Success, d.SetKernelArg(sleep, 0, 4, unsafe.Pointer(&ms)))

	first, status := d.EnqueueNDRangeKernel(queues[0], sleep, nil, []uintptr{1}, nil, nil)
	require.Equal(t, driver.Success, status)
	second, status := d.EnqueueMarkerWithWaitList(queues[1], []driver.EventID{first})
	require.Equal(t, driver.Success, status)
	third, status := d.EnqueueMarkerWithWaitList(queues[2], []driver.EventID{second})
	require.Equal(t, driver.Success, status)

	var done atomic.Bool
	go func() {
		_ = d.WaitForEvents([]driver.EventID{third})
		done.Store(true)
	}()
	require.Eventually(t, done.Load, 5*time.Second, time.Millisecond)

	for _, e := range []driver.EventID{first, second, third} {
		require.Equal(t, driver.Success, d.ReleaseEvent(e))
	}
	require.Equal(t, driver.Success, d.ReleaseKernel(sleep))
	require.Equal(t, driver.Success, d.ReleaseProgram(program))
	for _, q := range queues[1:] {
		require.Equal(t, driver.Success, d.Finish(q))
		require.Equal(t, driver.Success, d.ReleaseCommandQueue(q))
	}
}

func TestComputeUnits(t *testing.T) {
	for _, tc := range []struct {
		config string
		want   uint32
	}{{"parallelism=0", 1}, {"parallelism=3", 3}} {
		env := newTestEnv(t, tc.config)
		units, err := info.One[uint32]("clGetDeviceInfo", "DeviceMaxComputeUnits", func(value []byte) (int, driver.Status) {
			return env.d.GetDeviceInfo(env.device, driver.DeviceMaxComputeUnits, value)
		})
		require.NoError(t, err)
		assert.Equalf(t, tc.want, units, "config %q", tc.config)
		env.close(t)
	}
}
