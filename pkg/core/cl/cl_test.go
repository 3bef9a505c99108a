// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package cl

import (
	"testing"

	"github.com/gomlx/gocl/driver"
	"github.com/gomlx/gocl/driver/simgo"
	"github.com/gomlx/gocl/internal/handle"
	"github.com/gomlx/gocl/pkg/core/clerr"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSource = `
__kernel void add(__global const long* a, __global const long* b, __global long* c) {
	size_t i = get_global_id(0);
	c[i] = a[i] + b[i];
}

__kernel void increment(__global int* x) {
	x[get_global_id(0)] += 1;
}

__kernel void scale(__global float* x, float factor) { x[get_global_id(0)] *= factor; }
__kernel void add_vec4(__global float4* x, float4 delta) { x[get_global_id(0)] += delta; }
__kernel void group_sum(__global const float* in, __global float* out, __local float* scratch) {}
__kernel void sleep(uint ms) {}
`

// newTestDriver returns a simulated driver that, at the end of the test, checks that no
// runtime object was leaked.
func newTestDriver(t *testing.T, config string) *simgo.Driver {
	d := simgo.New(config)
	t.Cleanup(func() {
		assert.Equal(t, 0, d.LiveObjects(), "runtime objects leaked")
		d.Finalize()
	})
	return d
}

// newTestSession returns a session on the default device of a new simulated driver.
func newTestSession(t *testing.T) (*simgo.Driver, *Session) {
	d := newTestDriver(t, "")
	device := must.M1(DefaultDevice(d))
	defer device.Release()
	s, err := NewSession(device, testSource)
	require.NoError(t, err)
	t.Cleanup(s.Release)
	return d, s
}

// refCount returns the reference count of the object in the simulated runtime.
func refCount[ID driver.Object](d *simgo.Driver, h *handle.Handle[ID]) int {
	return d.ReferenceCount(uintptr(h.Raw()))
}

func TestPlatforms(t *testing.T) {
	d := newTestDriver(t, "platforms=2,devices=2,gpus=1,unusable=2")
	platforms, err := Platforms(d)
	require.NoError(t, err)
	require.Len(t, platforms, 2)
	assert.Equal(t, "SimGo Platform #1", must.M1(platforms[1].Name()))
	assert.Equal(t, "FULL_PROFILE", must.M1(platforms[0].Profile()))
	assert.Contains(t, must.M1(platforms[0].Version()), "OpenCL")
	assert.NotEmpty(t, must.M1(platforms[0].Vendor()))
	assert.True(t, must.M1(platforms[0].Extensions()).Has("cl_khr_device_uuid"))

	// Unusable devices are dropped.
	devices, err := platforms[0].Devices(driver.DeviceTypeAll)
	require.NoError(t, err)
	defer releaseAll(devices)
	require.Len(t, devices, 3)
	assert.Equal(t, "simgo-cpu-0.0", must.M1(devices[0].Name()))
	assert.Equal(t, driver.DeviceTypeGPU, must.M1(devices[2].Type()))

	gpus, err := platforms[1].Devices(driver.DeviceTypeGPU)
	require.NoError(t, err)
	defer releaseAll(gpus)
	require.Len(t, gpus, 1)
	assert.Equal(t, "simgo-gpu-1.0", must.M1(gpus[0].Name()))

	// No matching device is an empty list, not an error.
	accelerators, err := platforms[0].Devices(driver.DeviceTypeAccelerator)
	require.NoError(t, err)
	assert.Empty(t, accelerators)

	all, err := AllDevices(d, driver.DeviceTypeAll)
	require.NoError(t, err)
	assert.Len(t, all, 6)
	releaseAll(all)

	platform := must.M1(devices[1].Platform())
	assert.True(t, platform.Equal(platforms[0]))
}

func TestDeviceMetadata(t *testing.T) {
	d := newTestDriver(t, "")
	device := must.M1(DefaultDevice(d))
	defer device.Release()

	assert.True(t, must.M1(device.Available()))
	assert.Greater(t, must.M1(device.MaxComputeUnits()), uint32(0))
	assert.Equal(t, uintptr(1024), must.M1(device.MaxWorkGroupSize()))
	assert.Equal(t, []uintptr{1024, 1024, 64}, must.M1(device.MaxWorkItemSizes()))
	assert.Greater(t, must.M1(device.GlobalMemSize()), must.M1(device.LocalMemSize()))
	assert.LessOrEqual(t, must.M1(device.MaxMemAllocSize()), must.M1(device.GlobalMemSize()))
	assert.NotEmpty(t, must.M1(device.DriverVersion()))
	assert.NotEmpty(t, must.M1(device.Vendor()))
	assert.Contains(t, must.M1(device.Version()), "OpenCL")
	assert.True(t, must.M1(device.Extensions()).Has("cl_khr_device_uuid"))

	// Device UUIDs are stable across drivers.
	id := must.M1(device.UUID())
	other := newTestDriver(t, "")
	otherDevice := must.M1(DefaultDevice(other))
	defer otherDevice.Release()
	assert.Equal(t, id, must.M1(otherDevice.UUID()))

	// Metadata queries are idempotent.
	for range 3 {
		assert.Equal(t, "simgo-cpu-0.0", must.M1(device.Name()))
	}
	assert.Contains(t, device.String(), "simgo-cpu-0.0")
}

func TestReferenceCounting(t *testing.T) {
	d := newTestDriver(t, "")
	device := must.M1(DefaultDevice(d))
	rawDevice := uintptr(device.h.Raw())
	initialDeviceRefs := d.ReferenceCount(rawDevice)

	ctx, err := NewContext(device)
	require.NoError(t, err)
	assert.Equal(t, 1, refCount(d, ctx.h))
	assert.Equal(t, uint32(1), must.M1(ctx.ReferenceCount()))
	// The context holds the device: its runtime reference plus our clone.
	assert.Equal(t, initialDeviceRefs+2, refCount(d, device.h))

	clone := ctx.Clone()
	assert.Equal(t, 2, refCount(d, ctx.h))
	assert.True(t, clone.Equal(ctx))
	clone.Release()
	clone.Release() // Idempotent.
	assert.Equal(t, 1, refCount(d, ctx.h))

	devices, err := ctx.Devices()
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.True(t, devices[0].Equal(device))
	assert.Equal(t, uint32(1), must.M1(ctx.NumDevices()))
	releaseAll(devices)

	ctx.Release()
	ctx.Release()
	assert.Equal(t, initialDeviceRefs, refCount(d, device.h))
	assert.Equal(t, 0, d.LiveObjectsOfKind(driver.KindContext))

	// Using a released handle is an error, not a crash.
	_, err = NewProgramFromSource(ctx, testSource)
	assert.ErrorIs(t, err, clerr.ErrNullHandle)
	device.Release()
	device.Release()
	assert.Equal(t, initialDeviceRefs-1, d.ReferenceCount(rawDevice))
}

func TestCloneReleaseBalance(t *testing.T) {
	d := newTestDriver(t, "")
	device := must.M1(DefaultDevice(d))
	defer device.Release()
	ctx := must.M1(NewContext(device))
	raw := uintptr(ctx.h.Raw())
	start := d.ReferenceCount(raw)
	require.Equal(t, 1, start)

	clones := make([]*Context, 5)
	for i := range clones {
		clones[i] = ctx.Clone()
	}
	assert.Equal(t, start+5, d.ReferenceCount(raw))
	for _, clone := range clones {
		clone.Release()
	}
	assert.Equal(t, start, d.ReferenceCount(raw))
	ctx.Release()
	assert.Equal(t, -1, d.ReferenceCount(raw))
	assert.Equal(t, 0, d.LiveObjectsOfKind(driver.KindContext))
}

func TestNullAndUnusableHandles(t *testing.T) {
	d := newTestDriver(t, "unusable=1")
	_, err := handle.Wrap(d, driver.ContextID(0))
	require.ErrorIs(t, err, clerr.ErrNullHandle)
	assert.Equal(t, driver.KindContext, clerr.As(err).HandleKind)
	_, err = handle.WrapAndRetain(d, driver.UnusableDeviceID)
	require.ErrorIs(t, err, clerr.ErrUnusableDevice)
	_, err = wrapDevice(d, 0)
	require.ErrorIs(t, err, clerr.ErrNullHandle)

	// Device lists never contain the sentinel.
	devices := must.M1(AllDevices(d, driver.DeviceTypeAll))
	defer releaseAll(devices)
	require.Len(t, devices, 1)
	for _, dev := range devices {
		assert.NotEqual(t, driver.UnusableDeviceID, dev.h.Raw())
	}

	// Invalid devices are refused before reaching the runtime.
	d.ResetCallCounts()
	_, err = NewContext(devices[0], nil)
	require.ErrorIs(t, err, clerr.ErrInvalidDevice)
	assert.Equal(t, 1, clerr.As(err).Index)
	_, err = NewContext()
	require.ErrorIs(t, err, clerr.ErrInvalidDevice)
	released := devices[0].Clone()
	released.Release()
	_, err = NewContext(released)
	require.ErrorIs(t, err, clerr.ErrInvalidDevice)
	assert.Zero(t, d.CallCount("CreateContext"))
}

func TestContextBuilder(t *testing.T) {
	d := newTestDriver(t, "platforms=2,devices=2,gpus=1")
	platforms := must.M1(Platforms(d))
	devices := must.M1(platforms[1].Devices(driver.DeviceTypeAll))
	defer releaseAll(devices)

	d.ResetCallCounts()
	_, err := NewContextBuilder(d).WithDevices(devices...).WithDeviceType(driver.DeviceTypeGPU).Build()
	require.ErrorIs(t, err, &clerr.Error{Kind: clerr.KindContextBuilder, Reason: clerr.CannotSpecifyDevicesAndDeviceType})
	_, err = NewContextBuilder(d).WithDevices(devices...).WithPlatforms(platforms...).Build()
	require.ErrorIs(t, err, &clerr.Error{Kind: clerr.KindContextBuilder, Reason: clerr.CannotSpecifyDevicesAndPlatforms})
	assert.Zero(t, d.CallCount("CreateContext")+d.CallCount("CreateContextFromType"))

	testCases := []struct {
		name       string
		builder    *ContextBuilder
		numDevices uint32
	}{
		{"devices", NewContextBuilder(d).WithDevices(devices[0]), 1},
		{"platforms", NewContextBuilder(d).WithPlatforms(platforms[1], platforms[0]), 3},
		{"type", NewContextBuilder(d).WithDeviceType(driver.DeviceTypeCPU), 2},
		{"platforms and type", NewContextBuilder(d).WithPlatforms(platforms[1]).WithDeviceType(driver.DeviceTypeCPU), 2},
		{"default", NewContextBuilder(d), 1},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ctx, err := tc.builder.Build()
			require.NoError(t, err)
			defer ctx.Release()
			assert.Equal(t, tc.numDevices, must.M1(ctx.NumDevices()))
		})
	}

	// The device type filters the devices of the platform.
	gpuCtx := must.M1(NewContextBuilder(d).WithPlatforms(platforms[1]).WithDeviceType(driver.DeviceTypeGPU).Build())
	defer gpuCtx.Release()
	gpuDevices := must.M1(gpuCtx.Devices())
	defer releaseAll(gpuDevices)
	require.Len(t, gpuDevices, 1)
	assert.Equal(t, driver.DeviceTypeGPU, must.M1(gpuDevices[0].Type()))
	assert.Equal(t, "simgo-gpu-1.0", must.M1(gpuDevices[0].Name()))
	_, err = NewContextBuilder(d).WithPlatforms(platforms[1]).WithDeviceType(driver.DeviceTypeAccelerator).Build()
	require.ErrorIs(t, err, clerr.ErrStatusCode)

	// Device type contexts name their platform in the properties.
	ctx := must.M1(NewContextBuilder(d).WithDeviceType(driver.DeviceTypeGPU).Build())
	defer ctx.Release()
	props := must.M1(ctx.Properties())
	require.Len(t, props, 3)
	assert.Equal(t, driver.ContextPlatform, props[0])
	assert.Equal(t, driver.ContextProperty(platforms[0].h.Raw()), props[1])
}
