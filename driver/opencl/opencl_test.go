//go:build opencl

// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package opencl_test

import (
	"testing"

	"github.com/gomlx/gocl/driver"
	"github.com/gomlx/gocl/driver/opencl"
	"github.com/gomlx/gocl/pkg/core/cl"
	"github.com/gomlx/gocl/pkg/core/dtypes"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const addSource = `
__kernel void add(__global const float* a, __global const float* b, __global float* c) {
	size_t i = get_global_id(0);
	c[i] = a[i] + b[i];
}
`

// newSession returns a session on the default OpenCL device, or skips the test if there is none.
func newSession(t *testing.T) *cl.Session {
	d := opencl.New("")
	platforms, err := cl.Platforms(d)
	require.NoError(t, err)
	if len(platforms) == 0 {
		t.Skip("no OpenCL platform available")
	}
	device, err := cl.DefaultDevice(d)
	if err != nil {
		t.Skipf("no OpenCL device available: %v", err)
	}
	defer device.Release()
	s, err := cl.NewSession(device, addSource)
	require.NoError(t, err)
	t.Cleanup(s.Release)
	return s
}

func TestEnumeration(t *testing.T) {
	d := opencl.New("")
	devices, err := cl.AllDevices(d, driver.DeviceTypeAll)
	require.NoError(t, err)
	for _, device := range devices {
		name, err := device.Name()
		require.NoError(t, err)
		assert.NotEmpty(t, name)
		t.Logf("device: %s", name)
	}
	for _, device := range devices {
		device.Release()
	}
}

func TestAdd(t *testing.T) {
	s := newSession(t)
	a := must.M1(s.CreateBufferFromSlice([]float32{1, 2, 3}, cl.Access{}))
	defer a.Release()
	b := must.M1(s.CreateBufferFromSlice([]float32{10, 20, 30}, cl.Access{}))
	defer b.Release()
	c := must.M1(s.CreateBuffer(dtypes.Float32, 3, cl.Access{}))
	defer c.Release()
	require.NoError(t, s.ExecuteSyncKernelOperation(cl.NewKernelOperation("add").Work(cl.One(3)).Args(a, b, c)))
	got := make([]float32, 3)
	require.NoError(t, s.SyncReadBuffer(c, got))
	assert.Equal(t, []float32{11, 22, 33}, got)
}
