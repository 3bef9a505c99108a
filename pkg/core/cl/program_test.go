// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package cl

import (
	"testing"

	"github.com/gomlx/gocl/driver"
	"github.com/gomlx/gocl/pkg/core/clerr"
	"github.com/google/go-cmp/cmp"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestContext returns a context over the default device of a new simulated driver.
func newTestContext(t *testing.T) (*Context, *Device) {
	d := newTestDriver(t, "")
	device := must.M1(DefaultDevice(d))
	ctx := must.M1(NewContext(device))
	t.Cleanup(func() {
		ctx.Release()
		device.Release()
	})
	return ctx, device
}

func TestProgramBuild(t *testing.T) {
	ctx, device := newTestContext(t)
	p, err := NewProgramFromSource(ctx, testSource)
	require.NoError(t, err)
	defer p.Release()
	assert.Equal(t, Unbuilt, p.State())
	assert.Equal(t, testSource, must.M1(p.Source()))

	_, err = p.Kernel("add")
	require.ErrorIs(t, err, clerr.ErrProgramNotBuilt)
	_, err = p.KernelNames()
	require.ErrorIs(t, err, clerr.ErrProgramNotBuilt)

	require.NoError(t, p.Build("-cl-fast-relaxed-math"))
	assert.Equal(t, Built, p.State())
	want := []string{"add", "increment", "scale", "add_vec4", "group_sum", "sleep"}
	if diff := cmp.Diff(want, must.M1(p.KernelNames())); diff != "" {
		t.Errorf("KernelNames() mismatch (-want +got):\n%s", diff)
	}
	require.ErrorIs(t, p.Build(""), clerr.ErrAlreadyBuilt)
	clone := p.Clone()
	require.ErrorIs(t, clone.Build(""), clerr.ErrAlreadyBuilt)
	clone.Release()

	logs, err := p.BuildLogs()
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "simgo-cpu-0.0", logs[0].DeviceName)

	devices := must.M1(p.Devices())
	require.Len(t, devices, 1)
	assert.True(t, devices[0].Equal(device))
	releaseAll(devices)
	programCtx := must.M1(p.Context())
	assert.True(t, programCtx.Equal(ctx))
	programCtx.Release()

	_, err = p.Kernel("missing")
	require.ErrorIs(t, err, &clerr.Error{Kind: clerr.KindStatusCode, Status: driver.InvalidKernelName})
}

func TestProgramBuildFailure(t *testing.T) {
	ctx, device := newTestContext(t)
	truncated := testSource[:len(testSource)/3]
	p := must.M1(NewProgramFromSource(ctx, truncated))
	defer p.Release()

	err := p.Build("", device)
	require.ErrorIs(t, err, clerr.ErrBuildFailed)
	assert.Equal(t, BuildFailed, p.State())
	logs := clerr.As(err).Logs
	require.Len(t, logs, 1)
	assert.Equal(t, "simgo-cpu-0.0", logs[0].DeviceName)
	assert.Contains(t, logs[0].Log, "error:")
	assert.Contains(t, err.Error(), logs[0].Log[:20])

	// The state is final, and the logs are kept.
	require.ErrorIs(t, p.Build(""), clerr.ErrAlreadyBuilt)
	kept, err := p.BuildLogs()
	require.NoError(t, err)
	assert.Equal(t, logs, kept)
	_, err = p.Kernel("add")
	require.ErrorIs(t, err, clerr.ErrProgramNotBuilt)

	// Invalid options fail without changing the state.
	other := must.M1(NewProgramFromSource(ctx, testSource))
	defer other.Release()
	err = other.Build("fast")
	require.ErrorIs(t, err, &clerr.Error{Kind: clerr.KindStatusCode, Status: driver.InvalidBuildOptions})
	assert.Equal(t, Unbuilt, other.State())
	require.NoError(t, other.Build(""))

	_, err = NewProgramFromSource(ctx)
	require.ErrorIs(t, err, clerr.ErrInvalidProgram)
}

func TestProgramBinaries(t *testing.T) {
	ctx, device := newTestContext(t)
	p := must.M1(NewProgramFromSource(ctx, testSource))
	defer p.Release()
	require.NoError(t, p.Build(""))
	binaries, err := p.Binaries()
	require.NoError(t, err)
	require.Len(t, binaries, 1)
	require.NotEmpty(t, binaries[0])

	loaded, err := NewProgramFromBinaries(ctx, []*Device{device}, binaries)
	require.NoError(t, err)
	defer loaded.Release()
	assert.Empty(t, must.M1(loaded.Source()))
	require.NoError(t, loaded.Build(""))
	assert.Equal(t, must.M1(p.KernelNames()), must.M1(loaded.KernelNames()))

	_, err = NewProgramFromBinaries(ctx, []*Device{device}, [][]byte{[]byte("garbage")})
	require.ErrorIs(t, err, &clerr.Error{Kind: clerr.KindStatusCode, Status: driver.InvalidBinary})
	_, err = NewProgramFromBinaries(ctx, nil, binaries)
	require.ErrorIs(t, err, clerr.ErrInvalidProgram)
}
