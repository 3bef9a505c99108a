// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package cl

import (
	"math"
	"testing"

	"github.com/gomlx/gocl/driver"
	"github.com/gomlx/gocl/pkg/core/clerr"
	"github.com/gomlx/gocl/pkg/core/dtypes"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccessFlags(t *testing.T) {
	testCases := []struct {
		access      Access
		hasHostData bool
		want        driver.MemFlags
	}{
		{Access{}, false, driver.MemReadWrite},
		{Access{Kernel: KernelReadOnly, Host: HostWriteOnly}, false, driver.MemReadOnly | driver.MemHostWriteOnly},
		{Access{Kernel: KernelWriteOnly, Host: HostReadOnly}, false, driver.MemWriteOnly | driver.MemHostReadOnly},
		{Access{Host: HostNoAccess}, false, driver.MemReadWrite | driver.MemHostNoAccess},
		{Access{Location: KeepOnHost}, true, driver.MemReadWrite | driver.MemUseHostPtr},
		{Access{Location: CopyToDevice}, true, driver.MemReadWrite | driver.MemCopyHostPtr},
		{Access{Location: ForceCopyToDevice}, true, driver.MemReadWrite | driver.MemAllocHostPtr | driver.MemCopyHostPtr},
	}
	for _, tc := range testCases {
		flags, err := tc.access.Flags(tc.hasHostData)
		require.NoError(t, err, "%s", tc.access)
		assert.Equal(t, tc.want, flags, "%s: got %s", tc.access, flags)
	}

	invalid := []struct {
		access      Access
		hasHostData bool
	}{
		{Access{Location: KeepOnHost}, false},
		{Access{Location: CopyToDevice}, false},
		{Access{Location: ForceCopyToDevice}, false},
		{Access{}, true},
		{Access{Host: HostNoAccess, Location: KeepOnHost}, true},
		{Access{Host: HostAccess(7)}, false},
	}
	for _, tc := range invalid {
		_, err := tc.access.Flags(tc.hasHostData)
		assert.ErrorIs(t, err, clerr.ErrInvalidAccess, "%s with host data=%v", tc.access, tc.hasHostData)
	}

	a := Access{Host: HostReadOnly, Kernel: KernelWriteOnly}
	assert.True(t, a.HostCanRead())
	assert.False(t, a.HostCanWrite())
	assert.False(t, a.KernelCanRead())
	assert.True(t, a.KernelCanWrite())
	assert.Equal(t, "Access{Host: ReadOnly, Kernel: WriteOnly, Location: AllocOnDevice}", a.String())
}

func TestBuffer(t *testing.T) {
	d, s := newTestSession(t)
	buf, err := s.CreateBuffer(dtypes.Float32, 16, Access{})
	require.NoError(t, err)
	defer buf.Release()
	assert.Equal(t, dtypes.Float32, buf.DType())
	assert.Equal(t, 16, buf.Len())
	assert.Equal(t, uintptr(64), buf.ByteSize())
	assert.Equal(t, uint32(1), must.M1(buf.ReferenceCount()))
	ctx := must.M1(buf.Context())
	assert.True(t, ctx.Equal(s.Context()))
	ctx.Release()

	clone := buf.Clone()
	assert.Equal(t, 2, refCount(d, buf.h))
	clone.Release()
	clone.Release()
	assert.Equal(t, 1, refCount(d, buf.h))
	assert.Contains(t, buf.String(), "float x 16")

	_, err = s.CreateBuffer(dtypes.Float32, 16, Access{Location: CopyToDevice})
	assert.ErrorIs(t, err, clerr.ErrInvalidAccess)
	_, err = s.CreateBuffer(dtypes.Memory, 16, Access{})
	assert.ErrorIs(t, err, clerr.ErrTypeMismatch)
}

func TestBufferSizeOverflow(t *testing.T) {
	d, s := newTestSession(t)
	d.ResetCallCounts()
	_, err := s.CreateBuffer(dtypes.Int64, math.MaxInt, Access{})
	require.ErrorIs(t, err, clerr.ErrSizeOverflow)
	assert.Equal(t, uint64(math.MaxInt), clerr.As(err).ExpectedLen)
	assert.Equal(t, uint64(8), clerr.As(err).GotLen)
	_, err = s.CreateBuffer(dtypes.Vec(dtypes.Float64, 16), math.MaxInt/64+1, Access{})
	require.ErrorIs(t, err, clerr.ErrSizeOverflow)
	_, err = s.CreateBuffer(dtypes.Int8, -1, Access{})
	require.ErrorIs(t, err, clerr.ErrSizeOverflow)
	assert.Zero(t, d.CallCount("CreateBuffer"))
}

func TestBufferFromSlice(t *testing.T) {
	_, s := newTestSession(t)
	data := []int32{1, 2, 3, 4}
	buf, err := s.CreateBufferFromSlice(data, Access{})
	require.NoError(t, err)
	defer buf.Release()
	assert.Equal(t, dtypes.Int32, buf.DType())
	assert.Equal(t, CopyToDevice, buf.Access().Location)
	got := make([]int32, 4)
	require.NoError(t, s.SyncReadBuffer(buf, got))
	assert.Equal(t, data, got)

	// KeepOnHost buffers alias the host slice.
	host := []int32{7, 7, 7}
	aliased, err := s.CreateBufferFromSlice(host, Access{Location: KeepOnHost})
	require.NoError(t, err)
	clone := aliased.Clone()
	aliased.Release()
	err = s.ExecuteSyncKernelOperation(NewKernelOperation("increment").Work(One(3)).Arg(clone))
	require.NoError(t, err)
	assert.Equal(t, []int32{8, 8, 8}, host)
	clone.Release()

	_, err = s.CreateBufferFromSlice([]bool{true}, Access{})
	assert.ErrorIs(t, err, clerr.ErrTypeMismatch)
	_, err = s.CreateBufferFromSlice(3, Access{})
	assert.ErrorIs(t, err, clerr.ErrTypeMismatch)
	_, err = s.CreateBufferFromSlice([]float32{1}, Access{Host: HostNoAccess, Location: KeepOnHost})
	assert.ErrorIs(t, err, clerr.ErrInvalidAccess)
}

func TestBufferTransfers(t *testing.T) {
	d, s := newTestSession(t)
	buf := must.M1(s.CreateBuffer(dtypes.Int64, 4, Access{}))
	defer buf.Release()

	// Validation errors never reach the runtime.
	d.ResetCallCounts()
	err := s.SyncWriteBuffer(buf, []float32{1, 2, 3, 4})
	require.ErrorIs(t, err, clerr.ErrTypeMismatch)
	assert.Equal(t, "long", clerr.As(err).Expected)
	assert.Equal(t, "float", clerr.As(err).Got)
	err = s.SyncWriteBuffer(buf, []int64{1, 2, 3})
	require.ErrorIs(t, err, clerr.ErrSizeMismatch)
	err = s.SyncReadBuffer(buf, make([]int64, 5))
	require.ErrorIs(t, err, clerr.ErrSizeMismatch)
	_, err = s.Queue().WriteBuffer(buf, []int64{1, 2}, NewQueueOptions().WithOffset(3))
	require.ErrorIs(t, err, clerr.ErrSizeMismatch)
	_, err = s.Queue().WriteBuffer(buf, []int64{1}, NewQueueOptions().WithOffset(-1))
	require.ErrorIs(t, err, clerr.ErrSizeMismatch)
	err = s.SyncWriteBuffer(buf, [4]int64{})
	require.ErrorIs(t, err, clerr.ErrTypeMismatch)
	assert.Zero(t, d.CallCount("EnqueueWriteBuffer")+d.CallCount("EnqueueReadBuffer"))

	require.NoError(t, s.SyncWriteBuffer(buf, []int64{1, 2, 3, 4}))
	e, err := s.Queue().WriteBuffer(buf, []int64{20, 30}, NewQueueOptions().WithOffset(1))
	require.NoError(t, err)
	e.Release()
	got := make([]int64, 4)
	require.NoError(t, s.SyncReadBuffer(buf, got))
	assert.Equal(t, []int64{1, 20, 30, 4}, got)
	tail := make([]int64, 1)
	e, err = s.Queue().ReadBuffer(buf, tail, NewQueueOptions().WithOffset(3))
	require.NoError(t, err)
	e.Release()
	assert.Equal(t, []int64{4}, tail)

	// Host access is checked eagerly.
	writeOnly := must.M1(s.CreateBuffer(dtypes.Int64, 4, Access{Host: HostWriteOnly}))
	defer writeOnly.Release()
	require.NoError(t, s.SyncWriteBuffer(writeOnly, got))
	d.ResetCallCounts()
	require.ErrorIs(t, s.SyncReadBuffer(writeOnly, got), clerr.ErrInvalidAccess)
	noAccess := must.M1(s.CreateBuffer(dtypes.Int64, 4, Access{Host: HostNoAccess}))
	defer noAccess.Release()
	require.ErrorIs(t, s.SyncWriteBuffer(noAccess, got), clerr.ErrInvalidAccess)
	assert.Zero(t, d.CallCount("EnqueueWriteBuffer")+d.CallCount("EnqueueReadBuffer"))
}

func TestCopyAndFill(t *testing.T) {
	_, s := newTestSession(t)
	q := s.Queue()
	src := must.M1(s.CreateBufferFromSlice([]float32{1, 2, 3}, Access{}))
	defer src.Release()
	dst := must.M1(s.CreateBuffer(dtypes.Float32, 5, Access{}))
	defer dst.Release()

	e, err := q.FillBuffer(dst, Scalar(float32(-1)), nil)
	require.NoError(t, err)
	e.Release()
	e, err = q.CopyBuffer(src, dst, NewQueueOptions().WithOffset(1))
	require.NoError(t, err)
	e.Release()
	got := make([]float32, 5)
	require.NoError(t, s.SyncReadBuffer(dst, got))
	assert.Equal(t, []float32{-1, 1, 2, 3, -1}, got)

	_, err = q.CopyBuffer(src, dst, NewQueueOptions().WithOffset(3))
	assert.ErrorIs(t, err, clerr.ErrSizeMismatch)
	_, err = q.FillBuffer(dst, Scalar(int32(1)), nil)
	assert.ErrorIs(t, err, clerr.ErrTypeMismatch)
	_, err = q.FillBuffer(dst, src, nil)
	assert.ErrorIs(t, err, clerr.ErrTypeMismatch)
	ints := must.M1(s.CreateBuffer(dtypes.Int32, 5, Access{}))
	defer ints.Release()
	_, err = q.CopyBuffer(src, ints, nil)
	assert.ErrorIs(t, err, clerr.ErrTypeMismatch)
}
