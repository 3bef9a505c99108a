// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package cl

import (
	"testing"

	"github.com/gomlx/gocl/driver"
	"github.com/gomlx/gocl/pkg/core/clerr"
	"github.com/gomlx/gocl/pkg/core/dtypes"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKernelArgs(t *testing.T) {
	d, s := newTestSession(t)
	k, err := s.Program().Kernel("add")
	require.NoError(t, err)
	defer k.Release()
	assert.Equal(t, "add", k.Name())
	assert.Equal(t, 3, k.NumArgs())
	assert.Equal(t, []int{0, 1, 2}, k.UnsetArgs())

	a := must.M1(s.CreateBufferFromSlice([]int64{1, 2}, Access{}))
	defer a.Release()
	require.ErrorIs(t, k.SetArg(3, a), clerr.ErrArgIndexOutOfRange)
	require.ErrorIs(t, k.SetArg(-1, a), clerr.ErrArgIndexOutOfRange)
	require.ErrorIs(t, k.SetArg(0, nil), clerr.ErrTypeMismatch)

	// Slots can be bound in any order.
	require.NoError(t, k.SetArg(2, a))
	require.NoError(t, k.SetArg(0, a))
	assert.Equal(t, []int{1}, k.UnsetArgs())
	assert.Equal(t, KernelArg(a), k.Arg(0))
	assert.Nil(t, k.Arg(1))

	// Launching with an unset slot fails before reaching the runtime.
	d.ResetCallCounts()
	_, err = s.Queue().EnqueueKernel(k, One(2), nil)
	require.ErrorIs(t, err, clerr.ErrArgNotSet)
	assert.Equal(t, 1, clerr.As(err).Index)
	assert.Zero(t, d.CallCount("EnqueueNDRangeKernel"))

	// The runtime checks the argument sizes.
	err = k.SetArg(1, Scalar(int32(1)))
	require.ErrorIs(t, err, clerr.ErrStatusCode)

	wgSize, err := k.WorkGroupSize(s.Device())
	require.NoError(t, err)
	assert.Equal(t, uintptr(1024), wgSize)
	assert.Equal(t, uint32(1), must.M1(k.ReferenceCount()))
}

func TestKernelOperationArgNotSet(t *testing.T) {
	d, s := newTestSession(t)
	a := must.M1(s.CreateBufferFromSlice([]int64{1, 2, 3}, Access{}))
	defer a.Release()
	d.ResetCallCounts()
	err := s.ExecuteSyncKernelOperation(NewKernelOperation("add").Work(One(3)).Arg(a))
	require.ErrorIs(t, err, clerr.ErrArgNotSet)
	assert.Equal(t, 1, clerr.As(err).Index)
	assert.Zero(t, d.CallCount("EnqueueNDRangeKernel"))

	err = s.ExecuteSyncKernelOperation(NewKernelOperation("add").Work(One(3)).Args(a, a, a, a))
	require.ErrorIs(t, err, clerr.ErrArgIndexOutOfRange)
	err = s.ExecuteSyncKernelOperation(NewKernelOperation("add").Args(a, a, a))
	require.ErrorIs(t, err, clerr.ErrWorkRequired)
	err = s.ExecuteSyncKernelOperation(NewKernelOperation("add").Work(Two(3, 0)).Args(a, a, a))
	require.ErrorIs(t, err, clerr.ErrInvalidWorkDims)
	assert.Zero(t, d.CallCount("EnqueueNDRangeKernel"))
	assert.Zero(t, d.LiveObjectsOfKind(driver.KindKernel), "kernels extracted by failed operations must be released")
}

func TestScalarAndVectorArgs(t *testing.T) {
	_, s := newTestSession(t)
	x := must.M1(s.CreateBufferFromSlice([]float32{1, 2, 3}, Access{}))
	defer x.Release()
	require.NoError(t, s.ExecuteSyncKernelOperation(
		NewKernelOperation("scale").Work(One(3)).Arg(x).Arg(Scalar(float32(10)))))
	got := make([]float32, 3)
	require.NoError(t, s.SyncReadBuffer(x, got))
	assert.Equal(t, []float32{10, 20, 30}, got)

	vectors := []dtypes.Vec4[float32]{{1, 2, 3, 4}, {0, 0, 0, 0}}
	v := must.M1(s.CreateBufferFromSlice(vectors, Access{}))
	defer v.Release()
	assert.Equal(t, dtypes.Vec(dtypes.Float32, 4), v.DType())
	require.NoError(t, s.ExecuteSyncKernelOperation(
		NewKernelOperation("add_vec4").Work(One(2)).Args(v, Vector[float32](1, 1, 1, 1))))
	require.NoError(t, s.SyncReadBuffer(v, vectors))
	assert.Equal(t, []dtypes.Vec4[float32]{{2, 3, 4, 5}, {1, 1, 1, 1}}, vectors)

	arg := Vector[int32](1, 2, 3)
	assert.Equal(t, dtypes.Vec(dtypes.Int32, 3), arg.ArgDType())
	assert.Equal(t, uintptr(16), arg.ArgSize())
	assert.Equal(t, uintptr(4), Scalar(int32(1)).ArgSize())
	assert.Equal(t, dtypes.Bool, Scalar(dtypes.ToCLBool(true)).ArgDType())
	assert.Panics(t, func() { Vector[float32](1, 2, 3, 4, 5) })
	assert.Panics(t, func() { Vector[float32](1) })
}

func TestLocalMemArg(t *testing.T) {
	_, s := newTestSession(t)
	in := make([]float32, 64)
	for i := range in {
		in[i] = float32(i)
	}
	inBuf := must.M1(s.CreateBufferFromSlice(in, Access{Kernel: KernelReadOnly}))
	defer inBuf.Release()
	outBuf := must.M1(s.CreateBuffer(dtypes.Float32, 4, Access{Kernel: KernelWriteOnly}))
	defer outBuf.Release()
	op := NewKernelOperation("group_sum").Work(One(64).WithLocal(16)).
		Args(inBuf, outBuf, LocalMem(16*4))
	require.NoError(t, s.ExecuteSyncKernelOperation(op))
	out := make([]float32, 4)
	require.NoError(t, s.SyncReadBuffer(outBuf, out))
	assert.Equal(t, []float32{120, 376, 632, 888}, out)
	assert.Contains(t, op.String(), "group_sum(float, float, uchar)")
}

func TestKernelClone(t *testing.T) {
	_, s := newTestSession(t)
	x := must.M1(s.CreateBufferFromSlice([]int32{0, 0}, Access{}))
	defer x.Release()
	k := must.M1(s.Program().Kernel("increment"))
	defer k.Release()
	require.NoError(t, k.SetArg(0, x))
	clone, err := k.Clone()
	require.NoError(t, err)
	defer clone.Release()
	assert.False(t, clone.h.Equal(k.h))
	assert.Empty(t, clone.UnsetArgs())

	for _, kernel := range []*Kernel{k, clone} {
		e, err := s.Queue().EnqueueKernel(kernel, One(2), nil)
		require.NoError(t, err)
		require.NoError(t, e.Wait())
		e.Release()
	}
	got := make([]int32, 2)
	require.NoError(t, s.SyncReadBuffer(x, got))
	assert.Equal(t, []int32{2, 2}, got)
}

func TestSetArgReleasedHandles(t *testing.T) {
	d, s := newTestSession(t)
	k := must.M1(s.Program().Kernel("increment"))
	defer k.Release()

	buf := must.M1(s.CreateBufferFromSlice([]int32{1}, Access{}))
	buf.Release()
	sampler := must.M1(NewSampler(s.Context(), false, driver.AddressNone, driver.FilterNearest))
	sampler.Release()

	d.ResetCallCounts()
	err := k.SetArg(0, buf)
	require.ErrorIs(t, err, clerr.ErrNullHandle)
	assert.Equal(t, driver.KindMemory, clerr.As(err).HandleKind)
	err = k.SetArg(0, sampler)
	require.ErrorIs(t, err, clerr.ErrNullHandle)
	assert.Equal(t, driver.KindSampler, clerr.As(err).HandleKind)
	var nilBuffer *Buffer
	require.ErrorIs(t, k.SetArg(0, nilBuffer), clerr.ErrNullHandle)
	assert.Zero(t, d.CallCount("SetKernelArg"))
	assert.Equal(t, []int{0}, k.UnsetArgs())
}
