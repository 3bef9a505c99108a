// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package info

import (
	"testing"

	"github.com/gomlx/gocl/driver"
	"github.com/gomlx/gocl/pkg/core/clerr"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// getterOf returns a Getter serving value, and counts the calls.
func getterOf(value []byte, calls *int) Getter {
	return func(dst []byte) (int, driver.Status) {
		*calls++
		return Fill(dst, value)
	}
}

func TestTwoCallProtocol(t *testing.T) {
	var calls int
	s, err := String("clGetPlatformInfo", "PlatformName", getterOf(EncodeString("simgo"), &calls))
	require.NoError(t, err)
	assert.Equal(t, "simgo", s)
	assert.Equal(t, 2, calls)

	calls = 0
	v, err := One[uint64]("clGetDeviceInfo", "DeviceGlobalMemSize", getterOf(Encode(uint64(1<<33)), &calls))
	require.NoError(t, err)
	assert.Equal(t, uint64(1<<33), v)
	assert.Equal(t, 2, calls)

	// Narrower values are zero-extended.
	v, err = One[uint64]("clGetDeviceInfo", "DeviceAddressBits", getterOf(Encode(uint32(64)), &calls))
	require.NoError(t, err)
	assert.Equal(t, uint64(64), v)

	b, err := Bool("clGetDeviceInfo", "DeviceAvailable", getterOf(EncodeBool(true), &calls))
	require.NoError(t, err)
	assert.True(t, b)

	ids, err := Slice[driver.DeviceID]("clGetContextInfo", "ContextDevices",
		getterOf(EncodeSlice([]driver.DeviceID{3, 5, 7}), &calls))
	require.NoError(t, err)
	assert.Equal(t, []driver.DeviceID{3, 5, 7}, ids)

	names, err := Strings("clGetProgramInfo", "ProgramKernelNames", ";", getterOf(EncodeString("add;mul;"), &calls))
	require.NoError(t, err)
	assert.Equal(t, []string{"add", "mul"}, names)
}

func TestStringSanitization(t *testing.T) {
	var calls int
	s, err := String("op", "flag", getterOf([]byte{'a', 0xff, 'b', 0, 'c'}, &calls))
	require.NoError(t, err)
	assert.Equal(t, "a�b", s)
}

func TestErrors(t *testing.T) {
	var calls int
	_, err := One[uint32]("clGetEventInfo", "EventCommandType", getterOf(nil, &calls))
	require.Error(t, err)
	assert.True(t, errors.Is(err, clerr.ErrInfoUnavailable))
	assert.Equal(t, "EventCommandType", clerr.As(err).Flag)

	failing := func(dst []byte) (int, driver.Status) { return 0, driver.InvalidEvent }
	_, err = One[uint32]("clGetEventInfo", "EventCommandType", failing)
	require.Error(t, err)
	assert.True(t, errors.Is(err, clerr.StatusSentinel(driver.InvalidEvent)))

	// Fill refuses buffers too small.
	_, status := Fill(make([]byte, 2), Encode(uint32(1)))
	assert.Equal(t, driver.InvalidValue, status)

	empty, err := Slice[uint64]("op", "flag", getterOf(nil, &calls))
	require.NoError(t, err)
	assert.Empty(t, empty)
}
