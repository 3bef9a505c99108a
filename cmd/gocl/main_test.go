// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"testing"

	"github.com/gomlx/gocl/driver"
	"github.com/gomlx/gocl/driver/simgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDeviceType(t *testing.T) {
	mask, err := parseDeviceType("cpu, GPU")
	require.NoError(t, err)
	assert.Equal(t, driver.DeviceTypeCPU|driver.DeviceTypeGPU, mask)
	mask, err = parseDeviceType("all")
	require.NoError(t, err)
	assert.Equal(t, driver.DeviceTypeAll, mask)
	_, err = parseDeviceType("fpga")
	require.Error(t, err)
}

func TestInfo(t *testing.T) {
	d := simgo.New("platforms=2,gpus=1,unusable=1")
	defer d.Finalize()
	flagExtensions = true
	defer func() { flagExtensions = false }()
	require.NoError(t, printInfo(d))
	assert.Zero(t, d.LiveObjects())
}

func TestStress(t *testing.T) {
	d := simgo.New("")
	defer d.Finalize()
	flagIterations, flagParallel, flagRun = 50, 4, true
	require.NoError(t, stress(d))
	assert.Zero(t, d.LiveObjects())
}
