// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package cl

import (
	"github.com/gomlx/gocl/driver"
	"github.com/gomlx/gocl/internal/handle"
	"github.com/gomlx/gocl/pkg/core/clerr"
	"github.com/pkg/errors"
)

// ContextBuilder configures the creation of a Context. WithDevices can't be combined with
// WithPlatforms or WithDeviceType. Without any of them, Build uses the default device.
//
// Example:
//
//	ctx, err := cl.NewContextBuilder(drv).WithDeviceType(driver.DeviceTypeGPU).Build()
type ContextBuilder struct {
	drv        driver.Driver
	devices    []*Device
	platforms  []*Platform
	deviceType driver.DeviceType
}

// NewContextBuilder returns a builder of contexts for the driver.
func NewContextBuilder(drv driver.Driver) *ContextBuilder {
	return &ContextBuilder{drv: drv}
}

// WithDevices creates the context over the given devices.
func (b *ContextBuilder) WithDevices(devices ...*Device) *ContextBuilder {
	b.devices = append(b.devices, devices...)
	return b
}

// WithPlatforms creates the context over all usable devices of the first platform given.
func (b *ContextBuilder) WithPlatforms(platforms ...*Platform) *ContextBuilder {
	b.platforms = append(b.platforms, platforms...)
	return b
}

// WithDeviceType creates the context over all devices of the given type of the first platform.
// Combined with WithPlatforms, it selects the devices of that type of the first platform given.
func (b *ContextBuilder) WithDeviceType(deviceType driver.DeviceType) *ContextBuilder {
	b.deviceType = deviceType
	return b
}

// Build creates the context.
//
// Devices combined with a device type or with platforms fail with a clerr.KindContextBuilder
// error, before any call to the runtime.
func (b *ContextBuilder) Build() (*Context, error) {
	switch {
	case len(b.devices) > 0 && b.deviceType != 0:
		return nil, clerr.ContextBuilder(clerr.CannotSpecifyDevicesAndDeviceType)
	case len(b.devices) > 0 && len(b.platforms) > 0:
		return nil, clerr.ContextBuilder(clerr.CannotSpecifyDevicesAndPlatforms)
	case len(b.devices) > 0:
		return NewContext(b.devices...)
	case len(b.platforms) > 0:
		deviceType := b.deviceType
		if deviceType == 0 {
			deviceType = driver.DeviceTypeAll
		}
		return b.buildFromPlatform(b.platforms[0], deviceType)
	case b.deviceType != 0:
		return b.buildFromType()
	}
	device, err := DefaultDevice(b.drv)
	if err != nil {
		return nil, errors.WithMessage(err, "building context with the default device")
	}
	defer device.Release()
	return NewContext(device)
}

func (b *ContextBuilder) buildFromPlatform(platform *Platform, deviceType driver.DeviceType) (*Context, error) {
	devices, err := platform.Devices(deviceType)
	if err != nil {
		return nil, err
	}
	defer releaseAll(devices)
	if len(devices) == 0 {
		return nil, clerr.StatusCode("clGetDeviceIDs", driver.DeviceNotFound)
	}
	return NewContext(devices...)
}

func (b *ContextBuilder) buildFromType() (*Context, error) {
	platforms, err := Platforms(b.drv)
	if err != nil {
		return nil, err
	}
	if len(platforms) == 0 {
		return nil, clerr.StatusCode("clGetPlatformIDs", driver.InvalidPlatform)
	}
	platform := platforms[0]
	properties := []driver.ContextProperty{driver.ContextPlatform, driver.ContextProperty(platform.h.Raw()), 0}
	id, status := b.drv.CreateContextFromType(properties, b.deviceType)
	if err := clerr.StatusCode("clCreateContextFromType", status); err != nil {
		return nil, err
	}
	h, err := handle.Wrap(b.drv, id)
	if err != nil {
		return nil, err
	}
	return adoptContext(h)
}
