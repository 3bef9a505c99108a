// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package cl

import (
	"github.com/gomlx/gocl/driver"
	"github.com/gomlx/gocl/internal/handle"
	"github.com/gomlx/gocl/internal/info"
	"github.com/gomlx/gocl/pkg/core/clerr"
	"github.com/gomlx/gocl/pkg/support/sets"
	"github.com/google/uuid"
)

// Device is a compute device of a Platform.
//
// It owns one reference of the device: Release must be called when it is no longer needed.
type Device struct {
	h *handle.Handle[driver.DeviceID]
}

// wrapDevice retains the device and wraps it.
func wrapDevice(drv driver.Driver, id driver.DeviceID) (*Device, error) {
	h, err := handle.WrapAndRetain(drv, id)
	if err != nil {
		return nil, err
	}
	return &Device{h: h}, nil
}

// check returns an error if the device is nil, released or unusable.
func (d *Device) check() error {
	if d == nil {
		return clerr.NullHandle(driver.KindDevice)
	}
	return checkHandle(d.h, driver.KindDevice)
}

// Driver used by the device.
func (d *Device) Driver() driver.Driver {
	return d.h.Driver()
}

func (d *Device) getter(param driver.DeviceInfo) info.Getter {
	return func(value []byte) (int, driver.Status) {
		return d.h.Driver().GetDeviceInfo(d.h.Raw(), param, value)
	}
}

const opDeviceInfo = "clGetDeviceInfo"

// Name of the device.
func (d *Device) Name() (string, error) {
	return info.String(opDeviceInfo, "DeviceName", d.getter(driver.DeviceName))
}

// Vendor of the device.
func (d *Device) Vendor() (string, error) {
	return info.String(opDeviceInfo, "DeviceVendor", d.getter(driver.DeviceVendor))
}

// Version of the runtime supported by the device, e.g. "OpenCL 3.0 ...".
func (d *Device) Version() (string, error) {
	return info.String(opDeviceInfo, "DeviceVersion", d.getter(driver.DeviceVersion))
}

// DriverVersion returns the version of the device's vendor driver.
func (d *Device) DriverVersion() (string, error) {
	return info.String(opDeviceInfo, "DriverVersion", d.getter(driver.DeviceDriverVersion))
}

// Type returns the type bitmask of the device.
func (d *Device) Type() (driver.DeviceType, error) {
	t, err := info.One[uint64](opDeviceInfo, "DeviceType", d.getter(driver.DeviceTypeInfo))
	return driver.DeviceType(t), err
}

// Available returns whether the device is available.
func (d *Device) Available() (bool, error) {
	return info.Bool(opDeviceInfo, "DeviceAvailable", d.getter(driver.DeviceAvailable))
}

// MaxComputeUnits returns the number of parallel compute units of the device.
func (d *Device) MaxComputeUnits() (uint32, error) {
	return info.One[uint32](opDeviceInfo, "DeviceMaxComputeUnits", d.getter(driver.DeviceMaxComputeUnits))
}

// MaxWorkGroupSize returns the maximum number of work-items in a work-group.
func (d *Device) MaxWorkGroupSize() (uintptr, error) {
	return info.One[uintptr](opDeviceInfo, "DeviceMaxWorkGroupSize", d.getter(driver.DeviceMaxWorkGroupSize))
}

// MaxWorkItemSizes returns the maximum number of work-items per axis of a work-group.
func (d *Device) MaxWorkItemSizes() ([]uintptr, error) {
	return info.Slice[uintptr](opDeviceInfo, "DeviceMaxWorkItemSizes", d.getter(driver.DeviceMaxWorkItemSizes))
}

// GlobalMemSize returns the size of the device global memory in bytes.
func (d *Device) GlobalMemSize() (uint64, error) {
	return info.One[uint64](opDeviceInfo, "DeviceGlobalMemSize", d.getter(driver.DeviceGlobalMemSize))
}

// LocalMemSize returns the size of the local memory of a work-group in bytes.
func (d *Device) LocalMemSize() (uint64, error) {
	return info.One[uint64](opDeviceInfo, "DeviceLocalMemSize", d.getter(driver.DeviceLocalMemSize))
}

// MaxMemAllocSize returns the maximum size of one memory object in bytes.
func (d *Device) MaxMemAllocSize() (uint64, error) {
	return info.One[uint64](opDeviceInfo, "DeviceMaxMemAllocSize", d.getter(driver.DeviceMaxMemAllocSize))
}

// Extensions supported by the device.
func (d *Device) Extensions() (sets.Set[string], error) {
	s, err := info.String(opDeviceInfo, "DeviceExtensions", d.getter(driver.DeviceExtensions))
	if err != nil {
		return nil, err
	}
	return sets.FromFields(s), nil
}

// UUID of the device. Only available if the device supports the cl_khr_device_uuid extension.
func (d *Device) UUID() (uuid.UUID, error) {
	raw, err := info.Bytes(opDeviceInfo, "DeviceUUID", d.getter(driver.DeviceUUID))
	if err != nil {
		return uuid.Nil, err
	}
	id, err := uuid.FromBytes(raw)
	if err != nil {
		return uuid.Nil, clerr.InfoUnavailable("DeviceUUID")
	}
	return id, nil
}

// Platform the device belongs to.
func (d *Device) Platform() (*Platform, error) {
	id, err := info.One[driver.PlatformID](opDeviceInfo, "DevicePlatform", d.getter(driver.DevicePlatform))
	if err != nil {
		return nil, err
	}
	h, err := handle.Wrap(d.h.Driver(), id)
	if err != nil {
		return nil, err
	}
	return &Platform{h: h}, nil
}

// ReferenceCount of the device. Root devices are not reference counted by all runtimes.
func (d *Device) ReferenceCount() (uint32, error) {
	return info.One[uint32](opDeviceInfo, "DeviceReferenceCount", d.getter(driver.DeviceReferenceCount))
}

// Clone returns a new owner of the same device.
func (d *Device) Clone() *Device {
	return &Device{h: d.h.Clone()}
}

// Release the reference owned by d. It is safe to call it more than once.
func (d *Device) Release() {
	if d == nil {
		return
	}
	d.h.Release()
}

// Equal returns whether both refer to the same device.
func (d *Device) Equal(other *Device) bool {
	if d == nil || other == nil {
		return d == other
	}
	return d.h.Equal(other.h)
}

// String implements fmt.Stringer. It includes the device name, if available.
func (d *Device) String() string {
	if d == nil {
		return "nil Device"
	}
	if d.h.IsReleased() {
		return d.h.String() + "[released]"
	}
	if name, err := d.Name(); err == nil {
		return d.h.String() + "[" + name + "]"
	}
	return d.h.String()
}
