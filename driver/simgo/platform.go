// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package simgo

import (
	"fmt"
	"runtime"
	"strings"
	"unsafe"

	"github.com/gomlx/gocl/driver"
	"github.com/gomlx/gocl/internal/info"
	"github.com/google/uuid"
	"golang.org/x/sys/cpu"
)

const (
	platformVersion = "OpenCL 3.0 simgo"
	platformVendor  = "GoMLX"
	driverVersion   = "1.0.0"

	maxWorkGroupSize = 1024
	globalMemSize    = 4 << 30
	maxMemAllocSize  = 1 << 30
	localMemSize     = 64 << 10
)

var maxWorkItemSizes = []uintptr{1024, 1024, 64}

type platformObj struct {
	header
	index      int
	name       string
	extensions string
	devices    []*deviceObj
}

type deviceObj struct {
	header
	platform   *platformObj
	index      int
	name       string
	deviceType driver.DeviceType
	uuid       uuid.UUID
}

// hostExtensions lists the extensions supported by every simulated device. Half precision
// is only advertised if the host CPU has native float16 conversions (F16C ships with AVX2+FMA).
func hostExtensions() string {
	exts := []string{
		"cl_khr_byte_addressable_store",
		"cl_khr_global_int32_base_atomics",
		"cl_khr_fp64",
		"cl_khr_device_uuid",
	}
	if (cpu.X86.HasAVX2 && cpu.X86.HasFMA) || (cpu.ARM64.HasFPHP && cpu.ARM64.HasASIMDHP) {
		exts = append(exts, "cl_khr_fp16")
	}
	if cpu.X86.HasAVX2 || cpu.ARM64.HasASIMD {
		exts = append(exts, "cl_simgo_simd")
	}
	return strings.Join(exts, " ")
}

func (d *Driver) newPlatform(index int) {
	p := &platformObj{
		index:      index,
		name:       fmt.Sprintf("SimGo Platform #%d", index),
		extensions: hostExtensions(),
	}
	d.register(p, driver.KindPlatform, nil)
	addDevice := func(deviceType driver.DeviceType, typeName string, n int) {
		dev := &deviceObj{
			platform:   p,
			index:      len(p.devices),
			name:       fmt.Sprintf("simgo-%s-%d.%d", typeName, index, n),
			deviceType: deviceType,
		}
		dev.minRefs = 1
		dev.uuid = uuid.NewSHA1(uuid.NameSpaceOID, []byte(dev.name))
		d.register(dev, driver.KindDevice, nil)
		p.devices = append(p.devices, dev)
	}
	for n := range d.config.Devices {
		addDevice(driver.DeviceTypeCPU, "cpu", n)
	}
	for n := range d.config.GPUs {
		addDevice(driver.DeviceTypeGPU, "gpu", n)
	}
	d.platforms = append(d.platforms, p)
}

func (d *Driver) lookupPlatform(id driver.PlatformID) (*platformObj, bool) {
	return lookup[*platformObj](d, uintptr(id))
}

func (d *Driver) lookupDevice(id driver.DeviceID) (*deviceObj, bool) {
	return lookup[*deviceObj](d, uintptr(id))
}

// GetPlatformIDs implements driver.Driver.
func (d *Driver) GetPlatformIDs(ids []driver.PlatformID) (int, driver.Status) {
	d.count("GetPlatformIDs")
	for i, p := range d.platforms {
		if i < len(ids) {
			ids[i] = driver.PlatformID(p.id)
		}
	}
	return len(d.platforms), driver.Success
}

// matches returns whether the device matches the type mask. DeviceTypeDefault selects the
// first device of the platform.
func (dev *deviceObj) matches(mask driver.DeviceType) bool {
	if mask == driver.DeviceTypeAll {
		return true
	}
	if mask&driver.DeviceTypeDefault != 0 && dev.index == 0 {
		return true
	}
	return dev.deviceType&mask != 0
}

// GetDeviceIDs implements driver.Driver. Inactive devices, if configured, are CPUs reported as
// driver.UnusableDeviceID after the usable ones, so only queries that include the CPU type list them.
func (d *Driver) GetDeviceIDs(platform driver.PlatformID, deviceType driver.DeviceType, ids []driver.DeviceID) (int, driver.Status) {
	d.count("GetDeviceIDs")
	p, found := d.lookupPlatform(platform)
	if !found {
		return 0, driver.InvalidPlatform
	}
	if deviceType == 0 || (deviceType != driver.DeviceTypeAll && deviceType&^(driver.DeviceTypeDefault|driver.DeviceTypeCPU|
		driver.DeviceTypeGPU|driver.DeviceTypeAccelerator|driver.DeviceTypeCustom) != 0) {
		return 0, driver.InvalidDeviceType
	}
	var matching []driver.DeviceID
	for _, dev := range p.devices {
		if dev.matches(deviceType) {
			matching = append(matching, driver.DeviceID(dev.id))
		}
	}
	if len(matching) == 0 {
		return 0, driver.DeviceNotFound
	}
	if deviceType&driver.DeviceTypeCPU != 0 {
		for range d.config.Unusable {
			matching = append(matching, driver.UnusableDeviceID)
		}
	}
	copy(ids, matching)
	return len(matching), driver.Success
}

// GetPlatformInfo implements driver.Driver.
func (d *Driver) GetPlatformInfo(id driver.PlatformID, param driver.PlatformInfo, value []byte) (int, driver.Status) {
	d.count("GetPlatformInfo")
	p, found := d.lookupPlatform(id)
	if !found {
		return 0, driver.InvalidPlatform
	}
	switch param {
	case driver.PlatformProfile:
		return info.Fill(value, info.EncodeString("FULL_PROFILE"))
	case driver.PlatformVersion:
		return info.Fill(value, info.EncodeString(platformVersion))
	case driver.PlatformName:
		return info.Fill(value, info.EncodeString(p.name))
	case driver.PlatformVendor:
		return info.Fill(value, info.EncodeString(platformVendor))
	case driver.PlatformExtensions:
		return info.Fill(value, info.EncodeString(p.extensions))
	}
	return 0, driver.InvalidValue
}

// computeUnits is the number of pool workers, or the number of CPUs if it's unlimited.
// Without parallelism, everything runs on one unit.
func (d *Driver) computeUnits() uint32 {
	if !d.pool.IsEnabled() {
		return 1
	}
	if n := d.pool.MaxParallelism(); n > 0 {
		return uint32(n)
	}
	return uint32(runtime.NumCPU())
}

// GetDeviceInfo implements driver.Driver.
func (d *Driver) GetDeviceInfo(id driver.DeviceID, param driver.DeviceInfo, value []byte) (int, driver.Status) {
	d.count("GetDeviceInfo")
	dev, found := d.lookupDevice(id)
	if !found {
		return 0, driver.InvalidDevice
	}
	switch param {
	case driver.DeviceTypeInfo:
		return info.Fill(value, info.Encode(uint64(dev.deviceType)))
	case driver.DeviceVendorID:
		return info.Fill(value, info.Encode(uint32(0x5347))) // "SG"
	case driver.DeviceMaxComputeUnits:
		return info.Fill(value, info.Encode(d.computeUnits()))
	case driver.DeviceMaxWorkItemDimensions:
		return info.Fill(value, info.Encode(uint32(len(maxWorkItemSizes))))
	case driver.DeviceMaxWorkGroupSize:
		return info.Fill(value, info.Encode(uintptr(maxWorkGroupSize)))
	case driver.DeviceMaxWorkItemSizes:
		return info.Fill(value, info.EncodeSlice(maxWorkItemSizes))
	case driver.DeviceAddressBits:
		return info.Fill(value, info.Encode(uint32(unsafe.Sizeof(uintptr(0))*8)))
	case driver.DeviceMaxMemAllocSize:
		return info.Fill(value, info.Encode(uint64(maxMemAllocSize)))
	case driver.DeviceGlobalMemSize:
		return info.Fill(value, info.Encode(uint64(globalMemSize)))
	case driver.DeviceLocalMemSize:
		return info.Fill(value, info.Encode(uint64(localMemSize)))
	case driver.DeviceAvailable, driver.DeviceCompilerAvailable:
		return info.Fill(value, info.EncodeBool(true))
	case driver.DeviceName:
		return info.Fill(value, info.EncodeString(dev.name))
	case driver.DeviceVendor:
		return info.Fill(value, info.EncodeString(platformVendor))
	case driver.DeviceDriverVersion:
		return info.Fill(value, info.EncodeString(driverVersion))
	case driver.DeviceProfile:
		return info.Fill(value, info.EncodeString("FULL_PROFILE"))
	case driver.DeviceVersion:
		return info.Fill(value, info.EncodeString(platformVersion))
	case driver.DeviceExtensions:
		return info.Fill(value, info.EncodeString(dev.platform.extensions))
	case driver.DevicePlatform:
		return info.Fill(value, info.Encode(driver.PlatformID(dev.platform.id)))
	case driver.DeviceReferenceCount:
		return info.Fill(value, info.Encode(uint32(dev.refs.Load())))
	case driver.DeviceUUID:
		return info.Fill(value, dev.uuid[:])
	}
	return 0, driver.InvalidValue
}
