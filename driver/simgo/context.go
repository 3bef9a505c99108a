// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package simgo

import (
	"slices"

	"github.com/gomlx/gocl/driver"
	"github.com/gomlx/gocl/internal/info"
)

type contextObj struct {
	header
	platform   *platformObj
	devices    []*deviceObj
	properties []driver.ContextProperty
}

func (d *Driver) lookupContext(id driver.ContextID) (*contextObj, bool) {
	return lookup[*contextObj](d, uintptr(id))
}

// hasDevice returns whether dev is one of the context devices.
func (c *contextObj) hasDevice(dev *deviceObj) bool {
	return slices.Contains(c.devices, dev)
}

// platformFromProperties parses the zero-terminated property list.
func (d *Driver) platformFromProperties(properties []driver.ContextProperty) (*platformObj, driver.Status) {
	var platform *platformObj
	for i := 0; i < len(properties); i += 2 {
		key := properties[i]
		if key == 0 {
			break
		}
		if i+1 >= len(properties) {
			return nil, driver.InvalidProperty
		}
		if key != driver.ContextPlatform {
			return nil, driver.InvalidProperty
		}
		p, found := d.lookupPlatform(driver.PlatformID(properties[i+1]))
		if !found {
			return nil, driver.InvalidPlatform
		}
		platform = p
	}
	return platform, driver.Success
}

func (d *Driver) newContext(platform *platformObj, devices []*deviceObj, properties []driver.ContextProperty) driver.ContextID {
	c := &contextObj{
		platform:   platform,
		devices:    devices,
		properties: slices.Clone(properties),
	}
	for _, dev := range devices {
		retain(dev)
	}
	id := d.register(c, driver.KindContext, func() {
		for _, dev := range c.devices {
			d.release(dev)
		}
	})
	return driver.ContextID(id)
}

// CreateContext implements driver.Driver. All devices must belong to the same platform.
func (d *Driver) CreateContext(properties []driver.ContextProperty, devices []driver.DeviceID) (driver.ContextID, driver.Status) {
	d.count("CreateContext")
	if len(devices) == 0 {
		return 0, driver.InvalidValue
	}
	platform, status := d.platformFromProperties(properties)
	if status != driver.Success {
		return 0, status
	}
	devs := make([]*deviceObj, 0, len(devices))
	for _, id := range devices {
		dev, found := d.lookupDevice(id)
		if !found {
			return 0, driver.InvalidDevice
		}
		if platform == nil {
			platform = dev.platform
		} else if dev.platform != platform {
			return 0, driver.InvalidDevice
		}
		if !slices.Contains(devs, dev) {
			devs = append(devs, dev)
		}
	}
	return d.newContext(platform, devs, properties), driver.Success
}

// CreateContextFromType implements driver.Driver. If no platform is given in properties, the first one is used.
func (d *Driver) CreateContextFromType(properties []driver.ContextProperty, deviceType driver.DeviceType) (driver.ContextID, driver.Status) {
	d.count("CreateContextFromType")
	platform, status := d.platformFromProperties(properties)
	if status != driver.Success {
		return 0, status
	}
	if platform == nil {
		if len(d.platforms) == 0 {
			return 0, driver.InvalidPlatform
		}
		platform = d.platforms[0]
	}
	var devs []*deviceObj
	for _, dev := range platform.devices {
		if dev.matches(deviceType) {
			devs = append(devs, dev)
		}
	}
	if len(devs) == 0 {
		return 0, driver.DeviceNotFound
	}
	return d.newContext(platform, devs, properties), driver.Success
}

// GetContextInfo implements driver.Driver.
func (d *Driver) GetContextInfo(id driver.ContextID, param driver.ContextInfo, value []byte) (int, driver.Status) {
	d.count("GetContextInfo")
	c, found := d.lookupContext(id)
	if !found {
		return 0, driver.InvalidContext
	}
	switch param {
	case driver.ContextReferenceCount:
		return info.Fill(value, info.Encode(uint32(c.refs.Load())))
	case driver.ContextDevices:
		ids := make([]driver.DeviceID, len(c.devices))
		for i, dev := range c.devices {
			ids[i] = driver.DeviceID(dev.id)
		}
		return info.Fill(value, info.EncodeSlice(ids))
	case driver.ContextProperties:
		return info.Fill(value, info.EncodeSlice(c.properties))
	case driver.ContextNumDevices:
		return info.Fill(value, info.Encode(uint32(len(c.devices))))
	}
	return 0, driver.InvalidValue
}

type samplerObj struct {
	header
	ctx              *contextObj
	normalizedCoords bool
	addressing       driver.AddressingMode
	filter           driver.FilterMode
}

// CreateSampler implements driver.Driver.
func (d *Driver) CreateSampler(ctx driver.ContextID, normalizedCoords bool, addressing driver.AddressingMode,
	filter driver.FilterMode) (driver.SamplerID, driver.Status) {
	d.count("CreateSampler")
	c, found := d.lookupContext(ctx)
	if !found {
		return 0, driver.InvalidContext
	}
	if addressing < driver.AddressNone || addressing > driver.AddressMirroredRepeat ||
		(filter != driver.FilterNearest && filter != driver.FilterLinear) {
		return 0, driver.InvalidValue
	}
	s := &samplerObj{ctx: c, normalizedCoords: normalizedCoords, addressing: addressing, filter: filter}
	retain(c)
	id := d.register(s, driver.KindSampler, func() { d.release(c) })
	return driver.SamplerID(id), driver.Success
}

// GetSamplerInfo implements driver.Driver.
func (d *Driver) GetSamplerInfo(id driver.SamplerID, param driver.SamplerInfo, value []byte) (int, driver.Status) {
	d.count("GetSamplerInfo")
	s, found := lookup[*samplerObj](d, uintptr(id))
	if !found {
		return 0, driver.InvalidSampler
	}
	switch param {
	case driver.SamplerReferenceCount:
		return info.Fill(value, info.Encode(uint32(s.refs.Load())))
	case driver.SamplerContext:
		return info.Fill(value, info.Encode(driver.ContextID(s.ctx.id)))
	case driver.SamplerNormalizedCoords:
		return info.Fill(value, info.EncodeBool(s.normalizedCoords))
	case driver.SamplerAddressingMode:
		return info.Fill(value, info.Encode(uint32(s.addressing)))
	case driver.SamplerFilterMode:
		return info.Fill(value, info.Encode(uint32(s.filter)))
	}
	return 0, driver.InvalidValue
}
