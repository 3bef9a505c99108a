// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package cl

import (
	"sync"

	"github.com/gomlx/gocl/driver"
	"github.com/gomlx/gocl/internal/handle"
	"github.com/gomlx/gocl/internal/info"
	"github.com/gomlx/gocl/pkg/core/clerr"
	"github.com/gomlx/gocl/pkg/support/sets"
	"k8s.io/klog/v2"
)

// enumerationMu serializes platform enumeration: some runtimes are not thread-safe between the
// count and the fetch calls.
var enumerationMu sync.Mutex

// Platform is one runtime implementation. Platforms are global to the process and are not
// reference counted.
type Platform struct {
	h *handle.Handle[driver.PlatformID]
}

// Platforms returns the platforms available in the driver.
func Platforms(drv driver.Driver) ([]*Platform, error) {
	enumerationMu.Lock()
	defer enumerationMu.Unlock()
	n, status := drv.GetPlatformIDs(nil)
	if err := clerr.StatusCode("clGetPlatformIDs", status); err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	ids := make([]driver.PlatformID, n)
	n, status = drv.GetPlatformIDs(ids)
	if err := clerr.StatusCode("clGetPlatformIDs", status); err != nil {
		return nil, err
	}
	platforms := make([]*Platform, 0, n)
	for _, id := range ids[:min(n, len(ids))] {
		h, err := handle.Wrap(drv, id)
		if err != nil {
			return nil, err
		}
		platforms = append(platforms, &Platform{h: h})
	}
	klog.V(2).Infof("gocl: driver %q has %d platform(s)", drv.Name(), len(platforms))
	return platforms, nil
}

// Driver used by the platform.
func (p *Platform) Driver() driver.Driver {
	return p.h.Driver()
}

func (p *Platform) getter(param driver.PlatformInfo) info.Getter {
	return func(value []byte) (int, driver.Status) {
		return p.h.Driver().GetPlatformInfo(p.h.Raw(), param, value)
	}
}

// Profile returns "FULL_PROFILE" or "EMBEDDED_PROFILE".
func (p *Platform) Profile() (string, error) {
	return info.String("clGetPlatformInfo", "PlatformProfile", p.getter(driver.PlatformProfile))
}

// Version returns the version string of the platform, e.g. "OpenCL 3.0 ...".
func (p *Platform) Version() (string, error) {
	return info.String("clGetPlatformInfo", "PlatformVersion", p.getter(driver.PlatformVersion))
}

// Name of the platform.
func (p *Platform) Name() (string, error) {
	return info.String("clGetPlatformInfo", "PlatformName", p.getter(driver.PlatformName))
}

// Vendor of the platform.
func (p *Platform) Vendor() (string, error) {
	return info.String("clGetPlatformInfo", "PlatformVendor", p.getter(driver.PlatformVendor))
}

// Extensions supported by the platform.
func (p *Platform) Extensions() (sets.Set[string], error) {
	s, err := info.String("clGetPlatformInfo", "PlatformExtensions", p.getter(driver.PlatformExtensions))
	if err != nil {
		return nil, err
	}
	return sets.FromFields(s), nil
}

// Devices returns the usable devices of the platform whose type intersects mask
// (e.g. driver.DeviceTypeGPU, or driver.DeviceTypeAll).
//
// Inactive devices, reported by some runtimes as a sentinel identifier, are dropped.
// If no device matches it returns an empty list.
func (p *Platform) Devices(mask driver.DeviceType) ([]*Device, error) {
	drv := p.h.Driver()
	n, status := drv.GetDeviceIDs(p.h.Raw(), mask, nil)
	if status == driver.DeviceNotFound {
		return nil, nil
	}
	if err := clerr.StatusCode("clGetDeviceIDs", status); err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	ids := make([]driver.DeviceID, n)
	n, status = drv.GetDeviceIDs(p.h.Raw(), mask, ids)
	if err := clerr.StatusCode("clGetDeviceIDs", status); err != nil {
		return nil, err
	}
	devices := make([]*Device, 0, n)
	for i, id := range ids[:min(n, len(ids))] {
		if !handle.IsUsable(id) {
			klog.V(2).Infof("gocl: dropping unusable device #%d (%#x) of %s", i, uintptr(id), p)
			continue
		}
		dev, err := wrapDevice(drv, id)
		if err != nil {
			releaseAll(devices)
			return nil, err
		}
		devices = append(devices, dev)
	}
	return devices, nil
}

// Equal returns whether both refer to the same platform.
func (p *Platform) Equal(other *Platform) bool {
	return p.h.Equal(other.h)
}

// String implements fmt.Stringer.
func (p *Platform) String() string {
	return p.h.String()
}

// AllDevices returns the usable devices matching mask of all platforms of the driver.
func AllDevices(drv driver.Driver, mask driver.DeviceType) ([]*Device, error) {
	platforms, err := Platforms(drv)
	if err != nil {
		return nil, err
	}
	var devices []*Device
	for _, p := range platforms {
		platformDevices, err := p.Devices(mask)
		if err != nil {
			releaseAll(devices)
			return nil, err
		}
		devices = append(devices, platformDevices...)
	}
	return devices, nil
}

// DefaultDevice returns the default device of the first platform that has one.
func DefaultDevice(drv driver.Driver) (*Device, error) {
	platforms, err := Platforms(drv)
	if err != nil {
		return nil, err
	}
	for _, p := range platforms {
		devices, err := p.Devices(driver.DeviceTypeDefault)
		if err != nil {
			return nil, err
		}
		if len(devices) > 0 {
			releaseAll(devices[1:])
			return devices[0], nil
		}
	}
	return nil, clerr.StatusCode("clGetDeviceIDs", driver.DeviceNotFound)
}

// releaser is implemented by all types owning runtime objects.
type releaser interface {
	Release()
}

// releaseAll releases all objects in the slice.
func releaseAll[T releaser](objects []T) {
	for _, obj := range objects {
		obj.Release()
	}
}
