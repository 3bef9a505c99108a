// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package cl

import (
	"fmt"

	"github.com/gomlx/gocl/driver"
	"github.com/gomlx/gocl/internal/handle"
	"github.com/gomlx/gocl/internal/info"
	"github.com/gomlx/gocl/pkg/core/clerr"
	"k8s.io/klog/v2"
)

// Context groups devices of one platform: buffers, programs and command queues are created in
// a context, and can only be used with its devices.
//
// The context keeps its own references to its devices, so they outlive it.
type Context struct {
	h       *handle.Handle[driver.ContextID]
	devices []*Device
}

// NewContext creates a context over the given devices, which must belong to the same platform.
//
// An empty list, a nil, released or unusable device returns a clerr.KindInvalidDevice error with
// the index of the offending device (0 for the empty list).
func NewContext(devices ...*Device) (*Context, error) {
	if len(devices) == 0 {
		return nil, clerr.InvalidDevice(0, "at least one device is required to create a context")
	}
	drv, ids, err := deviceIDs(devices)
	if err != nil {
		return nil, err
	}
	id, status := drv.CreateContext(nil, ids)
	if err := clerr.StatusCode("clCreateContext", status); err != nil {
		return nil, err
	}
	return newContext(drv, id, devices)
}

// deviceIDs validates the devices and returns their identifiers.
func deviceIDs(devices []*Device) (driver.Driver, []driver.DeviceID, error) {
	var drv driver.Driver
	ids := make([]driver.DeviceID, len(devices))
	for i, dev := range devices {
		if err := dev.check(); err != nil {
			return nil, nil, clerr.InvalidDevice(i, err.Error())
		}
		if drv == nil {
			drv = dev.Driver()
		} else if !sameDriver(drv, dev.Driver()) {
			return nil, nil, clerr.InvalidDevice(i, "devices from different drivers")
		}
		ids[i] = dev.h.Raw()
		if !handle.IsUsable(ids[i]) {
			return nil, nil, clerr.InvalidDevice(i, clerr.UnusableDevice().Error())
		}
	}
	return drv, ids, nil
}

// newContext takes ownership of id and clones the devices.
func newContext(drv driver.Driver, id driver.ContextID, devices []*Device) (*Context, error) {
	h, err := handle.Wrap(drv, id)
	if err != nil {
		return nil, err
	}
	c := &Context{h: h, devices: make([]*Device, len(devices))}
	for i, dev := range devices {
		c.devices[i] = dev.Clone()
	}
	klog.V(1).Infof("gocl: created %s with %d device(s)", c, len(devices))
	return c, nil
}

// check returns an error if the context is nil or released.
func (c *Context) check() error {
	if c == nil {
		return clerr.NullHandle(driver.KindContext)
	}
	return checkHandle(c.h, driver.KindContext)
}

// Driver used by the context.
func (c *Context) Driver() driver.Driver {
	return c.h.Driver()
}

func (c *Context) getter(param driver.ContextInfo) info.Getter {
	return func(value []byte) (int, driver.Status) {
		return c.h.Driver().GetContextInfo(c.h.Raw(), param, value)
	}
}

// Devices returns the devices of the context, as reported by the runtime.
// Each returned Device is a new reference, and must be released by the caller.
func (c *Context) Devices() ([]*Device, error) {
	ids, err := info.Slice[driver.DeviceID]("clGetContextInfo", "ContextDevices", c.getter(driver.ContextDevices))
	if err != nil {
		return nil, err
	}
	devices := make([]*Device, 0, len(ids))
	for _, id := range ids {
		dev, err := wrapDevice(c.h.Driver(), id)
		if err != nil {
			releaseAll(devices)
			return nil, err
		}
		devices = append(devices, dev)
	}
	return devices, nil
}

// hasDevice returns whether dev is one of the devices the context was created with.
func (c *Context) hasDevice(dev *Device) bool {
	for _, d := range c.devices {
		if d.Equal(dev) {
			return true
		}
	}
	return false
}

// Properties returns the zero-terminated list of (key, value) properties the context was
// created with. It may be empty.
func (c *Context) Properties() ([]driver.ContextProperty, error) {
	return info.Slice[driver.ContextProperty]("clGetContextInfo", "ContextProperties", c.getter(driver.ContextProperties))
}

// NumDevices returns the number of devices in the context.
func (c *Context) NumDevices() (uint32, error) {
	return info.One[uint32]("clGetContextInfo", "ContextNumDevices", c.getter(driver.ContextNumDevices))
}

// ReferenceCount returns the current reference count of the context in the runtime.
func (c *Context) ReferenceCount() (uint32, error) {
	return info.One[uint32]("clGetContextInfo", "ContextReferenceCount", c.getter(driver.ContextReferenceCount))
}

// Clone returns a new owner of the same context.
func (c *Context) Clone() *Context {
	clone := &Context{h: c.h.Clone(), devices: make([]*Device, len(c.devices))}
	for i, dev := range c.devices {
		clone.devices[i] = dev.Clone()
	}
	return clone
}

// Release the context and then the devices it holds. It is safe to call it more than once.
func (c *Context) Release() {
	if c == nil || c.h.IsReleased() {
		return
	}
	klog.V(1).Infof("gocl: releasing %s", c)
	c.h.Release()
	releaseAll(c.devices)
}

// Equal returns whether both refer to the same context.
func (c *Context) Equal(other *Context) bool {
	if c == nil || other == nil {
		return c == other
	}
	return c.h.Equal(other.h)
}

// String implements fmt.Stringer.
func (c *Context) String() string {
	if c == nil {
		return "nil Context"
	}
	return c.h.String()
}

// contextFromInfo wraps (and retains) a context identifier returned by an info query.
func contextFromInfo(drv driver.Driver, op string, get info.Getter) (*Context, error) {
	id, err := info.One[driver.ContextID](op, "Context", get)
	if err != nil {
		return nil, err
	}
	h, err := handle.WrapAndRetain(drv, id)
	if err != nil {
		return nil, err
	}
	return adoptContext(h)
}

// adoptContext takes ownership of h, and retains the devices the runtime reports for it.
func adoptContext(h *handle.Handle[driver.ContextID]) (*Context, error) {
	c := &Context{h: h}
	devices, err := c.Devices()
	if err != nil {
		h.Release()
		return nil, err
	}
	c.devices = devices
	return c, nil
}

// sameContext returns a clerr.KindInvalidContext error if other is not the same context as c.
// what describes the object other belongs to.
func (c *Context) sameContext(other *Context, what string) error {
	if !c.Equal(other) {
		return clerr.InvalidContext(fmt.Sprintf("%s belongs to %s, not %s", what, other, c))
	}
	return nil
}
