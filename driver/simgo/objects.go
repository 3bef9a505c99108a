// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package simgo

import (
	"sync/atomic"

	"github.com/gomlx/gocl/driver"
	"k8s.io/klog/v2"
)

// header is the common part of all runtime objects.
type header struct {
	id   uintptr
	kind driver.Kind
	refs atomic.Int32

	// minRefs is the count below which the object can't be released: 1 for devices, owned by their platform.
	minRefs int32

	// free is called once the reference count drops to zero, to release the implicit
	// references the object holds on its parents.
	free func()
}

func (h *header) hdr() *header { return h }

type object interface {
	hdr() *header
}

// register assigns a new identifier to obj, with one reference, and adds it to the objects table.
func (d *Driver) register(obj object, kind driver.Kind, free func()) uintptr {
	h := obj.hdr()
	h.id = d.nextID.Add(0x40)
	h.kind = kind
	h.free = free
	h.refs.Store(1)
	d.objects.Store(h.id, obj)
	klog.V(3).Infof("simgo: created %s %#x", kind, h.id)
	return h.id
}

// lookup returns the live object of type T with the given identifier.
func lookup[T object](d *Driver, id uintptr) (T, bool) {
	var zero T
	if id == 0 {
		return zero, false
	}
	obj, found := d.objects.Load(id)
	if !found {
		return zero, false
	}
	t, ok := obj.(T)
	if !ok || t.hdr().refs.Load() <= 0 {
		return zero, false
	}
	return t, true
}

// retain increments the reference count of a live object. It returns false if the object is no longer alive.
func retain(obj object) bool {
	h := obj.hdr()
	for {
		refs := h.refs.Load()
		if refs <= 0 {
			return false
		}
		if h.refs.CompareAndSwap(refs, refs+1) {
			return true
		}
	}
}

// release decrements the reference count, and frees the object when it reaches zero.
// It returns false if the object was not alive, or is at its minimum count.
func (d *Driver) release(obj object) bool {
	h := obj.hdr()
	for {
		refs := h.refs.Load()
		if refs <= h.minRefs || refs <= 0 {
			return false
		}
		if !h.refs.CompareAndSwap(refs, refs-1) {
			continue
		}
		if refs == 1 {
			d.objects.Delete(h.id)
			klog.V(3).Infof("simgo: freed %s %#x", h.kind, h.id)
			if h.free != nil {
				h.free()
			}
		}
		return true
	}
}

func retainStatus[T object](d *Driver, id uintptr, invalid driver.Status) driver.Status {
	obj, found := lookup[T](d, id)
	if !found || !retain(obj) {
		return invalid
	}
	return driver.Success
}

func releaseStatus[T object](d *Driver, id uintptr, invalid driver.Status) driver.Status {
	obj, found := lookup[T](d, id)
	if !found || !d.release(obj) {
		return invalid
	}
	return driver.Success
}

// RetainDevice implements driver.Driver.
func (d *Driver) RetainDevice(id driver.DeviceID) driver.Status {
	d.count("RetainDevice")
	return retainStatus[*deviceObj](d, uintptr(id), driver.InvalidDevice)
}

// ReleaseDevice implements driver.Driver. Releasing a device below the reference owned by its
// platform fails with driver.InvalidDevice.
func (d *Driver) ReleaseDevice(id driver.DeviceID) driver.Status {
	d.count("ReleaseDevice")
	return releaseStatus[*deviceObj](d, uintptr(id), driver.InvalidDevice)
}

// RetainContext implements driver.Driver.
func (d *Driver) RetainContext(id driver.ContextID) driver.Status {
	d.count("RetainContext")
	return retainStatus[*contextObj](d, uintptr(id), driver.InvalidContext)
}

// ReleaseContext implements driver.Driver.
func (d *Driver) ReleaseContext(id driver.ContextID) driver.Status {
	d.count("ReleaseContext")
	return releaseStatus[*contextObj](d, uintptr(id), driver.InvalidContext)
}

// RetainCommandQueue implements driver.Driver.
func (d *Driver) RetainCommandQueue(id driver.CommandQueueID) driver.Status {
	d.count("RetainCommandQueue")
	return retainStatus[*queueObj](d, uintptr(id), driver.InvalidCommandQueue)
}

// ReleaseCommandQueue implements driver.Driver. Commands already enqueued still run.
func (d *Driver) ReleaseCommandQueue(id driver.CommandQueueID) driver.Status {
	d.count("ReleaseCommandQueue")
	return releaseStatus[*queueObj](d, uintptr(id), driver.InvalidCommandQueue)
}

// RetainProgram implements driver.Driver.
func (d *Driver) RetainProgram(id driver.ProgramID) driver.Status {
	d.count("RetainProgram")
	return retainStatus[*programObj](d, uintptr(id), driver.InvalidProgram)
}

// ReleaseProgram implements driver.Driver.
func (d *Driver) ReleaseProgram(id driver.ProgramID) driver.Status {
	d.count("ReleaseProgram")
	return releaseStatus[*programObj](d, uintptr(id), driver.InvalidProgram)
}

// RetainKernel implements driver.Driver.
func (d *Driver) RetainKernel(id driver.KernelID) driver.Status {
	d.count("RetainKernel")
	return retainStatus[*kernelObj](d, uintptr(id), driver.InvalidKernel)
}

// ReleaseKernel implements driver.Driver.
func (d *Driver) ReleaseKernel(id driver.KernelID) driver.Status {
	d.count("ReleaseKernel")
	return releaseStatus[*kernelObj](d, uintptr(id), driver.InvalidKernel)
}

// RetainMemObject implements driver.Driver.
func (d *Driver) RetainMemObject(id driver.MemID) driver.Status {
	d.count("RetainMemObject")
	return retainStatus[*memObj](d, uintptr(id), driver.InvalidMemObject)
}

// ReleaseMemObject implements driver.Driver.
func (d *Driver) ReleaseMemObject(id driver.MemID) driver.Status {
	d.count("ReleaseMemObject")
	return releaseStatus[*memObj](d, uintptr(id), driver.InvalidMemObject)
}

// RetainEvent implements driver.Driver.
func (d *Driver) RetainEvent(id driver.EventID) driver.Status {
	d.count("RetainEvent")
	return retainStatus[*eventObj](d, uintptr(id), driver.InvalidEvent)
}

// ReleaseEvent implements driver.Driver. It doesn't cancel the command.
func (d *Driver) ReleaseEvent(id driver.EventID) driver.Status {
	d.count("ReleaseEvent")
	return releaseStatus[*eventObj](d, uintptr(id), driver.InvalidEvent)
}

// RetainSampler implements driver.Driver.
func (d *Driver) RetainSampler(id driver.SamplerID) driver.Status {
	d.count("RetainSampler")
	return retainStatus[*samplerObj](d, uintptr(id), driver.InvalidSampler)
}

// ReleaseSampler implements driver.Driver.
func (d *Driver) ReleaseSampler(id driver.SamplerID) driver.Status {
	d.count("ReleaseSampler")
	return releaseStatus[*samplerObj](d, uintptr(id), driver.InvalidSampler)
}
