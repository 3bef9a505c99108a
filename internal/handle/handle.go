// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package handle implements the owning wrapper over the runtime's reference counted objects.
//
// A Handle owns exactly one reference of one runtime object. Release gives it back, once, and
// Clone takes a new one. Wrapping a null identifier, or the unusable device sentinel, fails.
package handle

import (
	"fmt"
	"runtime"
	"sync/atomic"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gocl/driver"
	"github.com/gomlx/gocl/pkg/core/clerr"
	"k8s.io/klog/v2"
)

// Fatalf is called when the runtime fails to retain or release an object: a leaked or doubly
// released reference corrupts every later object of the same kind, so it terminates the process.
//
// It can be replaced in tests.
var Fatalf = klog.Fatalf

// Handle owns one reference of a runtime object of kind ID.Kind().
//
// It is safe for concurrent use. Release must be called once the handle is no longer needed,
// otherwise the reference is only given back when the Handle is garbage collected.
type Handle[ID driver.Object] struct {
	drv      driver.Driver
	id       ID
	released atomic.Bool
}

// validate checks the identifier can be wrapped.
func validate[ID driver.Object](id ID) error {
	if id == 0 {
		return clerr.NullHandle(id.Kind())
	}
	if id.Kind() == driver.KindDevice && driver.DeviceID(id) == driver.UnusableDeviceID {
		return clerr.UnusableDevice()
	}
	return nil
}

// Wrap takes ownership of a reference the caller already holds (e.g. returned by a create call),
// without retaining it.
func Wrap[ID driver.Object](drv driver.Driver, id ID) (*Handle[ID], error) {
	if err := validate(id); err != nil {
		return nil, err
	}
	return newHandle(drv, id), nil
}

// WrapAndRetain retains the object and wraps the new reference. Use it for identifiers the
// caller doesn't own, e.g. returned by info queries or enumeration.
func WrapAndRetain[ID driver.Object](drv driver.Driver, id ID) (*Handle[ID], error) {
	if err := validate(id); err != nil {
		return nil, err
	}
	retain(drv, id)
	return newHandle(drv, id), nil
}

// IsUsable returns whether id can be wrapped: it is not null, nor the unusable device sentinel.
func IsUsable[ID driver.Object](id ID) bool {
	return validate(id) == nil
}

func newHandle[ID driver.Object](drv driver.Driver, id ID) *Handle[ID] {
	h := &Handle[ID]{drv: drv, id: id}
	if id.Kind() != driver.KindPlatform {
		runtime.SetFinalizer(h, finalize[ID])
	}
	return h
}

func finalize[ID driver.Object](h *Handle[ID]) {
	if h.released.Load() {
		return
	}
	klog.V(1).Infof("gocl: %s was not released, releasing it on garbage collection", h)
	h.Release()
}

func retain[ID driver.Object](drv driver.Driver, id ID) {
	if status := id.Retain(drv); status != driver.Success {
		Fatalf("gocl: failed to retain %s %#x: %s (%d)", id.Kind(), uintptr(id), status, int32(status))
	}
}

// Raw returns the runtime identifier. It panics if the handle was released.
func (h *Handle[ID]) Raw() ID {
	if h == nil {
		exceptions.Panicf("gocl: using nil handle")
	}
	if h.released.Load() {
		exceptions.Panicf("gocl: using %s after Release", h)
	}
	return h.id
}

// Driver used by the handle.
func (h *Handle[ID]) Driver() driver.Driver {
	return h.drv
}

// Kind of the object.
func (h *Handle[ID]) Kind() driver.Kind {
	return h.id.Kind()
}

// Clone retains the object and returns a new owner of the new reference.
func (h *Handle[ID]) Clone() *Handle[ID] {
	id := h.Raw()
	retain(h.drv, id)
	return newHandle(h.drv, id)
}

// Release gives back the reference owned by h. Subsequent calls are no-ops.
func (h *Handle[ID]) Release() {
	if h == nil || h.released.Swap(true) {
		return
	}
	runtime.SetFinalizer(h, nil)
	if status := h.id.Release(h.drv); status != driver.Success {
		Fatalf("gocl: failed to release %s %#x: %s (%d)", h.id.Kind(), uintptr(h.id), status, int32(status))
	}
}

// IsReleased returns whether Release was called.
func (h *Handle[ID]) IsReleased() bool {
	return h.released.Load()
}

// Equal returns whether both handles refer to the same runtime object.
func (h *Handle[ID]) Equal(other *Handle[ID]) bool {
	if h == nil || other == nil {
		return h == other
	}
	return h.id == other.id
}

// String implements fmt.Stringer.
func (h *Handle[ID]) String() string {
	if h == nil {
		return "nil handle"
	}
	return fmt.Sprintf("%s(%#x)", h.id.Kind(), uintptr(h.id))
}
