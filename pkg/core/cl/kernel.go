// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package cl

import (
	"fmt"

	"github.com/gomlx/gocl/driver"
	"github.com/gomlx/gocl/internal/handle"
	"github.com/gomlx/gocl/internal/info"
	"github.com/gomlx/gocl/pkg/core/clerr"
)

// Kernel is one kernel function of a built Program, with its argument slots.
//
// A Kernel with bound arguments must not be used concurrently: use one kernel per goroutine,
// see Clone. Bound buffers and samplers are not retained by the kernel: they must outlive the
// commands launching it.
type Kernel struct {
	h       *handle.Handle[driver.KernelID]
	name    string
	numArgs int
	args    []KernelArg
}

func newKernel(p *Program, name string) (*Kernel, error) {
	id, status := p.Driver().CreateKernel(p.h.Raw(), name)
	if err := clerr.StatusCode("clCreateKernel", status); err != nil {
		return nil, err
	}
	return wrapKernel(p.Driver(), id, name)
}

func wrapKernel(drv driver.Driver, id driver.KernelID, name string) (*Kernel, error) {
	h, err := handle.Wrap(drv, id)
	if err != nil {
		return nil, err
	}
	k := &Kernel{h: h, name: name}
	numArgs, err := info.One[uint32]("clGetKernelInfo", "KernelNumArgs", k.getter(driver.KernelNumArgs))
	if err != nil {
		h.Release()
		return nil, err
	}
	k.numArgs = int(numArgs)
	k.args = make([]KernelArg, k.numArgs)
	return k, nil
}

// check returns an error if the kernel is nil or released.
func (k *Kernel) check() error {
	if k == nil {
		return clerr.NullHandle(driver.KindKernel)
	}
	return checkHandle(k.h, driver.KindKernel)
}

func (k *Kernel) getter(param driver.KernelInfo) info.Getter {
	return func(value []byte) (int, driver.Status) {
		return k.h.Driver().GetKernelInfo(k.h.Raw(), param, value)
	}
}

// Driver used by the kernel.
func (k *Kernel) Driver() driver.Driver {
	return k.h.Driver()
}

// Name of the kernel function.
func (k *Kernel) Name() string {
	return k.name
}

// NumArgs returns the number of arguments the kernel takes.
func (k *Kernel) NumArgs() int {
	return k.numArgs
}

// SetArg binds arg to the argument slot index. Slots can be bound, and rebound, in any order.
func (k *Kernel) SetArg(index int, arg KernelArg) error {
	if err := k.check(); err != nil {
		return err
	}
	if index < 0 || index >= k.numArgs {
		return clerr.ArgIndexOutOfRange(index, k.numArgs)
	}
	if arg == nil {
		return clerr.TypeMismatch("KernelArg", "nil")
	}
	// Handles are passed by identifier: a released one would reach the runtime as a dangling id.
	switch handleArg := arg.(type) {
	case *Buffer:
		if err := handleArg.check(); err != nil {
			return err
		}
	case *Sampler:
		if err := handleArg.check(); err != nil {
			return err
		}
	}
	status := k.h.Driver().SetKernelArg(k.h.Raw(), uint32(index), arg.ArgSize(), arg.ArgPointer())
	if err := clerr.StatusCode("clSetKernelArg", status); err != nil {
		return err
	}
	k.args[index] = arg
	return nil
}

// SetArgs binds the arguments in order, starting from slot 0.
func (k *Kernel) SetArgs(args ...KernelArg) error {
	for i, arg := range args {
		if err := k.SetArg(i, arg); err != nil {
			return err
		}
	}
	return nil
}

// Arg returns the argument bound to slot index, or nil if it is not set.
func (k *Kernel) Arg(index int) KernelArg {
	if index < 0 || index >= len(k.args) {
		return nil
	}
	return k.args[index]
}

// UnsetArgs returns the indices of the slots not bound yet.
func (k *Kernel) UnsetArgs() []int {
	var unset []int
	for i, arg := range k.args {
		if arg == nil {
			unset = append(unset, i)
		}
	}
	return unset
}

// checkArgs returns a clerr.KindArgNotSet error for the first slot not bound.
func (k *Kernel) checkArgs() error {
	for i, arg := range k.args {
		if arg == nil {
			return clerr.ArgNotSet(k.name, i)
		}
	}
	return nil
}

// WorkGroupSize returns the maximum work-group size to launch the kernel on the device.
func (k *Kernel) WorkGroupSize(device *Device) (uintptr, error) {
	if err := device.check(); err != nil {
		return 0, err
	}
	return info.One[uintptr]("clGetKernelWorkGroupInfo", "KernelWorkGroupSize",
		func(value []byte) (int, driver.Status) {
			return k.h.Driver().GetKernelWorkGroupInfo(k.h.Raw(), device.h.Raw(), driver.KernelWorkGroupSize, value)
		})
}

// ReferenceCount returns the current reference count of the kernel in the runtime.
func (k *Kernel) ReferenceCount() (uint32, error) {
	return info.One[uint32]("clGetKernelInfo", "KernelReferenceCount", k.getter(driver.KernelReferenceCount))
}

// Clone returns a new kernel object of the same function, with the same arguments bound.
//
// Unlike other types, the clone is a different runtime object, so it can be used concurrently
// with the original.
func (k *Kernel) Clone() (*Kernel, error) {
	if err := k.check(); err != nil {
		return nil, err
	}
	programID, err := info.One[driver.ProgramID]("clGetKernelInfo", "KernelProgram", k.getter(driver.KernelProgram))
	if err != nil {
		return nil, err
	}
	id, status := k.h.Driver().CreateKernel(programID, k.name)
	if err := clerr.StatusCode("clCreateKernel", status); err != nil {
		return nil, err
	}
	clone, err := wrapKernel(k.h.Driver(), id, k.name)
	if err != nil {
		return nil, err
	}
	for i, arg := range k.args {
		if arg == nil {
			continue
		}
		if err := clone.SetArg(i, arg); err != nil {
			clone.Release()
			return nil, err
		}
	}
	return clone, nil
}

// Release the kernel. It is safe to call it more than once.
func (k *Kernel) Release() {
	if k == nil {
		return
	}
	k.h.Release()
}

// String implements fmt.Stringer.
func (k *Kernel) String() string {
	if k == nil {
		return "nil Kernel"
	}
	return fmt.Sprintf("%s[%s/%d]", k.h, k.name, k.numArgs)
}
