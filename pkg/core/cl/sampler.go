// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package cl

import (
	"unsafe"

	"github.com/gomlx/gocl/driver"
	"github.com/gomlx/gocl/internal/handle"
	"github.com/gomlx/gocl/internal/info"
	"github.com/gomlx/gocl/pkg/core/clerr"
	"github.com/gomlx/gocl/pkg/core/dtypes"
)

// Sampler describes how kernels read images. It can be passed as a kernel argument.
type Sampler struct {
	h     *handle.Handle[driver.SamplerID]
	rawID driver.SamplerID
}

// NewSampler creates a sampler in the context.
func NewSampler(ctx *Context, normalizedCoords bool, addressing driver.AddressingMode, filter driver.FilterMode) (*Sampler, error) {
	if err := ctx.check(); err != nil {
		return nil, err
	}
	id, status := ctx.Driver().CreateSampler(ctx.h.Raw(), normalizedCoords, addressing, filter)
	if err := clerr.StatusCode("clCreateSampler", status); err != nil {
		return nil, err
	}
	h, err := handle.Wrap(ctx.Driver(), id)
	if err != nil {
		return nil, err
	}
	return &Sampler{h: h, rawID: id}, nil
}

func (s *Sampler) check() error {
	if s == nil {
		return clerr.NullHandle(driver.KindSampler)
	}
	return checkHandle(s.h, driver.KindSampler)
}

func (s *Sampler) getter(param driver.SamplerInfo) info.Getter {
	return func(value []byte) (int, driver.Status) {
		return s.h.Driver().GetSamplerInfo(s.h.Raw(), param, value)
	}
}

// NormalizedCoords returns whether image coordinates are normalized to [0, 1].
func (s *Sampler) NormalizedCoords() (bool, error) {
	return info.Bool("clGetSamplerInfo", "SamplerNormalizedCoords", s.getter(driver.SamplerNormalizedCoords))
}

// AddressingMode of the sampler.
func (s *Sampler) AddressingMode() (driver.AddressingMode, error) {
	mode, err := info.One[uint32]("clGetSamplerInfo", "SamplerAddressingMode", s.getter(driver.SamplerAddressingMode))
	return driver.AddressingMode(mode), err
}

// FilterMode of the sampler.
func (s *Sampler) FilterMode() (driver.FilterMode, error) {
	mode, err := info.One[uint32]("clGetSamplerInfo", "SamplerFilterMode", s.getter(driver.SamplerFilterMode))
	return driver.FilterMode(mode), err
}

// ReferenceCount returns the current reference count of the sampler in the runtime.
func (s *Sampler) ReferenceCount() (uint32, error) {
	return info.One[uint32]("clGetSamplerInfo", "SamplerReferenceCount", s.getter(driver.SamplerReferenceCount))
}

// Clone returns a new owner of the same sampler.
func (s *Sampler) Clone() *Sampler {
	return &Sampler{h: s.h.Clone(), rawID: s.rawID}
}

// Release the sampler. It is safe to call it more than once.
func (s *Sampler) Release() {
	if s == nil {
		return
	}
	s.h.Release()
}

// String implements fmt.Stringer.
func (s *Sampler) String() string {
	if s == nil {
		return "nil Sampler"
	}
	return s.h.String()
}

// ArgDType implements KernelArg.
func (s *Sampler) ArgDType() dtypes.DType { return dtypes.Sampler }

// ArgSize implements KernelArg.
func (s *Sampler) ArgSize() uintptr { return unsafe.Sizeof(s.rawID) }

// ArgPointer implements KernelArg.
func (s *Sampler) ArgPointer() unsafe.Pointer { return unsafe.Pointer(&s.rawID) }
