// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package cl

import (
	"fmt"
	"slices"
	"unsafe"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gocl/pkg/core/dtypes"
)

// KernelArg is a value that can be bound to a kernel argument slot: ArgSize bytes read from
// ArgPointer, tagged with ArgDType.
//
// It is implemented by Scalar, Vector, LocalMem, *Buffer and *Sampler.
type KernelArg interface {
	ArgDType() dtypes.DType
	ArgSize() uintptr
	ArgPointer() unsafe.Pointer
}

type scalarArg[T dtypes.Supported] struct {
	value T
	dtype dtypes.DType
}

// Scalar returns a kernel argument holding value, passed by value.
//
// Use dtypes.CLBool for kernel bool arguments, and float16.Float16 for half.
func Scalar[T dtypes.Supported](value T) KernelArg {
	return &scalarArg[T]{value: value, dtype: dtypes.FromGenericsType[T]()}
}

func (s *scalarArg[T]) ArgDType() dtypes.DType     { return s.dtype }
func (s *scalarArg[T]) ArgSize() uintptr           { return unsafe.Sizeof(s.value) }
func (s *scalarArg[T]) ArgPointer() unsafe.Pointer { return unsafe.Pointer(&s.value) }
func (s *scalarArg[T]) String() string             { return fmt.Sprintf("%s(%v)", s.dtype, s.value) }

type vectorArg[T dtypes.Supported] struct {
	values []T
	dtype  dtypes.DType
}

// Vector returns a kernel argument of a vector type (e.g. float4) holding the given values.
//
// The number of values must be 2, 3, 4, 8 or 16, otherwise it panics. 3-element vectors are
// passed padded to 4 elements.
func Vector[T dtypes.Supported](values ...T) KernelArg {
	lanes := len(values)
	if !slices.Contains(dtypes.VectorLanes, lanes) {
		exceptions.Panicf("cl.Vector: vectors must have 2, 3, 4, 8 or 16 elements, got %d", lanes)
	}
	size := lanes
	if lanes == 3 {
		size = 4
	}
	storage := make([]T, size)
	copy(storage, values)
	return &vectorArg[T]{values: storage, dtype: dtypes.Vec(dtypes.FromGenericsType[T](), lanes)}
}

func (v *vectorArg[T]) ArgDType() dtypes.DType { return v.dtype }
func (v *vectorArg[T]) ArgSize() uintptr {
	var zero T
	return unsafe.Sizeof(zero) * uintptr(len(v.values))
}
func (v *vectorArg[T]) ArgPointer() unsafe.Pointer { return unsafe.Pointer(&v.values[0]) }
func (v *vectorArg[T]) String() string             { return fmt.Sprintf("%s%v", v.dtype, v.values) }

type localArg struct {
	size uintptr
}

// LocalMem returns a kernel argument declaring size bytes of work-group local memory, for
// "__local" pointer arguments.
func LocalMem(size uintptr) KernelArg {
	return localArg{size: size}
}

func (l localArg) ArgDType() dtypes.DType     { return dtypes.Uint8 }
func (l localArg) ArgSize() uintptr           { return l.size }
func (l localArg) ArgPointer() unsafe.Pointer { return nil }
func (l localArg) String() string             { return fmt.Sprintf("local[%d bytes]", l.size) }
