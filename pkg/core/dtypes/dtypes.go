// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package dtypes is the registry of element types understood by the runtime: the closed set
// of scalar types, their small-vector variants, and the mapping from Go types.
//
// Sizes follow the runtime ABI: Bool is 4 bytes, SizeT is the host word and 3-lane vectors
// are padded to 4 lanes.
package dtypes

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"unsafe"

	pjrtdtypes "github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
	"github.com/x448/float16"
)

// panicf panics with the formatted description.
//
// It is only used for "bugs in the code" -- when parameters break the documented preconditions.
func panicf(format string, args ...any) {
	panic(errors.Errorf(format, args...))
}

const lanesShift = 8

// MapOfNames maps type names to DType. It accepts the kernel language names ("float", "int4"),
// the Go names ("Float32") and their lower-case versions, and the short aliases ("F32").
// Kernel language names take precedence: "uint8" is Vec(Uint32, 8) and "float16" is Vec(Float32, 16).
var MapOfNames = map[string]DType{}

func init() {
	if strconv.IntSize != 32 && strconv.IntSize != 64 {
		panicf("cannot use int of %d bits with gocl -- only platforms with int32 or int64 are supported", strconv.IntSize)
	}
	for scalar := Uint8; scalar < numScalars; scalar++ {
		MapOfNames[scalarNames[scalar]] = scalar
		MapOfNames[goNames[scalar]] = scalar
		if !scalar.IsVectorizable() {
			continue
		}
		for _, lanes := range VectorLanes {
			MapOfNames[Vec(scalar, lanes).String()] = Vec(scalar, lanes)
		}
	}
	for scalar := Uint8; scalar < numScalars; scalar++ {
		lower := strings.ToLower(goNames[scalar])
		if _, found := MapOfNames[lower]; !found {
			MapOfNames[lower] = scalar
		}
	}
	for alias, dtype := range map[string]DType{
		"U8": U8, "I8": I8, "U16": U16, "I16": I16, "U32": U32, "I32": I32,
		"U64": U64, "I64": I64, "F16": F16, "F32": F32, "F64": F64,
	} {
		MapOfNames[alias] = dtype
	}
}

// FromName returns the DType for the given name, or InvalidDType if unknown. See MapOfNames.
func FromName(name string) DType {
	return MapOfNames[name]
}

// Vec returns the vector DType with the given number of lanes of scalar.
// It returns InvalidDType if scalar can't be vectorized or lanes is not one of VectorLanes.
func Vec(scalar DType, lanes int) DType {
	if scalar.IsVector() || !scalar.IsVectorizable() {
		return InvalidDType
	}
	switch lanes {
	case 2, 3, 4, 8, 16:
		return scalar | DType(lanes)<<lanesShift
	}
	return InvalidDType
}

// Scalar returns the scalar type of dtype, which is dtype itself for scalars.
func (dtype DType) Scalar() DType {
	return dtype & (1<<lanesShift - 1)
}

// Lanes returns the number of vector lanes, 1 for scalars.
func (dtype DType) Lanes() int {
	lanes := int(dtype >> lanesShift)
	if lanes == 0 {
		return 1
	}
	return lanes
}

// IsVector returns whether dtype is a vector type.
func (dtype DType) IsVector() bool {
	return dtype>>lanesShift != 0
}

// IsValid returns whether dtype is part of the registry.
func (dtype DType) IsValid() bool {
	scalar := dtype.Scalar()
	if scalar == InvalidDType || scalar >= numScalars {
		return false
	}
	if !dtype.IsVector() {
		return true
	}
	return Vec(scalar, dtype.Lanes()) == dtype
}

// IsVectorizable returns whether vectors of dtype are supported: fixed size numeric scalars and Bool.
func (dtype DType) IsVectorizable() bool {
	return (dtype >= Uint8 && dtype <= Float64) || dtype == Bool
}

// IsFloat returns whether the scalar type of dtype is a float.
func (dtype DType) IsFloat() bool {
	s := dtype.Scalar()
	return s == Float16 || s == Float32 || s == Float64
}

// IsHandle returns whether dtype is the tag of an object argument (Memory or Sampler).
func (dtype DType) IsHandle() bool {
	return dtype == Memory || dtype == Sampler
}

var (
	pointerSize = unsafe.Sizeof(uintptr(0))
	scalarSizes = [numScalars]uintptr{
		Uint8: 1, Int8: 1,
		Uint16: 2, Int16: 2, Float16: 2,
		Uint32: 4, Int32: 4, Float32: 4, Bool: 4,
		Uint64: 8, Int64: 8, Float64: 8,
		SizeT: pointerSize, Memory: pointerSize, Sampler: pointerSize,
	}
)

// Size returns the number of bytes of one element of dtype.
// 3-lane vectors are padded to 4 lanes. It returns 0 for invalid dtypes.
func (dtype DType) Size() uintptr {
	if !dtype.IsValid() {
		return 0
	}
	lanes := dtype.Lanes()
	if lanes == 3 {
		lanes = 4
	}
	return scalarSizes[dtype.Scalar()] * uintptr(lanes)
}

// Alignment returns the required alignment of dtype in bytes. Vectors are aligned to their size.
func (dtype DType) Alignment() uintptr {
	return dtype.Size()
}

// String returns the kernel language name of dtype (e.g. "float4").
func (dtype DType) String() string {
	scalar := dtype.Scalar()
	if scalar >= numScalars {
		return fmt.Sprintf("DType(%d)", uint16(dtype))
	}
	if !dtype.IsVector() {
		return scalarNames[scalar]
	}
	return fmt.Sprintf("%s%d", scalarNames[scalar], dtype.Lanes())
}

// GoName returns the Go-flavored name of dtype (e.g. "Float32" or "Vec4[Float32]").
func (dtype DType) GoName() string {
	scalar := dtype.Scalar()
	if scalar == InvalidDType || scalar >= numScalars {
		return dtype.String()
	}
	if !dtype.IsVector() {
		return goNames[scalar]
	}
	return fmt.Sprintf("Vec%d[%s]", dtype.Lanes(), goNames[scalar])
}

// Pre-generate constant reflect.TypeOf for convenience.
var (
	float16Type = reflect.TypeOf(float16.Float16(0))
	clBoolType  = reflect.TypeOf(CLBool(0))
	uintptrType = reflect.TypeOf(uintptr(0))
	vectorType  = reflect.TypeOf((*Vector)(nil)).Elem()
)

// GoType returns the Go host type holding one element of dtype. Vectors use Vec2...Vec16.
// It panics for invalid dtypes and object tags.
func (dtype DType) GoType() reflect.Type {
	switch dtype {
	case Uint8:
		return reflect.TypeOf(uint8(0))
	case Int8:
		return reflect.TypeOf(int8(0))
	case Uint16:
		return reflect.TypeOf(uint16(0))
	case Int16:
		return reflect.TypeOf(int16(0))
	case Uint32:
		return reflect.TypeOf(uint32(0))
	case Int32:
		return reflect.TypeOf(int32(0))
	case Uint64:
		return reflect.TypeOf(uint64(0))
	case Int64:
		return reflect.TypeOf(int64(0))
	case Float16:
		return float16Type
	case Float32:
		return reflect.TypeOf(float32(0))
	case Float64:
		return reflect.TypeOf(float64(0))
	case SizeT:
		return uintptrType
	case Bool:
		return clBoolType
	}
	if dtype.IsVector() && dtype.IsValid() {
		// Vectors of the registry are arrays padded to the vector size.
		return reflect.ArrayOf(int(dtype.Size()/scalarSizes[dtype.Scalar()]), dtype.Scalar().GoType())
	}
	panicf("dtype %s (%d) has no Go host type", dtype, uint16(dtype))
	panic(nil)
}

// fromPJRT maps the scalar types shared with github.com/gomlx/gopjrt/dtypes.
var fromPJRT = map[pjrtdtypes.DType]DType{
	pjrtdtypes.Uint8:   Uint8,
	pjrtdtypes.Int8:    Int8,
	pjrtdtypes.Uint16:  Uint16,
	pjrtdtypes.Int16:   Int16,
	pjrtdtypes.Uint32:  Uint32,
	pjrtdtypes.Int32:   Int32,
	pjrtdtypes.Uint64:  Uint64,
	pjrtdtypes.Int64:   Int64,
	pjrtdtypes.Float16: Float16,
	pjrtdtypes.Float32: Float32,
	pjrtdtypes.Float64: Float64,
}

// FromPJRT converts a PJRT/XLA dtype to the corresponding DType, or InvalidDType if the
// runtime has no such type (e.g. complex numbers or BFloat16).
func FromPJRT(dtype pjrtdtypes.DType) DType {
	return fromPJRT[dtype]
}

// ToPJRT converts a scalar dtype to the PJRT/XLA dtype with the same memory layout.
// It returns pjrtdtypes.InvalidDType for vectors, SizeT, Bool (4 bytes here, 1 byte in PJRT) and object tags.
func (dtype DType) ToPJRT() pjrtdtypes.DType {
	for pj, d := range fromPJRT {
		if d == dtype {
			return pj
		}
	}
	return pjrtdtypes.InvalidDType
}

// FromGoType returns the DType for the given Go type, or InvalidDType if not supported.
//
// Go's bool is not supported because it takes 1 byte: use CLBool. Go's int and uint map to
// the 64 or 32 bits types, depending on the platform. Vector host types (Vec2...Vec16) map
// to the corresponding vector DType.
func FromGoType(t reflect.Type) DType {
	switch t {
	case clBoolType:
		return Bool
	case float16Type:
		return Float16
	case uintptrType:
		return SizeT
	}
	if t.Kind() == reflect.Array && t.Implements(vectorType) {
		lanes := reflect.Zero(t).Interface().(Vector).Lanes()
		return Vec(FromGoType(t.Elem()), lanes)
	}
	switch t.Kind() {
	case reflect.Bool:
		return InvalidDType
	case reflect.Uint:
		if strconv.IntSize == 32 {
			return Uint32
		}
		return Uint64
	case reflect.Uintptr:
		return SizeT
	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64, reflect.Int,
		reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return FromPJRT(pjrtdtypes.FromGoType(t))
	}
	return InvalidDType
}

// FromGenericsType returns the DType for the Go type T, or InvalidDType if not supported.
func FromGenericsType[T any]() DType {
	return FromGoType(reflect.TypeFor[T]())
}

// FromAny returns the DType of the value's type, or InvalidDType if not supported.
func FromAny(value any) DType {
	if value == nil {
		return InvalidDType
	}
	return FromGoType(reflect.TypeOf(value))
}
