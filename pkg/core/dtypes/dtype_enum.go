// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package dtypes

// DType is the element-type tag of buffers and kernel arguments: a scalar type, optionally
// with a vector width ("lanes").
//
// The lower 8 bits hold the scalar type, the upper 8 bits the number of lanes (0 for scalars).
type DType uint16

const (
	// InvalidDType is the zero value, used for unsupported types.
	InvalidDType DType = iota

	Uint8
	Int8
	Uint16
	Int16
	Uint32
	Int32
	Uint64
	Int64

	// Float16 is stored as its raw 16 bits (github.com/x448/float16).
	Float16
	Float32
	Float64

	// SizeT is the host word (uintptr).
	SizeT

	// Bool is 4 bytes, following the runtime convention. Its host type is CLBool.
	Bool

	// Memory is the tag of memory object arguments (buffers): the value is the object identifier.
	Memory

	// Sampler is the tag of sampler arguments.
	Sampler

	numScalars
)

// Short aliases.
const (
	U8  = Uint8
	I8  = Int8
	U16 = Uint16
	I16 = Int16
	U32 = Uint32
	I32 = Int32
	U64 = Uint64
	I64 = Int64
	F16 = Float16
	F32 = Float32
	F64 = Float64
)

// scalarNames are the names of the scalar types in the runtime's kernel language.
var scalarNames = [numScalars]string{
	InvalidDType: "invalid",
	Uint8:        "uchar",
	Int8:         "char",
	Uint16:       "ushort",
	Int16:        "short",
	Uint32:       "uint",
	Int32:        "int",
	Uint64:       "ulong",
	Int64:        "long",
	Float16:      "half",
	Float32:      "float",
	Float64:      "double",
	SizeT:        "size_t",
	Bool:         "bool",
	Memory:       "mem",
	Sampler:      "sampler_t",
}

// goNames are the Go-flavored names of the scalar types, also accepted by FromName.
var goNames = [numScalars]string{
	Uint8:   "Uint8",
	Int8:    "Int8",
	Uint16:  "Uint16",
	Int16:   "Int16",
	Uint32:  "Uint32",
	Int32:   "Int32",
	Uint64:  "Uint64",
	Int64:   "Int64",
	Float16: "Float16",
	Float32: "Float32",
	Float64: "Float64",
	SizeT:   "SizeT",
	Bool:    "Bool",
	Memory:  "Memory",
	Sampler: "Sampler",
}

// VectorLanes lists the supported vector widths.
var VectorLanes = []int{2, 3, 4, 8, 16}
