// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package dtypes

import "github.com/x448/float16"

// CLBool is the host type of the runtime's 4-bytes bool.
type CLBool uint32

// ToCLBool converts a Go bool.
func ToCLBool(b bool) CLBool {
	if b {
		return 1
	}
	return 0
}

// Bool converts to a Go bool: any non-zero value is true.
func (b CLBool) Bool() bool {
	return b != 0
}

// Supported lists the Go scalar types with a DType.
type Supported interface {
	uint8 | int8 | uint16 | int16 | uint32 | int32 | uint64 | int64 |
		float16.Float16 | float32 | float64 | uintptr | CLBool | int | uint
}

// Vector is implemented by the vector host types.
type Vector interface {
	Lanes() int
}

// Vector host types. Vec3 is padded to 4 lanes, matching the runtime ABI: the last
// element is ignored.
type (
	Vec2[T Supported]  [2]T
	Vec3[T Supported]  [4]T
	Vec4[T Supported]  [4]T
	Vec8[T Supported]  [8]T
	Vec16[T Supported] [16]T
)

func (Vec2[T]) Lanes() int  { return 2 }
func (Vec3[T]) Lanes() int  { return 3 }
func (Vec4[T]) Lanes() int  { return 4 }
func (Vec8[T]) Lanes() int  { return 8 }
func (Vec16[T]) Lanes() int { return 16 }

// MakeVec3 returns a Vec3 from its 3 elements.
func MakeVec3[T Supported](x, y, z T) Vec3[T] {
	return Vec3[T]{x, y, z}
}
