// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package cl

import (
	"fmt"
	"strings"

	"github.com/gomlx/gocl/pkg/core/clerr"
)

// Work describes the N-dimensional range of a kernel launch: the global size of each axis, and
// optionally the global offset and the work-group (local) size.
//
// Create it with One, Two or Three.
type Work struct {
	global, offset, local []int
}

// One returns 1-dimensional work of size x.
func One(x int) *Work {
	return &Work{global: []int{x}}
}

// Two returns 2-dimensional work of size x*y.
func Two(x, y int) *Work {
	return &Work{global: []int{x, y}}
}

// Three returns 3-dimensional work of size x*y*z.
func Three(x, y, z int) *Work {
	return &Work{global: []int{x, y, z}}
}

// WithOffset sets the global offset of each axis: the global ids start at it.
func (w *Work) WithOffset(offset ...int) *Work {
	w.offset = offset
	return w
}

// WithLocal sets the work-group size of each axis. It must divide the global size.
// If not set, the runtime chooses it.
func (w *Work) WithLocal(local ...int) *Work {
	w.local = local
	return w
}

// Dims returns the number of dimensions (1 to 3).
func (w *Work) Dims() int {
	return len(w.global)
}

// Global returns the global size of each axis.
func (w *Work) Global() []int {
	return w.global
}

// Offset returns the global offset of each axis, or nil if not set.
func (w *Work) Offset() []int {
	return w.offset
}

// Local returns the work-group size of each axis, or nil if not set.
func (w *Work) Local() []int {
	return w.local
}

// NumItems returns the total number of work-items.
func (w *Work) NumItems() int {
	n := 1
	for _, g := range w.global {
		n *= g
	}
	return n
}

// Validate returns a clerr.KindInvalidWorkDims error if the work is invalid.
func (w *Work) Validate() error {
	if w == nil {
		return clerr.WorkRequired()
	}
	dims := len(w.global)
	if dims < 1 || dims > 3 {
		return clerr.InvalidWorkDims("work must have 1 to 3 dimensions, got %d", dims)
	}
	for axis, g := range w.global {
		if g < 1 {
			return clerr.InvalidWorkDims("global size of axis %d must be >= 1, got %d", axis, g)
		}
	}
	if w.offset != nil {
		if len(w.offset) != dims {
			return clerr.InvalidWorkDims("offset has %d dimensions, work has %d", len(w.offset), dims)
		}
		for axis, o := range w.offset {
			if o < 0 {
				return clerr.InvalidWorkDims("offset of axis %d must be >= 0, got %d", axis, o)
			}
		}
	}
	if w.local != nil {
		if len(w.local) != dims {
			return clerr.InvalidWorkDims("local size has %d dimensions, work has %d", len(w.local), dims)
		}
		for axis, l := range w.local {
			if l < 1 {
				return clerr.InvalidWorkDims("local size of axis %d must be >= 1, got %d", axis, l)
			}
			if w.global[axis]%l != 0 {
				return clerr.InvalidWorkDims("local size %d doesn't divide global size %d of axis %d",
					l, w.global[axis], axis)
			}
		}
	}
	return nil
}

func toUintptrs(values []int) []uintptr {
	if values == nil {
		return nil
	}
	out := make([]uintptr, len(values))
	for i, v := range values {
		out[i] = uintptr(v)
	}
	return out
}

// String implements fmt.Stringer. E.g.: "Work[1024x768, local=16x16]".
func (w *Work) String() string {
	if w == nil {
		return "nil Work"
	}
	join := func(values []int) string {
		parts := make([]string, len(values))
		for i, v := range values {
			parts[i] = fmt.Sprint(v)
		}
		return strings.Join(parts, "x")
	}
	s := "Work[" + join(w.global)
	if w.offset != nil {
		s += ", offset=" + join(w.offset)
	}
	if w.local != nil {
		s += ", local=" + join(w.local)
	}
	return s + "]"
}
