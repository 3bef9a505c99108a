// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package info implements the runtime's two-call info protocol: the first call returns the
// size of the value, the second fills a buffer of that size. The bytes are then reinterpreted
// as the requested type.
package info

import (
	"strings"
	"unsafe"

	"github.com/gomlx/gocl/driver"
	"github.com/gomlx/gocl/pkg/core/clerr"
	"github.com/pkg/errors"
)

// Getter queries one info parameter of one object: with a nil value it returns the size
// required, otherwise it fills value.
type Getter func(value []byte) (int, driver.Status)

// Bytes runs the two-call protocol and returns the raw bytes. op names the runtime entry point
// and flag the parameter queried, for error messages.
func Bytes(op, flag string, get Getter) ([]byte, error) {
	size, status := get(nil)
	if status != driver.Success {
		return nil, errors.WithMessagef(clerr.StatusCode(op, status), "querying size of %s", flag)
	}
	if size == 0 {
		return nil, nil
	}
	value := make([]byte, size)
	n, status := get(value)
	if status != driver.Success {
		return nil, errors.WithMessagef(clerr.StatusCode(op, status), "querying %s", flag)
	}
	return value[:min(n, size)], nil
}

// One returns one value of type T (an integer, a float, or an identifier).
// If the runtime returns no bytes, it fails with clerr.KindInfoUnavailable.
func One[T any](op, flag string, get Getter) (T, error) {
	var value T
	raw, err := Bytes(op, flag, get)
	if err != nil {
		return value, err
	}
	if len(raw) == 0 {
		return value, clerr.InfoUnavailable(flag)
	}
	size := int(unsafe.Sizeof(value))
	if len(raw) < size {
		// Narrower values (e.g. a 32 bits size on a 32 bits device) are zero extended.
		padded := make([]byte, size)
		copy(padded, raw)
		raw = padded
	}
	copy(unsafe.Slice((*byte)(unsafe.Pointer(&value)), size), raw)
	return value, nil
}

// Slice returns the value as a slice of T. An empty value returns an empty slice.
func Slice[T any](op, flag string, get Getter) ([]T, error) {
	raw, err := Bytes(op, flag, get)
	if err != nil {
		return nil, err
	}
	var zero T
	size := int(unsafe.Sizeof(zero))
	values := make([]T, len(raw)/size)
	if len(values) > 0 {
		copy(unsafe.Slice((*byte)(unsafe.Pointer(&values[0])), len(values)*size), raw)
	}
	return values, nil
}

// Bool returns a boolean stored as a 4-bytes unsigned integer.
func Bool(op, flag string, get Getter) (bool, error) {
	v, err := One[uint32](op, flag, get)
	return v != 0, err
}

// String returns a NUL-terminated string: the terminator is stripped and invalid UTF-8
// sequences are replaced.
func String(op, flag string, get Getter) (string, error) {
	raw, err := Bytes(op, flag, get)
	if err != nil {
		return "", err
	}
	if idx := strings.IndexByte(string(raw), 0); idx >= 0 {
		raw = raw[:idx]
	}
	return strings.ToValidUTF8(string(raw), "�"), nil
}

// Strings returns a list of strings separated by sep (e.g. kernel names separated by ";").
// Empty entries are dropped.
func Strings(op, flag, sep string, get Getter) ([]string, error) {
	s, err := String(op, flag, get)
	if err != nil {
		return nil, err
	}
	var parts []string
	for _, part := range strings.Split(s, sep) {
		if part = strings.TrimSpace(part); part != "" {
			parts = append(parts, part)
		}
	}
	return parts, nil
}

// Fill writes value to dst following the runtime's side of the protocol: it returns the size
// of value and, if dst is non-nil, copies value into it. If dst is too small it returns
// driver.InvalidValue.
//
// It is used by drivers implemented in Go.
func Fill(dst []byte, value []byte) (int, driver.Status) {
	if dst == nil {
		return len(value), driver.Success
	}
	if len(dst) < len(value) {
		return 0, driver.InvalidValue
	}
	return copy(dst, value), driver.Success
}

// Encode returns the bytes of value, to be used with Fill.
func Encode[T any](value T) []byte {
	size := int(unsafe.Sizeof(value))
	out := make([]byte, size)
	copy(out, unsafe.Slice((*byte)(unsafe.Pointer(&value)), size))
	return out
}

// EncodeSlice returns the bytes of values, to be used with Fill.
func EncodeSlice[T any](values []T) []byte {
	if len(values) == 0 {
		return nil
	}
	size := int(unsafe.Sizeof(values[0])) * len(values)
	out := make([]byte, size)
	copy(out, unsafe.Slice((*byte)(unsafe.Pointer(&values[0])), size))
	return out
}

// EncodeString returns the NUL-terminated bytes of s, to be used with Fill.
func EncodeString(s string) []byte {
	out := make([]byte, len(s)+1)
	copy(out, s)
	return out
}

// EncodeBool returns the 4-bytes encoding of b, to be used with Fill.
func EncodeBool(b bool) []byte {
	var v uint32
	if b {
		v = 1
	}
	return Encode(v)
}
