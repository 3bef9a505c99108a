// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package clerr defines the single error type returned by gocl operations.
//
// Every failure, be it a non-zero status returned by the runtime or a validation failure
// detected on the host before calling the runtime, is reported as an *Error, wrapped with a
// stack trace (github.com/pkg/errors). Use errors.Is with the Err* sentinels to check for a
// kind of failure, or errors.As to access the details:
//
//	if errors.Is(err, clerr.ErrArgNotSet) { ... }
//
//	var clErr *clerr.Error
//	if errors.As(err, &clErr) && clErr.Kind == clerr.KindBuildFailed {
//		for _, log := range clErr.Logs { ... }
//	}
package clerr

import (
	"fmt"
	"strings"

	"github.com/gomlx/gocl/driver"
	"github.com/pkg/errors"
)

// Kind of error.
type Kind int

const (
	KindUnknown Kind = iota

	// KindStatusCode is a non-zero status returned by the runtime.
	KindStatusCode

	// KindNullHandle is an attempt to wrap a null identifier.
	KindNullHandle

	// KindUnusableDevice is the unusable device sentinel found where a device was expected.
	KindUnusableDevice

	KindInvalidDevice
	KindInvalidContext
	KindInvalidProgram

	KindProgramNotBuilt
	KindAlreadyBuilt
	KindBuildFailed

	KindArgNotSet
	KindArgIndexOutOfRange
	KindTypeMismatch
	KindSizeMismatch
	KindSizeOverflow

	KindWorkRequired
	KindInvalidWorkDims

	// KindContextBuilder is an illegal combination of options in a context builder, see Reason.
	KindContextBuilder

	// KindInfoUnavailable is an info query that returned no value.
	KindInfoUnavailable

	// KindNumericConversion is a host-side numeric cast that would overflow or lose precision.
	KindNumericConversion

	// KindInvalidAccess is an illegal buffer access policy, or a host transfer the policy forbids.
	KindInvalidAccess
)

var kindNames = map[Kind]string{
	KindUnknown:            "Unknown",
	KindStatusCode:         "StatusCode",
	KindNullHandle:         "NullHandle",
	KindUnusableDevice:     "UnusableDevice",
	KindInvalidDevice:      "InvalidDevice",
	KindInvalidContext:     "InvalidContext",
	KindInvalidProgram:     "InvalidProgram",
	KindProgramNotBuilt:    "ProgramNotBuilt",
	KindAlreadyBuilt:       "AlreadyBuilt",
	KindBuildFailed:        "BuildFailed",
	KindArgNotSet:          "ArgNotSet",
	KindArgIndexOutOfRange: "ArgIndexOutOfRange",
	KindTypeMismatch:       "TypeMismatch",
	KindSizeMismatch:       "SizeMismatch",
	KindSizeOverflow:       "SizeOverflow",
	KindWorkRequired:       "WorkRequired",
	KindInvalidWorkDims:    "InvalidWorkDims",
	KindContextBuilder:     "ContextBuilder",
	KindInfoUnavailable:    "InfoUnavailable",
	KindNumericConversion:  "NumericConversion",
	KindInvalidAccess:      "InvalidAccess",
}

func (k Kind) String() string {
	if name, found := kindNames[k]; found {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ContextBuilderReason details a KindContextBuilder error.
type ContextBuilderReason int

const (
	NoReason ContextBuilderReason = iota
	CannotSpecifyDevicesAndDeviceType
	CannotSpecifyDevicesAndPlatforms
)

func (r ContextBuilderReason) String() string {
	switch r {
	case CannotSpecifyDevicesAndDeviceType:
		return "CannotSpecifyDevicesAndDeviceType"
	case CannotSpecifyDevicesAndPlatforms:
		return "CannotSpecifyDevicesAndPlatforms"
	}
	return "NoReason"
}

// BuildLog is the compiler output of a program build for one device.
type BuildLog struct {
	Device     driver.DeviceID
	DeviceName string
	Log        string
}

// Error is the error type of all gocl operations. Only the fields relevant to Kind are set.
type Error struct {
	Kind Kind

	// Op is the runtime entry point (for KindStatusCode) or the operation that failed.
	Op     string
	Status driver.Status

	// HandleKind for KindNullHandle.
	HandleKind driver.Kind

	// Index of the device (KindInvalidDevice) or of the argument (KindArgNotSet, KindArgIndexOutOfRange).
	Index int

	// NumArgs of the kernel for KindArgIndexOutOfRange.
	NumArgs int

	// Expected and Got for KindTypeMismatch (type names) and KindNumericConversion (from/to types).
	Expected, Got string

	// ExpectedLen and GotLen for KindSizeMismatch, in number of elements.
	// For KindSizeOverflow, ExpectedLen is the number of elements and GotLen the element size.
	ExpectedLen, GotLen uint64

	// Logs for KindBuildFailed, one per device the build was attempted on.
	Logs []BuildLog

	// Reason for KindContextBuilder.
	Reason ContextBuilderReason

	// Flag queried for KindInfoUnavailable.
	Flag string

	// Detail is an optional free-form description.
	Detail string
}

// Error implements the error interface.
func (e *Error) Error() string {
	var msg string
	switch e.Kind {
	case KindStatusCode:
		msg = fmt.Sprintf("%s failed with status %s (%d): %s", e.Op, e.Status, int32(e.Status), e.Status.Description())
	case KindNullHandle:
		msg = fmt.Sprintf("null %s handle", e.HandleKind)
	case KindUnusableDevice:
		msg = "unusable device (inactive device sentinel)"
	case KindInvalidDevice:
		msg = fmt.Sprintf("invalid device #%d", e.Index)
	case KindInvalidContext:
		msg = "invalid context"
	case KindInvalidProgram:
		msg = "invalid program"
	case KindProgramNotBuilt:
		msg = "program not built"
	case KindAlreadyBuilt:
		msg = "program already built"
	case KindBuildFailed:
		parts := make([]string, 0, len(e.Logs))
		for _, log := range e.Logs {
			parts = append(parts, fmt.Sprintf("device %q:\n%s", log.DeviceName, strings.TrimSpace(log.Log)))
		}
		msg = fmt.Sprintf("program build failed on %d device(s)", len(e.Logs))
		if len(parts) > 0 {
			msg += ":\n" + strings.Join(parts, "\n")
		}
	case KindArgNotSet:
		msg = fmt.Sprintf("kernel argument #%d not set", e.Index)
	case KindArgIndexOutOfRange:
		msg = fmt.Sprintf("kernel argument index %d out of range, kernel takes %d arguments", e.Index, e.NumArgs)
	case KindTypeMismatch:
		msg = fmt.Sprintf("type mismatch: expected %s, got %s", e.Expected, e.Got)
	case KindSizeMismatch:
		msg = fmt.Sprintf("size mismatch: expected %d elements, got %d", e.ExpectedLen, e.GotLen)
	case KindSizeOverflow:
		msg = fmt.Sprintf("size overflow: %d elements of %d bytes", e.ExpectedLen, e.GotLen)
	case KindWorkRequired:
		msg = "work dimensions required"
	case KindInvalidWorkDims:
		msg = "invalid work dimensions"
	case KindContextBuilder:
		msg = fmt.Sprintf("invalid context builder options: %s", e.Reason)
	case KindInfoUnavailable:
		msg = fmt.Sprintf("info %s unavailable", e.Flag)
	case KindNumericConversion:
		msg = fmt.Sprintf("numeric conversion from %s to %s failed", e.Expected, e.Got)
	case KindInvalidAccess:
		msg = "invalid access"
	default:
		msg = "unknown error"
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

// Is implements errors.Is: two errors match if they have the same Kind. If the target has a
// non-zero Status (for KindStatusCode) or Reason (for KindContextBuilder), they must match too.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	if t.Status != driver.Success && t.Status != e.Status {
		return false
	}
	if t.Reason != NoReason && t.Reason != e.Reason {
		return false
	}
	return true
}

// Sentinels to be used with errors.Is.
var (
	ErrStatusCode         = &Error{Kind: KindStatusCode}
	ErrNullHandle         = &Error{Kind: KindNullHandle}
	ErrUnusableDevice     = &Error{Kind: KindUnusableDevice}
	ErrInvalidDevice      = &Error{Kind: KindInvalidDevice}
	ErrInvalidContext     = &Error{Kind: KindInvalidContext}
	ErrInvalidProgram     = &Error{Kind: KindInvalidProgram}
	ErrProgramNotBuilt    = &Error{Kind: KindProgramNotBuilt}
	ErrAlreadyBuilt       = &Error{Kind: KindAlreadyBuilt}
	ErrBuildFailed        = &Error{Kind: KindBuildFailed}
	ErrArgNotSet          = &Error{Kind: KindArgNotSet}
	ErrArgIndexOutOfRange = &Error{Kind: KindArgIndexOutOfRange}
	ErrTypeMismatch       = &Error{Kind: KindTypeMismatch}
	ErrSizeMismatch       = &Error{Kind: KindSizeMismatch}
	ErrSizeOverflow       = &Error{Kind: KindSizeOverflow}
	ErrWorkRequired       = &Error{Kind: KindWorkRequired}
	ErrInvalidWorkDims    = &Error{Kind: KindInvalidWorkDims}
	ErrContextBuilder     = &Error{Kind: KindContextBuilder}
	ErrInfoUnavailable    = &Error{Kind: KindInfoUnavailable}
	ErrNumericConversion  = &Error{Kind: KindNumericConversion}
	ErrInvalidAccess      = &Error{Kind: KindInvalidAccess}
)

// StatusSentinel returns a sentinel matching KindStatusCode errors with the given status.
func StatusSentinel(status driver.Status) error {
	return &Error{Kind: KindStatusCode, Status: status}
}

// KindOf returns the Kind of err, or KindUnknown if err is not (and doesn't wrap) an *Error.
func KindOf(err error) Kind {
	var clErr *Error
	if errors.As(err, &clErr) {
		return clErr.Kind
	}
	return KindUnknown
}

// As returns the *Error wrapped in err, or nil.
func As(err error) *Error {
	var clErr *Error
	if errors.As(err, &clErr) {
		return clErr
	}
	return nil
}

func withStack(e *Error) error {
	return errors.WithStack(e)
}

// StatusCode returns the error for a non-zero status returned by the runtime entry point op.
// It returns nil if status is driver.Success.
func StatusCode(op string, status driver.Status) error {
	if status == driver.Success {
		return nil
	}
	return withStack(&Error{Kind: KindStatusCode, Op: op, Status: status})
}

// NullHandle returns the error for wrapping a null identifier of the given kind.
func NullHandle(kind driver.Kind) error {
	return withStack(&Error{Kind: KindNullHandle, HandleKind: kind})
}

// UnusableDevice returns the error for the unusable device sentinel.
func UnusableDevice() error {
	return withStack(&Error{Kind: KindUnusableDevice, HandleKind: driver.KindDevice})
}

// InvalidDevice returns the error for the device at position index of a device list.
func InvalidDevice(index int, detail string) error {
	return withStack(&Error{Kind: KindInvalidDevice, Index: index, Detail: detail})
}

// InvalidContext returns the error for a context that can't be used for the operation.
func InvalidContext(detail string) error {
	return withStack(&Error{Kind: KindInvalidContext, Detail: detail})
}

// InvalidProgram returns the error for a program that can't be used for the operation.
func InvalidProgram(detail string) error {
	return withStack(&Error{Kind: KindInvalidProgram, Detail: detail})
}

// ProgramNotBuilt returns the error for using kernels of a program that isn't built.
func ProgramNotBuilt(state string) error {
	return withStack(&Error{Kind: KindProgramNotBuilt, Detail: "program is " + state})
}

// AlreadyBuilt returns the error for building a program twice.
func AlreadyBuilt() error {
	return withStack(&Error{Kind: KindAlreadyBuilt})
}

// BuildFailed returns the error for a failed program build, with the per-device logs.
func BuildFailed(logs []BuildLog) error {
	return withStack(&Error{Kind: KindBuildFailed, Logs: logs})
}

// ArgNotSet returns the error for enqueueing a kernel whose argument index is unset.
func ArgNotSet(kernelName string, index int) error {
	return withStack(&Error{Kind: KindArgNotSet, Index: index, Detail: fmt.Sprintf("kernel %q", kernelName)})
}

// ArgIndexOutOfRange returns the error for binding an argument beyond the kernel's argument count.
func ArgIndexOutOfRange(index, numArgs int) error {
	return withStack(&Error{Kind: KindArgIndexOutOfRange, Index: index, NumArgs: numArgs})
}

// TypeMismatch returns the error for a host slice or argument whose element type doesn't match.
func TypeMismatch(expected, got string) error {
	return withStack(&Error{Kind: KindTypeMismatch, Expected: expected, Got: got})
}

// SizeMismatch returns the error for a host slice whose length doesn't match the buffer.
func SizeMismatch(expected, got uint64, detail string) error {
	return withStack(&Error{Kind: KindSizeMismatch, ExpectedLen: expected, GotLen: got, Detail: detail})
}

// SizeOverflow returns the error for a byte size (numElements * elementSize) that overflows the host word.
func SizeOverflow(numElements uint64, elementSize int) error {
	return withStack(&Error{Kind: KindSizeOverflow, ExpectedLen: numElements, GotLen: uint64(elementSize)})
}

// WorkRequired returns the error for a kernel enqueued without work dimensions.
func WorkRequired() error {
	return withStack(&Error{Kind: KindWorkRequired})
}

// InvalidWorkDims returns the error for inconsistent work dimensions.
func InvalidWorkDims(format string, args ...any) error {
	return withStack(&Error{Kind: KindInvalidWorkDims, Detail: fmt.Sprintf(format, args...)})
}

// ContextBuilder returns the error for an illegal combination of context builder options.
func ContextBuilder(reason ContextBuilderReason) error {
	return withStack(&Error{Kind: KindContextBuilder, Reason: reason})
}

// InfoUnavailable returns the error for an info query that returned no value.
func InfoUnavailable(flag string) error {
	return withStack(&Error{Kind: KindInfoUnavailable, Flag: flag})
}

// NumericConversion returns the error for a lossy host-side cast of value from type from to type to.
func NumericConversion(from, to string, value any) error {
	return withStack(&Error{Kind: KindNumericConversion, Expected: from, Got: to, Detail: fmt.Sprintf("value %v", value)})
}

// InvalidAccess returns the error for an illegal access policy or a transfer it forbids.
func InvalidAccess(format string, args ...any) error {
	return withStack(&Error{Kind: KindInvalidAccess, Detail: fmt.Sprintf(format, args...)})
}
