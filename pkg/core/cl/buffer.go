// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package cl

import (
	"fmt"
	"math/bits"
	"reflect"
	"sync/atomic"
	"unsafe"

	"github.com/gomlx/gocl/driver"
	"github.com/gomlx/gocl/internal/handle"
	"github.com/gomlx/gocl/internal/info"
	"github.com/gomlx/gocl/internal/keepalive"
	"github.com/gomlx/gocl/pkg/core/clerr"
	"github.com/gomlx/gocl/pkg/core/dtypes"
	"k8s.io/klog/v2"
)

// Buffer is a typed memory object: Len elements of DType.
//
// The element type is fixed at creation: reads, writes and fills check the host data against it.
type Buffer struct {
	h      *handle.Handle[driver.MemID]
	rawID  driver.MemID // Copy of the identifier, passed by pointer when used as a kernel argument.
	dtype  dtypes.DType
	n      int
	access Access

	// host is the data backing KeepOnHost buffers, shared by clones.
	host *sharedPin
}

// sharedPin is pinned host memory released when its last owner is released.
type sharedPin struct {
	pinned *keepalive.Pinned
	owners atomic.Int32
}

func newSharedPin(pinned *keepalive.Pinned) *sharedPin {
	s := &sharedPin{pinned: pinned}
	s.owners.Store(1)
	return s
}

func (s *sharedPin) acquire() *sharedPin {
	if s != nil {
		s.owners.Add(1)
	}
	return s
}

func (s *sharedPin) release() {
	if s != nil && s.owners.Add(-1) == 0 {
		s.pinned.Release()
	}
}

// NewBuffer creates an uninitialized buffer of n elements of dtype.
//
// access.Location must be AllocOnDevice: locations taking initial data are used with
// NewBufferFromSlice.
func NewBuffer(ctx *Context, dtype dtypes.DType, n int, access Access) (*Buffer, error) {
	if err := ctx.check(); err != nil {
		return nil, err
	}
	size, err := byteSize(dtype, n)
	if err != nil {
		return nil, err
	}
	flags, err := access.Flags(false)
	if err != nil {
		return nil, err
	}
	return createBuffer(ctx, dtype, n, size, access, flags, nil)
}

// byteSize returns n*dtype.Size(), checking for overflow.
func byteSize(dtype dtypes.DType, n int) (uintptr, error) {
	elementSize := dtype.Size()
	if elementSize == 0 || dtype.IsHandle() {
		return 0, clerr.TypeMismatch("buffer element type", dtype.String())
	}
	if n < 0 {
		return 0, clerr.SizeOverflow(uint64(n), int(elementSize))
	}
	hi, lo := bits.Mul64(uint64(n), uint64(elementSize))
	if hi != 0 || lo > uint64(^uintptr(0)) {
		return 0, clerr.SizeOverflow(uint64(n), int(elementSize))
	}
	return uintptr(lo), nil
}

// NewBufferFromSlice creates a buffer with the type and length of the given slice, initialized
// with its contents.
//
// The Location AllocOnDevice is taken as CopyToDevice. With KeepOnHost the buffer uses the slice
// memory directly: the slice is kept alive until the buffer is released, and it should not be
// accessed by the host while kernels may use the buffer.
func NewBufferFromSlice(ctx *Context, data any, access Access) (*Buffer, error) {
	if err := ctx.check(); err != nil {
		return nil, err
	}
	host, err := newHostSlice(data)
	if err != nil {
		return nil, err
	}
	if access.Location == AllocOnDevice {
		access.Location = CopyToDevice
	}
	size, err := byteSize(host.dtype, host.n)
	if err != nil {
		return nil, err
	}
	flags, err := access.Flags(host.ptr != nil)
	if err != nil {
		return nil, err
	}
	var pinned *keepalive.Pinned
	if access.Location == KeepOnHost {
		pinned = keepalive.Pin(host.ptr, data)
	}
	buf, err := createBuffer(ctx, host.dtype, host.n, size, access, flags, host.ptr)
	if err != nil {
		pinned.Release()
		return nil, err
	}
	if pinned != nil {
		buf.host = newSharedPin(pinned)
	}
	return buf, nil
}

func createBuffer(ctx *Context, dtype dtypes.DType, n int, size uintptr, access Access, flags driver.MemFlags,
	hostPtr unsafe.Pointer) (*Buffer, error) {
	drv := ctx.Driver()
	id, status := drv.CreateBuffer(ctx.h.Raw(), flags, size, hostPtr)
	if err := clerr.StatusCode("clCreateBuffer", status); err != nil {
		return nil, err
	}
	h, err := handle.Wrap(drv, id)
	if err != nil {
		return nil, err
	}
	buf := &Buffer{h: h, rawID: id, dtype: dtype, n: n, access: access}
	klog.V(1).Infof("gocl: created %s (flags %s)", buf, flags)
	return buf, nil
}

// check returns an error if the buffer is nil or released.
func (b *Buffer) check() error {
	if b == nil {
		return clerr.NullHandle(driver.KindMemory)
	}
	return checkHandle(b.h, driver.KindMemory)
}

// Driver used by the buffer.
func (b *Buffer) Driver() driver.Driver {
	return b.h.Driver()
}

// DType of the buffer elements.
func (b *Buffer) DType() dtypes.DType {
	return b.dtype
}

// Len returns the number of elements of the buffer.
func (b *Buffer) Len() int {
	return b.n
}

// ByteSize returns the size of the buffer in bytes.
func (b *Buffer) ByteSize() uintptr {
	return uintptr(b.n) * b.dtype.Size()
}

// Access policy of the buffer.
func (b *Buffer) Access() Access {
	return b.access
}

func (b *Buffer) getter(param driver.MemInfo) info.Getter {
	return func(value []byte) (int, driver.Status) {
		return b.h.Driver().GetMemObjectInfo(b.h.Raw(), param, value)
	}
}

// ReferenceCount returns the current reference count of the memory object in the runtime.
func (b *Buffer) ReferenceCount() (uint32, error) {
	return info.One[uint32]("clGetMemObjectInfo", "MemReferenceCount", b.getter(driver.MemReferenceCount))
}

// Context returns a new reference to the context of the buffer, that must be released by the caller.
func (b *Buffer) Context() (*Context, error) {
	return contextFromInfo(b.h.Driver(), "clGetMemObjectInfo", b.getter(driver.MemContext))
}

// Clone returns a new owner of the same buffer. Both share the host memory of KeepOnHost buffers,
// which is kept alive until the last of them is released.
func (b *Buffer) Clone() *Buffer {
	clone := *b
	clone.h = b.h.Clone()
	clone.host = b.host.acquire()
	return &clone
}

// Release the buffer. It is safe to call it more than once.
func (b *Buffer) Release() {
	if b == nil || b.h.IsReleased() {
		return
	}
	b.h.Release()
	b.host.release()
}

// Equal returns whether both refer to the same memory object.
func (b *Buffer) Equal(other *Buffer) bool {
	if b == nil || other == nil {
		return b == other
	}
	return b.h.Equal(other.h)
}

// String implements fmt.Stringer.
func (b *Buffer) String() string {
	if b == nil {
		return "nil Buffer"
	}
	return fmt.Sprintf("%s[%s x %d]", b.h, b.dtype, b.n)
}

// ArgDType implements KernelArg.
func (b *Buffer) ArgDType() dtypes.DType {
	return b.dtype
}

// ArgSize implements KernelArg.
func (b *Buffer) ArgSize() uintptr {
	return unsafe.Sizeof(b.rawID)
}

// ArgPointer implements KernelArg.
func (b *Buffer) ArgPointer() unsafe.Pointer {
	return unsafe.Pointer(&b.rawID)
}

// hostSlice describes the backing memory of a Go slice passed as host data.
type hostSlice struct {
	dtype dtypes.DType
	n     int
	ptr   unsafe.Pointer // nil for empty slices.
}

// newHostSlice validates data is a slice of a supported type.
func newHostSlice(data any) (hostSlice, error) {
	if data == nil {
		return hostSlice{}, clerr.TypeMismatch("slice", "nil")
	}
	v := reflect.ValueOf(data)
	if v.Kind() != reflect.Slice {
		return hostSlice{}, clerr.TypeMismatch("slice", v.Type().String())
	}
	dtype := dtypes.FromGoType(v.Type().Elem())
	if dtype == dtypes.InvalidDType {
		return hostSlice{}, clerr.TypeMismatch("slice of a supported type", v.Type().String())
	}
	host := hostSlice{dtype: dtype, n: v.Len()}
	if host.n > 0 {
		host.ptr = v.UnsafePointer()
	}
	return host, nil
}
