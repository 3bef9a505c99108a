// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package cl

import (
	"fmt"
	"runtime"
	"unsafe"

	"github.com/gomlx/gocl/driver"
	"github.com/gomlx/gocl/internal/handle"
	"github.com/gomlx/gocl/internal/info"
	"github.com/gomlx/gocl/internal/keepalive"
	"github.com/gomlx/gocl/pkg/core/clerr"
	"k8s.io/klog/v2"
)

// DefaultQueueProperties enables profiling, and executes commands in order.
const DefaultQueueProperties = driver.QueueProfilingEnable

// QueueOptions configures an enqueued command. A nil *QueueOptions uses the defaults returned
// by NewQueueOptions.
type QueueOptions struct {
	// Blocking transfers only return when the command completes. Kernel launches never block.
	Blocking bool

	// Offset in number of elements into the buffer.
	Offset int

	// WaitList of events that must complete before the command starts.
	WaitList WaitList
}

// NewQueueOptions returns the default options: blocking, with no offset and an empty wait list.
func NewQueueOptions() *QueueOptions {
	return &QueueOptions{Blocking: true}
}

// NonBlocking makes transfers return as soon as they are enqueued.
func (o *QueueOptions) NonBlocking() *QueueOptions {
	o.Blocking = false
	return o
}

// WithOffset sets the offset, in number of elements, into the buffer.
func (o *QueueOptions) WithOffset(offset int) *QueueOptions {
	o.Offset = offset
	return o
}

// WithWaitList appends events to the wait list.
func (o *QueueOptions) WithWaitList(events ...*Event) *QueueOptions {
	o.WaitList = append(o.WaitList, events...)
	return o
}

func (o *QueueOptions) orDefault() *QueueOptions {
	if o == nil {
		return NewQueueOptions()
	}
	return o
}

// CommandQueue executes commands on one device of a context, in the order they are enqueued.
// Commands of different queues are only ordered through wait lists.
//
// Enqueueing on one queue must be serialized by the caller.
type CommandQueue struct {
	h *handle.Handle[driver.CommandQueueID]
}

// NewCommandQueue creates a command queue on device, which must belong to ctx.
// Use DefaultQueueProperties for props, unless profiling is not wanted.
func NewCommandQueue(ctx *Context, device *Device, props driver.CommandQueueProperties) (*CommandQueue, error) {
	if err := ctx.check(); err != nil {
		return nil, err
	}
	if err := device.check(); err != nil {
		return nil, clerr.InvalidDevice(0, err.Error())
	}
	if !sameDriver(ctx.Driver(), device.Driver()) {
		return nil, clerr.InvalidDevice(0, "device and context from different drivers")
	}
	drv := ctx.Driver()
	id, status := drv.CreateCommandQueue(ctx.h.Raw(), device.h.Raw(), props)
	if err := clerr.StatusCode("clCreateCommandQueue", status); err != nil {
		return nil, err
	}
	h, err := handle.Wrap(drv, id)
	if err != nil {
		return nil, err
	}
	q := &CommandQueue{h: h}
	klog.V(1).Infof("gocl: created %s on %s", q, device)
	return q, nil
}

// check returns an error if the queue is nil or released.
func (q *CommandQueue) check() error {
	if q == nil {
		return clerr.NullHandle(driver.KindCommandQueue)
	}
	return checkHandle(q.h, driver.KindCommandQueue)
}

// Driver used by the queue.
func (q *CommandQueue) Driver() driver.Driver {
	return q.h.Driver()
}

// checkTransfer validates a buffer transfer of host to/from buf with the given options, and
// returns the host slice description. No runtime call is made.
func (q *CommandQueue) checkTransfer(buf *Buffer, data any, opts *QueueOptions, write bool) (hostSlice, error) {
	if err := q.check(); err != nil {
		return hostSlice{}, err
	}
	if err := buf.check(); err != nil {
		return hostSlice{}, err
	}
	if write && !buf.access.HostCanWrite() {
		return hostSlice{}, clerr.InvalidAccess("%s host access %s doesn't allow writing", buf, buf.access.Host)
	}
	if !write && !buf.access.HostCanRead() {
		return hostSlice{}, clerr.InvalidAccess("%s host access %s doesn't allow reading", buf, buf.access.Host)
	}
	host, err := newHostSlice(data)
	if err != nil {
		return hostSlice{}, err
	}
	if host.dtype != buf.dtype {
		return hostSlice{}, clerr.TypeMismatch(buf.dtype.String(), host.dtype.String())
	}
	if err := checkRange(buf, opts.Offset, host.n); err != nil {
		return hostSlice{}, err
	}
	return host, nil
}

// checkRange validates n elements starting at offset fit in buf. Without offset, n must be the
// length of the buffer.
func checkRange(buf *Buffer, offset, n int) error {
	switch {
	case offset < 0 || offset > buf.n:
		return clerr.SizeMismatch(uint64(buf.n), uint64(n), fmt.Sprintf("invalid offset %d", offset))
	case offset == 0 && n != buf.n:
		return clerr.SizeMismatch(uint64(buf.n), uint64(n), "host length must match the buffer length")
	case offset+n > buf.n:
		return clerr.SizeMismatch(uint64(buf.n-offset), uint64(n),
			fmt.Sprintf("%d elements don't fit at offset %d", n, offset))
	case n == 0:
		return clerr.SizeMismatch(uint64(buf.n-offset), 0, "empty transfer")
	}
	return nil
}

// transferFn is EnqueueReadBuffer or EnqueueWriteBuffer.
type transferFn func(queue driver.CommandQueueID, mem driver.MemID, blocking bool, offset, size uintptr,
	ptr unsafe.Pointer, waitList []driver.EventID) (driver.EventID, driver.Status)

func (q *CommandQueue) transfer(op string, fn transferFn, buf *Buffer, data any, opts *QueueOptions,
	write bool) (*Event, error) {
	opts = opts.orDefault()
	host, err := q.checkTransfer(buf, data, opts, write)
	if err != nil {
		return nil, err
	}
	drv := q.h.Driver()
	waitIDs, err := opts.WaitList.ids(drv)
	if err != nil {
		return nil, err
	}
	elementSize := buf.dtype.Size()
	var pinned *keepalive.Pinned
	if !opts.Blocking {
		pinned = keepalive.Pin(host.ptr, data)
	}
	id, status := fn(q.h.Raw(), buf.h.Raw(), opts.Blocking, uintptr(opts.Offset)*elementSize,
		uintptr(host.n)*elementSize, host.ptr, waitIDs)
	runtime.KeepAlive(data)
	if err := clerr.StatusCode(op, status); err != nil {
		pinned.Release()
		return nil, err
	}
	return wrapEvent(drv, id, pinned)
}

// WriteBuffer copies the host slice into buf. The slice element type must match the buffer's,
// and its length must be the buffer length or, with an offset, fit after it.
//
// Non-blocking writes keep data pinned until the command completes: it must not be modified
// until then.
func (q *CommandQueue) WriteBuffer(buf *Buffer, data any, opts *QueueOptions) (*Event, error) {
	if err := q.check(); err != nil {
		return nil, err
	}
	return q.transfer("clEnqueueWriteBuffer", q.h.Driver().EnqueueWriteBuffer, buf, data, opts, true)
}

// ReadBuffer copies buf into the host slice. The slice element type must match the buffer's,
// and its length must be the buffer length or, with an offset, fit after it.
//
// Non-blocking reads only fill data after the returned event completes.
func (q *CommandQueue) ReadBuffer(buf *Buffer, data any, opts *QueueOptions) (*Event, error) {
	if err := q.check(); err != nil {
		return nil, err
	}
	return q.transfer("clEnqueueReadBuffer", q.h.Driver().EnqueueReadBuffer, buf, data, opts, false)
}

// EnqueueKernel launches kernel over work. All the kernel arguments must be set.
//
// Kernel launches never block: opts.Blocking and opts.Offset are ignored.
func (q *CommandQueue) EnqueueKernel(kernel *Kernel, work *Work, opts *QueueOptions) (*Event, error) {
	opts = opts.orDefault()
	if err := q.check(); err != nil {
		return nil, err
	}
	if err := kernel.check(); err != nil {
		return nil, err
	}
	if work == nil {
		return nil, clerr.WorkRequired()
	}
	if err := work.Validate(); err != nil {
		return nil, err
	}
	if err := kernel.checkArgs(); err != nil {
		return nil, err
	}
	drv := q.h.Driver()
	waitIDs, err := opts.WaitList.ids(drv)
	if err != nil {
		return nil, err
	}
	id, status := drv.EnqueueNDRangeKernel(q.h.Raw(), kernel.h.Raw(), toUintptrs(work.offset),
		toUintptrs(work.global), toUintptrs(work.local), waitIDs)
	if err := clerr.StatusCode("clEnqueueNDRangeKernel", status); err != nil {
		return nil, err
	}
	if klog.V(2).Enabled() {
		klog.Infof("gocl: enqueued %s over %s on %s", kernel, work, q)
	}
	return wrapEvent(drv, id, nil)
}

// waitIfBlocking waits for the event if opts is blocking.
func waitIfBlocking(e *Event, opts *QueueOptions) (*Event, error) {
	if !opts.Blocking {
		return e, nil
	}
	if err := e.Wait(); err != nil {
		e.Release()
		return nil, err
	}
	return e, nil
}

// CopyBuffer copies all of src into dst, at opts.Offset elements. Both must have the same
// element type.
func (q *CommandQueue) CopyBuffer(src, dst *Buffer, opts *QueueOptions) (*Event, error) {
	opts = opts.orDefault()
	if err := q.check(); err != nil {
		return nil, err
	}
	if err := src.check(); err != nil {
		return nil, err
	}
	if err := dst.check(); err != nil {
		return nil, err
	}
	if src.dtype != dst.dtype {
		return nil, clerr.TypeMismatch(dst.dtype.String(), src.dtype.String())
	}
	if err := checkRange(dst, opts.Offset, src.n); err != nil {
		return nil, err
	}
	drv := q.h.Driver()
	waitIDs, err := opts.WaitList.ids(drv)
	if err != nil {
		return nil, err
	}
	id, status := drv.EnqueueCopyBuffer(q.h.Raw(), src.h.Raw(), dst.h.Raw(), 0,
		uintptr(opts.Offset)*dst.dtype.Size(), src.ByteSize(), waitIDs)
	if err := clerr.StatusCode("clEnqueueCopyBuffer", status); err != nil {
		return nil, err
	}
	e, err := wrapEvent(drv, id, nil)
	if err != nil {
		return nil, err
	}
	return waitIfBlocking(e, opts)
}

// FillBuffer sets every element of buf, from opts.Offset on, to pattern, which must have the
// buffer's element type. E.g.: q.FillBuffer(buf, cl.Scalar(float32(1)), nil).
func (q *CommandQueue) FillBuffer(buf *Buffer, pattern KernelArg, opts *QueueOptions) (*Event, error) {
	opts = opts.orDefault()
	if err := q.check(); err != nil {
		return nil, err
	}
	if err := buf.check(); err != nil {
		return nil, err
	}
	if pattern == nil || pattern.ArgPointer() == nil {
		return nil, clerr.TypeMismatch(buf.dtype.String(), "nil")
	}
	if other, isBuffer := pattern.(*Buffer); isBuffer {
		return nil, clerr.TypeMismatch(buf.dtype.String(), other.String())
	}
	if pattern.ArgDType() != buf.dtype {
		return nil, clerr.TypeMismatch(buf.dtype.String(), pattern.ArgDType().String())
	}
	if opts.Offset < 0 || opts.Offset >= buf.n {
		return nil, clerr.SizeMismatch(uint64(buf.n), 0, fmt.Sprintf("invalid offset %d", opts.Offset))
	}
	patternBytes := unsafe.Slice((*byte)(pattern.ArgPointer()), pattern.ArgSize())
	drv := q.h.Driver()
	waitIDs, err := opts.WaitList.ids(drv)
	if err != nil {
		return nil, err
	}
	elementSize := buf.dtype.Size()
	id, status := drv.EnqueueFillBuffer(q.h.Raw(), buf.h.Raw(), patternBytes, uintptr(opts.Offset)*elementSize,
		uintptr(buf.n-opts.Offset)*elementSize, waitIDs)
	runtime.KeepAlive(pattern)
	if err := clerr.StatusCode("clEnqueueFillBuffer", status); err != nil {
		return nil, err
	}
	e, err := wrapEvent(drv, id, nil)
	if err != nil {
		return nil, err
	}
	return waitIfBlocking(e, opts)
}

// Marker returns an event that completes when all events of waitList complete or, if it is
// empty, when all commands previously enqueued complete.
func (q *CommandQueue) Marker(waitList WaitList) (*Event, error) {
	if err := q.check(); err != nil {
		return nil, err
	}
	drv := q.h.Driver()
	waitIDs, err := waitList.ids(drv)
	if err != nil {
		return nil, err
	}
	id, status := drv.EnqueueMarkerWithWaitList(q.h.Raw(), waitIDs)
	if err := clerr.StatusCode("clEnqueueMarkerWithWaitList", status); err != nil {
		return nil, err
	}
	return wrapEvent(drv, id, nil)
}

// Flush submits the enqueued commands to the device, without waiting for them.
func (q *CommandQueue) Flush() error {
	if err := q.check(); err != nil {
		return err
	}
	return clerr.StatusCode("clFlush", q.h.Driver().Flush(q.h.Raw()))
}

// Finish blocks until all enqueued commands complete.
func (q *CommandQueue) Finish() error {
	if err := q.check(); err != nil {
		return err
	}
	return clerr.StatusCode("clFinish", q.h.Driver().Finish(q.h.Raw()))
}

func (q *CommandQueue) getter(param driver.CommandQueueInfo) info.Getter {
	return func(value []byte) (int, driver.Status) {
		return q.h.Driver().GetCommandQueueInfo(q.h.Raw(), param, value)
	}
}

// Properties the queue was created with.
func (q *CommandQueue) Properties() (driver.CommandQueueProperties, error) {
	props, err := info.One[uint64]("clGetCommandQueueInfo", "QueueProperties", q.getter(driver.QueueProperties))
	return driver.CommandQueueProperties(props), err
}

// Device returns a new reference to the device of the queue, that must be released by the caller.
func (q *CommandQueue) Device() (*Device, error) {
	id, err := info.One[driver.DeviceID]("clGetCommandQueueInfo", "QueueDevice", q.getter(driver.QueueDevice))
	if err != nil {
		return nil, err
	}
	return wrapDevice(q.h.Driver(), id)
}

// Context returns a new reference to the context of the queue, that must be released by the caller.
func (q *CommandQueue) Context() (*Context, error) {
	return contextFromInfo(q.h.Driver(), "clGetCommandQueueInfo", q.getter(driver.QueueContext))
}

// ReferenceCount returns the current reference count of the queue in the runtime.
func (q *CommandQueue) ReferenceCount() (uint32, error) {
	return info.One[uint32]("clGetCommandQueueInfo", "QueueReferenceCount", q.getter(driver.QueueReferenceCount))
}

// Clone returns a new owner of the same queue.
func (q *CommandQueue) Clone() *CommandQueue {
	return &CommandQueue{h: q.h.Clone()}
}

// Release the queue. Enqueued commands still execute. It is safe to call it more than once.
func (q *CommandQueue) Release() {
	if q == nil || q.h.IsReleased() {
		return
	}
	klog.V(1).Infof("gocl: releasing %s", q)
	q.h.Release()
}

// String implements fmt.Stringer.
func (q *CommandQueue) String() string {
	if q == nil {
		return "nil CommandQueue"
	}
	return q.h.String()
}
