// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package simgo

import (
	"math/bits"
	"sync"
	"unsafe"

	"github.com/gomlx/gocl/driver"
	"github.com/gomlx/gocl/internal/info"
	"github.com/gomlx/gocl/pkg/support/xsync"
	"k8s.io/klog/v2"
)

// command enqueued in a queue.
type command struct {
	event   *eventObj
	waitFor []*eventObj

	// exec runs the command and returns its final status.
	exec func() driver.ExecutionStatus

	// cleanup releases the objects retained by the command. It runs even if exec doesn't.
	cleanup func()
}

// queueObj runs its commands in order, in its own goroutine.
type queueObj struct {
	header
	ctx    *contextObj
	device *deviceObj
	props  driver.CommandQueueProperties

	mu       sync.Mutex
	cond     *sync.Cond
	pending  []*command
	closed   bool
	inFlight *xsync.DynamicWaitGroup
}

func (d *Driver) lookupQueue(id driver.CommandQueueID) (*queueObj, bool) {
	return lookup[*queueObj](d, uintptr(id))
}

const allQueueProperties = driver.QueueOutOfOrderExecModeEnable | driver.QueueProfilingEnable

// CreateCommandQueue implements driver.Driver. Out-of-order queues are accepted, but run their
// commands in order, which is a valid schedule.
func (d *Driver) CreateCommandQueue(ctx driver.ContextID, device driver.DeviceID, properties driver.CommandQueueProperties) (
	driver.CommandQueueID, driver.Status) {
	d.count("CreateCommandQueue")
	c, found := d.lookupContext(ctx)
	if !found {
		return 0, driver.InvalidContext
	}
	dev, found := d.lookupDevice(device)
	if !found || !c.hasDevice(dev) {
		return 0, driver.InvalidDevice
	}
	if properties&^allQueueProperties != 0 {
		return 0, driver.InvalidValue
	}
	q := &queueObj{
		ctx:      c,
		device:   dev,
		props:    properties,
		inFlight: xsync.NewDynamicWaitGroup(),
	}
	q.cond = sync.NewCond(&q.mu)
	retain(c)
	retain(dev)
	id := d.register(q, driver.KindCommandQueue, func() {
		q.mu.Lock()
		q.closed = true
		q.cond.Broadcast()
		q.mu.Unlock()
		d.release(dev)
		d.release(c)
	})
	go d.runQueue(q)
	return driver.CommandQueueID(id), driver.Success
}

// runQueue executes the commands of the queue until it is released and drained.
func (d *Driver) runQueue(q *queueObj) {
	for {
		q.mu.Lock()
		for len(q.pending) == 0 && !q.closed {
			q.cond.Wait()
		}
		if len(q.pending) == 0 {
			q.mu.Unlock()
			klog.V(3).Infof("simgo: queue %#x stopped", q.id)
			return
		}
		cmd := q.pending[0]
		q.pending[0] = nil
		q.pending = q.pending[1:]
		q.mu.Unlock()

		// Each command occupies one of the pool's workers while it runs, like a compute unit.
		done := make(chan struct{})
		d.pool.WaitToStart(func() {
			defer close(done)
			d.execute(cmd)
		})
		<-done
		q.inFlight.Done()
	}
}

func (d *Driver) execute(cmd *command) {
	if cmd.cleanup != nil {
		defer cmd.cleanup()
	}
	cmd.event.setStatus(driver.Submitted)
	// Waiting on other queues must not hold the worker, or a pool with fewer workers than
	// queues could deadlock on a cross-queue wait-list.
	d.pool.WorkerIsAsleep()
	ok := waitAll(cmd.waitFor)
	d.pool.WorkerRestarted()
	for _, e := range cmd.waitFor {
		d.release(e)
	}
	if !ok {
		d.complete(cmd.event, driver.ExecutionStatus(driver.ExecStatusErrorForEventsInWaitList))
		return
	}
	cmd.event.setStatus(driver.Running)
	d.complete(cmd.event, cmd.exec())
}

// enqueue appends a command to the queue and returns its event.
func (d *Driver) enqueue(q *queueObj, cmdType driver.CommandType, waitFor []*eventObj,
	exec func() driver.ExecutionStatus, cleanup func()) *eventObj {
	e := d.newEvent(q, cmdType)
	q.inFlight.Add(1)
	q.mu.Lock()
	q.pending = append(q.pending, &command{event: e, waitFor: waitFor, exec: exec, cleanup: cleanup})
	q.cond.Signal()
	q.mu.Unlock()
	return e
}

// finishCommand returns the event of a command, waiting for it if blocking is set.
// If a blocking command fails, the event is released and only the error is returned.
func (d *Driver) finishCommand(e *eventObj, blocking bool) (driver.EventID, driver.Status) {
	if blocking && e.done.Wait() < 0 {
		d.release(e)
		return 0, driver.ExecStatusErrorForEventsInWaitList
	}
	return driver.EventID(e.id), driver.Success
}

// releaseAll returns a cleanup function releasing the buffers.
func (d *Driver) releaseAll(mems []*memObj) func() {
	return func() {
		for _, m := range mems {
			d.release(m)
		}
	}
}

// prepare validates the queue, the wait-list and the buffers of a transfer command.
// The buffers are retained, and must be released by the command.
func (d *Driver) prepare(queue driver.CommandQueueID, waitList []driver.EventID, memIDs ...driver.MemID) (
	*queueObj, []*eventObj, []*memObj, driver.Status) {
	q, found := d.lookupQueue(queue)
	if !found {
		return nil, nil, nil, driver.InvalidCommandQueue
	}
	mems := make([]*memObj, 0, len(memIDs))
	releaseMems := func() {
		for _, m := range mems {
			d.release(m)
		}
	}
	for _, id := range memIDs {
		m, found := d.lookupMem(id)
		if !found || !retain(m) {
			releaseMems()
			return nil, nil, nil, driver.InvalidMemObject
		}
		mems = append(mems, m)
		if m.ctx != q.ctx {
			releaseMems()
			return nil, nil, nil, driver.InvalidContext
		}
	}
	waitFor, status := d.lookupWaitList(q.ctx, waitList)
	if status != driver.Success {
		releaseMems()
		return nil, nil, nil, status
	}
	return q, waitFor, mems, driver.Success
}

func (d *Driver) abort(waitFor []*eventObj, mems []*memObj, status driver.Status) (driver.EventID, driver.Status) {
	for _, e := range waitFor {
		d.release(e)
	}
	for _, m := range mems {
		d.release(m)
	}
	return 0, status
}

// EnqueueReadBuffer implements driver.Driver.
func (d *Driver) EnqueueReadBuffer(queue driver.CommandQueueID, mem driver.MemID, blocking bool, offset, size uintptr,
	ptr unsafe.Pointer, waitList []driver.EventID) (driver.EventID, driver.Status) {
	d.count("EnqueueReadBuffer")
	q, waitFor, mems, status := d.prepare(queue, waitList, mem)
	if status != driver.Success {
		return 0, status
	}
	m := mems[0]
	if !m.hostCanRead() {
		return d.abort(waitFor, mems, driver.InvalidOperation)
	}
	if ptr == nil || size == 0 || !m.inBounds(offset, size) {
		return d.abort(waitFor, mems, driver.InvalidValue)
	}
	e := d.enqueue(q, driver.CommandReadBuffer, waitFor, func() driver.ExecutionStatus {
		copy(unsafe.Slice((*byte)(ptr), size), m.data[offset:offset+size])
		return driver.Complete
	}, d.releaseAll(mems))
	return d.finishCommand(e, blocking)
}

// EnqueueWriteBuffer implements driver.Driver. A non-blocking write reads ptr when the command
// executes, so the host memory must be kept unchanged until the event completes.
func (d *Driver) EnqueueWriteBuffer(queue driver.CommandQueueID, mem driver.MemID, blocking bool, offset, size uintptr,
	ptr unsafe.Pointer, waitList []driver.EventID) (driver.EventID, driver.Status) {
	d.count("EnqueueWriteBuffer")
	q, waitFor, mems, status := d.prepare(queue, waitList, mem)
	if status != driver.Success {
		return 0, status
	}
	m := mems[0]
	if !m.hostCanWrite() {
		return d.abort(waitFor, mems, driver.InvalidOperation)
	}
	if ptr == nil || size == 0 || !m.inBounds(offset, size) {
		return d.abort(waitFor, mems, driver.InvalidValue)
	}
	e := d.enqueue(q, driver.CommandWriteBuffer, waitFor, func() driver.ExecutionStatus {
		copy(m.data[offset:offset+size], unsafe.Slice((*byte)(ptr), size))
		return driver.Complete
	}, d.releaseAll(mems))
	return d.finishCommand(e, blocking)
}

// EnqueueCopyBuffer implements driver.Driver.
func (d *Driver) EnqueueCopyBuffer(queue driver.CommandQueueID, src, dst driver.MemID, srcOffset, dstOffset, size uintptr,
	waitList []driver.EventID) (driver.EventID, driver.Status) {
	d.count("EnqueueCopyBuffer")
	q, waitFor, mems, status := d.prepare(queue, waitList, src, dst)
	if status != driver.Success {
		return 0, status
	}
	srcMem, dstMem := mems[0], mems[1]
	if size == 0 || !srcMem.inBounds(srcOffset, size) || !dstMem.inBounds(dstOffset, size) {
		return d.abort(waitFor, mems, driver.InvalidValue)
	}
	if srcMem == dstMem && srcOffset < dstOffset+size && dstOffset < srcOffset+size {
		return d.abort(waitFor, mems, driver.MemCopyOverlap)
	}
	e := d.enqueue(q, driver.CommandCopyBuffer, waitFor, func() driver.ExecutionStatus {
		copy(dstMem.data[dstOffset:dstOffset+size], srcMem.data[srcOffset:srcOffset+size])
		return driver.Complete
	}, d.releaseAll(mems))
	return d.finishCommand(e, false)
}

// EnqueueFillBuffer implements driver.Driver. The pattern size must be a power of 2 up to 128
// bytes, and offset and size multiples of it.
func (d *Driver) EnqueueFillBuffer(queue driver.CommandQueueID, mem driver.MemID, pattern []byte, offset, size uintptr,
	waitList []driver.EventID) (driver.EventID, driver.Status) {
	d.count("EnqueueFillBuffer")
	q, waitFor, mems, status := d.prepare(queue, waitList, mem)
	if status != driver.Success {
		return 0, status
	}
	m := mems[0]
	patternSize := uintptr(len(pattern))
	if patternSize == 0 || patternSize > 128 || bits.OnesCount(uint(patternSize)) != 1 ||
		offset%patternSize != 0 || size%patternSize != 0 || size == 0 || !m.inBounds(offset, size) {
		return d.abort(waitFor, mems, driver.InvalidValue)
	}
	pattern = append([]byte(nil), pattern...)
	e := d.enqueue(q, driver.CommandFillBuffer, waitFor, func() driver.ExecutionStatus {
		region := m.data[offset : offset+size]
		for i := uintptr(0); i < size; i += patternSize {
			copy(region[i:], pattern)
		}
		return driver.Complete
	}, d.releaseAll(mems))
	return d.finishCommand(e, false)
}

// EnqueueNDRangeKernel implements driver.Driver. The kernel arguments are captured when the
// command is enqueued.
func (d *Driver) EnqueueNDRangeKernel(queue driver.CommandQueueID, kernel driver.KernelID,
	globalOffset, globalSize, localSize []uintptr, waitList []driver.EventID) (driver.EventID, driver.Status) {
	d.count("EnqueueNDRangeKernel")
	q, found := d.lookupQueue(queue)
	if !found {
		return 0, driver.InvalidCommandQueue
	}
	k, found := d.lookupKernel(kernel)
	if !found {
		return 0, driver.InvalidKernel
	}
	if k.program.ctx != q.ctx {
		return 0, driver.InvalidContext
	}
	if !k.program.isBuiltFor(q.device) {
		return 0, driver.InvalidProgramExecutable
	}
	if status := validateNDRange(globalOffset, globalSize, localSize); status != driver.Success {
		return 0, status
	}
	l, status := d.snapshotArgs(k)
	if status != driver.Success {
		return 0, status
	}
	if localSize == nil {
		localSize = defaultLocalSize(globalSize)
	}
	dims := len(globalSize)
	l.item.Dims = dims
	for axis := range 3 {
		l.item.GlobalSize[axis], l.item.LocalSize[axis], l.item.NumGroups[axis] = 1, 1, 1
		if axis < dims {
			l.item.GlobalSize[axis] = int(globalSize[axis])
			l.item.LocalSize[axis] = int(localSize[axis])
			l.item.NumGroups[axis] = int(globalSize[axis] / localSize[axis])
			if globalOffset != nil {
				l.item.Offset[axis] = int(globalOffset[axis])
			}
		}
	}
	waitFor, status := d.lookupWaitList(q.ctx, waitList)
	if status != driver.Success {
		l.releaseMems(d)
		return 0, status
	}
	retain(k)
	e := d.enqueue(q, driver.CommandNDRangeKernel, waitFor, func() driver.ExecutionStatus {
		klog.V(3).Infof("simgo: running %s", l)
		return d.run(l)
	}, func() {
		l.releaseMems(d)
		d.release(k)
	})
	return d.finishCommand(e, false)
}

// validateNDRange checks the work dimensions against the device limits.
func validateNDRange(globalOffset, globalSize, localSize []uintptr) driver.Status {
	dims := len(globalSize)
	if dims < 1 || dims > 3 {
		return driver.InvalidWorkDimension
	}
	for _, size := range globalSize {
		if size == 0 {
			return driver.InvalidGlobalWorkSize
		}
	}
	if globalOffset != nil && len(globalOffset) != dims {
		return driver.InvalidGlobalOffset
	}
	if localSize == nil {
		return driver.Success
	}
	if len(localSize) != dims {
		return driver.InvalidWorkGroupSize
	}
	total := uintptr(1)
	for axis, size := range localSize {
		if size == 0 || globalSize[axis]%size != 0 {
			return driver.InvalidWorkGroupSize
		}
		if size > maxWorkItemSizes[axis] {
			return driver.InvalidWorkItemSize
		}
		total *= size
	}
	if total > maxWorkGroupSize {
		return driver.InvalidWorkGroupSize
	}
	return driver.Success
}

// EnqueueMarkerWithWaitList implements driver.Driver.
func (d *Driver) EnqueueMarkerWithWaitList(queue driver.CommandQueueID, waitList []driver.EventID) (driver.EventID, driver.Status) {
	d.count("EnqueueMarkerWithWaitList")
	q, waitFor, _, status := d.prepare(queue, waitList)
	if status != driver.Success {
		return 0, status
	}
	e := d.enqueue(q, driver.CommandMarker, waitFor, func() driver.ExecutionStatus { return driver.Complete }, nil)
	return d.finishCommand(e, false)
}

// Flush implements driver.Driver. Commands are submitted as soon as they are enqueued, so it's a no-op.
func (d *Driver) Flush(queue driver.CommandQueueID) driver.Status {
	d.count("Flush")
	if _, found := d.lookupQueue(queue); !found {
		return driver.InvalidCommandQueue
	}
	return driver.Success
}

// Finish implements driver.Driver.
func (d *Driver) Finish(queue driver.CommandQueueID) driver.Status {
	d.count("Finish")
	q, found := d.lookupQueue(queue)
	if !found {
		return driver.InvalidCommandQueue
	}
	q.inFlight.Wait()
	return driver.Success
}

// GetCommandQueueInfo implements driver.Driver.
func (d *Driver) GetCommandQueueInfo(id driver.CommandQueueID, param driver.CommandQueueInfo, value []byte) (int, driver.Status) {
	d.count("GetCommandQueueInfo")
	q, found := d.lookupQueue(id)
	if !found {
		return 0, driver.InvalidCommandQueue
	}
	switch param {
	case driver.QueueContext:
		return info.Fill(value, info.Encode(driver.ContextID(q.ctx.id)))
	case driver.QueueDevice:
		return info.Fill(value, info.Encode(driver.DeviceID(q.device.id)))
	case driver.QueueReferenceCount:
		return info.Fill(value, info.Encode(uint32(q.refs.Load())))
	case driver.QueueProperties:
		return info.Fill(value, info.Encode(uint64(q.props)))
	}
	return 0, driver.InvalidValue
}
