// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package simgo

import (
	"sync/atomic"
	"time"

	"github.com/gomlx/gocl/driver"
	"github.com/gomlx/gocl/internal/info"
	"github.com/gomlx/gocl/pkg/support/xsync"
)

type eventObj struct {
	header
	ctx     *contextObj
	queue   *queueObj
	cmdType driver.CommandType

	status atomic.Int32
	done   *xsync.LatchWithValue[driver.ExecutionStatus]

	// Profiling timestamps, in nanoseconds.
	queued, submit, start, end atomic.Int64
}

func (d *Driver) lookupEvent(id driver.EventID) (*eventObj, bool) {
	return lookup[*eventObj](d, uintptr(id))
}

func now() int64 {
	return time.Now().UnixNano()
}

// newEvent creates the event of a command. It holds two references: the one returned to the
// user, and the one released when the command completes.
func (d *Driver) newEvent(q *queueObj, cmdType driver.CommandType) *eventObj {
	e := &eventObj{
		ctx:     q.ctx,
		queue:   q,
		cmdType: cmdType,
		done:    xsync.NewLatchWithValue[driver.ExecutionStatus](),
	}
	e.status.Store(int32(driver.Queued))
	e.queued.Store(now())
	d.register(e, driver.KindEvent, nil)
	retain(e)
	return e
}

func (e *eventObj) setStatus(status driver.ExecutionStatus) {
	e.status.Store(int32(status))
	switch status {
	case driver.Submitted:
		e.submit.Store(now())
	case driver.Running:
		e.start.Store(now())
	}
}

// complete sets the final status of the event, wakes up its waiters and drops the internal reference.
func (d *Driver) complete(e *eventObj, status driver.ExecutionStatus) {
	if e.start.Load() == 0 {
		e.start.Store(now())
	}
	e.end.Store(now())
	e.status.Store(int32(status))
	e.done.Trigger(status)
	d.release(e)
}

// lookupWaitList validates the wait-list and retains its events. Events must belong to ctx.
func (d *Driver) lookupWaitList(ctx *contextObj, waitList []driver.EventID) ([]*eventObj, driver.Status) {
	events := make([]*eventObj, 0, len(waitList))
	release := func() {
		for _, e := range events {
			d.release(e)
		}
	}
	for _, id := range waitList {
		e, found := d.lookupEvent(id)
		if !found || !retain(e) {
			release()
			return nil, driver.InvalidEventWaitList
		}
		events = append(events, e)
		if ctx != nil && e.ctx != ctx {
			release()
			return nil, driver.InvalidContext
		}
	}
	return events, driver.Success
}

// waitAll waits for the events and returns whether they all completed successfully.
func waitAll(events []*eventObj) bool {
	ok := true
	for _, e := range events {
		if e.done.Wait() < 0 {
			ok = false
		}
	}
	return ok
}

// WaitForEvents implements driver.Driver.
func (d *Driver) WaitForEvents(ids []driver.EventID) driver.Status {
	d.count("WaitForEvents")
	if len(ids) == 0 {
		return driver.InvalidValue
	}
	events, status := d.lookupWaitList(nil, ids)
	if status != driver.Success {
		return driver.InvalidEvent
	}
	defer func() {
		for _, e := range events {
			d.release(e)
		}
	}()
	for _, e := range events[1:] {
		if e.ctx != events[0].ctx {
			return driver.InvalidContext
		}
	}
	if !waitAll(events) {
		return driver.ExecStatusErrorForEventsInWaitList
	}
	return driver.Success
}

// GetEventInfo implements driver.Driver.
func (d *Driver) GetEventInfo(id driver.EventID, param driver.EventInfo, value []byte) (int, driver.Status) {
	d.count("GetEventInfo")
	e, found := d.lookupEvent(id)
	if !found {
		return 0, driver.InvalidEvent
	}
	switch param {
	case driver.EventCommandQueue:
		return info.Fill(value, info.Encode(driver.CommandQueueID(e.queue.id)))
	case driver.EventCommandType:
		return info.Fill(value, info.Encode(uint32(e.cmdType)))
	case driver.EventReferenceCount:
		return info.Fill(value, info.Encode(uint32(e.refs.Load())))
	case driver.EventCommandExecutionStatus:
		return info.Fill(value, info.Encode(e.status.Load()))
	case driver.EventContext:
		return info.Fill(value, info.Encode(driver.ContextID(e.ctx.id)))
	}
	return 0, driver.InvalidValue
}

// GetEventProfilingInfo implements driver.Driver. Timestamps are only available for completed
// commands of queues created with driver.QueueProfilingEnable.
func (d *Driver) GetEventProfilingInfo(id driver.EventID, param driver.ProfilingInfo, value []byte) (int, driver.Status) {
	d.count("GetEventProfilingInfo")
	e, found := d.lookupEvent(id)
	if !found {
		return 0, driver.InvalidEvent
	}
	if e.queue.props&driver.QueueProfilingEnable == 0 || driver.ExecutionStatus(e.status.Load()) != driver.Complete {
		return 0, driver.ProfilingInfoNotAvailable
	}
	var ts int64
	switch param {
	case driver.ProfilingCommandQueued:
		ts = e.queued.Load()
	case driver.ProfilingCommandSubmit:
		ts = e.submit.Load()
	case driver.ProfilingCommandStart:
		ts = e.start.Load()
	case driver.ProfilingCommandEnd:
		ts = e.end.Load()
	default:
		return 0, driver.InvalidValue
	}
	return info.Fill(value, info.Encode(uint64(ts)))
}
