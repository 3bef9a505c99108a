// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package cl

import (
	"sync/atomic"
	"time"

	"github.com/gomlx/gocl/driver"
	"github.com/gomlx/gocl/internal/handle"
	"github.com/gomlx/gocl/internal/info"
	"github.com/gomlx/gocl/internal/keepalive"
	"github.com/gomlx/gocl/pkg/core/clerr"
	"k8s.io/klog/v2"
)

// Event is the completion token of one enqueued command.
//
// Releasing an event doesn't cancel its command. Events of non-blocking transfers keep the host
// slice pinned until the command completes, even if released before that.
type Event struct {
	h        *handle.Handle[driver.EventID]
	pinned   atomic.Pointer[keepalive.Pinned]
	released atomic.Bool
}

func wrapEvent(drv driver.Driver, id driver.EventID, pinned *keepalive.Pinned) (*Event, error) {
	h, err := handle.Wrap(drv, id)
	if err != nil {
		pinned.Release()
		return nil, err
	}
	e := &Event{h: h}
	if pinned != nil {
		e.pinned.Store(pinned)
	}
	return e, nil
}

// check returns an error if the event is nil or released.
func (e *Event) check() error {
	if e == nil || e.released.Load() {
		return clerr.NullHandle(driver.KindEvent)
	}
	return checkHandle(e.h, driver.KindEvent)
}

// Wait blocks until the command completes. If it failed, it returns a clerr.KindStatusCode error.
func (e *Event) Wait() error {
	if err := e.check(); err != nil {
		return err
	}
	status := e.h.Driver().WaitForEvents([]driver.EventID{e.h.Raw()})
	e.unpin()
	return clerr.StatusCode("clWaitForEvents", status)
}

// unpin releases the host memory of a completed transfer.
func (e *Event) unpin() {
	if p := e.pinned.Swap(nil); p != nil {
		p.Release()
	}
}

func (e *Event) getter(param driver.EventInfo) info.Getter {
	return func(value []byte) (int, driver.Status) {
		return e.h.Driver().GetEventInfo(e.h.Raw(), param, value)
	}
}

// Status returns the execution status of the command. Negative values are errors.
func (e *Event) Status() (driver.ExecutionStatus, error) {
	status, err := info.One[int32]("clGetEventInfo", "EventCommandExecutionStatus", e.getter(driver.EventCommandExecutionStatus))
	return driver.ExecutionStatus(status), err
}

// CommandType returns the type of the command associated with the event.
func (e *Event) CommandType() (driver.CommandType, error) {
	t, err := info.One[uint32]("clGetEventInfo", "EventCommandType", e.getter(driver.EventCommandType))
	return driver.CommandType(t), err
}

// ReferenceCount returns the current reference count of the event in the runtime.
func (e *Event) ReferenceCount() (uint32, error) {
	return info.One[uint32]("clGetEventInfo", "EventReferenceCount", e.getter(driver.EventReferenceCount))
}

func (e *Event) timestamp(param driver.ProfilingInfo, flag string) (uint64, error) {
	return info.One[uint64]("clGetEventProfilingInfo", flag, func(value []byte) (int, driver.Status) {
		return e.h.Driver().GetEventProfilingInfo(e.h.Raw(), param, value)
	})
}

// QueuedAt returns the device time in nanoseconds the command was enqueued.
// Profiling timestamps are only available for completed commands of queues with profiling enabled.
func (e *Event) QueuedAt() (uint64, error) {
	return e.timestamp(driver.ProfilingCommandQueued, "ProfilingCommandQueued")
}

// SubmittedAt returns the device time in nanoseconds the command was submitted to the device.
func (e *Event) SubmittedAt() (uint64, error) {
	return e.timestamp(driver.ProfilingCommandSubmit, "ProfilingCommandSubmit")
}

// StartedAt returns the device time in nanoseconds the command started executing.
func (e *Event) StartedAt() (uint64, error) {
	return e.timestamp(driver.ProfilingCommandStart, "ProfilingCommandStart")
}

// EndedAt returns the device time in nanoseconds the command finished executing.
func (e *Event) EndedAt() (uint64, error) {
	return e.timestamp(driver.ProfilingCommandEnd, "ProfilingCommandEnd")
}

// Duration returns the execution time of the command.
func (e *Event) Duration() (time.Duration, error) {
	start, err := e.StartedAt()
	if err != nil {
		return 0, err
	}
	end, err := e.EndedAt()
	if err != nil {
		return 0, err
	}
	return time.Duration(end - start), nil
}

// Clone returns a new owner of the same event. Only the original keeps the transfer's host
// memory pinned.
func (e *Event) Clone() *Event {
	return &Event{h: e.h.Clone()}
}

// Release the event. It doesn't cancel or wait for the command. It is safe to call it more
// than once, concurrently.
func (e *Event) Release() {
	if e == nil || e.released.Swap(true) {
		return
	}
	pinned := e.pinned.Swap(nil)
	if pinned == nil {
		e.h.Release()
		return
	}
	// The host memory must stay pinned until the transfer completes.
	id := e.h.Raw()
	drv := e.h.Driver()
	go func() {
		if status := drv.WaitForEvents([]driver.EventID{id}); status != driver.Success {
			klog.V(1).Infof("gocl: command of released %s failed: %s", e, status)
		}
		pinned.Release()
		e.h.Release()
	}()
}

// Equal returns whether both refer to the same event.
func (e *Event) Equal(other *Event) bool {
	if e == nil || other == nil {
		return e == other
	}
	return e.h.Equal(other.h)
}

// String implements fmt.Stringer.
func (e *Event) String() string {
	if e == nil {
		return "nil Event"
	}
	return e.h.String()
}

// WaitList is an ordered list of events a command waits for. An empty list is valid.
type WaitList []*Event

// ids returns the raw identifiers of the events, which must all be valid and from drv.
func (wl WaitList) ids(drv driver.Driver) ([]driver.EventID, error) {
	if len(wl) == 0 {
		return nil, nil
	}
	ids := make([]driver.EventID, len(wl))
	for i, e := range wl {
		if err := e.check(); err != nil {
			return nil, err
		}
		if !sameDriver(drv, e.h.Driver()) {
			return nil, clerr.InvalidContext("wait list event from a different driver")
		}
		ids[i] = e.h.Raw()
	}
	return ids, nil
}

// Wait blocks until all events complete. It returns a clerr.KindStatusCode error if any of them
// failed. An empty list returns immediately.
func (wl WaitList) Wait() error {
	if len(wl) == 0 {
		return nil
	}
	if err := wl[0].check(); err != nil {
		return err
	}
	ids, err := wl.ids(wl[0].h.Driver())
	if err != nil {
		return err
	}
	status := wl[0].h.Driver().WaitForEvents(ids)
	for _, e := range wl {
		e.unpin()
	}
	return clerr.StatusCode("clWaitForEvents", status)
}

// Release all events of the list.
func (wl WaitList) Release() {
	releaseAll(wl)
}
