// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package cl

import (
	"sync/atomic"

	"github.com/gomlx/gocl/driver"
	"github.com/gomlx/gocl/pkg/core/dtypes"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Session bundles what is needed to run kernels on one device: a context over the device, a
// program built from the given sources and a command queue.
//
// Release tears it down in reverse order of creation: queue, program, context and device.
type Session struct {
	device   *Device
	context  *Context
	program  *Program
	queue    *CommandQueue
	released atomic.Bool
}

// SessionOptions configures NewSessionWithOptions.
type SessionOptions struct {
	// BuildOptions passed to the program compiler.
	BuildOptions string

	// QueueProperties of the session command queue.
	QueueProperties driver.CommandQueueProperties
}

// DefaultSessionOptions returns the options used by NewSession.
func DefaultSessionOptions() SessionOptions {
	return SessionOptions{QueueProperties: DefaultQueueProperties}
}

// NewSession creates a session on device, with a program built from sources.
// The session keeps its own reference to device.
func NewSession(device *Device, sources ...string) (*Session, error) {
	return NewSessionWithOptions(device, DefaultSessionOptions(), sources...)
}

// NewSessionWithOptions creates a session on device, with a program built from sources.
//
// If the program fails to build, the error is a clerr.KindBuildFailed with the compiler log.
func NewSessionWithOptions(device *Device, options SessionOptions, sources ...string) (s *Session, err error) {
	if err := device.check(); err != nil {
		return nil, err
	}
	s = &Session{device: device.Clone()}
	defer func() {
		if err != nil {
			s.release()
			s = nil
		}
	}()
	s.context, err = NewContext(s.device)
	if err != nil {
		return
	}
	s.program, err = NewProgramFromSource(s.context, sources...)
	if err != nil {
		return
	}
	if err = s.program.Build(options.BuildOptions, s.device); err != nil {
		return
	}
	s.queue, err = NewCommandQueue(s.context, s.device, options.QueueProperties)
	if err != nil {
		return
	}
	klog.V(1).Infof("gocl: created session on %s", s.device)
	return
}

// NewSessions creates one session for each usable device of the driver whose type matches mask.
func NewSessions(drv driver.Driver, mask driver.DeviceType, sources ...string) ([]*Session, error) {
	devices, err := AllDevices(drv, mask)
	if err != nil {
		return nil, err
	}
	defer releaseAll(devices)
	sessions := make([]*Session, 0, len(devices))
	for _, device := range devices {
		s, err := NewSession(device, sources...)
		if err != nil {
			releaseAll(sessions)
			return nil, errors.WithMessagef(err, "creating session on %s", device)
		}
		sessions = append(sessions, s)
	}
	return sessions, nil
}

// Device of the session. It is owned by the session: Clone it to keep it after Release.
func (s *Session) Device() *Device { return s.device }

// Context of the session. It is owned by the session: Clone it to keep it after Release.
func (s *Session) Context() *Context { return s.context }

// Program of the session. It is owned by the session: Clone it to keep it after Release.
func (s *Session) Program() *Program { return s.program }

// Queue of the session. It is owned by the session: Clone it to keep it after Release.
func (s *Session) Queue() *CommandQueue { return s.queue }

// CreateBuffer creates an uninitialized buffer of n elements of dtype in the session context.
func (s *Session) CreateBuffer(dtype dtypes.DType, n int, access Access) (*Buffer, error) {
	return NewBuffer(s.context, dtype, n, access)
}

// CreateBufferFromSlice creates a buffer initialized with the contents of data, see NewBufferFromSlice.
func (s *Session) CreateBufferFromSlice(data any, access Access) (*Buffer, error) {
	return NewBufferFromSlice(s.context, data, access)
}

// SyncWriteBuffer writes data into buf, after the events of waitList complete, and waits for it.
func (s *Session) SyncWriteBuffer(buf *Buffer, data any, waitList ...*Event) error {
	e, err := s.queue.WriteBuffer(buf, data, NewQueueOptions().WithWaitList(waitList...))
	if err != nil {
		return err
	}
	e.Release()
	return nil
}

// SyncReadBuffer reads buf into data, after the events of waitList complete, and waits for it.
func (s *Session) SyncReadBuffer(buf *Buffer, data any, waitList ...*Event) error {
	e, err := s.queue.ReadBuffer(buf, data, NewQueueOptions().WithWaitList(waitList...))
	if err != nil {
		return err
	}
	e.Release()
	return nil
}

// ExecuteSyncKernelOperation runs op on the session queue and waits for it to complete.
//
// A new kernel is extracted for each call, so a Session can execute operations concurrently
// from different goroutines.
func (s *Session) ExecuteSyncKernelOperation(op *KernelOperation) error {
	e, err := s.enqueue(op)
	if err != nil {
		return err
	}
	defer e.Release()
	if err := e.Wait(); err != nil {
		return errors.WithMessagef(err, "executing kernel %q", op.name)
	}
	return nil
}

// enqueue extracts the kernel of op, binds its arguments and enqueues it.
func (s *Session) enqueue(op *KernelOperation) (*Event, error) {
	kernel, err := s.program.Kernel(op.name)
	if err != nil {
		return nil, err
	}
	defer kernel.Release()
	for i, arg := range op.args {
		if err := kernel.SetArg(i, arg); err != nil {
			return nil, errors.WithMessagef(err, "kernel %q argument #%d", op.name, i)
		}
	}
	if err := kernel.checkArgs(); err != nil {
		return nil, err
	}
	return s.queue.EnqueueKernel(kernel, op.work, op.options)
}

// release tears down the created parts, in reverse order of creation.
func (s *Session) release() {
	if s.queue != nil {
		if err := s.queue.Finish(); err != nil {
			klog.Warningf("gocl: failed to finish %s while releasing session: %+v", s.queue, err)
		}
		s.queue.Release()
	}
	s.program.Release()
	s.context.Release()
	s.device.Release()
}

// Release waits for enqueued commands and releases the queue, the program, the context and the
// device, in that order. It is safe to call it more than once.
func (s *Session) Release() {
	if s == nil || s.released.Swap(true) {
		return
	}
	s.release()
}
