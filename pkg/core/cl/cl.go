// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package cl is the safe, typed API over a compute runtime driver.
//
// Objects follow the runtime's ownership graph: a Context is created over Devices of one
// Platform; Buffers, Programs and CommandQueues are created in a Context; Kernels are
// extracted from built Programs; every enqueued command returns an Event that can be used in
// the WaitList of later commands, in any queue of the same context.
//
// Every type owning a runtime object has an idempotent Release method, which should be called
// once the object is no longer needed, and a Clone method, which returns a new owner of the
// same object. Objects that are garbage collected without being released are released
// automatically, but that is logged as a leak (klog verbosity 1).
//
// A minimal example, using the default driver:
//
//	device, err := cl.DefaultDevice(driver.New())
//	session, err := cl.NewSession(device, source)
//	defer session.Release()
//	a, err := session.CreateBuffer(dtypes.Int64, 3, cl.Access{})
//	err = session.SyncWriteBuffer(a, []int64{1, 2, 3})
//	err = session.ExecuteSyncKernelOperation(
//		cl.NewKernelOperation("add").Work(cl.One(3)).Arg(a).Arg(b).Arg(c))
//
// All errors are *clerr.Error, see package clerr.
package cl

import (
	"github.com/gomlx/gocl/driver"
	"github.com/gomlx/gocl/internal/handle"
	"github.com/gomlx/gocl/pkg/core/clerr"
)

// checkHandle returns a clerr.KindNullHandle error if h is nil or was released.
func checkHandle[ID driver.Object](h *handle.Handle[ID], kind driver.Kind) error {
	if h == nil || h.IsReleased() {
		return clerr.NullHandle(kind)
	}
	return nil
}

// sameDriver returns whether all objects use the same driver.
func sameDriver(drv driver.Driver, others ...driver.Driver) bool {
	for _, other := range others {
		if other != drv {
			return false
		}
	}
	return true
}
