// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package cl

import (
	"fmt"

	"github.com/gomlx/gocl/driver"
	"github.com/gomlx/gocl/pkg/core/clerr"
)

// HostAccess defines what the host can do with a buffer through the command queue.
type HostAccess int

const (
	HostReadWrite HostAccess = iota
	HostReadOnly
	HostWriteOnly
	HostNoAccess
)

func (a HostAccess) String() string {
	switch a {
	case HostReadWrite:
		return "ReadWrite"
	case HostReadOnly:
		return "ReadOnly"
	case HostWriteOnly:
		return "WriteOnly"
	case HostNoAccess:
		return "NoAccess"
	}
	return fmt.Sprintf("HostAccess(%d)", int(a))
}

// KernelAccess defines what kernels can do with a buffer.
type KernelAccess int

const (
	KernelReadWrite KernelAccess = iota
	KernelReadOnly
	KernelWriteOnly
)

func (a KernelAccess) String() string {
	switch a {
	case KernelReadWrite:
		return "ReadWrite"
	case KernelReadOnly:
		return "ReadOnly"
	case KernelWriteOnly:
		return "WriteOnly"
	}
	return fmt.Sprintf("KernelAccess(%d)", int(a))
}

// Location defines where the buffer memory lives, and how it is initialized.
type Location int

const (
	// AllocOnDevice allocates uninitialized device memory.
	AllocOnDevice Location = iota

	// KeepOnHost uses the host data given at creation as the buffer storage. The host data is
	// kept alive (and pinned) until the buffer is released.
	KeepOnHost

	// CopyToDevice allocates device memory initialized with a copy of the host data.
	CopyToDevice

	// ForceCopyToDevice is like CopyToDevice, but allocates host accessible memory.
	ForceCopyToDevice
)

func (l Location) String() string {
	switch l {
	case AllocOnDevice:
		return "AllocOnDevice"
	case KeepOnHost:
		return "KeepOnHost"
	case CopyToDevice:
		return "CopyToDevice"
	case ForceCopyToDevice:
		return "ForceCopyToDevice"
	}
	return fmt.Sprintf("Location(%d)", int(l))
}

// needsHostData returns whether the location requires initial host data.
func (l Location) needsHostData() bool {
	return l != AllocOnDevice
}

// Access is the access policy of a buffer. The zero value is read-write access for both host
// and kernels, allocated on the device.
type Access struct {
	Host     HostAccess
	Kernel   KernelAccess
	Location Location
}

// Flags validates the access policy and encodes it as the runtime flags bitfield.
// hasHostData tells whether initial host data is given at the creation of the buffer.
//
// It returns a clerr.KindInvalidAccess error for illegal combinations.
func (a Access) Flags(hasHostData bool) (driver.MemFlags, error) {
	var flags driver.MemFlags
	switch a.Kernel {
	case KernelReadWrite:
		flags |= driver.MemReadWrite
	case KernelReadOnly:
		flags |= driver.MemReadOnly
	case KernelWriteOnly:
		flags |= driver.MemWriteOnly
	default:
		return 0, clerr.InvalidAccess("invalid kernel access %s", a.Kernel)
	}
	switch a.Host {
	case HostReadWrite:
	case HostReadOnly:
		flags |= driver.MemHostReadOnly
	case HostWriteOnly:
		flags |= driver.MemHostWriteOnly
	case HostNoAccess:
		flags |= driver.MemHostNoAccess
	default:
		return 0, clerr.InvalidAccess("invalid host access %s", a.Host)
	}
	switch a.Location {
	case AllocOnDevice:
	case KeepOnHost:
		flags |= driver.MemUseHostPtr
	case CopyToDevice:
		flags |= driver.MemCopyHostPtr
	case ForceCopyToDevice:
		flags |= driver.MemAllocHostPtr | driver.MemCopyHostPtr
	default:
		return 0, clerr.InvalidAccess("invalid location %s", a.Location)
	}
	if a.Location.needsHostData() && !hasHostData {
		return 0, clerr.InvalidAccess("location %s requires initial host data", a.Location)
	}
	if !a.Location.needsHostData() && hasHostData {
		return 0, clerr.InvalidAccess("location %s can't take initial host data", a.Location)
	}
	if a.Host == HostNoAccess && a.Location == KeepOnHost {
		return 0, clerr.InvalidAccess("host access %s can't be combined with location %s", a.Host, a.Location)
	}
	return flags, nil
}

// HostCanRead returns whether the host can read the buffer.
func (a Access) HostCanRead() bool {
	return a.Host == HostReadWrite || a.Host == HostReadOnly
}

// HostCanWrite returns whether the host can write the buffer.
func (a Access) HostCanWrite() bool {
	return a.Host == HostReadWrite || a.Host == HostWriteOnly
}

// KernelCanRead returns whether kernels can read the buffer.
func (a Access) KernelCanRead() bool {
	return a.Kernel == KernelReadWrite || a.Kernel == KernelReadOnly
}

// KernelCanWrite returns whether kernels can write the buffer.
func (a Access) KernelCanWrite() bool {
	return a.Kernel == KernelReadWrite || a.Kernel == KernelWriteOnly
}

// String implements fmt.Stringer.
func (a Access) String() string {
	return fmt.Sprintf("Access{Host: %s, Kernel: %s, Location: %s}", a.Host, a.Kernel, a.Location)
}
