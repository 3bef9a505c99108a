// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package simgo

import (
	"unsafe"

	"github.com/gomlx/gocl/driver"
	"github.com/gomlx/gocl/internal/info"
)

// memObjectBuffer is the runtime's CL_MEM_OBJECT_BUFFER type value.
const memObjectBuffer = 0x10F0

type memObj struct {
	header
	ctx     *contextObj
	flags   driver.MemFlags
	data    []byte
	hostPtr unsafe.Pointer
}

func (d *Driver) lookupMem(id driver.MemID) (*memObj, bool) {
	return lookup[*memObj](d, uintptr(id))
}

// alignedBytes allocates size bytes aligned to 8 bytes, so kernels can view them as any scalar type.
func alignedBytes(size uintptr) []byte {
	words := make([]uint64, (size+7)/8)
	return unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(words))), size)
}

func countFlags(flags driver.MemFlags, mask driver.MemFlags) int {
	var n int
	for bit := driver.MemFlags(1); bit != 0 && bit <= mask; bit <<= 1 {
		if flags&mask&bit != 0 {
			n++
		}
	}
	return n
}

const allMemFlags = driver.MemReadWrite | driver.MemWriteOnly | driver.MemReadOnly | driver.MemUseHostPtr |
	driver.MemAllocHostPtr | driver.MemCopyHostPtr | driver.MemHostWriteOnly | driver.MemHostReadOnly | driver.MemHostNoAccess

// validateMemFlags follows the runtime rules on the combination of flags.
func validateMemFlags(flags driver.MemFlags, hostPtr unsafe.Pointer) driver.Status {
	if flags&^allMemFlags != 0 {
		return driver.InvalidValue
	}
	if countFlags(flags, driver.MemReadWrite|driver.MemWriteOnly|driver.MemReadOnly) > 1 {
		return driver.InvalidValue
	}
	if countFlags(flags, driver.MemHostWriteOnly|driver.MemHostReadOnly|driver.MemHostNoAccess) > 1 {
		return driver.InvalidValue
	}
	if flags&driver.MemUseHostPtr != 0 && flags&(driver.MemAllocHostPtr|driver.MemCopyHostPtr) != 0 {
		return driver.InvalidValue
	}
	needsHostPtr := flags&(driver.MemUseHostPtr|driver.MemCopyHostPtr) != 0
	if needsHostPtr != (hostPtr != nil) {
		return driver.InvalidHostPtr
	}
	return driver.Success
}

// CreateBuffer implements driver.Driver.
func (d *Driver) CreateBuffer(ctx driver.ContextID, flags driver.MemFlags, size uintptr, hostPtr unsafe.Pointer) (driver.MemID, driver.Status) {
	d.count("CreateBuffer")
	c, found := d.lookupContext(ctx)
	if !found {
		return 0, driver.InvalidContext
	}
	if size == 0 || size > maxMemAllocSize {
		return 0, driver.InvalidBufferSize
	}
	if status := validateMemFlags(flags, hostPtr); status != driver.Success {
		return 0, status
	}
	if flags&(driver.MemReadWrite|driver.MemWriteOnly|driver.MemReadOnly) == 0 {
		flags |= driver.MemReadWrite
	}
	m := &memObj{ctx: c, flags: flags}
	if flags&driver.MemUseHostPtr != 0 {
		// The buffer aliases the host memory.
		m.hostPtr = hostPtr
		m.data = unsafe.Slice((*byte)(hostPtr), size)
	} else {
		m.data = alignedBytes(size)
		if flags&driver.MemCopyHostPtr != 0 {
			copy(m.data, unsafe.Slice((*byte)(hostPtr), size))
		}
	}
	retain(c)
	id := d.register(m, driver.KindMemory, func() { d.release(c) })
	return driver.MemID(id), driver.Success
}

// GetMemObjectInfo implements driver.Driver.
func (d *Driver) GetMemObjectInfo(id driver.MemID, param driver.MemInfo, value []byte) (int, driver.Status) {
	d.count("GetMemObjectInfo")
	m, found := d.lookupMem(id)
	if !found {
		return 0, driver.InvalidMemObject
	}
	switch param {
	case driver.MemType:
		return info.Fill(value, info.Encode(uint32(memObjectBuffer)))
	case driver.MemFlagsInfo:
		return info.Fill(value, info.Encode(uint64(m.flags)))
	case driver.MemSize:
		return info.Fill(value, info.Encode(uintptr(len(m.data))))
	case driver.MemHostPtr:
		return info.Fill(value, info.Encode(uintptr(m.hostPtr)))
	case driver.MemMapCount:
		return info.Fill(value, info.Encode(uint32(0)))
	case driver.MemReferenceCount:
		return info.Fill(value, info.Encode(uint32(m.refs.Load())))
	case driver.MemContext:
		return info.Fill(value, info.Encode(driver.ContextID(m.ctx.id)))
	}
	return 0, driver.InvalidValue
}

// hostCanRead and hostCanWrite implement the host access flags.
func (m *memObj) hostCanRead() bool {
	return m.flags&(driver.MemHostWriteOnly|driver.MemHostNoAccess) == 0
}

func (m *memObj) hostCanWrite() bool {
	return m.flags&(driver.MemHostReadOnly|driver.MemHostNoAccess) == 0
}

func (m *memObj) inBounds(offset, size uintptr) bool {
	return offset <= uintptr(len(m.data)) && size <= uintptr(len(m.data))-offset
}
