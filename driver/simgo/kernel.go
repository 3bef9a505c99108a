// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package simgo

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"unsafe"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gocl/driver"
	"github.com/gomlx/gocl/internal/info"
	"github.com/gomlx/gocl/pkg/core/dtypes"
	"k8s.io/klog/v2"
)

// KernelFunc is the Go implementation of a kernel, called once per work-item.
//
// Work-items of a work-group run sequentially in the same goroutine, in order of their
// local linear index; work-groups run in parallel. There are no barriers: a kernel
// that reduces over local memory should do it from the last work-item of the group.
type KernelFunc func(item *WorkItem, args *Args)

var (
	kernelFuncsMu sync.RWMutex
	kernelFuncs   = make(map[string]KernelFunc)
)

// RegisterKernel registers the Go implementation of the kernel with the given name. Programs
// defining a kernel with that name are bound to it when built.
//
// It overwrites previous registrations with the same name.
func RegisterKernel(name string, fn KernelFunc) {
	if fn == nil {
		exceptions.Panicf("simgo.RegisterKernel(%q): nil function", name)
	}
	kernelFuncsMu.Lock()
	defer kernelFuncsMu.Unlock()
	kernelFuncs[name] = fn
	klog.V(2).Infof("simgo: kernel %q registered", name)
}

func lookupKernelFunc(name string) (KernelFunc, bool) {
	kernelFuncsMu.RLock()
	defer kernelFuncsMu.RUnlock()
	fn, found := kernelFuncs[name]
	return fn, found
}

// WorkItem holds the indices of the work-item being executed. Unused dimensions have
// sizes 1 and ids 0.
type WorkItem struct {
	Dims                             int
	GlobalID, LocalID, GroupID       [3]int
	GlobalSize, LocalSize, NumGroups [3]int
	Offset                           [3]int
}

// Index returns the linear index of the work-item in the global range, with the first
// dimension varying faster and without the global offset.
func (w *WorkItem) Index() int {
	return (w.GlobalID[0] - w.Offset[0]) +
		w.GlobalSize[0]*((w.GlobalID[1]-w.Offset[1])+w.GlobalSize[1]*(w.GlobalID[2]-w.Offset[2]))
}

// LocalIndex returns the linear index of the work-item within its work-group.
func (w *WorkItem) LocalIndex() int {
	return w.LocalID[0] + w.LocalSize[0]*(w.LocalID[1]+w.LocalSize[1]*w.LocalID[2])
}

// GroupIndex returns the linear index of the work-group.
func (w *WorkItem) GroupIndex() int {
	return w.GroupID[0] + w.NumGroups[0]*(w.GroupID[1]+w.NumGroups[1]*w.GroupID[2])
}

// IsLastInGroup returns whether it's the last work-item executed in its work-group.
func (w *WorkItem) IsLastInGroup() bool {
	return w.LocalIndex() == w.LocalSize[0]*w.LocalSize[1]*w.LocalSize[2]-1
}

type argValue struct {
	data    []byte
	sampler *samplerObj
}

// Args gives a kernel access to its arguments.
type Args struct {
	params []kernelParam
	values []argValue
}

// Len returns the number of arguments.
func (a *Args) Len() int {
	return len(a.params)
}

// DType returns the type of the i-th argument: the element type for pointers (InvalidDType
// for "void" pointers), the value type otherwise.
func (a *Args) DType(i int) dtypes.DType {
	return a.params[i].dtype
}

// Bytes returns the raw bytes of the i-th argument: the contents of the buffer for pointers,
// the value otherwise.
func (a *Args) Bytes(i int) []byte {
	return a.values[i].data
}

// Buffer returns the contents of the i-th argument, a __global or __constant pointer, as a slice of T.
// A null buffer returns nil.
func Buffer[T any](a *Args, i int) []T {
	data := a.values[i].data
	var zero T
	size := int(unsafe.Sizeof(zero))
	if len(data) < size {
		return nil
	}
	return unsafe.Slice((*T)(unsafe.Pointer(unsafe.SliceData(data))), len(data)/size)
}

// Local returns the local memory of the i-th argument, a __local pointer, as a slice of T.
// Local memory is shared by the work-items of a work-group.
func Local[T any](a *Args, i int) []T {
	return Buffer[T](a, i)
}

// Scalar returns the value of the i-th argument.
func Scalar[T any](a *Args, i int) T {
	var value T
	data := a.values[i].data
	if uintptr(len(data)) < unsafe.Sizeof(value) {
		exceptions.Panicf("simgo: argument #%d has %d bytes, can't read it as %T", i, len(data), value)
	}
	return *(*T)(unsafe.Pointer(unsafe.SliceData(data)))
}

type argSlot struct {
	set     bool
	size    uintptr
	value   []byte
	mem     driver.MemID
	sampler *samplerObj
}

type kernelObj struct {
	header
	program *programObj
	decl    *kernelDecl

	mu   sync.Mutex
	args []argSlot
}

func (d *Driver) lookupKernel(id driver.KernelID) (*kernelObj, bool) {
	return lookup[*kernelObj](d, uintptr(id))
}

// CreateKernel implements driver.Driver.
func (d *Driver) CreateKernel(program driver.ProgramID, name string) (driver.KernelID, driver.Status) {
	d.count("CreateKernel")
	p, found := d.lookupProgram(program)
	if !found {
		return 0, driver.InvalidProgram
	}
	if !p.isBuilt() {
		return 0, driver.InvalidProgramExecutable
	}
	decl := p.findKernel(name)
	if decl == nil {
		return 0, driver.InvalidKernelName
	}
	k := &kernelObj{program: p, decl: decl, args: make([]argSlot, len(decl.params))}
	retain(p)
	p.numKernelObjs.Add(1)
	id := d.register(k, driver.KindKernel, func() {
		p.numKernelObjs.Add(-1)
		d.release(p)
	})
	return driver.KernelID(id), driver.Success
}

// SetKernelArg implements driver.Driver.
func (d *Driver) SetKernelArg(kernel driver.KernelID, index uint32, size uintptr, value unsafe.Pointer) driver.Status {
	d.count("SetKernelArg")
	k, found := d.lookupKernel(kernel)
	if !found {
		return driver.InvalidKernel
	}
	if int(index) >= len(k.decl.params) {
		return driver.InvalidArgIndex
	}
	param := k.decl.params[index]
	slot := argSlot{set: true, size: size}
	switch param.kind {
	case paramGlobal, paramConstant:
		if size != unsafe.Sizeof(driver.MemID(0)) {
			return driver.InvalidArgSize
		}
		if value != nil {
			slot.mem = *(*driver.MemID)(value)
		}
		if slot.mem != 0 {
			m, found := d.lookupMem(slot.mem)
			if !found || m.ctx != k.program.ctx {
				return driver.InvalidMemObject
			}
		}
	case paramLocal:
		if value != nil {
			return driver.InvalidArgValue
		}
		if size == 0 {
			return driver.InvalidArgSize
		}
	case paramSampler:
		if size != unsafe.Sizeof(driver.SamplerID(0)) {
			return driver.InvalidArgSize
		}
		if value == nil {
			return driver.InvalidArgValue
		}
		s, found := lookup[*samplerObj](d, uintptr(*(*driver.SamplerID)(value)))
		if !found || s.ctx != k.program.ctx {
			return driver.InvalidSampler
		}
		slot.sampler = s
	default:
		if size != param.dtype.Size() {
			return driver.InvalidArgSize
		}
		if value == nil {
			return driver.InvalidArgValue
		}
		slot.value = bytes.Clone(unsafe.Slice((*byte)(value), size))
	}
	k.mu.Lock()
	k.args[index] = slot
	k.mu.Unlock()
	return driver.Success
}

// localMemSize returns the total size of the __local arguments set.
func (k *kernelObj) localMemSize() uint64 {
	k.mu.Lock()
	defer k.mu.Unlock()
	var total uint64
	for i, slot := range k.args {
		if slot.set && k.decl.params[i].kind == paramLocal {
			total += uint64(slot.size)
		}
	}
	return total
}

// GetKernelInfo implements driver.Driver.
func (d *Driver) GetKernelInfo(id driver.KernelID, param driver.KernelInfo, value []byte) (int, driver.Status) {
	d.count("GetKernelInfo")
	k, found := d.lookupKernel(id)
	if !found {
		return 0, driver.InvalidKernel
	}
	switch param {
	case driver.KernelFunctionName:
		return info.Fill(value, info.EncodeString(k.decl.name))
	case driver.KernelNumArgs:
		return info.Fill(value, info.Encode(uint32(len(k.decl.params))))
	case driver.KernelReferenceCount:
		return info.Fill(value, info.Encode(uint32(k.refs.Load())))
	case driver.KernelContext:
		return info.Fill(value, info.Encode(driver.ContextID(k.program.ctx.id)))
	case driver.KernelProgram:
		return info.Fill(value, info.Encode(driver.ProgramID(k.program.id)))
	}
	return 0, driver.InvalidValue
}

// GetKernelWorkGroupInfo implements driver.Driver. device may be 0 if the program has only one device.
func (d *Driver) GetKernelWorkGroupInfo(id driver.KernelID, device driver.DeviceID, param driver.KernelWorkGroupInfo,
	value []byte) (int, driver.Status) {
	d.count("GetKernelWorkGroupInfo")
	k, found := d.lookupKernel(id)
	if !found {
		return 0, driver.InvalidKernel
	}
	var dev *deviceObj
	if device == 0 {
		if len(k.program.devices) != 1 {
			return 0, driver.InvalidDevice
		}
		dev = k.program.devices[0]
	} else if dev, found = d.lookupDevice(device); !found || !k.program.isBuiltFor(dev) {
		return 0, driver.InvalidDevice
	}
	switch param {
	case driver.KernelWorkGroupSize:
		return info.Fill(value, info.Encode(uintptr(maxWorkGroupSize)))
	case driver.KernelCompileWorkGroupSize:
		return info.Fill(value, info.EncodeSlice([]uintptr{0, 0, 0}))
	case driver.KernelLocalMemSize:
		return info.Fill(value, info.Encode(k.localMemSize()))
	case driver.KernelPreferredWorkGroupSizeMultiple:
		multiple := uintptr(8)
		if dev.deviceType == driver.DeviceTypeGPU {
			multiple = 32
		}
		return info.Fill(value, info.Encode(multiple))
	}
	return 0, driver.InvalidValue
}

// launch is a snapshot of an NDRange command: later changes to the kernel arguments don't affect it.
type launch struct {
	kernel       *kernelObj
	item         WorkItem
	args         Args
	localSizes   []uintptr
	retainedMems []*memObj
}

// snapshotArgs captures the current kernel arguments. It returns driver.InvalidKernelArgs if
// any argument is not set. Buffers are retained until the launch is done.
func (d *Driver) snapshotArgs(k *kernelObj) (*launch, driver.Status) {
	k.mu.Lock()
	defer k.mu.Unlock()
	l := &launch{
		kernel: k,
		args: Args{
			params: k.decl.params,
			values: make([]argValue, len(k.args)),
		},
		localSizes: make([]uintptr, len(k.args)),
	}
	for i, slot := range k.args {
		if !slot.set {
			l.releaseMems(d)
			return nil, driver.InvalidKernelArgs
		}
		switch k.decl.params[i].kind {
		case paramGlobal, paramConstant:
			if slot.mem == 0 {
				continue
			}
			m, found := d.lookupMem(slot.mem)
			if !found || !retain(m) {
				l.releaseMems(d)
				return nil, driver.InvalidMemObject
			}
			l.retainedMems = append(l.retainedMems, m)
			l.args.values[i].data = m.data
		case paramLocal:
			l.localSizes[i] = slot.size
		case paramSampler:
			l.args.values[i].sampler = slot.sampler
		default:
			l.args.values[i].data = slot.value
		}
	}
	return l, driver.Success
}

func (l *launch) releaseMems(d *Driver) {
	for _, m := range l.retainedMems {
		d.release(m)
	}
	l.retainedMems = nil
}

// run executes all work-groups of the launch, in parallel. A panic in the kernel fails the
// command with driver.OutOfResources.
func (d *Driver) run(l *launch) (status driver.ExecutionStatus) {
	item := l.item
	numGroups := item.NumGroups[0] * item.NumGroups[1] * item.NumGroups[2]
	var failed sync.Once
	status = driver.Complete
	d.pool.ParallelFor(numGroups, 1, func(start, end int) {
		defer func() {
			if r := recover(); r != nil {
				failed.Do(func() {
					klog.Errorf("simgo: kernel %q panicked: %v", l.kernel.decl.name, r)
					status = driver.ExecutionStatus(driver.OutOfResources)
				})
			}
		}()
		groupArgs := Args{params: l.args.params, values: make([]argValue, len(l.args.values))}
		for group := start; group < end; group++ {
			copy(groupArgs.values, l.args.values)
			for i, size := range l.localSizes {
				if size > 0 {
					groupArgs.values[i].data = alignedBytes(size)
				}
			}
			wi := item
			wi.GroupID = [3]int{
				group % item.NumGroups[0],
				(group / item.NumGroups[0]) % item.NumGroups[1],
				group / (item.NumGroups[0] * item.NumGroups[1]),
			}
			for z := range item.LocalSize[2] {
				for y := range item.LocalSize[1] {
					for x := range item.LocalSize[0] {
						wi.LocalID = [3]int{x, y, z}
						for axis := range 3 {
							wi.GlobalID[axis] = item.Offset[axis] + wi.GroupID[axis]*item.LocalSize[axis] + wi.LocalID[axis]
						}
						l.kernel.decl.impl(&wi, &groupArgs)
					}
				}
			}
		}
	})
	return status
}

// defaultLocalSize picks a work-group size dividing globalSize: the largest divisor of the
// first dimension not larger than 64, and 1 for the others.
func defaultLocalSize(globalSize []uintptr) []uintptr {
	local := make([]uintptr, len(globalSize))
	for i := range local {
		local[i] = 1
	}
	for size := uintptr(64); size > 1; size-- {
		if globalSize[0]%size == 0 {
			local[0] = size
			break
		}
	}
	return local
}

// String is used for logging, e.g. "add[1024x2]".
func (l *launch) String() string {
	parts := make([]string, l.item.Dims)
	for axis := range parts {
		parts[axis] = strconv.Itoa(l.item.GlobalSize[axis])
	}
	return fmt.Sprintf("%s[%s]", l.kernel.decl.name, strings.Join(parts, "x"))
}
