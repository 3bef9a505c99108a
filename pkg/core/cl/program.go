// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package cl

import (
	"fmt"
	"sync"

	"github.com/gomlx/gocl/driver"
	"github.com/gomlx/gocl/internal/handle"
	"github.com/gomlx/gocl/internal/info"
	"github.com/gomlx/gocl/pkg/core/clerr"
	"k8s.io/klog/v2"
)

// ProgramState is the build state of a Program. Transitions are one-way: Unbuilt to either
// Built or BuildFailed.
type ProgramState int

const (
	Unbuilt ProgramState = iota
	Built
	BuildFailed
)

func (s ProgramState) String() string {
	switch s {
	case Unbuilt:
		return "Unbuilt"
	case Built:
		return "Built"
	case BuildFailed:
		return "BuildFailed"
	}
	return fmt.Sprintf("ProgramState(%d)", int(s))
}

// programState is shared by all clones of a Program.
type programState struct {
	mu    sync.Mutex
	state ProgramState
	logs  []clerr.BuildLog
}

// Program is a set of kernels compiled from source (or loaded from binaries) for the devices
// of a context. Kernels can only be extracted once it is built.
type Program struct {
	h     *handle.Handle[driver.ProgramID]
	state *programState
}

// NewProgramFromSource creates an unbuilt program from the concatenation of the given sources.
func NewProgramFromSource(ctx *Context, sources ...string) (*Program, error) {
	if err := ctx.check(); err != nil {
		return nil, err
	}
	if len(sources) == 0 {
		return nil, clerr.InvalidProgram("no source given")
	}
	id, status := ctx.Driver().CreateProgramWithSource(ctx.h.Raw(), sources)
	if err := clerr.StatusCode("clCreateProgramWithSource", status); err != nil {
		return nil, err
	}
	return newProgram(ctx.Driver(), id)
}

// NewProgramFromBinaries creates an unbuilt program from binaries previously returned by
// Program.Binaries, one per device. The program still needs to be built.
func NewProgramFromBinaries(ctx *Context, devices []*Device, binaries [][]byte) (*Program, error) {
	if err := ctx.check(); err != nil {
		return nil, err
	}
	if len(devices) == 0 || len(devices) != len(binaries) {
		return nil, clerr.InvalidProgram(fmt.Sprintf("%d devices given for %d binaries", len(devices), len(binaries)))
	}
	drv, ids, err := deviceIDs(devices)
	if err != nil {
		return nil, err
	}
	if !sameDriver(drv, ctx.Driver()) {
		return nil, clerr.InvalidDevice(0, "devices and context from different drivers")
	}
	id, statuses, status := drv.CreateProgramWithBinary(ctx.h.Raw(), ids, binaries)
	if err := clerr.StatusCode("clCreateProgramWithBinary", status); err != nil {
		for i, s := range statuses {
			if s != driver.Success {
				klog.Warningf("gocl: binary #%d for %s failed to load: %s", i, devices[i], s)
			}
		}
		return nil, err
	}
	return newProgram(drv, id)
}

func newProgram(drv driver.Driver, id driver.ProgramID) (*Program, error) {
	h, err := handle.Wrap(drv, id)
	if err != nil {
		return nil, err
	}
	p := &Program{h: h, state: &programState{}}
	klog.V(1).Infof("gocl: created %s", p)
	return p, nil
}

// check returns an error if the program is nil or released.
func (p *Program) check() error {
	if p == nil {
		return clerr.NullHandle(driver.KindProgram)
	}
	return checkHandle(p.h, driver.KindProgram)
}

// Driver used by the program.
func (p *Program) Driver() driver.Driver {
	return p.h.Driver()
}

// State returns the current build state of the program.
func (p *Program) State() ProgramState {
	p.state.mu.Lock()
	defer p.state.mu.Unlock()
	return p.state.state
}

// Build compiles and links the program for the given devices, or all devices of its context if
// none is given. options are passed to the runtime compiler (e.g. "-cl-fast-relaxed-math").
//
// It blocks until the build finishes. A program can only be built once: later calls return a
// clerr.KindAlreadyBuilt error. If compilation fails, the program moves to BuildFailed, and the
// error is a clerr.KindBuildFailed with the compiler log of each device.
func (p *Program) Build(options string, devices ...*Device) error {
	if err := p.check(); err != nil {
		return err
	}
	var ids []driver.DeviceID
	if len(devices) > 0 {
		drv, buildIDs, err := deviceIDs(devices)
		if err != nil {
			return err
		}
		if !sameDriver(drv, p.Driver()) {
			return clerr.InvalidDevice(0, "devices and program from different drivers")
		}
		ids = buildIDs
	}

	p.state.mu.Lock()
	defer p.state.mu.Unlock()
	if p.state.state != Unbuilt {
		return clerr.AlreadyBuilt()
	}
	status := p.h.Driver().BuildProgram(p.h.Raw(), ids, options)
	switch status {
	case driver.Success:
		p.state.state = Built
		klog.V(1).Infof("gocl: built %s (options %q)", p, options)
		return nil
	case driver.BuildProgramFailure:
		if ids == nil {
			var err error
			ids, err = info.Slice[driver.DeviceID]("clGetProgramInfo", "ProgramDevices", p.getter(driver.ProgramDevices))
			if err != nil {
				klog.Warningf("gocl: failed to list devices of %s: %+v", p, err)
			}
		}
		p.state.state = BuildFailed
		p.state.logs = p.collectLogs(ids, true)
		return clerr.BuildFailed(p.state.logs)
	}
	return clerr.StatusCode("clBuildProgram", status)
}

// collectLogs returns the build logs of the given devices. If onlyFailed is set, only the logs
// of devices whose build failed are returned, unless none is flagged as failed.
func (p *Program) collectLogs(ids []driver.DeviceID, onlyFailed bool) []clerr.BuildLog {
	drv := p.h.Driver()
	logs := make([]clerr.BuildLog, 0, len(ids))
	var failed []clerr.BuildLog
	for _, id := range ids {
		log := clerr.BuildLog{Device: id}
		log.DeviceName, _ = info.String(opDeviceInfo, "DeviceName", func(value []byte) (int, driver.Status) {
			return drv.GetDeviceInfo(id, driver.DeviceName, value)
		})
		buildInfo := func(param driver.ProgramBuildInfo) info.Getter {
			return func(value []byte) (int, driver.Status) {
				return drv.GetProgramBuildInfo(p.h.Raw(), id, param, value)
			}
		}
		var err error
		log.Log, err = info.String("clGetProgramBuildInfo", "ProgramBuildLog", buildInfo(driver.ProgramBuildLog))
		if err != nil {
			log.Log = fmt.Sprintf("<build log unavailable: %v>", err)
		}
		logs = append(logs, log)
		status, err := info.One[int32]("clGetProgramBuildInfo", "ProgramBuildStatus", buildInfo(driver.ProgramBuildStatus))
		if err == nil && driver.BuildStatus(status) == driver.BuildError {
			failed = append(failed, log)
		}
	}
	if onlyFailed && len(failed) > 0 {
		return failed
	}
	return logs
}

// BuildLogs returns the compiler logs of all devices of the program. After a failed build, it
// returns the logs of the devices that failed.
func (p *Program) BuildLogs() ([]clerr.BuildLog, error) {
	if err := p.check(); err != nil {
		return nil, err
	}
	p.state.mu.Lock()
	defer p.state.mu.Unlock()
	if p.state.state == BuildFailed {
		return p.state.logs, nil
	}
	ids, err := info.Slice[driver.DeviceID]("clGetProgramInfo", "ProgramDevices", p.getter(driver.ProgramDevices))
	if err != nil {
		return nil, err
	}
	return p.collectLogs(ids, false), nil
}

// requireBuilt returns a clerr.KindProgramNotBuilt error if the program is not built.
func (p *Program) requireBuilt() error {
	if err := p.check(); err != nil {
		return err
	}
	if state := p.State(); state != Built {
		return clerr.ProgramNotBuilt(state.String())
	}
	return nil
}

// Kernel returns a new kernel with the given name. The program must be built.
func (p *Program) Kernel(name string) (*Kernel, error) {
	if err := p.requireBuilt(); err != nil {
		return nil, err
	}
	return newKernel(p, name)
}

func (p *Program) getter(param driver.ProgramInfo) info.Getter {
	return func(value []byte) (int, driver.Status) {
		return p.h.Driver().GetProgramInfo(p.h.Raw(), param, value)
	}
}

// KernelNames returns the names of the kernels in the program. The program must be built.
func (p *Program) KernelNames() ([]string, error) {
	if err := p.requireBuilt(); err != nil {
		return nil, err
	}
	return info.Strings("clGetProgramInfo", "ProgramKernelNames", ";", p.getter(driver.ProgramKernelNames))
}

// Source returns the concatenated source of the program. It is empty for programs created
// from binaries.
func (p *Program) Source() (string, error) {
	return info.String("clGetProgramInfo", "ProgramSource", p.getter(driver.ProgramSource))
}

// Binaries returns the compiled binary of each device of the program, in the order of Devices.
// Devices the program was not built for have an empty binary.
func (p *Program) Binaries() ([][]byte, error) {
	if err := p.check(); err != nil {
		return nil, err
	}
	sizes, err := info.Slice[uintptr]("clGetProgramInfo", "ProgramBinarySizes", p.getter(driver.ProgramBinarySizes))
	if err != nil {
		return nil, err
	}
	binaries := make([][]byte, len(sizes))
	for i, size := range sizes {
		binaries[i] = make([]byte, size)
	}
	if err := clerr.StatusCode("clGetProgramInfo", p.h.Driver().GetProgramBinaries(p.h.Raw(), binaries)); err != nil {
		return nil, err
	}
	return binaries, nil
}

// Devices returns the devices the program is associated with. Each returned Device is a new
// reference, and must be released by the caller.
func (p *Program) Devices() ([]*Device, error) {
	ids, err := info.Slice[driver.DeviceID]("clGetProgramInfo", "ProgramDevices", p.getter(driver.ProgramDevices))
	if err != nil {
		return nil, err
	}
	devices := make([]*Device, 0, len(ids))
	for _, id := range ids {
		dev, err := wrapDevice(p.h.Driver(), id)
		if err != nil {
			releaseAll(devices)
			return nil, err
		}
		devices = append(devices, dev)
	}
	return devices, nil
}

// Context returns a new reference to the context of the program, that must be released by the caller.
func (p *Program) Context() (*Context, error) {
	return contextFromInfo(p.h.Driver(), "clGetProgramInfo", p.getter(driver.ProgramContext))
}

// ReferenceCount returns the current reference count of the program in the runtime.
func (p *Program) ReferenceCount() (uint32, error) {
	return info.One[uint32]("clGetProgramInfo", "ProgramReferenceCount", p.getter(driver.ProgramReferenceCount))
}

// Clone returns a new owner of the same program. Clones share the build state.
func (p *Program) Clone() *Program {
	return &Program{h: p.h.Clone(), state: p.state}
}

// Release the program. It is safe to call it more than once.
func (p *Program) Release() {
	if p == nil || p.h.IsReleased() {
		return
	}
	klog.V(1).Infof("gocl: releasing %s", p)
	p.h.Release()
}

// String implements fmt.Stringer.
func (p *Program) String() string {
	if p == nil {
		return "nil Program"
	}
	return p.h.String()
}
