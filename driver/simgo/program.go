// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package simgo

import (
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gomlx/gocl/driver"
	"github.com/gomlx/gocl/internal/info"
	"k8s.io/klog/v2"
)

// binaryMagic prefixes the "binaries" of the simulated runtime, which are the program source.
const binaryMagic = "SIMGO-BIN\n"

type build struct {
	status  driver.BuildStatus
	options string
	log     string
}

type programObj struct {
	header
	ctx        *contextObj
	source     string
	devices    []*deviceObj
	fromBinary bool

	mu      sync.Mutex
	builds  map[*deviceObj]*build
	kernels []kernelDecl

	// numKernelObjs is the number of kernel objects created from the program and still alive.
	numKernelObjs atomic.Int32
}

func (d *Driver) lookupProgram(id driver.ProgramID) (*programObj, bool) {
	return lookup[*programObj](d, uintptr(id))
}

func (d *Driver) newProgram(c *contextObj, source string, devices []*deviceObj, fromBinary bool) driver.ProgramID {
	p := &programObj{
		ctx:        c,
		source:     source,
		devices:    devices,
		fromBinary: fromBinary,
		builds:     make(map[*deviceObj]*build),
	}
	retain(c)
	id := d.register(p, driver.KindProgram, func() { d.release(c) })
	return driver.ProgramID(id)
}

// CreateProgramWithSource implements driver.Driver. The program is associated with all the context devices.
func (d *Driver) CreateProgramWithSource(ctx driver.ContextID, sources []string) (driver.ProgramID, driver.Status) {
	d.count("CreateProgramWithSource")
	c, found := d.lookupContext(ctx)
	if !found {
		return 0, driver.InvalidContext
	}
	if len(sources) == 0 {
		return 0, driver.InvalidValue
	}
	return d.newProgram(c, strings.Join(sources, ""), slices.Clone(c.devices), false), driver.Success
}

// CreateProgramWithBinary implements driver.Driver. Binaries are the ones returned by GetProgramBinaries.
func (d *Driver) CreateProgramWithBinary(ctx driver.ContextID, devices []driver.DeviceID, binaries [][]byte) (
	driver.ProgramID, []driver.Status, driver.Status) {
	d.count("CreateProgramWithBinary")
	c, found := d.lookupContext(ctx)
	if !found {
		return 0, nil, driver.InvalidContext
	}
	if len(devices) == 0 || len(devices) != len(binaries) {
		return 0, nil, driver.InvalidValue
	}
	devs := make([]*deviceObj, len(devices))
	for i, id := range devices {
		dev, found := d.lookupDevice(id)
		if !found || !c.hasDevice(dev) {
			return 0, nil, driver.InvalidDevice
		}
		devs[i] = dev
	}
	statuses := make([]driver.Status, len(binaries))
	var source string
	overall := driver.Success
	for i, binary := range binaries {
		src, ok := strings.CutPrefix(string(binary), binaryMagic)
		if !ok || (i > 0 && src != source) {
			statuses[i] = driver.InvalidBinary
			overall = driver.InvalidBinary
			continue
		}
		source = src
	}
	if overall != driver.Success {
		return 0, statuses, overall
	}
	return d.newProgram(c, source, devs, true), statuses, driver.Success
}

// validateBuildOptions accepts the usual compiler flags: every option must start with "-".
func validateBuildOptions(options string) bool {
	for _, opt := range strings.Fields(options) {
		if !strings.HasPrefix(opt, "-") {
			return false
		}
	}
	return true
}

// BuildProgram implements driver.Driver. Programs can be rebuilt as long as no kernel objects are attached.
func (d *Driver) BuildProgram(id driver.ProgramID, devices []driver.DeviceID, options string) driver.Status {
	d.count("BuildProgram")
	p, found := d.lookupProgram(id)
	if !found {
		return driver.InvalidProgram
	}
	devs := p.devices
	if len(devices) > 0 {
		devs = make([]*deviceObj, 0, len(devices))
		for _, devID := range devices {
			dev, found := d.lookupDevice(devID)
			if !found || !slices.Contains(p.devices, dev) {
				return driver.InvalidDevice
			}
			devs = append(devs, dev)
		}
	}
	if !validateBuildOptions(options) {
		return driver.InvalidBuildOptions
	}
	if p.numKernelObjs.Load() > 0 {
		return driver.InvalidOperation
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	decls, log, ok := compile(p.source)
	status := driver.BuildSuccess
	if !ok {
		status = driver.BuildError
	}
	for _, dev := range devs {
		p.builds[dev] = &build{status: status, options: options, log: log}
	}
	if !ok {
		klog.V(1).Infof("simgo: build of program %#x failed:\n%s", p.id, log)
		return driver.BuildProgramFailure
	}
	p.kernels = decls
	klog.V(1).Infof("simgo: built program %#x for %d device(s), %d kernel(s)", p.id, len(devs), len(decls))
	return driver.Success
}

// isBuiltFor returns whether the program was successfully built for dev.
func (p *programObj) isBuiltFor(dev *deviceObj) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	b, found := p.builds[dev]
	return found && b.status == driver.BuildSuccess
}

// isBuilt returns whether the program was successfully built for at least one device.
func (p *programObj) isBuilt() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, b := range p.builds {
		if b.status == driver.BuildSuccess {
			return true
		}
	}
	return false
}

// findKernel returns the declaration of the kernel, or nil if not found.
func (p *programObj) findKernel(name string) *kernelDecl {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.kernels {
		if p.kernels[i].name == name {
			return &p.kernels[i]
		}
	}
	return nil
}

func (p *programObj) binary() []byte {
	return []byte(binaryMagic + p.source)
}

// GetProgramInfo implements driver.Driver.
func (d *Driver) GetProgramInfo(id driver.ProgramID, param driver.ProgramInfo, value []byte) (int, driver.Status) {
	d.count("GetProgramInfo")
	p, found := d.lookupProgram(id)
	if !found {
		return 0, driver.InvalidProgram
	}
	switch param {
	case driver.ProgramReferenceCount:
		return info.Fill(value, info.Encode(uint32(p.refs.Load())))
	case driver.ProgramContext:
		return info.Fill(value, info.Encode(driver.ContextID(p.ctx.id)))
	case driver.ProgramNumDevices:
		return info.Fill(value, info.Encode(uint32(len(p.devices))))
	case driver.ProgramDevices:
		ids := make([]driver.DeviceID, len(p.devices))
		for i, dev := range p.devices {
			ids[i] = driver.DeviceID(dev.id)
		}
		return info.Fill(value, info.EncodeSlice(ids))
	case driver.ProgramSource:
		if p.fromBinary {
			return info.Fill(value, info.EncodeString(""))
		}
		return info.Fill(value, info.EncodeString(p.source))
	case driver.ProgramBinarySizes:
		sizes := make([]uintptr, len(p.devices))
		for i, dev := range p.devices {
			if p.isBuiltFor(dev) {
				sizes[i] = uintptr(len(p.binary()))
			}
		}
		return info.Fill(value, info.EncodeSlice(sizes))
	case driver.ProgramNumKernels, driver.ProgramKernelNames:
		if !p.isBuilt() {
			return 0, driver.InvalidProgramExecutable
		}
		p.mu.Lock()
		names := make([]string, len(p.kernels))
		for i, decl := range p.kernels {
			names[i] = decl.name
		}
		p.mu.Unlock()
		if param == driver.ProgramNumKernels {
			return info.Fill(value, info.Encode(uintptr(len(names))))
		}
		return info.Fill(value, info.EncodeString(strings.Join(names, ";")))
	}
	return 0, driver.InvalidValue
}

// GetProgramBuildInfo implements driver.Driver.
func (d *Driver) GetProgramBuildInfo(id driver.ProgramID, device driver.DeviceID, param driver.ProgramBuildInfo,
	value []byte) (int, driver.Status) {
	d.count("GetProgramBuildInfo")
	p, found := d.lookupProgram(id)
	if !found {
		return 0, driver.InvalidProgram
	}
	dev, found := d.lookupDevice(device)
	if !found || !slices.Contains(p.devices, dev) {
		return 0, driver.InvalidDevice
	}
	p.mu.Lock()
	b := p.builds[dev]
	p.mu.Unlock()
	if b == nil {
		b = &build{status: driver.BuildNone}
	}
	switch param {
	case driver.ProgramBuildStatus:
		return info.Fill(value, info.Encode(int32(b.status)))
	case driver.ProgramBuildOptions:
		return info.Fill(value, info.EncodeString(b.options))
	case driver.ProgramBuildLog:
		return info.Fill(value, info.EncodeString(b.log))
	}
	return 0, driver.InvalidValue
}

// GetProgramBinaries implements driver.Driver. Devices the program was not built for get an empty binary.
func (d *Driver) GetProgramBinaries(id driver.ProgramID, binaries [][]byte) driver.Status {
	d.count("GetProgramBinaries")
	p, found := d.lookupProgram(id)
	if !found {
		return driver.InvalidProgram
	}
	if len(binaries) != len(p.devices) {
		return driver.InvalidValue
	}
	for i, dev := range p.devices {
		if !p.isBuiltFor(dev) {
			continue
		}
		binary := p.binary()
		if len(binaries[i]) < len(binary) {
			return driver.InvalidValue
		}
		copy(binaries[i], binary)
	}
	return driver.Success
}
