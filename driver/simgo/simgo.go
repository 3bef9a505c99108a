// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package simgo implements a simulated runtime in pure Go, registered as the "simgo" driver.
//
// It follows the runtime's documented semantics closely enough to test host code without a
// GPU or an OpenCL installation: objects are reference counted, contexts and programs
// validate their devices, programs are "compiled" (kernel signatures are parsed and bound to
// Go implementations, see RegisterKernel), each command queue runs its commands in order in
// its own goroutine, and events and wait-lists order commands across queues.
//
// It also records how many times each entry point was called (CallCount), and how many
// objects are alive (LiveObjects), which tests use to verify the host library.
//
// The configuration string is a comma-separated list of key=value options:
//
//   - platforms=N: number of platforms (default 1).
//   - devices=N: number of CPU devices per platform (default 1).
//   - gpus=N: number of (simulated) GPU devices per platform (default 0).
//   - unusable=N: number of inactive CPU devices per platform, reported as the unusable device sentinel (default 0).
//   - parallelism=N: number of workers shared by the commands of all queues and their work-groups
//     (default runtime.NumCPU(), 0 to run inline).
//
// Example: GOCL_DRIVER="simgo:devices=2,gpus=1".
package simgo

import (
	"fmt"
	"runtime"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gocl/driver"
	"github.com/gomlx/gocl/internal/workerspool"
	"github.com/gomlx/gocl/pkg/support/xsync"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// DriverName to be used in GOCL_DRIVER to select this driver.
const DriverName = "simgo"

func init() {
	driver.Register(DriverName, func(config string) driver.Driver { return New(config) })
}

// Config of the simulated runtime. See package documentation for the config string format.
type Config struct {
	Platforms, Devices, GPUs, Unusable int
	Parallelism                        int
}

// DefaultConfig returns the configuration used for an empty config string.
func DefaultConfig() Config {
	return Config{Platforms: 1, Devices: 1, Parallelism: runtime.NumCPU()}
}

// ParseConfig parses the config string.
func ParseConfig(config string) (Config, error) {
	c := DefaultConfig()
	for _, part := range strings.Split(config, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, found := strings.Cut(part, "=")
		if !found {
			return c, errors.Errorf("simgo: invalid configuration option %q, expected key=value", part)
		}
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return c, errors.Wrapf(err, "simgo: invalid value for configuration option %q", key)
		}
		if n < 0 && key != "parallelism" {
			return c, errors.Errorf("simgo: configuration option %q can't be negative, got %d", key, n)
		}
		switch strings.TrimSpace(key) {
		case "platforms":
			c.Platforms = n
		case "devices":
			c.Devices = n
		case "gpus":
			c.GPUs = n
		case "unusable":
			c.Unusable = n
		case "parallelism":
			c.Parallelism = n
		default:
			return c, errors.Errorf("simgo: unknown configuration option %q", key)
		}
	}
	return c, nil
}

// Driver implements driver.Driver with a simulated runtime.
type Driver struct {
	config    Config
	platforms []*platformObj

	objects xsync.SyncMap[uintptr, object]
	nextID  atomic.Uintptr

	calls xsync.SyncMap[string, *atomic.Int64]

	pool      *workerspool.Pool
	finalized atomic.Bool
}

// Compile-time check that simgo.Driver implements driver.Driver.
var _ driver.Driver = &Driver{}

// New creates a simulated runtime from a config string. It panics if the config is invalid.
func New(config string) *Driver {
	c, err := ParseConfig(config)
	if err != nil {
		exceptions.Panicf("%+v", err)
	}
	return NewWithConfig(c)
}

// NewWithConfig creates a simulated runtime from a Config.
func NewWithConfig(c Config) *Driver {
	d := &Driver{config: c}
	d.nextID.Store(0x10000)
	d.pool = workerspool.New()
	d.pool.SetMaxParallelism(c.Parallelism)
	for p := range c.Platforms {
		d.newPlatform(p)
	}
	klog.V(1).Infof("simgo: created runtime with %d platform(s), %d CPU + %d GPU + %d unusable device(s) each",
		c.Platforms, c.Devices, c.GPUs, c.Unusable)
	return d
}

// Name implements driver.Driver.
func (d *Driver) Name() string {
	return DriverName
}

// Description implements driver.Driver.
func (d *Driver) Description() string {
	return fmt.Sprintf("SimGo simulated runtime (%d platform(s), %d device(s) per platform)",
		d.config.Platforms, d.config.Devices+d.config.GPUs)
}

// Config returns the configuration of the runtime.
func (d *Driver) Config() Config {
	return d.config
}

// Finalize implements driver.Driver. Objects still alive are reported, but not freed.
func (d *Driver) Finalize() {
	if d.finalized.Swap(true) {
		return
	}
	if live := d.LiveObjects(); live > 0 {
		klog.Warningf("simgo: runtime finalized with %d live object(s)", live)
	}
}

// count records a call to the entry point name.
func (d *Driver) count(name string) {
	counter, found := d.calls.Load(name)
	if !found {
		counter, _ = d.calls.LoadOrStore(name, &atomic.Int64{})
	}
	counter.Add(1)
}

// CallCount returns how many times the entry point name (the driver.Driver method name, e.g.
// "EnqueueNDRangeKernel") was called.
func (d *Driver) CallCount(name string) int64 {
	counter, found := d.calls.Load(name)
	if !found {
		return 0
	}
	return counter.Load()
}

// ResetCallCounts sets all call counters to zero.
func (d *Driver) ResetCallCounts() {
	d.calls.Range(func(_ string, counter *atomic.Int64) bool {
		counter.Store(0)
		return true
	})
}

// LiveObjects returns the number of reference counted objects alive, not counting platforms and devices.
func (d *Driver) LiveObjects() int {
	var n int
	d.objects.Range(func(_ uintptr, obj object) bool {
		switch obj.hdr().kind {
		case driver.KindPlatform, driver.KindDevice:
		default:
			n++
		}
		return true
	})
	return n
}

// LiveObjectsOfKind returns the number of objects of the given kind alive.
func (d *Driver) LiveObjectsOfKind(kind driver.Kind) int {
	var n int
	d.objects.Range(func(_ uintptr, obj object) bool {
		if obj.hdr().kind == kind {
			n++
		}
		return true
	})
	return n
}

// ReferenceCount returns the reference count of any object, or -1 if it doesn't exist.
func (d *Driver) ReferenceCount(id uintptr) int {
	obj, found := d.objects.Load(id)
	if !found {
		return -1
	}
	return int(obj.hdr().refs.Load())
}
