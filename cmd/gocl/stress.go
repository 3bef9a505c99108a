// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/gocl/driver"
	"github.com/gomlx/gocl/pkg/core/cl"
	"github.com/gomlx/gocl/pkg/core/dtypes"
	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"
)

const stressSource = `
__kernel void increment(__global int* x) {
	x[get_global_id(0)] += 1;
}
`

var (
	flagIterations int
	flagParallel   int
	flagRun        bool
)

func newStressCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stress",
		Short: "Creates and releases sessions on the default device in a loop",
		Long: "Creates and releases sessions on the default device in a loop, optionally running a kernel in each. " +
			"At the end it checks that the device reference count is back to its initial value.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if flagIterations < 1 || flagParallel < 1 {
				return errors.Errorf("--iterations and --parallel must be >= 1, got %d and %d", flagIterations, flagParallel)
			}
			drv := newDriver()
			defer drv.Finalize()
			return stress(drv)
		},
	}
	cmd.Flags().IntVar(&flagIterations, "iterations", 1000, "Number of sessions to create and release.")
	cmd.Flags().IntVar(&flagParallel, "parallel", 1, "Number of goroutines creating sessions concurrently.")
	cmd.Flags().BoolVar(&flagRun, "run", true, "Run a kernel in each session.")
	return cmd
}

func stress(drv driver.Driver) error {
	device, err := cl.DefaultDevice(drv)
	if err != nil {
		return err
	}
	defer device.Release()
	initialRefs, err := device.ReferenceCount()
	if err != nil {
		return err
	}
	name, _ := device.Name()
	klog.V(1).Infof("stress: %d iterations on %q, initial reference count %d", flagIterations, name, initialRefs)

	bar := progressbar.NewOptions(flagIterations,
		progressbar.OptionSetDescription(fmt.Sprintf("Sessions on %s", name)),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("sessions"),
		progressbar.OptionSetTheme(progressbar.ThemeASCII),
	)
	start := time.Now()
	next := make(chan int)
	var g errgroup.Group
	for range flagParallel {
		g.Go(func() error {
			for i := range next {
				if err := stressIteration(device); err != nil {
					return errors.WithMessagef(err, "iteration #%d", i)
				}
				_ = bar.Add(1)
			}
			return nil
		})
	}
	go func() {
		defer close(next)
		for i := range flagIterations {
			next <- i
		}
	}()
	if err := g.Wait(); err != nil {
		// Drain the remaining iterations, so the feeding goroutine exits.
		for range next {
		}
		return err
	}
	_ = bar.Finish()
	elapsed := time.Since(start)

	finalRefs, err := device.ReferenceCount()
	if err != nil {
		return err
	}
	fmt.Printf("\n%s sessions in %s (%s/session)\n", humanize.Comma(int64(flagIterations)),
		elapsed.Round(time.Millisecond), (elapsed / time.Duration(flagIterations)).Round(time.Microsecond))
	if finalRefs != initialRefs {
		return errors.Errorf("device reference count changed from %d to %d: references leaked", initialRefs, finalRefs)
	}
	fmt.Printf("Device reference count back to %d.\n", finalRefs)
	return nil
}

// stressIteration creates a session and, with --run, increments a value with a kernel.
func stressIteration(device *cl.Device) error {
	s, err := cl.NewSession(device, stressSource)
	if err != nil {
		return err
	}
	defer s.Release()
	if !flagRun {
		return nil
	}
	x, err := s.CreateBuffer(dtypes.Int32, 1, cl.Access{})
	if err != nil {
		return err
	}
	defer x.Release()
	if err := s.SyncWriteBuffer(x, []int32{41}); err != nil {
		return err
	}
	if err := s.ExecuteSyncKernelOperation(cl.NewKernelOperation("increment").Work(cl.One(1)).Arg(x)); err != nil {
		return err
	}
	got := []int32{0}
	if err := s.SyncReadBuffer(x, got); err != nil {
		return err
	}
	if got[0] != 42 {
		return errors.Errorf("kernel result is %d, expected 42", got[0])
	}
	return nil
}
