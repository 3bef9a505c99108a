// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/gomlx/gocl/driver"
	"github.com/gomlx/gocl/pkg/core/cl"
	"github.com/gomlx/gocl/pkg/support/sets"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var flagExtensions bool

func newInfoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "info",
		Short: "Prints the platforms and the devices of the driver",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			drv := newDriver()
			defer drv.Finalize()
			return printInfo(drv)
		},
	}
	cmd.Flags().BoolVar(&flagExtensions, "extensions", false, "Also list the extensions of each platform and device.")
	return cmd
}

func printInfo(drv driver.Driver) error {
	fmt.Printf("Driver: %s\n", drv.Description())
	platforms, err := cl.Platforms(drv)
	if err != nil {
		return err
	}
	if len(platforms) == 0 {
		fmt.Println("No platforms found.")
		return nil
	}
	for i, platform := range platforms {
		if err := printPlatform(i, platform); err != nil {
			return errors.WithMessagef(err, "platform #%d", i)
		}
	}
	return nil
}

func printPlatform(index int, platform *cl.Platform) error {
	name, err := platform.Name()
	if err != nil {
		return err
	}
	version, err := platform.Version()
	if err != nil {
		return err
	}
	vendor, err := platform.Vendor()
	if err != nil {
		return err
	}
	fmt.Println(titleStyle.Render(fmt.Sprintf("Platform #%d: %s", index, name)))
	fmt.Printf("%s, by %s\n", version, vendor)
	if flagExtensions {
		extensions, err := platform.Extensions()
		if err != nil {
			return err
		}
		printExtensions(extensions)
	}

	devices, err := platform.Devices(driver.DeviceTypeAll)
	if err != nil {
		return err
	}
	defer func() {
		for _, device := range devices {
			device.Release()
		}
	}()
	table := newTable(lipgloss.Right, lipgloss.Left, lipgloss.Left, lipgloss.Right).
		Headers("#", "Name", "Type", "Units", "Global Mem", "Local Mem", "Max Alloc", "Work-Group", "Work-Items")
	for i, device := range devices {
		row, err := deviceRow(device)
		if err != nil {
			return errors.WithMessagef(err, "device #%d", i)
		}
		table.Row(append([]string{fmt.Sprint(i)}, row...)...)
	}
	fmt.Println(table.Render())
	if flagExtensions {
		for i, device := range devices {
			extensions, err := device.Extensions()
			if err != nil {
				return err
			}
			fmt.Printf("Device #%d:\n", i)
			printExtensions(extensions)
		}
	}
	return nil
}

// deviceRow returns the table columns describing the device.
func deviceRow(device *cl.Device) ([]string, error) {
	name, err := device.Name()
	if err != nil {
		return nil, err
	}
	deviceType, err := device.Type()
	if err != nil {
		return nil, err
	}
	units, err := device.MaxComputeUnits()
	if err != nil {
		return nil, err
	}
	globalMem, err := device.GlobalMemSize()
	if err != nil {
		return nil, err
	}
	localMem, err := device.LocalMemSize()
	if err != nil {
		return nil, err
	}
	maxAlloc, err := device.MaxMemAllocSize()
	if err != nil {
		return nil, err
	}
	groupSize, err := device.MaxWorkGroupSize()
	if err != nil {
		return nil, err
	}
	itemSizes, err := device.MaxWorkItemSizes()
	if err != nil {
		return nil, err
	}
	sizes := make([]string, len(itemSizes))
	for i, size := range itemSizes {
		sizes[i] = fmt.Sprint(size)
	}
	return []string{
		name,
		deviceType.String(),
		fmt.Sprint(units),
		humanize.IBytes(globalMem),
		humanize.IBytes(localMem),
		humanize.IBytes(maxAlloc),
		humanize.Comma(int64(groupSize)),
		strings.Join(sizes, "x"),
	}, nil
}

func printExtensions(extensions sets.Set[string]) {
	for _, extension := range sets.Sorted(extensions) {
		fmt.Printf("  - %s\n", extension)
	}
}
