// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"strings"

	"github.com/gomlx/gocl/driver"
	"github.com/gomlx/gocl/pkg/core/cl"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var flagDeviceType string

// deviceTypes maps the values accepted by --type.
var deviceTypes = map[string]driver.DeviceType{
	"all":         driver.DeviceTypeAll,
	"default":     driver.DeviceTypeDefault,
	"cpu":         driver.DeviceTypeCPU,
	"gpu":         driver.DeviceTypeGPU,
	"accelerator": driver.DeviceTypeAccelerator,
	"custom":      driver.DeviceTypeCustom,
}

// parseDeviceType parses a comma-separated list of device types.
func parseDeviceType(value string) (driver.DeviceType, error) {
	var mask driver.DeviceType
	for _, part := range strings.Split(value, ",") {
		deviceType, found := deviceTypes[strings.ToLower(strings.TrimSpace(part))]
		if !found {
			return 0, errors.Errorf("unknown device type %q, valid values are all, default, cpu, gpu, accelerator and custom", part)
		}
		mask |= deviceType
	}
	return mask, nil
}

func newDevicesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "devices",
		Short: "Lists the usable devices of all platforms, one per line",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mask, err := parseDeviceType(flagDeviceType)
			if err != nil {
				return err
			}
			drv := newDriver()
			defer drv.Finalize()
			devices, err := cl.AllDevices(drv, mask)
			if err != nil {
				return err
			}
			defer func() {
				for _, device := range devices {
					device.Release()
				}
			}()
			for i, device := range devices {
				name, err := device.Name()
				if err != nil {
					return err
				}
				id, err := device.UUID()
				if err != nil {
					id = uuid.Nil
				}
				fmt.Printf("%d\t%s\t%s\n", i, name, id)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&flagDeviceType, "type", "all", "Comma-separated device types to list: all, default, cpu, gpu, accelerator or custom.")
	return cmd
}
