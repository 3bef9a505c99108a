// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// gocl lists the compute devices available to gocl, and stress-tests the session lifecycle.
//
// Usage:
//
//	gocl info                            # Platforms and devices.
//	gocl devices --type=gpu              # One line per device.
//	gocl stress --iterations=10000       # Create and release sessions in a loop.
//
// The driver is selected with --driver or the GOCL_DRIVER environment variable, e.g.
// --driver="simgo:devices=2,gpus=1".
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/gomlx/gocl/driver"
	_ "github.com/gomlx/gocl/driver/default"
	"github.com/spf13/cobra"
	"k8s.io/klog/v2"
)

var flagDriver string

// newDriver creates the driver selected by --driver, or the default one.
func newDriver() driver.Driver {
	if flagDriver != "" {
		return driver.NewWithConfig(flagDriver)
	}
	return driver.New()
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "gocl",
		Short:         "Inspects and exercises the compute devices available to gocl",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}
	rootCmd.PersistentFlags().StringVar(&flagDriver, "driver", "",
		fmt.Sprintf("Driver configuration, formatted as \"<name>:<config>\". Defaults to $%s, "+
			"or the first registered driver.", driver.GOCL_DRIVER))

	// klog flags: -v, -logtostderr, etc.
	klogFlags := flag.NewFlagSet("klog", flag.ExitOnError)
	klog.InitFlags(klogFlags)
	rootCmd.PersistentFlags().AddGoFlagSet(klogFlags)

	rootCmd.AddCommand(newInfoCmd(), newDevicesCmd(), newStressCmd())
	return rootCmd
}

func main() {
	defer klog.Flush()
	if err := newRootCmd().Execute(); err != nil {
		klog.Errorf("%+v", err)
		os.Exit(1)
	}
}
