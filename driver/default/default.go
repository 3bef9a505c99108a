// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package _default includes the default drivers, namely simgo and, if compiled with the `opencl`
// build tag, opencl.
//
// Usage:
//
//	import _ "github.com/gomlx/gocl/driver/default"
package _default

import (
	_ "github.com/gomlx/gocl/driver/simgo"
)
