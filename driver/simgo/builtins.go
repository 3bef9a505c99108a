// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package simgo

import (
	"time"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gocl/pkg/core/dtypes"
)

// Kernels available to every program, by name. Their declarations in the program source can
// use any of the numeric types, for the kernels that dispatch on the argument type.
//
//	__kernel void add(__global const T* a, __global const T* b, __global T* c)  // c = a + b
//	__kernel void fill(__global T* x, T value)
//	__kernel void scale(__global float* x, float factor)
//	__kernel void increment(__global int* x)
//	__kernel void iota(__global int* x)                                        // x[i] = linear index
//	__kernel void add_vec4(__global float4* x, float4 delta)
//	__kernel void group_sum(__global const float* in, __global float* out, __local float* scratch)
//	__kernel void sleep(uint milliseconds)                                      // sleeps once per launch
//	__kernel void abort()                                                       // fails the command
func init() {
	RegisterKernel("add", byDType("add", map[dtypes.DType]KernelFunc{
		dtypes.Int8: addKernel[int8], dtypes.Uint8: addKernel[uint8],
		dtypes.Int16: addKernel[int16], dtypes.Uint16: addKernel[uint16],
		dtypes.Int32: addKernel[int32], dtypes.Uint32: addKernel[uint32],
		dtypes.Int64: addKernel[int64], dtypes.Uint64: addKernel[uint64],
		dtypes.Float32: addKernel[float32], dtypes.Float64: addKernel[float64],
	}))
	RegisterKernel("fill", byDType("fill", map[dtypes.DType]KernelFunc{
		dtypes.Int8: fillKernel[int8], dtypes.Uint8: fillKernel[uint8],
		dtypes.Int16: fillKernel[int16], dtypes.Uint16: fillKernel[uint16],
		dtypes.Int32: fillKernel[int32], dtypes.Uint32: fillKernel[uint32],
		dtypes.Int64: fillKernel[int64], dtypes.Uint64: fillKernel[uint64],
		dtypes.Float32: fillKernel[float32], dtypes.Float64: fillKernel[float64],
	}))
	RegisterKernel("scale", func(item *WorkItem, args *Args) {
		x := Buffer[float32](args, 0)
		x[item.Index()] *= Scalar[float32](args, 1)
	})
	RegisterKernel("increment", func(item *WorkItem, args *Args) {
		Buffer[int32](args, 0)[item.Index()]++
	})
	RegisterKernel("iota", func(item *WorkItem, args *Args) {
		idx := item.Index()
		Buffer[int32](args, 0)[idx] = int32(idx)
	})
	RegisterKernel("add_vec4", func(item *WorkItem, args *Args) {
		x := Buffer[dtypes.Vec4[float32]](args, 0)
		delta := Scalar[dtypes.Vec4[float32]](args, 1)
		v := &x[item.Index()]
		for lane := range v {
			v[lane] += delta[lane]
		}
	})
	RegisterKernel("group_sum", func(item *WorkItem, args *Args) {
		in, out := Buffer[float32](args, 0), Buffer[float32](args, 1)
		scratch := Local[float32](args, 2)
		scratch[item.LocalIndex()] = in[item.Index()]
		if item.IsLastInGroup() {
			var sum float32
			for _, v := range scratch[:item.LocalIndex()+1] {
				sum += v
			}
			out[item.GroupIndex()] = sum
		}
	})
	RegisterKernel("sleep", func(item *WorkItem, args *Args) {
		if item.Index() == 0 {
			time.Sleep(time.Duration(Scalar[uint32](args, 0)) * time.Millisecond)
		}
	})
	RegisterKernel("abort", func(item *WorkItem, args *Args) {
		exceptions.Panicf("abort kernel called")
	})
}

// byDType dispatches to the implementation for the type of the first argument.
func byDType(name string, impls map[dtypes.DType]KernelFunc) KernelFunc {
	return func(item *WorkItem, args *Args) {
		impl, found := impls[args.DType(0)]
		if !found {
			exceptions.Panicf("kernel %q not implemented for %s", name, args.DType(0))
		}
		impl(item, args)
	}
}

func addKernel[T dtypes.Number](item *WorkItem, args *Args) {
	i := item.Index()
	Buffer[T](args, 2)[i] = Buffer[T](args, 0)[i] + Buffer[T](args, 1)[i]
}

func fillKernel[T dtypes.Number](item *WorkItem, args *Args) {
	Buffer[T](args, 0)[item.Index()] = Scalar[T](args, 1)
}
