// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package cl

import (
	"fmt"
	"strings"
)

// KernelOperation describes a kernel launch for Session.ExecuteSyncKernelOperation: the kernel
// name, its arguments in order and the work to launch it over.
//
// Example:
//
//	op := cl.NewKernelOperation("add").Work(cl.One(n)).Args(a, b, c)
type KernelOperation struct {
	name    string
	work    *Work
	args    []KernelArg
	options *QueueOptions
}

// NewKernelOperation returns an operation for the kernel with the given name.
func NewKernelOperation(name string) *KernelOperation {
	return &KernelOperation{name: name}
}

// Work sets the work the kernel is launched over. It is required.
func (op *KernelOperation) Work(work *Work) *KernelOperation {
	op.work = work
	return op
}

// Arg appends an argument: the i-th call binds the argument slot i.
func (op *KernelOperation) Arg(arg KernelArg) *KernelOperation {
	op.args = append(op.args, arg)
	return op
}

// Args appends the arguments in order.
func (op *KernelOperation) Args(args ...KernelArg) *KernelOperation {
	op.args = append(op.args, args...)
	return op
}

// Options sets the queue options of the launch, e.g. a wait list.
func (op *KernelOperation) Options(options *QueueOptions) *KernelOperation {
	op.options = options
	return op
}

// Name of the kernel.
func (op *KernelOperation) Name() string {
	return op.name
}

// String implements fmt.Stringer.
func (op *KernelOperation) String() string {
	args := make([]string, len(op.args))
	for i, arg := range op.args {
		if arg == nil {
			args[i] = "<nil>"
			continue
		}
		args[i] = arg.ArgDType().String()
	}
	return fmt.Sprintf("%s(%s) over %s", op.name, strings.Join(args, ", "), op.work)
}
