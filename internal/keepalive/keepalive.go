// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package keepalive keeps host memory alive, and in place, while the runtime may still access it.
//
// A non-blocking transfer hands a host pointer to the runtime and returns immediately. The
// Go garbage collector has no way of knowing the runtime still uses it, so the memory is
// pinned (runtime.Pinner) and referenced from a global table until the transfer completes:
//
//	ref := keepalive.Pin(unsafe.Pointer(&hostSlice[0]), hostSlice)
//	event := enqueue(...)
//	go func() { event.Wait(); ref.Release() }()
//
// NumAcquired helps investigating leaks (memory pinned but never released).
package keepalive

import (
	"runtime"
	"sync"
	"sync/atomic"
	"unsafe"
)

var (
	// allRefs is the global pool of all references being kept alive, indexed by KeepAlive.
	//
	// Slots not in use store the KeepAlive of the next free slot, forming a linked list.
	allRefs []any

	// nextFree is the head of the free list in allRefs, or EndOfList.
	nextFree KeepAlive

	numAcquired int

	muRefs sync.Mutex
)

// KeepAlive is an index to a reference being kept alive.
type KeepAlive int

// InitialFreeSlots is the number of slots pre-allocated in the table of references.
const InitialFreeSlots = 128

// EndOfList marks the end of the free list.
const EndOfList = KeepAlive(-1)

func init() {
	allRefs = make([]any, InitialFreeSlots)
	for ii := 0; ii < len(allRefs)-1; ii++ {
		allRefs[ii] = KeepAlive(ii + 1)
	}
	allRefs[len(allRefs)-1] = EndOfList
	nextFree = 0
}

// Acquire keeps reference alive until Release is called on the returned KeepAlive.
func Acquire(reference any) KeepAlive {
	muRefs.Lock()
	defer muRefs.Unlock()
	numAcquired++
	if nextFree == EndOfList {
		allRefs = append(allRefs, reference)
		return KeepAlive(len(allRefs) - 1)
	}
	acquired := nextFree
	nextFree = allRefs[nextFree].(KeepAlive)
	allRefs[acquired] = reference
	return acquired
}

// Release the reference, so it can be garbage collected.
func (k KeepAlive) Release() {
	muRefs.Lock()
	defer muRefs.Unlock()
	numAcquired--
	allRefs[k] = nextFree
	nextFree = k
}

// NumAcquired returns the number of references currently kept alive.
func NumAcquired() int {
	muRefs.Lock()
	defer muRefs.Unlock()
	return numAcquired
}

// Pinned is host memory pinned in place and kept alive until Release.
type Pinned struct {
	pinner   runtime.Pinner
	ref      KeepAlive
	released atomic.Bool
}

// Pin pins the Go-allocated object ptr points to, and keeps owner (typically the slice
// holding ptr) alive until Release is called.
func Pin(ptr unsafe.Pointer, owner any) *Pinned {
	p := &Pinned{}
	p.pinner.Pin(ptr)
	p.ref = Acquire(owner)
	return p
}

// Release unpins the memory and drops the reference. It is safe to call more than once.
func (p *Pinned) Release() {
	if p == nil || p.released.Swap(true) {
		return
	}
	p.pinner.Unpin()
	p.ref.Release()
}
