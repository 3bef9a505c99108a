// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package workerspool

import (
	"runtime"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gomlx/gocl/pkg/support/xsync"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_WaitToStart(t *testing.T) {
	pool := New()
	wantTasks := 5
	pool.SetMaxParallelism(wantTasks)

	var count atomic.Int32
	allStarted := xsync.NewLatch()
	for range wantTasks {
		pool.WaitToStart(func() {
			if int(count.Add(1)) == wantTasks {
				allStarted.Trigger()
			}
			allStarted.Wait()
		})
	}
	select {
	case <-allStarted.WaitChan():
	case <-time.After(time.Second):
		t.Fatal("Timeout before all tasks were started.")
	}
	assert.Equal(t, int32(wantTasks), count.Load())

	// Pool is full while tasks hold on: waiting for them to finish frees the slots.
	for !pool.StartIfAvailable(func() {}) {
		runtime.Gosched()
	}
}

func TestPool_NoParallelism(t *testing.T) {
	pool := New()
	pool.SetMaxParallelism(0)
	require.False(t, pool.IsEnabled())
	var count int
	pool.WaitToStart(func() { count++ })
	assert.Equal(t, 1, count) // Ran inline.
	assert.False(t, pool.StartIfAvailable(func() { count++ }))
	assert.Equal(t, 1, count)
}

func TestPool_ParallelFor(t *testing.T) {
	for _, parallelism := range []int{0, 1, 3, -1} {
		pool := New()
		pool.SetMaxParallelism(parallelism)
		const n = 1000
		var visited [n]atomic.Int32
		pool.ParallelFor(n, 7, func(start, end int) {
			for i := start; i < end; i++ {
				visited[i].Add(1)
			}
		})
		for i := range visited {
			require.Equalf(t, int32(1), visited[i].Load(), "parallelism=%d, item #%d", parallelism, i)
		}
	}
}

func TestPool_WorkerIsAsleep(t *testing.T) {
	pool := New()
	pool.SetMaxParallelism(1)
	started, wakeUp := xsync.NewLatch(), xsync.NewLatch()
	finished := xsync.NewLatch()
	pool.WaitToStart(func() {
		pool.WorkerIsAsleep()
		started.Trigger()
		wakeUp.Wait()
		pool.WorkerRestarted()
		finished.Trigger()
	})
	started.Wait()

	// The sleeping worker doesn't count against the limit.
	ran := xsync.NewLatch()
	require.True(t, pool.StartIfAvailable(ran.Trigger))
	select {
	case <-ran.WaitChan():
	case <-time.After(time.Second):
		t.Fatal("Timeout: task didn't run while the only worker was asleep.")
	}
	wakeUp.Trigger()
	finished.Wait()
}

func TestPool_ParallelForWithinTask(t *testing.T) {
	for _, parallelism := range []int{1, 2} {
		pool := New()
		pool.SetMaxParallelism(parallelism)
		var sum atomic.Int64
		done := xsync.NewLatch()
		// The task holds the only worker(s): chunks without a worker run inline.
		pool.WaitToStart(func() {
			pool.ParallelFor(100, 1, func(start, end int) {
				for i := start; i < end; i++ {
					sum.Add(int64(i))
				}
			})
			done.Trigger()
		})
		select {
		case <-done.WaitChan():
		case <-time.After(time.Second):
			t.Fatalf("Timeout in ParallelFor called from a task, parallelism=%d", parallelism)
		}
		assert.Equal(t, int64(4950), sum.Load())
	}
}
