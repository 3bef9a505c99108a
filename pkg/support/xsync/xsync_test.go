// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package xsync

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLatch(t *testing.T) {
	l := NewLatch()
	require.False(t, l.Test())
	done := make(chan struct{})
	go func() {
		l.Wait()
		close(done)
	}()
	l.Trigger()
	l.Trigger() // Second trigger is a no-op.
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Wait didn't return after Trigger")
	}
	assert.True(t, l.Test())
}

func TestLatchWithValue(t *testing.T) {
	l := NewLatchWithValue[int]()
	_, triggered := l.Peek()
	require.False(t, triggered)
	require.True(t, l.Trigger(7))
	require.False(t, l.Trigger(11))
	assert.Equal(t, 7, l.Wait())
	v, triggered := l.Peek()
	assert.True(t, triggered)
	assert.Equal(t, 7, v)
	<-l.WaitChan()
}

func TestDynamicWaitGroup(t *testing.T) {
	wg := NewDynamicWaitGroup()
	wg.Wait() // Zero doesn't block.
	wg.Add(2)
	var finished sync.WaitGroup
	finished.Add(1)
	go func() {
		defer finished.Done()
		wg.Wait()
	}()
	wg.Done()
	wg.Add(1) // Grows while someone is waiting.
	assert.Equal(t, 2, wg.Count())
	wg.Done()
	wg.Done()
	finished.Wait()
	assert.Equal(t, 0, wg.Count())
	assert.Panics(t, func() { wg.Done() })
}

func TestSyncMap(t *testing.T) {
	var m SyncMap[uintptr, string]
	m.Store(1, "one")
	m.Store(2, "two")
	v, ok := m.Load(1)
	require.True(t, ok)
	assert.Equal(t, "one", v)
	assert.Equal(t, 2, m.Len())
	v, ok = m.LoadAndDelete(2)
	require.True(t, ok)
	assert.Equal(t, "two", v)
	_, ok = m.Load(2)
	assert.False(t, ok)
	m.Delete(1)
	assert.Equal(t, 0, m.Len())
}
