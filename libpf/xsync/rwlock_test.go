// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package xsync_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"go.opentelemetry.io/clrprofiler/libpf/xsync"
)

func TestRWMutexInvalidatesReference(t *testing.T) {
	m := xsync.NewRWMutex(map[string]int{"a": 1})

	entries := m.WLock()
	(*entries)["b"] = 2
	m.WUnlock(&entries)
	assert.Nil(t, entries)

	entries = m.RLock()
	assert.Equal(t, map[string]int{"a": 1, "b": 2}, *entries)
	m.RUnlock(&entries)
	assert.Nil(t, entries)

	assert.Panics(t, func() {
		(*entries)["c"] = 3
	})
}

func TestMutexWith(t *testing.T) {
	m := xsync.NewMutex(0)
	var wg sync.WaitGroup
	for range 64 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.With(func(v *int) { *v++ })
		}()
	}
	wg.Wait()

	v := m.Lock()
	defer m.Unlock(&v)
	assert.Equal(t, 64, *v)
}
