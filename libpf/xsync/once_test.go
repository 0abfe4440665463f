// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package xsync_test

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.opentelemetry.io/clrprofiler/libpf/xsync"
)

func TestOnceRetriesAfterFailure(t *testing.T) {
	var once xsync.Once[string]
	assert.Nil(t, once.Get())

	_, err := once.GetOrInit(func() (string, error) {
		return "", errors.New("metadata not available")
	})
	require.Error(t, err)
	assert.Nil(t, once.Get())

	val, err := once.GetOrInit(func() (string, error) { return "first", nil })
	require.NoError(t, err)
	assert.Equal(t, "first", *val)

	val, err = once.GetOrInit(func() (string, error) { return "second", nil })
	require.NoError(t, err)
	assert.Equal(t, "first", *val)
}

func TestOnceConcurrentInit(t *testing.T) {
	var once xsync.Once[int]
	var calls atomic.Int32
	var wg sync.WaitGroup

	for i := range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			val, err := once.GetOrInit(func() (int, error) {
				calls.Add(1)
				return i, nil
			})
			assert.NoError(t, err)
			assert.NotNil(t, val)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	assert.NotNil(t, once.Get())
}
