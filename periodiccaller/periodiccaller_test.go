// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package periodiccaller

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPeriodicCaller(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	done := make(chan struct{})
	var counter atomic.Int32

	stop := Start(ctx, 10*time.Millisecond, func() {
		if counter.Add(1) == 2 {
			close(done)
		}
	})

	select {
	case <-done:
	case <-ctx.Done():
		assert.Fail(t, "timeout - periodiccaller not working")
	}

	stop()
	calls := counter.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, calls, counter.Load(), "callback ran after stop")

	// stop is idempotent
	stop()
}

func TestPeriodicCallerCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	var counter atomic.Int32
	stop := Start(ctx, time.Millisecond, func() { counter.Add(1) })

	cancel()
	// Returns once the loop observed the cancellation.
	stop()

	calls := counter.Load()
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, calls, counter.Load())
}
