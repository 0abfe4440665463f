// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package periodiccaller allows periodic calls of functions.
package periodiccaller // import "go.opentelemetry.io/clrprofiler/periodiccaller"

import (
	"context"
	"sync"
	"time"
)

// Start calls callback every interval until ctx is canceled or the returned
// stop function is called. stop waits for a running callback to return and
// may be called more than once.
func Start(ctx context.Context, interval time.Duration, callback func()) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	ticker := time.NewTicker(interval)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				callback()
			case <-ctx.Done():
				return
			}
		}
	}()

	return func() {
		cancel()
		wg.Wait()
	}
}
