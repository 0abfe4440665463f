// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package rejit // import "go.opentelemetry.io/clrprofiler/rejit"

import (
	"context"
	"sync"

	"go.opentelemetry.io/clrprofiler/integration"
	"go.opentelemetry.io/clrprofiler/libpf"
)

// WorkItem is one unit of work for the ReJIT worker. It is one of
// *RewriteItem, *ScanModulesItem or one of the internal inliner scan and
// shutdown items.
type WorkItem interface {
	workItem()
}

// RewriteItem asks the worker to request a ReJIT of Methods.
type RewriteItem struct {
	Methods []libpf.Method
}

// ScanModulesItem asks the worker to search Modules for the targets of
// Methods and to request a ReJIT of every match. Completion, if set, is
// resolved with the number of matched methods.
type ScanModulesItem struct {
	Modules    []libpf.ModuleID
	Methods    []integration.IntegrationMethod
	Completion *Completion
}

// inlinerScanItem asks the worker to search a newly loaded precompiled
// module for inliners of the instrumented methods.
type inlinerScanItem struct {
	module libpf.ModuleID
}

// shutdownItem terminates the worker loop.
type shutdownItem struct{}

func (*RewriteItem) workItem()     {}
func (*ScanModulesItem) workItem() {}
func (inlinerScanItem) workItem()  {}
func (shutdownItem) workItem()     {}

// Completion is a one-shot signal carrying the number of methods matched by
// a module scan.
type Completion struct {
	once  sync.Once
	done  chan libpf.Void
	count int
}

// NewCompletion returns an unresolved Completion.
func NewCompletion() *Completion {
	return &Completion{done: make(chan libpf.Void)}
}

// resolve sets the count and wakes all waiters. Only the first call has an
// effect. resolve is a no-op on a nil Completion.
func (c *Completion) resolve(count int) {
	if c == nil {
		return
	}
	c.once.Do(func() {
		c.count = count
		close(c.done)
	})
}

// Done returns a channel that is closed once the Completion is resolved.
func (c *Completion) Done() <-chan libpf.Void {
	return c.done
}

// Wait blocks until the Completion is resolved or ctx is done, and returns
// the number of matched methods.
func (c *Completion) Wait(ctx context.Context) (int, error) {
	select {
	case <-c.done:
		return c.count, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}
