// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package hostsim // import "go.opentelemetry.io/clrprofiler/hostsim"

import (
	"slices"
	"sync"

	"go.opentelemetry.io/clrprofiler/host"
)

// Control records what the IL rewriter hands back to the runtime.
type Control struct {
	mu           sync.Mutex
	codegenFlags uint32
	body         []byte
}

var _ host.FunctionControl = (*Control)(nil)

func (c *Control) SetCodegenFlags(flags uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.codegenFlags = flags
	return nil
}

func (c *Control) SetILFunctionBody(body []byte) error {
	if len(body) == 0 {
		return host.ErrInvalidArg
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.body = slices.Clone(body)
	return nil
}

// CodegenFlags returns the flags set last.
func (c *Control) CodegenFlags() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.codegenFlags
}

// Body returns the IL body set last, or nil.
func (c *Control) Body() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.body)
}
