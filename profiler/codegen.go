// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package profiler // import "go.opentelemetry.io/clrprofiler/profiler"

import (
	"fmt"

	"go.opentelemetry.io/clrprofiler/rejit"
)

// codegenRewriter sets the configured codegen flags on the function control
// before the method is handed to the next rewriter.
type codegenRewriter struct {
	flags uint32
	next  rejit.Rewriter
}

func (r codegenRewriter) Rewrite(req *rejit.RewriteRequest) error {
	if r.flags != 0 {
		if err := req.Control.SetCodegenFlags(r.flags); err != nil {
			return fmt.Errorf("failed to set codegen flags %#x: %w", r.flags, err)
		}
	}
	return r.next.Rewrite(req)
}
