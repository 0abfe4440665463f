// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package rejit // import "go.opentelemetry.io/clrprofiler/rejit"

import (
	"errors"
	"fmt"
	"slices"

	"go.opentelemetry.io/clrprofiler/host"
	"go.opentelemetry.io/clrprofiler/integration"
	"go.opentelemetry.io/clrprofiler/libpf"
	"go.opentelemetry.io/clrprofiler/metadata"
	"go.opentelemetry.io/clrprofiler/registry"
)

// MissingField names the piece of state that keeps a method from being rewritten.
type MissingField int

// Checked in this order; the first missing one is reported.
const (
	MissingMethodToken MissingField = iota
	MissingFunctionControl
	MissingFunctionInfo
	MissingReplacement
	MissingModuleID
	MissingModuleMetadata
)

var missingFieldNames = [...]string{
	MissingMethodToken:     "method token",
	MissingFunctionControl: "function control",
	MissingFunctionInfo:    "function info",
	MissingReplacement:     "method replacement",
	MissingModuleID:        "module id",
	MissingModuleMetadata:  "module metadata",
}

func (f MissingField) String() string {
	if int(f) < len(missingFieldNames) {
		return missingFieldNames[f]
	}
	return fmt.Sprintf("MissingField(%d)", int(f))
}

// ErrNotReady matches every *NotReadyError with errors.Is.
var ErrNotReady = errors.New("rewrite state not ready")

// NotReadyError reports that the ReJIT parameters of a method arrived before
// the state needed to rewrite it. It is not fatal: the method stays
// uninstrumented.
type NotReadyError struct {
	Field  MissingField
	Method libpf.Method
}

func (e *NotReadyError) Error() string {
	return fmt.Sprintf("%s is missing for %v", e.Field, e.Method)
}

func (e *NotReadyError) Is(target error) bool {
	return target == ErrNotReady
}

// RewriteRequest carries everything the IL rewriter needs for one method.
type RewriteRequest struct {
	Method      libpf.Method
	Module      *metadata.ModuleMetadata
	Control     host.FunctionControl
	Function    *metadata.FunctionInfo
	Replacement *integration.MethodReplacement
	// FunctionIDs lists the instantiations seen so far, in ascending order.
	FunctionIDs []libpf.FunctionID
}

// Decide checks that the records hold all state required for a rewrite and
// returns the request for the rewriter, or a *NotReadyError naming the first
// missing field. Decide only reads the records.
func Decide(module *registry.Module, method *registry.Method) (*RewriteRequest, error) {
	state := method.State()
	key := libpf.Method{Module: module.ID(), Token: method.Token()}
	notReady := func(f MissingField) error {
		return &NotReadyError{Field: f, Method: key}
	}

	if method.Token().IsNil() {
		return nil, notReady(MissingMethodToken)
	}
	if state.Control == nil {
		return nil, notReady(MissingFunctionControl)
	}
	if state.Function == nil {
		return nil, notReady(MissingFunctionInfo)
	}
	if state.Replacement == nil {
		return nil, notReady(MissingReplacement)
	}
	if module.ID() == 0 {
		return nil, notReady(MissingModuleID)
	}
	md := module.Metadata()
	if md == nil {
		return nil, notReady(MissingModuleMetadata)
	}

	ids := method.FunctionIDs()
	slices.Sort(ids)
	return &RewriteRequest{
		Method:      key,
		Module:      md,
		Control:     state.Control,
		Function:    state.Function,
		Replacement: state.Replacement,
		FunctionIDs: ids,
	}, nil
}

// Rewriter edits the body of a method through the function control of its
// ReJIT request.
type Rewriter interface {
	Rewrite(req *RewriteRequest) error
}

// RewriterFunc adapts a function to the Rewriter interface.
type RewriterFunc func(req *RewriteRequest) error

// Rewrite calls f(req).
func (f RewriterFunc) Rewrite(req *RewriteRequest) error {
	return f(req)
}
