// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package host defines the capabilities of the managed runtime that the
// ReJIT engine calls into, and the errors the runtime reports.
package host // import "go.opentelemetry.io/clrprofiler/host"

import (
	"errors"

	"go.opentelemetry.io/clrprofiler/libpf"
	"go.opentelemetry.io/clrprofiler/metadata"
)

// Failures reported by the runtime. Implementations wrap or return these so
// that callers can classify them with errors.Is.
var (
	// ErrInvalidArg is E_INVALIDARG.
	ErrInvalidArg = errors.New("invalid argument")
	// ErrDataIncomplete is CORPROF_E_DATAINCOMPLETE: the information is not
	// available yet and may be later.
	ErrDataIncomplete = errors.New("data incomplete")
	// ErrUnsupportedCallSequence is CORPROF_E_UNSUPPORTED_CALL_SEQUENCE.
	ErrUnsupportedCallSequence = errors.New("unsupported call sequence")
	// ErrNotSupported is returned for calls the runtime version does not implement.
	ErrNotSupported = errors.New("not supported")
)

// ProfilerInfo is the base capability set every supported runtime provides
// (ICorProfilerInfo4).
type ProfilerInfo interface {
	// InitializeCurrentThread prepares the calling OS thread for later calls
	// that must not take runtime locks, like RequestReJIT.
	InitializeCurrentThread() error

	// RequestReJIT asks the runtime to recompile the given methods. modules
	// and methods are parallel slices. The call is not reentrant and must
	// always be made from the same thread.
	RequestReJIT(modules []libpf.ModuleID, methods []libpf.MethodToken) error

	// GetModuleInfo describes a loaded module.
	GetModuleInfo(id libpf.ModuleID) (metadata.ModuleInfo, error)

	// GetModuleMetadata opens the metadata of a module for reading and writing.
	GetModuleMetadata(id libpf.ModuleID) (metadata.Interfaces, error)

	// GetFunctionInfo returns the module and MethodDef of a compiled function.
	GetFunctionInfo(id libpf.FunctionID) (libpf.Method, error)
}

// InlinerEnumerator is implemented by runtimes that can report which
// precompiled methods inlined a method (ICorProfilerInfo6).
type InlinerEnumerator interface {
	// EnumInliners returns the methods of the precompiled module that inlined
	// inlinee. incomplete is set when the runtime has not yet loaded all the
	// data needed to answer, and the query should be repeated later.
	EnumInliners(precompiled libpf.ModuleID, inlinee libpf.Method) (inliners []libpf.Method,
		incomplete bool, err error)
}

// ReJITWithInlinersRequester is implemented by runtimes that can block
// inlining of the requested methods while rejitting them (ICorProfilerInfo10).
type ReJITWithInlinersRequester interface {
	RequestReJITWithInliners(modules []libpf.ModuleID, methods []libpf.MethodToken) error
}

// FunctionControl is handed over by the runtime when it is about to
// recompile a method (ICorProfilerFunctionControl). It is only valid during
// the GetReJITParameters callback it was passed to.
type FunctionControl interface {
	SetCodegenFlags(flags uint32) error
	SetILFunctionBody(body []byte) error
}

// Codegen flags for FunctionControl.SetCodegenFlags (COR_PRF_CODEGEN_FLAGS).
const (
	CodegenDisableInlining         uint32 = 0x1
	CodegenDisableAllOptimizations uint32 = 0x2
)

// Capabilities is the set of optional runtime capabilities, found by probing
// a ProfilerInfo. A nil field means the runtime lacks the capability.
type Capabilities struct {
	Inliners          InlinerEnumerator
	ReJITWithInliners ReJITWithInlinersRequester
}

// Probe detects the optional capabilities of info.
func Probe(info ProfilerInfo) Capabilities {
	var caps Capabilities
	if e, ok := info.(InlinerEnumerator); ok {
		caps.Inliners = e
	}
	if r, ok := info.(ReJITWithInlinersRequester); ok {
		caps.ReJITWithInliners = r
	}
	return caps
}
