// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package registry // import "go.opentelemetry.io/clrprofiler/registry"

import (
	"go.opentelemetry.io/clrprofiler/host"
	"go.opentelemetry.io/clrprofiler/integration"
	"go.opentelemetry.io/clrprofiler/libpf"
	"go.opentelemetry.io/clrprofiler/libpf/xsync"
	"go.opentelemetry.io/clrprofiler/metadata"
)

// MethodState is a snapshot of the rewrite state of a method. Every field
// is optional until populated.
type MethodState struct {
	Control     host.FunctionControl
	Function    *metadata.FunctionInfo
	Replacement *integration.MethodReplacement
}

// Method is the record of one method definition.
type Method struct {
	token  libpf.MethodToken
	module *Module

	state       xsync.Mutex[methodState]
	inlinerScan xsync.Mutex[inlinerScanState]
}

type inlinerScanState struct {
	// scanned holds the precompiled modules completely searched for inliners.
	scanned libpf.Set[libpf.ModuleID]
}

type methodState struct {
	MethodState
	functionIDs libpf.Set[libpf.FunctionID]
}

func newMethod(token libpf.MethodToken, module *Module) *Method {
	return &Method{
		token:  token,
		module: module,
		state: xsync.NewMutex(methodState{
			functionIDs: libpf.Set[libpf.FunctionID]{},
		}),
		inlinerScan: xsync.NewMutex(inlinerScanState{
			scanned: libpf.Set[libpf.ModuleID]{},
		}),
	}
}

// Token returns the MethodDef token.
func (m *Method) Token() libpf.MethodToken {
	return m.token
}

// Module returns the owning module record.
func (m *Method) Module() *Module {
	return m.module
}

// Key returns the module and token pair identifying the method.
func (m *Method) Key() libpf.Method {
	return libpf.Method{Module: m.module.id, Token: m.token}
}

// State returns a snapshot of the rewrite state.
func (m *Method) State() MethodState {
	state := m.state.Lock()
	defer m.state.Unlock(&state)
	return state.MethodState
}

// Control returns the function control handed over by the runtime, if any.
func (m *Method) Control() host.FunctionControl {
	return m.State().Control
}

// SetControl stores the function control of the current ReJIT, replacing
// the one of an earlier ReJIT.
func (m *Method) SetControl(control host.FunctionControl) {
	m.state.With(func(state *methodState) {
		state.Control = control
	})
}

// FunctionInfo returns the resolved function description, if any.
func (m *Method) FunctionInfo() *metadata.FunctionInfo {
	return m.State().Function
}

// SetFunctionInfo stores info unless a description is already present, and
// reports whether it was stored.
func (m *Method) SetFunctionInfo(info metadata.FunctionInfo) bool {
	stored := false
	m.state.With(func(state *methodState) {
		if state.Function == nil {
			state.Function = &info
			stored = true
		}
	})
	return stored
}

// Replacement returns the replacement the method was matched by, if any.
func (m *Method) Replacement() *integration.MethodReplacement {
	return m.State().Replacement
}

// SetReplacement stores r unless a replacement is already present, and
// reports whether it was stored.
func (m *Method) SetReplacement(r *integration.MethodReplacement) bool {
	stored := false
	m.state.With(func(state *methodState) {
		if state.Replacement == nil {
			state.Replacement = r
			stored = true
		}
	})
	return stored
}

// AddFunctionID records an instantiation of the method and reports whether
// it was seen for the first time.
func (m *Method) AddFunctionID(id libpf.FunctionID) bool {
	added := false
	m.state.With(func(state *methodState) {
		added = state.functionIDs.Add(id)
	})
	return added
}

// FunctionIDs returns the instantiations seen so far.
func (m *Method) FunctionIDs() []libpf.FunctionID {
	state := m.state.Lock()
	defer m.state.Unlock(&state)
	return state.functionIDs.ToSlice()
}

// InlinersScanned reports whether the precompiled module was completely
// searched for inliners of this method.
func (m *Method) InlinersScanned(precompiled libpf.ModuleID) bool {
	state := m.inlinerScan.Lock()
	defer m.inlinerScan.Unlock(&state)
	return state.scanned.Contains(precompiled)
}

// MarkInlinersScanned records that the precompiled module was completely
// searched for inliners of this method.
func (m *Method) MarkInlinersScanned(precompiled libpf.ModuleID) {
	m.inlinerScan.With(func(state *inlinerScanState) {
		state.scanned.Add(precompiled)
	})
}

// ScanInliners runs scan unless the precompiled module was already
// completely scanned for this method. The check, the scan and the marking
// happen under one lock, so concurrent scans of the same method and module
// are serialized and the second one is skipped. scan returns the inliners it
// found and whether the result was complete; only then is the module marked.
// Inliners found by an incomplete scan are returned again by the next one,
// so a failed ReJIT of them is retried.
//
// ScanInliners returns the found inliners and whether scan was run.
func (m *Method) ScanInliners(precompiled libpf.ModuleID,
	scan func() (inliners []libpf.Method, complete bool)) (inliners []libpf.Method, ran bool) {
	state := m.inlinerScan.Lock()
	defer m.inlinerScan.Unlock(&state)
	if state.scanned.Contains(precompiled) {
		return nil, false
	}
	inliners, complete := scan()
	if complete {
		state.scanned.Add(precompiled)
	}
	return inliners, true
}

// forgetModule drops the module from the inliner scan state.
func (m *Method) forgetModule(id libpf.ModuleID) {
	m.inlinerScan.With(func(state *inlinerScanState) {
		delete(state.scanned, id)
	})
}
