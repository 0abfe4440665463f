// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package hostsim simulates the managed runtime side of the ReJIT engine:
// loaded modules with their metadata, compiled functions, precompiled
// inliner data and a ReJIT API that records every request.
package hostsim // import "go.opentelemetry.io/clrprofiler/hostsim"

import (
	"fmt"
	"slices"

	"golang.org/x/sys/unix"

	"go.opentelemetry.io/clrprofiler/host"
	"go.opentelemetry.io/clrprofiler/libpf"
	"go.opentelemetry.io/clrprofiler/libpf/xsync"
	"go.opentelemetry.io/clrprofiler/metadata"
)

// Request is one recorded RequestReJIT call.
type Request struct {
	Methods []libpf.Method
	// ThreadID is the OS thread the call was made from.
	ThreadID int
}

type inlineeKey struct {
	precompiled libpf.ModuleID
	inlinee     libpf.Method
}

type inlinerData struct {
	inliners []libpf.Method
	// incomplete is the number of queries still answered as incomplete.
	incomplete int
	queries    int
}

type state struct {
	nextModuleID libpf.ModuleID
	modules      map[libpf.ModuleID]*Module
	functions    map[libpf.FunctionID]libpf.Method
	inliners     map[inlineeKey]*inlinerData

	initThread int
	requests   []Request
	violations []string
	rejitErr   error
}

// Host is a simulated runtime. It implements host.ProfilerInfo and
// host.InlinerEnumerator and is safe for concurrent use.
type Host struct {
	state xsync.Mutex[state]
}

var (
	_ host.ProfilerInfo      = (*Host)(nil)
	_ host.InlinerEnumerator = (*Host)(nil)
)

// New creates a Host without modules.
func New() *Host {
	return &Host{
		state: xsync.NewMutex(state{
			nextModuleID: 0x1000,
			modules:      map[libpf.ModuleID]*Module{},
			functions:    map[libpf.FunctionID]libpf.Method{},
			inliners:     map[inlineeKey]*inlinerData{},
		}),
	}
}

// Load assigns a module id to m and makes it visible to the profiler API.
// The caller is responsible for delivering the load notification.
func (h *Host) Load(m *Module, appDomain libpf.AppDomainID) libpf.ModuleID {
	s := h.state.Lock()
	defer h.state.Unlock(&s)
	id := s.nextModuleID
	s.nextModuleID += 0x10
	m.info.ID = id
	m.info.Assembly.ID = libpf.AssemblyID(id + 1)
	m.info.Assembly.ManifestModuleID = id
	m.info.Assembly.AppDomainID = appDomain
	m.info.Assembly.AppDomainName = fmt.Sprintf("AppDomain %d", appDomain)
	s.modules[id] = m
	return id
}

// Unload removes a module. Later queries for it fail with host.ErrInvalidArg.
func (h *Host) Unload(id libpf.ModuleID) {
	h.state.With(func(s *state) {
		delete(s.modules, id)
	})
}

// Module returns a loaded module.
func (h *Host) Module(id libpf.ModuleID) (*Module, bool) {
	s := h.state.Lock()
	defer h.state.Unlock(&s)
	m, ok := s.modules[id]
	return m, ok
}

// AddFunction registers a compiled instantiation of a method.
func (h *Host) AddFunction(id libpf.FunctionID, method libpf.Method) {
	h.state.With(func(s *state) {
		s.functions[id] = method
	})
}

// AddInliner records that inliner, a method of a precompiled module, has
// inlined inlinee.
func (h *Host) AddInliner(precompiled libpf.ModuleID, inlinee, inliner libpf.Method) {
	h.state.With(func(s *state) {
		d := s.inlinerData(precompiled, inlinee)
		d.inliners = append(d.inliners, inliner)
	})
}

// SetInlinersIncomplete makes the next n inliner queries for inlinee in
// the precompiled module report incomplete data.
func (h *Host) SetInlinersIncomplete(precompiled libpf.ModuleID, inlinee libpf.Method, n int) {
	h.state.With(func(s *state) {
		s.inlinerData(precompiled, inlinee).incomplete = n
	})
}

// InlinerQueries returns how often inliners of inlinee in the precompiled
// module were queried.
func (h *Host) InlinerQueries(precompiled libpf.ModuleID, inlinee libpf.Method) int {
	s := h.state.Lock()
	defer h.state.Unlock(&s)
	if d, ok := s.inliners[inlineeKey{precompiled, inlinee}]; ok {
		return d.queries
	}
	return 0
}

func (s *state) inlinerData(precompiled libpf.ModuleID, inlinee libpf.Method) *inlinerData {
	key := inlineeKey{precompiled, inlinee}
	d, ok := s.inliners[key]
	if !ok {
		d = &inlinerData{}
		s.inliners[key] = d
	}
	return d
}

// FailReJIT makes every following RequestReJIT call fail with err. A nil
// err restores success.
func (h *Host) FailReJIT(err error) {
	h.state.With(func(s *state) {
		s.rejitErr = err
	})
}

// Requests returns the recorded ReJIT requests in call order.
func (h *Host) Requests() []Request {
	s := h.state.Lock()
	defer h.state.Unlock(&s)
	return slices.Clone(s.requests)
}

// RequestedMethods returns all methods of all recorded requests in call order.
func (h *Host) RequestedMethods() []libpf.Method {
	var methods []libpf.Method
	for _, r := range h.Requests() {
		methods = append(methods, r.Methods...)
	}
	return methods
}

// Violations returns the API contract violations observed: ReJIT requests
// or inliner queries from a thread other than the initialized one, and
// repeated thread initialization.
func (h *Host) Violations() []string {
	s := h.state.Lock()
	defer h.state.Unlock(&s)
	return slices.Clone(s.violations)
}

func (h *Host) InitializeCurrentThread() error {
	tid := unix.Gettid()
	s := h.state.Lock()
	defer h.state.Unlock(&s)
	if s.initThread != 0 {
		s.violations = append(s.violations,
			fmt.Sprintf("InitializeCurrentThread called again from thread %d", tid))
	}
	s.initThread = tid
	return nil
}

func (h *Host) RequestReJIT(modules []libpf.ModuleID, methods []libpf.MethodToken) error {
	tid := unix.Gettid()
	s := h.state.Lock()
	defer h.state.Unlock(&s)
	if len(modules) != len(methods) || len(methods) == 0 {
		return host.ErrInvalidArg
	}
	if s.initThread != tid {
		s.violations = append(s.violations,
			fmt.Sprintf("RequestReJIT from thread %d, initialized thread is %d", tid, s.initThread))
	}
	if s.rejitErr != nil {
		return s.rejitErr
	}
	s.requests = append(s.requests, Request{
		Methods:  libpf.ZipMethods(modules, methods),
		ThreadID: tid,
	})
	return nil
}

func (h *Host) GetModuleInfo(id libpf.ModuleID) (metadata.ModuleInfo, error) {
	m, ok := h.Module(id)
	if !ok {
		return metadata.ModuleInfo{}, fmt.Errorf("module %v: %w", id, host.ErrInvalidArg)
	}
	return m.Info(), nil
}

func (h *Host) GetModuleMetadata(id libpf.ModuleID) (metadata.Interfaces, error) {
	m, ok := h.Module(id)
	if !ok {
		return metadata.Interfaces{}, fmt.Errorf("module %v: %w", id, host.ErrInvalidArg)
	}
	return m.Interfaces(), nil
}

func (h *Host) GetFunctionInfo(id libpf.FunctionID) (libpf.Method, error) {
	s := h.state.Lock()
	defer h.state.Unlock(&s)
	m, ok := s.functions[id]
	if !ok {
		return libpf.Method{}, fmt.Errorf("function %v: %w", id, host.ErrInvalidArg)
	}
	return m, nil
}

func (h *Host) EnumInliners(precompiled libpf.ModuleID, inlinee libpf.Method) ([]libpf.Method, bool, error) {
	tid := unix.Gettid()
	s := h.state.Lock()
	defer h.state.Unlock(&s)
	if s.initThread != tid {
		s.violations = append(s.violations,
			fmt.Sprintf("EnumInliners from thread %d, initialized thread is %d", tid, s.initThread))
	}
	if _, ok := s.modules[precompiled]; !ok {
		return nil, false, host.ErrInvalidArg
	}
	d, ok := s.inliners[inlineeKey{precompiled, inlinee}]
	if !ok {
		return nil, false, nil
	}
	d.queries++
	if d.incomplete > 0 {
		d.incomplete--
		return nil, true, nil
	}
	return slices.Clone(d.inliners), false, nil
}

// WithoutInliners returns a view of h that lacks the inliner capability,
// like runtimes before ICorProfilerInfo6.
func (h *Host) WithoutInliners() host.ProfilerInfo {
	return baseHost{h}
}

type baseHost struct {
	h *Host
}

func (b baseHost) InitializeCurrentThread() error { return b.h.InitializeCurrentThread() }

func (b baseHost) RequestReJIT(modules []libpf.ModuleID, methods []libpf.MethodToken) error {
	return b.h.RequestReJIT(modules, methods)
}

func (b baseHost) GetModuleInfo(id libpf.ModuleID) (metadata.ModuleInfo, error) {
	return b.h.GetModuleInfo(id)
}

func (b baseHost) GetModuleMetadata(id libpf.ModuleID) (metadata.Interfaces, error) {
	return b.h.GetModuleMetadata(id)
}

func (b baseHost) GetFunctionInfo(id libpf.FunctionID) (libpf.Method, error) {
	return b.h.GetFunctionInfo(id)
}
