// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package registry // import "go.opentelemetry.io/clrprofiler/registry"

import (
	"cmp"
	"slices"

	"go.opentelemetry.io/clrprofiler/libpf"
	"go.opentelemetry.io/clrprofiler/libpf/xsync"
	"go.opentelemetry.io/clrprofiler/metadata"
)

// Module is the record of one loaded module.
type Module struct {
	id       libpf.ModuleID
	metadata xsync.Once[*metadata.ModuleMetadata]
	methods  xsync.Mutex[map[libpf.MethodToken]*Method]
}

func newModule(id libpf.ModuleID) *Module {
	return &Module{
		id:      id,
		methods: xsync.NewMutex(map[libpf.MethodToken]*Method{}),
	}
}

// ID returns the module id.
func (m *Module) ID() libpf.ModuleID {
	return m.id
}

// Metadata returns the module metadata, or nil if it was not loaded yet.
func (m *Module) Metadata() *metadata.ModuleMetadata {
	if md := m.metadata.Get(); md != nil {
		return *md
	}
	return nil
}

// LoadMetadata returns the module metadata, calling load if it is not set.
// Concurrent callers wait for the first load. A failed load is retried by
// the next caller.
func (m *Module) LoadMetadata(load func() (*metadata.ModuleMetadata, error)) (*metadata.ModuleMetadata, error) {
	md, err := m.metadata.GetOrInit(load)
	if err != nil {
		return nil, err
	}
	return *md, nil
}

// SetMetadata stores md unless metadata is already set, and returns the
// metadata in effect.
func (m *Module) SetMetadata(md *metadata.ModuleMetadata) *metadata.ModuleMetadata {
	stored, _ := m.LoadMetadata(func() (*metadata.ModuleMetadata, error) {
		return md, nil
	})
	return stored
}

// GetOrCreateMethod returns the record of token, creating it on first use.
func (m *Module) GetOrCreateMethod(token libpf.MethodToken) *Method {
	methods := m.methods.Lock()
	defer m.methods.Unlock(&methods)
	if method, ok := (*methods)[token]; ok {
		return method
	}
	method := newMethod(token, m)
	(*methods)[token] = method
	return method
}

// Method returns the record of token if it exists.
func (m *Module) Method(token libpf.MethodToken) (*Method, bool) {
	methods := m.methods.Lock()
	defer m.methods.Unlock(&methods)
	method, ok := (*methods)[token]
	return method, ok
}

// Contains reports whether a record for token exists.
func (m *Module) Contains(token libpf.MethodToken) bool {
	_, ok := m.Method(token)
	return ok
}

// Methods returns a snapshot of the method records ordered by token.
func (m *Module) Methods() []*Method {
	methods := m.methods.Lock()
	defer m.methods.Unlock(&methods)
	result := make([]*Method, 0, len(*methods))
	for _, method := range *methods {
		result = append(result, method)
	}
	slices.SortFunc(result, func(a, b *Method) int {
		return cmp.Compare(a.token, b.token)
	})
	return result
}
