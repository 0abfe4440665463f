// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package registry tracks, per loaded module and per method, the state that
// must be complete before a method body can be rewritten.
//
// Locking: the module map lock may be held while taking a module's method
// map lock, never the reverse. The list of precompiled modules has its own
// lock that is never nested with the others.
package registry // import "go.opentelemetry.io/clrprofiler/registry"

import (
	"cmp"
	"slices"

	"go.opentelemetry.io/clrprofiler/libpf"
	"go.opentelemetry.io/clrprofiler/libpf/xsync"
)

// Registry is the two level map from module to method state.
type Registry struct {
	modules     xsync.RWMutex[map[libpf.ModuleID]*Module]
	precompiled xsync.Mutex[[]libpf.ModuleID]
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		modules: xsync.NewRWMutex(map[libpf.ModuleID]*Module{}),
	}
}

// GetOrCreateModule returns the module record of id, creating it on first use.
func (r *Registry) GetOrCreateModule(id libpf.ModuleID) *Module {
	if m, ok := r.Module(id); ok {
		return m
	}
	modules := r.modules.WLock()
	defer r.modules.WUnlock(&modules)
	if m, ok := (*modules)[id]; ok {
		return m
	}
	m := newModule(id)
	(*modules)[id] = m
	return m
}

// Module returns the module record of id if it exists.
func (r *Registry) Module(id libpf.ModuleID) (*Module, bool) {
	modules := r.modules.RLock()
	defer r.modules.RUnlock(&modules)
	m, ok := (*modules)[id]
	return m, ok
}

// GetOrCreateMethod returns the method record of token in module, creating
// the module and method records on first use.
func (r *Registry) GetOrCreateMethod(module libpf.ModuleID, token libpf.MethodToken) *Method {
	return r.GetOrCreateModule(module).GetOrCreateMethod(token)
}

// Method returns the method record of token in module if it exists.
func (r *Registry) Method(module libpf.ModuleID, token libpf.MethodToken) (*Method, bool) {
	m, ok := r.Module(module)
	if !ok {
		return nil, false
	}
	return m.Method(token)
}

// Contains reports whether a record for the method exists.
func (r *Registry) Contains(module libpf.ModuleID, token libpf.MethodToken) bool {
	modules := r.modules.RLock()
	defer r.modules.RUnlock(&modules)
	m, ok := (*modules)[module]
	return ok && m.Contains(token)
}

// RemoveModule drops the module with all its methods. The module is also
// forgotten as precompiled module and as already scanned for inliners, so
// that a module reusing the id starts from scratch. It reports whether the
// module was known.
func (r *Registry) RemoveModule(id libpf.ModuleID) bool {
	modules := r.modules.WLock()
	_, found := (*modules)[id]
	delete(*modules, id)
	r.modules.WUnlock(&modules)

	precompiled := r.precompiled.Lock()
	if i := slices.Index(*precompiled, id); i >= 0 {
		*precompiled = slices.Delete(*precompiled, i, i+1)
		found = true
	}
	r.precompiled.Unlock(&precompiled)

	for _, m := range r.Modules() {
		for _, method := range m.Methods() {
			method.forgetModule(id)
		}
	}
	return found
}

// Modules returns a snapshot of all module records ordered by id.
func (r *Registry) Modules() []*Module {
	modules := r.modules.RLock()
	defer r.modules.RUnlock(&modules)
	result := make([]*Module, 0, len(*modules))
	for _, m := range *modules {
		result = append(result, m)
	}
	slices.SortFunc(result, func(a, b *Module) int {
		return cmp.Compare(a.id, b.id)
	})
	return result
}

// AddPrecompiledModule remembers a precompiled module so that it is searched
// for inliners of methods rewritten later. It reports whether id was new.
func (r *Registry) AddPrecompiledModule(id libpf.ModuleID) bool {
	precompiled := r.precompiled.Lock()
	defer r.precompiled.Unlock(&precompiled)
	if slices.Contains(*precompiled, id) {
		return false
	}
	*precompiled = append(*precompiled, id)
	return true
}

// PrecompiledModules returns a snapshot of the precompiled modules in load order.
func (r *Registry) PrecompiledModules() []libpf.ModuleID {
	precompiled := r.precompiled.Lock()
	defer r.precompiled.Unlock(&precompiled)
	return slices.Clone(*precompiled)
}
