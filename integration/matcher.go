// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package integration // import "go.opentelemetry.io/clrprofiler/integration"

import (
	"go.opentelemetry.io/clrprofiler/assembly"
	"go.opentelemetry.io/clrprofiler/libpf"
	"go.opentelemetry.io/clrprofiler/metadata"
)

// Matcher runs the filter pipeline with the process wide settings. The
// stages are applied in a fixed order: name, flatten, caller, target,
// excluded target assembly.
type Matcher struct {
	mode     Mode
	disabled libpf.Set[string]
	excluded libpf.Set[string]
	cache    *assembly.ParseCache
}

// NewMatcher creates a Matcher. cache may be nil to parse references uncached.
func NewMatcher(mode Mode, disabled, excluded []string, cache *assembly.ParseCache) *Matcher {
	return &Matcher{
		mode:     mode,
		disabled: libpf.SliceToSet(disabled),
		excluded: libpf.SliceToSet(excluded),
		cache:    cache,
	}
}

// Mode returns the instrumentation mode.
func (m *Matcher) Mode() Mode {
	return m.mode
}

// Prepare applies the module independent stages: disabled names and the
// flattening by mode.
func (m *Matcher) Prepare(integrations []Integration) []IntegrationMethod {
	return Flatten(FilterByName(integrations, m.disabled), m.mode)
}

// FilterForModule applies the module dependent stages to prepared entries.
func (m *Matcher) FilterForModule(methods []IntegrationMethod, module metadata.ModuleInfo,
	imp metadata.AssemblyImport) ([]IntegrationMethod, error) {
	methods = FilterByCaller(methods, module.Assembly)
	methods, err := FilterByTarget(methods, imp, m.cache)
	if err != nil {
		return nil, err
	}
	return FilterByTargetAssemblyName(methods, m.excluded), nil
}
