// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package integration // import "go.opentelemetry.io/clrprofiler/integration"

import (
	"fmt"

	log "github.com/sirupsen/logrus"

	"go.opentelemetry.io/clrprofiler/assembly"
	"go.opentelemetry.io/clrprofiler/libpf"
	"go.opentelemetry.io/clrprofiler/metadata"
)

// FilterByName drops the integrations whose name is in disabled.
func FilterByName(integrations []Integration, disabled libpf.Set[string]) []Integration {
	enabled := make([]Integration, 0, len(integrations))
	for _, i := range integrations {
		if disabled.Contains(i.Name) {
			log.Debugf("Integration %s is disabled", i.Name)
			continue
		}
		enabled = append(enabled, i)
	}
	return enabled
}

// Flatten expands integrations to one entry per replacement, keeping only
// the replacements whose wrapper action is applied in mode.
func Flatten(integrations []Integration, mode Mode) []IntegrationMethod {
	var flattened []IntegrationMethod
	for i := range integrations {
		integration := &integrations[i]
		for j := range integration.Replacements {
			r := &integration.Replacements[j]
			if !mode.Accepts(r.Wrapper.Action) {
				continue
			}
			flattened = append(flattened, IntegrationMethod{
				Name:        integration.Name,
				Replacement: r,
			})
		}
	}
	return flattened
}

// FilterByCaller drops the entries restricted to a caller assembly other than
// the module's assembly.
func FilterByCaller(methods []IntegrationMethod, asm metadata.AssemblyInfo) []IntegrationMethod {
	enabled := make([]IntegrationMethod, 0, len(methods))
	for _, m := range methods {
		caller := m.Replacement.Caller.Assembly.Name
		if caller == "" || caller == asm.Name {
			enabled = append(enabled, m)
		}
	}
	return enabled
}

// meetsRequirements reports whether ref is the target assembly of r in a
// version within the replacement's inclusive range.
func meetsRequirements(ref *assembly.Reference, r *MethodReplacement) bool {
	target := &r.Target
	return ref.Name == target.Assembly.Name &&
		ref.Version.InRange(target.MinVersion, target.MaxVersion)
}

// FilterByTarget keeps the entries whose target assembly is the module's own
// assembly or one of the assemblies it references, within the version range.
// The reference strings are parsed through cache, which may be nil.
func FilterByTarget(methods []IntegrationMethod, imp metadata.AssemblyImport,
	cache *assembly.ParseCache) ([]IntegrationMethod, error) {
	if len(methods) == 0 {
		return nil, nil
	}
	own, err := imp.AssemblyMetadata()
	if err != nil {
		return nil, fmt.Errorf("failed to read assembly metadata: %w", err)
	}
	refNames, err := imp.AssemblyReferences()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate assembly references of %s: %w", own.Name, err)
	}
	refs := make([]assembly.Reference, 0, len(refNames))
	for _, name := range refNames {
		refs = append(refs, cache.Parse(name))
	}

	enabled := make([]IntegrationMethod, 0, len(methods))
	for _, m := range methods {
		if meetsRequirements(&own, m.Replacement) {
			enabled = append(enabled, m)
			continue
		}
		for i := range refs {
			if meetsRequirements(&refs[i], m.Replacement) {
				enabled = append(enabled, m)
				break
			}
		}
	}
	return enabled, nil
}

// FilterByTargetAssemblyName drops the entries whose target assembly is excluded.
func FilterByTargetAssemblyName(methods []IntegrationMethod, excluded libpf.Set[string]) []IntegrationMethod {
	enabled := make([]IntegrationMethod, 0, len(methods))
	for _, m := range methods {
		if excluded.Contains(m.Replacement.Target.Assembly.Name) {
			continue
		}
		enabled = append(enabled, m)
	}
	return enabled
}
