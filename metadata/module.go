// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package metadata defines the view of the runtime's module metadata that
// the ReJIT engine consumes, and parses ECMA-335 method signatures.
package metadata // import "go.opentelemetry.io/clrprofiler/metadata"

import (
	"go.opentelemetry.io/clrprofiler/assembly"
	"go.opentelemetry.io/clrprofiler/libpf"
)

// ModuleFlags mirrors COR_PRF_MODULE_FLAGS.
type ModuleFlags uint32

const (
	ModuleFlagDisk           ModuleFlags = 0x1
	ModuleFlagNGen           ModuleFlags = 0x2
	ModuleFlagDynamic        ModuleFlags = 0x4
	ModuleFlagCollectible    ModuleFlags = 0x8
	ModuleFlagResource       ModuleFlags = 0x10
	ModuleFlagFlatLayout     ModuleFlags = 0x20
	ModuleFlagWindowsRuntime ModuleFlags = 0x40
)

// AssemblyInfo describes the assembly a module belongs to.
type AssemblyInfo struct {
	ID               libpf.AssemblyID
	Name             string
	AppDomainID      libpf.AppDomainID
	AppDomainName    string
	ManifestModuleID libpf.ModuleID
}

// ModuleInfo is what the runtime reports about a loaded module.
type ModuleInfo struct {
	ID       libpf.ModuleID
	Path     string
	Assembly AssemblyInfo
	Flags    ModuleFlags
}

// IsValid reports whether the info refers to an actual module.
func (m ModuleInfo) IsValid() bool {
	return m.ID != 0
}

// IsNGen reports whether the module was loaded from a precompiled native image.
func (m ModuleInfo) IsNGen() bool {
	return m.Flags&ModuleFlagNGen != 0
}

// IsDynamic reports whether the module was emitted at runtime (Reflection.Emit).
func (m ModuleInfo) IsDynamic() bool {
	return m.Flags&ModuleFlagDynamic != 0
}

// IsWindowsRuntime reports whether the module is a WinRT metadata module,
// which cannot be instrumented.
func (m ModuleInfo) IsWindowsRuntime() bool {
	return m.Flags&ModuleFlagWindowsRuntime != 0
}

// Interfaces is the set of metadata capabilities of one module: read access
// for matching, write access for the IL rewriter.
type Interfaces struct {
	Import         Import
	AssemblyImport AssemblyImport
	Emit           Emit
	AssemblyEmit   AssemblyEmit
}

// ModuleMetadata is everything the IL rewriter needs about a module once one
// of its methods has been selected for ReJIT.
type ModuleMetadata struct {
	Interfaces

	Module   ModuleInfo
	Assembly assembly.Reference

	// CorLib is the identity of the core library loaded in the module's
	// app domain, used by the rewriter to emit references to it.
	CorLib *assembly.Reference
}

// AppDomainID returns the app domain the module was loaded into.
func (m *ModuleMetadata) AppDomainID() libpf.AppDomainID {
	return m.Module.Assembly.AppDomainID
}
