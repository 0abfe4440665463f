// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package hostsim // import "go.opentelemetry.io/clrprofiler/hostsim"

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"

	"go.opentelemetry.io/clrprofiler/libpf"
	"go.opentelemetry.io/clrprofiler/metadata"
)

// Module fixtures describe a module in TOML:
//
//	path = "/app/System.Net.Http.dll"
//	assembly = "System.Net.Http, Version=4.2.0.0, Culture=neutral, PublicKeyToken=b03f5f7f11d50a3a"
//	app_domain = 1
//	flags = ["ngen"]
//	references = ["System.Runtime, Version=4.2.0.0"]
//
//	[[types]]
//	name = "System.Net.Http.HttpClientHandler"
//
//	  [[types.methods]]
//	  name = "SendAsync"
//	  return = "System.Threading.Tasks.Task`1[System.Net.Http.HttpResponseMessage]"
//	  params = ["System.Net.Http.HttpRequestMessage", "valuetype System.Threading.CancellationToken"]
//
//	[[inlines]]
//	inliner = "App.Program::Main"
//	target_assembly = "System.Net.Http"
//	target = "System.Net.Http.HttpClientHandler::SendAsync"

type methodFixture struct {
	Name          string   `toml:"name"`
	Static        bool     `toml:"static"`
	GenericParams int      `toml:"generic_params"`
	Return        string   `toml:"return"`
	Params        []string `toml:"params"`
}

type typeFixture struct {
	Name    string          `toml:"name"`
	Methods []methodFixture `toml:"methods"`
}

type inlineFixture struct {
	Inliner        string `toml:"inliner"`
	TargetAssembly string `toml:"target_assembly"`
	Target         string `toml:"target"`
}

// ModuleFixture is the description of a module.
type ModuleFixture struct {
	Path       string          `toml:"path"`
	Assembly   string          `toml:"assembly"`
	AppDomain  uint64          `toml:"app_domain"`
	Flags      []string        `toml:"flags"`
	References []string        `toml:"references"`
	Types      []typeFixture   `toml:"types"`
	Inlines    []inlineFixture `toml:"inlines"`
}

var fixtureFlags = map[string]metadata.ModuleFlags{
	"disk":    metadata.ModuleFlagDisk,
	"ngen":    metadata.ModuleFlagNGen,
	"dynamic": metadata.ModuleFlagDynamic,
	"winrt":   metadata.ModuleFlagWindowsRuntime,
}

// LoadFixture reads a module fixture file.
func LoadFixture(path string) (*ModuleFixture, error) {
	var f ModuleFixture
	if _, err := toml.DecodeFile(path, &f); err != nil {
		return nil, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	if f.Path == "" {
		f.Path = path
	}
	return &f, nil
}

// DecodeFixture reads a module fixture from TOML text.
func DecodeFixture(data string) (*ModuleFixture, error) {
	var f ModuleFixture
	if _, err := toml.Decode(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse TOML: %w", err)
	}
	return &f, nil
}

// LoadFixtureDir reads all *.toml module fixtures of dir in name order.
func LoadFixtureDir(dir string) ([]*ModuleFixture, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var fixtures []*ModuleFixture
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".toml" {
			continue
		}
		f, err := LoadFixture(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		fixtures = append(fixtures, f)
	}
	return fixtures, nil
}

// AppDomainID returns the app domain the module is loaded into.
func (f *ModuleFixture) AppDomainID() libpf.AppDomainID {
	return libpf.AppDomainID(max(f.AppDomain, 1))
}

// Build creates the simulated module. Inlines are resolved separately by
// Host.ResolveInlines once all modules are loaded.
func (f *ModuleFixture) Build() (*Module, error) {
	if f.Assembly == "" {
		return nil, fmt.Errorf("%s: missing assembly", f.Path)
	}
	m := NewModule(f.Path, f.Assembly)

	var flags metadata.ModuleFlags
	for _, name := range f.Flags {
		flag, ok := fixtureFlags[strings.ToLower(name)]
		if !ok {
			return nil, fmt.Errorf("%s: unknown module flag %q", f.Path, name)
		}
		flags |= flag
	}
	m.SetFlags(flags)

	for _, ref := range f.References {
		m.AddReference(ref)
	}
	// Types first, so that signatures referencing them resolve to TypeDefs.
	typeDefs := make([]libpf.Token, len(f.Types))
	for i, t := range f.Types {
		tok, err := m.AddType(t.Name)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f.Path, err)
		}
		typeDefs[i] = tok
	}
	for i, t := range f.Types {
		for _, method := range t.Methods {
			ret := method.Return
			if ret == "" {
				ret = "System.Void"
			}
			if _, err := m.AddMethod(typeDefs[i], method.Name, method.Static, method.GenericParams,
				ret, method.Params...); err != nil {
				return nil, fmt.Errorf("%s: type %s: %w", f.Path, t.Name, err)
			}
		}
	}
	return m, nil
}

// splitMethod splits "Type::Method".
func splitMethod(s string) (typeName, method string, err error) {
	typeName, method, ok := strings.Cut(s, "::")
	if !ok || typeName == "" || method == "" {
		return "", "", fmt.Errorf("invalid method %q, want Type::Method", s)
	}
	return typeName, method, nil
}

// ResolveInlines registers the inlines declared by the fixture of the
// loaded module id. Target assemblies are looked up among all loaded modules.
func (h *Host) ResolveInlines(id libpf.ModuleID, f *ModuleFixture) error {
	m, ok := h.Module(id)
	if !ok {
		return fmt.Errorf("module %v not loaded", id)
	}
	for _, inline := range f.Inlines {
		inlinerType, inlinerMethod, err := splitMethod(inline.Inliner)
		if err != nil {
			return err
		}
		inliner, err := m.FindMethod(inlinerType, inlinerMethod)
		if err != nil {
			return err
		}
		targetType, targetMethod, err := splitMethod(inline.Target)
		if err != nil {
			return err
		}
		target, ok := h.moduleByAssembly(inline.TargetAssembly)
		if !ok {
			return fmt.Errorf("target assembly %s not loaded", inline.TargetAssembly)
		}
		inlinee, err := target.FindMethod(targetType, targetMethod)
		if err != nil {
			return err
		}
		h.AddInliner(id,
			libpf.Method{Module: target.info.ID, Token: inlinee},
			libpf.Method{Module: id, Token: inliner})
	}
	return nil
}

func (h *Host) moduleByAssembly(name string) (*Module, bool) {
	s := h.state.Lock()
	defer h.state.Unlock(&s)
	ids := make([]libpf.ModuleID, 0, len(s.modules))
	for id := range s.modules {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		if m := s.modules[id]; m.info.Assembly.Name == name {
			return m, true
		}
	}
	return nil, false
}
