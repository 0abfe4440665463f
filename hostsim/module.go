// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package hostsim // import "go.opentelemetry.io/clrprofiler/hostsim"

import (
	"fmt"
	"iter"
	"slices"
	"strings"
	"sync"

	"fortio.org/safecast"

	"go.opentelemetry.io/clrprofiler/assembly"
	"go.opentelemetry.io/clrprofiler/libpf"
	"go.opentelemetry.io/clrprofiler/metadata"
)

// methodAttrStatic is mdStatic of CorMethodAttr.
const methodAttrStatic = 0x0010

type typeDef struct {
	// name is the namespace qualified name, or the plain name of a nested type.
	name      string
	fullName  string
	enclosing libpf.Token
}

type memberRef struct {
	parent    libpf.Token
	name      string
	signature []byte
}

// Module is the simulated metadata of one loaded module. It implements all
// metadata interfaces.
type Module struct {
	info     metadata.ModuleInfo
	identity assembly.Reference

	mu          sync.RWMutex
	references  []string
	typeDefs    []typeDef
	typeRefs    []string
	typeSpecs   [][]byte
	methods     []metadata.MethodProps
	memberRefs  []memberRef
	userStrings []string
}

var (
	_ metadata.Import         = (*Module)(nil)
	_ metadata.AssemblyImport = (*Module)(nil)
	_ metadata.Emit           = (*Module)(nil)
	_ metadata.AssemblyEmit   = (*Module)(nil)
)

// NewModule creates an empty module of the assembly identified by
// displayName, e.g. "Foo, Version=1.5.0.0".
func NewModule(path, displayName string) *Module {
	identity := assembly.ParseReference(displayName)
	return &Module{
		info: metadata.ModuleInfo{
			Path:     path,
			Assembly: metadata.AssemblyInfo{Name: identity.Name},
		},
		identity: identity,
	}
}

// Info returns the module info as reported by the host.
func (m *Module) Info() metadata.ModuleInfo {
	return m.info
}

// Interfaces returns the metadata capability set of the module.
func (m *Module) Interfaces() metadata.Interfaces {
	return metadata.Interfaces{
		Import:         m,
		AssemblyImport: m,
		Emit:           m,
		AssemblyEmit:   m,
	}
}

// SetFlags sets the module flags.
func (m *Module) SetFlags(flags metadata.ModuleFlags) {
	m.info.Flags = flags
}

// AddReference adds an AssemblyRef row.
func (m *Module) AddReference(displayName string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.references = append(m.references, displayName)
}

func makeToken(typ libpf.TokenType, count int) libpf.Token {
	rid, err := safecast.Conv[uint32](count)
	if err != nil {
		panic(err)
	}
	return libpf.MakeToken(typ, rid)
}

// AddType adds a TypeDef. Nested types are named Outer+Inner; the
// enclosing type must have been added before.
func (m *Module) AddType(fullName string) (libpf.Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	def := typeDef{name: fullName, fullName: fullName}
	if i := strings.LastIndexByte(fullName, '+'); i >= 0 {
		enclosing := slices.IndexFunc(m.typeDefs, func(t typeDef) bool {
			return t.fullName == fullName[:i]
		})
		if enclosing < 0 {
			return libpf.NilToken, fmt.Errorf("enclosing type of %s not defined", fullName)
		}
		def.name = fullName[i+1:]
		def.enclosing = makeToken(libpf.TokenTypeTypeDef, enclosing+1)
	}
	m.typeDefs = append(m.typeDefs, def)
	return makeToken(libpf.TokenTypeTypeDef, len(m.typeDefs)), nil
}

// AddMethod adds a MethodDef to typeDef with a signature built from the
// rendered return and parameter type names.
func (m *Module) AddMethod(typeDef libpf.Token, name string, static bool, genericParams int,
	ret string, params ...string) (libpf.MethodToken, error) {
	sig, err := EncodeMethodSignature(!static, genericParams, ret, params, m.typeRef)
	if err != nil {
		return libpf.NilToken, fmt.Errorf("method %s: %w", name, err)
	}
	var attrs uint32
	if static {
		attrs |= methodAttrStatic
	}
	return m.AddRawMethod(typeDef, name, attrs, sig), nil
}

// AddRawMethod adds a MethodDef with the given signature blob.
func (m *Module) AddRawMethod(typeDef libpf.Token, name string, attrs uint32, sig []byte) libpf.MethodToken {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.methods = append(m.methods, metadata.MethodProps{
		Name:       name,
		Parent:     typeDef,
		Attributes: attrs,
		Signature:  sig,
	})
	return makeToken(libpf.TokenTypeMethodDef, len(m.methods))
}

// AddTypeSpec adds a TypeSpec row with the given signature blob.
func (m *Module) AddTypeSpec(sig []byte) libpf.Token {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.typeSpecs = append(m.typeSpecs, sig)
	return makeToken(libpf.TokenTypeTypeSpec, len(m.typeSpecs))
}

// typeRef returns the TypeRef of name, adding it on first use. Types defined
// in the module resolve to their TypeDef.
func (m *Module) typeRef(name string) libpf.Token {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i := slices.IndexFunc(m.typeDefs, func(t typeDef) bool { return t.fullName == name }); i >= 0 {
		return makeToken(libpf.TokenTypeTypeDef, i+1)
	}
	if i := slices.Index(m.typeRefs, name); i >= 0 {
		return makeToken(libpf.TokenTypeTypeRef, i+1)
	}
	m.typeRefs = append(m.typeRefs, name)
	return makeToken(libpf.TokenTypeTypeRef, len(m.typeRefs))
}

// row returns the zero based index of tok in a table of n rows.
func row(tok libpf.Token, typ libpf.TokenType, n int) (int, bool) {
	if tok.Type() != typ || tok.IsNil() || int(tok.RID()) > n {
		return 0, false
	}
	return int(tok.RID()) - 1, true
}

func (m *Module) TypeName(tok libpf.Token) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if i, ok := row(tok, libpf.TokenTypeTypeDef, len(m.typeDefs)); ok {
		return m.typeDefs[i].fullName, nil
	}
	if i, ok := row(tok, libpf.TokenTypeTypeRef, len(m.typeRefs)); ok {
		return m.typeRefs[i], nil
	}
	return "", fmt.Errorf("%w: type %v", metadata.ErrNotFound, tok)
}

func (m *Module) TypeSpecSignature(tok libpf.Token) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if i, ok := row(tok, libpf.TokenTypeTypeSpec, len(m.typeSpecs)); ok {
		return m.typeSpecs[i], nil
	}
	return nil, fmt.Errorf("%w: type spec %v", metadata.ErrNotFound, tok)
}

func (m *Module) FindTypeDefByName(name string, enclosing libpf.Token) (libpf.Token, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for i, t := range m.typeDefs {
		if t.name == name && t.enclosing == enclosing {
			return makeToken(libpf.TokenTypeTypeDef, i+1), nil
		}
	}
	return libpf.NilToken, fmt.Errorf("%w: type %s", metadata.ErrNotFound, name)
}

func (m *Module) EnumMethodsWithName(typeDef libpf.Token, name string) iter.Seq[libpf.MethodToken] {
	return func(yield func(libpf.MethodToken) bool) {
		m.mu.RLock()
		var tokens []libpf.MethodToken
		for i, props := range m.methods {
			if props.Parent == typeDef && props.Name == name {
				tokens = append(tokens, makeToken(libpf.TokenTypeMethodDef, i+1))
			}
		}
		m.mu.RUnlock()
		for _, tok := range tokens {
			if !yield(tok) {
				return
			}
		}
	}
}

func (m *Module) MethodProps(tok libpf.MethodToken) (metadata.MethodProps, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if i, ok := row(tok, libpf.TokenTypeMethodDef, len(m.methods)); ok {
		return m.methods[i], nil
	}
	return metadata.MethodProps{}, fmt.Errorf("%w: method %v", metadata.ErrNotFound, tok)
}

// FindMethod returns the first method of the named type with the given name.
func (m *Module) FindMethod(typeName, method string) (libpf.MethodToken, error) {
	typeDef, err := metadata.FindTypeDef(m, typeName)
	if err != nil {
		return libpf.NilToken, err
	}
	for tok := range m.EnumMethodsWithName(typeDef, method) {
		return tok, nil
	}
	return libpf.NilToken, fmt.Errorf("%w: method %s.%s", metadata.ErrNotFound, typeName, method)
}

func (m *Module) AssemblyMetadata() (assembly.Reference, error) {
	return m.identity, nil
}

func (m *Module) AssemblyReferences() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.references), nil
}

func (m *Module) DefineTypeRefByName(_ libpf.Token, name string) (libpf.Token, error) {
	return m.typeRef(name), nil
}

func (m *Module) DefineMemberRef(parent libpf.Token, name string, sig []byte) (libpf.Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.memberRefs = append(m.memberRefs, memberRef{parent: parent, name: name, signature: sig})
	return makeToken(libpf.TokenTypeMemberRef, len(m.memberRefs)), nil
}

func (m *Module) DefineUserString(s string) (libpf.Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.userStrings = append(m.userStrings, s)
	// User strings live in the #US heap, token type 0x70.
	return makeToken(0x70000000, len(m.userStrings)), nil
}

func (m *Module) DefineAssemblyRef(ref assembly.Reference) (libpf.Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.references = append(m.references, ref.String())
	return makeToken(libpf.TokenTypeAssemblyRef, len(m.references)), nil
}
