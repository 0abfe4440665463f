// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package metadata // import "go.opentelemetry.io/clrprofiler/metadata"

import (
	"errors"
	"iter"

	"go.opentelemetry.io/clrprofiler/assembly"
	"go.opentelemetry.io/clrprofiler/libpf"
)

// ErrNotFound is returned by lookups for a name or token that does not exist.
var ErrNotFound = errors.New("metadata record not found")

// MethodProps are the MethodDef table columns used by the engine.
type MethodProps struct {
	Name       string
	Parent     libpf.Token
	Attributes uint32
	Signature  []byte
}

// TypeResolver renders the names of type tokens found inside signatures.
type TypeResolver interface {
	// TypeName returns the namespace qualified name of a TypeDef or TypeRef.
	TypeName(tok libpf.Token) (string, error)
	// TypeSpecSignature returns the signature blob of a TypeSpec.
	TypeSpecSignature(tok libpf.Token) ([]byte, error)
}

// Import is the read side of a module's metadata (IMetaDataImport2).
type Import interface {
	TypeResolver

	// FindTypeDefByName looks up a TypeDef by its full name. enclosing is the
	// enclosing class for nested types or libpf.NilToken.
	FindTypeDefByName(name string, enclosing libpf.Token) (libpf.Token, error)

	// EnumMethodsWithName lazily enumerates the methods of typeDef named name,
	// which is the overload set of that name. The sequence is finite and
	// cannot be restarted.
	EnumMethodsWithName(typeDef libpf.Token, name string) iter.Seq[libpf.MethodToken]

	// MethodProps returns the MethodDef columns of method.
	MethodProps(method libpf.MethodToken) (MethodProps, error)
}

// AssemblyImport is the read side of the assembly manifest (IMetaDataAssemblyImport).
type AssemblyImport interface {
	// AssemblyMetadata returns the identity of the module's own assembly.
	AssemblyMetadata() (assembly.Reference, error)
	// AssemblyReferences returns the display names of all AssemblyRef rows.
	AssemblyReferences() ([]string, error)
}

// Emit is the write side of a module's metadata (IMetaDataEmit2), used by the
// IL rewriter to reference the wrapper methods it calls into.
type Emit interface {
	DefineTypeRefByName(scope libpf.Token, name string) (libpf.Token, error)
	DefineMemberRef(parent libpf.Token, name string, signature []byte) (libpf.Token, error)
	DefineUserString(s string) (libpf.Token, error)
}

// AssemblyEmit is the write side of the assembly manifest (IMetaDataAssemblyEmit).
type AssemblyEmit interface {
	DefineAssemblyRef(ref assembly.Reference) (libpf.Token, error)
}
