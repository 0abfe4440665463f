// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package metadata // import "go.opentelemetry.io/clrprofiler/metadata"

import (
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/clrprofiler/libpf"
)

// ErrInvalidSignature wraps all failures to parse a method's signature blob.
var ErrInvalidSignature = errors.New("invalid method signature")

// TypeInfo identifies the type declaring a method.
type TypeInfo struct {
	ID   libpf.Token
	Name string
}

// FunctionInfo describes a method definition.
type FunctionInfo struct {
	ID           libpf.MethodToken
	Name         string
	Type         TypeInfo
	Attributes   uint32
	RawSignature []byte
	Signature    MethodSignature
}

// IsValid reports whether the info describes an actual method.
func (f *FunctionInfo) IsValid() bool {
	return f != nil && !f.ID.IsNil()
}

func (f *FunctionInfo) String() string {
	if f == nil {
		return "<nil>"
	}
	return f.Type.Name + "." + f.Name
}

// GetFunctionInfo reads the properties of a MethodDef and parses its
// signature. Signature failures are reported as ErrInvalidSignature.
func GetFunctionInfo(imp Import, tok libpf.MethodToken) (FunctionInfo, error) {
	if tok.Type() != libpf.TokenTypeMethodDef || tok.IsNil() {
		return FunctionInfo{}, fmt.Errorf("token %v is not a method definition", tok)
	}
	props, err := imp.MethodProps(tok)
	if err != nil {
		return FunctionInfo{}, fmt.Errorf("method %v: %w", tok, err)
	}
	typeName, err := imp.TypeName(props.Parent)
	if err != nil {
		return FunctionInfo{}, fmt.Errorf("parent type %v of method %v: %w", props.Parent, tok, err)
	}
	info := FunctionInfo{
		ID:           tok,
		Name:         props.Name,
		Type:         TypeInfo{ID: props.Parent, Name: typeName},
		Attributes:   props.Attributes,
		RawSignature: props.Signature,
	}
	sig, err := ParseMethodSignature(props.Signature)
	if err != nil {
		return info, fmt.Errorf("%w: %v: %w", ErrInvalidSignature, info.String(), err)
	}
	info.Signature = sig
	return info, nil
}

// FindTypeDef looks up a type by its full name. Nested types are separated
// from their enclosing type with '+', as in Outer+Inner.
func FindTypeDef(imp Import, name string) (libpf.Token, error) {
	enclosing := libpf.NilToken
	for part := range strings.SplitSeq(name, "+") {
		tok, err := imp.FindTypeDefByName(part, enclosing)
		if err != nil {
			return libpf.NilToken, fmt.Errorf("type %s: %w", name, err)
		}
		enclosing = tok
	}
	return enclosing, nil
}
