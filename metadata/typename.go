// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package metadata // import "go.opentelemetry.io/clrprofiler/metadata"

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.opentelemetry.io/clrprofiler/libpf"
)

// Name renders the textual type name used by integration definitions:
// System.Int32, Namespace.Type, List`1[System.String], T[], T&, !0, !!0.
func (t *TypeSig) Name(res TypeResolver) (string, error) {
	var sb strings.Builder
	if err := t.appendName(&sb, res, 0); err != nil {
		return "", err
	}
	return sb.String(), nil
}

func (t *TypeSig) appendName(sb *strings.Builder, res TypeResolver, depth int) error {
	if depth > maxTypeDepth {
		return errors.New("type name nesting too deep")
	}
	if name, ok := primitiveNames[t.Kind]; ok {
		sb.WriteString(name)
		return nil
	}
	switch t.Kind {
	case ElementTypeClass, ElementTypeValueType:
		name, err := tokenTypeName(res, t.Token, depth+1)
		if err != nil {
			return err
		}
		sb.WriteString(name)
	case ElementTypeGenericInst:
		name, err := tokenTypeName(res, t.Token, depth+1)
		if err != nil {
			return err
		}
		sb.WriteString(name)
		sb.WriteByte('[')
		for i := range t.Args {
			if i > 0 {
				sb.WriteByte(',')
			}
			if err := t.Args[i].appendName(sb, res, depth+1); err != nil {
				return err
			}
		}
		sb.WriteByte(']')
	case ElementTypeSzArray, ElementTypeArray, ElementTypePtr, ElementTypeByRef, ElementTypePinned:
		if t.Elem == nil {
			return fmt.Errorf("element type 0x%02x without element", uint8(t.Kind))
		}
		if err := t.Elem.appendName(sb, res, depth+1); err != nil {
			return err
		}
		switch t.Kind {
		case ElementTypeSzArray:
			sb.WriteString("[]")
		case ElementTypeArray:
			sb.WriteByte('[')
			for range max(int(t.Number)-1, 0) {
				sb.WriteByte(',')
			}
			sb.WriteByte(']')
		case ElementTypePtr:
			sb.WriteByte('*')
		case ElementTypeByRef:
			sb.WriteByte('&')
		}
	case ElementTypeVar:
		sb.WriteByte('!')
		sb.WriteString(strconv.FormatUint(uint64(t.Number), 10))
	case ElementTypeMVar:
		sb.WriteString("!!")
		sb.WriteString(strconv.FormatUint(uint64(t.Number), 10))
	case ElementTypeFnPtr:
		sb.WriteString("System.IntPtr")
	default:
		return fmt.Errorf("no name for element type 0x%02x", uint8(t.Kind))
	}
	return nil
}

// TokenTypeName resolves the name of a TypeDef, TypeRef or TypeSpec token.
// TypeSpecs are parsed and rendered recursively.
func TokenTypeName(res TypeResolver, tok libpf.Token) (string, error) {
	return tokenTypeName(res, tok, 0)
}

func tokenTypeName(res TypeResolver, tok libpf.Token, depth int) (string, error) {
	if depth > maxTypeDepth {
		return "", errors.New("type name nesting too deep")
	}
	if tok.Type() != libpf.TokenTypeTypeSpec {
		name, err := res.TypeName(tok)
		if err != nil {
			return "", fmt.Errorf("type %v: %w", tok, err)
		}
		return name, nil
	}
	blob, err := res.TypeSpecSignature(tok)
	if err != nil {
		return "", fmt.Errorf("type spec %v: %w", tok, err)
	}
	spec, err := ParseTypeSignature(blob)
	if err != nil {
		return "", fmt.Errorf("type spec %v: %w", tok, err)
	}
	var sb strings.Builder
	if err := spec.appendName(&sb, res, depth+1); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// TypeNames renders the return type followed by all parameter types, the
// layout used by integration signatures.
func (s *MethodSignature) TypeNames(res TypeResolver) ([]string, error) {
	names := make([]string, 0, len(s.Params)+1)
	ret, err := s.Return.Name(res)
	if err != nil {
		return nil, fmt.Errorf("return type: %w", err)
	}
	names = append(names, ret)
	for i := range s.Params {
		name, err := s.Params[i].Name(res)
		if err != nil {
			return nil, fmt.Errorf("parameter %d: %w", i, err)
		}
		names = append(names, name)
	}
	return names, nil
}
