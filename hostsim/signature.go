// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package hostsim // import "go.opentelemetry.io/clrprofiler/hostsim"

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"fortio.org/safecast"

	"go.opentelemetry.io/clrprofiler/libpf"
	"go.opentelemetry.io/clrprofiler/metadata"
)

// valueTypePrefix marks a type name as value type in fixtures. It is not
// part of the rendered name.
const valueTypePrefix = "valuetype "

// sigWriter builds ECMA-335 signature blobs.
type sigWriter struct {
	buf []byte
	// typeRef hands out the tokens of class and value type names.
	typeRef func(name string) libpf.Token
}

func (w *sigWriter) compressed(v uint32) error {
	switch {
	case v <= 0x7f:
		w.buf = append(w.buf, byte(v))
	case v <= 0x3fff:
		w.buf = append(w.buf, byte(v>>8)|0x80, byte(v))
	case v <= 0x1fffffff:
		w.buf = append(w.buf, byte(v>>24)|0xc0, byte(v>>16), byte(v>>8), byte(v))
	default:
		return fmt.Errorf("value 0x%x too large for compressed integer", v)
	}
	return nil
}

func (w *sigWriter) count(n int) error {
	v, err := safecast.Conv[uint32](n)
	if err != nil {
		return err
	}
	return w.compressed(v)
}

func (w *sigWriter) token(tok libpf.Token) error {
	var tag uint32
	switch tok.Type() {
	case libpf.TokenTypeTypeDef:
		tag = 0
	case libpf.TokenTypeTypeRef:
		tag = 1
	case libpf.TokenTypeTypeSpec:
		tag = 2
	default:
		return fmt.Errorf("token %v is not a TypeDefOrRef", tok)
	}
	return w.compressed(tok.RID()<<2 | tag)
}

// typeName encodes one type given by its rendered name.
func (w *sigWriter) typeName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("empty type name")
	}
	if et, ok := metadata.PrimitiveElementType(name); ok {
		w.buf = append(w.buf, byte(et))
		return nil
	}

	switch {
	case strings.HasSuffix(name, "&"):
		w.buf = append(w.buf, byte(metadata.ElementTypeByRef))
		return w.typeName(name[:len(name)-1])
	case strings.HasSuffix(name, "*"):
		w.buf = append(w.buf, byte(metadata.ElementTypePtr))
		return w.typeName(name[:len(name)-1])
	case strings.HasSuffix(name, "]"):
		return w.bracketed(name)
	case strings.HasPrefix(name, "!!"):
		return w.genericParam(metadata.ElementTypeMVar, name[2:])
	case strings.HasPrefix(name, "!"):
		return w.genericParam(metadata.ElementTypeVar, name[1:])
	}

	kind := metadata.ElementTypeClass
	if rest, ok := strings.CutPrefix(name, valueTypePrefix); ok {
		kind = metadata.ElementTypeValueType
		name = rest
	}
	w.buf = append(w.buf, byte(kind))
	return w.token(w.typeRef(name))
}

func (w *sigWriter) genericParam(kind metadata.ElementType, num string) error {
	n, err := strconv.ParseUint(num, 10, 32)
	if err != nil {
		return fmt.Errorf("invalid generic parameter %q: %w", num, err)
	}
	w.buf = append(w.buf, byte(kind))
	return w.compressed(uint32(n))
}

// bracketed encodes arrays (T[], T[,]) and generic instances (G`1[A]).
func (w *sigWriter) bracketed(name string) error {
	open := matchingOpen(name)
	if open <= 0 {
		return fmt.Errorf("unbalanced brackets in %q", name)
	}
	elem, inner := name[:open], name[open+1:len(name)-1]
	if strings.Trim(inner, ",") == "" {
		if inner == "" {
			w.buf = append(w.buf, byte(metadata.ElementTypeSzArray))
			return w.typeName(elem)
		}
		w.buf = append(w.buf, byte(metadata.ElementTypeArray))
		if err := w.typeName(elem); err != nil {
			return err
		}
		if err := w.count(len(inner) + 1); err != nil {
			return err
		}
		// No sizes and no lower bounds.
		w.buf = append(w.buf, 0, 0)
		return nil
	}

	args := splitTopLevel(inner)
	w.buf = append(w.buf, byte(metadata.ElementTypeGenericInst))
	kind := metadata.ElementTypeClass
	if rest, ok := strings.CutPrefix(elem, valueTypePrefix); ok {
		kind = metadata.ElementTypeValueType
		elem = rest
	}
	w.buf = append(w.buf, byte(kind))
	if err := w.token(w.typeRef(elem)); err != nil {
		return err
	}
	if err := w.count(len(args)); err != nil {
		return err
	}
	for _, arg := range args {
		if err := w.typeName(arg); err != nil {
			return err
		}
	}
	return nil
}

// matchingOpen returns the index of the '[' matching the final ']' of s.
func matchingOpen(s string) int {
	depth := 0
	for i := len(s) - 1; i >= 0; i-- {
		switch s[i] {
		case ']':
			depth++
		case '[':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// splitTopLevel splits s at the commas that are not nested in brackets.
func splitTopLevel(s string) []string {
	var parts []string
	depth, start := 0, 0
	for i := range len(s) {
		switch s[i] {
		case '[':
			depth++
		case ']':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, s[start:])
}

// EncodeMethodSignature builds a MethodDefSig from rendered type names.
// Class and value type names are turned into tokens by typeRef.
func EncodeMethodSignature(hasThis bool, genericParams int, ret string, params []string,
	typeRef func(name string) libpf.Token) ([]byte, error) {
	w := sigWriter{typeRef: typeRef}
	conv := metadata.CallConvDefault
	if hasThis {
		conv |= metadata.CallConvHasThis
	}
	if genericParams > 0 {
		conv |= metadata.CallConvGeneric
	}
	w.buf = append(w.buf, byte(conv))
	if genericParams > 0 {
		if err := w.count(genericParams); err != nil {
			return nil, err
		}
	}
	if err := w.count(len(params)); err != nil {
		return nil, err
	}
	if err := w.typeName(ret); err != nil {
		return nil, fmt.Errorf("return type %q: %w", ret, err)
	}
	for i, p := range params {
		if err := w.typeName(p); err != nil {
			return nil, fmt.Errorf("parameter %d %q: %w", i, p, err)
		}
	}
	return w.buf, nil
}
