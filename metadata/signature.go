// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package metadata // import "go.opentelemetry.io/clrprofiler/metadata"

import (
	"errors"
	"fmt"

	"go.opentelemetry.io/clrprofiler/libpf"
)

var errTruncated = errors.New("truncated signature")

// TypeSig is one parsed type of a signature.
type TypeSig struct {
	Kind ElementType
	// Token is the TypeDef, TypeRef or TypeSpec of a Class or ValueType,
	// and of the generic type of a GenericInst.
	Token libpf.Token
	// Elem is the element type of Ptr, ByRef, SzArray and Array.
	Elem *TypeSig
	// Args are the type arguments of a GenericInst.
	Args []TypeSig
	// Number is the index of a Var or MVar, or the rank of an Array.
	Number uint32
	// ValueType is set for a GenericInst over a value type.
	ValueType bool
	// Method is the signature of a FnPtr.
	Method *MethodSignature
}

// MethodSignature is a parsed MethodDefSig or MethodRefSig.
type MethodSignature struct {
	CallingConvention CallingConvention
	GenericParamCount uint32
	Return            TypeSig
	Params            []TypeSig
	// VarArgParams are the parameters following the sentinel of a vararg call site.
	VarArgParams []TypeSig
}

// HasThis reports whether the method takes an implicit this argument.
func (s *MethodSignature) HasThis() bool {
	return s.CallingConvention&CallConvHasThis != 0
}

// IsGeneric reports whether the method has generic parameters.
func (s *MethodSignature) IsGeneric() bool {
	return s.CallingConvention&CallConvGeneric != 0
}

// NumberOfArguments is the declared parameter count, excluding this.
func (s *MethodSignature) NumberOfArguments() int {
	return len(s.Params)
}

// sigReader reads ECMA-335 signature blobs. Errors are sticky: after the
// first failure every read returns zero and Error reports the failure.
type sigReader struct {
	data []byte
	pos  int
	err  error
}

func (r *sigReader) Error() error {
	return r.err
}

func (r *sigReader) fail(err error) {
	if r.err == nil {
		r.err = fmt.Errorf("offset %d: %w", r.pos, err)
	}
}

func (r *sigReader) peek() byte {
	if r.err != nil {
		return 0
	}
	if r.pos >= len(r.data) {
		r.fail(errTruncated)
		return 0
	}
	return r.data[r.pos]
}

func (r *sigReader) Uint8() uint8 {
	b := r.peek()
	if r.err == nil {
		r.pos++
	}
	return b
}

// Compressed reads a compressed unsigned integer (ECMA-335 II.23.2).
func (r *sigReader) Compressed() uint32 {
	b := uint32(r.Uint8())
	switch {
	case b&0x80 == 0:
		return b
	case b&0xc0 == 0x80:
		return (b&0x3f)<<8 | uint32(r.Uint8())
	case b&0xe0 == 0xc0:
		b1 := uint32(r.Uint8())
		b2 := uint32(r.Uint8())
		b3 := uint32(r.Uint8())
		return (b&0x1f)<<24 | b1<<16 | b2<<8 | b3
	}
	r.fail(fmt.Errorf("invalid compressed integer lead byte 0x%02x", b))
	return 0
}

// TypeDefOrRef reads a TypeDefOrRefOrSpecEncoded token (ECMA-335 II.23.2.8).
func (r *sigReader) TypeDefOrRef() libpf.Token {
	v := r.Compressed()
	rid := v >> 2
	switch v & 0x3 {
	case 0:
		return libpf.MakeToken(libpf.TokenTypeTypeDef, rid)
	case 1:
		return libpf.MakeToken(libpf.TokenTypeTypeRef, rid)
	case 2:
		return libpf.MakeToken(libpf.TokenTypeTypeSpec, rid)
	}
	r.fail(fmt.Errorf("invalid TypeDefOrRef tag in 0x%x", v))
	return libpf.NilToken
}

// customMods skips any number of custom modifiers.
func (r *sigReader) customMods() {
	for r.err == nil {
		switch ElementType(r.peek()) {
		case ElementTypeCModOpt, ElementTypeCModReqd:
			r.pos++
			r.TypeDefOrRef()
		default:
			return
		}
	}
}

// maxTypeDepth bounds nesting so that corrupt blobs cannot recurse unbounded.
const maxTypeDepth = 64

func (r *sigReader) Type(depth int) TypeSig {
	if depth > maxTypeDepth {
		r.fail(errors.New("type nesting too deep"))
		return TypeSig{}
	}
	r.customMods()
	kind := ElementType(r.Uint8())
	if r.err != nil {
		return TypeSig{}
	}
	t := TypeSig{Kind: kind}
	switch kind {
	case ElementTypeVoid, ElementTypeBoolean, ElementTypeChar,
		ElementTypeI1, ElementTypeU1, ElementTypeI2, ElementTypeU2,
		ElementTypeI4, ElementTypeU4, ElementTypeI8, ElementTypeU8,
		ElementTypeR4, ElementTypeR8, ElementTypeString, ElementTypeObject,
		ElementTypeI, ElementTypeU, ElementTypeTypedByRef:
	case ElementTypeClass, ElementTypeValueType:
		t.Token = r.TypeDefOrRef()
	case ElementTypePtr, ElementTypeByRef, ElementTypeSzArray, ElementTypePinned:
		elem := r.Type(depth + 1)
		t.Elem = &elem
	case ElementTypeVar, ElementTypeMVar:
		t.Number = r.Compressed()
	case ElementTypeArray:
		elem := r.Type(depth + 1)
		t.Elem = &elem
		t.Number = r.Compressed()
		// ArrayShape: sizes and lower bounds are only skipped.
		for range r.Compressed() {
			r.Compressed()
		}
		for range r.Compressed() {
			r.Compressed()
		}
	case ElementTypeGenericInst:
		t.ValueType = ElementType(r.Uint8()) == ElementTypeValueType
		t.Token = r.TypeDefOrRef()
		n := r.Compressed()
		if r.err == nil && int(n) > len(r.data)-r.pos {
			r.fail(fmt.Errorf("generic argument count %d exceeds blob", n))
			return t
		}
		t.Args = make([]TypeSig, 0, n)
		for range n {
			t.Args = append(t.Args, r.Type(depth+1))
		}
	case ElementTypeFnPtr:
		m := r.Method(depth + 1)
		t.Method = &m
	default:
		r.fail(fmt.Errorf("unsupported element type 0x%02x", uint8(kind)))
	}
	return t
}

// Method reads a MethodDefSig or MethodRefSig.
func (r *sigReader) Method(depth int) MethodSignature {
	var m MethodSignature
	m.CallingConvention = CallingConvention(r.Uint8())
	if m.IsGeneric() {
		m.GenericParamCount = r.Compressed()
	}
	n := r.Compressed()
	if r.err == nil && int(n) > len(r.data)-r.pos {
		r.fail(fmt.Errorf("parameter count %d exceeds blob", n))
		return m
	}
	m.Return = r.Type(depth)
	m.Params = make([]TypeSig, 0, n)
	sentinel := false
	for range n {
		if r.err != nil {
			break
		}
		if ElementType(r.peek()) == ElementTypeSentinel {
			r.pos++
			sentinel = true
		}
		p := r.Type(depth)
		if sentinel {
			m.VarArgParams = append(m.VarArgParams, p)
		} else {
			m.Params = append(m.Params, p)
		}
	}
	return m
}

// ParseMethodSignature parses a method signature blob (ECMA-335 II.23.2.1).
func ParseMethodSignature(blob []byte) (MethodSignature, error) {
	if len(blob) > 0 && CallingConvention(blob[0])&callConvKindMask > CallConvVarArg {
		return MethodSignature{}, fmt.Errorf("method signature: calling convention 0x%02x is not a method",
			blob[0])
	}
	r := sigReader{data: blob}
	m := r.Method(0)
	if err := r.Error(); err != nil {
		return MethodSignature{}, fmt.Errorf("method signature: %w", err)
	}
	return m, nil
}

// ParseTypeSignature parses a TypeSpec blob (ECMA-335 II.23.2.14).
func ParseTypeSignature(blob []byte) (TypeSig, error) {
	r := sigReader{data: blob}
	t := r.Type(0)
	if err := r.Error(); err != nil {
		return TypeSig{}, fmt.Errorf("type signature: %w", err)
	}
	return t, nil
}
