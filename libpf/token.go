// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package libpf // import "go.opentelemetry.io/clrprofiler/libpf"

import "fmt"

// Token is an ECMA-335 II.22 metadata token: the table number in the top byte
// and the 1-based row index in the lower 24 bits.
type Token uint32

// MethodToken is a Token referring to a row of the MethodDef table.
type MethodToken = Token

// TokenType is the table part of a Token.
type TokenType uint32

// Token types used by the engine, ECMA-335 II.22 table numbers shifted to the top byte.
const (
	TokenTypeModule      TokenType = 0x00000000
	TokenTypeTypeRef     TokenType = 0x01000000
	TokenTypeTypeDef     TokenType = 0x02000000
	TokenTypeMethodDef   TokenType = 0x06000000
	TokenTypeMemberRef   TokenType = 0x0a000000
	TokenTypeTypeSpec    TokenType = 0x1b000000
	TokenTypeAssembly    TokenType = 0x20000000
	TokenTypeAssemblyRef TokenType = 0x23000000
	TokenTypeMethodSpec  TokenType = 0x2b000000
)

// NilToken is the nil value of every token type (row 0).
const NilToken Token = 0

// MakeToken composes a token from its table and row.
func MakeToken(typ TokenType, rid uint32) Token {
	return Token(uint32(typ) | (rid & 0x00ffffff))
}

// Type returns the table part of the token.
func (t Token) Type() TokenType {
	return TokenType(uint32(t) & 0xff000000)
}

// RID returns the row index of the token.
func (t Token) RID() uint32 {
	return uint32(t) & 0x00ffffff
}

// IsNil reports whether the token has row index 0.
func (t Token) IsNil() bool {
	return t.RID() == 0
}

func (t Token) String() string {
	return fmt.Sprintf("0x%08x", uint32(t))
}
