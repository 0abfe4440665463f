// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package metadata

import (
	"iter"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.opentelemetry.io/clrprofiler/libpf"
)

var (
	typeRefTask  = libpf.MakeToken(libpf.TokenTypeTypeRef, 1)
	typeDefItem  = libpf.MakeToken(libpf.TokenTypeTypeDef, 2)
	typeDefOuter = libpf.MakeToken(libpf.TokenTypeTypeDef, 3)
	typeDefInner = libpf.MakeToken(libpf.TokenTypeTypeDef, 4)
	typeSpecTask = libpf.MakeToken(libpf.TokenTypeTypeSpec, 1)
)

type fakeImport struct {
	names   map[libpf.Token]string
	specs   map[libpf.Token][]byte
	methods map[libpf.MethodToken]MethodProps
}

func newFakeImport() *fakeImport {
	return &fakeImport{
		names: map[libpf.Token]string{
			typeRefTask:  "System.Threading.Tasks.Task`1",
			typeDefItem:  "MyApp.Item",
			typeDefOuter: "MyApp.Outer",
			typeDefInner: "Inner",
		},
		specs: map[libpf.Token][]byte{
			typeSpecTask: {0x15, 0x12, 0x05, 0x01, 0x08},
		},
		methods: map[libpf.MethodToken]MethodProps{
			0x06000001: {Name: "Run", Parent: typeDefItem, Signature: []byte{0x20, 0x01, 0x01, 0x08}},
			0x06000002: {Name: "Broken", Parent: typeDefItem, Signature: []byte{0x20, 0x01}},
		},
	}
}

func (f *fakeImport) TypeName(tok libpf.Token) (string, error) {
	if name, ok := f.names[tok]; ok {
		return name, nil
	}
	return "", ErrNotFound
}

func (f *fakeImport) TypeSpecSignature(tok libpf.Token) ([]byte, error) {
	if blob, ok := f.specs[tok]; ok {
		return blob, nil
	}
	return nil, ErrNotFound
}

func (f *fakeImport) FindTypeDefByName(name string, enclosing libpf.Token) (libpf.Token, error) {
	switch {
	case name == "MyApp.Outer" && enclosing.IsNil():
		return typeDefOuter, nil
	case name == "Inner" && enclosing == typeDefOuter:
		return typeDefInner, nil
	}
	return libpf.NilToken, ErrNotFound
}

func (f *fakeImport) EnumMethodsWithName(libpf.Token, string) iter.Seq[libpf.MethodToken] {
	return func(func(libpf.MethodToken) bool) {}
}

func (f *fakeImport) MethodProps(tok libpf.MethodToken) (MethodProps, error) {
	if props, ok := f.methods[tok]; ok {
		return props, nil
	}
	return MethodProps{}, ErrNotFound
}

func TestParseMethodSignature(t *testing.T) {
	tests := map[string]struct {
		blob    []byte
		hasThis bool
		generic uint32
		names   []string
	}{
		"instance void (int, string)": {
			blob:    []byte{0x20, 0x02, 0x01, 0x08, 0x0e},
			hasThis: true,
			names:   []string{"System.Void", "System.Int32", "System.String"},
		},
		"generic method": {
			blob: []byte{0x30, 0x01, 0x02,
				0x15, 0x12, 0x05, 0x01, 0x1e, 0x00,
				0x1d, 0x12, 0x08,
				0x10, 0x08},
			hasThis: true,
			generic: 1,
			names:   []string{"System.Threading.Tasks.Task`1[!!0]", "MyApp.Item[]", "System.Int32&"},
		},
		"custom modifier": {
			blob:  []byte{0x00, 0x01, 0x01, 0x20, 0x05, 0x08},
			names: []string{"System.Void", "System.Int32"},
		},
		"type spec return": {
			blob:  []byte{0x00, 0x00, 0x12, 0x06},
			names: []string{"System.Threading.Tasks.Task`1[System.Int32]"},
		},
		"multi dimensional array of type var": {
			blob:  []byte{0x00, 0x01, 0x01, 0x14, 0x13, 0x00, 0x02, 0x00, 0x00},
			names: []string{"System.Void", "!0[,]"},
		},
		"pointer and object": {
			blob:  []byte{0x00, 0x02, 0x1c, 0x0f, 0x05, 0x18},
			names: []string{"System.Object", "System.Byte*", "System.IntPtr"},
		},
	}

	res := newFakeImport()
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			sig, err := ParseMethodSignature(tc.blob)
			require.NoError(t, err)
			assert.Equal(t, tc.hasThis, sig.HasThis())
			assert.Equal(t, tc.generic, sig.GenericParamCount)
			assert.Equal(t, len(tc.names)-1, sig.NumberOfArguments())
			names, err := sig.TypeNames(res)
			require.NoError(t, err)
			assert.Equal(t, tc.names, names)
		})
	}
}

func TestParseMethodSignatureErrors(t *testing.T) {
	tests := map[string][]byte{
		"empty":                {},
		"truncated parameters": {0x20, 0x02, 0x01, 0x08},
		"field signature":      {0x06, 0x08},
		"bad element type":     {0x00, 0x01, 0x01, 0x17},
		"huge parameter count": {0x00, 0xc0, 0xff, 0xff, 0xff, 0x01},
		"bad compressed lead":  {0x00, 0xff},
	}
	for name, blob := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseMethodSignature(blob)
			assert.Error(t, err)
		})
	}
}

func TestCompressed(t *testing.T) {
	tests := []struct {
		data []byte
		want uint32
	}{
		{data: []byte{0x03}, want: 0x03},
		{data: []byte{0x7f}, want: 0x7f},
		{data: []byte{0x80, 0x80}, want: 0x80},
		{data: []byte{0xae, 0x57}, want: 0x2e57},
		{data: []byte{0xc0, 0x00, 0x40, 0x00}, want: 0x4000},
		{data: []byte{0xdf, 0xff, 0xff, 0xff}, want: 0x1fffffff},
	}
	for _, tc := range tests {
		r := sigReader{data: tc.data}
		assert.Equal(t, tc.want, r.Compressed())
		require.NoError(t, r.Error())
		assert.Equal(t, len(tc.data), r.pos)
	}
}

func TestUnresolvedTypeName(t *testing.T) {
	sig, err := ParseMethodSignature([]byte{0x00, 0x00, 0x12, 0x09})
	require.NoError(t, err)
	_, err = sig.TypeNames(newFakeImport())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetFunctionInfo(t *testing.T) {
	imp := newFakeImport()

	info, err := GetFunctionInfo(imp, 0x06000001)
	require.NoError(t, err)
	assert.True(t, info.IsValid())
	assert.Equal(t, "MyApp.Item.Run", info.String())
	assert.Equal(t, 1, info.Signature.NumberOfArguments())

	info, err = GetFunctionInfo(imp, 0x06000002)
	require.ErrorIs(t, err, ErrInvalidSignature)
	assert.Equal(t, "Broken", info.Name)

	_, err = GetFunctionInfo(imp, 0x06000003)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = GetFunctionInfo(imp, typeDefItem)
	assert.Error(t, err)
}

func TestFindTypeDef(t *testing.T) {
	imp := newFakeImport()

	tok, err := FindTypeDef(imp, "MyApp.Outer")
	require.NoError(t, err)
	assert.Equal(t, typeDefOuter, tok)

	tok, err = FindTypeDef(imp, "MyApp.Outer+Inner")
	require.NoError(t, err)
	assert.Equal(t, typeDefInner, tok)

	_, err = FindTypeDef(imp, "MyApp.Missing+Inner")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestModuleInfoFlags(t *testing.T) {
	assert.False(t, ModuleInfo{}.IsValid())
	m := ModuleInfo{ID: 1, Flags: ModuleFlagNGen | ModuleFlagDisk}
	assert.True(t, m.IsValid())
	assert.True(t, m.IsNGen())
	assert.False(t, m.IsDynamic())
	assert.False(t, m.IsWindowsRuntime())
	assert.True(t, ModuleInfo{ID: 2, Flags: ModuleFlagWindowsRuntime}.IsWindowsRuntime())
}
