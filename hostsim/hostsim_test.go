// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package hostsim

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.opentelemetry.io/clrprofiler/host"
	"go.opentelemetry.io/clrprofiler/libpf"
	"go.opentelemetry.io/clrprofiler/metadata"
)

func TestEncodeMethodSignature(t *testing.T) {
	tests := map[string][]string{
		"primitives":    {"System.Void", "System.Int32", "System.String", "System.Object"},
		"classes":       {"System.Threading.Tasks.Task", "System.Net.Http.HttpRequestMessage"},
		"generic":       {"System.Threading.Tasks.Task`1[System.Net.Http.HttpResponseMessage]"},
		"nested":        {"System.Void", "System.Collections.Generic.Dictionary`2[System.String,System.Collections.Generic.List`1[!!0]]"},
		"arrays":        {"System.Byte[]", "!0[,]", "System.String[][]"},
		"byref and ptr": {"System.Void", "System.Int32&", "System.Byte*"},
		"value type":    {"System.Void", "valuetype System.Threading.CancellationToken"},
	}
	for name, names := range tests {
		t.Run(name, func(t *testing.T) {
			m := NewModule("test.dll", "Test")
			tok, err := m.AddType("Test.Type")
			require.NoError(t, err)
			mtok, err := m.AddMethod(tok, "M", false, 1, names[0], names[1:]...)
			require.NoError(t, err)

			info, err := metadata.GetFunctionInfo(m, mtok)
			require.NoError(t, err)
			assert.True(t, info.Signature.HasThis())
			assert.Equal(t, uint32(1), info.Signature.GenericParamCount)

			got, err := info.Signature.TypeNames(m)
			require.NoError(t, err)
			want := make([]string, len(names))
			for i, n := range names {
				want[i] = trimValueType(n)
			}
			assert.Equal(t, want, got)
		})
	}
}

func trimValueType(name string) string {
	if len(name) > len(valueTypePrefix) && name[:len(valueTypePrefix)] == valueTypePrefix {
		return name[len(valueTypePrefix):]
	}
	return name
}

func TestEncodeErrors(t *testing.T) {
	m := NewModule("test.dll", "Test")
	for _, name := range []string{"", "Foo]", "!x"} {
		_, err := m.AddMethod(libpf.MakeToken(libpf.TokenTypeTypeDef, 1), "M", true, 0, "System.Void", name)
		assert.Error(t, err, name)
	}
}

func TestModuleMetadata(t *testing.T) {
	m := NewModule("foo.dll", "Foo, Version=1.5.0.0, Culture=neutral, PublicKeyToken=0123456789abcdef")
	m.AddReference("Bar, Version=2.0.0.0")

	outer, err := m.AddType("Foo.Outer")
	require.NoError(t, err)
	inner, err := m.AddType("Foo.Outer+Inner")
	require.NoError(t, err)
	_, err = m.AddType("Foo.Missing+Inner")
	require.Error(t, err)

	tok, err := metadata.FindTypeDef(m, "Foo.Outer+Inner")
	require.NoError(t, err)
	assert.Equal(t, inner, tok)

	a, err := m.AddMethod(outer, "Run", false, 0, "System.Void")
	require.NoError(t, err)
	_, err = m.AddMethod(outer, "Stop", false, 0, "System.Void")
	require.NoError(t, err)
	b, err := m.AddMethod(outer, "Run", true, 0, "System.Void", "System.Int32")
	require.NoError(t, err)

	var overloads []libpf.MethodToken
	for tok := range m.EnumMethodsWithName(outer, "Run") {
		overloads = append(overloads, tok)
	}
	assert.Equal(t, []libpf.MethodToken{a, b}, overloads)

	found, err := m.FindMethod("Foo.Outer", "Run")
	require.NoError(t, err)
	assert.Equal(t, a, found)
	_, err = m.FindMethod("Foo.Outer", "Walk")
	assert.ErrorIs(t, err, metadata.ErrNotFound)

	identity, err := m.AssemblyMetadata()
	require.NoError(t, err)
	assert.Equal(t, "Foo", identity.Name)
	assert.Equal(t, "1.5.0.0", identity.Version.String())

	refs, err := m.AssemblyReferences()
	require.NoError(t, err)
	assert.Equal(t, []string{"Bar, Version=2.0.0.0"}, refs)

	_, err = m.TypeName(libpf.MakeToken(libpf.TokenTypeTypeRef, 99))
	assert.ErrorIs(t, err, metadata.ErrNotFound)
}

func TestHostReJITThread(t *testing.T) {
	h := New()
	id := h.Load(NewModule("foo.dll", "Foo"), 1)

	done := make(chan struct{})
	go func() {
		defer close(done)
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		assert.NoError(t, h.InitializeCurrentThread())
		assert.NoError(t, h.RequestReJIT([]libpf.ModuleID{id}, []libpf.MethodToken{0x06000001}))
	}()
	<-done
	assert.Empty(t, h.Violations())

	require.Len(t, h.Requests(), 1)
	assert.Equal(t, []libpf.Method{{Module: id, Token: 0x06000001}}, h.RequestedMethods())

	assert.ErrorIs(t, h.RequestReJIT(nil, nil), host.ErrInvalidArg)

	h.FailReJIT(host.ErrUnsupportedCallSequence)
	done = make(chan struct{})
	go func() {
		defer close(done)
		err := h.RequestReJIT([]libpf.ModuleID{id}, []libpf.MethodToken{0x06000002})
		assert.ErrorIs(t, err, host.ErrUnsupportedCallSequence)
	}()
	<-done
	assert.Len(t, h.Requests(), 1)
}

func TestHostModules(t *testing.T) {
	h := New()
	m := NewModule("foo.dll", "Foo")
	id := h.Load(m, 3)

	info, err := h.GetModuleInfo(id)
	require.NoError(t, err)
	assert.Equal(t, id, info.ID)
	assert.Equal(t, "Foo", info.Assembly.Name)
	assert.Equal(t, libpf.AppDomainID(3), info.Assembly.AppDomainID)

	ifaces, err := h.GetModuleMetadata(id)
	require.NoError(t, err)
	assert.Same(t, m, ifaces.Import)

	h.AddFunction(77, libpf.Method{Module: id, Token: 0x06000001})
	fn, err := h.GetFunctionInfo(77)
	require.NoError(t, err)
	assert.Equal(t, libpf.MethodToken(0x06000001), fn.Token)
	_, err = h.GetFunctionInfo(78)
	assert.ErrorIs(t, err, host.ErrInvalidArg)

	h.Unload(id)
	_, err = h.GetModuleInfo(id)
	assert.ErrorIs(t, err, host.ErrInvalidArg)
}

func TestHostInliners(t *testing.T) {
	h := New()
	target := h.Load(NewModule("foo.dll", "Foo"), 1)
	ngen := h.Load(NewModule("bar.dll", "Bar"), 1)
	inlinee := libpf.Method{Module: target, Token: 0x06000001}
	inliner := libpf.Method{Module: ngen, Token: 0x06000005}

	h.AddInliner(ngen, inlinee, inliner)
	h.SetInlinersIncomplete(ngen, inlinee, 1)

	got, incomplete, err := h.EnumInliners(ngen, inlinee)
	require.NoError(t, err)
	assert.True(t, incomplete)
	assert.Empty(t, got)

	got, incomplete, err = h.EnumInliners(ngen, inlinee)
	require.NoError(t, err)
	assert.False(t, incomplete)
	assert.Equal(t, []libpf.Method{inliner}, got)
	assert.Equal(t, 2, h.InlinerQueries(ngen, inlinee))

	_, _, err = h.EnumInliners(0x42, inlinee)
	assert.ErrorIs(t, err, host.ErrInvalidArg)
	// No thread was initialized, so every query is reported.
	assert.Len(t, h.Violations(), 3)

	assert.NotNil(t, host.Probe(h).Inliners)
	assert.Nil(t, host.Probe(h.WithoutInliners()).Inliners)
}

const fooFixture = `
assembly = "Foo, Version=1.5.0.0"
flags = ["disk"]
references = ["System.Runtime, Version=4.2.0.0"]

[[types]]
name = "Foo.Client"

  [[types.methods]]
  name = "Send"
  return = "System.Threading.Tasks.Task"
  params = ["System.Int32", "System.String"]
`

const appFixture = `
assembly = "App"
flags = ["ngen"]

[[types]]
name = "App.Program"

  [[types.methods]]
  name = "Main"
  static = true
  params = ["System.String[]"]

[[inlines]]
inliner = "App.Program::Main"
target_assembly = "Foo"
target = "Foo.Client::Send"
`

func TestFixtures(t *testing.T) {
	h := New()

	foo, err := DecodeFixture(fooFixture)
	require.NoError(t, err)
	fooModule, err := foo.Build()
	require.NoError(t, err)
	fooID := h.Load(fooModule, foo.AppDomainID())

	app, err := DecodeFixture(appFixture)
	require.NoError(t, err)
	appModule, err := app.Build()
	require.NoError(t, err)
	assert.True(t, appModule.Info().IsNGen())
	appID := h.Load(appModule, app.AppDomainID())
	require.NoError(t, h.ResolveInlines(appID, app))

	send, err := fooModule.FindMethod("Foo.Client", "Send")
	require.NoError(t, err)
	main, err := appModule.FindMethod("App.Program", "Main")
	require.NoError(t, err)

	inliners, incomplete, err := h.EnumInliners(appID, libpf.Method{Module: fooID, Token: send})
	require.NoError(t, err)
	assert.False(t, incomplete)
	assert.Equal(t, []libpf.Method{{Module: appID, Token: main}}, inliners)

	bad, err := DecodeFixture(`assembly = "X"
flags = ["bogus"]`)
	require.NoError(t, err)
	_, err = bad.Build()
	assert.Error(t, err)
}
