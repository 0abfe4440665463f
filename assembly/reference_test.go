// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package assembly

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseReference(t *testing.T) {
	tests := map[string]struct {
		input    string
		expected Reference
	}{
		"all fields": {
			input: "System.Net.Http, Version=4.2.0.1, Culture=en, " +
				"PublicKeyToken=b03f5f7f11d50a3a",
			expected: Reference{
				Name:      "System.Net.Http",
				Version:   Version{4, 2, 0, 1},
				Locale:    "en",
				PublicKey: PublicKeyToken{0xb0, 0x3f, 0x5f, 0x7f, 0x11, 0xd5, 0x0a, 0x3a},
			},
		},
		"name only": {
			input:    "Foo",
			expected: Reference{Name: "Foo", Locale: NeutralLocale},
		},
		"trailing whitespace in name": {
			input:    "Foo  , Version=1.2.0.0",
			expected: Reference{Name: "Foo", Version: Version{1, 2, 0, 0}, Locale: NeutralLocale},
		},
		"null public key": {
			input: "Foo, Version=1.0.0.0, Culture=neutral, PublicKeyToken=null",
			expected: Reference{Name: "Foo", Version: Version{1, 0, 0, 0},
				Locale: NeutralLocale},
		},
		"short version is ignored": {
			input:    "Foo, Version=1.2",
			expected: Reference{Name: "Foo", Locale: NeutralLocale},
		},
		"version component overflow": {
			input:    "Foo, Version=1.70000.0.0",
			expected: Reference{Name: "Foo", Locale: NeutralLocale},
		},
		"upper case key": {
			input: "Foo, PublicKeyToken=CC7B13FFCD2DDD51",
			expected: Reference{Name: "Foo", Locale: NeutralLocale,
				PublicKey: PublicKeyToken{0xcc, 0x7b, 0x13, 0xff, 0xcd, 0x2d, 0xdd, 0x51}},
		},
		"empty": {
			input:    "",
			expected: Reference{Locale: NeutralLocale},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, test.expected, ParseReference(test.input))
		})
	}
}

func TestReferenceRoundTrip(t *testing.T) {
	ref := Reference{
		Name:      "Npgsql",
		Version:   Version{4, 1, 3, 0},
		Locale:    "neutral",
		PublicKey: PublicKeyToken{0x5d, 0x8b, 0x90, 0xd5, 0x2f, 0x46, 0xfd, 0xa7},
	}
	assert.Equal(t, "Npgsql, Version=4.1.3.0, Culture=neutral, PublicKeyToken=5d8b90d52f46fda7",
		ref.String())
	assert.Equal(t, ref, ParseReference(ref.String()))
}

func TestVersion(t *testing.T) {
	v, err := ParseVersion("1.5")
	require.NoError(t, err)
	assert.Equal(t, Version{1, 5, 0, 0}, v)

	hi, err := ParseMaxVersion("2")
	require.NoError(t, err)
	assert.Equal(t, Version{2, 65535, 65535, 65535}, hi)

	_, err = ParseVersion("1.2.3.4.5")
	require.Error(t, err)
	_, err = ParseVersion("")
	require.Error(t, err)
	_, err = ParseVersion("1.x")
	require.Error(t, err)

	lo := Version{1, 0, 0, 0}
	assert.True(t, Version{1, 5, 0, 0}.InRange(lo, Version{2, 0, 0, 0}))
	assert.True(t, lo.InRange(lo, lo))
	assert.False(t, Version{3, 0, 0, 0}.InRange(lo, Version{2, 0, 0, 0}))
	assert.True(t, Version{}.InRange(Version{}, MaxVersion))
	assert.Equal(t, -1, Version{1, 2, 3, 4}.Compare(Version{1, 2, 3, 5}))
	assert.Equal(t, "1.2.3.4", Version{1, 2, 3, 4}.String())
}

func TestParseCache(t *testing.T) {
	cache, err := NewParseCache(16)
	require.NoError(t, err)

	const s = "Foo, Version=1.2.0.0, Culture=neutral, PublicKeyToken=null"
	first := cache.Parse(s)
	assert.Equal(t, ParseReference(s), first)
	assert.Equal(t, 1, cache.Len())
	assert.Equal(t, first, cache.Parse(s))
	assert.Equal(t, 1, cache.Len())

	var nilCache *ParseCache
	assert.Equal(t, first, nilCache.Parse(s))
}
