// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package assembly parses and compares CLR assembly identities.
package assembly // import "go.opentelemetry.io/clrprofiler/assembly"

import (
	"encoding/hex"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// NeutralLocale is the culture of assemblies without a Culture= field.
const NeutralLocale = "neutral"

var (
	versionRegex   = regexp.MustCompile(`Version=([0-9]+)\.([0-9]+)\.([0-9]+)\.([0-9]+)`)
	cultureRegex   = regexp.MustCompile(`Culture=([a-zA-Z0-9]+)`)
	publicKeyRegex = regexp.MustCompile(`PublicKeyToken=([a-fA-F0-9]{16})`)
)

// PublicKeyToken is the 8 byte public key token of a strong named assembly.
type PublicKeyToken [8]byte

// IsZero reports whether the token is all-zero, which is also the value of
// assemblies without a strong name.
func (k PublicKeyToken) IsZero() bool {
	return k == PublicKeyToken{}
}

func (k PublicKeyToken) String() string {
	if k.IsZero() {
		return "null"
	}
	return hex.EncodeToString(k[:])
}

// Reference is a structured assembly identity.
type Reference struct {
	Name      string
	Version   Version
	Locale    string
	PublicKey PublicKeyToken
}

// String renders the reference in the display-name form understood by ParseReference.
func (r Reference) String() string {
	return fmt.Sprintf("%s, Version=%v, Culture=%s, PublicKeyToken=%v",
		r.Name, r.Version, r.Locale, r.PublicKey)
}

// ParseReference parses an assembly display name such as
//
//	System.Net.Http, Version=4.2.0.0, Culture=neutral, PublicKeyToken=b03f5f7f11d50a3a
//
// Every field has a default, so parsing never fails: the name is everything
// up to the first comma, the version is 0.0.0.0, the locale is "neutral" and
// the public key token is all zero when the respective field is missing.
func ParseReference(s string) Reference {
	return Reference{
		Name:      nameFromReference(s),
		Version:   versionFromReference(s),
		Locale:    localeFromReference(s),
		PublicKey: publicKeyFromReference(s),
	}
}

func nameFromReference(s string) string {
	name, _, _ := strings.Cut(s, ",")
	return strings.TrimRightFunc(name, unicode.IsSpace)
}

func versionFromReference(s string) Version {
	match := versionRegex.FindStringSubmatch(s)
	if match == nil {
		return Version{}
	}
	var comps [4]uint16
	for i := range comps {
		n, err := strconv.ParseUint(match[i+1], 10, 16)
		if err != nil {
			// A component that does not fit 16 bits is not a valid version.
			return Version{}
		}
		comps[i] = uint16(n)
	}
	return Version{comps[0], comps[1], comps[2], comps[3]}
}

func localeFromReference(s string) string {
	if match := cultureRegex.FindStringSubmatch(s); match != nil {
		return match[1]
	}
	return NeutralLocale
}

func publicKeyFromReference(s string) PublicKeyToken {
	var key PublicKeyToken
	match := publicKeyRegex.FindStringSubmatch(s)
	if match == nil {
		return key
	}
	for i := range key {
		b, err := strconv.ParseUint(match[1][i*2:i*2+2], 16, 8)
		if err != nil {
			return PublicKeyToken{}
		}
		key[i] = byte(b)
	}
	return key
}
