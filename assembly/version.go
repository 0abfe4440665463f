// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package assembly // import "go.opentelemetry.io/clrprofiler/assembly"

import (
	"cmp"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Version is a four part assembly version as stored in the Assembly and
// AssemblyRef metadata tables (ECMA-335 II.22.2).
type Version struct {
	Major    uint16
	Minor    uint16
	Build    uint16
	Revision uint16
}

// MaxVersion is the upper bound used when a version range has no explicit maximum.
var MaxVersion = Version{math.MaxUint16, math.MaxUint16, math.MaxUint16, math.MaxUint16}

// Compare returns -1, 0 or +1 depending on whether v sorts before, equal or after other.
func (v Version) Compare(other Version) int {
	if c := cmp.Compare(v.Major, other.Major); c != 0 {
		return c
	}
	if c := cmp.Compare(v.Minor, other.Minor); c != 0 {
		return c
	}
	if c := cmp.Compare(v.Build, other.Build); c != 0 {
		return c
	}
	return cmp.Compare(v.Revision, other.Revision)
}

// InRange reports whether v lies within the inclusive range [lo, hi].
func (v Version) InRange(lo, hi Version) bool {
	return lo.Compare(v) <= 0 && v.Compare(hi) <= 0
}

// IsZero reports whether all components are zero.
func (v Version) IsZero() bool {
	return v == Version{}
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d.%d", v.Major, v.Minor, v.Build, v.Revision)
}

// ParseVersion parses one to four dot separated components. Missing trailing
// components and "*" components are zero.
func ParseVersion(s string) (Version, error) {
	return parseVersion(s, 0)
}

// ParseMaxVersion is like ParseVersion, but missing trailing components are
// 65535 so that "2.1" and "2.1.*" cover every 2.1.x.y release.
func ParseMaxVersion(s string) (Version, error) {
	return parseVersion(s, math.MaxUint16)
}

func parseVersion(s string, fill uint16) (Version, error) {
	parts := strings.Split(strings.TrimSpace(s), ".")
	if len(parts) == 0 || len(parts) > 4 || parts[0] == "" {
		return Version{}, fmt.Errorf("invalid version %q", s)
	}
	comps := [4]uint16{fill, fill, fill, fill}
	for i, p := range parts {
		if p == "*" {
			continue
		}
		n, err := strconv.ParseUint(p, 10, 16)
		if err != nil {
			return Version{}, fmt.Errorf("invalid version %q: %w", s, err)
		}
		comps[i] = uint16(n)
	}
	return Version{comps[0], comps[1], comps[2], comps[3]}, nil
}
