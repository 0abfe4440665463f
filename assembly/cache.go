// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package assembly // import "go.opentelemetry.io/clrprofiler/assembly"

import (
	"fmt"
	"time"

	lru "github.com/elastic/go-freelru"
	"github.com/zeebo/xxh3"
)

const (
	// DefaultParseCacheSize is enough for the references of a large application.
	DefaultParseCacheSize = 4096

	// parseCacheLifetime bounds how long a reference string stays cached.
	parseCacheLifetime = 30 * time.Minute
)

// ParseCache memoizes ParseReference. The same AssemblyRef strings show up for
// every module that is loaded, so they are parsed once.
type ParseCache struct {
	refs *lru.SyncedLRU[string, Reference]
}

func hashString(s string) uint32 {
	return uint32(xxh3.HashString(s))
}

// NewParseCache creates a cache holding up to size parsed references.
func NewParseCache(size uint32) (*ParseCache, error) {
	refs, err := lru.NewSynced[string, Reference](size, hashString)
	if err != nil {
		return nil, fmt.Errorf("failed to create assembly reference cache: %w", err)
	}
	refs.SetLifetime(parseCacheLifetime)
	return &ParseCache{refs: refs}, nil
}

// Parse returns ParseReference(s), consulting the cache first.
func (c *ParseCache) Parse(s string) Reference {
	if c == nil {
		return ParseReference(s)
	}
	if ref, ok := c.refs.Get(s); ok {
		return ref
	}
	ref := ParseReference(s)
	c.refs.Add(s, ref)
	return ref
}

// Len returns the number of cached references.
func (c *ParseCache) Len() int {
	return c.refs.Len()
}
