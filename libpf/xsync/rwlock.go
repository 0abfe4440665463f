// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package xsync // import "go.opentelemetry.io/clrprofiler/libpf/xsync"

import "sync"

// RWMutex is a sync.RWMutex that hides the data it protects. The data can only
// be reached through RLock/WLock, and the matching unlock invalidates the
// pointer handed out by the lock call:
//
//	type Index struct {
//		entries xsync.RWMutex[map[ID]*Entry]
//	}
//
//	func (idx *Index) Get(id ID) *Entry {
//		entries := idx.entries.RLock()
//		defer idx.entries.RUnlock(&entries)
//		return (*entries)[id]
//	}
//
// Forgetting to take the lock does not compile, and using the pointer after
// unlocking dereferences nil.
type RWMutex[T any] struct {
	guarded T
	mutex   sync.RWMutex
}

// NewRWMutex creates a new read-write mutex guarding the given value.
func NewRWMutex[T any](guarded T) RWMutex[T] {
	return RWMutex[T]{
		guarded: guarded,
	}
}

// RLock locks the mutex for reading, returning a pointer to the protected data.
//
// The caller must not write through the returned pointer, and must not store
// it anywhere that outlives the critical section.
func (mtx *RWMutex[T]) RLock() *T {
	mtx.mutex.RLock()
	return &mtx.guarded
}

// RUnlock unlocks the mutex after previously being locked by RLock.
func (mtx *RWMutex[T]) RUnlock(ref **T) {
	*ref = nil
	mtx.mutex.RUnlock()
}

// WLock locks the mutex for writing, returning a pointer to the protected data.
func (mtx *RWMutex[T]) WLock() *T {
	mtx.mutex.Lock()
	return &mtx.guarded
}

// WUnlock unlocks the mutex after previously being locked by WLock.
func (mtx *RWMutex[T]) WUnlock(ref **T) {
	*ref = nil
	mtx.mutex.Unlock()
}
