// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package libpf holds the identifiers shared by all layers of the ReJIT
// engine: runtime handles for modules, functions and app domains, and the
// metadata token of a method definition.
package libpf // import "go.opentelemetry.io/clrprofiler/libpf"

import (
	"cmp"
	"fmt"
	"slices"
)

// ModuleID is the opaque runtime handle of a loaded module.
type ModuleID uint64

// FunctionID is the opaque runtime handle of one compiled instantiation of a method.
// A generic method definition can be seen under many FunctionIDs.
type FunctionID uint64

// AppDomainID is the opaque runtime handle of an application domain.
type AppDomainID uint64

// AssemblyID is the opaque runtime handle of a loaded assembly.
type AssemblyID uint64

// ReJITID identifies one ReJIT version of a function.
type ReJITID uint64

func (id ModuleID) String() string {
	return fmt.Sprintf("0x%x", uint64(id))
}

func (id FunctionID) String() string {
	return fmt.Sprintf("0x%x", uint64(id))
}

// Method names one method definition inside a loaded module.
type Method struct {
	Module ModuleID
	Token  MethodToken
}

func (m Method) String() string {
	return fmt.Sprintf("[ModuleId=%v, MethodDef=%v]", m.Module, m.Token)
}

// Void allows to use maps as sets without memory allocation for the values.
type Void struct{}

// Set is a convenience alias for a map with a `Void` value.
type Set[T comparable] map[T]Void

// Add inserts item and reports whether it was not present before.
func (s Set[T]) Add(item T) bool {
	if _, ok := s[item]; ok {
		return false
	}
	s[item] = Void{}
	return true
}

// Contains reports whether item is in the set.
func (s Set[T]) Contains(item T) bool {
	_, ok := s[item]
	return ok
}

// ToSlice converts the Set keys into a slice.
func (s Set[T]) ToSlice() []T {
	slice := make([]T, 0, len(s))
	for item := range s {
		slice = append(slice, item)
	}
	return slice
}

// SliceToSet creates a set from a slice, deduplicating it.
func SliceToSet[T comparable](s []T) Set[T] {
	set := make(Set[T], len(s))
	for _, item := range s {
		set[item] = Void{}
	}
	return set
}

// SplitMethods splits a slice of Method into the parallel module and token
// slices expected by the runtime's ReJIT request API.
func SplitMethods(methods []Method) ([]ModuleID, []MethodToken) {
	modules := make([]ModuleID, len(methods))
	tokens := make([]MethodToken, len(methods))
	for i, m := range methods {
		modules[i] = m.Module
		tokens[i] = m.Token
	}
	return modules, tokens
}

// ZipMethods is the inverse of SplitMethods. Extra elements of the longer
// slice are ignored.
func ZipMethods(modules []ModuleID, tokens []MethodToken) []Method {
	n := min(len(modules), len(tokens))
	methods := make([]Method, n)
	for i := range n {
		methods[i] = Method{Module: modules[i], Token: tokens[i]}
	}
	return methods
}

// SortMethods orders methods by module and token, for deterministic output.
func SortMethods(methods []Method) {
	slices.SortFunc(methods, func(a, b Method) int {
		if c := cmp.Compare(a.Module, b.Module); c != 0 {
			return c
		}
		return cmp.Compare(a.Token, b.Token)
	})
}
