// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package integration holds the instrumentation definitions and the filter
// pipeline that selects the definitions relevant for a loaded module.
package integration // import "go.opentelemetry.io/clrprofiler/integration"

import (
	"fmt"

	"go.opentelemetry.io/clrprofiler/assembly"
)

// Action tells the IL rewriter how a wrapper method is applied.
type Action string

const (
	// ActionCallTargetModification wraps the target method body with begin and
	// end calls to the wrapper type.
	ActionCallTargetModification Action = "CallTargetModification"
	// ActionReplaceTargetMethod replaces calls to the target with calls to the wrapper.
	ActionReplaceTargetMethod Action = "ReplaceTargetMethod"
	// ActionInsertFirst inserts a call to the wrapper as first instruction.
	ActionInsertFirst Action = "InsertFirst"
)

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	switch a {
	case ActionCallTargetModification, ActionReplaceTargetMethod, ActionInsertFirst:
		return true
	}
	return false
}

// Mode is the instrumentation mode of the process. Exactly one is active.
type Mode uint8

const (
	// ModeCallSite rewrites call sites (ReplaceTargetMethod, InsertFirst).
	ModeCallSite Mode = iota
	// ModeCallTarget rewrites the target method bodies (CallTargetModification).
	ModeCallTarget
)

// Accepts reports whether replacements with the given wrapper action are
// applied in this mode.
func (m Mode) Accepts(a Action) bool {
	return (m == ModeCallTarget) == (a == ActionCallTargetModification)
}

func (m Mode) String() string {
	if m == ModeCallTarget {
		return "calltarget"
	}
	return "callsite"
}

// WildcardType in an integration signature matches any argument type.
const WildcardType = "_"

// MethodReference describes one method taking part in a replacement.
type MethodReference struct {
	Assembly   assembly.Reference
	TypeName   string
	MethodName string
	Action     Action
	// Signature is the method signature blob of the wrapper, used by the rewriter.
	Signature  []byte
	MinVersion assembly.Version
	MaxVersion assembly.Version
	// SignatureTypes is the return type followed by the argument types.
	SignatureTypes []string
}

// ArgumentCount is the number of declared arguments, excluding the return type.
func (m *MethodReference) ArgumentCount() int {
	return max(len(m.SignatureTypes)-1, 0)
}

func (m *MethodReference) String() string {
	return fmt.Sprintf("[%s]%s.%s(%d params)", m.Assembly.Name, m.TypeName, m.MethodName, m.ArgumentCount())
}

// MethodReplacement is the caller/target/wrapper triple of one instrumentation point.
type MethodReplacement struct {
	Caller  MethodReference
	Target  MethodReference
	Wrapper MethodReference
}

// Integration is a named group of replacements, the unit that can be disabled.
type Integration struct {
	Name         string
	Replacements []MethodReplacement
}

// IntegrationMethod is one replacement together with the name of its
// integration. Replacements are shared and must not be modified.
type IntegrationMethod struct {
	Name        string
	Replacement *MethodReplacement
}
