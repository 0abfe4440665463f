// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package integration // import "go.opentelemetry.io/clrprofiler/integration"

import (
	"errors"

	log "github.com/sirupsen/logrus"

	"go.opentelemetry.io/clrprofiler/assembly"
	"go.opentelemetry.io/clrprofiler/libpf"
	"go.opentelemetry.io/clrprofiler/metadata"
)

// MethodMatch is a method definition of a module that satisfies a replacement.
type MethodMatch struct {
	Token       libpf.MethodToken
	Function    metadata.FunctionInfo
	Integration string
	Replacement *MethodReplacement
}

// FindMethods searches module for the methods targeted by methods. own is
// the identity of the module's assembly. A target is only looked up when it
// lives in this module's assembly within the version range; it must then
// exist by type name, method name, argument count and argument type names.
// Methods that do not match are skipped. Each method is returned once, with
// the first replacement that matched it.
func FindMethods(imp metadata.Import, module metadata.ModuleInfo, own assembly.Reference,
	methods []IntegrationMethod) []MethodMatch {
	var matches []MethodMatch
	seen := libpf.Set[libpf.MethodToken]{}

	for _, m := range methods {
		target := &m.Replacement.Target
		if target.Assembly.Name != module.Assembly.Name {
			continue
		}
		if !own.Version.InRange(target.MinVersion, target.MaxVersion) {
			continue
		}
		typeDef, err := metadata.FindTypeDef(imp, target.TypeName)
		if err != nil {
			log.Debugf("Type %s not found in %s: %v", target.TypeName, module.Assembly.Name, err)
			continue
		}

		log.Debugf("Looking for '%s.%s(%d params)' in %s",
			target.TypeName, target.MethodName, target.ArgumentCount(), module.Assembly.Name)
		for tok := range imp.EnumMethodsWithName(typeDef, target.MethodName) {
			info, ok := matchOverload(imp, tok, target)
			if !ok {
				continue
			}
			if !seen.Add(tok) {
				log.Debugf("Method %v of %s already matched", tok, module.Assembly.Name)
				continue
			}
			log.Debugf("Matched [ModuleId=%v, MethodDef=%v, Type=%s, Method=%s(%d params)] for %s",
				module.ID, tok, info.Type.Name, info.Name, info.Signature.NumberOfArguments(), m.Name)
			matches = append(matches, MethodMatch{
				Token:       tok,
				Function:    info,
				Integration: m.Name,
				Replacement: m.Replacement,
			})
		}
	}
	return matches
}

// matchOverload compares the signature of one overload against target.
func matchOverload(imp metadata.Import, tok libpf.MethodToken,
	target *MethodReference) (metadata.FunctionInfo, bool) {
	info, err := metadata.GetFunctionInfo(imp, tok)
	if err != nil {
		if errors.Is(err, metadata.ErrInvalidSignature) {
			log.Warnf("The method signature of %v cannot be parsed: %v", tok, err)
		} else {
			log.Warnf("The method %v is not valid: %v", tok, err)
		}
		return info, false
	}

	numArgs := info.Signature.NumberOfArguments()
	if numArgs != target.ArgumentCount() {
		log.Debugf("%s has %d arguments, want %d", info.String(), numArgs, target.ArgumentCount())
		return info, false
	}
	for i := range numArgs {
		want := target.SignatureTypes[i+1]
		if want == WildcardType {
			continue
		}
		got, err := info.Signature.Params[i].Name(imp)
		if err != nil {
			log.Debugf("%s argument %d has no type name: %v", info.String(), i, err)
			return info, false
		}
		if got != want {
			log.Debugf("%s argument %d is %s, want %s", info.String(), i, got, want)
			return info, false
		}
	}
	return info, true
}
