// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package integration // import "go.opentelemetry.io/clrprofiler/integration"

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"go.uber.org/multierr"

	"go.opentelemetry.io/clrprofiler/assembly"
)

// Definitions files look like:
//
//	[[integrations]]
//	name = "HttpMessageHandler"
//
//	  [[integrations.method_replacements]]
//	  [integrations.method_replacements.target]
//	  assembly = "System.Net.Http"
//	  type = "System.Net.Http.HttpClientHandler"
//	  method = "SendAsync"
//	  signature_types = ["System.Threading.Tasks.Task`1[System.Net.Http.HttpResponseMessage]",
//	    "System.Net.Http.HttpRequestMessage", "System.Threading.CancellationToken"]
//	  minimum_version = "4.0.0"
//	  maximum_version = "7.*.*"
//
//	  [integrations.method_replacements.wrapper]
//	  assembly = "Datadog.Trace, Version=2.0.0.0, Culture=neutral, PublicKeyToken=def86d061d0d2eeb"
//	  type = "Datadog.Trace.ClrProfiler.AutoInstrumentation.Http.HttpClientHandlerIntegration"
//	  action = "CallTargetModification"

type methodReferenceFile struct {
	Assembly       string   `toml:"assembly"`
	Type           string   `toml:"type"`
	Method         string   `toml:"method"`
	Action         string   `toml:"action"`
	Signature      string   `toml:"signature"`
	SignatureTypes []string `toml:"signature_types"`
	MinVersion     string   `toml:"minimum_version"`
	MaxVersion     string   `toml:"maximum_version"`
}

type replacementFile struct {
	Caller  methodReferenceFile `toml:"caller"`
	Target  methodReferenceFile `toml:"target"`
	Wrapper methodReferenceFile `toml:"wrapper"`
}

type integrationFile struct {
	Name         string            `toml:"name"`
	Replacements []replacementFile `toml:"method_replacements"`
}

type definitionsFile struct {
	Integrations []integrationFile `toml:"integrations"`
}

// Load reads integration definitions from a TOML file.
func Load(path string) ([]Integration, error) {
	var f definitionsFile
	if _, err := toml.DecodeFile(path, &f); err != nil {
		return nil, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	integrations, err := f.convert()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return integrations, nil
}

// Decode reads integration definitions from TOML text.
func Decode(data string) ([]Integration, error) {
	var f definitionsFile
	if _, err := toml.Decode(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse TOML: %w", err)
	}
	return f.convert()
}

// convert validates the file and builds the integrations. All problems are
// reported together.
func (f *definitionsFile) convert() ([]Integration, error) {
	var errs error
	integrations := make([]Integration, 0, len(f.Integrations))
	for i := range f.Integrations {
		fi := &f.Integrations[i]
		name := strings.TrimSpace(fi.Name)
		if name == "" {
			errs = multierr.Append(errs, fmt.Errorf("integrations[%d]: missing name", i))
		}
		if len(fi.Replacements) == 0 {
			errs = multierr.Append(errs, fmt.Errorf("integration %q: no method_replacements", name))
		}
		integration := Integration{
			Name:         name,
			Replacements: make([]MethodReplacement, 0, len(fi.Replacements)),
		}
		for j := range fi.Replacements {
			r, err := fi.Replacements[j].convert()
			if err != nil {
				errs = multierr.Append(errs,
					fmt.Errorf("integration %q method_replacements[%d]: %w", name, j, err))
				continue
			}
			integration.Replacements = append(integration.Replacements, r)
		}
		integrations = append(integrations, integration)
	}
	if errs != nil {
		return nil, errs
	}
	return integrations, nil
}

func (r *replacementFile) convert() (MethodReplacement, error) {
	caller, callerErr := r.Caller.convert()
	target, targetErr := r.Target.convert()
	wrapper, wrapperErr := r.Wrapper.convert()
	errs := multierr.Combine(
		prefixErr("caller", callerErr),
		prefixErr("target", targetErr),
		prefixErr("wrapper", wrapperErr))

	if target.Assembly.Name == "" {
		errs = multierr.Append(errs, errors.New("target: missing assembly"))
	}
	if target.TypeName == "" || target.MethodName == "" {
		errs = multierr.Append(errs, errors.New("target: missing type or method"))
	}
	if len(target.SignatureTypes) == 0 {
		errs = multierr.Append(errs, errors.New("target: signature_types must start with the return type"))
	}
	if !wrapper.Action.Valid() {
		errs = multierr.Append(errs, fmt.Errorf("wrapper: unknown action %q", wrapper.Action))
	}
	if errs != nil {
		return MethodReplacement{}, errs
	}
	return MethodReplacement{Caller: caller, Target: target, Wrapper: wrapper}, nil
}

func prefixErr(prefix string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", prefix, err)
}

func (m *methodReferenceFile) convert() (MethodReference, error) {
	ref := MethodReference{
		Assembly:       assembly.ParseReference(strings.TrimSpace(m.Assembly)),
		TypeName:       strings.TrimSpace(m.Type),
		MethodName:     strings.TrimSpace(m.Method),
		Action:         Action(m.Action),
		SignatureTypes: m.SignatureTypes,
		MaxVersion:     assembly.MaxVersion,
	}
	if m.Assembly == "" {
		ref.Assembly = assembly.Reference{}
	}

	var errs error
	if m.MinVersion != "" {
		v, err := assembly.ParseVersion(m.MinVersion)
		errs = multierr.Append(errs, err)
		ref.MinVersion = v
	}
	if m.MaxVersion != "" {
		v, err := assembly.ParseMaxVersion(m.MaxVersion)
		errs = multierr.Append(errs, err)
		ref.MaxVersion = v
	}
	if errs == nil && ref.MinVersion.Compare(ref.MaxVersion) > 0 {
		errs = fmt.Errorf("minimum_version %v is above maximum_version %v", ref.MinVersion, ref.MaxVersion)
	}
	if m.Signature != "" {
		sig, err := hex.DecodeString(strings.ReplaceAll(m.Signature, " ", ""))
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("invalid signature: %w", err))
		}
		ref.Signature = sig
	}
	return ref, errs
}
