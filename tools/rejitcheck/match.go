// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/peterbourgon/ff/v3/ffcli"

	"go.opentelemetry.io/clrprofiler/assembly"
	"go.opentelemetry.io/clrprofiler/config"
	"go.opentelemetry.io/clrprofiler/hostsim"
	"go.opentelemetry.io/clrprofiler/integration"
)

type matchCmd struct {
	modulePath string
}

func newMatchCmd() *ffcli.Command {
	cmd := matchCmd{}
	set := flag.NewFlagSet("match", flag.ExitOnError)
	set.StringVar(&cmd.modulePath, "module", "", "Path of the module fixture to match")
	return &ffcli.Command{
		Name:       "match",
		ShortUsage: "match -module <fixture> [-- profiler flags]",
		ShortHelp:  "Match the integrations against one module fixture",
		LongHelp: "Arguments after -- are profiler flags, e.g.\n" +
			"  match -module app.toml -- -integrations integrations.toml " +
			"-trace-calltarget-enabled=false",
		FlagSet: set,
		Exec:    cmd.exec,
	}
}

// matchedMethod is the JSON output of match.
type matchedMethod struct {
	Token       string `json:"token"`
	Type        string `json:"type"`
	Method      string `json:"method"`
	Arguments   int    `json:"arguments"`
	Integration string `json:"integration"`
	Wrapper     string `json:"wrapper"`
}

// matchResult reports how many integration methods survived each stage.
type matchResult struct {
	Module   string          `json:"module"`
	Prepared int             `json:"prepared"`
	Filtered int             `json:"filtered"`
	Matches  []matchedMethod `json:"matches"`
}

func matchModule(cfg *config.Config, integrations []integration.Integration,
	fixture *hostsim.ModuleFixture) (*matchResult, error) {
	module, err := fixture.Build()
	if err != nil {
		return nil, err
	}
	sim := hostsim.New()
	id := sim.Load(module, fixture.AppDomainID())
	info, err := sim.GetModuleInfo(id)
	if err != nil {
		return nil, err
	}

	refs, err := assembly.NewParseCache(assembly.DefaultParseCacheSize)
	if err != nil {
		return nil, err
	}
	matcher := cfg.Matcher(refs)
	prepared := matcher.Prepare(integrations)
	filtered, err := matcher.FilterForModule(prepared, info, module)
	if err != nil {
		return nil, err
	}
	own, err := module.AssemblyMetadata()
	if err != nil {
		return nil, err
	}

	result := &matchResult{
		Module:   own.String(),
		Prepared: len(prepared),
		Filtered: len(filtered),
		Matches:  []matchedMethod{},
	}
	for _, m := range integration.FindMethods(module, info, own, filtered) {
		result.Matches = append(result.Matches, matchedMethod{
			Token:       m.Token.String(),
			Type:        m.Function.Type.Name,
			Method:      m.Function.Name,
			Arguments:   m.Function.Signature.NumberOfArguments(),
			Integration: m.Integration,
			Wrapper:     m.Replacement.Wrapper.TypeName,
		})
	}
	return result, nil
}

// loadProfilerConfig parses and validates the profiler flags given after --.
func loadProfilerConfig(name string, args []string) (*config.Config, error) {
	cfg, err := config.Parse(name, args)
	if err != nil {
		return nil, err
	}
	if err = cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid profiler configuration: %w", err)
	}
	cfg.SetupLogging()
	cfg.Dump()
	return cfg, nil
}

func (cmd *matchCmd) exec(_ context.Context, args []string) error {
	if cmd.modulePath == "" {
		return errors.New("please specify `-module`")
	}
	cfg, err := loadProfilerConfig("match", args)
	if err != nil {
		return err
	}
	integrations, err := integration.Load(cfg.Integrations)
	if err != nil {
		return err
	}
	fixture, err := hostsim.LoadFixture(cmd.modulePath)
	if err != nil {
		return err
	}
	result, err := matchModule(cfg, integrations, fixture)
	if err != nil {
		return err
	}
	return writeJSON(os.Stdout, result)
}
