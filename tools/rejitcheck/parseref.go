// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"io"
	"os"

	"github.com/peterbourgon/ff/v3/ffcli"

	"go.opentelemetry.io/clrprofiler/assembly"
)

type parseRefCmd struct{}

func newParseRefCmd() *ffcli.Command {
	cmd := parseRefCmd{}
	set := flag.NewFlagSet("parseref", flag.ExitOnError)
	return &ffcli.Command{
		Name:       "parseref",
		ShortUsage: "parseref <reference>...",
		ShortHelp:  "Parse textual assembly references",
		LongHelp: "Each argument is parsed like an AssemblyRef string, e.g.\n" +
			"  \"System.Net.Http, Version=4.2.0.0, Culture=neutral, " +
			"PublicKeyToken=b03f5f7f11d50a3a\"",
		FlagSet: set,
		Exec:    cmd.exec,
	}
}

// parsedReference is the JSON output of parseref.
type parsedReference struct {
	Input          string `json:"input"`
	Name           string `json:"name"`
	Version        string `json:"version"`
	Locale         string `json:"locale"`
	PublicKeyToken string `json:"publicKeyToken,omitempty"`
	Canonical      string `json:"canonical"`
}

func parseReferences(args []string) []parsedReference {
	parsed := make([]parsedReference, 0, len(args))
	for _, arg := range args {
		ref := assembly.ParseReference(arg)
		out := parsedReference{
			Input:     arg,
			Name:      ref.Name,
			Version:   ref.Version.String(),
			Locale:    ref.Locale,
			Canonical: ref.String(),
		}
		if !ref.PublicKey.IsZero() {
			out.PublicKeyToken = ref.PublicKey.String()
		}
		parsed = append(parsed, out)
	}
	return parsed
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

func (cmd *parseRefCmd) exec(_ context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("no assembly reference given")
	}
	return writeJSON(os.Stdout, parseReferences(args))
}
