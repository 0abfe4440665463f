// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// rejitcheck exercises the ReJIT engine without a runtime. It parses
// assembly references, matches integration definitions against module
// fixtures and simulates a process loading modules from many threads.
package main

import (
	"context"
	"errors"
	"flag"
	"os"

	"github.com/peterbourgon/ff/v3/ffcli"
	log "github.com/sirupsen/logrus"
)

func main() {
	log.SetReportCaller(false)
	log.SetFormatter(&log.TextFormatter{})

	root := ffcli.Command{
		Name:       "rejitcheck",
		ShortUsage: "rejitcheck <subcommand> [flags]",
		ShortHelp:  "Tool for checking integration definitions against module fixtures",
		Subcommands: []*ffcli.Command{
			newParseRefCmd(),
			newMatchCmd(),
			newSimulateCmd(),
		},
		Exec: func(context.Context, []string) error {
			return flag.ErrHelp
		},
	}

	if err := root.ParseAndRun(context.Background(), os.Args[1:]); err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			log.Fatalf("%v", err)
		}
	}
}
