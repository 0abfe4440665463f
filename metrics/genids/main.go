// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// genids creates the metric ID constants from metrics.json. The definitions
// are validated first, so that a broken metrics.json fails go generate
// instead of the first test run.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"go/format"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
	"go.uber.org/multierr"
)

const fieldPrefix = "clrprofiler."

type metricDef struct {
	Description string `json:"description"`
	MetricType  string `json:"type"`
	Name        string `json:"name"`
	FieldName   string `json:"field"`
	Unit        string `json:"unit"`
	ID          uint32 `json:"id"`
	Obsolete    bool   `json:"obsolete"`
}

// validate reports every definition problem at once. IDs must be unique and
// ascending, since metrics.json is append-only.
func validate(defs []metricDef) error {
	var errs error
	names := map[string]bool{}
	fields := map[string]bool{}
	var prevID uint32
	for i, m := range defs {
		if m.ID <= prevID {
			errs = multierr.Append(errs, fmt.Errorf("entry %d: id %d is not above %d", i, m.ID, prevID))
		}
		prevID = max(prevID, m.ID)

		if m.Name == "" || names[m.Name] {
			errs = multierr.Append(errs, fmt.Errorf("entry %d: missing or duplicate name %q", i, m.Name))
		}
		names[m.Name] = true

		if !strings.HasPrefix(m.FieldName, fieldPrefix) || fields[m.FieldName] {
			errs = multierr.Append(errs, fmt.Errorf("entry %d: field %q must be unique and start with %q",
				i, m.FieldName, fieldPrefix))
		}
		fields[m.FieldName] = true

		if m.MetricType != "counter" && m.MetricType != "gauge" {
			errs = multierr.Append(errs, fmt.Errorf("entry %d: unknown type %q", i, m.MetricType))
		}
	}
	return errs
}

func render(defs []metricDef) ([]byte, error) {
	var output bytes.Buffer
	output.WriteString(
		"// Code generated from metrics.json. DO NOT EDIT.\n" +
			"\n" +
			"package metrics\n" +
			"\n" +
			"// To add a new metric append an entry to metrics.json. ONLY APPEND !\n" +
			"// Then run 'go generate ./metrics' from the top directory.\n" +
			"\n" +
			"// Below are the different metric IDs that we currently implement.\n" +
			"const (\n")

	var maxID uint32
	for _, m := range defs {
		maxID = max(maxID, m.ID)
		if m.Obsolete {
			continue
		}
		fmt.Fprintf(&output, "\n\t// %s\n\tID%s = %d\n", m.Description, m.Name, m.ID)
	}
	// IDs are 1-based, IDMax is one above the largest.
	fmt.Fprintf(&output, "\n\t// max number of ID values, keep this as *last entry*\n"+
		"\tIDMax = %d\n)\n", maxID+1)

	return format.Source(output.Bytes())
}

func main() {
	if len(os.Args) < 3 {
		fmt.Fprintf(os.Stderr, "Usage: %s <metrics.json> <output.go>\n", os.Args[0])
		os.Exit(1)
	}

	input, err := os.ReadFile(os.Args[1])
	if err != nil {
		log.Fatalf("Failed to read %s: %v", os.Args[1], err)
	}

	var defs []metricDef
	if err = json.Unmarshal(input, &defs); err != nil {
		log.Fatalf("Failed to parse %s: %v", os.Args[1], err)
	}
	if err = validate(defs); err != nil {
		log.Fatalf("Invalid metric definitions in %s: %v", os.Args[1], err)
	}

	output, err := render(defs)
	if err != nil {
		log.Fatalf("Failed to format generated code: %v", err)
	}
	if err = os.WriteFile(os.Args[2], output, 0o600); err != nil {
		log.Fatalf("Failed to write %s: %v", os.Args[2], err)
	}
}
