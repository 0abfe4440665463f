// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.opentelemetry.io/clrprofiler/config"
	"go.opentelemetry.io/clrprofiler/hostsim"
	"go.opentelemetry.io/clrprofiler/integration"
)

const integrationsFile = "testdata/integrations.toml"

func testConfig(t *testing.T, args ...string) (*config.Config, []integration.Integration) {
	t.Helper()
	cfg, err := loadProfilerConfig("test",
		append([]string{"-integrations", integrationsFile, "-metrics-interval", "0"}, args...))
	require.NoError(t, err)
	integrations, err := integration.Load(cfg.Integrations)
	require.NoError(t, err)
	return cfg, integrations
}

func TestParseReferences(t *testing.T) {
	parsed := parseReferences([]string{
		"System.Net.Http, Version=4.2.0.0, Culture=neutral, PublicKeyToken=b03f5f7f11d50a3a",
		"App",
	})
	require.Len(t, parsed, 2)
	assert.Equal(t, parsedReference{
		Input:          "System.Net.Http, Version=4.2.0.0, Culture=neutral, PublicKeyToken=b03f5f7f11d50a3a",
		Name:           "System.Net.Http",
		Version:        "4.2.0.0",
		Locale:         "neutral",
		PublicKeyToken: "b03f5f7f11d50a3a",
		Canonical:      "System.Net.Http, Version=4.2.0.0, Culture=neutral, PublicKeyToken=b03f5f7f11d50a3a",
	}, parsed[0])
	assert.Equal(t, "App", parsed[1].Name)
	assert.Equal(t, "0.0.0.0", parsed[1].Version)
	assert.Empty(t, parsed[1].PublicKeyToken)
}

func TestMatchModule(t *testing.T) {
	tests := map[string]struct {
		module          string
		args            []string
		expectedMatches []string
	}{
		"calltarget": {
			module:          "02-http.toml",
			expectedMatches: []string{"System.Net.Http.HttpClientHandler.SendAsync(2)"},
		},
		"wildcard": {
			module:          "05-data.toml",
			expectedMatches: []string{"System.Data.SqlClient.SqlCommand.ExecuteReader(1)"},
		},
		"disabled": {
			module: "02-http.toml",
			args:   []string{"-disabled-integrations", "HttpMessageHandler"},
		},
		"callsite target is not in the caller": {
			module: "02-http.toml",
			args:   []string{"-trace-calltarget-enabled=false"},
		},
		"no references": {
			module: "01-corelib.toml",
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			cfg, integrations := testConfig(t, tc.args...)
			fixture, err := hostsim.LoadFixture(filepath.Join("testdata/modules", tc.module))
			require.NoError(t, err)

			result, err := matchModule(cfg, integrations, fixture)
			require.NoError(t, err)

			var matches []string
			for _, m := range result.Matches {
				matches = append(matches, fmt.Sprintf("%s.%s(%d)", m.Type, m.Method, m.Arguments))
			}
			assert.Equal(t, tc.expectedMatches, matches)
		})
	}
}

func TestSimulate(t *testing.T) {
	fixtures, err := hostsim.LoadFixtureDir("testdata/modules")
	require.NoError(t, err)
	require.Len(t, fixtures, 5)

	for _, producers := range []int{1, 4} {
		t.Run(fmt.Sprintf("producers=%d", producers), func(t *testing.T) {
			cfg, integrations := testConfig(t)
			report, err := simulate(context.Background(), cfg, integrations, fixtures, producers)
			require.NoError(t, err)

			assert.Equal(t, 5, report.Modules)
			assert.Empty(t, report.ContractViolation)
			// SendAsync, ExecuteReader and Main, which inlined SendAsync.
			assert.Len(t, report.RequestedMethods, 3)
			assert.Equal(t, 2, report.Rewritten)
			assert.Equal(t, map[string]int{"function info": 1}, report.Deferred)
			assert.GreaterOrEqual(t, report.Requests, 2)

			// Metrics cover this simulation only.
			assert.Equal(t, int64(5), report.Metrics["ModulesLoaded"])
			assert.Equal(t, int64(2), report.Metrics["RewritesPerformed"])
			assert.Equal(t, int64(1), report.Metrics["RewritesDeferred"])
		})
	}

	cfg, integrations := testConfig(t)
	_, err = simulate(context.Background(), cfg, integrations, fixtures, 0)
	require.ErrorContains(t, err, "invalid number of producers")
}

func TestSimulateDisabled(t *testing.T) {
	fixtures, err := hostsim.LoadFixtureDir("testdata/modules")
	require.NoError(t, err)

	cfg, integrations := testConfig(t, "-trace-enabled=false")
	report, err := simulate(context.Background(), cfg, integrations, fixtures, 2)
	require.NoError(t, err)
	assert.Zero(t, report.StartupMatches)
	assert.Zero(t, report.Requests)
	assert.Empty(t, report.RequestedMethods)
}
