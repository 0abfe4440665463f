// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.opentelemetry.io/clrprofiler/assembly"
	"go.opentelemetry.io/clrprofiler/integration"
	"go.opentelemetry.io/clrprofiler/profiler"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse("test", nil)
	require.NoError(t, err)

	assert.Empty(t, cfg.Integrations)
	assert.Empty(t, cfg.DisabledIntegrations)
	assert.True(t, cfg.CallTargetEnabled)
	assert.True(t, cfg.TraceEnabled)
	assert.False(t, cfg.EnableInlining)
	assert.False(t, cfg.DisableOptimizations)
	assert.Equal(t, uint(profiler.DefaultModuleCacheSize), cfg.ModuleCacheSize)
	assert.Equal(t, uint(assembly.DefaultParseCacheSize), cfg.ReferenceCacheSize)
	assert.Equal(t, defaultMetricsInterval, cfg.MetricsInterval)
	assert.Equal(t, integration.ModeCallTarget, cfg.Mode())
}

func TestParseFlags(t *testing.T) {
	cfg, err := Parse("test", []string{
		"-integrations", "/etc/integrations.toml",
		"-disabled-integrations", "HttpMessageHandler; AdoNet;",
		"-trace-calltarget-enabled=false",
		"-clr-disable-optimizations",
		"-metrics-interval", "10s",
	})
	require.NoError(t, err)

	assert.Equal(t, "/etc/integrations.toml", cfg.Integrations)
	assert.Equal(t, []string{"HttpMessageHandler", "AdoNet"}, cfg.DisabledIntegrations)
	assert.Equal(t, integration.ModeCallSite, cfg.Mode())
	assert.True(t, cfg.DisableOptimizations)
	assert.Equal(t, 10*time.Second, cfg.MetricsInterval)
}

func TestParseEnvironment(t *testing.T) {
	t.Setenv("DD_DISABLED_INTEGRATIONS", "A; B;;")
	t.Setenv("DD_EXCLUDED_ASSEMBLIES", "System.Net.Http")
	t.Setenv("DD_TRACE_CALLTARGET_ENABLED", "false")
	t.Setenv("DD_CLR_ENABLE_INLINING", "1")
	t.Setenv("DD_TRACE_DEBUG", "true")

	cfg, err := Parse("test", []string{"-disabled-integrations", "C"})
	require.NoError(t, err)

	// Flags take precedence over the environment.
	assert.Equal(t, []string{"C"}, cfg.DisabledIntegrations)
	assert.Equal(t, []string{"System.Net.Http"}, cfg.ExcludedAssemblies)
	assert.False(t, cfg.CallTargetEnabled)
	assert.True(t, cfg.EnableInlining)
	assert.True(t, cfg.Debug)
}

func TestParseConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profiler.conf")
	require.NoError(t, os.WriteFile(path, []byte(
		"integrations /opt/integrations.toml\n"+
			"module-cache-size 64\n"+
			"trace-enabled false\n"+
			"option-of-another-component 1\n"), 0o600))

	cfg, err := Parse("test", []string{"-config", path, "-module-cache-size", "128"})
	require.NoError(t, err)

	assert.Equal(t, "/opt/integrations.toml", cfg.Integrations)
	assert.Equal(t, uint(128), cfg.ModuleCacheSize)
	assert.False(t, cfg.TraceEnabled)

	// A missing file is not an error.
	_, err = Parse("test", []string{"-config", filepath.Join(t.TempDir(), "missing.conf")})
	require.NoError(t, err)
}

func TestValidate(t *testing.T) {
	definitions := filepath.Join(t.TempDir(), "integrations.toml")
	require.NoError(t, os.WriteFile(definitions, nil, 0o600))

	valid := func() *Config {
		return &Config{
			Integrations:       definitions,
			ModuleCacheSize:    16,
			ReferenceCacheSize: 16,
			MetricsInterval:    time.Minute,
		}
	}

	tests := map[string]struct {
		modify  func(*Config)
		wantErr []string
	}{
		"valid": {
			modify: func(*Config) {},
		},
		"metrics on shutdown only": {
			modify: func(cfg *Config) { cfg.MetricsInterval = 0 },
		},
		"no integrations": {
			modify:  func(cfg *Config) { cfg.Integrations = "" },
			wantErr: []string{"no integration definitions file given"},
		},
		"missing integrations": {
			modify:  func(cfg *Config) { cfg.Integrations = definitions + ".missing" },
			wantErr: []string{"integration definitions:"},
		},
		"all problems": {
			modify: func(cfg *Config) {
				cfg.ModuleCacheSize = 0
				cfg.ReferenceCacheSize = 0
				cfg.MetricsInterval = time.Millisecond
			},
			wantErr: []string{
				"invalid module cache size 0",
				"invalid reference cache size 0",
				"metrics interval 1ms is below 1s",
			},
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := valid()
			tc.modify(cfg)
			err := cfg.Validate()
			if len(tc.wantErr) == 0 {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			for _, want := range tc.wantErr {
				assert.ErrorContains(t, err, want)
			}
		})
	}
}

func TestOptions(t *testing.T) {
	cfg, err := Parse("test", []string{
		"-excluded-assemblies", "Foo;Bar",
		"-clr-enable-inlining",
		"-clr-rejit-with-inliners",
		"-module-cache-size", "32",
		"-metrics-interval", "0",
	})
	require.NoError(t, err)

	opts := cfg.Options()
	assert.True(t, opts.Enabled)
	assert.Equal(t, integration.ModeCallTarget, opts.Mode)
	assert.Equal(t, []string{"Foo", "Bar"}, opts.ExcludedAssemblies)
	assert.True(t, opts.EnableInlining)
	assert.True(t, opts.ReJITWithInliners)
	assert.Equal(t, uint32(32), opts.ModuleCacheSize)
	assert.Zero(t, opts.MetricsInterval)

	m := cfg.Matcher(nil)
	assert.Equal(t, integration.ModeCallTarget, m.Mode())
}

func TestSetupLogging(t *testing.T) {
	level := log.GetLevel()
	t.Cleanup(func() { log.SetLevel(level) })

	(&Config{Debug: true}).SetupLogging()
	assert.Equal(t, log.DebugLevel, log.GetLevel())
	(&Config{}).SetupLogging()
	assert.Equal(t, log.InfoLevel, log.GetLevel())
}
