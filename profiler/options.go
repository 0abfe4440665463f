// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package profiler // import "go.opentelemetry.io/clrprofiler/profiler"

import (
	"time"

	"go.opentelemetry.io/clrprofiler/assembly"
	"go.opentelemetry.io/clrprofiler/host"
	"go.opentelemetry.io/clrprofiler/integration"
)

const (
	// DefaultModuleCacheSize is the number of module descriptions kept.
	DefaultModuleCacheSize = 1024

	defaultMetricsInterval = 1 * time.Minute
)

// Options configures a Profiler.
type Options struct {
	// Enabled is the master switch. A disabled profiler observes module
	// loads but never instruments anything.
	Enabled bool
	Mode    integration.Mode

	// DisabledIntegrations are integration names removed before matching.
	DisabledIntegrations []string
	// ExcludedAssemblies are target assembly names that are never instrumented.
	ExcludedAssemblies []string

	// EnableInlining leaves inlining of rewritten methods to the runtime.
	EnableInlining bool
	// DisableOptimizations asks the runtime to compile rewritten methods
	// without optimizations.
	DisableOptimizations bool
	// ReJITWithInliners makes the runtime also rejit callers that inlined
	// instrumented methods, where supported.
	ReJITWithInliners bool

	ModuleCacheSize    uint32
	ReferenceCacheSize uint32
	// MetricsInterval is how often counters are reported. Zero reports
	// them only on shutdown.
	MetricsInterval time.Duration
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		Enabled:            true,
		Mode:               integration.ModeCallTarget,
		ModuleCacheSize:    DefaultModuleCacheSize,
		ReferenceCacheSize: assembly.DefaultParseCacheSize,
		MetricsInterval:    defaultMetricsInterval,
	}
}

// codegenFlags returns the flags set on every rewritten method.
func (o *Options) codegenFlags() uint32 {
	var flags uint32
	if !o.EnableInlining {
		flags |= host.CodegenDisableInlining
	}
	if o.DisableOptimizations {
		flags |= host.CodegenDisableAllOptimizations
	}
	return flags
}
