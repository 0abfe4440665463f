// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package config reads the profiler configuration from command line flags,
// DD_* environment variables and an optional configuration file.
package config // import "go.opentelemetry.io/clrprofiler/config"

import (
	"errors"
	"flag"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/peterbourgon/ff/v3"
	log "github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"go.opentelemetry.io/clrprofiler/assembly"
	"go.opentelemetry.io/clrprofiler/integration"
	"go.opentelemetry.io/clrprofiler/profiler"
)

const (
	// EnvVarPrefix is prepended to the upper-cased flag names, so that
	// -trace-enabled is also read from DD_TRACE_ENABLED.
	EnvVarPrefix = "DD"

	defaultMetricsInterval = 1 * time.Minute
	// Below this the metrics reporting dominates the worker's own work.
	minMetricsInterval = 1 * time.Second
)

// Help messages
var (
	integrationsHelp         = "Path of the TOML file with the integration definitions."
	disabledIntegrationsHelp = "Semicolon separated names of integrations that are " +
		"never applied."
	excludedAssembliesHelp = "Semicolon separated names of target assemblies that are " +
		"never instrumented."
	callTargetHelp = "Instrument by rewriting the target method bodies (calltarget). " +
		"When false, call sites of the targets are rewritten instead."
	traceEnabledHelp         = "Master switch. When false, no method is instrumented."
	enableInliningHelp       = "Let the runtime inline rewritten methods."
	disableOptimizationsHelp = "Compile rewritten methods without JIT optimizations."
	rejitWithInlinersHelp    = "Ask the runtime to also rejit the callers that inlined " +
		"instrumented methods, where supported."
	debugHelp              = "Enable debug logging."
	moduleCacheSizeHelp    = "Number of loaded module descriptions to cache."
	referenceCacheSizeHelp = "Number of parsed assembly references to cache."
	metricsIntervalHelp    = fmt.Sprintf("Interval for reporting the internal metrics. "+
		"Zero reports them only on shutdown. Minimum is %v.", minMetricsInterval)
)

// Config is the profiler configuration.
type Config struct {
	Integrations         string
	DisabledIntegrations []string
	ExcludedAssemblies   []string
	CallTargetEnabled    bool
	TraceEnabled         bool
	EnableInlining       bool
	DisableOptimizations bool
	ReJITWithInliners    bool
	Debug                bool
	ModuleCacheSize      uint
	ReferenceCacheSize   uint
	MetricsInterval      time.Duration

	Fs *flag.FlagSet
}

// listValue is a flag.Value for semicolon separated lists.
type listValue struct {
	list *[]string
}

func (v listValue) String() string {
	if v.list == nil {
		return ""
	}
	return strings.Join(*v.list, ";")
}

// Set replaces the list. Surrounding blanks and empty entries are dropped.
func (v listValue) Set(s string) error {
	*v.list = splitList(s)
	return nil
}

func splitList(s string) []string {
	var list []string
	for _, item := range strings.Split(s, ";") {
		if item = strings.TrimSpace(item); item != "" {
			list = append(list, item)
		}
	}
	return list
}

// Parse reads the configuration from args, the environment and the file
// named by -config. Command line flags take precedence over the environment,
// which takes precedence over the file.
func Parse(name string, args []string) (*Config, error) {
	var cfg Config

	fs := flag.NewFlagSet(name, flag.ContinueOnError)

	// Please keep the parameters ordered alphabetically in the source-code.
	fs.BoolVar(&cfg.EnableInlining, "clr-enable-inlining", false, enableInliningHelp)
	fs.BoolVar(&cfg.DisableOptimizations, "clr-disable-optimizations", false,
		disableOptimizationsHelp)
	fs.BoolVar(&cfg.ReJITWithInliners, "clr-rejit-with-inliners", false, rejitWithInlinersHelp)

	fs.String("config", "", "Path to the configuration file.")

	fs.Var(listValue{&cfg.DisabledIntegrations}, "disabled-integrations", disabledIntegrationsHelp)
	fs.Var(listValue{&cfg.ExcludedAssemblies}, "excluded-assemblies", excludedAssembliesHelp)

	fs.StringVar(&cfg.Integrations, "integrations", "", integrationsHelp)

	fs.DurationVar(&cfg.MetricsInterval, "metrics-interval", defaultMetricsInterval,
		metricsIntervalHelp)

	fs.UintVar(&cfg.ModuleCacheSize, "module-cache-size", profiler.DefaultModuleCacheSize,
		moduleCacheSizeHelp)
	fs.UintVar(&cfg.ReferenceCacheSize, "reference-cache-size", assembly.DefaultParseCacheSize,
		referenceCacheSizeHelp)

	fs.BoolVar(&cfg.CallTargetEnabled, "trace-calltarget-enabled", true, callTargetHelp)
	fs.BoolVar(&cfg.Debug, "trace-debug", false, debugHelp)
	fs.BoolVar(&cfg.TraceEnabled, "trace-enabled", true, traceEnabledHelp)

	fs.Usage = func() {
		fs.PrintDefaults()
	}

	cfg.Fs = fs

	return &cfg, ff.Parse(fs, args,
		ff.WithEnvVarPrefix(EnvVarPrefix),
		ff.WithConfigFileFlag("config"),
		ff.WithConfigFileParser(ff.PlainParser),
		// Options of other profiler components may share the file.
		ff.WithIgnoreUndefined(true),
		ff.WithAllowMissingConfigFile(true),
	)
}

// Dump visits all flag sets, and dumps them all to debug
// Used for verbose mode logging.
func (cfg *Config) Dump() {
	log.Debug("Config:")
	cfg.Fs.VisitAll(func(f *flag.Flag) {
		log.Debug(fmt.Sprintf("%s: %v", f.Name, f.Value))
	})
}

// Validate runs validations on the provided configuration, and returns errors
// if invalid values were provided. All problems are reported together.
func (cfg *Config) Validate() error {
	var errs error
	if cfg.Integrations == "" {
		errs = multierr.Append(errs, errors.New("no integration definitions file given"))
	} else if _, err := os.Stat(cfg.Integrations); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("integration definitions: %w", err))
	}
	if cfg.ModuleCacheSize == 0 || cfg.ModuleCacheSize > math.MaxUint32 {
		errs = multierr.Append(errs, fmt.Errorf("invalid module cache size %d",
			cfg.ModuleCacheSize))
	}
	if cfg.ReferenceCacheSize == 0 || cfg.ReferenceCacheSize > math.MaxUint32 {
		errs = multierr.Append(errs, fmt.Errorf("invalid reference cache size %d",
			cfg.ReferenceCacheSize))
	}
	if cfg.MetricsInterval < 0 ||
		(cfg.MetricsInterval > 0 && cfg.MetricsInterval < minMetricsInterval) {
		errs = multierr.Append(errs, fmt.Errorf("metrics interval %v is below %v",
			cfg.MetricsInterval, minMetricsInterval))
	}
	return errs
}

// Mode returns the instrumentation mode.
func (cfg *Config) Mode() integration.Mode {
	if cfg.CallTargetEnabled {
		return integration.ModeCallTarget
	}
	return integration.ModeCallSite
}

// Options converts the configuration for profiler.New. The sizes must have
// passed Validate.
func (cfg *Config) Options() profiler.Options {
	return profiler.Options{
		Enabled:              cfg.TraceEnabled,
		Mode:                 cfg.Mode(),
		DisabledIntegrations: cfg.DisabledIntegrations,
		ExcludedAssemblies:   cfg.ExcludedAssemblies,
		EnableInlining:       cfg.EnableInlining,
		DisableOptimizations: cfg.DisableOptimizations,
		ReJITWithInliners:    cfg.ReJITWithInliners,
		ModuleCacheSize:      uint32(cfg.ModuleCacheSize),
		ReferenceCacheSize:   uint32(cfg.ReferenceCacheSize),
		MetricsInterval:      cfg.MetricsInterval,
	}
}

// Matcher creates the integration matcher for the configuration. cache may
// be nil.
func (cfg *Config) Matcher(cache *assembly.ParseCache) *integration.Matcher {
	return integration.NewMatcher(cfg.Mode(), cfg.DisabledIntegrations, cfg.ExcludedAssemblies,
		cache)
}

// SetupLogging configures the global logger.
func (cfg *Config) SetupLogging() {
	log.SetReportCaller(false)
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp: true,
	})
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
		return
	}
	log.SetLevel(log.InfoLevel)
}
