// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package profiler implements the callbacks the runtime delivers to the
// profiler. The callbacks only record what they learn and queue work for
// the ReJIT handler; none of them issues a ReJIT request itself.
package profiler // import "go.opentelemetry.io/clrprofiler/profiler"

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	lru "github.com/elastic/go-freelru"
	log "github.com/sirupsen/logrus"

	"go.opentelemetry.io/clrprofiler/assembly"
	"go.opentelemetry.io/clrprofiler/host"
	"go.opentelemetry.io/clrprofiler/integration"
	"go.opentelemetry.io/clrprofiler/libpf"
	"go.opentelemetry.io/clrprofiler/libpf/xsync"
	"go.opentelemetry.io/clrprofiler/metadata"
	"go.opentelemetry.io/clrprofiler/metrics"
	"go.opentelemetry.io/clrprofiler/periodiccaller"
	"go.opentelemetry.io/clrprofiler/registry"
	"go.opentelemetry.io/clrprofiler/rejit"
)

// Core library names. The identity of the first one loaded is handed to the
// rewriter.
var corLibNames = []string{"mscorlib", "System.Private.CoreLib"}

// Assemblies that are never searched for targets: the core libraries, the
// managed part of the profiler and assemblies known not to hold targets.
var skippedAssemblies = libpf.SliceToSet([]string{
	"mscorlib",
	"netstandard",
	"System.Private.CoreLib",
	"System.Core",
	"System.Runtime",
	"System.IO.FileSystem",
	"System.Collections",
	"System.Runtime.Extensions",
	"System.Threading.Tasks",
	"System.Runtime.InteropServices",
	"System.Runtime.InteropServices.RuntimeInformation",
	"System.ComponentModel",
	"System.Console",
	"System.Diagnostics.DiagnosticSource",
	"Microsoft.Extensions.Options",
	"Microsoft.Extensions.ObjectPool",
	"System.Configuration",
	"System.Xml.Linq",
	"Microsoft.CSharp",
	"Newtonsoft.Json",
	"Anonymously Hosted DynamicMethods Assembly",
	"ISymWrapper",
	"Datadog.Trace",
	"Datadog.Trace.ClrProfiler.Managed",
	"Datadog.Trace.ClrProfiler.Managed.Core",
	"Datadog.Trace.ClrProfiler.Managed.Loader",
})

var skippedAssemblyPrefixes = []string{
	"Datadog.Trace.",
	"Microsoft.VisualStudio.",
	"Microsoft.TestPlatform.",
	"System.Runtime.",
}

// ErrDisabled is returned by SetIntegrations when instrumentation is switched off.
var ErrDisabled = errors.New("instrumentation is disabled")

// isSkipped reports whether the assembly is never searched for targets.
func isSkipped(name string) bool {
	if skippedAssemblies.Contains(name) {
		return true
	}
	for _, prefix := range skippedAssemblyPrefixes {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

// Profiler receives the runtime callbacks.
type Profiler struct {
	opts    Options
	info    host.ProfilerInfo
	handler *rejit.Handler
	matcher *integration.Matcher
	refs    *assembly.ParseCache

	// modules caches the descriptions of loaded modules.
	modules *lru.SyncedLRU[libpf.ModuleID, metadata.ModuleInfo]

	// loaded holds the modules that may contain targets, for the scan run
	// when the integrations are registered.
	loaded xsync.Mutex[libpf.Set[libpf.ModuleID]]

	// methods are the prepared integration methods, nil until registered.
	methods xsync.RWMutex[[]integration.IntegrationMethod]

	corLibOnce sync.Once

	stopMetrics  func()
	shutdownOnce sync.Once

	counters counters
}

func hashModuleID(id libpf.ModuleID) uint32 {
	return uint32(id ^ id>>32)
}

// New creates a Profiler and starts the ReJIT handler. rewriter receives the
// methods to instrument once the runtime is ready to recompile them.
func New(opts Options, info host.ProfilerInfo, rewriter rejit.Rewriter) (*Profiler, error) {
	if opts.ModuleCacheSize == 0 {
		opts.ModuleCacheSize = DefaultModuleCacheSize
	}
	if opts.ReferenceCacheSize == 0 {
		opts.ReferenceCacheSize = assembly.DefaultParseCacheSize
	}

	modules, err := lru.NewSynced[libpf.ModuleID, metadata.ModuleInfo](opts.ModuleCacheSize,
		hashModuleID)
	if err != nil {
		return nil, fmt.Errorf("failed to create module cache: %w", err)
	}
	refs, err := assembly.NewParseCache(opts.ReferenceCacheSize)
	if err != nil {
		return nil, err
	}

	p := &Profiler{
		opts:    opts,
		info:    info,
		matcher: integration.NewMatcher(opts.Mode, opts.DisabledIntegrations, opts.ExcludedAssemblies, refs),
		refs:    refs,
		modules: modules,
		loaded:  xsync.NewMutex(libpf.Set[libpf.ModuleID]{}),
		methods: xsync.NewRWMutex[[]integration.IntegrationMethod](nil),
	}
	p.handler = rejit.NewHandler(info, registry.New(),
		codegenRewriter{flags: opts.codegenFlags(), next: rewriter},
		rejit.WithMatcher(p.matcher),
		rejit.WithReJITWithInliners(opts.ReJITWithInliners),
		rejit.WithMetricsInterval(opts.MetricsInterval))

	if opts.MetricsInterval > 0 {
		p.stopMetrics = periodiccaller.Start(context.Background(), opts.MetricsInterval,
			p.collectMetrics)
	}

	log.Infof("Profiler started: enabled=%v mode=%v inlining=%v optimizations=%v",
		opts.Enabled, opts.Mode, opts.EnableInlining, !opts.DisableOptimizations)
	return p, nil
}

// Handler returns the ReJIT handler.
func (p *Profiler) Handler() *rejit.Handler {
	return p.handler
}

// Registry returns the registry of instrumented methods.
func (p *Profiler) Registry() *registry.Registry {
	return p.handler.Registry()
}

// Methods returns the registered integration methods after the module
// independent filter stages.
func (p *Profiler) Methods() []integration.IntegrationMethod {
	methods := p.methods.RLock()
	defer p.methods.RUnlock(&methods)
	return *methods
}

// SetIntegrations registers the integrations, usually once at startup. The
// modules loaded so far are searched for their targets and the number of
// matched methods is returned once their ReJIT was requested. Modules
// loaded later are searched as they are loaded.
func (p *Profiler) SetIntegrations(ctx context.Context,
	integrations []integration.Integration) (int, error) {
	if !p.opts.Enabled {
		return 0, ErrDisabled
	}

	prepared := p.matcher.Prepare(integrations)
	methods := p.methods.WLock()
	*methods = prepared
	p.methods.WUnlock(&methods)
	log.Infof("Registered %d integration methods from %d integrations",
		len(prepared), len(integrations))

	loaded := p.loadedModules()
	if len(loaded) == 0 || len(prepared) == 0 {
		return 0, nil
	}

	c, err := p.handler.EnqueueProcessModules(loaded, prepared)
	if err != nil {
		return 0, err
	}
	n, err := c.Wait(ctx)
	if err != nil {
		return 0, err
	}
	log.Infof("Found %d methods to instrument in %d loaded modules", n, len(loaded))
	return n, nil
}

func (p *Profiler) loadedModules() []libpf.ModuleID {
	loaded := p.loaded.Lock()
	defer p.loaded.Unlock(&loaded)
	ids := (*loaded).ToSlice()
	slices.Sort(ids)
	return ids
}

// moduleInfo returns the cached description of a module.
func (p *Profiler) moduleInfo(id libpf.ModuleID) (metadata.ModuleInfo, error) {
	if info, ok := p.modules.Get(id); ok {
		return info, nil
	}
	info, err := p.info.GetModuleInfo(id)
	if err != nil {
		return metadata.ModuleInfo{}, err
	}
	p.modules.Add(id, info)
	return info, nil
}

// ModuleLoadFinished is called by the runtime once a module is loaded. A
// search of the module for the targets of the registered integrations is
// queued; the worker filters them by the module's identity and references.
func (p *Profiler) ModuleLoadFinished(id libpf.ModuleID) error {
	p.counters.modulesLoaded.Add(1)

	info, err := p.moduleInfo(id)
	if err != nil {
		p.counters.modulesSkipped.Add(1)
		return fmt.Errorf("module %v: %w", id, err)
	}
	name := info.Assembly.Name

	if !info.IsValid() || info.IsDynamic() || info.IsWindowsRuntime() {
		p.counters.modulesSkipped.Add(1)
		log.Debugf("ModuleLoadFinished skipping module %v %s with flags %#x",
			id, name, info.Flags)
		return nil
	}
	if slices.Contains(corLibNames, name) {
		p.corLibLoaded(id, info)
	}
	if !p.opts.Enabled || isSkipped(name) {
		p.counters.modulesSkipped.Add(1)
		log.Debugf("ModuleLoadFinished skipping known module %v %s", id, name)
		return nil
	}

	p.loaded.With(func(loaded *libpf.Set[libpf.ModuleID]) {
		loaded.Add(id)
	})

	if info.IsNGen() {
		if err := p.handler.AddPrecompiledModule(id); err != nil {
			return fmt.Errorf("precompiled module %v %s: %w", id, name, err)
		}
	}

	methods := p.Methods()
	if len(methods) == 0 {
		return nil
	}

	log.Debugf("ModuleLoadFinished queueing %d integration methods for %v %s",
		len(methods), id, name)
	return p.handler.EnqueueProcessModulesAsync([]libpf.ModuleID{id}, methods)
}

// corLibLoaded records the identity of the first core library loaded.
func (p *Profiler) corLibLoaded(id libpf.ModuleID, info metadata.ModuleInfo) {
	p.corLibOnce.Do(func() {
		ifaces, err := p.info.GetModuleMetadata(id)
		if err != nil {
			log.Warnf("Failed to get metadata of core library %v: %v", id, err)
			return
		}
		ref, err := ifaces.AssemblyImport.AssemblyMetadata()
		if err != nil {
			log.Warnf("Failed to read assembly metadata of core library %v: %v", id, err)
			return
		}
		p.handler.SetCorLib(ref)
		log.Infof("Core library %s loaded in AppDomain %v", ref, info.Assembly.AppDomainID)
	})
}

// PrecompiledModuleLoaded is called when a precompiled image is loaded for
// a module that was reported before.
func (p *Profiler) PrecompiledModuleLoaded(id libpf.ModuleID) error {
	if !p.opts.Enabled {
		return nil
	}
	return p.handler.AddPrecompiledModule(id)
}

// ModuleUnloadStarted is called by the runtime before a module goes away.
// All records of the module are dropped.
func (p *Profiler) ModuleUnloadStarted(id libpf.ModuleID) {
	p.modules.Remove(id)
	p.loaded.With(func(loaded *libpf.Set[libpf.ModuleID]) {
		delete(*loaded, id)
	})
	if p.Registry().RemoveModule(id) {
		log.Debugf("ModuleUnloadStarted removed module %v", id)
	}
}

// JITCompilationStarted is called by the runtime before it compiles a
// function. A matched method whose ReJIT never reached the rewriter is
// requested again when a new instantiation of it is compiled.
func (p *Profiler) JITCompilationStarted(functionID libpf.FunctionID) error {
	if !p.opts.Enabled {
		return nil
	}
	key, err := p.info.GetFunctionInfo(functionID)
	if err != nil {
		return fmt.Errorf("function %v: %w", functionID, err)
	}
	method, ok := p.Registry().Method(key.Module, key.Token)
	if !ok {
		return nil
	}
	if !method.AddFunctionID(functionID) {
		return nil
	}
	if method.Replacement() == nil || method.Control() != nil {
		return nil
	}
	p.counters.rejitRetriggered.Add(1)
	log.Debugf("JITCompilationStarted requesting ReJIT again for %v", key)
	return p.handler.EnqueueForRejit([]libpf.Method{key})
}

// GetReJITParameters is called by the runtime, on its own thread, when it is
// about to recompile a method requested before.
func (p *Profiler) GetReJITParameters(module libpf.ModuleID, token libpf.MethodToken,
	control host.FunctionControl) error {
	return p.handler.NotifyReJITParameters(module, token, control)
}

// ReJITCompilationStarted is called when the recompilation of a function begins.
func (p *Profiler) ReJITCompilationStarted(functionID libpf.FunctionID, rejitID libpf.ReJITID) error {
	return p.handler.NotifyReJITCompilationStarted(functionID, rejitID)
}

// ReJITError is called by the runtime when a requested ReJIT failed. The
// method stays uninstrumented.
func (p *Profiler) ReJITError(module libpf.ModuleID, token libpf.MethodToken,
	functionID libpf.FunctionID, status error) {
	p.counters.rejitErrors.Add(1)
	log.Warnf("ReJIT error for [ModuleId=%v, MethodDef=%v, FunctionId=%v]: %v",
		module, token, functionID, status)
}

// Shutdown stops the ReJIT handler and reports the final metrics. It may be
// called more than once.
func (p *Profiler) Shutdown() {
	p.shutdownOnce.Do(func() {
		p.handler.Shutdown()
		if p.stopMetrics != nil {
			p.stopMetrics()
		}
		p.collectMetrics()
		metrics.Flush()
		log.Infof("Profiler shut down")
	})
}
