// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package rejit serializes all ReJIT requests of the profiler on one worker
// thread, finds the methods to instrument in newly loaded modules and hands
// the ReJIT parameters of the runtime over to the IL rewriter.
package rejit // import "go.opentelemetry.io/clrprofiler/rejit"

import (
	"context"
	"fmt"
	"runtime"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"go.opentelemetry.io/clrprofiler/assembly"
	"go.opentelemetry.io/clrprofiler/host"
	"go.opentelemetry.io/clrprofiler/integration"
	"go.opentelemetry.io/clrprofiler/libpf"
	"go.opentelemetry.io/clrprofiler/metadata"
	"go.opentelemetry.io/clrprofiler/periodiccaller"
	"go.opentelemetry.io/clrprofiler/registry"
	"go.opentelemetry.io/clrprofiler/successfailurecounter"
)

const (
	defaultMetricsInterval = 1 * time.Minute

	// Warnings about deferred ReJIT parameters are limited to this many per
	// second with the burst below.
	defaultDeferralWarnRate  = 1
	defaultDeferralWarnBurst = 10
)

// Handler owns the ReJIT worker thread and the registry of instrumented methods.
type Handler struct {
	info     host.ProfilerInfo
	caps     host.Capabilities
	reg      *registry.Registry
	rewriter Rewriter
	matcher  *integration.Matcher

	rejitWithInliners bool
	metricsInterval   time.Duration
	deferralWarnings  *rate.Limiter

	queue        *queue
	workerExited chan libpf.Void
	shutdownOnce sync.Once
	stopMetrics  func()

	corLib atomic.Pointer[assembly.Reference]

	counters counters
}

// Option configures a Handler.
type Option func(*Handler)

// WithReJITWithInliners makes the worker ask the runtime to also rejit the
// methods that inlined the requested ones, if the runtime supports it. The
// plain request is used when this fails.
func WithReJITWithInliners(enabled bool) Option {
	return func(h *Handler) {
		h.rejitWithInliners = enabled
	}
}

// WithMatcher makes the worker run the module dependent filter stages of m
// on every scanned module before searching it for targets. Without it the
// methods of a scan are searched for as given.
func WithMatcher(m *integration.Matcher) Option {
	return func(h *Handler) {
		h.matcher = m
	}
}

// WithMetricsInterval sets how often the handler counters are reported.
// A zero interval reports them only on shutdown.
func WithMetricsInterval(d time.Duration) Option {
	return func(h *Handler) {
		h.metricsInterval = d
	}
}

// WithDeferralWarnings limits the warnings logged for deferred ReJIT
// parameters. Warnings over the limit are logged at debug level.
func WithDeferralWarnings(limit rate.Limit, burst int) Option {
	return func(h *Handler) {
		h.deferralWarnings = rate.NewLimiter(limit, burst)
	}
}

// NewHandler creates a Handler and starts its worker thread. Optional
// runtime capabilities are detected by probing info.
func NewHandler(info host.ProfilerInfo, reg *registry.Registry, rewriter Rewriter,
	opts ...Option) *Handler {
	h := &Handler{
		info:             info,
		caps:             host.Probe(info),
		reg:              reg,
		rewriter:         rewriter,
		metricsInterval:  defaultMetricsInterval,
		deferralWarnings: rate.NewLimiter(defaultDeferralWarnRate, defaultDeferralWarnBurst),
		queue:            newQueue(),
		workerExited:     make(chan libpf.Void),
	}
	for _, opt := range opts {
		opt(h)
	}

	if h.caps.Inliners == nil {
		log.Infof("Runtime cannot enumerate inliners, precompiled inliners are not rejitted")
	}
	if h.rejitWithInliners && h.caps.ReJITWithInliners == nil {
		log.Infof("Runtime cannot rejit with inliners, using plain ReJIT requests")
		h.rejitWithInliners = false
	}

	go h.run()

	if h.metricsInterval > 0 {
		h.stopMetrics = periodiccaller.Start(context.Background(), h.metricsInterval,
			h.collectMetrics)
	}
	return h
}

// Registry returns the registry of the handler.
func (h *Handler) Registry() *registry.Registry {
	return h.reg
}

// SetCorLib records the identity of the core library. It is attached to the
// metadata of modules stored afterwards.
func (h *Handler) SetCorLib(ref assembly.Reference) {
	h.corLib.Store(&ref)
}

// CorLib returns the identity set by SetCorLib, or nil.
func (h *Handler) CorLib() *assembly.Reference {
	return h.corLib.Load()
}

// run is the worker loop. The goroutine stays locked to its OS thread, so
// every call into the ReJIT API is made from the same thread.
func (h *Handler) run() {
	runtime.LockOSThread()
	defer close(h.workerExited)

	if err := h.info.InitializeCurrentThread(); err != nil {
		log.Warnf("Failed to initialize ReJIT thread: %v", err)
	}

	for {
		switch item := h.queue.pop().(type) {
		case *RewriteItem:
			h.processRewrite(item.Methods)
		case *ScanModulesItem:
			h.processScan(item)
		case inlinerScanItem:
			h.scanInlinersInModule(item.module)
		case shutdownItem:
			log.Infof("Exiting ReJIT request thread")
			return
		}
	}
}

func (h *Handler) submit(item WorkItem) error {
	if err := h.queue.push(item); err != nil {
		h.counters.itemsRejected.Add(1)
		log.Debugf("Dropping ReJIT work item: %v", err)
		return err
	}
	return nil
}

// EnqueueForRejit creates the records of methods and queues a ReJIT request
// for them.
func (h *Handler) EnqueueForRejit(methods []libpf.Method) error {
	if len(methods) == 0 {
		return nil
	}
	for _, m := range methods {
		h.reg.GetOrCreateMethod(m.Module, m.Token)
	}
	return h.submit(&RewriteItem{Methods: slices.Clone(methods)})
}

// EnqueueProcessModules queues a search of modules for the targets of
// methods. The returned Completion resolves with the number of matched
// methods once their ReJIT was requested. When the submission is rejected,
// the Completion is resolved with zero and the error is returned.
func (h *Handler) EnqueueProcessModules(modules []libpf.ModuleID,
	methods []integration.IntegrationMethod) (*Completion, error) {
	c := NewCompletion()
	if err := h.enqueueScan(modules, methods, c); err != nil {
		c.resolve(0)
		return c, err
	}
	return c, nil
}

// EnqueueProcessModulesAsync is EnqueueProcessModules without a Completion.
func (h *Handler) EnqueueProcessModulesAsync(modules []libpf.ModuleID,
	methods []integration.IntegrationMethod) error {
	return h.enqueueScan(modules, methods, nil)
}

func (h *Handler) enqueueScan(modules []libpf.ModuleID, methods []integration.IntegrationMethod,
	c *Completion) error {
	return h.submit(&ScanModulesItem{
		Modules:    slices.Clone(modules),
		Methods:    slices.Clone(methods),
		Completion: c,
	})
}

// Shutdown stops the worker after the items queued so far and waits for it
// to exit. Later submissions fail with ErrShutdown. Shutdown may be called
// more than once.
func (h *Handler) Shutdown() {
	h.shutdownOnce.Do(func() {
		log.Debugf("Shutting down ReJIT handler")
		h.queue.close(shutdownItem{})
		<-h.workerExited
		if h.stopMetrics != nil {
			h.stopMetrics()
		}
		h.collectMetrics()
	})
}

// processRewrite issues one ReJIT request for methods and then looks for new
// inliners of instrumented methods in the precompiled modules.
func (h *Handler) processRewrite(methods []libpf.Method) {
	if len(methods) == 0 {
		return
	}
	modules, tokens := libpf.SplitMethods(methods)

	sfc := successfailurecounter.New(&h.counters.rejitRequests, &h.counters.rejitRequestFailures)
	if err := sfc.Report(h.requestReJIT(modules, tokens)); err != nil {
		log.Warnf("Error requesting ReJIT for %d methods: %v", len(methods), err)
	} else {
		h.counters.rejitMethodsRequested.Add(uint64(len(methods)))
		log.Infof("Request ReJIT done for %d methods", len(methods))
	}

	h.scanAllInliners()
}

func (h *Handler) requestReJIT(modules []libpf.ModuleID, tokens []libpf.MethodToken) error {
	if h.rejitWithInliners {
		err := h.caps.ReJITWithInliners.RequestReJITWithInliners(modules, tokens)
		if err == nil {
			return nil
		}
		log.Debugf("ReJIT with inliners failed, retrying plain ReJIT: %v", err)
	}
	return h.info.RequestReJIT(modules, tokens)
}

// processScan matches the methods of the item against every listed module
// and requests one ReJIT for all matches.
func (h *Handler) processScan(item *ScanModulesItem) {
	var matched []libpf.Method
	if len(item.Methods) > 0 {
		for _, id := range item.Modules {
			matched = append(matched, h.scanModule(id, item.Methods)...)
		}
	}
	h.counters.methodsMatched.Add(uint64(len(matched)))

	h.processRewrite(matched)
	item.Completion.resolve(len(matched))
}

// scanModule runs the module dependent filter stages, finds the targets of
// the remaining methods in one module and stores the matches in the
// registry.
func (h *Handler) scanModule(id libpf.ModuleID, methods []integration.IntegrationMethod) []libpf.Method {
	h.counters.modulesScanned.Add(1)

	info, err := h.info.GetModuleInfo(id)
	if err != nil {
		log.Warnf("Failed to get module info for %v: %v", id, err)
		return nil
	}
	log.Debugf("Requesting ReJIT for module %s", info.Assembly.Name)

	if !slices.ContainsFunc(methods, func(m integration.IntegrationMethod) bool {
		return m.Replacement.Target.Assembly.Name == info.Assembly.Name
	}) {
		return nil
	}

	ifaces, err := h.info.GetModuleMetadata(id)
	if err != nil {
		log.Warnf("Failed to get metadata interface for %v %s: %v", id, info.Assembly.Name, err)
		return nil
	}
	own, err := ifaces.AssemblyImport.AssemblyMetadata()
	if err != nil {
		log.Warnf("Failed to read assembly metadata of %v %s: %v", id, info.Assembly.Name, err)
		return nil
	}
	log.Debugf("Assembly metadata loaded for %s (%v)", own.Name, own.Version)

	if h.matcher != nil {
		methods, err = h.matcher.FilterForModule(methods, info, ifaces.AssemblyImport)
		if err != nil {
			log.Warnf("Failed to read references of %v %s: %v", id, info.Assembly.Name, err)
			return nil
		}
		if len(methods) == 0 {
			log.Debugf("No integrations apply to %v %s", id, info.Assembly.Name)
			return nil
		}
	}

	matches := integration.FindMethods(ifaces.Import, info, own, methods)
	if len(matches) == 0 {
		return nil
	}

	module := h.reg.GetOrCreateModule(id)
	md := &metadata.ModuleMetadata{
		Interfaces: ifaces,
		Module:     info,
		Assembly:   own,
		CorLib:     h.corLib.Load(),
	}
	if stored := module.SetMetadata(md); stored == md {
		log.Infof("ReJIT handler stored metadata for %v %s AppDomain %v %s",
			id, info.Assembly.Name, info.Assembly.AppDomainID, info.Assembly.AppDomainName)
	}

	result := make([]libpf.Method, 0, len(matches))
	for _, m := range matches {
		method := module.GetOrCreateMethod(m.Token)
		method.SetFunctionInfo(m.Function)
		method.SetReplacement(m.Replacement)
		result = append(result, libpf.Method{Module: id, Token: m.Token})

		log.Debugf("Enqueue for ReJIT [ModuleId=%v, MethodDef=%v, AppDomainId=%v, Assembly=%s, "+
			"Type=%s, Method=%s(%d params)] for %s",
			id, m.Token, info.Assembly.AppDomainID, info.Assembly.Name,
			m.Function.Type.Name, m.Function.Name, m.Function.Signature.NumberOfArguments(),
			m.Integration)
	}
	return result
}

// NotifyReJITParameters is called by the runtime, on its own thread, when it
// is about to recompile a requested method. It stores control and hands the
// method to the rewriter once all required state is present. A
// *NotReadyError is returned when the rewrite has to be skipped.
func (h *Handler) NotifyReJITParameters(moduleID libpf.ModuleID, token libpf.MethodToken,
	control host.FunctionControl) error {
	module := h.reg.GetOrCreateModule(moduleID)
	method := module.GetOrCreateMethod(token)
	method.SetControl(control)

	req, err := Decide(module, method)
	if err != nil {
		h.counters.rewritesDeferred.Add(1)
		if h.deferralWarnings.Allow() {
			log.Warnf("NotifyReJITParameters: %v", err)
		} else {
			log.Debugf("NotifyReJITParameters: %v", err)
		}
		return err
	}

	sfc := successfailurecounter.New(&h.counters.rewritesPerformed, &h.counters.rewriteFailures)
	if err := sfc.Report(h.rewriter.Rewrite(req)); err != nil {
		log.Warnf("Rewriting %v failed: %v", req.Method, err)
		return fmt.Errorf("rewriting %v: %w", req.Method, err)
	}
	return nil
}

// NotifyReJITCompilationStarted is called by the runtime when the
// recompilation of a function begins. The function is recorded as an
// instantiation of its method, if the method is known.
func (h *Handler) NotifyReJITCompilationStarted(functionID libpf.FunctionID, _ libpf.ReJITID) error {
	key, err := h.info.GetFunctionInfo(functionID)
	if err != nil {
		return fmt.Errorf("function %v: %w", functionID, err)
	}
	if method, ok := h.reg.Method(key.Module, key.Token); ok {
		if method.AddFunctionID(functionID) {
			log.Debugf("ReJIT compilation started for %v as function %v", key, functionID)
		}
	}
	return nil
}
