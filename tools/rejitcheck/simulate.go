// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/peterbourgon/ff/v3/ffcli"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"go.opentelemetry.io/clrprofiler/config"
	"go.opentelemetry.io/clrprofiler/hostsim"
	"go.opentelemetry.io/clrprofiler/integration"
	"go.opentelemetry.io/clrprofiler/libpf"
	"go.opentelemetry.io/clrprofiler/metrics"
	"go.opentelemetry.io/clrprofiler/profiler"
	"go.opentelemetry.io/clrprofiler/rejit"
)

type simulateCmd struct {
	modulesDir string
	producers  int
}

func newSimulateCmd() *ffcli.Command {
	cmd := simulateCmd{}
	set := flag.NewFlagSet("simulate", flag.ExitOnError)
	set.StringVar(&cmd.modulesDir, "modules", "", "Directory with the module fixtures to load")
	set.IntVar(&cmd.producers, "producers", 4, "Number of threads delivering load notifications")
	return &ffcli.Command{
		Name:       "simulate",
		ShortUsage: "simulate -modules <dir> [-producers N] [-- profiler flags]",
		ShortHelp:  "Simulate a process loading the module fixtures",
		LongHelp: "All fixtures are loaded into a simulated runtime. The load notifications\n" +
			"are delivered from concurrent producers while the integrations are\n" +
			"registered. Afterwards the runtime asks for the ReJIT parameters of every\n" +
			"requested method.",
		FlagSet: set,
		Exec:    cmd.exec,
	}
}

// simulationReport is the JSON output of simulate.
type simulationReport struct {
	Modules           int              `json:"modules"`
	StartupMatches    int              `json:"startupMatches"`
	Requests          int              `json:"requests"`
	RequestedMethods  []string         `json:"requestedMethods"`
	Rewritten         int              `json:"rewritten"`
	Deferred          map[string]int   `json:"deferred"`
	ContractViolation []string         `json:"contractViolations,omitempty"`
	Metrics           map[string]int64 `json:"metrics"`
}

// countingRewriter accepts every method without changing its body.
type countingRewriter struct {
	rewritten atomic.Int64
}

func (r *countingRewriter) Rewrite(req *rejit.RewriteRequest) error {
	r.rewritten.Add(1)
	log.Debugf("Rewriting %v %s with %s.%s", req.Method, req.Function,
		req.Replacement.Wrapper.TypeName, req.Replacement.Wrapper.MethodName)
	return nil
}

// metricsCollector sums the counters and keeps the last value of the gauges
// reported during one simulation.
type metricsCollector struct {
	mu      sync.Mutex
	types   map[metrics.MetricID]metrics.MetricType
	summary metrics.Summary
	batches int
}

func newMetricsCollector() *metricsCollector {
	c := &metricsCollector{
		types:   map[metrics.MetricID]metrics.MetricType{},
		summary: metrics.Summary{},
	}
	for _, md := range metrics.GetDefinitions() {
		c.types[md.ID] = md.Type
	}
	return c
}

func (c *metricsCollector) ReportMetrics(timestamp uint32, ids []uint32, values []int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.batches++
	for i, id := range ids {
		mid := metrics.MetricID(id)
		if c.types[mid] == metrics.MetricTypeGauge {
			c.summary[mid] = metrics.MetricValue(values[i])
		} else {
			c.summary[mid] += metrics.MetricValue(values[i])
		}
	}
	log.Debugf("Metrics of %d: %d values", timestamp, len(ids))
}

func (c *metricsCollector) byName() map[string]int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	named := make(map[string]int64, len(c.summary))
	for id, value := range c.summary {
		named[metrics.NameOf(id)] = int64(value)
	}
	return named
}

// loadFixtures loads every fixture into sim. Inlines are resolved once all
// modules are present.
func loadFixtures(sim *hostsim.Host, fixtures []*hostsim.ModuleFixture) ([]libpf.ModuleID, error) {
	ids := make([]libpf.ModuleID, 0, len(fixtures))
	for _, f := range fixtures {
		m, err := f.Build()
		if err != nil {
			return nil, err
		}
		ids = append(ids, sim.Load(m, f.AppDomainID()))
	}
	for i, f := range fixtures {
		if err := sim.ResolveInlines(ids[i], f); err != nil {
			return nil, fmt.Errorf("%s: %w", f.Path, err)
		}
	}
	return ids, nil
}

func simulate(ctx context.Context, cfg *config.Config, integrations []integration.Integration,
	fixtures []*hostsim.ModuleFixture, producers int) (*simulationReport, error) {
	if producers < 1 {
		return nil, fmt.Errorf("invalid number of producers %d", producers)
	}

	sim := hostsim.New()
	ids, err := loadFixtures(sim, fixtures)
	if err != nil {
		return nil, err
	}

	collector := newMetricsCollector()
	metrics.SetReporter(collector)
	defer metrics.SetReporter(nil)

	rewriter := &countingRewriter{}
	p, err := profiler.New(cfg.Options(), sim, rewriter)
	if err != nil {
		return nil, err
	}
	defer p.Shutdown()

	report := &simulationReport{
		Modules:  len(ids),
		Deferred: map[string]int{},
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := p.SetIntegrations(gctx, integrations)
		if errors.Is(err, profiler.ErrDisabled) {
			return nil
		}
		report.StartupMatches = n
		return err
	})
	for i := range producers {
		g.Go(func() error {
			for j := i; j < len(ids); j += producers {
				if err := p.ModuleLoadFinished(ids[j]); err != nil {
					log.Warnf("ModuleLoadFinished %v: %v", ids[j], err)
				}
			}
			return nil
		})
	}
	if err = g.Wait(); err != nil {
		return nil, err
	}

	// Wait for the worker, then play the runtime recompiling every
	// requested method. The second round covers the inliner rewrites the
	// worker queued while processing the first.
	for range 2 {
		c, err := p.Handler().EnqueueProcessModules(nil, nil)
		if err != nil {
			return nil, err
		}
		if _, err = c.Wait(ctx); err != nil {
			return nil, err
		}
	}
	requested := libpf.Set[libpf.Method]{}
	for _, m := range sim.RequestedMethods() {
		if !requested.Add(m) {
			continue
		}
		err := p.GetReJITParameters(m.Module, m.Token, &hostsim.Control{})
		var notReady *rejit.NotReadyError
		switch {
		case errors.As(err, &notReady):
			report.Deferred[notReady.Field.String()]++
		case err != nil:
			return nil, err
		}
	}

	p.Shutdown()

	requests := sim.Requests()
	report.Requests = len(requests)
	methods := requested.ToSlice()
	libpf.SortMethods(methods)
	for _, m := range methods {
		report.RequestedMethods = append(report.RequestedMethods, m.String())
	}
	report.Rewritten = int(rewriter.rewritten.Load())
	report.ContractViolation = sim.Violations()
	report.Metrics = collector.byName()
	return report, nil
}

func (cmd *simulateCmd) exec(ctx context.Context, args []string) error {
	if cmd.modulesDir == "" {
		return errors.New("please specify `-modules`")
	}
	cfg, err := loadProfilerConfig("simulate", args)
	if err != nil {
		return err
	}
	integrations, err := integration.Load(cfg.Integrations)
	if err != nil {
		return err
	}
	fixtures, err := hostsim.LoadFixtureDir(cmd.modulesDir)
	if err != nil {
		return err
	}
	report, err := simulate(ctx, cfg, integrations, fixtures, cmd.producers)
	if err != nil {
		return err
	}
	return writeJSON(os.Stdout, report)
}
