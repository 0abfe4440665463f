// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package profiler // import "go.opentelemetry.io/clrprofiler/profiler"

import (
	"math"
	"sync/atomic"

	"fortio.org/safecast"

	"go.opentelemetry.io/clrprofiler/metrics"
)

type counters struct {
	modulesLoaded    atomic.Uint64
	modulesSkipped   atomic.Uint64
	rejitRetriggered atomic.Uint64
	rejitErrors      atomic.Uint64
}

func swap(counter *atomic.Uint64) metrics.MetricValue {
	v, err := safecast.Conv[int64](counter.Swap(0))
	if err != nil {
		return math.MaxInt64
	}
	return metrics.MetricValue(v)
}

func (p *Profiler) collectMetrics() {
	c := &p.counters
	metrics.AddSlice([]metrics.Metric{
		{
			ID:    metrics.IDModulesLoaded,
			Value: swap(&c.modulesLoaded),
		},
		{
			ID:    metrics.IDModulesSkipped,
			Value: swap(&c.modulesSkipped),
		},
		{
			ID:    metrics.IDReJITRetriggered,
			Value: swap(&c.rejitRetriggered),
		},
		{
			ID:    metrics.IDReJITErrors,
			Value: swap(&c.rejitErrors),
		},
		{
			ID:    metrics.IDAssemblyReferenceCacheSize,
			Value: metrics.MetricValue(p.refs.Len()),
		},
	})
}
