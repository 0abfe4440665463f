// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package rejit // import "go.opentelemetry.io/clrprofiler/rejit"

import (
	"math"
	"sync/atomic"

	"fortio.org/safecast"

	"go.opentelemetry.io/clrprofiler/metrics"
)

// counters are incremented from the worker and the runtime callback threads.
type counters struct {
	rejitRequests          atomic.Uint64
	rejitRequestFailures   atomic.Uint64
	rejitMethodsRequested  atomic.Uint64
	modulesScanned         atomic.Uint64
	methodsMatched         atomic.Uint64
	inlinerScans           atomic.Uint64
	inlinerScansIncomplete atomic.Uint64
	inlinersEnqueued       atomic.Uint64
	rewritesDeferred       atomic.Uint64
	rewritesPerformed      atomic.Uint64
	rewriteFailures        atomic.Uint64
	itemsRejected          atomic.Uint64
}

func metricValue(counter *atomic.Uint64) metrics.MetricValue {
	v, err := safecast.Conv[int64](counter.Swap(0))
	if err != nil {
		return math.MaxInt64
	}
	return metrics.MetricValue(v)
}

func (h *Handler) collectMetrics() {
	c := &h.counters
	metrics.AddSlice([]metrics.Metric{
		{
			ID:    metrics.IDReJITRequests,
			Value: metricValue(&c.rejitRequests),
		},
		{
			ID:    metrics.IDReJITRequestFailures,
			Value: metricValue(&c.rejitRequestFailures),
		},
		{
			ID:    metrics.IDReJITMethodsRequested,
			Value: metricValue(&c.rejitMethodsRequested),
		},
		{
			ID:    metrics.IDModulesScanned,
			Value: metricValue(&c.modulesScanned),
		},
		{
			ID:    metrics.IDMethodsMatched,
			Value: metricValue(&c.methodsMatched),
		},
		{
			ID:    metrics.IDInlinerScans,
			Value: metricValue(&c.inlinerScans),
		},
		{
			ID:    metrics.IDInlinerScansIncomplete,
			Value: metricValue(&c.inlinerScansIncomplete),
		},
		{
			ID:    metrics.IDInlinersEnqueued,
			Value: metricValue(&c.inlinersEnqueued),
		},
		{
			ID:    metrics.IDRewritesDeferred,
			Value: metricValue(&c.rewritesDeferred),
		},
		{
			ID:    metrics.IDRewritesPerformed,
			Value: metricValue(&c.rewritesPerformed),
		},
		{
			ID:    metrics.IDRewriteFailures,
			Value: metricValue(&c.rewriteFailures),
		},
		{
			ID:    metrics.IDWorkItemsRejected,
			Value: metricValue(&c.itemsRejected),
		},
	})
}
