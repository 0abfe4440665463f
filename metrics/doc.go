// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

/*
Package metrics collects the internal counters of the ReJIT engine and
forwards them to the OpenTelemetry metrics API.

Metric IDs are generated from metrics.json:

	go generate ./metrics

Components keep their own atomic counters and hand them over periodically:

	metrics.AddSlice([]metrics.Metric{
		{ID: metrics.IDReJITRequests, Value: metrics.MetricValue(n)},
	})

Metrics are buffered per second. The batch of the previous second is reported
when the first metric of a new second arrives, or on Flush.
*/
package metrics // import "go.opentelemetry.io/clrprofiler/metrics"
