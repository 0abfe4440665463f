// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReporter struct {
	result chan []Metric
}

func (f fakeReporter) ReportMetrics(_ uint32, ids []uint32, values []int64) {
	metricsResult := make([]Metric, len(ids))

	for j := range ids {
		metricsResult[j].ID = MetricID(ids[j])
		metricsResult[j].Value = MetricValue(values[j])
	}

	// send the result back for comparison with client-side input
	f.result <- metricsResult
}

func TestMetrics(t *testing.T) {
	reporter := &fakeReporter{result: make(chan []Metric, 128)}
	SetReporter(reporter)
	t.Cleanup(func() { SetReporter(nil) })

	ts := uint32(1000)
	prevNow := now
	now = func() uint32 { return ts }
	t.Cleanup(func() { now = prevNow })

	inputMetrics := []Metric{
		{IDReJITRequests, MetricValue(33)},
		{IDModulesScanned, MetricValue(55)},
		{IDMethodsMatched, MetricValue(66)},
		{IDAssemblyReferenceCacheSize, MetricValue(20)},
		{IDRewriteFailures, MetricValue(0)},
	}

	AddSlice(inputMetrics[0:2])                    // 33, 55
	Add(inputMetrics[1].ID, inputMetrics[1].Value) // 55, dropped
	Add(inputMetrics[2].ID, inputMetrics[2].Value) // 66
	AddSlice(inputMetrics[3:4])                    // 20
	Add(inputMetrics[0].ID, inputMetrics[0].Value) // 33, dropped
	AddSlice(inputMetrics[1:3])                    // 55, 66 dropped
	AddSlice(inputMetrics[2:5])                    // 66 dropped, 20 dropped, 0 dropped
	Add(IDMax, 1)                                  // out of range
	Add(IDInvalid, 1)                              // out of range

	// Drop counter with 0 value as we don't expect it to appear in output
	expected := inputMetrics[:4]

	assert.Empty(t, reporter.result)

	// next second triggers reporting
	ts++
	AddSlice(nil)

	require.Len(t, reporter.result, 1)
	assert.Equal(t, expected, <-reporter.result)

	Add(IDAssemblyReferenceCacheSize, 7)
	Flush()
	require.Len(t, reporter.result, 1)
	assert.Equal(t, []Metric{{IDAssemblyReferenceCacheSize, 7}}, <-reporter.result)

	// Without a reporter the batches only go to the meter.
	SetReporter(nil)
	Add(IDAssemblyReferenceCacheSize, 8)
	Flush()
	assert.Empty(t, reporter.result)
}

func TestGetDefinitions(t *testing.T) {
	defs := GetDefinitions()
	require.Len(t, defs, IDMax-1)

	seen := map[MetricID]bool{}
	for _, md := range defs {
		assert.False(t, seen[md.ID], "duplicate id %d", md.ID)
		seen[md.ID] = true
		assert.Contains(t, []MetricType{MetricTypeCounter, MetricTypeGauge}, md.Type)
		assert.NotEmpty(t, md.Field)
	}
	assert.Equal(t, "InlinersEnqueued", NameOf(IDInlinersEnqueued))
	assert.Equal(t, "metric99", NameOf(99))
}
