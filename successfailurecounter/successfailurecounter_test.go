// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package successfailurecounter

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func reportWithDefault(sfc *SuccessFailureCounter, n int, fallback func()) {
	defer fallback()

	switch {
	case n%2 == 0:
		sfc.ReportSuccess()
	case n%3 == 0:
		sfc.ReportFailure()
	}
}

func TestSuccessFailureCounter(t *testing.T) {
	tests := map[string]struct {
		defaultSuccess  bool
		input           int
		expectedSuccess uint64
		expectedFailure uint64
	}{
		"default success - no report": {
			defaultSuccess:  true,
			input:           1,
			expectedSuccess: 1,
		},
		"default success - report success": {
			defaultSuccess:  true,
			input:           2,
			expectedSuccess: 1,
		},
		"default success - report failure": {
			defaultSuccess:  true,
			input:           3,
			expectedFailure: 1,
		},
		"default failure - no report": {
			input:           1,
			expectedFailure: 1,
		},
		"default failure - report success": {
			input:           2,
			expectedSuccess: 1,
		},
		"default failure - report failure": {
			input:           3,
			expectedFailure: 1,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			var success, failure atomic.Uint64
			sfc := New(&success, &failure)
			fallback := sfc.DefaultToFailure
			if tc.defaultSuccess {
				fallback = sfc.DefaultToSuccess
			}
			reportWithDefault(sfc, tc.input, fallback)

			assert.Equal(t, tc.expectedSuccess, success.Load())
			assert.Equal(t, tc.expectedFailure, failure.Load())
		})
	}
}

func TestReport(t *testing.T) {
	var success, failure atomic.Uint64
	errBoom := errors.New("boom")

	assert.NoError(t, New(&success, &failure).Report(nil))
	assert.ErrorIs(t, New(&success, &failure).Report(errBoom), errBoom)

	sfc := New(&success, &failure)
	sfc.ReportSuccess()
	sfc.ReportFailure()
	sfc.DefaultToFailure()

	assert.Equal(t, uint64(2), success.Load())
	assert.Equal(t, uint64(1), failure.Load())
}

func TestConcurrentReport(t *testing.T) {
	var success, failure atomic.Uint64
	sfc := New(&success, &failure)

	var wg sync.WaitGroup
	for i := range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if i%2 == 0 {
				sfc.DefaultToSuccess()
			} else {
				sfc.DefaultToFailure()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, uint64(1), success.Load()+failure.Load())
}
