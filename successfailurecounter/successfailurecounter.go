// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package successfailurecounter counts the outcome of an operation exactly once,
// into one of two shared atomic counters.
//
// A SuccessFailureCounter may be resolved from any goroutine; the first
// outcome wins and later ones are logged and ignored.
package successfailurecounter // import "go.opentelemetry.io/clrprofiler/successfailurecounter"

import (
	"sync/atomic"

	log "github.com/sirupsen/logrus"
)

// SuccessFailureCounter increments either the success or the failure counter exactly once.
type SuccessFailureCounter struct {
	success, fail *atomic.Uint64
	sealed        atomic.Bool
}

// New returns a SuccessFailureCounter that can be incremented exactly once.
func New(success, fail *atomic.Uint64) *SuccessFailureCounter {
	return &SuccessFailureCounter{success: success, fail: fail}
}

func (sfc *SuccessFailureCounter) seal() bool {
	return sfc.sealed.CompareAndSwap(false, true)
}

// ReportSuccess increments the success counter or logs an error otherwise.
func (sfc *SuccessFailureCounter) ReportSuccess() {
	if !sfc.seal() {
		log.Errorf("Attempted to report success/failure status more than once.")
		return
	}
	sfc.success.Add(1)
}

// ReportFailure increments the failure counter or logs an error otherwise.
func (sfc *SuccessFailureCounter) ReportFailure() {
	if !sfc.seal() {
		log.Errorf("Attempted to report failure/success status more than once.")
		return
	}
	sfc.fail.Add(1)
}

// Report counts a nil err as success and anything else as failure.
// err is returned unchanged.
func (sfc *SuccessFailureCounter) Report(err error) error {
	if err != nil {
		sfc.ReportFailure()
	} else {
		sfc.ReportSuccess()
	}
	return err
}

// DefaultToSuccess increments the success counter if no counter was updated before.
func (sfc *SuccessFailureCounter) DefaultToSuccess() {
	if sfc.seal() {
		sfc.success.Add(1)
	}
}

// DefaultToFailure increments the failure counter if no counter was updated before.
func (sfc *SuccessFailureCounter) DefaultToFailure() {
	if sfc.seal() {
		sfc.fail.Add(1)
	}
}
