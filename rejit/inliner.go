// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package rejit // import "go.opentelemetry.io/clrprofiler/rejit"

import (
	"errors"

	log "github.com/sirupsen/logrus"

	"go.opentelemetry.io/clrprofiler/host"
	"go.opentelemetry.io/clrprofiler/libpf"
	"go.opentelemetry.io/clrprofiler/registry"
)

// AddPrecompiledModule remembers a precompiled module and queues a search
// of it for inliners of the methods instrumented so far. Later ReJIT
// requests search it again. The search runs on the worker thread.
func (h *Handler) AddPrecompiledModule(id libpf.ModuleID) error {
	if !h.reg.AddPrecompiledModule(id) || h.caps.Inliners == nil {
		return nil
	}
	return h.submit(inlinerScanItem{module: id})
}

// scanAllInliners searches every known precompiled module.
func (h *Handler) scanAllInliners() {
	if h.caps.Inliners == nil {
		return
	}
	for _, id := range h.reg.PrecompiledModules() {
		h.scanInlinersInModule(id)
	}
}

// scanInlinersInModule looks for methods of the precompiled module that
// inlined an instrumented method, and queues one ReJIT request for them. A
// method is searched again in the same module only while the runtime
// reports the data as incomplete.
func (h *Handler) scanInlinersInModule(precompiled libpf.ModuleID) {
	if h.caps.Inliners == nil {
		return
	}

	var inliners []libpf.Method
	for _, module := range h.reg.Modules() {
		for _, method := range module.Methods() {
			if method.Replacement() == nil {
				continue
			}
			found, _ := method.ScanInliners(precompiled, func() ([]libpf.Method, bool) {
				return h.enumInliners(precompiled, method)
			})
			inliners = append(inliners, found...)
		}
	}
	if len(inliners) == 0 {
		return
	}

	h.counters.inlinersEnqueued.Add(uint64(len(inliners)))
	log.Infof("NGEN:: Processed %d inliners in module %v", len(inliners), precompiled)
	if err := h.EnqueueForRejit(inliners); err != nil {
		log.Debugf("NGEN:: Dropped %d inliners in module %v: %v", len(inliners), precompiled, err)
	}
}

// enumInliners queries the runtime for the inliners of method in the
// precompiled module. complete is false when the query has to be repeated.
func (h *Handler) enumInliners(precompiled libpf.ModuleID,
	method *registry.Method) (inliners []libpf.Method, complete bool) {
	h.counters.inlinerScans.Add(1)
	key := method.Key()

	inliners, incomplete, err := h.caps.Inliners.EnumInliners(precompiled, key)
	if err != nil {
		switch {
		case errors.Is(err, host.ErrInvalidArg):
			log.Infof("NGEN:: Error Invalid arguments in %v: %v", key, err)
		case errors.Is(err, host.ErrDataIncomplete):
			log.Infof("NGEN:: Error Incomplete data in %v: %v", key, err)
		case errors.Is(err, host.ErrUnsupportedCallSequence):
			log.Infof("NGEN:: Unsupported call sequence error in %v: %v", key, err)
		default:
			log.Infof("NGEN:: Error in %v: %v", key, err)
		}
		return nil, false
	}

	for _, inliner := range inliners {
		log.Debugf("NGEN:: Asking rewrite for inliner %v of %v", inliner, key)
	}
	if incomplete {
		h.counters.inlinerScansIncomplete.Add(1)
		log.Warnf("NGen inliner data for module %v is incomplete", precompiled)
	}
	return inliners, !incomplete
}
