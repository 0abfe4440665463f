// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package host

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"go.opentelemetry.io/clrprofiler/libpf"
	"go.opentelemetry.io/clrprofiler/metadata"
)

type baseInfo struct{}

func (baseInfo) InitializeCurrentThread() error { return nil }

func (baseInfo) RequestReJIT([]libpf.ModuleID, []libpf.MethodToken) error { return nil }

func (baseInfo) GetModuleInfo(libpf.ModuleID) (metadata.ModuleInfo, error) {
	return metadata.ModuleInfo{}, ErrInvalidArg
}

func (baseInfo) GetModuleMetadata(libpf.ModuleID) (metadata.Interfaces, error) {
	return metadata.Interfaces{}, ErrInvalidArg
}

func (baseInfo) GetFunctionInfo(libpf.FunctionID) (libpf.Method, error) {
	return libpf.Method{}, ErrInvalidArg
}

type info6 struct{ baseInfo }

func (info6) EnumInliners(libpf.ModuleID, libpf.Method) ([]libpf.Method, bool, error) {
	return nil, false, nil
}

type info10 struct{ info6 }

func (info10) RequestReJITWithInliners([]libpf.ModuleID, []libpf.MethodToken) error {
	return ErrNotSupported
}

func TestProbe(t *testing.T) {
	tests := map[string]struct {
		info         ProfilerInfo
		inliners     bool
		withInliners bool
	}{
		"base":     {info: baseInfo{}},
		"inliners": {info: info6{}, inliners: true},
		"all":      {info: info10{}, inliners: true, withInliners: true},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			caps := Probe(tc.info)
			assert.Equal(t, tc.inliners, caps.Inliners != nil)
			assert.Equal(t, tc.withInliners, caps.ReJITWithInliners != nil)
		})
	}
}
