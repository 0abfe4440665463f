// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package xsync provides locks that own the data they protect, so that the
// relationship between a lock and its data is visible in the type.
package xsync // import "go.opentelemetry.io/clrprofiler/libpf/xsync"
