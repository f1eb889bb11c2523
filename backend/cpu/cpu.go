// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package cpu provides the pure Go CPU backend.
//
// Matrix multiplication runs on gonum's BLAS kernels, split into row
// blocks across worker goroutines.
package cpu

import (
	internalcpu "github.com/born-ml/chainmlp/internal/backend/cpu"
	"github.com/born-ml/chainmlp/tensor"
)

// Backend represents the CPU backend implementation.
type Backend = internalcpu.CPUBackend

// Compile-time check that Backend implements tensor.Backend.
var _ tensor.Backend = (*Backend)(nil)

// New creates a CPU backend using every core.
//
// Example:
//
//	backend := cpu.New()
//	x := tensor.Zeros[float32](tensor.Shape{2, 3}, backend)
func New() *Backend {
	return internalcpu.New()
}

// NewWithWorkers creates a CPU backend limited to n worker goroutines.
func NewWithWorkers(n int) *Backend {
	return internalcpu.NewWithWorkers(n)
}
