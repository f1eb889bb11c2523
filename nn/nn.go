// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package nn provides the layers the chainmlp network is built from.
//
// Modules start in training mode; call SetTraining(false) before
// inference so Dropout becomes the identity.
//
// Example:
//
//	backend := cpu.New()
//	rng := rand.New(rand.NewPCG(1, 2))
//	block := nn.NewSequential[*cpu.Backend](
//	    nn.NewLinear(77, 512, rng, backend),
//	    nn.NewReLU[*cpu.Backend](),
//	    nn.NewDropout[*cpu.Backend](0.05, rng),
//	)
//	block.SetTraining(false)
//	y := block.Forward(x)
package nn

import (
	"math/rand/v2"

	"github.com/born-ml/chainmlp/internal/nn"
	"github.com/born-ml/chainmlp/internal/tensor"
)

// Module interface defines the common interface for all neural network modules.
type Module[B tensor.Backend] = nn.Module[B]

// Parameter represents a learnable tensor with a name.
type Parameter[B tensor.Backend] = nn.Parameter[B]

// Errors returned by LoadStateDict.
var (
	ErrMissingParameter = nn.ErrMissingParameter
	ErrShapeMismatch    = nn.ErrShapeMismatch
	ErrDTypeMismatch    = nn.ErrDTypeMismatch
)

// Linear represents a fully connected layer: y = x @ W.T + b.
type Linear[B tensor.Backend] = nn.Linear[B]

// NewLinear creates a linear layer with PyTorch's default initialization.
func NewLinear[B tensor.Backend](inFeatures, outFeatures int, rng *rand.Rand, backend B) *Linear[B] {
	return nn.NewLinear(inFeatures, outFeatures, rng, backend)
}

// ReLU applies max(0, x).
type ReLU[B tensor.Backend] = nn.ReLU[B]

// NewReLU creates a ReLU activation.
func NewReLU[B tensor.Backend]() *ReLU[B] {
	return nn.NewReLU[B]()
}

// Identity returns its input unchanged.
type Identity[B tensor.Backend] = nn.Identity[B]

// NewIdentity creates an Identity module.
func NewIdentity[B tensor.Backend]() *Identity[B] {
	return nn.NewIdentity[B]()
}

// Dropout zeroes elements with probability p in training mode.
type Dropout[B tensor.Backend] = nn.Dropout[B]

// NewDropout creates a Dropout module drawing masks from rng.
func NewDropout[B tensor.Backend](p float32, rng *rand.Rand) *Dropout[B] {
	return nn.NewDropout[B](p, rng)
}

// Sequential chains named modules.
type Sequential[B tensor.Backend] = nn.Sequential[B]

// NewSequential creates a container whose children are named by index.
func NewSequential[B tensor.Backend](modules ...Module[B]) *Sequential[B] {
	return nn.NewSequential(modules...)
}

// MSELoss computes the mean squared error.
type MSELoss[B tensor.Backend] = nn.MSELoss[B]

// NewMSELoss creates an MSE loss.
func NewMSELoss[B tensor.Backend](backend B) *MSELoss[B] {
	return nn.NewMSELoss(backend)
}

// ZeroInit sets a parameter to zero in place.
func ZeroInit[B tensor.Backend](p *Parameter[B]) {
	nn.ZeroInit(p)
}
