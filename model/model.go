// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package model provides the chainmlp network: two MLPs where the second
// sees the input concatenated with the first one's last hidden layer.
//
// Example:
//
//	backend := cpu.New()
//	rng := rand.New(rand.NewPCG(1, 2))
//	m, err := model.New(model.DefaultConfig(), rng, backend)
//	if err != nil {
//	    return err
//	}
//	if err := m.Load("weights.safetensors"); err != nil {
//	    return err
//	}
//	m.Eval()
//	pred, predAll := m.Forward(x) // x: [batch, 77]
package model

import (
	"math/rand/v2"

	"github.com/born-ml/chainmlp/internal/model"
	"github.com/born-ml/chainmlp/internal/serialization"
	"github.com/born-ml/chainmlp/tensor"
)

// Config describes the two-stage network.
type Config = model.Config

// MLPConfig describes one stage.
type MLPConfig = model.MLPConfig

// Model is the two-stage network.
type Model[B tensor.Backend] = model.Model[B]

// SimpleMLP is one stage of the network.
type SimpleMLP[B tensor.Backend] = model.SimpleMLP[B]

// DType is the storage type used when saving weights.
type DType = serialization.DType

// Storage dtypes accepted by Model.Save.
const (
	F32  DType = serialization.F32
	F16  DType = serialization.F16
	BF16 DType = serialization.BF16
)

// Errors returned when building or loading a model.
var (
	ErrInvalidConfig  = model.ErrInvalidConfig
	ErrConfigMismatch = model.ErrConfigMismatch
	ErrUnexpectedKey  = model.ErrUnexpectedKey
)

// DefaultConfig returns the reference architecture (77 inputs, 4x512 and
// 5x512 hidden stages, zero-initialized hidden weights).
func DefaultConfig() Config {
	return model.DefaultConfig()
}

// LoadConfig reads a YAML architecture config.
func LoadConfig(path string) (Config, error) {
	return model.LoadConfig(path)
}

// New builds a model from cfg, drawing initial weights from rng.
// The model starts in training mode.
func New[B tensor.Backend](cfg Config, rng *rand.Rand, backend B) (*Model[B], error) {
	return model.New(cfg, rng, backend)
}

// NewSimpleMLP builds a single stage.
func NewSimpleMLP[B tensor.Backend](cfg MLPConfig, rng *rand.Rand, backend B) (*SimpleMLP[B], error) {
	return model.NewSimpleMLP(cfg, rng, backend)
}
