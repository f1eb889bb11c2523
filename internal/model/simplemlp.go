// Package model wires two SimpleMLPs into the chainmlp network.
package model

import (
	"fmt"
	"math/rand/v2"

	"github.com/born-ml/chainmlp/internal/nn"
	"github.com/born-ml/chainmlp/internal/tensor"
)

// SimpleMLP is a stack of (Linear -> ReLU -> Dropout) blocks followed by an
// output Linear.
//
// The first block is stored at indices 0-2 of the mlp container and every
// further block as a nested container named hidden_<i>, so state dict keys
// read mlp.0.weight, mlp.hidden_1.0.weight, ..., output_layer.weight.
type SimpleMLP[B tensor.Backend] struct {
	cfg         MLPConfig
	mlp         *nn.Sequential[B]
	hidden      []*nn.Linear[B]
	outputLayer *nn.Linear[B]
}

// NewSimpleMLP builds a SimpleMLP. When cfg.ZeroInit is set the weight of
// every hidden Linear is zeroed after initialization; biases and the output
// layer keep their random initialization.
func NewSimpleMLP[B tensor.Backend](cfg MLPConfig, rng *rand.Rand, backend B) (*SimpleMLP[B], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	m := &SimpleMLP[B]{cfg: cfg}

	first := nn.NewLinear(cfg.InputDim, cfg.HiddenDims[0], rng, backend)
	m.mlp = nn.NewSequential[B](first, nn.NewReLU[B](), dropoutOrIdentity[B](cfg.Dropout, rng))
	m.hidden = append(m.hidden, first)

	for i := 1; i < len(cfg.HiddenDims); i++ {
		linear := nn.NewLinear(cfg.HiddenDims[i-1], cfg.HiddenDims[i], rng, backend)
		block := nn.NewSequential[B](linear, nn.NewReLU[B](), dropoutOrIdentity[B](cfg.Dropout, rng))
		if err := m.mlp.AddNamed(fmt.Sprintf("hidden_%d", i), block); err != nil {
			return nil, err
		}
		m.hidden = append(m.hidden, linear)
	}

	if cfg.ZeroInit {
		for _, l := range m.hidden {
			nn.ZeroInit(l.Weight())
		}
	}

	m.outputLayer = nn.NewLinear(cfg.HiddenDim(), cfg.OutputDim, rng, backend)
	return m, nil
}

func dropoutOrIdentity[B tensor.Backend](p float32, rng *rand.Rand) nn.Module[B] {
	if p > 0 {
		return nn.NewDropout[B](p, rng)
	}
	return nn.NewIdentity[B]()
}

// Forward returns the output layer's result and the last hidden activation.
//
// Input shape: [..., input_dim]
// Output shapes: [..., output_dim], [..., hidden_dims[last]]
func (m *SimpleMLP[B]) Forward(x *tensor.Tensor[float32, B]) (out, hidden *tensor.Tensor[float32, B]) {
	hidden = m.mlp.Forward(x)
	out = m.outputLayer.Forward(hidden)
	return out, hidden
}

// Config returns the configuration the MLP was built from.
func (m *SimpleMLP[B]) Config() MLPConfig {
	return m.cfg
}

// HiddenLayers returns the Linear layer of each hidden block in order.
func (m *SimpleMLP[B]) HiddenLayers() []*nn.Linear[B] {
	return append([]*nn.Linear[B](nil), m.hidden...)
}

// OutputLayer returns the final Linear layer.
func (m *SimpleMLP[B]) OutputLayer() *nn.Linear[B] {
	return m.outputLayer
}

// Parameters returns all learnable parameters.
func (m *SimpleMLP[B]) Parameters() []*nn.Parameter[B] {
	return append(m.mlp.Parameters(), m.outputLayer.Parameters()...)
}

// SetTraining toggles dropout in every block.
func (m *SimpleMLP[B]) SetTraining(training bool) {
	m.mlp.SetTraining(training)
}

// StateDict returns parameters keyed the way PyTorch names them.
func (m *SimpleMLP[B]) StateDict() map[string]*tensor.RawTensor {
	stateDict := make(map[string]*tensor.RawTensor)
	for k, v := range m.mlp.StateDict() {
		stateDict["mlp."+k] = v
	}
	for k, v := range m.outputLayer.StateDict() {
		stateDict["output_layer."+k] = v
	}
	return stateDict
}

// LoadStateDict loads parameters keyed as in StateDict.
func (m *SimpleMLP[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	if err := m.mlp.LoadStateDict(subDict(stateDict, "mlp.")); err != nil {
		return fmt.Errorf("mlp: %w", err)
	}
	if err := m.outputLayer.LoadStateDict(subDict(stateDict, "output_layer.")); err != nil {
		return fmt.Errorf("output_layer: %w", err)
	}
	return nil
}
