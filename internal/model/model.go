package model

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"
	"strings"

	"github.com/born-ml/chainmlp/internal/nn"
	"github.com/born-ml/chainmlp/internal/tensor"
)

// ErrUnexpectedKey is returned by LoadStateDict for tensors the model does
// not own.
var ErrUnexpectedKey = errors.New("unexpected key in state dict")

// State dict prefixes of the two stages.
const (
	Stage1Prefix = "simplemlp1."
	Stage2Prefix = "simplemlp2."
)

// Model chains two SimpleMLPs: the first maps the input to auxiliary
// predictions and a hidden representation; the second maps the input
// concatenated with that hidden representation to the final prediction.
//
// Like the modules it is built from, a new Model starts in training mode.
// Call Eval before inference.
type Model[B tensor.Backend] struct {
	cfg        Config
	nEmbd      int
	nLayer     int
	dropout    float32
	simplemlp1 *SimpleMLP[B]
	simplemlp2 *SimpleMLP[B]
	training   bool
}

// New builds a Model from cfg, drawing initial weights from rng.
func New[B tensor.Backend](cfg Config, rng *rand.Rand, backend B) (*Model[B], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	mlp1, err := NewSimpleMLP(cfg.Stage1, rng, backend)
	if err != nil {
		return nil, fmt.Errorf("simplemlp1: %w", err)
	}
	mlp2, err := NewSimpleMLP(cfg.Stage2, rng, backend)
	if err != nil {
		return nil, fmt.Errorf("simplemlp2: %w", err)
	}

	return &Model[B]{
		cfg:        cfg,
		nEmbd:      cfg.DModel,
		nLayer:     cfg.NLayer,
		dropout:    cfg.Dropout,
		simplemlp1: mlp1,
		simplemlp2: mlp2,
		training:   true,
	}, nil
}

// Forward runs both stages.
//
// Input shape: [..., stage1 input_dim]
// Returns pred [..., stage2 output_dim] and predAll [..., stage1 output_dim].
func (m *Model[B]) Forward(x *tensor.Tensor[float32, B]) (pred, predAll *tensor.Tensor[float32, B]) {
	predAll, hidden := m.simplemlp1.Forward(x)
	xWithHidden := tensor.Cat([]*tensor.Tensor[float32, B]{x, hidden}, -1)
	pred, _ = m.simplemlp2.Forward(xWithHidden)
	return pred, predAll
}

// Config returns the configuration the model was built from.
func (m *Model[B]) Config() Config {
	return m.cfg
}

// NEmbd returns the recorded embedding width (config d_model).
func (m *Model[B]) NEmbd() int {
	return m.nEmbd
}

// NLayer returns the recorded layer count.
func (m *Model[B]) NLayer() int {
	return m.nLayer
}

// Dropout returns the recorded model-level dropout rate. Each stage uses
// its own rate from the stage config.
func (m *Model[B]) Dropout() float32 {
	return m.dropout
}

// Stage1 returns the first SimpleMLP.
func (m *Model[B]) Stage1() *SimpleMLP[B] {
	return m.simplemlp1
}

// Stage2 returns the second SimpleMLP.
func (m *Model[B]) Stage2() *SimpleMLP[B] {
	return m.simplemlp2
}

// Train enables dropout.
func (m *Model[B]) Train() {
	m.setTraining(true)
}

// Eval disables dropout.
func (m *Model[B]) Eval() {
	m.setTraining(false)
}

// Training reports whether the model is in training mode.
func (m *Model[B]) Training() bool {
	return m.training
}

func (m *Model[B]) setTraining(training bool) {
	m.training = training
	m.simplemlp1.SetTraining(training)
	m.simplemlp2.SetTraining(training)
}

// Parameters returns all learnable parameters, stage 1 first.
func (m *Model[B]) Parameters() []*nn.Parameter[B] {
	return append(m.simplemlp1.Parameters(), m.simplemlp2.Parameters()...)
}

// NumParameters returns the total number of learnable scalars.
func (m *Model[B]) NumParameters() int {
	n := 0
	for _, p := range m.Parameters() {
		n += p.NumElements()
	}
	return n
}

// StateDict returns parameters keyed like the PyTorch module tree, e.g.
// simplemlp1.mlp.0.weight or simplemlp2.output_layer.bias.
func (m *Model[B]) StateDict() map[string]*tensor.RawTensor {
	stateDict := make(map[string]*tensor.RawTensor)
	for k, v := range m.simplemlp1.StateDict() {
		stateDict[Stage1Prefix+k] = v
	}
	for k, v := range m.simplemlp2.StateDict() {
		stateDict[Stage2Prefix+k] = v
	}
	return stateDict
}

// LoadStateDict copies every parameter from stateDict. Missing, surplus or
// mis-shaped tensors are errors; the model may be partially updated when an
// error is returned.
func (m *Model[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	own := m.StateDict()
	var unexpected []string
	for k := range stateDict {
		if _, ok := own[k]; !ok {
			unexpected = append(unexpected, k)
		}
	}
	if len(unexpected) > 0 {
		sort.Strings(unexpected)
		return fmt.Errorf("%w: %s", ErrUnexpectedKey, strings.Join(unexpected, ", "))
	}

	if err := m.simplemlp1.LoadStateDict(subDict(stateDict, Stage1Prefix)); err != nil {
		return fmt.Errorf("simplemlp1: %w", err)
	}
	if err := m.simplemlp2.LoadStateDict(subDict(stateDict, Stage2Prefix)); err != nil {
		return fmt.Errorf("simplemlp2: %w", err)
	}
	return nil
}

// subDict returns the entries of stateDict under prefix, with the prefix
// removed.
func subDict(stateDict map[string]*tensor.RawTensor, prefix string) map[string]*tensor.RawTensor {
	out := make(map[string]*tensor.RawTensor)
	for k, v := range stateDict {
		if rest, ok := strings.CutPrefix(k, prefix); ok {
			out[rest] = v
		}
	}
	return out
}
