package nn

import (
	"fmt"
	"math/rand/v2"

	"github.com/born-ml/chainmlp/internal/tensor"
)

// Linear implements a fully connected (dense) layer.
//
// Performs the transformation: y = x @ W.T + b
// where:
//   - x is the input tensor with shape [..., in_features]
//   - W is the weight matrix with shape [out_features, in_features]
//   - b is the bias vector with shape [out_features]
//   - y is the output tensor with shape [..., out_features]
//
// Weights and biases are drawn from U(-1/sqrt(in), 1/sqrt(in)).
type Linear[B tensor.Backend] struct {
	inFeatures  int
	outFeatures int
	weight      *Parameter[B] // [out_features, in_features]
	bias        *Parameter[B] // [out_features]
	backend     B
}

// NewLinear creates a new Linear layer initialized from rng.
func NewLinear[B tensor.Backend](inFeatures, outFeatures int, rng *rand.Rand, backend B) *Linear[B] {
	weight := NewParameter("weight", KaimingUniform(inFeatures, tensor.Shape{outFeatures, inFeatures}, rng, backend))
	bias := NewParameter("bias", KaimingUniform(inFeatures, tensor.Shape{outFeatures}, rng, backend))

	return &Linear[B]{
		inFeatures:  inFeatures,
		outFeatures: outFeatures,
		weight:      weight,
		bias:        bias,
		backend:     backend,
	}
}

// Forward computes the output of the linear layer.
//
// Leading dimensions are flattened into a batch for the matrix multiply
// and restored afterwards, so [b, t, in] maps to [b, t, out].
func (l *Linear[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	inputShape := input.Shape()
	if len(inputShape) == 0 {
		panic("Linear.Forward: expected input with at least 1 dimension, got scalar")
	}
	if last := inputShape[len(inputShape)-1]; last != l.inFeatures {
		panic(fmt.Sprintf("Linear.Forward: expected input with %d features, got %d", l.inFeatures, last))
	}

	batch := input.NumElements() / l.inFeatures
	x := input
	if len(inputShape) != 2 {
		x = input.Reshape(batch, l.inFeatures)
	}

	// [batch, in] @ [out, in]^T = [batch, out]
	output := x.MatMulTransB(l.weight.Tensor())
	output = output.Add(l.bias.Tensor().Reshape(1, l.outFeatures))

	if len(inputShape) != 2 {
		outShape := inputShape.Clone()
		outShape[len(outShape)-1] = l.outFeatures
		output = output.Reshape(outShape...)
	}

	return output
}

// Parameters returns [weight, bias].
func (l *Linear[B]) Parameters() []*Parameter[B] {
	return []*Parameter[B]{l.weight, l.bias}
}

// Weight returns the weight parameter.
func (l *Linear[B]) Weight() *Parameter[B] {
	return l.weight
}

// Bias returns the bias parameter.
func (l *Linear[B]) Bias() *Parameter[B] {
	return l.bias
}

// InFeatures returns the number of input features.
func (l *Linear[B]) InFeatures() int {
	return l.inFeatures
}

// OutFeatures returns the number of output features.
func (l *Linear[B]) OutFeatures() int {
	return l.outFeatures
}

// SetTraining is a no-op; Linear behaves the same in both modes.
func (l *Linear[B]) SetTraining(bool) {}

// StateDict returns a map of parameter names to raw tensors.
func (l *Linear[B]) StateDict() map[string]*tensor.RawTensor {
	return map[string]*tensor.RawTensor{
		"weight": l.weight.Tensor().Raw(),
		"bias":   l.bias.Tensor().Raw(),
	}
}

// LoadStateDict loads parameters from a state dictionary.
func (l *Linear[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	for _, p := range l.Parameters() {
		raw, ok := stateDict[p.Name()]
		if !ok {
			return fmt.Errorf("%w: %s", ErrMissingParameter, p.Name())
		}
		if err := p.Load(raw); err != nil {
			return err
		}
	}
	return nil
}
