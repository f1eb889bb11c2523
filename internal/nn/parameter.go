package nn

import (
	"fmt"

	"github.com/born-ml/chainmlp/internal/tensor"
)

// Parameter represents a learnable tensor in a neural network, typically a
// weight or a bias.
type Parameter[B tensor.Backend] struct {
	name   string
	tensor *tensor.Tensor[float32, B]
}

// NewParameter creates a new parameter wrapping an initialized tensor.
func NewParameter[B tensor.Backend](name string, t *tensor.Tensor[float32, B]) *Parameter[B] {
	return &Parameter[B]{
		name:   name,
		tensor: t,
	}
}

// Name returns the parameter name.
func (p *Parameter[B]) Name() string {
	return p.name
}

// Tensor returns the parameter tensor.
func (p *Parameter[B]) Tensor() *tensor.Tensor[float32, B] {
	return p.tensor
}

// NumElements returns the number of scalar values held by the parameter.
func (p *Parameter[B]) NumElements() int {
	return p.tensor.NumElements()
}

// Load copies raw into the parameter after checking shape and dtype.
func (p *Parameter[B]) Load(raw *tensor.RawTensor) error {
	want := p.tensor.Shape()
	if !raw.Shape().Equal(want) {
		return fmt.Errorf("%s: %w: expected %v, got %v", p.name, ErrShapeMismatch, want, raw.Shape())
	}
	if raw.DType() != tensor.Float32 {
		return fmt.Errorf("%s: %w: expected float32, got %v", p.name, ErrDTypeMismatch, raw.DType())
	}
	copy(p.tensor.Data(), raw.AsFloat32())
	return nil
}
