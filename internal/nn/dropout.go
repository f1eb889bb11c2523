package nn

import (
	"fmt"
	"math/rand/v2"

	"github.com/born-ml/chainmlp/internal/tensor"
)

// Dropout zeroes each element with probability p during training and
// scales the survivors by 1/(1-p), so evaluation needs no rescaling.
// In evaluation mode it is the identity.
//
// New modules start in training mode.
type Dropout[B tensor.Backend] struct {
	p        float32
	training bool
	rng      *rand.Rand
}

// NewDropout creates a Dropout module. p must be in [0, 1].
func NewDropout[B tensor.Backend](p float32, rng *rand.Rand) *Dropout[B] {
	if p < 0 || p > 1 {
		panic(fmt.Sprintf("Dropout: probability must be in [0, 1], got %v", p))
	}
	return &Dropout[B]{
		p:        p,
		training: true,
		rng:      rng,
	}
}

// P returns the drop probability.
func (d *Dropout[B]) P() float32 {
	return d.p
}

// Training reports whether the module is in training mode.
func (d *Dropout[B]) Training() bool {
	return d.training
}

// Forward applies dropout in training mode and returns input otherwise.
func (d *Dropout[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	if !d.training || d.p == 0 {
		return input
	}

	mask := tensor.Zeros[float32](input.Shape(), input.Backend())
	if d.p < 1 {
		scale := 1 / (1 - d.p)
		data := mask.Data()
		for i := range data {
			if d.rng.Float32() >= d.p {
				data[i] = scale
			}
		}
	}

	return input.Mul(mask)
}

// Parameters returns nil.
func (d *Dropout[B]) Parameters() []*Parameter[B] {
	return nil
}

// StateDict returns an empty map.
func (d *Dropout[B]) StateDict() map[string]*tensor.RawTensor {
	return map[string]*tensor.RawTensor{}
}

// LoadStateDict accepts any state dict; there is nothing to load.
func (d *Dropout[B]) LoadStateDict(map[string]*tensor.RawTensor) error {
	return nil
}

// SetTraining switches dropout on (true) or off (false).
func (d *Dropout[B]) SetTraining(training bool) {
	d.training = training
}
