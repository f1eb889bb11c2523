package nn

import (
	"math"
	"math/rand/v2"

	"github.com/born-ml/chainmlp/internal/tensor"
)

// KaimingUniform initializes a tensor the way PyTorch initializes Linear
// weights and biases: U(-1/sqrt(fan_in), 1/sqrt(fan_in)).
//
// This equals kaiming_uniform_ with a=sqrt(5).
func KaimingUniform[B tensor.Backend](fanIn int, shape tensor.Shape, rng *rand.Rand, backend B) *tensor.Tensor[float32, B] {
	bound := 1.0 / math.Sqrt(float64(fanIn))
	return tensor.Uniform[float32](shape, -bound, bound, rng, backend)
}

// Zeros creates a tensor filled with zeros.
func Zeros[B tensor.Backend](shape tensor.Shape, backend B) *tensor.Tensor[float32, B] {
	return tensor.Zeros[float32](shape, backend)
}

// ZeroInit overwrites the parameter's values with zeros in place.
func ZeroInit[B tensor.Backend](p *Parameter[B]) {
	clear(p.Tensor().Data())
}
