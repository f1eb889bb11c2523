package nn

import (
	"fmt"

	"github.com/born-ml/chainmlp/internal/tensor"
)

// MSELoss computes Mean Squared Error loss.
//
// Loss = mean((predictions - targets)²)
//
// Only the forward value is computed; this package does not train.
type MSELoss[B tensor.Backend] struct {
	backend B
}

// NewMSELoss creates a new MSE loss function.
func NewMSELoss[B tensor.Backend](backend B) *MSELoss[B] {
	return &MSELoss[B]{
		backend: backend,
	}
}

// Forward computes the MSE loss and returns it as a tensor of shape [1].
func (m *MSELoss[B]) Forward(predictions, targets *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	if !predictions.Shape().Equal(targets.Shape()) {
		panic(fmt.Sprintf("MSELoss: predictions %v and targets %v must have the same shape",
			predictions.Shape(), targets.Shape()))
	}

	diff := predictions.Sub(targets)
	squared := diff.Mul(diff)

	// Accumulate in float64 to keep large batches accurate
	var sum float64
	for _, v := range squared.Data() {
		sum += float64(v)
	}

	loss := tensor.Zeros[float32](tensor.Shape{1}, m.backend)
	loss.Data()[0] = float32(sum / float64(squared.NumElements()))
	return loss
}
