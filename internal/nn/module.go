// Package nn implements the neural network modules used to build chainmlp
// networks.
//
// This package provides:
//   - Module interface: Base interface for all NN components
//   - Parameter: Learnable tensors with a name
//   - Linear: Fully connected layer
//   - ReLU, Dropout, Identity: Parameter-free layers
//   - Sequential: Named container for stacking layers
//   - MSELoss: Mean squared error for evaluation
//
// Modules mirror PyTorch's nn.Module closely enough that state dict keys
// produced by PyTorch load unchanged.
package nn

import (
	"errors"

	"github.com/born-ml/chainmlp/internal/tensor"
)

// State dict errors.
var (
	ErrMissingParameter = errors.New("missing parameter")
	ErrShapeMismatch    = errors.New("shape mismatch")
	ErrDTypeMismatch    = errors.New("dtype mismatch")
)

// Module is the base interface for all neural network components.
//
// Modules can be composed to build complex architectures:
//
//	model := nn.NewSequential[Backend](
//	    nn.NewLinear(784, 128, rng, backend),
//	    nn.NewReLU[Backend](),
//	    nn.NewLinear(128, 10, rng, backend),
//	)
//
// Type parameter B must satisfy the tensor.Backend interface.
type Module[B tensor.Backend] interface {
	// Forward computes the output of the module given an input tensor.
	// Shape mismatches panic.
	Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B]

	// Parameters returns all learnable parameters of this module, including
	// those of nested modules. Parameter-free modules return nil.
	Parameters() []*Parameter[B]

	// StateDict returns parameter tensors keyed by dotted name.
	StateDict() map[string]*tensor.RawTensor

	// LoadStateDict copies tensors from stateDict into the module's
	// parameters, validating shape and dtype.
	LoadStateDict(stateDict map[string]*tensor.RawTensor) error

	// SetTraining switches between training and evaluation behaviour.
	SetTraining(training bool)
}
