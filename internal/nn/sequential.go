package nn

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/born-ml/chainmlp/internal/tensor"
)

// Sequential is a container module that chains multiple modules together.
//
// Each module's output becomes the next module's input. Children are named;
// modules added without a name get their index ("0", "1", ...), so state
// dict keys read "0.weight", "hidden_1.0.bias" and so on.
//
// Example:
//
//	block := nn.NewSequential[Backend](
//	    nn.NewLinear(77, 512, rng, backend),
//	    nn.NewReLU[Backend](),
//	)
//	block.AddNamed("hidden_1", nn.NewSequential[Backend](...))
//
//	output := block.Forward(input)
type Sequential[B tensor.Backend] struct {
	names   []string
	modules []Module[B]
}

// NewSequential creates a new Sequential container with index-named children.
func NewSequential[B tensor.Backend](modules ...Module[B]) *Sequential[B] {
	s := &Sequential[B]{}
	for _, m := range modules {
		s.Add(m)
	}
	return s
}

// Forward applies all modules in sequence.
func (s *Sequential[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	output := input
	for _, module := range s.modules {
		output = module.Forward(output)
	}
	return output
}

// Parameters returns all learnable parameters from all modules in order.
func (s *Sequential[B]) Parameters() []*Parameter[B] {
	var params []*Parameter[B]
	for _, module := range s.modules {
		params = append(params, module.Parameters()...)
	}
	return params
}

// Add appends a module named after its position.
func (s *Sequential[B]) Add(module Module[B]) {
	s.names = append(s.names, strconv.Itoa(len(s.modules)))
	s.modules = append(s.modules, module)
}

// AddNamed appends a module under an explicit name.
// Names must be unique and must not contain dots.
func (s *Sequential[B]) AddNamed(name string, module Module[B]) error {
	if name == "" || strings.Contains(name, ".") {
		return fmt.Errorf("invalid module name %q", name)
	}
	if _, ok := s.Child(name); ok {
		return fmt.Errorf("module %q already exists", name)
	}
	s.names = append(s.names, name)
	s.modules = append(s.modules, module)
	return nil
}

// Len returns the number of modules in the sequence.
func (s *Sequential[B]) Len() int {
	return len(s.modules)
}

// Module returns the module at the given index.
//
// Supports negative indices (-1 = last module). Panics if out of bounds.
func (s *Sequential[B]) Module(index int) Module[B] {
	if index < 0 {
		index += len(s.modules)
	}
	if index < 0 || index >= len(s.modules) {
		panic("Sequential.Module: index out of bounds")
	}
	return s.modules[index]
}

// Child returns the module registered under name.
func (s *Sequential[B]) Child(name string) (Module[B], bool) {
	for i, n := range s.names {
		if n == name {
			return s.modules[i], true
		}
	}
	return nil, false
}

// Names returns child names in order.
func (s *Sequential[B]) Names() []string {
	return append([]string(nil), s.names...)
}

// SetTraining propagates the mode to every child.
func (s *Sequential[B]) SetTraining(training bool) {
	for _, module := range s.modules {
		module.SetTraining(training)
	}
}

// StateDict returns a map of parameter names to raw tensors, prefixed with
// the child name.
func (s *Sequential[B]) StateDict() map[string]*tensor.RawTensor {
	stateDict := make(map[string]*tensor.RawTensor)
	for i, module := range s.modules {
		for name, raw := range module.StateDict() {
			stateDict[s.names[i]+"."+name] = raw
		}
	}
	return stateDict
}

// LoadStateDict loads parameters from a state dictionary whose keys are
// prefixed with child names.
func (s *Sequential[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	for i, module := range s.modules {
		if len(module.Parameters()) == 0 {
			continue
		}

		prefix := s.names[i] + "."
		moduleStateDict := make(map[string]*tensor.RawTensor)
		for key, raw := range stateDict {
			if paramName, ok := strings.CutPrefix(key, prefix); ok {
				moduleStateDict[paramName] = raw
			}
		}

		if err := module.LoadStateDict(moduleStateDict); err != nil {
			return fmt.Errorf("module %s: %w", s.names[i], err)
		}
	}
	return nil
}
