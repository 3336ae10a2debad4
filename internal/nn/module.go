// Package nn implements the neural network modules used by the style
// transfer models.
//
// This package provides building blocks for convolutional image networks:
//   - Module interface: Base interface for all NN components
//   - Parameter: Trainable parameters with gradient tracking
//   - Layers: Conv2D, MaxPool2D, Upsample, ReLU
//   - Loss functions: MSE, squared and Euclidean distance
//   - Sequential: Container for stacking layers
//   - Checkpoint: Model plus optimizer state in .born format
//
// Design inspired by PyTorch's nn.Module but adapted for Go generics.
package nn

import (
	"github.com/born-ml/stylize/internal/tensor"
)

// Module is the base interface for all neural network components.
//
// Modules can be composed to build complex architectures:
//
//	model := nn.NewSequential[Backend](
//	    nn.NewConv2D(3, 64, 3, 1, 1, rng, backend),
//	    nn.NewReLU[Backend](),
//	    nn.NewMaxPool2D(2, 2, backend),
//	)
//
// Type parameter B must satisfy the tensor.Backend interface.
type Module[B tensor.Backend] interface {
	// Forward computes the output of the module given an input tensor.
	Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B]

	// Parameters returns all trainable parameters of this module.
	// Parameterless modules return an empty slice.
	Parameters() []*Parameter[B]

	// StateDict returns the module's tensors keyed by parameter name.
	StateDict() map[string]*tensor.RawTensor

	// LoadStateDict copies matching tensors into the module's parameters.
	LoadStateDict(stateDict map[string]*tensor.RawTensor) error
}

// stateDictOf builds a state dictionary from parameters.
func stateDictOf[B tensor.Backend](params ...*Parameter[B]) map[string]*tensor.RawTensor {
	stateDict := make(map[string]*tensor.RawTensor, len(params))
	for _, p := range params {
		stateDict[p.Name()] = p.Tensor().Raw()
	}
	return stateDict
}

// loadInto copies every parameter's entry out of stateDict.
func loadInto[B tensor.Backend](stateDict map[string]*tensor.RawTensor, params ...*Parameter[B]) error {
	for _, p := range params {
		raw, ok := stateDict[p.Name()]
		if !ok {
			return &MissingParameterError{Name: p.Name()}
		}
		if err := p.Load(raw); err != nil {
			return err
		}
	}
	return nil
}

// parameterless is embedded by modules without weights.
type parameterless[B tensor.Backend] struct{}

// Parameters returns an empty slice.
func (parameterless[B]) Parameters() []*Parameter[B] {
	return []*Parameter[B]{}
}

// StateDict returns an empty map.
func (parameterless[B]) StateDict() map[string]*tensor.RawTensor {
	return map[string]*tensor.RawTensor{}
}

// LoadStateDict accepts only an empty state dictionary.
func (parameterless[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	for name := range stateDict {
		return &UnexpectedParameterError{Name: name}
	}
	return nil
}
