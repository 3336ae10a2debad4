package nn

import (
	"errors"
	"fmt"

	"github.com/born-ml/stylize/internal/tensor"
)

// ErrStateDict is matched by every state dictionary loading error.
var ErrStateDict = errors.New("state dict mismatch")

// MissingParameterError reports a parameter absent from a state dictionary.
type MissingParameterError struct {
	Name string
}

func (e *MissingParameterError) Error() string {
	return fmt.Sprintf("state dict: missing parameter %q", e.Name)
}

// Unwrap returns ErrStateDict.
func (e *MissingParameterError) Unwrap() error { return ErrStateDict }

// UnexpectedParameterError reports a state dictionary entry nothing consumes.
type UnexpectedParameterError struct {
	Name string
}

func (e *UnexpectedParameterError) Error() string {
	return fmt.Sprintf("state dict: unexpected parameter %q", e.Name)
}

// Unwrap returns ErrStateDict.
func (e *UnexpectedParameterError) Unwrap() error { return ErrStateDict }

// ShapeMismatchError reports a stored tensor whose shape differs from the
// parameter it is loaded into.
type ShapeMismatchError struct {
	Name     string
	Expected tensor.Shape
	Got      tensor.Shape
}

func (e *ShapeMismatchError) Error() string {
	return fmt.Sprintf("state dict: parameter %q has shape %v, stored tensor has %v", e.Name, e.Expected, e.Got)
}

// Unwrap returns ErrStateDict.
func (e *ShapeMismatchError) Unwrap() error { return ErrStateDict }

// Parameter represents a trainable parameter in a neural network.
//
// Optimizers update the parameter tensor in place, so views and references
// taken from Tensor() observe every step.
//
// Example:
//
//	weight := nn.NewParameter("weight", weightTensor)
//	grad := grads[weight.Tensor().Raw()]
type Parameter[B tensor.Backend] struct {
	name   string
	tensor *tensor.Tensor[float32, B]
	grad   *tensor.Tensor[float32, B] // Set by the training loop, nil between steps
}

// NewParameter creates a new trainable parameter.
func NewParameter[B tensor.Backend](name string, t *tensor.Tensor[float32, B]) *Parameter[B] {
	return &Parameter[B]{name: name, tensor: t}
}

// Name returns the parameter name.
func (p *Parameter[B]) Name() string {
	return p.name
}

// Tensor returns the parameter tensor.
func (p *Parameter[B]) Tensor() *tensor.Tensor[float32, B] {
	return p.tensor
}

// Shape returns the parameter shape.
func (p *Parameter[B]) Shape() tensor.Shape {
	return p.tensor.Shape()
}

// NumElements returns the number of scalars in the parameter.
func (p *Parameter[B]) NumElements() int {
	return p.tensor.NumElements()
}

// Grad returns the gradient tensor, or nil before a backward pass.
func (p *Parameter[B]) Grad() *tensor.Tensor[float32, B] {
	return p.grad
}

// SetGrad sets the gradient tensor.
func (p *Parameter[B]) SetGrad(grad *tensor.Tensor[float32, B]) {
	p.grad = grad
}

// ZeroGrad clears the gradient tensor.
func (p *Parameter[B]) ZeroGrad() {
	p.grad = nil
}

// Load copies raw into the parameter. float64 tensors are narrowed.
func (p *Parameter[B]) Load(raw *tensor.RawTensor) error {
	if !raw.Shape().Equal(p.Shape()) {
		return &ShapeMismatchError{Name: p.name, Expected: p.Shape(), Got: raw.Shape()}
	}
	dst := p.tensor.Data()
	switch raw.DType() {
	case tensor.Float32:
		copy(dst, raw.AsFloat32())
	case tensor.Float64:
		for i, v := range raw.AsFloat64() {
			dst[i] = float32(v)
		}
	default:
		return fmt.Errorf("%w: parameter %q: unsupported dtype %s", ErrStateDict, p.name, raw.DType())
	}
	return nil
}
