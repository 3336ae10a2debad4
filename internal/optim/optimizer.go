// Package optim implements optimization algorithms for training neural networks.
//
// This package provides:
//   - Optimizer interface: Base interface for all optimizers
//   - Adam: Adaptive Moment Estimation
//   - Schedulers: per-epoch learning rate schedules
//
// Design inspired by PyTorch's torch.optim but adapted for Go with type safety.
//
// Example usage:
//
//	optimizer := optim.NewAdam(decoder.Parameters(), optim.AdamConfig{LR: 1e-4}, backend)
//	schedule := optim.InverseTimeDecay{InitialLR: 1e-4, Decay: 5e-5}
//
//	for epoch := range epochs {
//	    optim.ApplySchedule(optimizer, schedule, epoch)
//	    for batch := range batches {
//	        optimizer.ZeroGrad()
//	        backend.Tape().StartRecording()
//	        loss := computeLoss(batch)
//	        grads := autodiff.Backward(loss, backend)
//	        optimizer.Step(grads)
//	        backend.Tape().Clear()
//	    }
//	}
package optim

import (
	"errors"
	"fmt"

	"github.com/born-ml/stylize/internal/nn"
	"github.com/born-ml/stylize/internal/tensor"
)

// ErrOptimizerState is matched by every optimizer state loading error.
var ErrOptimizerState = errors.New("optimizer state mismatch")

// Optimizer is the base interface for all optimization algorithms.
//
// Optimizers update model parameters in place based on computed gradients.
type Optimizer interface {
	// Step applies gradient updates to all parameters.
	//
	// Takes the gradient map from autodiff.Backward. Parameters without an
	// entry are left untouched.
	Step(grads map[*tensor.RawTensor]*tensor.RawTensor)

	// ZeroGrad clears all parameter gradients.
	ZeroGrad()

	// GetLR returns the current learning rate.
	GetLR() float32

	// SetLR replaces the learning rate, e.g. from a scheduler.
	SetLR(lr float32)
}

var (
	_ Optimizer         = (*Adam[tensor.Backend])(nil)
	_ nn.OptimizerState = (*Adam[tensor.Backend])(nil)
)

// getGradient returns the float32 gradient for param, or nil if the
// parameter was not part of the computation graph.
func getGradient[B tensor.Backend](param *nn.Parameter[B], grads map[*tensor.RawTensor]*tensor.RawTensor) []float32 {
	if param == nil {
		return nil
	}
	grad, ok := grads[param.Tensor().Raw()]
	if !ok || grad == nil {
		return nil
	}
	if !grad.Shape().Equal(param.Shape()) {
		panic(fmt.Sprintf("optim: gradient shape %v does not match parameter %q shape %v",
			grad.Shape(), param.Name(), param.Shape()))
	}
	return grad.AsFloat32()
}

// stateKey names a per-parameter buffer in a state dictionary.
func stateKey(buffer string, index int) string {
	return fmt.Sprintf("%s.%d", buffer, index)
}

// loadBuffer copies a stored buffer into dst after checking its shape.
func loadBuffer(stateDict map[string]*tensor.RawTensor, key string, dst *tensor.RawTensor) error {
	raw, ok := stateDict[key]
	if !ok {
		return fmt.Errorf("%w: missing %q", ErrOptimizerState, key)
	}
	if !raw.Shape().Equal(dst.Shape()) || raw.DType() != tensor.Float32 {
		return fmt.Errorf("%w: %q is %s%v, want float32%v", ErrOptimizerState, key, raw.DType(), raw.Shape(), dst.Shape())
	}
	copy(dst.AsFloat32(), raw.AsFloat32())
	return nil
}

func scalarRaw(v float32) *tensor.RawTensor {
	raw := tensor.MustNewRaw(tensor.Shape{1}, tensor.Float32, tensor.CPU)
	raw.AsFloat32()[0] = v
	return raw
}
