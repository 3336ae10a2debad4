// Package cpu implements the pure Go CPU backend.
package cpu

import (
	"fmt"

	"github.com/born-ml/stylize/internal/parallel"
	"github.com/born-ml/stylize/internal/tensor"
)

// CPUBackend implements tensor operations on CPU.
//
// Convolution and pooling kernels split their work across goroutines with
// internal/parallel; every kernel joins its workers before returning.
type CPUBackend struct {
	device tensor.Device
	par    parallel.Config
}

var _ tensor.Backend = (*CPUBackend)(nil)

// Option configures a CPUBackend.
type Option func(*CPUBackend)

// WithParallel overrides the kernel parallelism settings.
func WithParallel(cfg parallel.Config) Option {
	return func(cpu *CPUBackend) {
		cpu.par = cfg
	}
}

// New creates a new CPU backend.
func New(opts ...Option) *CPUBackend {
	cpu := &CPUBackend{
		device: tensor.CPU,
		par:    parallel.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(cpu)
	}
	return cpu
}

// Name returns the backend name.
func (cpu *CPUBackend) Name() string {
	return "CPU"
}

// Device returns the compute device.
func (cpu *CPUBackend) Device() tensor.Device {
	return cpu.device
}

// alloc creates a zeroed result tensor or panics with the operation name.
func (cpu *CPUBackend) alloc(op string, shape tensor.Shape, dtype tensor.DataType) *tensor.RawTensor {
	result, err := tensor.NewRaw(shape, dtype, cpu.device)
	if err != nil {
		panic(fmt.Sprintf("%s: failed to create result tensor: %v", op, err))
	}
	return result
}

// sameDType panics unless every tensor has the dtype of the first one.
func sameDType(op string, ts ...*tensor.RawTensor) tensor.DataType {
	dtype := ts[0].DType()
	for _, t := range ts[1:] {
		if t.DType() != dtype {
			panic(fmt.Sprintf("%s: dtype mismatch %s vs %s", op, dtype, t.DType()))
		}
	}
	return dtype
}

// dispatch runs the float32 or float64 instantiation of a kernel.
func dispatch(op string, dtype tensor.DataType, f32, f64 func()) {
	switch dtype {
	case tensor.Float32:
		f32()
	case tensor.Float64:
		f64()
	default:
		panic(fmt.Sprintf("%s: unsupported dtype %s", op, dtype))
	}
}
