package cpu

import (
	"fmt"
	"math"

	"github.com/born-ml/stylize/internal/tensor"
)

// Add performs element-wise addition with NumPy-style broadcasting.
func (cpu *CPUBackend) Add(a, b *tensor.RawTensor) *tensor.RawTensor {
	return cpu.binary("add", a, b,
		func(x, y float32) float32 { return x + y },
		func(x, y float64) float64 { return x + y })
}

// Sub performs element-wise subtraction with broadcasting.
func (cpu *CPUBackend) Sub(a, b *tensor.RawTensor) *tensor.RawTensor {
	return cpu.binary("sub", a, b,
		func(x, y float32) float32 { return x - y },
		func(x, y float64) float64 { return x - y })
}

// Mul performs element-wise multiplication with broadcasting.
func (cpu *CPUBackend) Mul(a, b *tensor.RawTensor) *tensor.RawTensor {
	return cpu.binary("mul", a, b,
		func(x, y float32) float32 { return x * y },
		func(x, y float64) float64 { return x * y })
}

// Div performs element-wise division with broadcasting.
// Division by zero follows IEEE 754 (±Inf or NaN); callers guard denominators.
func (cpu *CPUBackend) Div(a, b *tensor.RawTensor) *tensor.RawTensor {
	return cpu.binary("div", a, b,
		func(x, y float32) float32 { return x / y },
		func(x, y float64) float64 { return x / y })
}

// MulScalar multiplies every element by scalar.
func (cpu *CPUBackend) MulScalar(x *tensor.RawTensor, scalar float64) *tensor.RawTensor {
	return cpu.unary("mul_scalar", x,
		func(v float32) float32 { return v * float32(scalar) },
		func(v float64) float64 { return v * scalar })
}

// AddScalar adds scalar to every element.
func (cpu *CPUBackend) AddScalar(x *tensor.RawTensor, scalar float64) *tensor.RawTensor {
	return cpu.unary("add_scalar", x,
		func(v float32) float32 { return v + float32(scalar) },
		func(v float64) float64 { return v + scalar })
}

// Sqrt computes the element-wise square root.
func (cpu *CPUBackend) Sqrt(x *tensor.RawTensor) *tensor.RawTensor {
	return cpu.unary("sqrt", x,
		func(v float32) float32 { return float32(math.Sqrt(float64(v))) },
		math.Sqrt)
}

// ReLU computes max(0, x) element-wise.
func (cpu *CPUBackend) ReLU(x *tensor.RawTensor) *tensor.RawTensor {
	return cpu.unary("relu", x,
		func(v float32) float32 { return max(v, 0) },
		func(v float64) float64 { return max(v, 0) })
}

func (cpu *CPUBackend) unary(op string, x *tensor.RawTensor, f32 func(float32) float32, f64 func(float64) float64) *tensor.RawTensor {
	result := cpu.alloc(op, x.Shape(), x.DType())
	dispatch(op, x.DType(),
		func() { mapKernel(result, x, f32) },
		func() { mapKernel(result, x, f64) })
	return result
}

func (cpu *CPUBackend) binary(op string, a, b *tensor.RawTensor, f32 func(x, y float32) float32, f64 func(x, y float64) float64) *tensor.RawTensor {
	dtype := sameDType(op, a, b)
	outShape, _, err := tensor.BroadcastShapes(a.Shape(), b.Shape())
	if err != nil {
		panic(fmt.Sprintf("%s: %v", op, err))
	}

	result := cpu.alloc(op, outShape, dtype)
	dispatch(op, dtype,
		func() { zipKernel(result, a, b, f32) },
		func() { zipKernel(result, a, b, f64) })
	return result
}

func mapKernel[T tensor.DType](out, x *tensor.RawTensor, f func(T) T) {
	od := tensor.Values[T](out)
	xd := tensor.Values[T](x)
	for i, v := range xd {
		od[i] = f(v)
	}
}

// zipKernel applies f pairwise, reading a and b through broadcast strides.
func zipKernel[T tensor.DType](out, a, b *tensor.RawTensor, f func(x, y T) T) {
	od := tensor.Values[T](out)
	ad := tensor.Values[T](a)
	bd := tensor.Values[T](b)

	// Fast path: identical shapes.
	if a.Shape().Equal(b.Shape()) {
		for i := range od {
			od[i] = f(ad[i], bd[i])
		}
		return
	}

	shape := out.Shape()
	aStrides := a.Shape().BroadcastStrides(shape)
	bStrides := b.Shape().BroadcastStrides(shape)
	forEachBroadcast(shape, aStrides, bStrides, func(i, ai, bi int) {
		od[i] = f(ad[ai], bd[bi])
	})
}

// forEachBroadcast walks shape in row-major order, tracking the matching
// offsets into two operands with the given (possibly zero) strides.
func forEachBroadcast(shape tensor.Shape, aStrides, bStrides []int, visit func(i, ai, bi int)) {
	n := shape.NumElements()
	idx := make([]int, len(shape))
	ai, bi := 0, 0
	for i := 0; i < n; i++ {
		visit(i, ai, bi)
		for d := len(shape) - 1; d >= 0; d-- {
			idx[d]++
			ai += aStrides[d]
			bi += bStrides[d]
			if idx[d] < shape[d] {
				break
			}
			ai -= aStrides[d] * shape[d]
			bi -= bStrides[d] * shape[d]
			idx[d] = 0
		}
	}
}
