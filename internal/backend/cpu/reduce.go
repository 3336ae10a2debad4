package cpu

import (
	"fmt"

	"github.com/born-ml/stylize/internal/tensor"
)

// Sum reduces all elements to a scalar (shape []).
// Accumulation runs in float64 regardless of dtype.
func (cpu *CPUBackend) Sum(x *tensor.RawTensor) *tensor.RawTensor {
	result := cpu.alloc("sum", tensor.Shape{}, x.DType())
	dispatch("sum", x.DType(),
		func() { sumKernel[float32](result, x) },
		func() { sumKernel[float64](result, x) })
	return result
}

// SumDim sums along dim. Negative dims count from the end.
//
// Example:
//
//	x: [2, 8, 4, 4] → SumDim(3, true) → [2, 8, 4, 1]
func (cpu *CPUBackend) SumDim(x *tensor.RawTensor, dim int, keepDim bool) *tensor.RawTensor {
	return cpu.reduceDim("sumdim", x, dim, keepDim, false)
}

// MeanDim averages along dim. Negative dims count from the end.
func (cpu *CPUBackend) MeanDim(x *tensor.RawTensor, dim int, keepDim bool) *tensor.RawTensor {
	return cpu.reduceDim("meandim", x, dim, keepDim, true)
}

func (cpu *CPUBackend) reduceDim(op string, x *tensor.RawTensor, dim int, keepDim, mean bool) *tensor.RawTensor {
	shape := x.Shape()
	dim = normalizeDim(op, dim, len(shape))

	outShape := make(tensor.Shape, 0, len(shape))
	for i, d := range shape {
		switch {
		case i != dim:
			outShape = append(outShape, d)
		case keepDim:
			outShape = append(outShape, 1)
		}
	}

	outer := shape[:dim].NumElements()
	inner := shape[dim+1:].NumElements()
	size := shape[dim]

	result := cpu.alloc(op, outShape, x.DType())
	dispatch(op, x.DType(),
		func() { reduceDimKernel[float32](result, x, outer, size, inner, mean) },
		func() { reduceDimKernel[float64](result, x, outer, size, inner, mean) })
	return result
}

func normalizeDim(op string, dim, rank int) int {
	if dim < 0 {
		dim += rank
	}
	if dim < 0 || dim >= rank {
		panic(fmt.Sprintf("%s: dim %d out of range for rank %d", op, dim, rank))
	}
	return dim
}

func sumKernel[T tensor.DType](out, x *tensor.RawTensor) {
	var acc float64
	for _, v := range tensor.Values[T](x) {
		acc += float64(v)
	}
	tensor.Values[T](out)[0] = T(acc)
}

func reduceDimKernel[T tensor.DType](out, x *tensor.RawTensor, outer, size, inner int, mean bool) {
	xd := tensor.Values[T](x)
	od := tensor.Values[T](out)
	for o := 0; o < outer; o++ {
		for i := 0; i < inner; i++ {
			var acc float64
			base := o*size*inner + i
			for k := 0; k < size; k++ {
				acc += float64(xd[base+k*inner])
			}
			if mean {
				acc /= float64(size)
			}
			od[o*inner+i] = T(acc)
		}
	}
}
