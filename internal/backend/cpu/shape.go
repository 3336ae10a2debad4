package cpu

import (
	"fmt"

	"github.com/born-ml/stylize/internal/tensor"
)

// Reshape returns a view of x with a new shape. One dimension may be -1,
// in which case it is inferred from the element count.
func (cpu *CPUBackend) Reshape(x *tensor.RawTensor, newShape tensor.Shape) *tensor.RawTensor {
	shape := newShape.Clone()
	infer := -1
	known := 1
	for i, d := range shape {
		if d == -1 {
			if infer >= 0 {
				panic(fmt.Sprintf("reshape: more than one inferred dimension in %v", newShape))
			}
			infer = i
			continue
		}
		known *= d
	}
	if infer >= 0 {
		if known == 0 || x.NumElements()%known != 0 {
			panic(fmt.Sprintf("reshape: cannot infer dimension for %v from %v", newShape, x.Shape()))
		}
		shape[infer] = x.NumElements() / known
	}

	view, err := x.View(shape)
	if err != nil {
		panic(fmt.Sprintf("reshape: %v", err))
	}
	return view
}

// Expand materializes x broadcast to shape.
func (cpu *CPUBackend) Expand(x *tensor.RawTensor, shape tensor.Shape) *tensor.RawTensor {
	if x.Shape().Equal(shape) {
		return x.Clone()
	}
	strides := x.Shape().BroadcastStrides(shape)
	result := cpu.alloc("expand", shape, x.DType())
	dispatch("expand", x.DType(),
		func() { expandKernel[float32](result, x, strides) },
		func() { expandKernel[float64](result, x, strides) })
	return result
}

func expandKernel[T tensor.DType](out, x *tensor.RawTensor, strides []int) {
	od := tensor.Values[T](out)
	xd := tensor.Values[T](x)
	zero := make([]int, len(strides))
	forEachBroadcast(out.Shape(), strides, zero, func(i, xi, _ int) {
		od[i] = xd[xi]
	})
}
