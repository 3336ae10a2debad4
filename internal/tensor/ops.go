package tensor

// Add performs element-wise addition with broadcasting.
//
// Example:
//
//	x := tensor.Ones[float32](Shape{2, 8, 4, 4}, backend)
//	bias := tensor.Ones[float32](Shape{1, 8, 1, 1}, backend)
//	y := x.Add(bias) // Shape: [2, 8, 4, 4] (broadcasted)
func (t *Tensor[T, B]) Add(other *Tensor[T, B]) *Tensor[T, B] {
	result := t.backend.Add(t.raw, other.raw)
	return New[T, B](result, t.backend)
}

// Sub performs element-wise subtraction with broadcasting.
func (t *Tensor[T, B]) Sub(other *Tensor[T, B]) *Tensor[T, B] {
	result := t.backend.Sub(t.raw, other.raw)
	return New[T, B](result, t.backend)
}

// Mul performs element-wise multiplication with broadcasting.
func (t *Tensor[T, B]) Mul(other *Tensor[T, B]) *Tensor[T, B] {
	result := t.backend.Mul(t.raw, other.raw)
	return New[T, B](result, t.backend)
}

// Div performs element-wise division with broadcasting.
func (t *Tensor[T, B]) Div(other *Tensor[T, B]) *Tensor[T, B] {
	result := t.backend.Div(t.raw, other.raw)
	return New[T, B](result, t.backend)
}

// MulScalar multiplies every element by scalar.
func (t *Tensor[T, B]) MulScalar(scalar T) *Tensor[T, B] {
	result := t.backend.MulScalar(t.raw, float64(scalar))
	return New[T, B](result, t.backend)
}

// AddScalar adds scalar to every element.
func (t *Tensor[T, B]) AddScalar(scalar T) *Tensor[T, B] {
	result := t.backend.AddScalar(t.raw, float64(scalar))
	return New[T, B](result, t.backend)
}

// Sqrt computes the element-wise square root.
func (t *Tensor[T, B]) Sqrt() *Tensor[T, B] {
	result := t.backend.Sqrt(t.raw)
	return New[T, B](result, t.backend)
}

// ReLU computes max(0, x) element-wise.
func (t *Tensor[T, B]) ReLU() *Tensor[T, B] {
	result := t.backend.ReLU(t.raw)
	return New[T, B](result, t.backend)
}

// Sum reduces all elements to a scalar tensor (shape []).
func (t *Tensor[T, B]) Sum() *Tensor[T, B] {
	result := t.backend.Sum(t.raw)
	return New[T, B](result, t.backend)
}

// Mean reduces all elements to their arithmetic mean (shape []).
func (t *Tensor[T, B]) Mean() *Tensor[T, B] {
	return t.Sum().MulScalar(T(1.0 / float64(t.NumElements())))
}

// SumDim sums along dim. With keepDim the reduced dimension stays with size 1.
func (t *Tensor[T, B]) SumDim(dim int, keepDim bool) *Tensor[T, B] {
	result := t.backend.SumDim(t.raw, dim, keepDim)
	return New[T, B](result, t.backend)
}

// MeanDim averages along dim. With keepDim the reduced dimension stays with size 1.
//
// Example:
//
//	x := tensor.Randn[float32](Shape{2, 8, 4, 4}, rng, backend)
//	m := x.MeanDim(3, true).MeanDim(2, true) // Shape: [2, 8, 1, 1]
func (t *Tensor[T, B]) MeanDim(dim int, keepDim bool) *Tensor[T, B] {
	result := t.backend.MeanDim(t.raw, dim, keepDim)
	return New[T, B](result, t.backend)
}

// Reshape returns a tensor with the same data but different shape.
// The new shape must have the same number of elements.
//
// Example:
//
//	bias := tensor.Zeros[float32](Shape{64}, backend)
//	b4 := bias.Reshape(1, 64, 1, 1)
func (t *Tensor[T, B]) Reshape(newShape ...int) *Tensor[T, B] {
	result := t.backend.Reshape(t.raw, Shape(newShape))
	return New[T, B](result, t.backend)
}

// Expand broadcasts the tensor to shape and materializes the result.
func (t *Tensor[T, B]) Expand(shape Shape) *Tensor[T, B] {
	result := t.backend.Expand(t.raw, shape)
	return New[T, B](result, t.backend)
}

// Conv2D applies a 2D convolution with a [C_out, C_in, KH, KW] kernel.
func (t *Tensor[T, B]) Conv2D(kernel *Tensor[T, B], stride, padding int) *Tensor[T, B] {
	result := t.backend.Conv2D(t.raw, kernel.raw, stride, padding)
	return New[T, B](result, t.backend)
}

// MaxPool2D applies 2D max pooling over square windows.
func (t *Tensor[T, B]) MaxPool2D(kernelSize, stride int) *Tensor[T, B] {
	result := t.backend.MaxPool2D(t.raw, kernelSize, stride)
	return New[T, B](result, t.backend)
}

// Upsample2D repeats each spatial element scale×scale times (nearest neighbour).
func (t *Tensor[T, B]) Upsample2D(scale int) *Tensor[T, B] {
	result := t.backend.Upsample2D(t.raw, scale)
	return New[T, B](result, t.backend)
}
