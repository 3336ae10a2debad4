package nn

import (
	"fmt"

	"github.com/born-ml/stylize/internal/tensor"
)

// MSELoss computes Mean Squared Error loss.
//
// Loss = mean((predictions - targets)²)
//
// The result is a scalar tensor built from recorded operations, so it can be
// differentiated with autodiff.Backward.
//
// Example:
//
//	mse := nn.NewMSELoss[Backend]()
//	loss := mse.Forward(predictions, targets)
type MSELoss[B tensor.Backend] struct{}

// NewMSELoss creates a new MSE loss function.
func NewMSELoss[B tensor.Backend]() *MSELoss[B] {
	return &MSELoss[B]{}
}

// Forward computes the MSE loss. Shapes must match exactly.
func (m *MSELoss[B]) Forward(predictions, targets *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	mustMatch("MSELoss", predictions, targets)
	diff := predictions.Sub(targets)
	return diff.Mul(diff).Mean()
}

// SquaredDistance returns Σ(a - b)², the squared Euclidean distance.
func SquaredDistance[B tensor.Backend](a, b *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	mustMatch("SquaredDistance", a, b)
	diff := a.Sub(b)
	return diff.Mul(diff).Sum()
}

// EuclideanDistance returns sqrt(Σ(a - b)² + eps).
//
// eps keeps the gradient finite when a == b.
func EuclideanDistance[B tensor.Backend](a, b *tensor.Tensor[float32, B], eps float32) *tensor.Tensor[float32, B] {
	return SquaredDistance(a, b).AddScalar(eps).Sqrt()
}

func mustMatch[B tensor.Backend](op string, a, b *tensor.Tensor[float32, B]) {
	if !a.Shape().Equal(b.Shape()) {
		panic(fmt.Sprintf("%s: shapes %v and %v differ", op, a.Shape(), b.Shape()))
	}
}
