package nn

import (
	"fmt"

	"github.com/born-ml/stylize/internal/tensor"
)

// Upsample is a nearest-neighbour upsampling layer.
//
// Every input pixel is copied into a scale×scale block:
//
//	[N, C, H, W] -> [N, C, H*scale, W*scale]
type Upsample[B tensor.Backend] struct {
	parameterless[B]
	scale int
}

// NewUpsample creates an upsampling layer with an integer scale factor.
func NewUpsample[B tensor.Backend](scale int) *Upsample[B] {
	if scale <= 0 {
		panic(fmt.Sprintf("upsample: invalid scale %d", scale))
	}
	return &Upsample[B]{scale: scale}
}

// Forward performs the forward pass.
func (u *Upsample[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	return input.Upsample2D(u.scale)
}

// Scale returns the scale factor.
func (u *Upsample[B]) Scale() int {
	return u.scale
}

func (u *Upsample[B]) String() string {
	return fmt.Sprintf("Upsample(scale_factor=%d, mode=nearest)", u.scale)
}
