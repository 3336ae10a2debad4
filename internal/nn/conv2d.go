package nn

import (
	"fmt"
	"math/rand"

	"github.com/born-ml/stylize/internal/tensor"
)

// Conv2D is a 2D convolutional layer with square kernels.
//
// Performs convolution: output = Conv2D(input, weight) + bias
//
// Input shape:  [batch, in_channels, height, width]
// Weight shape: [out_channels, in_channels, kernel, kernel]
// Bias shape:   [out_channels]
// Output shape: [batch, out_channels, out_h, out_w]
//
// Where:
//
//	out_h = (height + 2*padding - kernel) / stride + 1
//	out_w = (width + 2*padding - kernel) / stride + 1
//
// Example:
//
//	// 3x3 "same" convolution: 64 -> 128 channels
//	conv := nn.NewConv2D(64, 128, 3, 1, 1, rng, backend)
//	output := conv.Forward(input) // [N, 128, H, W]
type Conv2D[B tensor.Backend] struct {
	inChannels  int
	outChannels int
	kernelSize  int
	stride      int
	padding     int

	weight *Parameter[B] // [out_channels, in_channels, kernel, kernel]
	bias   *Parameter[B] // [out_channels]
}

// NewConv2D creates a new 2D convolutional layer.
//
// Initialization:
//   - Weights: Xavier/Glorot uniform with fan_in = in*k*k, fan_out = out*k*k
//   - Bias: Zeros
func NewConv2D[B tensor.Backend](
	inChannels, outChannels int,
	kernelSize, stride, padding int,
	rng *rand.Rand,
	backend B,
) *Conv2D[B] {
	validateConv(inChannels, outChannels, kernelSize, stride, padding)

	fanIn := inChannels * kernelSize * kernelSize
	fanOut := outChannels * kernelSize * kernelSize
	weight := Xavier(fanIn, fanOut, tensor.Shape{outChannels, inChannels, kernelSize, kernelSize}, rng, backend)
	bias := Zeros(tensor.Shape{outChannels}, backend)

	return NewConv2DFromTensors(weight, bias, stride, padding)
}

// NewConv2DFromTensors wraps existing weight and bias tensors, e.g. weights
// read from a pretrained checkpoint. The tensors are used without copying.
func NewConv2DFromTensors[B tensor.Backend](weight, bias *tensor.Tensor[float32, B], stride, padding int) *Conv2D[B] {
	ws := weight.Shape()
	if len(ws) != 4 || ws[2] != ws[3] {
		panic(fmt.Sprintf("conv2d: weight must be [out, in, k, k], got %v", ws))
	}
	if !bias.Shape().Equal(tensor.Shape{ws[0]}) {
		panic(fmt.Sprintf("conv2d: bias shape %v does not match %d output channels", bias.Shape(), ws[0]))
	}
	validateConv(ws[1], ws[0], ws[2], stride, padding)

	return &Conv2D[B]{
		inChannels:  ws[1],
		outChannels: ws[0],
		kernelSize:  ws[2],
		stride:      stride,
		padding:     padding,
		weight:      NewParameter("weight", weight),
		bias:        NewParameter("bias", bias),
	}
}

func validateConv(inChannels, outChannels, kernelSize, stride, padding int) {
	if inChannels <= 0 || outChannels <= 0 {
		panic(fmt.Sprintf("conv2d: invalid channels in=%d, out=%d", inChannels, outChannels))
	}
	if kernelSize <= 0 {
		panic(fmt.Sprintf("conv2d: invalid kernel size %d", kernelSize))
	}
	if stride <= 0 {
		panic(fmt.Sprintf("conv2d: invalid stride %d", stride))
	}
	if padding < 0 {
		panic(fmt.Sprintf("conv2d: invalid padding %d", padding))
	}
}

// Forward performs the forward pass.
//
// Input: [batch, in_channels, height, width]
// Output: [batch, out_channels, out_h, out_w].
func (c *Conv2D[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	inputShape := input.Shape()
	if len(inputShape) != 4 {
		panic(fmt.Sprintf("conv2d: expected 4D input [N,C,H,W], got %dD", len(inputShape)))
	}
	if inputShape[1] != c.inChannels {
		panic(fmt.Sprintf("conv2d: input channels %d != expected %d", inputShape[1], c.inChannels))
	}

	output := input.Conv2D(c.weight.Tensor(), c.stride, c.padding)

	// [out_channels] -> [1, out_channels, 1, 1] for broadcasting.
	return output.Add(c.bias.Tensor().Reshape(1, c.outChannels, 1, 1))
}

// Parameters returns the weight and bias.
func (c *Conv2D[B]) Parameters() []*Parameter[B] {
	return []*Parameter[B]{c.weight, c.bias}
}

// StateDict returns {"weight", "bias"}.
func (c *Conv2D[B]) StateDict() map[string]*tensor.RawTensor {
	return stateDictOf(c.weight, c.bias)
}

// LoadStateDict copies "weight" and "bias" into the layer.
func (c *Conv2D[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	return loadInto(stateDict, c.weight, c.bias)
}

// Weight returns the kernel parameter.
func (c *Conv2D[B]) Weight() *Parameter[B] {
	return c.weight
}

// Bias returns the bias parameter.
func (c *Conv2D[B]) Bias() *Parameter[B] {
	return c.bias
}

// String returns a string representation of the layer.
func (c *Conv2D[B]) String() string {
	return fmt.Sprintf("Conv2D(in_channels=%d, out_channels=%d, kernel_size=%d, stride=%d, padding=%d)",
		c.inChannels, c.outChannels, c.kernelSize, c.stride, c.padding)
}

// OutChannels returns the number of output channels.
func (c *Conv2D[B]) OutChannels() int {
	return c.outChannels
}

// InChannels returns the number of input channels.
func (c *Conv2D[B]) InChannels() int {
	return c.inChannels
}

// KernelSize returns the kernel size.
func (c *Conv2D[B]) KernelSize() int {
	return c.kernelSize
}

// ComputeOutputSize computes output spatial dimensions for given input size.
//
// Returns: [out_height, out_width].
func (c *Conv2D[B]) ComputeOutputSize(inputH, inputW int) [2]int {
	outH := (inputH+2*c.padding-c.kernelSize)/c.stride + 1
	outW := (inputW+2*c.padding-c.kernelSize)/c.stride + 1
	return [2]int{outH, outW}
}
