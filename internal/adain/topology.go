package adain

import (
	"fmt"
	"strings"
)

// StageKind classifies a backbone layer.
type StageKind int

// Stage kinds.
const (
	Conv       StageKind = iota // 3x3 convolution, stride 1, padding 1
	Activation                  // ReLU
	Pool                        // 2x2 max pooling, stride 2
)

func (k StageKind) String() string {
	switch k {
	case Conv:
		return "conv"
	case Activation:
		return "relu"
	case Pool:
		return "pool"
	default:
		return fmt.Sprintf("StageKind(%d)", int(k))
	}
}

// Stage is one layer of a backbone topology. In and Out are the channel
// counts of a Conv stage and zero otherwise.
//
// A stage's position in the topology is its layer index, which is also the
// index used by torchvision state dictionaries ("features.{i}.weight").
type Stage struct {
	Kind StageKind
	In   int
	Out  int
}

// vgg19Config is torchvision's configuration "E": channel counts of the
// 3x3 convolutions, with 0 marking a max pooling layer.
var vgg19Config = []int{64, 64, 0, 128, 128, 0, 256, 256, 256, 256, 0, 512, 512, 512, 512, 0, 512, 512, 512, 512, 0}

// VGG19 returns the topology of torchvision's vgg19().features.
func VGG19() []Stage {
	stages := make([]Stage, 0, 37)
	in := 3
	for _, out := range vgg19Config {
		if out == 0 {
			stages = append(stages, Stage{Kind: Pool})
			continue
		}
		stages = append(stages, Stage{Kind: Conv, In: in, Out: out}, Stage{Kind: Activation})
		in = out
	}
	return stages
}

// ConvCount returns the number of convolution stages in topology.
func ConvCount(topology []Stage) int {
	n := 0
	for _, s := range topology {
		if s.Kind == Conv {
			n++
		}
	}
	return n
}

// Truncate returns the prefix of topology that keeps the first depth
// convolution stages.
//
// Layers are visited in order while counting convolutions. Iteration stops
// at the convolution that would exceed depth, and at any pooling layer once
// depth convolutions have been seen, so pooling is kept only when it lies
// strictly before the depth-th convolution. Activations following a kept
// convolution are kept.
func Truncate(topology []Stage, depth int) ([]Stage, error) {
	total := ConvCount(topology)
	if depth < 1 || depth > total {
		return nil, configErr("depth", "%d is outside 1..%d", depth, total)
	}

	convs := 0
	end := len(topology)
	for i, s := range topology {
		if s.Kind == Conv {
			convs++
			if convs > depth {
				end = i
				break
			}
		}
		if s.Kind == Pool && convs >= depth {
			end = i
			break
		}
	}

	out := make([]Stage, end)
	copy(out, topology[:end])
	return out, nil
}

// validateTopology checks channel chaining of a topology.
func validateTopology(topology []Stage) error {
	channels := 3
	for i, s := range topology {
		switch s.Kind {
		case Conv:
			if s.In != channels {
				return configErr("topology", "stage %d expects %d input channels, previous stage produces %d", i, s.In, channels)
			}
			if s.Out <= 0 {
				return configErr("topology", "stage %d has %d output channels", i, s.Out)
			}
			channels = s.Out
		case Activation, Pool:
		default:
			return configErr("topology", "stage %d has unknown kind %v", i, s.Kind)
		}
	}
	return nil
}

// OutChannels returns the channel count produced by topology.
func OutChannels(topology []Stage) int {
	channels := 3
	for _, s := range topology {
		if s.Kind == Conv {
			channels = s.Out
		}
	}
	return channels
}

// Downsampling returns the total spatial reduction factor of topology.
func Downsampling(topology []Stage) int {
	f := 1
	for _, s := range topology {
		if s.Kind == Pool {
			f *= 2
		}
	}
	return f
}

// Signature renders topology compactly, e.g. "c3-64,r,p". It identifies the
// architecture a decoder checkpoint was trained for.
func Signature(topology []Stage) string {
	parts := make([]string, len(topology))
	for i, s := range topology {
		switch s.Kind {
		case Conv:
			parts[i] = fmt.Sprintf("c%d-%d", s.In, s.Out)
		case Activation:
			parts[i] = "r"
		case Pool:
			parts[i] = "p"
		default:
			parts[i] = "?"
		}
	}
	return strings.Join(parts, ",")
}

// activationIndex returns the topology index of the activation that follows
// the depth-th convolution, or -1.
func activationIndex(topology []Stage, depth int) int {
	convs := 0
	for i, s := range topology {
		if s.Kind == Conv {
			convs++
			if convs == depth {
				if i+1 < len(topology) && topology[i+1].Kind == Activation {
					return i + 1
				}
				return -1
			}
		}
	}
	return -1
}
