package adain

import (
	"fmt"
	"math/rand"
	"strconv"

	"github.com/born-ml/stylize/internal/nn"
	"github.com/born-ml/stylize/internal/serialization"
	"github.com/born-ml/stylize/internal/tensor"
)

// DecoderModelType is the model type stored in decoder checkpoints.
const DecoderModelType = "adain.Decoder"

// Decoder maps AdaIN features back to a pixel-space image.
//
// Its architecture mirrors the truncated extractor in reverse: every
// conv(in->out)+ReLU becomes conv(out->in)+ReLU and every pooling layer
// becomes a 2x nearest-neighbour upsample. The last convolution produces
// the 3 image channels.
//
// The decoder's parameters are the only trainable state of the system.
type Decoder[B tensor.Backend] struct {
	net      *nn.Sequential[B]
	topology []Stage
}

// NewDecoder builds the mirror of topology (a truncated extractor
// topology), initializing weights from rng.
func NewDecoder[B tensor.Backend](topology []Stage, rng *rand.Rand, backend B) *Decoder[B] {
	net := nn.NewSequential[B]()
	activated := false
	for i := len(topology) - 1; i >= 0; i-- {
		switch s := topology[i]; s.Kind {
		case Activation:
			activated = true
		case Conv:
			net.Add(nn.NewConv2D(s.Out, s.In, 3, 1, 1, rng, backend))
			if activated {
				net.Add(nn.NewReLU[B]())
			}
			activated = false
		case Pool:
			net.Add(nn.NewUpsample[B](2))
			activated = false
		}
	}
	return &Decoder[B]{net: net, topology: topology}
}

// Forward reconstructs an image [N, 3, H, W] from features [N, C, h, w].
func (d *Decoder[B]) Forward(features *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	return d.net.Forward(features)
}

// Parameters returns the trainable parameters in layer order.
func (d *Decoder[B]) Parameters() []*nn.Parameter[B] {
	return d.net.Parameters()
}

// StateDict returns the parameters keyed "{layer}.weight" / "{layer}.bias".
func (d *Decoder[B]) StateDict() map[string]*tensor.RawTensor {
	return d.net.StateDict()
}

// LoadStateDict copies a full state dictionary into the decoder.
func (d *Decoder[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	return d.net.LoadStateDict(stateDict)
}

// Architecture identifies the extractor topology the decoder mirrors.
func (d *Decoder[B]) Architecture() string {
	return Signature(d.topology)
}

func (d *Decoder[B]) String() string {
	return d.net.String()
}

// CheckpointInfo describes a saved decoder.
type CheckpointInfo struct {
	RunID     string
	Epoch     int
	Step      int64
	Loss      float64
	Backbone  string            // BackboneID of the training extractor; empty if unknown
	Optimizer nn.OptimizerState // Saved alongside the weights when non-nil
}

// Save writes the decoder weights (and optimizer state, if any) to a .born
// checkpoint.
func (d *Decoder[B]) Save(path string, info CheckpointInfo) error {
	ckpt := &nn.Checkpoint[B]{
		Model:     d,
		Optimizer: info.Optimizer,
		Epoch:     info.Epoch,
		Step:      info.Step,
		Loss:      info.Loss,
		ModelType: DecoderModelType,
		Metadata: map[string]string{
			"architecture": d.Architecture(),
			"depth":        strconv.Itoa(ConvCount(d.topology)),
			"run_id":       info.RunID,
		},
	}
	if info.Backbone != "" {
		ckpt.Metadata["backbone"] = info.Backbone
	}
	if err := ckpt.Save(path); err != nil {
		return fmt.Errorf("save decoder: %w", err)
	}
	return nil
}

// Load restores weights written by Save into d. When optimizer is non-nil
// its state is restored too. A checkpoint trained for a different
// architecture is rejected with a *ConfigurationError.
func (d *Decoder[B]) Load(path string, optimizer nn.OptimizerState) (CheckpointInfo, error) {
	header, err := ReadCheckpointHeader(path)
	if err != nil {
		return CheckpointInfo{}, err
	}
	if header.ModelType != DecoderModelType {
		return CheckpointInfo{}, configErr("checkpoint", "%s holds a %q, not a decoder", path, header.ModelType)
	}
	if arch := header.Metadata["architecture"]; arch != d.Architecture() {
		return CheckpointInfo{}, configErr("checkpoint", "%s was trained for %q, decoder mirrors %q", path, arch, d.Architecture())
	}

	ckpt, err := nn.LoadCheckpoint[B](path, d, optimizer)
	if err != nil {
		return CheckpointInfo{}, fmt.Errorf("load decoder: %w", err)
	}
	return CheckpointInfo{
		RunID:     ckpt.Metadata["run_id"],
		Epoch:     ckpt.Epoch,
		Step:      ckpt.Step,
		Loss:      ckpt.Loss,
		Backbone:  ckpt.Metadata["backbone"],
		Optimizer: optimizer,
	}, nil
}

// ReadCheckpointHeader returns the header of a .born checkpoint without
// loading its tensors.
func ReadCheckpointHeader(path string) (serialization.Header, error) {
	r, err := serialization.NewBornReader(path)
	if err != nil {
		return serialization.Header{}, fmt.Errorf("load decoder: %w", err)
	}
	defer r.Close()
	return r.Header(), nil
}

// CheckBackbone rejects a decoder checkpoint trained against other
// backbone weights than id. Checkpoints without a recorded backbone pass.
func CheckBackbone(path, id string) error {
	header, err := ReadCheckpointHeader(path)
	if err != nil {
		return err
	}
	if got := header.Metadata["backbone"]; got != "" && got != id {
		return configErr("backbone", "%s was trained with %s, extractor uses %s", path, got, id)
	}
	return nil
}

// CheckpointDepth returns the backbone depth a decoder checkpoint was
// trained for.
func CheckpointDepth(path string) (int, error) {
	header, err := ReadCheckpointHeader(path)
	if err != nil {
		return 0, err
	}
	if header.ModelType != DecoderModelType {
		return 0, configErr("checkpoint", "%s holds a %q, not a decoder", path, header.ModelType)
	}
	depth, err := strconv.Atoi(header.Metadata["depth"])
	if err != nil || depth < 1 {
		return 0, configErr("checkpoint", "%s has no valid depth", path)
	}
	return depth, nil
}
