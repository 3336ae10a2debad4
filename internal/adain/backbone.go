package adain

import (
	"fmt"
	"math/rand"
	"path/filepath"

	"github.com/born-ml/stylize/internal/loader"
	"github.com/born-ml/stylize/internal/nn"
	"github.com/born-ml/stylize/internal/tensor"
)

// ConvWeights holds one convolution's kernel [out, in, 3, 3] and bias [out].
type ConvWeights[B tensor.Backend] struct {
	Weight *tensor.Tensor[float32, B]
	Bias   *tensor.Tensor[float32, B]
}

// Backbone is a pretrained image-classification feature stack: its topology
// plus the weights of every convolution, keyed by topology index.
type Backbone[B tensor.Backend] struct {
	Topology []Stage
	Weights  map[int]ConvWeights[B]
}

// weightKey returns the torchvision state dictionary names of a conv layer.
func weightKey(index int) (weight, bias string) {
	return fmt.Sprintf("features.%d.weight", index), fmt.Sprintf("features.%d.bias", index)
}

// LoadBackbone reads the convolution weights of topology from a SafeTensors
// file exported from a torchvision model ("features.{i}.weight" and
// "features.{i}.bias"). Half precision tensors are widened to float32.
//
// Only the convolutions present in topology are read, so a truncated
// topology loads just the layers it keeps.
func LoadBackbone[B tensor.Backend](path string, topology []Stage, backend B) (*Backbone[B], error) {
	reader, err := loader.NewSafeTensorsReader(path)
	if err != nil {
		return nil, fmt.Errorf("open backbone: %w", err)
	}
	defer reader.Close()

	bb := &Backbone[B]{
		Topology: topology,
		Weights:  make(map[int]ConvWeights[B]),
	}
	for i, s := range topology {
		if s.Kind != Conv {
			continue
		}
		wName, bName := weightKey(i)
		w, err := reader.LoadTensorAs(wName, tensor.Float32)
		if err != nil {
			return nil, fmt.Errorf("backbone layer %d: %w", i, err)
		}
		b, err := reader.LoadTensorAs(bName, tensor.Float32)
		if err != nil {
			return nil, fmt.Errorf("backbone layer %d: %w", i, err)
		}
		bb.Weights[i] = ConvWeights[B]{
			Weight: tensor.New[float32](w, backend),
			Bias:   tensor.New[float32](b, backend),
		}
	}
	return bb, nil
}

// RandomBackbone builds a backbone with Xavier-initialized weights drawn
// from seed. It stands in for pretrained weights in tests and smoke runs.
func RandomBackbone[B tensor.Backend](topology []Stage, seed int64, backend B) *Backbone[B] {
	rng := rand.New(rand.NewSource(seed))
	bb := &Backbone[B]{
		Topology: topology,
		Weights:  make(map[int]ConvWeights[B]),
	}
	for i, s := range topology {
		if s.Kind != Conv {
			continue
		}
		bb.Weights[i] = ConvWeights[B]{
			Weight: nn.Xavier(s.In*9, s.Out*9, tensor.Shape{s.Out, s.In, 3, 3}, rng, backend),
			Bias:   tensor.Uniform[float32](tensor.Shape{s.Out}, -0.05, 0.05, rng, backend),
		}
	}
	return bb
}

// VGG19Backbone returns VGG19 truncated to depth. Weights are read from
// path, or drawn from seed when path is empty.
func VGG19Backbone[B tensor.Backend](path string, depth int, seed int64, backend B) (*Backbone[B], error) {
	topology, err := Truncate(VGG19(), depth)
	if err != nil {
		return nil, err
	}
	if path == "" {
		return RandomBackbone(topology, seed, backend), nil
	}
	return LoadBackbone(path, topology, backend)
}

// BackboneID names the weights VGG19Backbone builds from path and seed.
// Decoder checkpoints record it so inference can rebuild the same
// extractor.
func BackboneID(path string, seed int64) string {
	if path == "" {
		return fmt.Sprintf("random:%d", seed)
	}
	return "file:" + filepath.Base(path)
}

// checkWeights validates the weights of every conv stage in topology.
func (bb *Backbone[B]) checkWeights(topology []Stage) error {
	for i, s := range topology {
		if s.Kind != Conv {
			continue
		}
		cw, ok := bb.Weights[i]
		if !ok || cw.Weight == nil || cw.Bias == nil {
			return configErr("backbone", "no weights for conv stage %d", i)
		}
		if want := (tensor.Shape{s.Out, s.In, 3, 3}); !cw.Weight.Shape().Equal(want) {
			return configErr("backbone", "stage %d weight has shape %v, topology needs %v", i, cw.Weight.Shape(), want)
		}
		if want := (tensor.Shape{s.Out}); !cw.Bias.Shape().Equal(want) {
			return configErr("backbone", "stage %d bias has shape %v, topology needs %v", i, cw.Bias.Shape(), want)
		}
	}
	return nil
}
