package nn

import (
	"fmt"
	"strings"
	"time"

	"github.com/born-ml/stylize/internal/serialization"
	"github.com/born-ml/stylize/internal/tensor"
)

const optimizerPrefix = "optimizer."

// OptimizerState represents an optimizer that can save and restore its state.
//
// Optimizers from the optim package implement this interface; it lives here
// to avoid an import cycle.
type OptimizerState interface {
	StateDict() map[string]*tensor.RawTensor
	LoadStateDict(stateDict map[string]*tensor.RawTensor) error
	GetLR() float32
	Name() string
}

// Checkpoint represents a complete training state snapshot.
//
// A checkpoint includes:
//   - Model parameters (weights and biases)
//   - Optimizer state (Adam moments, step counter)
//   - Training metadata (epoch, step, loss)
//
// Example:
//
//	ckpt := &nn.Checkpoint[Backend]{
//	    Model:     decoder,
//	    Optimizer: adam,
//	    Epoch:     10,
//	    Loss:      0.123,
//	}
//	err := ckpt.Save("decoder-epoch10.born")
//
// To resume training:
//
//	ckpt, err := nn.LoadCheckpoint("decoder-epoch10.born", decoder, adam)
//	startEpoch := ckpt.Epoch + 1
type Checkpoint[B tensor.Backend] struct {
	Model     Module[B]
	Optimizer OptimizerState
	Epoch     int
	Step      int64
	Loss      float64
	ModelType string            // Stored in the file header
	Metadata  map[string]string // Stored as header metadata
	Training  map[string]any    // Stored as checkpoint training metadata
	CreatedAt time.Time
}

// Save writes the checkpoint to a .born file.
//
// Optimizer tensors are stored next to the model tensors under the
// "optimizer." prefix.
func (c *Checkpoint[B]) Save(path string) error {
	combined := make(map[string]*tensor.RawTensor)
	for name, raw := range c.Model.StateDict() {
		combined[name] = raw
	}

	meta := &serialization.CheckpointMeta{
		IsCheckpoint: true,
		Epoch:        c.Epoch,
		Step:         c.Step,
		Loss:         c.Loss,
		TrainingMeta: c.Training,
	}
	if c.Optimizer != nil {
		for name, raw := range c.Optimizer.StateDict() {
			combined[optimizerPrefix+name] = raw
		}
		meta.OptimizerType = c.Optimizer.Name()
		meta.OptimizerConfig = map[string]any{"lr": c.Optimizer.GetLR()}
	}

	modelType := c.ModelType
	if modelType == "" {
		modelType = "Checkpoint"
	}

	err := serialization.WriteFile(path, combined, serialization.Header{
		ModelType:      modelType,
		CreatedAt:      c.CreatedAt,
		Metadata:       c.Metadata,
		CheckpointMeta: meta,
	})
	if err != nil {
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	return nil
}

// LoadCheckpoint restores model and optimizer state from a .born file.
//
// The model and optimizer must be constructed with the same architecture
// and configuration as when the checkpoint was saved. optimizer may be nil
// to load weights only.
func LoadCheckpoint[B tensor.Backend](path string, model Module[B], optimizer OptimizerState) (*Checkpoint[B], error) {
	stateDict, header, err := serialization.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint: %w", err)
	}

	modelStateDict := make(map[string]*tensor.RawTensor)
	optimizerStateDict := make(map[string]*tensor.RawTensor)
	for name, raw := range stateDict {
		if rest, ok := strings.CutPrefix(name, optimizerPrefix); ok {
			optimizerStateDict[rest] = raw
		} else {
			modelStateDict[name] = raw
		}
	}

	if err := model.LoadStateDict(modelStateDict); err != nil {
		return nil, fmt.Errorf("failed to load model state: %w", err)
	}
	if optimizer != nil && len(optimizerStateDict) > 0 {
		if err := optimizer.LoadStateDict(optimizerStateDict); err != nil {
			return nil, fmt.Errorf("failed to load optimizer state: %w", err)
		}
	}

	ckpt := &Checkpoint[B]{
		Model:     model,
		Optimizer: optimizer,
		ModelType: header.ModelType,
		Metadata:  header.Metadata,
		CreatedAt: header.CreatedAt,
	}
	if cm := header.CheckpointMeta; cm != nil {
		ckpt.Epoch = cm.Epoch
		ckpt.Step = cm.Step
		ckpt.Loss = cm.Loss
		ckpt.Training = cm.TrainingMeta
	}
	return ckpt, nil
}
