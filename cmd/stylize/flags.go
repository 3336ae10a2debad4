package main

import (
	"flag"
	"fmt"
	"strconv"
	"strings"

	"github.com/born-ml/stylize/internal/config"
)

type float32Value struct{ p *float32 }

func (v float32Value) String() string {
	if v.p == nil {
		return "0"
	}
	return strconv.FormatFloat(float64(*v.p), 'g', -1, 32)
}

func (v float32Value) Set(s string) error {
	f, err := strconv.ParseFloat(s, 32)
	if err != nil {
		return err
	}
	*v.p = float32(f)
	return nil
}

type intListValue struct{ p *[]int }

func (v intListValue) String() string {
	if v.p == nil {
		return ""
	}
	parts := make([]string, len(*v.p))
	for i, n := range *v.p {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ",")
}

func (v intListValue) Set(s string) error {
	var out []int
	for _, part := range strings.Split(s, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return fmt.Errorf("bad list element %q", part)
		}
		out = append(out, n)
	}
	*v.p = out
	return nil
}

// bindTrainFlags binds fs to the fields of cfg.
func bindTrainFlags(fs *flag.FlagSet, cfg *config.Config) {
	fs.StringVar(&cfg.Model.Backbone, "backbone", cfg.Model.Backbone, "VGG19 SafeTensors weights (random weights when empty)")
	fs.Int64Var(&cfg.Model.BackboneSeed, "backbone-seed", cfg.Model.BackboneSeed, "seed for random backbone weights")
	fs.IntVar(&cfg.Model.Depth, "depth", cfg.Model.Depth, "number of backbone convolutions kept")
	fs.Var(intListValue{&cfg.Model.TapDepths}, "taps", "comma separated tap depths")

	fs.IntVar(&cfg.Train.Epochs, "epochs", cfg.Train.Epochs, "training epochs")
	fs.Float64Var(&cfg.Train.LearningRate, "lr", cfg.Train.LearningRate, "initial learning rate")
	fs.Float64Var(&cfg.Train.LRDecay, "lr-decay", cfg.Train.LRDecay, "inverse time decay per epoch")
	fs.Var(float32Value{&cfg.Train.Alpha}, "alpha", "AdaIN blend factor in [0, 1]")
	fs.Var(float32Value{&cfg.Train.StyleWeight}, "style-weight", "style loss weight")
	fs.Var(float32Value{&cfg.Train.ContentWeight}, "content-weight", "content loss weight")
	fs.StringVar(&cfg.Train.ContentDistance, "content-distance", cfg.Train.ContentDistance, "content distance: squared or l2")
	fs.Int64Var(&cfg.Train.Seed, "seed", cfg.Train.Seed, "seed for decoder init and data order")
	fs.StringVar(&cfg.Train.ResumeFrom, "resume", cfg.Train.ResumeFrom, "decoder checkpoint to resume from")
	fs.StringVar(&cfg.Train.RunID, "run-id", cfg.Train.RunID, "run identifier (generated when empty)")

	fs.StringVar(&cfg.Data.ContentDir, "content", cfg.Data.ContentDir, "content image directory")
	fs.StringVar(&cfg.Data.StyleDir, "style", cfg.Data.StyleDir, "style image directory")
	fs.IntVar(&cfg.Data.LoadSize, "load-size", cfg.Data.LoadSize, "shorter side after resizing")
	fs.IntVar(&cfg.Data.CropSize, "crop-size", cfg.Data.CropSize, "square training crop")
	fs.IntVar(&cfg.Data.BatchSize, "batch", cfg.Data.BatchSize, "batch size")
	fs.IntVar(&cfg.Data.Workers, "workers", cfg.Data.Workers, "concurrent image decoders")

	fs.StringVar(&cfg.Output.Checkpoint, "checkpoint", cfg.Output.Checkpoint, "decoder checkpoint written at the end")
	fs.StringVar(&cfg.Output.History, "history", cfg.Output.History, "CSV loss history")
	fs.StringVar(&cfg.Output.Snapshots, "snapshots", cfg.Output.Snapshots, "directory for sample snapshots")
}
