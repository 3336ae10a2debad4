package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"math/rand"

	"github.com/born-ml/stylize/internal/adain"
	"github.com/born-ml/stylize/internal/config"
	"github.com/born-ml/stylize/internal/imageio"
	"github.com/born-ml/stylize/internal/report"
)

// parseTrain resolves the configuration: defaults, then the -config file,
// then explicit flags.
func parseTrain(args []string, stderr io.Writer) (config.Config, logFlags, error) {
	cfg := config.Default()
	var (
		path string
		logs logFlags
	)
	newFlags := func(cfg *config.Config) *flag.FlagSet {
		fs := flag.NewFlagSet("train", flag.ContinueOnError)
		fs.SetOutput(stderr)
		fs.StringVar(&path, "config", path, "YAML run configuration")
		logs.register(fs)
		bindTrainFlags(fs, cfg)
		return fs
	}

	if err := newFlags(&cfg).Parse(args); err != nil {
		return cfg, logs, err
	}
	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return cfg, logs, err
		}
		cfg = loaded
		// Flags win over the file.
		if err := newFlags(&cfg).Parse(args); err != nil {
			return cfg, logs, err
		}
	}
	if cfg.Data.ContentDir == "" || cfg.Data.StyleDir == "" {
		fmt.Fprintln(stderr, "train: -content and -style (or data.content_dir and data.style_dir) are required")
		return cfg, logs, errUsage
	}
	return cfg, logs, cfg.Validate()
}

func runTrain(ctx context.Context, args []string, stdout, stderr io.Writer) (err error) {
	cfg, logs, err := parseTrain(args, stderr)
	if err != nil {
		return err
	}
	logger, err := logs.logger(stderr)
	if err != nil {
		return err
	}

	b := newBackend()
	backbone, err := adain.VGG19Backbone(cfg.Model.Backbone, cfg.Model.Depth, cfg.Model.BackboneSeed, b)
	if err != nil {
		return err
	}
	if cfg.Model.Backbone == "" {
		logger.Warn("no backbone weights given, using random VGG19 weights", "seed", cfg.Model.BackboneSeed)
	}
	extractor, err := adain.NewFeatureExtractor(backbone, cfg.Extractor(), b)
	if err != nil {
		return err
	}
	decoder := adain.NewDecoder(extractor.Topology(), rand.New(rand.NewSource(cfg.Train.Seed)), b)

	pairs, err := imageio.NewFolderPairs(imageio.FolderConfig{
		ContentDir: cfg.Data.ContentDir,
		StyleDir:   cfg.Data.StyleDir,
		LoadSize:   cfg.Data.LoadSize,
		CropSize:   cfg.Data.CropSize,
		BatchSize:  cfg.Data.BatchSize,
		Workers:    cfg.Data.Workers,
		Seed:       cfg.Train.Seed,
	}, b)
	if err != nil {
		return err
	}

	reporters := []adain.Reporter{report.NewLog(logger)}
	if cfg.Output.History != "" {
		history, err := report.CreateCSV(cfg.Output.History)
		if err != nil {
			return err
		}
		defer func() { err = errors.Join(err, history.Close()) }()
		reporters = append(reporters, history)
	}
	if cfg.Output.Snapshots != "" {
		reporters = append(reporters, report.NewSnapshots(cfg.Output.Snapshots))
	}

	trainer, err := adain.NewTrainer(extractor, decoder, cfg.Training(), report.Multi(reporters...))
	if err != nil {
		return err
	}
	logger.Info("training",
		"run_id", trainer.RunID(),
		"decoder", decoder.Architecture(),
		"epochs", cfg.Train.Epochs,
		"batches_per_epoch", pairs.BatchesPerEpoch(),
	)

	summary, err := trainer.Run(ctx, pairs)
	if err != nil {
		return err
	}
	logger.Info("training finished",
		"run_id", summary.RunID,
		"epochs", summary.Epochs,
		"steps", summary.Steps,
		"loss", summary.Loss,
		"checkpoint", summary.Checkpoint,
	)
	fmt.Fprintln(stdout, summary.Checkpoint)
	return nil
}
