package main

import (
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/born-ml/stylize/internal/imageio"
	"github.com/born-ml/stylize/internal/stylizer"
)

func runTransfer(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("transfer", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		opts    stylizer.Options
		content string
		style   string
		out     string
		alpha   float32 = 1
		logs    logFlags
	)
	fs.StringVar(&opts.Decoder, "decoder", "", "decoder checkpoint (required)")
	fs.StringVar(&opts.Backbone, "backbone", "", "VGG19 SafeTensors weights used in training")
	fs.Int64Var(&opts.BackboneSeed, "backbone-seed", 0, "seed of the random backbone used in training")
	fs.IntVar(&opts.Size, "size", 0, "resize the shorter side of both images (0 keeps them)")
	fs.StringVar(&content, "content", "", "content image (required)")
	fs.StringVar(&style, "style", "", "style image (required)")
	fs.StringVar(&out, "out", "stylized.png", "output PNG")
	fs.Var(float32Value{&alpha}, "alpha", "style strength in [0, 1]")
	logs.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if opts.Decoder == "" || content == "" || style == "" {
		fmt.Fprintln(stderr, "transfer: -decoder, -content and -style are required")
		fs.Usage()
		return errUsage
	}
	logger, err := logs.logger(stderr)
	if err != nil {
		return err
	}

	session, err := stylizer.New(opts, newBackend())
	if err != nil {
		return err
	}
	contentImg, err := imageio.Load(content)
	if err != nil {
		return err
	}
	styleImg, err := imageio.Load(style)
	if err != nil {
		return err
	}

	start := time.Now()
	result, err := session.Stylize(contentImg, styleImg, alpha)
	if err != nil {
		return err
	}
	if err := imageio.SavePNG(out, result); err != nil {
		return err
	}
	logger.Info("stylized",
		"decoder", session.Architecture(),
		"run_id", session.Checkpoint().RunID,
		"alpha", alpha,
		"size", result.Bounds().Size(),
		"elapsed", time.Since(start),
	)
	fmt.Fprintln(stdout, out)
	return nil
}
