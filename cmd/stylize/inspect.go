package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"slices"
	"text/tabwriter"

	"github.com/born-ml/stylize/internal/adain"
)

func runInspect(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("inspect", flag.ContinueOnError)
	fs.SetOutput(stderr)
	asJSON := fs.Bool("json", false, "print the raw header as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "usage: stylize inspect [-json] <checkpoint.born>")
		return errUsage
	}

	header, err := adain.ReadCheckpointHeader(fs.Arg(0))
	if err != nil {
		return err
	}
	if *asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(header)
	}

	w := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "model\t%s\n", header.ModelType)
	fmt.Fprintf(w, "format\tv%d (%s)\n", header.FormatVersion, header.Version)
	fmt.Fprintf(w, "created\t%s\n", header.CreatedAt.Format("2006-01-02 15:04:05 MST"))
	keys := make([]string, 0, len(header.Metadata))
	for k := range header.Metadata {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "%s\t%s\n", k, header.Metadata[k])
	}
	if m := header.CheckpointMeta; m != nil {
		fmt.Fprintf(w, "epoch\t%d\n", m.Epoch)
		fmt.Fprintf(w, "step\t%d\n", m.Step)
		fmt.Fprintf(w, "loss\t%g\n", m.Loss)
		if m.OptimizerType != "" {
			fmt.Fprintf(w, "optimizer\t%s\n", m.OptimizerType)
		}
	}
	var params int
	for _, t := range header.Tensors {
		n := 1
		for _, d := range t.Shape {
			n *= d
		}
		params += n
	}
	fmt.Fprintf(w, "tensors\t%d (%d values)\n", len(header.Tensors), params)
	return w.Flush()
}
