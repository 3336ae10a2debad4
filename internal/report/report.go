// Package report implements adain.Reporter sinks: structured logs, a CSV
// loss history and PNG snapshots of the held-out sample.
package report

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/born-ml/stylize/internal/adain"
	"github.com/born-ml/stylize/internal/imageio"
)

// Log writes one record per report.
type Log struct {
	logger *slog.Logger
}

// NewLog returns a reporter on logger, or on slog.Default when nil.
func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{logger: logger}
}

// Report implements adain.Reporter.
func (l *Log) Report(ctx context.Context, r adain.Report) error {
	l.logger.InfoContext(ctx, "epoch report",
		"run_id", r.RunID,
		"epoch", r.Epoch,
		"batch", r.Batch,
		"step", r.Step,
		"lr", r.LR,
		"style_loss", r.StyleLoss,
		"content_loss", r.ContentLoss,
		"total", r.Total,
	)
	return nil
}

// csvHeader is the first row of every history file.
var csvHeader = []string{"run_id", "time", "epoch", "batch", "step", "lr", "style_loss", "content_loss", "total"}

// CSV appends one row per report to a loss history.
type CSV struct {
	mu     sync.Mutex
	closer io.Closer
	w      *csv.Writer
}

// NewCSV writes the header to w.
func NewCSV(w io.Writer) (*CSV, error) {
	c := &CSV{w: csv.NewWriter(w)}
	if err := c.write(csvHeader); err != nil {
		return nil, err
	}
	return c, nil
}

// CreateCSV opens path for appending. The header is written only when the
// file is new, so resumed runs extend the same history.
func CreateCSV(path string) (*CSV, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("report: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("report: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("report: %w", err)
	}

	c := &CSV{closer: f, w: csv.NewWriter(f)}
	if info.Size() == 0 {
		if err := c.write(csvHeader); err != nil {
			f.Close()
			return nil, err
		}
	}
	return c, nil
}

// Report implements adain.Reporter.
func (c *CSV) Report(_ context.Context, r adain.Report) error {
	return c.write([]string{
		r.RunID,
		r.Time.UTC().Format(time.RFC3339),
		strconv.Itoa(r.Epoch),
		strconv.Itoa(r.Batch),
		strconv.FormatInt(r.Step, 10),
		strconv.FormatFloat(float64(r.LR), 'g', -1, 32),
		strconv.FormatFloat(r.StyleLoss, 'g', -1, 64),
		strconv.FormatFloat(r.ContentLoss, 'g', -1, 64),
		strconv.FormatFloat(r.Total, 'g', -1, 64),
	})
}

// Close flushes the writer and closes the file opened by CreateCSV.
func (c *CSV) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.w.Flush()
	err := c.w.Error()
	if c.closer != nil {
		err = errors.Join(err, c.closer.Close())
		c.closer = nil
	}
	return err
}

func (c *CSV) write(row []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.w.Write(row); err != nil {
		return fmt.Errorf("report: csv: %w", err)
	}
	c.w.Flush()
	if err := c.w.Error(); err != nil {
		return fmt.Errorf("report: csv: %w", err)
	}
	return nil
}

// Snapshots saves the decoded held-out sample of every report as
// <dir>/<run id>-epoch<NNNN>.png. The held-out content and style images
// are written once per run to <dir>/<run id>-inputs.png.
type Snapshots struct {
	dir string
}

// NewSnapshots returns a reporter writing into dir.
func NewSnapshots(dir string) *Snapshots {
	return &Snapshots{dir: dir}
}

// Path returns the file written for r.
func (s *Snapshots) Path(r adain.Report) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s-epoch%04d.png", r.RunID, r.Epoch))
}

// InputsPath returns the file holding the held-out inputs of run.
func (s *Snapshots) InputsPath(run string) string {
	return filepath.Join(s.dir, run+"-inputs.png")
}

// Report implements adain.Reporter.
func (s *Snapshots) Report(_ context.Context, r adain.Report) error {
	if err := s.saveInputs(r); err != nil {
		return err
	}
	if r.Sample == nil {
		return nil
	}
	imgs, err := imageio.ToImages(r.Sample)
	if err != nil {
		return fmt.Errorf("report: snapshot: %w", err)
	}
	return imageio.SavePNG(s.Path(r), imageio.Grid(imgs))
}

func (s *Snapshots) saveInputs(r adain.Report) error {
	if r.Content == nil || r.Style == nil {
		return nil
	}
	path := s.InputsPath(r.RunID)
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		return err
	}
	content, err := imageio.ToImages(r.Content)
	if err != nil {
		return fmt.Errorf("report: inputs: %w", err)
	}
	style, err := imageio.ToImages(r.Style)
	if err != nil {
		return fmt.Errorf("report: inputs: %w", err)
	}
	return imageio.SavePNG(path, imageio.Grid(append(content, style...)))
}

// Multi fans a report out to every reporter and joins their errors.
func Multi(reporters ...adain.Reporter) adain.Reporter {
	return adain.ReporterFunc(func(ctx context.Context, r adain.Report) error {
		var errs []error
		for _, rep := range reporters {
			if err := rep.Report(ctx, r); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})
}
