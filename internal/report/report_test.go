package report_test

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/stylize/internal/adain"
	"github.com/born-ml/stylize/internal/imageio"
	"github.com/born-ml/stylize/internal/report"
	"github.com/born-ml/stylize/internal/tensor"
)

func sampleReport(epoch int) adain.Report {
	raw := tensor.MustNewRaw(tensor.Shape{2, 3, 4, 5}, tensor.Float32, tensor.CPU)
	for i, v := range raw.AsFloat32() {
		raw.AsFloat32()[i] = v + float32(i%7)/7
	}
	return adain.Report{
		RunID:       "run-a",
		Epoch:       epoch,
		Step:        int64(10 * epoch),
		LR:          1e-4,
		StyleLoss:   2.5,
		ContentLoss: 0.75,
		Total:       2500.75,
		Sample:      raw,
		Time:        time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestLog(t *testing.T) {
	var buf bytes.Buffer
	rep := report.NewLog(slog.New(slog.NewJSONHandler(&buf, nil)))
	require.NoError(t, rep.Report(context.Background(), sampleReport(3)))

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "epoch report", record["msg"])
	assert.Equal(t, "run-a", record["run_id"])
	assert.EqualValues(t, 3, record["epoch"])
	assert.EqualValues(t, 2.5, record["style_loss"])
	assert.EqualValues(t, 0.75, record["content_loss"])
}

func TestCSV_AppendsAcrossRuns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history", "loss.csv")

	first, err := report.CreateCSV(path)
	require.NoError(t, err)
	require.NoError(t, first.Report(context.Background(), sampleReport(0)))
	require.NoError(t, first.Close())

	second, err := report.CreateCSV(path)
	require.NoError(t, err)
	require.NoError(t, second.Report(context.Background(), sampleReport(1)))
	require.NoError(t, second.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)

	require.Len(t, rows, 3, "one header and two rows")
	assert.Equal(t, "run_id", rows[0][0])
	assert.Equal(t, []string{"run-a", "2025-03-01T12:00:00Z", "1", "0", "10", "0.0001", "2.5", "0.75", "2500.75"}, rows[2])
}

func TestCSV_Writer(t *testing.T) {
	var buf bytes.Buffer
	rep, err := report.NewCSV(&buf)
	require.NoError(t, err)
	require.NoError(t, rep.Report(context.Background(), sampleReport(2)))
	require.NoError(t, rep.Close())
	assert.Contains(t, buf.String(), "run-a,2025-03-01T12:00:00Z,2,0,20,")
}

func TestSnapshots(t *testing.T) {
	dir := t.TempDir()
	rep := report.NewSnapshots(dir)
	r := sampleReport(4)
	require.NoError(t, rep.Report(context.Background(), r))

	path := rep.Path(r)
	assert.Equal(t, filepath.Join(dir, "run-a-epoch0004.png"), path)
	img, err := imageio.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 10, img.Bounds().Dx(), "two samples side by side")
	assert.Equal(t, 4, img.Bounds().Dy())

	r.Sample = nil
	assert.NoError(t, rep.Report(context.Background(), r))
	assert.NoFileExists(t, rep.InputsPath("run-a"))
}

func TestSnapshots_InputsOncePerRun(t *testing.T) {
	dir := t.TempDir()
	rep := report.NewSnapshots(dir)
	r := sampleReport(0)
	r.Content = r.Sample
	r.Style = tensor.MustNewRaw(tensor.Shape{1, 3, 4, 3}, tensor.Float32, tensor.CPU)
	require.NoError(t, rep.Report(context.Background(), r))

	path := rep.InputsPath("run-a")
	assert.Equal(t, filepath.Join(dir, "run-a-inputs.png"), path)
	img, err := imageio.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 13, img.Bounds().Dx(), "two contents and one style")

	r.Epoch = 1
	r.Style = tensor.MustNewRaw(tensor.Shape{1, 3, 4, 8}, tensor.Float32, tensor.CPU)
	require.NoError(t, rep.Report(context.Background(), r))
	img, err = imageio.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 13, img.Bounds().Dx(), "later reports keep the first inputs")
}

func TestMulti_JoinsErrors(t *testing.T) {
	errA, errB := errors.New("a"), errors.New("b")
	var calls int
	counting := adain.ReporterFunc(func(context.Context, adain.Report) error { calls++; return nil })
	failing := func(err error) adain.Reporter {
		return adain.ReporterFunc(func(context.Context, adain.Report) error { return err })
	}

	err := report.Multi(failing(errA), counting, failing(errB)).Report(context.Background(), sampleReport(0))
	assert.ErrorIs(t, err, errA)
	assert.ErrorIs(t, err, errB)
	assert.Equal(t, 1, calls, "later reporters still run")

	assert.NoError(t, report.Multi(counting).Report(context.Background(), sampleReport(0)))
}
