// Package monitor produces post-run artifacts for a benchmark run: PNG
// plots of per-case accuracy and iteration counts, and an HTML report with
// interactive charts. It plugs into the runner as a result sink and keeps
// only lightweight samples, so recording adds no meaningful overhead to the
// timed registrations.
package monitor

import (
	"bytes"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/scanmatch.report/internal/bench"
	"github.com/banshee-data/scanmatch.report/internal/ndt"
)

// CaseSample is the per-case data retained for reporting.
type CaseSample struct {
	Index          int
	MaxDelta       float64
	CanonicalDelta float64
	Iterations     int
	Fitness        float64
	Pass           bool
}

// Recorder accumulates case samples and, for a subset of cases, the
// convergence trace of the optimisation.
type Recorder struct {
	samples []CaseSample

	// trajectoryEvery selects every n-th case for a convergence trace;
	// zero disables traces.
	trajectoryEvery int
	traces          map[int][]float64
}

// NewRecorder returns a Recorder that keeps a convergence trace for every
// trajectoryEvery-th case (0 keeps none).
func NewRecorder(trajectoryEvery int) *Recorder {
	return &Recorder{
		trajectoryEvery: trajectoryEvery,
		traces:          make(map[int][]float64),
	}
}

// Case implements bench.Sink.
func (r *Recorder) Case(o *bench.CaseOutcome) error {
	r.samples = append(r.samples, CaseSample{
		Index:          o.Index,
		MaxDelta:       o.Comparison.MaxDelta,
		CanonicalDelta: o.Comparison.CanonicalDelta,
		Iterations:     o.Iterations,
		Fitness:        o.Result.FitnessScore,
		Pass:           o.Comparison.Pass,
	})

	if r.trajectoryEvery > 0 && o.Index%r.trajectoryEvery == 0 {
		r.traces[o.Index] = convergenceTrace(o.Result)
	}
	return nil
}

// convergenceTrace maps each visited pose to its Frobenius distance from the
// final transformation, giving a scalar view of how the search closed in.
func convergenceTrace(res ndt.CallbackResult) []float64 {
	trace := make([]float64, 0, len(res.IntermediateTransformations))
	for _, m := range res.IntermediateTransformations {
		sum := 0.0
		for i := 0; i < 16; i++ {
			d := float64(m[i] - res.FinalTransformation[i])
			sum += d * d
		}
		trace = append(trace, math.Sqrt(sum))
	}
	return trace
}

// SavePlots writes the per-case accuracy and iteration plots as PNGs under
// dir, creating it if needed.
func (r *Recorder) SavePlots(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}

	pDelta := plot.New()
	pDelta.Title.Text = "Per-case transformation delta"
	pDelta.X.Label.Text = "Case"
	pDelta.Y.Label.Text = "Max componentwise delta"

	deltaPts := make(plotter.XYs, 0, len(r.samples))
	for _, s := range r.samples {
		deltaPts = append(deltaPts, plotter.XY{X: float64(s.Index), Y: s.MaxDelta})
	}
	deltaLine, deltaScatter, err := plotter.NewLinePoints(deltaPts)
	if err != nil {
		return fmt.Errorf("delta series: %w", err)
	}
	pDelta.Add(deltaLine, deltaScatter)

	// Threshold line at the acceptance tolerance.
	threshold := plotter.NewFunction(func(float64) float64 { return bench.MaxEps })
	threshold.Dashes = []vg.Length{vg.Points(4), vg.Points(4)}
	pDelta.Add(threshold)

	deltaFile := filepath.Join(dir, "case_deltas.png")
	if err := pDelta.Save(14*vg.Inch, 6*vg.Inch, deltaFile); err != nil {
		return fmt.Errorf("save delta plot: %w", err)
	}

	pIter := plot.New()
	pIter.Title.Text = "Per-case evaluated poses"
	pIter.X.Label.Text = "Case"
	pIter.Y.Label.Text = "Poses visited"

	iterPts := make(plotter.XYs, 0, len(r.samples))
	for _, s := range r.samples {
		iterPts = append(iterPts, plotter.XY{X: float64(s.Index), Y: float64(s.Iterations)})
	}
	iterLine, iterScatter, err := plotter.NewLinePoints(iterPts)
	if err != nil {
		return fmt.Errorf("iteration series: %w", err)
	}
	pIter.Add(iterLine, iterScatter)

	iterFile := filepath.Join(dir, "case_iterations.png")
	if err := pIter.Save(14*vg.Inch, 6*vg.Inch, iterFile); err != nil {
		return fmt.Errorf("save iteration plot: %w", err)
	}

	return nil
}

// WriteReport renders the interactive HTML report to path.
func (r *Recorder) WriteReport(path string) error {
	page := components.NewPage()
	page.PageTitle = "Scan registration benchmark"

	deltaScatter := charts.NewScatter()
	deltaScatter.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    "Per-case transformation delta",
			Subtitle: fmt.Sprintf("cases=%d tolerance=%.1f", len(r.samples), bench.MaxEps),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Case"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Max delta"}),
	)
	deltaData := make([]opts.ScatterData, 0, len(r.samples))
	for _, s := range r.samples {
		deltaData = append(deltaData, opts.ScatterData{Value: []interface{}{s.Index, s.MaxDelta}})
	}
	deltaScatter.AddSeries("max delta", deltaData,
		charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 6}))
	page.AddCharts(deltaScatter)

	fitnessScatter := charts.NewScatter()
	fitnessScatter.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Per-case fitness score"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Case"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Fitness"}),
	)
	fitnessData := make([]opts.ScatterData, 0, len(r.samples))
	for _, s := range r.samples {
		fitnessData = append(fitnessData, opts.ScatterData{Value: []interface{}{s.Index, s.Fitness}})
	}
	fitnessScatter.AddSeries("fitness", fitnessData,
		charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 6}))
	page.AddCharts(fitnessScatter)

	for _, idx := range sortedTraceKeys(r.traces) {
		trace := r.traces[idx]
		line := charts.NewLine()
		line.SetGlobalOptions(
			charts.WithTitleOpts(opts.Title{
				Title: fmt.Sprintf("Case %d convergence", idx),
				Subtitle: fmt.Sprintf("%d evaluated poses; distance to final transform per pose",
					len(trace)),
			}),
			charts.WithXAxisOpts(opts.XAxis{Name: "Pose"}),
			charts.WithYAxisOpts(opts.YAxis{Name: "Frobenius distance"}),
		)
		xs := make([]int, len(trace))
		lineData := make([]opts.LineData, 0, len(trace))
		for i, v := range trace {
			xs[i] = i
			lineData = append(lineData, opts.LineData{Value: v})
		}
		line.SetXAxis(xs)
		line.AddSeries("distance", lineData)
		page.AddCharts(line)
	}

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		return fmt.Errorf("failed to render report: %w", err)
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

func sortedTraceKeys(m map[int][]float64) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
