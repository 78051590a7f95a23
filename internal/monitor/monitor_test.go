package monitor

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/banshee-data/scanmatch.report/internal/bench"
	"github.com/banshee-data/scanmatch.report/internal/ndt"
	"github.com/banshee-data/scanmatch.report/internal/ndt/ndtio"
)

func sampleOutcome(idx int, delta float64) *bench.CaseOutcome {
	inter := []ndt.Matrix4{ndt.Identity(), ndt.Identity()}
	inter[0][3] = 0.5
	return &bench.CaseOutcome{
		Index: idx,
		Result: ndt.CallbackResult{
			FinalTransformation:         ndt.Identity(),
			IntermediateTransformations: inter,
			Converged:                   true,
			FitnessScore:                -1.25,
		},
		Reference:  &ndtio.Result{FinalTransformation: ndt.Identity(), Converged: true},
		Comparison: bench.Comparison{MaxDelta: delta, ConvergedMatch: true, Pass: delta <= bench.MaxEps},
		Iterations: len(inter),
	}
}

// TestRecorderSamples feeds outcomes through the sink and checks the
// retained samples and traces.
func TestRecorderSamples(t *testing.T) {
	r := NewRecorder(2)
	for i := 0; i < 5; i++ {
		if err := r.Case(sampleOutcome(i, float64(i)*0.1)); err != nil {
			t.Fatalf("Case %d: %v", i, err)
		}
	}

	if len(r.samples) != 5 {
		t.Fatalf("samples = %d, want 5", len(r.samples))
	}
	// Traces recorded for cases 0, 2, 4.
	if len(r.traces) != 3 {
		t.Fatalf("traces = %d, want 3", len(r.traces))
	}
	for _, idx := range []int{0, 2, 4} {
		trace, ok := r.traces[idx]
		if !ok {
			t.Errorf("no trace for case %d", idx)
			continue
		}
		if len(trace) != 2 {
			t.Errorf("trace %d length = %d, want 2", idx, len(trace))
		}
		// First pose differs from the final transform by 0.5 in one slot.
		if trace[0] != 0.5 {
			t.Errorf("trace %d start = %v, want 0.5", idx, trace[0])
		}
		if trace[1] != 0 {
			t.Errorf("trace %d end = %v, want 0", idx, trace[1])
		}
	}
}

// TestSavePlots writes the PNG artifacts.
func TestSavePlots(t *testing.T) {
	r := NewRecorder(0)
	for i := 0; i < 4; i++ {
		if err := r.Case(sampleOutcome(i, 0.1)); err != nil {
			t.Fatalf("Case: %v", err)
		}
	}

	dir := t.TempDir()
	if err := r.SavePlots(dir); err != nil {
		t.Fatalf("SavePlots: %v", err)
	}
	for _, name := range []string{"case_deltas.png", "case_iterations.png"} {
		info, err := os.Stat(filepath.Join(dir, name))
		if err != nil {
			t.Errorf("%s: %v", name, err)
			continue
		}
		if info.Size() == 0 {
			t.Errorf("%s is empty", name)
		}
	}
}

// TestWriteReport renders the HTML report with charts for samples and
// traces.
func TestWriteReport(t *testing.T) {
	r := NewRecorder(1)
	for i := 0; i < 3; i++ {
		if err := r.Case(sampleOutcome(i, 0.2)); err != nil {
			t.Fatalf("Case: %v", err)
		}
	}

	path := filepath.Join(t.TempDir(), "report.html")
	if err := r.WriteReport(path); err != nil {
		t.Fatalf("WriteReport: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	html := string(data)
	if !strings.Contains(html, "Per-case transformation delta") {
		t.Error("report missing delta chart title")
	}
	if !strings.Contains(html, "Case 0 convergence") {
		t.Error("report missing convergence trace chart")
	}
}
