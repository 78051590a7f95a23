// Package bench drives NDT registrations over a recorded test-case stream
// and checks every result against a reference stream, in order. It owns the
// timing-hook contract of the external harness: reading and comparing happen
// while the clock is paused, registration while it runs.
package bench

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/scanmatch.report/internal/monitoring"
	"github.com/banshee-data/scanmatch.report/internal/ndt"
	"github.com/banshee-data/scanmatch.report/internal/ndt/ndtio"
)

// Hooks are the external timing callbacks. Start and Stop bracket the whole
// run; Pause is called before stream reads and comparisons, Resume before
// each registration. Any of them may be nil.
type Hooks struct {
	Start  func()
	Stop   func()
	Pause  func()
	Resume func()
}

func (h Hooks) start() {
	if h.Start != nil {
		h.Start()
	}
}

func (h Hooks) stop() {
	if h.Stop != nil {
		h.Stop()
	}
}

func (h Hooks) pause() {
	if h.Pause != nil {
		h.Pause()
	}
}

func (h Hooks) resume() {
	if h.Resume != nil {
		h.Resume()
	}
}

// CaseOutcome captures one test case's registration and comparison.
type CaseOutcome struct {
	Index        int
	Result       ndt.CallbackResult
	Reference    *ndtio.Result
	Comparison   Comparison
	Iterations   int
	RegisterTime time.Duration
}

// Sink receives per-case outcomes as they are produced. Implementations
// must not retain the result's intermediate slice beyond the call unless
// they copy it.
type Sink interface {
	Case(outcome *CaseOutcome) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(*CaseOutcome) error

// Case implements Sink.
func (f SinkFunc) Case(o *CaseOutcome) error { return f(o) }

// Summary aggregates a full benchmark run.
type Summary struct {
	Cases      int
	Passes     int
	MaxDelta   float64
	MeanDelta  float64
	P95Delta   float64
	ErrorSoFar bool
	Elapsed    time.Duration
}

// Runner processes a test-case stream against a reference stream with one
// Matcher. Test cases are handled strictly in order; the reference stream is
// consumed record by record alongside the input.
type Runner struct {
	Matcher *ndt.Matcher
	Hooks   Hooks
	Sink    Sink
	Verbose bool
}

// Run consumes all test cases from input, registers each, and compares
// against reference. It stops early when ctx is cancelled or the sink
// fails; stream truncation is an error, not a failed comparison.
func (r *Runner) Run(ctx context.Context, input io.Reader, reference io.Reader) (*Summary, error) {
	matcher := r.Matcher
	if matcher == nil {
		matcher = ndt.NewMatcher()
	}

	r.Hooks.start()
	defer r.Hooks.stop()

	r.Hooks.pause()
	in, err := ndtio.NewReader(input)
	if err != nil {
		return nil, err
	}
	refs := ndtio.NewRefReader(reference)

	summary := &Summary{}
	deltas := make([]float64, 0, in.Count())
	start := time.Now()

	for i := 0; ; i++ {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		tc, err := in.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return summary, err
		}

		r.Hooks.resume()
		regStart := time.Now()
		result, err := matcher.Register(tc.FilteredScan, tc.TargetMap, tc.InitGuess)
		regTime := time.Since(regStart)
		r.Hooks.pause()
		if err != nil {
			return summary, fmt.Errorf("testcase %d: %w", i, err)
		}

		ref, err := refs.Next()
		if err != nil {
			return summary, fmt.Errorf("testcase %d: reference: %w", i, err)
		}

		cmp := Compare(result, ref)
		summary.Cases++
		if cmp.Pass {
			summary.Passes++
		} else {
			summary.ErrorSoFar = true
		}
		if cmp.MaxDelta > summary.MaxDelta {
			summary.MaxDelta = cmp.MaxDelta
		}
		deltas = append(deltas, cmp.MaxDelta)

		if r.Verbose {
			monitoring.Logf("case %d: delta=%.4f canonical=%.4f converged=%v/%v pass=%v (%s)",
				i, cmp.MaxDelta, cmp.CanonicalDelta, result.Converged, ref.Converged, cmp.Pass, regTime)
		}

		if r.Sink != nil {
			outcome := &CaseOutcome{
				Index:        i,
				Result:       result,
				Reference:    ref,
				Comparison:   cmp,
				Iterations:   len(result.IntermediateTransformations),
				RegisterTime: regTime,
			}
			if err := r.Sink.Case(outcome); err != nil {
				return summary, fmt.Errorf("testcase %d: sink: %w", i, err)
			}
		}
	}

	summary.Elapsed = time.Since(start)
	if len(deltas) > 0 {
		summary.MeanDelta = stat.Mean(deltas, nil)
		sorted := append([]float64(nil), deltas...)
		sort.Float64s(sorted)
		summary.P95Delta = stat.Quantile(0.95, stat.Empirical, sorted, nil)
	}
	return summary, nil
}
