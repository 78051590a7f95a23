// Command scanmatch runs the NDT scan-registration benchmark: it replays a
// recorded test-case stream through the registration engine, checks every
// result against the reference stream, and optionally persists and plots the
// outcome.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/banshee-data/scanmatch.report/internal/bench"
	"github.com/banshee-data/scanmatch.report/internal/config"
	"github.com/banshee-data/scanmatch.report/internal/monitor"
	"github.com/banshee-data/scanmatch.report/internal/ndt"
	"github.com/banshee-data/scanmatch.report/internal/ndt/ndtio"
	"github.com/banshee-data/scanmatch.report/internal/storage/sqlite"
	"github.com/banshee-data/scanmatch.report/internal/version"
)

var (
	inputPath  = flag.String("input", "data/ndt_input.dat", "Test-case input stream")
	refPath    = flag.String("reference", "data/ndt_output.dat", "Reference output stream")
	tuningPath = flag.String("tuning", "", "Optional JSON tuning file")
	dbPath     = flag.String("db", "", "Optional sqlite database for run results")
	migrations = flag.String("migrations", "migrations", "Schema migrations directory (with -db)")
	plotsDir   = flag.String("plots", "", "Optional directory for PNG plots")
	reportPath = flag.String("report", "", "Optional HTML report path")
	recordPath = flag.String("record", "", "Optional path to write the computed results as a reference stream")
	jsonOut    = flag.Bool("json", false, "Print the run summary as JSON")
	verbose    = flag.Bool("v", false, "Log every case comparison")
	traceEvery = flag.Int("trace-every", 25, "Record a convergence trace every n cases in the report")
	showVer    = flag.Bool("version", false, "Print the build version and exit")
)

func main() {
	flag.Parse()

	if *showVer {
		fmt.Println(version.String())
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	tuning := &config.TuningConfig{}
	if *tuningPath != "" {
		var err error
		tuning, err = config.LoadTuningConfig(*tuningPath)
		if err != nil {
			log.Fatalf("load tuning: %v", err)
		}
	}

	in, err := os.Open(*inputPath)
	if err != nil {
		log.Fatalf("open input: %v", err)
	}
	defer in.Close()

	ref, err := os.Open(*refPath)
	if err != nil {
		log.Fatalf("open reference: %v", err)
	}
	defer ref.Close()

	var (
		db       *sqlite.DB
		runStore *sqlite.RunStore
		run      *sqlite.Run
		caseRows []*sqlite.CaseResult
	)
	if *dbPath != "" {
		db, err = sqlite.Open(*dbPath, *migrations)
		if err != nil {
			log.Fatalf("open results db: %v", err)
		}
		defer db.Close()
		runStore = sqlite.NewRunStore(db)
		run = &sqlite.Run{
			InputPath:  *inputPath,
			RefPath:    *refPath,
			TuningJSON: tuning.JSON(),
		}
		if err := runStore.InsertRun(run); err != nil {
			log.Fatalf("insert run: %v", err)
		}
	}

	var recorder *monitor.Recorder
	if *plotsDir != "" || *reportPath != "" {
		recorder = monitor.NewRecorder(*traceEvery)
	}

	var refOut *ndtio.RefWriter
	if *recordPath != "" {
		f, err := os.Create(*recordPath)
		if err != nil {
			log.Fatalf("create record file: %v", err)
		}
		defer f.Close()
		refOut = ndtio.NewRefWriter(f)
	}

	sink := bench.SinkFunc(func(o *bench.CaseOutcome) error {
		if recorder != nil {
			if err := recorder.Case(o); err != nil {
				return err
			}
		}
		if refOut != nil {
			rec := &ndtio.Result{
				FinalTransformation: o.Result.FinalTransformation,
				FitnessScore:        o.Result.FitnessScore,
				Converged:           o.Result.Converged,
			}
			if err := refOut.Write(rec); err != nil {
				return err
			}
		}
		if run != nil {
			caseRows = append(caseRows, &sqlite.CaseResult{
				RunID:          run.RunID,
				CaseIndex:      o.Index,
				Converged:      o.Result.Converged,
				RefConverged:   o.Reference.Converged,
				FitnessScore:   o.Result.FitnessScore,
				MaxDelta:       o.Comparison.MaxDelta,
				CanonicalDelta: o.Comparison.CanonicalDelta,
				Iterations:     o.Iterations,
				Pass:           o.Comparison.Pass,
				RegisterNanos:  o.RegisterTime.Nanoseconds(),
			})
		}
		return nil
	})

	runner := &bench.Runner{
		Matcher: ndt.NewMatcher(tuning.MatcherOptions()...),
		Sink:    sink,
		Verbose: *verbose,
	}

	summary, err := runner.Run(ctx, in, ref)
	if err != nil {
		log.Fatalf("benchmark: %v", err)
	}

	if refOut != nil {
		if err := refOut.Flush(); err != nil {
			log.Fatalf("flush record file: %v", err)
		}
	}

	if run != nil {
		run.CaseCount = summary.Cases
		run.PassCount = summary.Passes
		run.MaxDelta = summary.MaxDelta
		run.MeanDelta = summary.MeanDelta
		if err := runStore.InsertCaseResults(caseRows); err != nil {
			log.Fatalf("store case results: %v", err)
		}
		if err := runStore.FinishRun(run); err != nil {
			log.Fatalf("finish run: %v", err)
		}
	}

	if recorder != nil {
		if *plotsDir != "" {
			if err := recorder.SavePlots(*plotsDir); err != nil {
				log.Fatalf("save plots: %v", err)
			}
		}
		if *reportPath != "" {
			if err := recorder.WriteReport(*reportPath); err != nil {
				log.Fatalf("write report: %v", err)
			}
		}
	}

	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(summary); err != nil {
			log.Fatalf("encode summary: %v", err)
		}
	} else {
		fmt.Printf("cases: %d  passed: %d  max delta: %.4f  mean: %.4f  p95: %.4f  elapsed: %s\n",
			summary.Cases, summary.Passes, summary.MaxDelta, summary.MeanDelta,
			summary.P95Delta, summary.Elapsed)
	}

	if summary.ErrorSoFar || summary.MaxDelta > bench.MaxEps {
		os.Exit(1)
	}
}
