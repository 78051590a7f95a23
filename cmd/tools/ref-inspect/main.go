// Command ref-inspect summarises a test-case input stream or a reference
// output stream, for sanity-checking data files without running the
// benchmark.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/banshee-data/scanmatch.report/internal/ndt/ndtio"
)

var (
	mode  = flag.String("mode", "input", "Stream kind: input or reference")
	limit = flag.Int("limit", 10, "Records to print (0 for all)")
)

func main() {
	flag.Parse()
	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "usage: ref-inspect [-mode input|reference] [-limit n] <file>\n")
		os.Exit(2)
	}

	f, err := os.Open(flag.Arg(0))
	if err != nil {
		log.Fatalf("open: %v", err)
	}
	defer f.Close()

	switch *mode {
	case "input":
		inspectInput(f)
	case "reference":
		inspectReference(f)
	default:
		log.Fatalf("unknown mode %q", *mode)
	}
}

func inspectInput(f *os.File) {
	r, err := ndtio.NewReader(f)
	if err != nil {
		log.Fatalf("read header: %v", err)
	}
	fmt.Printf("testcases: %d\n", r.Count())
	for i := 0; *limit == 0 || i < *limit; i++ {
		tc, err := r.Next()
		if err == io.EOF {
			return
		}
		if err != nil {
			log.Fatalf("record %d: %v", i, err)
		}
		g := tc.InitGuess
		fmt.Printf("case %4d: scan=%6d map=%7d guess_t=(%.3f, %.3f, %.3f)\n",
			i, len(tc.FilteredScan), len(tc.TargetMap), g.At(0, 3), g.At(1, 3), g.At(2, 3))
	}
}

func inspectReference(f *os.File) {
	r := ndtio.NewRefReader(f)
	for i := 0; *limit == 0 || i < *limit; i++ {
		res, err := r.Next()
		if err == io.EOF {
			return
		}
		if err != nil {
			log.Fatalf("record %d: %v", i, err)
		}
		m := res.FinalTransformation
		fmt.Printf("case %4d: converged=%v fitness=%.6f t=(%.3f, %.3f, %.3f)\n",
			i, res.Converged, res.FitnessScore, m.At(0, 3), m.At(1, 3), m.At(2, 3))
	}
}
