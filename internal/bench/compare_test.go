package bench

import (
	"testing"

	"github.com/banshee-data/scanmatch.report/internal/ndt"
	"github.com/banshee-data/scanmatch.report/internal/ndt/ndtio"
)

// TestCompareIdentical passes when result and reference agree exactly.
func TestCompareIdentical(t *testing.T) {
	res := ndt.CallbackResult{FinalTransformation: ndt.Identity(), Converged: true}
	ref := &ndtio.Result{FinalTransformation: ndt.Identity(), Converged: true}

	cmp := Compare(res, ref)
	if !cmp.Pass {
		t.Errorf("identical matrices should pass: %+v", cmp)
	}
	if cmp.MaxDelta != 0 || cmp.CanonicalDelta != 0 {
		t.Errorf("deltas = (%v, %v), want zero", cmp.MaxDelta, cmp.CanonicalDelta)
	}
}

// TestCompareConvergedMismatch fails on a flag mismatch even with matching
// matrices.
func TestCompareConvergedMismatch(t *testing.T) {
	res := ndt.CallbackResult{FinalTransformation: ndt.Identity(), Converged: false}
	ref := &ndtio.Result{FinalTransformation: ndt.Identity(), Converged: true}

	cmp := Compare(res, ref)
	if cmp.Pass {
		t.Error("converged mismatch should fail")
	}
	if cmp.ConvergedMatch {
		t.Error("ConvergedMatch should be false")
	}
}

// TestCompareWithinTolerance passes a rotation-sign flip (delta 2.0) but
// fails anything beyond it.
func TestCompareWithinTolerance(t *testing.T) {
	res := ndt.CallbackResult{FinalTransformation: ndt.Identity(), Converged: true}

	flipped := ndt.Identity()
	flipped[0] = -1 // componentwise delta exactly 2.0
	ref := &ndtio.Result{FinalTransformation: flipped, Converged: true}
	if cmp := Compare(res, ref); !cmp.Pass {
		t.Errorf("delta of exactly 2.0 should pass: %+v", cmp)
	}

	far := ndt.Identity()
	far[3] = 5 // translation off by 5
	ref = &ndtio.Result{FinalTransformation: far, Converged: true}
	if cmp := Compare(res, ref); cmp.Pass {
		t.Errorf("delta of 5.0 should fail: %+v", cmp)
	}
}

// TestCompareCanonicalPoint catches transforms whose componentwise error is
// small but whose action on the probe differs.
func TestCompareCanonicalPoint(t *testing.T) {
	res := ndt.CallbackResult{FinalTransformation: ndt.Identity(), Converged: true}

	// Spread 1.9 across the probe row: componentwise under tolerance, but
	// the probe image moves by more than 2.
	ref := ndt.Identity()
	ref[0] += 1.9
	ref[1] += 1.9
	ref[2] += 1.9
	ref[3] += 1.9

	cmp := Compare(res, &ndtio.Result{FinalTransformation: ref, Converged: true})
	if cmp.MaxDelta > MaxEps {
		t.Fatalf("test construction wrong: matrix delta %v", cmp.MaxDelta)
	}
	if cmp.CanonicalDelta <= MaxEps {
		t.Fatalf("test construction wrong: canonical delta %v", cmp.CanonicalDelta)
	}
	if cmp.Pass {
		t.Error("canonical-point miss should fail")
	}
}
