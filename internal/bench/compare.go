package bench

import (
	"math"

	"github.com/banshee-data/scanmatch.report/internal/ndt"
	"github.com/banshee-data/scanmatch.report/internal/ndt/ndtio"
)

// MaxEps is the acceptance tolerance for both the componentwise matrix
// comparison and the canonical-point comparison. It is deliberately wide:
// Euler extraction near gimbal lock can flip signs between two rotation
// matrices that move points almost identically, and the reference streams
// contain such cases.
const MaxEps = 2.0

// CanonicalPoint is the fixed probe transformed through both the computed
// and the reference matrix; its image error catches transforms whose
// componentwise deviation cancels out.
var CanonicalPoint = [4]float32{0.724, 0.447, 0.525, 1.0}

// Comparison is the outcome of checking one registration against its
// reference record.
type Comparison struct {
	// MaxDelta is the largest componentwise absolute difference between the
	// computed and reference transformation matrices.
	MaxDelta float64
	// CanonicalDelta is the largest componentwise absolute difference
	// between the canonical point's images under the two matrices.
	CanonicalDelta float64
	// ConvergedMatch reports whether the convergence flags agree.
	ConvergedMatch bool
	// Pass is the overall verdict under MaxEps.
	Pass bool
}

// transformPoint applies the full 4x4 matrix to a homogeneous point.
func transformPoint(m ndt.Matrix4, p [4]float32) [4]float32 {
	var out [4]float32
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			out[r] += m.At(r, c) * p[c]
		}
	}
	return out
}

// Compare checks a registration result against its reference record.
func Compare(got ndt.CallbackResult, ref *ndtio.Result) Comparison {
	var cmp Comparison

	for i := 0; i < 16; i++ {
		d := math.Abs(float64(ref.FinalTransformation[i] - got.FinalTransformation[i]))
		if d > cmp.MaxDelta {
			cmp.MaxDelta = d
		}
	}

	gotPt := transformPoint(got.FinalTransformation, CanonicalPoint)
	refPt := transformPoint(ref.FinalTransformation, CanonicalPoint)
	for k := 0; k < 3; k++ {
		d := math.Abs(float64(refPt[k] - gotPt[k]))
		if d > cmp.CanonicalDelta {
			cmp.CanonicalDelta = d
		}
	}

	cmp.ConvergedMatch = got.Converged == ref.Converged
	cmp.Pass = cmp.MaxDelta <= MaxEps && cmp.ConvergedMatch && cmp.CanonicalDelta <= MaxEps
	return cmp
}
