package ndt

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

// TestSolveAgainstGonum cross-checks the hand-rolled elimination against a
// dense solver on a batch of fixed full-rank systems.
func TestSolveAgainstGonum(t *testing.T) {
	for trial := 0; trial < 8; trial++ {
		var A Mat66
		var b Vec6
		for i := 0; i < 6; i++ {
			for j := 0; j < 6; j++ {
				A[i][j] = math.Cos(float64(trial+1) * float64(7*i+11*j+3))
			}
			A[i][i] += 8.0
			b[i] = math.Sin(float64(trial*6 + i))
		}

		got := solve(A, b)

		dense := mat.NewDense(6, 6, nil)
		for i := 0; i < 6; i++ {
			for j := 0; j < 6; j++ {
				dense.Set(i, j, A[i][j])
			}
		}
		rhs := mat.NewVecDense(6, []float64{b[0], b[1], b[2], b[3], b[4], b[5]})
		var want mat.VecDense
		if err := want.SolveVec(dense, rhs); err != nil {
			t.Fatalf("trial %d: dense solve: %v", trial, err)
		}

		for i := 0; i < 6; i++ {
			if math.Abs(got[i]-want.AtVec(i)) > 1e-9 {
				t.Errorf("trial %d: x[%d] = %.12f, want %.12f", trial, i, got[i], want.AtVec(i))
			}
		}
	}
}

// TestInvert3AgainstGonum cross-checks the adjugate inverse against a dense
// inverse on symmetric positive definite matrices.
func TestInvert3AgainstGonum(t *testing.T) {
	for trial := 0; trial < 8; trial++ {
		s := float64(trial + 1)
		m := Mat33{
			{3 + s, 0.5, 0.2 * s},
			{0.5, 2 + s, 0.1},
			{0.2 * s, 0.1, 1 + s},
		}

		got := m
		invert3(&got)

		dense := mat.NewDense(3, 3, nil)
		for r := 0; r < 3; r++ {
			for c := 0; c < 3; c++ {
				dense.Set(r, c, m[r][c])
			}
		}
		var want mat.Dense
		if err := want.Inverse(dense); err != nil {
			t.Fatalf("trial %d: dense inverse: %v", trial, err)
		}

		for r := 0; r < 3; r++ {
			for c := 0; c < 3; c++ {
				if math.Abs(got[r][c]-want.At(r, c)) > 1e-9 {
					t.Errorf("trial %d: inv[%d][%d] = %.12f, want %.12f",
						trial, r, c, got[r][c], want.At(r, c))
				}
			}
		}
	}
}
