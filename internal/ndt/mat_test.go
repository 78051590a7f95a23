package ndt

import (
	"math"
	"testing"
)

const matTol = 1e-10

// TestSolveWellConditioned checks the 6x6 elimination against systems with a
// known solution: A built from a random-looking but fixed diagonally
// dominant pattern, x chosen, b = A*x.
func TestSolveWellConditioned(t *testing.T) {
	var A Mat66
	for i := 0; i < 6; i++ {
		for j := 0; j < 6; j++ {
			A[i][j] = math.Sin(float64(3*i+5*j+1)) * 0.4
		}
		A[i][i] = 5.0 + float64(i)
	}
	want := Vec6{1, -2, 0.5, 3, -0.25, 4}

	var b Vec6
	for i := 0; i < 6; i++ {
		for j := 0; j < 6; j++ {
			b[i] += A[i][j] * want[j]
		}
	}

	got := solve(A, b)
	for i := 0; i < 6; i++ {
		if math.Abs(got[i]-want[i]) > 1e-9 {
			t.Errorf("x[%d] = %.12f, want %.12f", i, got[i], want[i])
		}
	}
}

// TestSolveWithPivoting forces row swaps by zeroing leading diagonal
// entries and checks the permuted system still solves exactly.
func TestSolveWithPivoting(t *testing.T) {
	A := Mat66{
		{0, 2, 0, 0, 0, 0},
		{3, 0, 0, 0, 0, 0},
		{0, 0, 4, 0, 0, 0},
		{0, 0, 0, 5, 0, 0},
		{0, 0, 0, 0, 6, 0},
		{0, 0, 0, 0, 0, 7},
	}
	want := Vec6{1, 2, 3, 4, 5, 6}
	var b Vec6
	for i := 0; i < 6; i++ {
		for j := 0; j < 6; j++ {
			b[i] += A[i][j] * want[j]
		}
	}

	got := solve(A, b)
	for i := 0; i < 6; i++ {
		if math.Abs(got[i]-want[i]) > 1e-9 {
			t.Errorf("x[%d] = %.12f, want %.12f", i, got[i], want[i])
		}
	}
}

// TestSolveSingular verifies the zero-pivot substitution keeps the result
// finite instead of producing NaN or Inf.
func TestSolveSingular(t *testing.T) {
	var A Mat66 // all zero
	b := Vec6{1, 1, 1, 1, 1, 1}
	got := solve(A, b)
	for i := 0; i < 6; i++ {
		if math.IsNaN(got[i]) || math.IsInf(got[i], 0) {
			t.Fatalf("x[%d] = %v, want finite", i, got[i])
		}
	}
}

// TestInvert3 checks the adjugate inverse on a symmetric positive definite
// matrix: M * inv(M) must be the identity.
func TestInvert3(t *testing.T) {
	m := Mat33{
		{4, 1, 0.5},
		{1, 3, 0.25},
		{0.5, 0.25, 2},
	}
	inv := m
	invert3(&inv)

	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			prod := 0.0
			for k := 0; k < 3; k++ {
				prod += m[r][k] * inv[k][c]
			}
			want := 0.0
			if r == c {
				want = 1.0
			}
			if math.Abs(prod-want) > matTol {
				t.Errorf("(M*inv)[%d][%d] = %.12f, want %.1f", r, c, prod, want)
			}
		}
	}
}

// TestBuildTransformationMatrixIdentity checks the zero pose produces the
// identity transform.
func TestBuildTransformationMatrixIdentity(t *testing.T) {
	m := Matrix4{}
	buildTransformationMatrix(&m, Vec6{})
	want := Identity()
	for i := 0; i < 16; i++ {
		if math.Abs(float64(m[i]-want[i])) > 1e-6 {
			t.Errorf("m[%d] = %v, want %v", i, m[i], want[i])
		}
	}
}

// TestBuildTransformationMatrixTranslation checks the translation lands in
// column 3.
func TestBuildTransformationMatrixTranslation(t *testing.T) {
	m := Matrix4{}
	buildTransformationMatrix(&m, Vec6{1.5, -2.25, 3.0, 0, 0, 0})
	if m.At(0, 3) != 1.5 || m.At(1, 3) != -2.25 || m.At(2, 3) != 3.0 {
		t.Errorf("translation column = (%v, %v, %v)", m.At(0, 3), m.At(1, 3), m.At(2, 3))
	}
	if m.At(3, 0) != 0 || m.At(3, 1) != 0 || m.At(3, 2) != 0 || m.At(3, 3) != 1 {
		t.Errorf("bottom row = (%v, %v, %v, %v)", m.At(3, 0), m.At(3, 1), m.At(3, 2), m.At(3, 3))
	}
}

// TestBuildTransformationMatrixAxisRotations checks each single-axis
// rotation against the closed-form rotation matrix.
func TestBuildTransformationMatrixAxisRotations(t *testing.T) {
	const theta = 0.4
	c := float32(math.Cos(theta))
	s := float32(math.Sin(theta))

	cases := []struct {
		name string
		pose Vec6
		want Matrix4
	}{
		{
			name: "x",
			pose: Vec6{0, 0, 0, theta, 0, 0},
			want: Matrix4{
				1, 0, 0, 0,
				0, c, -s, 0,
				0, s, c, 0,
				0, 0, 0, 1,
			},
		},
		{
			name: "y",
			pose: Vec6{0, 0, 0, 0, theta, 0},
			want: Matrix4{
				c, 0, s, 0,
				0, 1, 0, 0,
				-s, 0, c, 0,
				0, 0, 0, 1,
			},
		},
		{
			name: "z",
			pose: Vec6{0, 0, 0, 0, 0, theta},
			want: Matrix4{
				c, -s, 0, 0,
				s, c, 0, 0,
				0, 0, 1, 0,
				0, 0, 0, 1,
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := Matrix4{}
			buildTransformationMatrix(&m, tc.pose)
			for i := 0; i < 16; i++ {
				if math.Abs(float64(m[i]-tc.want[i])) > 1e-6 {
					t.Errorf("m[%d] = %.7f, want %.7f", i, m[i], tc.want[i])
				}
			}
		})
	}
}

// TestEulerAnglesSingleAxis checks that positive single-axis rotations are
// recovered on the matching pose component.
func TestEulerAnglesSingleAxis(t *testing.T) {
	const theta = 0.3
	for axis := 0; axis < 3; axis++ {
		var pose Vec6
		pose[3+axis] = theta
		m := Matrix4{}
		buildTransformationMatrix(&m, pose)

		got := eulerAngles(m)
		for k := 0; k < 3; k++ {
			want := 0.0
			if k == axis {
				want = theta
			}
			if math.Abs(got[k]-want) > 1e-6 {
				t.Errorf("axis %d: angle[%d] = %.7f, want %.7f", axis, k, got[k], want)
			}
		}
	}
}

// TestEulerAnglesIdentity checks the identity decomposes to zero angles.
func TestEulerAnglesIdentity(t *testing.T) {
	got := eulerAngles(Identity())
	for k := 0; k < 3; k++ {
		if got[k] != 0 {
			t.Errorf("angle[%d] = %v, want 0", k, got[k])
		}
	}
}

// TestTransformCloud checks translation, rotation and in-place aliasing.
func TestTransformCloud(t *testing.T) {
	cloud := PointCloud{
		{1, 0, 0, 9},
		{0, 1, 0, 9},
	}
	m := Matrix4{}
	buildTransformationMatrix(&m, Vec6{10, 20, 30, 0, 0, math.Pi / 2})

	out := make(PointCloud, len(cloud))
	transformCloud(cloud, out, m)

	// Rz(90deg): (1,0,0) -> (0,1,0); (0,1,0) -> (-1,0,0); plus translation.
	wantFirst := [3]float32{10, 21, 30}
	wantSecond := [3]float32{9, 20, 30}
	for k := 0; k < 3; k++ {
		if math.Abs(float64(out[0][k]-wantFirst[k])) > 1e-5 {
			t.Errorf("out[0][%d] = %v, want %v", k, out[0][k], wantFirst[k])
		}
		if math.Abs(float64(out[1][k]-wantSecond[k])) > 1e-5 {
			t.Errorf("out[1][%d] = %v, want %v", k, out[1][k], wantSecond[k])
		}
	}

	// In-place transform must match the out-of-place result.
	transformCloud(cloud, cloud, m)
	for i := range cloud {
		for k := 0; k < 3; k++ {
			if cloud[i][k] != out[i][k] {
				t.Errorf("in-place[%d][%d] = %v, want %v", i, k, cloud[i][k], out[i][k])
			}
		}
	}
}
