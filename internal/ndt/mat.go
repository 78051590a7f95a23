package ndt

import "math"

// maxTranslationEps stands in for a zero pivot in the 6x6 solve so that a
// singular Hessian degrades the step instead of aborting the registration.
const maxTranslationEps = 0.001

func dot3(a, b Vec3) float64 {
	return a[0]*b[0] + a[1]*b[1] + a[2]*b[2]
}

func dot6(a, b Vec6) float64 {
	return a[0]*b[0] + a[1]*b[1] + a[2]*b[2] + a[3]*b[3] + a[4]*b[4] + a[5]*b[5]
}

// solve returns x with A*x = b using Gaussian elimination with partial
// pivoting. A zero pivot column is patched with maxTranslationEps rather
// than reported: the caller always needs some step direction, and for the
// 6x6 systems here this is faster than an SVD and accurate enough.
func solve(A Mat66, b Vec6) Vec6 {
	for j := 0; j < 6; j++ {
		maxAbs := math.Abs(A[j][j])
		mi := j
		for i := j + 1; i < 6; i++ {
			if math.Abs(A[i][j]) > maxAbs {
				mi = i
				maxAbs = math.Abs(A[i][j])
			}
		}
		if mi != j {
			A[mi], A[j] = A[j], A[mi]
			b[mi], b[j] = b[j], b[mi]
		}
		if maxAbs == 0.0 {
			// singular matrix
			A[j][j] = maxTranslationEps
		}
		for i := j + 1; i < 6; i++ {
			pivot := A[i][j] / A[j][j]
			for k := 0; k < 6; k++ {
				A[i][k] -= pivot * A[j][k]
			}
			b[i] -= pivot * b[j]
		}
	}

	var x Vec6
	x[5] = b[5] / A[5][5]
	for i := 4; i >= 0; i-- {
		sum := 0.0
		for j := i + 1; j < 6; j++ {
			sum += A[i][j] * x[j]
		}
		x[i] = (b[i] - sum) / A[i][i]
	}
	return x
}

// invert3 inverts m in place via the adjugate and determinant. The cofactor
// layout assumes a symmetric m, which holds for the covariance matrices it
// is applied to; callers must not pass a singular matrix.
func invert3(m *Mat33) {
	det := m[0][0]*(m[2][2]*m[1][1]-m[2][1]*m[1][2]) -
		m[1][0]*(m[2][2]*m[0][1]-m[2][1]*m[0][2]) +
		m[2][0]*(m[1][2]*m[0][1]-m[1][1]*m[0][2])
	invDet := 1.0 / det

	var t Mat33
	t[0][0] = m[2][2]*m[1][1] - m[2][1]*m[1][2]
	t[0][1] = -(m[2][2]*m[0][1] - m[2][1]*m[0][2])
	t[0][2] = m[1][2]*m[0][1] - m[1][1]*m[0][2]

	t[1][0] = -(m[2][2]*m[0][1] - m[2][0]*m[1][2])
	t[1][1] = m[2][2]*m[0][0] - m[2][0]*m[0][2]
	t[1][2] = -(m[1][2]*m[0][0] - m[1][0]*m[0][2])

	t[2][0] = m[2][1]*m[1][0] - m[2][0]*m[1][1]
	t[2][1] = -(m[2][1]*m[0][0] - m[2][0]*m[0][1])
	t[2][2] = m[1][1]*m[0][0] - m[1][0]*m[0][1]

	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			m[r][c] = t[r][c] * invDet
		}
	}
}

// buildTransformationMatrix writes the affine transform for pose t into m:
// rotation composed as axis-aligned rotations about X, then Y, then Z via
// quaternion multiplication, all in single precision, with t[0..2] as the
// translation column. The composition order is load-bearing; the reference
// streams encode exactly this X-Y-Z quaternion product.
func buildTransformationMatrix(m *Matrix4, t Vec6) {
	// Half-angle quaternions for the three axis rotations.
	qHA := 0.5 * float32(t[3])
	qW := float32(math.Cos(float64(qHA)))
	qX := float32(math.Sin(float64(qHA)))

	qHA2 := 0.5 * float32(t[4])
	qW2 := float32(math.Cos(float64(qHA2)))
	qY2 := float32(math.Sin(float64(qHA2)))

	qHA3 := 0.5 * float32(t[5])
	qW3 := float32(math.Cos(float64(qHA3)))
	qZ3 := float32(math.Sin(float64(qHA3)))

	// qx * qy: the zero components of the axis quaternions collapse the
	// Hamilton product to four terms.
	rW := qW * qW2
	rX := qX * qW2
	rY := qW * qY2
	rZ := qX * qY2

	// (qx*qy) * qz.
	r2W := rW*qW3 - rZ*qZ3
	r2X := rX*qW3 + rY*qZ3
	r2Y := rY*qW3 - rX*qZ3
	r2Z := rW*qZ3 + rZ*qW3

	tx := 2.0 * r2X
	ty := 2.0 * r2Y
	tz := 2.0 * r2Z
	twx := tx * r2W
	twy := ty * r2W
	twz := tz * r2W
	txx := tx * r2X
	txy := ty * r2X
	txz := tz * r2X
	tyy := ty * r2Y
	tyz := tz * r2Y
	tzz := tz * r2Z

	m[12] = 0.0
	m[13] = 0.0
	m[14] = 0.0
	m[15] = 1.0
	m[3] = float32(t[0])
	m[7] = float32(t[1])
	m[11] = float32(t[2])

	m[0] = 1.0 - (tyy + tzz)
	m[1] = txy - twz
	m[2] = txz + twy
	m[4] = txy + twz
	m[5] = 1.0 - (txx + tzz)
	m[6] = tyz - twx
	m[8] = txz - twy
	m[9] = tyz + twx
	m[10] = 1.0 - (txx + tyy)
}

// eulerAngles extracts ZYX Euler angles from the rotation block of m and
// negates them, which is the sign convention the pose vector uses. The
// positive-branch pi shift mirrors the extraction the reference outputs were
// produced with.
func eulerAngles(m Matrix4) Vec3 {
	var res Vec3
	res[0] = math.Atan2(float64(m.At(1, 2)), float64(m.At(2, 2)))
	n1 := float64(m.At(0, 0))
	n2 := float64(m.At(0, 1))
	c2 := math.Sqrt(n1*n1 + n2*n2)
	if res[0] > 0.0 {
		res[0] -= math.Pi
		res[1] = math.Atan2(-float64(m.At(0, 2)), -c2)
	} else {
		res[1] = math.Atan2(-float64(m.At(0, 2)), c2)
	}
	s1 := math.Sin(res[0])
	c1 := math.Cos(res[0])
	res[2] = math.Atan2(
		s1*float64(m.At(2, 0))-c1*float64(m.At(1, 0)),
		c1*float64(m.At(1, 1))-s1*float64(m.At(2, 1)))

	return Vec3{-res[0], -res[1], -res[2]}
}

// transformCloud applies m to every point of in and writes the results to
// out. in and out may be the same slice; each point is read in full before
// its slot is written. The fourth component of the output is left zero.
func transformCloud(in PointCloud, out PointCloud, m Matrix4) {
	for i := range in {
		p := in[i]
		var q PointXYZI
		for row := 0; row < 3; row++ {
			q[row] = m[4*row]*p[0] + m[4*row+1]*p[1] + m[4*row+2]*p[2] + m[4*row+3]
		}
		out[i] = q
	}
}
