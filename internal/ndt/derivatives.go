package ndt

import "math"

// computeAngleDerivatives fills the trigonometric coefficient tables for the
// transform Jacobian (j_ang) and, when withHessian is set, the transform
// Hessian (h_ang) at pose p, per equations 6.19 and 6.21 of Magnusson 2009.
// Angles below 1e-4 rad are treated as exactly zero.
func (m *Matcher) computeAngleDerivatives(p Vec6, withHessian bool) {
	var cx, cy, cz, sx, sy, sz float64
	if math.Abs(p[3]) < 10e-5 {
		cx = 1.0
		sx = 0.0
	} else {
		cx = math.Cos(p[3])
		sx = math.Sin(p[3])
	}
	if math.Abs(p[4]) < 10e-5 {
		cy = 1.0
		sy = 0.0
	} else {
		cy = math.Cos(p[4])
		sy = math.Sin(p[4])
	}
	if math.Abs(p[5]) < 10e-5 {
		cz = 1.0
		sz = 0.0
	} else {
		cz = math.Cos(p[5])
		sz = math.Sin(p[5])
	}

	m.jAngA = Vec3{-sx*sz + cx*sy*cz, -sx*cz - cx*sy*sz, -cx * cy}
	m.jAngB = Vec3{cx*sz + sx*sy*cz, cx*cz - sx*sy*sz, -sx * cy}
	m.jAngC = Vec3{-sy * cz, sy * sz, cy}
	m.jAngD = Vec3{sx * cy * cz, -sx * cy * sz, sx * sy}
	m.jAngE = Vec3{-cx * cy * cz, cx * cy * sz, -cx * sy}
	m.jAngF = Vec3{-cy * sz, -cy * cz, 0}
	m.jAngG = Vec3{cx*cz - sx*sy*sz, -cx*sz - sx*sy*cz, 0}
	m.jAngH = Vec3{sx*cz + cx*sy*sz, cx*sy*cz - sx*sz, 0}

	if !withHessian {
		return
	}

	m.hAngA2 = Vec3{-cx*sz - sx*sy*cz, -cx*cz + sx*sy*sz, sx * cy}
	m.hAngA3 = Vec3{-sx*sz + cx*sy*cz, -cx*sy*sz - sx*cz, -cx * cy}

	m.hAngB2 = Vec3{cx * cy * cz, -cx * cy * sz, cx * sy}
	m.hAngB3 = Vec3{sx * cy * cz, -sx * cy * sz, sx * sy}

	m.hAngC2 = Vec3{-sx*cz - cx*sy*sz, sx*sz - cx*sy*cz, 0}
	m.hAngC3 = Vec3{cx*cz - sx*sy*sz, -sx*sy*cz - cx*sz, 0}

	m.hAngD1 = Vec3{-cy * cz, cy * sz, sy}
	m.hAngD2 = Vec3{-sx * sy * cz, sx * sy * sz, sx * cy}
	m.hAngD3 = Vec3{cx * sy * cz, -cx * sy * sz, -cx * cy}

	m.hAngE1 = Vec3{sy * sz, sy * cz, 0}
	m.hAngE2 = Vec3{-sx * cy * sz, -sx * cy * cz, 0}
	m.hAngE3 = Vec3{cx * cy * sz, cx * cy * cz, 0}

	m.hAngF1 = Vec3{-cy * cz, cy * sz, 0}
	m.hAngF2 = Vec3{-cx*sz - sx*sy*cz, -cx*cz + sx*sy*sz, 0}
	m.hAngF3 = Vec3{-sx*sz + cx*sy*cz, -cx*sy*sz - sx*cz, 0}
}

// computePointDerivatives evaluates the transform Jacobian (and optionally
// Hessian) at source point x using the precomputed angle tables. Column i of
// the point gradient is the derivative of the transformed point with respect
// to pose component i; the translation block was set to identity once at
// initialisation and never changes.
func (m *Matcher) computePointDerivatives(x Vec3, withHessian bool) {
	m.pointGradient[1][3] = dot3(x, m.jAngA)
	m.pointGradient[2][3] = dot3(x, m.jAngB)
	m.pointGradient[0][4] = dot3(x, m.jAngC)
	m.pointGradient[1][4] = dot3(x, m.jAngD)
	m.pointGradient[2][4] = dot3(x, m.jAngE)
	m.pointGradient[0][5] = dot3(x, m.jAngF)
	m.pointGradient[1][5] = dot3(x, m.jAngG)
	m.pointGradient[2][5] = dot3(x, m.jAngH)

	if !withHessian {
		return
	}

	a := Vec3{0, dot3(x, m.hAngA2), dot3(x, m.hAngA3)}
	b := Vec3{0, dot3(x, m.hAngB2), dot3(x, m.hAngB3)}
	c := Vec3{0, dot3(x, m.hAngC2), dot3(x, m.hAngC3)}
	d := Vec3{dot3(x, m.hAngD1), dot3(x, m.hAngD2), dot3(x, m.hAngD3)}
	e := Vec3{dot3(x, m.hAngE1), dot3(x, m.hAngE2), dot3(x, m.hAngE3)}
	f := Vec3{dot3(x, m.hAngF1), dot3(x, m.hAngF2), dot3(x, m.hAngF3)}

	// Mixed second derivatives live in the 3x1 blocks starting at row 3i for
	// pose components i, j >= 3; all other blocks stay zero.
	for k := 0; k < 3; k++ {
		m.pointHessian[9+k][3] = a[k]
		m.pointHessian[12+k][3] = b[k]
		m.pointHessian[15+k][3] = c[k]
		m.pointHessian[9+k][4] = b[k]
		m.pointHessian[12+k][4] = d[k]
		m.pointHessian[15+k][4] = e[k]
		m.pointHessian[9+k][5] = c[k]
		m.pointHessian[12+k][5] = e[k]
		m.pointHessian[15+k][5] = f[k]
	}
}

// updateDerivatives folds one matched (point, cell) pair into the score,
// gradient and optionally Hessian, and returns the score increment.
// xTrans is the transformed point relative to the cell mean; cInv is the
// cell's inverse covariance.
func (m *Matcher) updateDerivatives(g *Vec6, h *Mat66, xTrans Vec3, cInv Mat33, withHessian bool) float64 {
	xCx := cInv[0][0]*xTrans[0]*xTrans[0] +
		cInv[1][1]*xTrans[1]*xTrans[1] +
		cInv[2][2]*xTrans[2]*xTrans[2] +
		(cInv[0][1]+cInv[1][0])*xTrans[0]*xTrans[1] +
		(cInv[0][2]+cInv[2][0])*xTrans[0]*xTrans[2] +
		(cInv[1][2]+cInv[2][1])*xTrans[1]*xTrans[2]

	// Probability of the transformed point, eq. 6.9 [Magnusson 2009].
	eXCovX := math.Exp(-m.gaussD2 * xCx / 2)
	scoreInc := -m.gaussD1 * eXCovX

	eXCovX = m.gaussD2 * eXCovX
	// An exponent over- or underflow makes the contribution meaningless;
	// drop the pair.
	if eXCovX > 1 || eXCovX < 0 || math.IsNaN(eXCovX) {
		return 0
	}
	eXCovX *= m.gaussD1

	for i := 0; i < 6; i++ {
		var covDxdPi Vec3
		for row := 0; row < 3; row++ {
			for col := 0; col < 3; col++ {
				covDxdPi[row] += cInv[row][col] * m.pointGradient[col][i]
			}
		}

		// Gradient contribution, eq. 6.12 [Magnusson 2009].
		g[i] += dot3(xTrans, covDxdPi) * eXCovX

		if withHessian {
			for j := 0; j < 6; j++ {
				colVec := Vec3{m.pointGradient[0][j], m.pointGradient[1][j], m.pointGradient[2][j]}
				colVecHess := Vec3{
					colVec[0] + m.pointHessian[3*i][j],
					colVec[1] + m.pointHessian[3*i+1][j],
					colVec[2] + m.pointHessian[3*i+2][j],
				}
				var matProd Vec3
				for row := 0; row < 3; row++ {
					for col := 0; col < 3; col++ {
						matProd[row] += cInv[row][col] * colVecHess[col]
					}
				}

				// Hessian contribution, eq. 6.13 [Magnusson 2009].
				h[i][j] += eXCovX * (-m.gaussD2*dot3(xTrans, covDxdPi)*dot3(xTrans, matProd) +
					dot3(colVec, covDxdPi))
			}
		}
	}
	return scoreInc
}

// updateHessian is the Hessian-only variant of updateDerivatives, used when
// the gradient at the accepted line-search point is already current.
func (m *Matcher) updateHessian(h *Mat66, xTrans Vec3, cInv Mat33) {
	xCx := cInv[0][0]*xTrans[0]*xTrans[0] +
		cInv[1][1]*xTrans[1]*xTrans[1] +
		cInv[2][2]*xTrans[2]*xTrans[2] +
		(cInv[0][1]+cInv[1][0])*xTrans[0]*xTrans[1] +
		(cInv[0][2]+cInv[2][0])*xTrans[0]*xTrans[2] +
		(cInv[1][2]+cInv[2][1])*xTrans[1]*xTrans[2]
	eXCovX := m.gaussD2 * math.Exp(-m.gaussD2*xCx/2)

	if eXCovX > 1 || eXCovX < 0 || math.IsNaN(eXCovX) {
		return
	}
	eXCovX *= m.gaussD1

	for i := 0; i < 6; i++ {
		var covDxdPi Vec3
		for row := 0; row < 3; row++ {
			for col := 0; col < 3; col++ {
				covDxdPi[row] += cInv[row][col] * m.pointGradient[col][i]
			}
		}

		for j := 0; j < 6; j++ {
			colVec := Vec3{m.pointGradient[0][j], m.pointGradient[1][j], m.pointGradient[2][j]}
			colVecHess := Vec3{
				colVec[0] + m.pointHessian[3*i][j],
				colVec[1] + m.pointHessian[3*i+1][j],
				colVec[2] + m.pointHessian[3*i+2][j],
			}
			var matProd Vec3
			for row := 0; row < 3; row++ {
				for col := 0; col < 3; col++ {
					matProd[row] += cInv[row][col] * colVecHess[col]
				}
			}
			h[i][j] += eXCovX * (-m.gaussD2*dot3(xTrans, covDxdPi)*dot3(xTrans, matProd) +
				dot3(colVec, covDxdPi))
		}
	}
}

// computeDerivatives evaluates score, gradient and optionally Hessian of the
// NDT objective for the transformed cloud at pose p. Each source point is
// matched against every grid cell whose mean lies within one resolution of
// its transformed position.
func (m *Matcher) computeDerivatives(g *Vec6, h *Mat66, transCloud PointCloud, p Vec6, withHessian bool) float64 {
	*g = Vec6{}
	*h = Mat66{}
	score := 0.0

	m.computeAngleDerivatives(p, true)

	for idx := range m.input {
		xTransPt := transCloud[idx]
		m.neighborhood = m.grid.radiusSearch(xTransPt, float64(m.resolution), m.neighborhood)

		for _, cell := range m.neighborhood {
			xPt := m.input[idx]
			x := Vec3{float64(xPt[0]), float64(xPt[1]), float64(xPt[2])}
			xTrans := Vec3{
				float64(xTransPt[0]) - cell.Mean[0],
				float64(xTransPt[1]) - cell.Mean[1],
				float64(xTransPt[2]) - cell.Mean[2],
			}

			m.computePointDerivatives(x, true)
			score += m.updateDerivatives(g, h, xTrans, cell.InvCovariance, withHessian)
		}
	}
	return score
}

// computeHessian evaluates only the Hessian at the current transformed
// cloud, reusing the angle tables from the preceding computeDerivatives
// call.
func (m *Matcher) computeHessian(h *Mat66, transCloud PointCloud) {
	*h = Mat66{}

	for idx := range m.input {
		xTransPt := transCloud[idx]
		m.neighborhood = m.grid.radiusSearch(xTransPt, float64(m.resolution), m.neighborhood)

		for _, cell := range m.neighborhood {
			xPt := m.input[idx]
			x := Vec3{float64(xPt[0]), float64(xPt[1]), float64(xPt[2])}
			xTrans := Vec3{
				float64(xTransPt[0]) - cell.Mean[0],
				float64(xTransPt[1]) - cell.Mean[1],
				float64(xTransPt[2]) - cell.Mean[2],
			}

			m.computePointDerivatives(x, true)
			m.updateHessian(h, xTrans, cell.InvCovariance)
		}
	}
}
