package ndt

import "math"

// More-Thuente line search constants: sufficient-decrease and curvature
// multipliers (eq. 1.1 and 1.2 [More, Thuente 1994]) and the trial cap.
const (
	lsMu             = 1.e-4
	lsNu             = 0.9
	lsMaxIterations  = 10
	lsUpperBoundBias = 0.66
)

// psiMT is the auxiliary function psi(a) = f(a) - f(0) - mu*g(0)*a used
// while the search interval is still open.
func psiMT(a, fA, f0, g0 float64) float64 {
	return fA - f0 - lsMu*g0*a
}

// dPsiMT is the derivative of psiMT.
func dPsiMT(gA, g0 float64) float64 {
	return gA - lsMu*g0
}

// updateIntervalMT updates the search interval [a_l, a_u] with the trial
// point per the Updating Algorithm [More, Thuente 1994] and reports whether
// the interval has converged. The three non-converged cases are U1 (trial
// value above the lower endpoint), U2 and U3 (trial derivative pointing
// toward or away from the lower endpoint).
func updateIntervalMT(aL, fL, gL, aU, fU, gU *float64, aT, fT, gT float64) bool {
	switch {
	case fT > *fL:
		*aU = aT
		*fU = fT
		*gU = gT
		return false
	case gT*(*aL-aT) > 0:
		*aL = aT
		*fL = fT
		*gL = gT
		return false
	case gT*(*aL-aT) < 0:
		*aU = *aL
		*fU = *fL
		*gU = *gL
		*aL = aT
		*fL = fT
		*gL = gT
		return false
	default:
		return true
	}
}

// trialValueSelectionMT selects the next trial step from the current
// interval endpoints and trial point, choosing between cubic and quadratic
// interpolant minimisers per the four cases of the Trial Value Selection
// algorithm [More, Thuente 1994]; interpolant formulas follow eq. 2.4.52,
// 2.4.56, 2.4.2 and 2.4.5 [Sun, Yuan 2006].
func trialValueSelectionMT(aL, fL, gL, aU, fU, gU, aT, fT, gT float64) float64 {
	switch {
	case fT > fL:
		// Case 1: cubic through (f_l, g_l, f_t, g_t) vs quadratic through
		// (f_l, g_l, f_t); take the one closer to a_l, else their midpoint.
		z := 3*(fT-fL)/(aT-aL) - gT - gL
		w := math.Sqrt(z*z - gT*gL)
		aC := aL + (aT-aL)*(w-gL-z)/(gT-gL+2*w)
		aQ := aL - 0.5*(aL-aT)*gL/(gL-(fL-fT)/(aL-aT))

		if math.Abs(aC-aL) < math.Abs(aQ-aL) {
			return aC
		}
		return 0.5 * (aQ + aC)

	case gT*gL < 0:
		// Case 2: derivative changed sign; cubic vs secant, whichever lands
		// farther from the trial.
		z := 3*(fT-fL)/(aT-aL) - gT - gL
		w := math.Sqrt(z*z - gT*gL)
		aC := aL + (aT-aL)*(w-gL-z)/(gT-gL+2*w)
		aS := aL - (aL-aT)/(gL-gT)*gL

		if math.Abs(aC-aT) >= math.Abs(aS-aT) {
			return aC
		}
		return aS

	case math.Abs(gT) <= math.Abs(gL):
		// Case 3: derivative shrank without changing sign; clamp the chosen
		// interpolant toward the upper endpoint.
		z := 3*(fT-fL)/(aT-aL) - gT - gL
		w := math.Sqrt(z*z - gT*gL)
		aC := aL + (aT-aL)*(w-gL-z)/(gT-gL+2*w)
		aS := aL - (aL-aT)/(gL-gT)*gL

		var aTNext float64
		if math.Abs(aC-aT) < math.Abs(aS-aT) {
			aTNext = aC
		} else {
			aTNext = aS
		}

		if aT > aL {
			return math.Min(aT+lsUpperBoundBias*(aU-aT), aTNext)
		}
		return math.Max(aT+lsUpperBoundBias*(aU-aT), aTNext)

	default:
		// Case 4: cubic through the upper endpoint and the trial.
		z := 3*(fT-fU)/(aT-aU) - gT - gU
		w := math.Sqrt(z*z - gT*gU)
		return aU + (aT-aU)*(w-gU-z)/(gT-gU+2*w)
	}
}

// computeStepLengthMT selects a step length along stepDir from pose x using
// the More-Thuente safeguarded search on phi(a) = -score(x + a*stepDir).
// Every trial rebuilds the transformed cloud and the derivatives at the
// trial pose, so score, gradient and Hessian are current for the accepted
// step when the function returns. stepDir is negated in place when it is an
// ascent direction.
//
// Inverted step bounds (stepMax < stepMin) skip the search and accept the
// clamped initial trial.
func (m *Matcher) computeStepLengthMT(x Vec6, stepDir *Vec6, stepInit, stepMax, stepMin float64,
	score *float64, scoreGradient *Vec6, hessian *Mat66, transCloud PointCloud,
) float64 {
	// phi(0) and phi'(0), eq. 1.3 [More, Thuente 1994].
	phi0 := -*score
	dPhi0 := -dot6(*scoreGradient, *stepDir)

	var xT Vec6

	if dPhi0 >= 0 {
		if dPhi0 == 0 {
			return 0
		}
		// Ascent direction: search the reverse.
		dPhi0 *= -1
		for i := 0; i < 6; i++ {
			stepDir[i] *= -1
		}
	}

	stepIterations := 0

	aL, aU := 0.0, 0.0
	fL := psiMT(aL, phi0, phi0, dPhi0)
	gL := dPsiMT(dPhi0, dPhi0)
	fU := psiMT(aU, phi0, phi0, dPhi0)
	gU := dPsiMT(dPhi0, dPhi0)

	intervalConverged := (stepMax - stepMin) < 0
	openInterval := true

	aT := stepInit
	aT = math.Min(aT, stepMax)
	aT = math.Max(aT, stepMin)

	for i := 0; i < 6; i++ {
		xT[i] = x[i] + stepDir[i]*aT
	}

	buildTransformationMatrix(&m.finalTransformation, xT)
	m.intermediate = append(m.intermediate, m.finalTransformation)

	transformCloud(m.input, transCloud, m.finalTransformation)

	// Most searches accept the initial trial, so the Hessian is computed up
	// front rather than re-derived after the loop in the common case.
	*score = m.computeDerivatives(scoreGradient, hessian, transCloud, xT, true)

	phiT := -*score
	dPhiT := -dot6(*scoreGradient, *stepDir)
	psiT := psiMT(aT, phiT, phi0, dPhi0)
	dPsiT := dPsiMT(dPhiT, dPhi0)

	for !intervalConverged && stepIterations < lsMaxIterations &&
		!(psiT <= 0 && dPhiT <= -lsNu*dPhi0) {
		if openInterval {
			aT = trialValueSelectionMT(aL, fL, gL, aU, fU, gU, aT, psiT, dPsiT)
		} else {
			aT = trialValueSelectionMT(aL, fL, gL, aU, fU, gU, aT, phiT, dPhiT)
		}
		aT = math.Min(aT, stepMax)
		aT = math.Max(aT, stepMin)

		for i := 0; i < 6; i++ {
			xT[i] = x[i] + stepDir[i]*aT
		}

		buildTransformationMatrix(&m.finalTransformation, xT)
		m.intermediate = append(m.intermediate, m.finalTransformation)

		transformCloud(m.input, transCloud, m.finalTransformation)

		*score = m.computeDerivatives(scoreGradient, hessian, transCloud, xT, false)

		phiT = -*score
		dPhiT = -dot6(*scoreGradient, *stepDir)
		psiT = psiMT(aT, phiT, phi0, dPhi0)
		dPsiT = dPsiMT(dPhiT, dPhi0)

		// Once psi is non-positive with non-negative slope the interval
		// closes; convert the endpoints from psi to phi values.
		if openInterval && psiT <= 0 && dPsiT >= 0 {
			openInterval = false
			fL += phi0 - lsMu*dPhi0*aL
			gL += lsMu * dPhi0
			fU += phi0 - lsMu*dPhi0*aU
			gU += lsMu * dPhi0
		}

		if openInterval {
			intervalConverged = updateIntervalMT(&aL, &fL, &gL, &aU, &fU, &gU, aT, psiT, dPsiT)
		} else {
			intervalConverged = updateIntervalMT(&aL, &fL, &gL, &aU, &fU, &gU, aT, phiT, dPhiT)
		}
		stepIterations++
	}

	// Trials past the first recomputed only the gradient; the next outer
	// iteration needs the Hessian at the accepted point.
	if stepIterations > 0 {
		m.computeHessian(hessian, transCloud)
	}
	return aT
}
