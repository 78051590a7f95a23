package ndt

import (
	"math"
)

// Default tuning values. They are fixed properties of the benchmark
// workload, not quantities derived from the input data.
const (
	DefaultOutlierRatio          = 0.55
	DefaultResolution            = 1.0
	DefaultStepSize              = 0.1
	DefaultTransformationEpsilon = 0.1
	DefaultMaxIterations         = 30
)

// Matcher registers source scans against target maps with NDT. It is not
// safe for concurrent use: one registration owns all of its state. State is
// reset by Register, so a single Matcher can process a whole test-case
// stream.
type Matcher struct {
	outlierRatio          float64
	resolution            float32
	stepSize              float64
	transformationEpsilon float64
	maxIterations         int
	columnSeed            bool

	finalTransformation    Matrix4
	transformation         Matrix4
	previousTransformation Matrix4
	intermediate           []Matrix4
	converged              bool
	nrIterations           int

	jAngA, jAngB, jAngC, jAngD, jAngE, jAngF, jAngG, jAngH Vec3

	hAngA2, hAngA3         Vec3
	hAngB2, hAngB3         Vec3
	hAngC2, hAngC3         Vec3
	hAngD1, hAngD2, hAngD3 Vec3
	hAngE1, hAngE2, hAngE3 Vec3
	hAngF1, hAngF2, hAngF3 Vec3

	pointGradient Mat36
	pointHessian  Mat186

	gaussD1, gaussD2 float64
	transProbability float64

	input        PointCloud
	grid         *VoxelGrid
	neighborhood []*VoxelCell
}

// Option configures a Matcher.
type Option func(*Matcher)

// WithOutlierRatio sets the expected fraction of outlier points used by the
// Gaussian mixture fit.
func WithOutlierRatio(ratio float64) Option {
	return func(m *Matcher) { m.outlierRatio = ratio }
}

// WithResolution sets the voxel side length, which is also the radius of the
// neighbourhood search.
func WithResolution(res float64) Option {
	return func(m *Matcher) { m.resolution = float32(res) }
}

// WithStepSize sets the maximum line-search step length.
func WithStepSize(step float64) Option {
	return func(m *Matcher) { m.stepSize = step }
}

// WithTransformationEpsilon sets the step-length threshold below which the
// outer loop is considered converged.
func WithTransformationEpsilon(eps float64) Option {
	return func(m *Matcher) { m.transformationEpsilon = eps }
}

// WithMaxIterations caps the outer Newton loop.
func WithMaxIterations(n int) Option {
	return func(m *Matcher) { m.maxIterations = n }
}

// WithColumnTranslationSeed seeds the initial translation from the last
// column of the guess matrix. The default instead reads flat elements 4, 8
// and 12 — one past the end of each of the first three rows — which is how
// the reference streams were produced; enable this only against references
// recorded the conventional way.
func WithColumnTranslationSeed() Option {
	return func(m *Matcher) { m.columnSeed = true }
}

// NewMatcher returns a Matcher with the benchmark default tuning, modified
// by opts.
func NewMatcher(opts ...Option) *Matcher {
	m := &Matcher{
		outlierRatio:          DefaultOutlierRatio,
		resolution:            DefaultResolution,
		stepSize:              DefaultStepSize,
		transformationEpsilon: DefaultTransformationEpsilon,
		maxIterations:         DefaultMaxIterations,
		neighborhood:          make([]*VoxelCell, 0, 32),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Register aligns source onto target starting from guess and returns the
// estimated transform together with the convergence flag, the per-point
// fitness score, and every pose visited on the way. target must be
// non-empty.
func (m *Matcher) Register(source, target PointCloud, guess Matrix4) (CallbackResult, error) {
	m.intermediate = m.intermediate[:0]

	grid, err := buildVoxelGrid(target, m.resolution, m.transformationEpsilon)
	if err != nil {
		return CallbackResult{}, err
	}
	m.grid = grid
	m.input = source

	// Working copy of the source with the fourth component set to one.
	// transformCloud adds the translation without reading w and writes w as
	// zero, so applying the guess below overwrites this value.
	output := make(PointCloud, len(source))
	copy(output, source)
	for i := range output {
		output[i][3] = 1.0
	}

	m.converged = false
	m.finalTransformation = Identity()
	m.transformation = Identity()
	m.previousTransformation = Identity()

	m.computeTransformation(output, guess)

	result := CallbackResult{
		FinalTransformation:         m.finalTransformation,
		IntermediateTransformations: append([]Matrix4(nil), m.intermediate...),
		Converged:                   m.converged,
		FitnessScore:                m.transProbability,
	}
	return result, nil
}

// computeTransformation runs the Newton-like outer loop on the working
// cloud, leaving the result in finalTransformation / converged /
// transProbability.
func (m *Matcher) computeTransformation(output PointCloud, guess Matrix4) {
	m.nrIterations = 0
	m.converged = false

	// Gaussian mixture fit of the objective, eq. 6.8 [Magnusson 2009].
	gaussC1 := 10 * (1 - m.outlierRatio)
	gaussC2 := m.outlierRatio / math.Pow(float64(m.resolution), 3)
	gaussD3 := -math.Log(gaussC2)
	m.gaussD1 = -math.Log(gaussC1+gaussC2) - gaussD3
	m.gaussD2 = -2 * math.Log((-math.Log(gaussC1*math.Exp(-0.5)+gaussC2)-gaussD3)/m.gaussD1)

	m.finalTransformation = guess
	// Apply the guess before the first neighbourhood search.
	transformCloud(output, output, guess)

	m.pointGradient = Mat36{}
	m.pointGradient[0][0] = 1.0
	m.pointGradient[1][1] = 1.0
	m.pointGradient[2][2] = 1.0
	m.pointHessian = Mat186{}

	// Convert the guess matrix to the 6-element pose vector. The default
	// translation read is off-by-one-row (flat 4/8/12, the first column of
	// rows 1-3); see WithColumnTranslationSeed.
	var p Vec6
	if m.columnSeed {
		p[0] = float64(m.finalTransformation[3])
		p[1] = float64(m.finalTransformation[7])
		p[2] = float64(m.finalTransformation[11])
	} else {
		p[0] = float64(m.finalTransformation[4])
		p[1] = float64(m.finalTransformation[8])
		p[2] = float64(m.finalTransformation[12])
	}
	ea := eulerAngles(m.finalTransformation)
	p[3] = ea[0]
	p[4] = ea[1]
	p[5] = ea[2]

	var scoreGradient Vec6
	var hessian Mat66

	score := m.computeDerivatives(&scoreGradient, &hessian, output, p, true)

	for !m.converged {
		m.previousTransformation = m.transformation

		// Negated gradient: the NDT score is maximised.
		negGrad := Vec6{
			-scoreGradient[0], -scoreGradient[1], -scoreGradient[2],
			-scoreGradient[3], -scoreGradient[4], -scoreGradient[5],
		}
		deltaP := solve(hessian, negGrad)

		deltaPNorm := math.Sqrt(deltaP[0]*deltaP[0] +
			deltaP[1]*deltaP[1] +
			deltaP[2]*deltaP[2] +
			deltaP[3]*deltaP[3] +
			deltaP[4]*deltaP[4] +
			deltaP[5]*deltaP[5])
		// The Newton step reaches the line search unnormalised: the norm is
		// overridden with one before the division below, as in the runs that
		// produced the reference streams.
		deltaPNorm = 1
		if deltaPNorm == 0 || math.IsNaN(deltaPNorm) {
			if len(m.input) > 0 {
				m.transProbability = score / float64(len(m.input))
			} else {
				m.transProbability = 0
			}
			m.converged = !math.IsNaN(deltaPNorm)
			return
		}

		for i := 0; i < 6; i++ {
			deltaP[i] /= deltaPNorm
		}

		deltaPNorm = m.computeStepLengthMT(p, &deltaP, deltaPNorm,
			m.stepSize, m.transformationEpsilon/2,
			&score, &scoreGradient, &hessian, output)
		for i := 0; i < 6; i++ {
			deltaP[i] *= deltaPNorm
		}

		buildTransformationMatrix(&m.transformation, deltaP)
		m.intermediate = append(m.intermediate, m.transformation)

		for i := 0; i < 6; i++ {
			p[i] += deltaP[i]
		}

		if m.nrIterations > m.maxIterations ||
			(m.nrIterations > 0 && math.Abs(deltaPNorm) < m.transformationEpsilon) {
			m.converged = true
		}
		m.nrIterations++
	}

	// Relative fitness within one registration is meaningful; the
	// normalisation constant is not comparable across registrations.
	if len(m.input) > 0 {
		m.transProbability = score / float64(len(m.input))
	} else {
		m.transProbability = 0
	}
}
