package ndt

// PointXYZI is a single LiDAR return: x, y, z and intensity, in that order.
// The intensity slot doubles as the homogeneous w coordinate during
// registration; the math only ever reads the first three components.
type PointXYZI [4]float32

// PointCloud is an ordered sequence of points. Order is significant: the
// derivative accumulation visits points in index order, which keeps
// floating-point summation deterministic.
type PointCloud []PointXYZI

// Matrix4 is a 4x4 single-precision affine transform, row-major:
// element (r,c) lives at index 4*r+c. Rotation in the upper-left 3x3 block,
// translation in column 3, bottom row (0,0,0,1).
type Matrix4 [16]float32

// Identity returns the identity transform.
func Identity() Matrix4 {
	return Matrix4{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

// At returns element (r,c).
func (m Matrix4) At(r, c int) float32 { return m[4*r+c] }

// Vec3 is a double-precision 3-vector.
type Vec3 [3]float64

// Vec6 is a pose increment (tx, ty, tz, rx, ry, rz) with ZYX Euler angles.
type Vec6 [6]float64

// Mat33 is a double-precision 3x3 matrix, used for per-cell covariances.
type Mat33 [3][3]float64

// Mat66 is the Hessian of the NDT objective.
type Mat66 [6][6]float64

// Mat36 holds the per-point transform gradient: column i is the derivative
// of the transformed point with respect to pose component i.
type Mat36 [3][6]float64

// Mat186 holds the per-point transform Hessian as six stacked 3x6 blocks.
type Mat186 [18][6]float64

// CallbackResult is the outcome of registering one test case.
type CallbackResult struct {
	// FinalTransformation maps the source cloud onto the target map.
	FinalTransformation Matrix4
	// IntermediateTransformations records, in visitation order, every pose
	// evaluated by the line search and, after each outer iteration, the
	// transform of the accepted step increment.
	IntermediateTransformations []Matrix4
	// Converged is set when the outer loop stops, either because the
	// accepted step length fell below the transformation epsilon or because
	// the iteration count exceeded the cap.
	Converged bool
	// FitnessScore is the NDT score divided by the source cloud size. The
	// relative differences within one registration are meaningful; the
	// absolute scale is not normalised across registrations.
	FitnessScore float64
}
