// Package ndt implements Normal Distributions Transform scan registration:
// aligning a filtered LiDAR scan onto an accumulated map by maximising the
// likelihood of the transformed scan under a voxelised Gaussian model of the
// map [Magnusson 2009].
//
// The package is organised around a Matcher, which owns the tuning
// parameters and all per-registration state. A registration builds a voxel
// grid over the target cloud, then runs a Newton-style outer loop: evaluate
// score, gradient and Hessian of the NDT objective at the current pose,
// solve for a step direction, pick a step length with a More-Thuente line
// search, and update the pose until the step falls below the transformation
// epsilon or the iteration cap is hit.
//
// The numerical path (solver pivoting, covariance finalisation, angular
// derivative tables, line-search interval handling) is kept in lockstep with
// the recorded reference streams consumed by internal/bench; see the notes
// on individual functions before changing any of it.
package ndt
