package ndt

import (
	"fmt"
	"math"
)

// VoxelCell summarises the target points that fell into one grid cell: the
// number of points, their mean, and the inverse of their sample covariance.
// Cells never hold the points themselves.
type VoxelCell struct {
	// InvCovariance accumulates the sum of outer products during the first
	// build pass and is replaced by the inverted covariance in the second.
	// Unoccupied cells keep the anti-diagonal sentinel they were initialised
	// with, which is never consulted because the radius search filters by
	// distance from Mean.
	InvCovariance Mat33
	Mean          Vec3
	NumPoints     int32
}

// VoxelGrid is a dense axis-aligned grid of Gaussian summaries over a target
// cloud. It is built once per test case and read-only afterwards.
type VoxelGrid struct {
	cells      []VoxelCell
	minCorner  [3]float32
	maxCorner  [3]float32
	dims       [3]int
	resolution float32
}

func (g *VoxelGrid) linearAddr(x, y, z int) int {
	return x + g.dims[0]*(y+g.dims[1]*z)
}

// coordAddr discretises a coordinate to its cell address. The division
// truncates toward zero, same as the integer conversion the reference grid
// uses; the epsilon-expanded corners keep in-bounds coordinates positive.
func (g *VoxelGrid) coordAddr(x, y, z float32) int {
	ix := int((x - g.minCorner[0]) / g.resolution)
	iy := int((y - g.minCorner[1]) / g.resolution)
	iz := int((z - g.minCorner[2]) / g.resolution)
	return g.linearAddr(ix, iy, iz)
}

// Dims returns the cell counts along x, y and z.
func (g *VoxelGrid) Dims() (int, int, int) { return g.dims[0], g.dims[1], g.dims[2] }

// Bounds returns the epsilon-expanded min and max corners.
func (g *VoxelGrid) Bounds() (min, max [3]float32) { return g.minCorner, g.maxCorner }

// CellAt returns the cell containing (x, y, z), or nil when the coordinate
// is outside the grid.
func (g *VoxelGrid) CellAt(x, y, z float32) *VoxelCell {
	if x < g.minCorner[0] || x > g.maxCorner[0] ||
		y < g.minCorner[1] || y > g.maxCorner[1] ||
		z < g.minCorner[2] || z > g.maxCorner[2] {
		return nil
	}
	return &g.cells[g.coordAddr(x, y, z)]
}

// buildVoxelGrid constructs the Gaussian summary grid for target. The grid
// extent is the bounding box of the cloud expanded by eps on all sides so
// that transformed source points near the boundary still discretise into a
// valid cell.
//
// Covariance finalisation follows the recorded reference arithmetic: the
// single-pass expression divides by the total cell count (not the per-cell
// point count) and then rescales by (cellCount-1)/numPoints, and the outer
// product sums start from the anti-diagonal sentinel the accumulator is
// initialised with. Both are required for output parity.
func buildVoxelGrid(target PointCloud, resolution float32, eps float64) (*VoxelGrid, error) {
	if len(target) == 0 {
		return nil, fmt.Errorf("voxel grid: empty target cloud")
	}

	minV := target[0]
	maxV := target[0]
	for i := 1; i < len(target); i++ {
		for k := 0; k < 3; k++ {
			if target[i][k] > maxV[k] {
				maxV[k] = target[i][k]
			}
			if target[i][k] < minV[k] {
				minV[k] = target[i][k]
			}
		}
	}

	g := &VoxelGrid{resolution: resolution}
	for k := 0; k < 3; k++ {
		g.minCorner[k] = float32(float64(minV[k]) - eps)
		g.maxCorner[k] = float32(float64(maxV[k]) + eps)
		g.dims[k] = int((g.maxCorner[k]-g.minCorner[k])/resolution + 1)
	}

	cellCount := g.dims[0] * g.dims[1] * g.dims[2]
	g.cells = make([]VoxelCell, cellCount)
	for i := range g.cells {
		g.cells[i].InvCovariance = Mat33{
			{0, 0, 1},
			{0, 1, 0},
			{1, 0, 0},
		}
	}

	// First pass: scatter points into cells, accumulating the coordinate sum
	// in Mean and the outer-product sum in the InvCovariance slot.
	for i := range target {
		p := target[i]
		cell := &g.cells[g.coordAddr(p[0], p[1], p[2])]
		cell.Mean[0] += float64(p[0])
		cell.Mean[1] += float64(p[1])
		cell.Mean[2] += float64(p[2])
		cell.NumPoints++
		for r := 0; r < 3; r++ {
			for c := 0; c < 3; c++ {
				cell.InvCovariance[r][c] += float64(p[r] * p[c])
			}
		}
	}

	// Second pass: finalise occupied cells. Unoccupied cells keep the zero
	// mean and the sentinel, so they are transparent to the radius search.
	for i := range g.cells {
		cell := &g.cells[i]
		if cell.NumPoints == 0 {
			continue
		}
		pointSum := cell.Mean
		n := float64(cell.NumPoints)
		cell.Mean[0] /= n
		cell.Mean[1] /= n
		cell.Mean[2] /= n
		for r := 0; r < 3; r++ {
			for c := 0; c < 3; c++ {
				cov := (cell.InvCovariance[r][c]-2*(pointSum[r]*cell.Mean[c]))/float64(cellCount) +
					cell.Mean[r]*cell.Mean[c]
				cell.InvCovariance[r][c] = cov * (float64(cellCount) - 1.0) / n
			}
		}
		invert3(&cell.InvCovariance)
	}

	return g, nil
}

// radiusSearch appends to buf every cell whose mean lies within radius of p
// and returns the extended slice. Candidates are enumerated by stepping the
// bounding box of the radius at grid resolution, so the candidate count is
// constant (27 for radius == resolution). No ordering is guaranteed.
func (g *VoxelGrid) radiusSearch(p PointXYZI, radius float64, buf []*VoxelCell) []*VoxelCell {
	buf = buf[:0]
	for x := float32(float64(p[0]) - radius); float64(x) <= float64(p[0])+radius; x += g.resolution {
		for y := float32(float64(p[1]) - radius); float64(y) <= float64(p[1])+radius; y += g.resolution {
			for z := float32(float64(p[2]) - radius); float64(z) <= float64(p[2])+radius; z += g.resolution {
				if x < g.minCorner[0] || x > g.maxCorner[0] ||
					y < g.minCorner[1] || y > g.maxCorner[1] ||
					z < g.minCorner[2] || z > g.maxCorner[2] {
					continue
				}
				cell := &g.cells[g.coordAddr(x, y, z)]
				dx := float32(cell.Mean[0] - float64(p[0]))
				dy := float32(cell.Mean[1] - float64(p[1]))
				dz := float32(cell.Mean[2] - float64(p[2]))
				dist := float32(math.Sqrt(float64(dx*dx + dy*dy + dz*dz)))
				if float64(dist) < radius {
					buf = append(buf, cell)
				}
			}
		}
	}
	return buf
}
