package geom

import (
	"math"
	"sort"
)

// estimatedPointsPerCell sizes the initial grid allocation.
const estimatedPointsPerCell = 4

type cellKey struct {
	x, y, z int32
}

// VoxelIndex provides neighbor queries over a point set using a regular 3D
// grid. Cell size should approximately match the query radius for radius
// queries; k-nearest queries expand outward shell by shell, so any positive
// cell size is correct (a size near the median point spacing is fastest).
type VoxelIndex struct {
	cellSize float64
	points   []Vec3
	grid     map[cellKey][]int
	minKey   cellKey
	maxKey   cellKey
}

// NewVoxelIndex builds an index over points with the given cell size. The
// points slice is retained, not copied; it must not be mutated while the
// index is in use.
func NewVoxelIndex(points []Vec3, cellSize float64) *VoxelIndex {
	vi := &VoxelIndex{
		cellSize: cellSize,
		points:   points,
		grid:     make(map[cellKey][]int, len(points)/estimatedPointsPerCell+1),
	}
	for i, p := range points {
		k := vi.key(p)
		if len(vi.grid) == 0 {
			vi.minKey, vi.maxKey = k, k
		} else {
			vi.minKey = cellKey{min32(vi.minKey.x, k.x), min32(vi.minKey.y, k.y), min32(vi.minKey.z, k.z)}
			vi.maxKey = cellKey{max32(vi.maxKey.x, k.x), max32(vi.maxKey.y, k.y), max32(vi.maxKey.z, k.z)}
		}
		vi.grid[k] = append(vi.grid[k], i)
	}
	return vi
}

func (vi *VoxelIndex) key(p Vec3) cellKey {
	return cellKey{
		x: int32(math.Floor(p.X / vi.cellSize)),
		y: int32(math.Floor(p.Y / vi.cellSize)),
		z: int32(math.Floor(p.Z / vi.cellSize)),
	}
}

// Radius returns the indices of all points within radius of q, including q
// itself if q is an indexed point. Results are unordered.
func (vi *VoxelIndex) Radius(q Vec3, radius float64) []int {
	r2 := radius * radius
	span := int32(math.Ceil(radius/vi.cellSize)) + 1
	base := vi.key(q)

	var neighbors []int
	for dx := -span; dx <= span; dx++ {
		for dy := -span; dy <= span; dy++ {
			for dz := -span; dz <= span; dz++ {
				k := cellKey{base.x + dx, base.y + dy, base.z + dz}
				for _, idx := range vi.grid[k] {
					if vi.points[idx].DistSq(q) <= r2 {
						neighbors = append(neighbors, idx)
					}
				}
			}
		}
	}
	return neighbors
}

// neighbor pairs a point index with its squared distance to a query point.
type neighbor struct {
	idx    int
	distSq float64
}

// KNearest returns up to k points nearest to q, ordered by increasing
// distance. When exclude >= 0 the point at that index is omitted, which is
// how a point queries its own neighborhood.
func (vi *VoxelIndex) KNearest(q Vec3, k int, exclude int) []neighbor {
	if k <= 0 || len(vi.points) == 0 {
		return nil
	}

	base := vi.key(q)
	var found []neighbor

	// Expand shell by shell. Once k candidates are held, a shell whose
	// nearest possible face is farther than the current kth distance
	// cannot improve the result.
	maxShell := vi.maxShellSpan(base)
	for shell := int32(0); shell <= maxShell; shell++ {
		if len(found) >= k {
			kth := found[k-1].distSq
			minShellDist := float64(shell-1) * vi.cellSize
			if minShellDist > 0 && minShellDist*minShellDist > kth {
				break
			}
		}
		vi.scanShell(base, shell, q, exclude, &found)
		sort.Slice(found, func(i, j int) bool { return found[i].distSq < found[j].distSq })
	}

	if len(found) > k {
		found = found[:k]
	}
	return found
}

// scanShell visits every cell whose Chebyshev distance from base is exactly
// shell and appends in-range candidates to found.
func (vi *VoxelIndex) scanShell(base cellKey, shell int32, q Vec3, exclude int, found *[]neighbor) {
	visit := func(k cellKey) {
		for _, idx := range vi.grid[k] {
			if idx == exclude {
				continue
			}
			*found = append(*found, neighbor{idx: idx, distSq: vi.points[idx].DistSq(q)})
		}
	}

	if shell == 0 {
		visit(base)
		return
	}
	for dx := -shell; dx <= shell; dx++ {
		for dy := -shell; dy <= shell; dy++ {
			for dz := -shell; dz <= shell; dz++ {
				if maxAbs3(dx, dy, dz) != shell {
					continue
				}
				visit(cellKey{base.x + dx, base.y + dy, base.z + dz})
			}
		}
	}
}

// maxShellSpan bounds shell expansion by the occupied extent of the grid so
// queries terminate even when fewer than k points exist.
func (vi *VoxelIndex) maxShellSpan(base cellKey) int32 {
	span := maxAbs3(vi.minKey.x-base.x, vi.minKey.y-base.y, vi.minKey.z-base.z)
	return max32(span, maxAbs3(vi.maxKey.x-base.x, vi.maxKey.y-base.y, vi.maxKey.z-base.z))
}

func maxAbs3(a, b, c int32) int32 {
	m := abs32(a)
	m = max32(m, abs32(b))
	m = max32(m, abs32(c))
	return m
}

func abs32(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}

func max32(a, b int32) int32 {
	if a > b {
		return a
	}
	return b
}

func min32(a, b int32) int32 {
	if a < b {
		return a
	}
	return b
}
