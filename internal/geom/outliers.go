package geom

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// autoCellSize picks a grid cell size for k-nearest queries when no natural
// radius exists: roughly the mean point spacing assuming a uniform fill of
// the bounding box.
func autoCellSize(pc *PointCloud) float64 {
	min, max := pc.Bounds()
	diag := max.Sub(min).Norm()
	if diag == 0 || pc.Len() == 0 {
		return 1.0
	}
	size := diag / math.Cbrt(float64(pc.Len()))
	if size <= 0 {
		return 1.0
	}
	return size
}

// RemoveDuplicatedPoints returns a cloud with exact-coordinate duplicates
// removed, keeping the first occurrence of each position. Depth cameras emit
// duplicate samples when the sensor saturates; collapsing them first keeps
// the outlier statistics honest.
func RemoveDuplicatedPoints(pc *PointCloud) *PointCloud {
	seen := make(map[Vec3]struct{}, pc.Len())
	keep := make([]int, 0, pc.Len())
	for i, p := range pc.Points {
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		keep = append(keep, i)
	}
	if len(keep) == pc.Len() {
		return pc
	}
	return pc.Select(keep)
}

// MeanNeighborDistances returns, per point, the mean distance to its
// nbNeighbors nearest neighbors. Points with no neighbors at all (a
// single-point cloud) report zero.
func MeanNeighborDistances(pc *PointCloud, nbNeighbors int) []float64 {
	meanDists := make([]float64, pc.Len())
	if pc.Len() == 0 || nbNeighbors <= 0 {
		return meanDists
	}
	vi := NewVoxelIndex(pc.Points, autoCellSize(pc))
	for i, p := range pc.Points {
		nbrs := vi.KNearest(p, nbNeighbors, i)
		if len(nbrs) == 0 {
			continue
		}
		var sum float64
		for _, nb := range nbrs {
			sum += math.Sqrt(nb.distSq)
		}
		meanDists[i] = sum / float64(len(nbrs))
	}
	return meanDists
}

// RemoveStatisticalOutliers drops points whose mean distance to their
// nbNeighbors nearest neighbors exceeds mean + stdRatio*stddev of the
// cloud-wide mean-distance distribution.
func RemoveStatisticalOutliers(pc *PointCloud, nbNeighbors int, stdRatio float64) *PointCloud {
	n := pc.Len()
	if n == 0 || nbNeighbors <= 0 {
		return pc
	}

	meanDists := MeanNeighborDistances(pc, nbNeighbors)
	mean, std := stat.MeanStdDev(meanDists, nil)
	if math.IsNaN(std) {
		std = 0
	}
	threshold := mean + stdRatio*std

	keep := make([]int, 0, n)
	for i, d := range meanDists {
		if d <= threshold {
			keep = append(keep, i)
		}
	}
	if len(keep) == n {
		return pc
	}
	return pc.Select(keep)
}

// RemoveRadiusOutliers drops points with fewer than minPoints neighbors
// (counting the point itself) within the given radius.
func RemoveRadiusOutliers(pc *PointCloud, minPoints int, radius float64) *PointCloud {
	n := pc.Len()
	if n == 0 || minPoints <= 0 || radius <= 0 {
		return pc
	}

	vi := NewVoxelIndex(pc.Points, radius)
	keep := make([]int, 0, n)
	for i, p := range pc.Points {
		if len(vi.Radius(p, radius)) >= minPoints {
			keep = append(keep, i)
		}
	}
	if len(keep) == n {
		return pc
	}
	return pc.Select(keep)
}
