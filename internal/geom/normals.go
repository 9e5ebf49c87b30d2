package geom

import (
	"sort"

	"gonum.org/v1/gonum/mat"
)

// EstimateNormals computes a unit normal per point from the covariance of a
// hybrid neighborhood: all points within radius, capped at the maxNN nearest.
// The normal is the eigenvector of the smallest covariance eigenvalue.
// Orientation is arbitrary; see OrientNormalsConsistent.
func EstimateNormals(pc *PointCloud, radius float64, maxNN int) {
	n := pc.Len()
	pc.Normals = make([]Vec3, n)
	if n == 0 {
		return
	}

	vi := NewVoxelIndex(pc.Points, radius)
	for i, p := range pc.Points {
		nbrs := vi.Radius(p, radius)
		if len(nbrs) > maxNN {
			sort.Slice(nbrs, func(a, b int) bool {
				return pc.Points[nbrs[a]].DistSq(p) < pc.Points[nbrs[b]].DistSq(p)
			})
			nbrs = nbrs[:maxNN]
		}
		pc.Normals[i] = planeNormal(pc.Points, nbrs)
	}
}

// planeNormal fits a plane to the given points by PCA and returns its unit
// normal. Degenerate neighborhoods (fewer than three points, or a rank
// deficient covariance) fall back to +Z.
func planeNormal(points []Vec3, indices []int) Vec3 {
	fallback := Vec3{Z: 1}
	if len(indices) < 3 {
		return fallback
	}

	var centroid Vec3
	for _, idx := range indices {
		centroid = centroid.Add(points[idx])
	}
	centroid = centroid.Scale(1 / float64(len(indices)))

	var cov [9]float64
	for _, idx := range indices {
		d := points[idx].Sub(centroid)
		cov[0] += d.X * d.X
		cov[1] += d.X * d.Y
		cov[2] += d.X * d.Z
		cov[4] += d.Y * d.Y
		cov[5] += d.Y * d.Z
		cov[8] += d.Z * d.Z
	}
	cov[3], cov[6], cov[7] = cov[1], cov[2], cov[5]

	var eig mat.EigenSym
	if ok := eig.Factorize(mat.NewSymDense(3, cov[:]), true); !ok {
		return fallback
	}
	var vecs mat.Dense
	eig.VectorsTo(&vecs)

	// Eigenvalues come back in ascending order; the smallest one's
	// eigenvector is the plane normal.
	normal := Vec3{vecs.At(0, 0), vecs.At(1, 0), vecs.At(2, 0)}.Normalize()
	if normal.Norm() == 0 {
		return fallback
	}
	return normal
}

// OrientNormalsConsistent flips normals so that neighboring points agree on
// orientation, propagating over the k-nearest-neighbor graph from the highest
// point of each connected component (whose normal is seeded toward +Z, the
// camera side for depth scans). Requires normals to be present.
func OrientNormalsConsistent(pc *PointCloud, k int) {
	n := pc.Len()
	if n == 0 || !pc.HasNormals() || k <= 0 {
		return
	}

	vi := NewVoxelIndex(pc.Points, autoCellSize(pc))
	adj := make([][]int, n)
	for i, p := range pc.Points {
		nbrs := vi.KNearest(p, k, i)
		adj[i] = make([]int, len(nbrs))
		for j, nb := range nbrs {
			adj[i][j] = nb.idx
		}
	}

	visited := make([]bool, n)
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	// Seed components from the top of the scan downward.
	sort.Slice(order, func(a, b int) bool { return pc.Points[order[a]].Z > pc.Points[order[b]].Z })

	queue := make([]int, 0, n)
	for _, seed := range order {
		if visited[seed] {
			continue
		}
		if pc.Normals[seed].Z < 0 {
			pc.Normals[seed] = pc.Normals[seed].Scale(-1)
		}
		visited[seed] = true
		queue = append(queue[:0], seed)

		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			for _, nb := range adj[cur] {
				if visited[nb] {
					continue
				}
				if pc.Normals[nb].Dot(pc.Normals[cur]) < 0 {
					pc.Normals[nb] = pc.Normals[nb].Scale(-1)
				}
				visited[nb] = true
				queue = append(queue, nb)
			}
		}
	}
}
