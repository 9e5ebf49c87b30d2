// Package geom implements the point-cloud and triangle-mesh operations used
// by the cleanup pipeline: outlier removal, normal estimation, implicit
// surface reconstruction, and mesh repair.
package geom

import "math"

// Vec3 is a point or direction in 3D Cartesian space (meters).
type Vec3 struct {
	X, Y, Z float64
}

// Add returns v + w.
func (v Vec3) Add(w Vec3) Vec3 { return Vec3{v.X + w.X, v.Y + w.Y, v.Z + w.Z} }

// Sub returns v - w.
func (v Vec3) Sub(w Vec3) Vec3 { return Vec3{v.X - w.X, v.Y - w.Y, v.Z - w.Z} }

// Scale returns v scaled by s.
func (v Vec3) Scale(s float64) Vec3 { return Vec3{v.X * s, v.Y * s, v.Z * s} }

// Dot returns the dot product of v and w.
func (v Vec3) Dot(w Vec3) float64 { return v.X*w.X + v.Y*w.Y + v.Z*w.Z }

// Cross returns the cross product of v and w.
func (v Vec3) Cross(w Vec3) Vec3 {
	return Vec3{
		v.Y*w.Z - v.Z*w.Y,
		v.Z*w.X - v.X*w.Z,
		v.X*w.Y - v.Y*w.X,
	}
}

// Norm returns the Euclidean length of v.
func (v Vec3) Norm() float64 { return math.Sqrt(v.Dot(v)) }

// Normalize returns v scaled to unit length. The zero vector is returned
// unchanged.
func (v Vec3) Normalize() Vec3 {
	n := v.Norm()
	if n == 0 {
		return v
	}
	return v.Scale(1 / n)
}

// DistSq returns the squared distance between v and w.
func (v Vec3) DistSq(w Vec3) float64 {
	dx := v.X - w.X
	dy := v.Y - w.Y
	dz := v.Z - w.Z
	return dx*dx + dy*dy + dz*dz
}

// PointCloud is an in-memory set of 3D points with optional per-point color
// and normal attributes. Attribute slices are either empty or the same length
// as Points. A PointCloud is owned by a single request and mutated in place
// by the cleaning stages.
type PointCloud struct {
	Points  []Vec3
	Colors  []Vec3 // RGB in [0,1]
	Normals []Vec3
}

// Len returns the number of points.
func (pc *PointCloud) Len() int { return len(pc.Points) }

// HasColors reports whether per-point colors are present.
func (pc *PointCloud) HasColors() bool { return len(pc.Colors) == len(pc.Points) && len(pc.Points) > 0 }

// HasNormals reports whether per-point normals are present.
func (pc *PointCloud) HasNormals() bool {
	return len(pc.Normals) == len(pc.Points) && len(pc.Points) > 0
}

// Select returns a new PointCloud containing the points at the given indices,
// carrying attributes along. Indices must be valid and are kept in order.
func (pc *PointCloud) Select(indices []int) *PointCloud {
	out := &PointCloud{Points: make([]Vec3, len(indices))}
	if pc.HasColors() {
		out.Colors = make([]Vec3, len(indices))
	}
	if pc.HasNormals() {
		out.Normals = make([]Vec3, len(indices))
	}
	for i, idx := range indices {
		out.Points[i] = pc.Points[idx]
		if out.Colors != nil {
			out.Colors[i] = pc.Colors[idx]
		}
		if out.Normals != nil {
			out.Normals[i] = pc.Normals[idx]
		}
	}
	return out
}

// Bounds returns the axis-aligned bounding box of the cloud. Calling Bounds
// on an empty cloud returns zero vectors.
func (pc *PointCloud) Bounds() (min, max Vec3) {
	if len(pc.Points) == 0 {
		return Vec3{}, Vec3{}
	}
	min = pc.Points[0]
	max = pc.Points[0]
	for _, p := range pc.Points[1:] {
		min.X = math.Min(min.X, p.X)
		min.Y = math.Min(min.Y, p.Y)
		min.Z = math.Min(min.Z, p.Z)
		max.X = math.Max(max.X, p.X)
		max.Y = math.Max(max.Y, p.Y)
		max.Z = math.Max(max.Z, p.Z)
	}
	return min, max
}

// TriangleMesh is an in-memory triangle mesh. Triangles index into Vertices.
// Normals, when present, are per-vertex.
type TriangleMesh struct {
	Vertices  []Vec3
	Triangles [][3]int
	Normals   []Vec3
}

// VertexCount returns the number of vertices.
func (m *TriangleMesh) VertexCount() int { return len(m.Vertices) }

// TriangleCount returns the number of triangles.
func (m *TriangleMesh) TriangleCount() int { return len(m.Triangles) }

// HasNormals reports whether per-vertex normals are present.
func (m *TriangleMesh) HasNormals() bool {
	return len(m.Normals) == len(m.Vertices) && len(m.Vertices) > 0
}
