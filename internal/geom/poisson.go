package geom

import (
	"errors"
	"math"
)

// ErrNoNormals is returned when reconstruction is attempted on a cloud
// without oriented normals.
var ErrNoNormals = errors.New("geom: point cloud has no normals")

// implicitField is the signed scalar field fitted to an oriented point
// cloud: at x, the support-weighted average of the point-plane distances
// n_i · (x - p_i) over nearby samples. Its zero level set approximates the
// scanned surface; the accumulated kernel weight doubles as a confidence
// ("density") measure.
type implicitField struct {
	points  []Vec3
	normals []Vec3
	index   *VoxelIndex
	h       float64 // kernel bandwidth
}

func newImplicitField(pc *PointCloud, h float64) *implicitField {
	return &implicitField{
		points:  pc.Points,
		normals: pc.Normals,
		index:   NewVoxelIndex(pc.Points, h),
		h:       h,
	}
}

// eval returns the field value and the kernel support at x. Samples with no
// points inside the kernel radius are reported as outside with zero support.
func (f *implicitField) eval(x Vec3) (value, support float64) {
	nbrs := f.index.Radius(x, 2*f.h)
	if len(nbrs) == 0 {
		return f.h, 0
	}
	invH2 := 1 / (f.h * f.h)
	var wsum, vsum float64
	for _, idx := range nbrs {
		d2 := f.points[idx].DistSq(x)
		w := math.Exp(-d2 * invH2)
		wsum += w
		vsum += w * f.normals[idx].Dot(x.Sub(f.points[idx]))
	}
	if wsum == 0 {
		return f.h, 0
	}
	return vsum / wsum, wsum
}

// ReconstructPoisson builds a triangle mesh from an oriented point cloud by
// sampling the implicit field on a uniform grid over the scale-expanded
// bounding box and triangulating its zero level set with marching
// tetrahedra. The grid resolution is min(2^depth, maxGridRes) per axis; the
// octree-depth parameter keeps the Open3D-compatible meaning while bounding
// memory on a dense grid.
//
// Returns the mesh and a per-vertex density (kernel support) used by the
// caller for low-confidence vertex filtering.
func ReconstructPoisson(pc *PointCloud, depth int, scale float64, maxGridRes int) (*TriangleMesh, []float64, error) {
	if pc.Len() == 0 {
		return nil, nil, errors.New("geom: empty point cloud")
	}
	if !pc.HasNormals() {
		return nil, nil, ErrNoNormals
	}
	if depth < 1 {
		depth = 1
	}
	res := 1 << uint(depth)
	if maxGridRes > 0 && res > maxGridRes {
		res = maxGridRes
	}
	if res < 8 {
		res = 8
	}

	bmin, bmax := pc.Bounds()
	center := bmin.Add(bmax).Scale(0.5)
	half := bmax.Sub(bmin).Scale(0.5 * scale)
	// Degenerate extents (flat scans) still need a 3D sampling volume.
	minHalf := math.Max(half.X, math.Max(half.Y, half.Z)) * 0.05
	if minHalf == 0 {
		return nil, nil, errors.New("geom: point cloud has zero extent")
	}
	half.X = math.Max(half.X, minHalf)
	half.Y = math.Max(half.Y, minHalf)
	half.Z = math.Max(half.Z, minHalf)
	origin := center.Sub(half)
	step := Vec3{2 * half.X / float64(res), 2 * half.Y / float64(res), 2 * half.Z / float64(res)}

	voxel := math.Max(step.X, math.Max(step.Y, step.Z))
	field := newImplicitField(pc, 2.5*voxel)

	// Sample the field at every grid node.
	n1 := res + 1
	values := make([]float64, n1*n1*n1)
	supported := make([]bool, n1*n1*n1)
	nodeID := func(i, j, k int) int { return i + n1*(j+n1*k) }
	nodePos := func(i, j, k int) Vec3 {
		return Vec3{
			origin.X + float64(i)*step.X,
			origin.Y + float64(j)*step.Y,
			origin.Z + float64(k)*step.Z,
		}
	}
	for k := 0; k < n1; k++ {
		for j := 0; j < n1; j++ {
			for i := 0; i < n1; i++ {
				id := nodeID(i, j, k)
				v, s := field.eval(nodePos(i, j, k))
				values[id] = v
				supported[id] = s > 0
			}
		}
	}
	classifyUnsupported(n1, values, supported, field.h)

	mesh := marchTetrahedra(res, values, nodeID, nodePos)

	densities := make([]float64, len(mesh.Vertices))
	for i, v := range mesh.Vertices {
		_, densities[i] = field.eval(v)
	}
	return mesh, densities, nil
}

// classifyUnsupported assigns a sign to grid nodes the kernel never reached.
// Unsupported nodes connected to the grid boundary are exterior space and
// keep their positive value; unsupported pockets sealed off by the supported
// shell are the interior of a closed scan and must read negative, or the
// extraction would hallucinate a second surface just inside the real one.
func classifyUnsupported(n1 int, values []float64, supported []bool, h float64) {
	outside := make([]bool, len(values))
	queue := make([]int, 0, n1*n1*6)
	id := func(i, j, k int) int { return i + n1*(j+n1*k) }

	enqueue := func(idx int) {
		if !supported[idx] && !outside[idx] {
			outside[idx] = true
			queue = append(queue, idx)
		}
	}
	for a := 0; a < n1; a++ {
		for b := 0; b < n1; b++ {
			enqueue(id(a, b, 0))
			enqueue(id(a, b, n1-1))
			enqueue(id(a, 0, b))
			enqueue(id(a, n1-1, b))
			enqueue(id(0, a, b))
			enqueue(id(n1-1, a, b))
		}
	}

	for len(queue) > 0 {
		idx := queue[0]
		queue = queue[1:]
		i := idx % n1
		j := (idx / n1) % n1
		k := idx / (n1 * n1)
		if i > 0 {
			enqueue(idx - 1)
		}
		if i < n1-1 {
			enqueue(idx + 1)
		}
		if j > 0 {
			enqueue(idx - n1)
		}
		if j < n1-1 {
			enqueue(idx + n1)
		}
		if k > 0 {
			enqueue(idx - n1*n1)
		}
		if k < n1-1 {
			enqueue(idx + n1*n1)
		}
	}

	for idx := range values {
		if !supported[idx] && !outside[idx] {
			values[idx] = -h
		}
	}
}

// cubeTets is the six-tetrahedron decomposition of a unit cube around its
// main diagonal (corner 0 to corner 6). Corner numbering:
//
//	0:(0,0,0) 1:(1,0,0) 2:(1,1,0) 3:(0,1,0)
//	4:(0,0,1) 5:(1,0,1) 6:(1,1,1) 7:(0,1,1)
var cubeTets = [6][4]int{
	{0, 1, 2, 6},
	{0, 2, 3, 6},
	{0, 3, 7, 6},
	{0, 7, 4, 6},
	{0, 4, 5, 6},
	{0, 5, 1, 6},
}

var cubeCornerOffsets = [8][3]int{
	{0, 0, 0}, {1, 0, 0}, {1, 1, 0}, {0, 1, 0},
	{0, 0, 1}, {1, 0, 1}, {1, 1, 1}, {0, 1, 1},
}

// marchTetrahedra extracts the zero level set of the sampled field. Vertices
// on shared grid edges are deduplicated so the output mesh is connected.
func marchTetrahedra(res int, values []float64, nodeID func(i, j, k int) int, nodePos func(i, j, k int) Vec3) *TriangleMesh {
	mesh := &TriangleMesh{}
	edgeVerts := make(map[[2]int]int)

	// vertexOnEdge interpolates the zero crossing between grid nodes a and b.
	vertexOnEdge := func(a, b int, pa, pb Vec3) int {
		key := [2]int{a, b}
		if a > b {
			key = [2]int{b, a}
			pa, pb = pb, pa
			a, b = b, a
		}
		if idx, ok := edgeVerts[key]; ok {
			return idx
		}
		va, vb := values[a], values[b]
		t := 0.5
		if va != vb {
			t = va / (va - vb)
		}
		p := pa.Add(pb.Sub(pa).Scale(t))
		idx := len(mesh.Vertices)
		mesh.Vertices = append(mesh.Vertices, p)
		edgeVerts[key] = idx
		return idx
	}

	var ids [8]int
	var pos [8]Vec3
	for k := 0; k < res; k++ {
		for j := 0; j < res; j++ {
			for i := 0; i < res; i++ {
				for c, off := range cubeCornerOffsets {
					ci, cj, ck := i+off[0], j+off[1], k+off[2]
					ids[c] = nodeID(ci, cj, ck)
					pos[c] = nodePos(ci, cj, ck)
				}
				for _, tet := range cubeTets {
					marchOneTet(mesh, values, ids, pos, tet, vertexOnEdge)
				}
			}
		}
	}
	return mesh
}

// marchOneTet emits the triangles for one tetrahedron of a grid cube.
func marchOneTet(mesh *TriangleMesh, values []float64, ids [8]int, pos [8]Vec3, tet [4]int, vertexOnEdge func(a, b int, pa, pb Vec3) int) {
	var inside, outside [4]int
	ni, no := 0, 0
	for _, c := range tet {
		if values[ids[c]] < 0 {
			inside[ni] = c
			ni++
		} else {
			outside[no] = c
			no++
		}
	}

	edge := func(a, b int) int {
		return vertexOnEdge(ids[a], ids[b], pos[a], pos[b])
	}

	switch ni {
	case 1:
		a := inside[0]
		mesh.Triangles = append(mesh.Triangles, [3]int{
			edge(a, outside[0]), edge(a, outside[1]), edge(a, outside[2]),
		})
	case 3:
		a := outside[0]
		mesh.Triangles = append(mesh.Triangles, [3]int{
			edge(a, inside[0]), edge(a, inside[1]), edge(a, inside[2]),
		})
	case 2:
		a, b := inside[0], inside[1]
		c, d := outside[0], outside[1]
		vac := edge(a, c)
		vad := edge(a, d)
		vbc := edge(b, c)
		vbd := edge(b, d)
		mesh.Triangles = append(mesh.Triangles,
			[3]int{vac, vad, vbd},
			[3]int{vac, vbd, vbc},
		)
	}
}
