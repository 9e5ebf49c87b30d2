package geom

import "sort"

// RemoveVerticesByMask deletes every vertex whose mask entry is true,
// remapping triangle indices and dropping triangles that referenced a
// deleted vertex. Used for reconstruction-confidence filtering.
func RemoveVerticesByMask(m *TriangleMesh, mask []bool) {
	if len(mask) != len(m.Vertices) {
		return
	}
	remap := make([]int, len(m.Vertices))
	kept := 0
	for i := range m.Vertices {
		if mask[i] {
			remap[i] = -1
			continue
		}
		remap[i] = kept
		m.Vertices[kept] = m.Vertices[i]
		if m.HasNormals() {
			m.Normals[kept] = m.Normals[i]
		}
		kept++
	}
	m.Vertices = m.Vertices[:kept]
	if m.Normals != nil {
		m.Normals = m.Normals[:min(kept, len(m.Normals))]
	}

	out := m.Triangles[:0]
	for _, t := range m.Triangles {
		a, b, c := remap[t[0]], remap[t[1]], remap[t[2]]
		if a < 0 || b < 0 || c < 0 {
			continue
		}
		out = append(out, [3]int{a, b, c})
	}
	m.Triangles = out
}

// RemoveDegenerateTriangles drops triangles that reference the same vertex
// more than once.
func RemoveDegenerateTriangles(m *TriangleMesh) {
	out := m.Triangles[:0]
	for _, t := range m.Triangles {
		if t[0] == t[1] || t[1] == t[2] || t[0] == t[2] {
			continue
		}
		out = append(out, t)
	}
	m.Triangles = out
}

// RemoveDuplicatedTriangles drops triangles that cover the same vertex
// triple as an earlier triangle, regardless of winding.
func RemoveDuplicatedTriangles(m *TriangleMesh) {
	seen := make(map[[3]int]struct{}, len(m.Triangles))
	out := m.Triangles[:0]
	for _, t := range m.Triangles {
		key := t
		sort.Ints(key[:])
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, t)
	}
	m.Triangles = out
}

// RemoveDuplicatedVertices merges vertices with identical coordinates,
// rewriting triangle indices to the first occurrence.
func RemoveDuplicatedVertices(m *TriangleMesh) {
	first := make(map[Vec3]int, len(m.Vertices))
	remap := make([]int, len(m.Vertices))
	kept := 0
	for i, v := range m.Vertices {
		if j, dup := first[v]; dup {
			remap[i] = j
			continue
		}
		first[v] = kept
		remap[i] = kept
		m.Vertices[kept] = v
		if m.HasNormals() {
			m.Normals[kept] = m.Normals[i]
		}
		kept++
	}
	m.Vertices = m.Vertices[:kept]
	if m.Normals != nil {
		m.Normals = m.Normals[:min(kept, len(m.Normals))]
	}
	for i, t := range m.Triangles {
		m.Triangles[i] = [3]int{remap[t[0]], remap[t[1]], remap[t[2]]}
	}
}

type meshEdge struct {
	a, b int
}

func edgeOf(a, b int) meshEdge {
	if a > b {
		a, b = b, a
	}
	return meshEdge{a, b}
}

// RemoveNonManifoldEdges removes triangles until every edge is shared by at
// most two triangles. For each over-shared edge the two lowest-indexed
// incident triangles are kept. Runs to a fixed point, so re-running on a
// clean mesh is a no-op.
func RemoveNonManifoldEdges(m *TriangleMesh) {
	alive := make([]bool, len(m.Triangles))
	for i := range alive {
		alive[i] = true
	}

	for {
		edges := make(map[meshEdge][]int)
		for i, t := range m.Triangles {
			if !alive[i] {
				continue
			}
			edges[edgeOf(t[0], t[1])] = append(edges[edgeOf(t[0], t[1])], i)
			edges[edgeOf(t[1], t[2])] = append(edges[edgeOf(t[1], t[2])], i)
			edges[edgeOf(t[0], t[2])] = append(edges[edgeOf(t[0], t[2])], i)
		}
		removed := false
		for _, tris := range edges {
			if len(tris) <= 2 {
				continue
			}
			sort.Ints(tris)
			for _, ti := range tris[2:] {
				if alive[ti] {
					alive[ti] = false
					removed = true
				}
			}
		}
		if !removed {
			break
		}
	}

	out := m.Triangles[:0]
	for i, t := range m.Triangles {
		if alive[i] {
			out = append(out, t)
		}
	}
	m.Triangles = out
}

// SmoothSimple applies the given number of neighbor-averaging smoothing
// iterations: each vertex moves to the mean of itself and its connected
// neighbors. The mesh is mutated and returned.
func SmoothSimple(m *TriangleMesh, iterations int) *TriangleMesh {
	if iterations <= 0 || len(m.Vertices) == 0 {
		return m
	}

	adj := vertexAdjacency(m)
	cur := m.Vertices
	next := make([]Vec3, len(cur))
	for it := 0; it < iterations; it++ {
		for i, v := range cur {
			sum := v
			for _, nb := range adj[i] {
				sum = sum.Add(cur[nb])
			}
			next[i] = sum.Scale(1 / float64(1+len(adj[i])))
		}
		cur, next = next, cur
	}
	m.Vertices = cur
	return m
}

// vertexAdjacency builds the unique-neighbor list per vertex from triangle
// connectivity.
func vertexAdjacency(m *TriangleMesh) [][]int {
	adj := make([][]int, len(m.Vertices))
	seen := make(map[meshEdge]struct{}, 3*len(m.Triangles))
	link := func(a, b int) {
		e := edgeOf(a, b)
		if _, ok := seen[e]; ok {
			return
		}
		seen[e] = struct{}{}
		adj[a] = append(adj[a], b)
		adj[b] = append(adj[b], a)
	}
	for _, t := range m.Triangles {
		link(t[0], t[1])
		link(t[1], t[2])
		link(t[0], t[2])
	}
	return adj
}

// FillSmallHoles closes boundary loops of at most maxEdges edges with a
// centroid fan. Larger holes are deliberately left open rather than
// synthesizing unsupported geometry. Loops through vertices with more than
// two boundary edges are skipped as ambiguous.
func FillSmallHoles(m *TriangleMesh, maxEdges int) {
	if maxEdges < 3 {
		return
	}

	counts := make(map[meshEdge]int, 3*len(m.Triangles))
	for _, t := range m.Triangles {
		counts[edgeOf(t[0], t[1])]++
		counts[edgeOf(t[1], t[2])]++
		counts[edgeOf(t[0], t[2])]++
	}

	boundary := make(map[int][]int) // vertex -> boundary-adjacent vertices
	for e, c := range counts {
		if c == 1 {
			boundary[e.a] = append(boundary[e.a], e.b)
			boundary[e.b] = append(boundary[e.b], e.a)
		}
	}

	// Deterministic traversal order.
	starts := make([]int, 0, len(boundary))
	for v := range boundary {
		starts = append(starts, v)
	}
	sort.Ints(starts)
	for v := range boundary {
		sort.Ints(boundary[v])
	}

	used := make(map[meshEdge]struct{})
	for _, start := range starts {
		if len(boundary[start]) != 2 {
			continue
		}
		loop, ok := traceLoop(start, boundary, used)
		if !ok || len(loop) < 3 || len(loop) > maxEdges {
			continue
		}

		var centroid Vec3
		for _, v := range loop {
			centroid = centroid.Add(m.Vertices[v])
		}
		centroid = centroid.Scale(1 / float64(len(loop)))
		ci := len(m.Vertices)
		m.Vertices = append(m.Vertices, centroid)
		if m.HasNormals() {
			var n Vec3
			for _, v := range loop {
				n = n.Add(m.Normals[v])
			}
			m.Normals = append(m.Normals, n.Normalize())
		}
		for i, v := range loop {
			w := loop[(i+1)%len(loop)]
			m.Triangles = append(m.Triangles, [3]int{v, w, ci})
		}
	}
}

// traceLoop walks boundary edges from start until it returns to start.
// It fails on open chains and on vertices with branching boundary edges.
func traceLoop(start int, boundary map[int][]int, used map[meshEdge]struct{}) ([]int, bool) {
	if _, ok := used[edgeOf(start, boundary[start][0])]; ok {
		return nil, false
	}

	loop := []int{start}
	prev, cur := start, boundary[start][0]
	for cur != start {
		if len(boundary[cur]) != 2 {
			return nil, false
		}
		loop = append(loop, cur)
		if len(loop) > len(boundary)+1 {
			return nil, false
		}
		next := boundary[cur][0]
		if next == prev {
			next = boundary[cur][1]
		}
		prev, cur = cur, next
	}
	for i, v := range loop {
		used[edgeOf(v, loop[(i+1)%len(loop)])] = struct{}{}
	}
	return loop, true
}

// ComputeVertexNormals recomputes per-vertex normals as the normalized sum
// of incident triangle face normals.
func ComputeVertexNormals(m *TriangleMesh) {
	m.Normals = make([]Vec3, len(m.Vertices))
	for _, t := range m.Triangles {
		a, b, c := m.Vertices[t[0]], m.Vertices[t[1]], m.Vertices[t[2]]
		fn := b.Sub(a).Cross(c.Sub(a))
		m.Normals[t[0]] = m.Normals[t[0]].Add(fn)
		m.Normals[t[1]] = m.Normals[t[1]].Add(fn)
		m.Normals[t[2]] = m.Normals[t[2]].Add(fn)
	}
	for i := range m.Normals {
		m.Normals[i] = m.Normals[i].Normalize()
	}
}
