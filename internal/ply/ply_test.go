package ply

import (
	"bytes"
	"math"
	"strings"
	"testing"

	"github.com/banshee-data/meshcleanup/internal/geom"
)

const asciiCloud = `ply
format ascii 1.0
comment test fixture
element vertex 3
property float x
property float y
property float z
property uchar red
property uchar green
property uchar blue
end_header
0 0 0 255 0 0
1 0 0 0 255 0
0 1 0.5 0 0 255
`

func TestReadPointCloudASCII(t *testing.T) {
	pc, err := ReadPointCloud(strings.NewReader(asciiCloud))
	if err != nil {
		t.Fatalf("ReadPointCloud: %v", err)
	}
	if pc.Len() != 3 {
		t.Fatalf("expected 3 points, got %d", pc.Len())
	}
	if pc.Points[2] != (geom.Vec3{X: 0, Y: 1, Z: 0.5}) {
		t.Fatalf("unexpected point: %v", pc.Points[2])
	}
	if !pc.HasColors() {
		t.Fatal("expected colors")
	}
	// uchar colors scale to 0..1.
	if pc.Colors[0] != (geom.Vec3{X: 1, Y: 0, Z: 0}) {
		t.Fatalf("unexpected color: %v", pc.Colors[0])
	}
	if pc.HasNormals() {
		t.Fatal("unexpected normals")
	}
}

func TestReadMeshASCIIQuadFanTriangulates(t *testing.T) {
	src := `ply
format ascii 1.0
element vertex 4
property float x
property float y
property float z
element face 1
property list uchar int vertex_indices
end_header
0 0 0
1 0 0
1 1 0
0 1 0
4 0 1 2 3
`
	m, err := ReadMesh(strings.NewReader(src))
	if err != nil {
		t.Fatalf("ReadMesh: %v", err)
	}
	if m.VertexCount() != 4 {
		t.Fatalf("expected 4 vertices, got %d", m.VertexCount())
	}
	want := [][3]int{{0, 1, 2}, {0, 2, 3}}
	if len(m.Triangles) != len(want) {
		t.Fatalf("expected %d triangles, got %d", len(want), len(m.Triangles))
	}
	for i := range want {
		if m.Triangles[i] != want[i] {
			t.Fatalf("triangle %d = %v, want %v", i, m.Triangles[i], want[i])
		}
	}
}

func TestPointCloudRoundTrip(t *testing.T) {
	in := &geom.PointCloud{
		Points:  []geom.Vec3{{X: 0.25, Y: -1.5, Z: 3}, {X: 0, Y: 0, Z: 0}, {X: 1e-3, Y: 2e-3, Z: -3e-3}},
		Normals: []geom.Vec3{{Z: 1}, {X: 1}, {Y: -1}},
		Colors:  []geom.Vec3{{X: 1}, {Y: 0.5}, {X: 0.2, Y: 0.4, Z: 0.6}},
	}

	var buf bytes.Buffer
	if err := WritePointCloud(&buf, in); err != nil {
		t.Fatalf("WritePointCloud: %v", err)
	}
	out, err := ReadPointCloud(&buf)
	if err != nil {
		t.Fatalf("ReadPointCloud: %v", err)
	}

	if out.Len() != in.Len() {
		t.Fatalf("point count changed: %d -> %d", in.Len(), out.Len())
	}
	if !out.HasNormals() || !out.HasColors() {
		t.Fatal("normals or colors lost in round trip")
	}
	for i := range in.Points {
		assertClose(t, in.Points[i], out.Points[i], 1e-6)
		assertClose(t, in.Normals[i], out.Normals[i], 1e-6)
		// Colors quantize to uchar.
		assertClose(t, in.Colors[i], out.Colors[i], 1.0/255+1e-9)
	}
}

func TestMeshRoundTrip(t *testing.T) {
	in := &geom.TriangleMesh{
		Vertices: []geom.Vec3{{X: 0}, {X: 1}, {Y: 1}, {Z: 1}},
		Normals:  []geom.Vec3{{Z: 1}, {Z: 1}, {Z: 1}, {Z: 1}},
		Triangles: [][3]int{
			{0, 1, 2},
			{0, 2, 3},
		},
	}

	var buf bytes.Buffer
	if err := WriteMesh(&buf, in); err != nil {
		t.Fatalf("WriteMesh: %v", err)
	}
	out, err := ReadMesh(&buf)
	if err != nil {
		t.Fatalf("ReadMesh: %v", err)
	}

	if out.VertexCount() != in.VertexCount() {
		t.Fatalf("vertex count changed: %d -> %d", in.VertexCount(), out.VertexCount())
	}
	if !out.HasNormals() {
		t.Fatal("normals lost in round trip")
	}
	if len(out.Triangles) != len(in.Triangles) {
		t.Fatalf("triangle count changed: %d -> %d", len(in.Triangles), len(out.Triangles))
	}
	for i := range in.Triangles {
		if out.Triangles[i] != in.Triangles[i] {
			t.Fatalf("triangle %d = %v, want %v", i, out.Triangles[i], in.Triangles[i])
		}
	}
}

func TestReadPointCloudErrors(t *testing.T) {
	cases := []struct {
		name string
		src  string
	}{
		{"not ply", "solid teapot\n"},
		{"missing format", "ply\nelement vertex 0\nend_header\n"},
		{"big endian", "ply\nformat binary_big_endian 1.0\nend_header\n"},
		{"missing xyz", "ply\nformat ascii 1.0\nelement vertex 1\nproperty float x\nend_header\n0\n"},
		{"truncated body", "ply\nformat ascii 1.0\nelement vertex 2\nproperty float x\nproperty float y\nproperty float z\nend_header\n0 0 0\n"},
		{"truncated header", "ply\nformat ascii 1.0\nelement vertex 1\n"},
		{"bad value", "ply\nformat ascii 1.0\nelement vertex 1\nproperty float x\nproperty float y\nproperty float z\nend_header\n0 zero 0\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ReadPointCloud(strings.NewReader(tc.src)); err == nil {
				t.Fatal("expected an error")
			}
		})
	}
}

func TestReadSkipsUnknownElements(t *testing.T) {
	src := `ply
format ascii 1.0
element edge 2
property int vertex1
property int vertex2
element vertex 1
property float x
property float y
property float z
end_header
0 1
1 2
4 5 6
`
	pc, err := ReadPointCloud(strings.NewReader(src))
	if err != nil {
		t.Fatalf("ReadPointCloud: %v", err)
	}
	if pc.Len() != 1 || pc.Points[0] != (geom.Vec3{X: 4, Y: 5, Z: 6}) {
		t.Fatalf("unexpected cloud: %+v", pc)
	}
}

func TestWriteMeshOBJ(t *testing.T) {
	m := &geom.TriangleMesh{
		Vertices:  []geom.Vec3{{X: 0}, {X: 1}, {Y: 1}},
		Normals:   []geom.Vec3{{Z: 1}, {Z: 1}, {Z: 1}},
		Triangles: [][3]int{{0, 1, 2}},
	}

	var buf bytes.Buffer
	if err := WriteMeshOBJ(&buf, m); err != nil {
		t.Fatalf("WriteMeshOBJ: %v", err)
	}
	out := buf.String()

	for _, want := range []string{
		"v 0 0 0\n",
		"v 1 0 0\n",
		"v 0 1 0\n",
		"vn 0 0 1\n",
		"f 1//1 2//2 3//3\n",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("OBJ output missing %q:\n%s", want, out)
		}
	}
}

func TestWriteMeshOBJNoNormals(t *testing.T) {
	m := &geom.TriangleMesh{
		Vertices:  []geom.Vec3{{X: 0}, {X: 1}, {Y: 1}},
		Triangles: [][3]int{{0, 1, 2}},
	}
	var buf bytes.Buffer
	if err := WriteMeshOBJ(&buf, m); err != nil {
		t.Fatalf("WriteMeshOBJ: %v", err)
	}
	out := buf.String()
	if strings.Contains(out, "vn ") {
		t.Fatalf("unexpected vn records:\n%s", out)
	}
	if !strings.Contains(out, "f 1 2 3\n") {
		t.Fatalf("missing plain face record:\n%s", out)
	}
}

func assertClose(t *testing.T, want, got geom.Vec3, tol float64) {
	t.Helper()
	if math.Abs(want.X-got.X) > tol || math.Abs(want.Y-got.Y) > tol || math.Abs(want.Z-got.Z) > tol {
		t.Fatalf("vector %v differs from %v beyond %g", got, want, tol)
	}
}
