package ply

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/banshee-data/meshcleanup/internal/geom"
)

// WritePointCloud encodes a point cloud as binary_little_endian PLY with
// float32 coordinates, plus normals and uchar colors when present.
func WritePointCloud(w io.Writer, pc *geom.PointCloud) error {
	bw := bufio.NewWriter(w)

	fmt.Fprintf(bw, "ply\nformat binary_little_endian 1.0\n")
	fmt.Fprintf(bw, "comment generated by meshcleanup\n")
	fmt.Fprintf(bw, "element vertex %d\n", pc.Len())
	fmt.Fprintf(bw, "property float x\nproperty float y\nproperty float z\n")
	if pc.HasNormals() {
		fmt.Fprintf(bw, "property float nx\nproperty float ny\nproperty float nz\n")
	}
	if pc.HasColors() {
		fmt.Fprintf(bw, "property uchar red\nproperty uchar green\nproperty uchar blue\n")
	}
	fmt.Fprintf(bw, "end_header\n")

	for i, p := range pc.Points {
		writeVec3f(bw, p)
		if pc.HasNormals() {
			writeVec3f(bw, pc.Normals[i])
		}
		if pc.HasColors() {
			writeColor(bw, pc.Colors[i])
		}
	}
	return bw.Flush()
}

// WriteMesh encodes a triangle mesh as binary_little_endian PLY.
func WriteMesh(w io.Writer, m *geom.TriangleMesh) error {
	bw := bufio.NewWriter(w)

	fmt.Fprintf(bw, "ply\nformat binary_little_endian 1.0\n")
	fmt.Fprintf(bw, "comment generated by meshcleanup\n")
	fmt.Fprintf(bw, "element vertex %d\n", m.VertexCount())
	fmt.Fprintf(bw, "property float x\nproperty float y\nproperty float z\n")
	if m.HasNormals() {
		fmt.Fprintf(bw, "property float nx\nproperty float ny\nproperty float nz\n")
	}
	fmt.Fprintf(bw, "element face %d\n", m.TriangleCount())
	fmt.Fprintf(bw, "property list uchar int vertex_indices\n")
	fmt.Fprintf(bw, "end_header\n")

	for i, v := range m.Vertices {
		writeVec3f(bw, v)
		if m.HasNormals() {
			writeVec3f(bw, m.Normals[i])
		}
	}
	for _, t := range m.Triangles {
		bw.WriteByte(3)
		var buf [4]byte
		for _, idx := range t {
			binary.LittleEndian.PutUint32(buf[:], uint32(int32(idx)))
			bw.Write(buf[:])
		}
	}
	return bw.Flush()
}

// WriteMeshOBJ encodes a triangle mesh as Wavefront OBJ. OBJ indices are
// 1-based; normals are emitted as vn records when present.
func WriteMeshOBJ(w io.Writer, m *geom.TriangleMesh) error {
	bw := bufio.NewWriter(w)

	fmt.Fprintf(bw, "# generated by meshcleanup\n")
	for _, v := range m.Vertices {
		fmt.Fprintf(bw, "v %g %g %g\n", v.X, v.Y, v.Z)
	}
	hasNormals := m.HasNormals()
	if hasNormals {
		for _, n := range m.Normals {
			fmt.Fprintf(bw, "vn %g %g %g\n", n.X, n.Y, n.Z)
		}
	}
	for _, t := range m.Triangles {
		if hasNormals {
			fmt.Fprintf(bw, "f %d//%d %d//%d %d//%d\n",
				t[0]+1, t[0]+1, t[1]+1, t[1]+1, t[2]+1, t[2]+1)
		} else {
			fmt.Fprintf(bw, "f %d %d %d\n", t[0]+1, t[1]+1, t[2]+1)
		}
	}
	return bw.Flush()
}

func writeVec3f(bw *bufio.Writer, v geom.Vec3) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], math.Float32bits(float32(v.X)))
	bw.Write(buf[:])
	binary.LittleEndian.PutUint32(buf[:], math.Float32bits(float32(v.Y)))
	bw.Write(buf[:])
	binary.LittleEndian.PutUint32(buf[:], math.Float32bits(float32(v.Z)))
	bw.Write(buf[:])
}

func writeColor(bw *bufio.Writer, c geom.Vec3) {
	bw.WriteByte(clampByte(c.X))
	bw.WriteByte(clampByte(c.Y))
	bw.WriteByte(clampByte(c.Z))
}

func clampByte(v float64) byte {
	s := math.Round(v * 255)
	if s < 0 {
		return 0
	}
	if s > 255 {
		return 255
	}
	return byte(s)
}
