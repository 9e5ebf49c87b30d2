package geom

import (
	"math"
	"testing"
)

func TestEstimateNormalsPlanarPatch(t *testing.T) {
	pc := gridPatch(20, 20, 0.01)
	EstimateNormals(pc, 0.05, 30)

	if !pc.HasNormals() {
		t.Fatal("expected normals to be populated")
	}
	for i, n := range pc.Normals {
		if math.Abs(n.Norm()-1) > 1e-9 {
			t.Fatalf("normal %d is not unit length: %v", i, n)
		}
		// A flat patch in the XY plane has normals along ±Z.
		if math.Abs(math.Abs(n.Z)-1) > 1e-6 {
			t.Fatalf("normal %d not along Z: %v", i, n)
		}
	}
}

func TestEstimateNormalsDegenerateNeighborhood(t *testing.T) {
	pc := &PointCloud{Points: []Vec3{{0, 0, 0}, {10, 0, 0}}}
	EstimateNormals(pc, 0.01, 30)
	for i, n := range pc.Normals {
		if n != (Vec3{Z: 1}) {
			t.Fatalf("normal %d: expected +Z fallback, got %v", i, n)
		}
	}
}

func TestOrientNormalsConsistent(t *testing.T) {
	pc := gridPatch(20, 20, 0.01)
	EstimateNormals(pc, 0.05, 30)

	// Scramble orientations so propagation has work to do.
	for i := range pc.Normals {
		if i%3 == 0 {
			pc.Normals[i] = pc.Normals[i].Scale(-1)
		}
	}

	OrientNormalsConsistent(pc, 15)

	for i, n := range pc.Normals {
		if n.Z <= 0 {
			t.Fatalf("normal %d not oriented toward +Z after propagation: %v", i, n)
		}
	}
}

func TestOrientNormalsConsistentNoNormals(t *testing.T) {
	pc := gridPatch(5, 5, 0.01)
	// Must not panic when normals are absent.
	OrientNormalsConsistent(pc, 15)
	if pc.HasNormals() {
		t.Fatal("orientation must not invent normals")
	}
}
