package geom

import (
	"math"
	"sort"
	"testing"

	"gonum.org/v1/gonum/stat"
)

// spherePoints samples n roughly equidistributed points on a sphere via the
// golden-angle spiral, with outward normals.
func spherePoints(n int, radius float64) *PointCloud {
	pc := &PointCloud{
		Points:  make([]Vec3, n),
		Normals: make([]Vec3, n),
	}
	golden := math.Pi * (3 - math.Sqrt(5))
	for i := 0; i < n; i++ {
		y := 1 - 2*float64(i)/float64(n-1)
		r := math.Sqrt(1 - y*y)
		theta := golden * float64(i)
		dir := Vec3{math.Cos(theta) * r, y, math.Sin(theta) * r}
		pc.Points[i] = dir.Scale(radius)
		pc.Normals[i] = dir
	}
	return pc
}

func TestReconstructPoissonSphere(t *testing.T) {
	pc := spherePoints(800, 0.5)

	mesh, densities, err := ReconstructPoisson(pc, 4, 1.1, 24)
	if err != nil {
		t.Fatalf("ReconstructPoisson: %v", err)
	}
	if mesh.TriangleCount() == 0 {
		t.Fatal("expected a non-empty mesh")
	}
	if len(densities) != mesh.VertexCount() {
		t.Fatalf("densities length %d != vertex count %d", len(densities), mesh.VertexCount())
	}
	for i, d := range densities {
		if math.IsNaN(d) || d < 0 {
			t.Fatalf("density %d invalid: %g", i, d)
		}
	}

	// Every surface vertex should sit near the sphere.
	for i, v := range mesh.Vertices {
		r := v.Norm()
		if r < 0.25 || r > 0.85 {
			t.Fatalf("vertex %d at radius %g, far from the 0.5 sphere", i, r)
		}
	}
}

func TestReconstructPoissonDensityFilterReducesVertices(t *testing.T) {
	pc := spherePoints(800, 0.5)

	mesh, densities, err := ReconstructPoisson(pc, 4, 1.1, 24)
	if err != nil {
		t.Fatalf("ReconstructPoisson: %v", err)
	}

	// When densities vary, cutting the bottom quantile strictly reduces
	// the vertex count.
	sorted := append([]float64(nil), densities...)
	sort.Float64s(sorted)
	if sorted[0] == sorted[len(sorted)-1] {
		t.Skip("densities unexpectedly uniform")
	}
	threshold := stat.Quantile(0.05, stat.Empirical, sorted, nil)
	mask := make([]bool, len(densities))
	masked := 0
	for i, d := range densities {
		if d < threshold {
			mask[i] = true
			masked++
		}
	}
	if masked == 0 {
		t.Skip("quantile produced an empty mask")
	}

	before := mesh.VertexCount()
	RemoveVerticesByMask(mesh, mask)
	if mesh.VertexCount() >= before {
		t.Fatalf("density filter did not reduce vertices: %d -> %d", before, mesh.VertexCount())
	}
}

func TestReconstructPoissonErrors(t *testing.T) {
	if _, _, err := ReconstructPoisson(&PointCloud{}, 5, 1.1, 16); err == nil {
		t.Fatal("expected error for empty cloud")
	}

	pc := spherePoints(100, 0.5)
	pc.Normals = nil
	if _, _, err := ReconstructPoisson(pc, 5, 1.1, 16); err != ErrNoNormals {
		t.Fatalf("expected ErrNoNormals, got %v", err)
	}
}
