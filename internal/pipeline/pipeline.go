// Package pipeline runs the request-scoped transformation chain that turns
// an uploaded point-cloud scan into a denoised point cloud or a
// reconstructed, cleaned triangle mesh. Stages run strictly in order; any
// failure abandons the remainder and no partial artifact is ever produced.
package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/meshcleanup/internal/config"
	"github.com/banshee-data/meshcleanup/internal/geom"
	"github.com/banshee-data/meshcleanup/internal/monitoring"
	"github.com/banshee-data/meshcleanup/internal/ply"
	"github.com/banshee-data/meshcleanup/internal/security"
)

// Stage identifies a step of the linear pipeline state machine.
type Stage int

const (
	StageReceived Stage = iota
	StageDecoded
	StagePointCloudCleaned
	StageReconstructed
	StageMeshCleaned
	StageSerialized
	StageDone
	StageFailed
)

var stageNames = map[Stage]string{
	StageReceived:          "received",
	StageDecoded:           "decoded",
	StagePointCloudCleaned: "pointcloud_cleaned",
	StageReconstructed:     "reconstructed",
	StageMeshCleaned:       "mesh_cleaned",
	StageSerialized:        "serialized",
	StageDone:              "done",
	StageFailed:            "failed",
}

func (s Stage) String() string {
	if name, ok := stageNames[s]; ok {
		return name
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// OutputKind selects what the pipeline produces.
type OutputKind int

const (
	// OutputPointCloud returns the cleaned point cloud without meshing.
	OutputPointCloud OutputKind = iota
	// OutputMesh reconstructs and cleans a triangle mesh.
	OutputMesh
)

// Format is the serialization format of a mesh artifact.
type Format string

const (
	FormatPLY Format = "ply"
	FormatOBJ Format = "obj"
)

// ParseFormat validates a return_format selector. The empty string selects
// the PLY default.
func ParseFormat(s string) (Format, error) {
	switch s {
	case "", string(FormatPLY):
		return FormatPLY, nil
	case string(FormatOBJ):
		return FormatOBJ, nil
	default:
		return "", ErrInvalidOutputFormat
	}
}

// InputExtension is the accepted upload extension.
const InputExtension = ".ply"

// ValidateFilename checks the declared upload filename before any
// filesystem work happens.
func ValidateFilename(name string) error {
	if !strings.HasSuffix(strings.ToLower(name), InputExtension) {
		return ErrInvalidInputFormat
	}
	return nil
}

// Params are the immutable tuning parameters for one request. Concurrent
// requests may run with different parameter sets.
type Params struct {
	StatNeighbors      int
	StatStdRatio       float64
	RadiusMinPoints    int
	RadiusRadius       float64
	MinCleanedPoints   int
	NormalRadius       float64
	NormalMaxNeighbors int
	OrientNeighbors    int
	PoissonDepth       int
	PoissonScale       float64
	MaxGridResolution  int
	DensityQuantile    float64
	SmoothIterations   int
	MaxHoleEdges       int
}

// ParamsFromConfig resolves a tuning config into concrete parameters.
func ParamsFromConfig(cfg *config.TuningConfig) Params {
	return Params{
		StatNeighbors:      cfg.GetStatNeighbors(),
		StatStdRatio:       cfg.GetStatStdRatio(),
		RadiusMinPoints:    cfg.GetRadiusMinPoints(),
		RadiusRadius:       cfg.GetRadiusRadius(),
		MinCleanedPoints:   cfg.GetMinCleanedPoints(),
		NormalRadius:       cfg.GetNormalRadius(),
		NormalMaxNeighbors: cfg.GetNormalMaxNeighbors(),
		OrientNeighbors:    cfg.GetOrientNeighbors(),
		PoissonDepth:       cfg.GetPoissonDepth(),
		PoissonScale:       cfg.GetPoissonScale(),
		MaxGridResolution:  cfg.GetMaxGridResolution(),
		DensityQuantile:    cfg.GetDensityQuantile(),
		SmoothIterations:   cfg.GetSmoothIterations(),
		MaxHoleEdges:       cfg.GetMaxHoleEdges(),
	}
}

// DefaultParams returns the shipped face-scan defaults.
func DefaultParams() Params {
	return ParamsFromConfig(config.EmptyTuningConfig())
}

// Request binds one uploaded scan to one requested output.
type Request struct {
	// Filename is the client-declared upload name; its stem names the
	// artifact.
	Filename string
	// Data is the raw upload, already read into memory by ingress.
	Data []byte
	// Kind selects point-cloud or mesh output.
	Kind OutputKind
	// Format is the mesh serialization format; ignored for point clouds.
	Format Format
}

// Result is the terminal artifact of a successful run.
type Result struct {
	// ArtifactPath is the on-disk location of the serialized output. The
	// file outlives the request; the reaper deletes it after the retention
	// period.
	ArtifactPath string
	// Filename is the content-disposition download name.
	Filename string
	// Stage is the terminal state, StageDone on success.
	Stage Stage
}

// Pipeline executes cleanup runs. It is stateless across requests; every
// run allocates its own scope and handles.
type Pipeline struct {
	params  Params
	workdir string
}

// New creates a pipeline writing temporary scopes and artifacts under
// workdir.
func New(params Params, workdir string) *Pipeline {
	return &Pipeline{params: params, workdir: workdir}
}

// Params returns the pipeline's tuning parameters.
func (p *Pipeline) Params() Params { return p.params }

// Run executes the full chain for one request. The returned error is a
// *StageError wrapping one of the typed pipeline errors or an underlying
// processing failure. All intermediate files are released before Run
// returns, on success and failure alike; only the final artifact survives.
func (p *Pipeline) Run(req *Request) (*Result, error) {
	scope, err := NewScope(p.workdir)
	if err != nil {
		return nil, failAt(StageReceived, err)
	}
	defer scope.Close()

	// Decode: materialize the upload inside the scope, then parse it.
	inputPath := scope.Path("input" + InputExtension)
	if err := os.WriteFile(inputPath, req.Data, 0o644); err != nil {
		return nil, failAt(StageReceived, fmt.Errorf("writing upload: %w", err))
	}
	f, err := os.Open(inputPath)
	if err != nil {
		return nil, failAt(StageDecoded, err)
	}
	pc, err := ply.ReadPointCloud(f)
	f.Close()
	if err != nil {
		return nil, failAt(StageDecoded, err)
	}
	if pc.Len() == 0 {
		return nil, failAt(StageDecoded, ErrEmptyInput)
	}
	monitoring.Logf("pipeline: %s: decoded %d points", req.Filename, pc.Len())

	pc, err = p.cleanPointCloud(req.Filename, pc)
	if err != nil {
		return nil, err
	}

	stem := security.SanitizeFilename(strings.TrimSuffix(filepath.Base(req.Filename), filepath.Ext(req.Filename)))

	if req.Kind == OutputPointCloud {
		return p.serialize(stem, FormatPLY, func(w *os.File) error {
			return ply.WritePointCloud(w, pc)
		})
	}

	mesh, err := p.reconstruct(req.Filename, pc)
	if err != nil {
		return nil, err
	}
	mesh, err = p.cleanMesh(req.Filename, mesh)
	if err != nil {
		return nil, err
	}

	return p.serialize(stem, req.Format, func(w *os.File) error {
		if req.Format == FormatOBJ {
			return ply.WriteMeshOBJ(w, mesh)
		}
		return ply.WriteMesh(w, mesh)
	})
}

// cleanPointCloud applies duplicate removal, then statistical, then radius
// outlier removal, in that order: statistical removal catches sparse global
// noise before radius removal prunes locally isolated points at a fixed
// physical scale. Cleaning only ever removes points.
func (p *Pipeline) cleanPointCloud(name string, pc *geom.PointCloud) (*geom.PointCloud, error) {
	pc = geom.RemoveDuplicatedPoints(pc)
	monitoring.Logf("pipeline: %s: %d points after duplicate removal", name, pc.Len())

	pc = geom.RemoveStatisticalOutliers(pc, p.params.StatNeighbors, p.params.StatStdRatio)
	monitoring.Logf("pipeline: %s: %d points after statistical outlier removal", name, pc.Len())

	pc = geom.RemoveRadiusOutliers(pc, p.params.RadiusMinPoints, p.params.RadiusRadius)
	monitoring.Logf("pipeline: %s: %d points after radius outlier removal", name, pc.Len())

	if pc.Len() < p.params.MinCleanedPoints {
		return nil, failAt(StagePointCloudCleaned, &InsufficientPointsError{
			Remaining: pc.Len(),
			Minimum:   p.params.MinCleanedPoints,
		})
	}
	return pc, nil
}

// reconstruct estimates and orients normals, runs the implicit surface
// reconstruction, and filters low-confidence vertices by the per-request
// density quantile.
func (p *Pipeline) reconstruct(name string, pc *geom.PointCloud) (*geom.TriangleMesh, error) {
	geom.EstimateNormals(pc, p.params.NormalRadius, p.params.NormalMaxNeighbors)
	geom.OrientNormalsConsistent(pc, p.params.OrientNeighbors)

	mesh, densities, err := geom.ReconstructPoisson(pc, p.params.PoissonDepth, p.params.PoissonScale, p.params.MaxGridResolution)
	if err != nil {
		return nil, failAt(StageReconstructed, err)
	}
	monitoring.Logf("pipeline: %s: reconstructed mesh with %d vertices, %d triangles",
		name, mesh.VertexCount(), mesh.TriangleCount())
	if mesh.TriangleCount() == 0 {
		return nil, failAt(StageReconstructed, fmt.Errorf("reconstruction produced an empty mesh"))
	}

	// Drop the lowest-confidence vertices. The threshold is recomputed per
	// request from the actual density distribution, never a fixed value;
	// strict comparison means a uniform distribution removes nothing.
	if len(densities) > 0 && p.params.DensityQuantile > 0 {
		sorted := append([]float64(nil), densities...)
		sort.Float64s(sorted)
		threshold := stat.Quantile(p.params.DensityQuantile, stat.Empirical, sorted, nil)
		mask := make([]bool, len(densities))
		for i, d := range densities {
			mask[i] = d < threshold
		}
		geom.RemoveVerticesByMask(mesh, mask)
		monitoring.Logf("pipeline: %s: %d vertices after density filtering", name, mesh.VertexCount())
	}
	return mesh, nil
}

// cleanMesh repairs topology and smooths reconstruction noise. Only small
// holes are filled; large ones stay open rather than inventing geometry.
func (p *Pipeline) cleanMesh(name string, mesh *geom.TriangleMesh) (*geom.TriangleMesh, error) {
	geom.RemoveDegenerateTriangles(mesh)
	geom.RemoveDuplicatedTriangles(mesh)
	geom.RemoveDuplicatedVertices(mesh)
	geom.RemoveNonManifoldEdges(mesh)

	mesh = geom.SmoothSimple(mesh, p.params.SmoothIterations)
	geom.FillSmallHoles(mesh, p.params.MaxHoleEdges)
	geom.ComputeVertexNormals(mesh)

	monitoring.Logf("pipeline: %s: cleaned mesh has %d vertices, %d triangles",
		name, mesh.VertexCount(), mesh.TriangleCount())
	return mesh, nil
}

// serialize writes the terminal artifact outside the request scope. The
// artifact directory is uniquely named so concurrent requests with the same
// upload name cannot collide.
func (p *Pipeline) serialize(stem string, format Format, write func(*os.File) error) (*Result, error) {
	filename := fmt.Sprintf("%s_cleaned.%s", stem, format)
	dir := filepath.Join(ArtifactDir(p.workdir), uuid.NewString())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, failAt(StageSerialized, fmt.Errorf("creating artifact dir: %w", err))
	}

	path := filepath.Join(dir, filename)
	f, err := os.Create(path)
	if err != nil {
		return nil, failAt(StageSerialized, err)
	}
	if err := write(f); err != nil {
		f.Close()
		os.RemoveAll(dir)
		return nil, failAt(StageSerialized, err)
	}
	if err := f.Close(); err != nil {
		os.RemoveAll(dir)
		return nil, failAt(StageSerialized, err)
	}

	return &Result{ArtifactPath: path, Filename: filename, Stage: StageDone}, nil
}
