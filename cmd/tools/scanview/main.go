// Command scanview renders quick-look diagnostics for a PLY scan: an HTML
// scatter of the cloud (depth encoded by color) and a histogram of each
// point's mean distance to its nearest neighbors, which is the distribution
// the statistical outlier threshold cuts. Useful when tuning cleanup
// parameters for a new capture rig.
package main

import (
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/meshcleanup/internal/geom"
	"github.com/banshee-data/meshcleanup/internal/ply"
)

var (
	input     = flag.String("in", "", "Input PLY file")
	outDir    = flag.String("out", ".", "Output directory for scatter HTML and histogram PNG")
	maxPoints = flag.Int("max-points", 8000, "Downsample scatter to at most this many points")
	neighbors = flag.Int("neighbors", 20, "Neighbor count for the mean-distance histogram")
)

func main() {
	flag.Parse()

	if *input == "" {
		log.Fatal("usage: scanview -in scan.ply [-out dir]")
	}

	f, err := os.Open(*input)
	if err != nil {
		log.Fatalf("Failed to open input: %v", err)
	}
	pc, err := ply.ReadPointCloud(f)
	f.Close()
	if err != nil {
		log.Fatalf("Failed to decode %s: %v", *input, err)
	}
	if pc.Len() == 0 {
		log.Fatalf("%s contains no points", *input)
	}
	log.Printf("Loaded %d points from %s", pc.Len(), *input)

	stem := filepath.Base(*input)
	stem = stem[:len(stem)-len(filepath.Ext(stem))]

	scatterFile := filepath.Join(*outDir, stem+"_scatter.html")
	if err := renderScatter(pc, scatterFile); err != nil {
		log.Fatalf("Failed to render scatter: %v", err)
	}
	log.Printf("Wrote %s", scatterFile)

	histFile := filepath.Join(*outDir, stem+"_neighbor_dist.png")
	if err := renderNeighborHistogram(pc, *neighbors, histFile); err != nil {
		log.Fatalf("Failed to render histogram: %v", err)
	}
	log.Printf("Wrote %s", histFile)
}

// renderScatter writes an X/Y scatter of the cloud with depth (Z) mapped to
// color, downsampled by stride to stay readable in a browser.
func renderScatter(pc *geom.PointCloud, path string) error {
	stride := 1
	if pc.Len() > *maxPoints {
		stride = int(math.Ceil(float64(pc.Len()) / float64(*maxPoints)))
	}

	data := make([]opts.ScatterData, 0, pc.Len()/stride+1)
	minZ, maxZ := math.Inf(1), math.Inf(-1)
	for i := 0; i < pc.Len(); i += stride {
		p := pc.Points[i]
		data = append(data, opts.ScatterData{Value: []interface{}{p.X, p.Y, p.Z}})
		minZ = math.Min(minZ, p.Z)
		maxZ = math.Max(maxZ, p.Z)
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Scan Preview", Theme: "dark", Width: "900px", Height: "900px"}),
		charts.WithTitleOpts(opts.Title{Title: "Scan Preview", Subtitle: fmt.Sprintf("points=%d stride=%d", len(data), stride)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "X (m)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Y (m)", NameLocation: "middle", NameGap: 30}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        float32(minZ),
			Max:        float32(maxZ),
			InRange:    &opts.VisualMapInRange{Color: []string{"#440154", "#31688e", "#35b779", "#fde725"}},
		}),
	)
	scatter.AddSeries("points", data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 3}))

	out, err := os.Create(path)
	if err != nil {
		return err
	}
	defer out.Close()
	return scatter.Render(out)
}

// renderNeighborHistogram plots the distribution of mean k-neighbor
// distances. The statistical outlier stage drops everything beyond
// mean + ratio*stddev of this distribution.
func renderNeighborHistogram(pc *geom.PointCloud, k int, path string) error {
	dists := geom.MeanNeighborDistances(pc, k)
	values := make(plotter.Values, len(dists))
	copy(values, dists)

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Mean distance to %d nearest neighbors", k)
	p.X.Label.Text = "distance (m)"
	p.Y.Label.Text = "points"

	h, err := plotter.NewHist(values, 64)
	if err != nil {
		return err
	}
	p.Add(h)

	return p.Save(10*vg.Inch, 6*vg.Inch, path)
}
