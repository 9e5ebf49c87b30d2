// Command meshd serves the Mesh Cleanup API: upload a PLY depth-camera scan,
// get back a denoised point cloud or a reconstructed, cleaned triangle mesh.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/banshee-data/meshcleanup/internal/api"
	"github.com/banshee-data/meshcleanup/internal/config"
	"github.com/banshee-data/meshcleanup/internal/pipeline"
	"github.com/banshee-data/meshcleanup/internal/reaper"
	"github.com/banshee-data/meshcleanup/internal/version"
)

var (
	listen     = flag.String("listen", ":8080", "Listen address")
	workdir    = flag.String("workdir", "", "Directory for temp scopes and artifacts (default: <os temp>/meshcleanup)")
	configPath = flag.String("config", "", "Optional tuning config JSON file")
	retention  = flag.Duration("retention", 0, "Artifact retention override (0 uses the config value)")
)

func main() {
	flag.Parse()

	if *listen == "" {
		log.Fatal("Listen address is required")
	}

	cfg := config.EmptyTuningConfig()
	if *configPath != "" {
		loaded, err := config.LoadTuningConfig(*configPath)
		if err != nil {
			log.Fatalf("Failed to load tuning config: %v", err)
		}
		cfg = loaded
		log.Printf("Loaded tuning config from %s", *configPath)
	}

	wd := *workdir
	if wd == "" {
		wd = filepath.Join(os.TempDir(), "meshcleanup")
	}
	if err := os.MkdirAll(pipeline.ArtifactDir(wd), 0o755); err != nil {
		log.Fatalf("Failed to create working directory: %v", err)
	}

	keep := cfg.GetArtifactRetention()
	if *retention > 0 {
		keep = *retention
	}

	pipe := pipeline.New(pipeline.ParamsFromConfig(cfg), wd)
	server := api.NewServer(pipe)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	rp := reaper.New(reaper.Config{
		Dir:       pipeline.ArtifactDir(wd),
		Retention: keep,
		Interval:  cfg.GetReaperInterval(),
	})
	go func() {
		if err := rp.Run(ctx); err != nil {
			log.Printf("Reaper exited: %v", err)
		}
	}()

	httpServer := &http.Server{
		Addr:    *listen,
		Handler: api.LoggingMiddleware(server.ServeMux()),
	}

	go func() {
		log.Printf("Mesh Cleanup API %s listening on %s (workdir %s, retention %s)", version.Version, *listen, wd, keep)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP shutdown: %v", err)
	}
	rp.Stop()
}
