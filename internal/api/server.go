// Package api exposes the Mesh Cleanup HTTP surface: a health check plus the
// two synchronous cleanup endpoints. Validation happens here, before any
// filesystem work; everything after validation is delegated to the pipeline.
package api

import (
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/banshee-data/meshcleanup/internal/httputil"
	"github.com/banshee-data/meshcleanup/internal/pipeline"
	"github.com/banshee-data/meshcleanup/internal/version"
)

// ServiceName is reported by the health endpoint.
const ServiceName = "Mesh Cleanup API"

// DefaultMaxUploadBytes bounds the multipart upload size.
const DefaultMaxUploadBytes = 256 << 20 // 256 MiB

// ANSI escape codes for request logging
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// Server handles the HTTP surface. Each request is independent; the server
// holds no mutable per-request state.
type Server struct {
	pipe           *pipeline.Pipeline
	maxUploadBytes int64
}

// NewServer creates a Server running uploads through pipe.
func NewServer(pipe *pipeline.Pipeline) *Server {
	return &Server{
		pipe:           pipe,
		maxUploadBytes: DefaultMaxUploadBytes,
	}
}

// ServeMux returns the route table.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleHealth)
	mux.HandleFunc("/clean-mesh", s.handleCleanMesh)
	mux.HandleFunc("/clean-point-cloud", s.handleCleanPointCloud)
	return mux
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	default:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	}
}

// LoggingMiddleware logs method, path, query, status, and duration.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		httputil.NotFound(w, "not found")
		return
	}
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": ServiceName,
		"version": version.Version,
	})
}

// handleCleanMesh accepts a PLY upload and returns a reconstructed, cleaned
// mesh in the requested format (query return_format, ply or obj).
func (s *Server) handleCleanMesh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}

	format, err := pipeline.ParseFormat(r.URL.Query().Get("return_format"))
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	s.runCleanup(w, r, pipeline.OutputMesh, format)
}

// handleCleanPointCloud accepts a PLY upload and returns the denoised point
// cloud as PLY, without meshing.
func (s *Server) handleCleanPointCloud(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	s.runCleanup(w, r, pipeline.OutputPointCloud, pipeline.FormatPLY)
}

// runCleanup validates the upload, runs the pipeline, and streams the
// artifact. Validation failures return before any file is written.
func (s *Server) runCleanup(w http.ResponseWriter, r *http.Request, kind pipeline.OutputKind, format pipeline.Format) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		httputil.BadRequest(w, "missing multipart file upload")
		return
	}
	defer file.Close()

	if err := pipeline.ValidateFilename(header.Filename); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		httputil.BadRequest(w, "reading upload: "+err.Error())
		return
	}

	log.Printf("api: processing %s (%d bytes)", header.Filename, len(data))

	result, err := s.pipe.Run(&pipeline.Request{
		Filename: header.Filename,
		Data:     data,
		Kind:     kind,
		Format:   format,
	})
	if err != nil {
		s.writePipelineError(w, header.Filename, err)
		return
	}

	s.streamArtifact(w, result)
}

// writePipelineError maps pipeline failures onto HTTP statuses: client
// errors carry their reason, processing failures are logged in full but
// reported generically.
func (s *Server) writePipelineError(w http.ResponseWriter, filename string, err error) {
	var insufficient *pipeline.InsufficientPointsError
	var staged *pipeline.StageError
	switch {
	case errors.Is(err, pipeline.ErrEmptyInput):
		httputil.BadRequest(w, pipeline.ErrEmptyInput.Error())
	case errors.As(err, &insufficient):
		httputil.BadRequest(w, insufficient.Error())
	case errors.As(err, &staged) && staged.Stage == pipeline.StageDecoded:
		// The upload itself is unreadable, which is the client's problem.
		httputil.BadRequest(w, "could not decode upload: "+staged.Err.Error())
	default:
		log.Printf("api: error processing %s: %v", filename, err)
		httputil.InternalServerError(w, "error processing scan")
	}
}

// streamArtifact sends the serialized artifact as a binary download. The
// artifact file stays on disk afterwards; the reaper reclaims it once the
// retention period passes.
func (s *Server) streamArtifact(w http.ResponseWriter, result *pipeline.Result) {
	f, err := os.Open(result.ArtifactPath)
	if err != nil {
		log.Printf("api: opening artifact %s: %v", result.ArtifactPath, err)
		httputil.InternalServerError(w, "error streaming artifact")
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		log.Printf("api: stat artifact %s: %v", result.ArtifactPath, err)
		httputil.InternalServerError(w, "error streaming artifact")
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", `attachment; filename="`+result.Filename+`"`)
	w.Header().Set("Content-Length", strconv.FormatInt(info.Size(), 10))
	if _, err := io.Copy(w, f); err != nil {
		log.Printf("api: streaming artifact %s: %v", result.ArtifactPath, err)
	}
}
