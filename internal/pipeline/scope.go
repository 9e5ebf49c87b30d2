package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

// Scope is the request-scoped temporary directory holding the materialized
// upload and any intermediate artifacts. Close removes the directory exactly
// once; callers defer it at handler entry so every exit path releases the
// request's filesystem footprint.
type Scope struct {
	dir  string
	once sync.Once
	err  error
}

// NewScope creates a uniquely named scope directory under workdir. Unique
// naming is what keeps concurrent requests from colliding in the shared temp
// tree; there is no cross-request locking.
func NewScope(workdir string) (*Scope, error) {
	dir := filepath.Join(workdir, "req-"+uuid.NewString())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating request scope: %w", err)
	}
	return &Scope{dir: dir}, nil
}

// Dir returns the scope directory.
func (s *Scope) Dir() string { return s.dir }

// Path returns the path of a named file inside the scope.
func (s *Scope) Path(name string) string { return filepath.Join(s.dir, name) }

// Close deletes the scope directory and everything in it. Safe to call more
// than once; only the first call does work.
func (s *Scope) Close() error {
	s.once.Do(func() {
		s.err = os.RemoveAll(s.dir)
	})
	return s.err
}

// ArtifactDir returns the directory where final output artifacts are
// written. Artifacts live outside request scopes because they must outlive
// the handler long enough to be streamed; the reaper owns their deletion.
func ArtifactDir(workdir string) string {
	return filepath.Join(workdir, "out")
}
