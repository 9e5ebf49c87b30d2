package pipeline

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestScopeLifecycle(t *testing.T) {
	workdir := t.TempDir()

	scope, err := NewScope(workdir)
	if err != nil {
		t.Fatalf("NewScope: %v", err)
	}
	if !strings.HasPrefix(filepath.Base(scope.Dir()), "req-") {
		t.Fatalf("scope dir not request-prefixed: %s", scope.Dir())
	}
	if filepath.Dir(scope.Dir()) != workdir {
		t.Fatalf("scope dir outside workdir: %s", scope.Dir())
	}

	path := scope.Path("input.ply")
	if err := os.WriteFile(path, []byte("data"), 0o644); err != nil {
		t.Fatalf("writing into scope: %v", err)
	}

	if err := scope.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := os.Stat(scope.Dir()); !os.IsNotExist(err) {
		t.Fatalf("scope dir survived Close: %v", err)
	}
	// Second Close is a no-op.
	if err := scope.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestScopesDoNotCollide(t *testing.T) {
	workdir := t.TempDir()
	a, err := NewScope(workdir)
	if err != nil {
		t.Fatalf("NewScope: %v", err)
	}
	defer a.Close()
	b, err := NewScope(workdir)
	if err != nil {
		t.Fatalf("NewScope: %v", err)
	}
	defer b.Close()
	if a.Dir() == b.Dir() {
		t.Fatalf("two scopes share a directory: %s", a.Dir())
	}
}
