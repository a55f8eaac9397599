package assets

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/user/arcana/internal/types"
)

func TestResolve(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "fool.jpg"), []byte("jpg"), 0o644); err != nil {
		t.Fatal(err)
	}
	r := New(dir)

	path, err := r.Resolve(types.Card{Name: "The Fool", Image: "fool.jpg"})
	if err != nil {
		t.Fatal(err)
	}
	if path != filepath.Join(dir, "fool.jpg") {
		t.Errorf("unexpected path %s", path)
	}
}

func TestResolveMissing(t *testing.T) {
	r := New(t.TempDir())

	_, err := r.Resolve(types.Card{Name: "The Tower", Image: "tower.jpg"})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	_, err = r.Resolve(types.Card{Name: "Nameless"})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for empty image name, got %v", err)
	}
}
