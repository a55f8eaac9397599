// Package assets resolves card images on disk.
package assets

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/user/arcana/internal/types"
)

// ErrNotFound is returned when a card has no image file on disk. The
// orchestrator converts it into a text-only fallback, never a failure.
var ErrNotFound = errors.New("card image not found")

// Resolver maps card names to image files under a single directory.
type Resolver struct {
	dir string
}

var _ types.AssetResolver = (*Resolver)(nil)

// New creates a Resolver rooted at dir. The directory may be empty or
// missing; resolution then degrades to text fallbacks per card.
func New(dir string) *Resolver {
	return &Resolver{dir: dir}
}

// Resolve returns the path of the card's image, or ErrNotFound when the file
// does not exist.
func (r *Resolver) Resolve(card types.Card) (string, error) {
	if card.Image == "" {
		return "", fmt.Errorf("%w: %s has no image name", ErrNotFound, card.Name)
	}
	path := filepath.Join(r.dir, card.Image)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return "", fmt.Errorf("stat card image: %w", err)
	}
	return path, nil
}
