// Package storage defines the read-only view of the document tree.
package storage

import (
	"context"
	"time"

	"github.com/starford/docreg/internal/models"
)

// FileMeta describes one candidate document file.
type FileMeta struct {
	Path    string // relative to root, forward slashes
	Size    int64
	ModTime time.Time
}

// Provider is the interface for document tree access.
type Provider interface {
	// Root returns the absolute root directory.
	Root() string
	// List returns every file with a recognized extension, sorted by path.
	List(ctx context.Context) ([]FileMeta, error)
	// Extensions returns the suffixes that identify document files.
	Extensions() models.Extensions
	// Read returns the raw bytes of the file at path (relative to root).
	Read(path string) ([]byte, error)
}
