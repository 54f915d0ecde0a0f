package storage

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/starford/docreg/internal/apperr"
	"github.com/starford/docreg/internal/models"
)

// FS implements Provider backed by the local file system.
type FS struct {
	root   string // absolute path to the document root
	exts   models.Extensions
	ignore []string
}

// FSOption configures an FS.
type FSOption func(*FS)

// WithExtensions overrides the recognized document extensions.
func WithExtensions(exts ...string) FSOption {
	return func(f *FS) {
		if len(exts) > 0 {
			f.exts = models.Extensions(exts)
		}
	}
}

// WithIgnore sets doublestar patterns (relative to root) that are never listed.
func WithIgnore(patterns ...string) FSOption {
	return func(f *FS) {
		f.ignore = append(f.ignore, patterns...)
	}
}

// NewFS creates a new FS provider rooted at the given directory.
// The directory must already exist and be readable.
func NewFS(root string, opts ...FSOption) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w: %w", apperr.ErrIO, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: stat root: %w: %w", apperr.ErrIO, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage: root is not a directory: %s: %w", abs, apperr.ErrIO)
	}
	f := &FS{root: abs, exts: models.DefaultExtensions}
	for _, opt := range opts {
		opt(f)
	}
	for _, p := range f.ignore {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("storage: invalid ignore pattern %q", p)
		}
	}
	return f, nil
}

// Root returns the absolute root directory.
func (f *FS) Root() string { return f.root }

// Extensions returns the recognized document extensions.
func (f *FS) Extensions() models.Extensions { return f.exts }

// safePath resolves a relative path against the root and rejects
// any result that escapes it (directory traversal).
func (f *FS) safePath(rel string) (string, error) {
	if rel == "" {
		return f.root, nil
	}
	cleaned := filepath.Clean(filepath.FromSlash(rel))
	if filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("storage: absolute paths not allowed: %s", rel)
	}
	abs, err := filepath.Abs(filepath.Join(f.root, cleaned))
	if err != nil {
		return "", fmt.Errorf("storage: resolve path: %w", err)
	}
	if !strings.HasPrefix(abs, f.root+string(os.PathSeparator)) && abs != f.root {
		return "", fmt.Errorf("storage: path escapes root: %s", rel)
	}
	return abs, nil
}

func (f *FS) ignored(rel string) bool {
	return Ignored(f.ignore, rel)
}

// Ignored reports whether the slash-separated path rel, relative to the root,
// matches any of the doublestar patterns. A directory also matches patterns
// that cover its contents, so ".git/**" ignores ".git" itself.
func Ignored(patterns []string, rel string) bool {
	for _, p := range patterns {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
		if ok, _ := doublestar.Match(p, rel+"/"); ok {
			return true
		}
	}
	return false
}

// List walks the root and returns metadata for every document file,
// sorted lexicographically by relative path.
func (f *FS) List(ctx context.Context) ([]FileMeta, error) {
	if _, err := os.ReadDir(f.root); err != nil {
		return nil, fmt.Errorf("storage: read root: %w: %w", apperr.ErrIO, err)
	}
	var out []FileMeta
	err := filepath.WalkDir(f.root, func(p string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if walkErr != nil {
			return fmt.Errorf("%w: %w", apperr.ErrIO, walkErr)
		}
		if p == f.root {
			return nil
		}
		rel, err := filepath.Rel(f.root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if f.ignored(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if _, ok := f.exts.Match(d.Name()); !ok {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return fmt.Errorf("%w: %w", apperr.ErrIO, err)
		}
		out = append(out, FileMeta{Path: rel, Size: info.Size(), ModTime: info.ModTime()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("storage: list: %w", err)
	}
	slices.SortFunc(out, func(a, b FileMeta) int { return strings.Compare(a.Path, b.Path) })
	return out, nil
}

// Read returns the raw bytes of a document file.
func (f *FS) Read(path string) ([]byte, error) {
	abs, err := f.safePath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", path, err)
	}
	return data, nil
}
