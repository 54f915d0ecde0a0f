// Package loader turns a document tree into a deterministic set of parsed documents.
package loader

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"runtime"
	"strings"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"github.com/starford/docreg/internal/apperr"
	"github.com/starford/docreg/internal/checksum"
	"github.com/starford/docreg/internal/models"
	"github.com/starford/docreg/internal/parser"
	"github.com/starford/docreg/internal/storage"
)

// Result is the outcome of one load: the admitted documents in path order
// and one LoadError per file that was rejected.
type Result struct {
	Documents []*models.Document
	Errors    []*models.LoadError
}

// Err folds the per-file errors into a single error, or nil when there are none.
func (r *Result) Err() error {
	var merr *multierror.Error
	for _, e := range r.Errors {
		merr = multierror.Append(merr, e)
	}
	return merr.ErrorOrNil()
}

// Loader reads and parses documents from a storage.Provider.
type Loader struct {
	store   storage.Provider
	workers int
	logger  *slog.Logger
}

// Option configures a Loader.
type Option func(*Loader)

// WithWorkers bounds the number of files parsed concurrently.
func WithWorkers(n int) Option {
	return func(l *Loader) {
		if n > 0 {
			l.workers = n
		}
	}
}

// WithLogger sets the logger used for per-file diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// New creates a Loader over store.
func New(store storage.Provider, opts ...Option) *Loader {
	l := &Loader{
		store:   store,
		workers: runtime.GOMAXPROCS(0),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

type candidate struct {
	path     string
	id       string
	category models.Category
}

type outcome struct {
	doc *models.Document
	err *models.LoadError
}

// Load enumerates, reads and parses every document under the store root.
//
// Per-file failures are collected in Result.Errors. The returned error is
// reserved for whole-load failures: apperr.ErrIO when the root cannot be read
// or a file disappears mid-scan, apperr.ErrTimeout when ctx's deadline passes.
func (l *Loader) Load(ctx context.Context) (*Result, error) {
	metas, err := l.store.List(ctx)
	if err != nil {
		return nil, contextError(ctx, err)
	}

	exts := l.store.Extensions()
	candidates := make([]candidate, 0, len(metas))
	for _, m := range metas {
		top, _, nested := strings.Cut(m.Path, "/")
		if !nested {
			continue
		}
		cat, ok := models.CategoryForDir(top)
		if !ok {
			continue
		}
		candidates = append(candidates, candidate{
			path:     m.Path,
			id:       models.NormalizeID(m.Path, exts),
			category: cat,
		})
	}

	outcomes := make([]outcome, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.workers)
	for i, c := range candidates {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out, err := l.loadFile(c, exts)
			if err != nil {
				return err
			}
			outcomes[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, contextError(ctx, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, contextError(ctx, err)
	}

	res := &Result{Documents: make([]*models.Document, 0, len(outcomes))}
	owners := make(map[string]string, len(outcomes))
	for _, out := range outcomes {
		if out.err != nil {
			res.Errors = append(res.Errors, out.err)
			continue
		}
		doc := out.doc
		if first, dup := owners[doc.ID]; dup {
			res.Errors = append(res.Errors, &models.LoadError{
				Path:   doc.Path,
				Reason: fmt.Sprintf("duplicate id %q, already defined by %s", doc.ID, first),
				Err:    apperr.ErrDuplicateID,
			})
			continue
		}
		owners[doc.ID] = doc.Path
		res.Documents = append(res.Documents, doc)
	}

	for _, e := range res.Errors {
		l.logger.Warn("loader: document rejected", slog.String("path", e.Path), slog.String("reason", e.Reason))
	}
	l.logger.Debug("loader: load complete",
		slog.Int("documents", len(res.Documents)),
		slog.Int("errors", len(res.Errors)))
	return res, nil
}

// loadFile reads and parses one candidate. A non-nil error aborts the whole load.
func (l *Loader) loadFile(c candidate, exts models.Extensions) (outcome, error) {
	data, err := l.store.Read(c.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return outcome{}, fmt.Errorf("loader: %s disappeared during scan: %w: %w", c.path, apperr.ErrIO, err)
		}
		return outcome{err: &models.LoadError{Path: c.path, Reason: err.Error(), Err: err}}, nil
	}
	res, err := parser.Parse(data, exts)
	if err != nil {
		return outcome{err: &models.LoadError{Path: c.path, Reason: err.Error(), Err: err}}, nil
	}
	l.logger.Debug("loader: parsed",
		slog.String("path", c.path),
		slog.String("id", c.id),
		slog.String("checksum", checksum.Short(data)))
	return outcome{doc: &models.Document{
		ID:          c.id,
		Category:    c.category,
		Path:        c.path,
		Title:       res.Title,
		Description: res.Description,
		Frontmatter: res.Frontmatter,
		Body:        res.Body,
		References:  nonNilSlice(res.References),
		Checksum:    checksum.Sum(data),
	}}, nil
}

// contextError maps an expired deadline to apperr.ErrTimeout.
func contextError(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("loader: %w: %w", apperr.ErrTimeout, context.DeadlineExceeded)
	}
	return err
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
