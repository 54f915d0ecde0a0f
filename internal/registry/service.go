// Package registry serves read-only queries over the current document snapshot
// and rebuilds that snapshot on refresh.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/starford/docreg/internal/apperr"
	"github.com/starford/docreg/internal/graph"
	"github.com/starford/docreg/internal/loader"
	"github.com/starford/docreg/internal/models"
	"github.com/starford/docreg/internal/storage"
)

// State is the lifecycle state of a Service.
type State string

const (
	StateUnloaded State = "unloaded"
	StateReady    State = "ready"
)

// RefreshPolicy decides what a refresh does while another one is running.
type RefreshPolicy string

const (
	// RefreshQueue waits for the running refresh to finish.
	RefreshQueue RefreshPolicy = "queue"
	// RefreshReject fails immediately with apperr.ErrRefreshInProgress.
	RefreshReject RefreshPolicy = "reject"
)

// RefreshListener observes refresh outcomes. On success snap and report are set
// and err is nil; on failure only err is set. Listeners run synchronously after
// the swap, still holding the refresh slot.
type RefreshListener func(snap *Snapshot, report *Report, err error)

// Service holds the current snapshot. Queries load the snapshot pointer once
// and work on that immutable value; Refresh builds a new snapshot and swaps
// the pointer, so in-flight queries keep seeing the snapshot they started with.
type Service struct {
	current atomic.Pointer[Snapshot]
	slot    chan struct{}

	root      string
	exts      []string
	ignore    []string
	workers   int
	timeout   time.Duration
	policy    RefreshPolicy
	logger    *slog.Logger
	listeners []RefreshListener
}

// Option configures a Service.
type Option func(*Service)

// WithRoot sets the root used when Refresh is called with an empty root.
func WithRoot(root string) Option {
	return func(s *Service) { s.root = root }
}

// WithExtensions sets the document extensions.
func WithExtensions(exts ...string) Option {
	return func(s *Service) { s.exts = exts }
}

// WithIgnore sets doublestar patterns excluded from loading.
func WithIgnore(patterns ...string) Option {
	return func(s *Service) { s.ignore = patterns }
}

// WithWorkers bounds loader parallelism.
func WithWorkers(n int) Option {
	return func(s *Service) { s.workers = n }
}

// WithLoadTimeout bounds every refresh in addition to the caller's context.
func WithLoadTimeout(d time.Duration) Option {
	return func(s *Service) { s.timeout = d }
}

// WithRefreshPolicy sets the concurrent refresh policy.
func WithRefreshPolicy(p RefreshPolicy) Option {
	return func(s *Service) { s.policy = p }
}

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithRefreshListener registers a listener for refresh outcomes.
func WithRefreshListener(l RefreshListener) Option {
	return func(s *Service) { s.listeners = append(s.listeners, l) }
}

// NewService creates a Service in the Unloaded state.
func NewService(opts ...Option) *Service {
	s := &Service{
		slot:   make(chan struct{}, 1),
		policy: RefreshQueue,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State reports whether a snapshot is available.
func (s *Service) State() State {
	if s.current.Load() == nil {
		return StateUnloaded
	}
	return StateReady
}

// Refresh loads and resolves the tree at root (or the configured root when
// empty) and atomically replaces the current snapshot. On any error the
// previous snapshot, if there is one, stays active.
func (s *Service) Refresh(ctx context.Context, root string) (*Report, error) {
	if root == "" {
		root = s.root
	}
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	defer func() { <-s.slot }()

	report, err := s.refresh(ctx, root)
	if err != nil {
		s.logger.Warn("registry: refresh failed", slog.String("root", root), slog.String("error", err.Error()))
		s.notify(nil, nil, err)
		return nil, err
	}
	s.logger.Info("registry: snapshot swapped",
		slog.String("snapshot", report.SnapshotID),
		slog.String("root", report.Root),
		slog.Int("documents", report.Stats.Documents),
		slog.Int("load_errors", len(report.LoadErrors)),
		slog.Int("diagnostics", len(report.Diagnostics)),
		slog.Duration("duration", report.Duration))
	s.notify(s.current.Load(), report, nil)
	return report, nil
}

func (s *Service) acquire(ctx context.Context) error {
	if s.policy == RefreshReject {
		select {
		case s.slot <- struct{}{}:
			return nil
		default:
			return fmt.Errorf("registry: refresh: %w", apperr.ErrRefreshInProgress)
		}
	}
	select {
	case s.slot <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("registry: refresh: %w", ctxError(ctx.Err()))
	}
}

func (s *Service) refresh(ctx context.Context, root string) (*Report, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	start := time.Now()

	opts := []storage.FSOption{storage.WithIgnore(s.ignore...)}
	if len(s.exts) > 0 {
		opts = append(opts, storage.WithExtensions(s.exts...))
	}
	store, err := storage.NewFS(root, opts...)
	if err != nil {
		return nil, fmt.Errorf("registry: refresh: %w", err)
	}

	res, err := loader.New(store, loader.WithWorkers(s.workers), loader.WithLogger(s.logger)).Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("registry: refresh: %w", err)
	}
	g := graph.Resolve(res.Documents, store.Extensions())

	// A deadline that expires after loading still discards the new snapshot.
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("registry: refresh: %w", ctxError(err))
	}

	snap := newSnapshot(store.Root(), g, res.Errors)
	s.current.Store(snap)

	return &Report{
		SnapshotID:  snap.ID,
		Root:        snap.Root,
		Duration:    time.Since(start),
		Stats:       g.Stats(),
		LoadErrors:  nonNilSlice(res.Errors),
		Diagnostics: nonNilSlice(g.Diagnostics()),
	}, nil
}

func (s *Service) notify(snap *Snapshot, report *Report, err error) {
	for _, l := range s.listeners {
		l(snap, report, err)
	}
}

func ctxError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", apperr.ErrTimeout, err)
	}
	return err
}

// Snapshot returns the current snapshot.
func (s *Service) Snapshot() (*Snapshot, error) {
	snap := s.current.Load()
	if snap == nil {
		return nil, apperr.ErrNotReady
	}
	return snap, nil
}

// GetByID returns the document with the given id.
func (s *Service) GetByID(id string) (*models.Document, error) {
	snap, err := s.Snapshot()
	if err != nil {
		return nil, err
	}
	d, ok := snap.Graph.Document(id)
	if !ok {
		return nil, fmt.Errorf("registry: document %q: %w", id, apperr.ErrNotFound)
	}
	return d, nil
}

// ListByCategory returns the documents of a category ordered by id.
func (s *Service) ListByCategory(category models.Category) ([]*models.Document, error) {
	snap, err := s.Snapshot()
	if err != nil {
		return nil, err
	}
	c, ok := models.ParseCategory(string(category))
	if !ok {
		return nil, fmt.Errorf("registry: category %q: %w", category, apperr.ErrInvalidCategory)
	}
	return snap.Graph.ByCategory(c), nil
}

// List returns every document ordered by id.
func (s *Service) List() ([]*models.Document, error) {
	snap, err := s.Snapshot()
	if err != nil {
		return nil, err
	}
	return snap.Graph.Documents(), nil
}

// Search returns documents whose title or body contains text, ignoring case,
// ordered by id. Blank text matches nothing.
func (s *Service) Search(text string) ([]*models.Document, error) {
	snap, err := s.Snapshot()
	if err != nil {
		return nil, err
	}
	out := []*models.Document{}
	q := strings.ToLower(strings.TrimSpace(text))
	if q == "" {
		return out, nil
	}
	for _, d := range snap.Graph.Documents() {
		if strings.Contains(strings.ToLower(d.Title), q) || strings.Contains(strings.ToLower(d.Body), q) {
			out = append(out, d)
		}
	}
	return out, nil
}

// Closure returns the document plus everything it transitively references
// within maxDepth hops (negative for unbounded), ordered by id.
func (s *Service) Closure(id string, maxDepth int) ([]*models.Document, error) {
	snap, err := s.Snapshot()
	if err != nil {
		return nil, err
	}
	docs, ok := snap.Graph.Closure(id, maxDepth)
	if !ok {
		return nil, fmt.Errorf("registry: document %q: %w", id, apperr.ErrNotFound)
	}
	return docs, nil
}

// Backlinks returns the documents that reference id, ordered by id.
func (s *Service) Backlinks(id string) ([]*models.Document, error) {
	snap, err := s.Snapshot()
	if err != nil {
		return nil, err
	}
	if _, ok := snap.Graph.Document(id); !ok {
		return nil, fmt.Errorf("registry: document %q: %w", id, apperr.ErrNotFound)
	}
	out := []*models.Document{}
	for _, src := range snap.Graph.Incoming(id) {
		d, _ := snap.Graph.Document(src)
		out = append(out, d)
	}
	return out, nil
}

// Edges returns the outgoing reference edges of a document.
func (s *Service) Edges(id string) ([]models.ReferenceEdge, error) {
	snap, err := s.Snapshot()
	if err != nil {
		return nil, err
	}
	if _, ok := snap.Graph.Document(id); !ok {
		return nil, fmt.Errorf("registry: document %q: %w", id, apperr.ErrNotFound)
	}
	return snap.Graph.Outgoing(id), nil
}

// Diagnostics returns the dangling-reference and cycle diagnostics of the current snapshot.
func (s *Service) Diagnostics() ([]models.Diagnostic, error) {
	snap, err := s.Snapshot()
	if err != nil {
		return nil, err
	}
	return nonNilSlice(snap.Graph.Diagnostics()), nil
}

// LoadErrors returns the per-file errors of the load that built the current snapshot.
func (s *Service) LoadErrors() ([]*models.LoadError, error) {
	snap, err := s.Snapshot()
	if err != nil {
		return nil, err
	}
	return nonNilSlice(snap.LoadErrors), nil
}

// Status describes the service for health and status endpoints.
type Status struct {
	State      State        `json:"state"`
	SnapshotID string       `json:"snapshot_id,omitempty"`
	Root       string       `json:"root,omitempty"`
	LoadedAt   *time.Time   `json:"loaded_at,omitempty"`
	LoadErrors int          `json:"load_errors"`
	Stats      *graph.Stats `json:"stats,omitempty"`
}

// Status never fails; an Unloaded service reports only its state.
func (s *Service) Status() Status {
	snap := s.current.Load()
	if snap == nil {
		return Status{State: StateUnloaded}
	}
	stats := snap.Graph.Stats()
	loadedAt := snap.LoadedAt
	return Status{
		State:      StateReady,
		SnapshotID: snap.ID,
		Root:       snap.Root,
		LoadedAt:   &loadedAt,
		LoadErrors: len(snap.LoadErrors),
		Stats:      &stats,
	}
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
