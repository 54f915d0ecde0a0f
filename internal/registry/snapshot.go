package registry

import (
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	"github.com/starford/docreg/internal/graph"
	"github.com/starford/docreg/internal/models"
)

// Snapshot is one fully built load/resolve cycle. It is never mutated after
// construction; Refresh replaces it wholesale.
type Snapshot struct {
	ID         string
	Root       string
	LoadedAt   time.Time
	Graph      *graph.Graph
	LoadErrors []*models.LoadError
}

func newSnapshot(root string, g *graph.Graph, loadErrs []*models.LoadError) *Snapshot {
	return &Snapshot{
		ID:         uuid.NewString(),
		Root:       root,
		LoadedAt:   time.Now().UTC(),
		Graph:      g,
		LoadErrors: loadErrs,
	}
}

// Report is what a refresh hands back to its caller: the per-file load
// errors and the graph diagnostics of the new snapshot.
type Report struct {
	SnapshotID  string              `json:"snapshot_id"`
	Root        string              `json:"root"`
	Duration    time.Duration       `json:"duration"`
	Stats       graph.Stats         `json:"stats"`
	LoadErrors  []*models.LoadError `json:"load_errors"`
	Diagnostics []models.Diagnostic `json:"diagnostics"`
}

// Err folds the load errors into a single error, or nil when the load was clean.
// Diagnostics are never part of it.
func (r *Report) Err() error {
	var merr *multierror.Error
	for _, e := range r.LoadErrors {
		merr = multierror.Append(merr, e)
	}
	return merr.ErrorOrNil()
}
