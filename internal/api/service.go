package api

import (
	"context"

	"github.com/starford/docreg/internal/index"
	"github.com/starford/docreg/internal/models"
	"github.com/starford/docreg/internal/registry"
)

// Registry is the query surface the API needs. *registry.Service implements it.
type Registry interface {
	GetByID(id string) (*models.Document, error)
	List() ([]*models.Document, error)
	ListByCategory(category models.Category) ([]*models.Document, error)
	Search(text string) ([]*models.Document, error)
	Closure(id string, maxDepth int) ([]*models.Document, error)
	Backlinks(id string) ([]*models.Document, error)
	Edges(id string) ([]models.ReferenceEdge, error)
	Diagnostics() ([]models.Diagnostic, error)
	LoadErrors() ([]*models.LoadError, error)
	Status() registry.Status
	Refresh(ctx context.Context, root string) (*registry.Report, error)
}

// Mirror is the read side of the SQLite mirror: ranked search and the
// persisted reference tables.
type Mirror interface {
	Search(query string, limit int) ([]index.SearchResult, error)
	GetDocument(id string) (*index.DocumentRow, error)
	Backlinks(target string) ([]string, error)
	Dangling() ([]index.DanglingRow, error)
}

var (
	_ Registry = (*registry.Service)(nil)
	_ Mirror   = (*index.DB)(nil)
)
