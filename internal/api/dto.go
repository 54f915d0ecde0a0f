package api

import "github.com/starford/docreg/internal/models"

// DocumentListItem is a lightweight item in a list response.
type DocumentListItem struct {
	ID          string          `json:"id" example:"skills/testing/SKILL" validate:"required"`
	Category    models.Category `json:"category" example:"skill" validate:"required"`
	Path        string          `json:"path" example:"skills/testing/SKILL.md" validate:"required"`
	Title       string          `json:"title" example:"Testing"`
	Description string          `json:"description,omitempty"`
}

// DocumentListResponse wraps document listings.
type DocumentListResponse struct {
	Documents []DocumentListItem `json:"documents" validate:"required"`
	Total     int                `json:"total" example:"42" validate:"required"`
}

// DocumentDetail is the full document response: the document plus its
// outgoing edges and the ids of documents referencing it.
type DocumentDetail struct {
	*models.Document
	Edges     []models.ReferenceEdge `json:"edges" validate:"required"`
	Backlinks []string               `json:"backlinks" validate:"required"`
}

// ClosureResponse lists a document and everything it transitively references.
type ClosureResponse struct {
	ID        string             `json:"id" example:"commands/bugfix" validate:"required"`
	Depth     int                `json:"depth" example:"-1"`
	Documents []DocumentListItem `json:"documents" validate:"required"`
}

// SearchResult is a single search hit in the API response.
type SearchResult struct {
	ID      string `json:"id" example:"skills/testing/SKILL" validate:"required"`
	Title   string `json:"title" example:"Testing"`
	Snippet string `json:"snippet,omitempty" example:"...matched text..."`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []SearchResult `json:"results" validate:"required"`
}

// DiagnosticsResponse reports the graph diagnostics and per-file load errors
// of the current snapshot.
type DiagnosticsResponse struct {
	Diagnostics []models.Diagnostic `json:"diagnostics" validate:"required"`
	LoadErrors  []*models.LoadError `json:"load_errors" validate:"required"`
}

func listItem(d *models.Document) DocumentListItem {
	return DocumentListItem{
		ID:          d.ID,
		Category:    d.Category,
		Path:        d.Path,
		Title:       d.Title,
		Description: d.Description,
	}
}

func listItems(docs []*models.Document) []DocumentListItem {
	out := make([]DocumentListItem, len(docs))
	for i, d := range docs {
		out[i] = listItem(d)
	}
	return out
}
