package api

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/docreg/internal/apperr"
	"github.com/starford/docreg/internal/models"
)

// Handler holds API route handlers.
type Handler struct {
	reg    Registry
	mirror Mirror
	exts   models.Extensions
}

// NewHandler creates a new Handler. mirror may be nil.
func NewHandler(reg Registry, mirror Mirror, exts models.Extensions) *Handler {
	return &Handler{reg: reg, mirror: mirror, exts: exts}
}

// documentID extracts the document id from the URL wildcard.
// Supports encoded slashes (e.g. skills%2Ftesting%2FSKILL) and an optional
// recognized extension.
func (h *Handler) documentID(r *http.Request) string {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if raw == "" {
		return ""
	}
	if decoded, err := url.PathUnescape(raw); err == nil {
		raw = decoded
	}
	return models.NormalizeID(raw, h.exts)
}

// fromIndex reports whether the request asks for source=index. It writes a
// 400 and returns false when the mirror is not configured.
func (h *Handler) fromIndex(w http.ResponseWriter, r *http.Request) (bool, bool) {
	if r.URL.Query().Get("source") != "index" {
		return false, true
	}
	if h.mirror == nil {
		writeJSON(w, http.StatusBadRequest, errorBody("index is not enabled"))
		return true, false
	}
	return true, true
}

func mirrorFailed(w http.ResponseWriter, op string, err error) {
	slog.Error("index "+op+" failed", slog.String("error", err.Error()))
	writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
}

// ListDocuments handles GET /api/documents.
//
//	@Summary		List documents, optionally filtered by category
//	@Tags			documents
//	@Produce		json
//	@Param			category	query		string	false	"Category"	Enums(agent, command, skill, template)
//	@Success		200			{object}	DocumentListResponse
//	@Failure		400			{object}	errResponse
//	@Failure		503			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/documents [get]
func (h *Handler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	var (
		docs []*models.Document
		err  error
	)
	if c := r.URL.Query().Get("category"); c != "" {
		docs, err = h.reg.ListByCategory(models.Category(c))
	} else {
		docs, err = h.reg.List()
	}
	if err != nil {
		writeError(w, "list documents", err)
		return
	}
	writeJSON(w, http.StatusOK, DocumentListResponse{
		Documents: listItems(docs),
		Total:     len(docs),
	})
}

// GetDocument handles GET /api/documents/*.
//
//	@Summary		Get a single document by id
//	@Tags			documents
//	@Produce		json
//	@Param			id	path		string	true	"Document id"
//	@Success		200	{object}	DocumentDetail
//	@Failure		404	{object}	errResponse
//	@Failure		503	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/documents/{id} [get]
func (h *Handler) GetDocument(w http.ResponseWriter, r *http.Request) {
	id := h.documentID(r)
	if id == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("id is required"))
		return
	}
	doc, err := h.reg.GetByID(id)
	if err != nil {
		writeError(w, "get document", err)
		return
	}
	edges, err := h.reg.Edges(id)
	if err != nil {
		writeError(w, "get document edges", err)
		return
	}
	backlinks, err := h.reg.Backlinks(id)
	if err != nil {
		writeError(w, "get document backlinks", err)
		return
	}
	ids := make([]string, len(backlinks))
	for i, d := range backlinks {
		ids[i] = d.ID
	}
	writeJSON(w, http.StatusOK, DocumentDetail{Document: doc, Edges: edges, Backlinks: ids})
}

// Closure handles GET /api/closure/*.
//
//	@Summary		Document plus everything it transitively references
//	@Tags			graph
//	@Produce		json
//	@Param			id		path		string	true	"Document id"
//	@Param			depth	query		int		false	"Maximum hops; negative or absent for unbounded"
//	@Success		200		{object}	ClosureResponse
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/closure/{id} [get]
func (h *Handler) Closure(w http.ResponseWriter, r *http.Request) {
	id := h.documentID(r)
	if id == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("id is required"))
		return
	}
	depth := -1
	if s := r.URL.Query().Get("depth"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody("depth must be an integer"))
			return
		}
		depth = n
	}
	docs, err := h.reg.Closure(id, depth)
	if err != nil {
		writeError(w, "closure", err)
		return
	}
	writeJSON(w, http.StatusOK, ClosureResponse{ID: id, Depth: depth, Documents: listItems(docs)})
}

// Backlinks handles GET /api/backlinks/*.
//
//	@Summary		Documents that reference the given document
//	@Tags			graph
//	@Produce		json
//	@Param			id		path		string	true	"Document id"
//	@Param			source	query		string	false	"registry or index"
//	@Success		200		{object}	DocumentListResponse
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/backlinks/{id} [get]
func (h *Handler) Backlinks(w http.ResponseWriter, r *http.Request) {
	id := h.documentID(r)
	if id == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("id is required"))
		return
	}
	indexed, ok := h.fromIndex(w, r)
	if !ok {
		return
	}
	if indexed {
		h.indexBacklinks(w, id)
		return
	}
	docs, err := h.reg.Backlinks(id)
	if err != nil {
		writeError(w, "backlinks", err)
		return
	}
	writeJSON(w, http.StatusOK, DocumentListResponse{Documents: listItems(docs), Total: len(docs)})
}

func (h *Handler) indexBacklinks(w http.ResponseWriter, id string) {
	if _, err := h.mirror.GetDocument(id); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeError(w, "backlinks", err)
			return
		}
		mirrorFailed(w, "backlinks", err)
		return
	}
	ids, err := h.mirror.Backlinks(id)
	if err != nil {
		mirrorFailed(w, "backlinks", err)
		return
	}
	items := make([]DocumentListItem, 0, len(ids))
	for _, src := range ids {
		row, err := h.mirror.GetDocument(src)
		if err != nil {
			mirrorFailed(w, "backlinks", err)
			return
		}
		items = append(items, DocumentListItem{
			ID:          row.ID,
			Category:    row.Category,
			Path:        row.Path,
			Title:       row.Title,
			Description: row.Description,
		})
	}
	writeJSON(w, http.StatusOK, DocumentListResponse{Documents: items, Total: len(items)})
}

// Search handles GET /api/search.
//
//	@Summary		Search document titles and bodies
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	true	"Search text"
//	@Param			source	query		string	false	"registry (substring) or index (ranked, needs the mirror)"
//	@Param			limit	query		int		false	"Max results for source=index"
//	@Success		200		{object}	SearchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if strings.TrimSpace(q) == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}

	indexed, ok := h.fromIndex(w, r)
	if !ok {
		return
	}
	if indexed {
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		hits, err := h.mirror.Search(q, limit)
		if err != nil {
			mirrorFailed(w, "search", err)
			return
		}
		results := make([]SearchResult, len(hits))
		for i, hit := range hits {
			results[i] = SearchResult{ID: hit.ID, Title: hit.Title, Snippet: hit.Snippet}
		}
		writeJSON(w, http.StatusOK, SearchResponse{Results: results})
		return
	}

	docs, err := h.reg.Search(q)
	if err != nil {
		writeError(w, "search", err)
		return
	}
	results := make([]SearchResult, len(docs))
	for i, d := range docs {
		results[i] = SearchResult{ID: d.ID, Title: d.Title}
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: results})
}

// Diagnostics handles GET /api/diagnostics.
//
//	@Summary		Dangling references, cycles and load errors of the current snapshot
//	@Tags			registry
//	@Produce		json
//	@Param			source	query		string	false	"registry or index (dangling references only)"
//	@Success		200		{object}	DiagnosticsResponse
//	@Failure		400		{object}	errResponse
//	@Failure		503		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/diagnostics [get]
func (h *Handler) Diagnostics(w http.ResponseWriter, r *http.Request) {
	indexed, ok := h.fromIndex(w, r)
	if !ok {
		return
	}
	if indexed {
		rows, err := h.mirror.Dangling()
		if err != nil {
			mirrorFailed(w, "dangling", err)
			return
		}
		diags := make([]models.Diagnostic, len(rows))
		for i, row := range rows {
			diags[i] = models.DanglingDiagnostic(row.Source, row.Raw)
		}
		writeJSON(w, http.StatusOK, DiagnosticsResponse{Diagnostics: diags, LoadErrors: []*models.LoadError{}})
		return
	}
	diags, err := h.reg.Diagnostics()
	if err != nil {
		writeError(w, "diagnostics", err)
		return
	}
	loadErrs, err := h.reg.LoadErrors()
	if err != nil {
		writeError(w, "load errors", err)
		return
	}
	writeJSON(w, http.StatusOK, DiagnosticsResponse{Diagnostics: diags, LoadErrors: loadErrs})
}

// Status handles GET /api/status.
//
//	@Summary		Registry state and snapshot statistics
//	@Tags			registry
//	@Produce		json
//	@Success		200	{object}	registry.Status
//	@Security		BearerAuth
//	@Router			/status [get]
func (h *Handler) Status(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.reg.Status())
}

// Refresh handles POST /api/refresh.
//
//	@Summary		Reload the document tree and swap the snapshot
//	@Tags			registry
//	@Produce		json
//	@Success		200	{object}	registry.Report
//	@Failure		409	{object}	errResponse
//	@Failure		504	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/refresh [post]
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	report, err := h.reg.Refresh(r.Context(), "")
	if err != nil {
		writeError(w, "refresh", err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
