// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes registry lookups for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/docreg/internal/models"
	"github.com/starford/docreg/internal/registry"
)

// ReferenceSyntaxURI is the resource describing how documents reference each other.
const ReferenceSyntaxURI = "docreg://reference-syntax"

// Server wraps the MCP server with registry tools.
type Server struct {
	mcp  *server.MCPServer
	reg  *registry.Service
	exts models.Extensions
}

// Option configures a Server.
type Option func(*Server)

// WithExtensions sets the suffixes stripped from ids passed to tools. It
// should match the registry's configured extensions.
func WithExtensions(exts models.Extensions) Option {
	return func(s *Server) {
		if len(exts) > 0 {
			s.exts = exts
		}
	}
}

// New creates a new MCP server with all registry tools registered.
func New(reg *registry.Service, version string, opts ...Option) *Server {
	s := &Server{reg: reg, exts: models.DefaultExtensions}
	for _, opt := range opts {
		opt(s)
	}

	s.mcp = server.NewMCPServer(
		"docreg",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("get_document",
		mcp.WithDescription("Read a document by id, including its front matter, body and outgoing references."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Document id, e.g. skills/testing/SKILL (a .md suffix is accepted)")),
	), s.getDocument)

	s.mcp.AddTool(mcp.NewTool("list_documents",
		mcp.WithDescription("List document ids and titles, optionally restricted to one category."),
		mcp.WithString("category", mcp.Description("agent, command, skill or template (empty for all)")),
	), s.listDocuments)

	s.mcp.AddTool(mcp.NewTool("search_documents",
		mcp.WithDescription("Case-insensitive substring search over document titles and bodies."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Text to search for")),
	), s.searchDocuments)

	s.mcp.AddTool(mcp.NewTool("document_closure",
		mcp.WithDescription("Return a document plus every document it transitively references. "+
			"Use this to gather all context a command or skill depends on."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Starting document id")),
		mcp.WithNumber("depth", mcp.Description("Maximum number of hops; negative or absent for unbounded")),
	), s.documentClosure)

	s.mcp.AddTool(mcp.NewTool("get_backlinks",
		mcp.WithDescription("Find all documents that reference the specified document."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Id of the document to find backlinks for")),
	), s.getBacklinks)

	s.mcp.AddTool(mcp.NewTool("list_diagnostics",
		mcp.WithDescription("List dangling references, reference cycles and files that failed to load."),
	), s.listDiagnostics)

	s.mcp.AddTool(mcp.NewTool("refresh_registry",
		mcp.WithDescription("Reload the document tree from disk and report load errors and diagnostics."),
	), s.refreshRegistry)

	// Resource: reference syntax.
	s.mcp.AddResource(
		mcp.NewResource(ReferenceSyntaxURI, "Reference Syntax",
			mcp.WithResourceDescription("How documents reference each other and how references resolve."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readReferenceSyntaxResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

type listItem struct {
	ID       string          `json:"id"`
	Category models.Category `json:"category"`
	Title    string          `json:"title,omitempty"`
}

func listItems(docs []*models.Document) []listItem {
	out := make([]listItem, len(docs))
	for i, d := range docs {
		out[i] = listItem{ID: d.ID, Category: d.Category, Title: d.Title}
	}
	return out
}

func (s *Server) documentID(raw string) string {
	return models.NormalizeID(raw, s.exts)
}

func (s *Server) getDocument(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	id := s.documentID(raw)
	doc, err := s.reg.GetByID(id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	edges, err := s.reg.Edges(id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(struct {
		*models.Document
		Edges []models.ReferenceEdge `json:"edges"`
	}{doc, edges})
}

func (s *Server) listDocuments(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var (
		docs []*models.Document
		err  error
	)
	if c := req.GetString("category", ""); c != "" {
		docs, err = s.reg.ListByCategory(models.Category(c))
	} else {
		docs, err = s.reg.List()
	}
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(listItems(docs))
}

func (s *Server) searchDocuments(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	docs, err := s.reg.Search(query)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(listItems(docs))
}

func (s *Server) documentClosure(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	depth := req.GetInt("depth", -1)
	docs, err := s.reg.Closure(s.documentID(raw), depth)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(listItems(docs))
}

func (s *Server) getBacklinks(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	docs, err := s.reg.Backlinks(s.documentID(raw))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(docs) == 0 {
		return mcp.NewToolResultText("no backlinks found"), nil
	}
	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
	}
	return mcp.NewToolResultText(strings.Join(ids, "\n")), nil
}

func (s *Server) listDiagnostics(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	diags, err := s.reg.Diagnostics()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	loadErrs, err := s.reg.LoadErrors()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]any{
		"diagnostics": diags,
		"load_errors": loadErrs,
	})
}

func (s *Server) refreshRegistry(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	report, err := s.reg.Refresh(ctx, "")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("refresh failed: %v", err)), nil
	}
	return jsonResult(report)
}

func (s *Server) readReferenceSyntaxResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      ReferenceSyntaxURI,
			MIMEType: "text/markdown",
			Text:     ReferenceSyntax,
		},
	}, nil
}
