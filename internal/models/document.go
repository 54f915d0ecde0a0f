// Package models defines the domain types for the document registry.
package models

import (
	"fmt"
	"path"
	"strings"
)

// Category is the kind of a document, taken from its top-level directory.
type Category string

const (
	CategoryAgent    Category = "agent"
	CategoryCommand  Category = "command"
	CategorySkill    Category = "skill"
	CategoryTemplate Category = "template"
)

// Categories lists every recognized category in a stable order.
var Categories = []Category{CategoryAgent, CategoryCommand, CategorySkill, CategoryTemplate}

var categoryDirs = map[string]Category{
	"agents":    CategoryAgent,
	"commands":  CategoryCommand,
	"skills":    CategorySkill,
	"templates": CategoryTemplate,
}

// CategoryForDir maps a top-level directory name to its category.
func CategoryForDir(dir string) (Category, bool) {
	c, ok := categoryDirs[dir]
	return c, ok
}

// ParseCategory accepts either the singular category name or its directory name.
func ParseCategory(s string) (Category, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, c := range Categories {
		if string(c) == s {
			return c, true
		}
	}
	return CategoryForDir(s)
}

// Document is one loaded file. Documents are immutable once a load completes.
type Document struct {
	ID          string         `json:"id"`
	Category    Category       `json:"category"`
	Path        string         `json:"path"`
	Title       string         `json:"title,omitempty"`
	Description string         `json:"description,omitempty"`
	Frontmatter map[string]any `json:"frontmatter,omitempty"`
	Body        string         `json:"body"`
	References  []string       `json:"references"`
	Checksum    string         `json:"checksum"`
}

// ReferenceEdge is one reference from a document, resolved or not.
// An unresolved edge has an empty To and Resolved == false.
type ReferenceEdge struct {
	From     string `json:"from"`
	To       string `json:"to,omitempty"`
	Raw      string `json:"raw"`
	Resolved bool   `json:"resolved"`
}

// DiagnosticKind classifies a graph diagnostic.
type DiagnosticKind string

const (
	DiagnosticDangling DiagnosticKind = "dangling"
	DiagnosticCycle    DiagnosticKind = "cycle"
)

// Diagnostic reports a structural observation about the reference graph.
// Diagnostics are informational: they never fail a load.
type Diagnostic struct {
	Kind    DiagnosticKind `json:"kind"`
	From    string         `json:"from"`
	Raw     string         `json:"raw,omitempty"`
	Cycle   []string       `json:"cycle,omitempty"`
	Message string         `json:"message"`
}

// DanglingDiagnostic reports a reference from a document that matches no loaded document.
func DanglingDiagnostic(from, raw string) Diagnostic {
	return Diagnostic{
		Kind:    DiagnosticDangling,
		From:    from,
		Raw:     raw,
		Message: fmt.Sprintf("%s references %q, which matches no loaded document", from, raw),
	}
}

// LoadError describes a single file that could not be admitted to the document set.
type LoadError struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
	Err    error  `json:"-"`
}

func (e *LoadError) Error() string {
	return e.Path + ": " + e.Reason
}

func (e *LoadError) Unwrap() error { return e.Err }

// Extensions is the set of file suffixes treated as documents.
type Extensions []string

// DefaultExtensions are the markdown suffixes recognized when none are configured.
var DefaultExtensions = Extensions{".md", ".markdown"}

// Match reports the suffix of name that is a recognized extension.
// Matching is case-insensitive.
func (e Extensions) Match(name string) (string, bool) {
	lower := strings.ToLower(name)
	best := ""
	for _, ext := range e {
		ext = strings.ToLower(ext)
		if strings.HasSuffix(lower, ext) && len(ext) > len(best) {
			best = ext
		}
	}
	if best == "" {
		return "", false
	}
	return name[len(name)-len(best):], true
}

// NormalizeID maps a relative path or reference string to a document id:
// forward slashes, cleaned, no leading "./" or "/", recognized extension removed.
func NormalizeID(raw string, exts Extensions) string {
	p := strings.ReplaceAll(strings.TrimSpace(raw), `\`, "/")
	if p == "" {
		return ""
	}
	p = strings.TrimLeft(path.Clean("/"+p), "/")
	if ext, ok := exts.Match(p); ok {
		p = p[:len(p)-len(ext)]
	}
	return p
}
