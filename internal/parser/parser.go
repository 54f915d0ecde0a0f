// Package parser extracts front matter, title, and document references from Markdown content.
package parser

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"gopkg.in/yaml.v3"

	"github.com/starford/docreg/internal/apperr"
	"github.com/starford/docreg/internal/models"
)

const delim = "---"

// Result holds the output of parsing a Markdown file.
type Result struct {
	Frontmatter map[string]any
	Body        string
	Title       string
	Description string
	References  []string
}

// Parse extracts front matter, body, title and references from raw Markdown bytes.
// Every failure wraps apperr.ErrParse.
func Parse(data []byte, exts models.Extensions) (*Result, error) {
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("parser: %w: content is not valid UTF-8", apperr.ErrParse)
	}
	data = bytes.TrimPrefix(data, []byte("\ufeff"))

	fm, body, err := splitFrontmatter(string(data))
	if err != nil {
		return nil, err
	}

	return &Result{
		Frontmatter: fm,
		Body:        body,
		Title:       deriveTitle(fm, body),
		Description: stringField(fm, "description"),
		References:  ExtractReferences(body, exts),
	}, nil
}

// splitFrontmatter separates a YAML header (between leading --- lines)
// from the Markdown body. Content without an opening delimiter is all body.
func splitFrontmatter(content string) (map[string]any, string, error) {
	trimmed := strings.TrimLeft(content, "\r\n")
	first, rest, more := strings.Cut(trimmed, "\n")
	if strings.TrimRight(first, "\r \t") != delim {
		return nil, content, nil
	}
	if !more {
		return nil, "", fmt.Errorf("parser: %w: unterminated front matter", apperr.ErrParse)
	}

	offset := 0
	for {
		line, _, hasNext := strings.Cut(rest[offset:], "\n")
		if strings.TrimRight(line, "\r \t") == delim {
			block := rest[:offset]
			body := ""
			if hasNext {
				body = strings.TrimLeft(rest[offset+len(line)+1:], "\r\n")
			}
			fm := map[string]any{}
			if err := yaml.Unmarshal([]byte(block), &fm); err != nil {
				return nil, "", fmt.Errorf("parser: %w: front matter: %v", apperr.ErrParse, err)
			}
			return fm, body, nil
		}
		if !hasNext {
			return nil, "", fmt.Errorf("parser: %w: unterminated front matter", apperr.ErrParse)
		}
		offset += len(line) + 1
	}
}

// deriveTitle returns the front matter "title", then "name", then the first
// Markdown heading, otherwise an empty string.
func deriveTitle(fm map[string]any, body string) string {
	for _, key := range []string{"title", "name"} {
		if s := stringField(fm, key); s != "" {
			return s
		}
	}
	return firstHeading(body)
}

func stringField(fm map[string]any, key string) string {
	if fm == nil {
		return ""
	}
	s, _ := fm[key].(string)
	return strings.TrimSpace(s)
}

// firstHeading walks the Markdown AST so that "#" lines inside code blocks
// are not mistaken for headings.
func firstHeading(body string) string {
	src := []byte(body)
	doc := goldmark.New().Parser().Parse(text.NewReader(src))

	var title string
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		h, ok := n.(*ast.Heading)
		if !ok {
			return ast.WalkContinue, nil
		}
		var buf bytes.Buffer
		lines := h.Lines()
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			buf.Write(seg.Value(src))
		}
		title = strings.TrimSpace(buf.String())
		return ast.WalkStop, nil
	})
	return title
}
