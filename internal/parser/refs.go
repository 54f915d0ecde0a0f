package parser

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/starford/docreg/internal/models"
)

// pathTokenRe matches maximal runs of path characters; candidates are then
// filtered by extension so that "notes.mdx" never yields "notes.md".
var pathTokenRe = regexp.MustCompile(`[\p{L}\p{N}_./-]+`)

// ExtractReferences returns every path-like token in body that ends in a
// recognized extension, in order of appearance, duplicates included.
// Tokens inside backticks, link targets and bare prose are all considered.
func ExtractReferences(body string, exts models.Extensions) []string {
	var out []string
	for _, loc := range pathTokenRe.FindAllStringIndex(body, -1) {
		start, end := loc[0], loc[1]
		tok := strings.TrimRight(body[start:end], ".")
		if tok == "" {
			continue
		}
		// URLs: "https://host/a.md" splits into "https" and "//host/a.md".
		if strings.HasPrefix(tok, "//") || (start > 0 && body[start-1] == ':') {
			continue
		}
		ext, ok := exts.Match(tok)
		if !ok {
			continue
		}
		if !hasStem(tok[:len(tok)-len(ext)]) {
			continue
		}
		out = append(out, tok)
	}
	return out
}

// hasStem reports whether the part before the extension names something,
// which rules out bare ".md" in prose such as "*.md files".
func hasStem(s string) bool {
	s = s[strings.LastIndex(s, "/")+1:]
	return strings.ContainsFunc(s, func(r rune) bool {
		return unicode.IsLetter(r) || unicode.IsDigit(r)
	})
}
