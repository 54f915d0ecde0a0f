package mcpserver

// ReferenceSyntax describes how documents in the registry reference each
// other. It is served as a resource so assistants write references the
// resolver understands.
const ReferenceSyntax = `# Document Reference Syntax

Documents live under four top-level directories. The directory decides the
category; files anywhere else are not loaded.

| Directory    | Category |
|--------------|----------|
| agents/      | agent    |
| commands/    | command  |
| skills/      | skill    |
| templates/   | template |

A document's id is its path relative to the root, with forward slashes and
the extension removed: ` + "`" + `skills/testing/SKILL.md` + "`" + ` has id ` + "`" + `skills/testing/SKILL` + "`" + `.

## Writing a reference

Any path in the body that ends in ` + "`" + `.md` + "`" + ` or ` + "`" + `.markdown` + "`" + ` is a reference,
whether it is bare prose, inside backticks, or a link target:

` + "```" + `markdown
Follow skills/testing/SKILL.md before committing.
Run ` + "`" + `commands/review.md` + "`" + ` afterwards.
See [the template](templates/go/service.md).
` + "```" + `

## Resolution

1. The path is cleaned (backslashes become ` + "`" + `/` + "`" + `, ` + "`" + `.` + "`" + ` and ` + "`" + `..` + "`" + ` segments
   collapse) and matched against ids from the root. Matching is case-sensitive.
2. If that fails and the path starts with ` + "`" + `./` + "`" + ` or ` + "`" + `../` + "`" + `, it is resolved
   against the referencing document's directory.
3. A path that matches nothing is a dangling reference. It is reported as a
   diagnostic; it never prevents loading.

## Not references

- URLs (` + "`" + `https://example.com/README.md` + "`" + `).
- Bare extensions such as ` + "`" + `*.md` + "`" + `.
- Longer suffixes such as ` + "`" + `notes.mdx` + "`" + `.

## Front matter

An optional YAML block delimited by ` + "`" + `---` + "`" + ` lines may open a file. ` + "`" + `title` + "`" + `
(or ` + "`" + `name` + "`" + `) sets the title, otherwise the first heading is used.
` + "`" + `description` + "`" + ` is surfaced in listings. Invalid YAML rejects the file with a load error.
A ` + "`" + `---` + "`" + ` on the first line always opens front matter; use ` + "`" + `***` + "`" + ` for a leading
horizontal rule.
`
