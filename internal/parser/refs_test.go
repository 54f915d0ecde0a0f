package parser

import (
	"reflect"
	"testing"

	"github.com/starford/docreg/internal/models"
)

func TestExtractReferences(t *testing.T) {
	cases := []struct {
		name string
		body string
		want []string
	}{
		{
			name: "backticks",
			body: "Run the `skills/testing/SKILL.md` workflow.",
			want: []string{"skills/testing/SKILL.md"},
		},
		{
			name: "bare path with trailing period",
			body: "See skills/testing/SKILL.md.",
			want: []string{"skills/testing/SKILL.md"},
		},
		{
			name: "markdown link target",
			body: "Read [the guide](../skills/go/SKILL.md) first.",
			want: []string{"../skills/go/SKILL.md"},
		},
		{
			name: "order and duplicates preserved",
			body: "b.md then a.md then b.md",
			want: []string{"b.md", "a.md", "b.md"},
		},
		{
			name: "other extensions ignored",
			body: "notes.mdx, main.go and README.markdown",
			want: []string{"README.markdown"},
		},
		{
			name: "urls ignored",
			body: "https://example.com/docs/README.md and file://x/y.md",
			want: nil,
		},
		{
			name: "bare extension ignored",
			body: "all *.md files and .md suffix",
			want: nil,
		},
		{
			name: "adjacent tokens",
			body: "`a.md` `b.md`",
			want: []string{"a.md", "b.md"},
		},
		{
			name: "non-ascii path kept whole",
			body: "See skills/café/SKILL.md and `agents/日本語.md`.",
			want: []string{"skills/café/SKILL.md", "agents/日本語.md"},
		},
		{
			name: "non-ascii stem",
			body: "read ü.md",
			want: []string{"ü.md"},
		},
		{
			name: "relative dot prefix kept",
			body: "./commands/review.md",
			want: []string{"./commands/review.md"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ExtractReferences(tc.body, models.DefaultExtensions)
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("ExtractReferences(%q) = %q, want %q", tc.body, got, tc.want)
			}
		})
	}
}

func TestParse_ReferencesFromBodyOnly(t *testing.T) {
	input := []byte("---\nsee: skills/fm/SKILL.md\n---\nuses commands/bugfix.md\n")
	r, err := Parse(input, models.DefaultExtensions)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"commands/bugfix.md"}
	if !reflect.DeepEqual(r.References, want) {
		t.Errorf("references = %q, want %q", r.References, want)
	}
}
