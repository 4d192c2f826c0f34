package ui

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	cerrors "github.com/conduit-lang/respack/internal/compiler/errors"
)

func TestFormatError(t *testing.T) {
	tests := []struct {
		name     string
		opts     ErrorOptions
		contains []string
	}{
		{
			name: "context",
			opts: ErrorOptions{Context: "resource not found", Problem: "No resource named 'x'."},
			contains: []string{"❌ RESOURCE NOT FOUND\n", "   No resource named 'x'."},
		},
		{
			name:     "suggestions",
			opts:     ErrorOptions{Problem: "nope", Suggestions: []string{"title", "tile"}},
			contains: []string{"Did you mean: title, tile?"},
		},
		{
			name:     "help commands",
			opts:     ErrorOptions{Level: ErrorLevelWarning, Problem: "careful", HelpCommands: []string{"respack build"}},
			contains: []string{"⚠️ careful", "→ respack build"},
		},
		{
			name:     "consequence",
			opts:     ErrorOptions{Level: ErrorLevelInfo, Problem: "p", Consequence: "the old pack stays"},
			contains: []string{"ℹ️ p", "the old pack stays"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.opts.NoColor = true
			out := FormatError(tt.opts)
			for _, want := range tt.contains {
				assert.Contains(t, out, want)
			}
		})
	}
}

func TestFormatDiagnostic(t *testing.T) {
	e := cerrors.NewSyntax("/res/main.json", 12, 2, 5, `"a": ,`, "expected a value").WithPass("expand-files", 1)
	out := FormatDiagnostic(e, true)
	assert.Contains(t, out, string(e.Code))
	assert.Contains(t, out, "/res/main.json:2:5")
	assert.Contains(t, out, "expected a value")
	assert.Contains(t, out, `| "a": ,`)

	w := cerrors.NewUnresolvedRef("missing")
	assert.True(t, strings.HasPrefix(FormatDiagnostic(w, true), "⚠️"))
}

func TestWriteDiagnostics(t *testing.T) {
	var buf bytes.Buffer
	WriteDiagnostics(&buf, cerrors.ErrorList{
		cerrors.NewUnknownType("/x", "nope"),
		cerrors.NewUnresolvedRef("missing"),
	}, true)
	assert.Contains(t, buf.String(), "BUILD FAILED")
	assert.Contains(t, buf.String(), "1 error(s), 1 warning(s)")

	buf.Reset()
	WriteDiagnostics(&buf, cerrors.ErrorList{cerrors.NewUnresolvedRef("missing")}, true)
	assert.NotContains(t, buf.String(), "BUILD FAILED")
	assert.Contains(t, buf.String(), "1 warning(s)")
}

func TestMessages(t *testing.T) {
	assert.Contains(t, ResourceNotFoundError("titel", []string{"title"}, true), "Did you mean: title?")
	assert.Contains(t, PathNotFoundError("hero", "/frames[9]", true), "nothing at /frames[9]")
	assert.Contains(t, ConfigError("bad", true), "CONFIGURATION ERROR")
	assert.Equal(t, "✓ done", FormatSuccess("done", true))

	var buf bytes.Buffer
	WriteSuccess(&buf, "built", true)
	assert.Equal(t, "✓ built\n", buf.String())
}

func TestLevenshteinDistance(t *testing.T) {
	tests := []struct {
		s1, s2   string
		expected int
	}{
		{"", "", 0},
		{"", "abc", 3},
		{"abc", "", 3},
		{"kitten", "sitting", 3},
		{"title", "titel", 2},
		{"héro", "hero", 1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, LevenshteinDistance(tt.s1, tt.s2), "%s/%s", tt.s1, tt.s2)
	}
}

func TestFindSimilar(t *testing.T) {
	names := []string{"title", "tile", "hero", "hero.idle", "Banner"}

	assert.Equal(t, []string{"title", "tile"}, FindSimilar("titl", names, nil))
	assert.Equal(t, []string{"Banner"}, FindSimilar("banner", names, nil))
	assert.Empty(t, FindSimilar("BANNER", names, &FuzzyMatchOptions{CaseSensitive: true, MaxDistance: 1}))
	assert.Len(t, FindSimilar("t", names, &FuzzyMatchOptions{MaxDistance: 10, MaxSuggestions: 2}), 2)
}

func TestTable(t *testing.T) {
	var buf bytes.Buffer
	table := NewTable(&buf, []string{"Name", "Kind"}, &TableOptions{NoColor: true})
	table.AddRow("title", "text")
	table.AddRow("hero.run", "respack.rect")
	table.Render()

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	assert.Len(t, lines, 4)
	assert.Equal(t, "Name      Kind", strings.TrimRight(lines[0], " "))
	assert.Equal(t, "────────  ────────────", lines[1])
	assert.Equal(t, "title     text", lines[2])
	assert.Equal(t, 2, table.Len())
}

func TestKeyValueTable(t *testing.T) {
	var buf bytes.Buffer
	kv := NewKeyValueTable(&buf, true)
	kv.AddRow("Resources", "10")
	kv.AddRow("Built", "today")
	kv.Render()
	assert.Equal(t, "Resources: 10\nBuilt:     today\n", buf.String())

	buf.Reset()
	Header(&buf, "Pack", true)
	assert.Equal(t, "Pack\n────\n", buf.String())
}
