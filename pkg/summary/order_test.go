package summary

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNaturalLess(t *testing.T) {
	ordered := []string{"1-intro", "2.3-chapter", "2.3.1-sub", "2.4-finale", "2.10-appendix", "Anhang-a", "b", "chapter-2", "chapter-10"}
	for i := 0; i+1 < len(ordered); i++ {
		assert.True(t, NaturalLess(ordered[i], ordered[i+1]), "%s < %s", ordered[i], ordered[i+1])
		assert.False(t, NaturalLess(ordered[i+1], ordered[i]), "%s > %s", ordered[i+1], ordered[i])
	}
	assert.True(t, NaturalLess("file-007", "file-10"))
	assert.False(t, NaturalLess("same", "same"))
}

func TestParseOrder(t *testing.T) {
	tests := []struct {
		name string
		ext  string
		data string
		want []string
	}{
		{"yaml list", ".yml", "- intro.md\n- chapters/one\n", []string{"intro.md", "chapters/one"}},
		{"yaml map items", ".yaml", "chapters:\n  - path: a.md\n  - file: b.md\n  - src: c.md\n  - 42\n", []string{"a.md", "b.md", "c.md"}},
		{"json list", ".json", `["a.md", {"path": "b.md"}]`, []string{"a.md", "b.md"}},
		{"json object", ".json", `{"summary": ["x.md"]}`, []string{"x.md"}},
		{"toml", ".toml", "order = [\"one.md\", \"two.md\"]\n", []string{"one.md", "two.md"}},
		{"plain text", ".txt", "# reading order\nintro.md\n\n- chapter.md # main part\nappendix#1.md\n", []string{"intro.md", "chapter.md", "appendix#1.md"}},
		{"plain without extension", "", "intro.md\nchapter.md\n", []string{"intro.md", "chapter.md"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseOrder(tt.ext, []byte(tt.data)))
		})
	}
}

func TestLoadOrder(t *testing.T) {
	p := filepath.Join(t.TempDir(), "order.toml")
	require.NoError(t, os.WriteFile(p, []byte("items = [\"b.md\", \"a.md\"]\n"), 0o644))
	got, err := LoadOrder(p)
	require.NoError(t, err)
	assert.Equal(t, []string{"b.md", "a.md"}, got)

	_, err = LoadOrder(filepath.Join(t.TempDir(), "missing.yml"))
	assert.Error(t, err)
}

func TestNormalizeOrderKey(t *testing.T) {
	assert.Equal(t, "chapters/one.md", NormalizeOrderKey(`./Chapters\\One.md`))
	assert.Equal(t, "a/b", NormalizeOrderKey("/a//b/"))
	assert.Equal(t, "", NormalizeOrderKey("  "))
}

func TestOrderIndexLookup(t *testing.T) {
	idx := newOrderIndex([]string{"intro", "Part-1/", "part-1", "appendix.md"})
	tests := []struct {
		path string
		want int
		ok   bool
	}{
		{"intro.md", 0, true},
		{"part-1/README.md", 1, true},
		{"part-1/index.md", 1, true},
		{"appendix.md", 3, true},
		{"other.md", 0, false},
	}
	for _, tt := range tests {
		got, ok := idx.lookup(tt.path)
		assert.Equal(t, tt.ok, ok, tt.path)
		assert.Equal(t, tt.want, got, tt.path)
	}
}
