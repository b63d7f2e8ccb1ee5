package ignore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, p, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

func TestNewMatcherLayers(t *testing.T) {
	home := t.TempDir()
	t.Setenv("FOLIO_HOME", home)
	writeFile(t, filepath.Join(home, FileName), "# user\n*.draft.md\n")

	root := t.TempDir()
	writeFile(t, filepath.Join(root, ".gitignore"), "*.log\n.temp/\n")
	writeFile(t, filepath.Join(root, FileName), "# local\nscratch/\n*.backup\n")

	m, err := NewMatcher(root)
	require.NoError(t, err)

	tests := []struct {
		name  string
		path  string
		isDir bool
		want  bool
	}{
		{"git dir default", ".git/config", false, true},
		{"node_modules default", "node_modules/pkg/index.js", false, true},
		{"gitignore glob", "logs/error.log", false, true},
		{"gitignore dir", ".temp", true, true},
		{"folioignore dir", "scratch", true, true},
		{"folioignore glob", "chapter.backup", false, true},
		{"user ignore", "content/intro.draft.md", false, true},
		{"regular markdown", "content/intro.md", false, false},
		{"root itself", ".", true, false},
		{"absolute inside root", filepath.Join(root, "debug.log"), false, true},
		{"absolute outside root", filepath.Join(filepath.Dir(root), "x.log"), false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, m.Match(tt.path, tt.isDir))
		})
	}
}

func TestIsIgnoredHelpers(t *testing.T) {
	t.Setenv("FOLIO_HOME", t.TempDir())
	root := t.TempDir()
	writeFile(t, filepath.Join(root, FileName), "build/\n")

	m, err := NewMatcher(root)
	require.NoError(t, err)
	assert.True(t, m.IsIgnoredDir("build"))
	assert.False(t, m.IsIgnored("README.md"))

	var nilMatcher *Matcher
	assert.False(t, nilMatcher.IsIgnored("anything"))
}

func TestReadIgnoreFileRejectsOtherNames(t *testing.T) {
	_, err := readIgnoreFile(filepath.Join(t.TempDir(), "passwd"))
	assert.Error(t, err)
}

func TestSplitPath(t *testing.T) {
	assert.Empty(t, splitPath(""))
	assert.Empty(t, splitPath("."))
	assert.Equal(t, []string{"a", "b"}, splitPath("/a//b/"))
	assert.Equal(t, []string{"a", "b"}, splitPath("./a/./b"))
}
