package selector

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/fulmenhq/folio/pkg/manifest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatches(t *testing.T) {
	tests := []struct {
		name       string
		sourceType string
		ep         string
		isDir      bool
		changed    string
		want       bool
	}{
		{"root matches all", "folder", ".", true, "anything/x.md", true},
		{"empty matches all", "", "", false, "x.md", true},
		{"folder child", "folder", "docs", true, "docs/a.md", true},
		{"folder itself", "folder", "docs", true, "docs", true},
		{"folder sibling prefix", "folder", "docs", true, "docs-old/a.md", false},
		{"folder trailing slash", "folder", "docs/", true, "docs/a.md", true},
		{"file exact", "file", "docs/a.md", false, "docs/a.md", true},
		{"file child never", "file", "docs", true, "docs/a.md", false},
		{"auto no extension", "", "docs", false, "docs/b.md", true},
		{"auto explicit", "auto", "docs", false, "docs/b.md", true},
		{"auto with extension", "", "guide.md", false, "guide.md", true},
		{"auto with extension child", "", "v1.0", false, "v1.0/a.md", false},
		{"auto dir with extension", "", "v1.0", true, "v1.0/a.md", true},
		{"changed dot slash", "file", "a.md", false, "./a.md", true},
		{"changed escaping", "folder", "docs", true, "../docs/a.md", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Matches(tt.sourceType, tt.ep, tt.isDir, tt.changed))
		})
	}
}

func write(t *testing.T, p, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

func multiBook(t *testing.T) (string, *manifest.Manifest) {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".git"), 0o755))
	for _, p := range []string{"project-a", "project-b"} {
		write(t, filepath.Join(root, p, "book.json"), `{"root": "content/"}`)
		write(t, filepath.Join(root, p, "content", "foo.md"), "# Foo")
	}
	write(t, filepath.Join(root, "publish.yml"), `version: 0.1.0
publish:
  - path: project-a/
    out: test-project-a.pdf
    use_book_json: true
    source_type: folder
    build: false
  - path: project-b/
    out: test-project-b.pdf
    use_book_json: true
    source_type: folder
    build: true
`)
	m, err := manifest.Load(filepath.Join(root, "publish.yml"))
	require.NoError(t, err)
	return root, m
}

func TestEffectiveMatchPathUsesBookRoot(t *testing.T) {
	root, m := multiBook(t)
	targets := m.Targets(false)
	require.Len(t, targets, 2)
	assert.Equal(t, "project-a/content", EffectiveMatchPath(targets[0], m.Dir, root))

	plain := targets[0]
	plain.UseBookJSON = false
	assert.Equal(t, "project-a", EffectiveMatchPath(plain, m.Dir, root))

	plain.Path = "./"
	assert.Equal(t, ".", EffectiveMatchPath(plain, m.Dir, root))
}

func TestApplyFlagsMultiBookIsolation(t *testing.T) {
	root, m := multiBook(t)

	sum := ApplyFlags(m, root, []string{"project-a/content/foo.md"}, true)
	assert.True(t, sum.AnyBuildTrue)
	require.Len(t, sum.Modified, 2)
	assert.Equal(t, Change{Index: 0, Path: "project-a/", Out: "test-project-a.pdf", Type: "folder", From: false, To: true}, sum.Modified[0])
	assert.Equal(t, Change{Index: 1, Path: "project-b/", Out: "test-project-b.pdf", Type: "folder", From: true, To: false}, sum.Modified[1])

	built := m.Targets(true)
	require.Len(t, built, 1)
	assert.Equal(t, "test-project-a.pdf", built[0].Out)
}

func TestApplyFlagsWithoutResetNeverClears(t *testing.T) {
	root, m := multiBook(t)

	sum := ApplyFlags(m, root, []string{"unrelated.md"}, false)
	assert.Empty(t, sum.Modified)
	assert.True(t, sum.AnyBuildTrue)
	assert.Len(t, m.Targets(true), 1)
}

func TestApplyFlagsNothingChanged(t *testing.T) {
	root, m := multiBook(t)

	sum := ApplyFlags(m, root, nil, true)
	assert.False(t, sum.AnyBuildTrue)
	assert.Equal(t, []string{}, sum.Changed)
	assert.Empty(t, m.Targets(true))
}

func TestReset(t *testing.T) {
	_, m := multiBook(t)

	_, err := Reset(m, Criteria{}, false)
	assert.True(t, errors.Is(err, ErrNoCriteria))

	bad := 7
	_, err = Reset(m, Criteria{Index: &bad}, false)
	assert.Error(t, err)

	_, err = Reset(m, Criteria{Out: "nope.pdf"}, false)
	assert.True(t, errors.Is(err, ErrNoMatch))

	zero := 0
	_, err = Reset(m, Criteria{Index: &zero, Out: "test-project-b.pdf"}, false)
	assert.True(t, errors.Is(err, ErrAmbiguous))

	changes, err := Reset(m, Criteria{Out: "test-project-b.pdf"}, false)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, 1, changes[0].Index)
	assert.Empty(t, m.Targets(true))

	changes, err = Reset(m, Criteria{Path: "project-b/"}, false)
	require.NoError(t, err)
	assert.Empty(t, changes, "already false")
}
