package discovery

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/fulmenhq/folio/pkg/ignore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func write(t *testing.T, root, rel, content string) string {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestDiscoverFileMode(t *testing.T) {
	root := t.TempDir()
	p := write(t, root, "complex-doc_with-special&chars@2024 & !.md", "# Doc")

	res, err := Discover(Request{Path: "./complex-doc_with-special&chars@2024 & !.md", ManifestDir: root, SourceType: "file"})
	require.NoError(t, err)
	assert.Equal(t, "file", res.SourceType)
	assert.Equal(t, []string{p}, res.Files)
	assert.Empty(t, res.SummaryPath)

	auto, err := Discover(Request{Path: p})
	require.NoError(t, err)
	assert.Equal(t, "file", auto.SourceType)

	_, err = Discover(Request{Path: "missing.md", ManifestDir: root, SourceType: "file"})
	assert.Error(t, err)
}

func TestDiscoverFolderWithoutBook(t *testing.T) {
	root := t.TempDir()
	write(t, root, "docs/README.md", "# Docs")
	write(t, root, "docs/b.md", "b")
	write(t, root, "docs/a/z.markdown", "z")
	write(t, root, "docs/a/readme.md", "nested readme")
	write(t, root, "docs/node_modules/pkg/x.md", "x")
	write(t, root, "docs/image.png", "png")

	res, err := Discover(Request{Path: "./docs", ManifestDir: root})
	require.NoError(t, err)
	docs := filepath.Join(root, "docs")
	assert.Equal(t, "folder", res.SourceType)
	assert.Equal(t, docs, res.ContentRoot)
	assert.Equal(t, []string{
		filepath.Join(docs, "README.md"),
		filepath.Join(docs, "a", "readme.md"),
		filepath.Join(docs, "a", "z.markdown"),
		filepath.Join(docs, "b.md"),
	}, res.Files)
}

func TestDiscoverBookWithSummary(t *testing.T) {
	root := t.TempDir()
	write(t, root, "book.json", `{"root": "content/", "title": "Handbook", "structure": {"summary": "TOC.md"}}`)
	write(t, root, "content/TOC.md", "* [Two](two.md)\n* [One](one.md#top)\n* [Gone](gone.md)\n")
	write(t, root, "content/one.md", "# One")
	write(t, root, "content/two.md", "# Two")
	write(t, root, "content/three.md", "# Three")

	res, err := Discover(Request{Path: "./", ManifestDir: root, SourceType: "folder", UseBookJSON: true, UseSummary: true})
	require.NoError(t, err)
	content := filepath.Join(root, "content")
	assert.Equal(t, content, res.ContentRoot)
	assert.Equal(t, filepath.Join(content, "TOC.md"), res.SummaryPath)
	require.NotNil(t, res.Book)
	assert.Equal(t, "Handbook", res.Book.Title)
	assert.Equal(t, []string{filepath.Join(content, "two.md"), filepath.Join(content, "one.md")}, res.Files)
}

func TestDiscoverEmptySummaryFallsBack(t *testing.T) {
	root := t.TempDir()
	write(t, root, "SUMMARY.md", "# Summary\n\nnothing linked\n")
	write(t, root, "b.md", "b")
	write(t, root, "a.md", "a")

	res, err := Discover(Request{Path: ".", ManifestDir: root, UseSummary: true})
	require.NoError(t, err)
	assert.Empty(t, res.SummaryPath)
	assert.Equal(t, []string{filepath.Join(root, "SUMMARY.md"), filepath.Join(root, "a.md"), filepath.Join(root, "b.md")}, res.Files)
}

func TestDiscoverNoMarkdown(t *testing.T) {
	root := t.TempDir()
	write(t, root, "empty/notes.txt", "x")
	_, err := Discover(Request{Path: "empty", ManifestDir: root, SourceType: "folder"})
	assert.True(t, errors.Is(err, ErrNoMarkdown))
}

func TestFindSummaryPrecedence(t *testing.T) {
	root := t.TempDir()
	assert.Empty(t, FindSummary(root, ""))

	write(t, root, "Summary.md", "x")
	assert.Equal(t, filepath.Join(root, "Summary.md"), FindSummary(root, ""))

	write(t, root, "SUMMARY.md", "x")
	assert.Equal(t, filepath.Join(root, "SUMMARY.md"), FindSummary(root, ""))

	write(t, root, "nav/toc.md", "x")
	assert.Equal(t, filepath.Join(root, "nav", "toc.md"), FindSummary(root, "nav/toc.md"))
	assert.Equal(t, filepath.Join(root, "SUMMARY.md"), FindSummary(root, "missing.md"))
}

func TestCollectHonoursIgnoreFile(t *testing.T) {
	t.Setenv("FOLIO_HOME", t.TempDir())
	root := t.TempDir()
	write(t, root, ignore.FileName, "drafts/\n")
	write(t, root, "drafts/wip.md", "wip")
	write(t, root, "keep.md", "keep")

	m, err := ignore.NewMatcher(root)
	require.NoError(t, err)
	files, err := Collect(root, m)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(root, "keep.md")}, files)
}
