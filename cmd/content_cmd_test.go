package cmd

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func commitAll(t *testing.T, root string, files map[string]string) {
	t.Helper()
	repo, err := git.PlainOpen(root)
	if err != nil {
		repo, err = git.PlainInit(root, false)
		require.NoError(t, err)
	}
	wt, err := repo.Worktree()
	require.NoError(t, err)
	writeTree(t, root, files)
	for name := range files {
		_, err := wt.Add(name)
		require.NoError(t, err)
	}
	_, err = wt.Commit("update", &git.CommitOptions{
		Author: &object.Signature{Name: "folio", Email: "ci@folio.dev", When: time.Now()},
	})
	require.NoError(t, err)
}

func TestFlagsSetAndReset(t *testing.T) {
	root := t.TempDir()
	manifestPath := filepath.Join(root, "publish.yml")
	commitAll(t, root, map[string]string{
		"publish.yml": "version: 0.1.0\npublish:\n  - path: guide\n    out: guide.pdf\n  - path: notes.md\n    out: notes.pdf\n",
		"guide/a.md":  "# A\n",
		"notes.md":    "# Notes\n",
	})
	commitAll(t, root, map[string]string{"guide/a.md": "# A\n\nrevised\n"})
	t.Setenv("GITHUB_OUTPUT", "")

	out, _, code := execRoot(t, "flags", "--root", root, "--manifest", manifestPath, "--base", "HEAD~1")
	require.Equal(t, 0, code, out)
	var res struct {
		AnyBuildTrue bool `json:"any_build_true"`
		Modified     []struct {
			Out string `json:"out"`
			To  bool   `json:"to"`
		} `json:"modified"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res), out)
	assert.True(t, res.AnyBuildTrue)
	require.Len(t, res.Modified, 1)
	assert.Equal(t, "guide.pdf", res.Modified[0].Out)

	data, err := os.ReadFile(manifestPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "build: true")

	out, _, code = execRoot(t, "flags", "--root", root, "--manifest", manifestPath, "--reset", "--out", "guide.pdf")
	require.Equal(t, 0, code, out)
	data, err = os.ReadFile(manifestPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "build: false")

	_, _, code = execRoot(t, "flags", "--root", root, "--manifest", manifestPath, "--reset")
	assert.Equal(t, 1, code, "reset without criteria")
}

func TestSummaryCommand(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, map[string]string{
		"README.md":          "# Handbook\n",
		"chapter-2.md":       "# Second\n",
		"chapter-10.md":      "# Tenth\n",
		"appendix-a-refs.md": "# References\n",
	})

	out, _, code := execRoot(t, "summary", dir, "--dry-run", "--appendices-last")
	require.Equal(t, 0, code, out)
	assert.True(t, strings.HasPrefix(out, "# Summary\n"), out)
	assert.Less(t, strings.Index(out, "chapter-2.md"), strings.Index(out, "chapter-10.md"))
	assert.Less(t, strings.Index(out, "chapter-10.md"), strings.Index(out, "appendix-a-refs.md"))
	assert.NoFileExists(t, filepath.Join(dir, "SUMMARY.md"))

	_, _, code = execRoot(t, "summary", dir)
	require.Equal(t, 0, code)
	assert.FileExists(t, filepath.Join(dir, "SUMMARY.md"))
}

func TestRenameCommand(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, map[string]string{"My Chapter.md": "# Mine\n"})

	out, _, code := execRoot(t, "rename", dir, "--no-git")
	require.Equal(t, 0, code, out)
	assert.FileExists(t, filepath.Join(dir, "my-chapter.md"))
	assert.NoFileExists(t, filepath.Join(dir, "My Chapter.md"))

	var report struct {
		Renamed []struct {
			From string `json:"from"`
			To   string `json:"to"`
		} `json:"renamed"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &report), out)
	require.Len(t, report.Renamed, 1)
	assert.Equal(t, "my-chapter.md", report.Renamed[0].To)
}

func TestDiscoverCommand(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"publish.yml": "version: 0.1.0\npublish:\n  - path: docs\n    out: docs.pdf\n    build: true\n  - path: gone.md\n    out: gone.pdf\n    source_type: file\n",
		"docs/b.md":   "# B\n",
		"docs/a.md":   "# A\n",
	})

	out, _, code := execRoot(t, "discover", "--root", root, "--manifest", filepath.Join(root, "publish.yml"))
	require.Equal(t, 0, code, out)
	var targets []discoveredTarget
	require.NoError(t, json.Unmarshal([]byte(out), &targets), out)
	require.Len(t, targets, 2)
	assert.Equal(t, []string{"a.md", "b.md"}, targets[0].Files)
	assert.Equal(t, "folder", targets[0].SourceType)
	assert.NotEmpty(t, targets[1].Error)

	out, _, code = execRoot(t, "discover", "--root", root, "--manifest", filepath.Join(root, "publish.yml"), "--selected", "--format", "table")
	require.Equal(t, 0, code, out)
	assert.Contains(t, out, "docs.pdf")
	assert.NotContains(t, out, "gone.pdf")
}

func TestVersionJSON(t *testing.T) {
	out, _, code := execRoot(t, "version", "--json", "--extended")
	require.Equal(t, 0, code, out)
	var v map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &v), out)
	assert.NotEmpty(t, v["version"])
	assert.NotEmpty(t, v["goVersion"])
	assert.Contains(t, v, "vcs")
}

func TestDoctorMissingTool(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		".folio.yaml": "typeset:\n  binary: folio-no-such-pandoc\n  engine: folio-no-such-engine\n",
	})

	out, _, code := execRoot(t, "doctor", "--root", root, "--format", "json")
	require.Equal(t, 9, code)

	var report struct {
		Tools []struct {
			Binary   string `json:"binary"`
			Present  bool   `json:"present"`
			Required bool   `json:"required"`
		} `json:"tools"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	require.NotEmpty(t, report.Tools)
	assert.Equal(t, "folio-no-such-pandoc", report.Tools[0].Binary)
	assert.False(t, report.Tools[0].Present)
	assert.True(t, report.Tools[0].Required)
}
