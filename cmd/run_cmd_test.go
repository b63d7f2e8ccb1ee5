package cmd

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/fulmenhq/folio/pkg/exitcode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunOptionsFromFlags(t *testing.T) {
	cmd := newRunCommand()
	cmd.Flags().Bool("no-op", false, "")
	require.NoError(t, cmd.ParseFlags([]string{
		"--root", "/repo",
		"--base", "origin/main",
		"--reset-others",
		"--no-gitbook-rename",
		"--no-publish",
		"--publisher-args", `--metadata "subtitle=Draft one"`,
		"--publisher-args", "--toc-depth=2",
		"--paper-format", "a5",
		"--no-emoji-color",
		"--emoji-report-dir", "reports",
		"--parallel", "3",
		"--timeout", "90s",
		"--no-op",
	}))

	opts, err := runOptions(cmd)
	require.NoError(t, err)
	assert.Equal(t, "/repo", opts.Root)
	assert.Equal(t, "HEAD", opts.Commit)
	assert.Equal(t, "origin/main", opts.Base)
	assert.True(t, opts.ResetOthers)
	assert.True(t, opts.SetFlags)
	assert.False(t, opts.GitbookRename)
	assert.True(t, opts.GitbookSummary)
	assert.False(t, opts.Publish)
	assert.True(t, opts.DryRun)
	assert.Equal(t, []string{"--metadata", "subtitle=Draft one", "--toc-depth=2"}, opts.PublisherArgs)
	assert.Equal(t, "a5", opts.PaperFormat)
	require.NotNil(t, opts.EmojiColor)
	assert.False(t, *opts.EmojiColor)
	assert.True(t, opts.EmojiReport)
	assert.Equal(t, "reports", opts.EmojiReportDir)
	assert.Equal(t, 3, opts.Parallel)
	assert.Equal(t, 90*time.Second, opts.Timeout)
}

func TestRunOptionsRejectsUnknownPaper(t *testing.T) {
	cmd := newRunCommand()
	cmd.Flags().Bool("no-op", false, "")
	require.NoError(t, cmd.ParseFlags([]string{"--paper-format", "b7-sideways"}))
	_, err := runOptions(cmd)
	assert.Error(t, err)
}

func TestRunNothingToPublish(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"publish.yml": "version: 0.1.0\npublish:\n  - path: a.md\n    out: a.pdf\n",
		"a.md":        "# A\n",
	})
	t.Setenv("GITHUB_OUTPUT", "")
	out, _, code := execRoot(t, "run", "--root", root, "--manifest", filepath.Join(root, "publish.yml"), "--no-set-flag")
	assert.Equal(t, exitcode.NothingToPublish, code)

	var report map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &report), out)
	assert.EqualValues(t, 0, report["built_count"])
}

func TestRunDryRunReportsCommands(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"publish.yml": "version: 0.1.0\npublish:\n  - path: docs\n    out: docs.pdf\n    build: true\n",
		"docs/a.md":   "# A\n",
		"docs/b.md":   "# B\n",
	})
	t.Setenv("GITHUB_OUTPUT", "")
	out, _, code := execRoot(t, "run", "--root", root, "--manifest", filepath.Join(root, "publish.yml"),
		"--no-set-flag", "--dry-run", "--publisher-args", "--toc-depth=2")
	require.Equal(t, exitcode.Success, code, out)

	var report struct {
		BuiltCount int  `json:"built_count"`
		DryRun     bool `json:"dry_run"`
		Targets    []struct {
			Command string `json:"command"`
		} `json:"targets"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &report), out)
	assert.Equal(t, 1, report.BuiltCount)
	assert.True(t, report.DryRun)
	require.Len(t, report.Targets, 1)
	assert.Contains(t, report.Targets[0].Command, "--toc-depth=2")
	assert.NoFileExists(t, filepath.Join(root, "publish", "docs.pdf"))
}

func TestRunManifestErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    int
	}{
		{"parse", "version: [\n", exitcode.ManifestParse},
		{"version", "version: 9.0.0\npublish: []\n", exitcode.ManifestInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			writeTree(t, root, map[string]string{"publish.yml": tt.content})
			_, _, code := execRoot(t, "run", "--root", root, "--manifest", filepath.Join(root, "publish.yml"), "--no-set-flag")
			assert.Equal(t, tt.want, code)
		})
	}

	_, _, code := execRoot(t, "run", "--root", t.TempDir(), "--manifest", "missing.yml")
	assert.Equal(t, exitcode.NothingToPublish, code)
}
