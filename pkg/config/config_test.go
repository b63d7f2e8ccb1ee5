package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isolateHome(t *testing.T) {
	t.Helper()
	t.Setenv("FOLIO_HOME", t.TempDir())
}

func TestLoadConfigDefaults(t *testing.T) {
	isolateHome(t)
	t.Chdir(t.TempDir())

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, []string{"publish.yml", "publish.yaml"}, cfg.Manifest.Filenames)
	assert.Equal(t, "publish", cfg.Publish.Dir)
	assert.Equal(t, "a4", cfg.Publish.PaperFormat)
	assert.Equal(t, 1, cfg.Publish.Parallel)
	assert.InDelta(t, 25.0, cfg.Preprocess.ColumnWidthMM, 1e-9)
	assert.InDelta(t, 11.81, cfg.Preprocess.PixelsPerMM, 1e-9)
	assert.Equal(t, 10, cfg.Preprocess.MinColsForWrap)
	assert.Equal(t, "pandoc", cfg.Typeset.Binary)
	assert.Equal(t, "lualatex", cfg.Typeset.Engine)
	assert.Equal(t, "DejaVu Serif", cfg.Typeset.Fonts.Main)
	assert.Equal(t, "DejaVu Sans", cfg.Typeset.Fonts.Sans)
	assert.Equal(t, "DejaVu Sans Mono", cfg.Typeset.Fonts.Mono)
	assert.Equal(t, "<!-- SUMMARY: MANUAL -->", cfg.Summary.ManualMarker)
	assert.Equal(t, time.Duration(0), cfg.Typeset.Timeout)
}

func TestLoadConfigEnvOverride(t *testing.T) {
	isolateHome(t)
	t.Chdir(t.TempDir())
	t.Setenv("FOLIO_TYPESET_ENGINE", "xelatex")
	t.Setenv("FOLIO_PUBLISH_PARALLEL", "4")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "xelatex", cfg.Typeset.Engine)
	assert.Equal(t, 4, cfg.Publish.Parallel)
}

func TestLoadProjectConfigOverlay(t *testing.T) {
	isolateHome(t)
	repo := t.TempDir()
	t.Chdir(repo)
	content := "publish:\n  paper_format: a3\ntypeset:\n  timeout: 90s\n  fonts:\n    main: Libertinus Serif\n"
	require.NoError(t, os.WriteFile(filepath.Join(repo, ".folio.yaml"), []byte(content), 0o644))

	cfg, err := LoadProjectConfig(repo)
	require.NoError(t, err)
	assert.Equal(t, "a3", cfg.Publish.PaperFormat)
	assert.Equal(t, 90*time.Second, cfg.Typeset.Timeout)
	assert.Equal(t, "Libertinus Serif", cfg.Typeset.Fonts.Main)
	assert.Equal(t, "DejaVu Sans", cfg.Typeset.Fonts.Sans, "untouched keys keep defaults")
}

func TestLoadProjectConfigMalformed(t *testing.T) {
	isolateHome(t)
	repo := t.TempDir()
	t.Chdir(repo)
	require.NoError(t, os.WriteFile(filepath.Join(repo, ".folio.yaml"), []byte("publish: [unclosed"), 0o644))

	_, err := LoadProjectConfig(repo)
	require.Error(t, err)
}

func TestExpandSearchRule(t *testing.T) {
	assert.Equal(t, filepath.Clean("/repo/docs"), ExpandSearchRule("{repo_root}/docs", "/repo", "/work"))
	assert.Equal(t, filepath.Clean("/work/sub"), ExpandSearchRule("{cwd}/sub/", "/repo", "/work"))
}

func TestDefaultIsACopy(t *testing.T) {
	a := Default()
	a.Manifest.Filenames[0] = "changed.yml"
	b := Default()
	assert.Equal(t, "publish.yml", b.Manifest.Filenames[0])
}

func TestGetFolioHome(t *testing.T) {
	t.Setenv("FOLIO_HOME", "/custom/home")
	home, err := GetFolioHome()
	require.NoError(t, err)
	assert.Equal(t, "/custom/home", home)

	dir, err := GetConfigDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/custom/home", "config"), dir)
}
