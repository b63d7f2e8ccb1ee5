package buildinfo

import (
	"runtime/debug"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBinaryVersionDefault(t *testing.T) {
	assert.Equal(t, "dev", BinaryVersion)
}

func TestVersionPrefersLdflags(t *testing.T) {
	orig := BinaryVersion
	defer func() { BinaryVersion = orig }()

	BinaryVersion = "v0.3.1"
	assert.Equal(t, "v0.3.1", Version())
}

func TestVersionFallsBack(t *testing.T) {
	v := Version()
	assert.NotEmpty(t, v)
	if mv := ModuleVersion(); mv != "" {
		assert.Equal(t, mv, v)
	} else {
		assert.Equal(t, "dev", v)
	}
}

func TestVCSFromSettings(t *testing.T) {
	v := vcsFromSettings([]debug.BuildSetting{
		{Key: "GOOS", Value: "linux"},
		{Key: "vcs.revision", Value: "0123456789abcdef"},
		{Key: "vcs.time", Value: "2026-01-02T03:04:05Z"},
		{Key: "vcs.modified", Value: "true"},
	})
	assert.Equal(t, VCS{Revision: "0123456789abcdef", Time: "2026-01-02T03:04:05Z", Modified: true}, v)
	assert.Equal(t, VCS{}, vcsFromSettings(nil))
}
