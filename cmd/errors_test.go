package cmd

import (
	"errors"
	"fmt"
	"testing"

	"github.com/fulmenhq/folio/internal/pipeline"
	"github.com/fulmenhq/folio/pkg/exitcode"
	"github.com/fulmenhq/folio/pkg/manifest"
	"github.com/fulmenhq/folio/pkg/typeset"
	"github.com/stretchr/testify/assert"
)

func TestExitCodeFor(t *testing.T) {
	wrap := func(err error) error { return fmt.Errorf("context: %w", err) }
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, exitcode.Success},
		{"explicit", withCode(exitcode.TimeoutError), exitcode.TimeoutError},
		{"manifest missing", wrap(manifest.ErrNotFound), exitcode.NothingToPublish},
		{"nothing to publish", pipeline.ErrNothingToPublish, exitcode.NothingToPublish},
		{"parse", wrap(manifest.ErrParse), exitcode.ManifestParse},
		{"version", wrap(manifest.ErrVersion), exitcode.ManifestInvalid},
		{"invalid", wrap(manifest.ErrInvalid), exitcode.ManifestInvalid},
		{"persist", wrap(pipeline.ErrPersist), exitcode.PersistError},
		{"font", wrap(typeset.ErrFontUnavailable), exitcode.FontUnavailable},
		{"tool", wrap(typeset.ErrToolNotFound), exitcode.ToolNotFound},
		{"timeout", wrap(typeset.ErrTimeout), exitcode.TimeoutError},
		{"other", errors.New("boom"), exitcode.GeneralError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exitCodeFor(tt.err))
		})
	}
}

func TestWithCodeSuccessIsNil(t *testing.T) {
	assert.NoError(t, withCode(exitcode.Success))
	assert.Equal(t, "Build failed", withCode(exitcode.BuildFailed).Error())
}
