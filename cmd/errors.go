package cmd

import (
	"errors"

	"github.com/fulmenhq/folio/internal/pipeline"
	"github.com/fulmenhq/folio/pkg/exitcode"
	"github.com/fulmenhq/folio/pkg/manifest"
	"github.com/fulmenhq/folio/pkg/typeset"
)

// exitError carries an exit code out of a command. A nil err means the
// command already reported its outcome.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return exitcode.String(e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

func withCode(code int) error {
	if code == exitcode.Success {
		return nil
	}
	return &exitError{code: code}
}

// exitCodeFor maps an error to the process exit code.
func exitCodeFor(err error) int {
	if err == nil {
		return exitcode.Success
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	switch {
	case errors.Is(err, manifest.ErrNotFound), pipeline.IsNothingToPublish(err):
		return exitcode.NothingToPublish
	case errors.Is(err, manifest.ErrParse):
		return exitcode.ManifestParse
	case errors.Is(err, manifest.ErrVersion), errors.Is(err, manifest.ErrInvalid):
		return exitcode.ManifestInvalid
	case errors.Is(err, pipeline.ErrPersist):
		return exitcode.PersistError
	case errors.Is(err, typeset.ErrFontUnavailable):
		return exitcode.FontUnavailable
	case errors.Is(err, typeset.ErrToolNotFound):
		return exitcode.ToolNotFound
	case errors.Is(err, typeset.ErrTimeout):
		return exitcode.TimeoutError
	}
	return exitcode.GeneralError
}
