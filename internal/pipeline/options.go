// Package pipeline drives a publish run: manifest, change detection,
// rename and summary passes, then one build per selected target.
package pipeline

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fulmenhq/folio/internal/assets"
	"github.com/fulmenhq/folio/pkg/config"
	"github.com/fulmenhq/folio/pkg/logger"
	"github.com/fulmenhq/folio/pkg/typeset"
)

var (
	// ErrNothingToPublish means no entry has build=true after flag setting.
	ErrNothingToPublish = errors.New("nothing to publish")
	// ErrPersist wraps manifest write failures, which abort the run.
	ErrPersist = errors.New("manifest persistence failed")
)

// Options controls one run. The zero value runs nothing; use
// DefaultOptions for the CLI defaults.
type Options struct {
	Root     string
	Manifest string
	Commit   string
	Base     string
	// Changed replaces git change detection when non-nil. Paths are
	// repo-relative.
	Changed []string

	ResetOthers    bool
	SetFlags       bool
	GitbookRename  bool
	GitbookSummary bool
	Publish        bool
	// RenameNoGit moves files on disk even inside a git work tree.
	RenameNoGit bool

	PublisherArgs []string
	DryRun        bool

	PaperFormat    string
	PublishDir     string
	EmojiColor     *bool
	EmojiReport    bool
	EmojiReportDir string

	Parallel  int
	Timeout   time.Duration
	JUnitPath string

	Env *Environment
}

// DefaultOptions enables every pass, as the CLI does without --no-* flags.
func DefaultOptions() Options {
	return Options{
		Commit:         "HEAD",
		SetFlags:       true,
		GitbookRename:  true,
		GitbookSummary: true,
		Publish:        true,
	}
}

// Environment is the immutable context shared by all targets of a run.
type Environment struct {
	Config     *config.Config
	Typesetter *typeset.Typesetter
	Fonts      typeset.FontResolver
	// TempRoot holds bundled resources and per-target work dirs.
	TempRoot string
	Getenv   func(string) string
	Now      func() time.Time
	Cwd      string
}

// NewEnvironment materialises bundled resources into a fresh temp dir and
// builds the typesetter with overrides from the environment applied.
// Call Close when the run is done.
func NewEnvironment(cfg *config.Config) (*Environment, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	tmp, err := os.MkdirTemp("", "folio-")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	bundled, err := assets.Materialize(filepath.Join(tmp, "assets"))
	if err != nil {
		_ = os.RemoveAll(tmp)
		return nil, err
	}
	defaults := typeset.ApplyOverrides(typeset.NewDefaults(cfg.Typeset, bundled), typeset.LoadOverrides(os.Getenv))
	fonts := typeset.NewSystemFonts(cfg.Typeset.Fonts.Dirs)
	cwd, _ := os.Getwd()
	return &Environment{
		Config:     cfg,
		Typesetter: typeset.New(cfg.Typeset, defaults, fonts),
		Fonts:      fonts,
		TempRoot:   tmp,
		Getenv:     os.Getenv,
		Now:        time.Now,
		Cwd:        cwd,
	}, nil
}

// Close removes the temp dir.
func (e *Environment) Close() {
	if e == nil || e.TempRoot == "" {
		return
	}
	if err := os.RemoveAll(e.TempRoot); err != nil {
		logger.Warn("failed to remove temp dir", logger.String("dir", e.TempRoot), logger.Err(err))
	}
}

func (e *Environment) getenv(k string) string {
	if e.Getenv == nil {
		return ""
	}
	return e.Getenv(k)
}

func (e *Environment) now() time.Time {
	if e.Now == nil {
		return time.Now()
	}
	return e.Now()
}
