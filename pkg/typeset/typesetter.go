package typeset

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fulmenhq/folio/pkg/config"
	"github.com/fulmenhq/folio/pkg/exitcode"
	"github.com/fulmenhq/folio/pkg/logger"
	"github.com/fulmenhq/folio/pkg/manifest"
	"github.com/fulmenhq/folio/pkg/paper"
)

// ErrTimeout is reported when the typesetter exceeds its time limit.
var ErrTimeout = errors.New("typesetter timed out")

// Failure kinds.
const (
	KindTimeout = "timeout"
	KindFont    = "font"
	KindTool    = "tool"
	KindTypeset = "typeset"
)

const (
	stderrMaxLines = 40
	stderrMaxBytes = 4096

	fontHeaderName  = "folio-fonts.tex"
	titleHeaderName = "folio-title.tex"
)

// Job is one document to typeset.
type Job struct {
	Input  string
	Output string
	Title  string
	TOC    bool
	Assets []string

	PDFOptions manifest.PDFOptions
	EmojiColor bool
	// WorkDir is where the typesetter runs; TempDir receives headers.
	WorkDir string
	TempDir string
	Extra   []string
	Timeout time.Duration
	DryRun  bool
}

// Result describes the outcome of a Job.
type Result struct {
	Success  bool
	Artifact string
	ExitCode int
	Error    string
	Kind     string
	Command  Command
}

// ProcessExitCode maps a failed result to the CLI exit code.
func (r Result) ProcessExitCode() int {
	switch r.Kind {
	case KindTimeout:
		return exitcode.TimeoutError
	case KindFont:
		return exitcode.FontUnavailable
	case KindTool:
		return exitcode.ToolNotFound
	}
	return exitcode.BuildFailed
}

// Typesetter runs jobs against a shared configuration.
type Typesetter struct {
	Config   config.TypesetConfig
	Defaults Defaults
	Fonts    FontResolver
	Runner   Runner
}

// New returns a typesetter running real processes.
func New(cfg config.TypesetConfig, defaults Defaults, fonts FontResolver) *Typesetter {
	return &Typesetter{Config: cfg, Defaults: defaults, Fonts: fonts, Runner: ExecRunner{}}
}

func failed(kind string, err error) Result {
	r := Result{Kind: kind, Error: err.Error()}
	r.ExitCode = r.ProcessExitCode()
	return r
}

// Prepare resolves fonts, writes headers and builds the invocation.
func (t *Typesetter) Prepare(job Job) (Invocation, error) {
	d := t.Defaults.Clone()
	opts := job.PDFOptions

	color := job.EmojiColor
	if opts.EmojiColor != nil {
		color = *opts.EmojiColor
	}
	emoji, harfbuzz, err := SelectEmojiFont(t.Fonts, color, t.Config.Fonts.RequireColorEmoji)
	if err != nil {
		return Invocation{}, err
	}

	d.Metadata["color"] = []string{fmt.Sprint(color)}
	if emoji != "" {
		d.Metadata["emojifont"] = []string{emoji}
		if harfbuzz {
			d.Metadata["emojifontoptions"] = []string{"Renderer=HarfBuzz"}
		}
	}

	setIf(d.Variables, "mainfont", opts.MainFont)
	setIf(d.Variables, "sansfont", opts.SansFont)
	setIf(d.Variables, "monofont", opts.MonoFont)
	if opts.Geometry != "" {
		d.Variables["geometry"] = opts.Geometry
	} else if opts.PaperFormat != "" {
		page, err := paper.Lookup(opts.PaperFormat)
		if err != nil {
			return Invocation{}, err
		}
		d.Variables["geometry"] = strings.Join(page.GeometryOptions(), ",")
	}

	fallback := opts.MainFontFallback
	if fallback == "" {
		fallback = d.Variables["mainfontfallback"]
	}
	if fallback == "" {
		fallback = DefaultFallbackSpec(emoji, harfbuzz, t.Config.Fonts.CJK)
	}
	if fallback != "" {
		fallback = NormalizeFallbackSpec(fallback, emoji, harfbuzz)
	}

	if err := os.MkdirAll(job.TempDir, 0o755); err != nil {
		return Invocation{}, fmt.Errorf("create header dir: %w", err)
	}
	headers := []string{d.HeaderPath}

	if job.Title != "" {
		text, err := BuildTitleHeader(job.Title)
		if err != nil {
			return Invocation{}, err
		}
		p := filepath.Join(job.TempDir, titleHeaderName)
		if err := os.WriteFile(p, []byte(text), 0o644); err != nil {
			return Invocation{}, fmt.Errorf("write title header: %w", err)
		}
		headers = append(headers, p)
		delete(d.Metadata, "title")
	}

	// The header sets the families with fallback features; the variables are
	// passed too so the pandoc template declares the same fonts.
	fontText, err := BuildFontHeader(FontHeader{
		Main:        d.Variables["mainfont"],
		Sans:        d.Variables["sansfont"],
		Mono:        d.Variables["monofont"],
		Emoji:       emoji,
		HarfBuzz:    harfbuzz,
		Fallback:    fallback,
		IncludeMain: true,
	})
	if err != nil {
		return Invocation{}, err
	}
	p := filepath.Join(job.TempDir, fontHeaderName)
	if err := os.WriteFile(p, []byte(fontText), 0o644); err != nil {
		return Invocation{}, fmt.Errorf("write font header: %w", err)
	}
	headers = append(headers, p)

	return Invocation{
		Binary:      t.Config.Binary,
		Input:       job.Input,
		Output:      job.Output,
		From:        t.Config.From,
		To:          t.Config.To,
		PDFEngine:   d.PDFEngine,
		WorkDir:     job.WorkDir,
		Assets:      job.Assets,
		Headers:     headers,
		LuaFilters:  d.LuaFilters,
		Metadata:    d.Metadata,
		Variables:   d.Variables,
		TitleHeader: job.Title != "",
		TOC:         job.TOC,
		TOCDepth:    t.Config.TOCDepth,
		Extra:       append(append([]string(nil), d.ExtraArgs...), job.Extra...),
	}, nil
}

func setIf(m map[string]string, key, value string) {
	if value != "" {
		m[key] = value
	}
}

// Run typesets job. Failures are reported in the Result, never as a panic
// or error, so one target cannot abort a run.
func (t *Typesetter) Run(ctx context.Context, job Job) Result {
	inv, err := t.Prepare(job)
	if err != nil {
		if errors.Is(err, ErrFontUnavailable) {
			return failed(KindFont, err)
		}
		return failed(KindTypeset, err)
	}
	cmd := BuildCommand(inv)

	if job.DryRun {
		logger.Info("dry run, not typesetting", logger.String("output", job.Output), logger.String("command", cmd.String()))
		return Result{Success: true, Artifact: job.Output, Command: cmd}
	}

	if err := os.MkdirAll(filepath.Dir(job.Output), 0o755); err != nil {
		r := failed(KindTypeset, fmt.Errorf("create output dir: %w", err))
		r.Command = cmd
		return r
	}

	timeout := job.Timeout
	if timeout == 0 {
		timeout = t.Config.Timeout
	}
	runCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	logger.Debug("running typesetter", logger.String("command", cmd.String()))
	start := time.Now()
	code, stderr, err := t.Runner.Run(runCtx, cmd)
	logger.Debug("typesetter finished", logger.Int("exit", code), logger.Duration("elapsed", time.Since(start)))

	var r Result
	switch {
	case errors.Is(err, ErrToolNotFound):
		r = failed(KindTool, fmt.Errorf("%w: %s", ErrToolNotFound, cmd.Name))
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(runCtx.Err(), context.DeadlineExceeded):
		r = failed(KindTimeout, fmt.Errorf("%w after %s", ErrTimeout, timeout))
	case err != nil:
		r = failed(KindTypeset, err)
	case code != 0:
		r = Result{Kind: KindTypeset, ExitCode: code, Error: StderrPreamble(stderr)}
		if r.Error == "" {
			r.Error = fmt.Sprintf("%s exited with status %d", cmd.Name, code)
		}
	default:
		if _, statErr := os.Stat(job.Output); statErr != nil {
			r = failed(KindTypeset, fmt.Errorf("typesetter reported success but %s is missing", job.Output))
		} else {
			r = Result{Success: true, Artifact: job.Output}
		}
	}
	r.Command = cmd
	return r
}

// StderrPreamble returns the head of stderr, bounded in lines and bytes.
func StderrPreamble(stderr []byte) string {
	text := strings.TrimSpace(string(stderr))
	if text == "" {
		return ""
	}
	lines := strings.Split(text, "\n")
	if len(lines) > stderrMaxLines {
		lines = lines[:stderrMaxLines]
	}
	text = strings.Join(lines, "\n")
	if len(text) > stderrMaxBytes {
		text = text[:stderrMaxBytes]
	}
	return text
}
