// Package doctor checks that the external tools and fonts a publish run
// depends on are installed.
package doctor

import (
	"bytes"
	"context"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/fulmenhq/folio/pkg/config"
	"github.com/fulmenhq/folio/pkg/typeset"
)

// Tool represents an external program folio shells out to.
type Tool struct {
	Name        string
	Binary      string
	VersionArgs []string
	// Required tools make a publish run fail when absent.
	Required bool
	Purpose  string
	Install  string
}

// Status represents the result of a tool check
type Status struct {
	Name     string `json:"name"`
	Binary   string `json:"binary"`
	Present  bool   `json:"present"`
	Path     string `json:"path,omitempty"`
	Version  string `json:"version,omitempty"`
	Required bool   `json:"required"`
	Purpose  string `json:"purpose"`
	// Instructions is set when the tool is missing.
	Instructions string `json:"instructions,omitempty"`
}

// FontStatus is the result of a font check.
type FontStatus struct {
	Role     string `json:"role"`
	Name     string `json:"name"`
	Present  bool   `json:"present"`
	Required bool   `json:"required"`
}

// Report is the outcome of a full check.
type Report struct {
	Tools []Status     `json:"tools"`
	Fonts []FontStatus `json:"fonts"`
	// Emoji is the emoji font a run would select, empty when none.
	Emoji string `json:"emoji_font,omitempty"`
}

// OK reports whether every required tool and font is present.
func (r Report) OK() bool {
	for _, t := range r.Tools {
		if t.Required && !t.Present {
			return false
		}
	}
	for _, f := range r.Fonts {
		if f.Required && !f.Present {
			return false
		}
	}
	return true
}

// KnownTools returns the tools a run with cfg uses.
func KnownTools(cfg config.TypesetConfig) []Tool {
	binary := cfg.Binary
	if binary == "" {
		binary = "pandoc"
	}
	engine := cfg.Engine
	if engine == "" {
		engine = "lualatex"
	}
	return []Tool{
		{
			Name: "pandoc", Binary: binary, VersionArgs: []string{"--version"}, Required: true,
			Purpose: "converts the combined Markdown to PDF",
			Install: "install pandoc 3.x from https://pandoc.org/installing.html",
		},
		{
			Name: "pdf-engine", Binary: engine, VersionArgs: []string{"--version"}, Required: true,
			Purpose: "typesets the LaTeX pandoc produces",
			Install: "install TeX Live with LuaLaTeX (texlive-luatex)",
		},
		{
			Name: "git", Binary: "git", VersionArgs: []string{"--version"},
			Purpose: "fallback change detection and git mv renames",
			Install: "install git from your package manager",
		},
		{
			Name: "fc-list", Binary: "fc-list", VersionArgs: []string{"--version"},
			Purpose: "font lookup by family name",
			Install: "install fontconfig from your package manager",
		},
	}
}

// Checker runs the checks. Zero fields use the real system.
type Checker struct {
	LookPath func(string) (string, error)
	Output   func(ctx context.Context, name string, args ...string) (string, error)
	Timeout  time.Duration
}

func (c Checker) lookPath(name string) (string, error) {
	if c.LookPath != nil {
		return c.LookPath(name)
	}
	return exec.LookPath(name)
}

func (c Checker) output(ctx context.Context, name string, args ...string) (string, error) {
	if c.Output != nil {
		return c.Output(ctx, name, args...)
	}
	cmd := exec.CommandContext(ctx, name, args...) // #nosec G204 -- fixed tool list
	var out, errb bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errb
	err := cmd.Run()
	// Some tools print their version to stderr.
	if s := strings.TrimSpace(out.String()); s != "" {
		return s, err
	}
	return strings.TrimSpace(errb.String()), err
}

// CheckTool looks t up on PATH and reads its version.
func (c Checker) CheckTool(ctx context.Context, t Tool) Status {
	st := Status{Name: t.Name, Binary: t.Binary, Required: t.Required, Purpose: t.Purpose}
	p, err := c.lookPath(t.Binary)
	if err != nil {
		st.Instructions = t.Install
		return st
	}
	st.Present, st.Path = true, p
	if len(t.VersionArgs) == 0 {
		return st
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if out, _ := c.output(ctx, t.Binary, t.VersionArgs...); out != "" {
		st.Version = extractVersion(out)
	}
	return st
}

// Check runs every tool and font check for cfg.
func (c Checker) Check(ctx context.Context, cfg config.TypesetConfig, fonts typeset.FontResolver) Report {
	var r Report
	for _, t := range KnownTools(cfg) {
		r.Tools = append(r.Tools, c.CheckTool(ctx, t))
	}
	for _, f := range []struct{ role, name string }{
		{"main", cfg.Fonts.Main},
		{"sans", cfg.Fonts.Sans},
		{"mono", cfg.Fonts.Mono},
		{"cjk", cfg.Fonts.CJK},
	} {
		if f.name == "" {
			continue
		}
		r.Fonts = append(r.Fonts, FontStatus{Role: f.role, Name: f.name, Present: fonts.Available(f.name)})
	}
	emoji, _, err := typeset.SelectEmojiFont(fonts, true, false)
	if err == nil {
		r.Emoji = emoji
	}
	r.Fonts = append(r.Fonts, FontStatus{
		Role: "emoji", Name: emoji, Present: emoji != "", Required: cfg.Fonts.RequireColorEmoji,
	})
	return r
}

var versionToken = regexp.MustCompile(`v?\d+(\.\d+){1,3}`)

// extractVersion returns the first version-looking token of the first
// line, or the trimmed line itself.
func extractVersion(s string) string {
	line := firstLine(strings.TrimSpace(s))
	if v := versionToken.FindString(line); v != "" {
		return v
	}
	return strings.TrimSpace(line)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
