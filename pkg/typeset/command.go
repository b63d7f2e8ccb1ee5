package typeset

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Invocation is a fully resolved typesetter call.
type Invocation struct {
	Binary    string
	Input     string
	Output    string
	From      string
	To        string
	PDFEngine string
	// WorkDir is the process working directory, usually the content root.
	WorkDir string
	Assets  []string

	Headers    []string // default header, title header, font header
	LuaFilters []string
	Metadata   map[string][]string
	Variables  map[string]string
	// TitleHeader suppresses the title variable and metadata.
	TitleHeader bool

	TOC      bool
	TOCDepth int
	Extra    []string
}

// Command is an external process to run.
type Command struct {
	Name string
	Args []string
	Dir  string
}

// String renders the command for logs.
func (c Command) String() string {
	parts := make([]string, 0, len(c.Args)+1)
	parts = append(parts, c.Name)
	for _, a := range c.Args {
		if strings.ContainsAny(a, " \t\"'") {
			a = strconv.Quote(a)
		}
		parts = append(parts, a)
	}
	return strings.Join(parts, " ")
}

var baseResourcePaths = []string{".", "assets", ".gitbook/assets"}

// ResourcePath joins the default search paths and assets, deduplicated.
func ResourcePath(assets []string) string {
	seen := map[string]bool{}
	var out []string
	for _, p := range append(append([]string(nil), baseResourcePaths...), assets...) {
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return strings.Join(out, string(os.PathListSeparator))
}

// BuildCommand returns the argument vector for inv. The order is stable
// so identical inputs give identical command lines.
func BuildCommand(inv Invocation) Command {
	args := []string{inv.Input, "-o", inv.Output}
	if inv.From != "" {
		args = append(args, "-f", inv.From)
	}
	if inv.To != "" {
		args = append(args, "-t", inv.To)
	}
	if inv.PDFEngine != "" {
		args = append(args, "--pdf-engine", inv.PDFEngine)
	}
	args = append(args, "--resource-path", ResourcePath(inv.Assets))
	for _, h := range inv.Headers {
		if h != "" {
			args = append(args, "-H", filepath.ToSlash(h))
		}
	}
	for _, f := range inv.LuaFilters {
		args = append(args, "--lua-filter", filepath.ToSlash(f))
	}
	for _, k := range orderedKeys(inv.Metadata, metadataOrder) {
		if inv.TitleHeader && k == "title" {
			continue
		}
		for _, v := range inv.Metadata[k] {
			args = append(args, "-M", k+"="+v)
		}
	}
	for _, k := range orderedKeys(inv.Variables, variableOrder) {
		if k == "mainfontfallback" || (inv.TitleHeader && k == "title") {
			continue
		}
		v := inv.Variables[k]
		if v == "" {
			continue
		}
		args = append(args, "--variable", k+"="+v)
	}
	if inv.TOC {
		args = append(args, "--toc")
		if inv.TOCDepth > 0 {
			args = append(args, "--toc-depth", strconv.Itoa(inv.TOCDepth))
		}
	}
	args = append(args, inv.Extra...)

	name := inv.Binary
	if name == "" {
		name = "pandoc"
	}
	return Command{Name: name, Args: args, Dir: inv.WorkDir}
}
