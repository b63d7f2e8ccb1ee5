package combine

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	markdownLink = regexp.MustCompile(`\[([^\]]+)\]\(([^)]+)\)`)
	urlScheme    = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.-]*:`)
	slugInvalid  = regexp.MustCompile(`[^0-9a-z]+`)
)

// anchorRoots are directory names below which anchor slugs start.
var anchorRoots = []string{"content"}

// AnchorFor returns the in-document anchor id for a Markdown file.
func AnchorFor(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		path = resolved
	}
	stem := strings.TrimSuffix(path, filepath.Ext(path))
	var parts []string
	for _, p := range strings.Split(filepath.ToSlash(stem), "/") {
		if p != "" {
			parts = append(parts, p)
		}
	}

	tail := parts
	if len(tail) > 3 {
		tail = tail[len(tail)-3:]
	}
	for _, root := range anchorRoots {
		for i, p := range parts {
			if strings.EqualFold(p, root) && i+1 < len(parts) {
				tail = parts[i+1:]
				break
			}
		}
	}
	slug := strings.Trim(slugInvalid.ReplaceAllString(strings.ToLower(strings.Join(tail, "-")), "-"), "-")
	if slug == "" {
		slug = "section"
	}
	return "md-" + slug
}

// insertAnchor places an anchor element at the top of body, after YAML
// front matter when present.
func insertAnchor(body, anchor string) string {
	tag := `<a id="` + anchor + `"></a>` + "\n\n"
	lines := strings.SplitAfter(body, "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) != "---" {
		return tag + body
	}
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			head := strings.Join(lines[:i+1], "")
			if !strings.HasSuffix(head, "\n") {
				head += "\n"
			}
			return head + tag + strings.Join(lines[i+1:], "")
		}
	}
	return tag + body
}

// anchorFile prefixes text with the anchor of path and points links to
// other local Markdown files at their anchors. Links resolving to files
// outside the combined set still get rewritten; pandoc keeps them as
// dangling internal references.
func anchorFile(text, path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	lines := strings.Split(text, "\n")
	return insertAnchor(strings.Join(rewriteLinks(lines, filepath.Dir(abs)), "\n"), AnchorFor(abs))
}

// rewriteLinks points links to other local Markdown files at the anchors
// those files receive once combined. Code fences are left alone.
func rewriteLinks(lines []string, baseDir string) []string {
	out := make([]string, len(lines))
	var fence string
	for i, line := range lines {
		out[i] = line
		if marker, ok := fenceMarker(line); ok {
			switch {
			case fence == "":
				fence = marker
			case strings.HasPrefix(marker, fence):
				fence = ""
			}
			continue
		}
		if fence != "" || !strings.Contains(line, "](") {
			continue
		}
		out[i] = rewriteLine(line, baseDir)
	}
	return out
}

func rewriteLine(line, baseDir string) string {
	matches := markdownLink.FindAllStringSubmatchIndex(line, -1)
	if matches == nil {
		return line
	}
	var b strings.Builder
	last := 0
	for _, m := range matches {
		if m[0] > 0 && line[m[0]-1] == '!' {
			continue
		}
		dest, suffix := splitDestination(line[m[4]:m[5]])
		target, ok := linkTarget(dest, baseDir)
		if !ok {
			continue
		}
		b.WriteString(line[last:m[0]])
		b.WriteString("[" + line[m[2]:m[3]] + "](" + target + suffix + ")")
		last = m[1]
	}
	b.WriteString(line[last:])
	return b.String()
}

func fenceMarker(line string) (string, bool) {
	trimmed := strings.TrimLeft(line, " \t")
	for _, m := range []string{"```", "~~~"} {
		if strings.HasPrefix(trimmed, m) {
			return m, true
		}
	}
	return "", false
}

// splitDestination separates the URL of a link destination from a
// trailing title.
func splitDestination(inner string) (string, string) {
	trimmed := strings.TrimLeft(inner, " \t")
	leading := inner[:len(inner)-len(trimmed)]
	if strings.HasPrefix(trimmed, "<") {
		if end := strings.IndexByte(trimmed, '>'); end >= 0 {
			return trimmed[1:end], leading + trimmed[end+1:]
		}
	}
	if idx := strings.IndexAny(trimmed, " \t"); idx >= 0 {
		return trimmed[:idx], leading + trimmed[idx:]
	}
	return trimmed, leading
}

func linkTarget(dest, baseDir string) (string, bool) {
	dest = strings.TrimSpace(dest)
	if dest == "" || strings.HasPrefix(dest, "#") || strings.HasPrefix(dest, "//") || urlScheme.MatchString(dest) {
		return "", false
	}
	pathPart, fragment, _ := strings.Cut(dest, "#")
	lower := strings.ToLower(pathPart)
	if !strings.HasSuffix(lower, ".md") && !strings.HasSuffix(lower, ".markdown") {
		return "", false
	}
	p := filepath.FromSlash(strings.ReplaceAll(pathPart, `\`, "/"))
	if !filepath.IsAbs(p) {
		p = filepath.Join(baseDir, p)
	}
	if _, err := os.Stat(p); err != nil {
		return "", false
	}
	if fragment != "" {
		return "#" + fragment, true
	}
	return "#" + AnchorFor(p), true
}
