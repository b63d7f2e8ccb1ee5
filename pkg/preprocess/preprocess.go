// Package preprocess rewrites a single Markdown file so that it survives
// PDF typesetting: HTML figures become Markdown images, and tables or
// images wider than the page are moved onto a larger page. A file without
// tables, images or figures comes back unchanged.
package preprocess

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/fulmenhq/folio/pkg/logger"
	"github.com/fulmenhq/folio/pkg/paper"
)

// Detection defaults.
const (
	DefaultColumnWidthMM  = 25.0
	DefaultPixelsPerMM    = 11.81
	DefaultMinColsForWrap = 10
)

// Options tunes wide-content detection.
type Options struct {
	// PaperFormat is the page the document is typeset on. Empty means a4.
	PaperFormat    string
	ColumnWidthMM  float64
	PixelsPerMM    float64
	MinColsForWrap int
}

func (o Options) withDefaults() Options {
	if o.PaperFormat == "" {
		o.PaperFormat = "a4"
	}
	if o.ColumnWidthMM <= 0 {
		o.ColumnWidthMM = DefaultColumnWidthMM
	}
	if o.PixelsPerMM <= 0 {
		o.PixelsPerMM = DefaultPixelsPerMM
	}
	if o.MinColsForWrap <= 0 {
		o.MinColsForWrap = DefaultMinColsForWrap
	}
	return o
}

var (
	separatorLine = regexp.MustCompile(`^\s*\|?\s*:?-+`)
	imageLine     = regexp.MustCompile(`^!\[[^\]]*\]\(([^)]+)\)`)
)

// Preprocess reads path and returns the transformed Markdown.
func Preprocess(path string, opts Options) (string, error) {
	opts = opts.withDefaults()
	current, err := paper.Lookup(opts.PaperFormat)
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", path, err)
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}

	lines := splitLines(string(data))
	lines = convertFigures(lines)

	s := &scanner{file: abs, dir: filepath.Dir(abs), opts: opts, current: current}
	return s.run(lines), nil
}

type scanner struct {
	file    string
	dir     string
	opts    Options
	current paper.Format
	out     []string
}

func (s *scanner) run(lines []string) string {
	var fence string
	for i := 0; i < len(lines); i++ {
		line := lines[i]

		if marker, ok := fenceMarker(line); ok {
			switch {
			case fence == "":
				fence = marker
			case strings.HasPrefix(marker, fence):
				fence = ""
			}
			s.out = append(s.out, line)
			continue
		}
		if fence != "" {
			s.out = append(s.out, line)
			continue
		}

		if strings.Contains(line, "|") && i+1 < len(lines) && separatorLine.MatchString(lines[i+1]) {
			block := []string{line, lines[i+1]}
			i += 2
			for i < len(lines) && strings.Contains(lines[i], "|") && strings.TrimSpace(lines[i]) != "" {
				block = append(block, lines[i])
				i++
			}
			i--
			s.table(block)
			continue
		}

		if m := imageLine.FindStringSubmatch(strings.TrimSpace(line)); m != nil {
			s.image(line, m[1])
			continue
		}
		s.out = append(s.out, line)
	}
	return strings.Join(s.out, "\n")
}

func (s *scanner) table(block []string) {
	t := parseTable(block)
	target, ok := paper.SmallestFitting(s.current, float64(t.Columns())*s.opts.ColumnWidthMM)
	if !ok {
		logger.Warn("table wider than any standard paper",
			logger.String("file", s.file), logger.Int("columns", t.Columns()))
	}
	wrap := !target.Equal(s.current) || t.Columns() >= s.opts.MinColsForWrap
	logger.Debug("table detected",
		logger.String("file", s.file),
		logger.Int("columns", t.Columns()),
		logger.String("paper", target.Name),
		logger.Bool("wrap", wrap))
	if !wrap {
		for _, l := range block {
			s.out = append(s.out, escapeTableLine(l))
		}
		return
	}

	var prefix []string
	for len(s.out) > 0 && pullsIntoWrap(s.out[len(s.out)-1]) {
		prefix = append([]string{s.out[len(s.out)-1]}, prefix...)
		s.out = s.out[:len(s.out)-1]
	}
	s.out = append(s.out, Wrap(append(prefix, t.Longtable()...), target, s.current)...)
}

func pullsIntoWrap(line string) bool {
	trimmed := strings.TrimSpace(line)
	return trimmed == "" || strings.HasPrefix(trimmed, "#") || strings.HasPrefix(trimmed, ">")
}

func (s *scanner) image(line, dest string) {
	src := strings.Fields(dest)
	if len(src) == 0 {
		s.out = append(s.out, line)
		return
	}
	px := ImageWidth(filepath.Join(s.dir, filepath.FromSlash(src[0])))
	target, _ := paper.SmallestFitting(s.current, float64(px)/s.opts.PixelsPerMM)
	if target.Equal(s.current) {
		s.out = append(s.out, line)
		return
	}
	logger.Debug("wide image detected",
		logger.String("file", s.file),
		logger.String("image", src[0]),
		logger.Int("width_px", px),
		logger.String("paper", target.Name))
	s.out = append(s.out, Wrap([]string{line}, target, s.current)...)
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

func splitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.Split(text, "\n")
}
