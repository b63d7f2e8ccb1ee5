package typeset

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fulmenhq/folio/pkg/logger"
)

// ErrFontUnavailable is returned when a required font cannot be found.
var ErrFontUnavailable = errors.New("required font unavailable")

// FontResolver answers whether a font family can be used by the engine.
type FontResolver interface {
	Available(name string) bool
}

var fontNameJunk = regexp.MustCompile(`[^a-z0-9]`)

// NormalizeFontName lowercases name and drops everything but letters and
// digits, for fuzzy matching.
func NormalizeFontName(name string) string {
	return fontNameJunk.ReplaceAllString(strings.ToLower(name), "")
}

const fontGlob = "**/*.{ttf,otf,ttc,TTF,OTF,TTC}"

// SystemFonts resolves fonts through fc-list and then by file name under
// the configured directories.
type SystemFonts struct {
	Dirs []string
	// Declared maps manifest font names to file paths.
	Declared map[string]string

	mu    sync.Mutex
	cache map[string]bool
	files []string
	once  sync.Once
}

// NewSystemFonts returns a resolver searching dirs plus ~/.local/share/fonts.
func NewSystemFonts(dirs []string) *SystemFonts {
	all := append([]string(nil), dirs...)
	if home, err := os.UserHomeDir(); err == nil {
		all = append(all, filepath.Join(home, ".local", "share", "fonts"))
	}
	return &SystemFonts{Dirs: all, Declared: map[string]string{}}
}

// Declare registers a manifest font. Directories are searched, files are
// matched by name as well as by file stem.
func (s *SystemFonts) Declare(name, path string) {
	info, err := os.Stat(path)
	if err != nil {
		logger.Warn("declared font not found", logger.String("path", path))
		return
	}
	if info.IsDir() {
		s.Dirs = append(s.Dirs, path)
		return
	}
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	s.Declared[NormalizeFontName(name)] = path
	s.Dirs = append(s.Dirs, filepath.Dir(path))
}

// Available implements FontResolver.
func (s *SystemFonts) Available(name string) bool {
	key := NormalizeFontName(name)
	if key == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cache == nil {
		s.cache = map[string]bool{}
	}
	if v, ok := s.cache[key]; ok {
		return v
	}
	ok := s.lookup(name, key)
	s.cache[key] = ok
	return ok
}

func (s *SystemFonts) lookup(name, key string) bool {
	if _, ok := s.Declared[key]; ok {
		return true
	}
	if fcList(name, key) {
		return true
	}
	s.once.Do(s.scan)
	for _, f := range s.files {
		if strings.Contains(NormalizeFontName(filepath.Base(f)), key) {
			return true
		}
	}
	return false
}

func (s *SystemFonts) scan() {
	for _, dir := range s.Dirs {
		if _, err := os.Stat(dir); err != nil {
			continue
		}
		matches, err := doublestar.Glob(os.DirFS(dir), fontGlob)
		if err != nil {
			logger.Debug("font glob failed", logger.String("dir", dir), logger.Err(err))
			continue
		}
		for _, m := range matches {
			s.files = append(s.files, filepath.Join(dir, filepath.FromSlash(m)))
		}
	}
}

func fcList(name, key string) bool {
	bin, err := exec.LookPath("fc-list")
	if err != nil {
		return false
	}
	out, err := exec.CommandContext(context.Background(), bin, name).Output() // #nosec G204 -- fixed binary, name is an argument
	if err != nil {
		return false
	}
	for _, line := range bytes.Split(out, []byte("\n")) {
		if strings.Contains(NormalizeFontName(string(line)), key) {
			return true
		}
	}
	return false
}

// emojiCandidates are tried in order; the first entry only for colour.
var emojiCandidates = []string{
	"Twemoji",
	"Twitter Color Emoji",
	"Segoe UI Emoji",
	"Noto Color Emoji",
	"OpenMoji Color",
}

// NeedsHarfBuzz reports whether font must be rendered with HarfBuzz.
func NeedsHarfBuzz(font string) bool {
	lower := strings.ToLower(font)
	return strings.Contains(lower, "color") || strings.Contains(lower, "segoe ui emoji")
}

// SelectEmojiFont picks the first available emoji font. When none is
// found it returns ErrFontUnavailable if required, and an empty name
// otherwise.
func SelectEmojiFont(r FontResolver, color, required bool) (string, bool, error) {
	candidates := emojiCandidates
	if color {
		candidates = append([]string{"Twemoji Mozilla"}, emojiCandidates...)
	}
	for _, c := range candidates {
		if r.Available(c) {
			logger.Debug("using emoji font", logger.String("font", c))
			return c, NeedsHarfBuzz(c), nil
		}
	}
	if required {
		return "", false, fmt.Errorf("%w: no emoji font among %s; install Twemoji (check with 'fc-list | grep -i twemoji') or declare it under fonts: in the manifest",
			ErrFontUnavailable, strings.Join(candidates, ", "))
	}
	logger.Warn("no emoji font found, emoji will render as text")
	return "", false, nil
}

var fallbackSep = regexp.MustCompile(`[;,]`)

// NormalizeFallbackSpec cleans a font fallback chain: entries are
// deduplicated by family, a HarfBuzz primary gets ":mode=harf" and
// "DejaVu Sans:mode=harf" closes the chain.
func NormalizeFallbackSpec(spec, primary string, harfbuzz bool) string {
	var entries []string
	seen := map[string]bool{}
	primaryKey := ""
	if primary != "" {
		primaryKey = NormalizeFontName(primary)
	}
	for _, chunk := range fallbackSep.Split(spec, -1) {
		entry := strings.TrimSpace(chunk)
		if entry == "" {
			continue
		}
		base := strings.TrimSpace(strings.SplitN(entry, ":", 2)[0])
		if base == "" {
			continue
		}
		key := NormalizeFontName(base)
		if seen[key] {
			continue
		}
		if harfbuzz && key == primaryKey && !strings.Contains(strings.ToLower(entry), ":mode=") {
			entry += ":mode=harf"
		}
		entries = append(entries, entry)
		seen[key] = true
	}
	if !seen[NormalizeFontName("DejaVu Sans")] {
		entries = append(entries, "DejaVu Sans:mode=harf")
	}
	return strings.Join(entries, "; ")
}

// DefaultFallbackSpec is the chain used when a target sets none.
func DefaultFallbackSpec(emoji string, harfbuzz bool, cjk string) string {
	var parts []string
	if emoji != "" {
		e := emoji
		if harfbuzz {
			e += ":mode=harf"
		}
		parts = append(parts, e)
	}
	if cjk != "" {
		parts = append(parts, cjk+":mode=harf")
	}
	return strings.Join(parts, "; ")
}
