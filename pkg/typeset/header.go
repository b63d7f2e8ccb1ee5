package typeset

import (
	"fmt"
	"strings"
	"sync"

	"github.com/aymerick/raymond"
	"github.com/fulmenhq/folio/internal/assets"
	"github.com/fulmenhq/folio/pkg/combine"
)

// FontHeader describes the generated font preamble.
type FontHeader struct {
	Main, Sans, Mono string
	Emoji            string
	HarfBuzz         bool
	// Fallback is a normalised fallback chain; empty disables fallback.
	Fallback    string
	IncludeMain bool
}

var (
	templatesOnce sync.Once
	templatesErr  error
	fontTpl       *raymond.Template
	titleTpl      *raymond.Template
)

func loadTemplates() error {
	templatesOnce.Do(func() {
		fontTpl, templatesErr = parseTemplate(assets.FontHeaderTemplate)
		if templatesErr != nil {
			return
		}
		titleTpl, templatesErr = parseTemplate(assets.TitleHeaderTemplate)
	})
	return templatesErr
}

func parseTemplate(name string) (*raymond.Template, error) {
	src, err := assets.GetTemplate(name)
	if err != nil {
		return nil, fmt.Errorf("load template %s: %w", name, err)
	}
	tpl, err := raymond.Parse(src)
	if err != nil {
		return nil, fmt.Errorf("parse template %s: %w", name, err)
	}
	// group wraps a value in a TeX group.
	tpl.RegisterHelper("group", func(v interface{}) raymond.SafeString {
		return raymond.SafeString("{" + raymond.Str(v) + "}")
	})
	return tpl, nil
}

func luaEscape(s string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s)
}

// luaFallback renders the luaotfload fallback registration for spec.
func luaFallback(spec string) string {
	var parts []string
	for _, chunk := range fallbackSep.Split(spec, -1) {
		if e := strings.TrimSpace(chunk); e != "" {
			parts = append(parts, `"`+luaEscape(e)+`"`)
		}
	}
	if len(parts) == 0 {
		return ""
	}
	return `luaotfload.add_fallback("mainfont", {` + strings.Join(parts, ", ") + `})`
}

// BuildFontHeader renders the fontspec preamble.
func BuildFontHeader(h FontHeader) (string, error) {
	if err := loadTemplates(); err != nil {
		return "", err
	}
	lua := ""
	if h.Fallback != "" {
		lua = luaFallback(h.Fallback)
	}
	ctx := map[string]interface{}{
		"emoji":        h.Emoji,
		"emojiOptions": "",
		"fallbackLua":  lua,
		"includeMain":  h.IncludeMain,
		// The fallback table is only registered alongside the emoji font.
		"fallbackMain": lua != "" && h.Emoji != "",
		"main":         h.Main,
		"sans":         h.Sans,
		"mono":         h.Mono,
	}
	if h.HarfBuzz {
		ctx["emojiOptions"] = "[Renderer=Harfbuzz]"
	}
	out, err := fontTpl.Exec(ctx)
	if err != nil {
		return "", fmt.Errorf("render font header: %w", err)
	}
	return out, nil
}

var plainTitleJunk = strings.NewReplacer(`\`, "", "{", "", "}", "")

// BuildTitleHeader renders the title preamble with an escaped title and a
// plain variant for PDF bookmarks.
func BuildTitleHeader(title string) (string, error) {
	if err := loadTemplates(); err != nil {
		return "", err
	}
	value := fmt.Sprintf(`\texorpdfstring{%s}{%s}`, combine.EscapeLaTeX(title), plainTitleJunk.Replace(title))
	out, err := titleTpl.Exec(map[string]interface{}{"title": value})
	if err != nil {
		return "", fmt.Errorf("render title header: %w", err)
	}
	return out, nil
}
