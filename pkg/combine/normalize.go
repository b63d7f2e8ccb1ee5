package combine

import (
	"regexp"
	"strings"
)

var escapedBracket = regexp.MustCompile(`\\\[([^\n\\]*?)\]`)

// Normalize rewrites Unicode subscript digits for LaTeX and unescapes
// bracket pairs of the form \[x]. Inside $...$ math a subscript becomes
// _{d}; elsewhere it becomes $_d$.
func Normalize(text string) string {
	text = escapedBracket.ReplaceAllString(text, "[$1]")

	var b strings.Builder
	b.Grow(len(text))
	inMath := false
	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case r == '\\' && i+1 < len(runes) && runes[i+1] == '$':
			b.WriteString(`\$`)
			i++
		case r == '$':
			if i+1 < len(runes) && runes[i+1] == '$' {
				b.WriteString("$$")
				i++
			} else {
				b.WriteRune(r)
			}
			inMath = !inMath
		case r >= '₀' && r <= '₉':
			d := string('0' + (r - '₀'))
			if inMath {
				b.WriteString("_{" + d + "}")
			} else {
				b.WriteString("$_" + d + "$")
			}
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

var latexEscapes = strings.NewReplacer(
	`\`, `\textbackslash{}`,
	"&", `\&`,
	"%", `\%`,
	"$", `\$`,
	"#", `\#`,
	"_", `\_`,
	"{", `\{`,
	"}", `\}`,
)

// EscapeLaTeX escapes the characters that break LaTeX when a string is
// placed in a template.
func EscapeLaTeX(s string) string {
	return latexEscapes.Replace(s)
}

var firstHeading = regexp.MustCompile(`^(#[ \t]+)(.+)$`)

// EscapeFirstHeading escapes the text of the first level-one heading
// after any front matter, outside code fences.
func EscapeFirstHeading(text string) string {
	lines := strings.Split(text, "\n")
	start := 0
	if _, _, end, ok := frontMatterBounds(lines); ok {
		start = end + 1
	}
	fenced := false
	for i := start; i < len(lines); i++ {
		trimmed := strings.TrimLeft(lines[i], " \t")
		if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
			fenced = !fenced
			continue
		}
		if fenced {
			continue
		}
		if m := firstHeading.FindStringSubmatch(lines[i]); m != nil {
			lines[i] = m[1] + EscapeLaTeX(m[2])
			break
		}
	}
	return strings.Join(lines, "\n")
}
