package summary

import (
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

var frontMatterPattern = regexp.MustCompile(`(?s)^---[ \t]*\r?\n(.*?)\r?\n---[ \t]*(?:\r?\n|$)`)

// splitFrontMatter returns the decoded YAML front matter (nil when absent
// or malformed) and the remaining body.
func splitFrontMatter(text string) (map[string]interface{}, string) {
	text = strings.TrimPrefix(text, "\ufeff")
	loc := frontMatterPattern.FindStringSubmatchIndex(text)
	if loc == nil {
		return nil, text
	}
	body := text[loc[1]:]
	var fm map[string]interface{}
	if err := yaml.Unmarshal([]byte(text[loc[2]:loc[3]]), &fm); err != nil {
		return nil, body
	}
	return fm, body
}

// firstHeading returns the text of the first line starting with "#",
// skipping fenced code blocks.
func firstHeading(body string) string {
	fence := ""
	for _, line := range strings.Split(body, "\n") {
		s := strings.TrimSpace(line)
		if fence != "" {
			if strings.HasPrefix(s, fence) {
				fence = ""
			}
			continue
		}
		if strings.HasPrefix(s, "```") || strings.HasPrefix(s, "~~~") {
			fence = s[:3]
			continue
		}
		if strings.HasPrefix(s, "#") {
			return strings.TrimSpace(strings.TrimLeft(s, "#"))
		}
	}
	return ""
}

// stemTitle turns a file stem into a readable title.
func stemTitle(stem string) string {
	t := strings.TrimSpace(strings.NewReplacer("-", " ", "_", " ").Replace(stem))
	if t == "" {
		return stem
	}
	return t
}

// Title extracts the first heading after front matter, falling back to
// the file stem.
func Title(text, stem string) string {
	_, body := splitFrontMatter(text)
	if h := firstHeading(body); h != "" {
		return h
	}
	return stemTitle(stem)
}

var (
	appendixStem    = regexp.MustCompile(`^(?i:anhang|appendix)[-_.]`)
	appendixHeading = regexp.MustCompile(`^(Anhang|Appendix)\b`)
)

// IsAppendix reports whether a stem or heading marks an appendix.
func IsAppendix(stem, heading string) bool {
	return appendixStem.MatchString(stem) || appendixHeading.MatchString(heading)
}
