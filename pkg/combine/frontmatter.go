package combine

import (
	"bytes"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/fulmenhq/folio/pkg/logger"
	"github.com/fulmenhq/folio/pkg/paper"
)

// HeaderIncludes are the LaTeX lines every combined document carries.
var HeaderIncludes = []string{
	`\usepackage{calc}`,
	`\usepackage{enumitem}`,
	`\setlistdepth{20}`,
	`\usepackage{longtable}`,
	`\usepackage{ltablex}`,
	`\usepackage{booktabs}`,
	`\usepackage{array}`,
	`\keepXColumns`,
	`\setlength\LTleft{0pt}`,
	`\setlength\LTright{0pt}`,
}

var geometryPackage = regexp.MustCompile(`^\\usepackage(\[[^\]]*\])?\{geometry\}`)

// frontMatterBounds finds a YAML block opened on the first line. It
// returns the yaml text and the indices of the opening and closing lines.
func frontMatterBounds(lines []string) (string, int, int, bool) {
	if len(lines) == 0 || strings.TrimSpace(lines[0]) != "---" {
		return "", 0, 0, false
	}
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			return strings.Join(lines[1:i], "\n"), 0, i, true
		}
	}
	return "", 0, 0, false
}

// InjectFrontMatter sets the geometry of page and the required
// header-includes in the document's front matter, creating it when the
// document has none. Other keys are kept in order.
func InjectFrontMatter(text string, page paper.Format) string {
	lines := strings.Split(text, "\n")
	body := text
	doc := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	if head, _, end, ok := frontMatterBounds(lines); ok {
		body = strings.Join(lines[end+1:], "\n")
		var n yaml.Node
		switch err := yaml.Unmarshal([]byte(head), &n); {
		case err != nil:
			logger.Warn("front matter is not valid YAML, replacing it", logger.Err(err))
		case len(n.Content) == 1 && n.Content[0].Kind == yaml.MappingNode:
			doc = n.Content[0]
		}
	}

	setKey(doc, "geometry", stringSeq(page.GeometryOptions()))
	setKey(doc, "header-includes", stringSeq(MergeHeaderIncludes(scalarStrings(lookup(doc, "header-includes")))))

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		logger.Warn("encode front matter", logger.Err(err))
	}
	_ = enc.Close()
	return "---\n" + buf.String() + "---\n\n" + strings.TrimLeft(body, "\n")
}

// MergeHeaderIncludes deduplicates existing lines, drops geometry package
// loads and appends the required lines that are missing.
func MergeHeaderIncludes(existing []string) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(line string) {
		if seen[line] || geometryPackage.MatchString(strings.TrimSpace(line)) {
			return
		}
		seen[line] = true
		out = append(out, line)
	}
	for _, l := range existing {
		add(l)
	}
	for _, l := range HeaderIncludes {
		add(l)
	}
	return out
}

func lookup(m *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return m.Content[i+1]
		}
	}
	return nil
}

func setKey(m *yaml.Node, key string, v *yaml.Node) {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			m.Content[i+1] = v
			return
		}
	}
	m.Content = append(m.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key}, v)
}

func stringSeq(values []string) *yaml.Node {
	seq := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
	for _, v := range values {
		seq.Content = append(seq.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: v})
	}
	return seq
}

func scalarStrings(n *yaml.Node) []string {
	if n == nil {
		return nil
	}
	switch n.Kind {
	case yaml.ScalarNode:
		if n.Value == "" {
			return nil
		}
		return []string{n.Value}
	case yaml.SequenceNode:
		var out []string
		for _, c := range n.Content {
			if c.Kind == yaml.ScalarNode {
				out = append(out, c.Value)
			}
		}
		return out
	}
	return nil
}
