package preprocess

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var (
	figureStart = regexp.MustCompile(`(?i)<figure\b`)
	figureEnd   = regexp.MustCompile(`(?i)</figure>`)
)

// convertFigures replaces <figure> blocks with Markdown images. Unclosed
// figures and figures without an image are kept as they are.
func convertFigures(lines []string) []string {
	var out, buf []string
	for _, line := range lines {
		if buf == nil && !figureStart.MatchString(line) {
			out = append(out, line)
			continue
		}
		buf = append(buf, line)
		if figureEnd.MatchString(line) {
			out = append(out, figureMarkdown(buf)...)
			buf = nil
		}
	}
	return append(out, buf...)
}

type figure struct {
	src, alt, caption string
}

func figureMarkdown(block []string) []string {
	fig, ok := parseFigure(strings.Join(block, "\n"))
	if !ok {
		return block
	}
	label := fig.caption
	if label == "" {
		label = fig.alt
	}
	if label == "" {
		label = "Image"
	}
	label = strings.NewReplacer("[", `\[`, "]", `\]`).Replace(label)

	img := "![" + label + "](" + fig.src + ")"
	if fig.alt != "" {
		img += `{fig-alt="` + strings.ReplaceAll(fig.alt, `"`, `\"`) + `"}`
	}
	if fig.caption != "" && fig.caption != fig.alt {
		return []string{img, "", fig.caption}
	}
	return []string{img}
}

func parseFigure(src string) (figure, bool) {
	context := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(src), context)
	if err != nil {
		return figure{}, false
	}
	var fig figure
	found := false
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Img:
				if !found {
					fig.src = strings.TrimSpace(attr(n, "src"))
					fig.alt = strings.TrimSpace(attr(n, "alt"))
					found = fig.src != ""
				}
			case atom.Figcaption:
				if fig.caption == "" {
					fig.caption = strings.Join(strings.Fields(text(n)), " ")
				}
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range nodes {
		walk(n)
	}
	return fig, found
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func text(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		b.WriteString(text(c))
	}
	return b.String()
}
