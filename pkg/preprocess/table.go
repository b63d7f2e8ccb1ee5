package preprocess

import (
	"strings"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/ast"
	"github.com/gomarkdown/markdown/parser"
)

// Column alignments as longtable column specifiers.
const (
	AlignLeft   = "l"
	AlignCenter = "c"
	AlignRight  = "r"
)

// Table is a pipe table split into header, alignments and body rows.
type Table struct {
	Header []string
	Align  []string
	Rows   [][]string
}

// Columns is the column count.
func (t Table) Columns() int { return len(t.Align) }

// parseTable reads a pipe table block. Column count and alignment come
// from the Markdown AST; cells are split from the raw lines so inline
// markup reaches LaTeX unchanged.
func parseTable(block []string) Table {
	t := Table{Header: splitRow(block[0])}
	if len(block) > 2 {
		for _, l := range block[2:] {
			t.Rows = append(t.Rows, splitRow(l))
		}
	}
	t.Align = astAlignments(strings.Join(block, "\n"))
	if t.Align == nil {
		t.Align = separatorAlignments(block[1])
	}
	return t
}

func astAlignments(src string) []string {
	p := parser.NewWithExtensions(parser.Tables)
	doc := markdown.Parse([]byte(src), p)

	var aligns []string
	ast.WalkFunc(doc, func(node ast.Node, entering bool) ast.WalkStatus {
		if !entering {
			return ast.GoToNext
		}
		row, ok := node.(*ast.TableRow)
		if !ok {
			return ast.GoToNext
		}
		for _, child := range row.Children {
			cell, ok := child.(*ast.TableCell)
			if !ok {
				continue
			}
			aligns = append(aligns, alignSpec(cell.Align))
		}
		return ast.Terminate
	})
	return aligns
}

func alignSpec(a ast.CellAlignFlags) string {
	switch a {
	case ast.TableAlignmentCenter:
		return AlignCenter
	case ast.TableAlignmentRight:
		return AlignRight
	default:
		return AlignLeft
	}
}

func separatorAlignments(line string) []string {
	var out []string
	for _, cell := range splitRow(line) {
		switch {
		case strings.HasPrefix(cell, ":") && strings.HasSuffix(cell, ":"):
			out = append(out, AlignCenter)
		case strings.HasSuffix(cell, ":"):
			out = append(out, AlignRight)
		default:
			out = append(out, AlignLeft)
		}
	}
	return out
}

// splitRow splits a table line on unescaped pipes, dropping the outer
// pipes and trimming each cell.
func splitRow(line string) []string {
	line = strings.TrimSpace(line)
	line = strings.TrimPrefix(line, "|")
	if strings.HasSuffix(line, "|") && !strings.HasSuffix(line, `\|`) {
		line = line[:len(line)-1]
	}
	var cells []string
	var cur strings.Builder
	for i := 0; i < len(line); i++ {
		c := line[i]
		if c == '\\' && i+1 < len(line) && line[i+1] == '|' {
			cur.WriteByte('|')
			i++
			continue
		}
		if c == '|' {
			cells = append(cells, strings.TrimSpace(cur.String()))
			cur.Reset()
			continue
		}
		cur.WriteByte(c)
	}
	return append(cells, strings.TrimSpace(cur.String()))
}

// Longtable renders the table as a LaTeX longtable with booktabs rules.
func (t Table) Longtable() []string {
	out := []string{
		`\begin{longtable}{@{}` + strings.Join(t.Align, "") + `@{}}`,
		`\toprule`,
		t.latexRow(t.Header),
		`\midrule`,
		`\endhead`,
	}
	for _, r := range t.Rows {
		out = append(out, t.latexRow(r))
	}
	return append(out, `\bottomrule`, `\end{longtable}`)
}

func (t Table) latexRow(cells []string) string {
	n := t.Columns()
	row := make([]string, n)
	for i := 0; i < n && i < len(cells); i++ {
		row[i] = escapeCell(cells[i])
	}
	return strings.Join(row, " & ") + ` \\`
}

// escapeCell escapes LaTeX specials in a longtable cell. $...$ math
// spans and already escaped characters are left alone.
func escapeCell(s string) string {
	var b strings.Builder
	inMath := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '$' && (i == 0 || s[i-1] != '\\') {
			if inMath || strings.IndexByte(s[i+1:], '$') >= 0 {
				inMath = !inMath
			}
		}
		if !inMath && strings.IndexByte("_&#%", c) >= 0 && (i == 0 || s[i-1] != '\\') {
			b.WriteByte('\\')
		}
		b.WriteByte(c)
	}
	return b.String()
}

// escapeTableLine escapes bare ampersands in a Markdown table line.
func escapeTableLine(line string) string {
	if !strings.Contains(line, "&") {
		return line
	}
	var b strings.Builder
	for i := 0; i < len(line); i++ {
		if line[i] == '&' && (i == 0 || line[i-1] != '\\') {
			b.WriteByte('\\')
		}
		b.WriteByte(line[i])
	}
	return b.String()
}
