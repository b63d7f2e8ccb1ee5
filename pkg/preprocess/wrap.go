package preprocess

import (
	"fmt"

	"github.com/fulmenhq/folio/pkg/paper"
)

// Wrap brackets lines with the LaTeX commands that switch to target and
// back to current. Every wrap emits exactly one restore.
func Wrap(lines []string, target, current paper.Format) []string {
	m := target.Margins
	out := []string{
		"",
		`\newpage`,
		fmt.Sprintf(`\newgeometry{paperwidth=%dmm, paperheight=%dmm, left=%dmm, right=%dmm, top=%dmm, bottom=%dmm}`,
			target.WidthMM, target.HeightMM, m.Left, m.Right, m.Top, m.Bottom),
		"",
		fmt.Sprintf(`\pagewidth=%dmm`, target.WidthMM),
		fmt.Sprintf(`\pageheight=%dmm`, target.HeightMM),
		"",
	}
	out = append(out, lines...)
	return append(out,
		"",
		`\restoregeometry`,
		fmt.Sprintf(`\pagewidth=%dmm`, current.WidthMM),
		fmt.Sprintf(`\pageheight=%dmm`, current.HeightMM),
		`\newpage`,
		"",
	)
}
