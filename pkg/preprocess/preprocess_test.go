package preprocess

import (
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fulmenhq/folio/pkg/paper"
)

func writeDoc(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, filepath.FromSlash(name))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func writePNG(t *testing.T, p string, width int) {
	t.Helper()
	f, err := os.Create(p)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	require.NoError(t, png.Encode(f, image.NewGray(image.Rect(0, 0, width, 2))))
}

func TestWideTableIsWrappedAsLongtable(t *testing.T) {
	content := filepath.Join(t.TempDir(), "content")
	p := writeDoc(t, content, "wide.md", strings.Join([]string{
		"Text before",
		"",
		"## Wide",
		"| A | B | C | D | E | F | G | H | I |",
		"|:---|:---:|---:|---|---|---|---|---|---|",
		"| a_1 | b&c | $x_1$ | d | e | f | g | h | i |",
		"after",
		"",
	}, "\n"))

	got, err := Preprocess(p, Options{})
	require.NoError(t, err)

	want := strings.Join([]string{
		"Text before",
		"",
		`\newpage`,
		`\newgeometry{paperwidth=297mm, paperheight=210mm, left=15mm, right=15mm, top=15mm, bottom=15mm}`,
		"",
		`\pagewidth=297mm`,
		`\pageheight=210mm`,
		"",
		"",
		"## Wide",
		`\begin{longtable}{@{}lcrllllll@{}}`,
		`\toprule`,
		`A & B & C & D & E & F & G & H & I \\`,
		`\midrule`,
		`\endhead`,
		`a\_1 & b\&c & $x_1$ & d & e & f & g & h & i \\`,
		`\bottomrule`,
		`\end{longtable}`,
		"",
		`\restoregeometry`,
		`\pagewidth=210mm`,
		`\pageheight=297mm`,
		`\newpage`,
		"",
		"after",
		"",
	}, "\n")
	assert.Equal(t, want, got)
	assert.Equal(t, 1, strings.Count(got, `\newgeometry`))
	assert.Equal(t, 1, strings.Count(got, `\restoregeometry`))
}

func TestNarrowTableOnlyEscapesAmpersands(t *testing.T) {
	p := writeDoc(t, t.TempDir(), "content/narrow.md", "| a | b |\n|---|---|\n| x & y | z \\& w |\n")

	got, err := Preprocess(p, Options{})
	require.NoError(t, err)
	assert.NotContains(t, got, `\newgeometry`)
	assert.Contains(t, got, `| x \& y | z \& w |`)
}

func TestColumnThresholdWrapsOnSamePaper(t *testing.T) {
	header := "|" + strings.Repeat(" h |", 10)
	sep := "|" + strings.Repeat("---|", 10)
	p := writeDoc(t, t.TempDir(), "content/ten.md", header+"\n"+sep+"\n")

	got, err := Preprocess(p, Options{PaperFormat: "a2"})
	require.NoError(t, err)
	assert.Contains(t, got, `\newgeometry{paperwidth=420mm, paperheight=594mm, left=18mm, right=18mm, top=18mm, bottom=18mm}`)
	assert.Contains(t, got, `\begin{longtable}{@{}llllllllll@{}}`)

	got, err = Preprocess(p, Options{PaperFormat: "a2", MinColsForWrap: 11})
	require.NoError(t, err)
	assert.NotContains(t, got, `\newgeometry`)
}

func TestTablesInsideFencesAreUntouched(t *testing.T) {
	src := "```\n| a | b | c | d | e | f | g | h | i | j | k |\n|---|---|---|---|---|---|---|---|---|---|---|\n```\n"
	p := writeDoc(t, t.TempDir(), "content/fenced.md", src)

	got, err := Preprocess(p, Options{})
	require.NoError(t, err)
	assert.Equal(t, src, got)
}

func TestWideImageEscalatesPaper(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "content")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	writePNG(t, filepath.Join(dir, "big.png"), 3000)
	writePNG(t, filepath.Join(dir, "small.png"), 100)
	p := writeDoc(t, dir, "images.md", "![big](big.png)\n\n![small](small.png \"title\")\n\n![gone](missing.png)\n")

	got, err := Preprocess(p, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(got, `\newgeometry`))
	assert.Contains(t, got, `\newgeometry{paperwidth=297mm, paperheight=210mm`)
	assert.Contains(t, got, "![big](big.png)\n\n"+`\restoregeometry`)
	assert.Contains(t, got, "\n![small](small.png \"title\")\n")

	assert.Equal(t, 3000, ImageWidth(filepath.Join(dir, "big.png")))
	assert.Equal(t, 0, ImageWidth(filepath.Join(dir, "missing.png")))
	assert.Equal(t, 0, ImageWidth(p))
}

func TestFigureConversion(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{
			name: "caption differs from alt",
			in:   []string{`<figure><img src="img/a.png" alt="An &quot;alt&quot;"><figcaption>The <b>caption</b></figcaption></figure>`},
			want: []string{`![The caption](img/a.png){fig-alt="An \"alt\""}`, "", "The caption"},
		},
		{
			name: "multi line without caption",
			in:   []string{"<figure>", `  <img src="x.png" alt="X">`, "</figure>", "next"},
			want: []string{`![X](x.png){fig-alt="X"}`, "next"},
		},
		{
			name: "no alt no caption",
			in:   []string{`<FIGURE><img src="y.png"></FIGURE>`},
			want: []string{"![Image](y.png)"},
		},
		{
			name: "brackets escaped",
			in:   []string{`<figure><img src="z.png" alt="[z]"></figure>`},
			want: []string{`![\[z\]](z.png){fig-alt="[z]"}`},
		},
		{
			name: "no image kept",
			in:   []string{"<figure>", "<p>text</p>", "</figure>"},
			want: []string{"<figure>", "<p>text</p>", "</figure>"},
		},
		{
			name: "unclosed kept",
			in:   []string{"<figure>", `<img src="x.png">`},
			want: []string{"<figure>", `<img src="x.png">`},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, convertFigures(tt.in))
		})
	}
}

func TestPlainFileIsUnchanged(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"paragraph with link", "# Intro\n\nJust a paragraph with [a link](other.md).\n"},
		{"front matter", "---\ntitle: X\n---\n# H\n"},
		{"math and code", "Inline $a & b$ math.\n\n```go\nx := a & b\n```\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := filepath.Join(t.TempDir(), "content")
			writeDoc(t, dir, "other.md", "# Other\n")
			p := writeDoc(t, dir, "doc.md", tt.src)

			got, err := Preprocess(p, Options{})
			require.NoError(t, err)
			assert.Equal(t, tt.src, got)
		})
	}
}

func TestSplitRow(t *testing.T) {
	assert.Equal(t, []string{"a", "b | c", "d"}, splitRow(`| a | b \| c | d |`))
	assert.Equal(t, []string{"a", "b"}, splitRow("a | b"))
}

func TestWrapPairsRestore(t *testing.T) {
	a4 := paper.MustLookup("a4")
	a3l := paper.MustLookup("a3-landscape")
	out := Wrap([]string{"x"}, a3l, a4)
	joined := strings.Join(out, "\n")
	assert.Equal(t, 1, strings.Count(joined, `\newgeometry`))
	assert.Equal(t, 1, strings.Count(joined, `\restoregeometry`))
	assert.Contains(t, joined, `\pagewidth=420mm`)
	assert.Contains(t, joined, `\pagewidth=210mm`)
}
