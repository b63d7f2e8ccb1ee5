// Package paper describes ISO 216 paper formats and the page geometry
// escalation used when content is wider than the current page.
package paper

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Margins are page margins in millimetres.
type Margins struct {
	Left, Top, Right, Bottom int
}

// Format is a named paper size with margins, all in millimetres.
type Format struct {
	Name     string
	Standard bool
	Rotated  bool
	WidthMM  int
	HeightMM int
	Margins  Margins
}

func (f Format) String() string {
	return fmt.Sprintf("%s (%dx%dmm, margins %d-%d-%d-%d)",
		f.Name, f.WidthMM, f.HeightMM,
		f.Margins.Left, f.Margins.Top, f.Margins.Right, f.Margins.Bottom)
}

// Equal reports whether two formats describe the same page.
func (f Format) Equal(o Format) bool {
	return f.Name == o.Name && f.WidthMM == o.WidthMM && f.HeightMM == o.HeightMM && f.Margins == o.Margins
}

// Rotate turns the page a quarter clockwise: dimensions swap and margins
// cycle so that (l,t,r,b) becomes (t,r,b,l).
func (f Format) Rotate() Format {
	m := f.Margins
	f.WidthMM, f.HeightMM = f.HeightMM, f.WidthMM
	f.Margins = Margins{Left: m.Top, Top: m.Right, Right: m.Bottom, Bottom: m.Left}
	f.Rotated = !f.Rotated
	return f
}

var baseSizes = map[string][2]int{
	"a0": {841, 1189},
	"a1": {594, 841},
	"a2": {420, 594},
	"a3": {297, 420},
	"a4": {210, 297},
	"a5": {148, 210},
	"a6": {105, 148},
}

func defaultMargins(base string) Margins {
	switch base {
	case "a2":
		return Margins{18, 18, 18, 18}
	case "a1", "a0":
		return Margins{20, 20, 20, 20}
	default:
		return Margins{15, 15, 15, 15}
	}
}

// candidateOrder is the escalation ladder used for wide content.
var candidateOrder = []string{
	"a4", "a4-landscape",
	"a3", "a3-landscape",
	"a2", "a2-landscape",
	"a1", "a1-landscape",
}

// Default returns portrait A4.
func Default() Format {
	f, _ := Lookup("a4")
	return f
}

var (
	customRe = regexp.MustCompile(`^custom_(.+)_(\d+)x(\d+)_(\d+)-(\d+)-(\d+)-(\d+)$`)
	prefixRe = regexp.MustCompile(`^(?:din|iso)\s+`)
	orientRe = regexp.MustCompile(`^(a[0-6])[-_ ]?(landscape|portrait|l|p)?$`)
)

// Lookup resolves a paper name such as "a4", "A3-landscape", "a4l",
// "DIN A4" or "custom_poster_500x700_10-10-10-10".
func Lookup(name string) (Format, error) {
	raw := strings.TrimSpace(name)
	if m := customRe.FindStringSubmatch(raw); m != nil {
		n := make([]int, 6)
		for i := range n {
			n[i], _ = strconv.Atoi(m[i+2])
		}
		if n[0] <= 0 || n[1] <= 0 {
			return Format{}, fmt.Errorf("invalid custom paper size %q", name)
		}
		return Format{
			Name:     raw,
			WidthMM:  n[0],
			HeightMM: n[1],
			Margins:  Margins{Left: n[2], Top: n[3], Right: n[4], Bottom: n[5]},
		}, nil
	}

	key := prefixRe.ReplaceAllString(strings.ToLower(raw), "")
	m := orientRe.FindStringSubmatch(key)
	if m == nil {
		return Format{}, fmt.Errorf("unsupported paper format %q", name)
	}
	base := m[1]
	size := baseSizes[base]
	f := Format{
		Name:     base,
		Standard: true,
		WidthMM:  size[0],
		HeightMM: size[1],
		Margins:  defaultMargins(base),
	}
	if m[2] == "landscape" || m[2] == "l" {
		f = f.Rotate()
		f.Name = base + "-landscape"
	}
	return f, nil
}

// MustLookup is Lookup for names known at compile time.
func MustLookup(name string) Format {
	f, err := Lookup(name)
	if err != nil {
		panic(err)
	}
	return f
}

// Candidates returns base followed by the escalation ladder, rotated so
// that it continues after base. Duplicates of base are skipped.
func Candidates(base Format) []Format {
	out := []Format{base}
	start := 0
	for i, code := range candidateOrder {
		if code == base.Name {
			start = i + 1
			break
		}
	}
	ordered := append(append([]string{}, candidateOrder[start:]...), candidateOrder[:start]...)
	for _, code := range ordered {
		f := MustLookup(code)
		if f.Equal(base) {
			continue
		}
		out = append(out, f)
	}
	return out
}

// SmallestFitting returns the first candidate at least widthMM wide (and
// never narrower than base). If nothing fits, base is returned with ok=false.
func SmallestFitting(base Format, widthMM float64) (Format, bool) {
	need := widthMM
	if float64(base.WidthMM) > need {
		need = float64(base.WidthMM)
	}
	for _, c := range Candidates(base) {
		if float64(c.WidthMM) >= need {
			return c, true
		}
	}
	return base, false
}

// GeometryOptions renders the geometry package option list.
func (f Format) GeometryOptions() []string {
	return []string{
		fmt.Sprintf("paperwidth=%dmm", f.WidthMM),
		fmt.Sprintf("paperheight=%dmm", f.HeightMM),
		fmt.Sprintf("left=%dmm", f.Margins.Left),
		fmt.Sprintf("right=%dmm", f.Margins.Right),
		fmt.Sprintf("top=%dmm", f.Margins.Top),
		fmt.Sprintf("bottom=%dmm", f.Margins.Bottom),
	}
}
